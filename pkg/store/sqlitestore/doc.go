// Package sqlitestore is a single-node record store on SQLite.
//
// It satisfies the same contracts as pgstore and is meant for local
// development and small deployments where one dispatcher process owns the
// database file. Open applies the embedded schema through goose.
package sqlitestore
