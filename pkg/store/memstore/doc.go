// Package memstore is an in-memory notification record store.
//
// A single mutex serializes every mutation, which gives the same guarantees
// the SQL stores get from unique indexes and row locks: dedupe inserts are
// atomic and a record is never claimed by two workers at once.
package memstore
