// Package migrations embeds the goose migrations for every supported store.
package migrations

import "embed"

// FS holds postgres/*.sql and sqlite/*.sql.
//
//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS

const (
	Postgres = "postgres"
	SQLite   = "sqlite"
)
