package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/dmitrymomot/notifykit/migrations"
)

// goose keeps its settings in package globals.
var gooseMu sync.Mutex

// Migrate applies the notification schema. It reads cfg.MigrationsPath when
// set and the embedded migrations otherwise.
func Migrate(ctx context.Context, pool *pgxpool.Pool, cfg Config, log logger) error {
	fsys, err := migrationsFS(cfg.MigrationsPath)
	if err != nil {
		return err
	}

	// goose works on database/sql; this wrapper shares the pool's connections.
	db := stdlib.OpenDBFromPool(pool)
	defer func(db *sql.DB) {
		if err := db.Close(); err != nil {
			log.ErrorContext(ctx, "failed to close migration connection", "error", err)
		}
	}(db)

	table := cfg.MigrationsTable
	if table == "" {
		table = "notifykit_migrations"
	}

	return Up(ctx, db, "postgres", fsys, table, log)
}

// Up runs goose against db with the given dialect. The sqlite store uses it too.
func Up(ctx context.Context, db *sql.DB, dialect string, fsys fs.FS, table string, log logger) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(fsys)
	defer goose.SetBaseFS(nil)
	goose.SetLogger(newSlogAdapter(log))
	goose.SetTableName(table)

	if err := goose.SetDialect(dialect); err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}
	return nil
}

func migrationsFS(path string) (fs.FS, error) {
	if path == "" {
		sub, err := fs.Sub(migrations.FS, migrations.Postgres)
		if err != nil {
			return nil, errors.Join(ErrFailedToApplyMigrations, err)
		}
		return sub, nil
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Join(ErrMigrationsDirNotFound, err)
		}
		return nil, errors.Join(ErrFailedToApplyMigrations, err)
	}
	return os.DirFS(path), nil
}

// migrateSlogAdapter routes goose's Printf-style output to the app logger.
type migrateSlogAdapter struct {
	log logger
}

func newSlogAdapter(log logger) goose.Logger {
	return &migrateSlogAdapter{log: log}
}

func (a *migrateSlogAdapter) Fatalf(format string, v ...any) {
	a.log.ErrorContext(context.Background(), fmt.Sprintf(format, v...))
}

func (a *migrateSlogAdapter) Printf(format string, v ...any) {
	a.log.InfoContext(context.Background(), fmt.Sprintf(format, v...))
}
