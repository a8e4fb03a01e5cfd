// Package pg bootstraps PostgreSQL for notifykit on top of pgx/v5.
//
// Connect opens a *pgxpool.Pool from Config, retrying while the database
// comes up. Migrate applies the notification_records schema with goose,
// using the embedded migrations unless PG_MIGRATIONS_PATH points elsewhere.
// Healthcheck returns a check for the HTTP health endpoint.
//
//	pool, err := pg.Connect(ctx, cfg.Postgres)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, cfg.Postgres, log); err != nil {
//		return err
//	}
//
// IsDuplicateKeyError and friends classify *pgconn.PgError values.
package pg
