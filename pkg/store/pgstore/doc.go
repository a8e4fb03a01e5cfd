// Package pgstore is the PostgreSQL record store.
//
// It implements the outbox, dispatcher and query contracts against the
// notification_records table created by pg.Migrate. Claims use a CTE with
// FOR UPDATE SKIP LOCKED, so any number of dispatcher processes can share
// one table without claiming the same row, and no step depends on
// connection affinity. Idempotency relies on the unique partial index on
// (type, idempotency_key) through INSERT ... ON CONFLICT DO NOTHING.
//
// WithTx binds the store to a caller's pgx.Tx for the transactional outbox.
package pgstore
