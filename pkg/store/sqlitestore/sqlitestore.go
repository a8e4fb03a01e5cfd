package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/dmitrymomot/notifykit/migrations"
	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/pg"
)

// Store keeps notification records in a SQLite database.
// The pool is limited to one connection, so claims and finalizes are serialized.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now for claim eligibility and lease stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open opens (or creates) the database at dsn and applies the schema.
// dsn is a file path or ":memory:".
func Open(ctx context.Context, dsn string, log logger, opts ...Option) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, ErrEmptyDSN
	}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite", dsn+sep+"_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := Migrate(ctx, db, log); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db, opts...), nil
}

// Migrate applies the embedded sqlite schema to db.
func Migrate(ctx context.Context, db *sql.DB, log logger) error {
	fsys, err := fs.Sub(migrations.FS, migrations.SQLite)
	if err != nil {
		return fmt.Errorf("sqlite migrations: %w", err)
	}
	return pg.Up(ctx, db, "sqlite3", fsys, "notifykit_migrations", log)
}

// New wraps an already migrated database.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const columns = `id, type, template_code, channel, priority, recipient, locale, locale_source,
	payload, idempotency_key, tenant_id, status, attempts, max_attempts, next_attempt_at,
	last_error, created_at, updated_at, claimed_at, sent_at, lease_until, claimed_by`

const insertQuery = `INSERT INTO notification_records (` + columns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Create inserts rec. ErrDuplicateKey is returned when the id or the
// (type, idempotency key) pair is taken.
func (s *Store) Create(ctx context.Context, rec *notification.Record) error {
	if rec == nil {
		return ErrNilRecord
	}
	if _, err := s.db.ExecContext(ctx, insertQuery, s.insertArgs(rec)...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %w", notification.ErrDuplicateKey, err)
		}
		return fmt.Errorf("insert notification record: %w", err)
	}
	return nil
}

// InsertIfAbsent inserts rec unless its (type, idempotency key) is taken and
// returns the stored record in that case.
func (s *Store) InsertIfAbsent(ctx context.Context, rec *notification.Record) (*notification.Record, error) {
	if rec == nil {
		return nil, ErrNilRecord
	}
	if rec.IdempotencyKey == nil {
		return nil, s.Create(ctx, rec)
	}

	res, err := s.db.ExecContext(ctx, insertQuery+`
		ON CONFLICT (type, idempotency_key) WHERE idempotency_key IS NOT NULL DO NOTHING`,
		s.insertArgs(rec)...)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %w", notification.ErrDuplicateKey, err)
		}
		return nil, fmt.Errorf("insert notification record: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("insert notification record: %w", err)
	} else if n == 1 {
		return nil, nil
	}

	existing, err := s.GetByIdempotencyKey(ctx, rec.Type, *rec.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("load existing record: %w", err)
	}
	return existing, nil
}

func (s *Store) insertArgs(rec *notification.Record) []any {
	now := s.now()
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	nextAttemptAt := rec.NextAttemptAt
	if nextAttemptAt.IsZero() {
		nextAttemptAt = createdAt
	}
	status := rec.Status
	if status == "" {
		status = notification.StatusPending
	}
	payload := string(rec.Payload)
	if payload == "" {
		payload = "{}"
	}

	var claimedBy any
	if rec.ClaimedBy != nil {
		claimedBy = rec.ClaimedBy.String()
	}

	return []any{
		rec.ID.String(), rec.Type, rec.TemplateCode, string(rec.Channel), int64(rec.Priority),
		rec.Recipient, rec.Locale, string(rec.LocaleSource), payload,
		rec.IdempotencyKey, rec.TenantID, string(status), rec.Attempts, rec.MaxAttempts,
		nanos(nextAttemptAt), rec.LastError, nanos(createdAt), nanos(now),
		nullNanos(rec.ClaimedAt), nullNanos(rec.SentAt), nullNanos(rec.LeaseUntil), claimedBy,
	}
}

// Get returns the record with the given id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*notification.Record, error) {
	return s.one(ctx, `SELECT `+columns+` FROM notification_records WHERE id = ?`, id.String())
}

// GetByIdempotencyKey looks a record up by its dedupe pair.
func (s *Store) GetByIdempotencyKey(ctx context.Context, typ, key string) (*notification.Record, error) {
	return s.one(ctx, `SELECT `+columns+` FROM notification_records
		WHERE type = ? AND idempotency_key = ?`, typ, key)
}

// KeyInUse reports whether any record, of any type, holds key and is not dead.
func (s *Store) KeyInUse(ctx context.Context, key string) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (
		SELECT 1 FROM notification_records WHERE idempotency_key = ? AND status <> 'dead'
	)`, key).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check idempotency key: %w", err)
	}
	return ok, nil
}

// Requeue makes due failed_retryable records and expired claims pending again.
func (s *Store) Requeue(ctx context.Context, now time.Time) (int, error) {
	ts := nanos(now)
	res, err := s.db.ExecContext(ctx, `UPDATE notification_records
		SET status = 'pending', lease_until = NULL, claimed_by = NULL, updated_at = ?
		WHERE (status = 'failed_retryable' AND next_attempt_at <= ?)
		   OR (status = 'claimed' AND (lease_until IS NULL OR lease_until <= ?))`, ts, ts, ts)
	if err != nil {
		return 0, fmt.Errorf("requeue notification records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("requeue notification records: %w", err)
	}
	return int(n), nil
}

// ClaimBatch claims up to limit due pending records, highest priority first
// and oldest first within a tier.
func (s *Store) ClaimBatch(ctx context.Context, workerID uuid.UUID, limit int, lease time.Duration) ([]*notification.Record, error) {
	if limit <= 0 {
		return nil, nil
	}

	now := s.now()
	ts := nanos(now)
	rows, err := s.db.QueryContext(ctx, `UPDATE notification_records
		SET status = 'claimed', claimed_at = ?, lease_until = ?, claimed_by = ?, updated_at = ?
		WHERE id IN (
			SELECT id FROM notification_records
			WHERE status = 'pending' AND next_attempt_at <= ?
			ORDER BY priority DESC, created_at ASC, seq ASC
			LIMIT ?
		)
		RETURNING `+columns+`, seq`, ts, nanos(now.Add(lease)), workerID.String(), ts, ts, limit)
	if err != nil {
		return nil, fmt.Errorf("claim notification records: %w", err)
	}
	defer rows.Close()

	type claimed struct {
		rec *notification.Record
		seq int64
	}
	var batch []claimed
	for rows.Next() {
		var seq int64
		rec, err := scanRecord(rows, &seq)
		if err != nil {
			return nil, fmt.Errorf("claim notification records: %w", err)
		}
		batch = append(batch, claimed{rec: rec, seq: seq})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim notification records: %w", err)
	}

	// RETURNING order is unspecified.
	slices.SortStableFunc(batch, func(a, b claimed) int {
		if a.rec.Priority != b.rec.Priority {
			return int(b.rec.Priority) - int(a.rec.Priority)
		}
		if c := a.rec.CreatedAt.Compare(b.rec.CreatedAt); c != 0 {
			return c
		}
		return int(a.seq - b.seq)
	})

	recs := make([]*notification.Record, len(batch))
	for i, c := range batch {
		recs[i] = c.rec
	}
	return recs, nil
}

// ClaimByID claims one record if it is pending and due.
func (s *Store) ClaimByID(ctx context.Context, id, workerID uuid.UUID, lease time.Duration) (*notification.Record, error) {
	now := s.now()
	ts := nanos(now)
	rec, err := s.one(ctx, `UPDATE notification_records
		SET status = 'claimed', claimed_at = ?, lease_until = ?, claimed_by = ?, updated_at = ?
		WHERE id = ? AND status = 'pending' AND next_attempt_at <= ?
		RETURNING `+columns, ts, nanos(now.Add(lease)), workerID.String(), ts, id.String(), ts)
	if errors.Is(err, notification.ErrRecordNotFound) {
		if _, gerr := s.Get(ctx, id); gerr != nil {
			return nil, gerr
		}
		return nil, notification.ErrNotClaimable
	}
	return rec, err
}

// MarkSent finalizes a delivered record.
func (s *Store) MarkSent(ctx context.Context, id, workerID uuid.UUID, attempts int, sentAt time.Time) error {
	return s.finalize(ctx, id, workerID, `status = 'sent', attempts = ?, sent_at = ?`, attempts, nanos(sentAt))
}

// MarkRetry schedules another attempt at next.
func (s *Store) MarkRetry(ctx context.Context, id, workerID uuid.UUID, attempts int, next time.Time, lastErr string) error {
	return s.finalize(ctx, id, workerID, `status = 'failed_retryable', attempts = ?, next_attempt_at = ?, last_error = ?`, attempts, nanos(next), lastErr)
}

// MarkDead dead-letters a record.
func (s *Store) MarkDead(ctx context.Context, id, workerID uuid.UUID, attempts int, lastErr string) error {
	return s.finalize(ctx, id, workerID, `status = 'dead', attempts = ?, last_error = ?`, attempts, lastErr)
}

// Release hands a claimed record back without counting an attempt.
func (s *Store) Release(ctx context.Context, id, workerID uuid.UUID) error {
	return s.finalize(ctx, id, workerID, `status = 'pending'`)
}

// finalize applies set only while workerID holds the claim.
// args bind the placeholders in set.
func (s *Store) finalize(ctx context.Context, id, workerID uuid.UUID, set string, args ...any) error {
	query := `UPDATE notification_records
		SET ` + set + `, lease_until = NULL, claimed_by = NULL, updated_at = ?
		WHERE id = ? AND status = 'claimed' AND claimed_by = ?`

	args = append(args, nanos(s.now()), id.String(), workerID.String())
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("finalize notification record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finalize notification record: %w", err)
	}
	if n == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return notification.ErrLeaseLost
	}
	return nil
}

// Cancel dead-letters a record on behalf of an operator.
// Records under a live lease are left alone with ErrRecordInFlight.
func (s *Store) Cancel(ctx context.Context, id uuid.UUID, reason string) (*notification.Record, error) {
	ts := nanos(s.now())
	rec, err := s.one(ctx, `UPDATE notification_records
		SET status = 'dead', last_error = ?, lease_until = NULL, claimed_by = NULL, updated_at = ?
		WHERE id = ? AND (
			status IN ('pending', 'failed_retryable')
			OR (status = 'claimed' AND (lease_until IS NULL OR lease_until <= ?))
		)
		RETURNING `+columns, notification.CancelReason(reason), ts, id.String(), ts)
	if !errors.Is(err, notification.ErrRecordNotFound) {
		return rec, err
	}

	cur, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.Status == notification.StatusClaimed {
		return nil, notification.ErrRecordInFlight
	}
	return nil, notification.CheckTransition(cur.Status, notification.StatusDead)
}

func (s *Store) one(ctx context.Context, query string, args ...any) (*notification.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query notification record: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("query notification record: %w", err)
		}
		return nil, notification.ErrRecordNotFound
	}
	rec, err := scanRecord(rows)
	if err != nil {
		return nil, fmt.Errorf("scan notification record: %w", err)
	}
	return rec, nil
}

func scanRecord(rows *sql.Rows, extra ...any) (*notification.Record, error) {
	var (
		rec                                    notification.Record
		id, channel, localeSource, status      string
		payload                                string
		priority, nextAttemptAt                int64
		createdAt, updatedAt                   int64
		claimedAt, sentAt, leaseUntil          sql.NullInt64
		idempotencyKey, tenantID, lastErr, wid sql.NullString
	)
	dest := []any{
		&id, &rec.Type, &rec.TemplateCode, &channel, &priority, &rec.Recipient, &rec.Locale, &localeSource,
		&payload, &idempotencyKey, &tenantID, &status, &rec.Attempts, &rec.MaxAttempts, &nextAttemptAt,
		&lastErr, &createdAt, &updatedAt, &claimedAt, &sentAt, &leaseUntil, &wid,
	}
	if err := rows.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("record id: %w", err)
	}
	rec.ID = parsed
	if wid.Valid {
		w, err := uuid.Parse(wid.String)
		if err != nil {
			return nil, fmt.Errorf("claimed_by: %w", err)
		}
		rec.ClaimedBy = &w
	}

	rec.Channel = notification.Channel(channel)
	rec.Priority = notification.Priority(priority)
	rec.LocaleSource = notification.LocaleSource(localeSource)
	rec.Status = notification.Status(status)
	rec.Payload = []byte(payload)
	rec.IdempotencyKey = nullString(idempotencyKey)
	rec.TenantID = nullString(tenantID)
	rec.LastError = nullString(lastErr)
	rec.NextAttemptAt = fromNanos(nextAttemptAt)
	rec.CreatedAt = fromNanos(createdAt)
	rec.UpdatedAt = fromNanos(updatedAt)
	rec.ClaimedAt = nullTime(claimedAt)
	rec.SentAt = nullTime(sentAt)
	rec.LeaseUntil = nullTime(leaseUntil)
	return &rec, nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}
