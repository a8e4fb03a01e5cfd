package pgstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/pg"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store keeps notification records in the notification_records table.
type Store struct {
	db  DBTX
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

// New creates a store over db, usually a *pgxpool.Pool.
func New(db DBTX, opts ...Option) *Store {
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithTx returns a store whose writes join tx. Records created through it
// become visible to the dispatcher only when tx commits.
func (s *Store) WithTx(tx pgx.Tx) *Store {
	return &Store{db: tx, now: s.now}
}

const columns = `id, type, template_code, channel, priority, recipient, locale, locale_source,
	payload, idempotency_key, tenant_id, status, attempts, max_attempts, next_attempt_at,
	last_error, created_at, updated_at, claimed_at, sent_at, lease_until, claimed_by`

const insertQuery = `INSERT INTO notification_records (` + columns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`

// Create inserts rec. ErrDuplicateKey is returned when the id or the
// (type, idempotency key) pair is taken.
func (s *Store) Create(ctx context.Context, rec *notification.Record) error {
	if rec == nil {
		return ErrNilRecord
	}
	if _, err := s.db.Exec(ctx, insertQuery, s.insertArgs(rec)...); err != nil {
		if pg.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %w", notification.ErrDuplicateKey, err)
		}
		return fmt.Errorf("insert notification record: %w", err)
	}
	return nil
}

// InsertIfAbsent inserts rec unless its (type, idempotency key) is taken and
// returns the stored record in that case. The unique partial index decides;
// a concurrent insert of the same key waits for the other transaction.
func (s *Store) InsertIfAbsent(ctx context.Context, rec *notification.Record) (*notification.Record, error) {
	if rec == nil {
		return nil, ErrNilRecord
	}
	if rec.IdempotencyKey == nil {
		return nil, s.Create(ctx, rec)
	}

	var id pgtype.UUID
	err := s.db.QueryRow(ctx, insertQuery+`
		ON CONFLICT (type, idempotency_key) WHERE idempotency_key IS NOT NULL DO NOTHING
		RETURNING id`, s.insertArgs(rec)...).Scan(&id)
	switch {
	case err == nil:
		return nil, nil
	case errors.Is(err, pgx.ErrNoRows):
		existing, err := s.GetByIdempotencyKey(ctx, rec.Type, *rec.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("load existing record: %w", err)
		}
		return existing, nil
	case pg.IsDuplicateKeyError(err):
		return nil, fmt.Errorf("%w: %w", notification.ErrDuplicateKey, err)
	default:
		return nil, fmt.Errorf("insert notification record: %w", err)
	}
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
	payload := []byte(rec.Payload)
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	return []any{
		rec.ID, rec.Type, rec.TemplateCode, string(rec.Channel), int16(rec.Priority),
		rec.Recipient, rec.Locale, string(rec.LocaleSource), payload,
		rec.IdempotencyKey, rec.TenantID, string(status), rec.Attempts, rec.MaxAttempts,
		nextAttemptAt, rec.LastError, createdAt, now, rec.ClaimedAt, rec.SentAt,
		rec.LeaseUntil, nullUUID(rec.ClaimedBy),
	}
}

// Get returns the record with the given id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*notification.Record, error) {
	return s.one(ctx, `SELECT `+columns+` FROM notification_records WHERE id = $1`, id)
}

// GetByIdempotencyKey looks a record up by its dedupe pair.
func (s *Store) GetByIdempotencyKey(ctx context.Context, typ, key string) (*notification.Record, error) {
	return s.one(ctx, `SELECT `+columns+` FROM notification_records
		WHERE type = $1 AND idempotency_key = $2`, typ, key)
}

// KeyInUse reports whether any record, of any type, holds key and is not dead.
func (s *Store) KeyInUse(ctx context.Context, key string) (bool, error) {
	var ok bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (
		SELECT 1 FROM notification_records WHERE idempotency_key = $1 AND status <> 'dead'
	)`, key).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check idempotency key: %w", err)
	}
	return ok, nil
}

// Requeue makes due failed_retryable records and expired claims pending again.
func (s *Store) Requeue(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.db.Exec(ctx, `UPDATE notification_records
		SET status = 'pending', lease_until = NULL, claimed_by = NULL, updated_at = $1
		WHERE (status = 'failed_retryable' AND next_attempt_at <= $1)
		   OR (status = 'claimed' AND (lease_until IS NULL OR lease_until <= $1))`, now)
	if err != nil {
		return 0, fmt.Errorf("requeue notification records: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ClaimBatch claims up to limit due pending records, highest priority first
// and oldest first within a tier. Rows locked by another claimer are skipped.
func (s *Store) ClaimBatch(ctx context.Context, workerID uuid.UUID, limit int, lease time.Duration) ([]*notification.Record, error) {
	if limit <= 0 {
		return nil, nil
	}

	now := s.now()
	rows, err := s.db.Query(ctx, `WITH due AS (
			SELECT id FROM notification_records
			WHERE status = 'pending' AND next_attempt_at <= $1
			ORDER BY priority DESC, created_at ASC, seq ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE notification_records r
		SET status = 'claimed', claimed_at = $1, lease_until = $3, claimed_by = $4, updated_at = $1
		FROM due
		WHERE r.id = due.id
		RETURNING `+prefixed("r", columns), now, limit, now.Add(lease), workerID)
	if err != nil {
		return nil, fmt.Errorf("claim notification records: %w", err)
	}

	recs, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, fmt.Errorf("claim notification records: %w", err)
	}

	// RETURNING does not keep the CTE order.
	slices.SortStableFunc(recs, func(a, b *notification.Record) int {
		if a.Priority != b.Priority {
			return int(b.Priority) - int(a.Priority)
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return recs, nil
}

// ClaimByID claims one record if it is pending and due.
func (s *Store) ClaimByID(ctx context.Context, id, workerID uuid.UUID, lease time.Duration) (*notification.Record, error) {
	now := s.now()
	rec, err := s.one(ctx, `UPDATE notification_records
		SET status = 'claimed', claimed_at = $2, lease_until = $3, claimed_by = $4, updated_at = $2
		WHERE id = $1 AND status = 'pending' AND next_attempt_at <= $2
		RETURNING `+columns, id, now, now.Add(lease), workerID)
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
	return s.finalize(ctx, id, workerID, `status = 'sent', attempts = $3, sent_at = $4`, attempts, sentAt)
}

// MarkRetry schedules another attempt at next.
func (s *Store) MarkRetry(ctx context.Context, id, workerID uuid.UUID, attempts int, next time.Time, lastErr string) error {
	return s.finalize(ctx, id, workerID, `status = 'failed_retryable', attempts = $3, next_attempt_at = $4, last_error = $5`, attempts, next, lastErr)
}

// MarkDead dead-letters a record.
func (s *Store) MarkDead(ctx context.Context, id, workerID uuid.UUID, attempts int, lastErr string) error {
	return s.finalize(ctx, id, workerID, `status = 'dead', attempts = $3, last_error = $4`, attempts, lastErr)
}

// Release hands a claimed record back without counting an attempt.
func (s *Store) Release(ctx context.Context, id, workerID uuid.UUID) error {
	return s.finalize(ctx, id, workerID, `status = 'pending'`)
}

// finalize applies set only while workerID holds the claim. Placeholders
// $1 and $2 are the id and worker; set starts at $3.
func (s *Store) finalize(ctx context.Context, id, workerID uuid.UUID, set string, args ...any) error {
	query := fmt.Sprintf(`UPDATE notification_records
		SET %s, lease_until = NULL, claimed_by = NULL, updated_at = $%d
		WHERE id = $1 AND status = 'claimed' AND claimed_by = $2`, set, len(args)+3)

	tag, err := s.db.Exec(ctx, query, append([]any{id, workerID}, append(args, s.now())...)...)
	if err != nil {
		return fmt.Errorf("finalize notification record: %w", err)
	}
	if tag.RowsAffected() == 0 {
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
	now := s.now()
	rec, err := s.one(ctx, `UPDATE notification_records
		SET status = 'dead', last_error = $2, lease_until = NULL, claimed_by = NULL, updated_at = $3
		WHERE id = $1 AND (
			status IN ('pending', 'failed_retryable')
			OR (status = 'claimed' AND (lease_until IS NULL OR lease_until <= $3))
		)
		RETURNING `+columns, id, notification.CancelReason(reason), now)
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
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query notification record: %w", err)
	}
	rec, err := pgx.CollectExactlyOneRow(rows, scanRecord)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, notification.ErrRecordNotFound
		}
		return nil, fmt.Errorf("scan notification record: %w", err)
	}
	return rec, nil
}

func scanRecord(row pgx.CollectableRow) (*notification.Record, error) {
	var (
		rec                           notification.Record
		id, claimedBy                 pgtype.UUID
		channel, localeSource, status string
		priority                      int16
		payload                       []byte
	)
	err := row.Scan(
		&id, &rec.Type, &rec.TemplateCode, &channel, &priority, &rec.Recipient, &rec.Locale, &localeSource,
		&payload, &rec.IdempotencyKey, &rec.TenantID, &status, &rec.Attempts, &rec.MaxAttempts, &rec.NextAttemptAt,
		&rec.LastError, &rec.CreatedAt, &rec.UpdatedAt, &rec.ClaimedAt, &rec.SentAt, &rec.LeaseUntil, &claimedBy,
	)
	if err != nil {
		return nil, err
	}

	rec.ID = uuid.UUID(id.Bytes)
	if claimedBy.Valid {
		wid := uuid.UUID(claimedBy.Bytes)
		rec.ClaimedBy = &wid
	}
	rec.Channel = notification.Channel(channel)
	rec.Priority = notification.Priority(priority)
	rec.LocaleSource = notification.LocaleSource(localeSource)
	rec.Status = notification.Status(status)
	rec.Payload = payload
	return &rec, nil
}

func nullUUID(id *uuid.UUID) pgtype.UUID {
	if id == nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: *id, Valid: true}
}

func prefixed(alias, cols string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
