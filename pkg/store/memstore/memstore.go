package memstore

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// Store keeps notification records in memory.
// It implements every repository contract in the module and is meant for
// tests, local development and single-process deployments that can lose
// their queue on restart.
type Store struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*entry
	byKey   map[dedupeKey]uuid.UUID
	seq     uint64
	now     func() time.Time
}

type entry struct {
	rec *notification.Record
	seq uint64
}

type dedupeKey struct {
	typ string
	key string
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now, used for claim eligibility and lease stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		records: make(map[uuid.UUID]*entry),
		byKey:   make(map[dedupeKey]uuid.UUID),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create stores rec. It fails with ErrDuplicateKey when the id or the
// (type, idempotency key) pair is taken.
func (s *Store) Create(ctx context.Context, rec *notification.Record) error {
	if rec == nil {
		return ErrNilRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conflicts(rec) {
		return notification.ErrDuplicateKey
	}
	s.insert(rec)
	return nil
}

// InsertIfAbsent stores rec unless its (type, idempotency key) is taken,
// in which case the stored record is returned and nothing is written.
func (s *Store) InsertIfAbsent(ctx context.Context, rec *notification.Record) (*notification.Record, error) {
	if rec == nil {
		return nil, ErrNilRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.IdempotencyKey != nil {
		if id, ok := s.byKey[dedupeKey{rec.Type, *rec.IdempotencyKey}]; ok {
			return s.records[id].rec.Clone(), nil
		}
	}
	if _, ok := s.records[rec.ID]; ok {
		return nil, notification.ErrDuplicateKey
	}
	s.insert(rec)
	return nil, nil
}

func (s *Store) conflicts(rec *notification.Record) bool {
	if _, ok := s.records[rec.ID]; ok {
		return true
	}
	if rec.IdempotencyKey != nil {
		_, ok := s.byKey[dedupeKey{rec.Type, *rec.IdempotencyKey}]
		return ok
	}
	return false
}

func (s *Store) insert(rec *notification.Record) {
	now := s.now()
	c := rec.Clone()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	s.seq++
	s.records[c.ID] = &entry{rec: c, seq: s.seq}
	if c.IdempotencyKey != nil {
		s.byKey[dedupeKey{c.Type, *c.IdempotencyKey}] = c.ID
	}
}

// Get returns a copy of the record with the given id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*notification.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.records[id]
	if !ok {
		return nil, notification.ErrRecordNotFound
	}
	return e.rec.Clone(), nil
}

// GetByIdempotencyKey looks a record up by its dedupe pair.
func (s *Store) GetByIdempotencyKey(ctx context.Context, typ, key string) (*notification.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byKey[dedupeKey{typ, key}]
	if !ok {
		return nil, notification.ErrRecordNotFound
	}
	return s.records[id].rec.Clone(), nil
}

// KeyInUse reports whether any record, of any type, holds key and is not dead.
func (s *Store) KeyInUse(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for k, id := range s.byKey {
		if k.key == key && s.records[id].rec.Status != notification.StatusDead {
			return true, nil
		}
	}
	return false, nil
}

// Requeue makes failed_retryable records whose delay elapsed and claimed
// records whose lease expired pending again.
func (s *Store) Requeue(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, e := range s.records {
		r := e.rec
		switch {
		case r.Status == notification.StatusFailedRetryable && !r.NextAttemptAt.After(now):
		case r.LeaseExpired(now):
		default:
			continue
		}
		r.Status = notification.StatusPending
		r.LeaseUntil = nil
		r.ClaimedBy = nil
		r.UpdatedAt = now
		n++
	}
	return n, nil
}

// ClaimBatch claims up to limit due pending records, highest priority first
// and oldest first within a tier.
func (s *Store) ClaimBatch(ctx context.Context, workerID uuid.UUID, limit int, lease time.Duration) ([]*notification.Record, error) {
	if limit <= 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	due := make([]*entry, 0)
	for _, e := range s.records {
		if e.rec.Status == notification.StatusPending && !e.rec.NextAttemptAt.After(now) {
			due = append(due, e)
		}
	}

	slices.SortFunc(due, func(a, b *entry) int {
		if c := cmp.Compare(b.rec.Priority, a.rec.Priority); c != 0 {
			return c
		}
		if c := a.rec.CreatedAt.Compare(b.rec.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})

	if len(due) > limit {
		due = due[:limit]
	}

	out := make([]*notification.Record, 0, len(due))
	for _, e := range due {
		s.claim(e.rec, workerID, now, lease)
		out = append(out, e.rec.Clone())
	}
	return out, nil
}

// ClaimByID claims one specific record if it is pending and due.
func (s *Store) ClaimByID(ctx context.Context, id, workerID uuid.UUID, lease time.Duration) (*notification.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.records[id]
	if !ok {
		return nil, notification.ErrRecordNotFound
	}

	now := s.now()
	if e.rec.Status != notification.StatusPending || e.rec.NextAttemptAt.After(now) {
		return nil, notification.ErrNotClaimable
	}

	s.claim(e.rec, workerID, now, lease)
	return e.rec.Clone(), nil
}

func (s *Store) claim(r *notification.Record, workerID uuid.UUID, now time.Time, lease time.Duration) {
	until := now.Add(lease)
	claimedAt := now
	wid := workerID
	r.Status = notification.StatusClaimed
	r.ClaimedAt = &claimedAt
	r.LeaseUntil = &until
	r.ClaimedBy = &wid
	r.UpdatedAt = now
}

// MarkSent finalizes a delivered record.
func (s *Store) MarkSent(ctx context.Context, id, workerID uuid.UUID, attempts int, sentAt time.Time) error {
	return s.finalize(id, workerID, func(r *notification.Record) {
		r.Status = notification.StatusSent
		r.Attempts = attempts
		at := sentAt
		r.SentAt = &at
	})
}

// MarkRetry schedules another attempt at next.
func (s *Store) MarkRetry(ctx context.Context, id, workerID uuid.UUID, attempts int, next time.Time, lastErr string) error {
	return s.finalize(id, workerID, func(r *notification.Record) {
		r.Status = notification.StatusFailedRetryable
		r.Attempts = attempts
		r.NextAttemptAt = next
		r.LastError = &lastErr
	})
}

// MarkDead dead-letters a record.
func (s *Store) MarkDead(ctx context.Context, id, workerID uuid.UUID, attempts int, lastErr string) error {
	return s.finalize(id, workerID, func(r *notification.Record) {
		r.Status = notification.StatusDead
		r.Attempts = attempts
		r.LastError = &lastErr
	})
}

// Release hands a claimed record back to the queue without counting an attempt.
func (s *Store) Release(ctx context.Context, id, workerID uuid.UUID) error {
	return s.finalize(id, workerID, func(r *notification.Record) {
		r.Status = notification.StatusPending
	})
}

// finalize applies fn only while workerID still holds the claim.
func (s *Store) finalize(id, workerID uuid.UUID, fn func(*notification.Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.records[id]
	if !ok {
		return notification.ErrRecordNotFound
	}
	r := e.rec
	if r.Status != notification.StatusClaimed || r.ClaimedBy == nil || *r.ClaimedBy != workerID {
		return notification.ErrLeaseLost
	}

	fn(r)
	r.LeaseUntil = nil
	r.ClaimedBy = nil
	r.UpdatedAt = s.now()
	return nil
}

// Cancel dead-letters a record on behalf of an operator.
// Records under a live lease are left alone with ErrRecordInFlight.
func (s *Store) Cancel(ctx context.Context, id uuid.UUID, reason string) (*notification.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.records[id]
	if !ok {
		return nil, notification.ErrRecordNotFound
	}
	r := e.rec
	now := s.now()

	if r.Status == notification.StatusClaimed && !r.LeaseExpired(now) {
		return nil, notification.ErrRecordInFlight
	}
	if err := notification.CheckTransition(r.Status, notification.StatusDead); err != nil {
		return nil, err
	}

	msg := notification.CancelReason(reason)
	r.Status = notification.StatusDead
	r.LastError = &msg
	r.LeaseUntil = nil
	r.ClaimedBy = nil
	r.UpdatedAt = now
	return r.Clone(), nil
}
