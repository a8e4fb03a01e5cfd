package sqlitestore_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/store/sqlitestore"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func open(t *testing.T, clk *clock) *sqlitestore.Store {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := sqlitestore.Open(context.Background(), filepath.Join(t.TempDir(), "notify.db"), log,
		sqlitestore.WithClock(clk.Now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newRecord(typ string, p notification.Priority, createdAt time.Time) *notification.Record {
	return &notification.Record{
		ID:            uuid.New(),
		Type:          typ,
		TemplateCode:  typ,
		Channel:       notification.ChannelSMS,
		Priority:      p,
		Recipient:     "+15550001111",
		Locale:        "de",
		LocaleSource:  notification.LocaleSourceTenant,
		Payload:       json.RawMessage(`{"code":"1234"}`),
		Status:        notification.StatusPending,
		MaxAttempts:   3,
		NextAttemptAt: createdAt,
		CreatedAt:     createdAt,
	}
}

func keyed(rec *notification.Record, key string) *notification.Record {
	rec.IdempotencyKey = &key
	return rec
}

func TestOpen(t *testing.T) {
	t.Parallel()

	_, err := sqlitestore.Open(context.Background(), " ", slog.Default())
	assert.ErrorIs(t, err, sqlitestore.ErrEmptyDSN)

	s := open(t, newClock())
	require.NoError(t, s.Ping(context.Background()))
	assert.ErrorIs(t, s.Create(context.Background(), nil), sqlitestore.ErrNilRecord)
}

func TestCreateAndGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := newClock()
	s := open(t, clk)

	tenant := "acme"
	rec := keyed(newRecord("otp", notification.PriorityCritical, clk.Now()), "otp-1")
	rec.TenantID = &tenant
	require.NoError(t, s.Create(ctx, rec))
	assert.ErrorIs(t, s.Create(ctx, rec), notification.ErrDuplicateKey)

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, notification.PriorityCritical, got.Priority)
	assert.Equal(t, notification.LocaleSourceTenant, got.LocaleSource)
	assert.Equal(t, "otp-1", got.Key())
	require.NotNil(t, got.TenantID)
	assert.Equal(t, "acme", *got.TenantID)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))
	assert.JSONEq(t, `{"code":"1234"}`, string(got.Payload))
	assert.Nil(t, got.ClaimedAt)

	byKey, err := s.GetByIdempotencyKey(ctx, "otp", "otp-1")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, byKey.ID)

	_, err = s.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, notification.ErrRecordNotFound)
	_, err = s.GetByIdempotencyKey(ctx, "otp", "nope")
	assert.ErrorIs(t, err, notification.ErrRecordNotFound)
}

func TestInsertIfAbsent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := newClock()
	s := open(t, clk)

	first := keyed(newRecord("receipt", notification.PriorityNormal, clk.Now()), "order-9")
	existing, err := s.InsertIfAbsent(ctx, first)
	require.NoError(t, err)
	assert.Nil(t, existing)

	second := keyed(newRecord("receipt", notification.PriorityNormal, clk.Now()), "order-9")
	existing, err = s.InsertIfAbsent(ctx, second)
	require.NoError(t, err)
	require.NotNil(t, existing)
	assert.Equal(t, first.ID, existing.ID)

	// same key, different type is a different pair
	other := keyed(newRecord("invoice", notification.PriorityNormal, clk.Now()), "order-9")
	existing, err = s.InsertIfAbsent(ctx, other)
	require.NoError(t, err)
	assert.Nil(t, existing)

	unkeyed := newRecord("receipt", notification.PriorityNormal, clk.Now())
	existing, err = s.InsertIfAbsent(ctx, unkeyed)
	require.NoError(t, err)
	assert.Nil(t, existing)
}

func TestClaimBatchPriorityOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := newClock()
	s := open(t, clk)
	base := clk.Now().Add(-time.Minute)

	low := newRecord("a", notification.PriorityLow, base)
	normalOld := newRecord("b", notification.PriorityNormal, base)
	normalNew := newRecord("c", notification.PriorityNormal, base.Add(time.Second))
	critical := newRecord("d", notification.PriorityCritical, base.Add(2*time.Second))
	future := newRecord("e", notification.PriorityCritical, base)
	future.NextAttemptAt = clk.Now().Add(time.Hour)
	for _, r := range []*notification.Record{low, normalNew, future, critical, normalOld} {
		require.NoError(t, s.Create(ctx, r))
	}

	worker := uuid.New()
	batch, err := s.ClaimBatch(ctx, worker, 3, time.Minute)
	require.NoError(t, err)
	require.Len(t, batch, 3)
	assert.Equal(t, critical.ID, batch[0].ID)
	assert.Equal(t, normalOld.ID, batch[1].ID)
	assert.Equal(t, normalNew.ID, batch[2].ID)
	for _, r := range batch {
		assert.Equal(t, notification.StatusClaimed, r.Status)
		require.NotNil(t, r.ClaimedBy)
		assert.Equal(t, worker, *r.ClaimedBy)
		require.NotNil(t, r.LeaseUntil)
		assert.True(t, clk.Now().Add(time.Minute).Equal(*r.LeaseUntil))
	}

	batch, err = s.ClaimBatch(ctx, worker, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, low.ID, batch[0].ID)

	batch, err = s.ClaimBatch(ctx, worker, 0, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, batch)
}

func TestFinalizeAndRequeue(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := newClock()
	s := open(t, clk)

	rec := newRecord("otp", notification.PriorityHigh, clk.Now())
	require.NoError(t, s.Create(ctx, rec))

	worker := uuid.New()
	_, err := s.ClaimByID(ctx, rec.ID, worker, time.Minute)
	require.NoError(t, err)
	_, err = s.ClaimByID(ctx, rec.ID, worker, time.Minute)
	assert.ErrorIs(t, err, notification.ErrNotClaimable)
	_, err = s.ClaimByID(ctx, uuid.New(), worker, time.Minute)
	assert.ErrorIs(t, err, notification.ErrRecordNotFound)

	assert.ErrorIs(t, s.MarkSent(ctx, rec.ID, uuid.New(), 1, clk.Now()), notification.ErrLeaseLost)
	require.NoError(t, s.MarkRetry(ctx, rec.ID, worker, 1, clk.Now().Add(30*time.Second), "gateway 503"))

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusFailedRetryable, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.Nil(t, got.ClaimedBy)
	require.NotNil(t, got.LastError)
	assert.Equal(t, "gateway 503", *got.LastError)

	n, err := s.Requeue(ctx, clk.Now())
	require.NoError(t, err)
	assert.Zero(t, n)

	clk.Advance(time.Minute)
	n, err = s.Requeue(ctx, clk.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	crashed := uuid.New()
	_, err = s.ClaimByID(ctx, rec.ID, crashed, time.Minute)
	require.NoError(t, err)

	clk.Advance(2 * time.Minute)
	n, err = s.Requeue(ctx, clk.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rescuer := uuid.New()
	batch, err := s.ClaimBatch(ctx, rescuer, 5, time.Minute)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, 1, batch[0].Attempts)

	assert.ErrorIs(t, s.MarkSent(ctx, rec.ID, crashed, 2, clk.Now()), notification.ErrLeaseLost)
	require.NoError(t, s.MarkSent(ctx, rec.ID, rescuer, 2, clk.Now()))

	got, err = s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusSent, got.Status)
	require.NotNil(t, got.SentAt)
	assert.True(t, clk.Now().Equal(*got.SentAt))
}

func TestReleaseAndDead(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := newClock()
	s := open(t, clk)

	rec := newRecord("otp", notification.PriorityNormal, clk.Now())
	require.NoError(t, s.Create(ctx, rec))

	worker := uuid.New()
	_, err := s.ClaimByID(ctx, rec.ID, worker, time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.Release(ctx, rec.ID, worker))

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusPending, got.Status)
	assert.Zero(t, got.Attempts)

	_, err = s.ClaimByID(ctx, rec.ID, worker, time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.MarkDead(ctx, rec.ID, worker, 1, "invalid number"))

	got, err = s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusDead, got.Status)
	assert.Equal(t, 1, got.Attempts)
}

func TestCancel(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := newClock()
	s := open(t, clk)

	pending := newRecord("a", notification.PriorityNormal, clk.Now())
	inflight := newRecord("b", notification.PriorityNormal, clk.Now())
	require.NoError(t, s.Create(ctx, pending))
	require.NoError(t, s.Create(ctx, inflight))

	got, err := s.Cancel(ctx, pending.ID, "user unsubscribed")
	require.NoError(t, err)
	assert.Equal(t, notification.StatusDead, got.Status)
	assert.Equal(t, "cancelled: user unsubscribed", *got.LastError)

	_, err = s.Cancel(ctx, pending.ID, "")
	assert.ErrorIs(t, err, notification.ErrInvalidTransition)

	worker := uuid.New()
	_, err = s.ClaimByID(ctx, inflight.ID, worker, time.Minute)
	require.NoError(t, err)
	_, err = s.Cancel(ctx, inflight.ID, "")
	assert.ErrorIs(t, err, notification.ErrRecordInFlight)

	clk.Advance(2 * time.Minute)
	got, err = s.Cancel(ctx, inflight.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "cancelled", *got.LastError)

	_, err = s.Cancel(ctx, uuid.New(), "")
	assert.ErrorIs(t, err, notification.ErrRecordNotFound)
}

func TestKeyInUse(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := newClock()
	s := open(t, clk)

	ok, err := s.KeyInUse(ctx, "order-1")
	require.NoError(t, err)
	assert.False(t, ok)

	rec := keyed(newRecord("receipt", notification.PriorityNormal, clk.Now()), "order-1")
	require.NoError(t, s.Create(ctx, rec))

	ok, err = s.KeyInUse(ctx, "order-1")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = s.Cancel(ctx, rec.ID, "")
	require.NoError(t, err)
	ok, err = s.KeyInUse(ctx, "order-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConcurrentClaimsNeverOverlap(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := newClock()
	s := open(t, clk)

	const total = 60
	for range total {
		require.NoError(t, s.Create(ctx, newRecord("bulk", notification.PriorityNormal, clk.Now())))
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[uuid.UUID]int)
	)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker := uuid.New()
			for {
				recs, err := s.ClaimBatch(ctx, worker, 5, time.Minute)
				if !assert.NoError(t, err) || len(recs) == 0 {
					return
				}
				mu.Lock()
				for _, r := range recs {
					seen[r.ID]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, total)
	for _, n := range seen {
		assert.Equal(t, 1, n)
	}
}
