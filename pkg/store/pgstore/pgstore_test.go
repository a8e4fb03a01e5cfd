package pgstore_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/pg"
	"github.com/dmitrymomot/notifykit/pkg/store/pgstore"
)

// The tests share one table, so they run sequentially.
func setup(t *testing.T) (*pgxpool.Pool, *pgstore.Store) {
	t.Helper()

	url := os.Getenv("NOTIFY_TEST_PG_URL")
	if url == "" {
		t.Skip("NOTIFY_TEST_PG_URL not set")
	}

	ctx := context.Background()
	cfg := pg.Config{ConnectionString: url, MaxOpenConns: 10, RetryAttempts: 1}
	pool, err := pg.Connect(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, pg.Migrate(ctx, pool, cfg, slog.New(slog.NewTextHandler(io.Discard, nil))))
	_, err = pool.Exec(ctx, `TRUNCATE notification_records`)
	require.NoError(t, err)

	return pool, pgstore.New(pool)
}

func record(p notification.Priority, createdAt time.Time) *notification.Record {
	return &notification.Record{
		ID:            uuid.New(),
		Type:          "order.shipped",
		TemplateCode:  "order_shipped",
		Channel:       notification.ChannelEmail,
		Priority:      p,
		Recipient:     "user@example.com",
		Locale:        "en",
		LocaleSource:  notification.LocaleSourceFallback,
		Payload:       json.RawMessage(`{"order":"A-1"}`),
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

func TestCreateGet(t *testing.T) {
	_, store := setup(t)
	ctx := context.Background()

	tenant := "acme"
	rec := keyed(record(notification.PriorityHigh, time.Now().Add(-time.Second).UTC()), "k1")
	rec.TenantID = &tenant
	require.NoError(t, store.Create(ctx, rec))
	assert.ErrorIs(t, store.Create(ctx, rec), notification.ErrDuplicateKey)

	got, err := store.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, notification.PriorityHigh, got.Priority)
	assert.Equal(t, notification.ChannelEmail, got.Channel)
	assert.Equal(t, "k1", got.Key())
	require.NotNil(t, got.TenantID)
	assert.Equal(t, "acme", *got.TenantID)
	assert.JSONEq(t, `{"order":"A-1"}`, string(got.Payload))
	assert.Nil(t, got.ClaimedBy)

	byKey, err := store.GetByIdempotencyKey(ctx, "order.shipped", "k1")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, byKey.ID)

	_, err = store.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, notification.ErrRecordNotFound)

	inUse, err := store.KeyInUse(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, inUse)
}

func TestInsertIfAbsentConcurrent(t *testing.T) {
	_, store := setup(t)
	ctx := context.Background()

	const callers = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inserted int
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			existing, err := store.InsertIfAbsent(ctx, keyed(record(notification.PriorityNormal, time.Now()), "same"))
			if !assert.NoError(t, err) {
				return
			}
			if existing == nil {
				mu.Lock()
				inserted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, inserted)
}

func TestClaimOrderAndLease(t *testing.T) {
	_, store := setup(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Minute)

	low := record(notification.PriorityLow, base)
	critical := record(notification.PriorityCritical, base.Add(time.Second))
	normal := record(notification.PriorityNormal, base)
	future := record(notification.PriorityCritical, base)
	future.NextAttemptAt = time.Now().Add(time.Hour)
	for _, r := range []*notification.Record{low, critical, normal, future} {
		require.NoError(t, store.Create(ctx, r))
	}

	worker := uuid.New()
	claimed, err := store.ClaimBatch(ctx, worker, 2, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, critical.ID, claimed[0].ID)
	assert.Equal(t, normal.ID, claimed[1].ID)
	assert.Equal(t, notification.StatusClaimed, claimed[0].Status)
	require.NotNil(t, claimed[0].ClaimedBy)
	assert.Equal(t, worker, *claimed[0].ClaimedBy)

	assert.ErrorIs(t, store.MarkSent(ctx, critical.ID, uuid.New(), 1, time.Now()), notification.ErrLeaseLost)
	require.NoError(t, store.MarkSent(ctx, critical.ID, worker, 1, time.Now()))
	require.NoError(t, store.MarkRetry(ctx, normal.ID, worker, 1, time.Now().Add(-time.Second), "503"))

	_, err = store.Cancel(ctx, critical.ID, "")
	assert.ErrorIs(t, err, notification.ErrInvalidTransition)

	n, err := store.Requeue(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = store.ClaimByID(ctx, future.ID, worker, time.Minute)
	assert.ErrorIs(t, err, notification.ErrNotClaimable)

	got, err := store.ClaimByID(ctx, normal.ID, worker, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Attempts)

	_, err = store.Cancel(ctx, normal.ID, "")
	assert.ErrorIs(t, err, notification.ErrRecordInFlight)

	require.NoError(t, store.MarkDead(ctx, normal.ID, worker, 2, "gave up"))
	got, err = store.Get(ctx, normal.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusDead, got.Status)
	require.NotNil(t, got.LastError)
	assert.Equal(t, "gave up", *got.LastError)

	cancelled, err := store.Cancel(ctx, low.ID, "obsolete")
	require.NoError(t, err)
	assert.Equal(t, notification.StatusDead, cancelled.Status)
}

func TestConcurrentClaimsNeverOverlap(t *testing.T) {
	_, store := setup(t)
	ctx := context.Background()

	const total = 100
	for range total {
		require.NoError(t, store.Create(ctx, record(notification.PriorityNormal, time.Now().Add(-time.Minute))))
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[uuid.UUID]int)
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker := uuid.New()
			for {
				recs, err := store.ClaimBatch(ctx, worker, 7, time.Minute)
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
	for id, n := range seen {
		assert.Equal(t, 1, n, "record %s claimed more than once", id)
	}
}

func TestWithTx(t *testing.T) {
	pool, store := setup(t)
	ctx := context.Background()

	committed := record(notification.PriorityNormal, time.Now())
	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		return store.WithTx(tx).Create(ctx, committed)
	})
	require.NoError(t, err)

	rolledBack := record(notification.PriorityNormal, time.Now())
	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, store.WithTx(tx).Create(ctx, rolledBack))
	require.NoError(t, tx.Rollback(ctx))

	_, err = store.Get(ctx, committed.ID)
	require.NoError(t, err)
	_, err = store.Get(ctx, rolledBack.ID)
	assert.ErrorIs(t, err, notification.ErrRecordNotFound)
}
