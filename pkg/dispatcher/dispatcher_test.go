package dispatcher_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/dmitrymomot/notifykit/pkg/backoff"
	"github.com/dmitrymomot/notifykit/pkg/channel"
	"github.com/dmitrymomot/notifykit/pkg/dispatcher"
	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/render"
	"github.com/dmitrymomot/notifykit/pkg/store/memstore"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)} }

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

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

var okRenderer = render.RendererFunc(func(_ context.Context, code, locale string, _ json.RawMessage) (render.Content, error) {
	return render.Content{Subject: code + " " + locale, Text: "hello"}, nil
})

func pending(p notification.Priority, maxAttempts int, at time.Time) *notification.Record {
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
		MaxAttempts:   maxAttempts,
		NextAttemptAt: at,
		CreatedAt:     at,
	}
}

type fixture struct {
	clock  *clock
	store  *memstore.Store
	sender *channel.MemorySender
}

func newFixture() *fixture {
	c := newClock()
	return &fixture{
		clock:  c,
		store:  memstore.New(memstore.WithClock(c.Now)),
		sender: channel.NewMemorySender(),
	}
}

func (f *fixture) dispatcher(t *testing.T, r render.Renderer, opts ...dispatcher.Option) *dispatcher.Dispatcher {
	t.Helper()
	opts = append([]dispatcher.Option{
		dispatcher.WithLogger(quiet),
		dispatcher.WithClock(f.clock.Now),
		dispatcher.WithBackoff(backoff.Fixed{Interval: time.Minute}),
	}, opts...)
	d, err := dispatcher.New(f.store, r, f.sender, opts...)
	require.NoError(t, err)
	return d
}

func (f *fixture) add(t *testing.T, rec *notification.Record) *notification.Record {
	t.Helper()
	require.NoError(t, f.store.Create(context.Background(), rec))
	return rec
}

func (f *fixture) get(t *testing.T, id uuid.UUID) *notification.Record {
	t.Helper()
	rec, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	return rec
}

func TestNew(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	sender := channel.NewMemorySender()

	_, err := dispatcher.New(nil, okRenderer, sender)
	assert.ErrorIs(t, err, dispatcher.ErrRepositoryNil)
	_, err = dispatcher.New(store, nil, sender)
	assert.ErrorIs(t, err, dispatcher.ErrRendererNil)
	_, err = dispatcher.New(store, okRenderer, nil)
	assert.ErrorIs(t, err, dispatcher.ErrSenderNil)

	d, err := dispatcher.New(store, okRenderer, sender)
	require.NoError(t, err)
	assert.NotNil(t, d)

	cfg := dispatcher.DefaultConfig()
	cfg.LeaseDuration = cfg.RenderTimeout + cfg.SendTimeout + cfg.FinalizeTimeout
	_, err = dispatcher.New(store, okRenderer, sender, dispatcher.WithConfig(cfg))
	assert.ErrorIs(t, err, dispatcher.ErrLeaseTooShort)
}

func TestProcessNow_Success(t *testing.T) {
	t.Parallel()

	f := newFixture()
	d := f.dispatcher(t, okRenderer)
	rec := f.add(t, pending(notification.PriorityNormal, 3, f.clock.Now()))

	status, err := d.ProcessNow(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusSent, status)

	got := f.get(t, rec.ID)
	assert.Equal(t, notification.StatusSent, got.Status)
	assert.Equal(t, 1, got.Attempts)
	require.NotNil(t, got.SentAt)
	assert.Equal(t, f.clock.Now(), *got.SentAt)
	assert.Nil(t, got.ClaimedBy)

	msgs := f.sender.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, rec.ID, msgs[0].RecordID)
	assert.Equal(t, "user@example.com", msgs[0].Recipient)
	assert.Equal(t, "order_shipped en", msgs[0].Content.Subject)
}

func TestProcessNow_NotClaimable(t *testing.T) {
	t.Parallel()

	f := newFixture()
	d := f.dispatcher(t, okRenderer)

	_, err := d.ProcessNow(context.Background(), uuid.New())
	assert.ErrorIs(t, err, notification.ErrRecordNotFound)

	rec := f.add(t, pending(notification.PriorityNormal, 3, f.clock.Now()))
	_, err = f.store.ClaimBatch(context.Background(), uuid.New(), 1, time.Minute)
	require.NoError(t, err)

	_, err = d.ProcessNow(context.Background(), rec.ID)
	assert.ErrorIs(t, err, notification.ErrNotClaimable)
	assert.Equal(t, 0, f.sender.Attempts())
}

func TestRetryThenSuccess(t *testing.T) {
	t.Parallel()

	const maxAttempts = 4

	f := newFixture()
	f.sender.FailWith(func(attempt int, _ channel.Message) error {
		if attempt < maxAttempts {
			return channel.Transient(errors.New("503 from provider"))
		}
		return nil
	})
	d := f.dispatcher(t, okRenderer)
	rec := f.add(t, pending(notification.PriorityNormal, maxAttempts, f.clock.Now()))
	ctx := context.Background()

	for i := 1; i < maxAttempts; i++ {
		status, err := d.ProcessNow(ctx, rec.ID)
		require.NoError(t, err)
		require.Equal(t, notification.StatusFailedRetryable, status)

		got := f.get(t, rec.ID)
		assert.Equal(t, i, got.Attempts)
		assert.Equal(t, f.clock.Now().Add(time.Minute), got.NextAttemptAt)
		require.NotNil(t, got.LastError)
		assert.Contains(t, *got.LastError, "503 from provider")

		// Not due yet.
		n, err := f.store.Requeue(ctx, f.clock.Now())
		require.NoError(t, err)
		assert.Zero(t, n)

		f.clock.Advance(time.Minute)
		n, err = f.store.Requeue(ctx, f.clock.Now())
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	}

	status, err := d.ProcessNow(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusSent, status)

	got := f.get(t, rec.ID)
	assert.Equal(t, notification.StatusSent, got.Status)
	assert.Equal(t, maxAttempts, got.Attempts)
}

func TestTransientExhaustsAttempts(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.sender.FailWith(func(int, channel.Message) error {
		return channel.Transient(errors.New("connection reset"))
	})

	var outcomes []dispatcher.Outcome
	d := f.dispatcher(t, okRenderer, dispatcher.WithHook(func(_ context.Context, o dispatcher.Outcome) {
		outcomes = append(outcomes, o)
	}))
	rec := f.add(t, pending(notification.PriorityNormal, 2, f.clock.Now()))
	ctx := context.Background()

	status, err := d.ProcessNow(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, notification.StatusFailedRetryable, status)

	f.clock.Advance(time.Minute)
	_, err = f.store.Requeue(ctx, f.clock.Now())
	require.NoError(t, err)

	status, err = d.ProcessNow(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusDead, status)

	got := f.get(t, rec.ID)
	assert.Equal(t, notification.StatusDead, got.Status)
	assert.Equal(t, 2, got.Attempts)
	require.NotNil(t, got.LastError)

	require.Len(t, outcomes, 2)
	assert.Equal(t, notification.StatusFailedRetryable, outcomes[0].Status)
	assert.Equal(t, notification.StatusDead, outcomes[1].Status)
	assert.Equal(t, 2, outcomes[1].Attempts)

	// Dead records are never claimed again.
	f.clock.Advance(time.Hour)
	_, err = f.store.Requeue(ctx, f.clock.Now())
	require.NoError(t, err)
	_, err = d.ProcessNow(ctx, rec.ID)
	assert.ErrorIs(t, err, notification.ErrNotClaimable)
}

func TestPermanentFailureSkipsRetries(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.sender.FailWith(func(int, channel.Message) error {
		return channel.Permanent(channel.ErrInvalidRecipient)
	})
	d := f.dispatcher(t, okRenderer)
	rec := f.add(t, pending(notification.PriorityHigh, 10, f.clock.Now()))

	status, err := d.ProcessNow(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusDead, status)

	got := f.get(t, rec.ID)
	assert.Equal(t, 1, got.Attempts)
	require.NotNil(t, got.LastError)
	assert.Contains(t, *got.LastError, "invalid recipient")
}

func TestRenderFailureIsPermanent(t *testing.T) {
	t.Parallel()

	f := newFixture()
	failing := render.RendererFunc(func(context.Context, string, string, json.RawMessage) (render.Content, error) {
		return render.Content{}, render.ErrTemplateNotFound
	})

	var got dispatcher.Outcome
	d := f.dispatcher(t, failing, dispatcher.WithHook(func(_ context.Context, o dispatcher.Outcome) { got = o }))
	rec := f.add(t, pending(notification.PriorityNormal, 5, f.clock.Now()))

	status, err := d.ProcessNow(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusDead, status)
	assert.Equal(t, 0, f.sender.Attempts())

	assert.ErrorIs(t, got.Err, render.ErrRender)
	assert.ErrorIs(t, got.Err, render.ErrTemplateNotFound)
	assert.Equal(t, 1, f.get(t, rec.ID).Attempts)
}

func TestUnclassifiedAndPanicAreTransient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		fail func(int, channel.Message) error
		want error
	}{
		{
			name: "unclassified error",
			fail: func(int, channel.Message) error { return errors.New("something odd") },
		},
		{
			name: "panic",
			fail: func(int, channel.Message) error { panic("adapter bug") },
			want: dispatcher.ErrPanic,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture()
			f.sender.FailWith(tt.fail)

			var got dispatcher.Outcome
			d := f.dispatcher(t, okRenderer, dispatcher.WithHook(func(_ context.Context, o dispatcher.Outcome) { got = o }))
			rec := f.add(t, pending(notification.PriorityNormal, 3, f.clock.Now()))

			status, err := d.ProcessNow(context.Background(), rec.ID)
			require.NoError(t, err)
			assert.Equal(t, notification.StatusFailedRetryable, status)
			require.Error(t, got.Err)
			if tt.want != nil {
				assert.ErrorIs(t, got.Err, tt.want)
			}
		})
	}
}

func TestTimeoutsAreTransient(t *testing.T) {
	t.Parallel()

	cfg := dispatcher.DefaultConfig()
	cfg.RenderTimeout = 20 * time.Millisecond
	cfg.SendTimeout = 20 * time.Millisecond

	t.Run("send", func(t *testing.T) {
		t.Parallel()

		f := newFixture()
		blocking := channel.SenderFunc(func(ctx context.Context, msg channel.Message) error {
			<-ctx.Done()
			return ctx.Err()
		})

		var got dispatcher.Outcome
		d, err := dispatcher.New(f.store, okRenderer, blocking,
			dispatcher.WithConfig(cfg),
			dispatcher.WithLogger(quiet),
			dispatcher.WithClock(f.clock.Now),
			dispatcher.WithHook(func(_ context.Context, o dispatcher.Outcome) { got = o }),
		)
		require.NoError(t, err)
		rec := f.add(t, pending(notification.PriorityNormal, 3, f.clock.Now()))

		status, err := d.ProcessNow(context.Background(), rec.ID)
		require.NoError(t, err)
		assert.Equal(t, notification.StatusFailedRetryable, status)
		assert.ErrorIs(t, got.Err, dispatcher.ErrTimeout)
		assert.False(t, channel.IsPermanent(got.Err))
	})

	t.Run("render", func(t *testing.T) {
		t.Parallel()

		f := newFixture()
		slow := render.RendererFunc(func(ctx context.Context, _, _ string, _ json.RawMessage) (render.Content, error) {
			<-ctx.Done()
			return render.Content{}, ctx.Err()
		})

		var got dispatcher.Outcome
		d := f.dispatcher(t, slow,
			dispatcher.WithConfig(cfg),
			dispatcher.WithHook(func(_ context.Context, o dispatcher.Outcome) { got = o }),
		)
		rec := f.add(t, pending(notification.PriorityNormal, 3, f.clock.Now()))

		status, err := d.ProcessNow(context.Background(), rec.ID)
		require.NoError(t, err)
		assert.Equal(t, notification.StatusFailedRetryable, status)
		assert.ErrorIs(t, got.Err, dispatcher.ErrTimeout)
		assert.Equal(t, 0, f.sender.Attempts())
	})
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	cfg := dispatcher.DefaultConfig()
	cfg.SendTimeout = 50 * time.Millisecond

	f := newFixture()
	var got dispatcher.Outcome
	d := f.dispatcher(t, okRenderer,
		dispatcher.WithConfig(cfg),
		dispatcher.WithRateLimit(notification.ChannelEmail, rate.Every(time.Hour), 1),
		dispatcher.WithHook(func(_ context.Context, o dispatcher.Outcome) { got = o }),
	)
	first := f.add(t, pending(notification.PriorityNormal, 3, f.clock.Now()))
	second := f.add(t, pending(notification.PriorityNormal, 3, f.clock.Now()))

	status, err := d.ProcessNow(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusSent, status)

	status, err = d.ProcessNow(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusFailedRetryable, status)
	assert.ErrorIs(t, got.Err, dispatcher.ErrRateLimited)
	assert.Equal(t, 1, f.sender.Attempts())
}

func TestLeaseLostDuringSend(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	// The send outlives the lease and another worker's requeue takes the record back.
	slow := channel.SenderFunc(func(context.Context, channel.Message) error {
		f.clock.Advance(time.Hour)
		_, err := f.store.Requeue(ctx, f.clock.Now())
		return err
	})
	d, err := dispatcher.New(f.store, okRenderer, slow,
		dispatcher.WithLogger(quiet),
		dispatcher.WithClock(f.clock.Now),
	)
	require.NoError(t, err)
	rec := f.add(t, pending(notification.PriorityNormal, 3, f.clock.Now()))

	_, err = d.ProcessNow(ctx, rec.ID)
	assert.ErrorIs(t, err, notification.ErrLeaseLost)

	got := f.get(t, rec.ID)
	assert.Equal(t, notification.StatusPending, got.Status)
	assert.Equal(t, 0, got.Attempts)
}

func TestLeaseExpiredDuringRenderSkipsSend(t *testing.T) {
	t.Parallel()

	f := newFixture()
	slow := render.RendererFunc(func(ctx context.Context, code, locale string, p json.RawMessage) (render.Content, error) {
		f.clock.Advance(time.Hour)
		return okRenderer(ctx, code, locale, p)
	})
	d := f.dispatcher(t, slow)
	rec := f.add(t, pending(notification.PriorityNormal, 3, f.clock.Now()))

	status, err := d.ProcessNow(context.Background(), rec.ID)
	assert.ErrorIs(t, err, dispatcher.ErrLeaseExpired)
	assert.Equal(t, notification.StatusPending, status)
	assert.Equal(t, 0, f.sender.Attempts())

	got := f.get(t, rec.ID)
	assert.Equal(t, notification.StatusPending, got.Status)
	assert.Equal(t, 0, got.Attempts)
	assert.Nil(t, got.ClaimedBy)
}

// claimCounter counts ClaimBatch calls so a test can wait for the next poll.
type claimCounter struct {
	*memstore.Store
	claims atomic.Int32
}

func (s *claimCounter) ClaimBatch(ctx context.Context, workerID uuid.UUID, limit int, lease time.Duration) ([]*notification.Record, error) {
	defer s.claims.Add(1)
	return s.Store.ClaimBatch(ctx, workerID, limit, lease)
}

func TestBatchSkipsRecordsWhoseLeaseExpired(t *testing.T) {
	t.Parallel()

	c := newClock()
	store := &claimCounter{Store: memstore.New(memstore.WithClock(c.Now))}
	ctx := context.Background()

	first := pending(notification.PriorityCritical, 3, c.Now())
	second := pending(notification.PriorityNormal, 3, c.Now())
	require.NoError(t, store.Create(ctx, first))
	require.NoError(t, store.Create(ctx, second))

	started := make(chan struct{})
	unblock := make(chan struct{})
	var mu sync.Mutex
	deliveries := make(map[uuid.UUID]int)
	sender := channel.SenderFunc(func(_ context.Context, msg channel.Message) error {
		mu.Lock()
		deliveries[msg.RecordID]++
		mu.Unlock()
		if msg.RecordID == first.ID {
			close(started)
			<-unblock
		}
		return nil
	})

	cfg := dispatcher.DefaultConfig()
	cfg.Workers = 1
	cfg.ClaimBatchSize = 2
	cfg.PollInterval = 5 * time.Millisecond
	cfg.RenderTimeout = 10 * time.Millisecond
	cfg.SendTimeout = 20 * time.Millisecond
	cfg.FinalizeTimeout = 10 * time.Millisecond
	cfg.LeaseDuration = 50 * time.Millisecond

	d, err := dispatcher.New(store, okRenderer, sender,
		dispatcher.WithConfig(cfg),
		dispatcher.WithLogger(quiet),
		dispatcher.WithClock(c.Now),
	)
	require.NoError(t, err)
	require.NoError(t, d.Start(ctx))
	defer func() { _ = d.Stop() }()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("first record was never sent")
	}

	// Both leases run out while the first send hangs; another worker takes
	// the records over and finishes them.
	c.Advance(time.Hour)
	other := uuid.New()
	_, err = store.Requeue(ctx, c.Now())
	require.NoError(t, err)
	taken, err := store.Store.ClaimBatch(ctx, other, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, taken, 2)
	for _, rec := range taken {
		require.NoError(t, store.MarkSent(ctx, rec.ID, other, 1, c.Now()))
	}
	claimsBefore := store.claims.Load()
	close(unblock)

	require.Eventually(t, func() bool { return store.claims.Load() > claimsBefore }, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, d.Stop())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, deliveries[second.ID])

	got, err := store.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusSent, got.Status)
	assert.Equal(t, 1, got.Attempts)
}

func TestLifecycle(t *testing.T) {
	t.Parallel()

	f := newFixture()
	d := f.dispatcher(t, okRenderer, dispatcher.WithPollInterval(10*time.Millisecond))

	assert.ErrorIs(t, d.Stop(), dispatcher.ErrNotStarted)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.Start(ctx))
	assert.ErrorIs(t, d.Start(ctx), dispatcher.ErrAlreadyStarted)
	require.NoError(t, d.Stop())

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx)() }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestWorkersClaimByPriority(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	sender := channel.NewMemorySender()
	ctx := context.Background()
	now := time.Now().Add(-time.Minute)

	low := pending(notification.PriorityLow, 3, now)
	normal := pending(notification.PriorityNormal, 3, now)
	critical := pending(notification.PriorityCritical, 3, now)
	for _, rec := range []*notification.Record{low, normal, critical} {
		require.NoError(t, store.Create(ctx, rec))
	}

	cfg := dispatcher.DefaultConfig()
	cfg.Workers = 1
	cfg.ClaimBatchSize = 1
	cfg.PollInterval = 10 * time.Millisecond

	d, err := dispatcher.New(store, okRenderer, sender, dispatcher.WithConfig(cfg), dispatcher.WithLogger(quiet))
	require.NoError(t, err)
	require.NoError(t, d.Start(ctx))
	defer func() { _ = d.Stop() }()

	require.Eventually(t, func() bool { return len(sender.Messages()) == 3 }, 5*time.Second, 10*time.Millisecond)

	msgs := sender.Messages()
	assert.Equal(t, critical.ID, msgs[0].RecordID)
	assert.Equal(t, normal.ID, msgs[1].RecordID)
	assert.Equal(t, low.ID, msgs[2].RecordID)
}

func TestConcurrentWorkersDeliverEachRecordOnce(t *testing.T) {
	t.Parallel()

	const total = 200

	store := memstore.New()
	ctx := context.Background()
	now := time.Now().Add(-time.Minute)

	var mu sync.Mutex
	seen := make(map[uuid.UUID]int, total)
	sender := channel.SenderFunc(func(_ context.Context, msg channel.Message) error {
		mu.Lock()
		defer mu.Unlock()
		seen[msg.RecordID]++
		return nil
	})

	ids := make([]uuid.UUID, 0, total)
	for i := range total {
		rec := pending(notification.Priority(i%4), 3, now)
		require.NoError(t, store.Create(ctx, rec))
		ids = append(ids, rec.ID)
	}

	var finalized atomic.Int64
	cfg := dispatcher.DefaultConfig()
	cfg.Workers = 8
	cfg.ClaimBatchSize = 5
	cfg.PollInterval = 5 * time.Millisecond

	d, err := dispatcher.New(store, okRenderer, sender,
		dispatcher.WithConfig(cfg),
		dispatcher.WithLogger(quiet),
		dispatcher.WithHook(func(context.Context, dispatcher.Outcome) { finalized.Add(1) }),
	)
	require.NoError(t, err)
	require.NoError(t, d.Start(ctx))

	require.Eventually(t, func() bool { return finalized.Load() == total }, 10*time.Second, 10*time.Millisecond)
	require.NoError(t, d.Stop())

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, total)
	for _, id := range ids {
		assert.Equal(t, 1, seen[id], "record %s", id)
		rec, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, notification.StatusSent, rec.Status)
	}
}

// flakyStore fails its first Requeue calls to simulate a store outage.
type flakyStore struct {
	*memstore.Store
	failures atomic.Int32
}

func (s *flakyStore) Requeue(ctx context.Context, now time.Time) (int, error) {
	if s.failures.Add(-1) >= 0 {
		return 0, errors.New("connection refused")
	}
	return s.Store.Requeue(ctx, now)
}

func TestLoopSurvivesStoreOutage(t *testing.T) {
	t.Parallel()

	store := &flakyStore{Store: memstore.New()}
	store.failures.Store(3)
	sender := channel.NewMemorySender()
	ctx := context.Background()

	rec := pending(notification.PriorityNormal, 3, time.Now().Add(-time.Minute))
	require.NoError(t, store.Create(ctx, rec))

	cfg := dispatcher.DefaultConfig()
	cfg.Workers = 1
	cfg.PollInterval = 5 * time.Millisecond

	d, err := dispatcher.New(store, okRenderer, sender, dispatcher.WithConfig(cfg), dispatcher.WithLogger(quiet))
	require.NoError(t, err)
	require.NoError(t, d.Start(ctx))
	defer func() { _ = d.Stop() }()

	require.Eventually(t, func() bool { return len(sender.Messages()) == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.LessOrEqual(t, store.failures.Load(), int32(-1))
}
