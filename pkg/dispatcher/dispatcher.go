package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/dmitrymomot/notifykit/pkg/backoff"
	"github.com/dmitrymomot/notifykit/pkg/channel"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/render"
)

// Repository is the claim store the dispatcher works against.
// Every Mark* and Release call must be conditioned on status=claimed and
// claimed_by=workerID, returning notification.ErrLeaseLost otherwise.
type Repository interface {
	// Requeue moves failed_retryable records past next_attempt_at and claimed
	// records with an expired lease back to pending.
	Requeue(ctx context.Context, now time.Time) (int, error)

	// ClaimBatch atomically claims up to limit due pending records ordered by
	// priority desc, created_at asc. Concurrent callers never share a record.
	ClaimBatch(ctx context.Context, workerID uuid.UUID, limit int, lease time.Duration) ([]*notification.Record, error)

	// ClaimByID claims one record if it is pending and due.
	ClaimByID(ctx context.Context, id, workerID uuid.UUID, lease time.Duration) (*notification.Record, error)

	MarkSent(ctx context.Context, id, workerID uuid.UUID, attempts int, sentAt time.Time) error
	MarkRetry(ctx context.Context, id, workerID uuid.UUID, attempts int, next time.Time, lastErr string) error
	MarkDead(ctx context.Context, id, workerID uuid.UUID, attempts int, lastErr string) error

	// Release returns a claimed record to pending without counting an attempt.
	Release(ctx context.Context, id, workerID uuid.UUID) error
}

// Dispatcher claims pending records and delivers them.
// It runs Config.Workers independent loops; the store is the only queue.
type Dispatcher struct {
	repo     Repository
	renderer render.Renderer
	sender   channel.Sender

	cfg      Config
	backoff  backoff.Strategy
	infra    backoff.Strategy
	limiters map[notification.Channel]*rate.Limiter
	hooks    []Hook
	logger   *slog.Logger
	now      func() time.Time

	// id claims on behalf of ProcessNow; loops use their own ids.
	id uuid.UUID

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a dispatcher. sender is usually a *channel.Router.
func New(repo Repository, renderer render.Renderer, sender channel.Sender, opts ...Option) (*Dispatcher, error) {
	switch {
	case repo == nil:
		return nil, ErrRepositoryNil
	case renderer == nil:
		return nil, ErrRendererNil
	case sender == nil:
		return nil, ErrSenderNil
	}

	d := &Dispatcher{
		repo:     repo,
		renderer: renderer,
		sender:   sender,
		cfg:      DefaultConfig(),
		limiters: make(map[notification.Channel]*rate.Limiter),
		logger:   slog.Default(),
		now:      time.Now,
		id:       uuid.New(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if err := d.cfg.validate(); err != nil {
		return nil, err
	}

	if d.backoff == nil {
		d.backoff = d.cfg.Backoff()
	}
	for ch, l := range d.cfg.limiters() {
		if _, ok := d.limiters[ch]; !ok {
			d.limiters[ch] = l
		}
	}
	d.infra = backoff.Exponential{
		InitialInterval: d.cfg.PollInterval,
		MaxInterval:     max(time.Minute, d.cfg.PollInterval),
		Multiplier:      2,
		JitterFactor:    0.2,
	}
	d.logger = d.logger.With(logger.Component("dispatcher"))

	return d, nil
}

// Start launches the worker loops in the background.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cancel != nil {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	d.cancel = cancel
	d.done = done

	var wg sync.WaitGroup
	for range d.cfg.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.loop(ctx, uuid.New())
		}()
	}
	go func() {
		wg.Wait()
		close(done)
	}()

	d.logger.Info("dispatcher started",
		slog.Int("workers", d.cfg.Workers),
		slog.Duration("poll_interval", d.cfg.PollInterval),
		slog.Duration("lease", d.cfg.LeaseDuration))

	return nil
}

// Stop cancels the loops and waits for in-flight deliveries to finish.
// Claimed records that were not started are released back to pending.
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	if d.cancel == nil {
		d.mu.Unlock()
		return ErrNotStarted
	}
	cancel, done := d.cancel, d.done
	d.cancel, d.done = nil, nil
	d.mu.Unlock()

	d.logger.Info("dispatcher stopping, waiting for in-flight deliveries")
	cancel()

	select {
	case <-done:
		d.logger.Info("dispatcher stopped")
		return nil
	case <-time.After(d.cfg.ShutdownTimeout):
		d.logger.Warn("dispatcher stop timed out; unfinished records are reclaimed after their lease expires")
		return ErrShutdownTimeout
	}
}

// Run starts the dispatcher and returns a function suitable for errgroup.
func (d *Dispatcher) Run(ctx context.Context) func() error {
	return func() error {
		if err := d.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return d.Stop()
	}
}

// ProcessNow claims and delivers one record synchronously.
// It returns the status the record was finalized with. Delivery failures are
// not errors here; they are recorded on the record. Errors mean the record
// could not be claimed or finalized.
func (d *Dispatcher) ProcessNow(ctx context.Context, id uuid.UUID) (notification.Status, error) {
	rec, err := d.repo.ClaimByID(ctx, id, d.id, d.cfg.LeaseDuration)
	if err != nil {
		return "", err
	}

	out, err := d.process(ctx, d.id, rec)
	switch {
	case errors.Is(err, ErrLeaseExpired):
		return notification.StatusPending, err
	case err != nil:
		return notification.StatusClaimed, err
	}
	return out.Status, nil
}

func (d *Dispatcher) loop(ctx context.Context, workerID uuid.UUID) {
	log := d.logger.With(logger.WorkerID(workerID))
	failures := 0

	for {
		if ctx.Err() != nil {
			return
		}

		n, err := d.poll(ctx, workerID)

		var wait time.Duration
		switch {
		case err != nil && ctx.Err() != nil:
			return
		case err != nil:
			failures++
			wait = d.infra.NextInterval(failures)
			log.ErrorContext(ctx, "claim store unavailable, backing off",
				logger.Error(err),
				slog.Int("consecutive_failures", failures),
				slog.Duration("wait", wait))
		case n == 0:
			failures = 0
			wait = d.cfg.PollInterval
		default:
			failures = 0
			continue
		}

		if !sleep(ctx, wait) {
			return
		}
	}
}

// poll runs one requeue, claim and process round and reports how many
// records were claimed.
func (d *Dispatcher) poll(ctx context.Context, workerID uuid.UUID) (int, error) {
	if _, err := d.repo.Requeue(ctx, d.now()); err != nil {
		return 0, err
	}

	batch, err := d.repo.ClaimBatch(ctx, workerID, d.cfg.ClaimBatchSize, d.cfg.LeaseDuration)
	if err != nil {
		return 0, err
	}

	for i, rec := range batch {
		if ctx.Err() != nil {
			d.release(ctx, workerID, batch[i:])
			break
		}
		_, err := d.process(ctx, workerID, rec)
		switch {
		case errors.Is(err, ErrLeaseExpired):
			d.logger.InfoContext(ctx, "lease ran out before delivery, record handed back",
				logger.WorkerID(workerID),
				logger.RecordID(rec.ID))
		case err != nil:
			d.logger.WarnContext(ctx, "failed to finalize record",
				logger.WorkerID(workerID),
				logger.RecordID(rec.ID),
				logger.Error(err))
		}
	}
	return len(batch), nil
}

func (d *Dispatcher) release(ctx context.Context, workerID uuid.UUID, recs []*notification.Record) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.FinalizeTimeout)
	defer cancel()

	for _, rec := range recs {
		if err := d.repo.Release(ctx, rec.ID, workerID); err != nil {
			d.logger.WarnContext(ctx, "failed to release claimed record",
				logger.WorkerID(workerID),
				logger.RecordID(rec.ID),
				logger.Error(err))
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
