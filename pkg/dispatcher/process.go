package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/channel"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/render"
)

// Outcome describes one finalized delivery attempt.
type Outcome struct {
	RecordID uuid.UUID
	Type     string
	Channel  notification.Channel
	Status   notification.Status
	Attempts int
	// NextAttemptAt is set when Status is failed_retryable.
	NextAttemptAt time.Time
	// Err is the render or send failure, nil on success.
	Err      error
	Duration time.Duration
}

// Hook observes finalized records. Hooks run on the worker goroutine and
// should return quickly.
type Hook func(ctx context.Context, o Outcome)

// process delivers one claimed record and finalizes it. The returned error is
// a finalize failure; delivery failures are carried in Outcome.Err.
func (d *Dispatcher) process(ctx context.Context, workerID uuid.UUID, rec *notification.Record) (Outcome, error) {
	start := time.Now()

	// In-flight deliveries run to completion even when the worker is stopping.
	ctx = context.WithoutCancel(ctx)
	ctx = logger.WithRecord(ctx,
		logger.RecordID(rec.ID),
		logger.NotificationType(rec.Type),
		logger.Channel(rec.Channel))

	maxAttempts := max(rec.MaxAttempts, 1)
	out := Outcome{
		RecordID: rec.ID,
		Type:     rec.Type,
		Channel:  rec.Channel,
		Attempts: rec.Attempts + 1,
	}

	// Records later in a batch may have used up their lease waiting for
	// earlier ones; another worker can own them by now.
	if !d.leaseCovers(rec, d.cfg.deliveryBudget()) {
		return out, d.handBack(ctx, workerID, rec)
	}

	permanent, err := d.deliver(ctx, rec)
	if errors.Is(err, ErrLeaseExpired) {
		return out, d.handBack(ctx, workerID, rec)
	}
	out.Err = err
	out.Duration = time.Since(start)

	fctx, cancel := context.WithTimeout(ctx, d.cfg.FinalizeTimeout)
	defer cancel()

	var ferr error
	switch {
	case err == nil:
		out.Status = notification.StatusSent
		ferr = d.repo.MarkSent(fctx, rec.ID, workerID, out.Attempts, d.now())
	case permanent || out.Attempts >= maxAttempts:
		out.Status = notification.StatusDead
		ferr = d.repo.MarkDead(fctx, rec.ID, workerID, out.Attempts, err.Error())
	default:
		out.Status = notification.StatusFailedRetryable
		out.NextAttemptAt = d.now().Add(d.backoff.NextInterval(out.Attempts))
		ferr = d.repo.MarkRetry(fctx, rec.ID, workerID, out.Attempts, out.NextAttemptAt, err.Error())
	}
	if ferr != nil {
		return out, fmt.Errorf("finalize %s as %s: %w", rec.ID, out.Status, ferr)
	}

	d.report(ctx, out, maxAttempts, permanent)
	for _, h := range d.hooks {
		h(ctx, out)
	}
	return out, nil
}

// deliver renders and sends rec. permanent reports whether a failure must
// skip retries.
func (d *Dispatcher) deliver(ctx context.Context, rec *notification.Record) (permanent bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			permanent, err = false, fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()

	content, err := d.render(ctx, rec)
	if err != nil {
		return !errors.Is(err, ErrTimeout), err
	}

	if !d.leaseCovers(rec, d.cfg.SendTimeout+d.cfg.FinalizeTimeout) {
		return false, ErrLeaseExpired
	}

	if err := d.send(ctx, rec, content); err != nil {
		return channel.IsPermanent(err), err
	}
	return false, nil
}

// leaseCovers reports whether rec's claim outlives need from now.
func (d *Dispatcher) leaseCovers(rec *notification.Record, need time.Duration) bool {
	return rec.LeaseUntil != nil && rec.LeaseUntil.Sub(d.now()) > need
}

// handBack releases a record whose lease is too short to deliver it.
// ErrLeaseLost from the store means another worker already took it over.
func (d *Dispatcher) handBack(ctx context.Context, workerID uuid.UUID, rec *notification.Record) error {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.FinalizeTimeout)
	defer cancel()

	err := d.repo.Release(ctx, rec.ID, workerID)
	if err != nil && !errors.Is(err, notification.ErrLeaseLost) {
		return errors.Join(fmt.Errorf("%w: %s", ErrLeaseExpired, rec.ID), err)
	}
	return fmt.Errorf("%w: %s", ErrLeaseExpired, rec.ID)
}

func (d *Dispatcher) render(ctx context.Context, rec *notification.Record) (render.Content, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.RenderTimeout)
	defer cancel()

	content, err := d.renderer.Render(ctx, rec.TemplateCode, rec.Locale, rec.Payload)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, context.DeadlineExceeded) {
			return content, fmt.Errorf("%w: render: %w", ErrTimeout, err)
		}
		var rerr *render.Error
		if !errors.As(err, &rerr) {
			err = &render.Error{TemplateCode: rec.TemplateCode, Locale: rec.Locale, Err: err}
		}
		return content, err
	}
	return content, nil
}

func (d *Dispatcher) send(ctx context.Context, rec *notification.Record, content render.Content) error {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()

	if l, ok := d.limiters[rec.Channel]; ok {
		if err := l.Wait(ctx); err != nil {
			return channel.Transient(fmt.Errorf("%w: %w", ErrRateLimited, err))
		}
	}

	err := d.sender.Send(ctx, channel.Message{
		RecordID:  rec.ID,
		Type:      rec.Type,
		Channel:   rec.Channel,
		Recipient: rec.Recipient,
		Locale:    rec.Locale,
		Content:   content,
	})
	if err != nil && ctx.Err() != nil && errors.Is(err, context.DeadlineExceeded) {
		return channel.Transient(fmt.Errorf("%w: send: %w", ErrTimeout, err))
	}
	return err
}

func (d *Dispatcher) report(ctx context.Context, out Outcome, maxAttempts int, permanent bool) {
	attrs := []slog.Attr{
		logger.RecordID(out.RecordID),
		logger.NotificationType(out.Type),
		logger.Channel(out.Channel),
		logger.Status(out.Status),
		logger.Attempts(out.Attempts, maxAttempts),
		logger.Duration(out.Duration),
	}

	switch out.Status {
	case notification.StatusSent:
		d.logger.LogAttrs(ctx, slog.LevelInfo, "notification sent", attrs...)
	case notification.StatusFailedRetryable:
		attrs = append(attrs, logger.Error(out.Err), slog.Time("next_attempt_at", out.NextAttemptAt))
		d.logger.LogAttrs(ctx, slog.LevelWarn, "notification delivery failed, retry scheduled", attrs...)
	case notification.StatusDead:
		attrs = append(attrs, logger.Error(out.Err), slog.Bool("permanent", permanent))
		d.logger.LogAttrs(ctx, slog.LevelError, "notification dead-lettered", attrs...)
	}
}
