package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/outbox"
)

// Repository is the read and operator side of the record store.
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (*notification.Record, error)
	GetByIdempotencyKey(ctx context.Context, typ, key string) (*notification.Record, error)
	// KeyInUse reports whether any non-dead record of any type carries key.
	KeyInUse(ctx context.Context, key string) (bool, error)
	// Cancel dead-letters a record that is not under a live lease.
	Cancel(ctx context.Context, id uuid.UUID, reason string) (*notification.Record, error)
}

// Item is one entry of a batch send.
type Item struct {
	Type      string
	Recipient string
	Payload   any
	Options   outbox.Options
}

// SendResult is the enqueue verdict handed back to callers.
// Success is false only when Error is set.
type SendResult struct {
	Success      bool
	RecordID     uuid.UUID
	Status       notification.Status
	Locale       string
	LocaleSource notification.LocaleSource
	Existing     bool
	Error        error
}

// Service is the entry point the rest of an application calls.
type Service struct {
	writer *outbox.Writer
	repo   Repository
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Service.
func New(writer *outbox.Writer, repo Repository, opts ...Option) (*Service, error) {
	if writer == nil {
		return nil, ErrWriterNil
	}
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	s := &Service{writer: writer, repo: repo, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("notify"))
	return s, nil
}

// SendNotification enqueues one notification. It never returns a Go error;
// failures are reported in SendResult.Error so batch and single sends share
// one shape.
func (s *Service) SendNotification(ctx context.Context, typ, recipient string, payload any, opts outbox.Options) SendResult {
	return s.send(ctx, s.writer, Item{Type: typ, Recipient: recipient, Payload: payload, Options: opts})
}

// SendNotificationTx is SendNotification through a transaction-bound repository.
func (s *Service) SendNotificationTx(ctx context.Context, tx outbox.Repository, typ, recipient string, payload any, opts outbox.Options) SendResult {
	return s.send(ctx, s.writer.WithRepository(tx), Item{Type: typ, Recipient: recipient, Payload: payload, Options: opts})
}

// SendNotificationBatch enqueues items independently, preserving order.
func (s *Service) SendNotificationBatch(ctx context.Context, items []Item) []SendResult {
	out := make([]SendResult, len(items))
	for i, it := range items {
		out[i] = s.send(ctx, s.writer, it)
	}
	return out
}

func (s *Service) send(ctx context.Context, w *outbox.Writer, it Item) SendResult {
	res, err := w.Enqueue(ctx, outbox.Request{
		Type:      it.Type,
		Recipient: it.Recipient,
		Payload:   it.Payload,
		Options:   it.Options,
	})
	if err != nil {
		level := slog.LevelError
		if outbox.IsValidationError(err) {
			level = slog.LevelWarn
		}
		s.logger.LogAttrs(ctx, level, "notification not enqueued",
			logger.NotificationType(it.Type),
			logger.Error(err))
		return SendResult{Error: err}
	}

	return SendResult{
		Success:      true,
		RecordID:     res.RecordID,
		Status:       res.Status,
		Locale:       res.Locale,
		LocaleSource: res.LocaleSource,
		Existing:     res.Existing,
	}
}

// WasNotificationSent reports whether a live or delivered record already
// carries key. Dead records do not count, but their key stays reserved for
// that type: sending again with it returns the dead record, so a retry
// needs a new key.
func (s *Service) WasNotificationSent(ctx context.Context, key string) (bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return false, fmt.Errorf("%w: empty key", outbox.ErrInvalidIdempotencyKey)
	}
	return s.repo.KeyInUse(ctx, key)
}

// Get returns a record by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*notification.Record, error) {
	return s.repo.Get(ctx, id)
}

// GetByIdempotencyKey returns the record created for (type, key).
func (s *Service) GetByIdempotencyKey(ctx context.Context, typ, key string) (*notification.Record, error) {
	return s.repo.GetByIdempotencyKey(ctx, typ, strings.TrimSpace(key))
}

// Cancel dead-letters a record on behalf of an operator. A record currently
// being delivered is rejected with notification.ErrRecordInFlight; the
// delivery finishes and updates the record as usual.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*notification.Record, error) {
	rec, err := s.repo.Cancel(ctx, id, reason)
	if err != nil {
		if !errors.Is(err, notification.ErrRecordNotFound) {
			s.logger.WarnContext(ctx, "cancel rejected", logger.RecordID(id), logger.Error(err))
		}
		return nil, err
	}

	s.logger.InfoContext(ctx, "notification cancelled",
		logger.RecordID(rec.ID),
		logger.NotificationType(rec.Type),
		slog.String("reason", reason))
	return rec, nil
}
