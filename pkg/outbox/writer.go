package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/idempotency"
	"github.com/dmitrymomot/notifykit/pkg/locale"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/registry"
)

// Repository is the part of the record store the writer needs.
type Repository interface {
	idempotency.Store
	Create(ctx context.Context, rec *notification.Record) error
}

// Processor delivers one persisted record synchronously.
type Processor interface {
	ProcessNow(ctx context.Context, id uuid.UUID) (notification.Status, error)
}

// Options tune a single enqueue.
type Options struct {
	// ForceLocale wins the locale cascade.
	ForceLocale string
	// FallbackLocale replaces the writer default as the last cascade step.
	FallbackLocale string
	// IdempotencyKey dedupes requests per notification type.
	IdempotencyKey string
	// Channel overrides the descriptor's first channel.
	Channel notification.Channel
	// ProcessImmediately delivers before returning instead of waiting for a worker.
	ProcessImmediately bool
	TenantID           string
	// UserID is passed to the user locale lookup.
	UserID string
	// MaxAttempts overrides the writer default when positive.
	MaxAttempts int
	// ScheduledAt delays the first attempt.
	ScheduledAt time.Time
}

// Request is one notification to enqueue.
type Request struct {
	Type      string
	Recipient string
	// Payload is any JSON-encodable object. json.RawMessage and []byte are used as is.
	Payload any
	Options Options
}

// Result is the enqueue verdict.
type Result struct {
	RecordID     uuid.UUID
	Status       notification.Status
	Locale       string
	LocaleSource notification.LocaleSource
	// Existing is true when an earlier request with the same idempotency key
	// already created the record.
	Existing bool
}

// BatchResult pairs a Result with the item's error.
type BatchResult struct {
	Result
	Err error
}

// Writer validates notification requests and writes pending outbox records.
type Writer struct {
	registry *registry.Registry
	repo     Repository
	inTx     bool

	maxAttempts    int
	fallbackLocale string
	tenants        TenantLocaleLookup
	users          UserLocaleLookup
	processor      Processor
	logger         *slog.Logger
	now            func() time.Time
}

// NewWriter creates a writer over the registry and store.
func NewWriter(reg *registry.Registry, repo Repository, opts ...Option) (*Writer, error) {
	if reg == nil {
		return nil, ErrRegistryNil
	}
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	w := &Writer{
		registry:       reg,
		repo:           repo,
		maxAttempts:    5,
		fallbackLocale: locale.DefaultFallback,
		logger:         slog.Default(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(logger.Component("outbox"))

	return w, nil
}

// WithRepository returns a writer that writes through repo, typically a store
// bound to the caller's transaction (pgstore.Store.WithTx). The record commits
// or rolls back together with the caller's business change.
func (w *Writer) WithRepository(repo Repository) *Writer {
	c := *w
	c.repo = repo
	c.inTx = true
	return &c
}

// Enqueue writes one pending record.
//
// Validation failures return before anything is written. A request whose
// idempotency key is already taken returns the stored record's state with
// Existing set and writes nothing.
func (w *Writer) Enqueue(ctx context.Context, req Request) (Result, error) {
	opts := req.Options

	if opts.ProcessImmediately {
		if w.inTx {
			return Result{}, ErrImmediateInTransaction
		}
		if w.processor == nil {
			return Result{}, ErrNoProcessor
		}
	}

	desc, err := w.registry.DescriptorFor(req.Type)
	if err != nil {
		return Result{}, err
	}

	payload, fields, err := decodePayload(req.Payload)
	if err != nil {
		return Result{}, err
	}
	if err := w.registry.ValidatePayload(desc.Type, fields); err != nil {
		return Result{}, err
	}

	ch := desc.DefaultChannel()
	if opts.Channel != "" {
		if !desc.Allows(opts.Channel) {
			return Result{}, fmt.Errorf("%w: %q does not allow %q", ErrUnsupportedChannel, desc.Type, opts.Channel)
		}
		ch = opts.Channel
	}

	recipient, err := normalizeRecipient(ch, req.Recipient)
	if err != nil {
		return Result{}, err
	}

	key, err := idempotency.NormalizeKey(opts.IdempotencyKey)
	if err != nil {
		return Result{}, err
	}

	maxAttempts := w.maxAttempts
	if opts.MaxAttempts < 0 {
		return Result{}, ErrInvalidMaxAttempts
	}
	if opts.MaxAttempts > 0 {
		maxAttempts = opts.MaxAttempts
	}

	loc := w.resolveLocale(ctx, opts)

	now := w.now()
	rec := &notification.Record{
		ID:            uuid.New(),
		Type:          desc.Type,
		TemplateCode:  desc.TemplateCode,
		Channel:       ch,
		Priority:      desc.Priority,
		Recipient:     recipient,
		Locale:        loc.Locale,
		LocaleSource:  loc.Source,
		Payload:       payload,
		Status:        notification.StatusPending,
		Attempts:      0,
		MaxAttempts:   maxAttempts,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if key != "" {
		rec.IdempotencyKey = &key
	}
	if tid := strings.TrimSpace(opts.TenantID); tid != "" {
		rec.TenantID = &tid
	}
	if opts.ScheduledAt.After(now) {
		rec.NextAttemptAt = opts.ScheduledAt
	}

	ctx = logger.WithRecord(ctx,
		logger.RecordID(rec.ID),
		logger.NotificationType(rec.Type),
		logger.Channel(rec.Channel))

	res, err := idempotency.CheckAndReserve(ctx, w.repo, rec)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrPersist, err)
	}
	if !res.Reserved {
		ex := res.Existing
		w.logger.DebugContext(ctx, "idempotency key already used, returning existing record",
			slog.String("existing_record_id", ex.ID.String()),
			logger.Status(ex.Status))
		return Result{
			RecordID:     ex.ID,
			Status:       ex.Status,
			Locale:       ex.Locale,
			LocaleSource: ex.LocaleSource,
			Existing:     true,
		}, nil
	}
	if !res.Persisted {
		if err := w.repo.Create(ctx, rec); err != nil {
			return Result{}, fmt.Errorf("%w: %w", ErrPersist, err)
		}
	}

	w.logger.DebugContext(ctx, "notification enqueued",
		logger.RecordID(rec.ID),
		logger.Locale(rec.Locale, rec.LocaleSource),
		slog.String("priority", rec.Priority.String()))

	result := Result{
		RecordID:     rec.ID,
		Status:       notification.StatusPending,
		Locale:       rec.Locale,
		LocaleSource: rec.LocaleSource,
	}

	if opts.ProcessImmediately {
		status, err := w.processor.ProcessNow(ctx, rec.ID)
		if err != nil {
			// The record is durable; a background worker will deliver it.
			w.logger.WarnContext(ctx, "immediate processing failed, left for the dispatcher",
				logger.RecordID(rec.ID),
				logger.Error(err))
			return result, nil
		}
		result.Status = status
	}

	return result, nil
}

// EnqueueBatch enqueues each request independently and returns one result per
// request in input order. A failing item never affects the others.
func (w *Writer) EnqueueBatch(ctx context.Context, reqs []Request) []BatchResult {
	out := make([]BatchResult, len(reqs))
	for i, req := range reqs {
		res, err := w.Enqueue(ctx, req)
		out[i] = BatchResult{Result: res, Err: err}
	}
	return out
}

// resolveLocale fetches tenant and user locales only when the explicit
// locale does not already decide the cascade. Lookup failures count as unset.
func (w *Writer) resolveLocale(ctx context.Context, opts Options) locale.Result {
	in := locale.Input{
		Explicit: opts.ForceLocale,
		Fallback: opts.FallbackLocale,
	}
	if strings.TrimSpace(in.Fallback) == "" {
		in.Fallback = w.fallbackLocale
	}
	if strings.TrimSpace(in.Explicit) != "" {
		return locale.Resolve(in)
	}

	if w.tenants != nil && opts.TenantID != "" {
		tl, err := w.tenants.TenantLocale(ctx, opts.TenantID)
		if err != nil {
			w.logger.WarnContext(ctx, "tenant locale lookup failed",
				logger.TenantID(opts.TenantID),
				logger.Error(err))
		}
		in.Tenant = tl
	}
	if in.Tenant == "" && w.users != nil && opts.UserID != "" {
		ul, err := w.users.UserLocale(ctx, opts.UserID)
		if err != nil {
			w.logger.WarnContext(ctx, "user locale lookup failed",
				slog.String("user_id", opts.UserID),
				logger.Error(err))
		}
		in.User = ul
	}

	return locale.Resolve(in)
}

// decodePayload returns the canonical JSON for payload and its decoded object form.
func decodePayload(payload any) (json.RawMessage, map[string]any, error) {
	var raw []byte
	switch p := payload.(type) {
	case nil:
		raw = []byte("{}")
	case json.RawMessage:
		raw = p
	case []byte:
		raw = p
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
		raw = b
	}
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		raw = []byte("{}")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, nil, fmt.Errorf("%w: payload must be a JSON object: %w", ErrInvalidPayload, err)
	}
	if fields == nil {
		return nil, nil, fmt.Errorf("%w: payload must be a JSON object", ErrInvalidPayload)
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return nil, nil, errors.Join(ErrInvalidPayload, err)
	}
	return compact.Bytes(), fields, nil
}
