package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/clientip"
	"github.com/dmitrymomot/notifykit/pkg/httpserver"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/notify"
	"github.com/dmitrymomot/notifykit/pkg/outbox"
)

// MaxBatchItems caps POST /notifications/batch.
const MaxBatchItems = 100

// Service is the part of notify.Service the API exposes.
type Service interface {
	SendNotification(ctx context.Context, typ, recipient string, payload any, opts outbox.Options) notify.SendResult
	SendNotificationBatch(ctx context.Context, items []notify.Item) []notify.SendResult
	WasNotificationSent(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, id uuid.UUID) (*notification.Record, error)
	GetByIdempotencyKey(ctx context.Context, typ, key string) (*notification.Record, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string) (*notification.Record, error)
}

// Handler serves the notification HTTP API.
type Handler struct {
	svc           Service
	logger        *slog.Logger
	checks        map[string]httpserver.Check
	healthTimeout time.Duration
	ipHeaders     []string
	router        chi.Router
}

// Option configures a Handler.
type Option func(*Handler)

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithHealthCheck adds a named readiness check to GET /healthz.
func WithHealthCheck(name string, check httpserver.Check) Option {
	return func(h *Handler) {
		if check != nil {
			h.checks[name] = check
		}
	}
}

// WithHealthTimeout bounds each readiness check. Default 2s.
func WithHealthTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.healthTimeout = d
		}
	}
}

// WithClientIPHeaders sets the proxy headers trusted for the caller address.
// Default clientip.DefaultHeaders.
func WithClientIPHeaders(headers ...string) Option {
	return func(h *Handler) {
		if len(headers) > 0 {
			h.ipHeaders = headers
		}
	}
}

// New builds the router:
//
//	POST /notifications
//	POST /notifications/batch
//	GET  /notifications?type=&key=
//	GET  /notifications/sent?key=
//	GET  /notifications/{id}
//	POST /notifications/{id}/cancel
//	GET  /healthz
func New(svc Service, opts ...Option) (*Handler, error) {
	if svc == nil {
		return nil, ErrServiceNil
	}

	h := &Handler{
		svc:           svc,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		checks:        make(map[string]httpserver.Check),
		healthTimeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With(logger.Component("api"))

	r := chi.NewRouter()
	r.Use(requestID, clientip.Middleware(h.ipHeaders...), middleware.Recoverer, accessLog(h.logger))

	r.Get("/healthz", httpserver.HealthCheckHandler(h.logger, h.healthTimeout, h.checks))
	r.Route("/notifications", func(r chi.Router) {
		r.Post("/", h.send)
		r.Post("/batch", h.sendBatch)
		r.Get("/", h.getByKey)
		r.Get("/sent", h.wasSent)
		r.Get("/{id}", h.get)
		r.Post("/{id}/cancel", h.cancel)
	})
	h.router = r
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// SendRequest is the body of POST /notifications and one batch item.
type SendRequest struct {
	Type      string          `json:"type"`
	Recipient string          `json:"recipient"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Options   SendOptions     `json:"options"`
}

// SendOptions mirrors outbox.Options on the wire.
type SendOptions struct {
	Locale             string     `json:"locale,omitempty"`
	FallbackLocale     string     `json:"fallback_locale,omitempty"`
	IdempotencyKey     string     `json:"idempotency_key,omitempty"`
	Channel            string     `json:"channel,omitempty"`
	ProcessImmediately bool       `json:"process_immediately,omitempty"`
	TenantID           string     `json:"tenant_id,omitempty"`
	UserID             string     `json:"user_id,omitempty"`
	MaxAttempts        int        `json:"max_attempts,omitempty"`
	ScheduledAt        *time.Time `json:"scheduled_at,omitempty"`
}

func (o SendOptions) toOutbox() outbox.Options {
	opts := outbox.Options{
		ForceLocale:        o.Locale,
		FallbackLocale:     o.FallbackLocale,
		IdempotencyKey:     o.IdempotencyKey,
		Channel:            notification.Channel(o.Channel),
		ProcessImmediately: o.ProcessImmediately,
		TenantID:           o.TenantID,
		UserID:             o.UserID,
		MaxAttempts:        o.MaxAttempts,
	}
	if o.ScheduledAt != nil {
		opts.ScheduledAt = *o.ScheduledAt
	}
	return opts
}

// SendResponse reports an accepted notification.
type SendResponse struct {
	RecordID     uuid.UUID                 `json:"record_id"`
	Status       notification.Status       `json:"status"`
	Locale       string                    `json:"locale"`
	LocaleSource notification.LocaleSource `json:"locale_source"`
	Existing     bool                      `json:"existing"`
}

// BatchItemResponse is one entry of the batch response, in request order.
type BatchItemResponse struct {
	*SendResponse
	Error *ErrorDetail `json:"error,omitempty"`
}

func toResponse(res notify.SendResult) *SendResponse {
	return &SendResponse{
		RecordID:     res.RecordID,
		Status:       res.Status,
		Locale:       res.Locale,
		LocaleSource: res.LocaleSource,
		Existing:     res.Existing,
	}
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	res := h.svc.SendNotification(r.Context(), req.Type, req.Recipient, req.Payload, req.Options.toOutbox())
	if res.Error != nil {
		h.writeError(w, r, res.Error)
		return
	}

	code := http.StatusAccepted
	if res.Existing {
		code = http.StatusOK
	}
	writeJSON(w, code, Envelope{Data: toResponse(res)})
}

type batchRequest struct {
	Items []SendRequest `json:"items"`
}

func (h *Handler) sendBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(req.Items) > MaxBatchItems {
		h.writeError(w, r, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(req.Items), MaxBatchItems))
		return
	}

	items := make([]notify.Item, len(req.Items))
	for i, it := range req.Items {
		items[i] = notify.Item{Type: it.Type, Recipient: it.Recipient, Payload: it.Payload, Options: it.Options.toOutbox()}
	}

	results := h.svc.SendNotificationBatch(r.Context(), items)
	out := make([]BatchItemResponse, len(results))
	for i, res := range results {
		if res.Error != nil {
			code, detail := errorDetail(res.Error)
			if code >= http.StatusInternalServerError {
				h.logger.ErrorContext(r.Context(), "batch item failed", slog.Int("index", i), logger.Error(res.Error))
			}
			out[i] = BatchItemResponse{Error: detail}
			continue
		}
		out[i] = BatchItemResponse{SendResponse: toResponse(res)}
	}
	writeJSON(w, http.StatusOK, Envelope{Data: out})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: %v", ErrInvalidRecordID, err))
		return
	}

	rec, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Data: rec})
}

func (h *Handler) getByKey(w http.ResponseWriter, r *http.Request) {
	typ := strings.TrimSpace(r.URL.Query().Get("type"))
	key := strings.TrimSpace(r.URL.Query().Get("key"))
	if typ == "" || key == "" {
		h.writeError(w, r, fmt.Errorf("%w: type and key are required", ErrMissingKey))
		return
	}

	rec, err := h.svc.GetByIdempotencyKey(r.Context(), typ, key)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Data: rec})
}

func (h *Handler) wasSent(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(r.URL.Query().Get("key"))
	if key == "" {
		h.writeError(w, r, ErrMissingKey)
		return
	}

	sent, err := h.svc.WasNotificationSent(r.Context(), key)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Data: map[string]bool{"sent": sent}})
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: %v", ErrInvalidRecordID, err))
		return
	}

	// The body is optional.
	var req cancelRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			h.writeError(w, r, err)
			return
		}
	}

	rec, err := h.svc.Cancel(r.Context(), id, strings.TrimSpace(req.Reason))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Data: rec})
}
