package api

import (
	"errors"
	"net/http"

	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/outbox"
	"github.com/dmitrymomot/notifykit/pkg/registry"
)

var (
	ErrServiceNil = errors.New("api: service cannot be nil")

	// Request decoding errors, all answered with 400.
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrInvalidJSON          = errors.New("invalid JSON")
	ErrInvalidRecordID      = errors.New("invalid record id")
	ErrMissingKey           = errors.New("missing key query parameter")
	ErrBatchTooLarge        = errors.New("too many items in batch")
)

// status maps a domain error to an HTTP status and a stable error code.
func status(err error) (int, string) {
	switch {
	case errors.Is(err, ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType, "unsupported_media_type"
	case errors.Is(err, ErrInvalidJSON), errors.Is(err, ErrInvalidRecordID),
		errors.Is(err, ErrMissingKey), errors.Is(err, ErrBatchTooLarge):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, outbox.ErrUnknownNotificationType):
		return http.StatusUnprocessableEntity, "unknown_notification_type"
	case errors.Is(err, outbox.ErrInvalidPayload):
		return http.StatusUnprocessableEntity, "invalid_payload"
	case errors.Is(err, outbox.ErrUnsupportedChannel):
		return http.StatusUnprocessableEntity, "unsupported_channel"
	case errors.Is(err, outbox.ErrInvalidRecipient):
		return http.StatusUnprocessableEntity, "invalid_recipient"
	case outbox.IsValidationError(err):
		return http.StatusUnprocessableEntity, "validation_failed"
	case errors.Is(err, notification.ErrRecordNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, notification.ErrRecordInFlight):
		return http.StatusConflict, "record_in_flight"
	case errors.Is(err, notification.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	}
	return http.StatusInternalServerError, "internal_error"
}

// details lists per-field messages for payload validation failures.
func details(err error) map[string][]string {
	var pe *registry.InvalidPayloadError
	if !errors.As(err, &pe) || len(pe.Errors) == 0 {
		return nil
	}
	out := make(map[string][]string, len(pe.Errors))
	for _, fe := range pe.Errors {
		out[fe.Field] = append(out[fe.Field], fe.Message)
	}
	return out
}
