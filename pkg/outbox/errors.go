package outbox

import (
	"errors"

	"github.com/dmitrymomot/notifykit/pkg/idempotency"
	"github.com/dmitrymomot/notifykit/pkg/registry"
)

var (
	ErrRegistryNil   = errors.New("outbox: registry cannot be nil")
	ErrRepositoryNil = errors.New("outbox: repository cannot be nil")

	// Validation errors. Nothing is written when one of these is returned.
	ErrUnknownNotificationType = registry.ErrUnknownNotificationType
	ErrInvalidPayload          = registry.ErrInvalidPayload
	ErrUnsupportedChannel      = errors.New("channel not allowed for notification type")
	ErrInvalidRecipient        = errors.New("invalid recipient for channel")
	ErrInvalidIdempotencyKey   = idempotency.ErrInvalidKey
	ErrInvalidMaxAttempts      = errors.New("max attempts must be positive")

	// ErrImmediateInTransaction rejects processImmediately on a transaction-bound
	// writer: the row is invisible to the dispatcher until the caller commits.
	ErrImmediateInTransaction = errors.New("cannot process immediately inside a transaction")
	// ErrNoProcessor is returned for processImmediately when no dispatcher is wired.
	ErrNoProcessor = errors.New("immediate processing is not configured")

	// ErrPersist wraps store failures while writing the record.
	ErrPersist = errors.New("failed to persist notification")
)

// IsValidationError reports whether err was caused by the request itself
// rather than by infrastructure.
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrUnknownNotificationType,
		ErrInvalidPayload,
		ErrUnsupportedChannel,
		ErrInvalidRecipient,
		ErrInvalidIdempotencyKey,
		ErrInvalidMaxAttempts,
		ErrImmediateInTransaction,
		ErrNoProcessor,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
