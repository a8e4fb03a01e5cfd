package registry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrymomot/notifykit/pkg/validator"
)

var (
	// ErrUnknownNotificationType is returned when a type is not in the catalog.
	ErrUnknownNotificationType = errors.New("unknown notification type")

	// ErrInvalidPayload is matched by every *InvalidPayloadError.
	ErrInvalidPayload = errors.New("invalid notification payload")

	// ErrInvalidDescriptor is returned when the catalog itself is malformed.
	ErrInvalidDescriptor = errors.New("invalid notification descriptor")

	// ErrDuplicateType is returned when two descriptors share a type key.
	ErrDuplicateType = errors.New("duplicate notification type")

	// ErrFailedToParseCatalog is returned when a YAML catalog cannot be decoded.
	ErrFailedToParseCatalog = errors.New("failed to parse notification catalog")
)

// InvalidPayloadError lists the payload fields that violate the type's shape.
type InvalidPayloadError struct {
	Type   string
	Fields []string
	Errors validator.ValidationErrors
}

func (e *InvalidPayloadError) Error() string {
	return fmt.Sprintf("invalid payload for %q: fields [%s]: %s", e.Type, strings.Join(e.Fields, ", "), e.Errors.Error())
}

func (e *InvalidPayloadError) Is(target error) bool {
	return target == ErrInvalidPayload
}

func (e *InvalidPayloadError) Unwrap() error {
	return e.Errors
}
