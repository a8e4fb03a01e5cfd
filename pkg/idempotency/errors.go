package idempotency

import "errors"

var (
	ErrInvalidKey    = errors.New("invalid idempotency key")
	ErrReserveFailed = errors.New("failed to reserve idempotency key")
	ErrNilRecord     = errors.New("record is nil")
)
