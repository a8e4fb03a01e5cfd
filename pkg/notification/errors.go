package notification

import "errors"

var (
	// ErrRecordNotFound is returned when no record matches the lookup.
	ErrRecordNotFound = errors.New("notification record not found")

	// ErrDuplicateKey is returned when a record id or (type, idempotency key) pair already exists.
	ErrDuplicateKey = errors.New("notification record already exists")

	// ErrLeaseLost is returned when a worker tries to finalize a record it no longer holds.
	ErrLeaseLost = errors.New("claim lease lost or never held")

	// ErrInvalidTransition is returned for status changes outside the lifecycle graph.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrRecordInFlight is returned when an operator action targets a record under a live lease.
	ErrRecordInFlight = errors.New("record is being delivered")

	// ErrNotClaimable is returned when a record exists but is not eligible for claiming.
	ErrNotClaimable = errors.New("record is not claimable")

	// ErrInvalidPriority is returned for unknown priority tiers.
	ErrInvalidPriority = errors.New("invalid priority")
)
