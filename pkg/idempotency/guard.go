package idempotency

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// MaxKeyLength bounds idempotency keys; it matches the column width.
const MaxKeyLength = 255

// Store inserts a record unless one with the same (type, idempotency key)
// already exists. It must be atomic: backed by a unique index, never by a
// read followed by a write.
type Store interface {
	// InsertIfAbsent returns (nil, nil) when rec was written and
	// (existing, nil) when the key was already taken.
	InsertIfAbsent(ctx context.Context, rec *notification.Record) (*notification.Record, error)
}

// Reservation is the outcome of CheckAndReserve.
type Reservation struct {
	// Reserved is true when the caller owns the key (or no key was given).
	Reserved bool
	// Persisted is true when rec is already durably written.
	Persisted bool
	// Existing is the record that holds the key when Reserved is false.
	Existing *notification.Record
}

// NormalizeKey trims key and enforces MaxKeyLength. A blank key means "no dedupe".
func NormalizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if utf8.RuneCountInString(key) > MaxKeyLength {
		return "", fmt.Errorf("%w: longer than %d characters", ErrInvalidKey, MaxKeyLength)
	}
	return key, nil
}

// CheckAndReserve claims rec's idempotency key.
//
// Without a key nothing is written and the caller persists rec itself.
// With a key the record is its own placeholder: it is inserted through
// store.InsertIfAbsent, so reservation and persistence are a single atomic
// write and two concurrent callers can never both create a row.
func CheckAndReserve(ctx context.Context, store Store, rec *notification.Record) (Reservation, error) {
	if rec == nil {
		return Reservation{}, ErrNilRecord
	}
	if rec.IdempotencyKey == nil || *rec.IdempotencyKey == "" {
		rec.IdempotencyKey = nil
		return Reservation{Reserved: true}, nil
	}

	key, err := NormalizeKey(*rec.IdempotencyKey)
	if err != nil {
		return Reservation{}, err
	}
	if key == "" {
		rec.IdempotencyKey = nil
		return Reservation{Reserved: true}, nil
	}
	rec.IdempotencyKey = &key

	existing, err := store.InsertIfAbsent(ctx, rec)
	if err != nil {
		return Reservation{}, fmt.Errorf("%w: %w", ErrReserveFailed, err)
	}
	if existing != nil {
		return Reservation{Existing: existing}, nil
	}
	return Reservation{Reserved: true, Persisted: true}, nil
}
