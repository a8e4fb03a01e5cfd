package channel

import (
	"errors"
	"fmt"
)

var (
	ErrNoSender         = errors.New("no sender registered for channel")
	ErrInvalidRecipient = errors.New("invalid recipient")
	ErrEmptyContent     = errors.New("nothing to send")
)

// Kind classifies a delivery failure.
type Kind int

const (
	// KindTransient failures may succeed on a later attempt.
	KindTransient Kind = iota
	// KindPermanent failures will not; the record is dead-lettered.
	KindPermanent
)

func (k Kind) String() string {
	if k == KindPermanent {
		return "permanent"
	}
	return "transient"
}

// Error is a classified delivery failure.
// Adapters wrap provider errors with Transient or Permanent; the dispatcher
// trusts that classification to choose between retry and dead-letter.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s delivery failure: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient marks err as retryable. Nil stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindTransient, Err: err}
}

// Permanent marks err as not retryable. Nil stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindPermanent, Err: err}
}

// IsPermanent reports whether err carries a permanent classification.
// Unclassified errors are not permanent.
func IsPermanent(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindPermanent
}
