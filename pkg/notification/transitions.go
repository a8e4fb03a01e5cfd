package notification

import "fmt"

// transitions is the lifecycle graph keyed [from][to].
// claimed -> pending only happens when a lease expires and the record is reclaimed.
// pending/failed_retryable -> dead is the operator dead-letter path.
var transitions = map[Status]map[Status]struct{}{
	StatusPending: {
		StatusClaimed: {},
		StatusDead:    {},
	},
	StatusClaimed: {
		StatusSent:            {},
		StatusFailedRetryable: {},
		StatusDead:            {},
		StatusPending:         {},
	},
	StatusFailedRetryable: {
		StatusPending: {},
		StatusDead:    {},
	},
}

// CanTransition reports whether a record may move from one status to another.
func CanTransition(from, to Status) bool {
	next, ok := transitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// CheckTransition returns ErrInvalidTransition wrapped with both states when the move is not allowed.
func CheckTransition(from, to Status) error {
	if CanTransition(from, to) {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// CancelReason formats the last_error stored when an operator dead-letters a record.
func CancelReason(reason string) string {
	if reason == "" {
		return "cancelled"
	}
	return "cancelled: " + reason
}
