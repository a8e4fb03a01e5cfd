package dispatcher

import "errors"

var (
	ErrRepositoryNil   = errors.New("dispatcher: repository cannot be nil")
	ErrRendererNil     = errors.New("dispatcher: renderer cannot be nil")
	ErrSenderNil       = errors.New("dispatcher: sender cannot be nil")
	ErrAlreadyStarted  = errors.New("dispatcher already started")
	ErrNotStarted      = errors.New("dispatcher not started")
	ErrShutdownTimeout = errors.New("dispatcher shutdown timed out with deliveries in flight")
	ErrLeaseTooShort   = errors.New("dispatcher: lease must exceed render, send and finalize timeouts combined")

	// ErrPanic wraps a recovered panic from a renderer or sender.
	ErrPanic = errors.New("panic during delivery")
	// ErrTimeout marks a render or send call that exceeded its deadline.
	ErrTimeout = errors.New("delivery step timed out")
	// ErrLeaseExpired means too little of the claim lease was left to finish a
	// delivery, so the record was handed back instead of sent.
	ErrLeaseExpired = errors.New("claim lease expired before delivery")
	// ErrRateLimited is returned when the channel limiter cannot grant a token in time.
	ErrRateLimited = errors.New("channel rate limit exceeded")
)
