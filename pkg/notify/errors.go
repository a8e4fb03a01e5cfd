package notify

import "errors"

var (
	ErrWriterNil     = errors.New("notify: outbox writer cannot be nil")
	ErrRepositoryNil = errors.New("notify: repository cannot be nil")
)
