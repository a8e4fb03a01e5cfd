package sqlitestore

import (
	"context"
	"errors"
)

var (
	ErrNilRecord = errors.New("sqlitestore: nil record")
	ErrEmptyDSN  = errors.New("sqlitestore: empty data source name")
)

// logger is the subset of *slog.Logger migrations write to.
type logger interface {
	InfoContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)
}
