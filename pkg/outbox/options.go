package outbox

import (
	"log/slog"
	"strings"
	"time"
)

// Option configures a Writer.
type Option func(*Writer)

// WithConfig applies enqueue defaults from configuration.
func WithConfig(cfg Config) Option {
	return func(w *Writer) {
		WithMaxAttempts(cfg.MaxAttempts)(w)
		WithFallbackLocale(cfg.FallbackLocale)(w)
	}
}

// WithMaxAttempts sets the attempts budget for records that do not override it.
func WithMaxAttempts(n int) Option {
	return func(w *Writer) {
		if n > 0 {
			w.maxAttempts = n
		}
	}
}

// WithFallbackLocale sets the last step of the locale cascade.
func WithFallbackLocale(tag string) Option {
	return func(w *Writer) {
		if strings.TrimSpace(tag) != "" {
			w.fallbackLocale = tag
		}
	}
}

func WithTenantLocaleLookup(l TenantLocaleLookup) Option {
	return func(w *Writer) {
		w.tenants = l
	}
}

func WithUserLocaleLookup(l UserLocaleLookup) Option {
	return func(w *Writer) {
		w.users = l
	}
}

// WithProcessor enables Options.ProcessImmediately. It is usually the dispatcher.
func WithProcessor(p Processor) Option {
	return func(w *Writer) {
		w.processor = p
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(w *Writer) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithClock overrides time.Now for created_at and next_attempt_at.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) {
		if now != nil {
			w.now = now
		}
	}
}
