package dispatcher

import (
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/dmitrymomot/notifykit/pkg/backoff"
	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithConfig replaces the whole policy. Zero fields keep their defaults.
// Options listed after it override individual fields.
func WithConfig(cfg Config) Option {
	return func(d *Dispatcher) {
		d.cfg = cfg.withDefaults()
	}
}

// WithWorkers sets the number of independent worker loops.
func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.cfg.Workers = n
		}
	}
}

// WithPollInterval sets the idle sleep between empty claims.
func WithPollInterval(interval time.Duration) Option {
	return func(d *Dispatcher) {
		if interval > 0 {
			d.cfg.PollInterval = interval
		}
	}
}

// WithBackoff overrides the retry delay strategy built from Config.
func WithBackoff(s backoff.Strategy) Option {
	return func(d *Dispatcher) {
		if s != nil {
			d.backoff = s
		}
	}
}

// WithRateLimit throttles sends on one channel. It takes precedence over
// Config.RateLimits for that channel.
func WithRateLimit(ch notification.Channel, limit rate.Limit, burst int) Option {
	return func(d *Dispatcher) {
		if burst <= 0 {
			burst = 1
		}
		d.limiters[ch] = rate.NewLimiter(limit, burst)
	}
}

// WithHook registers an observer called after each finalized record.
func WithHook(h Hook) Option {
	return func(d *Dispatcher) {
		if h != nil {
			d.hooks = append(d.hooks, h)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithClock overrides time.Now for retry scheduling and sent timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}
