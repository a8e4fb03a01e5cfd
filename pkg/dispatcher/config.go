package dispatcher

import (
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/dmitrymomot/notifykit/pkg/backoff"
	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// Config holds the dispatcher policy. Every value is externally supplied;
// zero values fall back to DefaultConfig.
type Config struct {
	Workers         int           `env:"NOTIFY_WORKERS" envDefault:"4"`
	PollInterval    time.Duration `env:"NOTIFY_POLL_INTERVAL" envDefault:"1s"`
	// LeaseDuration must exceed RenderTimeout+SendTimeout+FinalizeTimeout.
	LeaseDuration   time.Duration `env:"NOTIFY_LEASE_DURATION" envDefault:"5m"`
	ClaimBatchSize  int           `env:"NOTIFY_CLAIM_BATCH_SIZE" envDefault:"10"`
	RenderTimeout   time.Duration `env:"NOTIFY_RENDER_TIMEOUT" envDefault:"5s"`
	SendTimeout     time.Duration `env:"NOTIFY_SEND_TIMEOUT" envDefault:"30s"`
	FinalizeTimeout time.Duration `env:"NOTIFY_FINALIZE_TIMEOUT" envDefault:"10s"`
	BackoffBase     time.Duration `env:"NOTIFY_BACKOFF_BASE" envDefault:"30s"`
	BackoffMax      time.Duration `env:"NOTIFY_BACKOFF_MAX" envDefault:"1h"`
	BackoffJitter   float64       `env:"NOTIFY_BACKOFF_JITTER" envDefault:"0.1"`
	ShutdownTimeout time.Duration `env:"NOTIFY_SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// RateLimits caps sends per second per channel, e.g. "sms:5,email:50".
	RateLimits map[string]float64 `env:"NOTIFY_RATE_LIMITS" envKeyValSeparator:":"`
	RateBurst  int                `env:"NOTIFY_RATE_BURST" envDefault:"1"`
}

// DefaultConfig mirrors the envDefault tags for callers that build Config in code.
func DefaultConfig() Config {
	return Config{
		Workers:         4,
		PollInterval:    time.Second,
		LeaseDuration:   5 * time.Minute,
		ClaimBatchSize:  10,
		RenderTimeout:   5 * time.Second,
		SendTimeout:     30 * time.Second,
		FinalizeTimeout: 10 * time.Second,
		BackoffBase:     30 * time.Second,
		BackoffMax:      time.Hour,
		BackoffJitter:   0.1,
		ShutdownTimeout: 30 * time.Second,
		RateBurst:       1,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.LeaseDuration <= 0 {
		c.LeaseDuration = def.LeaseDuration
	}
	if c.ClaimBatchSize <= 0 {
		c.ClaimBatchSize = def.ClaimBatchSize
	}
	if c.RenderTimeout <= 0 {
		c.RenderTimeout = def.RenderTimeout
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = def.SendTimeout
	}
	if c.FinalizeTimeout <= 0 {
		c.FinalizeTimeout = def.FinalizeTimeout
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = def.BackoffBase
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = def.BackoffMax
	}
	if c.BackoffJitter < 0 {
		c.BackoffJitter = 0
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
	if c.RateBurst <= 0 {
		c.RateBurst = def.RateBurst
	}
	return c
}

// deliveryBudget is the longest a single record may hold its claim.
func (c Config) deliveryBudget() time.Duration {
	return c.RenderTimeout + c.SendTimeout + c.FinalizeTimeout
}

// validate rejects a lease that could expire under a delivery that stays
// within its timeouts.
func (c Config) validate() error {
	if c.LeaseDuration <= c.deliveryBudget() {
		return fmt.Errorf("%w: lease %s, budget %s", ErrLeaseTooShort, c.LeaseDuration, c.deliveryBudget())
	}
	return nil
}

// Backoff builds the retry strategy described by the config.
func (c Config) Backoff() backoff.Strategy {
	return backoff.Exponential{
		InitialInterval: c.BackoffBase,
		MaxInterval:     c.BackoffMax,
		Multiplier:      2,
		JitterFactor:    c.BackoffJitter,
	}
}

func (c Config) limiters() map[notification.Channel]*rate.Limiter {
	out := make(map[notification.Channel]*rate.Limiter, len(c.RateLimits))
	for ch, perSecond := range c.RateLimits {
		if perSecond > 0 {
			out[notification.Channel(ch)] = rate.NewLimiter(rate.Limit(perSecond), c.RateBurst)
		}
	}
	return out
}
