package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy calculates the delay before the next delivery attempt.
// Implementations must be safe for concurrent use.
type Strategy interface {
	// NextInterval returns the delay after the given number of failed attempts.
	// Attempt starts at 1.
	NextInterval(attempt int) time.Duration
}

// Exponential implements exponential backoff with jitter.
type Exponential struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	JitterFactor    float64
}

// NextInterval returns min(Initial * Multiplier^(attempt-1) * (1 ± Jitter), Max).
func (e Exponential) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	initial := e.InitialInterval
	if initial <= 0 {
		initial = time.Second
	}

	maxInterval := e.MaxInterval
	if maxInterval <= 0 {
		maxInterval = time.Hour
	}

	multiplier := e.Multiplier
	if multiplier <= 1 {
		multiplier = 2
	}

	interval := float64(initial) * math.Pow(multiplier, float64(attempt-1))

	// Zero jitter keeps the sequence deterministic.
	if e.JitterFactor > 0 {
		interval *= 1 + (rand.Float64()*2-1)*e.JitterFactor
	}

	if interval > float64(maxInterval) || math.IsInf(interval, 0) {
		interval = float64(maxInterval)
	}
	if interval < 0 {
		interval = 0
	}

	return time.Duration(interval)
}

// Linear increases the delay by Interval on each attempt, capped at MaxInterval.
type Linear struct {
	Interval    time.Duration
	MaxInterval time.Duration
}

func (l Linear) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	interval := l.Interval
	if interval <= 0 {
		interval = time.Second
	}

	maxInterval := l.MaxInterval
	if maxInterval <= 0 {
		maxInterval = time.Hour
	}

	delay := interval * time.Duration(attempt)
	if delay > maxInterval || delay < 0 {
		delay = maxInterval
	}
	return delay
}

// Fixed always waits Interval.
type Fixed struct {
	Interval time.Duration
}

func (f Fixed) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return f.Interval
}

// Default returns the strategy used when no policy is configured:
// 30s doubling per attempt with 10% jitter, capped at one hour.
func Default() Strategy {
	return Exponential{
		InitialInterval: 30 * time.Second,
		MaxInterval:     time.Hour,
		Multiplier:      2,
		JitterFactor:    0.1,
	}
}
