package core

import (
	"context"
	"math/rand"
	"time"
)

// RetryPolicy is the single retry/backoff abstraction shared by the resolver
// and the tunnel supervisor. The old scripts each carried their own loop.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts (default 3).
	MaxAttempts int
	// InitialDelay is the delay after the first failed attempt (default 1s).
	InitialDelay time.Duration
	// Multiplier scales the delay after each attempt (default 2).
	Multiplier float64
	// Jitter adds up to this fraction of the delay randomly (0 disables).
	Jitter float64
}

// PolicyFromConfig builds a RetryPolicy from YAML config, applying defaults.
func PolicyFromConfig(cfg RetryConfig) RetryPolicy {
	p := RetryPolicy{
		MaxAttempts:  cfg.MaxAttempts,
		InitialDelay: cfg.InitialDelay.Std(),
		Multiplier:   cfg.Multiplier,
		Jitter:       cfg.Jitter,
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = time.Second
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 2
	}
	return p
}

// Do runs fn until it succeeds, attempts are exhausted, or ctx is cancelled.
// The last error is returned. fn's attempt argument is 1-based.
func (p RetryPolicy) Do(ctx context.Context, fn func(attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	delay := p.InitialDelay
	if delay <= 0 {
		delay = time.Second
	}
	mult := p.Multiplier
	if mult <= 0 {
		mult = 2
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(attempt); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		d := delay
		if p.Jitter > 0 {
			d += time.Duration(rand.Float64() * p.Jitter * float64(delay))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
		}
		delay = time.Duration(float64(delay) * mult)
	}
	return err
}
