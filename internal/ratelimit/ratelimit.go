package ratelimit

import (
	"context"
	"time"
)

// Config interface for rate limiting configuration
type Config interface {
	GetBaseDelay() time.Duration
	GetMaxRetries() int
	GetBackoffFactor() float64
}

// Default pacing parameters applied when the config leaves a field unset.
const (
	DefaultBaseDelay     = 100 * time.Millisecond
	DefaultMaxRetries    = 3
	DefaultBackoffFactor = 2.0

	// maxBackoffDelay caps a single backoff sleep regardless of attempt count.
	maxBackoffDelay = 30 * time.Second
)

// Pacer spaces out calls to the remote provider. Callers invoke Wait before
// every provider call and again after a successful one, which smooths request
// bursts and keeps per-user quota consumption steady.
type Pacer struct {
	baseDelay     time.Duration
	maxRetries    int
	backoffFactor float64
}

// NewPacer creates a pacer from the given configuration, filling in defaults
// for unset values.
func NewPacer(cfg Config) *Pacer {
	p := &Pacer{
		baseDelay:     DefaultBaseDelay,
		maxRetries:    DefaultMaxRetries,
		backoffFactor: DefaultBackoffFactor,
	}
	if cfg == nil {
		return p
	}
	if d := cfg.GetBaseDelay(); d > 0 {
		p.baseDelay = d
	}
	if r := cfg.GetMaxRetries(); r >= 0 {
		p.maxRetries = r
	}
	if f := cfg.GetBackoffFactor(); f > 0 {
		p.backoffFactor = f
	}
	return p
}

// NewDisabledPacer returns a pacer that never sleeps but keeps the retry
// budget from cfg, so development runs skip pacing without losing retries.
func NewDisabledPacer(cfg Config) *Pacer {
	p := NewPacer(cfg)
	p.baseDelay = 0
	return p
}

// Wait sleeps for the base delay, returning early with the context error if
// the context is cancelled first.
func (p *Pacer) Wait(ctx context.Context) error {
	return p.Sleep(ctx, p.baseDelay)
}

// Sleep sleeps for the given duration, honoring context cancellation.
func (p *Pacer) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// BackoffDelay calculates the delay before retry number attempt (1-based):
// baseDelay * backoffFactor^(attempt-1), capped at maxBackoffDelay. A
// disabled pacer reports zero for every attempt.
func (p *Pacer) BackoffDelay(attempt int) time.Duration {
	multiplier := 1.0
	for i := 1; i < attempt; i++ {
		multiplier *= p.backoffFactor
	}

	delay := time.Duration(float64(p.baseDelay) * multiplier)
	if delay > maxBackoffDelay {
		delay = maxBackoffDelay
	}
	return delay
}

// MaxRetries returns the number of retries allowed after the initial attempt.
func (p *Pacer) MaxRetries() int {
	return p.maxRetries
}

// BaseDelay returns the configured base delay.
func (p *Pacer) BaseDelay() time.Duration {
	return p.baseDelay
}
