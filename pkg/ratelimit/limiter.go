// Package ratelimit provides the process-wide token bucket that guards
// calls to the embedding provider (spec §5: "rate-limited by a
// token-bucket shared across the process"). Its Config/Check-style
// surface is grounded on pkg/ratelimit's fixed-window-counter package,
// reworked here into a true token bucket per §9's re-architecture
// direction.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Config configures the shared token bucket.
type Config struct {
	// RequestsPerSecond is the sustained refill rate. Default: 60.
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"`
	// Burst is the maximum number of requests admitted instantaneously.
	// Default: equal to RequestsPerSecond.
	Burst int `yaml:"burst,omitempty"`
}

func (c *Config) SetDefaults() {
	if c.RequestsPerSecond == 0 {
		c.RequestsPerSecond = 60
	}
	if c.Burst == 0 {
		c.Burst = int(c.RequestsPerSecond)
	}
}

func (c *Config) Validate() error {
	if c.RequestsPerSecond <= 0 {
		return fmt.Errorf("ratelimit: requests_per_second must be positive")
	}
	if c.Burst <= 0 {
		return fmt.Errorf("ratelimit: burst must be positive")
	}
	return nil
}

// Limiter is a single process-wide token bucket. All embedding provider
// calls across all concurrent ingestion jobs share one instance (§5
// "shared across the process") — callers must not construct one Limiter
// per job.
type Limiter struct {
	bucket *rate.Limiter
	onWait func()
}

// New constructs a Limiter from Config. onThrottle, if non-nil, is
// invoked once whenever Wait actually has to block (used to drive the
// observability throttle-count metric); it is never invoked on the fast
// path where tokens are already available.
func New(cfg Config, onThrottle func()) *Limiter {
	cfg.SetDefaults()
	return &Limiter{
		bucket: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		onWait: onThrottle,
	}
}

// Wait blocks until a token is available or ctx is cancelled, honoring
// cooperative cancellation per spec §5.
func (l *Limiter) Wait(ctx context.Context) error {
	if l.bucket.Allow() {
		return nil
	}
	if l.onWait != nil {
		l.onWait()
	}
	if err := l.bucket.Wait(ctx); err != nil {
		return fmt.Errorf("ratelimit: %w", err)
	}
	return nil
}

// Allow reports whether a request may proceed immediately, without
// blocking — used by callers that want to fail fast rather than queue.
func (l *Limiter) Allow() bool {
	return l.bucket.Allow()
}

// Reserve returns the duration the caller must wait before proceeding,
// useful for computing an explicit backoff hint.
func (l *Limiter) Reserve() time.Duration {
	r := l.bucket.Reserve()
	if !r.OK() {
		return 0
	}
	delay := r.Delay()
	r.Cancel()
	return delay
}
