// Package ratelimit provides a token-bucket limiter host service
// handlers can use to cap their own outbound call rate, independent of
// the engine's own ResourceLimiter (which bounds a single execution's
// resource use, not a shared external rate).
package ratelimit

import (
	"sync"
	"time"

	"github.com/creasty/defaults"
)

// Config is a token bucket's tunable shape: maxRequests tokens refill
// every windowSizeMs, with burstAllowed letting the bucket briefly
// exceed maxRequests by that many extra tokens.
type Config struct {
	MaxRequests  int   `yaml:"maxRequests" default:"100" validate:"gt=0"`
	WindowSizeMs int64 `yaml:"windowSizeMs" default:"60000" validate:"gt=0"`
	BurstAllowed int   `yaml:"burstAllowed" default:"0" validate:"gte=0"`
}

// Decision is the outcome of a TokenBucket.Allow call.
type Decision struct {
	Allowed          bool
	RemainingRequests int
	ResetTimeMs      int64
	RetryAfterMs      int64 // only meaningful when !Allowed
}

// TokenBucket is a single mutex-guarded counter refilled on a fixed
// window. No third-party rate-limiting library appears anywhere in the
// retrieved pack, so this is implemented directly on stdlib time/sync —
// a token bucket is a handful of integer/time comparisons behind a
// mutex and doesn't need a dependency to express correctly.
type TokenBucket struct {
	mu           sync.Mutex
	cfg          Config
	tokens       int
	windowStart  time.Time
	now          func() time.Time
}

// DefaultConfig applies this package's struct-tag defaults (the same
// creasty/defaults convention runtime/limiter.go uses for LimitConfig).
func DefaultConfig() Config {
	cfg := Config{}
	_ = defaults.Set(&cfg)
	return cfg
}

// New constructs a TokenBucket starting full. Its first window opens
// at the first Allow call, read from the bucket's own clock.
func New(cfg Config) *TokenBucket {
	return &TokenBucket{
		cfg:    cfg,
		tokens: cfg.MaxRequests + cfg.BurstAllowed,
		now:    time.Now,
	}
}

// Allow consumes one token if available, refilling the bucket first if
// the current window has elapsed.
func (b *TokenBucket) Allow() Decision {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if b.windowStart.IsZero() {
		b.windowStart = now
	}
	windowMs := time.Duration(b.cfg.WindowSizeMs) * time.Millisecond
	elapsed := now.Sub(b.windowStart)
	if elapsed >= windowMs {
		b.tokens = b.cfg.MaxRequests + b.cfg.BurstAllowed
		b.windowStart = now
		elapsed = 0
	}
	resetAt := b.windowStart.Add(windowMs)

	if b.tokens <= 0 {
		return Decision{
			Allowed:     false,
			ResetTimeMs: resetAt.UnixMilli(),
			RetryAfterMs: resetAt.Sub(now).Milliseconds(),
		}
	}

	b.tokens--
	return Decision{
		Allowed:           true,
		RemainingRequests: b.tokens,
		ResetTimeMs:       resetAt.UnixMilli(),
	}
}
