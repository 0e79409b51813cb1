// Package retry wraps upstream operations with bounded exponential backoff
// and a separate cooldown for rate limiting.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/comic-archiver/internal/comics"
	"github.com/JakeFAU/comic-archiver/internal/metrics"
)

// Defaults mirror the archive's tolerance: three tries, 1s base, 1-3s of
// additive jitter and a ten minute cooldown on 429.
const (
	DefaultMaxAttempts       = 3
	DefaultBaseDelay         = time.Second
	DefaultJitterMin         = time.Second
	DefaultJitterMax         = 3 * time.Second
	DefaultRateLimitCooldown = 10 * time.Minute
)

// SleepFunc waits for d or until ctx ends.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Config tunes a Policy. Zero values fall back to the defaults above;
// DisableJitter removes the additive jitter.
type Config struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	JitterMin         time.Duration
	JitterMax         time.Duration
	DisableJitter     bool
	RateLimitCooldown time.Duration
}

// Policy implements exponential backoff with additive jitter.
type Policy struct {
	maxAttempts int
	baseDelay   time.Duration
	jitterMin   time.Duration
	jitterMax   time.Duration
	cooldown    time.Duration
	sleep       SleepFunc
	logger      *zap.Logger
}

// Option customizes a Policy.
type Option func(*Policy)

// WithSleep replaces the context-aware sleeper, mainly for tests.
func WithSleep(fn SleepFunc) Option {
	return func(p *Policy) {
		if fn != nil {
			p.sleep = fn
		}
	}
}

// WithLogger attaches a logger for retry and cooldown warnings.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Policy) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New builds a Policy from cfg.
func New(cfg Config, opts ...Option) *Policy {
	p := &Policy{
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		jitterMin:   cfg.JitterMin,
		jitterMax:   cfg.JitterMax,
		cooldown:    cfg.RateLimitCooldown,
		sleep:       Sleep,
		logger:      zap.NewNop(),
	}
	if p.maxAttempts <= 0 {
		p.maxAttempts = DefaultMaxAttempts
	}
	if p.baseDelay <= 0 {
		p.baseDelay = DefaultBaseDelay
	}
	if p.cooldown <= 0 {
		p.cooldown = DefaultRateLimitCooldown
	}
	switch {
	case cfg.DisableJitter:
		p.jitterMin, p.jitterMax = 0, 0
	case p.jitterMin <= 0 && p.jitterMax <= 0:
		p.jitterMin, p.jitterMax = DefaultJitterMin, DefaultJitterMax
	case p.jitterMax < p.jitterMin:
		p.jitterMax = p.jitterMin
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MaxAttempts returns the counted attempt budget.
func (p *Policy) MaxAttempts() int {
	return p.maxAttempts
}

// Cooldown returns the rate limit sleep.
func (p *Policy) Cooldown() time.Duration {
	return p.cooldown
}

// ShouldRetry decides whether the error is retryable after the given
// 1-based attempt. Rate limiting is handled separately by Do.
func (p *Policy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt >= p.maxAttempts {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return !comics.IsPermanent(err)
}

// Backoff returns base*2^(attempt-1) plus uniform jitter in [jitterMin, jitterMax).
func (p *Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	shift := attempt - 1
	if shift > 20 {
		shift = 20
	}
	return p.baseDelay*time.Duration(1<<shift) + p.randomJitter()
}

func (p *Policy) randomJitter() time.Duration {
	span := p.jitterMax - p.jitterMin
	if span <= 0 {
		return p.jitterMin
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(span)))
	if err != nil {
		return p.jitterMin + span/2
	}
	return p.jitterMin + time.Duration(n.Int64())
}

// Do runs op until it succeeds, fails permanently, or exhausts the attempt
// budget. A rate-limited failure sleeps the full cooldown and is not counted.
func (p *Policy) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	attempt := 1
	for {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s: %w", name, err)
		}

		if errors.Is(err, comics.ErrRateLimited) {
			metrics.ObserveRateLimit()
			p.logger.Warn("upstream rate limited, cooling down",
				zap.String("operation", name),
				zap.Duration("cooldown", p.cooldown),
				zap.Int("attempt", attempt),
			)
			if sleepErr := p.sleep(ctx, p.cooldown); sleepErr != nil {
				return fmt.Errorf("%s: cooldown interrupted: %w", name, sleepErr)
			}
			continue
		}

		if !p.ShouldRetry(err, attempt) {
			if attempt >= p.maxAttempts && !comics.IsPermanent(err) {
				return fmt.Errorf("%s: %w after %d attempts: %w", name, comics.ErrRetryExhausted, attempt, err)
			}
			return fmt.Errorf("%s: %w", name, err)
		}

		delay := p.Backoff(attempt)
		metrics.ObserveRetry("request")
		p.logger.Warn("upstream request failed, retrying",
			zap.String("operation", name),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if sleepErr := p.sleep(ctx, delay); sleepErr != nil {
			return fmt.Errorf("%s: backoff interrupted: %w", name, sleepErr)
		}
		attempt++
	}
}

// Sleep waits for d or returns the context error.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("sleep canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
