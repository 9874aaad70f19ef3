package lister

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/kurihiro0119/classroom-sync/internal/errors"
)

// RateLimiter paces calls against the hosting API quota
type RateLimiter interface {
	// Wait blocks until the next call may be made. It returns a
	// RATE_LIMITED error instead of blocking past the configured maximum.
	Wait(ctx context.Context) error
	// UpdateLimit records the quota reported by the last response
	UpdateLimit(remaining int, resetTime time.Time)
	// Remaining returns the last known quota, -1 when unknown
	Remaining() (int, time.Time)
}

// RateLimiterOptions configures NewRateLimiter
type RateLimiterOptions struct {
	// Reserve is the number of calls kept back for other tools sharing the token
	Reserve int
	// MaxWait is the longest Wait blocks for a quota reset
	MaxWait time.Duration
	// MinInterval spaces consecutive calls
	MinInterval time.Duration
}

// DefaultRateLimiterOptions are used by NewGitHubLister
var DefaultRateLimiterOptions = RateLimiterOptions{
	Reserve:     10,
	MaxWait:     5 * time.Minute,
	MinInterval: 100 * time.Millisecond,
}

// quotaLimiter implements RateLimiter from the rate headers of each response
type quotaLimiter struct {
	mu        sync.Mutex
	opts      RateLimiterOptions
	remaining int
	resetTime time.Time
	nextCall  time.Time
	logger    *zap.Logger
}

// NewRateLimiter creates a new rate limiter. The quota is unknown until the
// first UpdateLimit.
func NewRateLimiter(opts RateLimiterOptions, logger *zap.Logger) RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &quotaLimiter{
		opts:      opts,
		remaining: -1,
		logger:    logger,
	}
}

func (r *quotaLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	now := time.Now()
	var wait time.Duration

	if r.remaining >= 0 && r.remaining <= r.opts.Reserve && r.resetTime.After(now) {
		wait = r.resetTime.Sub(now)
		if wait > r.opts.MaxWait {
			remaining, reset := r.remaining, r.resetTime
			r.mu.Unlock()
			return apperrors.NewRateLimitedError(
				fmt.Sprintf("API quota exhausted (%d left) until %s", remaining, reset.Local().Format(time.Kitchen)), nil)
		}
		r.logger.Warn("rate limit low, waiting for reset",
			zap.Int("remaining", r.remaining),
			zap.Duration("wait", wait.Round(time.Second)),
		)
		// the quota is unknown again once the window has rolled over
		r.remaining = -1
	} else if r.nextCall.After(now) {
		wait = r.nextCall.Sub(now)
	}

	r.nextCall = now.Add(wait + r.opts.MinInterval)
	r.mu.Unlock()

	return sleep(ctx, wait)
}

func (r *quotaLimiter) UpdateLimit(remaining int, resetTime time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remaining = remaining
	r.resetTime = resetTime
}

func (r *quotaLimiter) Remaining() (int, time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remaining, r.resetTime
}

func sleep(ctx context.Context, d time.Duration) error {
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
