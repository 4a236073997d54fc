package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/cecil-the-coder/resource-loader-kit/pkg/types"
)

// PriorityLimiter is a client-side token bucket for remote fetches.
// Requests at PriorityImmediate bypass it; every other priority takes a token.
type PriorityLimiter struct {
	limiter *rate.Limiter
}

// NewPriorityLimiter allows requestsPerSecond on average with bursts of burst.
// A non-positive rate disables limiting.
func NewPriorityLimiter(requestsPerSecond float64, burst int) *PriorityLimiter {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	if burst < 1 {
		burst = 1
	}
	return &PriorityLimiter{limiter: rate.NewLimiter(limit, burst)}
}

// NewPerMinuteLimiter allows requestsPerMinute with an equal burst.
func NewPerMinuteLimiter(requestsPerMinute int) *PriorityLimiter {
	if requestsPerMinute <= 0 {
		return NewPriorityLimiter(0, 1)
	}
	return &PriorityLimiter{
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), requestsPerMinute),
	}
}

// Wait blocks until a request at priority may proceed or ctx is done.
func (l *PriorityLimiter) Wait(ctx context.Context, priority types.Priority) error {
	if l == nil || priority == types.PriorityImmediate {
		return ctx.Err()
	}
	return l.limiter.Wait(ctx)
}

// Allow reports whether a request at priority may proceed now without waiting.
func (l *PriorityLimiter) Allow(priority types.Priority) bool {
	if l == nil || priority == types.PriorityImmediate {
		return true
	}
	return l.limiter.Allow()
}

// Limit returns the configured average rate
func (l *PriorityLimiter) Limit() rate.Limit {
	return l.limiter.Limit()
}

// Burst returns the configured burst size
func (l *PriorityLimiter) Burst() int {
	return l.limiter.Burst()
}
