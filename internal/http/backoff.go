package http

import (
	"time"

	"github.com/cecil-the-coder/resource-loader-kit/pkg/ratelimit"
)

// BackoffConfig configures the delay between retries of one request
type BackoffConfig struct {
	BaseDelay  time.Duration // delay before the first retry, before scaling
	MaxDelay   time.Duration // cap for computed and server requested delays; zero means none
	Multiplier float64
}

// DefaultBackoffConfig returns the backoff used when the client config leaves it unset
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		BaseDelay:  time.Second,
		MaxDelay:   60 * time.Second,
		Multiplier: 2.0,
	}
}

// CalculateBackoff returns BaseDelay * Multiplier * 2^(attempt-1), capped at
// MaxDelay. attempt is 1-indexed; zero or negative returns BaseDelay.
func CalculateBackoff(config BackoffConfig, attempt int) time.Duration {
	if attempt <= 0 {
		return config.BaseDelay
	}
	if attempt > 30 {
		attempt = 30
	}

	multiplier := float64(int(1)<<uint(attempt-1)) * config.Multiplier // #nosec G115 -- attempt is capped at 30
	return config.capped(time.Duration(float64(config.BaseDelay) * multiplier))
}

// RetryDelay returns the delay before retry attempt. A parseable Retry-After
// value wins over the computed backoff; both are capped at MaxDelay.
func RetryDelay(config BackoffConfig, attempt int, retryAfter string, now time.Time) time.Duration {
	if retryAfter != "" {
		if d, ok := ratelimit.ParseRetryAfter(retryAfter, now); ok {
			return config.capped(d)
		}
	}
	return CalculateBackoff(config, attempt)
}

func (c BackoffConfig) capped(d time.Duration) time.Duration {
	if c.MaxDelay > 0 && d > c.MaxDelay {
		return c.MaxDelay
	}
	return d
}
