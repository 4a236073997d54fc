package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HeaderParser implements Parser for the common rate limit header families:
//   - RateLimit-Limit / X-RateLimit-Limit: requests allowed per window
//   - RateLimit-Remaining / X-RateLimit-Remaining: requests left in the window
//   - RateLimit-Reset / X-RateLimit-Reset: seconds until reset, a Unix
//     timestamp, or a Go duration string ("1m30s")
//   - Retry-After: delay in seconds or an HTTP date
//   - X-Request-Id: server request identifier
type HeaderParser struct {
	now func() time.Time
}

// NewHeaderParser creates a parser for the standard rate limit headers.
func NewHeaderParser() *HeaderParser {
	return &HeaderParser{now: time.Now}
}

// Parse extracts rate limit information from response headers.
func (p *HeaderParser) Parse(headers http.Header, host string) (*Info, error) {
	now := p.now()
	info := &Info{
		Host:      host,
		Timestamp: now,
	}
	found := false

	if limit := first(headers, "RateLimit-Limit", "X-RateLimit-Limit"); limit != "" {
		val, err := strconv.Atoi(limit)
		if err != nil {
			return nil, fmt.Errorf("invalid rate limit header %q: %w", limit, err)
		}
		info.RequestsLimit = val
		found = true
	}

	if remaining := first(headers, "RateLimit-Remaining", "X-RateLimit-Remaining"); remaining != "" {
		val, err := strconv.Atoi(remaining)
		if err != nil {
			return nil, fmt.Errorf("invalid rate limit remaining header %q: %w", remaining, err)
		}
		info.RequestsRemaining = val
		found = true
	}

	if reset := first(headers, "RateLimit-Reset", "X-RateLimit-Reset"); reset != "" {
		at, err := parseReset(reset, now)
		if err != nil {
			return nil, err
		}
		info.RequestsReset = at
		found = true
	}

	if retryAfter := headers.Get("Retry-After"); retryAfter != "" {
		if d, ok := ParseRetryAfter(retryAfter, now); ok {
			info.RetryAfter = d
			found = true
		}
	}

	if requestID := headers.Get("X-Request-Id"); requestID != "" {
		info.RequestID = requestID
	}

	if !found {
		return nil, nil
	}
	return info, nil
}

// Name returns "headers" as the scheme identifier.
func (p *HeaderParser) Name() string {
	return "headers"
}

// unixThreshold separates delta-seconds from absolute Unix timestamps in reset headers
const unixThreshold = 1_000_000_000

func parseReset(value string, now time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		if n >= unixThreshold {
			return time.Unix(n, 0), nil
		}
		return now.Add(time.Duration(n) * time.Second), nil
	}
	if d, err := time.ParseDuration(value); err == nil {
		return now.Add(d), nil
	}
	return time.Time{}, fmt.Errorf("invalid rate limit reset header %q", value)
}

// ParseRetryAfter parses a Retry-After value given either as delay seconds or
// as an HTTP date. Dates in the past yield zero.
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d, true
		}
		return 0, true
	}
	return 0, false
}

func first(headers http.Header, keys ...string) string {
	for _, key := range keys {
		if v := headers.Get(key); v != "" {
			return v
		}
	}
	return ""
}

// FormatDuration formats a duration string in a human-readable way.
// This is useful for displaying reset times.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
