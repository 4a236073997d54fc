// Package ratelimit provides rate limiting for remote resource fetches.
// It combines a client-side token bucket that honors fetch priorities with a
// tracker of the limits that servers report in their response headers.
package ratelimit

import (
	"net/http"
	"sync"
	"time"
)

// Info contains rate limit information reported by one remote host.
type Info struct {
	// Host is the remote host the limits apply to (e.g., "cdn.example.com")
	Host string `json:"host"`

	// Timestamp is when this rate limit information was captured
	Timestamp time.Time `json:"timestamp"`

	// RequestsLimit is the maximum number of requests allowed in the current window
	RequestsLimit int `json:"requests_limit"`

	// RequestsRemaining is the number of requests remaining in the current window
	RequestsRemaining int `json:"requests_remaining"`

	// RequestsReset is when the request limit counter will reset
	RequestsReset time.Time `json:"requests_reset"`

	// RequestID is the server's identifier for the response that carried this info
	RequestID string `json:"request_id,omitempty"`

	// RetryAfter indicates how long to wait before retrying (from Retry-After header)
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// Parser extracts rate limit information from HTTP response headers.
type Parser interface {
	// Parse extracts rate limit information for host from the response headers.
	// It returns nil when the headers carry no rate limit information.
	Parse(headers http.Header, host string) (*Info, error)

	// Name identifies the header scheme, for logging.
	Name() string
}

// Tracker provides thread-safe tracking of rate limit information across hosts.
type Tracker struct {
	mu sync.RWMutex

	// info maps host names to their current rate limit information
	info map[string]*Info

	lastUpdate time.Time
}

// NewTracker creates a new Tracker instance for tracking rate limits.
func NewTracker() *Tracker {
	return &Tracker{
		info: make(map[string]*Info),
	}
}

// Update replaces the rate limit information for info.Host. Nil is ignored.
func (t *Tracker) Update(info *Info) {
	if info == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if info.Timestamp.IsZero() {
		info.Timestamp = time.Now()
	}
	t.info[info.Host] = info
	t.lastUpdate = time.Now()
}

// Get retrieves the rate limit information for a host.
func (t *Tracker) Get(host string) (*Info, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	info, exists := t.info[host]
	return info, exists
}

// LastUpdate returns when the tracker last received information
func (t *Tracker) LastUpdate() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastUpdate
}

// CanMakeRequest reports whether a request to host is likely to be accepted.
func (t *Tracker) CanMakeRequest(host string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	info, exists := t.info[host]
	if !exists {
		// No rate limit info available, assume we can make the request
		return true
	}

	now := time.Now()
	if info.RetryAfter > 0 && now.Before(info.Timestamp.Add(info.RetryAfter)) {
		return false
	}
	if !info.RequestsReset.IsZero() && now.After(info.RequestsReset) {
		return true
	}
	return !(info.RequestsLimit > 0 && info.RequestsRemaining <= 0)
}

// GetWaitTime returns how long to wait before the next request to host.
// If no waiting is required, it returns 0.
func (t *Tracker) GetWaitTime(host string) time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()

	info, exists := t.info[host]
	if !exists {
		return 0
	}

	now := time.Now()
	if info.RetryAfter > 0 {
		if wait := info.Timestamp.Add(info.RetryAfter).Sub(now); wait > 0 {
			return wait
		}
		return 0
	}

	if info.RequestsLimit <= 0 || info.RequestsRemaining > 0 {
		return 0
	}
	if info.RequestsReset.IsZero() || !now.Before(info.RequestsReset) {
		return 0
	}
	return info.RequestsReset.Sub(now)
}

// ShouldThrottle reports whether at least threshold (0 to 1) of the request
// window for host has been consumed. Out of range thresholds default to 0.8.
func (t *Tracker) ShouldThrottle(host string, threshold float64) bool {
	if threshold < 0 || threshold > 1 {
		threshold = 0.8
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	info, exists := t.info[host]
	if !exists {
		return false
	}

	if info.RequestsLimit <= 0 || info.RequestsReset.IsZero() || !time.Now().Before(info.RequestsReset) {
		return false
	}
	usageRatio := 1.0 - (float64(info.RequestsRemaining) / float64(info.RequestsLimit))
	return usageRatio >= threshold
}
