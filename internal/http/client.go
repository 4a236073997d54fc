// Package http provides the HTTP client used by the remote strategies.
// It includes retry logic with exponential backoff, default headers,
// optional OAuth2 authentication and request metrics.
package http

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/oauth2"

	"github.com/cecil-the-coder/resource-loader-kit/internal/logger"
)

// DefaultUserAgent is sent when the configuration names none
const DefaultUserAgent = "resource-loader-kit/1.0"

// HTTPClient provides a reusable HTTP client with retry and metrics
type HTTPClient struct {
	client       *http.Client
	config       HTTPClientConfig
	metrics      *ClientMetrics
	requestCount int64
	successCount int64
	errorCount   int64
	retryCount   int64
	totalLatency int64 // Nanoseconds
	mu           sync.RWMutex
	backoff      BackoffConfig
	log          *slog.Logger
}

// HTTPClientConfig configures the HTTP client
type HTTPClientConfig struct {
	Timeout           time.Duration     `yaml:"timeout,omitempty"`
	MaxRetries        int               `yaml:"max_retries,omitempty"`
	BaseRetryDelay    time.Duration     `yaml:"base_retry_delay,omitempty"`
	MaxRetryDelay     time.Duration     `yaml:"max_retry_delay,omitempty"`
	BackoffMultiplier float64           `yaml:"backoff_multiplier,omitempty"`
	RetryableStatuses []int             `yaml:"retryable_statuses,omitempty"`
	Headers           map[string]string `yaml:"headers,omitempty"`
	UserAgent         string            `yaml:"user_agent,omitempty"`

	// TokenSource authenticates every request when set
	TokenSource oauth2.TokenSource `yaml:"-"`
	Logger      *slog.Logger       `yaml:"-"`

	// Transport configuration
	MaxIdleConns        int           `yaml:"max_idle_conns,omitempty"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host,omitempty"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host,omitempty"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout,omitempty"`
	TLSHandshakeTimeout time.Duration `yaml:"tls_handshake_timeout,omitempty"`

	// Transport replaces the pooled transport, mainly for tests
	Transport http.RoundTripper `yaml:"-"`
}

// ClientMetrics tracks HTTP client performance
type ClientMetrics struct {
	TotalRequests   int64         `json:"total_requests"`
	SuccessfulReqs  int64         `json:"successful_requests"`
	FailedReqs      int64         `json:"failed_requests"`
	AvgLatency      time.Duration `json:"avg_latency"`
	LastRequestTime time.Time     `json:"last_request_time"`
	RetryCount      int64         `json:"retry_count"`
	ResponsesByCode map[int]int64 `json:"responses_by_code"`
}

// NewHTTPClient creates a new HTTP client. Zero values take defaults; a
// negative MaxRetries disables retries.
func NewHTTPClient(config HTTPClientConfig) *HTTPClient {
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	} else if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.BaseRetryDelay == 0 {
		config.BaseRetryDelay = time.Second
	}
	if config.MaxRetryDelay == 0 {
		config.MaxRetryDelay = 60 * time.Second
	}
	if config.BackoffMultiplier == 0 {
		config.BackoffMultiplier = 2.0
	}
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 100
	}
	if config.MaxIdleConnsPerHost == 0 {
		config.MaxIdleConnsPerHost = 10
	}
	if config.IdleConnTimeout == 0 {
		config.IdleConnTimeout = 90 * time.Second
	}
	if config.TLSHandshakeTimeout == 0 {
		config.TLSHandshakeTimeout = 10 * time.Second
	}
	if len(config.RetryableStatuses) == 0 {
		config.RetryableStatuses = []int{
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		}
	}

	// Copy headers so the caller's map is never mutated
	headers := make(map[string]string, len(config.Headers)+1)
	for k, v := range config.Headers {
		headers[k] = v
	}
	if config.UserAgent != "" {
		headers["User-Agent"] = config.UserAgent
	} else if _, ok := headers["User-Agent"]; !ok {
		headers["User-Agent"] = DefaultUserAgent
	}
	config.Headers = headers

	log := config.Logger
	if log == nil {
		log = slog.Default()
	}

	transport := config.Transport
	if transport == nil {
		transport = createTransport(config)
	}
	if config.TokenSource != nil {
		transport = &oauth2.Transport{
			Source: oauth2.ReuseTokenSource(nil, config.TokenSource),
			Base:   transport,
		}
	}

	return &HTTPClient{
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
		config:  config,
		metrics: &ClientMetrics{ResponsesByCode: make(map[int]int64)},
		backoff: BackoffConfig{
			BaseDelay:  config.BaseRetryDelay,
			MaxDelay:   config.MaxRetryDelay,
			Multiplier: config.BackoffMultiplier,
		},
		log: log,
	}
}

// createTransport creates an http.Transport with the specified configuration
func createTransport(config HTTPClientConfig) *http.Transport {
	return &http.Transport{
		MaxIdleConns:          config.MaxIdleConns,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		MaxConnsPerHost:       config.MaxConnsPerHost,
		IdleConnTimeout:       config.IdleConnTimeout,
		TLSHandshakeTimeout:   config.TLSHandshakeTimeout,
		ExpectContinueTimeout: time.Second,
		ForceAttemptHTTP2:     true,
		Proxy:                 http.ProxyFromEnvironment,
	}
}

// Do executes an HTTP request with retry logic and metrics. Responses with a
// retryable status are retried; the last response is returned as is once
// retries are exhausted, and the caller owns its body.
func (c *HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	startTime := time.Now()
	atomic.AddInt64(&c.requestCount, 1)

	for key, value := range c.config.Headers {
		if req.Header.Get(key) == "" {
			req.Header.Set(key, value)
		}
	}

	var (
		resp       *http.Response
		err        error
		retryAfter string
	)

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := RetryDelay(c.backoff, attempt, retryAfter, time.Now())
			c.log.Debug("retrying request",
				slog.String(logger.KeyURL, req.URL.String()),
				slog.Int(logger.KeyAttempt, attempt),
				slog.Duration("delay", delay),
			)
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				c.updateMetrics(nil, ctx.Err(), time.Since(startTime))
				return nil, ctx.Err()
			}
			atomic.AddInt64(&c.retryCount, 1)
			retryAfter = ""
		}

		retryReq, cloneErr := cloneRequest(ctx, req)
		if cloneErr != nil {
			err = cloneErr
			break
		}

		resp, err = c.client.Do(retryReq)
		if err != nil {
			if ctx.Err() != nil || attempt >= c.config.MaxRetries {
				break
			}
			continue
		}

		if attempt < c.config.MaxRetries && c.isRetryableStatus(resp.StatusCode) {
			retryAfter = resp.Header.Get("Retry-After")
			drainAndClose(resp.Body)
			continue
		}
		break
	}

	c.updateMetrics(resp, err, time.Since(startTime))
	return resp, err
}

// Get issues a GET request for url with extra headers
func (c *HTTPClient) Get(ctx context.Context, url string, headers map[string]string) (*http.Response, error) {
	req, err := NewRequestBuilder(http.MethodGet, url).
		WithContext(ctx).
		WithHeaders(headers).
		Build()
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, req)
}

func (c *HTTPClient) isRetryableStatus(statusCode int) bool {
	return slices.Contains(c.config.RetryableStatuses, statusCode)
}

// cloneRequest copies the request for one attempt, rewinding the body when possible
func cloneRequest(ctx context.Context, orig *http.Request) (*http.Request, error) {
	cloned := orig.Clone(ctx)
	if orig.Body != nil && orig.GetBody != nil {
		body, err := orig.GetBody()
		if err != nil {
			return nil, fmt.Errorf("failed to rewind request body: %w", err)
		}
		cloned.Body = body
	}
	return cloned, nil
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
	_ = body.Close() //nolint:errcheck // Best effort close
}

// updateMetrics updates client metrics after a request
func (c *HTTPClient) updateMetrics(resp *http.Response, err error, latency time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.metrics.LastRequestTime = time.Now()
	if err != nil {
		atomic.AddInt64(&c.errorCount, 1)
	} else {
		atomic.AddInt64(&c.successCount, 1)
		if resp != nil {
			c.metrics.ResponsesByCode[resp.StatusCode]++
		}
	}

	atomic.AddInt64(&c.totalLatency, latency.Nanoseconds())
	if totalReqs := atomic.LoadInt64(&c.requestCount); totalReqs > 0 {
		c.metrics.AvgLatency = time.Duration(atomic.LoadInt64(&c.totalLatency) / totalReqs)
	}
}

// GetMetrics returns current client metrics
func (c *HTTPClient) GetMetrics() ClientMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	metrics := *c.metrics
	metrics.ResponsesByCode = make(map[int]int64, len(c.metrics.ResponsesByCode))
	for code, n := range c.metrics.ResponsesByCode {
		metrics.ResponsesByCode[code] = n
	}
	metrics.TotalRequests = atomic.LoadInt64(&c.requestCount)
	metrics.SuccessfulReqs = atomic.LoadInt64(&c.successCount)
	metrics.FailedReqs = atomic.LoadInt64(&c.errorCount)
	metrics.RetryCount = atomic.LoadInt64(&c.retryCount)

	return metrics
}

// ResetMetrics resets all metrics
func (c *HTTPClient) ResetMetrics() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.metrics = &ClientMetrics{ResponsesByCode: make(map[int]int64)}
	atomic.StoreInt64(&c.requestCount, 0)
	atomic.StoreInt64(&c.successCount, 0)
	atomic.StoreInt64(&c.errorCount, 0)
	atomic.StoreInt64(&c.retryCount, 0)
	atomic.StoreInt64(&c.totalLatency, 0)
}

// Config returns the effective configuration after defaults
func (c *HTTPClient) Config() HTTPClientConfig {
	return c.config
}

// Client returns the underlying http.Client
func (c *HTTPClient) Client() *http.Client {
	return c.client
}
