package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cecil-the-coder/resource-loader-kit/pkg/types"
)

// maxErrorBody caps how much of an error response body is kept in messages
const maxErrorBody = 512

// RequestBuilder helps build HTTP requests with common patterns
type RequestBuilder struct {
	method  string
	url     string
	headers map[string]string
	ctx     context.Context
}

// NewRequestBuilder creates a new request builder
func NewRequestBuilder(method, url string) *RequestBuilder {
	return &RequestBuilder{
		method:  method,
		url:     url,
		headers: make(map[string]string),
		ctx:     context.Background(),
	}
}

// WithContext sets the request context
func (rb *RequestBuilder) WithContext(ctx context.Context) *RequestBuilder {
	rb.ctx = ctx
	return rb
}

// WithHeaders adds headers to the request
func (rb *RequestBuilder) WithHeaders(headers map[string]string) *RequestBuilder {
	for k, v := range headers {
		rb.headers[k] = v
	}
	return rb
}

// Build creates the HTTP request
func (rb *RequestBuilder) Build() (*http.Request, error) {
	req, err := http.NewRequestWithContext(rb.ctx, rb.method, rb.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range rb.headers {
		req.Header.Set(key, value)
	}

	return req, nil
}

// IsSuccess reports whether the status code is 2xx
func IsSuccess(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

// StatusError converts a non-2xx response into a LoaderError for strategy,
// closing the response body. The error code follows the status class.
func StatusError(resp *http.Response, strategy types.StrategyName) *types.LoaderError {
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	message := strings.TrimSpace(string(body))
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	return types.NewLoaderError(strategy, types.ClassifyHTTPError(resp.StatusCode), message).
		WithStatusCode(resp.StatusCode).
		WithOperation("fetch")
}

// TransportError converts a failed round trip into a LoaderError for strategy.
// Context cancellation becomes ErrCodeCanceled; anything else ErrCodeNetwork.
func TransportError(ctx context.Context, err error, strategy types.StrategyName) *types.LoaderError {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return types.NewCanceledError(strategy, ctxErr)
	}
	return types.NewNetworkError(strategy, "request failed").
		WithOperation("fetch").
		WithOriginalErr(err)
}
