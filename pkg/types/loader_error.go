package types

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode categorizes loader errors
type ErrorCode string

const (
	ErrCodeUnknown       ErrorCode = "unknown"
	ErrCodeConfiguration ErrorCode = "configuration"
	ErrCodeFetch         ErrorCode = "fetch"
	ErrCodeCanceled      ErrorCode = "canceled"
	ErrCodeCleanup       ErrorCode = "cleanup"
	ErrCodeInvalidState  ErrorCode = "invalid_state"

	// Strategy-side codes, carried in the OriginalErr chain of a fetch error
	ErrCodeNotFound    ErrorCode = "not_found"
	ErrCodeNetwork     ErrorCode = "network"
	ErrCodeServerError ErrorCode = "server_error"
	ErrCodeRateLimit   ErrorCode = "rate_limit"
)

// LoaderError represents a standardized error from a loader, fetcher or strategy
type LoaderError struct {
	Code        ErrorCode    // Categorized error code
	Message     string       // Human-readable message
	Strategy    StrategyName // Which access mechanism produced the error
	Operation   string       // What operation failed (e.g., "fetch", "cleanup")
	StatusCode  int          // HTTP status code (0 if not applicable)
	OriginalErr error        // Wrapped original error
	RequestID   string       // Fetch request ID if available
}

// Error implements the error interface
func (e *LoaderError) Error() string {
	msg := fmt.Sprintf("[%s] %s (code=%s)", e.Strategy, e.Message, e.Code)
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("[%s] %s (status=%d, code=%s)", e.Strategy, e.Message, e.StatusCode, e.Code)
	}
	if e.OriginalErr != nil {
		msg += ": " + e.OriginalErr.Error()
	}
	return msg
}

// Unwrap returns the original error for errors.Is/As
func (e *LoaderError) Unwrap() error {
	return e.OriginalErr
}

// IsRetryable returns true if a caller-side retry could plausibly succeed.
// The dual fetcher itself never retries.
func (e *LoaderError) IsRetryable() bool {
	switch e.Code {
	case ErrCodeRateLimit, ErrCodeServerError, ErrCodeNetwork:
		return true
	case ErrCodeFetch:
		var inner *LoaderError
		if errors.As(e.OriginalErr, &inner) {
			return inner.IsRetryable()
		}
	}
	return false
}

// WithOperation sets the operation field and returns the error for chaining
func (e *LoaderError) WithOperation(operation string) *LoaderError {
	e.Operation = operation
	return e
}

// WithStatusCode sets the status code field and returns the error for chaining
func (e *LoaderError) WithStatusCode(statusCode int) *LoaderError {
	e.StatusCode = statusCode
	return e
}

// WithOriginalErr sets the original error field and returns the error for chaining
func (e *LoaderError) WithOriginalErr(err error) *LoaderError {
	e.OriginalErr = err
	return e
}

// WithRequestID sets the request ID field and returns the error for chaining
func (e *LoaderError) WithRequestID(requestID string) *LoaderError {
	e.RequestID = requestID
	return e
}

// NewLoaderError creates a new LoaderError
func NewLoaderError(strategy StrategyName, code ErrorCode, message string) *LoaderError {
	return &LoaderError{
		Code:     code,
		Message:  message,
		Strategy: strategy,
	}
}

// NewConfigurationError creates an error for an unusable loader configuration
func NewConfigurationError(message string) *LoaderError {
	return &LoaderError{
		Code:      ErrCodeConfiguration,
		Message:   message,
		Strategy:  StrategyDual,
		Operation: "configure",
	}
}

// NewFetchError wraps the failure that made a composed fetch fail
func NewFetchError(strategy StrategyName, cause error) *LoaderError {
	return &LoaderError{
		Code:        ErrCodeFetch,
		Message:     "fetch failed",
		Strategy:    strategy,
		Operation:   "fetch",
		OriginalErr: cause,
	}
}

// NewCanceledError creates an error for a fetch aborted by Cancel
func NewCanceledError(strategy StrategyName, cause error) *LoaderError {
	return &LoaderError{
		Code:        ErrCodeCanceled,
		Message:     "fetch canceled",
		Strategy:    strategy,
		Operation:   "fetch",
		OriginalErr: cause,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(strategy StrategyName, message string) *LoaderError {
	return &LoaderError{
		Code:     ErrCodeNotFound,
		Message:  message,
		Strategy: strategy,
	}
}

// NewNetworkError creates a new network error
func NewNetworkError(strategy StrategyName, message string) *LoaderError {
	return &LoaderError{
		Code:     ErrCodeNetwork,
		Message:  message,
		Strategy: strategy,
	}
}

// ClassifyHTTPError determines error code from HTTP status
func ClassifyHTTPError(statusCode int) ErrorCode {
	switch statusCode {
	case http.StatusNotFound, http.StatusGone:
		return ErrCodeNotFound
	case http.StatusTooManyRequests:
		return ErrCodeRateLimit
	default:
		if statusCode >= 500 {
			return ErrCodeServerError
		}
		return ErrCodeUnknown
	}
}

// ErrorCodeOf returns the code of the outermost LoaderError in err's chain
func ErrorCodeOf(err error) ErrorCode {
	var le *LoaderError
	if errors.As(err, &le) {
		return le.Code
	}
	return ErrCodeUnknown
}

// IsConfigurationError reports whether err is a configuration error
func IsConfigurationError(err error) bool {
	return ErrorCodeOf(err) == ErrCodeConfiguration
}

// IsFetchError reports whether err is a composed fetch failure
func IsFetchError(err error) bool {
	return ErrorCodeOf(err) == ErrCodeFetch
}

// IsCanceled reports whether err is, or wraps, a cancellation
func IsCanceled(err error) bool {
	var le *LoaderError
	for e := err; errors.As(e, &le); e = le.OriginalErr {
		if le.Code == ErrCodeCanceled {
			return true
		}
	}
	return errors.Is(err, context.Canceled)
}
