package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cecil-the-coder/resource-loader-kit/pkg/types"
)

// AssertErrorCode checks that err carries a LoaderError with the given code.
func AssertErrorCode(t *testing.T, err error, code types.ErrorCode, msgAndArgs ...interface{}) {
	t.Helper()
	require.Error(t, err, msgAndArgs...)
	assert.Equal(t, code, types.ErrorCodeOf(err), msgAndArgs...)
}

// AssertFetchError checks that err is a composed fetch failure.
func AssertFetchError(t *testing.T, err error, msgAndArgs ...interface{}) {
	t.Helper()
	AssertErrorCode(t, err, types.ErrCodeFetch, msgAndArgs...)
}

// AssertConfigurationError checks that err is a configuration failure.
func AssertConfigurationError(t *testing.T, err error, msgAndArgs ...interface{}) {
	t.Helper()
	AssertErrorCode(t, err, types.ErrCodeConfiguration, msgAndArgs...)
}

// AssertCanceled checks that err is, or wraps, a cancellation.
func AssertCanceled(t *testing.T, err error, msgAndArgs ...interface{}) {
	t.Helper()
	require.Error(t, err, msgAndArgs...)
	assert.True(t, types.IsCanceled(err), "expected cancellation, got %v", err)
}

// AssertCalls checks the call counters of a mock fetcher.
func AssertCalls[T any](t *testing.T, m *MockFetcher[T], fetch, cleanup, cancel int) {
	t.Helper()
	assert.Equal(t, fetch, m.FetchCalls(), "fetch calls")
	assert.Equal(t, cleanup, m.CleanupCalls(), "cleanup calls")
	assert.Equal(t, cancel, m.CancelCalls(), "cancel calls")
}
