package testutil

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cecil-the-coder/resource-loader-kit/pkg/types"
)

// StrategyMock names mock fetchers in the errors they return
const StrategyMock types.StrategyName = "mock"

// MockFetcher is a types.Fetcher with scripted behavior and call tracking.
type MockFetcher[T any] struct {
	mu sync.Mutex

	// Behavior control
	result     T
	err        error
	cleanupErr error
	block      bool
	gate       <-chan struct{}

	// Call tracking
	fetchCalls   int
	cleanupCalls int
	cancelCalls  int
	priorities   []types.Priority
	delivered    bool
	lateCleanups int

	started     chan struct{}
	startedOnce sync.Once
	canceled    chan struct{}
	cancelOnce  sync.Once
}

// NewMockFetcher creates a mock fetcher that returns the zero value of T
func NewMockFetcher[T any]() *MockFetcher[T] {
	return &MockFetcher[T]{
		started:  make(chan struct{}),
		canceled: make(chan struct{}),
	}
}

// WithResult sets the value Fetch returns
func (m *MockFetcher[T]) WithResult(result T) *MockFetcher[T] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.result = result
	return m
}

// WithError makes Fetch fail with err
func (m *MockFetcher[T]) WithError(err error) *MockFetcher[T] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithCleanupError makes Cleanup fail with err
func (m *MockFetcher[T]) WithCleanupError(err error) *MockFetcher[T] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanupErr = err
	return m
}

// Blocking makes Fetch wait until it is canceled
func (m *MockFetcher[T]) Blocking() *MockFetcher[T] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.block = true
	return m
}

// WaitFor makes Fetch wait until gate is closed, ignoring cancellation, and
// then return its scripted outcome. It models a strategy that acquires its
// resource regardless of what happened meanwhile.
func (m *MockFetcher[T]) WaitFor(gate <-chan struct{}) *MockFetcher[T] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gate = gate
	return m
}

// Fetch implements types.Fetcher
func (m *MockFetcher[T]) Fetch(ctx context.Context, priority types.Priority) (T, error) {
	m.mu.Lock()
	m.fetchCalls++
	m.priorities = append(m.priorities, priority)
	result, err, block, gate := m.result, m.err, m.block, m.gate
	m.mu.Unlock()

	m.startedOnce.Do(func() { close(m.started) })

	if gate != nil {
		<-gate
	}

	var zero T
	if block {
		select {
		case <-ctx.Done():
			return zero, types.NewCanceledError(StrategyMock, ctx.Err())
		case <-m.canceled:
			return zero, types.NewCanceledError(StrategyMock, context.Canceled)
		}
	}
	if err != nil {
		return zero, err
	}

	m.mu.Lock()
	m.delivered = true
	m.mu.Unlock()
	return result, nil
}

// Cleanup implements types.Fetcher
func (m *MockFetcher[T]) Cleanup() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanupCalls++
	if m.delivered {
		m.lateCleanups++
	}
	return m.cleanupErr
}

// CleanupCallsAfterDelivery returns the number of Cleanup calls made after
// Fetch returned a result
func (m *MockFetcher[T]) CleanupCallsAfterDelivery() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lateCleanups
}

// Cancel implements types.Fetcher
func (m *MockFetcher[T]) Cancel() {
	m.mu.Lock()
	m.cancelCalls++
	m.mu.Unlock()
	m.cancelOnce.Do(func() { close(m.canceled) })
}

// Started is closed once Fetch has been entered
func (m *MockFetcher[T]) Started() <-chan struct{} {
	return m.started
}

// FetchCalls returns the number of Fetch calls
func (m *MockFetcher[T]) FetchCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetchCalls
}

// CleanupCalls returns the number of Cleanup calls
func (m *MockFetcher[T]) CleanupCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cleanupCalls
}

// CancelCalls returns the number of Cancel calls
func (m *MockFetcher[T]) CancelCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelCalls
}

// Priorities returns the priorities Fetch was called with
func (m *MockFetcher[T]) Priorities() []types.Priority {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.Priority(nil), m.priorities...)
}

// MockLoader is a types.ModelLoader that hands out scripted MockFetchers.
type MockLoader[M comparable, T any] struct {
	mu sync.Mutex

	prefix     string
	newFetcher func(model M) *MockFetcher[T]

	fetchers   []*MockFetcher[T]
	idCalls    atomic.Int64
	lastWidth  int
	lastHeight int
}

// NewMockLoader creates a loader whose IDs are prefix followed by the model.
// newFetcher builds the fetcher for each request; nil yields default mocks.
func NewMockLoader[M comparable, T any](prefix string, newFetcher func(model M) *MockFetcher[T]) *MockLoader[M, T] {
	if newFetcher == nil {
		newFetcher = func(M) *MockFetcher[T] { return NewMockFetcher[T]() }
	}
	return &MockLoader[M, T]{prefix: prefix, newFetcher: newFetcher}
}

// Fetcher implements types.ModelLoader
func (l *MockLoader[M, T]) Fetcher(model M, width, height int) types.Fetcher[T] {
	f := l.newFetcher(model)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.fetchers = append(l.fetchers, f)
	l.lastWidth, l.lastHeight = width, height
	return f
}

// ID implements types.ModelLoader
func (l *MockLoader[M, T]) ID(model M) string {
	l.idCalls.Add(1)
	return fmt.Sprintf("%s%v", l.prefix, model)
}

// IDCalls returns how many times ID was called
func (l *MockLoader[M, T]) IDCalls() int {
	return int(l.idCalls.Load())
}

// Fetchers returns every fetcher handed out so far
func (l *MockLoader[M, T]) Fetchers() []*MockFetcher[T] {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*MockFetcher[T](nil), l.fetchers...)
}

// LastSize returns the width and height of the most recent Fetcher call
func (l *MockLoader[M, T]) LastSize() (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastWidth, l.lastHeight
}

// TrackingStream is an in-memory stream that records Close calls
type TrackingStream struct {
	*bytes.Reader
	closes atomic.Int64
}

// NewStream creates a TrackingStream over content
func NewStream(content string) *TrackingStream {
	return &TrackingStream{Reader: bytes.NewReader([]byte(content))}
}

// Close implements io.Closer
func (s *TrackingStream) Close() error {
	s.closes.Add(1)
	return nil
}

// Closes returns how many times Close was called
func (s *TrackingStream) Closes() int {
	return int(s.closes.Load())
}

// NewHandle creates a seekable TrackingStream over content.
// bytes.Reader already implements io.Seeker, so the same type serves both slots.
func NewHandle(content string) *TrackingStream {
	return NewStream(content)
}
