package types

import (
	"context"
	"io"
)

// Stream is the result type of the primary (streaming) access mechanism
type Stream = io.ReadCloser

// Handle is the result type of the secondary (seekable) access mechanism
type Handle = io.ReadSeekCloser

// Fetcher produces a single resource for one request.
//
// A Fetcher is created per request and discarded after Cleanup. Implementations
// must tolerate Cleanup and Cancel being called in any state, more than once,
// and concurrently with an in-flight Fetch.
type Fetcher[T any] interface {
	// Fetch acquires the resource. Cancel (or ctx) must make it return promptly.
	Fetch(ctx context.Context, priority Priority) (T, error)

	// Cleanup releases anything Fetch acquired. It is idempotent.
	Cleanup() error

	// Cancel aborts an in-flight Fetch. It is idempotent.
	Cancel()
}

// ModelLoader derives per-request fetchers for a model using one access mechanism
type ModelLoader[M any, T any] interface {
	// Fetcher returns an unevaluated fetcher bound to the model and target size
	Fetcher(model M, width, height int) Fetcher[T]

	// ID returns a stable identity for the model under this loader, used as a cache key
	ID(model M) string
}

// StreamLoader is a ModelLoader for the streaming access mechanism
type StreamLoader[M any] = ModelLoader[M, Stream]

// HandleLoader is a ModelLoader for the seekable-handle access mechanism
type HandleLoader[M any] = ModelLoader[M, Handle]

// StrategyName identifies an access mechanism in errors, events and logs
type StrategyName string

const (
	StrategyStream StrategyName = "stream"
	StrategyHandle StrategyName = "handle"
	StrategyDual   StrategyName = "dual"
)
