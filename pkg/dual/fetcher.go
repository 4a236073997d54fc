package dual

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cecil-the-coder/resource-loader-kit/internal/logger"
	"github.com/cecil-the-coder/resource-loader-kit/pkg/types"
)

// Fetcher fetches one resource using up to two strategies. It is created by
// Loader.Derive, used for at most one Fetch call, then cleaned up.
type Fetcher struct {
	opts      options
	modelID   string
	requestID string

	stream types.Fetcher[types.Stream]
	handle types.Fetcher[types.Handle]

	mu          sync.Mutex
	state       State
	canceled    bool
	cleanedUp   bool
	cancelFetch context.CancelFunc
}

var _ types.Fetcher[*Result] = (*Fetcher)(nil)

func newFetcher(opts options, modelID string, stream types.Fetcher[types.Stream], handle types.Fetcher[types.Handle]) *Fetcher {
	return &Fetcher{
		opts:      opts,
		modelID:   modelID,
		requestID: uuid.New().String(),
		stream:    stream,
		handle:    handle,
	}
}

// RequestID returns the ID attached to this fetcher's events and logs
func (f *Fetcher) RequestID() string { return f.requestID }

// ModelID returns the composed identity of the model being fetched
func (f *Fetcher) ModelID() string { return f.modelID }

// State returns the current fetch state
func (f *Fetcher) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Canceled reports whether Cancel has been called
func (f *Fetcher) Canceled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.canceled
}

// CleanedUp reports whether Cleanup has been called
func (f *Fetcher) CleanedUp() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cleanedUp
}

// Fetch runs the primary strategy, then the secondary, and returns whatever
// they produced. It fails only when every present strategy failed.
func (f *Fetcher) Fetch(ctx context.Context, priority types.Priority) (*Result, error) {
	f.mu.Lock()
	if f.state != StateCreated {
		f.mu.Unlock()
		return nil, types.NewLoaderError(types.StrategyDual, types.ErrCodeInvalidState, "fetcher already used").
			WithOperation("fetch").
			WithRequestID(f.requestID)
	}
	if f.canceled || f.cleanedUp {
		f.state = StateFailed
		f.mu.Unlock()
		return nil, f.fail(ctx, priority, types.StrategyDual, types.NewCanceledError(types.StrategyDual, context.Canceled), time.Now())
	}
	ctx, cancel := context.WithCancel(ctx)
	f.cancelFetch = cancel
	f.state = StateFetching
	f.mu.Unlock()
	defer cancel()

	start := time.Now()
	f.emit(ctx, types.FetchEvent{Type: types.EventFetchStart, Strategy: types.StrategyDual, Priority: priority})

	result := &Result{}

	if f.stream != nil {
		stream, err := f.stream.Fetch(ctx, priority)
		if err == nil && stream == nil {
			err = types.NewNotFoundError(types.StrategyStream, "stream strategy returned no resource")
		}
		if err != nil {
			if f.handle == nil {
				return nil, f.finish(ctx, priority, types.StrategyStream, err, start)
			}
			if f.CleanedUp() {
				return nil, f.abandon(ctx, priority, result, start)
			}
			f.swallow(ctx, priority, types.StrategyStream, 1, err)
			f.emit(ctx, types.FetchEvent{
				Type:          types.EventFallback,
				Strategy:      types.StrategyDual,
				Priority:      priority,
				AttemptNumber: 2,
				FromStrategy:  string(types.StrategyStream),
				ToStrategy:    string(types.StrategyHandle),
				ErrorCode:     types.ErrorCodeOf(err),
				ErrorMessage:  err.Error(),
			})
		} else {
			result.Stream = stream
		}
	}

	if f.CleanedUp() {
		return nil, f.abandon(ctx, priority, result, start)
	}

	if f.handle != nil {
		var (
			handle types.Handle
			err    error
		)
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = types.NewCanceledError(types.StrategyHandle, ctxErr)
		} else {
			handle, err = f.handle.Fetch(ctx, priority)
			if err == nil && handle == nil {
				err = types.NewNotFoundError(types.StrategyHandle, "handle strategy returned no resource")
			}
		}
		if err != nil {
			if result.Stream == nil {
				return nil, f.finish(ctx, priority, types.StrategyHandle, err, start)
			}
			f.swallow(ctx, priority, types.StrategyHandle, 2, err)
		} else {
			result.Handle = handle
		}
	}

	// A strategy may have acquired its resource after Cleanup already ran
	// for it, so the check and the state change happen under one lock.
	f.mu.Lock()
	if f.cleanedUp {
		f.mu.Unlock()
		return nil, f.abandon(ctx, priority, result, start)
	}
	f.state = StateSucceeded
	f.mu.Unlock()

	latency := time.Since(start)
	f.emit(ctx, types.FetchEvent{
		Type:     types.EventFetchSuccess,
		Strategy: result.Source(),
		Priority: priority,
		Latency:  latency,
	})
	f.opts.logger.Debug("fetch succeeded",
		slog.String(logger.KeyRequestID, f.requestID),
		slog.String(logger.KeyLoader, f.opts.name),
		slog.String(logger.KeyModelID, f.modelID),
		slog.String(logger.KeyStrategy, string(result.Source())),
		slog.Duration(logger.KeyLatency, latency),
	)

	return result, nil
}

// finish marks the fetch failed and builds the propagated error
func (f *Fetcher) finish(ctx context.Context, priority types.Priority, strategy types.StrategyName, cause error, start time.Time) error {
	f.mu.Lock()
	f.state = StateFailed
	f.mu.Unlock()
	return f.fail(ctx, priority, strategy, cause, start)
}

func (f *Fetcher) fail(ctx context.Context, priority types.Priority, strategy types.StrategyName, cause error, start time.Time) error {
	err := types.NewFetchError(strategy, cause).WithRequestID(f.requestID)

	f.emit(ctx, types.FetchEvent{
		Type:         types.EventFetchFailure,
		Strategy:     strategy,
		Priority:     priority,
		Latency:      time.Since(start),
		ErrorCode:    types.ErrorCodeOf(cause),
		ErrorMessage: cause.Error(),
	})
	f.opts.logger.Debug("fetch failed",
		slog.String(logger.KeyRequestID, f.requestID),
		slog.String(logger.KeyLoader, f.opts.name),
		slog.String(logger.KeyModelID, f.modelID),
		slog.String(logger.KeyStrategy, string(strategy)),
		logger.Err(cause),
	)

	return err
}

// abandon releases what the fetch acquired after Cleanup was called and
// fails the fetch as canceled.
func (f *Fetcher) abandon(ctx context.Context, priority types.Priority, result *Result, start time.Time) error {
	var errs []error
	if result.HasStream() {
		errs = append(errs, f.stream.Cleanup())
	}
	if result.HasHandle() {
		errs = append(errs, f.handle.Cleanup())
	}
	if err := errors.Join(errs...); err != nil {
		f.opts.logger.Warn("releasing resources acquired after cleanup failed",
			slog.String(logger.KeyRequestID, f.requestID),
			slog.String(logger.KeyLoader, f.opts.name),
			logger.Err(err),
		)
	}
	return f.finish(ctx, priority, types.StrategyDual, types.NewCanceledError(types.StrategyDual, context.Canceled), start)
}

// swallow records a strategy failure that does not fail the composed fetch
func (f *Fetcher) swallow(ctx context.Context, priority types.Priority, strategy types.StrategyName, attempt int, err error) {
	f.emit(ctx, types.FetchEvent{
		Type:          types.EventStrategyFailure,
		Strategy:      strategy,
		Priority:      priority,
		AttemptNumber: attempt,
		ErrorCode:     types.ErrorCodeOf(err),
		ErrorMessage:  err.Error(),
	})
	f.opts.logger.Debug("strategy failed, continuing",
		slog.String(logger.KeyRequestID, f.requestID),
		slog.String(logger.KeyLoader, f.opts.name),
		slog.String(logger.KeyModelID, f.modelID),
		slog.String(logger.KeyStrategy, string(strategy)),
		slog.Int(logger.KeyAttempt, attempt),
		logger.Err(err),
	)
}

// Cleanup releases what every present strategy fetcher acquired. It runs on
// each call, whatever the fetch outcome. With CleanupBestEffort all
// strategies are cleaned up and their failures joined; with
// CleanupStopOnError the first failure ends the sequence.
//
// Cleanup during an in-flight Fetch aborts it: the fetch context is
// canceled, and anything a strategy acquires afterwards is released before
// Fetch returns a cancellation error.
func (f *Fetcher) Cleanup() error {
	f.mu.Lock()
	f.cleanedUp = true
	if f.cancelFetch != nil {
		f.cancelFetch()
	}
	f.mu.Unlock()

	var errs []error
	record := func(strategy types.StrategyName, err error) bool {
		if err == nil {
			return true
		}
		wrapped := types.NewLoaderError(strategy, types.ErrCodeCleanup, "cleanup failed").
			WithOperation("cleanup").
			WithOriginalErr(err).
			WithRequestID(f.requestID)
		errs = append(errs, wrapped)

		f.emit(context.Background(), types.FetchEvent{
			Type:         types.EventCleanupFailure,
			Strategy:     strategy,
			ErrorCode:    types.ErrCodeCleanup,
			ErrorMessage: err.Error(),
		})
		f.opts.logger.Warn("cleanup failed",
			slog.String(logger.KeyRequestID, f.requestID),
			slog.String(logger.KeyLoader, f.opts.name),
			slog.String(logger.KeyStrategy, string(strategy)),
			logger.Err(err),
		)
		return f.opts.cleanupPolicy != CleanupStopOnError
	}

	if f.stream != nil {
		if !record(types.StrategyStream, f.stream.Cleanup()) {
			return errors.Join(errs...)
		}
	}
	if f.handle != nil {
		record(types.StrategyHandle, f.handle.Cleanup())
	}

	return errors.Join(errs...)
}

// Cancel aborts an in-flight Fetch and cancels every present strategy
// fetcher. It is safe to call at any time and more than once.
func (f *Fetcher) Cancel() {
	f.mu.Lock()
	first := !f.canceled
	f.canceled = true
	cancelFetch := f.cancelFetch
	f.mu.Unlock()

	if cancelFetch != nil {
		cancelFetch()
	}
	if f.stream != nil {
		f.stream.Cancel()
	}
	if f.handle != nil {
		f.handle.Cancel()
	}

	if first {
		f.emit(context.Background(), types.FetchEvent{Type: types.EventCancel, Strategy: types.StrategyDual})
	}
}

// emit fills the request fields and records the event. The event is recorded
// even when ctx has been canceled.
func (f *Fetcher) emit(ctx context.Context, event types.FetchEvent) {
	if f.opts.collector == nil {
		return
	}
	event.LoaderName = f.opts.name
	event.RequestID = f.requestID
	event.ModelID = f.modelID
	event.Timestamp = time.Now()
	_ = f.opts.collector.RecordEvent(context.WithoutCancel(ctx), event)
}
