package types

import (
	"context"
	"time"
)

// EventCollector receives diagnostic events from loaders and fetchers.
// Swallowed strategy failures surface only here and in debug logs.
//
// Thread-safety: all methods are safe for concurrent use by multiple goroutines.
type EventCollector interface {
	// RecordEvent records a single event and fans it out to subscriptions and hooks
	RecordEvent(ctx context.Context, event FetchEvent) error

	// Subscribe creates a subscription receiving every event.
	// Delivery is non-blocking; events that do not fit in the buffer are dropped
	// and counted in OverflowCount.
	Subscribe(bufferSize int) EventSubscription

	// SubscribeFiltered creates a subscription receiving only matching events
	SubscribeFiltered(bufferSize int, filter EventFilter) EventSubscription

	// RegisterHook registers a synchronous callback and returns its ID
	RegisterHook(hook EventHook) HookID

	// UnregisterHook removes a hook
	UnregisterHook(id HookID)

	// Close closes all subscriptions; further RecordEvent calls fail
	Close() error
}

// EventSubscription is a channel-backed stream of events
type EventSubscription interface {
	// Events returns the channel for receiving events. It is closed on Unsubscribe.
	Events() <-chan FetchEvent

	// Unsubscribe stops delivery and closes the channel
	Unsubscribe()

	// ID returns the unique identifier for this subscription
	ID() string

	// OverflowCount returns the number of events dropped due to a full buffer
	OverflowCount() int64
}

// EventHook is invoked for each matching event
type EventHook interface {
	OnEvent(ctx context.Context, event FetchEvent)
	Name() string
	// Filter returns nil to receive every event
	Filter() *EventFilter
}

// HookID identifies a registered hook
type HookID string

// EventFilter selects events. Empty fields match everything.
type EventFilter struct {
	LoaderNames []string         `json:"loader_names,omitempty" yaml:"loader_names,omitempty"`
	Strategies  []StrategyName   `json:"strategies,omitempty" yaml:"strategies,omitempty"`
	EventTypes  []FetchEventType `json:"event_types,omitempty" yaml:"event_types,omitempty"`
	RequestIDs  []string         `json:"request_ids,omitempty" yaml:"request_ids,omitempty"`
	MinLatency  time.Duration    `json:"min_latency,omitempty" yaml:"min_latency,omitempty"`
}

// Matches reports whether the event passes the filter
func (f EventFilter) Matches(event FetchEvent) bool {
	if len(f.LoaderNames) > 0 && !contains(f.LoaderNames, event.LoaderName) {
		return false
	}
	if len(f.Strategies) > 0 && !contains(f.Strategies, event.Strategy) {
		return false
	}
	if len(f.EventTypes) > 0 && !contains(f.EventTypes, event.Type) {
		return false
	}
	if len(f.RequestIDs) > 0 && !contains(f.RequestIDs, event.RequestID) {
		return false
	}
	if f.MinLatency > 0 && event.Latency < f.MinLatency {
		return false
	}
	return true
}

func contains[T comparable](values []T, v T) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

// FetchEvent describes one step of a fetch request
type FetchEvent struct {
	Type FetchEventType `json:"type"`

	LoaderName string       `json:"loader_name"`
	Strategy   StrategyName `json:"strategy,omitempty"`
	RequestID  string       `json:"request_id,omitempty"`
	ModelID    string       `json:"model_id,omitempty"`
	Priority   Priority     `json:"priority"`

	Timestamp time.Time     `json:"timestamp"`
	Latency   time.Duration `json:"latency,omitempty"`

	// Fallback details
	AttemptNumber int    `json:"attempt_number,omitempty"`
	FromStrategy  string `json:"from_strategy,omitempty"`
	ToStrategy    string `json:"to_strategy,omitempty"`

	ErrorCode    ErrorCode `json:"error_code,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// FetchEventType is the kind of event
type FetchEventType string

const (
	// EventFetchStart is emitted when a composed fetch begins
	EventFetchStart FetchEventType = "fetch_start"

	// EventFetchSuccess is emitted when a composed fetch produced at least one result
	EventFetchSuccess FetchEventType = "fetch_success"

	// EventFetchFailure is emitted when a composed fetch is propagated as a failure
	EventFetchFailure FetchEventType = "fetch_failure"

	// EventStrategyFailure is emitted for a strategy failure that was swallowed
	EventStrategyFailure FetchEventType = "strategy_failure"

	// EventFallback is emitted when the primary failed and the secondary is attempted
	EventFallback FetchEventType = "fallback"

	// EventCleanupFailure is emitted for each failing cleanup call
	EventCleanupFailure FetchEventType = "cleanup_failure"

	// EventCancel is emitted when a fetcher is canceled
	EventCancel FetchEventType = "cancel"
)

// String returns the event type name
func (t FetchEventType) String() string {
	return string(t)
}

// IsFailure reports whether the event type records a failure of some kind
func (t FetchEventType) IsFailure() bool {
	return t == EventFetchFailure || t == EventStrategyFailure || t == EventCleanupFailure
}
