package events

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/cecil-the-coder/resource-loader-kit/pkg/types"
)

// hookTimeout bounds how long a single hook may block RecordEvent
const hookTimeout = 100 * time.Millisecond

// Collector is the default implementation of types.EventCollector.
// It keeps aggregate counters, per-loader counters, subscriptions and hooks.
type Collector struct {
	mu sync.RWMutex

	requests          atomic.Int64
	successes         atomic.Int64
	failures          atomic.Int64
	fallbacks         atomic.Int64
	swallowedFailures atomic.Int64
	cleanupFailures   atomic.Int64
	cancellations     atomic.Int64

	latency *latencyTracker

	loaders map[string]*loaderCounters

	subscriptions map[string]*subscription

	hooks      map[types.HookID]*hookEntry
	nextHookID atomic.Int64

	firstEventTime time.Time
	lastUpdated    time.Time
	closed         atomic.Bool
}

// loaderCounters holds per-loader counters
type loaderCounters struct {
	requests          atomic.Int64
	successes         atomic.Int64
	failures          atomic.Int64
	fallbacks         atomic.Int64
	swallowedFailures atomic.Int64
}

// hookEntry wraps a hook with its metadata
type hookEntry struct {
	hook   types.EventHook
	id     types.HookID
	filter *types.EventFilter
}

// Snapshot is a point-in-time copy of the collector's counters
type Snapshot struct {
	Requests          int64                     `json:"requests"`
	Successes         int64                     `json:"successes"`
	Failures          int64                     `json:"failures"`
	Fallbacks         int64                     `json:"fallbacks"`
	SwallowedFailures int64                     `json:"swallowed_failures"`
	CleanupFailures   int64                     `json:"cleanup_failures"`
	Cancellations     int64                     `json:"cancellations"`
	SuccessRate       float64                   `json:"success_rate"`
	FallbackRate      float64                   `json:"fallback_rate"`
	AverageLatency    time.Duration             `json:"average_latency"`
	MaxLatency        time.Duration             `json:"max_latency"`
	Loaders           map[string]LoaderSnapshot `json:"loaders"`
	FirstEventTime    time.Time                 `json:"first_event_time"`
	LastUpdated       time.Time                 `json:"last_updated"`
}

// LoaderSnapshot holds counters for one named loader
type LoaderSnapshot struct {
	Requests          int64 `json:"requests"`
	Successes         int64 `json:"successes"`
	Failures          int64 `json:"failures"`
	Fallbacks         int64 `json:"fallbacks"`
	SwallowedFailures int64 `json:"swallowed_failures"`
}

// NewCollector creates a new Collector
func NewCollector() *Collector {
	return &Collector{
		latency:       &latencyTracker{},
		loaders:       make(map[string]*loaderCounters),
		subscriptions: make(map[string]*subscription),
		hooks:         make(map[types.HookID]*hookEntry),
	}
}

// RecordEvent records a single event
func (c *Collector) RecordEvent(ctx context.Context, event types.FetchEvent) error {
	if c.closed.Load() {
		return fmt.Errorf("collector is closed")
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	c.updateCounters(event)
	c.publishToSubscriptions(event)
	c.callHooks(ctx, event)

	return nil
}

// GetSnapshot returns the current counters
func (c *Collector) GetSnapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	requests := c.requests.Load()
	avgLatency, maxLatency := c.latency.stats()

	snapshot := Snapshot{
		Requests:          requests,
		Successes:         c.successes.Load(),
		Failures:          c.failures.Load(),
		Fallbacks:         c.fallbacks.Load(),
		SwallowedFailures: c.swallowedFailures.Load(),
		CleanupFailures:   c.cleanupFailures.Load(),
		Cancellations:     c.cancellations.Load(),
		SuccessRate:       calculateRate(c.successes.Load(), requests),
		FallbackRate:      calculateRate(c.fallbacks.Load(), requests),
		AverageLatency:    avgLatency,
		MaxLatency:        maxLatency,
		Loaders:           make(map[string]LoaderSnapshot, len(c.loaders)),
		FirstEventTime:    c.firstEventTime,
		LastUpdated:       c.lastUpdated,
	}

	for name, lc := range c.loaders {
		snapshot.Loaders[name] = LoaderSnapshot{
			Requests:          lc.requests.Load(),
			Successes:         lc.successes.Load(),
			Failures:          lc.failures.Load(),
			Fallbacks:         lc.fallbacks.Load(),
			SwallowedFailures: lc.swallowedFailures.Load(),
		}
	}

	return snapshot
}

// GetLoaderNames returns a sorted list of all loader names seen so far
func (c *Collector) GetLoaderNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.loaders))
	for name := range c.loaders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Subscribe creates a new subscription with the given buffer size
func (c *Collector) Subscribe(bufferSize int) types.EventSubscription {
	return c.SubscribeFiltered(bufferSize, types.EventFilter{})
}

// SubscribeFiltered creates a filtered subscription
func (c *Collector) SubscribeFiltered(bufferSize int, filter types.EventFilter) types.EventSubscription {
	if bufferSize < 0 {
		bufferSize = 0
	}

	sub := &subscription{
		id:     "sub-" + uuid.New().String(),
		events: make(chan types.FetchEvent, bufferSize),
		filter: filter,
	}

	if c.closed.Load() {
		sub.close()
		return sub
	}

	sub.collector = c
	c.mu.Lock()
	c.subscriptions[sub.id] = sub
	c.mu.Unlock()

	return sub
}

// RegisterHook registers a hook and returns its ID
func (c *Collector) RegisterHook(hook types.EventHook) types.HookID {
	id := types.HookID(fmt.Sprintf("hook-%d", c.nextHookID.Add(1)))

	c.mu.Lock()
	c.hooks[id] = &hookEntry{
		hook:   hook,
		id:     id,
		filter: hook.Filter(),
	}
	c.mu.Unlock()

	return id
}

// UnregisterHook removes a hook
func (c *Collector) UnregisterHook(id types.HookID) {
	c.mu.Lock()
	delete(c.hooks, id)
	c.mu.Unlock()
}

// Reset clears all counters. Subscriptions and hooks are kept.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests.Store(0)
	c.successes.Store(0)
	c.failures.Store(0)
	c.fallbacks.Store(0)
	c.swallowedFailures.Store(0)
	c.cleanupFailures.Store(0)
	c.cancellations.Store(0)

	c.latency = &latencyTracker{}
	c.loaders = make(map[string]*loaderCounters)
	c.firstEventTime = time.Time{}
	c.lastUpdated = time.Time{}
}

// Close shuts down the collector and closes every subscription
func (c *Collector) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, sub := range c.subscriptions {
		sub.close()
	}
	c.subscriptions = make(map[string]*subscription)
	c.hooks = make(map[types.HookID]*hookEntry)

	return nil
}

func (c *Collector) updateCounters(event types.FetchEvent) {
	c.mu.Lock()
	if c.firstEventTime.IsZero() {
		c.firstEventTime = event.Timestamp
	}
	c.lastUpdated = time.Now()
	lc, exists := c.loaders[event.LoaderName]
	if !exists {
		lc = &loaderCounters{}
		c.loaders[event.LoaderName] = lc
	}
	latency := c.latency
	c.mu.Unlock()

	switch event.Type {
	case types.EventFetchStart:
		c.requests.Add(1)
		lc.requests.Add(1)
	case types.EventFetchSuccess:
		c.successes.Add(1)
		lc.successes.Add(1)
		if event.Latency > 0 {
			latency.add(event.Latency)
		}
	case types.EventFetchFailure:
		c.failures.Add(1)
		lc.failures.Add(1)
	case types.EventFallback:
		c.fallbacks.Add(1)
		lc.fallbacks.Add(1)
	case types.EventStrategyFailure:
		c.swallowedFailures.Add(1)
		lc.swallowedFailures.Add(1)
	case types.EventCleanupFailure:
		c.cleanupFailures.Add(1)
	case types.EventCancel:
		c.cancellations.Add(1)
	}
}

func (c *Collector) publishToSubscriptions(event types.FetchEvent) {
	c.mu.RLock()
	subs := make([]*subscription, 0, len(c.subscriptions))
	for _, sub := range c.subscriptions {
		subs = append(subs, sub)
	}
	c.mu.RUnlock()

	for _, sub := range subs {
		sub.publish(event)
	}
}

// callHooks runs each matching hook with a timeout and panic protection
func (c *Collector) callHooks(ctx context.Context, event types.FetchEvent) {
	c.mu.RLock()
	hooks := make([]*hookEntry, 0, len(c.hooks))
	for _, h := range c.hooks {
		hooks = append(hooks, h)
	}
	c.mu.RUnlock()

	for _, entry := range hooks {
		if entry.filter != nil && !entry.filter.Matches(event) {
			continue
		}

		hookCtx, cancel := context.WithTimeout(ctx, hookTimeout)
		done := make(chan struct{})
		go func(h types.EventHook) {
			defer close(done)
			defer func() {
				_ = recover()
			}()
			h.OnEvent(hookCtx, event)
		}(entry.hook)

		select {
		case <-done:
		case <-hookCtx.Done():
		}
		cancel()
	}
}

func calculateRate(numerator, denominator int64) float64 {
	if denominator == 0 {
		return 0
	}
	return float64(numerator) / float64(denominator)
}

// latencyTracker keeps a running mean and maximum of successful fetch latency
type latencyTracker struct {
	mu    sync.Mutex
	count int64
	total time.Duration
	max   time.Duration
}

func (l *latencyTracker) add(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.count++
	l.total += d
	if d > l.max {
		l.max = d
	}
}

func (l *latencyTracker) stats() (avg, peak time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.count == 0 {
		return 0, 0
	}
	return l.total / time.Duration(l.count), l.max
}
