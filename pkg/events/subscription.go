package events

import (
	"sync"
	"sync/atomic"

	"github.com/cecil-the-coder/resource-loader-kit/pkg/types"
)

// subscription implements types.EventSubscription
type subscription struct {
	id            string
	events        chan types.FetchEvent
	filter        types.EventFilter
	overflowCount atomic.Int64
	collector     *Collector
	closed        atomic.Bool

	mu         sync.Mutex
	chanClosed bool
}

// Events returns the channel for receiving events
func (s *subscription) Events() <-chan types.FetchEvent {
	return s.events
}

// Unsubscribe closes the subscription and stops event delivery
func (s *subscription) Unsubscribe() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}

	if s.collector != nil {
		s.collector.mu.Lock()
		delete(s.collector.subscriptions, s.id)
		s.collector.mu.Unlock()
	}

	s.close()
}

// ID returns the unique identifier for this subscription
func (s *subscription) ID() string {
	return s.id
}

// OverflowCount returns the number of events dropped due to buffer overflow
func (s *subscription) OverflowCount() int64 {
	return s.overflowCount.Load()
}

// publish sends an event to the subscription if it matches the filter.
// The send happens under mu so it cannot race with close.
func (s *subscription) publish(event types.FetchEvent) {
	if !s.filter.Matches(event) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.chanClosed {
		return
	}

	select {
	case s.events <- event:
	default:
		s.overflowCount.Add(1)
	}
}

// close closes the event channel exactly once
func (s *subscription) close() {
	s.closed.Store(true)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.chanClosed {
		return
	}
	close(s.events)
	s.chanClosed = true
}
