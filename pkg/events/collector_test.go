package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cecil-the-coder/resource-loader-kit/pkg/types"
)

var _ types.EventCollector = (*Collector)(nil)

func TestCollector_Counters(t *testing.T) {
	c := NewCollector()
	defer func() { _ = c.Close() }()

	ctx := context.Background()
	record := func(eventType types.FetchEventType, latency time.Duration) {
		require.NoError(t, c.RecordEvent(ctx, types.FetchEvent{
			Type:       eventType,
			LoaderName: "images",
			Latency:    latency,
		}))
	}

	record(types.EventFetchStart, 0)
	record(types.EventStrategyFailure, 0)
	record(types.EventFallback, 0)
	record(types.EventFetchSuccess, 20*time.Millisecond)
	record(types.EventFetchStart, 0)
	record(types.EventFetchFailure, 0)
	record(types.EventCleanupFailure, 0)
	record(types.EventCancel, 0)

	snap := c.GetSnapshot()
	assert.Equal(t, int64(2), snap.Requests)
	assert.Equal(t, int64(1), snap.Successes)
	assert.Equal(t, int64(1), snap.Failures)
	assert.Equal(t, int64(1), snap.Fallbacks)
	assert.Equal(t, int64(1), snap.SwallowedFailures)
	assert.Equal(t, int64(1), snap.CleanupFailures)
	assert.Equal(t, int64(1), snap.Cancellations)
	assert.InDelta(t, 0.5, snap.SuccessRate, 0.0001)
	assert.InDelta(t, 0.5, snap.FallbackRate, 0.0001)
	assert.Equal(t, 20*time.Millisecond, snap.AverageLatency)
	assert.Equal(t, 20*time.Millisecond, snap.MaxLatency)
	assert.False(t, snap.FirstEventTime.IsZero())

	require.Contains(t, snap.Loaders, "images")
	assert.Equal(t, int64(2), snap.Loaders["images"].Requests)
	assert.Equal(t, []string{"images"}, c.GetLoaderNames())
}

func TestCollector_Reset(t *testing.T) {
	c := NewCollector()
	defer func() { _ = c.Close() }()

	require.NoError(t, c.RecordEvent(context.Background(), types.FetchEvent{Type: types.EventFetchStart, LoaderName: "a"}))
	c.Reset()

	snap := c.GetSnapshot()
	assert.Zero(t, snap.Requests)
	assert.Empty(t, snap.Loaders)
	assert.True(t, snap.FirstEventTime.IsZero())
}

func TestCollector_RecordAfterClose(t *testing.T) {
	c := NewCollector()
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	err := c.RecordEvent(context.Background(), types.FetchEvent{Type: types.EventFetchStart})
	assert.Error(t, err)
}

func TestCollector_RecordWithCanceledContext(t *testing.T) {
	c := NewCollector()
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.RecordEvent(ctx, types.FetchEvent{Type: types.EventFetchStart})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCollector_Subscribe(t *testing.T) {
	c := NewCollector()
	defer func() { _ = c.Close() }()

	sub := c.Subscribe(10)
	defer sub.Unsubscribe()
	assert.NotEmpty(t, sub.ID())

	require.NoError(t, c.RecordEvent(context.Background(), types.FetchEvent{
		Type:       types.EventFallback,
		LoaderName: "images",
		RequestID:  "req-1",
	}))

	select {
	case event := <-sub.Events():
		assert.Equal(t, types.EventFallback, event.Type)
		assert.Equal(t, "req-1", event.RequestID)
		assert.False(t, event.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestCollector_SubscribeFiltered(t *testing.T) {
	c := NewCollector()
	defer func() { _ = c.Close() }()

	sub := c.SubscribeFiltered(10, types.EventFilter{
		EventTypes: []types.FetchEventType{types.EventStrategyFailure},
	})
	defer sub.Unsubscribe()

	ctx := context.Background()
	require.NoError(t, c.RecordEvent(ctx, types.FetchEvent{Type: types.EventFetchStart}))
	require.NoError(t, c.RecordEvent(ctx, types.FetchEvent{Type: types.EventStrategyFailure}))

	event := <-sub.Events()
	assert.Equal(t, types.EventStrategyFailure, event.Type)

	select {
	case extra := <-sub.Events():
		t.Errorf("unexpected event %v", extra.Type)
	default:
	}
}

func TestCollector_SubscriptionOverflow(t *testing.T) {
	c := NewCollector()
	defer func() { _ = c.Close() }()

	sub := c.Subscribe(1)
	defer sub.Unsubscribe()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, c.RecordEvent(ctx, types.FetchEvent{Type: types.EventFetchStart}))
	}

	assert.Equal(t, int64(2), sub.OverflowCount())
}

func TestCollector_Unsubscribe(t *testing.T) {
	c := NewCollector()
	defer func() { _ = c.Close() }()

	sub := c.Subscribe(10)
	sub.Unsubscribe()
	sub.Unsubscribe()

	_, ok := <-sub.Events()
	assert.False(t, ok, "channel should be closed")

	require.NoError(t, c.RecordEvent(context.Background(), types.FetchEvent{Type: types.EventFetchStart}))
}

func TestCollector_CloseClosesSubscriptions(t *testing.T) {
	c := NewCollector()
	sub := c.Subscribe(10)

	require.NoError(t, c.Close())

	_, ok := <-sub.Events()
	assert.False(t, ok)

	late := c.Subscribe(10)
	_, ok = <-late.Events()
	assert.False(t, ok, "subscriptions on a closed collector start closed")
}

type recordingHook struct {
	mu     sync.Mutex
	events []types.FetchEvent
	filter *types.EventFilter
	panics bool
}

func (h *recordingHook) OnEvent(_ context.Context, event types.FetchEvent) {
	if h.panics {
		panic("hook failure")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
}

func (h *recordingHook) Name() string                { return "recording" }
func (h *recordingHook) Filter() *types.EventFilter { return h.filter }

func (h *recordingHook) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

func TestCollector_Hooks(t *testing.T) {
	c := NewCollector()
	defer func() { _ = c.Close() }()

	all := &recordingHook{}
	failuresOnly := &recordingHook{filter: &types.EventFilter{
		EventTypes: []types.FetchEventType{types.EventFetchFailure},
	}}
	panicking := &recordingHook{panics: true}

	id := c.RegisterHook(all)
	c.RegisterHook(failuresOnly)
	c.RegisterHook(panicking)

	ctx := context.Background()
	require.NoError(t, c.RecordEvent(ctx, types.FetchEvent{Type: types.EventFetchStart}))
	require.NoError(t, c.RecordEvent(ctx, types.FetchEvent{Type: types.EventFetchFailure}))

	assert.Equal(t, 2, all.count())
	assert.Equal(t, 1, failuresOnly.count())

	c.UnregisterHook(id)
	require.NoError(t, c.RecordEvent(ctx, types.FetchEvent{Type: types.EventFetchStart}))
	assert.Equal(t, 2, all.count())
}

func TestCollector_ConcurrentRecord(t *testing.T) {
	c := NewCollector()
	defer func() { _ = c.Close() }()

	sub := c.Subscribe(1000)
	defer sub.Unsubscribe()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = c.RecordEvent(context.Background(), types.FetchEvent{Type: types.EventFetchStart, LoaderName: "x"})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(500), c.GetSnapshot().Requests)
}
