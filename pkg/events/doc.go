// Package events provides the in-process diagnostic event collector used by
// dual loaders and strategies.
//
// Fallbacks and swallowed strategy failures are not errors; they are recorded
// here so operators can see how often the primary mechanism fails. The
// collector keeps running counters, fans events out to buffered subscriptions
// and calls registered hooks.
//
// Basic usage:
//
//	collector := events.NewCollector()
//	defer collector.Close()
//
//	sub := collector.SubscribeFiltered(100, types.EventFilter{
//	    EventTypes: []types.FetchEventType{types.EventFallback},
//	})
//	defer sub.Unsubscribe()
//
//	go func() {
//	    for event := range sub.Events() {
//	        log.Printf("fallback for %s: %s", event.ModelID, event.ErrorMessage)
//	    }
//	}()
package events
