// Package dual composes two optional access mechanisms for the same resource
// into a single loader with fallback semantics.
//
// A Loader wraps a stream loader (primary) and a seekable-handle loader
// (secondary). At least one must be present. For every request the Loader
// derives a Fetcher that tries the primary first and the secondary second:
//
//   - primary fails, secondary present: the failure is recorded as a
//     diagnostic event and the secondary is attempted
//   - primary fails, no secondary: the failure is returned
//   - secondary fails after the primary produced a stream: the failure is
//     recorded and the stream is returned alone
//   - secondary fails and there is no stream: the failure is returned
//
// The composed fetch therefore fails only when every present strategy failed.
// Failures are returned as *types.LoaderError with code types.ErrCodeFetch.
//
// Cleanup and Cancel always reach every present strategy fetcher, whatever the
// fetch outcome, and may be called from any goroutine at any time.
//
// Example:
//
//	loader, err := dual.NewLoader[string](streams, handles,
//	    dual.WithName("thumbnails"),
//	    dual.WithCollector(collector),
//	)
//	if err != nil {
//	    return err // configuration error: no strategies
//	}
//
//	fetcher := loader.Derive("photos/cat.jpg", 256, 256)
//	defer fetcher.Cleanup()
//
//	result, err := fetcher.Fetch(ctx, types.PriorityNormal)
//	if err != nil {
//	    return err
//	}
//	if result.HasStream() {
//	    // decode from result.Stream
//	}
package dual
