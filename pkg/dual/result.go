package dual

import "github.com/cecil-the-coder/resource-loader-kit/pkg/types"

// Result pairs the outputs of the two strategies. A slot is nil when its
// strategy was absent or failed. The resources stay owned by the Fetcher that
// produced them and are released by its Cleanup, not by the caller.
type Result struct {
	Stream types.Stream
	Handle types.Handle
}

// HasStream reports whether the primary strategy produced a stream
func (r *Result) HasStream() bool {
	return r != nil && r.Stream != nil
}

// HasHandle reports whether the secondary strategy produced a handle
func (r *Result) HasHandle() bool {
	return r != nil && r.Handle != nil
}

// Source names the strategy that populated the result, or StrategyDual when both did
func (r *Result) Source() types.StrategyName {
	switch {
	case r.HasStream() && r.HasHandle():
		return types.StrategyDual
	case r.HasStream():
		return types.StrategyStream
	case r.HasHandle():
		return types.StrategyHandle
	default:
		return ""
	}
}
