package dual

// State is the fetch progress of a Fetcher. Cancellation and cleanup are
// tracked separately because they may happen in any state.
type State int

const (
	StateCreated State = iota
	StateFetching
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateFetching:
		return "fetching"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Done reports whether the fetch has finished, successfully or not
func (s State) Done() bool {
	return s == StateSucceeded || s == StateFailed
}
