package pipeline

// State is a step in one project's lifecycle.
type State string

const (
	StateDetected             State = "detected"
	StateSelecting            State = "selecting"
	StateFetching             State = "fetching"
	StateMerging              State = "merging"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateWritten              State = "written"
	StateSkipped              State = "skipped"
	StateFailed               State = "failed"
	StateUndetermined         State = "undetermined"
)

// Terminal reports whether no further transition follows the state.
func (s State) Terminal() bool {
	switch s {
	case StateWritten, StateSkipped, StateFailed, StateUndetermined:
		return true
	default:
		return false
	}
}
