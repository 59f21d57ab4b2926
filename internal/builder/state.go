package builder

// State tracks a step through its lifecycle. Transitions only move forward:
// Waiting -> Ready -> Running -> one of the terminal states.
type State int32

const (
	Waiting State = iota
	Ready
	Running
	Succeeded
	Failed
	Cancelled
)

// Terminal reports whether the step has finished, one way or another.
func (s State) Terminal() bool {
	return s == Succeeded || s == Failed || s == Cancelled
}

func (s State) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}
