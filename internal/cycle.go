package internal

// CycleState is the lifecycle state of a PomodoroCycle.
//
//	RUNNING -> COMPLETED (complete)
//	RUNNING -> ABANDONED (abandon)
//
// COMPLETED and ABANDONED are terminal.
type CycleState string

const (
	CycleRunning   CycleState = "RUNNING"
	CycleCompleted CycleState = "COMPLETED"
	CycleAbandoned CycleState = "ABANDONED"
)

// CycleEvent is an input to the cycle state machine.
type CycleEvent int

const (
	EventComplete CycleEvent = iota + 1
	EventAbandon
)

func (e CycleEvent) String() string {
	switch e {
	case EventComplete:
		return "complete"
	case EventAbandon:
		return "abandon"
	default:
		return "unknown"
	}
}

func (s CycleState) IsTerminal() bool {
	switch s {
	case CycleCompleted, CycleAbandoned:
		return true
	default:
		return false
	}
}

func (s CycleState) Valid() bool {
	switch s {
	case CycleRunning, CycleCompleted, CycleAbandoned:
		return true
	default:
		return false
	}
}

// Transition returns the state reached by applying ev to s. Any event on a
// non-running cycle is a NOT_RUNNING state error.
func Transition(s CycleState, ev CycleEvent) (CycleState, error) {
	if s != CycleRunning {
		return s, StateErrorf(CodeNotRunning, "cycle is %s", s)
	}
	switch ev {
	case EventComplete:
		return CycleCompleted, nil
	case EventAbandon:
		return CycleAbandoned, nil
	default:
		return s, ValidationErrorf("unknown cycle event %d", int(ev))
	}
}
