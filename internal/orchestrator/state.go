package orchestrator

import "fmt"

// State 运行状态机：Idle → Fetching → Classifying → Processing → Sending → Completed | Aborted
type State int

const (
	StateIdle State = iota
	StateFetching
	StateClassifying
	StateProcessing
	StateSending
	StateCompleted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateClassifying:
		return "classifying"
	case StateProcessing:
		return "processing"
	case StateSending:
		return "sending"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	}
	return "unknown"
}

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateAborted
}

// RunError is returned when a run ends in StateAborted. State is the stage
// the run was in when it gave up.
type RunError struct {
	State State
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run aborted while %s: %v", e.State, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}
