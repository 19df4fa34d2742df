package orchestrator

import "fmt"

// State is the dialogue state.
type State int

const (
	// AwaitingWake listens for the wake word on raw capture frames.
	AwaitingWake State = iota
	// Recording captures one utterance bounded by voice activity.
	Recording
	// Speaking plays synthesised speech with barge-in detection.
	Speaking
	// Terminal means the dialogue has ended.
	Terminal
)

// String returns the snake_case state name used in logs and metrics.
func (s State) String() string {
	switch s {
	case AwaitingWake:
		return "awaiting_wake"
	case Recording:
		return "recording"
	case Speaking:
		return "speaking"
	case Terminal:
		return "terminal"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Transition describes one state change.
type Transition struct {
	From   State
	To     State
	Reason string
}
