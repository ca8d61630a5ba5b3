package session

import "errors"

var (
	// ErrCancelled is the error carried by a Cancelled terminal event.
	ErrCancelled      = errors.New("session cancelled")
	ErrAlreadyStarted = errors.New("session already started")
)

type State int

const (
	StateCreated State = iota
	StateActive
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateActive:
		return "active"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeFailed
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Event is either a Delta or a Terminal.
type Event interface {
	isEvent()
}

// Delta is one piece of assistant text, in arrival order.
type Delta struct {
	SessionID string
	TurnID    string
	Text      string
}

// Terminal is the last event of a session. Err is nil on completion,
// ErrCancelled on cancellation and a transport error on failure.
type Terminal struct {
	SessionID string
	TurnID    string
	Outcome   Outcome
	Err       error
}

func (Delta) isEvent()    {}
func (Terminal) isEvent() {}
