// Package resolve drives an operator through fixing the data behind one issue.
package resolve

import (
	"errors"
	"fmt"
)

// State is the position of a Resolver in the resolution flow.
type State int

const (
	StateLoading State = iota
	StateEditing
	StateValidating
	StateSubmitting
	StateResolved
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateEditing:
		return "editing"
	case StateValidating:
		return "validating"
	case StateSubmitting:
		return "submitting"
	case StateResolved:
		return "resolved"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further event is accepted.
func (s State) Terminal() bool {
	return s == StateResolved || s == StateFailed
}

// Event moves a Resolver between states.
type Event int

const (
	EventLoaded Event = iota
	EventLoadFailed
	EventEdit
	EventSubmit
	EventInvalid
	EventValid
	EventSubmitFailed
	EventSubmitted
)

func (e Event) String() string {
	switch e {
	case EventLoaded:
		return "loaded"
	case EventLoadFailed:
		return "load_failed"
	case EventEdit:
		return "edit"
	case EventSubmit:
		return "submit"
	case EventInvalid:
		return "invalid"
	case EventValid:
		return "valid"
	case EventSubmitFailed:
		return "submit_failed"
	case EventSubmitted:
		return "submitted"
	default:
		return "unknown"
	}
}

// ErrInvalidTransition is returned for an event the current state does not accept.
var ErrInvalidTransition = errors.New("invalid transition")

var transitions = map[State]map[Event]State{
	StateLoading: {
		EventLoaded:     StateEditing,
		EventLoadFailed: StateFailed,
	},
	StateEditing: {
		EventEdit:   StateEditing,
		EventSubmit: StateValidating,
	},
	StateValidating: {
		EventInvalid: StateEditing,
		EventValid:   StateSubmitting,
	},
	StateSubmitting: {
		EventSubmitFailed: StateEditing,
		EventSubmitted:    StateResolved,
	},
}

// Next returns the state reached from s on e.
func Next(s State, e Event) (State, error) {
	if to, ok := transitions[s][e]; ok {
		return to, nil
	}
	return s, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, s, e)
}
