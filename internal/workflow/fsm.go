// Package workflow implements the seat management dialog for one table at a time.
package workflow

import "fmt"

// State represents the current state of the management dialog.
type State string

const (
	StateClosed            State = "closed"
	StateTableSelected     State = "table_selected"
	StateSeatEditing       State = "seat_editing"
	StateConfirmingRemoval State = "confirming_removal"
	StateSubmitting        State = "submitting"
)

// FSM holds the allowed state transitions of the dialog.
type FSM struct {
	transitions map[State][]State
}

// NewFSM creates a new FSM with predefined transitions.
func NewFSM() *FSM {
	return &FSM{
		transitions: map[State][]State{
			StateClosed:            {StateTableSelected},
			StateTableSelected:     {StateTableSelected, StateSeatEditing, StateConfirmingRemoval, StateSubmitting, StateClosed},
			StateSeatEditing:       {StateSeatEditing, StateTableSelected, StateSubmitting, StateClosed},
			StateConfirmingRemoval: {StateTableSelected, StateSubmitting, StateClosed},
			// Submitting ends in the state before it on failure.
			StateSubmitting: {StateTableSelected, StateSeatEditing, StateConfirmingRemoval, StateClosed},
		},
	}
}

// CanTransition checks if transition is allowed.
func (f *FSM) CanTransition(from, to State) bool {
	allowed, ok := f.transitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Transition returns an error when moving from one state to another is not allowed.
func (f *FSM) Transition(from, to State) error {
	if !f.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
