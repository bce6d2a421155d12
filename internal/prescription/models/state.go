package models

import (
	"fmt"

	dErrors "rxcred/pkg/domain-errors"
)

// State is the prescription lifecycle state.
type State string

const (
	StateDraft     State = "draft"
	StateSigned    State = "signed"
	StateActive    State = "active"
	StateDispensed State = "dispensed"
	StateExpired   State = "expired"
	StateRevoked   State = "revoked"
)

// IsValid reports whether s is a known state.
func (s State) IsValid() bool {
	switch s {
	case StateDraft, StateSigned, StateActive, StateDispensed, StateExpired, StateRevoked:
		return true
	}
	return false
}

// Terminal reports whether no transition out of s is legal.
func (s State) Terminal() bool {
	switch s {
	case StateDispensed, StateExpired, StateRevoked:
		return true
	}
	return false
}

// legalTransitions is the authoritative transition table. Guards that depend
// on runtime data (expiry clock, prior verification) live in the service; this
// table answers only whether the edge exists.
var legalTransitions = map[State]map[State]bool{
	StateDraft: {
		StateSigned:  true,
		StateRevoked: true,
	},
	StateSigned: {
		StateActive:    true,
		StateDispensed: true,
		StateExpired:   true,
		StateRevoked:   true,
	},
	StateActive: {
		StateDispensed: true,
		StateExpired:   true,
		StateRevoked:   true,
	},
}

// CanTransition reports whether from → to is a legal edge.
func CanTransition(from, to State) bool {
	return legalTransitions[from][to]
}

// CanTransition reports whether s → to is a legal edge.
func (s State) CanTransition(to State) bool {
	return CanTransition(s, to)
}

// Transition validates and applies a state change on the record.
// Returns CodeIllegalTransition when the edge does not exist.
func (r *Record) Transition(to State) error {
	if !to.IsValid() {
		return dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("unknown state: %s", to))
	}
	if !CanTransition(r.State, to) {
		return dErrors.New(dErrors.CodeIllegalTransition,
			fmt.Sprintf("cannot transition prescription from %s to %s", r.State, to))
	}
	r.State = to
	return nil
}
