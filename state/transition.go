package state

import "fmt"

// transitionTable is the exact adjacency list of §4.3. A conversation_state
// update that is not listed here as a permitted successor fails the turn.
var transitionTable = map[ConversationState]map[ConversationState]bool{
	StateIdle: {
		StateUnderstanding: true,
		StateError:         true,
	},
	StateUnderstanding: {
		StateWaitingForSlot:  true,
		StateExecutingAction: true,
		StateIdle:            true,
		StateError:           true,
	},
	StateWaitingForSlot: {
		StateValidatingSlot: true,
		StateUnderstanding:  true,
		StateError:          true,
	},
	StateValidatingSlot: {
		StateWaitingForSlot:  true,
		StateUnderstanding:   true,
		StateExecutingAction: true,
		StateError:           true,
	},
	StateExecutingAction: {
		StateCompleted:      true,
		StateWaitingForSlot: true,
		StateConfirming:     true,
		StateError:          true,
	},
	StateConfirming: {
		StateExecutingAction: true,
		StateCompleted:       true,
		StateUnderstanding:   true,
		StateError:           true,
	},
	StateCompleted: {
		StateIdle: true,
	},
	StateError: {
		StateUnderstanding: true,
		StateIdle:          true,
	},
}

// ErrInvalidTransition is returned by Validate when a requested
// conversation_state change is not an adjacent edge of the transition table.
type ErrInvalidTransition struct {
	From, To ConversationState
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid_state_transition: %s -> %s", e.From, e.To)
}

// Validate reports whether a transition from `from` to `to` is permitted.
// The identity transition (from == to) is always permitted: a turn that
// re-asserts the same state (e.g. two consecutive WAITING_FOR_SLOT turns
// while the user keeps failing validation) is not a transition at all.
func Validate(from, to ConversationState) error {
	if from == to {
		return nil
	}
	if successors, ok := transitionTable[from]; ok && successors[to] {
		return nil
	}
	return &ErrInvalidTransition{From: from, To: to}
}
