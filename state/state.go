// Package state defines the per-session dialogue state model: the pure,
// serializable value that the runtime checkpoints between turns.
//
// Apart from FlowContext.IncrementStep, which bumps a frame's loop counter
// in place, nothing in this package mutates a DialogueState. Every operation
// that changes state is expressed as a FlowDelta (see delta.go) and merged by
// apply(), so the runtime can reason about a turn's effects without aliasing
// surprises and so checkpointing a state is always safe.
package state

import "time"

// ConversationState is one of the conversation-state machine's named states.
type ConversationState string

const (
	StateIdle             ConversationState = "IDLE"
	StateUnderstanding     ConversationState = "UNDERSTANDING"
	StateWaitingForSlot    ConversationState = "WAITING_FOR_SLOT"
	StateValidatingSlot    ConversationState = "VALIDATING_SLOT"
	StateExecutingAction   ConversationState = "EXECUTING_ACTION"
	StateConfirming        ConversationState = "CONFIRMING"
	StateCompleted         ConversationState = "COMPLETED"
	StateError             ConversationState = "ERROR"
)

// Message is one ordered user/assistant utterance in the session transcript.
type Message struct {
	Role      string // "user" or "assistant"
	Text      string
	Timestamp time.Time
}

// DialogueState is the complete per-session state. It is a value type: copy
// it, diff it, serialize it. RuntimeContext (collaborators) is never part of
// it.
type DialogueState struct {
	SessionID        string
	Messages         []Message
	FlowStack        []FlowContext
	FlowSlots        map[string]map[string]any // flow_id -> (slot_name -> value)
	SessionSlots     map[string]any
	PendingTask      PendingTask
	ConversationState ConversationState
	CurrentStep      string
	TurnCount        int
	LastResponse     string
	Metadata         map[string]any

	// NoProgressTurns counts consecutive turns that left the flow stack
	// depth, conversation_state, current_step, and the number of filled
	// slots unchanged — the `conversation.max_turns_without_progress`
	// counter (§6.1), reset to 0 the moment a turn changes any of them.
	NoProgressTurns int
}

// New returns an empty, valid DialogueState for a fresh session.
func New(sessionID string) *DialogueState {
	return &DialogueState{
		SessionID:         sessionID,
		FlowStack:         nil,
		FlowSlots:         make(map[string]map[string]any),
		SessionSlots:      make(map[string]any),
		PendingTask:       nil,
		ConversationState: StateIdle,
		Metadata:          make(map[string]any),
	}
}

// Clone returns a deep-enough copy of the state suitable for building a new
// immutable value in apply(). Slices and maps are copied one level deep,
// which is sufficient since FlowDelta never hands back references into the
// original state's mutable containers.
func (s *DialogueState) Clone() *DialogueState {
	if s == nil {
		return nil
	}
	clone := *s

	clone.Messages = append([]Message(nil), s.Messages...)
	clone.FlowStack = append([]FlowContext(nil), s.FlowStack...)

	clone.FlowSlots = make(map[string]map[string]any, len(s.FlowSlots))
	for flowID, slots := range s.FlowSlots {
		copied := make(map[string]any, len(slots))
		for k, v := range slots {
			copied[k] = v
		}
		clone.FlowSlots[flowID] = copied
	}

	clone.SessionSlots = make(map[string]any, len(s.SessionSlots))
	for k, v := range s.SessionSlots {
		clone.SessionSlots[k] = v
	}

	clone.Metadata = make(map[string]any, len(s.Metadata))
	for k, v := range s.Metadata {
		clone.Metadata[k] = v
	}

	if s.PendingTask != nil {
		clone.PendingTask = s.PendingTask.clone()
	}

	return &clone
}

// ActiveFlow returns the top frame of the flow stack, or nil if the stack is
// empty.
func (s *DialogueState) ActiveFlow() *FlowContext {
	if len(s.FlowStack) == 0 {
		return nil
	}
	return &s.FlowStack[len(s.FlowStack)-1]
}

// CheckInvariants verifies the universal invariants of §8 that must hold
// after every turn. It never mutates state; it is meant to be called by
// tests and, optionally, by the runtime in debug builds.
func (s *DialogueState) CheckInvariants() error {
	seen := make(map[string]bool, len(s.FlowStack))
	for _, f := range s.FlowStack {
		if seen[f.FlowID] {
			return &InvariantError{Msg: "duplicate flow_id on stack: " + f.FlowID}
		}
		seen[f.FlowID] = true
	}

	for flowID := range s.FlowSlots {
		if !seen[flowID] {
			return &InvariantError{Msg: "flow_slots has orphaned flow_id: " + flowID}
		}
	}

	switch s.PendingTask.(type) {
	case nil:
		if s.ConversationState == StateWaitingForSlot || s.ConversationState == StateConfirming {
			return &InvariantError{Msg: "pending_task nil but conversation_state requires one"}
		}
	case *CollectTask:
		if s.ConversationState != StateWaitingForSlot {
			return &InvariantError{Msg: "CollectTask pending but conversation_state != WAITING_FOR_SLOT"}
		}
	case *ConfirmTask:
		if s.ConversationState != StateConfirming {
			return &InvariantError{Msg: "ConfirmTask pending but conversation_state != CONFIRMING"}
		}
	}

	if top := s.ActiveFlow(); top != nil && top.CurrentStep != s.CurrentStep {
		return &InvariantError{Msg: "top frame current_step diverges from state current_step"}
	}

	return nil
}

// InvariantError reports a violated universal invariant (§8).
type InvariantError struct{ Msg string }

func (e *InvariantError) Error() string { return "state invariant violated: " + e.Msg }
