// Package nlu defines the pluggable NLU contract of §4.9: the core treats
// natural-language understanding as a collaborator with two entry points,
// never an embedded implementation. Concrete providers live in subpackages
// (rulebased, anthropicnlu, openainlu).
package nlu

import "context"

// MessageType classifies what understand_full extracted from a message.
type MessageType string

const (
	MessageIntent       MessageType = "intent"
	MessageSlotValue    MessageType = "slot_value"
	MessageOutOfScope   MessageType = "out_of_scope"
	MessageDigression   MessageType = "digression"
	MessageSmallTalk    MessageType = "small_talk"
)

// FullResult is understand_full's return shape (§4.9).
type FullResult struct {
	MessageType MessageType
	Command     string // a flow/action name from the dynamic scope, or "" / out_of_scope
	Slots       map[string]any
	Confidence  float64
	Reasoning   string
}

// SlotUnderstandingKind classifies understand_slot's interpretation of a
// reply given while a slot or confirmation is pending.
type SlotUnderstandingKind string

const (
	KindSlotValue     SlotUnderstandingKind = "slot_value"
	KindIntentChange  SlotUnderstandingKind = "intent_change"
	KindQuestion      SlotUnderstandingKind = "question"
	KindClarification SlotUnderstandingKind = "clarification"
	KindCorrection    SlotUnderstandingKind = "correction"
	KindCancellation  SlotUnderstandingKind = "cancellation"
	KindConfirmation  SlotUnderstandingKind = "confirmation"
	KindContinuation  SlotUnderstandingKind = "continuation"
)

// SlotResult is understand_slot's return shape (§4.9).
type SlotResult struct {
	Kind        SlotUnderstandingKind
	Value       any
	TargetSlot  string
	Confidence  float64
}

// Scope is the dynamic command vocabulary computed per §4.10 before each
// NLU call: the only flow/action names (plus global interrupt intents)
// the NLU is allowed to emit. Anything else is mapped to out_of_scope.
type Scope struct {
	Flows           []string
	Actions         []string
	GlobalIntents   []string
	UnfilledSlots   []string
}

// Allows reports whether command is in this scope's flow/action/global-
// intent vocabulary. A caller trusting an Understander's Command output
// must check this before acting on it (§4.10).
func (s Scope) Allows(command string) bool {
	if command == "" {
		return false
	}
	for _, c := range s.GlobalIntents {
		if c == command {
			return true
		}
	}
	for _, c := range s.Flows {
		if c == command {
			return true
		}
	}
	for _, c := range s.Actions {
		if c == command {
			return true
		}
	}
	return false
}

// Understander is the pluggable NLU collaborator (§4.9). Both entry
// points are awaitable and may fail; failures propagate as step errors
// and repeated failures escalate via on_no_progress.
type Understander interface {
	UnderstandFull(ctx context.Context, userMessage string, history []string, scope Scope) (FullResult, error)
	UnderstandSlot(ctx context.Context, userMessage string, waitingSlot string, scope Scope) (SlotResult, error)
}

// Generator is the narrower collaborator a `generate` step calls (§4.5):
// a single free-text generative entry point, distinct from the
// structured-command Understander above.
type Generator interface {
	Generate(ctx context.Context, instruction string, context map[string]any) (string, error)
}
