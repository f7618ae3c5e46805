// Package flowmgr implements §4.4: the flow stack API (push/pop/cancel,
// scoped slot access, depth enforcement). It is a thin, convenience layer
// over state.Apply — all of the actual merge semantics (output
// propagation on pop, slot scoping) already live in state.FlowDelta/Apply;
// this package adds flow_id generation, depth-limit policy, and the
// get_slot/set_slot helpers §4.4 names.
package flowmgr

import (
	"github.com/google/uuid"
	"github.com/jmorenobl/soni/dsl"
	"github.com/jmorenobl/soni/ferrors"
	"github.com/jmorenobl/soni/state"
)

// StackPolicy carries the two settings §4.4's depth enforcement reads:
// the configured max depth and what to do on overflow.
type StackPolicy struct {
	MaxDepth       int
	OnLimitReached string // "cancel_oldest" | "reject_new"
}

// PolicyFromSettings extracts a StackPolicy from a parsed document's
// settings block.
func PolicyFromSettings(s dsl.Settings) StackPolicy {
	return StackPolicy{MaxDepth: s.FlowManagement.MaxStackDepth, OnLimitReached: s.FlowManagement.OnLimitReached}
}

// Depth returns the current stack depth.
func Depth(s *state.DialogueState) int {
	return len(s.FlowStack)
}

// Push generates a fresh flow_id, creates an empty frame for flowName
// entering at entryStep, and pushes it — applying the configured
// on_limit_reached policy first if the stack is already at capacity.
// Returns the new state and the generated flow_id.
func Push(s *state.DialogueState, flowName, entryStep string, policy StackPolicy) (*state.DialogueState, string, error) {
	delta, flowID, err := PushDelta(s, flowName, entryStep, policy)
	if err != nil {
		return nil, "", err
	}
	return state.Apply(s, delta), flowID, nil
}

// PushDelta computes the FlowDelta Push would apply, without applying it —
// for callers (e.g. nodeexec's call_flow executor) that must return a pure
// delta for the runtime to merge rather than mutate state themselves.
func PushDelta(s *state.DialogueState, flowName, entryStep string, policy StackPolicy) (state.FlowDelta, string, error) {
	var delta state.FlowDelta
	if policy.MaxDepth > 0 && Depth(s) >= policy.MaxDepth {
		switch policy.OnLimitReached {
		case "cancel_oldest":
			delta.CancelOldest = true
		case "reject_new", "":
			return state.FlowDelta{}, "", ferrors.NewStepError(ferrors.KindMaxStackDepth, "flow stack is at max depth")
		default:
			return state.FlowDelta{}, "", ferrors.NewStepError(ferrors.KindMaxStackDepth, "unknown on_limit_reached policy "+policy.OnLimitReached)
		}
	}

	flowID := uuid.NewString()
	fc := state.NewFlowContext(flowID, flowName, entryStep)
	delta.PushFlow = &fc
	return delta, flowID, nil
}

// Pop removes the top frame, propagating its declared outputs (already
// collected in FlowContext.Outputs by the executor) into the new top
// frame's slots.
func Pop(s *state.DialogueState) *state.DialogueState {
	return state.Apply(s, state.FlowDelta{PopFlow: true})
}

// Cancel removes the top frame without propagating outputs.
func Cancel(s *state.DialogueState) *state.DialogueState {
	return state.Apply(s, state.FlowDelta{Cancel: true})
}

// GetSlot reads name from the top frame's scope (local, non-session).
// ok is false if there is no active frame or the slot is unset.
func GetSlot(s *state.DialogueState, name string) (any, bool) {
	top := s.ActiveFlow()
	if top == nil {
		return nil, false
	}
	v, ok := s.FlowSlots[top.FlowID][name]
	return v, ok
}

// SetSlot writes name into the top frame's scope, returning the new
// state. It is a no-op (returns s unchanged) if there is no active
// frame.
func SetSlot(s *state.DialogueState, name string, value any) *state.DialogueState {
	top := s.ActiveFlow()
	if top == nil {
		return s
	}
	return state.Apply(s, state.FlowDelta{SlotUpdates: []state.SlotUpdate{{FlowID: top.FlowID, Name: name, Value: value}}})
}
