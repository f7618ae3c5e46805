package nodeexec

import (
	"github.com/jmorenobl/soni/dsl"
	"github.com/jmorenobl/soni/ferrors"
	"github.com/jmorenobl/soni/flowmgr"
	"github.com/jmorenobl/soni/state"
)

// callFlowOutputsKey is where a call_flow step records its declared output
// mapping (child slot name -> parent slot name) into state.Metadata, keyed
// by the pushed child's flow_id — so that when the runtime later sees the
// child flow reach `end`, it knows which child slots to copy into
// FlowContext.Outputs before popping (§4.5's call_flow outputs).
func callFlowOutputsKey(childFlowID string) string {
	return CallFlowOutputsKey(childFlowID)
}

// CallFlowOutputsKey is the exported form of callFlowOutputsKey, used by
// the runtime to read back a call_flow's declared output mapping when the
// pushed child flow reaches `end`.
func CallFlowOutputsKey(childFlowID string) string {
	return "call_flow_outputs:" + childFlowID
}

// callFlowResumeKey records, keyed by parent flow_id, the step the parent
// should resume at once its pushed child completes (the call_flow step's
// own jump_to, or empty for "default sequential successor"). Apply's
// PushFlow handling repoints CurrentStep at the child's entry step in the
// same call, so the parent's post-call_flow target can't be written onto
// its frame via StepAdvance in this same delta — it is recovered from here
// by the runtime when the child flow reaches `end`.
func callFlowResumeKey(parentFlowID string) string {
	return CallFlowResumeKey(parentFlowID)
}

// CallFlowResumeKey is the exported form of callFlowResumeKey, used by the
// runtime to recover the parent's post-call_flow jump target once the
// pushed child flow reaches `end`.
func CallFlowResumeKey(parentFlowID string) string {
	return "call_flow_resume:" + parentFlowID
}

// ExecuteCallFlow implements §4.5's `call_flow(flow, inputs?, outputs?)`:
// push a new frame for the named flow, seed it with the mapped inputs, and
// suspend the parent until the child flow completes.
func ExecuteCallFlow(step dsl.StepDef, s *state.DialogueState, ec *Context) Result {
	cfg := step.CallFlow
	child, ok := ec.Doc.Flows[cfg.Flow]
	if !ok {
		return failResult(ferrors.NewStepError(ferrors.KindUnknownStepTarget, "call_flow: unknown flow "+cfg.Flow))
	}
	if len(child.Steps) == 0 {
		return failResult(ferrors.NewStepError(ferrors.KindUnknownStepTarget, "call_flow: flow "+cfg.Flow+" has no steps"))
	}
	entryStep := child.Steps[0].ID

	policy := flowmgr.PolicyFromSettings(ec.Settings)
	delta, flowID, err := flowmgr.PushDelta(s, cfg.Flow, entryStep, policy)
	if err != nil {
		stepErr, _ := err.(*ferrors.StepError)
		return failResult(stepErr)
	}

	top := s.ActiveFlow()
	var parentSlots map[string]any
	if top != nil {
		parentSlots = s.FlowSlots[top.FlowID]
	}
	for parentName, childName := range cfg.Inputs {
		if v, ok := parentSlots[parentName]; ok {
			delta.SlotUpdates = append(delta.SlotUpdates, state.SlotUpdate{FlowID: flowID, Name: childName, Value: v})
		}
	}

	delta.MetadataSet = map[string]any{callFlowOutputsKey(flowID): cfg.Outputs}
	if top != nil {
		delta.MetadataSet[callFlowResumeKey(top.FlowID)] = step.JumpTo
	}
	delta.ConversationState = state.StateUnderstanding

	return Result{Outcome: OutcomeSuspend, Suspend: SuspendFlowPushed, Delta: delta}
}
