package nodeexec

import (
	"github.com/jmorenobl/soni/dsl"
	"github.com/jmorenobl/soni/ferrors"
	"github.com/jmorenobl/soni/state"
)

// ExecuteGenerate implements §4.5's `generate(instruction, context,
// store_as?)`: call the NLU's generative entry point; on failure apply
// on_error; on success optionally store the text and advance.
func ExecuteGenerate(step dsl.StepDef, s *state.DialogueState, ec *Context) Result {
	cfg := step.Generate
	if ec.Generator == nil {
		return failResult(ferrors.NewStepError(ferrors.KindUnknownRuntime, "no generator configured for generate step"))
	}

	contextVars := map[string]any{}
	top := s.ActiveFlow()
	var slots map[string]any
	if top != nil {
		slots = s.FlowSlots[top.FlowID]
	}
	for _, name := range cfg.Context {
		if v, ok := slots[name]; ok {
			contextVars[name] = v
		}
	}

	text, err := ec.Generator.Generate(ec.Ctx, cfg.Instruction, contextVars)
	if err != nil {
		vars := errorVars("connection", err.Error(), "", map[string]any{})
		delta := state.FlowDelta{SlotUpdates: slotUpdatesFromMap(s, vars)}
		target := cfg.OnError
		if target == "" {
			target = ec.FlowOnError
		}
		if target != "" {
			delta.StepAdvance = target
			return deltaResult(delta)
		}
		delta.ConversationState = state.StateError
		return Result{Outcome: OutcomeDelta, Delta: delta, Fail: ferrors.NewStepError(ferrors.KindConnection, err.Error())}
	}

	var updates []state.SlotUpdate
	if cfg.StoreAs != "" {
		var flowID string
		if top != nil {
			flowID = top.FlowID
		}
		updates = append(updates, state.SlotUpdate{FlowID: flowID, Name: cfg.StoreAs, Value: text})
	}

	return deltaResult(state.FlowDelta{
		SlotUpdates: updates,
		Outbound:    []state.OutboundMessage{{Text: text, Kind: "say"}},
		StepAdvance: step.JumpTo,
	})
}
