package nodeexec

import (
	"github.com/jmorenobl/soni/dsl"
	"github.com/jmorenobl/soni/ferrors"
	"github.com/jmorenobl/soni/state"
)

// ExecuteCollect implements §4.5's `collect(slot)`: if the slot is
// already filled and the step does not force re-collection, advance
// immediately; otherwise suspend awaiting user input.
func ExecuteCollect(step dsl.StepDef, s *state.DialogueState, ec *Context) Result {
	cfg := step.Collect
	top := s.ActiveFlow()
	if top == nil {
		return failResult(ferrors.NewStepError(ferrors.KindUnknownRuntime, "collect step with no active flow"))
	}

	if !cfg.Force {
		if _, ok := s.FlowSlots[top.FlowID][cfg.Slot]; ok {
			return deltaResult(state.FlowDelta{StepAdvance: nextStepID(step)})
		}
	}

	task := &state.CollectTask{FlowID: top.FlowID, StepID: step.ID, Slot: cfg.Slot, Attempts: 0}
	var outbound []state.OutboundMessage
	if prompt := slotPrompt(ec, cfg.Slot, s); prompt != "" {
		outbound = []state.OutboundMessage{{Text: prompt, Kind: "prompt"}}
	}

	var clears []state.SlotUpdate
	if cfg.Force {
		if _, ok := s.FlowSlots[top.FlowID][cfg.Slot]; ok {
			clears = []state.SlotUpdate{{FlowID: top.FlowID, Name: cfg.Slot}}
		}
	}

	return Result{
		Outcome: OutcomeSuspend,
		Suspend: SuspendWaitingForUser,
		Delta: state.FlowDelta{
			ClearSlots:        clears,
			TaskSet:           task,
			ConversationState: state.StateWaitingForSlot,
			Outbound:          outbound,
		},
	}
}

// slotPrompt renders the declared slot's own prompt template (§6.1's
// `slots.<name>.prompt`) for the collect step's initial suspend — the
// slot, not the step, owns the prompt text, since the same slot may be
// collected from more than one step across a document.
func slotPrompt(ec *Context, slotName string, s *state.DialogueState) string {
	slot, ok := ec.Doc.Slots[slotName]
	if !ok || slot.Prompt == "" {
		return ""
	}
	return renderTemplate(slot.Prompt, envFor(s, nil))
}

// ResumeCollect implements §4.5's collect resume behavior: the runtime
// calls this once the NLU has produced a raw candidate value for the
// pending slot (or a timeout has fired with candidate == nil).
//
// Normalization runs before validation and is cached per
// (normalizer, raw_value) per §4.2/§4.10; its canonical output is both
// what validation sees and what the slot ultimately stores.
func ResumeCollect(step dsl.StepDef, s *state.DialogueState, ec *Context, task *state.CollectTask, candidate any, timedOut bool) Result {
	cfg := step.Collect

	if timedOut {
		target := cfg.OnTimeout
		if target == "" {
			// Default: re-prompt once by re-emitting the same suspend.
			return Result{
				Outcome: OutcomeSuspend,
				Suspend: SuspendWaitingForUser,
				Delta:   state.FlowDelta{TaskSet: task, ConversationState: state.StateWaitingForSlot},
			}
		}
		return deltaResult(state.FlowDelta{
			ClearTask:         true,
			StepAdvance:       target,
			ConversationState: state.StateUnderstanding,
		})
	}

	normalized := candidate
	slot, hasSlot := ec.Doc.Slots[cfg.Slot]
	if hasSlot && slot.Normalizer != "" {
		fn, ok := ec.Normalizers.Resolve(slot.Normalizer)
		if ok {
			var err error
			if ec.NormCache != nil {
				normalized, err = ec.NormCache.Apply(ec.Ctx, slot.Normalizer, candidate, fn)
			} else {
				normalized, err = fn(ec.Ctx, candidate)
			}
			if err != nil {
				return failResult(ferrors.NewStepError(ferrors.KindValidation, err.Error()))
			}
		}
	}

	if hasSlot && slot.Validator != "" {
		fn, ok := ec.Validators.Resolve(slot.Validator)
		if ok {
			valid, msg, err := fn(ec.Ctx, normalized)
			if err != nil {
				return failResult(ferrors.NewStepError(ferrors.KindValidation, err.Error()))
			}
			if !valid {
				if slot.InvalidMessage != "" {
					msg = slot.InvalidMessage
				}
				return onInvalidCandidate(step, s, ec, task, msg)
			}
		}
	}

	top := s.ActiveFlow()
	var flowID string
	if top != nil {
		flowID = top.FlowID
	}
	return deltaResult(state.FlowDelta{
		SlotUpdates:       []state.SlotUpdate{{FlowID: flowID, Name: cfg.Slot, Value: normalized}},
		ClearTask:         true,
		StepAdvance:       nextStepID(step),
		ConversationState: state.StateUnderstanding,
	})
}

func onInvalidCandidate(step dsl.StepDef, s *state.DialogueState, ec *Context, task *state.CollectTask, invalidMessage string) Result {
	cfg := step.Collect
	maxAttempts := cfg.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = ec.Settings.Collection.MaxValidationAttempts
	}
	next := &state.CollectTask{FlowID: task.FlowID, StepID: task.StepID, Slot: task.Slot, Attempts: task.Attempts + 1}
	vars := slotUpdatesFromMap(s, validationVars(invalidMessage, next.Attempts))

	if next.Attempts >= maxAttempts {
		if cfg.OnInvalid != "" {
			return deltaResult(state.FlowDelta{
				SlotUpdates:       vars,
				ClearTask:         true,
				StepAdvance:       cfg.OnInvalid,
				ConversationState: state.StateUnderstanding,
			})
		}
		return Result{
			Outcome: OutcomeDelta,
			Delta: state.FlowDelta{
				SlotUpdates:       vars,
				ClearTask:         true,
				ConversationState: state.StateCompleted,
			},
			Handoff: &HandoffSignal{
				Queue:               ec.Settings.Handoff.DefaultQueue,
				Message:             "max validation attempts exceeded for slot " + task.Slot,
				ConversationSummary: conversationSummary(s, 10),
			},
		}
	}

	var outbound []state.OutboundMessage
	if invalidMessage != "" {
		outbound = append(outbound, state.OutboundMessage{Text: invalidMessage, Kind: "prompt"})
	}
	return Result{
		Outcome: OutcomeSuspend,
		Suspend: SuspendWaitingForUser,
		Delta: state.FlowDelta{
			SlotUpdates:       vars,
			TaskSet:           next,
			ConversationState: state.StateWaitingForSlot,
			Outbound:          outbound,
		},
	}
}

// nextStepID returns the raw jump_to target (or "" for "default
// sequential successor", which the runtime/graph resolves via
// FlowGraph.ResolveTarget).
func nextStepID(step dsl.StepDef) string {
	return step.JumpTo
}
