package nodeexec

import (
	"github.com/jmorenobl/soni/dsl"
	"github.com/jmorenobl/soni/expr"
	"github.com/jmorenobl/soni/ferrors"
	"github.com/jmorenobl/soni/state"
)

// ConfirmReplyKind classifies how the NLU interpreted a reply to a
// pending confirm step (§4.5).
type ConfirmReplyKind string

const (
	ConfirmYes         ConfirmReplyKind = "confirm"
	ConfirmNo          ConfirmReplyKind = "deny"
	ConfirmCorrect     ConfirmReplyKind = "correct"
	ConfirmModify      ConfirmReplyKind = "modify"
	ConfirmCancel      ConfirmReplyKind = "cancel"
	ConfirmClarify     ConfirmReplyKind = "clarify"
)

// ConfirmReply is the runtime's NLU-derived interpretation of a reply to
// a pending confirm, handed to ResumeConfirm.
type ConfirmReply struct {
	Kind  ConfirmReplyKind
	Slot  string
	Value any
}

// ExecuteConfirm implements §4.5's `confirm(...)`: emit the prompt and
// suspend with a ConfirmTask.
func ExecuteConfirm(step dsl.StepDef, s *state.DialogueState, ec *Context) Result {
	top := s.ActiveFlow()
	if top == nil {
		return failResult(ferrors.NewStepError(ferrors.KindUnknownRuntime, "confirm step with no active flow"))
	}
	task := &state.ConfirmTask{FlowID: top.FlowID, StepID: step.ID, Attempts: 0}
	text := resolveOutboundText(step.Confirm.Message, "", nil, s, ec)
	return Result{
		Outcome: OutcomeSuspend,
		Suspend: SuspendWaitingForUser,
		Delta: state.FlowDelta{
			TaskSet:           task,
			ConversationState: state.StateConfirming,
			Outbound:          []state.OutboundMessage{{Text: text, Kind: "prompt"}},
		},
	}
}

// ResumeConfirm implements §4.5's confirm resume behavior: apply any
// slot update the reply carries, then route with priority
// on_correction/on_modification > on_change > on_yes/on_no.
func ResumeConfirm(step dsl.StepDef, s *state.DialogueState, ec *Context, reply ConfirmReply) Result {
	cfg := step.Confirm
	top := s.ActiveFlow()
	var flowID string
	if top != nil {
		flowID = top.FlowID
	}

	var updates []state.SlotUpdate
	if reply.Slot != "" && (reply.Kind == ConfirmCorrect || reply.Kind == ConfirmModify) {
		updates = append(updates, state.SlotUpdate{FlowID: flowID, Name: reply.Slot, Value: reply.Value})
	}

	var target string
	switch {
	case reply.Kind == ConfirmCorrect && cfg.OnCorrection != "":
		target = cfg.OnCorrection
	case reply.Kind == ConfirmModify && cfg.OnModification != "":
		target = cfg.OnModification
	case (reply.Kind == ConfirmCorrect || reply.Kind == ConfirmModify) && cfg.OnChange != "":
		target = cfg.OnChange
	case reply.Kind == ConfirmYes:
		target = cfg.OnYes
	case reply.Kind == ConfirmNo:
		target = cfg.OnNo
	case reply.Kind == ConfirmCancel:
		target = cfg.OnCancel
	default: // clarify, or correct/modify with no specific target configured
		// Scenario 2 (spec.md:339): a correction/modification with no
		// explicit routing re-displays the confirm prompt reflecting the
		// corrected value, so the slot update computed above must survive
		// into this branch's Delta, and the re-rendered prompt must see
		// the corrected value even though it has not been applied to
		// state yet (that happens when the runtime applies this Delta).
		text := resolveConfirmText(step.Confirm.Message, s, reply)
		return Result{
			Outcome: OutcomeSuspend,
			Suspend: SuspendWaitingForUser,
			Delta: state.FlowDelta{
				SlotUpdates:       updates,
				TaskSet:           &state.ConfirmTask{FlowID: flowID, StepID: step.ID},
				ConversationState: state.StateConfirming,
				Outbound:          []state.OutboundMessage{{Text: text, Kind: "prompt"}},
			},
		}
	}

	return deltaResult(state.FlowDelta{
		SlotUpdates:       updates,
		ClearTask:         true,
		StepAdvance:       target,
		ConversationState: state.StateUnderstanding,
	})
}

// resolveConfirmText re-renders a confirm step's message with any
// correction/modification value the reply just carried overlaid on top
// of the current state, so the re-displayed prompt reflects the
// corrected value a turn ahead of the SlotUpdates Delta actually being
// applied.
func resolveConfirmText(message string, s *state.DialogueState, reply ConfirmReply) string {
	env := envFor(s, nil)
	if reply.Slot != "" && (reply.Kind == ConfirmCorrect || reply.Kind == ConfirmModify) {
		env = expr.ChainEnv{Head: expr.MapEnv{reply.Slot: reply.Value}, Tail: env}
	}
	return renderTemplate(message, env)
}
