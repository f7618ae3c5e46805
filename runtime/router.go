package runtime

import (
	"context"

	"github.com/jmorenobl/soni/nlu"
	"github.com/jmorenobl/soni/nodeexec"
	"github.com/jmorenobl/soni/state"
)

// collectReply is the router's interpretation of a reply to a pending
// collect step: a raw candidate value ready for ResumeCollect's own
// normalize/validate pipeline.
type collectReply struct {
	Candidate any
	TimedOut  bool
}

// routeResult is everything the router derives from one incoming
// message: the deterministic commands to fold into state, at most one
// of collectReply/confirmReply for the currently pending task (if any),
// and any outbound message the router itself wants to emit (a
// clarification, an out-of-scope notice) rather than one produced by
// stepping the graph.
type routeResult struct {
	Commands     []Command
	CollectReply *collectReply
	ConfirmReply *nodeexec.ConfirmReply
	Outbound     []state.OutboundMessage
}

// lowConfidenceThreshold is the confidence floor below which a
// WAITING_FOR_SLOT/CONFIRMING reply's understand_slot result is treated
// as too ambiguous to act on directly, falling back to a full
// understand_full call (§4.6: "falling back to full NLU on low
// confidence/ambiguity").
const lowConfidenceThreshold = 0.5

// route implements §4.6's router: which NLU entry point to call (or
// none, for EXECUTING_ACTION) given the current conversation_state, and
// how to turn its result into commands.
func (e *Engine) route(ctx context.Context, s *state.DialogueState, message string) routeResult {
	scope := e.scopeFor(s)

	switch s.ConversationState {
	case state.StateWaitingForSlot, state.StateConfirming:
		task, waitingSlot := pendingSlotContext(s)
		result, err := e.understander.UnderstandSlot(ctx, message, waitingSlot, scope)
		if err != nil || result.Confidence < lowConfidenceThreshold {
			return e.routeFull(ctx, s, message, scope)
		}
		return e.routeSlotResult(s, task, result)

	case state.StateExecutingAction:
		// A turn should never observe EXECUTING_ACTION at its start in
		// this engine — action steps run to completion synchronously
		// within the turn that started them (nodeexec.ExecuteAction's own
		// doc comment). If a prior process crashed mid-action, treat the
		// new message as queued input for once the flow resumes.
		return routeResult{}

	default: // IDLE, UNDERSTANDING, VALIDATING_SLOT, COMPLETED, ERROR
		return e.routeFull(ctx, s, message, scope)
	}
}

func (e *Engine) routeFull(ctx context.Context, s *state.DialogueState, message string, scope nlu.Scope) routeResult {
	history := recentHistory(s, 10)
	result, err := e.understander.UnderstandFull(ctx, message, history, scope)
	if err != nil {
		return routeResult{Outbound: []state.OutboundMessage{{Text: "I ran into a problem understanding that.", Kind: "error"}}}
	}

	switch result.MessageType {
	case nlu.MessageIntent:
		return e.routeIntent(s, result, scope)
	case nlu.MessageSlotValue:
		return routeResult{Commands: slotCommands(s, result.Slots)}
	default: // out_of_scope, digression, small_talk
		return routeResult{Outbound: []state.OutboundMessage{e.fallbackMessage(s)}}
	}
}

// routeIntent folds an understand_full intent result into commands. §4.10
// restricts the NLU to the vocabulary scopeFor computed for this turn
// ("the only flow/action names... the NLU is allowed to emit. Anything
// else is mapped to out_of_scope") — the core enforces that restriction
// itself here, rather than trusting each Understander implementation to
// self-police it the way nlu/rulebased happens to.
func (e *Engine) routeIntent(s *state.DialogueState, result nlu.FullResult, scope nlu.Scope) routeResult {
	if !scope.Allows(result.Command) {
		return routeResult{Outbound: []state.OutboundMessage{e.fallbackMessage(s)}}
	}

	var cmds []Command
	if result.Command == "cancel_flow" {
		cmds = append(cmds, Command{Kind: CmdCancelFlow})
	} else if _, ok := e.doc.Flows[result.Command]; ok {
		cmds = append(cmds, Command{Kind: CmdStartFlow, FlowName: result.Command})
	}
	cmds = append(cmds, slotCommands(s, result.Slots)...)
	return routeResult{Commands: cmds}
}

func (e *Engine) routeSlotResult(s *state.DialogueState, task state.PendingTask, result nlu.SlotResult) routeResult {
	switch result.Kind {
	case nlu.KindCancellation:
		return routeResult{Commands: []Command{{Kind: CmdCancelFlow}}}

	case nlu.KindConfirmation:
		if _, ok := task.(*state.ConfirmTask); ok {
			kind := nodeexec.ConfirmNo
			if truthy(result.Value) {
				kind = nodeexec.ConfirmYes
			}
			reply := nodeexec.ConfirmReply{Kind: kind}
			return routeResult{ConfirmReply: &reply}
		}
		// A yes/no reply to a plain collect prompt is treated as the slot
		// value itself (e.g. a boolean slot).
		if _, ok := task.(*state.CollectTask); ok {
			return routeResult{CollectReply: &collectReply{Candidate: truthy(result.Value)}}
		}

	case nlu.KindCorrection, nlu.KindClarification:
		if _, ok := task.(*state.ConfirmTask); ok {
			kind := nodeexec.ConfirmModify
			if result.Kind == nlu.KindClarification {
				kind = nodeexec.ConfirmClarify
			}
			reply := nodeexec.ConfirmReply{Kind: kind, Slot: result.TargetSlot, Value: result.Value}
			return routeResult{ConfirmReply: &reply}
		}

	case nlu.KindSlotValue:
		if _, ok := task.(*state.ConfirmTask); ok {
			reply := nodeexec.ConfirmReply{Kind: nodeexec.ConfirmCorrect, Slot: result.TargetSlot, Value: result.Value}
			return routeResult{ConfirmReply: &reply}
		}
		return routeResult{CollectReply: &collectReply{Candidate: result.Value}}

	case nlu.KindIntentChange:
		// Ambiguous: the caller already falls back to understand_full
		// when confidence is low; a confident intent_change here means
		// genuinely abandon the pending task for a fresh command, which
		// the full-NLU path resolves on the next turn once routed there.
		return routeResult{}
	}
	return routeResult{}
}

func pendingSlotContext(s *state.DialogueState) (state.PendingTask, string) {
	switch t := s.PendingTask.(type) {
	case *state.CollectTask:
		return t, t.Slot
	case *state.ConfirmTask:
		return t, ""
	}
	return nil, ""
}

func truthy(v any) bool {
	b, _ := v.(bool)
	return b
}

func slotCommands(s *state.DialogueState, slots map[string]any) []Command {
	cmds := make([]Command, 0, len(slots))
	for name, value := range slots {
		cmds = append(cmds, Command{Kind: CmdSetSlot, SlotName: name, SlotValue: value})
	}
	return cmds
}

func recentHistory(s *state.DialogueState, n int) []string {
	if len(s.Messages) == 0 {
		return nil
	}
	start := 0
	if len(s.Messages) > n {
		start = len(s.Messages) - n
	}
	out := make([]string, 0, len(s.Messages)-start)
	for _, m := range s.Messages[start:] {
		out = append(out, m.Role+": "+m.Text)
	}
	return out
}

func (e *Engine) fallbackMessage(s *state.DialogueState) state.OutboundMessage {
	lang := sessionLanguage(s, e.doc.Settings.I18n.DefaultLanguage)
	if e.responses != nil {
		if text, ok := e.responses.Resolve("out_of_scope", lang); ok {
			return state.OutboundMessage{Text: text, Kind: "say"}
		}
	}
	return state.OutboundMessage{Text: "I'm not sure how to help with that.", Kind: "say"}
}

func sessionLanguage(s *state.DialogueState, fallback string) string {
	if lang, ok := s.SessionSlots["language"].(string); ok && lang != "" {
		return lang
	}
	return fallback
}

// scopeFor computes §4.10's dynamic scope: the flow/action/global-intent
// vocabulary the NLU may emit this turn, given the current stack.
func (e *Engine) scopeFor(s *state.DialogueState) nlu.Scope {
	scope := nlu.Scope{GlobalIntents: []string{"cancel_flow"}}
	if top := s.ActiveFlow(); top != nil {
		scope.UnfilledSlots = e.unfilledSlots(s, top)
		return scope
	}
	for name := range e.doc.Flows {
		scope.Flows = append(scope.Flows, name)
	}
	for name := range e.doc.Actions {
		scope.Actions = append(scope.Actions, name)
	}
	return scope
}

// unfilledSlots lists the declared slots of the active flow's remaining
// collect steps that have no value yet, giving the NLU a hint about what
// it may still be asked to extract this turn.
func (e *Engine) unfilledSlots(s *state.DialogueState, top *state.FlowContext) []string {
	flow, ok := e.doc.Flows[top.FlowName]
	if !ok {
		return nil
	}
	filled := s.FlowSlots[top.FlowID]
	var out []string
	for _, step := range flow.Steps {
		if step.Type != "collect" || step.Collect == nil {
			continue
		}
		if _, ok := filled[step.Collect.Slot]; ok {
			continue
		}
		out = append(out, step.Collect.Slot)
	}
	return out
}
