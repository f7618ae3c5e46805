package nodeexec

import (
	"github.com/jmorenobl/soni/dsl"
	"github.com/jmorenobl/soni/expr"
	"github.com/jmorenobl/soni/state"
)

// ExecuteHandoff implements §4.5's `handoff(queue, context?, message?)`:
// collect the named context slots, render the message template, emit the
// signal, and move the conversation to COMPLETED — handoff is always a
// terminal step, there is no jump_to to honor afterward.
func ExecuteHandoff(step dsl.StepDef, s *state.DialogueState, ec *Context) Result {
	cfg := step.Handoff
	env := envFor(s, nil)

	top := s.ActiveFlow()
	var flowSlots map[string]any
	if top != nil {
		flowSlots = s.FlowSlots[top.FlowID]
	}
	context := make(map[string]any, len(cfg.Context))
	for _, name := range cfg.Context {
		if v, ok := flowSlots[name]; ok {
			context[name] = v
		} else if v, ok := s.SessionSlots[name]; ok {
			context[name] = v
		}
	}

	message := cfg.Message
	if message != "" {
		tpl, err := expr.CompileTemplate(message)
		if err == nil {
			message = tpl.Render(env)
		}
	}

	return Result{
		Outcome: OutcomeDelta,
		Delta: state.FlowDelta{
			ConversationState: state.StateCompleted,
			Outbound:          []state.OutboundMessage{{Text: message, Kind: "handoff"}},
		},
		Handoff: &HandoffSignal{
			Queue:               cfg.Queue,
			Context:             context,
			Message:             message,
			ConversationSummary: conversationSummary(s, 10),
		},
	}
}
