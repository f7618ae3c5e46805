package nodeexec

import (
	"github.com/jmorenobl/soni/dsl"
	"github.com/jmorenobl/soni/expr"
	"github.com/jmorenobl/soni/state"
)

// ExecuteSay implements §4.5's `say(message | response)`: non-blocking,
// resolves the template or named response, enqueues one outbound
// message, and advances.
func ExecuteSay(step dsl.StepDef, s *state.DialogueState, ec *Context) Result {
	text := resolveOutboundText(step.Say.Message, step.Say.Response, step.Say.Data, s, ec)
	return deltaResult(state.FlowDelta{
		Outbound:    []state.OutboundMessage{{Text: text, Kind: "say"}},
		StepAdvance: step.JumpTo,
	})
}

func resolveOutboundText(message, response string, data map[string]string, s *state.DialogueState, ec *Context) string {
	env := envFor(s, dataEnv(data, s, ec))
	if response != "" {
		language := sessionLanguage(s, ec)
		if ec.Responses != nil {
			if tpl, ok := ec.Responses.Resolve(response, language); ok {
				return renderTemplate(tpl, env)
			}
		}
		return response
	}
	return renderTemplate(message, env)
}

func renderTemplate(src string, env expr.Env) string {
	tpl, err := expr.CompileTemplate(src)
	if err != nil {
		return ""
	}
	return tpl.Render(env)
}

// dataEnv evaluates a say/generate step's `data` map (each value a
// `{name}`/`{{ expr }}`/literal per §4.5's `set` semantics) into a flat
// map merged on top of the state-derived Env, so templates can reference
// either state or step-local data.
func dataEnv(data map[string]string, s *state.DialogueState, ec *Context) map[string]any {
	if len(data) == 0 {
		return nil
	}
	base := envFor(s, nil)
	out := make(map[string]any, len(data))
	for k, raw := range data {
		out[k] = evalAssignable(raw, base)
	}
	return out
}

func sessionLanguage(s *state.DialogueState, ec *Context) string {
	if lang, ok := s.SessionSlots["language"].(string); ok && lang != "" {
		return lang
	}
	return ec.Settings.I18n.DefaultLanguage
}
