package nodeexec

import (
	"strings"

	"github.com/jmorenobl/soni/dsl"
	"github.com/jmorenobl/soni/expr"
	"github.com/jmorenobl/soni/state"
)

// ExecuteSet implements §4.5's `set(values)`: evaluate each value —
// `"{{ expr }}"` as a typed expression (undefined → the literal value
// `nil`, logged), `{name}` as string interpolation (undefined → `""`),
// bare literal preserved as-is — and write session.* keys to session
// scope, everything else to the active flow's scope.
func ExecuteSet(step dsl.StepDef, s *state.DialogueState, ec *Context) Result {
	env := envFor(s, nil)
	top := s.ActiveFlow()
	var flowID string
	if top != nil {
		flowID = top.FlowID
	}

	updates := make([]state.SlotUpdate, 0, len(step.Set.Values))
	for name, raw := range step.Set.Values {
		value, undefined := evaluateValue(raw, env)
		if undefined && ec.Log != nil {
			ec.Log.WithField("set_target", name).Warn("set: expression evaluated to undefined")
		}
		if strings.HasPrefix(name, "session.") {
			updates = append(updates, state.SlotUpdate{Session: true, Name: strings.TrimPrefix(name, "session."), Value: value})
			continue
		}
		updates = append(updates, state.SlotUpdate{FlowID: flowID, Name: name, Value: value})
	}

	return deltaResult(state.FlowDelta{SlotUpdates: updates, StepAdvance: step.JumpTo})
}

// evaluateValue implements the three-way `set`/`data` value grammar of
// §4.5: a string fully wrapped in `{{ }}` is a typed expression
// (preserving its evaluated type); a string containing `{name}` spans is
// rendered via string interpolation (always a string); anything else is
// a bare literal, returned unevaluated. undefined reports whether a
// typed-expression evaluation resolved an undefined name.
func evaluateValue(raw string, env expr.Env) (value any, undefined bool) {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{{") && strings.HasSuffix(trimmed, "}}") {
		inner := strings.TrimSpace(trimmed[2 : len(trimmed)-2])
		e, err := expr.Compile(inner)
		if err != nil {
			return nil, true
		}
		v, ok, err := e.EvalForSet(env)
		if err != nil {
			return nil, true
		}
		return v, !ok
	}
	if strings.Contains(raw, "{") {
		tpl, err := expr.CompileTemplate(raw)
		if err != nil {
			return "", false
		}
		return tpl.Render(env), false
	}
	return raw, false
}

func evalAssignable(raw string, env expr.Env) any {
	v, _ := evaluateValue(raw, env)
	return v
}
