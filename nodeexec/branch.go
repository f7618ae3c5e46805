package nodeexec

import (
	"github.com/jmorenobl/soni/dsl"
	"github.com/jmorenobl/soni/expr"
	"github.com/jmorenobl/soni/state"
)

// ExecuteBranch implements §4.5's `branch(when[])`: evaluate each case's
// condition in order (no side effects); the first true condition's
// `then` wins, `else` otherwise. Non-exhaustive branches without an
// `else` simply advance to the default sequential successor — the graph
// compiler already warned about this at compile time (§4.2).
func ExecuteBranch(step dsl.StepDef, s *state.DialogueState, ec *Context) Result {
	env := envFor(s, nil)
	for _, c := range step.Branch.Cases {
		if branchConditionTrue(c, env) {
			return deltaResult(state.FlowDelta{StepAdvance: c.Then})
		}
	}
	return deltaResult(state.FlowDelta{StepAdvance: step.Branch.Else})
}

func branchConditionTrue(c dsl.BranchCase, env expr.Env) bool {
	switch {
	case len(c.All) > 0:
		e, err := expr.CompileAll(c.All)
		if err != nil {
			return false
		}
		return e.Condition(env)
	case len(c.Any) > 0:
		e, err := expr.CompileAny(c.Any)
		if err != nil {
			return false
		}
		return e.Condition(env)
	case c.Condition != "":
		e, err := expr.Compile(c.Condition)
		if err != nil {
			return false
		}
		return e.Condition(env)
	default:
		return false
	}
}
