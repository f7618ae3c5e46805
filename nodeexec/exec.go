// Package nodeexec implements §4.5: one pure executor per step kind, each
// with the signature `execute(node, state, ctx) → Either(FlowDelta,
// Suspend(reason), Fail(error))`. None of these executors mutate
// DialogueState directly — each returns a Result the runtime merges via
// state.Apply (or interprets as a suspension/failure instead of a merge).
//
// Grounded throughout on the teacher's ProcessFunc/ProcessResult model
// (core/flow_types.go, core/flow.go's handleProcessResult): the teacher's
// single enum of "what happens next" (NextStep/GoToStep/RetryWithPrompt/
// CompleteFlow/CancelFlow) is generalized here into a typed three-way
// Result (delta, suspend, fail) so every step kind shares one executor
// shape instead of switching on the teacher's ProcessAction inside each
// handler.
package nodeexec

import (
	"context"
	"strings"
	"time"

	"github.com/jmorenobl/soni/dsl"
	"github.com/jmorenobl/soni/ferrors"
	"github.com/jmorenobl/soni/expr"
	"github.com/jmorenobl/soni/nlu"
	"github.com/jmorenobl/soni/registry"
	"github.com/jmorenobl/soni/state"
	"github.com/sirupsen/logrus"
)

// Outcome tags which arm of Result is populated.
type Outcome int

const (
	OutcomeDelta Outcome = iota
	OutcomeSuspend
	OutcomeFail
)

// Result is an executor's output: a FlowDelta to merge, a suspension
// reason (the turn stops advancing this flow and awaits user input), or a
// terminal step failure. Fail can also accompany an OutcomeDelta: an
// action or generate step that fails with no on_error target carries its
// error variables in Delta and the failure in Fail, and the runtime ends
// the flow with ERROR.
type Result struct {
	Outcome Outcome
	Delta   state.FlowDelta
	Suspend SuspendReason
	Fail    *ferrors.StepError

	// Handoff is set alongside an OutcomeDelta when the executor invokes
	// a handoff as a default recovery (e.g. collect's on_invalid default,
	// §4.5), rather than routing to an explicit `handoff` step. The
	// runtime is responsible for actually emitting the signal to the
	// named queue; the executor only describes it.
	Handoff *HandoffSignal
}

// HandoffSignal describes a handoff the runtime must emit to an external
// queue (§4.5's handoff step, and the default escalation several other
// steps fall back to).
type HandoffSignal struct {
	Queue   string
	Context map[string]any
	Message string

	// ConversationSummary is the `{conversation_summary}` value (§4.5's
	// handoff step): a rendering of the session's recent transcript, for
	// an agent picking up the escalated conversation cold.
	ConversationSummary string
}

// SuspendReason names why a node stopped advancing mid-turn (§4.6: "a
// Suspend, a call_flow push, a flow completion, or an error").
type SuspendReason string

const (
	SuspendWaitingForUser SuspendReason = "waiting_for_user"
	SuspendFlowPushed     SuspendReason = "flow_pushed"
)

func deltaResult(d state.FlowDelta) Result     { return Result{Outcome: OutcomeDelta, Delta: d} }
func suspendResult(r SuspendReason) Result     { return Result{Outcome: OutcomeSuspend, Suspend: r} }
func failResult(e *ferrors.StepError) Result   { return Result{Outcome: OutcomeFail, Fail: e} }

// Context bundles every collaborator and setting an executor may need.
// It is built once per turn by the runtime and passed to every node it
// steps through — analogous to the teacher's *Context (core/context.go)
// but carrying this spec's collaborators (registries, NLU, clock)
// instead of Telegram-specific transport state.
type Context struct {
	Ctx context.Context

	Doc         *dsl.Document
	Actions     *registry.ActionRegistry
	Validators  *registry.ValidatorRegistry
	Normalizers *registry.NormalizerRegistry
	NormCache   *registry.NormalizationCache
	Generator   nlu.Generator
	Responses   ResponseResolver
	Settings    dsl.Settings
	Log         *logrus.Entry

	// FlowOnError is the active flow's flow-level on_error target, used
	// when a step has no on_error of its own (§4.5's action/generate
	// fallback chain: step on_error, else flow on_error, else terminate).
	FlowOnError string

	// Now returns the current time; overridable in tests for
	// deterministic timeout/backoff behavior.
	Now func() time.Time
}

// ResponseResolver resolves a named response-table entry for the current
// session language, per §6.2. Implemented by the responses package;
// declared here as a narrow interface to avoid nodeexec depending on
// responses' golang.org/x/text machinery.
type ResponseResolver interface {
	Resolve(name, language string) (string, bool)
}

func (c *Context) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// envFor builds the expr.Env for evaluating expressions against s,
// implementing §4.1's resolution order: local flow slots → flow.*
// (explicit alias) → session.* (explicit alias, and bare fallback) →
// builtin error/validation vars → undefined.
func envFor(s *state.DialogueState, builtins map[string]any) expr.Env {
	return &stateEnv{state: s, builtins: builtins}
}

// EnvFor is the exported form of envFor, used by the runtime package to
// evaluate a step's `when` guard (§4.1, §4.6) with the same variable
// resolution order the step executors themselves use.
func EnvFor(s *state.DialogueState, builtins map[string]any) expr.Env {
	return envFor(s, builtins)
}

type stateEnv struct {
	state    *state.DialogueState
	builtins map[string]any
}

func (e *stateEnv) flowSlots() map[string]any {
	top := e.state.ActiveFlow()
	if top == nil {
		return map[string]any{}
	}
	return e.state.FlowSlots[top.FlowID]
}

func (e *stateEnv) Resolve(name string) (any, bool) {
	switch name {
	case "flow":
		return e.flowSlots(), true
	case "session":
		return map[string]any(e.state.SessionSlots), true
	}
	if v, ok := e.flowSlots()[name]; ok {
		return v, true
	}
	if v, ok := e.state.SessionSlots[name]; ok {
		return v, true
	}
	if e.builtins != nil {
		if v, ok := e.builtins[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Executor is the uniform per-step-kind function signature of §4.5.
type Executor func(step dsl.StepDef, s *state.DialogueState, ec *Context) Result

// Dispatch selects the executor for step.Type.
func Dispatch(step dsl.StepDef, s *state.DialogueState, ec *Context) Result {
	switch step.Type {
	case dsl.StepCollect:
		return ExecuteCollect(step, s, ec)
	case dsl.StepAction:
		return ExecuteAction(step, s, ec)
	case dsl.StepBranch:
		return ExecuteBranch(step, s, ec)
	case dsl.StepSay:
		return ExecuteSay(step, s, ec)
	case dsl.StepConfirm:
		return ExecuteConfirm(step, s, ec)
	case dsl.StepGenerate:
		return ExecuteGenerate(step, s, ec)
	case dsl.StepCallFlow:
		return ExecuteCallFlow(step, s, ec)
	case dsl.StepSet:
		return ExecuteSet(step, s, ec)
	case dsl.StepHandoff:
		return ExecuteHandoff(step, s, ec)
	}
	return failResult(ferrors.NewStepError(ferrors.KindUnknownRuntime, "unknown step kind "+string(step.Type)))
}

// errorVars builds the §6.5 error-variable bundle set atomically on
// action/generate failure.
func errorVars(errType, message, code string, details map[string]any) map[string]any {
	return map[string]any{
		"_error":         true,
		"_error_type":    errType,
		"_error_message": message,
		"_error_code":    code,
		"_error_details": details,
	}
}

// validationVars builds the §4.1 builtin bundle exposed while a collect
// step's on_invalid/retry path is evaluated: the failed-validation error
// vars plus `_validation_attempts`, the pending CollectTask's attempt
// count (nodeexec/collect.go's onInvalidCandidate).
func validationVars(message string, attempts int) map[string]any {
	vars := errorVars("validation", message, "", map[string]any{})
	vars["_validation_attempts"] = attempts
	return vars
}

// conversationSummary renders the last n transcript turns as `role: text`
// lines, the value bound to `{conversation_summary}` in a handoff message
// (§4.5) — grounded on the same windowing runtime.recentHistory uses to
// build NLU history, since both exist to give a collaborator just enough
// recent context without replaying the whole session.
func conversationSummary(s *state.DialogueState, n int) string {
	if len(s.Messages) == 0 {
		return ""
	}
	start := 0
	if len(s.Messages) > n {
		start = len(s.Messages) - n
	}
	lines := make([]string, 0, len(s.Messages)-start)
	for _, m := range s.Messages[start:] {
		lines = append(lines, m.Role+": "+m.Text)
	}
	return strings.Join(lines, "\n")
}

func slotUpdatesFromMap(s *state.DialogueState, vars map[string]any) []state.SlotUpdate {
	top := s.ActiveFlow()
	var flowID string
	if top != nil {
		flowID = top.FlowID
	}
	updates := make([]state.SlotUpdate, 0, len(vars))
	for k, v := range vars {
		updates = append(updates, state.SlotUpdate{FlowID: flowID, Name: k, Value: v})
	}
	return updates
}
