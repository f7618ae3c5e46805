package nodeexec

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/jmorenobl/soni/dsl"
	"github.com/jmorenobl/soni/registry"
	"github.com/jmorenobl/soni/state"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResponses map[string]string

func (r stubResponses) Resolve(name, _ string) (string, bool) {
	v, ok := r[name]
	return v, ok
}

type stubGenerator struct {
	text string
	err  error
}

func (g *stubGenerator) Generate(_ context.Context, _ string, _ map[string]any) (string, error) {
	return g.text, g.err
}

func newTestContext(doc *dsl.Document) *Context {
	log := logrus.New()
	log.Out = io.Discard
	return &Context{
		Ctx:         context.Background(),
		Doc:         doc,
		Actions:     registry.NewActionRegistry(),
		Validators:  registry.NewValidatorRegistry(),
		Normalizers: registry.NewNormalizerRegistry(),
		NormCache:   registry.NewNormalizationCache(time.Minute),
		Generator:   &stubGenerator{text: "generated text"},
		Responses:   stubResponses{"greeting": "Hello {name}!"},
		Settings:    dsl.DefaultSettings(),
		Log:         logrus.NewEntry(log),
	}
}

func pushedState(flowName, currentStep string) *state.DialogueState {
	s := state.New("sess-1")
	fc := state.NewFlowContext("f1", flowName, currentStep)
	return state.Apply(s, state.FlowDelta{PushFlow: &fc})
}

func TestExecuteCollectAdvancesWhenSlotAlreadyFilled(t *testing.T) {
	s := pushedState("book", "ask_origin")
	s = state.Apply(s, state.FlowDelta{SlotUpdates: []state.SlotUpdate{{FlowID: "f1", Name: "origin", Value: "NYC"}}})

	step := dsl.StepDef{ID: "ask_origin", Type: dsl.StepCollect, JumpTo: "ask_dest", Collect: &dsl.CollectStep{Slot: "origin"}}
	res := ExecuteCollect(step, s, newTestContext(&dsl.Document{}))

	require.Equal(t, OutcomeDelta, res.Outcome)
	assert.Equal(t, "ask_dest", res.Delta.StepAdvance)
}

func TestExecuteCollectForceClearsExistingValueBeforeSuspending(t *testing.T) {
	s := pushedState("book", "ask_origin")
	s = state.Apply(s, state.FlowDelta{SlotUpdates: []state.SlotUpdate{{FlowID: "f1", Name: "origin", Value: "NYC"}}})

	step := dsl.StepDef{ID: "ask_origin", Type: dsl.StepCollect, JumpTo: "ask_dest", Collect: &dsl.CollectStep{Slot: "origin", Force: true}}
	res := ExecuteCollect(step, s, newTestContext(&dsl.Document{}))

	require.Equal(t, OutcomeSuspend, res.Outcome)
	require.Len(t, res.Delta.ClearSlots, 1)
	assert.Equal(t, "origin", res.Delta.ClearSlots[0].Name)

	next := state.Apply(s, res.Delta)
	_, ok := next.FlowSlots["f1"]["origin"]
	assert.False(t, ok)
}

func TestExecuteCollectSuspendsWhenSlotUnfilled(t *testing.T) {
	s := pushedState("book", "ask_origin")
	step := dsl.StepDef{ID: "ask_origin", Type: dsl.StepCollect, Collect: &dsl.CollectStep{Slot: "origin"}}
	res := ExecuteCollect(step, s, newTestContext(&dsl.Document{}))

	require.Equal(t, OutcomeSuspend, res.Outcome)
	require.NotNil(t, res.Delta.TaskSet)
	task, ok := res.Delta.TaskSet.(*state.CollectTask)
	require.True(t, ok)
	assert.Equal(t, "origin", task.Slot)
}

func TestResumeCollectValidAdvancesAndFillsSlot(t *testing.T) {
	doc := &dsl.Document{Slots: map[string]dsl.SlotDef{"origin": {Name: "origin", Type: dsl.SlotString}}}
	ec := newTestContext(doc)
	s := pushedState("book", "ask_origin")
	step := dsl.StepDef{ID: "ask_origin", Type: dsl.StepCollect, JumpTo: "ask_dest", Collect: &dsl.CollectStep{Slot: "origin"}}
	task := &state.CollectTask{FlowID: "f1", StepID: "ask_origin", Slot: "origin"}

	res := ResumeCollect(step, s, ec, task, "NYC", false)
	require.Equal(t, OutcomeDelta, res.Outcome)
	assert.Equal(t, "ask_dest", res.Delta.StepAdvance)
	assert.True(t, res.Delta.ClearTask)
	require.Len(t, res.Delta.SlotUpdates, 1)
	assert.Equal(t, "NYC", res.Delta.SlotUpdates[0].Value)
}

func TestResumeCollectInvalidReprompts(t *testing.T) {
	doc := &dsl.Document{Slots: map[string]dsl.SlotDef{"origin": {Name: "origin", Validator: "nonempty"}}}
	ec := newTestContext(doc)
	ec.Validators.Register("nonempty", func(_ context.Context, v any) (bool, string, error) {
		return false, "please provide a value", nil
	})
	s := pushedState("book", "ask_origin")
	step := dsl.StepDef{ID: "ask_origin", Type: dsl.StepCollect, JumpTo: "ask_dest", Collect: &dsl.CollectStep{Slot: "origin"}}
	task := &state.CollectTask{FlowID: "f1", StepID: "ask_origin", Slot: "origin"}

	res := ResumeCollect(step, s, ec, task, "", false)
	require.Equal(t, OutcomeSuspend, res.Outcome)
	resumedTask, ok := res.Delta.TaskSet.(*state.CollectTask)
	require.True(t, ok)
	assert.Equal(t, 1, resumedTask.Attempts)
	require.Len(t, res.Delta.Outbound, 1)
	assert.Equal(t, "please provide a value", res.Delta.Outbound[0].Text)
}

func TestResumeCollectInvalidExposesValidationAttempts(t *testing.T) {
	doc := &dsl.Document{Slots: map[string]dsl.SlotDef{"origin": {Name: "origin", Validator: "nonempty"}}}
	ec := newTestContext(doc)
	ec.Validators.Register("nonempty", func(_ context.Context, v any) (bool, string, error) {
		return false, "please provide a value", nil
	})
	s := pushedState("book", "ask_origin")
	step := dsl.StepDef{ID: "ask_origin", Type: dsl.StepCollect, JumpTo: "ask_dest", Collect: &dsl.CollectStep{Slot: "origin"}}
	task := &state.CollectTask{FlowID: "f1", StepID: "ask_origin", Slot: "origin", Attempts: 1}

	res := ResumeCollect(step, s, ec, task, "", false)
	require.Equal(t, OutcomeSuspend, res.Outcome)

	next := state.Apply(s, res.Delta)
	env := EnvFor(next, nil)
	v, ok := env.Resolve("_validation_attempts")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestResumeCollectHandsOffAfterMaxAttempts(t *testing.T) {
	doc := &dsl.Document{Slots: map[string]dsl.SlotDef{"origin": {Name: "origin", Validator: "nonempty"}}}
	ec := newTestContext(doc)
	ec.Settings.Collection.MaxValidationAttempts = 1
	ec.Validators.Register("nonempty", func(_ context.Context, v any) (bool, string, error) {
		return false, "nope", nil
	})
	s := pushedState("book", "ask_origin")
	step := dsl.StepDef{ID: "ask_origin", Type: dsl.StepCollect, Collect: &dsl.CollectStep{Slot: "origin"}}
	task := &state.CollectTask{FlowID: "f1", StepID: "ask_origin", Slot: "origin", Attempts: 0}

	res := ResumeCollect(step, s, ec, task, "", false)
	require.Equal(t, OutcomeDelta, res.Outcome)
	require.NotNil(t, res.Handoff)
	assert.Equal(t, "default", res.Handoff.Queue)
	assert.Equal(t, state.StateCompleted, res.Delta.ConversationState)
}

func TestExecuteActionSucceedsOnFirstAttempt(t *testing.T) {
	ec := newTestContext(&dsl.Document{})
	ec.Actions.Register("book_flight", func(_ context.Context, inputs map[string]any) (map[string]any, error) {
		return map[string]any{"confirmation_code": "XYZ"}, nil
	})
	s := pushedState("book", "do_book")
	step := dsl.StepDef{ID: "do_book", Type: dsl.StepAction, JumpTo: "say_done", Action: &dsl.ActionStep{Call: "book_flight"}}

	res := ExecuteAction(step, s, ec)
	require.Equal(t, OutcomeDelta, res.Outcome)
	assert.Equal(t, "say_done", res.Delta.StepAdvance)
	require.Len(t, res.Delta.SlotUpdates, 1)
	assert.Equal(t, "XYZ", res.Delta.SlotUpdates[0].Value)
}

func TestExecuteActionRetriesThenFailsToOnError(t *testing.T) {
	ec := newTestContext(&dsl.Document{})
	attempts := 0
	ec.Actions.Register("flaky", func(_ context.Context, inputs map[string]any) (map[string]any, error) {
		attempts++
		return nil, assertErr{"boom"}
	})
	s := pushedState("book", "do_book")
	step := dsl.StepDef{
		ID: "do_book", Type: dsl.StepAction,
		Action: &dsl.ActionStep{Call: "flaky", OnError: "handle_error", Retry: &dsl.RetryPolicy{MaxAttempts: 3, Delay: "1ms", Backoff: "fixed"}},
	}

	res := ExecuteAction(step, s, ec)
	require.Equal(t, OutcomeDelta, res.Outcome)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, "handle_error", res.Delta.StepAdvance)
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }

func TestExecuteBranchPicksFirstTrueCase(t *testing.T) {
	s := pushedState("book", "check")
	s = state.Apply(s, state.FlowDelta{SlotUpdates: []state.SlotUpdate{{FlowID: "f1", Name: "age", Value: 20}}})
	step := dsl.StepDef{
		ID: "check", Type: dsl.StepBranch,
		Branch: &dsl.BranchStep{
			Cases: []dsl.BranchCase{
				{Condition: "age < 18", Then: "minor"},
				{Condition: "age >= 18", Then: "adult"},
			},
			Else: "unknown",
		},
	}
	res := ExecuteBranch(step, s, newTestContext(&dsl.Document{}))
	assert.Equal(t, "adult", res.Delta.StepAdvance)
}

func TestExecuteBranchFallsToElse(t *testing.T) {
	s := pushedState("book", "check")
	step := dsl.StepDef{
		ID: "check", Type: dsl.StepBranch,
		Branch: &dsl.BranchStep{Cases: []dsl.BranchCase{{Condition: "undefined_var == 1", Then: "x"}}, Else: "fallback"},
	}
	res := ExecuteBranch(step, s, newTestContext(&dsl.Document{}))
	assert.Equal(t, "fallback", res.Delta.StepAdvance)
}

func TestExecuteSayRendersLiteralMessage(t *testing.T) {
	s := pushedState("book", "greet")
	s = state.Apply(s, state.FlowDelta{SlotUpdates: []state.SlotUpdate{{FlowID: "f1", Name: "name", Value: "Ada"}}})
	step := dsl.StepDef{ID: "greet", Type: dsl.StepSay, JumpTo: "next", Say: &dsl.SayStep{Message: "Hi {name}"}}
	res := ExecuteSay(step, s, newTestContext(&dsl.Document{}))
	require.Len(t, res.Delta.Outbound, 1)
	assert.Equal(t, "Hi Ada", res.Delta.Outbound[0].Text)
	assert.Equal(t, "next", res.Delta.StepAdvance)
}

func TestExecuteSayResolvesNamedResponse(t *testing.T) {
	s := pushedState("book", "greet")
	s = state.Apply(s, state.FlowDelta{SlotUpdates: []state.SlotUpdate{{FlowID: "f1", Name: "name", Value: "Ada"}}})
	step := dsl.StepDef{ID: "greet", Type: dsl.StepSay, Say: &dsl.SayStep{Response: "greeting"}}
	res := ExecuteSay(step, s, newTestContext(&dsl.Document{}))
	assert.Equal(t, "Hello Ada!", res.Delta.Outbound[0].Text)
}

func TestExecuteSetWritesFlowAndSessionScopes(t *testing.T) {
	s := pushedState("book", "set_step")
	step := dsl.StepDef{
		ID: "set_step", Type: dsl.StepSet, JumpTo: "next",
		Set: &dsl.SetStep{Values: map[string]string{"total": "{{ 2 + 2 }}", "session.lang": "en"}},
	}
	res := ExecuteSet(step, s, newTestContext(&dsl.Document{}))
	require.Len(t, res.Delta.SlotUpdates, 2)
	byName := map[string]state.SlotUpdate{}
	for _, u := range res.Delta.SlotUpdates {
		byName[u.Name] = u
	}
	assert.Equal(t, int64(4), byName["total"].Value)
	assert.True(t, byName["lang"].Session)
	assert.Equal(t, "en", byName["lang"].Value)
}

func TestExecuteConfirmSuspendsWithPrompt(t *testing.T) {
	s := pushedState("book", "confirm_step")
	step := dsl.StepDef{ID: "confirm_step", Type: dsl.StepConfirm, Confirm: &dsl.ConfirmStep{Message: "Confirm?", OnYes: "done", OnNo: "cancelled"}}
	res := ExecuteConfirm(step, s, newTestContext(&dsl.Document{}))
	require.Equal(t, OutcomeSuspend, res.Outcome)
	require.Len(t, res.Delta.Outbound, 1)
	_, ok := res.Delta.TaskSet.(*state.ConfirmTask)
	require.True(t, ok)
}

func TestResumeConfirmRoutesByPriority(t *testing.T) {
	s := pushedState("book", "confirm_step")
	step := dsl.StepDef{
		ID: "confirm_step", Type: dsl.StepConfirm,
		Confirm: &dsl.ConfirmStep{OnYes: "yes_target", OnNo: "no_target", OnCorrection: "correction_target", OnChange: "change_target"},
	}
	ec := newTestContext(&dsl.Document{})

	res := ResumeConfirm(step, s, ec, ConfirmReply{Kind: ConfirmCorrect, Slot: "origin", Value: "LAX"})
	assert.Equal(t, "correction_target", res.Delta.StepAdvance)
	require.Len(t, res.Delta.SlotUpdates, 1)
	assert.Equal(t, "LAX", res.Delta.SlotUpdates[0].Value)

	res = ResumeConfirm(step, s, ec, ConfirmReply{Kind: ConfirmYes})
	assert.Equal(t, "yes_target", res.Delta.StepAdvance)

	res = ResumeConfirm(step, s, ec, ConfirmReply{Kind: ConfirmClarify})
	assert.Equal(t, OutcomeSuspend, res.Outcome)
}

func TestResumeConfirmCorrectionWithNoRouteRedisplaysPrompt(t *testing.T) {
	s := pushedState("book", "confirm_step")
	s = state.Apply(s, state.FlowDelta{SlotUpdates: []state.SlotUpdate{{FlowID: "f1", Name: "destination", Value: "San Francisco"}}})
	step := dsl.StepDef{
		ID: "confirm_step", Type: dsl.StepConfirm,
		Confirm: &dsl.ConfirmStep{Message: "Going to {destination}?", OnYes: "yes_target", OnNo: "no_target"},
	}
	ec := newTestContext(&dsl.Document{})

	res := ResumeConfirm(step, s, ec, ConfirmReply{Kind: ConfirmCorrect, Slot: "destination", Value: "San Diego"})
	require.Equal(t, OutcomeSuspend, res.Outcome)
	require.Len(t, res.Delta.SlotUpdates, 1)
	assert.Equal(t, "San Diego", res.Delta.SlotUpdates[0].Value)
	require.Len(t, res.Delta.Outbound, 1)
	assert.Equal(t, "Going to San Diego?", res.Delta.Outbound[0].Text)
	_, ok := res.Delta.TaskSet.(*state.ConfirmTask)
	require.True(t, ok)
}

func TestExecuteGenerateStoresTextAndAdvances(t *testing.T) {
	s := pushedState("book", "gen_step")
	step := dsl.StepDef{ID: "gen_step", Type: dsl.StepGenerate, JumpTo: "next", Generate: &dsl.GenerateStep{Instruction: "summarize", StoreAs: "summary"}}
	res := ExecuteGenerate(step, s, newTestContext(&dsl.Document{}))
	require.Equal(t, OutcomeDelta, res.Outcome)
	assert.Equal(t, "next", res.Delta.StepAdvance)
	require.Len(t, res.Delta.SlotUpdates, 1)
	assert.Equal(t, "generated text", res.Delta.SlotUpdates[0].Value)
}

func TestExecuteGenerateFailureRoutesToOnError(t *testing.T) {
	ec := newTestContext(&dsl.Document{})
	ec.Generator = &stubGenerator{err: assertErr{"nlu down"}}
	s := pushedState("book", "gen_step")
	step := dsl.StepDef{ID: "gen_step", Type: dsl.StepGenerate, Generate: &dsl.GenerateStep{Instruction: "summarize", OnError: "handle_error"}}
	res := ExecuteGenerate(step, s, ec)
	assert.Equal(t, "handle_error", res.Delta.StepAdvance)
}

func TestExecuteCallFlowPushesChildAndSuspends(t *testing.T) {
	doc := &dsl.Document{Flows: map[string]dsl.FlowDef{
		"pay": {Name: "pay", Steps: []dsl.StepDef{{ID: "ask_amount", Type: dsl.StepCollect, Collect: &dsl.CollectStep{Slot: "amount"}}}},
	}}
	ec := newTestContext(doc)
	s := pushedState("book", "pay_step")
	s = state.Apply(s, state.FlowDelta{SlotUpdates: []state.SlotUpdate{{FlowID: "f1", Name: "total", Value: 42}}})
	step := dsl.StepDef{
		ID: "pay_step", Type: dsl.StepCallFlow, JumpTo: "after_pay",
		CallFlow: &dsl.CallFlowStep{Flow: "pay", Inputs: map[string]string{"total": "amount"}, Outputs: map[string]string{"receipt": "receipt"}},
	}
	res := ExecuteCallFlow(step, s, ec)
	require.Equal(t, OutcomeSuspend, res.Outcome)
	assert.Equal(t, SuspendFlowPushed, res.Suspend)
	require.NotNil(t, res.Delta.PushFlow)
	assert.Equal(t, "pay", res.Delta.PushFlow.FlowName)
	require.Len(t, res.Delta.SlotUpdates, 1)
	assert.Equal(t, 42, res.Delta.SlotUpdates[0].Value)
	assert.Contains(t, res.Delta.MetadataSet, callFlowOutputsKey(res.Delta.PushFlow.FlowID))
	assert.Equal(t, "after_pay", res.Delta.MetadataSet[callFlowResumeKey("f1")])
}

func TestExecuteCallFlowRejectsUnknownFlow(t *testing.T) {
	ec := newTestContext(&dsl.Document{})
	s := pushedState("book", "pay_step")
	step := dsl.StepDef{ID: "pay_step", Type: dsl.StepCallFlow, CallFlow: &dsl.CallFlowStep{Flow: "missing"}}
	res := ExecuteCallFlow(step, s, ec)
	require.Equal(t, OutcomeFail, res.Outcome)
}

func TestExecuteHandoffEmitsSignalAndCompletes(t *testing.T) {
	s := pushedState("book", "escalate")
	s = state.Apply(s, state.FlowDelta{SlotUpdates: []state.SlotUpdate{{FlowID: "f1", Name: "reason", Value: "angry customer"}}})
	s = state.Apply(s, state.FlowDelta{MessageAppend: &state.Message{Role: "user", Text: "this is broken"}})
	step := dsl.StepDef{
		ID: "escalate", Type: dsl.StepHandoff,
		Handoff: &dsl.HandoffStep{Queue: "support", Context: []string{"reason"}, Message: "Escalating: {reason}"},
	}
	res := ExecuteHandoff(step, s, newTestContext(&dsl.Document{}))
	require.NotNil(t, res.Handoff)
	assert.Equal(t, "support", res.Handoff.Queue)
	assert.Equal(t, "angry customer", res.Handoff.Context["reason"])
	assert.Equal(t, "Escalating: angry customer", res.Handoff.Message)
	assert.Equal(t, state.StateCompleted, res.Delta.ConversationState)
	assert.Contains(t, res.Handoff.ConversationSummary, "this is broken")
}

func TestDispatchRoutesEveryStepKind(t *testing.T) {
	ec := newTestContext(&dsl.Document{})
	kinds := []dsl.StepKind{
		dsl.StepCollect, dsl.StepAction, dsl.StepBranch, dsl.StepSay,
		dsl.StepConfirm, dsl.StepGenerate, dsl.StepCallFlow, dsl.StepSet, dsl.StepHandoff,
	}
	for _, k := range kinds {
		s := pushedState("book", "step1")
		step := dsl.StepDef{ID: "step1", Type: k}
		switch k {
		case dsl.StepCollect:
			step.Collect = &dsl.CollectStep{Slot: "x"}
		case dsl.StepAction:
			step.Action = &dsl.ActionStep{Call: "missing_action"}
		case dsl.StepBranch:
			step.Branch = &dsl.BranchStep{}
		case dsl.StepSay:
			step.Say = &dsl.SayStep{Message: "hi"}
		case dsl.StepConfirm:
			step.Confirm = &dsl.ConfirmStep{Message: "ok?"}
		case dsl.StepGenerate:
			step.Generate = &dsl.GenerateStep{Instruction: "x"}
		case dsl.StepCallFlow:
			step.CallFlow = &dsl.CallFlowStep{Flow: "missing"}
		case dsl.StepSet:
			step.Set = &dsl.SetStep{Values: map[string]string{"x": "1"}}
		case dsl.StepHandoff:
			step.Handoff = &dsl.HandoffStep{Queue: "q"}
		}
		res := Dispatch(step, s, ec)
		assert.Contains(t, []Outcome{OutcomeDelta, OutcomeSuspend, OutcomeFail}, res.Outcome)
	}
}
