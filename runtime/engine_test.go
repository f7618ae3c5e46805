package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmorenobl/soni/checkpoint"
	"github.com/jmorenobl/soni/dsl"
	"github.com/jmorenobl/soni/graph"
	"github.com/jmorenobl/soni/nlu"
	"github.com/jmorenobl/soni/registry"
	"github.com/jmorenobl/soni/responses"
	"github.com/jmorenobl/soni/state"
)

// fakeUnderstander lets each test script exactly what understand_full /
// understand_slot should return, rather than exercising a real NLU
// provider.
type fakeUnderstander struct {
	full func(ctx context.Context, msg string, history []string, scope nlu.Scope) (nlu.FullResult, error)
	slot func(ctx context.Context, msg string, waitingSlot string, scope nlu.Scope) (nlu.SlotResult, error)
}

func (f *fakeUnderstander) UnderstandFull(ctx context.Context, msg string, history []string, scope nlu.Scope) (nlu.FullResult, error) {
	if f.full == nil {
		return nlu.FullResult{MessageType: nlu.MessageOutOfScope}, nil
	}
	return f.full(ctx, msg, history, scope)
}

func (f *fakeUnderstander) UnderstandSlot(ctx context.Context, msg string, waitingSlot string, scope nlu.Scope) (nlu.SlotResult, error) {
	if f.slot == nil {
		return nlu.SlotResult{Kind: nlu.KindSlotValue, Value: msg, Confidence: 1}, nil
	}
	return f.slot(ctx, msg, waitingSlot, scope)
}

type fakeGenerator struct{}

func (fakeGenerator) Generate(ctx context.Context, instruction string, context map[string]any) (string, error) {
	return "generated", nil
}

func newTestEngine(t *testing.T, doc *dsl.Document, understander nlu.Understander) *Engine {
	t.Helper()
	regs := graph.Registries{
		Actions:     registry.NewActionRegistry(),
		Validators:  registry.NewValidatorRegistry(),
		Normalizers: registry.NewNormalizerRegistry(),
	}
	graphs, warnings, err := graph.Compile(doc, regs)
	require.NoError(t, err)
	require.Empty(t, warnings)

	return NewEngine(Config{
		Doc:          doc,
		Graphs:       graphs,
		Actions:      regs.Actions,
		Validators:   regs.Validators,
		Normalizers:  regs.Normalizers,
		Understander: understander,
		Generator:    fakeGenerator{},
		Responses:    responses.New(doc.Responses, doc.Settings),
		Checkpointer: checkpoint.NewMemoryCheckpointer(),
	})
}

func greetDoc() *dsl.Document {
	settings := dsl.DefaultSettings()
	return &dsl.Document{
		Settings: settings,
		Flows: map[string]dsl.FlowDef{
			"greet": {
				Name: "greet",
				Steps: []dsl.StepDef{
					{ID: "say_hi", Type: dsl.StepSay, Say: &dsl.SayStep{Message: "hello!"}},
				},
			},
		},
	}
}

func TestProcessTurnSayStepCompletesFlow(t *testing.T) {
	doc := greetDoc()
	eng := newTestEngine(t, doc, &fakeUnderstander{
		full: func(ctx context.Context, msg string, history []string, scope nlu.Scope) (nlu.FullResult, error) {
			return nlu.FullResult{MessageType: nlu.MessageIntent, Command: "greet", Confidence: 1}, nil
		},
	})

	result, err := eng.ProcessTurn(context.Background(), "user-1", "hi")
	require.NoError(t, err)
	require.Len(t, result.Messages, 1)
	assert.Equal(t, "hello!", result.Messages[0].Text)
	assert.Equal(t, state.StateIdle, result.StateTag)
}

func collectDoc() *dsl.Document {
	settings := dsl.DefaultSettings()
	return &dsl.Document{
		Settings: settings,
		Slots:    map[string]dsl.SlotDef{"origin": {Name: "origin", Type: dsl.SlotString, Prompt: "Where are you flying from?"}},
		Flows: map[string]dsl.FlowDef{
			"book": {
				Name: "book",
				Steps: []dsl.StepDef{
					{ID: "ask_origin", Type: dsl.StepCollect, Collect: &dsl.CollectStep{Slot: "origin"}},
					{ID: "confirm_origin", Type: dsl.StepSay, Say: &dsl.SayStep{Message: "got it"}},
				},
			},
		},
	}
}

func TestProcessTurnCollectSuspendsThenResumes(t *testing.T) {
	doc := collectDoc()
	turn := 0
	eng := newTestEngine(t, doc, &fakeUnderstander{
		full: func(ctx context.Context, msg string, history []string, scope nlu.Scope) (nlu.FullResult, error) {
			return nlu.FullResult{MessageType: nlu.MessageIntent, Command: "book", Confidence: 1}, nil
		},
		slot: func(ctx context.Context, msg string, waitingSlot string, scope nlu.Scope) (nlu.SlotResult, error) {
			turn++
			return nlu.SlotResult{Kind: nlu.KindSlotValue, Value: "NYC", TargetSlot: waitingSlot, Confidence: 1}, nil
		},
	})

	ctx := context.Background()
	first, err := eng.ProcessTurn(ctx, "user-1", "book a flight")
	require.NoError(t, err)
	assert.Equal(t, state.StateWaitingForSlot, first.StateTag)
	require.Len(t, first.Messages, 1)
	assert.Equal(t, "Where are you flying from?", first.Messages[0].Text)

	second, err := eng.ProcessTurn(ctx, "user-1", "NYC")
	require.NoError(t, err)
	require.Equal(t, 1, turn)
	require.Len(t, second.Messages, 1)
	assert.Equal(t, "got it", second.Messages[0].Text)
	assert.Equal(t, state.StateIdle, second.StateTag)
}

func callFlowDoc() *dsl.Document {
	settings := dsl.DefaultSettings()
	return &dsl.Document{
		Settings: settings,
		Slots: map[string]dsl.SlotDef{
			"destination": {Name: "destination", Type: dsl.SlotString},
			"city":        {Name: "city", Type: dsl.SlotString},
		},
		Flows: map[string]dsl.FlowDef{
			"parent": {
				Name: "parent",
				Steps: []dsl.StepDef{
					{ID: "call_child", Type: dsl.StepCallFlow, CallFlow: &dsl.CallFlowStep{
						Flow:    "child",
						Outputs: map[string]string{"city": "destination"},
					}},
					{ID: "done", Type: dsl.StepSay, Say: &dsl.SayStep{Message: "destination set to {destination}"}},
				},
				Outputs: []string{"destination"},
			},
			"child": {
				Name: "child",
				Steps: []dsl.StepDef{
					{ID: "set_city", Type: dsl.StepSet, Set: &dsl.SetStep{Values: map[string]string{"city": "Paris"}}},
				},
				Outputs: []string{"city"},
			},
		},
	}
}

func TestCallFlowPushAndCompletePropagatesRenamedOutputs(t *testing.T) {
	doc := callFlowDoc()
	eng := newTestEngine(t, doc, &fakeUnderstander{
		full: func(ctx context.Context, msg string, history []string, scope nlu.Scope) (nlu.FullResult, error) {
			return nlu.FullResult{MessageType: nlu.MessageIntent, Command: "parent", Confidence: 1}, nil
		},
	})

	result, err := eng.ProcessTurn(context.Background(), "user-1", "start")
	require.NoError(t, err)
	require.Len(t, result.Messages, 1)
	assert.Equal(t, "destination set to Paris", result.Messages[0].Text)
	assert.Equal(t, state.StateIdle, result.StateTag)
}

func whenGuardDoc() *dsl.Document {
	settings := dsl.DefaultSettings()
	return &dsl.Document{
		Settings: settings,
		Flows: map[string]dsl.FlowDef{
			"route": {
				Name: "route",
				Steps: []dsl.StepDef{
					{ID: "skip_me", Type: dsl.StepSay, When: "false", Say: &dsl.SayStep{Message: "should not appear"}},
					{ID: "land_here", Type: dsl.StepSay, Say: &dsl.SayStep{Message: "landed"}},
				},
			},
		},
	}
}

func TestWhenGuardFalseSkipsStepWithoutDispatch(t *testing.T) {
	doc := whenGuardDoc()
	eng := newTestEngine(t, doc, &fakeUnderstander{
		full: func(ctx context.Context, msg string, history []string, scope nlu.Scope) (nlu.FullResult, error) {
			return nlu.FullResult{MessageType: nlu.MessageIntent, Command: "route", Confidence: 1}, nil
		},
	})

	result, err := eng.ProcessTurn(context.Background(), "user-1", "go")
	require.NoError(t, err)
	require.Len(t, result.Messages, 1)
	assert.Equal(t, "landed", result.Messages[0].Text)
}

func alwaysInvalidDoc() *dsl.Document {
	settings := dsl.DefaultSettings()
	settings.Handoff.DefaultQueue = "support"
	return &dsl.Document{
		Settings: settings,
		Slots: map[string]dsl.SlotDef{
			"email": {Name: "email", Type: dsl.SlotString, Validator: "always_invalid"},
		},
		Flows: map[string]dsl.FlowDef{
			"signup": {
				Name: "signup",
				Steps: []dsl.StepDef{
					{ID: "ask_email", Type: dsl.StepCollect, Collect: &dsl.CollectStep{Slot: "email", MaxAttempts: 1}},
					{ID: "say_done", Type: dsl.StepSay, Say: &dsl.SayStep{Message: "done"}},
				},
			},
		},
	}
}

// TestCollectMaxAttemptsExceededHandsOffToCompleted exercises §8's
// "validation retry to handoff" example: a slot validator that never
// succeeds drives the pending collect past max_attempts with no
// on_invalid target, so the flow escalates to handoff and the turn ends
// in COMPLETED rather than the ERROR an unadorned WAITING_FOR_SLOT ->
// COMPLETED edge would otherwise force.
func TestCollectMaxAttemptsExceededHandsOffToCompleted(t *testing.T) {
	doc := alwaysInvalidDoc()
	regs := graph.Registries{
		Actions:     registry.NewActionRegistry(),
		Validators:  registry.NewValidatorRegistry(),
		Normalizers: registry.NewNormalizerRegistry(),
	}
	regs.Validators.Register("always_invalid", func(ctx context.Context, value any) (bool, string, error) {
		return false, "that doesn't look like an email", nil
	})
	graphs, warnings, err := graph.Compile(doc, regs)
	require.NoError(t, err)
	require.Empty(t, warnings)

	eng := NewEngine(Config{
		Doc:          doc,
		Graphs:       graphs,
		Actions:      regs.Actions,
		Validators:   regs.Validators,
		Normalizers:  regs.Normalizers,
		Understander: &fakeUnderstander{
			full: func(ctx context.Context, msg string, history []string, scope nlu.Scope) (nlu.FullResult, error) {
				return nlu.FullResult{MessageType: nlu.MessageIntent, Command: "signup", Confidence: 1}, nil
			},
			slot: func(ctx context.Context, msg string, waitingSlot string, scope nlu.Scope) (nlu.SlotResult, error) {
				return nlu.SlotResult{Kind: nlu.KindSlotValue, Value: msg, TargetSlot: waitingSlot, Confidence: 1}, nil
			},
		},
		Generator:    fakeGenerator{},
		Responses:    responses.New(doc.Responses, doc.Settings),
		Checkpointer: checkpoint.NewMemoryCheckpointer(),
	})

	ctx := context.Background()
	first, err := eng.ProcessTurn(ctx, "user-1", "sign me up")
	require.NoError(t, err)
	assert.Equal(t, state.StateWaitingForSlot, first.StateTag)

	second, err := eng.ProcessTurn(ctx, "user-1", "not-an-email")
	require.NoError(t, err)
	assert.Equal(t, state.StateCompleted, second.StateTag)
}

func TestProcessTurnRejectsIntentOutsideComputedScope(t *testing.T) {
	doc := collectDoc()
	eng := newTestEngine(t, doc, &fakeUnderstander{
		full: func(ctx context.Context, msg string, history []string, scope nlu.Scope) (nlu.FullResult, error) {
			// Hallucinated: a flow/action name the active flow's scope does
			// not include (scopeFor only returns UnfilledSlots while a flow
			// is active, §4.10).
			return nlu.FullResult{MessageType: nlu.MessageIntent, Command: "book", Confidence: 1}, nil
		},
		slot: func(ctx context.Context, msg string, waitingSlot string, scope nlu.Scope) (nlu.SlotResult, error) {
			return nlu.SlotResult{Confidence: 0}, nil // force routeFull fallback
		},
	})

	ctx := context.Background()
	first, err := eng.ProcessTurn(ctx, "user-1", "start booking")
	require.NoError(t, err)
	require.Equal(t, state.StateWaitingForSlot, first.StateTag)

	second, err := eng.ProcessTurn(ctx, "user-1", "book")
	require.NoError(t, err)
	assert.Equal(t, state.StateWaitingForSlot, second.StateTag, "an out-of-scope command must not push a nested flow")
}

func TestProcessTurnEscalatesAfterMaxTurnsWithoutProgress(t *testing.T) {
	doc := collectDoc()
	doc.Settings.Conversation.MaxTurnsWithoutProgress = 2
	doc.Settings.Conversation.OnNoProgress = "handoff"
	eng := newTestEngine(t, doc, &fakeUnderstander{
		full: func(ctx context.Context, msg string, history []string, scope nlu.Scope) (nlu.FullResult, error) {
			return nlu.FullResult{MessageType: nlu.MessageOutOfScope}, nil
		},
	})

	ctx := context.Background()
	var last ProcessResult
	for i := 0; i < 2; i++ {
		r, err := eng.ProcessTurn(ctx, "user-1", "blah")
		require.NoError(t, err)
		last = r
	}
	assert.Equal(t, state.StateCompleted, last.StateTag)
	require.NotEmpty(t, last.Messages)
	assert.Equal(t, "handoff", last.Messages[len(last.Messages)-1].Kind)
}

func TestApplyValidatedForcesErrorOnIllegalTransition(t *testing.T) {
	doc := greetDoc()
	eng := newTestEngine(t, doc, &fakeUnderstander{})

	s := state.New("user-1")
	require.Equal(t, state.StateIdle, s.ConversationState)

	next := eng.applyValidated(s, state.FlowDelta{ConversationState: state.StateCompleted})
	assert.Equal(t, state.StateError, next.ConversationState)
}
