package dsl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDoc = `
version: "1"
settings:
  runtime:
    max_step_executions: 10
  handoff:
    default_queue: support
slots:
  origin:
    type: string
    prompt: "Where from?"
    required: true
actions:
  search_flights:
    description: "Search flights"
    inputs: [origin, destination]
    outputs: [results]
responses:
  success:
    default: "All set!"
    es: "¡Listo!"
flows:
  book:
    description: "Book a flight"
    trigger:
      intents: ["book a flight"]
    process:
      - step: ask_origin
        type: collect
        slot: origin
      - step: search
        type: action
        call: search_flights
        map_outputs:
          results: search_results
        retry:
          max_attempts: 3
          delay: 1s
          backoff: exponential
      - step: done
        type: say
        message: "template:success"
`

func TestParseSampleDocument(t *testing.T) {
	doc, err := Parse([]byte(sampleDoc), "yaml")
	require.NoError(t, err)

	assert.Equal(t, 10, doc.Settings.Runtime.MaxStepExecutions)
	assert.Equal(t, "support", doc.Settings.Handoff.DefaultQueue)

	slot, ok := doc.Slots["origin"]
	require.True(t, ok)
	assert.Equal(t, SlotString, slot.Type)
	assert.True(t, slot.Required)

	action, ok := doc.Actions["search_flights"]
	require.True(t, ok)
	assert.Equal(t, []string{"origin", "destination"}, action.Inputs)

	flow, ok := doc.Flows["book"]
	require.True(t, ok)
	require.Len(t, flow.Steps, 3)
	assert.Equal(t, StepCollect, flow.Steps[0].Type)
	assert.Equal(t, "origin", flow.Steps[0].Collect.Slot)
	assert.Equal(t, StepAction, flow.Steps[1].Type)
	require.NotNil(t, flow.Steps[1].Action.Retry)
	assert.Equal(t, 3, flow.Steps[1].Action.Retry.MaxAttempts)
	assert.Equal(t, "exponential", flow.Steps[1].Action.Retry.Backoff)
}

func TestParseRejectsUnknownTopLevelKey(t *testing.T) {
	_, err := Parse([]byte("version: \"1\"\nbogus: true\n"), "yaml")
	require.Error(t, err)
}

func TestParseRejectsUnknownStepKey(t *testing.T) {
	doc := `
flows:
  f:
    process:
      - step: s1
        type: say
        message: "hi"
        mispelled_field: true
`
	_, err := Parse([]byte(doc), "yaml")
	require.Error(t, err)
}

func TestFlowValidateRejectsDuplicateStepID(t *testing.T) {
	f := FlowDef{
		Name: "f",
		Steps: []StepDef{
			{ID: "a", Type: StepSay, Say: &SayStep{Message: "hi"}},
			{ID: "a", Type: StepSay, Say: &SayStep{Message: "bye"}},
		},
	}
	require.Error(t, f.Validate())
}

func TestFlowValidateRejectsReservedStepID(t *testing.T) {
	f := FlowDef{
		Name:  "f",
		Steps: []StepDef{{ID: "end", Type: StepSay, Say: &SayStep{Message: "hi"}}},
	}
	require.Error(t, f.Validate())
}

func TestBuilderProducesEquivalentFlow(t *testing.T) {
	flow := NewFlow("book").
		Describe("Book a flight").
		Step(Collect("ask_origin", "origin")).
		Step(Action("search", "search_flights")).
		Step(Say("done", "template:success")).
		MustBuild()

	require.Len(t, flow.Steps, 3)
	assert.Equal(t, "origin", flow.Steps[0].Collect.Slot)
}

func TestBuilderPanicsOnDuplicateStepID(t *testing.T) {
	assert.Panics(t, func() {
		NewFlow("f").Step(Say("a", "hi")).Step(Say("a", "bye"))
	})
}
