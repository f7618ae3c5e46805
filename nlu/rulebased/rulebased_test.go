package rulebased

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmorenobl/soni/nlu"
)

func scopeWith(flows ...string) nlu.Scope {
	return nlu.Scope{Flows: flows, GlobalIntents: []string{"cancel_flow"}}
}

func TestUnderstandFullMatchesRegisteredCommand(t *testing.T) {
	p := New()
	p.Register(Pattern{Command: "book_flight", Phrases: []string{"book a flight", "fly to"}})

	res, err := p.UnderstandFull(context.Background(), "I want to book a flight to Lisbon", nil, scopeWith("book_flight"))
	require.NoError(t, err)
	assert.Equal(t, nlu.MessageIntent, res.MessageType)
	assert.Equal(t, "book_flight", res.Command)
}

func TestUnderstandFullReportsOutOfScope(t *testing.T) {
	p := New()
	p.Register(Pattern{Command: "book_flight", Phrases: []string{"book a flight"}})

	res, err := p.UnderstandFull(context.Background(), "book a flight please", nil, scopeWith("pay_invoice"))
	require.NoError(t, err)
	assert.Equal(t, nlu.MessageOutOfScope, res.MessageType)
}

func TestUnderstandFullDetectsCancelOverCommand(t *testing.T) {
	p := New()
	p.Register(Pattern{Command: "book_flight", Phrases: []string{"book a flight"}})

	res, err := p.UnderstandFull(context.Background(), "never mind, cancel that", nil, scopeWith("book_flight"))
	require.NoError(t, err)
	assert.Equal(t, "cancel_flow", res.Command)
}

func TestUnderstandSlotClassifiesConfirmationAndQuestion(t *testing.T) {
	p := New()

	res, err := p.UnderstandSlot(context.Background(), "yes that's correct", "destination", nlu.Scope{})
	require.NoError(t, err)
	assert.Equal(t, nlu.KindConfirmation, res.Kind)
	assert.Equal(t, true, res.Value)

	res, err = p.UnderstandSlot(context.Background(), "what do you mean?", "destination", nlu.Scope{})
	require.NoError(t, err)
	assert.Equal(t, nlu.KindQuestion, res.Kind)
}

func TestUnderstandSlotDefaultsToSlotValue(t *testing.T) {
	p := New()
	res, err := p.UnderstandSlot(context.Background(), "Lisbon", "destination", nlu.Scope{})
	require.NoError(t, err)
	assert.Equal(t, nlu.KindSlotValue, res.Kind)
	assert.Equal(t, "Lisbon", res.Value)
	assert.Equal(t, "destination", res.TargetSlot)
}

func TestGenerateRendersContextDeterministically(t *testing.T) {
	p := New()
	text, err := p.Generate(context.Background(), "Confirm order", map[string]any{"b": 2, "a": 1})
	require.NoError(t, err)
	assert.Equal(t, "Confirm order a=1 b=2", text)
}
