package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalRoundTripsPlainState(t *testing.T) {
	s := New("sess-1")
	s.SessionSlots["language"] = "en"
	fc := NewFlowContext("f1", "book", "ask_origin")
	s = Apply(s, FlowDelta{PushFlow: &fc})
	s = Apply(s, FlowDelta{SlotUpdates: []SlotUpdate{{FlowID: "f1", Name: "origin", Value: "NYC"}}})

	data, err := Marshal(s)
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, s.SessionID, got.SessionID)
	assert.Equal(t, "en", got.SessionSlots["language"])
	assert.Equal(t, "NYC", got.FlowSlots["f1"]["origin"])
	require.Len(t, got.FlowStack, 1)
	assert.Equal(t, "book", got.FlowStack[0].FlowName)
}

func TestMarshalUnmarshalRoundTripsCollectTask(t *testing.T) {
	s := New("sess-1")
	s.PendingTask = &CollectTask{FlowID: "f1", StepID: "ask_origin", Slot: "origin", Attempts: 2}

	data, err := Marshal(s)
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	task, ok := got.PendingTask.(*CollectTask)
	require.True(t, ok)
	assert.Equal(t, "origin", task.Slot)
	assert.Equal(t, 2, task.Attempts)
}

func TestMarshalUnmarshalRoundTripsConfirmTask(t *testing.T) {
	s := New("sess-1")
	s.PendingTask = &ConfirmTask{FlowID: "f1", StepID: "confirm_step", Attempts: 1}

	data, err := Marshal(s)
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	task, ok := got.PendingTask.(*ConfirmTask)
	require.True(t, ok)
	assert.Equal(t, "confirm_step", task.StepID)
}
