package flowmgr

import (
	"testing"

	"github.com/jmorenobl/soni/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushGeneratesFlowIDAndFrame(t *testing.T) {
	s := state.New("sess-1")
	next, flowID, err := Push(s, "book", "ask_origin", StackPolicy{MaxDepth: 10, OnLimitReached: "reject_new"})
	require.NoError(t, err)
	assert.NotEmpty(t, flowID)
	require.Len(t, next.FlowStack, 1)
	assert.Equal(t, flowID, next.FlowStack[0].FlowID)
	assert.Equal(t, "book", next.FlowStack[0].FlowName)
}

func TestSetAndGetSlotOperateOnTopFrame(t *testing.T) {
	s := state.New("sess-1")
	s, _, err := Push(s, "book", "ask_origin", StackPolicy{MaxDepth: 10})
	require.NoError(t, err)

	s = SetSlot(s, "origin", "NYC")
	v, ok := GetSlot(s, "origin")
	require.True(t, ok)
	assert.Equal(t, "NYC", v)
}

func TestPopPropagatesDeclaredOutputsToParent(t *testing.T) {
	s := state.New("sess-1")
	s, _, err := Push(s, "parent", "step1", StackPolicy{MaxDepth: 10})
	require.NoError(t, err)
	s, _, err = Push(s, "child", "step1", StackPolicy{MaxDepth: 10})
	require.NoError(t, err)
	s.FlowStack[len(s.FlowStack)-1].Outputs["result"] = "42"

	s = Pop(s)
	require.Len(t, s.FlowStack, 1)
	v, ok := GetSlot(s, "result")
	require.True(t, ok)
	assert.Equal(t, "42", v)
}

func TestCancelDoesNotPropagateOutputs(t *testing.T) {
	s := state.New("sess-1")
	s, _, err := Push(s, "parent", "step1", StackPolicy{MaxDepth: 10})
	require.NoError(t, err)
	s, _, err = Push(s, "child", "step1", StackPolicy{MaxDepth: 10})
	require.NoError(t, err)
	s.FlowStack[len(s.FlowStack)-1].Outputs["result"] = "42"

	s = Cancel(s)
	require.Len(t, s.FlowStack, 1)
	_, ok := GetSlot(s, "result")
	assert.False(t, ok)
}

func TestPushRejectsNewAtMaxDepth(t *testing.T) {
	s := state.New("sess-1")
	policy := StackPolicy{MaxDepth: 1, OnLimitReached: "reject_new"}
	s, _, err := Push(s, "a", "step1", policy)
	require.NoError(t, err)

	_, _, err = Push(s, "b", "step1", policy)
	require.Error(t, err)
}

func TestPushCancelsOldestAtMaxDepth(t *testing.T) {
	s := state.New("sess-1")
	policy := StackPolicy{MaxDepth: 1, OnLimitReached: "cancel_oldest"}
	s, firstID, err := Push(s, "a", "step1", policy)
	require.NoError(t, err)

	s, _, err = Push(s, "b", "step1", policy)
	require.NoError(t, err)

	require.Len(t, s.FlowStack, 1)
	assert.Equal(t, "b", s.FlowStack[0].FlowName)
	assert.NotContains(t, s.FlowSlots, firstID)
}
