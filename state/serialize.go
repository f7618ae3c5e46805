package state

import (
	"encoding/json"
	"fmt"
)

// pendingTaskEnvelope carries a PendingTask's concrete type alongside its
// JSON so checkpointers (§4.7) can round-trip the PendingTask interface,
// which plain encoding/json cannot do on its own.
type pendingTaskEnvelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// snapshot is DialogueState's on-the-wire shape: identical to
// DialogueState except PendingTask is wrapped in pendingTaskEnvelope.
type snapshot struct {
	SessionID         string                     `json:"session_id"`
	Messages          []Message                  `json:"messages"`
	FlowStack         []FlowContext              `json:"flow_stack"`
	FlowSlots         map[string]map[string]any  `json:"flow_slots"`
	SessionSlots      map[string]any             `json:"session_slots"`
	PendingTask       *pendingTaskEnvelope        `json:"pending_task,omitempty"`
	ConversationState ConversationState          `json:"conversation_state"`
	CurrentStep       string                     `json:"current_step"`
	TurnCount         int                        `json:"turn_count"`
	LastResponse      string                     `json:"last_response"`
	Metadata          map[string]any             `json:"metadata"`
	NoProgressTurns   int                        `json:"no_progress_turns"`
}

// Marshal serializes s for checkpointing (§4.7). The result is a plain
// JSON document; no part of it depends on Go-specific encoding beyond the
// PendingTask discriminator envelope.
func Marshal(s *DialogueState) ([]byte, error) {
	snap := snapshot{
		SessionID:         s.SessionID,
		Messages:          s.Messages,
		FlowStack:         s.FlowStack,
		FlowSlots:         s.FlowSlots,
		SessionSlots:      s.SessionSlots,
		ConversationState: s.ConversationState,
		CurrentStep:       s.CurrentStep,
		TurnCount:         s.TurnCount,
		LastResponse:      s.LastResponse,
		Metadata:          s.Metadata,
		NoProgressTurns:   s.NoProgressTurns,
	}
	if s.PendingTask != nil {
		data, err := json.Marshal(s.PendingTask)
		if err != nil {
			return nil, fmt.Errorf("state: marshal pending task: %w", err)
		}
		snap.PendingTask = &pendingTaskEnvelope{Kind: pendingTaskKind(s.PendingTask), Data: data}
	}
	return json.Marshal(snap)
}

// Unmarshal is Marshal's inverse.
func Unmarshal(data []byte) (*DialogueState, error) {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("state: unmarshal snapshot: %w", err)
	}
	s := &DialogueState{
		SessionID:         snap.SessionID,
		Messages:          snap.Messages,
		FlowStack:         snap.FlowStack,
		FlowSlots:         snap.FlowSlots,
		SessionSlots:      snap.SessionSlots,
		ConversationState: snap.ConversationState,
		CurrentStep:       snap.CurrentStep,
		TurnCount:         snap.TurnCount,
		LastResponse:      snap.LastResponse,
		Metadata:          snap.Metadata,
		NoProgressTurns:   snap.NoProgressTurns,
	}
	if s.FlowSlots == nil {
		s.FlowSlots = make(map[string]map[string]any)
	}
	if s.SessionSlots == nil {
		s.SessionSlots = make(map[string]any)
	}
	if s.Metadata == nil {
		s.Metadata = make(map[string]any)
	}
	if snap.PendingTask != nil {
		task, err := decodePendingTask(snap.PendingTask.Kind, snap.PendingTask.Data)
		if err != nil {
			return nil, err
		}
		s.PendingTask = task
	}
	return s, nil
}

func pendingTaskKind(t PendingTask) string {
	switch t.(type) {
	case *CollectTask:
		return "collect"
	case *ConfirmTask:
		return "confirm"
	case *InformTask:
		return "inform"
	default:
		return ""
	}
}

func decodePendingTask(kind string, data json.RawMessage) (PendingTask, error) {
	switch kind {
	case "collect":
		var t CollectTask
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("state: decode collect task: %w", err)
		}
		return &t, nil
	case "confirm":
		var t ConfirmTask
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("state: decode confirm task: %w", err)
		}
		return &t, nil
	case "inform":
		var t InformTask
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("state: decode inform task: %w", err)
		}
		return &t, nil
	default:
		return nil, fmt.Errorf("state: unknown pending task kind %q", kind)
	}
}
