package runtime

import (
	"context"

	"github.com/jmorenobl/soni/state"
)

// EventKind classifies one item on a StreamTurn channel (§6.3).
type EventKind string

const (
	EventToken   EventKind = "token"
	EventMessage EventKind = "message"
	EventHandoff EventKind = "handoff"
	EventError   EventKind = "error"
	EventDone    EventKind = "done"
)

// Event is one item produced by StreamTurn. Exactly the fields relevant
// to Kind are populated.
type Event struct {
	Kind EventKind

	Token   string                  // EventToken: one incremental chunk of a `generate` step's output
	Message state.OutboundMessage   // EventMessage: a complete outbound message (say/prompt/handoff/error)
	Handoff *HandoffNotice          // EventHandoff
	Err     error                   // EventError
	State   state.ConversationState // EventDone: the turn's resulting conversation_state
}

// HandoffNotice mirrors nodeexec.HandoffSignal for stream consumers that
// don't want to import nodeexec directly.
type HandoffNotice struct {
	Queue   string
	Message string
}

// streamBufferSize bounds the channel StreamTurn returns. A slow
// consumer applies backpressure to ProcessTurn's own send rather than
// the buffer growing unbounded (§5).
const streamBufferSize = 16

// StreamTurn implements §6.3's `stream_turn`: the same turn ProcessTurn
// runs, but delivered incrementally as Events instead of collected into
// one ProcessResult. The current node executors produce whole messages
// rather than incremental generation tokens (no executor streams partial
// text), so every Event this emits today is EventMessage/EventHandoff/
// EventError/EventDone; EventToken is defined for a future streaming
// nlu.Generator and is never emitted by the current Generate executor.
func (e *Engine) StreamTurn(ctx context.Context, userID, message string) (<-chan Event, error) {
	ch := make(chan Event, streamBufferSize)

	go func() {
		defer close(ch)

		result, err := e.ProcessTurn(ctx, userID, message)
		if err != nil {
			select {
			case ch <- Event{Kind: EventError, Err: err}:
			case <-ctx.Done():
				return
			}
		}

		for _, m := range result.Messages {
			evt := Event{Kind: EventMessage, Message: m}
			if m.Kind == "handoff" {
				evt = Event{Kind: EventHandoff, Handoff: &HandoffNotice{Message: m.Text}}
			}
			select {
			case ch <- evt:
			case <-ctx.Done():
				return
			}
		}

		select {
		case ch <- Event{Kind: EventDone, State: result.StateTag}:
		case <-ctx.Done():
		}
	}()

	return ch, nil
}
