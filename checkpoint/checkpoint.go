// Package checkpoint implements §4.7: durable persistence of a session's
// DialogueState between turns, so the runtime can resume a conversation
// on any process after a restart.
//
// Generalizes the teacher's StateManager (core/state.go) from a flat
// per-user key-value store into a single-document-per-session store,
// since this spec's unit of persistence is one serialized DialogueState
// rather than arbitrary key/value pairs.
package checkpoint

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Load when no checkpoint exists for a session.
var ErrNotFound = errors.New("checkpoint: not found")

// Checkpointer persists and retrieves a session's serialized state. All
// methods must be safe for concurrent use by different sessions; a single
// session's own turns are already serialized by the runtime's per-session
// lock (§4.6), so implementations need not add session-level locking of
// their own.
type Checkpointer interface {
	// Load returns the last saved snapshot for sessionID, or ErrNotFound
	// if none exists.
	Load(ctx context.Context, sessionID string) ([]byte, error)

	// Save persists snapshot as the latest state for sessionID,
	// overwriting any previous value.
	Save(ctx context.Context, sessionID string, snapshot []byte) error

	// Delete removes any saved state for sessionID (session end / reset).
	Delete(ctx context.Context, sessionID string) error
}
