package runtime

import (
	"context"
	"errors"
	"sync"

	"github.com/jmorenobl/soni/checkpoint"
	"github.com/jmorenobl/soni/state"
)

// sessionLocks serializes turns for a single session while letting
// distinct sessions proceed concurrently — §4.6's "a session's turns are
// processed one at a time; independent sessions never block each other".
//
// Grounded on the teacher's per-chat state map (core/flow.go's
// userFlows), generalized to an actual mutex per key since the teacher
// relied on Telegram's own per-chat update ordering rather than locking
// in-process. No corpus repo arrived at a usable per-key lock of this
// shape, so this is built directly on sync primitives.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the per-userID mutex, creating it on first use, and
// returns a function that releases it.
func (sl *sessionLocks) lock(userID string) func() {
	sl.mu.Lock()
	m, ok := sl.locks[userID]
	if !ok {
		m = &sync.Mutex{}
		sl.locks[userID] = m
	}
	sl.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// count reports how many distinct sessions have ever acquired a lock.
// Used only as a coarse gauge for telemetry; it never shrinks, since a
// session whose lock was created once may still hold checkpointed state.
func (sl *sessionLocks) count() int {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return len(sl.locks)
}

// loadSession implements the session-acquisition half of §4.6's turn
// loop: restore a checkpointed DialogueState, or start a fresh one if
// none exists yet.
func (e *Engine) loadSession(ctx context.Context, userID string) (*state.DialogueState, error) {
	data, err := e.checkpointer.Load(ctx, userID)
	if errors.Is(err, checkpoint.ErrNotFound) {
		return state.New(userID), nil
	}
	if err != nil {
		return nil, err
	}
	return state.Unmarshal(data)
}

// saveSession persists s via the checkpointer — §4.6's persistence step,
// run at the end of every turn regardless of outcome.
func (e *Engine) saveSession(ctx context.Context, s *state.DialogueState) error {
	data, err := state.Marshal(s)
	if err != nil {
		return err
	}
	return e.checkpointer.Save(ctx, s.SessionID, data)
}

// StartSession implements §6.3's `start_session(user_id, language?)`:
// seed a fresh session with an explicit language preference (falling
// back to the document's default) and persist it immediately, so a host
// can greet a user before their first message arrives.
func (e *Engine) StartSession(ctx context.Context, userID string, language string) error {
	s := state.New(userID)
	if language == "" {
		language = e.doc.Settings.I18n.DefaultLanguage
	}
	s.SessionSlots["language"] = language
	return e.saveSession(ctx, s)
}

// EndSession removes a session's checkpoint entirely, releasing its
// in-memory lock bookkeeping is not required since sessionLocks never
// shrinks its map (a new lock for the same userID is reused, not
// leaked).
func (e *Engine) EndSession(ctx context.Context, userID string) error {
	return e.checkpointer.Delete(ctx, userID)
}
