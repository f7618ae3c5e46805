// Package registry implements the extension contract of §4.2/§6.3: the
// Action, Validator, and Normalizer registries the core resolves names
// against at compile time and invokes at runtime. The core never embeds
// implementations of its own — every registry here is name-addressed,
// thread-safe, and read-heavy after startup registration, mirroring the
// teacher's own `templateRegistry`/`AddTemplate`/`MustAddTemplate` idiom
// (core/templates.go), generalized from a single template map to three
// typed collaborator registries.
package registry

import (
	"context"
	"fmt"
	"sync"
)

// ActionHandler implements a named side-effecting operation. inputs is
// the structured dict assembled from the action's declared input slots;
// the returned map is assigned to the action's declared output names.
// Handlers may be long-running (network calls, queue dispatch) and may
// fail; the runtime treats a returned error as a `StepError` to route
// through the action step's retry/on_error handling.
type ActionHandler func(ctx context.Context, inputs map[string]any) (map[string]any, error)

// ActionRegistry holds the process's action handlers, keyed by the
// semantic name flows reference via `call:`.
type ActionRegistry struct {
	mu       sync.RWMutex
	handlers map[string]ActionHandler
}

// NewActionRegistry returns an empty, ready-to-use registry.
func NewActionRegistry() *ActionRegistry {
	return &ActionRegistry{handlers: make(map[string]ActionHandler)}
}

// Register binds name to handler. Registration is expected to happen at
// process startup, before any flow executes; re-registering a name
// overwrites the previous binding (useful for tests).
func (r *ActionRegistry) Register(name string, handler ActionHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = handler
}

// Resolve looks up name, returning ok=false if nothing is bound. The
// graph compiler calls this at compile time (§4.2: unresolved action
// names are a compile error, not a runtime surprise); the `action` step
// executor calls it again at run time to fetch the actual handler.
func (r *ActionRegistry) Resolve(name string) (ActionHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns every registered action name, for diagnostics.
func (r *ActionRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		names = append(names, n)
	}
	return names
}

// MustResolve is Resolve but panics on a missing name; useful for
// internal call sites that have already been compile-time validated and
// therefore treat a miss as a programming error, not user input.
func (r *ActionRegistry) MustResolve(name string) ActionHandler {
	h, ok := r.Resolve(name)
	if !ok {
		panic(fmt.Sprintf("registry: action %q not registered", name))
	}
	return h
}
