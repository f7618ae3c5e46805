package registry

import (
	"context"
	"sync"
)

// NormalizerFunc canonicalizes a raw candidate value before validation
// sees it (§4.2, §4.9): e.g. "next Tuesday" → an ISO date, "NYC" → a
// canonical city code. Its output is both what validation checks and
// what the slot ultimately stores.
type NormalizerFunc func(ctx context.Context, value any) (any, error)

// NormalizerRegistry holds named normalizers bound via SlotDef.Normalizer.
type NormalizerRegistry struct {
	mu    sync.RWMutex
	funcs map[string]NormalizerFunc
}

// NewNormalizerRegistry returns an empty, ready-to-use registry.
func NewNormalizerRegistry() *NormalizerRegistry {
	return &NormalizerRegistry{funcs: make(map[string]NormalizerFunc)}
}

// Register binds name to fn.
func (r *NormalizerRegistry) Register(name string, fn NormalizerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// Resolve looks up name.
func (r *NormalizerRegistry) Resolve(name string) (NormalizerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// Names returns every registered normalizer name.
func (r *NormalizerRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for n := range r.funcs {
		names = append(names, n)
	}
	return names
}
