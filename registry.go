package yk

import "sync"

// Registry is the durable owner of every published CompiledTrace (spec §3,
// component H). It is a plain map guarded by a single mutex, the same shape
// as the teacher's api.SessionManager: a small, long-lived, concurrently
// accessed table keyed by a generated ID.
type Registry struct {
	mu     sync.RWMutex
	traces map[CompiledTraceId]*CompiledTrace
}

// NewRegistry returns an empty trace registry.
func NewRegistry() *Registry {
	return &Registry{
		traces: make(map[CompiledTraceId]*CompiledTrace),
	}
}

// Publish assigns a fresh, never-reused CompiledTraceId to the given trace,
// installs it into the registry, and returns it. The trace's ID and Parent
// fields are set by this call; for a root trace the caller should pass
// parent == 0 to mean "self".
func (r *Registry) Publish(code CompiledCode, guards []*Guard, origin *HotLocation, parent CompiledTraceId) *CompiledTrace {
	id := allocCompiledTraceId()
	ct := &CompiledTrace{
		ID:     id,
		Code:   code,
		Guards: guards,
		origin: origin,
		Parent: parent,
	}
	if ct.Parent == 0 {
		ct.Parent = id
	}

	r.mu.Lock()
	r.traces[id] = ct
	r.mu.Unlock()

	return ct
}

// Get looks up a trace by ID.
func (r *Registry) Get(id CompiledTraceId) (*CompiledTrace, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ct, ok := r.traces[id]
	return ct, ok
}

// Len reports how many traces are currently registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.traces)
}

// Snapshot returns a shallow copy of every registered trace, for
// introspection by the monitor and api packages. Traces themselves are
// immutable after publication so sharing pointers here is safe.
func (r *Registry) Snapshot() []*CompiledTrace {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*CompiledTrace, 0, len(r.traces))
	for _, ct := range r.traces {
		out = append(out, ct)
	}
	return out
}

// Evict removes a trace from the registry. Used only by test harnesses that
// need to simulate code-cache pressure; production guard-failure handling
// never evicts a trace out from under an Executing thread.
func (r *Registry) Evict(id CompiledTraceId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.traces, id)
}
