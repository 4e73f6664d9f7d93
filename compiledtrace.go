package yk

import "sync/atomic"

// CompiledTraceId is a monotonic, process-unique identifier. IDs are never
// reused (spec §3 invariant: "Exactly one CompiledTraceId is handed out per
// successful compilation").
type CompiledTraceId uint64

var nextCompiledTraceId uint64

func allocCompiledTraceId() CompiledTraceId {
	return CompiledTraceId(atomic.AddUint64(&nextCompiledTraceId, 1))
}

// Guard is a single runtime assumption embedded in a compiled trace. On
// failure at runtime, the deopt path calls IncFailed; once the failure
// count crosses the side-trace threshold the coordinator starts recording a
// side-trace rooted at this guard.
type Guard struct {
	failed     uint64
	SideTrace  CompiledTraceId // 0 until a side-trace is compiled for this guard
	hasSide    uint32
	threshold  uint32
}

// NewGuard returns a Guard configured with the given side-trace threshold.
func NewGuard(sidetraceThreshold uint32) *Guard {
	return &Guard{threshold: sidetraceThreshold}
}

// IncFailed records one more failure of this guard and reports true exactly
// on the increment that crosses the configured threshold (spec §4.4:
// "inc_failed returns true on the threshold-crossing increment").
func (g *Guard) IncFailed() bool {
	n := atomic.AddUint64(&g.failed, 1)
	return uint32(n) == g.threshold
}

// FailedCount returns the current failure count, for introspection.
func (g *Guard) FailedCount() uint64 {
	return atomic.LoadUint64(&g.failed)
}

// AttachSideTrace records the CompiledTraceId of a side-trace compiled for
// this guard. It is idempotent: only the first attach wins, matching the
// "at most one side-trace per guard" expectation implied by spec §4.1.2's
// SideTracing -> Compiled(root) transition.
func (g *Guard) AttachSideTrace(id CompiledTraceId) bool {
	if !atomic.CompareAndSwapUint32(&g.hasSide, 0, 1) {
		return false
	}
	g.SideTrace = id
	return true
}

// HasSideTrace reports whether a side-trace has already been attached.
func (g *Guard) HasSideTrace() bool {
	return atomic.LoadUint32(&g.hasSide) != 0
}

// CompiledCode is the immutable executable artifact a CompiledTrace wraps.
// Final machine-code emission is out of scope (spec §1); this module
// orchestrates the allocator's view of it (entry point, code length) but
// never writes to it.
type CompiledCode struct {
	Entry uintptr
	Len   int
}

// CompiledTrace is the immutable record described in spec §3. It is shared
// between Executing threads and the registry; the registry is the durable
// owner (its map keeps the CompiledTrace reachable for the process
// lifetime, or until explicitly evicted by a test harness).
type CompiledTrace struct {
	ID    CompiledTraceId
	Code  CompiledCode
	Guards []*Guard

	// origin is a weak reference in spirit: it is never used to extend the
	// HotLocation's lifetime (HotLocations already live for the process
	// lifetime once allocated), just to resolve back to it during deopt.
	origin *HotLocation

	// Parent is the trace this one was recorded as a side-trace of, or the
	// trace's own ID if it is a root trace (spec §3).
	Parent CompiledTraceId
}

// IsRoot reports whether this trace is a root trace (Parent == ID).
func (c *CompiledTrace) IsRoot() bool {
	return c.Parent == c.ID
}
