package yk

import "sync"

// HotLocationKindTag discriminates the variants of HotLocation.kind
// described in spec §3/§4.1.2.
type HotLocationKindTag int

const (
	// KindCounting mirrors a cold Location's counter once a HotLocation has
	// been allocated but tracing has not (yet) been attempted, or has been
	// abandoned and is being retried.
	KindCounting HotLocationKindTag = iota
	// KindTracing means some thread is currently recording a root trace for
	// this location.
	KindTracing
	// KindCompiling means a trace has been handed to the compile worker
	// pool and has not yet finished.
	KindCompiling
	// KindCompiled means a CompiledTrace exists and can be executed.
	KindCompiled
	// KindSideTracing means a thread is recording a side-trace attached to
	// a specific guard of a compiled trace.
	KindSideTracing
	// KindDontTrace is terminal: this location is permanently excluded from
	// tracing because tracing or compiling it failed too many times.
	KindDontTrace
)

func (k HotLocationKindTag) String() string {
	switch k {
	case KindCounting:
		return "Counting"
	case KindTracing:
		return "Tracing"
	case KindCompiling:
		return "Compiling"
	case KindCompiled:
		return "Compiled"
	case KindSideTracing:
		return "SideTracing"
	case KindDontTrace:
		return "DontTrace"
	default:
		return "Unknown"
	}
}

// SideTraceInfo identifies the guard a side-trace-in-progress is attached
// to, per spec §3 HotLocation.kind = SideTracing{root_ctr, guard_idx, parent_ctr}.
type SideTraceInfo struct {
	RootCtr   CompiledTraceId
	ParentCtr CompiledTraceId
	GuardIdx  int
}

// HotLocationKind is the tagged union described in spec §3. Only one field
// is meaningful at a time, selected by Tag.
type HotLocationKind struct {
	Tag HotLocationKindTag

	// valid when Tag == KindCounting
	Counter uint32

	// valid when Tag == KindCompiled
	Compiled CompiledTraceId

	// valid when Tag == KindSideTracing
	SideTrace SideTraceInfo
}

// HotLocation is the mutex-guarded record a Location is upgraded to once its
// counter reaches the hot threshold (spec §3). Every transition of kind
// happens with mu held, which is what makes the state machine in spec
// §4.1.2 linearizable.
type HotLocation struct {
	mu   sync.Mutex
	kind HotLocationKind

	// tracecompilation_errors counts recoverable tracing/compilation
	// failures attributed to this location (spec §4.1.7).
	tracecompilationErrors uint32

	// failureThreshold is copied from the owning MT at creation time so a
	// HotLocation never needs a back-reference to decide DontTrace vs
	// Counting(0) on error.
	failureThreshold uint32

	// loc lets guard-failure code and the registry resolve back to the
	// Location that produced this HotLocation for statistics purposes.
	// It is set once at construction and never mutated.
	loc *Location
}

// newHotLocation allocates a HotLocation in the given starting kind. Callers
// must hold no lock; the HotLocation is not yet published to any Location.
func newHotLocation(loc *Location, failureThreshold uint32, startKind HotLocationKind) *HotLocation {
	return &HotLocation{
		kind:             startKind,
		failureThreshold: failureThreshold,
		loc:              loc,
	}
}

// Kind returns a snapshot of the current kind, for introspection (the
// monitor and api packages poll this; it must never be used to make
// transition decisions from outside the mt package, which always re-locks).
func (hl *HotLocation) Kind() HotLocationKind {
	hl.mu.Lock()
	defer hl.mu.Unlock()
	return hl.kind
}

// Errors returns the current tracecompilation_errors count.
func (hl *HotLocation) Errors() uint32 {
	hl.mu.Lock()
	defer hl.mu.Unlock()
	return hl.tracecompilationErrors
}

// traceCompilationError increments the error counter and reports whether
// the location should keep trying (return true) or has now exceeded
// failureThreshold and must become permanently DontTrace (return false).
// Spec §4.1.7: "the caller then sets kind = DontTrace". Callers of this
// method hold hl.mu already (it is always invoked from within a kind
// transition).
func (hl *HotLocation) traceCompilationError() (keepTrying bool) {
	hl.tracecompilationErrors++
	return hl.tracecompilationErrors <= hl.failureThreshold
}
