package yk

import "fmt"

// ThreadStateKind discriminates the elements of a ThreadState's stack (spec
// §3 "ThreadState stack").
type ThreadStateKind int

const (
	// Interpreting is the base state every ThreadState starts in and can
	// never pop below (spec §3 invariant: "a thread's tstate stack is
	// non-empty").
	Interpreting ThreadStateKind = iota
	// TracingState means the owning thread is recording a trace.
	TracingState
	// ExecutingState means the owning thread is running a CompiledTrace.
	ExecutingState
)

func (k ThreadStateKind) String() string {
	switch k {
	case Interpreting:
		return "Interpreting"
	case TracingState:
		return "Tracing"
	case ExecutingState:
		return "Executing"
	default:
		return "Unknown"
	}
}

// tracingFrame carries everything a thread accumulates while recording a
// trace (spec §3).
type tracingFrame struct {
	origin     *HotLocation
	frameaddr  uintptr
	cpIdx      int
	seenHLs    map[*HotLocation]int
	promotions []byte
	debugStrs  []string

	// sideTrace is non-nil when this recording is a side-trace rather than
	// a root trace; it carries the guard being extended.
	sideTrace *sideTraceTarget
}

type sideTraceTarget struct {
	parent   *CompiledTrace
	root     *CompiledTrace
	guardIdx int
}

// executingFrame carries the trace currently running natively, needed so a
// guard failure can find its way back to the right CompiledTrace (spec §3).
type executingFrame struct {
	trace *CompiledTrace
}

// stackFrame is one element of a ThreadState's stack: at most one of the
// two payload pointers is non-nil, selected by kind (neither for an
// Interpreting frame).
type stackFrame struct {
	kind      ThreadStateKind
	tracing   *tracingFrame
	executing *executingFrame
}

// ThreadState is per-thread, explicit state (spec §3, component B). Unlike
// the source runtime's implicit thread-local, this module makes ownership
// explicit: the host creates one ThreadState per OS thread (or per
// goroutine pinned to an OS thread via runtime.LockOSThread, matching the
// "traces never cross OS threads" non-goal) and threads it through every
// call to MT methods. It is never safe to share a ThreadState across
// goroutines, matching spec §5's "neither Send nor Sync" requirement.
type ThreadState struct {
	stack []stackFrame
}

// NewThreadState returns a ThreadState whose stack holds exactly the base
// Interpreting frame, satisfying the non-empty-stack invariant immediately.
func NewThreadState() *ThreadState {
	return &ThreadState{
		stack: []stackFrame{{kind: Interpreting}},
	}
}

// Top returns the kind of the frame on top of the stack.
func (ts *ThreadState) Top() ThreadStateKind {
	return ts.stack[len(ts.stack)-1].kind
}

// Depth returns how many frames are on the stack (always >= 1).
func (ts *ThreadState) Depth() int {
	return len(ts.stack)
}

func (ts *ThreadState) pushTracing(f *tracingFrame) {
	ts.stack = append(ts.stack, stackFrame{kind: TracingState, tracing: f})
}

func (ts *ThreadState) pushExecuting(f *executingFrame) {
	ts.stack = append(ts.stack, stackFrame{kind: ExecutingState, executing: f})
}

// popTracing removes and returns the tracing frame on top of the stack. It
// panics if the top frame is not TracingState, which would be an internal
// coordinator invariant violation (spec §7 "Fatal" class).
func (ts *ThreadState) popTracing() *tracingFrame {
	top := ts.stack[len(ts.stack)-1]
	if top.kind != TracingState {
		panic(fmt.Sprintf("yk: popTracing on non-tracing frame %v", top.kind))
	}
	ts.stack = ts.stack[:len(ts.stack)-1]
	if len(ts.stack) == 0 {
		panic("yk: thread state stack underflow")
	}
	return top.tracing
}

// popExecuting removes and returns the executing frame on top of the stack.
func (ts *ThreadState) popExecuting() *executingFrame {
	top := ts.stack[len(ts.stack)-1]
	if top.kind != ExecutingState {
		panic(fmt.Sprintf("yk: popExecuting on non-executing frame %v", top.kind))
	}
	ts.stack = ts.stack[:len(ts.stack)-1]
	if len(ts.stack) == 0 {
		panic("yk: thread state stack underflow")
	}
	return top.executing
}

// currentTracing returns the tracing frame on top of the stack, or nil if
// the thread is not currently tracing.
func (ts *ThreadState) currentTracing() *tracingFrame {
	top := ts.stack[len(ts.stack)-1]
	if top.kind != TracingState {
		return nil
	}
	return top.tracing
}

// currentExecuting returns the executing frame on top of the stack, or nil
// if the thread is not currently executing a compiled trace.
func (ts *ThreadState) currentExecuting() *executingFrame {
	top := ts.stack[len(ts.stack)-1]
	if top.kind != ExecutingState {
		return nil
	}
	return top.executing
}

// PromoteI32 records a runtime-promoted i32 value into the active trace's
// promotion buffer, if the thread is currently tracing. It always returns
// true, matching spec §6's promotion intake contract: promotion is always
// safe to call whether or not a trace is active.
func (ts *ThreadState) PromoteI32(v int32) bool {
	return ts.promote(uint32(v))
}

// PromoteU32 records a runtime-promoted u32 value.
func (ts *ThreadState) PromoteU32(v uint32) bool {
	return ts.promote(v)
}

// PromoteI64 records a runtime-promoted i64 value.
func (ts *ThreadState) PromoteI64(v int64) bool {
	return ts.promote64(uint64(v))
}

// PromoteUsize records a runtime-promoted usize (uint64 on this module's
// only supported host width) value.
func (ts *ThreadState) PromoteUsize(v uint64) bool {
	return ts.promote64(v)
}

func (ts *ThreadState) promote(v uint32) bool {
	if f := ts.currentTracing(); f != nil {
		var buf [4]byte
		buf[0] = byte(v)
		buf[1] = byte(v >> 8)
		buf[2] = byte(v >> 16)
		buf[3] = byte(v >> 24)
		f.promotions = append(f.promotions, buf[:]...)
	}
	return true
}

func (ts *ThreadState) promote64(v uint64) bool {
	if f := ts.currentTracing(); f != nil {
		var buf [8]byte
		for i := 0; i < 8; i++ {
			buf[i] = byte(v >> (8 * i))
		}
		f.promotions = append(f.promotions, buf[:]...)
	}
	return true
}

// InsertDebugStr records a debug message into the active trace, if any.
// Always returns true (spec §6).
func (ts *ThreadState) InsertDebugStr(msg string) bool {
	if f := ts.currentTracing(); f != nil {
		f.debugStrs = append(f.debugStrs, msg)
	}
	return true
}
