package yk

// ActionKind enumerates the actions transitionControlPoint can return (spec
// §4.1.3). The host's control-point shim switches on this to decide whether
// to fall through to its own interpreter, start/stop recording, or jump into
// compiled code.
type ActionKind int

const (
	// NoAction: fall through to the interpreter.
	NoAction ActionKind = iota
	// ActionStartTracing: push a Tracing frame and begin recording.
	ActionStartTracing
	// ActionStopTracing: pop the Tracing frame and submit the recording.
	ActionStopTracing
	// ActionExecute: push an Executing frame and run a CompiledTrace.
	ActionExecute
	// ActionStartSideTracing: like StartTracing but from a guard failure.
	ActionStartSideTracing
	// ActionStopSideTracing: like StopTracing but for a side-trace.
	ActionStopSideTracing
	// ActionAbortTracing: discard the in-flight recording.
	ActionAbortTracing
)

// AbortKind explains why a trace recording was discarded (spec §4.1.3).
type AbortKind int

const (
	// AbortOutOfFrame: the control point was re-entered with a different
	// frameaddr than the one tracing started with (spec §4.1.5).
	AbortOutOfFrame AbortKind = iota
	// AbortHitCompiled: tracing encountered a location that is already
	// compiled.
	AbortHitCompiled
	// AbortDeoptFallback: execution fell back into a JIT'd frame's
	// interpreter continuation after a deopt while this thread was
	// recording.
	AbortDeoptFallback
	// AbortUnrolled: an inner loop was detected but its HotLocation could
	// not be retargeted for tracing (spec §4.1.4).
	AbortUnrolled
)

func (a AbortKind) String() string {
	switch a {
	case AbortOutOfFrame:
		return "OutOfFrame"
	case AbortHitCompiled:
		return "HitCompiled"
	case AbortDeoptFallback:
		return "DeoptFallback"
	case AbortUnrolled:
		return "Unrolled"
	default:
		return "Unknown"
	}
}

// Action is the result of a call to MT.ControlPoint. Exactly the fields
// relevant to Kind are meaningful; the rest are zero.
type Action struct {
	Kind ActionKind

	// ActionStartTracing / ActionStartSideTracing
	Location *HotLocation

	// ActionStopTracing
	StartCPIdx int

	// ActionExecute
	Trace *CompiledTrace

	// ActionStopSideTracing
	GuardIdx  int
	ParentCtr *CompiledTrace
	RootCtr   *CompiledTrace

	// ActionAbortTracing
	Abort AbortKind
}
