package yk

// GuardFailure is called by the host's deopt stub after guardIdx of trace
// failed at runtime (spec §5), while ts's top frame is still the Executing
// frame for trace. It pops that frame, leaving Interpreting exposed below
// it, then decides
// whether this failure is the one that should trigger side-trace recording,
// and if so pushes a new tracing frame and returns ActionStartSideTracing.
// Every other case returns NoAction: ordinary deoptimisation back into the
// interpreter, handled entirely by the deopt package, needs no help from MT.
func (mt *MT) GuardFailure(ts *ThreadState, trace *CompiledTrace, guardIdx int, frameaddr uintptr) Action {
	ts.popExecuting()

	mt.stats.GuardFailures.Add(1)

	guard := trace.Guards[guardIdx]
	if !guard.IncFailed() {
		return Action{Kind: NoAction}
	}

	hl := trace.origin
	if !tryLockBounded(&hl.mu) {
		// Another thread is already deciding this HotLocation's fate
		// (likely also starting a side-trace for a different guard, or
		// recompiling). Declining to side-trace here is always safe: the
		// guard will simply fail again next time and retry.
		return Action{Kind: NoAction}
	}
	defer hl.mu.Unlock()

	// hl.kind.Compiled always names the root trace, never a side-trace
	// (mt.runCompile sets it that way on every successful compile, root or
	// side), so looking it up here recovers the root regardless of
	// whether trace itself is the root or one of its side-traces.
	if hl.kind.Tag != KindCompiled {
		// The location moved on (re-tracing, recompiling, or DontTrace)
		// since this guard's trace was published; a side-trace attempt
		// now would be pointless.
		return Action{Kind: NoAction}
	}
	root, ok := mt.registry.Get(hl.kind.Compiled)
	if !ok {
		mt.emit(SevError, "compiled trace %d missing from registry", hl.kind.Compiled)
		return Action{Kind: NoAction}
	}

	hl.kind = HotLocationKind{Tag: KindSideTracing, SideTrace: SideTraceInfo{
		RootCtr:   root.ID,
		ParentCtr: trace.ID,
		GuardIdx:  guardIdx,
	}}

	ts.pushTracing(&tracingFrame{
		origin:    hl,
		frameaddr: frameaddr,
		cpIdx:     0,
		seenHLs:   map[*HotLocation]int{hl: 0},
		sideTrace: &sideTraceTarget{parent: trace, root: root, guardIdx: guardIdx},
	})

	mt.stats.SideTracesBegun.Add(1)
	mt.emit(SevJITEvent, "start-side-tracing guard=%d of trace=%d", guardIdx, trace.ID)
	return Action{Kind: ActionStartSideTracing, Location: hl}
}
