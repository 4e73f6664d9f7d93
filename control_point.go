package yk

// ControlPoint implements control_point(loc, frameaddr, stackmap_id): the
// single callsite the host's interpreter dispatch loop invokes once per
// iteration (spec §4.1). ts is the calling thread's own ThreadState (see
// threadstate.go for why this module makes thread-locality explicit rather
// than implicit); loc identifies the program point; frameaddr is the
// host interpreter's current native frame address; stackmapID identifies
// the stackmap the host would use to reconstruct locals from this point
// (opaque to this module — it is only ever round-tripped back to the host
// via FrameInfo in the deopt package).
func (mt *MT) ControlPoint(ts *ThreadState, loc *Location, frameaddr uintptr, stackmapID uint64) Action {
	if ts.Top() == TracingState {
		return mt.controlPointWhileTracing(ts, loc, frameaddr, stackmapID)
	}
	return mt.controlPointCold(ts, loc, frameaddr, stackmapID)
}

// controlPointCold handles every call made while the thread is not
// currently recording a trace (it may be Interpreting or Executing, though
// a well-behaved host never calls control_point while Executing — compiled
// code tail-jumps away and only returns via deopt, which re-enters through
// GuardFailure, not ControlPoint).
func (mt *MT) controlPointCold(ts *ThreadState, loc *Location, frameaddr uintptr, stackmapID uint64) Action {
	hl := loc.hotLocationOrNil()

	if hl == nil {
		crossed := loc.incCount(mt.HotThreshold())
		if !crossed {
			return Action{Kind: NoAction}
		}
		hl = newHotLocation(loc, mt.FailureThreshold(), HotLocationKind{Tag: KindTracing})
		loc.upgrade(hl)
		mt.startTracingFrame(ts, hl, frameaddr)
		mt.stats.TracesStarted.Add(1)
		mt.emit(SevJITEvent, "start-tracing location=%p", loc)
		return Action{Kind: ActionStartTracing, Location: hl}
	}

	if !tryLockBounded(&hl.mu) {
		return Action{Kind: NoAction}
	}
	defer hl.mu.Unlock()

	switch hl.kind.Tag {
	case KindCounting:
		hl.kind.Counter++
		if hl.kind.Counter < mt.HotThreshold() {
			return Action{Kind: NoAction}
		}
		hl.kind = HotLocationKind{Tag: KindTracing}
		mt.startTracingFrame(ts, hl, frameaddr)
		mt.stats.TracesStarted.Add(1)
		mt.emit(SevJITEvent, "start-tracing location=%p (retry)", loc)
		return Action{Kind: ActionStartTracing, Location: hl}

	case KindTracing, KindCompiling, KindSideTracing, KindDontTrace:
		return Action{Kind: NoAction}

	case KindCompiled:
		ct, ok := mt.registry.Get(hl.kind.Compiled)
		if !ok {
			// Internal inconsistency: a Compiled kind must always resolve.
			// Treat as a per-trace recoverable situation rather than
			// panicking the calling interpreter thread (spec §7).
			mt.emit(SevError, "compiled trace %d missing from registry", hl.kind.Compiled)
			return Action{Kind: NoAction}
		}
		ts.pushExecuting(&executingFrame{trace: ct})
		return Action{Kind: ActionExecute, Trace: ct}

	default:
		return Action{Kind: NoAction}
	}
}

func (mt *MT) startTracingFrame(ts *ThreadState, hl *HotLocation, frameaddr uintptr) {
	ts.pushTracing(&tracingFrame{
		origin:    hl,
		frameaddr: frameaddr,
		cpIdx:     0,
		seenHLs:   map[*HotLocation]int{hl: 0},
	})
}

// controlPointWhileTracing handles every call made while ts is recording a
// (root or side-) trace.
func (mt *MT) controlPointWhileTracing(ts *ThreadState, loc *Location, frameaddr uintptr, stackmapID uint64) Action {
	frame := ts.currentTracing()

	if frameaddr != frame.frameaddr {
		return mt.abortTracing(ts, AbortOutOfFrame)
	}

	hl := loc.hotLocationOrNil()

	if hl == frame.origin {
		return mt.closeTrace(ts)
	}

	if hl == nil {
		frame.cpIdx++
		return Action{Kind: NoAction}
	}

	hl.mu.Lock()
	defer hl.mu.Unlock()

	if prevIdx, seen := frame.seenHLs[hl]; seen {
		if hl.kind.Tag == KindCounting {
			return mt.retargetInnerLoop(ts, frame, hl, prevIdx)
		}
		if frame.origin != hl {
			frame.origin.mu.Lock()
			defer frame.origin.mu.Unlock()
		}
		return mt.abortTracingLocked(ts, frame, AbortUnrolled)
	}

	frame.seenHLs[hl] = frame.cpIdx
	frame.cpIdx++
	return Action{Kind: NoAction}
}

// closeTrace handles re-encountering the location tracing started at: the
// loop has closed and the recording is ready to hand to the compiler. It
// applies uniformly to root traces and side-traces (spec §4.1.3).
func (mt *MT) closeTrace(ts *ThreadState) Action {
	frame := ts.popTracing()
	hl := frame.origin

	recording := TraceRecording{
		Promotions: frame.promotions,
		DebugStrs:  frame.debugStrs,
		StartCPIdx: 0,
		Blocks:     frame.cpIdx,
	}

	hl.mu.Lock()
	hl.kind = HotLocationKind{Tag: KindCompiling}
	hl.mu.Unlock()

	mt.stats.TracesStopped.Add(1)

	if frame.sideTrace == nil {
		mt.submitCompile(hl, recording, nil)
		mt.emit(SevJITEvent, "stop-tracing (root)")
		return Action{Kind: ActionStopTracing, StartCPIdx: 0}
	}

	st := frame.sideTrace
	mt.submitCompile(hl, recording, st)
	mt.emit(SevJITEvent, "stop-tracing (side-trace of guard %d)", st.guardIdx)
	return Action{
		Kind:      ActionStopSideTracing,
		GuardIdx:  st.guardIdx,
		ParentCtr: st.parent,
		RootCtr:   st.root,
	}
}

// retargetInnerLoop implements spec §4.1.4: an inner loop was detected
// while recording an outer trace. The outer recording is discarded (its own
// HotLocation reverts to Counting/DontTrace, same as any other abort), and
// the inner HotLocation is handed directly to the compile queue with
// StartCPIdx pointing at the offset the recorder should resume from,
// skipping the abandoned outer prefix. Caller holds hl.mu.
func (mt *MT) retargetInnerLoop(ts *ThreadState, frame *tracingFrame, hl *HotLocation, prevIdx int) Action {
	ts.popTracing()

	hl.kind = HotLocationKind{Tag: KindCompiling}
	mt.submitCompile(hl, TraceRecording{StartCPIdx: prevIdx}, nil)

	outer := frame.origin
	if outer != hl {
		outer.mu.Lock()
		mt.abandonLocked(outer)
		outer.mu.Unlock()
	}

	mt.stats.TracesAborted.Add(1)
	mt.emit(SevJITEvent, "inner loop detected, retargeting compile to cp_idx=%d", prevIdx)
	return Action{Kind: ActionStopTracing, StartCPIdx: prevIdx}
}

// abortTracing discards ts's current trace recording for the given reason,
// locking the originating HotLocation itself.
func (mt *MT) abortTracing(ts *ThreadState, kind AbortKind) Action {
	frame := ts.currentTracing()
	hl := frame.origin
	hl.mu.Lock()
	defer hl.mu.Unlock()
	return mt.abortTracingLocked(ts, frame, kind)
}

// abortTracingLocked is the same as abortTracing but for callers that
// already hold frame.origin's mutex (the inner-loop / re-encounter path).
func (mt *MT) abortTracingLocked(ts *ThreadState, frame *tracingFrame, kind AbortKind) Action {
	ts.popTracing()
	hl := frame.origin

	if frame.sideTrace != nil {
		hl.kind = HotLocationKind{Tag: KindCompiled, Compiled: frame.sideTrace.root.ID}
	} else {
		mt.abandonLocked(hl)
	}

	mt.stats.TracesAborted.Add(1)
	mt.emit(SevWarning, "trace aborted: %s", kind)
	return Action{Kind: ActionAbortTracing, Abort: kind}
}

// abandonLocked reverts hl to Counting(0) or, once the failure threshold is
// exceeded, to the terminal DontTrace kind (spec §4.1.7). Caller holds
// hl.mu.
func (mt *MT) abandonLocked(hl *HotLocation) {
	if hl.traceCompilationError() {
		hl.kind = HotLocationKind{Tag: KindCounting, Counter: 0}
	} else {
		hl.kind = HotLocationKind{Tag: KindDontTrace}
		mt.emit(SevWarning, "location permanently excluded from tracing (errors=%d)", hl.tracecompilationErrors)
	}
}
