package yk

// submitCompile enqueues a compile job for hl's just-finished recording onto
// the worker pool (component G). side is non-nil when this recording is a
// side-trace extending an existing guard.
func (mt *MT) submitCompile(hl *HotLocation, recording TraceRecording, side *sideTraceTarget) {
	mt.pool.Submit(func() {
		mt.runCompile(hl, recording, side)
	})
}

// runCompile is the body of a compile worker job: it invokes the host's
// TraceCompiler, then publishes success or rolls the HotLocation back on
// failure. It runs on a pool goroutine, never on the tracing thread itself.
func (mt *MT) runCompile(hl *HotLocation, recording TraceRecording, side *sideTraceTarget) {
	if recording.Blocks > int(mt.maxTraceBlocks.Load()) {
		mt.failCompile(hl, side, errTraceTooLong)
		return
	}

	if mt.compiler == nil {
		mt.failCompile(hl, side, errNoTraceCompiler)
		return
	}

	req := CompileRequest{
		Recording:   recording,
		IsSideTrace: side != nil,
	}
	if side != nil {
		req.ParentTrace = side.parent
		req.GuardIdx = side.guardIdx
	}

	code, guards, err := mt.compiler(req)
	if err != nil {
		mt.failCompile(hl, side, err)
		return
	}

	mt.stats.CompileSuccess.Add(1)

	hl.mu.Lock()
	defer hl.mu.Unlock()

	if side == nil {
		ct := mt.registry.Publish(code, guards, hl, 0)
		hl.kind = HotLocationKind{Tag: KindCompiled, Compiled: ct.ID}
		mt.emit(SevJITEvent, "compiled root trace %d", ct.ID)
		return
	}

	// Side-traces always publish with Parent set to the guard's owning
	// trace, and leave the location pointing at the root it started from
	// (spec §4.4: a guard's side-trace is reached via the guard, never via
	// the HotLocation's own kind).
	ct := mt.registry.Publish(code, guards, hl, side.parent.ID)
	side.parent.Guards[side.guardIdx].AttachSideTrace(ct.ID)
	hl.kind = HotLocationKind{Tag: KindCompiled, Compiled: side.root.ID}
	mt.emit(SevJITEvent, "compiled side-trace %d for guard %d of trace %d", ct.ID, side.guardIdx, side.parent.ID)
}

// failCompile reverts hl after a compile attempt fails (compiler error, nil
// compiler, or trace-too-long). A failed side-trace attempt leaves the
// location pointing back at the already-compiled root rather than falling
// back to Counting, since the root trace remains perfectly valid.
func (mt *MT) failCompile(hl *HotLocation, side *sideTraceTarget, err error) {
	mt.stats.CompileFailure.Add(1)
	mt.emit(SevWarning, "compile failed: %v", err)

	hl.mu.Lock()
	defer hl.mu.Unlock()

	if side != nil {
		hl.kind = HotLocationKind{Tag: KindCompiled, Compiled: side.root.ID}
		return
	}
	mt.abandonLocked(hl)
}
