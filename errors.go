package yk

import "errors"

var (
	// errNoTraceCompiler is returned internally when a compile job runs
	// with no TraceCompiler installed (WithTraceCompiler was never used).
	// It never escapes MT: the coordinator treats it like any other
	// compile failure and reverts the HotLocation.
	errNoTraceCompiler = errors.New("yk: no trace compiler installed")

	// errTraceTooLong is raised when a recording's block count exceeds the
	// configured cap (spec §7, SetMaxTraceBlocks).
	errTraceTooLong = errors.New("yk: trace exceeded the maximum block count")

	// ErrNoSuchVAddr names the case of a FrameInfo referencing a virtual
	// address absent from the owning trace's liveness map. No function in
	// this module returns it.
	ErrNoSuchVAddr = errors.New("yk: no such virtual address in trace")

	// ErrLocationStuck is a diagnostic error test harnesses can use to
	// assert that a HotLocation reached DontTrace and will never make
	// further progress.
	ErrLocationStuck = errors.New("yk: location permanently excluded from tracing")
)
