package yk

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCompiler(code CompiledCode, guards []*Guard, err error) TraceCompiler {
	return func(req CompileRequest) (CompiledCode, []*Guard, error) {
		return code, guards, err
	}
}

// Scenario 1 (spec §8): a single thread drives one Location through
// Counting -> Tracing -> Compiling -> Compiled -> Executing.
func TestBasicHotTransition(t *testing.T) {
	mt := NewMT(WithTraceCompiler(testCompiler(CompiledCode{Entry: 0x1000, Len: 32}, nil, nil)), WithMaxWorkers(1))
	mt.pool.SetSynchronous(true)
	mt.SetHotThreshold(4)
	defer mt.Shutdown()

	ts := NewThreadState()
	loc := NewLocation()

	var started Action
	for i := 0; i < 10; i++ {
		a := mt.ControlPoint(ts, loc, 0xAAAA, 0)
		if a.Kind == ActionStartTracing {
			started = a
			break
		}
		require.Equal(t, NoAction, a.Kind)
	}
	require.Equal(t, ActionStartTracing, started.Kind)
	require.Equal(t, TracingState, ts.Top())

	// Loop closes: re-encounter the same location.
	stop := mt.ControlPoint(ts, loc, 0xAAAA, 0)
	require.Equal(t, ActionStopTracing, stop.Kind)
	require.Equal(t, Interpreting, ts.Top())

	assert.Equal(t, KindCompiled, loc.hotLocationOrNil().Kind().Tag)

	exec := mt.ControlPoint(ts, loc, 0xAAAA, 0)
	require.Equal(t, ActionExecute, exec.Kind)
	require.Equal(t, ExecutingState, ts.Top())
	assert.Equal(t, uintptr(0x1000), exec.Trace.Code.Entry)
}

// Scenario 2 (spec §8): many goroutines hammer the same cold Location;
// exactly one of them observes ActionStartTracing.
func TestThreadedThresholdFairness(t *testing.T) {
	mt := NewMT(WithTraceCompiler(testCompiler(CompiledCode{}, nil, nil)))
	defer mt.Shutdown()
	mt.SetHotThreshold(50)

	loc := NewLocation()

	var wg sync.WaitGroup
	var mu sync.Mutex
	starts := 0

	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ts := NewThreadState()
			for j := 0; j < 100; j++ {
				a := mt.ControlPoint(ts, loc, uintptr(0xBEEF+i), 0)
				if a.Kind == ActionStartTracing {
					mu.Lock()
					starts++
					mu.Unlock()
					return
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, starts)
}

// Scenario 3 (spec §8): a location that never successfully compiles
// eventually becomes permanently DontTrace.
func TestStuckLocationBecomesDontTrace(t *testing.T) {
	mt := NewMT(WithTraceCompiler(testCompiler(CompiledCode{}, nil, assertError)), WithMaxWorkers(1))
	mt.pool.SetSynchronous(true)
	mt.SetHotThreshold(2)
	mt.SetTraceFailureThreshold(2)
	defer mt.Shutdown()

	ts := NewThreadState()
	loc := NewLocation()

	for attempt := 0; attempt < 3; attempt++ {
		var started bool
		for i := 0; i < 5; i++ {
			a := mt.ControlPoint(ts, loc, 0xC0DE, 0)
			if a.Kind == ActionStartTracing {
				started = true
				break
			}
		}
		require.True(t, started, "attempt %d never started tracing", attempt)
		stop := mt.ControlPoint(ts, loc, 0xC0DE, 0)
		require.Equal(t, ActionStopTracing, stop.Kind)
	}

	hl := loc.hotLocationOrNil()
	require.NotNil(t, hl)
	assert.Equal(t, KindDontTrace, hl.Kind().Tag)

	a := mt.ControlPoint(ts, loc, 0xC0DE, 0)
	assert.Equal(t, NoAction, a.Kind)
}

// Scenario 4 (spec §8): a location that fails to compile once, then
// succeeds, ends up Compiled rather than stuck.
func TestFailureThenSuccess(t *testing.T) {
	calls := 0
	compiler := func(req CompileRequest) (CompiledCode, []*Guard, error) {
		calls++
		if calls == 1 {
			return CompiledCode{}, nil, assertError
		}
		return CompiledCode{Entry: 0x2000}, nil, nil
	}
	mt := NewMT(WithTraceCompiler(compiler), WithMaxWorkers(1))
	mt.pool.SetSynchronous(true)
	mt.SetHotThreshold(1)
	defer mt.Shutdown()

	ts := NewThreadState()
	loc := NewLocation()

	for attempt := 0; attempt < 2; attempt++ {
		var started bool
		for i := 0; i < 5; i++ {
			a := mt.ControlPoint(ts, loc, 0xD00D, 0)
			if a.Kind == ActionStartTracing {
				started = true
				break
			}
		}
		require.True(t, started)
		mt.ControlPoint(ts, loc, 0xD00D, 0)
	}

	hl := loc.hotLocationOrNil()
	require.Equal(t, KindCompiled, hl.Kind().Tag)

	a := mt.ControlPoint(ts, loc, 0xD00D, 0)
	require.Equal(t, ActionExecute, a.Kind)
	assert.Equal(t, uintptr(0x2000), a.Trace.Code.Entry)
}

// Scenario 5 (spec §8): two independent Locations never interfere.
func TestTwoLocationsAreIsolated(t *testing.T) {
	mt := NewMT(WithTraceCompiler(testCompiler(CompiledCode{Entry: 0x3000}, nil, nil)), WithMaxWorkers(1))
	mt.pool.SetSynchronous(true)
	mt.SetHotThreshold(1)
	defer mt.Shutdown()

	ts := NewThreadState()
	locA := NewLocation()
	locB := NewLocation()

	a1 := mt.ControlPoint(ts, locA, 0x1, 0)
	require.Equal(t, NoAction, a1.Kind)
	a2 := mt.ControlPoint(ts, locA, 0x1, 0)
	require.Equal(t, ActionStartTracing, a2.Kind)
	mt.ControlPoint(ts, locA, 0x1, 0)

	assert.Equal(t, KindCompiled, locA.hotLocationOrNil().Kind().Tag)
	assert.Nil(t, locB.hotLocationOrNil())

	b1 := mt.ControlPoint(ts, locB, 0x2, 0)
	assert.Equal(t, NoAction, b1.Kind)
}

func TestAbortOnFrameAddrMismatch(t *testing.T) {
	mt := NewMT(WithMaxWorkers(1))
	mt.SetHotThreshold(1)
	defer mt.Shutdown()

	ts := NewThreadState()
	loc := NewLocation()

	mt.ControlPoint(ts, loc, 0x10, 0)
	start := mt.ControlPoint(ts, loc, 0x10, 0)
	require.Equal(t, ActionStartTracing, start.Kind)

	abort := mt.ControlPoint(ts, loc, 0x99, 0)
	require.Equal(t, ActionAbortTracing, abort.Kind)
	assert.Equal(t, AbortOutOfFrame, abort.Abort)
	assert.Equal(t, Interpreting, ts.Top())

	hl := loc.hotLocationOrNil()
	require.NotNil(t, hl)
	assert.Equal(t, KindCounting, hl.Kind().Tag)
}

var assertError = errTestCompileFailed

var errTestCompileFailed = &testCompileError{"synthetic compile failure"}

type testCompileError struct{ msg string }

func (e *testCompileError) Error() string { return e.msg }
