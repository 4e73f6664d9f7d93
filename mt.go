package yk

import (
	"os"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/lookbusy1344/yk-mt/compileq"
)

// Default configuration values, overridable via MT setters or the
// environment variables named in spec §6.
const (
	DefaultHotThreshold       = 50
	DefaultSidetraceThreshold = 5
	DefaultFailureThreshold   = 5
	DefaultMaxTraceBlocks     = 20000 // spec §7 "trace too long" cap
	defaultTryLockSpins       = 8
)

// TraceRecording is everything the recorder accumulated for a trace that
// reached StopTracing/StopSideTracing (spec §3 tracing-frame fields, minus
// the packet stream itself, which belongs to the host/decoder and is
// opaque to this package).
type TraceRecording struct {
	Promotions []byte
	DebugStrs  []string
	// StartCPIdx mirrors Action.StartCPIdx: nonzero when an inner loop was
	// detected and the compiler must discard the outer prefix (spec
	// §4.1.4).
	StartCPIdx int
	// Blocks lets a recorder report how many basic blocks it captured, so
	// MT can enforce the trace-too-long cap (spec §7) without needing to
	// understand IR itself.
	Blocks int
}

// CompileRequest is handed to the host-supplied TraceCompiler.
type CompileRequest struct {
	Recording   TraceRecording
	IsSideTrace bool
	ParentTrace *CompiledTrace // nil for a root trace
	GuardIdx    int
}

// TraceCompiler turns a recorded trace into executable code plus its guard
// table. Actual codegen (register allocation aside) is out of scope for
// this module (spec §1): this is the seam the host's real compiler plugs
// into. A nil TraceCompiler makes every compile attempt fail, which is
// useful for exercising the state machine in isolation (as spec §8's
// scenarios do).
type TraceCompiler func(req CompileRequest) (CompiledCode, []*Guard, error)

// Stats accumulates the runtime counters described in SPEC_FULL.md §C.1,
// modeled on the teacher's vm.PerformanceStatistics.
type Stats struct {
	TracesStarted   atomic.Uint64
	TracesStopped   atomic.Uint64
	TracesAborted   atomic.Uint64
	CompileSuccess  atomic.Uint64
	CompileFailure  atomic.Uint64
	GuardFailures   atomic.Uint64
	SideTracesBegun atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of Stats safe to hand to introspection
// callers (the api and monitor packages).
type StatsSnapshot struct {
	TracesStarted   uint64
	TracesStopped   uint64
	TracesAborted   uint64
	CompileSuccess  uint64
	CompileFailure  uint64
	GuardFailures   uint64
	SideTracesBegun uint64
}

func (s *Stats) snapshot() StatsSnapshot {
	return StatsSnapshot{
		TracesStarted:   s.TracesStarted.Load(),
		TracesStopped:   s.TracesStopped.Load(),
		TracesAborted:   s.TracesAborted.Load(),
		CompileSuccess:  s.CompileSuccess.Load(),
		CompileFailure:  s.CompileFailure.Load(),
		GuardFailures:   s.GuardFailures.Load(),
		SideTracesBegun: s.SideTracesBegun.Load(),
	}
}

// MT is the control-point coordinator (component C). It owns the compile
// worker pool, the compiled-trace registry, and the thresholds that drive
// every Location/HotLocation transition.
type MT struct {
	hotThreshold       atomic.Uint32
	sidetraceThreshold atomic.Uint32
	failureThreshold   atomic.Uint32
	maxTraceBlocks      atomic.Uint32

	registry *Registry
	pool     *compileq.Pool[MT]
	compiler TraceCompiler
	stats    Stats

	mu   sync.RWMutex
	sink EventSink

	maxWorkersOverride int

	shutdownOnce sync.Once
}

// Option configures an MT at construction time.
type Option func(*MT)

// WithTraceCompiler installs the host's trace compiler.
func WithTraceCompiler(c TraceCompiler) Option {
	return func(mt *MT) { mt.compiler = c }
}

// WithEventSink installs a sink that receives every emitted JITEvent,
// Warning, and Error (the api and monitor packages use this).
func WithEventSink(sink EventSink) Option {
	return func(mt *MT) { mt.sink = sink }
}

// WithMaxWorkers bounds the compile worker pool (defaults to
// max(1, logical_cpus-1), spec §4.5).
func WithMaxWorkers(n int) Option {
	return func(mt *MT) { mt.maxWorkersOverride = n }
}

// NewMT is mt_new(): it allocates a coordinator with default thresholds
// (overridable by YK_HOT_THRESHOLD, spec §6) and an empty registry.
func NewMT(opts ...Option) *MT {
	mt := &MT{
		registry: NewRegistry(),
	}
	mt.hotThreshold.Store(DefaultHotThreshold)
	mt.sidetraceThreshold.Store(DefaultSidetraceThreshold)
	mt.failureThreshold.Store(DefaultFailureThreshold)
	mt.maxTraceBlocks.Store(DefaultMaxTraceBlocks)

	if v := os.Getenv("YK_HOT_THRESHOLD"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			mt.hotThreshold.Store(uint32(n))
		}
	}

	for _, o := range opts {
		o(mt)
	}

	maxWorkers := mt.maxWorkersOverride
	if maxWorkers <= 0 {
		maxWorkers = runtime.NumCPU() - 1
		if maxWorkers < 1 {
			maxWorkers = 1
		}
	}

	mt.pool = compileq.NewPool(mt, maxWorkers)
	if os.Getenv("YKD_SERIALISE_COMPILATION") == "1" {
		mt.pool.SetSynchronous(true)
	}

	return mt
}

// Registry exposes the compiled-trace registry for introspection.
func (mt *MT) Registry() *Registry { return mt.registry }

// SetEventSink installs or replaces the sink that receives every emitted
// JITEvent/Warning/Error, for callers (the api and monitor packages) that
// only obtain their sink after the MT they want to observe already exists.
func (mt *MT) SetEventSink(sink EventSink) {
	mt.mu.Lock()
	mt.sink = sink
	mt.mu.Unlock()
}

// Stats returns a snapshot of the runtime counters.
func (mt *MT) Stats() StatsSnapshot { return mt.stats.snapshot() }

// HotThreshold / SetHotThreshold implement mt_get_hot_threshold /
// mt_set_hot_threshold.
func (mt *MT) HotThreshold() uint32        { return mt.hotThreshold.Load() }
func (mt *MT) SetHotThreshold(n uint32)    { mt.hotThreshold.Store(n) }

// SidetraceThreshold / SetSidetraceThreshold implement
// mt_get_sidetrace_threshold / mt_set_sidetrace_threshold.
func (mt *MT) SidetraceThreshold() uint32     { return mt.sidetraceThreshold.Load() }
func (mt *MT) SetSidetraceThreshold(n uint32) { mt.sidetraceThreshold.Store(n) }

// SetTraceFailureThreshold implements mt_set_trace_failure_threshold. Per
// spec §6 the threshold must be at least 1 so that a location can always
// eventually become DontTrace rather than retry forever.
func (mt *MT) SetTraceFailureThreshold(n uint32) {
	if n < 1 {
		n = 1
	}
	mt.failureThreshold.Store(n)
}

func (mt *MT) FailureThreshold() uint32 { return mt.failureThreshold.Load() }

// SetMaxTraceBlocks overrides the trace-too-long cap (spec §7, default
// ~20,000 blocks).
func (mt *MT) SetMaxTraceBlocks(n uint32) { mt.maxTraceBlocks.Store(n) }

// Shutdown is mt_shutdown: idempotent, flushes the worker pool (joining
// every finished worker and re-raising any worker panic).
func (mt *MT) Shutdown() {
	mt.shutdownOnce.Do(func() {
		mt.pool.Shutdown()
		mt.emit(SevJITEvent, "mt shutdown complete")
	})
}

// tryLockBounded attempts to acquire mu with a short bounded spin, returning
// false on persistent contention instead of blocking (spec §4.1.6: "it may
// try-lock with a bounded spin and fall back to NoAction on contention,
// because failing to act is always safe").
func tryLockBounded(mu *sync.Mutex) bool {
	for i := 0; i < defaultTryLockSpins; i++ {
		if mu.TryLock() {
			return true
		}
		runtime.Gosched()
	}
	return false
}
