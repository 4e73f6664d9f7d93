// Command ykdemo is a toy host process demonstrating mt, config, deopt, and
// irasm wired together end to end: a control-point demo loop drives an MT's
// recording/abort state machine (no TraceCompiler is installed, so it never
// reaches Compiled), an irasm-assembled host-IR file can be run through the
// stopgap interpreter directly, and the demo MT can be observed live via
// the monitor terminal dashboard. The api HTTP/WebSocket server mode starts
// with no sessions; its MT instances are created through its own session
// endpoints, not by the demo loop.
// It is the demonstration harness spec.md's "a complete program" existence
// proof calls for, not a production interpreter; it does not exercise
// decoder or regalloc, which have no host-side packet stream or real
// compiler to plug into outside of their own unit tests.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/lookbusy1344/yk-mt/api"
	"github.com/lookbusy1344/yk-mt/config"
	"github.com/lookbusy1344/yk-mt/deopt"
	"github.com/lookbusy1344/yk-mt/irasm"
	"github.com/lookbusy1344/yk-mt/monitor"

	yk "github.com/lookbusy1344/yk-mt"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	var (
		showVersion = flag.Bool("version", false, "Show version information")
		apiServer   = flag.Bool("api-server", false, "Start HTTP API server mode")
		apiPort     = flag.Int("port", 0, "API server port (0 = use config default)")
		runMonitor  = flag.Bool("monitor", false, "Start the live terminal dashboard")
		iterations  = flag.Uint64("iterations", 200, "Number of demo loop iterations to run")
		irasmFile   = flag.String("irasm", "", "Path to a host-IR text file assembled by irasm for the stopgap demo")
		configPath  = flag.String("config", "", "Path to config file (default: "+configDefaultHint+")")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("ykdemo %s (commit %s)\n", Version, Commit)
		os.Exit(0)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	switch {
	case *apiServer:
		port := *apiPort
		if port == 0 {
			port = cfg.API.Port
		}
		runAPIServer(port)
	case *runMonitor:
		runDashboard(cfg)
	case *irasmFile != "":
		if err := runIrasmDemo(*irasmFile); err != nil {
			fmt.Fprintf(os.Stderr, "irasm demo error: %v\n", err)
			os.Exit(1)
		}
	default:
		runControlPointDemo(cfg, *iterations)
	}
}

const configDefaultHint = "~/.config/yk-mt/config.toml"

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFrom(path)
	}
	return config.Load()
}

// runAPIServer starts the introspection HTTP/WebSocket server and blocks
// until an interrupt or TERM signal arrives, the same graceful-shutdown
// shape as the teacher's main.go api-server mode.
func runAPIServer(port int) {
	server := api.NewServer(port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var shutdownOnce sync.Once
	performShutdown := func() {
		shutdownOnce.Do(func() {
			fmt.Println("\nShutting down API server...")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
				os.Exit(1)
			}
		})
	}

	procMon := api.NewProcessMonitor(performShutdown)
	procMon.Start()

	go func() {
		<-sigChan
		performShutdown()
	}()

	fmt.Printf("API server listening on http://127.0.0.1:%d\n", port)
	if err := server.Start(); err != nil && err.Error() != "http: Server closed" {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// runDashboard starts an MT instance wired to a live tview dashboard and
// runs the same control-point demo loop underneath it so the dashboard has
// something to show.
func runDashboard(cfg *config.Config) {
	mt := newMTFromConfig(cfg)
	defer mt.Shutdown()

	interval, err := time.ParseDuration(cfg.Monitor.RefreshInterval)
	if err != nil {
		interval = 250 * time.Millisecond
	}
	dash := monitor.NewDashboard(mt, interval)
	mt.SetEventSink(dash.EventSink())

	go runControlPointLoop(mt, 1_000_000)

	if err := dash.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "dashboard error: %v\n", err)
		os.Exit(1)
	}
}

func newMTFromConfig(cfg *config.Config) *yk.MT {
	opts := []yk.Option{}
	if cfg.CompileQueue.MaxWorkers > 0 {
		opts = append(opts, yk.WithMaxWorkers(cfg.CompileQueue.MaxWorkers))
	}
	mt := yk.NewMT(opts...)
	if os.Getenv("YK_HOT_THRESHOLD") == "" {
		mt.SetHotThreshold(cfg.MT.HotThreshold)
	}
	mt.SetSidetraceThreshold(cfg.MT.SidetraceThreshold)
	mt.SetTraceFailureThreshold(cfg.MT.TraceFailureThreshold)
	mt.SetMaxTraceBlocks(cfg.MT.MaxTraceBlocks)
	return mt
}

// runControlPointDemo runs the loop standalone and prints a final stats
// snapshot, for a quick smoke-test invocation with no server or dashboard.
func runControlPointDemo(cfg *config.Config, iterations uint64) {
	mt := newMTFromConfig(cfg)
	defer mt.Shutdown()

	runControlPointLoop(mt, iterations)

	s := mt.Stats()
	fmt.Printf("traces started=%d stopped=%d aborted=%d compiled=%d failed=%d guard_failures=%d side_traces=%d\n",
		s.TracesStarted, s.TracesStopped, s.TracesAborted, s.CompileSuccess, s.CompileFailure, s.GuardFailures, s.SideTracesBegun)
	fmt.Printf("registered traces: %d\n", mt.Registry().Len())
}

// runControlPointLoop drives a single Location through iterations calls to
// ControlPoint, letting the hot-threshold/tracing/compiling state machine
// run to completion the way a real host interpreter's dispatch loop would.
// No real TraceCompiler is installed, so the demo exercises the state
// machine's recording/abort path rather than ever reaching Compiled.
func runControlPointLoop(mt *yk.MT, iterations uint64) {
	loc := yk.NewLocation()
	ts := yk.NewThreadState()
	var frameaddr uintptr

	for i := uint64(0); i < iterations; i++ {
		mt.ControlPoint(ts, loc, frameaddr, 0)
	}
}

// runIrasmDemo assembles a host-IR text file and runs its "main" body
// through the stopgap interpreter, printing the returned value. It exists
// to give the irasm package and the deopt stopgap interpreter a runnable
// end-to-end demonstration outside of unit tests.
func runIrasmDemo(path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	bodies, err := irasm.NewParser(string(src)).ParseProgram()
	if err != nil {
		return err
	}

	main, ok := bodies["main"]
	if !ok {
		return fmt.Errorf("no %q body found in %s", "main", path)
	}

	resolver := func(id int) (*deopt.Body, error) {
		for _, b := range bodies {
			if b.ID == id {
				return b, nil
			}
		}
		return nil, fmt.Errorf("no body with id %d", id)
	}

	frame := deopt.NewFrameInfo(main, 0)
	interp := deopt.NewStopgapInterpreter([]*deopt.FrameInfo{frame}, resolver)

	result, err := interp.Run()
	if err != nil {
		return err
	}

	fmt.Printf("result = %d\n", result)
	return nil
}
