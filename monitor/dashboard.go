// Package monitor is a live terminal dashboard over one embedded yk.MT
// instance, the same tview/tcell TUI idiom the teacher's debugger.TUI uses
// for its register/memory/disassembly panels, repurposed here to show
// compile-thread activity instead of CPU state.
package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	yk "github.com/lookbusy1344/yk-mt"
)

// Dashboard is the live view over one MT instance's stats, thresholds, and
// compiled-trace registry.
type Dashboard struct {
	mt *yk.MT

	App   *tview.Application
	Pages *tview.Pages

	MainLayout *tview.Flex

	StatsView      *tview.TextView
	ThresholdsView *tview.TextView
	TracesView     *tview.TextView
	LogView        *tview.TextView
	CommandInput   *tview.InputField

	refreshInterval time.Duration
	stopCh          chan struct{}
}

// NewDashboard creates a dashboard refreshed every interval (spec §6's
// Monitor.RefreshInterval config value, a sensible default when zero is
// 250ms).
func NewDashboard(mt *yk.MT, interval time.Duration) *Dashboard {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}

	d := &Dashboard{
		mt:              mt,
		App:             tview.NewApplication(),
		refreshInterval: interval,
		stopCh:          make(chan struct{}),
	}

	d.initializeViews()
	d.buildLayout()
	d.setupKeyBindings()

	return d
}

func (d *Dashboard) initializeViews() {
	d.StatsView = tview.NewTextView().SetDynamicColors(true).SetScrollable(false)
	d.StatsView.SetBorder(true).SetTitle(" Stats ")

	d.ThresholdsView = tview.NewTextView().SetDynamicColors(true).SetScrollable(false)
	d.ThresholdsView.SetBorder(true).SetTitle(" Thresholds ")

	d.TracesView = tview.NewTextView().SetDynamicColors(true).SetScrollable(true).SetWrap(false)
	d.TracesView.SetBorder(true).SetTitle(" Compiled Traces ")

	d.LogView = tview.NewTextView().SetDynamicColors(true).SetScrollable(true).SetWrap(true)
	d.LogView.SetBorder(true).SetTitle(" Events ")
	d.LogView.SetMaxLines(500)

	d.CommandInput = tview.NewInputField().SetLabel("> ").SetFieldWidth(0)
	d.CommandInput.SetBorder(true).SetTitle(" Command ")
	d.CommandInput.SetDoneFunc(d.handleCommand)
}

func (d *Dashboard) buildLayout() {
	top := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(d.StatsView, 0, 1, false).
		AddItem(d.ThresholdsView, 0, 1, false)

	middle := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(top, 9, 0, false).
		AddItem(d.TracesView, 0, 2, false)

	d.MainLayout = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(middle, 0, 3, false).
		AddItem(d.LogView, 8, 0, false).
		AddItem(d.CommandInput, 3, 0, true)

	d.Pages = tview.NewPages().AddPage("main", d.MainLayout, true, true)
}

func (d *Dashboard) setupKeyBindings() {
	d.App.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyCtrlC:
			d.App.Stop()
			return nil
		case tcell.KeyCtrlL:
			d.RefreshAll()
			return nil
		}
		return event
	})
}

// handleCommand processes a line typed into CommandInput: "hot N",
// "sidetrace N", "failure N" adjust the matching threshold live; anything
// else is echoed to the log view as unrecognized.
func (d *Dashboard) handleCommand(key tcell.Key) {
	if key != tcell.KeyEnter {
		return
	}
	cmd := strings.TrimSpace(d.CommandInput.GetText())
	d.CommandInput.SetText("")
	if cmd == "" {
		return
	}

	fields := strings.Fields(cmd)
	var n uint64
	if len(fields) == 2 {
		fmt.Sscanf(fields[1], "%d", &n)
	}

	switch {
	case len(fields) == 2 && fields[0] == "hot":
		d.mt.SetHotThreshold(uint32(n))
	case len(fields) == 2 && fields[0] == "sidetrace":
		d.mt.SetSidetraceThreshold(uint32(n))
	case len(fields) == 2 && fields[0] == "failure":
		d.mt.SetTraceFailureThreshold(uint32(n))
	default:
		d.WriteLog(fmt.Sprintf("[yellow]unrecognized command:[white] %s\n", cmd))
	}

	d.RefreshAll()
}

// WriteLog appends text to the event log view, used by the yk.EventSink
// adapter in events.go to surface JITEvent/Warning/Error traffic live.
func (d *Dashboard) WriteLog(text string) {
	_, _ = d.LogView.Write([]byte(text))
	d.LogView.ScrollToEnd()
}

// RefreshAll redraws every panel from the current MT state.
func (d *Dashboard) RefreshAll() {
	d.updateStatsView()
	d.updateThresholdsView()
	d.updateTracesView()
	d.App.Draw()
}

func (d *Dashboard) updateStatsView() {
	s := d.mt.Stats()
	d.StatsView.SetText(fmt.Sprintf(
		"Traces started:  %d\nTraces stopped:  %d\nTraces aborted:  %d\nCompile OK:      %d\nCompile failed:  %d\nGuard failures:  %d\nSide-traces:     %d",
		s.TracesStarted, s.TracesStopped, s.TracesAborted,
		s.CompileSuccess, s.CompileFailure, s.GuardFailures, s.SideTracesBegun,
	))
}

func (d *Dashboard) updateThresholdsView() {
	d.ThresholdsView.SetText(fmt.Sprintf(
		"Hot:       %d\nSidetrace: %d\nFailure:   %d",
		d.mt.HotThreshold(), d.mt.SidetraceThreshold(), d.mt.FailureThreshold(),
	))
}

func (d *Dashboard) updateTracesView() {
	traces := d.mt.Registry().Snapshot()
	var lines []string
	for _, ct := range traces {
		role := "root"
		if !ct.IsRoot() {
			role = fmt.Sprintf("side of %d", ct.Parent)
		}
		lines = append(lines, fmt.Sprintf("#%-6d entry=0x%x len=%d guards=%d (%s)",
			ct.ID, ct.Code.Entry, ct.Code.Len, len(ct.Guards), role))
	}
	if len(lines) == 0 {
		d.TracesView.SetText("[yellow]no compiled traces yet[white]")
		return
	}
	d.TracesView.SetText(strings.Join(lines, "\n"))
}

// Run starts the refresh loop and blocks in the tview event loop until Stop
// is called or the user quits (Ctrl-C).
func (d *Dashboard) Run() error {
	go d.refreshLoop()
	return d.App.SetRoot(d.Pages, true).Run()
}

func (d *Dashboard) refreshLoop() {
	ticker := time.NewTicker(d.refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.App.QueueUpdateDraw(d.RefreshAll)
		case <-d.stopCh:
			return
		}
	}
}

// Stop ends the refresh loop and the tview application.
func (d *Dashboard) Stop() {
	close(d.stopCh)
	d.App.Stop()
}
