package monitor

import (
	"fmt"

	yk "github.com/lookbusy1344/yk-mt"
)

// eventSink implements yk.EventSink by writing every emitted event into the
// dashboard's log view, colored by severity the same way the teacher's TUI
// colors command errors red.
type eventSink struct {
	d *Dashboard
}

// EventSink returns a yk.EventSink that forwards every JITEvent/Warning/Error
// from d's MT instance into the dashboard's log view. Install it with
// MT.SetEventSink on the MT this dashboard observes.
func (d *Dashboard) EventSink() yk.EventSink {
	return &eventSink{d: d}
}

func (s *eventSink) OnEvent(sev yk.Severity, msg string) {
	var color string
	switch sev {
	case yk.SevWarning:
		color = "yellow"
	case yk.SevError:
		color = "red"
	default:
		color = "white"
	}
	s.d.WriteLog(fmt.Sprintf("[%s]%s:[white] %s\n", color, sev, msg))
}

var _ yk.EventSink = (*eventSink)(nil)
