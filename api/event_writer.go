package api

import (
	yk "github.com/lookbusy1344/yk-mt"
)

// broadcastEventSink implements yk.EventSink by relaying every emitted
// JITEvent/Warning/Error into the Broadcaster under the owning session's ID,
// replacing the teacher's stdout-broadcasting EventWriter with the
// equivalent bridge for this domain's event stream.
type broadcastEventSink struct {
	broadcaster *Broadcaster
	sessionID   string
}

// newBroadcastEventSink creates a sink that forwards one MT instance's
// events to all WebSocket clients subscribed to sessionID.
func newBroadcastEventSink(broadcaster *Broadcaster, sessionID string) *broadcastEventSink {
	return &broadcastEventSink{broadcaster: broadcaster, sessionID: sessionID}
}

// OnEvent implements yk.EventSink.
func (s *broadcastEventSink) OnEvent(sev yk.Severity, msg string) {
	if s.broadcaster == nil {
		return
	}
	switch sev {
	case yk.SevJITEvent:
		s.broadcaster.BroadcastJITEvent(s.sessionID, msg, nil)
	default:
		s.broadcaster.BroadcastLog(s.sessionID, sev.String(), msg)
	}
}

var _ yk.EventSink = (*broadcastEventSink)(nil)
