package api

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	yk "github.com/lookbusy1344/yk-mt"
)

var (
	// ErrSessionNotFound is returned when an MT instance is not found
	ErrSessionNotFound = errors.New("mt instance not found")
	// ErrSessionAlreadyExists is returned when trying to create an instance with an existing ID
	ErrSessionAlreadyExists = errors.New("mt instance already exists")
)

// Session wraps one embedded MT coordinator, addressed by a generated ID so
// a single API server can introspect several independent host processes (or
// several independent runs within one process) at once.
type Session struct {
	ID        string
	MT        *yk.MT
	CreatedAt time.Time
}

// SessionManager manages multiple embedded MT instances
type SessionManager struct {
	sessions    map[string]*Session
	broadcaster *Broadcaster
	mu          sync.RWMutex
}

// NewSessionManager creates a new session manager
func NewSessionManager(broadcaster *Broadcaster) *SessionManager {
	return &SessionManager{
		sessions:    make(map[string]*Session),
		broadcaster: broadcaster,
	}
}

// CreateSession creates a new MT instance with a unique ID
func (sm *SessionManager) CreateSession(opts SessionCreateRequest) (*Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, err
	}

	opt := []yk.Option{}
	if opts.HotThreshold > 0 {
		// applied after construction below, since NewMT doesn't take a
		// starting threshold directly; kept here for readability of intent.
	}
	if opts.MaxWorkers > 0 {
		opt = append(opt, yk.WithMaxWorkers(opts.MaxWorkers))
	}

	var sink *broadcastEventSink
	if sm.broadcaster != nil {
		sink = newBroadcastEventSink(sm.broadcaster, sessionID)
		opt = append(opt, yk.WithEventSink(sink))
		debugLog("Session %s: broadcastEventSink installed", sessionID)
	} else {
		debugLog("Session %s: WARNING - no broadcaster available for events", sessionID)
	}

	mt := yk.NewMT(opt...)
	if opts.HotThreshold > 0 {
		mt.SetHotThreshold(opts.HotThreshold)
	}
	if opts.SidetraceThreshold > 0 {
		mt.SetSidetraceThreshold(opts.SidetraceThreshold)
	}
	if opts.TraceFailureThreshold > 0 {
		mt.SetTraceFailureThreshold(opts.TraceFailureThreshold)
	}

	session := &Session{
		ID:        sessionID,
		MT:        mt,
		CreatedAt: time.Now(),
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	if _, exists := sm.sessions[sessionID]; exists {
		mt.Shutdown()
		return nil, ErrSessionAlreadyExists
	}

	sm.sessions[sessionID] = session
	return session, nil
}

// GetSession retrieves a session by ID
func (sm *SessionManager) GetSession(sessionID string) (*Session, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	session, exists := sm.sessions[sessionID]
	if !exists {
		return nil, ErrSessionNotFound
	}

	return session, nil
}

// DestroySession shuts down and removes an MT instance by ID
func (sm *SessionManager) DestroySession(sessionID string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	session, exists := sm.sessions[sessionID]
	if !exists {
		return ErrSessionNotFound
	}

	session.MT.Shutdown()

	delete(sm.sessions, sessionID)
	return nil
}

// ListSessions returns a list of all session IDs
func (sm *SessionManager) ListSessions() []string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	ids := make([]string, 0, len(sm.sessions))
	for id := range sm.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of active MT instances
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	return len(sm.sessions)
}

// generateSessionID generates a unique session ID
func generateSessionID() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
