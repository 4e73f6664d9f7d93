package api

import (
	"fmt"
	"net/http"
	"strconv"

	yk "github.com/lookbusy1344/yk-mt"
)

// handleCreateSession handles POST /api/v1/session
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req SessionCreateRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	session, err := s.sessions.CreateSession(req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to create MT instance: %v", err))
		return
	}

	response := SessionCreateResponse{
		SessionID: session.ID,
		CreatedAt: session.CreatedAt,
	}

	writeJSON(w, http.StatusCreated, response)
}

// handleListSessions handles GET /api/v1/session
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	ids := s.sessions.ListSessions()

	response := map[string]interface{}{
		"sessions": ids,
		"count":    len(ids),
	}

	writeJSON(w, http.StatusOK, response)
}

// handleGetSessionStatus handles GET /api/v1/session/{id}
func (s *Server) handleGetSessionStatus(w http.ResponseWriter, r *http.Request, sessionID string) {
	session, err := s.sessions.GetSession(sessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, "MT instance not found")
		return
	}

	response := toStatsResponse(sessionID, session.MT.Stats())
	writeJSON(w, http.StatusOK, response)
}

// handleDestroySession handles DELETE /api/v1/session/{id}
func (s *Server) handleDestroySession(w http.ResponseWriter, r *http.Request, sessionID string) {
	err := s.sessions.DestroySession(sessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, "MT instance not found")
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{
		Success: true,
		Message: "MT instance shut down",
	})
}

// handleStats handles GET /api/v1/session/{id}/stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	session, err := s.sessions.GetSession(sessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, "MT instance not found")
		return
	}

	writeJSON(w, http.StatusOK, toStatsResponse(sessionID, session.MT.Stats()))
}

func toStatsResponse(sessionID string, snap yk.StatsSnapshot) StatsResponse {
	return StatsResponse{
		SessionID:       sessionID,
		TracesStarted:   snap.TracesStarted,
		TracesStopped:   snap.TracesStopped,
		TracesAborted:   snap.TracesAborted,
		CompileSuccess:  snap.CompileSuccess,
		CompileFailure:  snap.CompileFailure,
		GuardFailures:   snap.GuardFailures,
		SideTracesBegun: snap.SideTracesBegun,
	}
}

// handleThresholds handles GET/PUT /api/v1/session/{id}/thresholds
func (s *Server) handleThresholds(w http.ResponseWriter, r *http.Request, sessionID string) {
	session, err := s.sessions.GetSession(sessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, "MT instance not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, ThresholdsResponse{
			SessionID:             sessionID,
			HotThreshold:          session.MT.HotThreshold(),
			SidetraceThreshold:    session.MT.SidetraceThreshold(),
			TraceFailureThreshold: session.MT.FailureThreshold(),
		})

	case http.MethodPut:
		var req ThresholdsUpdateRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.HotThreshold > 0 {
			session.MT.SetHotThreshold(req.HotThreshold)
		}
		if req.SidetraceThreshold > 0 {
			session.MT.SetSidetraceThreshold(req.SidetraceThreshold)
		}
		if req.TraceFailureThreshold > 0 {
			session.MT.SetTraceFailureThreshold(req.TraceFailureThreshold)
		}
		writeJSON(w, http.StatusOK, ThresholdsResponse{
			SessionID:             sessionID,
			HotThreshold:          session.MT.HotThreshold(),
			SidetraceThreshold:    session.MT.SidetraceThreshold(),
			TraceFailureThreshold: session.MT.FailureThreshold(),
		})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleListTraces handles GET /api/v1/session/{id}/traces
func (s *Server) handleListTraces(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	session, err := s.sessions.GetSession(sessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, "MT instance not found")
		return
	}

	snap := session.MT.Registry().Snapshot()
	infos := make([]CompiledTraceInfo, 0, len(snap))
	for _, ct := range snap {
		infos = append(infos, toTraceInfo(ct))
	}

	writeJSON(w, http.StatusOK, CompiledTraceListResponse{
		SessionID: sessionID,
		Traces:    infos,
	})
}

// handleGetTrace handles GET /api/v1/session/{id}/traces/{traceID}
func (s *Server) handleGetTrace(w http.ResponseWriter, r *http.Request, sessionID string, traceIDStr string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	session, err := s.sessions.GetSession(sessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, "MT instance not found")
		return
	}

	id, err := strconv.ParseUint(traceIDStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid trace ID")
		return
	}

	ct, ok := session.MT.Registry().Get(yk.CompiledTraceId(id))
	if !ok {
		writeError(w, http.StatusNotFound, "Trace not found")
		return
	}

	guards := make([]GuardInfo, len(ct.Guards))
	for i, g := range ct.Guards {
		guards[i] = GuardInfo{
			Index:        i,
			FailedCount:  g.FailedCount(),
			HasSideTrace: g.HasSideTrace(),
			SideTraceID:  uint64(g.SideTrace),
		}
	}

	writeJSON(w, http.StatusOK, CompiledTraceDetailResponse{
		SessionID: sessionID,
		Trace:     toTraceInfo(ct),
		Guards:    guards,
	})
}

func toTraceInfo(ct *yk.CompiledTrace) CompiledTraceInfo {
	return CompiledTraceInfo{
		ID:         uint64(ct.ID),
		Entry:      uint64(ct.Code.Entry),
		Len:        ct.Code.Len,
		IsRoot:     ct.IsRoot(),
		Parent:     uint64(ct.Parent),
		GuardCount: len(ct.Guards),
	}
}
