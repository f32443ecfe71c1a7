package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

const defaultEventLimit = 50

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "healthy",
		"timestamp":       time.Now().UTC(),
		"active_sessions": s.registry.ActiveSessions(),
	})
}

// handleSecurityStats reports system-wide rate limiter and audit
// counters for the operations dashboard.
func (s *Server) handleSecurityStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rate_limiting":    s.limiter.SystemStats(),
		"audit_events":     s.auditLog.Len(),
		"events_last_hour": s.auditLog.CountSince(time.Hour),
		"active_sessions":  s.registry.ActiveSessions(),
	})
}

// handleSecurityEvents returns the most recent audit events, newest
// last, capped by the limit query parameter.
func (s *Server) handleSecurityEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be a positive integer",
			})
			return
		}
		limit = parsed
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": s.auditLog.Recent(limit),
		"total":  s.auditLog.Len(),
	})
}

func (s *Server) handleUserLimits(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user id required"})
		return
	}
	writeJSON(w, http.StatusOK, s.limiter.UserStats(userID))
}

func (s *Server) handleResetUserLimits(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user id required"})
		return
	}
	s.limiter.ResetUser(userID)
	s.logger.Info(r.Context(), "rate limits reset", "user_id", userID)
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "reset",
		"user_id": userID,
	})
}

func (s *Server) handleListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"scenarios": s.scenarios.List(),
	})
}
