package api

import (
	"net/http"
)

// handleListDevices returns the caller's device sessions.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	claims := callerClaims(r)

	sessions, err := s.sessions.ListByUser(r.Context(), claims.Subject)
	if err != nil {
		s.logger.Error("listing device sessions failed",
			"user_id", claims.Subject, "error", err)
		writeInternalError(w, "listing devices failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": sessions})
}
