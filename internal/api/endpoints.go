package api

import (
	"net/http"
)

// handleListEndpoints returns the dynamic slot table, the live endpoint list
// and registry counters.
func (s *Server) handleListEndpoints(w http.ResponseWriter, _ *http.Request) {
	if !s.bridge.Ready() {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "endpoint registry not initialised")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"slots":      s.bridge.Slots(),
		"endpoints":  s.bridge.Endpoints(),
		"statistics": s.bridge.Statistics(),
	})
}
