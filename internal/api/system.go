package api

import (
	"encoding/json"
	"net/http"
	"strings"
)

// LogLevelRequest changes the process log level.
type LogLevelRequest struct {
	Level string `json:"level"`
}

// LogLevelResponse reports the effective log level.
type LogLevelResponse struct {
	Level string `json:"level"`
}

// handleGetLogLevel returns the current log level.
func (s *Server) handleGetLogLevel(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, LogLevelResponse{Level: strings.ToLower(s.logger.Level().String())})
}

// handleSetLogLevel changes the log level of every component logger
// until the next restart. The configured level applies again after that.
func (s *Server) handleSetLogLevel(w http.ResponseWriter, r *http.Request) {
	var req LogLevelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	switch strings.ToLower(req.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		writeBadRequest(w, "level must be debug, info, warn or error")
		return
	}

	subject := "anonymous"
	if claims := claimsFromContext(r.Context()); claims != nil {
		subject = claims.Subject
	}

	previous := s.logger.Level()
	s.logger.SetLevel(req.Level)
	s.logger.Warn("log level changed",
		"from", strings.ToLower(previous.String()),
		"to", strings.ToLower(s.logger.Level().String()),
		"subject", subject,
	)

	writeJSON(w, http.StatusOK, LogLevelResponse{Level: strings.ToLower(s.logger.Level().String())})
}
