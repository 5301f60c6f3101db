package api

import (
	"encoding/json"
	"errors"
	"net/http"

	matterbridge "github.com/nerrad567/gray-logic-matter/internal/bridges/matter"
	"github.com/nerrad567/gray-logic-matter/internal/device"
	"github.com/nerrad567/gray-logic-matter/internal/endpoint"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeInternal     = "internal_error"
	ErrCodeValidation   = "validation_error"
	ErrCodeNoCapacity   = "no_capacity"
	ErrCodeUnavailable  = "unavailable"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeForbidden writes a 403 error response.
func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDomainError maps catalogue, bridge and registry errors to HTTP
// responses. Unknown errors are logged by the caller and reported as 500.
func writeDomainError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case isValidationError(err):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, device.ErrDeviceNotFound):
		writeNotFound(w, "device not found")
	case errors.Is(err, device.ErrDeviceExists),
		errors.Is(err, matterbridge.ErrAlreadyBridged),
		errors.Is(err, matterbridge.ErrNotBridged):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, endpoint.ErrNoCapacity):
		writeError(w, http.StatusInsufficientStorage, ErrCodeNoCapacity, err.Error())
	case errors.Is(err, endpoint.ErrLockTimeout),
		errors.Is(err, endpoint.ErrNotInitialised),
		errors.Is(err, matterbridge.ErrNotRunning):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
	default:
		writeInternalError(w, fallback)
	}
}

// isValidationError checks whether an error rejects the request body.
func isValidationError(err error) bool {
	return device.IsValidationError(err) || errors.Is(err, matterbridge.ErrInvalidRequest)
}
