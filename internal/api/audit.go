package api

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-matter/internal/audit"
)

// handleListAuditLogs returns paginated audit log entries with optional filters.
//
// Query parameters:
//   - action: filter by action (endpoint_added, endpoint_removed, endpoint_failed)
//   - entity_type: filter by entity type (endpoint)
//   - entity_id: filter by device name
//   - slot, endpoint_id: filter by where the device was placed
//   - since, until: RFC3339 bounds on created_at
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "audit logging not configured")
		return
	}

	filter, msg := parseAuditFilter(r.URL.Query())
	if msg != "" {
		writeBadRequest(w, msg)
		return
	}

	result, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit logs", "error", err)
		writeInternalError(w, "failed to list audit logs")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// parseAuditFilter returns the filter, or a message describing the first
// bad parameter.
func parseAuditFilter(q url.Values) (audit.Filter, string) {
	filter := audit.Filter{
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
	}

	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"since", &filter.Since}, {"until", &filter.Until}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, p.name + " must be an RFC3339 timestamp"
		}
		*p.dst = t
	}
	if !filter.Since.IsZero() && !filter.Until.IsZero() && !filter.Until.After(filter.Since) {
		return filter, "until must be after since"
	}

	for _, p := range []struct {
		name string
		dst  **int
	}{{"slot", &filter.Slot}, {"endpoint_id", &filter.EndpointID}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, p.name + " must be a non-negative integer"
		}
		*p.dst = &n
	}

	for _, p := range []struct {
		name string
		dst  *int
	}{{"limit", &filter.Limit}, {"offset", &filter.Offset}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, p.name + " must be a non-negative integer"
		}
		*p.dst = n
	}

	return filter, ""
}
