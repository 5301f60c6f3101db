// Package audit records endpoint registry events and catalogue changes in
// the audit_logs table and serves them back for the API.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Actions recorded by the bridge.
const (
	ActionEndpointAdded   = "endpoint_added"
	ActionEndpointRemoved = "endpoint_removed"
	ActionEndpointFailed  = "endpoint_failed"
	ActionDeviceCreated   = "device_created"
	ActionDeviceDeleted   = "device_deleted"
)

// Entity types.
const (
	EntityEndpoint = "endpoint"
	EntityDevice   = "device"
)

// Page size limits for List.
const (
	defaultLimit = 50
	maxLimit     = 200
)

const auditColumns = "id, action, entity_type, entity_id, slot, endpoint_id, source, details, created_at"

// AuditLog represents a single audit trail entry.
type AuditLog struct { //nolint:revive // audit.AuditLog is clearer than audit.Log in calling code
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id,omitempty"`
	Slot       *int           `json:"slot,omitempty"`
	EndpointID *int           `json:"endpoint_id,omitempty"`
	Source     string         `json:"source"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Filter controls which audit logs to return.
type Filter struct {
	Action     string    // optional: filter by action
	EntityType string    // optional: filter by entity type (endpoint, device)
	EntityID   string    // optional: filter by entity ID (device name or id)
	Since      time.Time // optional: only entries at or after this time
	Until      time.Time // optional: only entries before this time
	Slot       *int      // optional: only entries for this dynamic slot
	EndpointID *int      // optional: only entries for this endpoint id
	Limit      int       // default 50, max 200
	Offset     int       // pagination offset
}

// ListResult contains the paginated audit log results.
type ListResult struct {
	Logs   []AuditLog `json:"logs"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// Repository defines the interface for audit log operations.
type Repository interface {
	Create(ctx context.Context, log *AuditLog) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores audit logs in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new audit log repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a new audit log entry. The ID and CreatedAt are generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, log *AuditLog) error {
	if log.ID == "" {
		log.ID = "aud-" + uuid.NewString()[:8]
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	var detailsJSON *string
	if log.Details != nil {
		b, err := json.Marshal(log.Details)
		if err != nil {
			return fmt.Errorf("marshalling audit details: %w", err)
		}
		s := string(b)
		detailsJSON = &s
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO audit_logs ("+auditColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		log.ID, log.Action, log.EntityType,
		nullableString(log.EntityID), log.Slot, log.EndpointID,
		log.Source, detailsJSON,
		log.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting audit log: %w", err)
	}

	return nil
}

// nullableString returns nil for empty strings.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// where renders the filter as a WHERE clause (empty when nothing is set)
// with its arguments.
func (f Filter) where() (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		conds = append(conds, cond)
		args = append(args, arg)
	}

	if f.Action != "" {
		add("action = ?", f.Action)
	}
	if f.EntityType != "" {
		add("entity_type = ?", f.EntityType)
	}
	if f.EntityID != "" {
		add("entity_id = ?", f.EntityID)
	}
	if !f.Since.IsZero() {
		add("created_at >= ?", f.Since.UTC().Format(time.RFC3339))
	}
	if !f.Until.IsZero() {
		add("created_at < ?", f.Until.UTC().Format(time.RFC3339))
	}
	if f.Slot != nil {
		add("slot = ?", *f.Slot)
	}
	if f.EndpointID != nil {
		add("endpoint_id = ?", *f.EndpointID)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// page clamps Limit to 1..maxLimit (default 50) and Offset to >= 0.
func (f Filter) page() (limit, offset int) {
	limit, offset = f.Limit, f.Offset
	switch {
	case limit <= 0:
		limit = defaultLimit
	case limit > maxLimit:
		limit = maxLimit
	}
	return limit, max(offset, 0)
}

// List returns audit logs matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	limit, offset := filter.page()
	where, args := filter.where()

	var total int
	//nolint:gosec // where holds only fixed conditions; values are bound
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_logs"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting audit logs: %w", err)
	}

	//nolint:gosec // where holds only fixed conditions; values are bound
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+auditColumns+" FROM audit_logs"+where+" ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?",
		append(args, limit, offset)...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying audit logs: %w", err)
	}
	defer rows.Close()

	logs := []AuditLog{}
	for rows.Next() {
		log, err := scanAuditLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit logs: %w", err)
	}

	return &ListResult{Logs: logs, Total: total, Limit: limit, Offset: offset}, nil
}

// Prune deletes entries older than olderThan and returns how many went.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - olderThan: Age beyond which entries are deleted; must be positive
//
// Returns:
//   - int64: Number of rows deleted
//   - error: nil on success, otherwise the underlying database error
func (r *SQLiteRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, errors.New("audit: retention must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx, "DELETE FROM audit_logs WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning audit logs: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

func scanAuditLog(rows *sql.Rows) (AuditLog, error) {
	var log AuditLog
	var entityID, detailsJSON sql.NullString
	var slot, endpointID sql.NullInt64
	var createdAt string

	if err := rows.Scan(&log.ID, &log.Action, &log.EntityType,
		&entityID, &slot, &endpointID, &log.Source, &detailsJSON, &createdAt); err != nil {
		return AuditLog{}, fmt.Errorf("scanning audit log: %w", err)
	}

	if entityID.Valid {
		log.EntityID = entityID.String
	}
	if slot.Valid {
		v := int(slot.Int64)
		log.Slot = &v
	}
	if endpointID.Valid {
		v := int(endpointID.Int64)
		log.EndpointID = &v
	}
	if detailsJSON.Valid && detailsJSON.String != "" {
		var details map[string]any
		if json.Unmarshal([]byte(detailsJSON.String), &details) == nil {
			log.Details = details
		}
	}

	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return AuditLog{}, fmt.Errorf("parsing audit log timestamp %q: %w", createdAt, err)
	}
	log.CreatedAt = t

	return log, nil
}
