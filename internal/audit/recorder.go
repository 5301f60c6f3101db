package audit

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-matter/internal/endpoint"
)

// recordTimeout bounds a single audit write so a slow disk cannot stall the
// bridge after the stack lock is released.
const recordTimeout = 2 * time.Second

// Logger is the logging subset the audit package needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Recorder writes endpoint registry events to the audit log. It implements
// endpoint.EventRecorder. Collision events are not persisted; they are
// routine and already visible in debug logs.
type Recorder struct {
	repo   Repository
	source string
	logger Logger
}

// NewRecorder creates a Recorder. source is stored on every entry.
func NewRecorder(repo Repository, source string) *Recorder {
	return &Recorder{repo: repo, source: source, logger: noopLogger{}}
}

// SetLogger sets the logger used to report write failures.
func (r *Recorder) SetLogger(logger Logger) {
	r.logger = logger
}

// RecordEndpointEvent implements endpoint.EventRecorder.
func (r *Recorder) RecordEndpointEvent(ctx context.Context, ev endpoint.Event) {
	action, ok := actionFor(ev.Kind)
	if !ok {
		return
	}

	entry := &AuditLog{
		Action:     action,
		EntityType: EntityEndpoint,
		EntityID:   ev.DeviceName,
		Source:     r.source,
		CreatedAt:  ev.Time,
	}
	if ev.Slot >= 0 {
		slot := ev.Slot
		entry.Slot = &slot
	}
	if ev.EndpointID != endpoint.InvalidID {
		id := int(ev.EndpointID)
		entry.EndpointID = &id
	}
	if ev.Err != nil {
		entry.Details = map[string]any{"error": ev.Err.Error()}
	}

	// Detach from request cancellation; the event already happened.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if err := r.repo.Create(wctx, entry); err != nil {
		r.logger.Warn("failed to write endpoint audit entry", "action", action, "device", ev.DeviceName, "error", err)
	}
}

func actionFor(kind endpoint.EventKind) (string, bool) {
	switch kind {
	case endpoint.EventAdded:
		return ActionEndpointAdded, true
	case endpoint.EventRemoved:
		return ActionEndpointRemoved, true
	case endpoint.EventFailed:
		return ActionEndpointFailed, true
	default:
		return "", false
	}
}
