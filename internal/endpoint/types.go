package endpoint

import (
	"context"
	"time"
)

// ID is a Matter endpoint identifier.
type ID uint16

const (
	// InvalidID marks a device that holds no endpoint.
	InvalidID ID = 0xFFFF

	// DefaultMaxID is the highest identifier handed out when Options leave
	// MaxEndpointID unset.
	DefaultMaxID ID = 0xFFFE
)

// DataVersion is the per-cluster data version storage passed through to
// the stack on registration.
type DataVersion uint32

// DeviceType is a Matter device type entry attached to an endpoint.
type DeviceType struct {
	ID       uint32 `json:"id"`
	Revision uint8  `json:"revision"`
}

// Descriptor describes the server clusters an endpoint exposes.
// The registry passes it through to the stack without inspecting it.
type Descriptor struct {
	Name     string   `json:"name,omitempty"`
	Clusters []uint32 `json:"clusters"`
}

// ClusterCount returns the number of server clusters, which is also the
// minimum length of the data version slice.
func (d *Descriptor) ClusterCount() int {
	if d == nil {
		return 0
	}
	return len(d.Clusters)
}

// Device is the application object bridged onto a dynamic endpoint.
//
// The registry holds a non-owning reference. Implementations must be
// comparable (normally a pointer type) because Remove looks devices up by
// identity.
type Device interface {
	// Name is used in log lines and events.
	Name() string

	// SetEndpointID records the identifier the device is being registered under.
	SetEndpointID(id ID)

	// SetParentEndpointID records the parent (aggregator) endpoint.
	SetParentEndpointID(id ID)
}

// Stack is the endpoint table of the protocol stack.
//
// RegisterDynamicEndpoint must return ErrEndpointExists (or an error wrapping
// it) when id is already in use; any other non-nil error is treated as a
// hard failure. The registry only calls mutating methods while holding the
// Locker.
type Stack interface {
	RegisterDynamicEndpoint(slot int, id ID, desc *Descriptor, versions []DataVersion, types []DeviceType, parent ID) error
	DeregisterDynamicEndpoint(slot int) ID
	StaticEndpointCount() int
	StaticEndpointIDAt(i int) ID
	SetEndpointEnabled(id ID, enabled bool)
}

// Locker is the mutual exclusion primitive that serialises stack mutations.
type Locker interface {
	Acquire(ctx context.Context) error
	Release()
}

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// EventKind classifies registry events.
type EventKind string

const (
	EventAdded     EventKind = "endpoint_added"
	EventRemoved   EventKind = "endpoint_removed"
	EventCollision EventKind = "endpoint_collision"
	EventFailed    EventKind = "endpoint_failed"
)

// Event describes one registry outcome. Slot is -1 when no slot was involved.
type Event struct {
	Kind       EventKind
	Slot       int
	EndpointID ID
	DeviceName string
	Err        error
	Time       time.Time
}

// EventRecorder receives registry events after the stack lock is released.
type EventRecorder interface {
	RecordEndpointEvent(ctx context.Context, ev Event)
}

// SlotInfo is a read-only view of one slot.
type SlotInfo struct {
	Index      int    `json:"index"`
	Used       bool   `json:"used"`
	EndpointID ID     `json:"endpoint_id,omitempty"`
	DeviceName string `json:"device_name,omitempty"`
}
