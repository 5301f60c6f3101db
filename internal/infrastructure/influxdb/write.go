package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the bridge.
const (
	MeasurementEndpointEvents = "matter_endpoint_events"
	MeasurementRegistryUsage  = "matter_registry_usage"
)

// WriteEndpointEvent records one dynamic endpoint registry event.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - kind: Event kind (e.g., "endpoint_added", "endpoint_removed")
//   - slot: Registry slot index, or -1 when no slot was involved
//   - endpointID: Endpoint identifier the event concerns
//   - device: Device display name
//   - at: Time the event happened
//
// Example:
//
//	client.WriteEndpointEvent("endpoint_added", 0, 3, "Hall Light", time.Now())
func (c *Client) WriteEndpointEvent(kind string, slot int, endpointID uint16, device string, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(endpointEventPoint(kind, slot, endpointID, device, at))
}

// WriteRegistryUsage records how many dynamic slots are occupied.
//
// Parameters:
//   - inUse: Occupied slots
//   - capacity: Total slots
func (c *Client) WriteRegistryUsage(inUse, capacity int) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(registryUsagePoint(inUse, capacity, time.Now()))
}

// endpointEventPoint builds the point for an endpoint event. The slot is a
// tag (bounded by the slot count); the endpoint id is a field because ids
// grow without bound over the node's life.
func endpointEventPoint(kind string, slot int, endpointID uint16, device string, at time.Time) *write.Point {
	tags := map[string]string{
		"kind": kind,
	}
	if slot >= 0 {
		tags["slot"] = strconv.Itoa(slot)
	}

	fields := map[string]interface{}{
		"endpoint_id": int64(endpointID),
		"device":      device,
	}

	if at.IsZero() {
		at = time.Now()
	}
	return write.NewPoint(MeasurementEndpointEvents, tags, fields, at)
}

func registryUsagePoint(inUse, capacity int, at time.Time) *write.Point {
	fields := map[string]interface{}{
		"in_use":   int64(inUse),
		"capacity": int64(capacity),
	}
	if capacity > 0 {
		fields["utilisation"] = float64(inUse) / float64(capacity)
	}
	return write.NewPoint(MeasurementRegistryUsage, nil, fields, at)
}
