package matter

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-matter/internal/device"
	"github.com/nerrad567/gray-logic-matter/internal/endpoint"
	"github.com/nerrad567/gray-logic-matter/internal/infrastructure/mqtt"
)

// MQTT message types exchanged between Gray Logic Core and the Matter bridge.

// Request actions.
const (
	ActionAddDevice      = "add_device"
	ActionRemoveDevice   = "remove_device"
	ActionBridgeDevice   = "bridge_device"
	ActionUnbridgeDevice = "unbridge_device"
	ActionListEndpoints  = "list_endpoints"
)

// Error codes for failed requests.
const (
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeAlreadyExists     = "ALREADY_EXISTS"
	ErrCodeNotBridged        = "NOT_BRIDGED"
	ErrCodeAlreadyBridged    = "ALREADY_BRIDGED"
	ErrCodeNoCapacity        = "NO_CAPACITY"
	ErrCodeTimeout           = "TIMEOUT"
	ErrCodeNotRunning        = "NOT_RUNNING"
	ErrCodeBridgeError       = "BRIDGE_ERROR"
)

// RequestMessage is sent from Core to the bridge.
// Topic: graylogic/request/matter/{request_id}
type RequestMessage struct {
	// RequestID uniquely identifies this request for correlation.
	RequestID string `json:"request_id"`

	// Timestamp is when the request was issued (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Action is the requested operation.
	Action string `json:"action"`

	// DeviceID is the target device for remove/bridge/unbridge.
	DeviceID string `json:"device_id,omitempty"`

	// Device is the device to create for add_device.
	Device *device.Device `json:"device,omitempty"`
}

// ResponseMessage is sent from the bridge to Core in response to a request.
// Topic: graylogic/response/matter/{request_id}
type ResponseMessage struct {
	RequestID string         `json:"request_id"`
	Timestamp time.Time      `json:"timestamp"`
	Success   bool           `json:"success"`
	Data      map[string]any `json:"data,omitempty"`
	Error     *ResponseError `json:"error,omitempty"`
}

// ResponseError contains error details for failed requests.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// EventMessage announces a registry event.
// Topic: graylogic/event/matter/{kind}
type EventMessage struct {
	Kind       endpoint.EventKind `json:"kind"`
	Timestamp  time.Time          `json:"timestamp"`
	Slot       int                `json:"slot"`
	EndpointID endpoint.ID        `json:"endpoint_id"`
	Device     string             `json:"device"`
	Error      string             `json:"error,omitempty"`
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthOffline  HealthStatus = "offline"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports the bridge's operational status.
// Topic: graylogic/health/matter
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Bridge         string            `json:"bridge"`
	Timestamp      time.Time         `json:"timestamp"`
	Status         HealthStatus      `json:"status"`
	Version        string            `json:"version"`
	UptimeSeconds  int64             `json:"uptime_seconds"`
	DevicesManaged int               `json:"devices_managed"`
	Statistics     *BridgeStatistics `json:"statistics,omitempty"`
	Reason         string            `json:"reason,omitempty"`
}

// BridgeStatistics contains endpoint registry metrics.
type BridgeStatistics struct {
	SlotsInUse       int         `json:"slots_in_use"`
	SlotCapacity     int         `json:"slot_capacity"`
	NextEndpointID   endpoint.ID `json:"next_endpoint_id"`
	EndpointsAdded   uint64      `json:"endpoints_added"`
	EndpointsRemoved uint64      `json:"endpoints_removed"`
	Failures         uint64      `json:"failures"`
}

// NewEventMessage converts a registry event.
func NewEventMessage(ev endpoint.Event) EventMessage {
	msg := EventMessage{
		Kind:       ev.Kind,
		Timestamp:  ev.Time,
		Slot:       ev.Slot,
		EndpointID: ev.EndpointID,
		Device:     ev.DeviceName,
	}
	if ev.Err != nil {
		msg.Error = ev.Err.Error()
	}
	return msg
}

// newResponse builds a response for req.
func newResponse(req RequestMessage, data map[string]any, err error) ResponseMessage {
	resp := ResponseMessage{
		RequestID: req.RequestID,
		Timestamp: time.Now().UTC(),
		Success:   err == nil,
		Data:      data,
	}
	if err != nil {
		resp.Data = nil
		resp.Error = &ResponseError{Code: ErrorCode(err), Message: err.Error()}
	}
	return resp
}

// ErrorCode maps an error to a response error code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest), device.IsValidationError(err):
		return ErrCodeInvalidParameters
	case errors.Is(err, device.ErrDeviceNotFound):
		return ErrCodeNotFound
	case errors.Is(err, device.ErrDeviceExists):
		return ErrCodeAlreadyExists
	case errors.Is(err, ErrNotBridged):
		return ErrCodeNotBridged
	case errors.Is(err, ErrAlreadyBridged):
		return ErrCodeAlreadyBridged
	case errors.Is(err, endpoint.ErrNoCapacity):
		return ErrCodeNoCapacity
	case errors.Is(err, endpoint.ErrLockTimeout):
		return ErrCodeTimeout
	case errors.Is(err, ErrNotRunning), errors.Is(err, endpoint.ErrNotInitialised):
		return ErrCodeNotRunning
	default:
		return ErrCodeBridgeError
	}
}

// Topic helpers.

// HealthTopic returns the MQTT topic for health status.
func HealthTopic() string {
	return mqtt.Topics{}.BridgeHealth(mqtt.ProtocolMatter)
}

// ResponseTopic returns the MQTT topic for a request's response.
func ResponseTopic(requestID string) string {
	return mqtt.Topics{}.BridgeResponse(mqtt.ProtocolMatter, requestID)
}

// EventTopic returns the MQTT topic for a registry event kind.
func EventTopic(kind endpoint.EventKind) string {
	return mqtt.Topics{}.BridgeEvent(mqtt.ProtocolMatter, string(kind))
}

// EventSubscribeTopic returns the subscription pattern for all registry events.
func EventSubscribeTopic() string {
	return mqtt.Topics{}.AllBridgeEvents(mqtt.ProtocolMatter)
}

// RequestSubscribeTopic returns the subscription pattern for all requests.
func RequestSubscribeTopic() string {
	return mqtt.Topics{}.AllBridgeRequests(mqtt.ProtocolMatter)
}

// NewLWTMessage creates a Last Will and Testament message for MQTT.
// The broker publishes it if the bridge disconnects unexpectedly.
func NewLWTMessage(bridgeID string) HealthMessage {
	return HealthMessage{
		Bridge:    bridgeID,
		Timestamp: time.Now().UTC(),
		Status:    HealthOffline,
		Reason:    "unexpected_disconnect",
	}
}

// LastWill returns the MQTT will for this bridge: a retained offline health
// message on the health topic.
func LastWill() (mqtt.Will, error) {
	payload, err := json.Marshal(NewLWTMessage(bridgeID))
	if err != nil {
		return mqtt.Will{}, fmt.Errorf("marshalling last will: %w", err)
	}
	return mqtt.Will{
		Topic:    HealthTopic(),
		Payload:  payload,
		QoS:      1,
		Retained: true,
	}, nil
}
