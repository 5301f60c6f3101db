package mqtt

import "errors"

// Sentinel errors. Wrapped errors keep these in the chain for errors.Is.
var (
	ErrNotConnected       = errors.New("mqtt: client not connected")
	ErrConnectionFailed   = errors.New("mqtt: connection failed")
	ErrReconnectExhausted = errors.New("mqtt: reconnect attempts exhausted")

	ErrPublishFailed     = errors.New("mqtt: publish failed")
	ErrPayloadTooLarge   = errors.New("mqtt: payload too large")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS is returned for QoS levels above 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned for empty topics, and for wildcards in a
	// publish topic.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")
)
