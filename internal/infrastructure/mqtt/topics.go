package mqtt

import "fmt"

// Topic prefixes per the Gray Logic MQTT topic hierarchy.
//
// All bridge topics use the flat scheme: graylogic/{category}/{protocol}/{id}
const (
	// TopicPrefixBridge is the base for all bridge topics.
	TopicPrefixBridge = "graylogic"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "graylogic/system"

	// ProtocolMatter is the protocol segment used by the Matter bridge.
	ProtocolMatter = "matter"
)

// Topics provides builders for Gray Logic MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	resp := topics.BridgeResponse(mqtt.ProtocolMatter, "req-abc123")
//	// Returns: "graylogic/response/matter/req-abc123"
type Topics struct{}

// BridgeRequest returns the topic for requests to a bridge.
//
// Example: graylogic/request/matter/add_device
func (Topics) BridgeRequest(protocol, action string) string {
	return fmt.Sprintf("%s/request/%s/%s", TopicPrefixBridge, protocol, action)
}

// BridgeResponse returns the topic for request responses from a bridge.
//
// Example: graylogic/response/matter/req-abc123
func (Topics) BridgeResponse(protocol, requestID string) string {
	return fmt.Sprintf("%s/response/%s/%s", TopicPrefixBridge, protocol, requestID)
}

// BridgeHealth returns the topic for bridge health status.
//
// Example: graylogic/health/matter
func (Topics) BridgeHealth(protocol string) string {
	return fmt.Sprintf("%s/health/%s", TopicPrefixBridge, protocol)
}

// BridgeEvent returns the topic for events emitted by a bridge.
//
// Example: graylogic/event/matter/endpoint_added
func (Topics) BridgeEvent(protocol, kind string) string {
	return fmt.Sprintf("%s/event/%s/%s", TopicPrefixBridge, protocol, kind)
}

// ClientStatus returns the online/offline status topic for one client.
// It carries the Last Will and Testament.
//
// Example: graylogic/system/status/graylogic-matter
func (Topics) ClientStatus(clientID string) string {
	return fmt.Sprintf("%s/status/%s", TopicPrefixSystem, clientID)
}

// AllBridgeRequests returns a pattern matching every request to one bridge.
//
// Pattern: graylogic/request/matter/#
func (Topics) AllBridgeRequests(protocol string) string {
	return fmt.Sprintf("%s/request/%s/#", TopicPrefixBridge, protocol)
}

// AllBridgeEvents returns a pattern matching every event from one bridge.
//
// Pattern: graylogic/event/matter/+
func (Topics) AllBridgeEvents(protocol string) string {
	return fmt.Sprintf("%s/event/%s/+", TopicPrefixBridge, protocol)
}

// AllBridgeHealth returns a pattern matching all bridge health updates.
//
// Pattern: graylogic/health/+
func (Topics) AllBridgeHealth() string {
	return fmt.Sprintf("%s/health/+", TopicPrefixBridge)
}
