// Package mqtt wraps the Paho client for the Matter bridge's side of the
// Gray Logic message bus.
//
// Core asks the bridge to add or remove devices on
// graylogic/request/matter/{action}; the bridge answers on
// graylogic/response/matter/{request_id}, publishes endpoint changes on
// graylogic/event/matter/{kind} and keeps a retained health message on
// graylogic/health/matter. Topics builds all of these.
//
// Subscriptions are remembered and replayed after a reconnect. Filters are
// checked with ValidateFilter before they reach the broker, and TopicMatches
// lets handlers confirm a topic against the filter they registered. Publish
// refuses empty and wildcard topics with ErrInvalidTopic.
//
// Reconnects back off up to the configured ceiling. When
// mqtt.reconnect.max_attempts is set the client gives up after that many
// tries and HealthCheck returns ErrReconnectExhausted. A Will passed with
// WithWill replaces the default client status will, which the bridge uses
// to mark its health message offline.
//
//	client, err := mqtt.Connect(cfg.MQTT, mqtt.WithWill(will))
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	filter := mqtt.Topics{}.AllBridgeRequests(mqtt.ProtocolMatter)
//	err = client.Subscribe(filter, 1, handle)
//
// Broker tests live behind the integration build tag and expect Mosquitto
// on 127.0.0.1:1883.
package mqtt
