package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-matter/internal/infrastructure/config"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultDisconnectQuiesce = 1000 // milliseconds
	defaultKeepAlive         = 60 * time.Second

	maxQoS = 2

	tlsMinVersion = tls.VersionTLS12
)

// Client status values published on graylogic/system/status/{client_id}.
const (
	statusOnline  = "online"
	statusOffline = "offline"

	reasonGracefulShutdown     = "graceful_shutdown"
	reasonUnexpectedDisconnect = "unexpected_disconnect"
)

// Will is a Last Will and Testament message. The broker publishes it if
// the client disconnects without a clean DISCONNECT.
type Will struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// Option customises Connect.
type Option func(*connectSettings)

type connectSettings struct {
	will Will
}

// WithWill replaces the default client status will.
func WithWill(will Will) Option {
	return func(s *connectSettings) {
		s.will = will
	}
}

// StatusMessage is the retained payload on the client status topic.
type StatusMessage struct {
	Status    string    `json:"status"`
	ClientID  string    `json:"client_id"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// buildClientOptions maps config onto paho options: broker URL (ssl:// when
// TLS is on), credentials, clean session, keepalive, and reconnect backoff
// bounded by the configured delays.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))
	opts.SetClientID(cfg.Broker.ClientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	// Subscriptions are replayed by the client, so no broker session.
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	return opts
}

func applyWill(opts *pahomqtt.ClientOptions, will Will) {
	if will.Topic == "" {
		return
	}
	opts.SetBinaryWill(will.Topic, will.Payload, will.QoS, will.Retained)
}

// statusWill is the default will: an offline status for this client.
func statusWill(clientID string, qos byte) Will {
	return Will{
		Topic:    Topics{}.ClientStatus(clientID),
		Payload:  buildStatusPayload(clientID, statusOffline, reasonUnexpectedDisconnect),
		QoS:      qos,
		Retained: true,
	}
}

func buildStatusPayload(clientID, status, reason string) []byte {
	payload, _ := json.Marshal(StatusMessage{ //nolint:errcheck // fixed struct of strings and a time
		Status:    status,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	})
	return payload
}
