package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-matter/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for testing.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "graylogic-matter-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// =============================================================================
// Disconnected Client Tests
// =============================================================================

func TestCloseNil(t *testing.T) {
	client := &Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v, want nil", err)
	}
}

func TestIsConnected_InitialState(t *testing.T) {
	client := &Client{}
	if client.IsConnected() {
		t.Error("IsConnected() should be false for uninitialised client")
	}
}

func TestHealthCheck_NotConnected(t *testing.T) {
	client := &Client{}

	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() cancelled error = %v, want context.Canceled", err)
	}
}

func TestPublish_Validation(t *testing.T) {
	client := &Client{cfg: testConfig()}

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{"empty topic", "", []byte("x"), 1, ErrInvalidTopic},
		{"invalid qos", "a/b", []byte("x"), 3, ErrInvalidQoS},
		{"wildcard topic", "graylogic/event/matter/+", []byte("x"), 1, ErrInvalidTopic},
		{"oversized payload", "a/b", make([]byte, maxPayloadSize+1), 1, ErrPayloadTooLarge},
		{"not connected", "a/b", []byte("x"), 1, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := client.Publish(tt.topic, tt.payload, tt.qos, false); !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPublishJSON_MarshalError(t *testing.T) {
	client := &Client{cfg: testConfig()}

	err := client.PublishJSON("a/b", map[string]any{"bad": make(chan int)}, false)
	if !errors.Is(err, ErrPublishFailed) {
		t.Errorf("PublishJSON() error = %v, want ErrPublishFailed", err)
	}
}

func TestSubscribe_Validation(t *testing.T) {
	client := &Client{subscriptions: make(map[string]subscription)}
	handler := func(string, []byte) error { return nil }

	tests := []struct {
		name    string
		topic   string
		qos     byte
		handler MessageHandler
		wantErr error
	}{
		{"empty topic", "", 1, handler, ErrInvalidTopic},
		{"partial wildcard", "a/b+", 1, handler, ErrInvalidTopic},
		{"hash not last", "a/#/b", 1, handler, ErrInvalidTopic},
		{"invalid qos", "a/b", 3, handler, ErrInvalidQoS},
		{"nil handler", "a/b", 1, nil, ErrSubscribeFailed},
		{"not connected", "a/b", 1, handler, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := client.Subscribe(tt.topic, tt.qos, tt.handler); !errors.Is(err, tt.wantErr) {
				t.Errorf("Subscribe() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if client.SubscriptionCount() != 0 || client.HasSubscription("a/b") {
		t.Error("failed subscriptions must not be tracked")
	}
	if err := client.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe(\"\") error = %v", err)
	}
	if err := client.Unsubscribe("a/b"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Unsubscribe() error = %v, want ErrNotConnected", err)
	}
}

func TestTopicMatches(t *testing.T) {
	tests := []struct {
		filter, topic string
		want          bool
	}{
		{"graylogic/request/matter/#", "graylogic/request/matter/req-1", true},
		{"graylogic/request/matter/#", "graylogic/request/matter", true},
		{"graylogic/request/matter/#", "graylogic/request/knx/req-1", false},
		{"graylogic/+/matter", "graylogic/health/matter", true},
		{"graylogic/+/matter", "graylogic/health/matter/x", false},
		{"graylogic/health/matter", "graylogic/health/matter", true},
		{"graylogic/health/matter", "graylogic/health", false},
	}

	for _, tt := range tests {
		if got := TopicMatches(tt.filter, tt.topic); got != tt.want {
			t.Errorf("TopicMatches(%q, %q) = %v, want %v", tt.filter, tt.topic, got, tt.want)
		}
	}
}

// =============================================================================
// Handler Wrapping Tests
// =============================================================================

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

var _ pahomqtt.Message = fakeMessage{}

type mockLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *mockLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *mockLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func TestWrapHandler(t *testing.T) {
	client := &Client{}
	log := &mockLogger{}
	client.SetLogger(log)

	var gotTopic, gotPayload string
	ok := client.wrapHandler(func(topic string, payload []byte) error {
		gotTopic, gotPayload = topic, string(payload)
		return nil
	})
	ok(nil, fakeMessage{topic: "graylogic/request/matter/add_device", payload: []byte(`{}`)})
	if gotTopic != "graylogic/request/matter/add_device" || gotPayload != "{}" {
		t.Errorf("handler got %q %q", gotTopic, gotPayload)
	}

	failing := client.wrapHandler(func(string, []byte) error { return errors.New("bad payload") })
	failing(nil, fakeMessage{topic: "t"})

	panicking := client.wrapHandler(func(string, []byte) error { panic("boom") })
	panicking(nil, fakeMessage{topic: "t"})

	if len(log.warns) != 1 || len(log.errors) != 1 {
		t.Errorf("warns = %v, errors = %v", log.warns, log.errors)
	}
}

// =============================================================================
// Options Tests
// =============================================================================

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.MQTTAuthConfig{Username: "bridge", Password: "secret"}

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
	if opts.ClientID != cfg.Broker.ClientID || opts.Username != "bridge" || opts.Password != "secret" {
		t.Errorf("identity = %q/%q", opts.ClientID, opts.Username)
	}
	if !opts.AutoReconnect || !opts.CleanSession {
		t.Error("expected auto-reconnect and clean session")
	}

	cfg.Broker.TLS = true
	tlsOpts := buildClientOptions(cfg)
	if tlsOpts.Servers[0].Scheme != "ssl" || tlsOpts.TLSConfig == nil {
		t.Error("TLS config should use ssl:// with a tls.Config")
	}
}

func TestConnectSettings_Will(t *testing.T) {
	def := statusWill("graylogic-matter", 1)
	if def.Topic != "graylogic/system/status/graylogic-matter" || !def.Retained || def.QoS != 1 {
		t.Errorf("default will = %+v", def)
	}

	var msg StatusMessage
	if err := json.Unmarshal(def.Payload, &msg); err != nil {
		t.Fatalf("will payload: %v", err)
	}
	if msg.Status != statusOffline || msg.Reason != reasonUnexpectedDisconnect || msg.ClientID != "graylogic-matter" {
		t.Errorf("will message = %+v", msg)
	}

	custom := Will{Topic: "graylogic/health/matter", Payload: []byte(`{"status":"offline"}`), QoS: 1, Retained: true}
	settings := connectSettings{will: def}
	WithWill(custom)(&settings)

	opts := pahomqtt.NewClientOptions()
	applyWill(opts, settings.will)
	if !opts.WillEnabled || opts.WillTopic != custom.Topic || string(opts.WillPayload) != string(custom.Payload) {
		t.Errorf("applied will = %v %q %s", opts.WillEnabled, opts.WillTopic, opts.WillPayload)
	}

	none := pahomqtt.NewClientOptions()
	applyWill(none, Will{})
	if none.WillEnabled {
		t.Error("empty will should not be enabled")
	}
}

func TestBuildStatusPayload(t *testing.T) {
	var msg StatusMessage
	if err := json.Unmarshal(buildStatusPayload("c1", statusOnline, ""), &msg); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if msg.Status != statusOnline || msg.ClientID != "c1" || msg.Reason != "" || msg.Timestamp.IsZero() {
		t.Errorf("online = %+v", msg)
	}

	if p := buildStatusPayload("c1", statusOffline, reasonGracefulShutdown); !strings.Contains(string(p), `"graceful_shutdown"`) {
		t.Errorf("offline payload = %s", p)
	}
}

func TestHandleReconnecting_GivesUp(t *testing.T) {
	cfg := testConfig()
	cfg.Reconnect.MaxAttempts = 2
	log := &mockLogger{}

	client := &Client{cfg: cfg, client: pahomqtt.NewClient(buildClientOptions(cfg))}
	client.SetLogger(log)

	client.handleReconnecting()
	client.handleReconnecting()
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() while retrying = %v, want ErrNotConnected", err)
	}

	client.handleReconnecting()
	client.handleReconnecting()
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrReconnectExhausted) {
		t.Errorf("HealthCheck() after giving up = %v, want ErrReconnectExhausted", err)
	}

	log.mu.Lock()
	defer log.mu.Unlock()
	if len(log.warns) != 2 || len(log.errors) != 1 {
		t.Errorf("warns = %v, errors = %v", log.warns, log.errors)
	}

	client.handleConnect()
	if client.ReconnectAttempts() != 0 {
		t.Errorf("ReconnectAttempts() after connect = %d", client.ReconnectAttempts())
	}
}

func TestHandleReconnecting_Unlimited(t *testing.T) {
	client := &Client{cfg: testConfig()}
	for i := 0; i < 50; i++ {
		client.handleReconnecting()
	}
	if client.exhausted.Load() || client.ReconnectAttempts() != 50 {
		t.Errorf("exhausted = %v, attempts = %d", client.exhausted.Load(), client.ReconnectAttempts())
	}
}

// =============================================================================
// Topics Tests
// =============================================================================

func TestTopicBuilders(t *testing.T) {
	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"BridgeRequest", Topics{}.BridgeRequest(ProtocolMatter, "add_device"), "graylogic/request/matter/add_device"},
		{"BridgeResponse", Topics{}.BridgeResponse(ProtocolMatter, "req-123"), "graylogic/response/matter/req-123"},
		{"BridgeHealth", Topics{}.BridgeHealth(ProtocolMatter), "graylogic/health/matter"},
		{"BridgeEvent", Topics{}.BridgeEvent(ProtocolMatter, "endpoint_added"), "graylogic/event/matter/endpoint_added"},
		{"ClientStatus", Topics{}.ClientStatus("graylogic-matter"), "graylogic/system/status/graylogic-matter"},
		{"AllBridgeRequests", Topics{}.AllBridgeRequests(ProtocolMatter), "graylogic/request/matter/#"},
		{"AllBridgeEvents", Topics{}.AllBridgeEvents(ProtocolMatter), "graylogic/event/matter/+"},
		{"AllBridgeHealth", Topics{}.AllBridgeHealth(), "graylogic/health/+"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("%s() = %q, want %q", tt.name, tt.got, tt.expected)
			}
		})
	}
}
