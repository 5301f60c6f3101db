package matter

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-matter/internal/device"
	"github.com/nerrad567/gray-logic-matter/internal/endpoint"
	"github.com/nerrad567/gray-logic-matter/internal/infrastructure/mqtt"
	stack "github.com/nerrad567/gray-logic-matter/internal/matter"
)

// mockMQTT implements MQTTClient for testing.
type mockMQTT struct {
	mu            sync.Mutex
	connected     bool
	messages      []publishedMessage
	subscriptions map[string]mqtt.MessageHandler
}

type publishedMessage struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

func newMockMQTT(connected bool) *mockMQTT {
	return &mockMQTT{connected: connected, subscriptions: make(map[string]mqtt.MessageHandler)}
}

func (m *mockMQTT) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, publishedMessage{topic: topic, payload: payload, qos: qos, retained: retained})
	return nil
}

func (m *mockMQTT) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions[topic] = handler
	return nil
}

func (m *mockMQTT) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockMQTT) setConnected(v bool) {
	m.mu.Lock()
	m.connected = v
	m.mu.Unlock()
}

func (m *mockMQTT) onTopic(topic string) []publishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []publishedMessage
	for _, msg := range m.messages {
		if msg.topic == topic {
			out = append(out, msg)
		}
	}
	return out
}

// mockCatalog implements DeviceCatalog for testing.
type mockCatalog struct {
	mu      sync.Mutex
	devices map[string]*device.Device
	order   []string

	// beforeDelete, if set, runs at the start of DeleteDevice without mu held.
	beforeDelete func()
}

func newMockCatalog(devices ...device.Device) *mockCatalog {
	c := &mockCatalog{devices: make(map[string]*device.Device)}
	for i := range devices {
		d := devices[i]
		c.devices[d.ID] = &d
		c.order = append(c.order, d.ID)
	}
	return c
}

func (c *mockCatalog) GetDevice(_ context.Context, id string) (*device.Device, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.devices[id]
	if !ok {
		return nil, device.ErrDeviceNotFound
	}
	return d.DeepCopy(), nil
}

func (c *mockCatalog) ListAutoBridged(_ context.Context) ([]device.Device, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []device.Device
	for _, id := range c.order {
		if d, ok := c.devices[id]; ok && d.AutoBridge {
			out = append(out, *d.DeepCopy())
		}
	}
	return out, nil
}

func (c *mockCatalog) CreateDevice(_ context.Context, d *device.Device) error {
	if d.ID == "" {
		d.ID = device.GenerateID()
	}
	if err := device.ValidateDevice(d); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.devices[d.ID]; ok {
		return device.ErrDeviceExists
	}
	c.devices[d.ID] = d.DeepCopy()
	c.order = append(c.order, d.ID)
	return nil
}

func (c *mockCatalog) UpdateDevice(_ context.Context, d *device.Device) error {
	if err := device.ValidateDevice(d); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.devices[d.ID]; !ok {
		return device.ErrDeviceNotFound
	}
	c.devices[d.ID] = d.DeepCopy()
	return nil
}

func (c *mockCatalog) DeleteDevice(_ context.Context, id string) error {
	if c.beforeDelete != nil {
		c.beforeDelete()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.devices[id]; !ok {
		return device.ErrDeviceNotFound
	}
	delete(c.devices, id)
	return nil
}

func (c *mockCatalog) has(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.devices[id]
	return ok
}

// mockRecorder implements endpoint.EventRecorder for testing.
type mockRecorder struct {
	mu     sync.Mutex
	events []endpoint.Event
}

func (r *mockRecorder) RecordEndpointEvent(_ context.Context, ev endpoint.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *mockRecorder) kinds() []endpoint.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]endpoint.EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

// mockMetrics implements MetricsWriter for testing.
type mockMetrics struct {
	mu     sync.Mutex
	events []string
	usage  [][2]int
}

func (m *mockMetrics) WriteEndpointEvent(kind string, _ int, _ uint16, _ string, _ time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, kind)
}

func (m *mockMetrics) WriteRegistryUsage(inUse, capacity int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage = append(m.usage, [2]int{inUse, capacity})
}

type testEnv struct {
	bridge  *Bridge
	mqtt    *mockMQTT
	catalog *mockCatalog
	table   *stack.EndpointTable
	audit   *mockRecorder
	metrics *mockMetrics
}

func testDevice(id, name string, autoBridge bool) device.Device {
	return device.Device{
		ID:         id,
		Name:       name,
		Slug:       device.GenerateSlug(name),
		Type:       device.DeviceTypeOnOffLight,
		AutoBridge: autoBridge,
	}
}

// newTestEnv builds a bridge over a real endpoint table with root 0,
// aggregator 1 and placeholder 2, so the first dynamic id is 3.
func newTestEnv(t *testing.T, capacity int, devices ...device.Device) *testEnv {
	t.Helper()

	table, err := stack.NewEndpointTable([]stack.FixedEndpoint{
		{ID: 0, Name: "root"},
		{ID: 1, Name: "aggregator"},
		{ID: 2, Name: "placeholder"},
	}, capacity)
	if err != nil {
		t.Fatalf("NewEndpointTable() error = %v", err)
	}

	registry, err := endpoint.New(table, stack.NewStackLock(), endpoint.Options{
		Capacity:    capacity,
		LockTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("endpoint.New() error = %v", err)
	}

	env := &testEnv{
		mqtt:    newMockMQTT(true),
		catalog: newMockCatalog(devices...),
		table:   table,
		audit:   &mockRecorder{},
		metrics: &mockMetrics{},
	}

	env.bridge, err = NewBridge(BridgeOptions{
		Registry:           registry,
		Table:              table,
		Catalog:            env.catalog,
		MQTTClient:         env.mqtt,
		Metrics:            env.metrics,
		Audit:              env.audit,
		AggregatorEndpoint: 1,
		HealthInterval:     time.Hour,
		Version:            "test",
	})
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	t.Cleanup(env.bridge.Stop)

	return env
}

func (e *testEnv) start(t *testing.T) {
	t.Helper()
	if err := e.bridge.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
}

func decodeResponse(t *testing.T, msg publishedMessage) ResponseMessage {
	t.Helper()
	var resp ResponseMessage
	if err := json.Unmarshal(msg.payload, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	return resp
}
