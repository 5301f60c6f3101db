package matter

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-matter/internal/device"
	"github.com/nerrad567/gray-logic-matter/internal/endpoint"
)

func TestNewBridge_Validation(t *testing.T) {
	env := newTestEnv(t, 2)
	registry := env.bridge.registry

	tests := []struct {
		name string
		opts BridgeOptions
	}{
		{"missing registry", BridgeOptions{Catalog: env.catalog, MQTTClient: env.mqtt}},
		{"missing catalog", BridgeOptions{Registry: registry, MQTTClient: env.mqtt}},
		{"missing mqtt", BridgeOptions{Registry: registry, Catalog: env.catalog}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewBridge(tt.opts); err == nil {
				t.Error("NewBridge() should fail")
			}
		})
	}
}

func TestStart_BridgesAutoDevices(t *testing.T) {
	env := newTestEnv(t, 4,
		testDevice("hall", "Hall Light", true),
		testDevice("porch", "Porch Light", false),
		testDevice("desk", "Desk Lamp", true),
	)
	env.start(t)

	if got := env.bridge.DevicesManaged(); got != 2 {
		t.Fatalf("DevicesManaged() = %d, want 2", got)
	}
	if env.bridge.IsBridged("porch") {
		t.Error("porch is not auto-bridged")
	}

	devices := env.bridge.BridgedDevices()
	if devices[0].Device.ID != "hall" || devices[0].EndpointID != 3 || *devices[0].Slot != 0 {
		t.Errorf("first device = %+v", devices[0])
	}
	if devices[1].Device.ID != "desk" || devices[1].EndpointID != 4 || *devices[1].Slot != 1 {
		t.Errorf("second device = %+v", devices[1])
	}

	if env.table.IsEnabled(2) {
		t.Error("placeholder endpoint should be disabled after Start")
	}
	if _, ok := env.mqtt.subscriptions["graylogic/request/matter/#"]; !ok {
		t.Error("expected request subscription")
	}
	if len(env.mqtt.onTopic(HealthTopic())) == 0 {
		t.Error("expected starting health status")
	}
}

func TestStart_CapacityExhaustedIsNotFatal(t *testing.T) {
	env := newTestEnv(t, 1,
		testDevice("a", "Light A", true),
		testDevice("b", "Light B", true),
	)
	env.start(t)

	if got := env.bridge.DevicesManaged(); got != 1 {
		t.Errorf("DevicesManaged() = %d, want 1", got)
	}
	if stats := env.bridge.Statistics(); stats.Failures != 1 || stats.SlotsInUse != 1 {
		t.Errorf("Statistics() = %+v", stats)
	}
}

func TestStart_RegistryInitTwice(t *testing.T) {
	env := newTestEnv(t, 1)
	env.start(t)

	if err := env.bridge.Start(context.Background()); !errors.Is(err, endpoint.ErrAlreadyInitialised) {
		t.Errorf("second Start() error = %v, want ErrAlreadyInitialised", err)
	}
}

func TestAddDevice(t *testing.T) {
	env := newTestEnv(t, 2)
	env.start(t)
	ctx := context.Background()

	auto := testDevice("", "Kitchen Light", true)
	status, err := env.bridge.AddDevice(ctx, &auto)
	if err != nil {
		t.Fatalf("AddDevice() error = %v", err)
	}
	if !status.Bridged || status.EndpointID != 3 || status.Slot == nil || *status.Slot != 0 {
		t.Errorf("AddDevice() status = %+v", status)
	}
	if status.Device.ID == "" || !env.catalog.has(status.Device.ID) {
		t.Error("device should be catalogued with a generated id")
	}

	manual := testDevice("", "Garage Light", false)
	status, err = env.bridge.AddDevice(ctx, &manual)
	if err != nil {
		t.Fatalf("AddDevice() error = %v", err)
	}
	if status.Bridged {
		t.Error("device without auto_bridge should not be bridged")
	}

	invalid := testDevice("", "", true)
	if _, err := env.bridge.AddDevice(ctx, &invalid); ErrorCode(err) != ErrCodeInvalidParameters {
		t.Errorf("AddDevice(invalid) error = %v", err)
	}
	if _, err := env.bridge.AddDevice(ctx, nil); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("AddDevice(nil) error = %v", err)
	}
}

func TestAddDevice_NoCapacityKeepsDevice(t *testing.T) {
	env := newTestEnv(t, 1, testDevice("a", "Light A", true))
	env.start(t)

	extra := testDevice("b", "Light B", true)
	status, err := env.bridge.AddDevice(context.Background(), &extra)
	if err != nil {
		t.Fatalf("AddDevice() error = %v", err)
	}
	if status.Bridged || status.BridgeError == "" {
		t.Errorf("status = %+v, want bridge error", status)
	}
	if !env.catalog.has("b") {
		t.Error("device should stay catalogued when bridging fails")
	}
}

func TestBridgeAndUnbridge(t *testing.T) {
	env := newTestEnv(t, 2, testDevice("hall", "Hall Light", false))
	ctx := context.Background()

	if _, err := env.bridge.BridgeDevice(ctx, "hall"); !errors.Is(err, ErrNotRunning) {
		t.Errorf("BridgeDevice() before Start error = %v, want ErrNotRunning", err)
	}

	env.start(t)

	status, err := env.bridge.BridgeDevice(ctx, "hall")
	if err != nil {
		t.Fatalf("BridgeDevice() error = %v", err)
	}
	if !status.Bridged || status.EndpointID != 3 {
		t.Errorf("BridgeDevice() status = %+v", status)
	}

	if _, err := env.bridge.BridgeDevice(ctx, "hall"); !errors.Is(err, ErrAlreadyBridged) {
		t.Errorf("second BridgeDevice() error = %v, want ErrAlreadyBridged", err)
	}
	if _, err := env.bridge.BridgeDevice(ctx, "missing"); !errors.Is(err, device.ErrDeviceNotFound) {
		t.Errorf("BridgeDevice(missing) error = %v", err)
	}

	if err := env.bridge.UnbridgeDevice(ctx, "hall"); err != nil {
		t.Fatalf("UnbridgeDevice() error = %v", err)
	}
	if env.bridge.IsBridged("hall") || env.bridge.Statistics().SlotsInUse != 0 {
		t.Error("device should be unbridged and its slot free")
	}
	if err := env.bridge.UnbridgeDevice(ctx, "hall"); !errors.Is(err, ErrNotBridged) {
		t.Errorf("second UnbridgeDevice() error = %v, want ErrNotBridged", err)
	}

	if _, err := env.bridge.BridgeDevice(ctx, "hall"); err != nil {
		t.Errorf("re-bridge error = %v", err)
	}
}

func TestRemoveDevice(t *testing.T) {
	env := newTestEnv(t, 2, testDevice("hall", "Hall Light", true))
	env.start(t)
	ctx := context.Background()

	if err := env.bridge.RemoveDevice(ctx, "hall"); err != nil {
		t.Fatalf("RemoveDevice() error = %v", err)
	}
	if env.bridge.IsBridged("hall") || env.catalog.has("hall") {
		t.Error("device should be unbridged and deleted")
	}
	if err := env.bridge.RemoveDevice(ctx, "hall"); !errors.Is(err, device.ErrDeviceNotFound) {
		t.Errorf("RemoveDevice(missing) error = %v", err)
	}
}

func TestRemoveDevice_BlocksConcurrentBridge(t *testing.T) {
	env := newTestEnv(t, 2, testDevice("dev-1", "Hall Light", false))
	env.start(t)
	ctx := context.Background()

	deleting := make(chan struct{})
	release := make(chan struct{})
	env.catalog.beforeDelete = func() {
		close(deleting)
		<-release
	}

	removeErr := make(chan error, 1)
	go func() { removeErr <- env.bridge.RemoveDevice(ctx, "dev-1") }()
	<-deleting

	// The device is still catalogued while the delete is held open.
	bridgeErr := make(chan error, 1)
	go func() {
		_, err := env.bridge.BridgeDevice(ctx, "dev-1")
		bridgeErr <- err
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)

	if err := <-removeErr; err != nil {
		t.Fatalf("RemoveDevice() error = %v", err)
	}
	if err := <-bridgeErr; !errors.Is(err, device.ErrDeviceNotFound) {
		t.Errorf("BridgeDevice() error = %v, want ErrDeviceNotFound", err)
	}
	if env.catalog.has("dev-1") {
		t.Error("device should be deleted")
	}
	if env.bridge.IsBridged("dev-1") {
		t.Error("deleted device must not hold an endpoint")
	}
	if n := env.bridge.Statistics().SlotsInUse; n != 0 {
		t.Errorf("SlotsInUse = %d, want 0", n)
	}
}

func TestUpdateDevice(t *testing.T) {
	env := newTestEnv(t, 2,
		testDevice("hall", "Hall Light", true),
		testDevice("spare", "Spare", false),
	)
	env.start(t)
	ctx := context.Background()

	hall, _ := env.catalog.GetDevice(ctx, "hall")
	hall.Name = "Renamed"
	if err := env.bridge.UpdateDevice(ctx, hall); !errors.Is(err, ErrAlreadyBridged) {
		t.Errorf("UpdateDevice(bridged) error = %v, want ErrAlreadyBridged", err)
	}

	spare, _ := env.catalog.GetDevice(ctx, "spare")
	spare.Name = "Kettle Plug"
	if err := env.bridge.UpdateDevice(ctx, spare); err != nil {
		t.Fatalf("UpdateDevice() error = %v", err)
	}
	if got, _ := env.catalog.GetDevice(ctx, "spare"); got.Name != "Kettle Plug" {
		t.Errorf("stored name = %q", got.Name)
	}
	if err := env.bridge.UpdateDevice(ctx, nil); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("UpdateDevice(nil) error = %v", err)
	}
}

func TestRecordEndpointEvent_FanOut(t *testing.T) {
	env := newTestEnv(t, 2,
		testDevice("a", "Light A", true),
		testDevice("b", "Light B", true),
	)
	env.start(t)

	// The second add collides with id 3 before landing on 4.
	if got := env.audit.kinds(); !slices.Equal(got, []endpoint.EventKind{endpoint.EventAdded, endpoint.EventAdded}) {
		t.Errorf("audit events = %v", got)
	}

	env.metrics.mu.Lock()
	events, usage := env.metrics.events, env.metrics.usage
	env.metrics.mu.Unlock()
	if len(events) != 2 || usage[len(usage)-1] != [2]int{2, 2} {
		t.Errorf("metrics events = %v usage = %v", events, usage)
	}

	published := env.mqtt.onTopic(EventTopic(endpoint.EventAdded))
	if len(published) != 2 || published[0].retained {
		t.Fatalf("published %d added events", len(published))
	}
	var msg EventMessage
	if err := json.Unmarshal(published[1].payload, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.EndpointID != 4 || msg.Slot != 1 || msg.Device != "Light B" {
		t.Errorf("event message = %+v", msg)
	}
	if len(env.mqtt.onTopic(EventTopic(endpoint.EventCollision))) != 0 {
		t.Error("collision events should not be published")
	}

	if stats := env.bridge.Statistics(); stats.EndpointsAdded != 2 {
		t.Errorf("EndpointsAdded = %d, want 2", stats.EndpointsAdded)
	}
}

func TestRecordEndpointEvent_HealthFollowsCapacity(t *testing.T) {
	env := newTestEnv(t, 2,
		testDevice("a", "Light A", true),
		testDevice("b", "Light B", true),
	)
	env.start(t)

	msgs := env.mqtt.onTopic(HealthTopic())
	if len(msgs) < 3 {
		t.Fatalf("got %d health messages, want at least 3", len(msgs))
	}

	want := []HealthStatus{HealthStarting, HealthHealthy, HealthDegraded}
	for i, status := range want {
		var msg HealthMessage
		if err := json.Unmarshal(msgs[i].payload, &msg); err != nil {
			t.Fatal(err)
		}
		if msg.Status != status {
			t.Errorf("health[%d] = %s, want %s", i, msg.Status, status)
		}
		if status == HealthDegraded && msg.Reason != reasonSlotsExhausted {
			t.Errorf("degraded reason = %q", msg.Reason)
		}
	}
}

func TestRecordEndpointEvent_Disconnected(t *testing.T) {
	env := newTestEnv(t, 1)
	env.mqtt.setConnected(false)

	env.bridge.RecordEndpointEvent(context.Background(), endpoint.Event{
		Kind:       endpoint.EventRemoved,
		Slot:       0,
		EndpointID: 3,
		DeviceName: "Hall",
		Time:       time.Now(),
	})

	if len(env.mqtt.onTopic(EventTopic(endpoint.EventRemoved))) != 0 {
		t.Error("events should not be published while disconnected")
	}
	if got := env.audit.kinds(); len(got) != 1 {
		t.Errorf("audit events = %v", got)
	}
}

func TestHandleRequest(t *testing.T) {
	env := newTestEnv(t, 2, testDevice("hall", "Hall Light", false))
	env.start(t)

	tests := []struct {
		name        string
		request     RequestMessage
		wantSuccess bool
		wantCode    string
	}{
		{"bridge", RequestMessage{RequestID: "r1", Action: ActionBridgeDevice, DeviceID: "hall"}, true, ""},
		{"bridge twice", RequestMessage{RequestID: "r2", Action: ActionBridgeDevice, DeviceID: "hall"}, false, ErrCodeAlreadyBridged},
		{"list", RequestMessage{RequestID: "r3", Action: ActionListEndpoints}, true, ""},
		{"unbridge", RequestMessage{RequestID: "r4", Action: ActionUnbridgeDevice, DeviceID: "hall"}, true, ""},
		{"unbridge twice", RequestMessage{RequestID: "r5", Action: ActionUnbridgeDevice, DeviceID: "hall"}, false, ErrCodeNotBridged},
		{"add", RequestMessage{RequestID: "r6", Action: ActionAddDevice, Device: &device.Device{Name: "Office", Type: device.DeviceTypeDimmableLight, AutoBridge: true}}, true, ""},
		{"add without device", RequestMessage{RequestID: "r7", Action: ActionAddDevice}, false, ErrCodeInvalidParameters},
		{"remove missing", RequestMessage{RequestID: "r8", Action: ActionRemoveDevice, DeviceID: "nope"}, false, ErrCodeNotFound},
		{"unknown", RequestMessage{RequestID: "r9", Action: "reboot"}, false, ErrCodeInvalidCommand},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := json.Marshal(tt.request)
			if err != nil {
				t.Fatal(err)
			}
			env.bridge.handleRequest(payload)

			msgs := env.mqtt.onTopic(ResponseTopic(tt.request.RequestID))
			if len(msgs) != 1 {
				t.Fatalf("got %d responses", len(msgs))
			}
			resp := decodeResponse(t, msgs[0])
			if resp.Success != tt.wantSuccess {
				t.Fatalf("Success = %v, error = %+v", resp.Success, resp.Error)
			}
			if !tt.wantSuccess && resp.Error.Code != tt.wantCode {
				t.Errorf("Error.Code = %s, want %s", resp.Error.Code, tt.wantCode)
			}
		})
	}
}

func TestHandleRequest_ListEndpoints(t *testing.T) {
	env := newTestEnv(t, 2, testDevice("hall", "Hall Light", true))
	env.start(t)

	env.bridge.handleRequest([]byte(`{"request_id":"list","action":"list_endpoints"}`))

	resp := decodeResponse(t, env.mqtt.onTopic(ResponseTopic("list"))[0])
	slots, ok := resp.Data["slots"].([]any)
	if !ok || len(slots) != 2 {
		t.Fatalf("slots = %v", resp.Data["slots"])
	}
	endpoints, ok := resp.Data["endpoints"].([]any)
	if !ok || len(endpoints) != 4 {
		t.Errorf("endpoints = %v", resp.Data["endpoints"])
	}
}

func TestHandleRequest_InvalidJSON(t *testing.T) {
	env := newTestEnv(t, 1)
	env.start(t)

	env.bridge.handleRequest([]byte(`{not json`))

	env.mqtt.mu.Lock()
	defer env.mqtt.mu.Unlock()
	for _, msg := range env.mqtt.messages {
		if msg.topic != HealthTopic() {
			t.Errorf("unexpected publish on %s", msg.topic)
		}
	}
}

func TestHandleMQTTMessage(t *testing.T) {
	env := newTestEnv(t, 1, testDevice("hall", "Hall Light", false))
	env.start(t)

	if err := env.bridge.handleMQTTMessage("bogus", nil); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("handleMQTTMessage(bogus) error = %v", err)
	}
	if err := env.bridge.handleMQTTMessage("graylogic/request/knx/x", nil); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("handleMQTTMessage(other bridge) error = %v", err)
	}

	handler := env.mqtt.subscriptions[RequestSubscribeTopic()]
	payload := []byte(`{"request_id":"async","action":"bridge_device","device_id":"hall"}`)
	if err := handler("graylogic/request/matter/async", payload); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(env.mqtt.onTopic(ResponseTopic("async"))) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timeout waiting for response")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !env.bridge.IsBridged("hall") {
		t.Error("device should be bridged")
	}
}

func TestStop_Idempotent(t *testing.T) {
	env := newTestEnv(t, 1)
	env.start(t)

	env.bridge.Stop()
	env.bridge.Stop()

	if err := env.bridge.UnbridgeDevice(context.Background(), "x"); !errors.Is(err, ErrNotRunning) {
		t.Errorf("UnbridgeDevice() after Stop error = %v, want ErrNotRunning", err)
	}
	if err := env.bridge.handleMQTTMessage("graylogic/request/matter/x", []byte(`{}`)); err != nil {
		t.Errorf("handleMQTTMessage() after Stop error = %v", err)
	}
}
