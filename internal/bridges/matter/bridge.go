package matter

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-matter/internal/device"
	"github.com/nerrad567/gray-logic-matter/internal/endpoint"
	"github.com/nerrad567/gray-logic-matter/internal/infrastructure/mqtt"
	stack "github.com/nerrad567/gray-logic-matter/internal/matter"
)

// Bridge operation constants.
const (
	// requestTimeout bounds a single MQTT request.
	requestTimeout = 10 * time.Second

	// bridgeID identifies this bridge in health messages.
	bridgeID = "matter-bridge-01"
)

// Bridge exposes catalogued devices as dynamic Matter endpoints.
// It handles:
//   - Bridging devices into the endpoint registry under the aggregator
//   - Serving add/remove requests from Core over MQTT
//   - Fanning registry events out to audit, metrics and MQTT
//   - Health reporting and graceful shutdown
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	registry   EndpointRegistry
	table      EndpointLister
	catalog    DeviceCatalog
	mqtt       MQTTClient
	metrics    MetricsWriter
	audit      endpoint.EventRecorder
	health     *HealthReporter
	aggregator endpoint.ID

	// opMu serialises every operation that bridges, unbridges, updates or
	// deletes a device, so the bridged map, the registry and the catalogue
	// never disagree.
	opMu    sync.Mutex
	bridged map[string]*device.Bridged
	mu      sync.RWMutex

	added    atomic.Uint64
	removed  atomic.Uint64
	failures atomic.Uint64
	running  atomic.Bool

	// Shutdown coordination
	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context    // Bridge-level context, cancelled on Stop()
	ctxCancel context.CancelFunc // Cancel function for ctx

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger defines the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// MQTTClient is the interface for MQTT operations.
// This is satisfied by *mqtt.Client.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// EndpointRegistry is the slot registry the bridge drives.
// This is satisfied by *endpoint.Registry.
type EndpointRegistry interface {
	Init(ctx context.Context) error
	Add(ctx context.Context, dev endpoint.Device, desc *endpoint.Descriptor, types []endpoint.DeviceType, versions []endpoint.DataVersion, parent endpoint.ID) (int, error)
	Remove(ctx context.Context, dev endpoint.Device) (int, error)
	SetRecorder(rec endpoint.EventRecorder)
	Slots() []endpoint.SlotInfo
	Capacity() int
	InUse() int
	Cursor() endpoint.ID
	Initialised() bool
}

// EndpointLister lists every endpoint the stack exposes.
// This is satisfied by *stack.EndpointTable.
type EndpointLister interface {
	Endpoints() []stack.EndpointInfo
}

// DeviceCatalog provides persisted device definitions.
// This is satisfied by *device.Registry.
type DeviceCatalog interface {
	GetDevice(ctx context.Context, id string) (*device.Device, error)
	ListAutoBridged(ctx context.Context) ([]device.Device, error)
	CreateDevice(ctx context.Context, d *device.Device) error
	UpdateDevice(ctx context.Context, d *device.Device) error
	DeleteDevice(ctx context.Context, id string) error
}

// MetricsWriter records registry metrics. It is optional.
// This is satisfied by *influxdb.Client.
type MetricsWriter interface {
	WriteEndpointEvent(kind string, slot int, endpointID uint16, device string, at time.Time)
	WriteRegistryUsage(inUse, capacity int)
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// Registry is the dynamic endpoint registry.
	Registry EndpointRegistry

	// Table lists endpoints for diagnostics. Optional.
	Table EndpointLister

	// Catalog is the persisted device catalogue.
	Catalog DeviceCatalog

	// MQTTClient is the MQTT client implementation.
	MQTTClient MQTTClient

	// Metrics is an optional metrics writer.
	Metrics MetricsWriter

	// Audit is an optional recorder for registry events.
	Audit endpoint.EventRecorder

	// AggregatorEndpoint is the parent endpoint for bridged devices.
	AggregatorEndpoint endpoint.ID

	// HealthInterval is how often to publish health status.
	HealthInterval time.Duration

	// Version is the bridge software version.
	Version string

	// Logger is an optional structured logger.
	Logger Logger
}

// DeviceStatus describes a catalogued device and its endpoint, if any.
type DeviceStatus struct {
	Device      *device.Device `json:"device"`
	Bridged     bool           `json:"bridged"`
	Slot        *int           `json:"slot,omitempty"`
	EndpointID  endpoint.ID    `json:"endpoint_id,omitempty"`
	BridgeError string         `json:"bridge_error,omitempty"`
}

// NewBridge creates a new bridge instance and installs it as the registry's
// event recorder. Call Start() to begin operation.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("endpoint registry is required")
	}
	if opts.Catalog == nil {
		return nil, fmt.Errorf("device catalog is required")
	}
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		registry:   opts.Registry,
		table:      opts.Table,
		catalog:    opts.Catalog,
		mqtt:       opts.MQTTClient,
		metrics:    opts.Metrics, // May be nil (optional)
		audit:      opts.Audit,   // May be nil (optional)
		aggregator: opts.AggregatorEndpoint,
		bridged:    make(map[string]*device.Bridged),
		done:       make(chan struct{}),
		ctx:        ctx,
		ctxCancel:  ctxCancel,
		logger:     opts.Logger,
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:  bridgeID,
		Version:   opts.Version,
		Interval:  opts.HealthInterval,
		Publisher: opts.MQTTClient,
		Source:    b,
	})
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}

	opts.Registry.SetRecorder(b)

	return b, nil
}

// SetLogger sets the logger for the bridge and its health reporter.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
	b.health.SetLogger(logger)
}

// Start initialises the endpoint registry, bridges every auto-bridge device,
// subscribes to request topics, and starts health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	if err := b.registry.Init(ctx); err != nil {
		return fmt.Errorf("initialising endpoint registry: %w", err)
	}
	b.running.Store(true)

	b.bridgeCatalog(ctx)

	requestTopic := RequestSubscribeTopic()
	if err := b.mqtt.Subscribe(requestTopic, 1, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to requests: %w", err)
	}
	b.logInfo("subscribed to requests", "topic", requestTopic)

	b.health.Start(ctx)

	b.logInfo("bridge started",
		"bridge_id", bridgeID,
		"devices", b.DevicesManaged(),
		"capacity", b.registry.Capacity())

	return nil
}

// Stop gracefully shuts down the bridge. Endpoints stay registered; the
// stack goes down with the process.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		b.running.Store(false)

		// Cancel bridge context to abort in-flight requests
		b.ctxCancel()

		b.health.Stop()

		b.wg.Wait()

		b.logInfo("bridge stopped")
	})
}

// bridgeCatalog bridges every auto-bridge device. Failures are logged and
// do not stop startup.
func (b *Bridge) bridgeCatalog(ctx context.Context) {
	devices, err := b.catalog.ListAutoBridged(ctx)
	if err != nil {
		b.logError("failed to list auto-bridge devices", err)
		return
	}

	for i := range devices {
		if _, err := b.bridge(ctx, &devices[i]); err != nil {
			b.logWarn("device not bridged", "device_id", devices[i].ID, "error", err)
		}
	}
}

// AddDevice creates a device in the catalogue and, if AutoBridge is set,
// bridges it. A bridging failure leaves the device catalogued and is
// reported in the returned status.
func (b *Bridge) AddDevice(ctx context.Context, d *device.Device) (*DeviceStatus, error) {
	if d == nil {
		return nil, fmt.Errorf("%w: device is required", ErrInvalidRequest)
	}
	if err := b.catalog.CreateDevice(ctx, d); err != nil {
		return nil, err
	}

	status := &DeviceStatus{Device: d}
	if !d.AutoBridge {
		return status, nil
	}

	if !b.running.Load() {
		status.BridgeError = ErrNotRunning.Error()
		return status, nil
	}

	bd, err := b.bridge(ctx, d)
	if err != nil {
		status.BridgeError = err.Error()
		return status, nil
	}
	fillBridged(status, bd, b.indexOf(bd))
	return status, nil
}

// RemoveDevice unbridges a device if needed and deletes it from the
// catalogue. If unbridging fails the device is not deleted. No bridge
// request for the device can interleave with the removal.
func (b *Bridge) RemoveDevice(ctx context.Context, id string) error {
	b.opMu.Lock()
	defer b.opMu.Unlock()

	if _, err := b.catalog.GetDevice(ctx, id); err != nil {
		return err
	}

	if b.IsBridged(id) {
		if !b.running.Load() {
			return ErrNotRunning
		}
		if err := b.unbridgeLocked(ctx, id); err != nil {
			return err
		}
	}

	return b.catalog.DeleteDevice(ctx, id)
}

// UpdateDevice stores a changed catalogue entry. A bridged device is
// refused with ErrAlreadyBridged because its endpoint descriptor was fixed
// when it was registered.
func (b *Bridge) UpdateDevice(ctx context.Context, d *device.Device) error {
	if d == nil {
		return fmt.Errorf("%w: device is required", ErrInvalidRequest)
	}

	b.opMu.Lock()
	defer b.opMu.Unlock()

	if b.IsBridged(d.ID) {
		return fmt.Errorf("%w: unbridge %s before updating it", ErrAlreadyBridged, d.ID)
	}
	return b.catalog.UpdateDevice(ctx, d)
}

// BridgeDevice gives a catalogued device a dynamic endpoint.
func (b *Bridge) BridgeDevice(ctx context.Context, id string) (*DeviceStatus, error) {
	if !b.running.Load() {
		return nil, ErrNotRunning
	}

	d, err := b.catalog.GetDevice(ctx, id)
	if err != nil {
		return nil, err
	}

	bd, err := b.bridge(ctx, d)
	if err != nil {
		return nil, err
	}

	status := &DeviceStatus{Device: d}
	fillBridged(status, bd, b.indexOf(bd))
	return status, nil
}

// UnbridgeDevice removes a device's dynamic endpoint. The device stays in
// the catalogue.
func (b *Bridge) UnbridgeDevice(ctx context.Context, id string) error {
	if !b.running.Load() {
		return ErrNotRunning
	}

	b.opMu.Lock()
	defer b.opMu.Unlock()

	return b.unbridgeLocked(ctx, id)
}

// unbridgeLocked removes the endpoint for id. The caller holds opMu.
func (b *Bridge) unbridgeLocked(ctx context.Context, id string) error {
	b.mu.RLock()
	bd, ok := b.bridged[id]
	b.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotBridged, id)
	}

	if _, err := b.registry.Remove(ctx, bd); err != nil {
		return fmt.Errorf("removing endpoint for %s: %w", id, err)
	}

	b.mu.Lock()
	delete(b.bridged, id)
	b.mu.Unlock()

	b.logInfo("device unbridged", "device_id", id)
	return nil
}

// bridge registers the catalogue's current copy of d. It reads the catalogue
// again under opMu so a device deleted or changed since the caller fetched
// it is never bridged stale.
func (b *Bridge) bridge(ctx context.Context, d *device.Device) (*device.Bridged, error) {
	b.opMu.Lock()
	defer b.opMu.Unlock()

	b.mu.RLock()
	_, exists := b.bridged[d.ID]
	b.mu.RUnlock()
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyBridged, d.ID)
	}

	d, err := b.catalog.GetDevice(ctx, d.ID)
	if err != nil {
		return nil, err
	}

	bd, err := device.NewBridged(d)
	if err != nil {
		return nil, err
	}

	idx, err := b.registry.Add(ctx, bd, bd.Descriptor(), bd.DeviceTypes(), bd.DataVersions(), b.aggregator)
	if err != nil {
		return nil, fmt.Errorf("bridging %s: %w", d.ID, err)
	}
	bd.SetParentEndpointID(b.aggregator)

	b.mu.Lock()
	b.bridged[d.ID] = bd
	b.mu.Unlock()

	b.logInfo("device bridged",
		"device_id", d.ID,
		"slot", idx,
		"endpoint_id", bd.EndpointID())
	return bd, nil
}

// IsBridged reports whether the device currently has a dynamic endpoint.
func (b *Bridge) IsBridged(id string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.bridged[id]
	return ok
}

// BridgedDevices returns the status of every bridged device, ordered by
// endpoint identifier.
func (b *Bridge) BridgedDevices() []DeviceStatus {
	b.mu.RLock()
	list := make([]*device.Bridged, 0, len(b.bridged))
	for _, bd := range b.bridged {
		list = append(list, bd)
	}
	b.mu.RUnlock()

	out := make([]DeviceStatus, 0, len(list))
	for _, bd := range list {
		status := DeviceStatus{Device: bd.Device()}
		fillBridged(&status, bd, b.indexOf(bd))
		out = append(out, status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndpointID < out[j].EndpointID })
	return out
}

// Slots returns the registry's slot view.
func (b *Bridge) Slots() []endpoint.SlotInfo {
	return b.registry.Slots()
}

// Endpoints returns every endpoint exposed by the stack, or nil if no
// table was configured.
func (b *Bridge) Endpoints() []stack.EndpointInfo {
	if b.table == nil {
		return nil
	}
	return b.table.Endpoints()
}

// Ready implements StatsSource.
func (b *Bridge) Ready() bool {
	return b.registry.Initialised()
}

// DevicesManaged implements StatsSource.
func (b *Bridge) DevicesManaged() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.bridged)
}

// Statistics implements StatsSource.
func (b *Bridge) Statistics() BridgeStatistics {
	return BridgeStatistics{
		SlotsInUse:       b.registry.InUse(),
		SlotCapacity:     b.registry.Capacity(),
		NextEndpointID:   b.registry.Cursor(),
		EndpointsAdded:   b.added.Load(),
		EndpointsRemoved: b.removed.Load(),
		Failures:         b.failures.Load(),
	}
}

// RecordEndpointEvent implements endpoint.EventRecorder. The registry calls
// it after releasing the stack lock.
func (b *Bridge) RecordEndpointEvent(ctx context.Context, ev endpoint.Event) {
	switch ev.Kind {
	case endpoint.EventAdded:
		b.added.Add(1)
	case endpoint.EventRemoved:
		b.removed.Add(1)
	case endpoint.EventFailed:
		b.failures.Add(1)
	case endpoint.EventCollision:
		b.logDebug("endpoint identifier collision", "endpoint_id", ev.EndpointID, "device", ev.DeviceName)
		return
	}

	if b.audit != nil {
		b.audit.RecordEndpointEvent(ctx, ev)
	}

	if b.metrics != nil {
		b.metrics.WriteEndpointEvent(string(ev.Kind), ev.Slot, uint16(ev.EndpointID), ev.DeviceName, ev.Time)
		b.metrics.WriteRegistryUsage(b.registry.InUse(), b.registry.Capacity())
	}

	b.publishEvent(ev)

	if ev.Kind == endpoint.EventAdded || ev.Kind == endpoint.EventRemoved {
		if err := b.health.Refresh(); err != nil {
			b.logError("failed to publish health", err)
		}
	}
}

func (b *Bridge) publishEvent(ev endpoint.Event) {
	if !b.mqtt.IsConnected() {
		return
	}

	payload, err := json.Marshal(NewEventMessage(ev))
	if err != nil {
		b.logError("failed to marshal event", err)
		return
	}
	if err := b.mqtt.Publish(EventTopic(ev.Kind), payload, 1, false); err != nil {
		b.logError("failed to publish event", err)
	}
}

// handleMQTTMessage routes incoming MQTT messages.
// Topic: graylogic/request/matter/{request_id}
func (b *Bridge) handleMQTTMessage(topic string, payload []byte) error {
	if !mqtt.TopicMatches(RequestSubscribeTopic(), topic) {
		return fmt.Errorf("%w: unexpected topic %s", ErrInvalidRequest, topic)
	}

	select {
	case <-b.done:
		return nil
	default:
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.handleRequest(payload)
	}()
	return nil
}

// handleRequest processes a request message and publishes the response.
func (b *Bridge) handleRequest(payload []byte) {
	var req RequestMessage
	if err := json.Unmarshal(payload, &req); err != nil {
		b.logError("failed to parse request", err)
		return
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	b.logInfo("received request",
		"request_id", req.RequestID,
		"action", req.Action)

	ctx, cancel := context.WithTimeout(b.ctx, requestTimeout)
	defer cancel()

	var resp ResponseMessage
	switch req.Action {
	case ActionAddDevice:
		status, err := b.AddDevice(ctx, req.Device)
		resp = newResponse(req, statusData(status), err)
	case ActionRemoveDevice:
		resp = newResponse(req, map[string]any{"device_id": req.DeviceID}, b.RemoveDevice(ctx, req.DeviceID))
	case ActionBridgeDevice:
		status, err := b.BridgeDevice(ctx, req.DeviceID)
		resp = newResponse(req, statusData(status), err)
	case ActionUnbridgeDevice:
		resp = newResponse(req, map[string]any{"device_id": req.DeviceID}, b.UnbridgeDevice(ctx, req.DeviceID))
	case ActionListEndpoints:
		resp = newResponse(req, map[string]any{
			"slots":     b.Slots(),
			"endpoints": b.Endpoints(),
			"devices":   b.BridgedDevices(),
		}, nil)
	default:
		resp = newResponse(req, nil, fmt.Errorf("%w: unknown action: %s", ErrInvalidRequest, req.Action))
		resp.Error.Code = ErrCodeInvalidCommand
	}

	b.publishResponse(resp)
}

func (b *Bridge) publishResponse(resp ResponseMessage) {
	payload, err := json.Marshal(resp)
	if err != nil {
		b.logError("failed to marshal response", err)
		return
	}
	if err := b.mqtt.Publish(ResponseTopic(resp.RequestID), payload, 1, false); err != nil {
		b.logError("failed to publish response", err)
	}
}

func (b *Bridge) indexOf(bd *device.Bridged) int {
	for _, s := range b.registry.Slots() {
		if s.Used && s.EndpointID == bd.EndpointID() {
			return s.Index
		}
	}
	return -1
}

func fillBridged(status *DeviceStatus, bd *device.Bridged, idx int) {
	status.Bridged = true
	status.EndpointID = bd.EndpointID()
	if idx >= 0 {
		status.Slot = &idx
	}
}

func statusData(status *DeviceStatus) map[string]any {
	if status == nil {
		return nil
	}
	return map[string]any{"status": status}
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
