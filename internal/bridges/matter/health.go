package matter

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

const defaultHealthInterval = 30 * time.Second

// Reasons carried by degraded health messages.
const (
	reasonMQTTDown       = "MQTT disconnected"
	reasonNotReady       = "endpoint registry not initialised"
	reasonSlotsExhausted = "no dynamic endpoints available"
)

// HealthPublisher publishes health messages. *mqtt.Client satisfies it.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// StatsSource provides the registry view included in health messages.
type StatsSource interface {
	// Ready reports whether the endpoint registry is initialised.
	Ready() bool

	// Statistics returns a snapshot of registry usage.
	Statistics() BridgeStatistics

	// DevicesManaged returns the number of bridged devices.
	DevicesManaged() int
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	// BridgeID is the bridge identifier for health messages.
	BridgeID string

	// Version is the bridge software version.
	Version string

	// Interval is how often to publish health status.
	// Default: 30 seconds.
	Interval time.Duration

	// Publisher is the MQTT client for publishing messages.
	Publisher HealthPublisher

	// Source provides registry statistics.
	Source StatsSource
}

// HealthReporter publishes the bridge's retained health message on a fixed
// interval, and early whenever slot usage moves the bridge between healthy
// and degraded.
type HealthReporter struct {
	bridgeID  string
	version   string
	startTime time.Time
	interval  time.Duration
	publisher HealthPublisher
	source    StatsSource

	// last is the status most recently published.
	statusMu sync.Mutex
	last     HealthStatus

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewHealthReporter creates a new health reporter.
//
// Parameters:
//   - cfg: Configuration for the health reporter
//
// Returns:
//   - *HealthReporter: Ready to start (call Start to begin reporting)
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultHealthInterval
	}

	return &HealthReporter{
		bridgeID:  cfg.BridgeID,
		version:   cfg.Version,
		startTime: time.Now(),
		interval:  interval,
		publisher: cfg.Publisher,
		source:    cfg.Source,
		done:      make(chan struct{}),
	}
}

// Start publishes the current status and then reports every interval until
// ctx is cancelled or Stop is called.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and publishes a final "stopping" status. Safe to call
// more than once.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		//nolint:errcheck // Best-effort during shutdown
		h.publishStatus(HealthStopping, "")
	})
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publishStatus(HealthStarting, "bridge starting")
}

// PublishNow publishes the current health status immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publishStatus(status, reason)
}

// Refresh publishes only if the status differs from the last one sent, so
// the bridge can call it after every endpoint change.
func (h *HealthReporter) Refresh() error {
	status, reason := h.determineStatus()

	h.statusMu.Lock()
	unchanged := status == h.last
	h.statusMu.Unlock()

	if unchanged {
		return nil
	}
	return h.publishStatus(status, reason)
}

// LastStatus returns the status most recently published, or "" before the
// first message.
func (h *HealthReporter) LastStatus() HealthStatus {
	h.statusMu.Lock()
	defer h.statusMu.Unlock()
	return h.last
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	if err := h.PublishNow(); err != nil {
		h.log().Error("failed to publish initial health", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.log().Error("failed to publish health", "error", err)
			}
		}
	}
}

// determineStatus is degraded while MQTT is down, before the registry is
// initialised, or when every dynamic slot is taken.
func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return HealthDegraded, reasonMQTTDown
	}
	if h.source == nil || !h.source.Ready() {
		return HealthDegraded, reasonNotReady
	}

	stats := h.source.Statistics()
	if stats.SlotCapacity > 0 && stats.SlotsInUse >= stats.SlotCapacity {
		return HealthDegraded, reasonSlotsExhausted
	}
	return HealthHealthy, ""
}

func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.publisher == nil {
		return nil
	}

	msg := HealthMessage{
		Bridge:        h.bridgeID,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Reason:        reason,
	}
	if h.source != nil {
		stats := h.source.Statistics()
		msg.Statistics = &stats
		msg.DevicesManaged = h.source.DevicesManaged()
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := h.publisher.Publish(HealthTopic(), payload, 1, true); err != nil {
		return err
	}

	h.statusMu.Lock()
	prev := h.last
	h.last = status
	h.statusMu.Unlock()

	if prev != status && prev != "" {
		if status == HealthDegraded {
			h.log().Warn("bridge health degraded", "from", prev, "reason", reason)
		} else {
			h.log().Info("bridge health changed", "from", prev, "to", status)
		}
	}
	return nil
}

func (h *HealthReporter) log() Logger {
	h.loggerMu.RLock()
	defer h.loggerMu.RUnlock()
	if h.logger == nil {
		return nopLogger{}
	}
	return h.logger
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
