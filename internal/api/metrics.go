package api

import (
	"errors"
	"net/http"
	"runtime"
	"time"

	matterbridge "github.com/nerrad567/gray-logic-matter/internal/bridges/matter"
	"github.com/nerrad567/gray-logic-matter/internal/infrastructure/influxdb"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string                        `json:"timestamp"`
	Version       string                        `json:"version"`
	UptimeSeconds int64                         `json:"uptime_seconds"`
	Runtime       RuntimeMetrics                `json:"runtime"`
	MQTT          MQTTMetrics                   `json:"mqtt"`
	Registry      matterbridge.BridgeStatistics `json:"registry"`
	Devices       DeviceMetrics                 `json:"devices"`
	WebSocket     WebSocketMetrics              `json:"websocket"`
	Database      *DatabaseMetrics              `json:"database,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Connected bool `json:"connected"`
}

// DeviceMetrics contains device catalogue statistics.
type DeviceMetrics struct {
	Total   int            `json:"total"`
	Bridged int            `json:"bridged"`
	ByType  map[string]int `json:"by_type"`
}

// WebSocketMetrics contains event stream statistics.
type WebSocketMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

const bytesPerMB = 1024 * 1024

// History query defaults and limits.
const (
	defaultHistoryRange = 24 * time.Hour
	defaultHistoryEvery = 5 * time.Minute
	maxHistoryRange     = 30 * 24 * time.Hour
)

// HistoryResponse is the response for GET /metrics/history.
type HistoryResponse struct {
	Start  time.Time             `json:"start"`
	End    time.Time             `json:"end"`
	Every  string                `json:"every"`
	Usage  []influxdb.UsagePoint `json:"usage"`
	Events map[string]int64      `json:"events"`
}

// handleMetrics returns runtime, registry and catalogue metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / bytesPerMB,
			MemoryTotalMB: float64(memStats.TotalAlloc) / bytesPerMB,
			NumGC:         memStats.NumGC,
		},
		Registry:  s.bridge.Statistics(),
		WebSocket: WebSocketMetrics{ConnectedClients: s.hub.ClientCount()},
	}

	if s.mqtt != nil {
		metrics.MQTT.Connected = s.mqtt.IsConnected()
	}

	catStats := s.catalog.GetStats()
	metrics.Devices = DeviceMetrics{
		Total:   catStats.TotalDevices,
		Bridged: metrics.Registry.SlotsInUse,
		ByType:  make(map[string]int, len(catStats.ByType)),
	}
	for t, count := range catStats.ByType {
		metrics.Devices.ByType[string(t)] = count
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = &DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}

// handleMetricsHistory returns slot occupancy over time and event counts
// for the range. Query: range (default 24h, max 720h), every (default 5m).
func (s *Server) handleMetricsHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "metrics history requires influxdb")
		return
	}

	span, err := durationParam(r, "range", defaultHistoryRange)
	if err != nil || span <= 0 || span > maxHistoryRange {
		writeBadRequest(w, "range must be a positive duration up to 720h")
		return
	}
	every, err := durationParam(r, "every", defaultHistoryEvery)
	if err != nil || every <= 0 {
		writeBadRequest(w, "every must be a positive duration")
		return
	}

	end := time.Now().UTC()
	start := end.Add(-span)

	usage, err := s.history.UsageHistory(r.Context(), start, end, every)
	if err != nil {
		s.writeHistoryError(w, err)
		return
	}
	events, err := s.history.EventCounts(r.Context(), start)
	if err != nil {
		s.writeHistoryError(w, err)
		return
	}

	if usage == nil {
		usage = []influxdb.UsagePoint{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{
		Start:  start,
		End:    end,
		Every:  every.String(),
		Usage:  usage,
		Events: events,
	})
}

func (s *Server) writeHistoryError(w http.ResponseWriter, err error) {
	if errors.Is(err, influxdb.ErrInvalidRange) {
		writeBadRequest(w, err.Error())
		return
	}
	s.logger.Error("metrics history query failed", "error", err)
	writeError(w, http.StatusBadGateway, ErrCodeUnavailable, "metrics history unavailable")
}

func durationParam(r *http.Request, name string, def time.Duration) (time.Duration, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	return time.ParseDuration(v)
}
