package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-matter/internal/audit"
	matterbridge "github.com/nerrad567/gray-logic-matter/internal/bridges/matter"
	"github.com/nerrad567/gray-logic-matter/internal/device"
	"github.com/nerrad567/gray-logic-matter/internal/endpoint"
	"github.com/nerrad567/gray-logic-matter/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-matter/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-matter/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-matter/internal/infrastructure/mqtt"
	stack "github.com/nerrad567/gray-logic-matter/internal/matter"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// WebSocket defaults applied when the config leaves them unset.
const (
	defaultWSMaxMessageSize = 8192
	defaultWSPingInterval   = 30
	defaultWSPongTimeout    = 10
)

// Bridge is the subset of the Matter bridge the API drives.
// This is satisfied by *matterbridge.Bridge.
type Bridge interface {
	AddDevice(ctx context.Context, d *device.Device) (*matterbridge.DeviceStatus, error)
	RemoveDevice(ctx context.Context, id string) error
	UpdateDevice(ctx context.Context, d *device.Device) error
	BridgeDevice(ctx context.Context, id string) (*matterbridge.DeviceStatus, error)
	UnbridgeDevice(ctx context.Context, id string) error
	IsBridged(id string) bool
	BridgedDevices() []matterbridge.DeviceStatus
	Slots() []endpoint.SlotInfo
	Endpoints() []stack.EndpointInfo
	Statistics() matterbridge.BridgeStatistics
	Ready() bool
}

// MQTTClient is the broker surface the API needs: connectivity for metrics
// and subscriptions for the WebSocket event relay.
// This is satisfied by *mqtt.Client.
type MQTTClient interface {
	IsConnected() bool
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// DBStatser exposes connection pool statistics.
type DBStatser interface {
	Stats() sql.DBStats
}

// MetricsHistory reads registry metrics back from the time-series store.
// This is satisfied by *influxdb.Client.
type MetricsHistory interface {
	UsageHistory(ctx context.Context, start, end time.Time, every time.Duration) ([]influxdb.UsagePoint, error)
	EventCounts(ctx context.Context, since time.Time) (map[string]int64, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	WebSocket config.WebSocketConfig
	Security  config.SecurityConfig
	Logger    *logging.Logger
	Catalog   *device.Registry
	Bridge    Bridge
	AuditRepo audit.Repository // Optional: audit log listing
	MQTT      MQTTClient       // Optional: metrics and WebSocket relay
	DB        DBStatser        // Optional: reported in metrics
	History   MetricsHistory   // Optional: nil when InfluxDB is disabled
	Version   string
}

// Server is the HTTP API server for the Matter bridge.
//
// It manages the HTTP listener, routes and middleware.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	secCfg    config.SecurityConfig
	logger    *logging.Logger
	catalog   *device.Registry
	bridge    Bridge
	auditRepo audit.Repository
	mqtt      MQTTClient
	db        DBStatser
	history   MetricsHistory
	hub       *Hub
	tickets   *ticketStore
	version   string
	startTime time.Time
	server    *http.Server
	cancel    context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, catalog, bridge)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Catalog == nil {
		return nil, fmt.Errorf("device catalog is required")
	}
	if deps.Bridge == nil {
		return nil, fmt.Errorf("bridge is required")
	}

	if deps.Security.JWT.Enabled && deps.Security.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required when jwt auth is enabled")
	}

	wsCfg := deps.WebSocket
	if wsCfg.MaxMessageSize <= 0 {
		wsCfg.MaxMessageSize = defaultWSMaxMessageSize
	}
	if wsCfg.PingInterval <= 0 {
		wsCfg.PingInterval = defaultWSPingInterval
	}
	if wsCfg.PongTimeout <= 0 {
		wsCfg.PongTimeout = defaultWSPongTimeout
	}

	return &Server{
		cfg:       deps.Config,
		secCfg:    deps.Security,
		logger:    deps.Logger,
		catalog:   deps.Catalog,
		bridge:    deps.Bridge,
		auditRepo: deps.AuditRepo,
		mqtt:      deps.MQTT,
		db:        deps.DB,
		history:   deps.History,
		hub:       NewHub(wsCfg, deps.Logger),
		tickets:   newTicketStore(),
		version:   deps.Version,
		startTime: time.Now(),
	}, nil
}

// Start begins listening for HTTP connections in a background goroutine,
// runs the WebSocket hub and subscribes the event relay.
// The server can be stopped with Close().
//
// Parameters:
//   - ctx: Context bounding the WebSocket hub's lifetime
//
// Returns:
//   - error: If the server has already been started or the relay cannot subscribe
func (s *Server) Start(ctx context.Context) error {
	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	if err := s.subscribeBridgeEvents(); err != nil {
		return fmt.Errorf("subscribing WebSocket relay: %w", err)
	}

	hubCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.hub.Run(hubCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.GetReadTimeout(),
		ReadHeaderTimeout: s.cfg.GetReadTimeout(),
		WriteTimeout:      s.cfg.GetWriteTimeout(),
		IdleTimeout:       s.cfg.GetIdleTimeout(),
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if s.cancel != nil {
		s.cancel()
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
