package main

import (
	"context"
	"fmt"

	_ "github.com/nerrad567/gray-logic-matter/migrations"

	"github.com/nerrad567/gray-logic-matter/internal/api"
	"github.com/nerrad567/gray-logic-matter/internal/audit"
	matterbridge "github.com/nerrad567/gray-logic-matter/internal/bridges/matter"
	"github.com/nerrad567/gray-logic-matter/internal/device"
	"github.com/nerrad567/gray-logic-matter/internal/endpoint"
	"github.com/nerrad567/gray-logic-matter/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-matter/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-matter/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-matter/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-matter/internal/infrastructure/mqtt"
	stack "github.com/nerrad567/gray-logic-matter/internal/matter"
)

// fixedDeviceTypeRevision is the revision given to configured fixed endpoint device types.
const fixedDeviceTypeRevision uint8 = 1

// run wires the bridge together and blocks until ctx is cancelled.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - cfg: Loaded configuration
//   - configPath: Where cfg came from ("" for built-in defaults), for logging
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, cfg *config.Config, configPath string) error {
	log := logging.New(cfg.Logging, version)
	log.Info("starting Gray Logic Matter bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
		"config", configPath,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	applied, err := db.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database migrations complete", "applied", applied)

	// Device catalogue
	catalog := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	catalog.SetLogger(log.Component("catalog"))
	if refreshErr := catalog.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device catalogue: %w", refreshErr)
	}
	log.Info("device catalogue loaded", "devices", catalog.GetDeviceCount())

	auditRepo := audit.NewSQLiteRepository(db.DB)
	auditRecorder := audit.NewRecorder(auditRepo, "matter-bridge")
	auditRecorder.SetLogger(log.Component("audit"))
	// Stopped before the database closes, whichever way run returns.
	stopRetention := audit.StartRetention(ctx, auditRepo, cfg.Database.GetAuditRetention(), 0, log.Component("audit"))
	defer stopRetention()

	// Endpoint table and registry
	table, registry, err := buildRegistry(cfg.Matter, log)
	if err != nil {
		return err
	}

	// Connect to MQTT broker; the broker reports us offline on the health topic if we vanish
	will, err := matterbridge.LastWill()
	if err != nil {
		return err
	}
	mqttClient, err := mqtt.Connect(cfg.MQTT, mqtt.WithWill(will))
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	var metrics matterbridge.MetricsWriter
	var history api.MetricsHistory
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		metrics = influxClient
		history = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Matter bridge
	bridge, err := matterbridge.NewBridge(matterbridge.BridgeOptions{
		Registry:           registry,
		Table:              table,
		Catalog:            catalog,
		MQTTClient:         mqttClient,
		Metrics:            metrics,
		Audit:              auditRecorder,
		AggregatorEndpoint: endpoint.ID(cfg.Matter.AggregatorEndpoint), //nolint:gosec // validated against the fixed endpoint list
		HealthInterval:     cfg.Matter.GetHealthInterval(),
		Version:            version,
		Logger:             log.Component("bridge"),
	})
	if err != nil {
		return fmt.Errorf("creating Matter bridge: %w", err)
	}
	if startErr := bridge.Start(ctx); startErr != nil {
		return fmt.Errorf("starting Matter bridge: %w", startErr)
	}
	defer func() {
		log.Info("stopping Matter bridge")
		bridge.Stop()
	}()
	log.Info("Matter bridge started",
		"bridged", bridge.DevicesManaged(),
		"capacity", registry.Capacity(),
		"first_dynamic_id", registry.FirstDynamicID(),
	)

	// REST API
	apiServer, err := api.New(api.Deps{
		Config:    cfg.API,
		WebSocket: cfg.WebSocket,
		Security:  cfg.Security,
		Logger:    log.Component("api"),
		Catalog:   catalog,
		Bridge:    bridge,
		AuditRepo: auditRepo,
		MQTT:      mqttClient,
		DB:        db.DB,
		History:   history,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	if !cfg.Security.JWT.Enabled {
		log.Warn("API authentication disabled; set security.jwt.enabled for production")
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred cleanup runs in reverse: API, bridge, InfluxDB, MQTT, database.
	return nil
}

// buildRegistry creates the endpoint table described by cfg and the
// dynamic endpoint registry that manages its slots.
func buildRegistry(cfg config.MatterConfig, log *logging.Logger) (*stack.EndpointTable, *endpoint.Registry, error) {
	fixed := make([]stack.FixedEndpoint, 0, len(cfg.FixedEndpoints))
	for _, ep := range cfg.FixedEndpoints {
		types := make([]endpoint.DeviceType, 0, len(ep.DeviceTypes))
		for _, id := range ep.DeviceTypes {
			types = append(types, endpoint.DeviceType{ID: id, Revision: fixedDeviceTypeRevision})
		}
		fixed = append(fixed, stack.FixedEndpoint{
			ID:          endpoint.ID(ep.ID), //nolint:gosec // range checked by config validation
			Name:        ep.Name,
			DeviceTypes: types,
		})
	}

	table, err := stack.NewEndpointTable(fixed, cfg.DynamicEndpointCount)
	if err != nil {
		return nil, nil, fmt.Errorf("creating endpoint table: %w", err)
	}

	registry, err := endpoint.New(table, stack.NewStackLock(), endpoint.Options{
		Capacity:      cfg.DynamicEndpointCount,
		MaxEndpointID: endpoint.ID(cfg.MaxEndpointID), //nolint:gosec // range checked by config validation
		LockTimeout:   cfg.LockTimeout,
		Logger:        log.Component("registry"),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating endpoint registry: %w", err)
	}

	return table, registry, nil
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
