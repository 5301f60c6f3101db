// Package influxdb provides InfluxDB connectivity for the Gray Logic Matter
// bridge.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, metric writing, Flux queries and health monitoring.
//
// # Purpose
//
// The bridge records two series:
//   - matter_endpoint_events: one point per endpoint add, remove or failure
//   - matter_registry_usage: occupied and total dynamic slots
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteEndpointEvent("endpoint_added", 0, 3, "Hall Light", time.Now())
//	client.WriteRegistryUsage(1, 16)
//
//	points, err := client.UsageHistory(ctx, time.Now().Add(-24*time.Hour), time.Now(), 5*time.Minute)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are reported via the
// SetOnError callback. Connection and health check errors are returned directly.
package influxdb
