package influxdb_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-matter/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-matter/internal/infrastructure/influxdb"
)

// devInflux points at the InfluxDB started by the dev compose file.
func devInflux() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "graylogic-dev-token",
		Org:           "graylogic",
		Bucket:        "matter",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

// connectOrSkip connects with the dev config after mutate, skipping the test
// when no server answers. The client is closed on cleanup.
func connectOrSkip(t *testing.T, mutate func(*config.InfluxDBConfig)) *influxdb.Client {
	t.Helper()

	cfg := devInflux()
	if mutate != nil {
		mutate(&cfg)
	}
	client, err := influxdb.Connect(context.Background(), cfg)
	if errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Skip("no InfluxDB on 127.0.0.1:8086")
	}
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// collectErrors records asynchronous write failures.
func collectErrors(client *influxdb.Client) func() []error {
	var (
		mu   sync.Mutex
		errs []error
	)
	client.SetOnError(func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	})
	return func() []error {
		mu.Lock()
		defer mu.Unlock()
		return append([]error(nil), errs...)
	}
}

func TestConnect_Refusals(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.InfluxDBConfig)
		want   error
	}{
		{"disabled", func(c *config.InfluxDBConfig) { c.Enabled = false }, influxdb.ErrDisabled},
		{"nothing listening", func(c *config.InfluxDBConfig) { c.URL = "http://127.0.0.1:59999" }, influxdb.ErrConnectionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := devInflux()
			tt.mutate(&cfg)
			if _, err := influxdb.Connect(context.Background(), cfg); !errors.Is(err, tt.want) {
				t.Errorf("Connect() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestZeroClientIsInert(t *testing.T) {
	client := &influxdb.Client{}
	ctx := context.Background()
	hourAgo := time.Now().Add(-time.Hour)

	client.WriteEndpointEvent("endpoint_added", 0, 3, "Hall", time.Now())
	client.WriteRegistryUsage(1, 16)
	client.Flush()

	if client.IsConnected() {
		t.Error("IsConnected() = true for a zero client")
	}
	if err := client.HealthCheck(ctx); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
	if _, err := client.UsageHistory(ctx, hourAgo, time.Now(), time.Minute); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("UsageHistory() error = %v, want ErrNotConnected", err)
	}
	if _, err := client.EventCounts(ctx, hourAgo); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("EventCounts() error = %v, want ErrNotConnected", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestConnect_Live(t *testing.T) {
	client := connectOrSkip(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestConnect_FallsBackToDefaultBatching(t *testing.T) {
	client := connectOrSkip(t, func(c *config.InfluxDBConfig) {
		c.BatchSize = -5
		c.FlushInterval = 0
	})
	if !client.IsConnected() {
		t.Error("IsConnected() = false with defaulted batch settings")
	}
}

func TestWriteAndQuery_Live(t *testing.T) {
	client := connectOrSkip(t, nil)
	writeErrors := collectErrors(client)

	client.WriteRegistryUsage(2, 16)
	client.WriteEndpointEvent("endpoint_added", 0, 3, "query-test", time.Now())
	client.WriteEndpointEvent("endpoint_failed", -1, 0xFFFF, "query-test", time.Time{})
	client.Flush()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	points, err := client.UsageHistory(ctx, time.Now().Add(-time.Hour), time.Now().Add(time.Minute), time.Minute)
	if err != nil {
		t.Fatalf("UsageHistory() error = %v", err)
	}
	if len(points) == 0 {
		t.Error("UsageHistory() returned no points")
	}

	counts, err := client.EventCounts(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("EventCounts() error = %v", err)
	}
	if counts["endpoint_added"] < 1 || counts["endpoint_failed"] < 1 {
		t.Errorf("EventCounts() = %v, want both kinds counted", counts)
	}

	if errs := writeErrors(); len(errs) > 0 {
		t.Errorf("write errors = %v", errs)
	}
}

func TestClose_Live(t *testing.T) {
	client := connectOrSkip(t, nil)
	client.WriteRegistryUsage(0, 16)

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
}
