// Gray Logic Matter Bridge
//
// This is the main entry point for the Gray Logic Matter bridge.
// The bridge exposes catalogued devices as dynamic endpoints on a Matter
// node behind an aggregator, and offers:
//   - MQTT request/response control on graylogic/bridge/matter/...
//   - A REST API for the device catalogue and endpoint diagnostics
//   - An audit trail of endpoint changes in SQLite
//   - Optional endpoint metrics in InfluxDB
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

func main() {
	// Cancel on Ctrl+C or SIGTERM so run can shut down gracefully
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
