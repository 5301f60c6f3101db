// Package database provides the SQLite store for the Gray Logic Matter bridge.
//
// The store holds two things: the catalogue of devices the bridge exposes
// (bridged_devices) and the audit log of endpoint registry events
// (audit_logs). The endpoint table itself is never persisted; it is rebuilt
// from configuration and the catalogue at every start.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if _, err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are embedded by the top-level migrations package, which sets
// MigrationsFS at init. Each file pair is named
// YYYYMMDD_HHMMSS_description.up.sql / .down.sql and applied in its own
// transaction.
//
// All queries use parameterised statements. The database file is created
// with 0600 permissions.
package database
