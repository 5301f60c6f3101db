// Package logging is the bridge's structured logger, built on log/slog.
//
// Every entry carries service=graylogic-matter and the build version.
// Packages tag their output with Component:
//
//	log := logging.New(cfg.Logging, version)
//	regLog := log.Component("registry")
//	regLog.Info("added device to dynamic endpoint", "device", name, "endpoint", id, "index", idx)
//
// The level is held in a slog.LevelVar shared by all derived loggers, so
// SetLevel (driven by the --log-level flag) applies everywhere at once.
//
// Values of the keys password, secret, token, authorization and ticket are
// replaced with [REDACTED] before they reach the output.
package logging
