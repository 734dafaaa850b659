// Package logging provides structured logging for the agent.
//
// This package wraps Go's standard log/slog package so that entities,
// warehouses and the runtime share one sink with one record shape.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - A source attribute identifying the emitting component
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
//	settings:
//	  logging:
//	    level: "info"      # debug, info, warn, error
//	    format: "json"     # json, text
//	    output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Settings.Logging, "1.0.0")
//	uptimeLog := logger.Source("entity/Uptime")
//	uptimeLog.Warn("update failed", "error", err)
//
// Never log broker passwords or InfluxDB tokens.
package logging
