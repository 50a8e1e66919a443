// Package logging provides structured logging for Trackside Core.
//
// It wraps log/slog so every component logs with the same handler,
// level filter and default fields (service, version).
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	engineLog := logger.Component("automation")
//	engineLog.Info("registered", "name", "station stop")
//
// The *Logger satisfies the small Logger interfaces declared by the
// automation, connection, feed and recovery packages.
//
// Never log broker passwords or InfluxDB tokens.
package logging
