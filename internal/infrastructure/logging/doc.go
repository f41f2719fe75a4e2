// Package logging provides structured logging for the bridge.
//
// It wraps log/slog so every component logs through the same handler with
// default fields (service, version) attached.
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
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("poll complete", "cursor", 1234)
//
// Never log the controller password or InfluxDB token.
package logging
