// Package logging provides structured logging for the telemetry bridge.
//
// It wraps log/slog so that every component logs with the same default
// fields (service, version) and a component tag:
//
//	logger := logging.New(cfg.Logging, version)
//	connLog := logger.Component("connection")
//	connLog.Info("connected", "broker", "localhost:1883")
//
// Configuration:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Broker passwords must never be logged; log the profile name instead.
package logging
