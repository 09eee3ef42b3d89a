// Package logging provides structured logging for VigiLant Core.
//
// It wraps log/slog so every component logs the same way: JSON in
// production, text during development, and the service and version fields
// on every entry.
//
// Logging is configured via the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("starting service", "port", 8080)
//	logger.Warn("broker connect failed", "error", err)
//
// Never log secrets, tokens or passwords.
package logging
