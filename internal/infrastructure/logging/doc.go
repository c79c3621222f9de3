// Package logging provides structured logging for fcserver.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Features
//
//   - Text output by default (human-readable on a console)
//   - JSON output for log collectors
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - verbose: true in the server config forces debug level
//   - Thread-safe for concurrent use
//
// # Configuration
//
// Logging is configured via the LoggingConfig in config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "text"     # text, json
//	  output: "stderr"   # stderr, stdout
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0", logging.Options{Verbose: cfg.Verbose})
//	logger.Info("listening", "addr", cfg.Listen.Addr())
//	logger.Error("device write failed", "error", err)
//
// # Security
//
// Never log secrets, tokens or passwords.
package logging
