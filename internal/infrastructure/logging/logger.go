package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/gray-logic-fcserver/internal/infrastructure/config"
)

// Logger wraps slog.Logger with fcserver defaults.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
}

// Options tweak logger construction beyond the config file.
type Options struct {
	// Verbose forces debug level regardless of the configured level.
	Verbose bool

	// Writer overrides the configured output. Used by tests.
	Writer io.Writer
}

// New creates a Logger from the logging configuration.
//
// It configures:
//   - Output format (JSON or text)
//   - Log level filtering, with Verbose forcing debug
//   - Default fields (service name, version)
func New(cfg config.LoggingConfig, version string, opts Options) *Logger {
	output := opts.Writer
	if output == nil {
		switch strings.ToLower(cfg.Output) {
		case "stdout":
			output = os.Stdout
		default:
			output = os.Stderr
		}
	}

	level := parseLevel(cfg.Level)
	if opts.Verbose {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	hopts := &slog.HandlerOptions{
		Level: level,
	}

	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(output, hopts)
	default:
		handler = slog.NewTextHandler(output, hopts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "fcserver"),
		slog.String("version", version),
	})

	return &Logger{
		Logger: slog.New(handler),
	}
}

// parseLevel converts a string log level to slog.Level.
// Defaults to info if unrecognised.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a new Logger with additional default attributes.
//
// Example:
//
//	devLogger := logger.With("component", "device")
//	devLogger.Info("attached") // Includes component=device
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
	}
}

// Default creates a logger for use before configuration is loaded.
// It writes text to stderr at info level.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "text",
		Output: "stderr",
	}, "dev", Options{})
}
