package observability

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
)

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level     string
	Format    string
	Output    string
	AddSource bool
}

// ParseLevel maps a level name onto a slog level. Unknown names yield info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
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

// NewLogger creates a new structured logger based on configuration.
func NewLogger(config LoggingConfig) *slog.Logger {
	return slog.New(newHandler(config, outputFor(config.Output)))
}

func outputFor(name string) io.Writer {
	if strings.ToLower(name) == "stderr" {
		return os.Stderr
	}
	return os.Stdout
}

func newHandler(config LoggingConfig, output io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:     ParseLevel(config.Level),
		AddSource: config.AddSource,
	}
	if strings.ToLower(config.Format) == "text" {
		return slog.NewTextHandler(output, opts)
	}
	return slog.NewJSONHandler(output, opts)
}

// NewStdLogger adapts logger to the standard library logger interface used by
// the Kafka client. Lines are emitted at the given level under component.
func NewStdLogger(logger *slog.Logger, component string, level slog.Level) *log.Logger {
	return slog.NewLogLogger(logger.With("component", component).Handler(), level)
}
