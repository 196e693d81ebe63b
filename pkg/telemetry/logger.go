// Package telemetry provides logging and metrics for shipmate.
package telemetry

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LoggingConfig controls the global zerolog setup.
type LoggingConfig struct {
	// Level is one of trace, debug, info, warn, error.
	Level string

	// Format is "console" for human-readable output or "json".
	Format string
}

// SetupLogging configures the package-level zerolog logger. Library code
// logs through rs/zerolog/log, so this applies process-wide.
func SetupLogging(cfg LoggingConfig) {
	zerolog.TimeFieldFormat = time.RFC3339

	if cfg.Format != "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	zerolog.SetGlobalLevel(parseLogLevel(cfg.Level))
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
