// Package logger builds the root structured logger for Vigil. Components
// derive their own loggers from it with With().Str("component", ...).
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultService is stamped on every event unless overridden.
const DefaultService = "vigil"

// Config holds logger configuration
type Config struct {
	Level   string    // Any level zerolog knows; unknown values fall back to info
	Pretty  bool      // Console writer for local development
	Service string    // Service name stamped on every event
	Out     io.Writer // Destination, defaults to os.Stdout
}

// New creates the root logger from cfg and applies the level globally.
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "15:04:05",
		}
	}

	service := cfg.Service
	if service == "" {
		service = DefaultService
	}

	return zerolog.New(out).
		With().
		Timestamp().
		Caller().
		Str("service", service).
		Logger()
}

// SetGlobalLogger sets the package-level logger
func SetGlobalLogger(l zerolog.Logger) {
	log.Logger = l
}
