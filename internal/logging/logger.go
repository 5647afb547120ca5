// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config represents logger configuration
type Config struct {
	Level       string // debug, info, warn, error
	Environment string // development, production, test
	// Secrets are literal values that must never reach a sink
	Secrets []string
}

// Init initializes the global logger. Every sink is wrapped in a Redactor.
func Init(cfg Config) {
	zerolog.TimeFieldFormat = time.RFC3339

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	out := NewRedactor(os.Stdout, cfg.Secrets...)
	log.Logger = New(out, cfg.Environment)
}

// New builds a logger writing to w. Development gets the console format.
func New(w io.Writer, environment string) zerolog.Logger {
	if environment == "development" || environment == "dev" {
		return zerolog.New(zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: "15:04:05",
		}).With().Timestamp().Caller().Logger()
	}
	return zerolog.New(w).With().Timestamp().Caller().Logger()
}
