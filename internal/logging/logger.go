package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logger configuration.
type Config struct {
	Level      string // debug, info, warn, error
	Output     string // stdout, stderr, or file path
	JSONFormat bool
}

// New builds the root zerolog logger for the process.
func New(cfg *Config) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var output io.Writer
	switch cfg.Output {
	case "", "stdout":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		file, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return zerolog.Logger{}, fmt.Errorf("could not open log file: %w", err)
		}
		output = file
	}

	if !cfg.JSONFormat {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	return zerolog.New(output).Level(level).With().Timestamp().Logger(), nil
}

// PipelineLogger returns a logger scoped to one pipeline run.
func PipelineLogger(base zerolog.Logger, correlationID, symbol, timeframe string) zerolog.Logger {
	return base.With().
		Str("component", "pipeline").
		Str("correlation_id", correlationID).
		Str("symbol", symbol).
		Str("timeframe", timeframe).
		Logger()
}

// ValidationLogger returns a logger scoped to one validation chain run.
func ValidationLogger(base zerolog.Logger, patternID, symbol, patternType string) zerolog.Logger {
	return base.With().
		Str("component", "validation").
		Str("pattern_id", patternID).
		Str("symbol", symbol).
		Str("pattern_type", patternType).
		Logger()
}
