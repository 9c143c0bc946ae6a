package pipeline

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"wyckoff-trading-bot/internal/logging"
)

// Context keys for stage-to-stage data. Each stage declares which keys
// it requires and provides.
const (
	KeyBars          = "bars"
	KeyVolumeProfile = "volume_profile"
	KeyRanges        = "ranges"
	KeyPhase         = "phase"
	KeyCandidates    = "candidates"
)

// StageTiming records one stage's execution window.
type StageTiming struct {
	Stage string    `json:"stage"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration derives the elapsed time.
func (t StageTiming) Duration() time.Duration { return t.End.Sub(t.Start) }

// StageError records a stage failure captured at the stage boundary.
type StageError struct {
	Stage     string    `json:"stage"`
	Err       error     `json:"-"`
	Message   string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// Context carries one pipeline run's state. It is owned exclusively by
// that run and is never shared across symbols, so no locking is needed.
type Context struct {
	CorrelationID string
	Symbol        string
	Timeframe     string

	// Data is the stage-to-stage scratch map keyed by the Key constants.
	Data map[string]any

	Timings         []StageTiming
	Errors          []StageError
	Warnings        []string
	FailedDetectors []string

	Logger zerolog.Logger
}

// NewContext creates a run context with a fresh correlation id.
func NewContext(base zerolog.Logger, symbol, timeframe string) *Context {
	correlationID := uuid.NewString()
	return &Context{
		CorrelationID: correlationID,
		Symbol:        symbol,
		Timeframe:     timeframe,
		Data:          make(map[string]any),
		Logger:        logging.PipelineLogger(base, correlationID, symbol, timeframe),
	}
}

// RecordError appends a stage error.
func (c *Context) RecordError(stage string, err error) {
	c.Errors = append(c.Errors, StageError{
		Stage:     stage,
		Err:       err,
		Message:   err.Error(),
		Timestamp: time.Now(),
	})
}

// RecordTiming appends a stage timing.
func (c *Context) RecordTiming(stage string, start, end time.Time) {
	c.Timings = append(c.Timings, StageTiming{Stage: stage, Start: start, End: end})
}

// AddWarning appends a non-fatal observation for the run result.
func (c *Context) AddWarning(msg string) {
	c.Warnings = append(c.Warnings, msg)
}

// AddFailedDetector records a detector that could not contribute.
func (c *Context) AddFailedDetector(name string) {
	c.FailedDetectors = append(c.FailedDetectors, name)
}
