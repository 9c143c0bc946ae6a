package detector

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"wyckoff-trading-bot/internal/market"
)

// Func is a pure detector function: bars plus prior stage outputs in,
// detector-specific output out. Failures surface as errors, never as
// panics that cross the stage boundary.
type Func func(ctx context.Context, bars []market.Bar, prior map[string]any) (any, error)

// LoadError is the typed failure for detector resolution. Required
// detectors abort their stage with it; optional ones degrade the stage.
type LoadError struct {
	Name   string
	Source string
	Cause  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("detector %q from %s failed to load: %v", e.Name, e.Source, e.Cause)
}

func (e *LoadError) Unwrap() error { return e.Cause }

// Health classifies detector availability.
type Health string

const (
	HealthHealthy   Health = "healthy"
	HealthDegraded  Health = "degraded"
	HealthUnhealthy Health = "unhealthy"
)

// HealthStatus aggregates load outcomes across the registry.
type HealthStatus struct {
	Loaded         int      `json:"loaded"`
	Failed         int      `json:"failed"`
	FailedOptional int      `json:"failed_optional"`
	FailedRequired int      `json:"failed_required"`
	FailedNames    []string `json:"failed_names,omitempty"`
}

// Status reports healthy when everything loaded, degraded when only
// optional detectors failed and the majority loaded, and unhealthy
// otherwise.
func (h HealthStatus) Status() Health {
	if h.Failed == 0 {
		return HealthHealthy
	}
	if h.FailedRequired == 0 && h.Loaded > h.Failed {
		return HealthDegraded
	}
	return HealthUnhealthy
}

type registration struct {
	fn       Func
	source   string
	initErr  error
	required bool
}

// Loader resolves detectors by name from an explicit registry built at
// startup. Import or initialization failures become LoadErrors instead
// of crashing the pipeline.
type Loader struct {
	mu        sync.RWMutex
	detectors map[string]registration
	logger    zerolog.Logger
	health    HealthStatus
}

// NewLoader creates an empty loader.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{
		detectors: make(map[string]registration),
		logger:    logger.With().Str("component", "detector_loader").Logger(),
	}
}

// Register installs a detector under a name. Passing a nil function or
// a non-nil initErr records the detector as failed; lookups against it
// produce LoadErrors carrying the original cause.
func (l *Loader) Register(name, source string, required bool, fn Func, initErr error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if initErr == nil && fn == nil {
		initErr = fmt.Errorf("nil detector function")
	}

	l.detectors[name] = registration{fn: fn, source: source, initErr: initErr, required: required}

	if initErr != nil {
		l.health.Failed++
		l.health.FailedNames = append(l.health.FailedNames, name)
		if required {
			l.health.FailedRequired++
		} else {
			l.health.FailedOptional++
		}
		l.logger.Error().
			Str("detector", name).
			Str("source", source).
			Bool("required", required).
			Err(initErr).
			Msg("detector failed to initialize")
		return
	}
	l.health.Loaded++
}

// Load resolves a required detector. The returned LoadError aborts the
// calling stage.
func (l *Loader) Load(name string) (Func, error) {
	l.mu.RLock()
	reg, ok := l.detectors[name]
	l.mu.RUnlock()

	if !ok {
		err := &LoadError{Name: name, Source: "registry", Cause: fmt.Errorf("not registered")}
		l.logger.Error().Str("detector", name).Err(err).Msg("detector resolution failed")
		return nil, err
	}
	if reg.initErr != nil {
		return nil, &LoadError{Name: name, Source: reg.source, Cause: reg.initErr}
	}
	return reg.fn, nil
}

// LoadOptional resolves an optional detector, returning nil on failure
// after logging so the stage can continue with reduced coverage.
func (l *Loader) LoadOptional(name string) Func {
	fn, err := l.Load(name)
	if err != nil {
		l.logger.Warn().
			Str("detector", name).
			Err(err).
			Msg("optional detector unavailable, continuing without it")
		return nil
	}
	return fn
}

// HealthStatus returns a snapshot of load outcomes.
func (l *Loader) HealthStatus() HealthStatus {
	l.mu.RLock()
	defer l.mu.RUnlock()

	snapshot := l.health
	snapshot.FailedNames = append([]string(nil), l.health.FailedNames...)
	return snapshot
}
