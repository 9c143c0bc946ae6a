package pipeline

import (
	"context"
	"fmt"

	"wyckoff-trading-bot/internal/analysis"
	"wyckoff-trading-bot/internal/detector"
	"wyckoff-trading-bot/internal/market"
	"wyckoff-trading-bot/internal/pattern"
)

// Stage names, in coordinator order.
const (
	StageVolumeAnalysis   = "VolumeAnalysis"
	StageRangeDetection   = "RangeDetection"
	StagePhaseDetection   = "PhaseDetection"
	StagePatternDetection = "PatternDetection"
)

// Detector registry names consumed by the stages.
const (
	DetectorRange = "range_detector"
	DetectorPhase = "phase_detector"
)

// PatternDetectorName returns the registry name for a pattern detector.
func PatternDetectorName(t pattern.Type) string {
	return "pattern_" + string(t)
}

// barsFrom pulls the bar series out of the run context with a hard type
// check: wrong element types are an error, never silently coerced.
func barsFrom(pc *Context) ([]market.Bar, error) {
	raw := pc.Data[KeyBars]
	bars, ok := raw.([]market.Bar)
	if !ok {
		return nil, fmt.Errorf("context key %q holds %T, expected []market.Bar", KeyBars, raw)
	}
	return bars, nil
}

// VolumeAnalysisStage computes the volume snapshot used by detection
// and validation. Empty input yields a nil profile, not an error, so
// later stages can short-circuit gracefully.
type VolumeAnalysisStage struct {
	analyzer *analysis.VolumeAnalyzer
}

// NewVolumeAnalysisStage creates the first pipeline stage.
func NewVolumeAnalysisStage(analyzer *analysis.VolumeAnalyzer) *VolumeAnalysisStage {
	return &VolumeAnalysisStage{analyzer: analyzer}
}

func (s *VolumeAnalysisStage) Name() string       { return StageVolumeAnalysis }
func (s *VolumeAnalysisStage) Requires() []string { return []string{KeyBars} }
func (s *VolumeAnalysisStage) Provides() string   { return KeyVolumeProfile }

func (s *VolumeAnalysisStage) Execute(_ context.Context, pc *Context) (any, error) {
	bars, err := barsFrom(pc)
	if err != nil {
		return nil, err
	}
	return s.analyzer.Analyze(bars), nil
}

// RangeDetectionStage resolves the required range detector and runs it
// over the bar series.
type RangeDetectionStage struct {
	loader *detector.Loader
}

// NewRangeDetectionStage creates the range detection stage.
func NewRangeDetectionStage(loader *detector.Loader) *RangeDetectionStage {
	return &RangeDetectionStage{loader: loader}
}

func (s *RangeDetectionStage) Name() string       { return StageRangeDetection }
func (s *RangeDetectionStage) Requires() []string { return []string{KeyBars, KeyVolumeProfile} }
func (s *RangeDetectionStage) Provides() string   { return KeyRanges }

func (s *RangeDetectionStage) Execute(ctx context.Context, pc *Context) (any, error) {
	bars, err := barsFrom(pc)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return []analysis.TradingRange{}, nil
	}

	fn, err := s.loader.Load(DetectorRange)
	if err != nil {
		return nil, err
	}
	out, err := fn(ctx, bars, pc.Data)
	if err != nil {
		return nil, fmt.Errorf("range detector: %w", err)
	}
	ranges, ok := out.([]analysis.TradingRange)
	if !ok {
		return nil, fmt.Errorf("range detector returned %T, expected []analysis.TradingRange", out)
	}
	return ranges, nil
}

// PhaseDetectionStage resolves the required phase detector and runs it
// against the detected ranges.
type PhaseDetectionStage struct {
	loader *detector.Loader
}

// NewPhaseDetectionStage creates the phase detection stage.
func NewPhaseDetectionStage(loader *detector.Loader) *PhaseDetectionStage {
	return &PhaseDetectionStage{loader: loader}
}

func (s *PhaseDetectionStage) Name() string       { return StagePhaseDetection }
func (s *PhaseDetectionStage) Requires() []string { return []string{KeyBars, KeyRanges} }
func (s *PhaseDetectionStage) Provides() string   { return KeyPhase }

func (s *PhaseDetectionStage) Execute(ctx context.Context, pc *Context) (any, error) {
	bars, err := barsFrom(pc)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return analysis.PhaseDetection{}, nil
	}

	fn, err := s.loader.Load(DetectorPhase)
	if err != nil {
		return nil, err
	}
	out, err := fn(ctx, bars, pc.Data)
	if err != nil {
		return nil, fmt.Errorf("phase detector: %w", err)
	}
	phase, ok := out.(analysis.PhaseDetection)
	if !ok {
		return nil, fmt.Errorf("phase detector returned %T, expected analysis.PhaseDetection", out)
	}
	return phase, nil
}

// PatternDetectionStage runs one detector per enabled pattern type.
// Pattern detectors are optional: a missing or failing one reduces
// coverage and is recorded, but the stage still returns the candidates
// the remaining detectors produced.
type PatternDetectionStage struct {
	loader   *detector.Loader
	patterns []pattern.Type
}

// NewPatternDetectionStage creates the final detection stage over the
// given pattern set.
func NewPatternDetectionStage(loader *detector.Loader, patterns []pattern.Type) *PatternDetectionStage {
	return &PatternDetectionStage{loader: loader, patterns: patterns}
}

func (s *PatternDetectionStage) Name() string       { return StagePatternDetection }
func (s *PatternDetectionStage) Requires() []string { return []string{KeyBars, KeyRanges, KeyPhase} }
func (s *PatternDetectionStage) Provides() string   { return KeyCandidates }

func (s *PatternDetectionStage) Execute(ctx context.Context, pc *Context) (any, error) {
	bars, err := barsFrom(pc)
	if err != nil {
		return nil, err
	}
	candidates := []pattern.Candidate{}
	if len(bars) == 0 {
		return candidates, nil
	}

	for _, pt := range s.patterns {
		name := PatternDetectorName(pt)
		fn := s.loader.LoadOptional(name)
		if fn == nil {
			pc.AddFailedDetector(name)
			continue
		}

		out, err := fn(ctx, bars, pc.Data)
		if err != nil {
			pc.AddFailedDetector(name)
			pc.AddWarning(fmt.Sprintf("detector %s failed: %v", name, err))
			continue
		}
		found, ok := out.([]pattern.Candidate)
		if !ok {
			return nil, fmt.Errorf("detector %s returned %T, expected []pattern.Candidate", name, out)
		}
		candidates = append(candidates, found...)
	}

	return candidates, nil
}
