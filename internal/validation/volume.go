package validation

import (
	"fmt"
	"math"
	"strings"

	"wyckoff-trading-bot/config"
	"wyckoff-trading-bot/internal/market"
	"wyckoff-trading-bot/internal/pattern"
)

// VolumeStrategy validates the volume-ratio rule specific to one
// pattern type. Thresholds resolve per asset class and, for forex,
// per trading session.
type VolumeStrategy interface {
	Name() string
	Validate(vc Context) StageResult
}

// StrategyRegistry maps pattern types to their volume strategies. It is
// constructed once at startup and injected; there is no package-level
// registry.
type StrategyRegistry struct {
	strategies map[pattern.Type]VolumeStrategy
}

// NewStrategyRegistry builds the registry for the tradeable patterns.
func NewStrategyRegistry() *StrategyRegistry {
	return &StrategyRegistry{
		strategies: map[pattern.Type]VolumeStrategy{
			pattern.Spring: springVolumeStrategy{},
			pattern.SOS:    sosVolumeStrategy{},
			pattern.LPS:    lpsVolumeStrategy{},
			pattern.UTAD:   utadVolumeStrategy{},
		},
	}
}

// Resolve returns the strategy for a pattern type, case-insensitively.
// Unknown types are an error; validation never defaults to PASS.
func (r *StrategyRegistry) Resolve(t pattern.Type) (VolumeStrategy, error) {
	parsed, err := pattern.Parse(string(t))
	if err != nil {
		return nil, err
	}
	s, ok := r.strategies[parsed]
	if !ok {
		return nil, fmt.Errorf("no volume strategy registered for pattern type %s", parsed)
	}
	return s, nil
}

// thresholdsFor picks the base thresholds for the asset class and
// tightens them for the Asian forex session, where thinner liquidity
// makes average-relative readings noisier. Max-type thresholds shrink,
// min-type thresholds grow.
func thresholdsFor(vc Context) config.VolumeThresholds {
	th := vc.Config.Stock
	if vc.AssetClass == market.AssetForex {
		th = vc.Config.Forex
		if vc.ForexSession == market.SessionAsian {
			f := vc.Config.AsianSessionFactor
			th.SpringMax *= 1 - f
			th.SOSMin *= 1 + f
			th.UTADMin *= 1 + f
			th.LPSLow *= 1 + f
			th.LPSHigh *= 1 - f
		}
	}
	return th
}

// ratioOf extracts the candidate's volume ratio, failing on missing or
// non-finite values. Bad data is never coerced into a passing default.
func ratioOf(vc Context, stage string) (float64, *StageResult) {
	vr := vc.Candidate.VolumeRatio
	if vr == nil {
		res := failResult(stage, fmt.Sprintf(
			"%s volume validation failed: volume ratio is missing", vc.Candidate.Type))
		return 0, &res
	}
	if math.IsNaN(*vr) || math.IsInf(*vr, 0) {
		res := failResult(stage, fmt.Sprintf(
			"%s volume validation failed: volume ratio is invalid (%v)", vc.Candidate.Type, *vr))
		return 0, &res
	}
	return *vr, nil
}

func failResult(stage, reason string) StageResult {
	return StageResult{Stage: stage, Status: StatusFail, Reason: reason}
}

func volumeMetadata(t pattern.Type, ratio float64, extra map[string]any) map[string]any {
	md := map[string]any{
		"pattern_type": string(t),
		"volume_ratio": ratio,
	}
	for k, v := range extra {
		md[k] = v
	}
	return md
}

// springVolumeStrategy requires low volume on the shakeout bar: selling
// exhaustion means the break below support attracted no supply. The
// boundary is exclusive; a ratio exactly at the threshold fails.
type springVolumeStrategy struct{}

func (springVolumeStrategy) Name() string { return "spring_volume" }

func (s springVolumeStrategy) Validate(vc Context) StageResult {
	ratio, failed := ratioOf(vc, StageVolume)
	if failed != nil {
		return *failed
	}
	max := thresholdsFor(vc).SpringMax
	if ratio >= max {
		return failResult(StageVolume, fmt.Sprintf(
			"SPRING requires low volume: ratio %.3f >= max %.3f", ratio, max))
	}
	return StageResult{
		Stage:  StageVolume,
		Status: StatusPass,
		Metadata: volumeMetadata(pattern.Spring, ratio, map[string]any{
			"threshold": max, "comparison": "ratio < max",
		}),
	}
}

// sosVolumeStrategy requires high volume on the breakout bar: demand
// confirmation means buyers committed size through resistance.
type sosVolumeStrategy struct{}

func (sosVolumeStrategy) Name() string { return "sos_volume" }

func (s sosVolumeStrategy) Validate(vc Context) StageResult {
	ratio, failed := ratioOf(vc, StageVolume)
	if failed != nil {
		return *failed
	}
	min := thresholdsFor(vc).SOSMin
	if ratio <= min {
		return failResult(StageVolume, fmt.Sprintf(
			"SOS requires high volume: ratio %.3f <= min %.3f", ratio, min))
	}
	return StageResult{
		Stage:  StageVolume,
		Status: StatusPass,
		Metadata: volumeMetadata(pattern.SOS, ratio, map[string]any{
			"threshold": min, "comparison": "ratio > min",
		}),
	}
}

// lpsVolumeStrategy requires moderate volume on the pullback: neither a
// supply flood nor a dead retest. Both band edges are exclusive.
type lpsVolumeStrategy struct{}

func (lpsVolumeStrategy) Name() string { return "lps_volume" }

func (s lpsVolumeStrategy) Validate(vc Context) StageResult {
	ratio, failed := ratioOf(vc, StageVolume)
	if failed != nil {
		return *failed
	}
	th := thresholdsFor(vc)
	if ratio <= th.LPSLow || ratio >= th.LPSHigh {
		return failResult(StageVolume, fmt.Sprintf(
			"LPS requires moderate volume: ratio %.3f outside band (%.3f, %.3f)",
			ratio, th.LPSLow, th.LPSHigh))
	}
	return StageResult{
		Stage:  StageVolume,
		Status: StatusPass,
		Metadata: volumeMetadata(pattern.LPS, ratio, map[string]any{
			"band_low": th.LPSLow, "band_high": th.LPSHigh,
			"comparison": "low < ratio < high",
		}),
	}
}

// utadVolumeStrategy requires high volume on the upthrust bar itself.
// Volume on the subsequent failure bar is a known gap in this check;
// only the upthrust bar is validated here.
type utadVolumeStrategy struct{}

func (utadVolumeStrategy) Name() string { return "utad_volume" }

func (s utadVolumeStrategy) Validate(vc Context) StageResult {
	ratio, failed := ratioOf(vc, StageVolume)
	if failed != nil {
		return *failed
	}
	min := thresholdsFor(vc).UTADMin
	if ratio <= min {
		return failResult(StageVolume, fmt.Sprintf(
			"UTAD requires high upthrust volume: ratio %.3f <= min %.3f", ratio, min))
	}
	return StageResult{
		Stage:  StageVolume,
		Status: StatusPass,
		Metadata: volumeMetadata(pattern.UTAD, ratio, map[string]any{
			"threshold": min, "comparison": "ratio > min",
			"scope": "upthrust bar only",
		}),
	}
}

// VolumeValidator is the first chain stage. It dispatches to the
// pattern-specific strategy from the injected registry.
type VolumeValidator struct {
	registry *StrategyRegistry
}

// NewVolumeValidator creates the volume stage over a strategy registry.
func NewVolumeValidator(registry *StrategyRegistry) *VolumeValidator {
	return &VolumeValidator{registry: registry}
}

func (v *VolumeValidator) Name() string { return StageVolume }

// Validate resolves and runs the pattern-specific volume strategy.
func (v *VolumeValidator) Validate(vc Context) StageResult {
	strategy, err := v.registry.Resolve(vc.Candidate.Type)
	if err != nil {
		return failResult(StageVolume, fmt.Sprintf(
			"unrecognized pattern type %q: %v", strings.TrimSpace(string(vc.Candidate.Type)), err))
	}
	return strategy.Validate(vc)
}
