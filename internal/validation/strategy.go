package validation

import (
	"fmt"
	"strings"
)

// StrategyValidator is the final gate: the pattern must be enabled for
// trading and the detector's confidence must clear the floor. Scheduled
// high-impact news is surfaced as a WARN, not a rejection; sizing that
// down is the executor's call.
type StrategyValidator struct{}

func (v *StrategyValidator) Name() string { return StageStrategy }

func (v *StrategyValidator) Validate(vc Context) StageResult {
	enabled := false
	for _, p := range vc.Config.EnabledPatterns {
		if strings.EqualFold(p, string(vc.Candidate.Type)) {
			enabled = true
			break
		}
	}
	if !enabled {
		return failResult(StageStrategy, fmt.Sprintf(
			"pattern %s is not enabled for trading", vc.Candidate.Type))
	}

	if vc.Candidate.Confidence < vc.Config.MinConfidence {
		return failResult(StageStrategy, fmt.Sprintf(
			"confidence %.1f below minimum %.1f", vc.Candidate.Confidence, vc.Config.MinConfidence))
	}

	md := map[string]any{
		"pattern_type": string(vc.Candidate.Type),
		"confidence":   vc.Candidate.Confidence,
		"min":          vc.Config.MinConfidence,
	}

	if vc.Market != nil && vc.Market.HighImpactNews {
		return StageResult{
			Stage:  StageStrategy,
			Status: StatusWarn,
			Reason: fmt.Sprintf("high-impact news scheduled: %s",
				strings.Join(vc.Market.NewsEvents, ", ")),
			Metadata: md,
		}
	}

	return StageResult{Stage: StageStrategy, Status: StatusPass, Metadata: md}
}
