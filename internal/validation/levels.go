package validation

import (
	"fmt"

	"wyckoff-trading-bot/internal/pattern"
)

// LevelsValidator checks that the trigger bar interacts with the
// correct trading-range boundary for the pattern: springs penetrate
// support, SOS clears resistance, LPS retests near support, UTAD pokes
// above resistance. Level math itself is detector territory; this stage
// only verifies the geometry the detector reported.
type LevelsValidator struct{}

func (v *LevelsValidator) Name() string { return StageLevels }

func (v *LevelsValidator) Validate(vc Context) StageResult {
	c := vc.Candidate
	tol := vc.Config.LevelTolerance

	switch c.Type {
	case pattern.Spring:
		return v.checkPenetration(c, c.SupportLevel, "support", tol, below)
	case pattern.UTAD:
		return v.checkPenetration(c, c.ResistanceLevel, "resistance", tol, above)
	case pattern.SOS:
		if c.ResistanceLevel <= 0 {
			return failResult(StageLevels, "SOS candidate carries no resistance level")
		}
		if c.TriggerPrice <= c.ResistanceLevel {
			return failResult(StageLevels, fmt.Sprintf(
				"SOS trigger %.4f did not clear resistance %.4f", c.TriggerPrice, c.ResistanceLevel))
		}
	case pattern.LPS:
		if c.SupportLevel <= 0 {
			return failResult(StageLevels, "LPS candidate carries no support level")
		}
		distance := (c.TriggerPrice - c.SupportLevel) / c.SupportLevel
		if distance < 0 {
			return failResult(StageLevels, fmt.Sprintf(
				"LPS trigger %.4f broke support %.4f", c.TriggerPrice, c.SupportLevel))
		}
		if distance > 2*tol {
			return failResult(StageLevels, fmt.Sprintf(
				"LPS trigger %.4f is %.2f%% above support %.4f, outside retest tolerance",
				c.TriggerPrice, distance*100, c.SupportLevel))
		}
	default:
		// Structural events (SC/AR/ST) form the range rather than
		// trading off its edges; nothing to enforce.
	}

	return StageResult{
		Stage:  StageLevels,
		Status: StatusPass,
		Metadata: map[string]any{
			"pattern_type": string(c.Type),
			"support":      c.SupportLevel,
			"resistance":   c.ResistanceLevel,
			"trigger":      c.TriggerPrice,
		},
	}
}

type penetrationSide int

const (
	below penetrationSide = iota
	above
)

// checkPenetration verifies a shakeout/upthrust actually pierced its
// level, recovered, and did not run so deep the range is broken.
func (v *LevelsValidator) checkPenetration(c pattern.Candidate, level float64, name string, tol float64, side penetrationSide) StageResult {
	if level <= 0 {
		return failResult(StageLevels, fmt.Sprintf(
			"%s candidate carries no %s level", c.Type, name))
	}
	if c.PenetrationDepth <= 0 {
		return failResult(StageLevels, fmt.Sprintf(
			"%s candidate never penetrated %s (depth %.4f)", c.Type, name, c.PenetrationDepth))
	}
	maxDepth := 3 * tol
	if c.PenetrationDepth > maxDepth {
		return failResult(StageLevels, fmt.Sprintf(
			"%s penetration %.2f%% of %s exceeds max %.2f%%: range likely broken",
			c.Type, c.PenetrationDepth*100, name, maxDepth*100))
	}
	if c.RecoveryBars <= 0 {
		return failResult(StageLevels, fmt.Sprintf(
			"%s candidate has not reclaimed %s", c.Type, name))
	}

	status := StatusPass
	reason := ""
	if c.RecoveryBars > 3 {
		status = StatusWarn
		reason = fmt.Sprintf("%s took %d bars to reclaim %s; conviction is weak",
			c.Type, c.RecoveryBars, name)
	}

	return StageResult{
		Stage:  StageLevels,
		Status: status,
		Reason: reason,
		Metadata: map[string]any{
			"pattern_type":      string(c.Type),
			"level":             level,
			"side":              map[penetrationSide]string{below: "below", above: "above"}[side],
			"penetration_depth": c.PenetrationDepth,
			"recovery_bars":     c.RecoveryBars,
		},
	}
}
