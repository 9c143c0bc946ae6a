package validation

import (
	"fmt"
)

// RiskValidator derives the trade plan for the candidate and rejects
// setups whose geometry cannot pay for their risk: a missing or
// non-protective stop, or an R-multiple under the configured floor.
type RiskValidator struct{}

func (v *RiskValidator) Name() string { return StageRisk }

func (v *RiskValidator) Validate(vc Context) StageResult {
	plan, err := PlanTrade(vc.Candidate, vc.Config.LevelTolerance)
	if err != nil {
		return failResult(StageRisk, fmt.Sprintf("cannot derive trade plan: %v", err))
	}

	if !plan.StopIsProtective() {
		return failResult(StageRisk, fmt.Sprintf(
			"stop %.4f does not protect %s entry %.4f", plan.StopLoss, plan.Direction, plan.Entry))
	}

	// The floor comparison tolerates a small epsilon so float noise in
	// the level arithmetic cannot reject a plan sitting on the boundary.
	r := plan.RMultiple()
	if r < vc.Config.MinRMultiple-vc.Config.RMultipleEpsilon {
		return failResult(StageRisk, fmt.Sprintf(
			"r-multiple %.2f below minimum %.2f (entry %.4f stop %.4f target %.4f)",
			r, vc.Config.MinRMultiple, plan.Entry, plan.StopLoss, plan.Target))
	}

	return StageResult{
		Stage:  StageRisk,
		Status: StatusPass,
		Metadata: map[string]any{
			"direction":  string(plan.Direction),
			"entry":      plan.Entry,
			"stop_loss":  plan.StopLoss,
			"target":     plan.Target,
			"r_multiple": r,
		},
	}
}
