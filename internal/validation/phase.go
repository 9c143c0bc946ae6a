package validation

import (
	"fmt"

	"wyckoff-trading-bot/internal/pattern"
)

// phaseIndex orders Wyckoff phases for adjacency checks.
var phaseIndex = map[pattern.Phase]int{
	pattern.PhaseA: 0,
	pattern.PhaseB: 1,
	pattern.PhaseC: 2,
	pattern.PhaseD: 3,
	pattern.PhaseE: 4,
}

// expectedPhases maps each pattern to the phases it legitimately
// occurs in. Springs are phase C shakeouts; SOS and LPS belong to the
// phase D markup; UTAD is the phase E distribution failure; the
// structural events SC/AR/ST build the phase A/B range.
var expectedPhases = map[pattern.Type][]pattern.Phase{
	pattern.Spring: {pattern.PhaseC},
	pattern.SOS:    {pattern.PhaseD},
	pattern.LPS:    {pattern.PhaseD},
	pattern.UTAD:   {pattern.PhaseE},
	pattern.SC:     {pattern.PhaseA},
	pattern.AR:     {pattern.PhaseA, pattern.PhaseB},
	pattern.ST:     {pattern.PhaseB},
}

// PhaseValidator checks that the candidate's detected phase is
// consistent with its pattern type. An adjacent phase is a WARN (phase
// boundaries are fuzzy in real ranges); anything else is a FAIL.
type PhaseValidator struct{}

func (v *PhaseValidator) Name() string { return StagePhase }

func (v *PhaseValidator) Validate(vc Context) StageResult {
	expected, ok := expectedPhases[vc.Candidate.Type]
	if !ok {
		return failResult(StagePhase, fmt.Sprintf(
			"no phase expectation for pattern type %s", vc.Candidate.Type))
	}

	actualIdx, known := phaseIndex[vc.Candidate.Phase]
	if !known {
		return failResult(StagePhase, fmt.Sprintf(
			"unknown Wyckoff phase %q for %s candidate", vc.Candidate.Phase, vc.Candidate.Type))
	}

	md := map[string]any{
		"pattern_type":   string(vc.Candidate.Type),
		"detected_phase": string(vc.Candidate.Phase),
		"expected":       phaseNames(expected),
	}

	bestDistance := len(phaseIndex)
	for _, p := range expected {
		d := phaseIndex[p] - actualIdx
		if d < 0 {
			d = -d
		}
		if d < bestDistance {
			bestDistance = d
		}
	}

	switch bestDistance {
	case 0:
		return StageResult{Stage: StagePhase, Status: StatusPass, Metadata: md}
	case 1:
		return StageResult{
			Stage:  StagePhase,
			Status: StatusWarn,
			Reason: fmt.Sprintf("%s detected in phase %s, adjacent to expected %v",
				vc.Candidate.Type, vc.Candidate.Phase, phaseNames(expected)),
			Metadata: md,
		}
	default:
		return failResult(StagePhase, fmt.Sprintf(
			"%s in phase %s is incompatible with expected %v",
			vc.Candidate.Type, vc.Candidate.Phase, phaseNames(expected)))
	}
}

func phaseNames(phases []pattern.Phase) []string {
	out := make([]string, len(phases))
	for i, p := range phases {
		out[i] = string(p)
	}
	return out
}
