package validation

import (
	"github.com/rs/zerolog"
)

// Chain stage names, in execution order.
const (
	StageVolume   = "Volume"
	StagePhase    = "Phase"
	StageLevels   = "Levels"
	StageRisk     = "Risk"
	StageStrategy = "Strategy"
)

// Validator is one stage of the validation chain.
type Validator interface {
	Name() string
	Validate(vc Context) StageResult
}

// Chain runs validators in a fixed order, short-circuiting on the first
// FAIL. The result is a pure function of the input context: no clock,
// no global state.
type Chain struct {
	validators []Validator
	logger     zerolog.Logger
}

// NewChain assembles the standard five-stage chain:
// Volume → Phase → Levels → Risk → Strategy.
func NewChain(registry *StrategyRegistry, logger zerolog.Logger) *Chain {
	return &Chain{
		validators: []Validator{
			NewVolumeValidator(registry),
			&PhaseValidator{},
			&LevelsValidator{},
			&RiskValidator{},
			&StrategyValidator{},
		},
		logger: logger,
	}
}

// NewCustomChain assembles a chain from explicit validators, mainly for
// tests that need a trimmed or instrumented chain.
func NewCustomChain(logger zerolog.Logger, validators ...Validator) *Chain {
	return &Chain{validators: validators, logger: logger}
}

// Run executes the chain against one candidate. Stages after the first
// FAIL are not executed and are not fabricated with neutral results.
// WARN results are retained but do not stop the chain.
func (c *Chain) Run(vc Context) ChainResult {
	result := ChainResult{
		PatternID: vc.Candidate.ID,
		Stages:    make([]StageResult, 0, len(c.validators)),
	}

	for _, v := range c.validators {
		sr := v.Validate(vc)
		result.Stages = append(result.Stages, sr)

		switch sr.Status {
		case StatusFail:
			c.logger.Debug().
				Str("pattern_id", vc.Candidate.ID).
				Str("pattern_type", string(vc.Candidate.Type)).
				Str("stage", sr.Stage).
				Str("reason", sr.Reason).
				Msg("validation rejected")
			return result
		case StatusWarn:
			c.logger.Debug().
				Str("pattern_id", vc.Candidate.ID).
				Str("stage", sr.Stage).
				Str("reason", sr.Reason).
				Msg("validation warning")
		}
	}

	result.Passed = true
	return result
}
