package validation

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wyckoff-trading-bot/internal/market"
	"wyckoff-trading-bot/internal/pattern"
)

// springContext builds a candidate that passes every stage: low-volume
// shakeout in phase C with a clean recovery and a 3.3R plan.
func springContext() Context {
	return Context{
		Candidate: pattern.Candidate{
			ID:               "spring-1",
			Symbol:           "AAPL",
			Type:             pattern.Spring,
			Phase:            pattern.PhaseC,
			VolumeRatio:      ptr(0.5),
			PenetrationDepth: 0.01,
			RecoveryBars:     2,
			SupportLevel:     100,
			ResistanceLevel:  110,
			TriggerPrice:     99,
			Confidence:       85,
		},
		AssetClass: market.AssetStock,
		Symbol:     "AAPL",
		Timeframe:  "1h",
		Config:     testValidationConfig(),
	}
}

func TestChainPassesCleanSpring(t *testing.T) {
	chain := NewChain(NewStrategyRegistry(), zerolog.Nop())

	result := chain.Run(springContext())

	require.True(t, result.Passed)
	require.Len(t, result.Stages, 5)
	order := []string{StageVolume, StagePhase, StageLevels, StageRisk, StageStrategy}
	for i, sr := range result.Stages {
		assert.Equal(t, order[i], sr.Stage)
		assert.Equal(t, StatusPass, sr.Status)
	}

	_, _, failed := result.FailedStage()
	assert.False(t, failed)
	assert.Empty(t, result.Warnings())
}

func TestChainShortCircuitsOnVolumeFail(t *testing.T) {
	chain := NewChain(NewStrategyRegistry(), zerolog.Nop())

	vc := springContext()
	vc.Candidate.Type = pattern.SOS
	vc.Candidate.Phase = pattern.PhaseD
	vc.Candidate.VolumeRatio = ptr(1.2)
	vc.Candidate.TriggerPrice = 111

	result := chain.Run(vc)

	require.False(t, result.Passed)
	// Stages after the FAIL are never executed, not padded with
	// neutral results.
	require.Len(t, result.Stages, 1)

	stage, reason, failed := result.FailedStage()
	require.True(t, failed)
	assert.Equal(t, StageVolume, stage)
	assert.Contains(t, reason, "1.200")
	assert.Contains(t, reason, "1.500")
}

func TestChainWarnDoesNotStopExecution(t *testing.T) {
	chain := NewChain(NewStrategyRegistry(), zerolog.Nop())

	// Phase D is adjacent to the expected phase C: WARN, keep going.
	vc := springContext()
	vc.Candidate.Phase = pattern.PhaseD

	result := chain.Run(vc)

	require.True(t, result.Passed)
	require.Len(t, result.Stages, 5)
	assert.Equal(t, StatusWarn, result.Stages[1].Status)

	warnings := result.Warnings()
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], StagePhase)
}

func TestChainResultIsDeterministic(t *testing.T) {
	chain := NewChain(NewStrategyRegistry(), zerolog.Nop())
	vc := springContext()

	first := chain.Run(vc)
	second := chain.Run(vc)
	assert.Equal(t, first, second)
}

type recordingValidator struct {
	name   string
	status Status
	calls  *[]string
}

func (v recordingValidator) Name() string { return v.name }

func (v recordingValidator) Validate(Context) StageResult {
	*v.calls = append(*v.calls, v.name)
	return StageResult{Stage: v.name, Status: v.status, Reason: string(v.status)}
}

func TestCustomChainStopsAtFirstFail(t *testing.T) {
	var calls []string
	chain := NewCustomChain(zerolog.Nop(),
		recordingValidator{"first", StatusPass, &calls},
		recordingValidator{"second", StatusFail, &calls},
		recordingValidator{"third", StatusPass, &calls},
	)

	result := chain.Run(Context{Candidate: pattern.Candidate{ID: "x"}})

	assert.Equal(t, []string{"first", "second"}, calls)
	assert.False(t, result.Passed)
	assert.Equal(t, "x", result.PatternID)
	require.Len(t, result.Stages, 2)
}
