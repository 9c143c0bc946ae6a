package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wyckoff-trading-bot/config"
	"wyckoff-trading-bot/internal/cache"
	"wyckoff-trading-bot/internal/circuit"
	"wyckoff-trading-bot/internal/detector"
	"wyckoff-trading-bot/internal/market"
	"wyckoff-trading-bot/internal/pattern"
)

type stubStage struct {
	name     string
	requires []string
	provides string
	execute  func(pc *Context) (any, error)
}

func (s stubStage) Name() string { return s.name }

func (s stubStage) Requires() []string { return s.requires }

func (s stubStage) Provides() string { return s.provides }

func (s stubStage) Execute(_ context.Context, pc *Context) (any, error) {
	return s.execute(pc)
}

func candidateStage(out []pattern.Candidate, err error) stubStage {
	return stubStage{
		name:     StagePatternDetection,
		requires: []string{KeyBars},
		provides: KeyCandidates,
		execute:  func(*Context) (any, error) { return out, err },
	}
}

func testBreakers() *circuit.Registry {
	return circuit.NewRegistry(config.BreakerConfig{FailureThreshold: 3, CooldownSec: 60}, zerolog.Nop())
}

func testPipelineConfig() config.PipelineConfig {
	return config.PipelineConfig{MaxConcurrency: 4, StageTimeoutSec: 30, MinBars: 1}
}

func testCoordinator(stages ...Stage) *Coordinator {
	return NewCoordinator(stages, testBreakers(), nil, testPipelineConfig(), zerolog.Nop())
}

func oneBar() []market.Bar {
	return []market.Bar{{Volume: 100, OpenTime: time.Now()}}
}

func TestRunFailsFastOnMissingRequiredKey(t *testing.T) {
	pc := NewContext(zerolog.Nop(), "AAPL", "1h")
	st := stubStage{
		name:     "needy",
		requires: []string{"never_provided"},
		provides: "out",
		execute:  func(*Context) (any, error) { t.Fatal("must not execute"); return nil, nil },
	}

	res := Run(context.Background(), pc, st)

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "never_provided")
	require.Len(t, pc.Errors, 1)
	assert.Equal(t, "needy", pc.Errors[0].Stage)
}

func TestRunIsolatesPanics(t *testing.T) {
	pc := NewContext(zerolog.Nop(), "AAPL", "1h")
	st := stubStage{
		name:     "explosive",
		provides: "out",
		execute:  func(*Context) (any, error) { panic("index out of range") },
	}

	res := Run(context.Background(), pc, st)

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "panicked")
	require.Len(t, pc.Errors, 1)
	require.Len(t, pc.Timings, 1)
	assert.Equal(t, "explosive", pc.Timings[0].Stage)
}

func TestRunStoresOutputUnderProvidesKey(t *testing.T) {
	pc := NewContext(zerolog.Nop(), "AAPL", "1h")
	st := stubStage{
		name:     "producer",
		provides: "out",
		execute:  func(*Context) (any, error) { return 42, nil },
	}

	res := Run(context.Background(), pc, st)

	require.True(t, res.Success)
	assert.Equal(t, 42, pc.Data["out"])
	assert.Equal(t, 42, res.Output)
	require.Len(t, pc.Timings, 1)
}

func TestCoordinatorProducesCandidates(t *testing.T) {
	want := []pattern.Candidate{{ID: "c1", Type: pattern.Spring}}
	coord := testCoordinator(candidateStage(want, nil))

	res := coord.RunPipeline(context.Background(), "AAPL", "1h", oneBar())

	require.True(t, res.Success)
	assert.Equal(t, want, res.Output)
	assert.Empty(t, res.Warnings)
}

// A failed stage degrades the run but does not abort it: stages that
// can still proceed run, and the run reports success once candidates
// are produced, carrying the earlier failure as a warning.
func TestCoordinatorContinuesPastFailedStage(t *testing.T) {
	flaky := stubStage{
		name:     StageVolumeAnalysis,
		requires: []string{KeyBars},
		provides: KeyVolumeProfile,
		execute:  func(*Context) (any, error) { return nil, errors.New("feed corrupt") },
	}
	coord := testCoordinator(flaky, candidateStage([]pattern.Candidate{}, nil))

	res := coord.RunPipeline(context.Background(), "AAPL", "1h", oneBar())

	require.True(t, res.Success)
	assert.Empty(t, res.Output)
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[0], "feed corrupt")
}

func TestCoordinatorFailsWhenCandidatesNeverProduced(t *testing.T) {
	coord := testCoordinator(candidateStage(nil, errors.New("detector blew up")))

	res := coord.RunPipeline(context.Background(), "AAPL", "1h", oneBar())

	require.False(t, res.Success)
	assert.Contains(t, res.Error, "detector blew up")
	assert.Nil(t, res.Output)
}

func TestCoordinatorHonorsCancellation(t *testing.T) {
	executed := false
	st := candidateStage(nil, nil)
	st.execute = func(*Context) (any, error) { executed = true; return []pattern.Candidate{}, nil }
	coord := testCoordinator(st)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := coord.RunPipeline(ctx, "AAPL", "1h", oneBar())

	assert.False(t, res.Success)
	assert.False(t, executed)
	assert.Contains(t, res.Error, "cancelled")
}

func TestCoordinatorServesCacheableStageFromCache(t *testing.T) {
	executions := 0
	costly := stubStage{
		name:     StageVolumeAnalysis,
		requires: []string{KeyBars},
		provides: KeyVolumeProfile,
		execute:  func(*Context) (any, error) { executions++; return "profile", nil },
	}
	snapshots := cache.NewStageCache(8, time.Minute)
	coord := NewCoordinator(
		[]Stage{costly, candidateStage([]pattern.Candidate{}, nil)},
		testBreakers(), snapshots, testPipelineConfig(), zerolog.Nop())

	coord.RunPipeline(context.Background(), "AAPL", "1h", oneBar())
	coord.RunPipeline(context.Background(), "AAPL", "1h", oneBar())

	assert.Equal(t, 1, executions)

	// A different symbol is a different key.
	coord.RunPipeline(context.Background(), "MSFT", "1h", oneBar())
	assert.Equal(t, 2, executions)
}

func TestCoordinatorNeverCachesPatternDetection(t *testing.T) {
	executions := 0
	st := candidateStage(nil, nil)
	st.execute = func(*Context) (any, error) { executions++; return []pattern.Candidate{}, nil }
	snapshots := cache.NewStageCache(8, time.Minute)
	coord := NewCoordinator([]Stage{st}, testBreakers(), snapshots, testPipelineConfig(), zerolog.Nop())

	coord.RunPipeline(context.Background(), "AAPL", "1h", oneBar())
	coord.RunPipeline(context.Background(), "AAPL", "1h", oneBar())

	assert.Equal(t, 2, executions)
	assert.Zero(t, snapshots.Len())
}

// A required detector that failed to load aborts its stage, the stages
// downstream of it fail fast on their missing inputs, and the run
// reports a structured failure instead of crashing.
func TestCoordinatorReportsRequiredDetectorFailure(t *testing.T) {
	loader := detector.NewLoader(zerolog.Nop())
	loader.Register(DetectorRange, "internal/wyckoff", true, nil, errors.New("bad build"))
	loader.Register(DetectorPhase, "internal/wyckoff", true,
		func(context.Context, []market.Bar, map[string]any) (any, error) { return nil, nil }, nil)

	profile := stubStage{
		name:     StageVolumeAnalysis,
		requires: []string{KeyBars},
		provides: KeyVolumeProfile,
		execute:  func(*Context) (any, error) { return "profile", nil },
	}
	coord := testCoordinator(
		profile,
		NewRangeDetectionStage(loader),
		NewPhaseDetectionStage(loader),
		NewPatternDetectionStage(loader, []pattern.Type{pattern.Spring}),
	)

	res := coord.RunPipeline(context.Background(), "AAPL", "1h", oneBar())

	require.False(t, res.Success)
	assert.Contains(t, res.Error, DetectorRange)
	assert.Contains(t, res.Error, StagePhaseDetection)
}

// One degraded run must count as one breaker failure, not one per
// cascading stage: the downstream missing-input skips are consequences
// of the single root failure, and the next run proceeds normally once
// the glitch clears.
func TestCoordinatorTransientFailureOnlyCountsOnce(t *testing.T) {
	runs := 0
	glitchy := stubStage{
		name:     StageRangeDetection,
		requires: []string{KeyBars},
		provides: KeyRanges,
		execute: func(*Context) (any, error) {
			runs++
			if runs == 1 {
				return nil, errors.New("range feed glitch")
			}
			return "ranges", nil
		},
	}
	needsRanges := stubStage{
		name:     StagePhaseDetection,
		requires: []string{KeyRanges},
		provides: KeyPhase,
		execute:  func(*Context) (any, error) { return "phase", nil },
	}
	needsPhase := stubStage{
		name:     StagePatternDetection,
		requires: []string{KeyPhase},
		provides: KeyCandidates,
		execute:  func(*Context) (any, error) { return []pattern.Candidate{}, nil },
	}
	coord := testCoordinator(glitchy, needsRanges, needsPhase)

	first := coord.RunPipeline(context.Background(), "AAPL", "1h", oneBar())
	require.False(t, first.Success)
	assert.Contains(t, first.Error, "range feed glitch")

	second := coord.RunPipeline(context.Background(), "AAPL", "1h", oneBar())
	require.True(t, second.Success)
	assert.Empty(t, second.Warnings)
	assert.Equal(t, 2, runs)
}

func TestCoordinatorRejectsShortHistory(t *testing.T) {
	executed := false
	st := candidateStage(nil, nil)
	st.execute = func(*Context) (any, error) { executed = true; return []pattern.Candidate{}, nil }
	cfg := testPipelineConfig()
	cfg.MinBars = 5
	coord := NewCoordinator([]Stage{st}, testBreakers(), nil, cfg, zerolog.Nop())

	res := coord.RunPipeline(context.Background(), "AAPL", "1h", oneBar())

	require.False(t, res.Success)
	assert.Contains(t, res.Error, "need 5")
	assert.False(t, executed)
}

// stallingStage blocks until its context expires.
type stallingStage struct{}

func (stallingStage) Name() string { return StageVolumeAnalysis }

func (stallingStage) Requires() []string { return []string{KeyBars} }

func (stallingStage) Provides() string { return KeyVolumeProfile }

func (stallingStage) Execute(ctx context.Context, _ *Context) (any, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestCoordinatorAppliesStageTimeout(t *testing.T) {
	cfg := testPipelineConfig()
	cfg.StageTimeoutSec = 1
	coord := NewCoordinator(
		[]Stage{stallingStage{}, candidateStage([]pattern.Candidate{}, nil)},
		testBreakers(), nil, cfg, zerolog.Nop())

	start := time.Now()
	res := coord.RunPipeline(context.Background(), "AAPL", "1h", oneBar())

	require.True(t, res.Success)
	assert.Less(t, time.Since(start), 5*time.Second)
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[0], "deadline")
}
