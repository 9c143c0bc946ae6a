package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"wyckoff-trading-bot/config"
	"wyckoff-trading-bot/internal/analysis"
	"wyckoff-trading-bot/internal/cache"
	"wyckoff-trading-bot/internal/circuit"
	"wyckoff-trading-bot/internal/market"
	"wyckoff-trading-bot/internal/pattern"
)

// Coordinator runs the fixed stage sequence for one symbol, threading
// stage outputs through the run context. A failed stage does not abort
// the run: later stages that can proceed on degraded input still run,
// and those that cannot fail fast on their missing inputs.
type Coordinator struct {
	stages       []Stage
	breakers     *circuit.Registry
	cache        cache.SnapshotCache
	stageTimeout time.Duration
	minBars      int
	logger       zerolog.Logger
}

// NewCoordinator assembles a coordinator over an ordered stage list.
// The breaker registry and cache are shared across symbol runs; both
// are safe for concurrent use.
func NewCoordinator(stages []Stage, breakers *circuit.Registry, snapshots cache.SnapshotCache, cfg config.PipelineConfig, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		stages:       stages,
		breakers:     breakers,
		cache:        snapshots,
		stageTimeout: time.Duration(cfg.StageTimeoutSec) * time.Second,
		minBars:      cfg.MinBars,
		logger:       logger,
	}
}

// cacheableStages hold outputs worth reusing across nearby runs.
// Pattern detection is always recomputed: candidates are keyed to the
// newest bar and staleness there produces duplicate signals.
var cacheableStages = map[string]bool{
	StageVolumeAnalysis: true,
	StageRangeDetection: true,
	StagePhaseDetection: true,
}

// snapshotDecoders rebuild typed stage outputs from the Redis tier's
// raw JSON snapshots. The in-memory cache returns live values and never
// goes through these.
var snapshotDecoders = map[string]func(cache.RawSnapshot) (any, error){
	StageVolumeAnalysis: func(r cache.RawSnapshot) (any, error) {
		var vp *analysis.VolumeProfile
		err := r.Decode(&vp)
		return vp, err
	},
	StageRangeDetection: func(r cache.RawSnapshot) (any, error) {
		var ranges []analysis.TradingRange
		err := r.Decode(&ranges)
		return ranges, err
	},
	StagePhaseDetection: func(r cache.RawSnapshot) (any, error) {
		var pd analysis.PhaseDetection
		err := r.Decode(&pd)
		return pd, err
	},
}

// RunPipeline executes the full stage sequence for one symbol and
// returns the detected pattern candidates. Cancellation is honored
// between stages; an in-flight stage is never interrupted.
func (c *Coordinator) RunPipeline(ctx context.Context, symbol string, timeframe string, bars []market.Bar) Result[[]pattern.Candidate] {
	start := time.Now()

	if len(bars) < c.minBars {
		c.logger.Warn().Str("symbol", symbol).Int("bars", len(bars)).Int("min_bars", c.minBars).
			Msg("insufficient history, skipping run")
		return Fail[[]pattern.Candidate](fmt.Sprintf(
			"insufficient history for %s: %d bars, need %d", symbol, len(bars), c.minBars),
			time.Since(start).Milliseconds())
	}

	pc := NewContext(c.logger, symbol, timeframe)
	pc.Data[KeyBars] = bars

	pc.Logger.Info().Int("bars", len(bars)).Msg("pipeline run started")

	for _, stage := range c.stages {
		if err := ctx.Err(); err != nil {
			pc.RecordError(stage.Name(), fmt.Errorf("run cancelled before stage %s: %w", stage.Name(), err))
			pc.Logger.Warn().Str("stage", stage.Name()).Msg("pipeline run cancelled, skipping remaining stages")
			break
		}

		if c.tryCache(pc, stage) {
			continue
		}

		// A missing input is a cascade of an upstream root failure, not
		// a failure of this stage: record it and move on without
		// charging the symbol's breaker, so the breaker counts repeated
		// runs rather than one degraded run.
		if key, missing := missingRequirement(pc, stage); missing {
			err := fmt.Errorf("stage %s requires context key %q which no upstream stage provided", stage.Name(), key)
			pc.RecordError(stage.Name(), err)
			pc.Logger.Warn().Str("stage", stage.Name()).Str("key", key).Msg("stage skipped, required input missing")
			continue
		}

		out, err := c.breakers.Execute(symbol, func() (any, error) {
			stageCtx := ctx
			if c.stageTimeout > 0 {
				var cancel context.CancelFunc
				stageCtx, cancel = context.WithTimeout(ctx, c.stageTimeout)
				defer cancel()
			}
			res := Run(stageCtx, pc, stage)
			if !res.Success {
				return nil, errors.New(res.Error)
			}
			return res.Output, nil
		})
		if err != nil {
			if errors.Is(err, circuit.ErrOpen) {
				pc.RecordError(stage.Name(), err)
				pc.Logger.Warn().Str("stage", stage.Name()).Msg("breaker open, skipping remaining stages for symbol")
				break
			}
			// Stage failure already recorded at the stage boundary;
			// keep going so independent later stages still run.
			continue
		}

		if cacheableStages[stage.Name()] && c.cache != nil {
			c.cache.Set(cache.Key{Stage: stage.Name(), Symbol: symbol, Timeframe: timeframe}, out)
		}
	}

	return c.finalize(pc, start)
}

// tryCache seeds a stage's output from the snapshot cache. A hit skips
// execution entirely; a miss is identical to "not yet computed".
func (c *Coordinator) tryCache(pc *Context, stage Stage) bool {
	if c.cache == nil || !cacheableStages[stage.Name()] {
		return false
	}
	key := cache.Key{Stage: stage.Name(), Symbol: pc.Symbol, Timeframe: pc.Timeframe}
	cached, ok := c.cache.Get(key)
	if !ok {
		return false
	}
	if raw, isRaw := cached.(cache.RawSnapshot); isRaw {
		decode, known := snapshotDecoders[stage.Name()]
		if !known {
			return false
		}
		typed, err := decode(raw)
		if err != nil {
			pc.Logger.Warn().Err(err).Str("stage", stage.Name()).Msg("cached snapshot undecodable, recomputing")
			c.cache.Delete(key)
			return false
		}
		cached = typed
	}
	pc.Data[stage.Provides()] = cached
	pc.Logger.Debug().Str("stage", stage.Name()).Msg("stage output served from cache")
	return true
}

// finalize assembles the run result from the context's accumulated
// state. The run succeeds when pattern detection produced an output,
// even a degraded or empty one.
func (c *Coordinator) finalize(pc *Context, start time.Time) Result[[]pattern.Candidate] {
	elapsed := time.Since(start).Milliseconds()

	raw, produced := pc.Data[KeyCandidates]
	if !produced {
		msgs := make([]string, 0, len(pc.Errors))
		for _, e := range pc.Errors {
			msgs = append(msgs, fmt.Sprintf("%s: %s", e.Stage, e.Message))
		}
		if len(msgs) == 0 {
			msgs = append(msgs, "pattern detection never ran")
		}
		res := Fail[[]pattern.Candidate](strings.Join(msgs, "; "), elapsed)
		res.Warnings = pc.Warnings
		res.FailedDetectors = pc.FailedDetectors
		pc.Logger.Warn().Str("error", res.Error).Msg("pipeline run failed")
		return res
	}

	candidates, ok := raw.([]pattern.Candidate)
	if !ok {
		return Fail[[]pattern.Candidate](
			fmt.Sprintf("context key %q holds %T, expected []pattern.Candidate", KeyCandidates, raw), elapsed)
	}

	res := Ok(candidates, elapsed)
	res.Warnings = pc.Warnings
	res.FailedDetectors = pc.FailedDetectors
	for _, e := range pc.Errors {
		res.Warnings = append(res.Warnings, fmt.Sprintf("stage %s failed: %s", e.Stage, e.Message))
	}

	pc.Logger.Info().
		Int("candidates", len(candidates)).
		Int("stage_errors", len(pc.Errors)).
		Int64("elapsed_ms", elapsed).
		Msg("pipeline run completed")
	return res
}
