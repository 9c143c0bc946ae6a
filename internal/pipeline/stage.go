package pipeline

import (
	"context"
	"fmt"
	"time"
)

// Stage is one unit of analysis. Execute reads its inputs from the run
// context's Data map (the keys listed by Requires) and returns the
// value to store under Provides. Errors and panics never cross the
// stage boundary; Run converts them into failed results.
type Stage interface {
	Name() string
	Requires() []string
	Provides() string
	Execute(ctx context.Context, pc *Context) (any, error)
}

// missingRequirement returns the first required context key no
// upstream stage has provided.
func missingRequirement(pc *Context, stage Stage) (string, bool) {
	for _, key := range stage.Requires() {
		if _, ok := pc.Data[key]; !ok {
			return key, true
		}
	}
	return "", false
}

// Run executes a stage with timing, logging, and failure isolation. A
// stage invoked without a required upstream key fails fast with a
// descriptive error instead of operating on missing data.
func Run(ctx context.Context, pc *Context, stage Stage) (result Result[any]) {
	start := time.Now()
	log := pc.Logger.With().Str("stage", stage.Name()).Logger()
	log.Debug().Msg("stage started")

	defer func() {
		end := time.Now()
		pc.RecordTiming(stage.Name(), start, end)

		if r := recover(); r != nil {
			err := fmt.Errorf("stage %s panicked: %v", stage.Name(), r)
			pc.RecordError(stage.Name(), err)
			log.Error().Err(err).Msg("stage panicked")
			result = Fail[any](err.Error(), end.Sub(start).Milliseconds())
		}
	}()

	if key, missing := missingRequirement(pc, stage); missing {
		err := fmt.Errorf("stage %s requires context key %q which no upstream stage provided", stage.Name(), key)
		pc.RecordError(stage.Name(), err)
		log.Error().Err(err).Msg("stage missing required input")
		return Fail[any](err.Error(), time.Since(start).Milliseconds())
	}

	output, err := stage.Execute(ctx, pc)
	elapsed := time.Since(start)

	if err != nil {
		pc.RecordError(stage.Name(), err)
		log.Error().Err(err).Dur("elapsed", elapsed).Msg("stage failed")
		return Fail[any](err.Error(), elapsed.Milliseconds())
	}

	pc.Data[stage.Provides()] = output
	log.Debug().Dur("elapsed", elapsed).Msg("stage completed")
	return Ok(output, elapsed.Milliseconds())
}
