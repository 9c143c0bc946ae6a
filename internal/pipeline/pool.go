package pipeline

import (
	"context"
	"sync"

	"wyckoff-trading-bot/internal/market"
	"wyckoff-trading-bot/internal/pattern"
)

// SymbolResult pairs one symbol with its pipeline run outcome.
type SymbolResult struct {
	Symbol string
	Result Result[[]pattern.Candidate]
}

// Pool fans symbol runs out over a bounded worker set. Each run gets
// its own fresh context inside the coordinator; no pipeline state is
// shared between symbols. No cross-symbol ordering is guaranteed;
// the signal priority queue is where ordering is imposed.
type Pool struct {
	coordinator *Coordinator
	workers     int
}

// NewPool creates a worker pool over the coordinator.
func NewPool(coordinator *Coordinator, workers int) *Pool {
	if workers <= 0 {
		workers = 10
	}
	return &Pool{coordinator: coordinator, workers: workers}
}

// RunAll processes every symbol's bars concurrently and returns one
// result per symbol. A failing symbol never aborts its siblings.
func (p *Pool) RunAll(ctx context.Context, timeframe string, barsBySymbol map[string][]market.Bar) []SymbolResult {
	symbolCh := make(chan string, len(barsBySymbol))
	resultCh := make(chan SymbolResult, len(barsBySymbol))

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for symbol := range symbolCh {
				select {
				case <-ctx.Done():
					return
				default:
				}
				resultCh <- SymbolResult{
					Symbol: symbol,
					Result: p.coordinator.RunPipeline(ctx, symbol, timeframe, barsBySymbol[symbol]),
				}
			}
		}()
	}

	for symbol := range barsBySymbol {
		symbolCh <- symbol
	}
	close(symbolCh)

	wg.Wait()
	close(resultCh)

	results := make([]SymbolResult, 0, len(barsBySymbol))
	for r := range resultCh {
		results = append(results, r)
	}
	return results
}
