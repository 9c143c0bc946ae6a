package scanner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wyckoff-trading-bot/config"
	"wyckoff-trading-bot/internal/analysis"
	"wyckoff-trading-bot/internal/circuit"
	"wyckoff-trading-bot/internal/events"
	"wyckoff-trading-bot/internal/market"
	"wyckoff-trading-bot/internal/pattern"
	"wyckoff-trading-bot/internal/pipeline"
	"wyckoff-trading-bot/internal/signal"
	"wyckoff-trading-bot/internal/validation"
)

type fakeProvider struct {
	bars map[string][]market.Bar
	errs map[string]error
}

func (p *fakeProvider) FetchHistoricalBars(_ context.Context, symbol string, _, _ time.Time, _ market.Timeframe) ([]market.Bar, error) {
	if err := p.errs[symbol]; err != nil {
		return nil, err
	}
	return p.bars[symbol], nil
}

func (p *fakeProvider) HealthCheck(context.Context) bool { return true }

type memRepo struct {
	mu         sync.Mutex
	signals    []*signal.TradeSignal
	rejections []*signal.RejectedSignal
}

func (r *memRepo) SaveSignal(_ context.Context, s *signal.TradeSignal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, s)
	return nil
}

func (r *memRepo) SaveRejection(_ context.Context, rej *signal.RejectedSignal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejections = append(r.rejections, rej)
	return nil
}

// fixedCandidateStage emits a fixed candidate set regardless of input,
// standing in for the full detection stack.
type fixedCandidateStage struct {
	candidates []pattern.Candidate
}

func (s fixedCandidateStage) Name() string { return pipeline.StagePatternDetection }

func (s fixedCandidateStage) Requires() []string { return []string{pipeline.KeyBars} }

func (s fixedCandidateStage) Provides() string { return pipeline.KeyCandidates }

func (s fixedCandidateStage) Execute(context.Context, *pipeline.Context) (any, error) {
	return s.candidates, nil
}

func scanBars() []market.Bar {
	bars := make([]market.Bar, 30)
	for i := range bars {
		bars[i] = market.Bar{
			Close:  decimal.NewFromInt(int64(100 + i%3)),
			Volume: 1000,
		}
	}
	return bars
}

func rptr(v float64) *float64 { return &v }

func testScannerConfig() config.ScannerConfig {
	return config.ScannerConfig{
		Enabled:         true,
		ScanIntervalSec: 300,
		Symbols:         []string{"AAPL"},
		Timeframe:       "1h",
		LookbackBars:    30,
	}
}

func testValConfig() config.ValidationConfig {
	th := config.VolumeThresholds{SpringMax: 0.7, SOSMin: 1.5, LPSLow: 0.5, LPSHigh: 1.5, UTADMin: 1.5}
	return config.ValidationConfig{
		Stock:              th,
		Forex:              th,
		AsianSessionFactor: 0.15,
		MinRMultiple:       2.0,
		MinConfidence:      70,
		LevelTolerance:     0.02,
		EnabledPatterns:    []string{"SPRING", "SOS", "LPS", "UTAD"},
	}
}

func newTestScanner(t *testing.T, cfg config.ScannerConfig, candidates []pattern.Candidate, provider market.DataProvider) (*Scanner, *signal.PriorityQueue, *memRepo) {
	t.Helper()

	breakers := circuit.NewRegistry(config.BreakerConfig{FailureThreshold: 3, CooldownSec: 60}, zerolog.Nop())
	coord := pipeline.NewCoordinator(
		[]pipeline.Stage{fixedCandidateStage{candidates: candidates}},
		breakers, nil,
		config.PipelineConfig{MaxConcurrency: 2, StageTimeoutSec: 30, MinBars: 1},
		zerolog.Nop())

	queue := signal.NewPriorityQueue(config.QueueConfig{
		ConfidenceWeight: 0.40, RMultipleWeight: 0.30, PatternWeight: 0.30,
		ConfidenceFloor: 70, ConfidenceCeil: 95,
		RMultipleFloor: 2.0, RMultipleCeil: 6.0,
	})
	repo := &memRepo{}

	sc := New(cfg, testValConfig(), Deps{
		Provider: provider,
		Pool:     pipeline.NewPool(coord, 2),
		Chain:    validation.NewChain(validation.NewStrategyRegistry(), zerolog.Nop()),
		Builder: signal.NewBuilder(signal.BuilderConfig{
			AccountEquity:   decimal.NewFromInt(10000),
			RiskPerTradePct: decimal.NewFromFloat(1.0),
		}),
		Queue:    queue,
		Repo:     repo,
		Bus:      events.NewBus(),
		Analyzer: analysis.NewVolumeAnalyzer(20),
		Logger:   zerolog.Nop(),
	})
	return sc, queue, repo
}

func TestScanRoutesSignalsAndRejections(t *testing.T) {
	candidates := []pattern.Candidate{
		{
			ID: "spring-1", Symbol: "AAPL", Type: pattern.Spring, Phase: pattern.PhaseC,
			VolumeRatio: rptr(0.5), PenetrationDepth: 0.01, RecoveryBars: 2,
			SupportLevel: 100, ResistanceLevel: 110, TriggerPrice: 99, Confidence: 85,
		},
		{
			ID: "sos-1", Symbol: "AAPL", Type: pattern.SOS, Phase: pattern.PhaseD,
			VolumeRatio: rptr(1.2), SupportLevel: 100, ResistanceLevel: 110,
			TriggerPrice: 111, Confidence: 80,
		},
	}
	provider := &fakeProvider{bars: map[string][]market.Bar{"AAPL": scanBars()}}
	sc, queue, repo := newTestScanner(t, testScannerConfig(), candidates, provider)

	result := sc.Scan(context.Background())

	require.NotNil(t, result)
	assert.Equal(t, 1, result.SymbolsScanned)
	assert.Equal(t, 2, result.Candidates)
	require.Len(t, result.Signals, 1)
	require.Len(t, result.Rejections, 1)

	assert.Equal(t, pattern.Spring, result.Signals[0].PatternType)
	assert.Equal(t, signal.StatusQueued, result.Signals[0].Status)

	rej := result.Rejections[0]
	assert.Equal(t, "sos-1", rej.PatternID)
	assert.Equal(t, "Volume", rej.RejectionStage)

	assert.Equal(t, 1, queue.Len())
	assert.Len(t, repo.signals, 1)
	assert.Len(t, repo.rejections, 1)
	assert.Same(t, result, sc.LastResult())
}

func TestScanRecordsFetchFailures(t *testing.T) {
	provider := &fakeProvider{errs: map[string]error{"AAPL": errors.New("feed down")}}
	sc, queue, repo := newTestScanner(t, testScannerConfig(), nil, provider)

	result := sc.Scan(context.Background())

	assert.Zero(t, result.SymbolsScanned)
	assert.Contains(t, result.FailedSymbols, "AAPL")
	assert.Empty(t, result.Signals)
	assert.Zero(t, queue.Len())
	assert.Empty(t, repo.signals)
}

// Symbols listed as forex get the session-tightened thresholds; the
// session comes from the bar's close time, so the same setup passes in
// London hours and fails during the Asian session.
func TestScanAppliesForexSessionThresholds(t *testing.T) {
	asian := time.Date(2026, 1, 5, 3, 0, 0, 0, time.UTC)
	london := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	mk := func(id string, barTime time.Time) pattern.Candidate {
		return pattern.Candidate{
			ID: id, Symbol: "EURUSD", Type: pattern.Spring, Phase: pattern.PhaseC,
			VolumeRatio: rptr(0.65), PenetrationDepth: 0.01, RecoveryBars: 2,
			SupportLevel: 100, ResistanceLevel: 110, TriggerPrice: 99, Confidence: 85,
			BarTime: barTime,
		}
	}

	cfg := testScannerConfig()
	cfg.Symbols = []string{"EURUSD"}
	cfg.ForexSymbols = []string{"EURUSD"}
	provider := &fakeProvider{bars: map[string][]market.Bar{"EURUSD": scanBars()}}
	sc, _, _ := newTestScanner(t, cfg,
		[]pattern.Candidate{mk("eu-asian", asian), mk("eu-london", london)}, provider)

	result := sc.Scan(context.Background())

	require.Len(t, result.Signals, 1)
	assert.Equal(t, "eu-london", result.Signals[0].Chain.PatternID)

	// 0.65 clears the base 0.7 max but not the Asian 0.595.
	require.Len(t, result.Rejections, 1)
	rej := result.Rejections[0]
	assert.Equal(t, "eu-asian", rej.PatternID)
	assert.Equal(t, "Volume", rej.RejectionStage)
	assert.Contains(t, rej.RejectionReason, "0.595")
}

func TestSessionFor(t *testing.T) {
	at := func(hour int) time.Time {
		return time.Date(2026, 1, 5, hour, 30, 0, 0, time.UTC)
	}
	assert.Equal(t, market.SessionAsian, sessionFor(at(3)))
	assert.Equal(t, market.SessionLondon, sessionFor(at(10)))
	assert.Equal(t, market.SessionOverlap, sessionFor(at(14)))
	assert.Equal(t, market.SessionNewYork, sessionFor(at(18)))
	assert.Equal(t, market.SessionAsian, sessionFor(at(23)))
}

func TestTimeframeDuration(t *testing.T) {
	assert.Equal(t, time.Hour, timeframeDuration("1h"))
	assert.Equal(t, 24*time.Hour, timeframeDuration("1d"))
	assert.Equal(t, time.Hour, timeframeDuration("unknown"))
}
