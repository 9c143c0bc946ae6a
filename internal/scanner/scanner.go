package scanner

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"wyckoff-trading-bot/config"
	"wyckoff-trading-bot/internal/analysis"
	"wyckoff-trading-bot/internal/events"
	"wyckoff-trading-bot/internal/logging"
	"wyckoff-trading-bot/internal/market"
	"wyckoff-trading-bot/internal/pipeline"
	"wyckoff-trading-bot/internal/signal"
	"wyckoff-trading-bot/internal/validation"
)

// ScanResult summarizes one full scan cycle across the universe.
type ScanResult struct {
	ScanID         string                   `json:"scan_id"`
	StartTime      time.Time                `json:"start_time"`
	EndTime        time.Time                `json:"end_time"`
	SymbolsScanned int                      `json:"symbols_scanned"`
	Candidates     int                      `json:"candidates"`
	Signals        []*signal.TradeSignal    `json:"signals"`
	Rejections     []*signal.RejectedSignal `json:"rejections"`
	FailedSymbols  []string                 `json:"failed_symbols,omitempty"`
}

// Scanner drives the full flow on a schedule: fetch bars, run the
// analysis pipeline per symbol through the worker pool, validate each
// candidate, and route outcomes to the queue, repository, and bus.
type Scanner struct {
	provider market.DataProvider
	pool     *pipeline.Pool
	chain    *validation.Chain
	builder  *signal.Builder
	queue    *signal.PriorityQueue
	repo     signal.Repository
	bus      *events.Bus
	cfg      config.ScannerConfig
	valCfg   config.ValidationConfig
	analyzer *analysis.VolumeAnalyzer
	forex    map[string]bool
	logger   zerolog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup

	mu         sync.RWMutex
	lastResult *ScanResult
}

// Deps bundles the scanner's collaborators.
type Deps struct {
	Provider market.DataProvider
	Pool     *pipeline.Pool
	Chain    *validation.Chain
	Builder  *signal.Builder
	Queue    *signal.PriorityQueue
	Repo     signal.Repository
	Bus      *events.Bus
	Analyzer *analysis.VolumeAnalyzer
	Logger   zerolog.Logger
}

// New creates a scanner.
func New(cfg config.ScannerConfig, valCfg config.ValidationConfig, deps Deps) *Scanner {
	forex := make(map[string]bool, len(cfg.ForexSymbols))
	for _, symbol := range cfg.ForexSymbols {
		forex[symbol] = true
	}
	return &Scanner{
		provider: deps.Provider,
		pool:     deps.Pool,
		chain:    deps.Chain,
		builder:  deps.Builder,
		queue:    deps.Queue,
		repo:     deps.Repo,
		bus:      deps.Bus,
		analyzer: deps.Analyzer,
		cfg:      cfg,
		valCfg:   valCfg,
		forex:    forex,
		logger:   deps.Logger.With().Str("component", "scanner").Logger(),
		stopCh:   make(chan struct{}),
	}
}

// Start launches the background scan loop.
func (s *Scanner) Start(ctx context.Context) {
	if !s.cfg.Enabled {
		s.logger.Info().Msg("scanner disabled")
		return
	}
	s.wg.Add(1)
	go s.loop(ctx)
	s.logger.Info().
		Int("symbols", len(s.cfg.Symbols)).
		Int("interval_sec", s.cfg.ScanIntervalSec).
		Msg("scanner started")
}

// Stop shuts the loop down and waits for the in-flight scan.
func (s *Scanner) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info().Msg("scanner stopped")
}

// LastResult returns the most recent scan summary.
func (s *Scanner) LastResult() *ScanResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastResult
}

func (s *Scanner) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Duration(s.cfg.ScanIntervalSec) * time.Second)
	defer ticker.Stop()

	s.Scan(ctx)

	for {
		select {
		case <-ticker.C:
			s.Scan(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Scan runs one full cycle. Also callable directly for manual scans.
func (s *Scanner) Scan(ctx context.Context) *ScanResult {
	start := time.Now()
	result := &ScanResult{
		ScanID:    "scan-" + start.UTC().Format("20060102T150405"),
		StartTime: start,
	}

	timeframe := market.Timeframe(s.cfg.Timeframe)
	end := time.Now()
	lookback := end.Add(-time.Duration(s.cfg.LookbackBars) * timeframeDuration(timeframe))

	barsBySymbol := make(map[string][]market.Bar, len(s.cfg.Symbols))
	for _, symbol := range s.cfg.Symbols {
		bars, err := s.provider.FetchHistoricalBars(ctx, symbol, lookback, end, timeframe)
		if err != nil {
			s.logger.Warn().Err(err).Str("symbol", symbol).Msg("bar fetch failed")
			result.FailedSymbols = append(result.FailedSymbols, symbol)
			continue
		}
		barsBySymbol[symbol] = bars
	}
	result.SymbolsScanned = len(barsBySymbol)

	for _, sr := range s.pool.RunAll(ctx, s.cfg.Timeframe, barsBySymbol) {
		if !sr.Result.Success {
			result.FailedSymbols = append(result.FailedSymbols, sr.Symbol)
			s.bus.Publish(events.Event{
				Type: events.EventPipelineFailed,
				Data: map[string]any{"symbol": sr.Symbol, "error": sr.Result.Error},
			})
			continue
		}
		result.Candidates += len(sr.Result.Output)
		s.processCandidates(ctx, sr.Symbol, barsBySymbol[sr.Symbol], sr, result)
	}

	result.EndTime = time.Now()

	s.mu.Lock()
	s.lastResult = result
	s.mu.Unlock()

	s.bus.Publish(events.Event{
		Type: events.EventScanCompleted,
		Data: map[string]any{
			"scan_id":    result.ScanID,
			"symbols":    result.SymbolsScanned,
			"candidates": result.Candidates,
			"signals":    len(result.Signals),
			"rejections": len(result.Rejections),
		},
	})
	s.logger.Info().
		Str("scan_id", result.ScanID).
		Dur("elapsed", result.EndTime.Sub(result.StartTime)).
		Int("candidates", result.Candidates).
		Int("signals", len(result.Signals)).
		Int("rejections", len(result.Rejections)).
		Msg("scan completed")
	return result
}

func (s *Scanner) processCandidates(ctx context.Context, symbol string, bars []market.Bar, sr pipeline.SymbolResult, result *ScanResult) {
	profile := s.analyzer.Analyze(bars)

	assetClass := market.AssetStock
	if s.forex[symbol] {
		assetClass = market.AssetForex
	}

	for _, candidate := range sr.Result.Output {
		var session market.ForexSession
		if assetClass == market.AssetForex {
			// Session is judged at the bar's close, not at scan time:
			// a pattern printed during the Asian session keeps its
			// tightened thresholds however late the scan runs.
			at := candidate.BarTime
			if at.IsZero() {
				at = time.Now()
			}
			session = sessionFor(at)
		}

		vc := validation.Context{
			Candidate:     candidate,
			VolumeProfile: profile,
			AssetClass:    assetClass,
			ForexSession:  session,
			Symbol:        symbol,
			Timeframe:     s.cfg.Timeframe,
			Config:        s.valCfg,
		}

		chainResult := s.chain.Run(vc)
		ts, rej, err := s.builder.Build(vc, chainResult)
		if err != nil {
			s.logger.Error().Err(err).Str("pattern_id", candidate.ID).Msg("outcome mapping failed")
			continue
		}

		vlog := logging.ValidationLogger(s.logger, candidate.ID, symbol, string(candidate.Type))
		if rej != nil {
			result.Rejections = append(result.Rejections, rej)
			s.bus.PublishSignalRejected(rej.PatternID, rej.Symbol, string(rej.PatternType),
				rej.RejectionStage, rej.RejectionReason)
			if err := s.repo.SaveRejection(ctx, rej); err != nil {
				vlog.Error().Err(err).Msg("persisting rejection failed")
			}
			continue
		}

		score := s.queue.Push(ts)
		result.Signals = append(result.Signals, ts)
		s.bus.PublishSignalValidated(ts.ID, ts.Symbol, string(ts.PatternType), score.Score)
		if err := s.repo.SaveSignal(ctx, ts); err != nil {
			vlog.Error().Err(err).Msg("persisting signal failed")
		}
		vlog.Info().Float64("priority_score", score.Score).Msg("signal queued")
	}
}

// sessionFor maps a UTC timestamp onto the dominant forex session.
// The boundaries are coarse hour buckets; only the Asian bucket
// changes validation behavior.
func sessionFor(t time.Time) market.ForexSession {
	switch h := t.UTC().Hour(); {
	case h < 7:
		return market.SessionAsian
	case h < 12:
		return market.SessionLondon
	case h < 16:
		return market.SessionOverlap
	case h < 21:
		return market.SessionNewYork
	default:
		return market.SessionAsian
	}
}

// timeframeDuration maps common timeframe strings onto durations for
// lookback arithmetic.
func timeframeDuration(tf market.Timeframe) time.Duration {
	switch tf {
	case "1m":
		return time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "1h":
		return time.Hour
	case "4h":
		return 4 * time.Hour
	case "1d":
		return 24 * time.Hour
	default:
		return time.Hour
	}
}
