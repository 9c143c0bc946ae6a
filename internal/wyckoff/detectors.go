package wyckoff

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"wyckoff-trading-bot/internal/analysis"
	"wyckoff-trading-bot/internal/detector"
	"wyckoff-trading-bot/internal/market"
	"wyckoff-trading-bot/internal/pattern"
	"wyckoff-trading-bot/internal/pipeline"
)

// RegisterAll installs the built-in detectors into a loader. Range and
// phase detection are required; pattern detectors are optional so a
// broken one degrades coverage instead of killing the stage.
func RegisterAll(loader *detector.Loader) {
	loader.Register(pipeline.DetectorRange, "wyckoff/builtin", true, DetectRange, nil)
	loader.Register(pipeline.DetectorPhase, "wyckoff/builtin", true, DetectPhase, nil)
	loader.Register(pipeline.PatternDetectorName(pattern.Spring), "wyckoff/builtin", false, DetectSpring, nil)
	loader.Register(pipeline.PatternDetectorName(pattern.SOS), "wyckoff/builtin", false, DetectSOS, nil)
	loader.Register(pipeline.PatternDetectorName(pattern.LPS), "wyckoff/builtin", false, DetectLPS, nil)
	loader.Register(pipeline.PatternDetectorName(pattern.UTAD), "wyckoff/builtin", false, DetectUTAD, nil)
}

const rangeLookback = 50

// DetectRange finds the dominant trading range over the lookback window
// using rolling extremes. Real pivot clustering lives upstream; this is
// the reference implementation the pipeline ships with.
func DetectRange(_ context.Context, bars []market.Bar, _ map[string]any) (any, error) {
	if len(bars) < 2 {
		return []analysis.TradingRange{}, nil
	}

	window := bars
	if len(window) > rangeLookback {
		window = window[len(window)-rangeLookback:]
	}

	low := window[0].Low
	high := window[0].High
	for _, b := range window[1:] {
		if b.Low.LessThan(low) {
			low = b.Low
		}
		if b.High.GreaterThan(high) {
			high = b.High
		}
	}
	if !high.GreaterThan(low) {
		return []analysis.TradingRange{}, nil
	}

	support, _ := low.Float64()
	resistance, _ := high.Float64()
	return []analysis.TradingRange{{
		Support:    support,
		Resistance: resistance,
		StartIndex: len(bars) - len(window),
		EndIndex:   len(bars) - 1,
		Kind:       "accumulation",
	}}, nil
}

// DetectPhase estimates the Wyckoff phase from where price sits in the
// range and how volume behaves.
func DetectPhase(_ context.Context, bars []market.Bar, prior map[string]any) (any, error) {
	ranges, ok := prior[pipeline.KeyRanges].([]analysis.TradingRange)
	if !ok {
		return nil, fmt.Errorf("phase detection needs trading ranges")
	}
	if len(bars) == 0 || len(ranges) == 0 {
		return analysis.PhaseDetection{}, nil
	}

	tr := ranges[len(ranges)-1]
	last := bars[len(bars)-1]
	price, _ := last.Close.Float64()
	height := tr.Height()
	if height <= 0 {
		return analysis.PhaseDetection{}, nil
	}
	position := (price - tr.Support) / height

	var profile *analysis.VolumeProfile
	if vp, ok := prior[pipeline.KeyVolumeProfile].(*analysis.VolumeProfile); ok {
		profile = vp
	}

	switch {
	case position < 0:
		// Below support: shakeout territory.
		return analysis.PhaseDetection{Phase: string(pattern.PhaseC), Confidence: 75}, nil
	case position > 1:
		// Above resistance: markup or a distribution failure.
		if profile != nil && profile.IsClimaxVolume {
			return analysis.PhaseDetection{Phase: string(pattern.PhaseE), Confidence: 70}, nil
		}
		return analysis.PhaseDetection{Phase: string(pattern.PhaseD), Confidence: 72}, nil
	case position > 0.7:
		return analysis.PhaseDetection{Phase: string(pattern.PhaseD), Confidence: 68}, nil
	case position < 0.25 && profile != nil && profile.IsDryingUp:
		return analysis.PhaseDetection{Phase: string(pattern.PhaseC), Confidence: 70}, nil
	default:
		return analysis.PhaseDetection{Phase: string(pattern.PhaseB), Confidence: 60}, nil
	}
}

// detectionInputs extracts the shared inputs for pattern detectors.
func detectionInputs(bars []market.Bar, prior map[string]any) (market.Bar, analysis.TradingRange, pattern.Phase, bool) {
	ranges, ok := prior[pipeline.KeyRanges].([]analysis.TradingRange)
	if !ok || len(ranges) == 0 || len(bars) == 0 {
		return market.Bar{}, analysis.TradingRange{}, "", false
	}
	phase := pattern.PhaseB
	if pd, ok := prior[pipeline.KeyPhase].(analysis.PhaseDetection); ok && pd.Phase != "" {
		phase = pattern.Phase(pd.Phase)
	}
	return bars[len(bars)-1], ranges[len(ranges)-1], phase, true
}

func newCandidate(t pattern.Type, bar market.Bar, tr analysis.TradingRange, phase pattern.Phase, barIndex int, confidence float64) pattern.Candidate {
	ratio := bar.VolumeRatio
	return pattern.Candidate{
		ID:              uuid.NewString(),
		Symbol:          bar.Symbol,
		Timeframe:       string(bar.Timeframe),
		Type:            t,
		Phase:           phase,
		BarIndex:        barIndex,
		BarTime:         bar.CloseTime,
		VolumeRatio:     &ratio,
		SupportLevel:    tr.Support,
		ResistanceLevel: tr.Resistance,
		Confidence:      confidence,
		DetectedAt:      time.Now(),
	}
}

// DetectSpring looks for a dip below support that closed back inside
// the range on the most recent bars.
func DetectSpring(_ context.Context, bars []market.Bar, prior map[string]any) (any, error) {
	last, tr, phase, ok := detectionInputs(bars, prior)
	if !ok {
		return []pattern.Candidate{}, nil
	}

	low, _ := last.Low.Float64()
	closePx, _ := last.Close.Float64()
	if low >= tr.Support || closePx <= tr.Support {
		return []pattern.Candidate{}, nil
	}

	c := newCandidate(pattern.Spring, last, tr, phase, len(bars)-1, 78)
	c.PenetrationDepth = (tr.Support - low) / tr.Support
	c.RecoveryBars = 1
	c.TriggerPrice = low
	return []pattern.Candidate{c}, nil
}

// DetectSOS looks for a close above resistance.
func DetectSOS(_ context.Context, bars []market.Bar, prior map[string]any) (any, error) {
	last, tr, phase, ok := detectionInputs(bars, prior)
	if !ok {
		return []pattern.Candidate{}, nil
	}

	closePx, _ := last.Close.Float64()
	if closePx <= tr.Resistance {
		return []pattern.Candidate{}, nil
	}

	c := newCandidate(pattern.SOS, last, tr, phase, len(bars)-1, 75)
	c.TriggerPrice = closePx
	return []pattern.Candidate{c}, nil
}

// DetectLPS looks for a shallow pullback holding just above support
// after strength.
func DetectLPS(_ context.Context, bars []market.Bar, prior map[string]any) (any, error) {
	last, tr, phase, ok := detectionInputs(bars, prior)
	if !ok {
		return []pattern.Candidate{}, nil
	}

	low, _ := last.Low.Float64()
	closePx, _ := last.Close.Float64()
	if low < tr.Support || closePx > tr.Support*1.04 || !last.IsBullish() {
		return []pattern.Candidate{}, nil
	}

	c := newCandidate(pattern.LPS, last, tr, phase, len(bars)-1, 72)
	c.TriggerPrice = closePx
	return []pattern.Candidate{c}, nil
}

// DetectUTAD looks for a poke above resistance that closed back inside
// the range.
func DetectUTAD(_ context.Context, bars []market.Bar, prior map[string]any) (any, error) {
	last, tr, phase, ok := detectionInputs(bars, prior)
	if !ok {
		return []pattern.Candidate{}, nil
	}

	high, _ := last.High.Float64()
	closePx, _ := last.Close.Float64()
	if high <= tr.Resistance || closePx >= tr.Resistance {
		return []pattern.Candidate{}, nil
	}

	c := newCandidate(pattern.UTAD, last, tr, phase, len(bars)-1, 74)
	c.PenetrationDepth = (high - tr.Resistance) / tr.Resistance
	c.RecoveryBars = 1
	c.TriggerPrice = high
	return []pattern.Candidate{c}, nil
}
