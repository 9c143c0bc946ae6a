package analysis

import (
	"wyckoff-trading-bot/internal/market"
)

// VolumeProfile is the snapshot of volume conditions on the most recent
// bar. It travels with the validation context so every validator sees
// the same numbers the detection stage saw.
type VolumeProfile struct {
	CurrentVolume  int64   `json:"current_volume"`
	AverageVolume  float64 `json:"average_volume"`
	VolumeRatio    float64 `json:"volume_ratio"`
	IsHighVolume   bool    `json:"is_high_volume"`   // ratio > 2x
	IsClimaxVolume bool    `json:"is_climax_volume"` // ratio > 3x
	OBV            float64 `json:"obv"`
	IsDryingUp     bool    `json:"is_drying_up"`
}

// VolumeAnalyzer computes volume statistics over a trailing window.
type VolumeAnalyzer struct {
	avgPeriod int
}

// NewVolumeAnalyzer creates an analyzer with the given trailing period.
func NewVolumeAnalyzer(avgPeriod int) *VolumeAnalyzer {
	if avgPeriod <= 0 {
		avgPeriod = 20
	}
	return &VolumeAnalyzer{avgPeriod: avgPeriod}
}

// Analyze produces a VolumeProfile for the last bar of the series.
// Returns nil on empty input so downstream stages can short-circuit.
func (va *VolumeAnalyzer) Analyze(bars []market.Bar) *VolumeProfile {
	if len(bars) == 0 {
		return nil
	}

	current := bars[len(bars)-1]
	avg := va.AverageVolume(bars)

	var ratio float64
	if avg > 0 {
		ratio = float64(current.Volume) / avg
	}

	return &VolumeProfile{
		CurrentVolume:  current.Volume,
		AverageVolume:  avg,
		VolumeRatio:    ratio,
		IsHighVolume:   ratio > 2.0,
		IsClimaxVolume: ratio > 3.0,
		OBV:            va.OBV(bars),
		IsDryingUp:     va.IsDryingUp(bars, va.avgPeriod),
	}
}

// AverageVolume averages volume over the trailing period, shrinking the
// window when fewer bars are available.
func (va *VolumeAnalyzer) AverageVolume(bars []market.Bar) float64 {
	if len(bars) == 0 {
		return 0
	}
	period := va.avgPeriod
	if len(bars) < period {
		period = len(bars)
	}
	var sum int64
	for i := len(bars) - period; i < len(bars); i++ {
		sum += bars[i].Volume
	}
	return float64(sum) / float64(period)
}

// OBV computes on-balance volume across the series.
func (va *VolumeAnalyzer) OBV(bars []market.Bar) float64 {
	obv := 0.0
	for i := 1; i < len(bars); i++ {
		switch {
		case bars[i].Close.GreaterThan(bars[i-1].Close):
			obv += float64(bars[i].Volume)
		case bars[i].Close.LessThan(bars[i-1].Close):
			obv -= float64(bars[i].Volume)
		}
	}
	return obv
}

// IsDryingUp reports whether volume is declining into the most recent
// bars, a precondition for spring setups.
func (va *VolumeAnalyzer) IsDryingUp(bars []market.Bar, period int) bool {
	if len(bars) < period || period < 2 {
		return false
	}
	recent := bars[len(bars)-period:]
	mid := period / 2

	var firstHalf, secondHalf float64
	for i := 0; i < mid; i++ {
		firstHalf += float64(recent[i].Volume)
	}
	for i := mid; i < period; i++ {
		secondHalf += float64(recent[i].Volume)
	}
	firstHalf /= float64(mid)
	secondHalf /= float64(period - mid)

	return secondHalf < firstHalf*0.7
}
