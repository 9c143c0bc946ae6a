package market

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Timeframe identifies the bar interval (e.g. "5m", "1h", "1d").
type Timeframe string

// Bar represents a single OHLCV price bar. Prices are fixed-point
// decimals; VolumeRatio and SpreadRatio are precomputed by the
// upstream volume-analysis collaborator relative to a trailing window.
type Bar struct {
	Symbol      string          `json:"symbol"`
	Timeframe   Timeframe       `json:"timeframe"`
	OpenTime    time.Time       `json:"open_time"`
	CloseTime   time.Time       `json:"close_time"`
	Open        decimal.Decimal `json:"open"`
	High        decimal.Decimal `json:"high"`
	Low         decimal.Decimal `json:"low"`
	Close       decimal.Decimal `json:"close"`
	Volume      int64           `json:"volume"`
	VolumeRatio float64         `json:"volume_ratio"`
	SpreadRatio float64         `json:"spread_ratio"`
}

// IsBullish reports whether the bar closed above its open.
func (b Bar) IsBullish() bool {
	return b.Close.GreaterThan(b.Open)
}

// Range returns high minus low.
func (b Bar) Range() decimal.Decimal {
	return b.High.Sub(b.Low)
}

// Body returns the absolute open-to-close distance.
func (b Bar) Body() decimal.Decimal {
	return b.Close.Sub(b.Open).Abs()
}

// DataProvider supplies historical bars. Implemented by network
// providers elsewhere; the pipeline only depends on this contract.
type DataProvider interface {
	FetchHistoricalBars(ctx context.Context, symbol string, start, end time.Time, timeframe Timeframe) ([]Bar, error)
	HealthCheck(ctx context.Context) bool
}

// AssetClass distinguishes instruments whose liquidity baselines differ.
type AssetClass string

const (
	AssetStock AssetClass = "STOCK"
	AssetForex AssetClass = "FOREX"
)

// ForexSession identifies the active trading session for forex symbols.
// Asian sessions carry lower baseline liquidity and stricter volume
// thresholds.
type ForexSession string

const (
	SessionAsian   ForexSession = "ASIAN"
	SessionLondon  ForexSession = "LONDON"
	SessionOverlap ForexSession = "OVERLAP"
	SessionNewYork ForexSession = "NY"
)
