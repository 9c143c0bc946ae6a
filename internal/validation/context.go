package validation

import (
	"time"

	"wyckoff-trading-bot/config"
	"wyckoff-trading-bot/internal/analysis"
	"wyckoff-trading-bot/internal/market"
	"wyckoff-trading-bot/internal/pattern"
)

// Status is the outcome of a single validator stage.
type Status string

const (
	StatusPass Status = "PASS"
	StatusFail Status = "FAIL"
	StatusWarn Status = "WARN"
)

// StageResult is one validator's verdict with its audit payload.
type StageResult struct {
	Stage    string         `json:"stage"`
	Status   Status         `json:"status"`
	Reason   string         `json:"reason,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ChainResult is the ordered audit trail of one validation run. Stages
// after the first FAIL are never executed and never appear in Stages.
type ChainResult struct {
	PatternID string        `json:"pattern_id"`
	Stages    []StageResult `json:"stages"`
	Passed    bool          `json:"passed"`
}

// FailedStage returns the name and reason of the failing stage, if any.
func (r ChainResult) FailedStage() (string, string, bool) {
	for _, s := range r.Stages {
		if s.Status == StatusFail {
			return s.Stage, s.Reason, true
		}
	}
	return "", "", false
}

// Warnings collects WARN reasons across executed stages.
func (r ChainResult) Warnings() []string {
	var out []string
	for _, s := range r.Stages {
		if s.Status == StatusWarn {
			out = append(out, s.Stage+": "+s.Reason)
		}
	}
	return out
}

// MarketContext carries ambient market conditions relevant to
// validation, e.g. scheduled news events.
type MarketContext struct {
	NewsEvents     []string  `json:"news_events,omitempty"`
	HighImpactNews bool      `json:"high_impact_news"`
	AsOf           time.Time `json:"as_of"`
}

// Context is the immutable input to one validation chain run. Validators
// read it; none of them may mutate it.
type Context struct {
	Candidate     pattern.Candidate
	VolumeProfile *analysis.VolumeProfile
	AssetClass    market.AssetClass
	ForexSession  market.ForexSession // meaningful only for AssetForex
	Market        *MarketContext
	Symbol        string
	Timeframe     string
	Config        config.ValidationConfig
}
