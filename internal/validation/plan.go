package validation

import (
	"fmt"

	"wyckoff-trading-bot/internal/pattern"
)

// Direction of the trade a pattern sets up.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// TradePlan is the entry/stop/target geometry derived from a candidate.
// The risk validator judges it and the signal builder reuses it, so the
// two always agree on the same numbers.
type TradePlan struct {
	Direction Direction
	Entry     float64
	StopLoss  float64
	Target    float64
}

// RMultiple is reward distance over risk distance from entry.
func (p TradePlan) RMultiple() float64 {
	risk := p.Entry - p.StopLoss
	reward := p.Target - p.Entry
	if p.Direction == DirectionShort {
		risk = p.StopLoss - p.Entry
		reward = p.Entry - p.Target
	}
	if risk <= 0 {
		return 0
	}
	return reward / risk
}

// StopIsProtective reports whether the stop sits on the losing side of
// the entry for the trade direction.
func (p TradePlan) StopIsProtective() bool {
	if p.Direction == DirectionShort {
		return p.StopLoss > p.Entry
	}
	return p.StopLoss < p.Entry
}

// PlanTrade derives the canonical trade geometry for a candidate from
// the levels its detector reported.
func PlanTrade(c pattern.Candidate, levelTolerance float64) (TradePlan, error) {
	switch c.Type {
	case pattern.Spring:
		if c.SupportLevel <= 0 || c.ResistanceLevel <= 0 {
			return TradePlan{}, fmt.Errorf("SPRING plan needs support and resistance, got %.4f/%.4f",
				c.SupportLevel, c.ResistanceLevel)
		}
		return TradePlan{
			Direction: DirectionLong,
			Entry:     c.SupportLevel,
			StopLoss:  c.TriggerPrice * (1 - levelTolerance),
			Target:    c.ResistanceLevel,
		}, nil

	case pattern.LPS:
		if c.SupportLevel <= 0 || c.ResistanceLevel <= 0 {
			return TradePlan{}, fmt.Errorf("LPS plan needs support and resistance, got %.4f/%.4f",
				c.SupportLevel, c.ResistanceLevel)
		}
		return TradePlan{
			Direction: DirectionLong,
			Entry:     c.TriggerPrice,
			StopLoss:  c.SupportLevel * (1 - levelTolerance),
			Target:    c.ResistanceLevel,
		}, nil

	case pattern.SOS:
		if c.ResistanceLevel <= 0 {
			return TradePlan{}, fmt.Errorf("SOS plan needs a resistance level")
		}
		stop := c.ResistanceLevel * (1 - levelTolerance)
		target := c.TriggerPrice + (c.ResistanceLevel - c.SupportLevel)
		if c.SupportLevel <= 0 {
			// No measured move available; project from risk distance.
			target = c.TriggerPrice + 2.5*(c.TriggerPrice-stop)
		}
		return TradePlan{
			Direction: DirectionLong,
			Entry:     c.TriggerPrice,
			StopLoss:  stop,
			Target:    target,
		}, nil

	case pattern.UTAD:
		if c.SupportLevel <= 0 || c.ResistanceLevel <= 0 {
			return TradePlan{}, fmt.Errorf("UTAD plan needs support and resistance, got %.4f/%.4f",
				c.SupportLevel, c.ResistanceLevel)
		}
		return TradePlan{
			Direction: DirectionShort,
			Entry:     c.ResistanceLevel,
			StopLoss:  c.TriggerPrice * (1 + levelTolerance),
			Target:    c.SupportLevel,
		}, nil

	default:
		return TradePlan{}, fmt.Errorf("pattern type %s is not tradeable", c.Type)
	}
}
