package signal

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"wyckoff-trading-bot/internal/validation"
)

// BuilderConfig sizes positions from fixed account equity and a risk
// percentage per trade.
type BuilderConfig struct {
	AccountEquity   decimal.Decimal
	RiskPerTradePct decimal.Decimal // e.g. 1.0 risks 1% of equity
}

// Builder converts a completed validation chain into exactly one of
// TradeSignal or RejectedSignal. Never both.
type Builder struct {
	cfg BuilderConfig
	now func() time.Time
}

// NewBuilder creates a signal builder.
func NewBuilder(cfg BuilderConfig) *Builder {
	return &Builder{cfg: cfg, now: time.Now}
}

// Build maps a chain result to its outcome. A passed chain yields a
// TradeSignal priced from the same plan the risk validator approved; a
// failed chain yields a RejectedSignal naming the stage and reason.
func (b *Builder) Build(vc validation.Context, result validation.ChainResult) (*TradeSignal, *RejectedSignal, error) {
	if !result.Passed {
		stage, reason, ok := result.FailedStage()
		if !ok {
			return nil, nil, fmt.Errorf("chain for %s not passed but carries no FAIL stage", result.PatternID)
		}
		return nil, &RejectedSignal{
			PatternID:       vc.Candidate.ID,
			Symbol:          vc.Symbol,
			PatternType:     vc.Candidate.Type,
			RejectionStage:  stage,
			RejectionReason: reason,
			Timestamp:       b.now(),
		}, nil
	}

	plan, err := validation.PlanTrade(vc.Candidate, vc.Config.LevelTolerance)
	if err != nil {
		return nil, nil, fmt.Errorf("passed chain but plan derivation failed for %s: %w", result.PatternID, err)
	}

	entry := decimal.NewFromFloat(plan.Entry)
	stop := decimal.NewFromFloat(plan.StopLoss)
	target := decimal.NewFromFloat(plan.Target)

	riskAmount := b.cfg.AccountEquity.
		Mul(b.cfg.RiskPerTradePct).
		Div(decimal.NewFromInt(100))

	riskPerUnit := entry.Sub(stop).Abs()
	var size decimal.Decimal
	if riskPerUnit.IsPositive() {
		size = riskAmount.DivRound(riskPerUnit, 8)
	}

	return &TradeSignal{
		ID:           uuid.NewString(),
		Symbol:       vc.Symbol,
		PatternType:  vc.Candidate.Type,
		Phase:        vc.Candidate.Phase,
		Direction:    plan.Direction,
		Entry:        entry,
		StopLoss:     stop,
		Target:       target,
		PositionSize: size,
		RiskAmount:   riskAmount,
		RMultiple:    plan.RMultiple(),
		Confidence:   vc.Candidate.Confidence,
		ConfidenceComponents: map[string]float64{
			"detector": vc.Candidate.Confidence,
		},
		Chain:     result,
		Status:    StatusPending,
		Timestamp: b.now(),
	}, nil, nil
}
