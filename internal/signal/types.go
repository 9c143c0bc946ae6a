package signal

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"wyckoff-trading-bot/internal/pattern"
	"wyckoff-trading-bot/internal/validation"
)

// Status tracks a signal through its lifecycle.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusQueued   Status = "QUEUED"
	StatusExecuted Status = "EXECUTED"
	StatusExpired  Status = "EXPIRED"
)

// TradeSignal is a fully validated, executable trading signal. Prices
// are fixed-point decimals; the embedded chain result is the complete
// audit trail that admitted it.
type TradeSignal struct {
	ID          string               `json:"id"`
	Symbol      string               `json:"symbol"`
	PatternType pattern.Type         `json:"pattern_type"`
	Phase       pattern.Phase        `json:"phase"`
	Direction   validation.Direction `json:"direction"`

	Entry        decimal.Decimal `json:"entry"`
	StopLoss     decimal.Decimal `json:"stop_loss"`
	Target       decimal.Decimal `json:"target"`
	PositionSize decimal.Decimal `json:"position_size"`
	RiskAmount   decimal.Decimal `json:"risk_amount"`
	RMultiple    float64         `json:"r_multiple"`

	Confidence           float64            `json:"confidence"`
	ConfidenceComponents map[string]float64 `json:"confidence_components,omitempty"`

	Chain     validation.ChainResult `json:"validation_chain"`
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
}

// RejectedSignal records a candidate that failed validation. Rejections
// are a first-class output, not an error condition.
type RejectedSignal struct {
	PatternID       string       `json:"pattern_id"`
	Symbol          string       `json:"symbol"`
	PatternType     pattern.Type `json:"pattern_type"`
	RejectionStage  string       `json:"rejection_stage"`
	RejectionReason string       `json:"rejection_reason"`
	Timestamp       time.Time    `json:"timestamp"`
}

// Repository persists validated and rejected signals. Implemented by
// the storage layer; the pipeline only depends on this contract.
type Repository interface {
	SaveSignal(ctx context.Context, s *TradeSignal) error
	SaveRejection(ctx context.Context, r *RejectedSignal) error
}
