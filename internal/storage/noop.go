package storage

import (
	"context"

	"github.com/rs/zerolog"

	"wyckoff-trading-bot/internal/signal"
)

// LogRepository is the signal.Repository used when no database is
// configured: outcomes are logged and dropped.
type LogRepository struct {
	logger zerolog.Logger
}

// NewLogRepository creates a log-only repository.
func NewLogRepository(logger zerolog.Logger) *LogRepository {
	return &LogRepository{logger: logger.With().Str("component", "storage").Logger()}
}

func (r *LogRepository) SaveSignal(_ context.Context, s *signal.TradeSignal) error {
	r.logger.Info().
		Str("signal_id", s.ID).
		Str("symbol", s.Symbol).
		Str("pattern_type", string(s.PatternType)).
		Float64("r_multiple", s.RMultiple).
		Msg("trade signal (not persisted: database disabled)")
	return nil
}

func (r *LogRepository) SaveRejection(_ context.Context, rej *signal.RejectedSignal) error {
	r.logger.Info().
		Str("pattern_id", rej.PatternID).
		Str("symbol", rej.Symbol).
		Str("stage", rej.RejectionStage).
		Str("reason", rej.RejectionReason).
		Msg("signal rejected (not persisted: database disabled)")
	return nil
}
