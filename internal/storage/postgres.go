package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"wyckoff-trading-bot/config"
	"wyckoff-trading-bot/internal/signal"
)

// PostgresRepository persists signals and rejections to PostgreSQL.
// It implements signal.Repository; the pipeline itself never touches
// the database.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPostgresRepository connects a pool and ensures the schema exists.
func NewPostgresRepository(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*PostgresRepository, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConn
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.HealthCheckPeriod = time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	repo := &PostgresRepository{
		pool:   pool,
		logger: logger.With().Str("component", "storage").Logger(),
	}
	if err := repo.migrate(connectCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return repo, nil
}

func (r *PostgresRepository) migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS trade_signals (
	id            TEXT PRIMARY KEY,
	symbol        TEXT NOT NULL,
	pattern_type  TEXT NOT NULL,
	phase         TEXT NOT NULL,
	direction     TEXT NOT NULL,
	entry         NUMERIC NOT NULL,
	stop_loss     NUMERIC NOT NULL,
	target        NUMERIC NOT NULL,
	position_size NUMERIC NOT NULL,
	risk_amount   NUMERIC NOT NULL,
	r_multiple    DOUBLE PRECISION NOT NULL,
	confidence    DOUBLE PRECISION NOT NULL,
	chain         JSONB NOT NULL,
	status        TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS rejected_signals (
	pattern_id       TEXT NOT NULL,
	symbol           TEXT NOT NULL,
	pattern_type     TEXT NOT NULL,
	rejection_stage  TEXT NOT NULL,
	rejection_reason TEXT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trade_signals_symbol ON trade_signals (symbol, created_at);
CREATE INDEX IF NOT EXISTS idx_rejected_signals_symbol ON rejected_signals (symbol, created_at);`

	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("applying signal schema: %w", err)
	}
	return nil
}

// SaveSignal stores a validated trade signal with its audit chain.
func (r *PostgresRepository) SaveSignal(ctx context.Context, s *signal.TradeSignal) error {
	chain, err := json.Marshal(s.Chain)
	if err != nil {
		return fmt.Errorf("encoding validation chain: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO trade_signals
			(id, symbol, pattern_type, phase, direction, entry, stop_loss, target,
			 position_size, risk_amount, r_multiple, confidence, chain, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		s.ID, s.Symbol, string(s.PatternType), string(s.Phase), string(s.Direction),
		s.Entry, s.StopLoss, s.Target, s.PositionSize, s.RiskAmount,
		s.RMultiple, s.Confidence, chain, string(s.Status), s.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("inserting trade signal %s: %w", s.ID, err)
	}
	return nil
}

// SaveRejection stores a structured rejection.
func (r *PostgresRepository) SaveRejection(ctx context.Context, rej *signal.RejectedSignal) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO rejected_signals
			(pattern_id, symbol, pattern_type, rejection_stage, rejection_reason, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		rej.PatternID, rej.Symbol, string(rej.PatternType),
		rej.RejectionStage, rej.RejectionReason, rej.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("inserting rejection for %s: %w", rej.PatternID, err)
	}
	return nil
}

// Close releases the connection pool.
func (r *PostgresRepository) Close() {
	r.pool.Close()
}
