package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"wyckoff-trading-bot/config"
	"wyckoff-trading-bot/internal/analysis"
	"wyckoff-trading-bot/internal/api"
	"wyckoff-trading-bot/internal/cache"
	"wyckoff-trading-bot/internal/circuit"
	"wyckoff-trading-bot/internal/detector"
	"wyckoff-trading-bot/internal/events"
	"wyckoff-trading-bot/internal/logging"
	"wyckoff-trading-bot/internal/market"
	"wyckoff-trading-bot/internal/pattern"
	"wyckoff-trading-bot/internal/pipeline"
	"wyckoff-trading-bot/internal/scanner"
	sig "wyckoff-trading-bot/internal/signal"
	"wyckoff-trading-bot/internal/storage"
	"wyckoff-trading-bot/internal/validation"
	"wyckoff-trading-bot/internal/wyckoff"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(&logging.Config{
		Level:      cfg.LoggingConfig.Level,
		Output:     cfg.LoggingConfig.Output,
		JSONFormat: cfg.LoggingConfig.JSONFormat,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	logger.Info().Msg("configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus()

	// Detector registry with the built-in Wyckoff detectors.
	loader := detector.NewLoader(logger)
	wyckoff.RegisterAll(loader)
	health := loader.HealthStatus()
	logger.Info().
		Int("loaded", health.Loaded).
		Int("failed", health.Failed).
		Str("status", string(health.Status())).
		Msg("detectors registered")

	// Stage snapshot cache: Redis-backed when configured, in-memory
	// TTL+LRU otherwise.
	var snapshots cache.SnapshotCache
	if cfg.RedisConfig.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisConfig.Addr,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
		})
		snapshots = cache.NewRedisStageCache(client, time.Duration(cfg.CacheConfig.TTLSec)*time.Second, logger)
		logger.Info().Str("addr", cfg.RedisConfig.Addr).Msg("redis stage cache enabled")
	} else {
		snapshots = cache.NewStageCache(cfg.CacheConfig.MaxEntries, time.Duration(cfg.CacheConfig.TTLSec)*time.Second)
	}

	breakers := circuit.NewRegistry(cfg.BreakerConfig, logger)

	analyzer := analysis.NewVolumeAnalyzer(20)
	enabled := make([]pattern.Type, 0, len(cfg.ValidationConfig.EnabledPatterns))
	for _, name := range cfg.ValidationConfig.EnabledPatterns {
		t, err := pattern.Parse(name)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid enabled pattern in configuration")
		}
		enabled = append(enabled, t)
	}

	stages := []pipeline.Stage{
		pipeline.NewVolumeAnalysisStage(analyzer),
		pipeline.NewRangeDetectionStage(loader),
		pipeline.NewPhaseDetectionStage(loader),
		pipeline.NewPatternDetectionStage(loader, enabled),
	}
	coordinator := pipeline.NewCoordinator(stages, breakers, snapshots, cfg.PipelineConfig, logger)
	pool := pipeline.NewPool(coordinator, cfg.PipelineConfig.MaxConcurrency)

	registry := validation.NewStrategyRegistry()
	chain := validation.NewChain(registry, logger)
	builder := sig.NewBuilder(sig.BuilderConfig{
		AccountEquity:   decimal.NewFromFloat(cfg.SignalConfig.AccountEquity),
		RiskPerTradePct: decimal.NewFromFloat(cfg.SignalConfig.RiskPerTradePct),
	})
	queue := sig.NewPriorityQueue(cfg.QueueConfig)

	// Persistence: PostgreSQL when configured, log-only otherwise.
	var repo sig.Repository
	if cfg.DatabaseConfig.Enabled {
		pg, err := storage.NewPostgresRepository(ctx, cfg.DatabaseConfig, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("database connection failed")
		}
		defer pg.Close()
		repo = pg
		logger.Info().Msg("postgres signal repository enabled")
	} else {
		repo = storage.NewLogRepository(logger)
	}

	// Market data: the websocket stream feeds the bar buffer the
	// scanner reads from.
	var provider market.DataProvider
	scannerCfg := cfg.ScannerConfig
	if cfg.MarketDataConfig.WebSocketURL != "" {
		ws := market.NewWSProvider(
			cfg.MarketDataConfig.WebSocketURL,
			time.Duration(cfg.MarketDataConfig.ReconnectSec)*time.Second,
			time.Duration(cfg.MarketDataConfig.PingSec)*time.Second,
			logger,
		)
		ws.Start(ctx, scannerCfg.Symbols, market.Timeframe(scannerCfg.Timeframe))
		defer ws.Stop()
		provider = ws
	} else {
		logger.Warn().Msg("no market data websocket configured, scanner disabled")
		scannerCfg.Enabled = false
	}

	sc := scanner.New(scannerCfg, cfg.ValidationConfig, scanner.Deps{
		Provider: provider,
		Pool:     pool,
		Chain:    chain,
		Builder:  builder,
		Queue:    queue,
		Repo:     repo,
		Bus:      bus,
		Analyzer: analyzer,
		Logger:   logger,
	})
	sc.Start(ctx)

	var server *api.Server
	if cfg.ServerConfig.Enabled {
		server = api.NewServer(cfg.ServerConfig, queue, breakers, loader, sc, logger)
		server.Start()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info().Msg("shutting down")

	cancel()
	sc.Stop()
	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("api shutdown failed")
		}
	}
	logger.Info().Msg("shutdown complete")
}
