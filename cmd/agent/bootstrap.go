package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"crypto-trading-agent/internal/engine"
	"crypto-trading-agent/internal/engine/engineobs"
	"crypto-trading-agent/internal/exchange"
	"crypto-trading-agent/internal/interfaces"
	"crypto-trading-agent/internal/llm"
	"crypto-trading-agent/internal/llm/llmobs"
	"crypto-trading-agent/internal/logger"
	"crypto-trading-agent/internal/paper"
	"crypto-trading-agent/internal/reflection"
	"crypto-trading-agent/internal/sentiment"
	"crypto-trading-agent/internal/signal"
	"crypto-trading-agent/internal/store"
	"crypto-trading-agent/internal/trace"
)

// initializeSystem initializes the environment, logger and tracer
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}
	return nil
}

// loadConfigAndStore loads configuration and opens the database
func loadConfigAndStore(ctx context.Context) (*store.Config, *store.DB, error) {
	cfg, err := store.LoadConfig(configPath)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", configPath)
		return nil, nil, err
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return nil, nil, errors.New("DATABASE_URL not set")
	}
	db, err := store.Connect(dsn)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to connect to database", err)
		return nil, nil, err
	}
	return cfg, db, nil
}

// buildEngine wires the full pipeline with observability middleware
func buildEngine(ctx context.Context, cfg *store.Config, db *store.DB) (interfaces.Engine, error) {
	market := exchange.NewCoinbase(os.Getenv("EXCHANGE_BASE_URL"))

	if cfg.WarmupDays > 0 {
		for _, symbol := range cfg.Symbols {
			bars, err := market.WarmUp(ctx, symbol, cfg.Timeframe, cfg.WarmupDays)
			if err != nil {
				logger.Warn(ctx, "warm-up failed, continuing with stored bars",
					"symbol", symbol, "error", err.Error())
				continue
			}
			if err := db.SaveCandles(ctx, symbol, cfg.Timeframe, bars); err != nil {
				return nil, fmt.Errorf("warm-up save %s: %w", symbol, err)
			}
			logger.Info(ctx, "warm-up completed", "symbol", symbol, "bars", len(bars))
		}
	}

	rules := signal.NewEngine(cfg.Risk.MaxRiskPerTrade, cfg.Risk.MaxExposurePerSymbol, cfg.Stop.ATRMult)
	broker := paper.NewBroker(cfg.Execution.FeeBps, cfg.Execution.SlippageK, cfg.Execution.MinSlippageBps)
	advisor := llmobs.WrapAdvisor(llm.NewAdvisor(cfg))
	consultant := llmobs.WrapConsultant(llm.NewConsultant(cfg))
	sentimentSvc := sentiment.NewService(
		sentiment.NewPerplexity(cfg.Sentiment.Model),
		sentiment.NewKeywordFallback(),
	)
	reflector := reflection.NewGenerator(cfg)

	daemon := engine.NewDaemon(cfg, market, db, rules, broker, advisor, consultant, sentimentSvc, reflector)
	return engineobs.Wrap(daemon), nil
}
