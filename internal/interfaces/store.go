package interfaces

import (
	"context"
	"time"

	"crypto-trading-agent/internal/types"
)

// Store is the persistence boundary for the pipeline. The store is the
// single source of truth for positions, trades, NAV and sentiment history;
// the orchestrator only keeps the per-symbol sentiment window cache in
// memory.
type Store interface {
	SaveCandles(ctx context.Context, symbol, tf string, candles []types.Candle) error
	GetCandles(ctx context.Context, symbol, tf string, limit int) ([]types.Candle, error)

	GetPosition(ctx context.Context, symbol string) (*types.Position, error)
	GetPositions(ctx context.Context) ([]types.Position, error)
	UpsertPosition(ctx context.Context, p types.Position) error
	DeletePosition(ctx context.Context, symbol string) error

	CreateTrade(ctx context.Context, t types.Trade, rationale []byte) (uint, error)
	CloseTrade(ctx context.Context, id uint, exitPx, exitFees, exitSlippageBps, pnl float64, reason string, rationale []byte) error
	GetOpenTrade(ctx context.Context, symbol string) (*types.Trade, error)
	TotalRealizedPnL(ctx context.Context) (float64, error)
	TradeStats(ctx context.Context, since time.Time) (types.TradeStats, error)

	AppendNAV(ctx context.Context, snap types.NAVSnapshot) error
	LatestNAV(ctx context.Context) (*types.NAVSnapshot, error)

	GetConfigFloat(ctx context.Context, key string) (float64, bool, error)
	SetConfigFloat(ctx context.Context, key string, v float64) error

	LogEvent(ctx context.Context, ev types.Event) error

	SaveSentiment(ctx context.Context, s types.SentimentSnapshot) error
	LatestSentiment(ctx context.Context, symbol string) (*types.SentimentSnapshot, error)

	SaveReflection(ctx context.Context, r types.Reflection) error
}
