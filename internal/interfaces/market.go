package interfaces

import (
	"context"

	"crypto-trading-agent/internal/types"
)

// MarketData supplies public OHLCV bars and last-trade prices.
// Implementations must return exchange.ErrNoData when a symbol simply has
// no bars yet, distinct from transport failures.
type MarketData interface {
	RecentBars(ctx context.Context, symbol, timeframe string, limit int) ([]types.Candle, error)
	LatestPrice(ctx context.Context, symbol string) (float64, error)
	WarmUp(ctx context.Context, symbol, timeframe string, days int) ([]types.Candle, error)
}
