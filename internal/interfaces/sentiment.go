package interfaces

import (
	"context"

	"crypto-trading-agent/internal/types"
)

// SentimentSource produces a fresh sentiment snapshot for a symbol. The
// implementation may fall back internally between providers; the core only
// sees the snapshot or an error.
type SentimentSource interface {
	Analyze(ctx context.Context, symbol string) (types.SentimentSnapshot, error)
}

// Reflector writes the periodic qualitative performance report.
type Reflector interface {
	Generate(ctx context.Context, window string, stats map[string]any) (types.Reflection, error)
}
