package sentiment

import (
	"context"

	"crypto-trading-agent/internal/interfaces"
	"crypto-trading-agent/internal/logger"
	"crypto-trading-agent/internal/types"
)

// Service chains the Perplexity analyzer with the keyword fallback so
// the pipeline always gets a snapshot. Primary failures are logged,
// never propagated.
type Service struct {
	primary  interfaces.SentimentSource
	fallback interfaces.SentimentSource
}

var _ interfaces.SentimentSource = (*Service)(nil)

func NewService(primary, fallback interfaces.SentimentSource) *Service {
	return &Service{primary: primary, fallback: fallback}
}

func (s *Service) Analyze(ctx context.Context, symbol string) (types.SentimentSnapshot, error) {
	snap, err := s.primary.Analyze(ctx, symbol)
	if err == nil {
		return snap, nil
	}
	logger.Warn(ctx, "primary sentiment source failed, using fallback",
		"symbol", symbol, "error", err.Error())
	return s.fallback.Analyze(ctx, symbol)
}
