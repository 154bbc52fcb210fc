package interfaces

import (
	"context"

	"crypto-trading-agent/internal/types"
)

// AdvisoryContext is the market state handed to the generative models.
type AdvisoryContext struct {
	Symbol    string
	Regime    string
	Signals   map[string]any
	Sentiment *types.SentimentSnapshot
	Position  *types.Position
}

// Advisor obtains a structured trade proposal from a generative model.
// It never returns an error: every failure path degrades to a default
// flat proposal whose Meta names the failure.
type Advisor interface {
	Propose(ctx context.Context, req AdvisoryContext) types.Proposal
}

// Consultant reviews a proposal with a second, independent model. It
// always yields a decision; when the consultant is unreachable the result
// is a synthetic approval rather than a blocked pipeline.
type Consultant interface {
	Review(ctx context.Context, req AdvisoryContext, proposal types.Proposal) types.ConsultantReview
}
