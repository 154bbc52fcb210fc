package llmobs

import (
	"context"

	"crypto-trading-agent/internal/interfaces"
	"crypto-trading-agent/internal/logger"
	"crypto-trading-agent/internal/trace"
	"crypto-trading-agent/internal/types"
)

// observableAdvisor wraps an Advisor with observability (logging & tracing)
type observableAdvisor struct {
	advisor interfaces.Advisor
}

// Compile-time interface check
var _ interfaces.Advisor = (*observableAdvisor)(nil)

// WrapAdvisor wraps an advisor with observability middleware
func WrapAdvisor(advisor interfaces.Advisor) interfaces.Advisor {
	return &observableAdvisor{advisor: advisor}
}

func (oa *observableAdvisor) Propose(ctx context.Context, req interfaces.AdvisoryContext) types.Proposal {
	ctx, span := trace.StartSpan(ctx, "llm.Propose")
	defer span.End()

	// Use DebugSkip(1) to report the actual caller, not this middleware wrapper
	logger.DebugSkip(ctx, 1, "Requesting trade proposal",
		"symbol", req.Symbol,
		"regime", req.Regime,
	)

	proposal := oa.advisor.Propose(ctx, req)

	if proposal.Meta.FailureReason != "" {
		logger.WarnSkip(ctx, 1, "Advisor degraded to default proposal",
			"symbol", req.Symbol,
			"failure_reason", proposal.Meta.FailureReason,
		)
	}
	logger.InfoSkip(ctx, 1, "Trade proposal received",
		"symbol", req.Symbol,
		"side", proposal.Side,
		"confidence", proposal.Confidence,
		"model", proposal.Meta.Model,
		"used_fallback", proposal.Meta.UsedFallback,
		"latency_ms", proposal.Meta.LatencyMs,
	)
	return proposal
}

// observableConsultant wraps a Consultant with observability
type observableConsultant struct {
	consultant interfaces.Consultant
}

var _ interfaces.Consultant = (*observableConsultant)(nil)

// WrapConsultant wraps a consultant with observability middleware
func WrapConsultant(consultant interfaces.Consultant) interfaces.Consultant {
	return &observableConsultant{consultant: consultant}
}

func (oc *observableConsultant) Review(ctx context.Context, req interfaces.AdvisoryContext, proposal types.Proposal) types.ConsultantReview {
	ctx, span := trace.StartSpan(ctx, "llm.Review")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Requesting consultant review",
		"symbol", req.Symbol,
		"proposal_side", proposal.Side,
		"proposal_confidence", proposal.Confidence,
	)

	review := oc.consultant.Review(ctx, req, proposal)

	logger.InfoSkip(ctx, 1, "Consultant review received",
		"symbol", req.Symbol,
		"decision", review.Decision,
		"confidence", review.Confidence,
	)
	return review
}
