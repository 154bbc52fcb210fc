package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"crypto-trading-agent/internal/interfaces"
	"crypto-trading-agent/internal/logger"
	"crypto-trading-agent/internal/store"
	"crypto-trading-agent/internal/types"
)

const consultantSystemPrompt = `You are a risk consultant reviewing a proposed crypto trade. ` +
	`Given the market state and the advisor's proposal, respond with STRICT JSON only:
{"decision":"approve|reject|modify","confidence":0-100,"rationale":"...",` +
	`"modifications":{"field":"value"}}
Include "modifications" only when decision is "modify". No prose, no markdown.`

const fallbackConfidence = 50

// Consultant is the second, independent reviewer of advisor proposals.
// Review always returns a usable verdict: after the configured retries
// are exhausted the trade is auto-approved at reduced confidence so the
// pipeline never stalls on a dependency outage.
type Consultant struct {
	cfg     *store.Config
	client  *Client
	timeout time.Duration
	retries int
	backoff time.Duration
}

func NewConsultant(cfg *store.Config) *Consultant {
	timeout := time.Duration(cfg.LLM.ConsultantTimeout) * time.Second
	return &Consultant{
		cfg:     cfg,
		client:  NewClient(cfg.LLM.BaseURL, cfg.LLM.MaxTokens, cfg.LLM.Temperature, timeout),
		timeout: timeout,
		retries: cfg.LLM.ConsultantRetries,
		backoff: time.Second,
	}
}

func (c *Consultant) Review(ctx context.Context, req interfaces.AdvisoryContext, proposal types.Proposal) types.ConsultantReview {
	if os.Getenv(apiKeyEnv) == "" {
		return c.autoApprove("consultant not configured")
	}

	user := c.buildPrompt(req, proposal)
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.backoff):
			case <-ctx.Done():
				return c.autoApprove(fmt.Sprintf("context cancelled: %v", ctx.Err()))
			}
			logger.Debug(ctx, "retrying consultant review",
				"symbol", req.Symbol, "attempt", attempt+1, "last_error", lastErr.Error())
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		text, err := c.client.Complete(attemptCtx, c.cfg.LLM.ConsultantModel, consultantSystemPrompt, user)
		cancel()
		if err != nil {
			lastErr = err
			continue
		}
		review, err := parseReview(text)
		if err != nil {
			lastErr = err
			continue
		}
		logger.Decision(ctx, req.Symbol, "consultant_review", review.Confidence, review.Rationale,
			"decision", review.Decision)
		return review
	}

	logger.Warn(ctx, "consultant unavailable after retries, auto-approving",
		"symbol", req.Symbol, "attempts", c.retries+1, "error", lastErr.Error())
	return c.autoApprove(lastErr.Error())
}

func (c *Consultant) autoApprove(reason string) types.ConsultantReview {
	return types.ConsultantReview{
		Decision:   types.ReviewApprove,
		Confidence: fallbackConfidence,
		Rationale:  "Auto-approved due to consultant unavailable: " + reason,
	}
}

func (c *Consultant) buildPrompt(req interfaces.AdvisoryContext, proposal types.Proposal) string {
	state := map[string]any{
		"symbol":   req.Symbol,
		"regime":   req.Regime,
		"signals":  req.Signals,
		"proposal": proposal,
	}
	if req.Sentiment != nil {
		state["sentiment"] = req.Sentiment
	}
	if req.Position != nil {
		state["position"] = req.Position
	}
	b, _ := json.Marshal(state)
	return "Review this trade:\n" + string(b) + "\n\nRespond ONLY with the JSON object."
}

// parseReview coerces a raw completion into a review. An unknown
// decision becomes approve; a modify verdict without a modifications
// map is downgraded to approve since there is nothing to apply.
func parseReview(text string) (types.ConsultantReview, error) {
	var raw map[string]any
	if err := ExtractJSON(text, &raw); err != nil {
		return types.ConsultantReview{}, err
	}

	review := types.ConsultantReview{Decision: types.ReviewApprove}
	if d, ok := raw["decision"].(string); ok {
		switch d {
		case types.ReviewApprove, types.ReviewReject, types.ReviewModify:
			review.Decision = d
		}
	}
	if c, ok := coerceInt(raw["confidence"]); ok {
		review.Confidence = clampConfidence(c)
	}
	if r, ok := raw["rationale"].(string); ok {
		review.Rationale = r
	}
	if m, ok := raw["modifications"].(map[string]any); ok && len(m) > 0 {
		review.Modifications = m
	}
	if review.Decision == types.ReviewModify && review.Modifications == nil {
		review.Decision = types.ReviewApprove
	}
	return review, nil
}
