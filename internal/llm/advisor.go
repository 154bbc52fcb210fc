package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"crypto-trading-agent/internal/interfaces"
	"crypto-trading-agent/internal/logger"
	"crypto-trading-agent/internal/store"
	"crypto-trading-agent/internal/types"
)

const advisorSystemPrompt = `You are a disciplined crypto trading advisor. You receive market state ` +
	`(regime, breakout signals, sentiment, open position) and respond with STRICT JSON only:
{"side":"long|short|flat","confidence":0-100,"reasons":["max 3 short strings"],"entry":"market",` +
	`"stop":{"type":"atr_mult","multiplier":2.0},"take_profit":{"rr":1.5},"max_hold_bars":24}
Prefer "flat" when conditions are unconvincing. No prose, no markdown.`

// Advisor asks a generative model for a structured trade opinion. It
// never returns an error: a primary failure falls through to the
// fallback model, and a double failure yields a conservative flat
// proposal carrying the failure reason in its metadata.
type Advisor struct {
	cfg    *store.Config
	client *Client
}

func NewAdvisor(cfg *store.Config) *Advisor {
	return &Advisor{
		cfg: cfg,
		client: NewClient(cfg.LLM.BaseURL, cfg.LLM.MaxTokens, cfg.LLM.Temperature,
			time.Duration(cfg.LLM.TimeoutSeconds)*time.Second),
	}
}

func (a *Advisor) Propose(ctx context.Context, req interfaces.AdvisoryContext) types.Proposal {
	user := a.buildPrompt(req)

	start := time.Now()
	text, err := a.client.Complete(ctx, a.cfg.LLM.PrimaryModel, advisorSystemPrompt, user)
	if err == nil {
		if p, perr := a.parseProposal(req.Symbol, text); perr == nil {
			p.Meta = types.ProposalMeta{
				Model:        a.cfg.LLM.PrimaryModel,
				LatencyMs:    time.Since(start).Milliseconds(),
				UsedFallback: false,
			}
			return p
		} else {
			err = perr
		}
	}
	logger.Warn(ctx, "primary advisor model failed, trying fallback",
		"symbol", req.Symbol, "model", a.cfg.LLM.PrimaryModel, "error", err.Error())

	primaryErr := err
	fbStart := time.Now()
	text, err = a.client.Complete(ctx, a.cfg.LLM.FallbackModel, advisorSystemPrompt, user)
	if err == nil {
		if p, perr := a.parseProposal(req.Symbol, text); perr == nil {
			p.Meta = types.ProposalMeta{
				Model:        a.cfg.LLM.FallbackModel,
				LatencyMs:    time.Since(fbStart).Milliseconds(),
				UsedFallback: true,
			}
			return p
		} else {
			err = perr
		}
	}
	logger.ErrorWithErr(ctx, "both advisor models failed, defaulting to flat", err,
		"symbol", req.Symbol, "primary_error", primaryErr.Error())

	return types.Proposal{
		Symbol:     req.Symbol,
		Side:       types.SideFlat,
		Confidence: 0,
		Reasons:    []string{"advisor unavailable"},
		Entry:      "market",
		Stop:       types.StopSpec{Type: "atr_mult", Multiplier: a.cfg.Stop.ATRMult},
		Meta: types.ProposalMeta{
			Model:         a.cfg.LLM.FallbackModel,
			LatencyMs:     time.Since(start).Milliseconds(),
			UsedFallback:  true,
			FailureReason: fmt.Sprintf("primary: %v; fallback: %v", primaryErr, err),
		},
	}
}

func (a *Advisor) buildPrompt(req interfaces.AdvisoryContext) string {
	state := map[string]any{
		"symbol":  req.Symbol,
		"regime":  req.Regime,
		"signals": req.Signals,
	}
	if req.Sentiment != nil {
		state["sentiment"] = req.Sentiment
	}
	if req.Position != nil {
		state["position"] = req.Position
	}
	b, _ := json.Marshal(state)
	return "Market state:\n" + string(b) + "\n\nRespond ONLY with the JSON object."
}

// parseProposal validates and coerces a raw completion. Side,
// confidence and reasons must be present or the completion is rejected
// and the caller falls through to its next model; invalid values in
// present fields are forced to safe defaults instead.
func (a *Advisor) parseProposal(symbol, text string) (types.Proposal, error) {
	var raw map[string]any
	if err := ExtractJSON(text, &raw); err != nil {
		return types.Proposal{}, err
	}

	p := types.Proposal{
		Symbol: symbol,
		Side:   types.SideFlat,
		Entry:  "market",
		Stop:   types.StopSpec{Type: "atr_mult", Multiplier: a.cfg.Stop.ATRMult},
	}

	side, ok := raw["side"].(string)
	if !ok {
		return types.Proposal{}, errors.New("completion missing side")
	}
	switch side {
	case types.SideLong, types.SideShort, types.SideFlat:
		p.Side = side
	}
	c, ok := coerceInt(raw["confidence"])
	if !ok {
		return types.Proposal{}, errors.New("completion missing confidence")
	}
	p.Confidence = clampConfidence(c)
	p.Reasons = coerceStrings(raw["reasons"])
	if len(p.Reasons) == 0 {
		return types.Proposal{}, errors.New("completion missing reasons")
	}
	if len(p.Reasons) > 3 {
		p.Reasons = p.Reasons[:3]
	}
	if e, ok := raw["entry"].(string); ok && e != "" {
		p.Entry = e
	}
	if st, ok := raw["stop"].(map[string]any); ok {
		if t, ok := st["type"].(string); ok && t != "" {
			p.Stop.Type = t
		}
		if m, ok := st["multiplier"].(float64); ok && m > 0 {
			p.Stop.Multiplier = m
		}
	}
	if tp, ok := raw["take_profit"].(map[string]any); ok {
		if rr, ok := tp["rr"].(float64); ok && rr > 0 {
			p.TakeProfit.RR = rr
		}
	}
	if h, ok := coerceInt(raw["max_hold_bars"]); ok && h > 0 {
		p.MaxHoldBars = h
	}
	return p, nil
}
