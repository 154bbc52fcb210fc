package reflection

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"crypto-trading-agent/internal/interfaces"
	"crypto-trading-agent/internal/llm"
	"crypto-trading-agent/internal/logger"
	"crypto-trading-agent/internal/store"
	"crypto-trading-agent/internal/types"
)

const reflectionSystemPrompt = `You are a trading performance analyst. Given trade statistics for a ` +
	`recent window, write a short reflection on what worked and what to adjust. Respond with STRICT ` +
	`JSON only: {"title":"...","body":"..."}. Keep the body under 150 words. No prose, no markdown.`

// Generator produces the periodic qualitative performance report from
// recent closed-trade statistics.
type Generator struct {
	cfg    *store.Config
	client *llm.Client
}

var _ interfaces.Reflector = (*Generator)(nil)

func NewGenerator(cfg *store.Config) *Generator {
	return &Generator{
		cfg: cfg,
		client: llm.NewClient(cfg.LLM.BaseURL, cfg.LLM.MaxTokens, cfg.LLM.Temperature,
			time.Duration(cfg.LLM.TimeoutSeconds)*time.Second),
	}
}

func (g *Generator) Generate(ctx context.Context, window string, stats map[string]any) (types.Reflection, error) {
	b, _ := json.Marshal(stats)
	user := fmt.Sprintf("Window: %s\nStats: %s\n\nRespond ONLY with the JSON object.", window, string(b))

	text, err := g.client.Complete(ctx, g.cfg.Reflection.Model, reflectionSystemPrompt, user)
	if err != nil {
		return types.Reflection{}, fmt.Errorf("reflection completion: %w", err)
	}

	var parsed struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	}
	if err := llm.ExtractJSON(text, &parsed); err != nil {
		return types.Reflection{}, fmt.Errorf("reflection parse: %w", err)
	}
	if parsed.Title == "" {
		parsed.Title = "Performance reflection " + window
	}
	logger.Info(ctx, "reflection generated", "window", window, "title", parsed.Title)

	return types.Reflection{
		Ts:     time.Now().UTC(),
		Window: window,
		Title:  parsed.Title,
		Body:   parsed.Body,
		Stats:  stats,
	}, nil
}
