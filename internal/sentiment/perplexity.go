package sentiment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"crypto-trading-agent/internal/logger"
	"crypto-trading-agent/internal/types"
)

const perplexityURL = "https://api.perplexity.ai/chat/completions"

// Perplexity asks an online-search model for current sentiment on an
// asset. It needs PERPLEXITY_API_KEY; without it Analyze fails fast and
// the service falls back to keyword search.
type Perplexity struct {
	client *resty.Client
	model  string
}

func NewPerplexity(model string) *Perplexity {
	c := resty.New().
		SetTimeout(30 * time.Second).
		SetHeader("Content-Type", "application/json")
	return &Perplexity{client: c, model: model}
}

func (p *Perplexity) Analyze(ctx context.Context, symbol string) (types.SentimentSnapshot, error) {
	apiKey := os.Getenv("PERPLEXITY_API_KEY")
	if apiKey == "" {
		return types.SentimentSnapshot{}, errors.New("PERPLEXITY_API_KEY not set")
	}

	asset := assetOf(symbol)
	payload := map[string]any{
		"model": p.model,
		"messages": []map[string]string{
			{
				"role": "system",
				"content": "You are a financial analyst. Analyze sentiment concisely with a score " +
					"from -1 (very bearish) to +1 (very bullish) and brief reasoning.",
			},
			{
				"role": "user",
				"content": fmt.Sprintf("Analyze current market sentiment for %s cryptocurrency. "+
					"Provide: 1) sentiment score from -1 (bearish) to +1 (bullish), "+
					"2) brief summary of recent news/developments. Keep response under 100 words.", asset),
			},
		},
		"max_tokens":            200,
		"temperature":           0.2,
		"search_recency_filter": "day",
	}

	var body struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Citations []string `json:"citations"`
	}
	resp, err := p.client.R().
		SetContext(ctx).
		SetAuthToken(apiKey).
		SetBody(payload).
		SetResult(&body).
		Post(perplexityURL)
	if err != nil {
		return types.SentimentSnapshot{}, fmt.Errorf("perplexity request: %w", err)
	}
	if resp.IsError() {
		return types.SentimentSnapshot{}, fmt.Errorf("perplexity http %d", resp.StatusCode())
	}
	if len(body.Choices) == 0 {
		return types.SentimentSnapshot{}, errors.New("perplexity: empty completion")
	}

	content := body.Choices[0].Message.Content
	score := extractScore(content)
	model := body.Model
	if model == "" {
		model = p.model
	}
	citations := body.Citations
	if len(citations) > 3 {
		citations = citations[:3]
	}
	logger.Debug(ctx, "sentiment analyzed", "symbol", symbol, "score", score, "model", model)

	return types.SentimentSnapshot{
		Symbol:  symbol,
		Ts:      time.Now().UTC(),
		Sent24h: score,
		Trend:   score,
		Sources: types.SentimentSources{
			Reasoning: content,
			Citations: citations,
			Model:     model,
		},
	}, nil
}

// extractScore reads a sentiment score out of free-form analyst text.
// Directional language wins; otherwise any in-range number on a line
// mentioning score or sentiment is taken literally.
func extractScore(content string) float64 {
	lower := strings.ToLower(content)
	strong := strings.Contains(lower, "very") || strings.Contains(lower, "strong")
	switch {
	case strings.Contains(lower, "bullish") || strings.Contains(lower, "positive"):
		if strong {
			return 0.7
		}
		return 0.4
	case strings.Contains(lower, "bearish") || strings.Contains(lower, "negative"):
		if strong {
			return -0.7
		}
		return -0.4
	case strings.Contains(lower, "neutral") || strings.Contains(lower, "mixed"):
		return 0.0
	}

	for _, line := range strings.Split(lower, "\n") {
		if !strings.Contains(line, "score") && !strings.Contains(line, "sentiment") {
			continue
		}
		for _, word := range strings.Fields(line) {
			cleaned := strings.Trim(word, ",:()[]")
			score, err := strconv.ParseFloat(cleaned, 64)
			if err != nil {
				continue
			}
			if score >= -1.0 && score <= 1.0 {
				return score
			}
		}
	}
	return 0.0
}

func assetOf(symbol string) string {
	if i := strings.Index(symbol, "/"); i > 0 {
		return symbol[:i]
	}
	return symbol
}
