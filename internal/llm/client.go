package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"crypto-trading-agent/internal/logger"
)

// ErrNoAPIKey is returned before any network call when the OpenRouter
// key is absent. Callers fall back rather than fail.
var ErrNoAPIKey = errors.New("OPENROUTER_API_KEY not configured")

const apiKeyEnv = "OPENROUTER_API_KEY"

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Client is a minimal OpenRouter chat-completions caller shared by the
// advisor, consultant, sentiment and reflection components.
type Client struct {
	baseURL     string
	maxTokens   int
	temperature float64
	hc          *http.Client
}

func NewClient(baseURL string, maxTokens int, temperature float64, timeout time.Duration) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		maxTokens:   maxTokens,
		temperature: temperature,
		hc:          &http.Client{Timeout: timeout},
	}
}

// Complete sends one system+user exchange and returns the assistant text.
func (c *Client) Complete(ctx context.Context, model, system, user string) (string, error) {
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		return "", ErrNoAPIKey
	}

	body, _ := json.Marshal(chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.hc.Do(req)
	latency := time.Since(start)
	if err != nil {
		return "", fmt.Errorf("openrouter request: %w", err)
	}
	defer resp.Body.Close()

	respBytes, _ := io.ReadAll(resp.Body)
	logger.Debug(ctx, "OpenRouter response received",
		"model", model,
		"status_code", resp.StatusCode,
		"latency_ms", latency.Milliseconds(),
		"response_length", len(respBytes),
	)

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("openrouter http %d: %s", resp.StatusCode, truncate(string(respBytes), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBytes, &parsed); err != nil {
		return "", fmt.Errorf("openrouter decode: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("openrouter: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return "", errors.New("openrouter: empty completion")
	}
	return parsed.Choices[0].Message.Content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
