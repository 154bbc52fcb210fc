package sentiment

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"crypto-trading-agent/internal/logger"
	"crypto-trading-agent/internal/types"
)

const fallbackModel = "ddg-keyword-fallback"

var positiveKeywords = []string{
	"surge", "soar", "rally", "gain", "rise", "bullish", "growth",
	"breakthrough", "adoption", "institutional", "etf", "approval", "milestone",
}

var negativeKeywords = []string{
	"crash", "plunge", "drop", "fall", "bearish", "decline",
	"hack", "scam", "regulation", "ban", "concern", "risk", "loss",
}

// KeywordFallback scrapes DuckDuckGo search results and scores them by
// keyword balance. It is deliberately crude: the score is capped at
// half strength and tagged low confidence so downstream consumers can
// discount it. Analyze never returns an error.
type KeywordFallback struct {
	searchURL string
	timeout   time.Duration
}

func NewKeywordFallback() *KeywordFallback {
	return &KeywordFallback{
		searchURL: "https://html.duckduckgo.com/html/",
		timeout:   15 * time.Second,
	}
}

func (k *KeywordFallback) Analyze(ctx context.Context, symbol string) (types.SentimentSnapshot, error) {
	asset := assetOf(symbol)

	var snippets []string
	var citations []string

	c := colly.NewCollector(colly.MaxDepth(1), colly.Async(false))
	c.SetRequestTimeout(k.timeout)
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", "Mozilla/5.0 (compatible; TradingBot/1.0)")
	})
	c.OnHTML("div.result", func(e *colly.HTMLElement) {
		if len(snippets) >= 8 {
			return
		}
		title, snippet, link := extractResult(e.DOM)
		if title == "" && snippet == "" {
			return
		}
		snippets = append(snippets, strings.TrimSpace(title+" "+snippet))
		if link != "" && len(citations) < 5 {
			citations = append(citations, link)
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		logger.Warn(ctx, "fallback sentiment search failed", "symbol", symbol, "error", err.Error())
	})

	if err := c.Visit(k.searchURL + "?q=" + asset + "+cryptocurrency+news"); err != nil {
		logger.Warn(ctx, "fallback sentiment visit failed", "symbol", symbol, "error", err.Error())
		return k.neutral(symbol, "search unavailable: "+err.Error()), nil
	}
	c.Wait()

	combined := strings.Join(snippets, " ")
	if len(combined) < 20 {
		return k.neutral(symbol, "no recent news found for "+asset), nil
	}

	score := scoreKeywords(combined)
	reasoning := "keyword-based sentiment for " + asset + ": " + combined
	if len(reasoning) > 400 {
		reasoning = reasoning[:400] + "..."
	}
	return types.SentimentSnapshot{
		Symbol:  symbol,
		Ts:      time.Now().UTC(),
		Sent24h: score,
		Trend:   score,
		Sources: types.SentimentSources{
			Reasoning:   reasoning,
			Citations:   citations,
			Model:       fallbackModel,
			DataQuality: "low-confidence-fallback",
		},
	}, nil
}

func (k *KeywordFallback) neutral(symbol, reason string) types.SentimentSnapshot {
	return types.SentimentSnapshot{
		Symbol: symbol,
		Ts:     time.Now().UTC(),
		Sources: types.SentimentSources{
			Reasoning:   reason,
			Model:       fallbackModel,
			DataQuality: "no-data-available",
		},
	}
}

func extractResult(sel *goquery.Selection) (title, snippet, link string) {
	title = strings.TrimSpace(sel.Find("a.result__a").First().Text())
	snippet = strings.TrimSpace(sel.Find("a.result__snippet, div.result__snippet").First().Text())
	link, _ = sel.Find("a.result__a").First().Attr("href")
	return
}

// scoreKeywords nets positive against negative mentions, capped at
// half strength since keyword matching is a weak signal.
func scoreKeywords(text string) float64 {
	lower := strings.ToLower(text)
	pos, neg := 0, 0
	for _, kw := range positiveKeywords {
		if strings.Contains(lower, kw) {
			pos++
		}
	}
	for _, kw := range negativeKeywords {
		if strings.Contains(lower, kw) {
			neg++
		}
	}
	total := pos + neg
	if total == 0 {
		return 0.0
	}
	net := float64(pos-neg) / float64(total)
	if net > 0.5 {
		return 0.5
	}
	if net < -0.5 {
		return -0.5
	}
	return net
}
