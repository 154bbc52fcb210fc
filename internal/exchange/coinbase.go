package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"crypto-trading-agent/internal/logger"
	"crypto-trading-agent/internal/types"
)

// ErrNoData is returned when the venue has no bars for the requested
// symbol and window. Callers treat it as "not ready yet", not a fault.
var ErrNoData = errors.New("exchange: no data for symbol")

const defaultBaseURL = "https://api.exchange.coinbase.com"

// candles endpoint caps each response at 300 bars
const maxCandlesPerRequest = 300

var granularitySeconds = map[string]int{
	"1m":  60,
	"5m":  300,
	"15m": 900,
	"1h":  3600,
	"6h":  21600,
	"1d":  86400,
}

// Coinbase reads public market data from the Coinbase Exchange REST API.
// No key is needed; candles and tickers are unauthenticated endpoints.
type Coinbase struct {
	client *resty.Client
}

func NewCoinbase(baseURL string) *Coinbase {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetHeader("User-Agent", "crypto-trading-agent/1.0")
	return &Coinbase{client: c}
}

// productID maps "BTC/USD" to the venue's "BTC-USD" form.
func productID(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "-")
}

// RecentBars returns up to limit bars, ascending by time, ending at now.
func (c *Coinbase) RecentBars(ctx context.Context, symbol, timeframe string, limit int) ([]types.Candle, error) {
	gran, ok := granularitySeconds[timeframe]
	if !ok {
		return nil, fmt.Errorf("unsupported timeframe %q", timeframe)
	}
	if limit <= 0 || limit > maxCandlesPerRequest {
		limit = maxCandlesPerRequest
	}
	end := time.Now().UTC()
	start := end.Add(-time.Duration(limit*gran) * time.Second)
	bars, err := c.fetchCandles(ctx, symbol, gran, start, end)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, ErrNoData
	}
	if len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	return bars, nil
}

// LatestPrice returns the current ticker price.
func (c *Coinbase) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	var body struct {
		Price string `json:"price"`
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&body).
		Get("/products/" + productID(symbol) + "/ticker")
	if err != nil {
		return 0, fmt.Errorf("ticker %s: %w", symbol, err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("ticker %s: status %d", symbol, resp.StatusCode())
	}
	px, err := strconv.ParseFloat(body.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("ticker %s: bad price %q", symbol, body.Price)
	}
	return px, nil
}

// WarmUp pages backwards through history until days of bars are loaded,
// returning everything ascending. Used once at startup to seed the store.
func (c *Coinbase) WarmUp(ctx context.Context, symbol, timeframe string, days int) ([]types.Candle, error) {
	gran, ok := granularitySeconds[timeframe]
	if !ok {
		return nil, fmt.Errorf("unsupported timeframe %q", timeframe)
	}
	end := time.Now().UTC()
	cutoff := end.AddDate(0, 0, -days)
	var all []types.Candle
	for end.After(cutoff) {
		start := end.Add(-time.Duration(maxCandlesPerRequest*gran) * time.Second)
		if start.Before(cutoff) {
			start = cutoff
		}
		bars, err := c.fetchCandles(ctx, symbol, gran, start, end)
		if err != nil {
			return nil, err
		}
		all = append(all, bars...)
		logger.Debug(ctx, "warmup chunk fetched",
			"symbol", symbol, "tf", timeframe, "bars", len(bars), "start", start, "end", end)
		end = start
	}
	if len(all) == 0 {
		return nil, ErrNoData
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Ts.Before(all[j].Ts) })
	return dedupe(all), nil
}

// fetchCandles calls the candles endpoint for one window. Responses are
// arrays of [time, low, high, open, close, volume], newest first.
func (c *Coinbase) fetchCandles(ctx context.Context, symbol string, gran int, start, end time.Time) ([]types.Candle, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"granularity": strconv.Itoa(gran),
			"start":       start.Format(time.RFC3339),
			"end":         end.Format(time.RFC3339),
		}).
		Get("/products/" + productID(symbol) + "/candles")
	if err != nil {
		return nil, fmt.Errorf("candles %s: %w", symbol, err)
	}
	if resp.StatusCode() == 404 {
		return nil, fmt.Errorf("candles %s: unknown product", symbol)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("candles %s: status %d", symbol, resp.StatusCode())
	}
	var raw [][]float64
	if err := json.Unmarshal(resp.Body(), &raw); err != nil {
		return nil, fmt.Errorf("candles %s: decode: %w", symbol, err)
	}
	bars := make([]types.Candle, 0, len(raw))
	for _, r := range raw {
		if len(r) < 6 {
			continue
		}
		bars = append(bars, types.Candle{
			Ts: time.Unix(int64(r[0]), 0).UTC(),
			L:  r[1], H: r[2], O: r[3], C: r[4], V: r[5],
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Ts.Before(bars[j].Ts) })
	return bars, nil
}

func dedupe(bars []types.Candle) []types.Candle {
	out := bars[:0]
	for i, b := range bars {
		if i > 0 && b.Ts.Equal(bars[i-1].Ts) {
			continue
		}
		out = append(out, b)
	}
	return out
}
