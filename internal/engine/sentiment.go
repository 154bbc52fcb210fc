package engine

import (
	"context"
	"time"

	"crypto-trading-agent/internal/logger"
	"crypto-trading-agent/internal/types"
)

// windowKey names the current half-day UTC sentiment window, e.g.
// "2026-09-01-AM". Sentiment is refreshed at most once per window.
func windowKey(t time.Time) string {
	t = t.UTC()
	half := "AM"
	if t.Hour() >= 12 {
		half = "PM"
	}
	return t.Format("2006-01-02") + "-" + half
}

// refreshSentiment returns the sentiment snapshot for the current
// window, calling the provider only when neither the in-memory marker
// nor the store already covers it. Sentiment is advisory context, so
// every failure degrades to "no snapshot" rather than an error.
func (d *Daemon) refreshSentiment(ctx context.Context, symbol string) *types.SentimentSnapshot {
	if !d.cfg.Sentiment.Enabled {
		return nil
	}

	key := windowKey(time.Now())
	if d.sentimentMarks[symbol] == key {
		snap, err := d.db.LatestSentiment(ctx, symbol)
		if err != nil {
			logger.Warn(ctx, "cached sentiment read failed", "symbol", symbol, "error", err.Error())
			return nil
		}
		return snap
	}

	// A restart loses the in-memory marker; the stored snapshot's
	// timestamp tells us whether this window was already covered.
	if snap, err := d.db.LatestSentiment(ctx, symbol); err == nil && snap != nil {
		if windowKey(snap.Ts) == key {
			d.sentimentMarks[symbol] = key
			return snap
		}
	}

	snap, err := d.sentiment.Analyze(ctx, symbol)
	if err != nil {
		logger.Warn(ctx, "sentiment analysis failed", "symbol", symbol, "error", err.Error())
		return nil
	}
	if err := d.db.SaveSentiment(ctx, snap); err != nil {
		logger.Warn(ctx, "sentiment save failed", "symbol", symbol, "error", err.Error())
	}
	d.sentimentMarks[symbol] = key
	logger.Info(ctx, "sentiment refreshed",
		"symbol", symbol, "window", key, "score", snap.Sent24h, "model", snap.Sources.Model)
	return &snap
}
