package sentiment

import (
	"context"
	"errors"
	"testing"

	"crypto-trading-agent/internal/types"
)

func TestExtractScoreDirectionalLanguage(t *testing.T) {
	cases := []struct {
		content string
		want    float64
	}{
		{"Overall the outlook is bullish with strong momentum.", 0.7},
		{"Sentiment is bullish following the announcement.", 0.4},
		{"Markets turned positive after the ETF news.", 0.4},
		{"Very bearish price action across majors.", -0.7},
		{"Bearish divergence on the daily chart.", -0.4},
		{"Sentiment remains neutral ahead of the data.", 0.0},
		{"Mixed signals from funding rates.", 0.0},
	}
	for _, tc := range cases {
		if got := extractScore(tc.content); got != tc.want {
			t.Errorf("extractScore(%q) = %v, want %v", tc.content, got, tc.want)
		}
	}
}

func TestExtractScoreNumericFallback(t *testing.T) {
	got := extractScore("Sentiment score: 0.3\nBTC traded sideways this week.")
	if got != 0.3 {
		t.Errorf("score = %v, want 0.3", got)
	}
	// Out-of-range numbers are ignored; no directional words means zero.
	if got := extractScore("score: 42 on the fear index"); got != 0 {
		t.Errorf("score = %v, want 0 when nothing is in [-1,1]", got)
	}
	if got := extractScore("BTC closed at 65000 today."); got != 0 {
		t.Errorf("score = %v, want 0 for plain text", got)
	}
}

func TestScoreKeywordsCappedAtHalf(t *testing.T) {
	if got := scoreKeywords("surge rally gain adoption milestone"); got != 0.5 {
		t.Errorf("all-positive text = %v, want cap 0.5", got)
	}
	if got := scoreKeywords("crash plunge hack scam ban"); got != -0.5 {
		t.Errorf("all-negative text = %v, want cap -0.5", got)
	}
	if got := scoreKeywords("nothing notable happened"); got != 0 {
		t.Errorf("no keywords = %v, want 0", got)
	}
	// Two positive against one negative nets to 1/3.
	got := scoreKeywords("a gain on wider adoption despite the regulation")
	if got < 0.32 || got > 0.34 {
		t.Errorf("mixed text = %v, want ~0.333", got)
	}
}

func TestAssetOf(t *testing.T) {
	if got := assetOf("BTC/USD"); got != "BTC" {
		t.Errorf("assetOf(BTC/USD) = %q, want BTC", got)
	}
	if got := assetOf("SOL"); got != "SOL" {
		t.Errorf("assetOf(SOL) = %q, want SOL", got)
	}
}

func TestPerplexityRequiresAPIKey(t *testing.T) {
	t.Setenv("PERPLEXITY_API_KEY", "")
	p := NewPerplexity("test-model")
	if _, err := p.Analyze(context.Background(), "BTC/USD"); err == nil {
		t.Fatal("expected error without API key")
	}
}

type stubSource struct {
	snap  types.SentimentSnapshot
	err   error
	calls int
}

func (s *stubSource) Analyze(context.Context, string) (types.SentimentSnapshot, error) {
	s.calls++
	return s.snap, s.err
}

func TestServicePrefersPrimary(t *testing.T) {
	primary := &stubSource{snap: types.SentimentSnapshot{Sent24h: 0.4}}
	fallback := &stubSource{snap: types.SentimentSnapshot{Sent24h: -0.1}}
	svc := NewService(primary, fallback)

	snap, err := svc.Analyze(context.Background(), "BTC/USD")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if snap.Sent24h != 0.4 {
		t.Errorf("score = %v, want the primary's 0.4", snap.Sent24h)
	}
	if fallback.calls != 0 {
		t.Errorf("fallback called %d times, want 0", fallback.calls)
	}
}

func TestServiceFallsBackOnPrimaryFailure(t *testing.T) {
	primary := &stubSource{err: errors.New("api down")}
	fallback := &stubSource{snap: types.SentimentSnapshot{
		Sent24h: 0.1,
		Sources: types.SentimentSources{Model: fallbackModel},
	}}
	svc := NewService(primary, fallback)

	snap, err := svc.Analyze(context.Background(), "BTC/USD")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if snap.Sources.Model != fallbackModel {
		t.Errorf("model = %q, want fallback", snap.Sources.Model)
	}
	if primary.calls != 1 || fallback.calls != 1 {
		t.Errorf("calls = %d/%d, want 1/1", primary.calls, fallback.calls)
	}
}

func TestNeutralSnapshotShape(t *testing.T) {
	k := NewKeywordFallback()
	snap := k.neutral("BTC/USD", "no recent news found for BTC")
	if snap.Sent24h != 0 || snap.Trend != 0 {
		t.Errorf("neutral snapshot should carry zero scores, got %+v", snap)
	}
	if snap.Sources.DataQuality != "no-data-available" {
		t.Errorf("data quality = %q, want no-data-available", snap.Sources.DataQuality)
	}
	if snap.Sources.Model != fallbackModel {
		t.Errorf("model = %q, want %q", snap.Sources.Model, fallbackModel)
	}
}
