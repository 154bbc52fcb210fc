package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"crypto-trading-agent/internal/interfaces"
	"crypto-trading-agent/internal/store"
	"crypto-trading-agent/internal/types"
)

func testConfig(baseURL string) *store.Config {
	cfg := store.DefaultConfig()
	cfg.LLM.BaseURL = baseURL
	cfg.LLM.TimeoutSeconds = 2
	cfg.LLM.ConsultantTimeout = 2
	return cfg
}

// completionServer returns an httptest server that answers each chat
// completion request with the next canned body, as an OpenRouter-shaped
// response.
func completionServer(t *testing.T, replies ...func(w http.ResponseWriter, n int)) *httptest.Server {
	t.Helper()
	calls := 0
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idx := calls
		if idx >= len(replies) {
			idx = len(replies) - 1
		}
		calls++
		replies[idx](w, calls)
	}))
}

func chatOK(content string) func(w http.ResponseWriter, n int) {
	return func(w http.ResponseWriter, _ int) {
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func chatFail(status int) func(w http.ResponseWriter, n int) {
	return func(w http.ResponseWriter, _ int) {
		http.Error(w, "upstream error", status)
	}
}

func advisoryReq() interfaces.AdvisoryContext {
	return interfaces.AdvisoryContext{
		Symbol:  "BTC/USD",
		Regime:  "trend",
		Signals: map[string]any{"close": 112.0},
	}
}

func TestProposeParsesPrimary(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "test-key")
	srv := completionServer(t, chatOK(`{"side":"long","confidence":75,"reasons":["breakout"],`+
		`"entry":"market","stop":{"type":"atr_mult","multiplier":2.0},`+
		`"take_profit":{"rr":1.5},"max_hold_bars":24}`))
	defer srv.Close()

	a := NewAdvisor(testConfig(srv.URL))
	p := a.Propose(context.Background(), advisoryReq())

	if p.Side != types.SideLong {
		t.Errorf("expected long, got %s", p.Side)
	}
	if p.Confidence != 75 {
		t.Errorf("expected confidence 75, got %d", p.Confidence)
	}
	if p.TakeProfit.RR != 1.5 {
		t.Errorf("expected rr 1.5, got %f", p.TakeProfit.RR)
	}
	if p.Meta.UsedFallback {
		t.Error("primary success must not mark fallback")
	}
}

func TestProposeCoercesInvalidFields(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "test-key")
	srv := completionServer(t, chatOK("Here is my analysis:\n```json\n"+
		`{"side":"buy","confidence":"150","reasons":"single reason"}`+"\n```"))
	defer srv.Close()

	a := NewAdvisor(testConfig(srv.URL))
	p := a.Propose(context.Background(), advisoryReq())

	if p.Side != types.SideFlat {
		t.Errorf("unknown side must coerce to flat, got %s", p.Side)
	}
	if p.Confidence != 100 {
		t.Errorf("confidence should clamp to 100, got %d", p.Confidence)
	}
	if len(p.Reasons) != 1 || p.Reasons[0] != "single reason" {
		t.Errorf("bare string reason should wrap, got %v", p.Reasons)
	}
	if p.Entry != "market" {
		t.Errorf("missing entry should default to market, got %s", p.Entry)
	}
}

func TestProposePreservesShortSide(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "test-key")
	srv := completionServer(t, chatOK(
		`{"side":"short","confidence":80,"reasons":["distribution","weak breadth"]}`))
	defer srv.Close()

	a := NewAdvisor(testConfig(srv.URL))
	p := a.Propose(context.Background(), advisoryReq())

	if p.Side != types.SideShort {
		t.Errorf("short is a valid side and must survive parsing, got %s", p.Side)
	}
	if p.Meta.UsedFallback {
		t.Error("valid completion must not trip the fallback")
	}
}

func TestProposeRejectsIncompleteCompletion(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "test-key")
	// Primary answers valid JSON that is missing side and reasons; the
	// advisor must treat it as a failure and ask the fallback model.
	srv := completionServer(t,
		chatOK(`{"confidence":70}`),
		chatOK(`{"side":"long","confidence":65,"reasons":["fallback view"]}`),
	)
	defer srv.Close()

	a := NewAdvisor(testConfig(srv.URL))
	p := a.Propose(context.Background(), advisoryReq())

	if p.Side != types.SideLong || !p.Meta.UsedFallback {
		t.Errorf("incomplete primary should fall back, got side=%s fallback=%v",
			p.Side, p.Meta.UsedFallback)
	}
}

func TestProposeIncompleteOnBothModelsDefaultsFlat(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "test-key")
	srv := completionServer(t, chatOK(`{"side":"long"}`))
	defer srv.Close()

	a := NewAdvisor(testConfig(srv.URL))
	p := a.Propose(context.Background(), advisoryReq())

	if p.Side != types.SideFlat || p.Confidence != 0 {
		t.Errorf("got side=%s conf=%d, want the flat default", p.Side, p.Confidence)
	}
	if p.Meta.FailureReason == "" {
		t.Error("an incomplete completion must be named in the failure reason")
	}
}

func TestProposeCapsReasonsAtThree(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "test-key")
	srv := completionServer(t, chatOK(
		`{"side":"long","confidence":70,"reasons":["a","b","c","d","e"]}`))
	defer srv.Close()

	a := NewAdvisor(testConfig(srv.URL))
	p := a.Propose(context.Background(), advisoryReq())

	if len(p.Reasons) != 3 {
		t.Fatalf("got %d reasons, want cap at 3", len(p.Reasons))
	}
	if p.Reasons[0] != "a" || p.Reasons[2] != "c" {
		t.Errorf("cap should keep the first three, got %v", p.Reasons)
	}
}

func TestProposeFallsBackOnPrimaryFailure(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "test-key")
	srv := completionServer(t,
		chatFail(500),
		chatOK(`{"side":"long","confidence":60,"reasons":["fallback view"]}`),
	)
	defer srv.Close()

	cfg := testConfig(srv.URL)
	a := NewAdvisor(cfg)
	p := a.Propose(context.Background(), advisoryReq())

	if p.Side != types.SideLong {
		t.Errorf("expected fallback proposal, got side %s", p.Side)
	}
	if !p.Meta.UsedFallback {
		t.Error("fallback path must be marked")
	}
	if p.Meta.Model != cfg.LLM.FallbackModel {
		t.Errorf("expected fallback model in meta, got %s", p.Meta.Model)
	}
}

func TestProposeDefaultsFlatWhenBothFail(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "test-key")
	srv := completionServer(t, chatFail(500))
	defer srv.Close()

	a := NewAdvisor(testConfig(srv.URL))
	p := a.Propose(context.Background(), advisoryReq())

	if p.Side != types.SideFlat {
		t.Errorf("double failure must yield flat, got %s", p.Side)
	}
	if p.Confidence != 0 {
		t.Errorf("double failure must yield zero confidence, got %d", p.Confidence)
	}
	if p.Meta.FailureReason == "" {
		t.Error("failure reason must be recorded")
	}
}

func TestProposeWithoutAPIKey(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "")

	a := NewAdvisor(testConfig("http://127.0.0.1:1"))
	p := a.Propose(context.Background(), advisoryReq())

	if p.Side != types.SideFlat {
		t.Errorf("missing key must yield flat, got %s", p.Side)
	}
	if p.Meta.FailureReason == "" {
		t.Error("missing key must be named in the failure reason")
	}
}

func TestExtractJSONVariants(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{"bare", `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```"},
		{"prose", `The answer is {"a":1} as requested.`},
	}
	for _, tc := range cases {
		var out map[string]any
		if err := ExtractJSON(tc.in, &out); err != nil {
			t.Errorf("%s: %v", tc.name, err)
			continue
		}
		if out["a"] != 1.0 {
			t.Errorf("%s: expected a=1, got %v", tc.name, out["a"])
		}
	}

	var out map[string]any
	if err := ExtractJSON("no json here", &out); err == nil {
		t.Error("expected error for text without JSON")
	}
}

func TestCoerceHelpers(t *testing.T) {
	if v, ok := coerceInt("72.5"); !ok || v != 72 {
		t.Errorf("expected 72, got %d ok=%v", v, ok)
	}
	if v, ok := coerceInt(64.0); !ok || v != 64 {
		t.Errorf("expected 64, got %d ok=%v", v, ok)
	}
	if _, ok := coerceInt(nil); ok {
		t.Error("nil should not coerce")
	}
	got := coerceStrings([]any{"a", 2})
	if len(got) != 2 || got[1] != "2" {
		t.Errorf("unexpected coercion: %v", got)
	}
	if clampConfidence(-5) != 0 || clampConfidence(140) != 100 || clampConfidence(55) != 55 {
		t.Error("confidence clamp broken")
	}
}
