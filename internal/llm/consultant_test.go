package llm

import (
	"context"
	"strings"
	"testing"
	"time"

	"crypto-trading-agent/internal/types"
)

func testProposal() types.Proposal {
	return types.Proposal{
		Symbol:     "BTC/USD",
		Side:       types.SideLong,
		Confidence: 75,
		Entry:      "market",
		Stop:       types.StopSpec{Type: "atr_mult", Multiplier: 2.0},
	}
}

func TestReviewWithoutAPIKey(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "")

	c := NewConsultant(testConfig("http://127.0.0.1:1"))
	review := c.Review(context.Background(), advisoryReq(), testProposal())

	if review.Decision != types.ReviewApprove {
		t.Errorf("expected fallback approve, got %s", review.Decision)
	}
	if review.Confidence != 50 {
		t.Errorf("expected fallback confidence 50, got %d", review.Confidence)
	}
	if review.Rationale == "" || !strings.Contains(review.Rationale, "not configured") {
		t.Errorf("rationale must mention not configured, got %q", review.Rationale)
	}
}

func TestReviewRetriesThenSucceeds(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "test-key")
	srv := completionServer(t,
		chatFail(500),
		chatFail(500),
		chatOK(`{"decision":"modify","confidence":70,"rationale":"tighter target",`+
			`"modifications":{"take_profit":{"rr":1.5}}}`),
	)
	defer srv.Close()

	c := NewConsultant(testConfig(srv.URL))
	c.backoff = 10 * time.Millisecond
	review := c.Review(context.Background(), advisoryReq(), testProposal())

	if review.Decision != types.ReviewModify {
		t.Fatalf("expected modify after retries, got %s", review.Decision)
	}
	if review.Confidence != 70 {
		t.Errorf("expected confidence 70, got %d", review.Confidence)
	}
	if review.Modifications == nil {
		t.Fatal("modifications must survive parsing")
	}
}

func TestReviewAutoApprovesAfterExhaustedRetries(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "test-key")
	srv := completionServer(t, chatFail(503))
	defer srv.Close()

	c := NewConsultant(testConfig(srv.URL))
	c.backoff = 10 * time.Millisecond
	review := c.Review(context.Background(), advisoryReq(), testProposal())

	if review.Decision != types.ReviewApprove {
		t.Errorf("exhausted retries must auto-approve, got %s", review.Decision)
	}
	if review.Confidence != 50 {
		t.Errorf("expected fallback confidence 50, got %d", review.Confidence)
	}
	if !strings.Contains(review.Rationale, "Auto-approved due to consultant unavailable") {
		t.Errorf("rationale must name the fallback, got %q", review.Rationale)
	}
}

func TestReviewCancelledContext(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "test-key")
	srv := completionServer(t, chatFail(500))
	defer srv.Close()

	c := NewConsultant(testConfig(srv.URL))
	c.backoff = time.Hour // backoff must be interruptible

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	done := make(chan types.ConsultantReview, 1)
	go func() { done <- c.Review(ctx, advisoryReq(), testProposal()) }()

	select {
	case review := <-done:
		if review.Decision != types.ReviewApprove {
			t.Errorf("cancelled review must still approve, got %s", review.Decision)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Review did not return promptly after context cancellation")
	}
}

func TestParseReviewCoercions(t *testing.T) {
	// unrecognized decision defaults to approve
	review, err := parseReview(`{"decision":"escalate","confidence":80,"rationale":"odd"}`)
	if err != nil {
		t.Fatal(err)
	}
	if review.Decision != types.ReviewApprove {
		t.Errorf("unknown decision must coerce to approve, got %s", review.Decision)
	}

	// confidence clamps
	review, _ = parseReview(`{"decision":"approve","confidence":180}`)
	if review.Confidence != 100 {
		t.Errorf("expected clamp to 100, got %d", review.Confidence)
	}

	// modify without a modifications map downgrades to approve
	review, _ = parseReview(`{"decision":"modify","confidence":60,"rationale":"but no map"}`)
	if review.Decision != types.ReviewApprove {
		t.Errorf("modify without map must downgrade, got %s", review.Decision)
	}

	// reject passes through untouched
	review, _ = parseReview(`{"decision":"reject","confidence":90,"rationale":"too risky"}`)
	if review.Decision != types.ReviewReject {
		t.Errorf("expected reject, got %s", review.Decision)
	}
}


