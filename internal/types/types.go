package types

import "time"

// Candle is one raw OHLCV bar.
type Candle struct {
	Ts            time.Time `json:"ts"`
	O, H, L, C, V float64
}

// FeatureRow is a candle plus the derived indicators the pipeline reads.
// Warm-up rows carry NaN in indicator fields; consumers treat NaN as
// insufficient data, never as an error.
type FeatureRow struct {
	Ts     time.Time
	O      float64
	H      float64
	L      float64
	C      float64
	V      float64
	EMA20  float64
	EMA50  float64
	EMA200 float64
	RSI14  float64
	ATR14  float64
	ADX14  float64
	DonchU float64 // rolling high of the prior 20 bars
	DonchL float64 // rolling low of the prior 20 bars
	CMF20  float64
	RVol20 float64
}

// EntrySignal is the mechanical breakout signal from the signal engine.
type EntrySignal struct {
	Signal     bool    `json:"signal"`
	Side       string  `json:"side,omitempty"`
	Entry      float64 `json:"entry,omitempty"`
	Stop       float64 `json:"stop,omitempty"`
	ATR        float64 `json:"atr,omitempty"`
	Confidence int     `json:"confidence,omitempty"`
}

// ExitDecision reports whether an open position should close, or whether
// its trailing stop should tighten. NewStop is zero when no update applies.
type ExitDecision struct {
	ShouldExit bool    `json:"should_exit"`
	Reason     string  `json:"reason,omitempty"`
	ExitPrice  float64 `json:"exit_price,omitempty"`
	NewStop    float64 `json:"new_stop,omitempty"`
}

const (
	SideLong  = "long"
	SideShort = "short"
	SideFlat  = "flat"
)

const (
	ReviewApprove = "approve"
	ReviewReject  = "reject"
	ReviewModify  = "modify"
)

// StopSpec is the advisory stop description inside a proposal.
type StopSpec struct {
	Type       string  `json:"type"`
	Multiplier float64 `json:"multiplier"`
}

// TakeProfitSpec is the advisory take-profit description (risk/reward).
type TakeProfitSpec struct {
	RR float64 `json:"rr"`
}

// ProposalMeta records how a proposal was obtained.
type ProposalMeta struct {
	Model         string `json:"model"`
	LatencyMs     int64  `json:"latency_ms"`
	UsedFallback  bool   `json:"used_fallback"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// Proposal is the structured advisory opinion from the generative model.
// It is transient; only its serialized rationale is persisted.
type Proposal struct {
	Symbol      string         `json:"symbol"`
	Side        string         `json:"side"`
	Confidence  int            `json:"confidence"`
	Reasons     []string       `json:"reasons"`
	Entry       string         `json:"entry"`
	Stop        StopSpec       `json:"stop"`
	TakeProfit  TakeProfitSpec `json:"take_profit"`
	MaxHoldBars int            `json:"max_hold_bars"`
	Meta        ProposalMeta   `json:"meta"`
}

// ConsultantReview is the second, independent opinion on a proposal.
// It is always populated; fallback auto-approval carries the failure
// reason in Rationale.
type ConsultantReview struct {
	Decision      string         `json:"decision"`
	Confidence    int            `json:"confidence"`
	Rationale     string         `json:"rationale"`
	Modifications map[string]any `json:"modifications,omitempty"`
}

// Position is the single open position for a symbol.
type Position struct {
	Symbol       string    `json:"symbol"`
	Side         string    `json:"side"`
	Qty          float64   `json:"qty"`
	AvgPrice     float64   `json:"avg_price"`
	Stop         float64   `json:"stop"`
	TradeID      uint      `json:"trade_id"`
	OpenedTs     time.Time `json:"opened_ts"`
	LastUpdateTs time.Time `json:"last_update_ts"`
}

// Trade is the immutable entry record, later closed with exit data.
// A Trade with zero ExitTs is open.
type Trade struct {
	ID          uint      `json:"id"`
	Symbol      string    `json:"symbol"`
	Side        string    `json:"side"`
	Qty         float64   `json:"qty"`
	EntryTs     time.Time `json:"entry_ts"`
	EntryPx     float64   `json:"entry_px"`
	Fees        float64   `json:"fees"`
	SlippageBps float64   `json:"slippage_bps"`
	ExitTs      time.Time `json:"exit_ts,omitempty"`
	ExitPx      float64   `json:"exit_px,omitempty"`
	PnL         float64   `json:"pnl,omitempty"`
	Reason      string    `json:"reason,omitempty"`
}

// Fill is a simulated execution produced by the paper broker.
type Fill struct {
	Symbol      string    `json:"symbol"`
	Side        string    `json:"side"`
	Qty         float64   `json:"qty"`
	Price       float64   `json:"price"`
	Fees        float64   `json:"fees"`
	SlippageBps float64   `json:"slippage_bps"`
	PnL         float64   `json:"pnl,omitempty"`
	Ts          time.Time `json:"ts"`
}

// NAVSnapshot is a point-in-time account valuation.
type NAVSnapshot struct {
	Ts            time.Time `json:"ts"`
	NAV           float64   `json:"nav_usd"`
	RealizedPnL   float64   `json:"realized_pnl"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	DrawdownPct   float64   `json:"dd_pct"`
}

// SentimentSources is the provenance blob attached to a sentiment snapshot.
type SentimentSources struct {
	Reasoning   string   `json:"reasoning"`
	Citations   []string `json:"citations"`
	Model       string   `json:"model"`
	DataQuality string   `json:"data_quality,omitempty"`
}

// SentimentSnapshot is the per-symbol sentiment reading, refreshed at most
// twice per UTC day.
type SentimentSnapshot struct {
	Symbol  string           `json:"symbol"`
	Ts      time.Time        `json:"ts"`
	Sent24h float64          `json:"sent_24h"`
	Sent7d  float64          `json:"sent_7d"`
	Trend   float64          `json:"sent_trend"`
	Burst   float64          `json:"burst"`
	Sources SentimentSources `json:"sources"`
}

// Event is one structured audit-log record.
type Event struct {
	Ts         time.Time      `json:"ts"`
	Level      string         `json:"level"`
	Tags       []string       `json:"tags"`
	Symbol     string         `json:"symbol,omitempty"`
	TF         string         `json:"tf,omitempty"`
	Action     string         `json:"action,omitempty"`
	DecisionID string         `json:"decision_id,omitempty"`
	TradeID    uint           `json:"trade_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// TradeStats summarizes closed trades for the reflection report.
type TradeStats struct {
	Count   int     `json:"trades_count"`
	WinRate float64 `json:"win_rate"`
	AvgPnL  float64 `json:"avg_pnl"`
}

// Reflection is the periodic qualitative performance report.
type Reflection struct {
	Ts     time.Time      `json:"ts"`
	Window string         `json:"window"`
	Title  string         `json:"title"`
	Body   string         `json:"body"`
	Stats  map[string]any `json:"stats,omitempty"`
}

// DecisionRationale bundles every input and output behind a trade decision.
// It is serialized to JSON and attached to trade creation and closing.
type DecisionRationale struct {
	Symbol        string             `json:"symbol"`
	DecisionID    string             `json:"decision_id"`
	Regime        string             `json:"regime"`
	Signals       map[string]any     `json:"signals,omitempty"`
	Sentiment     *SentimentSnapshot `json:"sentiment,omitempty"`
	Position      *Position          `json:"position,omitempty"`
	Proposal      *Proposal          `json:"proposal,omitempty"`
	Review        *ConsultantReview  `json:"review,omitempty"`
	Merged        *Proposal          `json:"merged,omitempty"`
	ChangedFields []string           `json:"changed_fields,omitempty"`
}
