package signal

import (
	"math"

	"crypto-trading-agent/internal/types"
)

const (
	RegimeTrend = "trend"
	RegimeChop  = "chop"

	ReasonStopLoss = "STOP_LOSS"

	minRegimeBars = 200
	minEntryBars  = 20
)

// Engine holds the mechanical trading rules: regime filter, breakout
// entry, stop-driven exits and risk-based sizing. It is deterministic
// and does no I/O.
type Engine struct {
	maxRiskPerTrade      float64
	maxExposurePerSymbol float64
	atrMult              float64
	rvolThreshold        float64
	adxThreshold         float64
	entryConfidence      int
}

func NewEngine(maxRiskPerTrade, maxExposurePerSymbol, atrMult float64) *Engine {
	return &Engine{
		maxRiskPerTrade:      maxRiskPerTrade,
		maxExposurePerSymbol: maxExposurePerSymbol,
		atrMult:              atrMult,
		rvolThreshold:        1.5,
		adxThreshold:         20,
		entryConfidence:      70,
	}
}

// DetectRegime classifies the market as trending or choppy. Fewer than
// 200 bars, or missing indicators on the last bar, always means chop.
func (e *Engine) DetectRegime(rows []types.FeatureRow) string {
	if len(rows) < minRegimeBars {
		return RegimeChop
	}
	last := rows[len(rows)-1]
	if math.IsNaN(last.ADX14) || math.IsNaN(last.EMA50) || math.IsNaN(last.EMA200) {
		return RegimeChop
	}
	if last.ADX14 > e.adxThreshold && last.EMA50 > last.EMA200 {
		return RegimeTrend
	}
	return RegimeChop
}

// CheckEntryLong fires on a fresh Donchian breakout: the close crosses
// above the prior 20-bar high on elevated volume with positive money
// flow. The previous bar must not already have been above the band, so
// an established breakout never re-triggers. Fewer rows than a full
// Donchian window never fires, whatever the indicators say.
func (e *Engine) CheckEntryLong(rows []types.FeatureRow) types.EntrySignal {
	if len(rows) < minEntryBars {
		return types.EntrySignal{}
	}
	last := rows[len(rows)-1]
	prev := rows[len(rows)-2]
	if hasNaN(last.DonchU, last.RVol20, last.CMF20, last.ATR14, prev.DonchU) {
		return types.EntrySignal{}
	}
	breakout := last.C > last.DonchU && prev.C <= prev.DonchU
	if !breakout || last.RVol20 <= e.rvolThreshold || last.CMF20 <= 0 {
		return types.EntrySignal{}
	}
	return types.EntrySignal{
		Signal:     true,
		Side:       types.SideLong,
		Entry:      last.C,
		Stop:       last.C - e.atrMult*last.ATR14,
		ATR:        last.ATR14,
		Confidence: e.entryConfidence,
	}
}

// CheckExitConditions evaluates an open long against the current price.
// A price strictly below the stop closes the position; otherwise the
// trailing stop ratchets up to price minus atrMult ATRs, never down.
func (e *Engine) CheckExitConditions(pos types.Position, price, atr float64) types.ExitDecision {
	if price < pos.Stop {
		return types.ExitDecision{
			ShouldExit: true,
			Reason:     ReasonStopLoss,
			ExitPrice:  price,
		}
	}
	if math.IsNaN(atr) || atr <= 0 {
		return types.ExitDecision{}
	}
	trail := price - e.atrMult*atr
	if trail > pos.Stop {
		return types.ExitDecision{NewStop: trail}
	}
	return types.ExitDecision{}
}

// PositionSize returns the quantity for a new long, capped both by risk
// per trade and by exposure per symbol, rounded to 8 decimal places.
// A degenerate stop (equal to entry) sizes to zero.
func (e *Engine) PositionSize(nav, entry, stop float64) float64 {
	if hasNaN(nav, entry, stop) || nav <= 0 || entry <= 0 {
		return 0
	}
	risk := math.Abs(entry - stop)
	if risk == 0 {
		return 0
	}
	byRisk := nav * e.maxRiskPerTrade / risk
	byExposure := nav * e.maxExposurePerSymbol / entry
	qty := math.Min(byRisk, byExposure)
	return math.Round(qty*1e8) / 1e8
}

func hasNaN(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
