package paper

import (
	"time"

	"crypto-trading-agent/internal/types"
)

// Broker simulates fills against live prices. Entries and exits are
// both filled at a price worse than quoted, with slippage scaled to the
// current bar's range and a flat taker fee.
type Broker struct {
	feeBps         float64
	slippageK      float64
	minSlippageBps float64
}

func NewBroker(feeBps, slippageK, minSlippageBps float64) *Broker {
	return &Broker{feeBps: feeBps, slippageK: slippageK, minSlippageBps: minSlippageBps}
}

// SlippageBps models impact as a fraction of the bar's high-low range,
// floored so even a flat bar pays something.
func (b *Broker) SlippageBps(high, low, price float64) float64 {
	if price <= 0 {
		return b.minSlippageBps
	}
	rangeBps := (high - low) / price * 10000
	slip := b.slippageK * rangeBps
	if slip < b.minSlippageBps {
		return b.minSlippageBps
	}
	return slip
}

// ExecuteEntry fills an opening order. Longs fill above the quoted
// price, shorts below.
func (b *Broker) ExecuteEntry(symbol, side string, qty, price, high, low float64) types.Fill {
	slip := b.SlippageBps(high, low, price)
	fill := price * (1 + slip/10000)
	if side == types.SideShort {
		fill = price * (1 - slip/10000)
	}
	return types.Fill{
		Symbol:      symbol,
		Side:        side,
		Qty:         qty,
		Price:       fill,
		Fees:        fill * qty * b.feeBps / 10000,
		SlippageBps: slip,
		Ts:          time.Now().UTC(),
	}
}

// ExecuteExit fills a closing order and computes the realized PnL net
// of the exit fee. The caller subtracts entry fees from the total.
func (b *Broker) ExecuteExit(symbol, side string, qty, price, high, low, entryPx float64) types.Fill {
	slip := b.SlippageBps(high, low, price)
	fill := price * (1 - slip/10000)
	if side == types.SideShort {
		fill = price * (1 + slip/10000)
	}
	fees := fill * qty * b.feeBps / 10000
	pnl := (fill - entryPx) * qty
	if side == types.SideShort {
		pnl = (entryPx - fill) * qty
	}
	return types.Fill{
		Symbol:      symbol,
		Side:        side,
		Qty:         qty,
		Price:       fill,
		Fees:        fees,
		SlippageBps: slip,
		PnL:         pnl - fees,
		Ts:          time.Now().UTC(),
	}
}
