package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"crypto-trading-agent/internal/exchange"
	"crypto-trading-agent/internal/interfaces"
	"crypto-trading-agent/internal/logger"
	"crypto-trading-agent/internal/signal"
	"crypto-trading-agent/internal/ta"
	"crypto-trading-agent/internal/types"
)

// processSymbol runs one symbol through the state machine: refresh
// bars, compute features and regime, then either manage the open
// position or evaluate a new entry.
func (d *Daemon) processSymbol(ctx context.Context, symbol, decisionID string, nav float64) error {
	fresh, err := d.market.RecentBars(ctx, symbol, d.cfg.Timeframe, fetchBars)
	if err != nil {
		if errors.Is(err, exchange.ErrNoData) {
			logger.Warn(ctx, "no market data yet", "symbol", symbol)
			return nil
		}
		return fmt.Errorf("fetch bars: %w", err)
	}
	if err := d.db.SaveCandles(ctx, symbol, d.cfg.Timeframe, fresh); err != nil {
		return fmt.Errorf("save bars: %w", err)
	}

	candles, err := d.db.GetCandles(ctx, symbol, d.cfg.Timeframe, candleWindow)
	if err != nil {
		return fmt.Errorf("load bars: %w", err)
	}
	if len(candles) < 2 {
		logger.Debug(ctx, "not enough stored bars", "symbol", symbol, "count", len(candles))
		return nil
	}

	rows := ta.Compute(candles)
	regime := d.rules.DetectRegime(rows)
	logger.Debug(ctx, "regime classified",
		"symbol", symbol, "regime", regime, "bars", len(rows), "decision_id", decisionID)

	sentiment := d.refreshSentiment(ctx, symbol)

	position, err := d.db.GetPosition(ctx, symbol)
	if err != nil {
		return fmt.Errorf("load position: %w", err)
	}
	if position != nil {
		return d.checkExits(ctx, symbol, decisionID, rows, position)
	}
	if regime != signal.RegimeTrend {
		return nil
	}
	return d.checkEntries(ctx, symbol, decisionID, rows, regime, sentiment, nav)
}

// checkEntries evaluates a flat symbol in a trend regime. The
// mechanical breakout signal and the advisory gate are independent;
// both must hold before an order is placed. The proposal and review
// are solicited regardless so degraded advisories still leave a trail.
func (d *Daemon) checkEntries(ctx context.Context, symbol, decisionID string, rows []types.FeatureRow, regime string, sentiment *types.SentimentSnapshot, nav float64) error {
	last := rows[len(rows)-1]
	entrySignal := d.rules.CheckEntryLong(rows)

	signals := map[string]any{
		"close":   last.C,
		"donch_u": last.DonchU,
		"rvol":    last.RVol20,
		"cmf":     last.CMF20,
		"atr":     last.ATR14,
		"adx":     last.ADX14,
		"entry":   entrySignal,
	}
	req := interfaces.AdvisoryContext{
		Symbol:    symbol,
		Regime:    regime,
		Signals:   signals,
		Sentiment: sentiment,
	}

	proposal := d.advisor.Propose(ctx, req)
	review := d.consultant.Review(ctx, req, proposal)
	merged, changed := ApplyReview(ctx, proposal, review)

	logger.Decision(ctx, symbol, "entry_evaluated", merged.Confidence, review.Rationale,
		"decision_id", decisionID,
		"signal", entrySignal.Signal,
		"proposal_side", proposal.Side,
		"review_decision", review.Decision,
		"merged_side", merged.Side,
	)

	approved := merged.Side == types.SideLong && merged.Confidence >= 50
	if !entrySignal.Signal || !approved {
		d.logEvent(ctx, types.Event{
			Level: "info", Tags: []string{"decision"}, Symbol: symbol,
			Action: "entry_skipped", DecisionID: decisionID,
			Payload: map[string]any{
				"signal":   entrySignal.Signal,
				"approved": approved,
				"side":     merged.Side,
				"conf":     merged.Confidence,
			},
		})
		return nil
	}

	qty := d.rules.PositionSize(nav, entrySignal.Entry, entrySignal.Stop)
	if qty <= 0 {
		logger.Warn(ctx, "entry sized to zero, skipping",
			"symbol", symbol, "nav", nav, "entry", entrySignal.Entry, "stop", entrySignal.Stop)
		return nil
	}

	fill := d.broker.ExecuteEntry(symbol, types.SideLong, qty, entrySignal.Entry, last.H, last.L)

	rationale := types.DecisionRationale{
		Symbol:     symbol,
		DecisionID: decisionID,
		Regime:     regime,
		Signals:    signals,
		Sentiment:  sentiment,
		Proposal:   &proposal,
		Review:     &review,
		Merged:     &merged,
	}
	rationale.ChangedFields = changed
	rationaleJSON, _ := json.Marshal(rationale)

	tradeID, err := d.db.CreateTrade(ctx, types.Trade{
		Symbol:      symbol,
		Side:        types.SideLong,
		Qty:         qty,
		EntryTs:     fill.Ts,
		EntryPx:     fill.Price,
		Fees:        fill.Fees,
		SlippageBps: fill.SlippageBps,
	}, rationaleJSON)
	if err != nil {
		return fmt.Errorf("create trade: %w", err)
	}

	if err := d.db.UpsertPosition(ctx, types.Position{
		Symbol:   symbol,
		Side:     types.SideLong,
		Qty:      qty,
		AvgPrice: fill.Price,
		Stop:     entrySignal.Stop,
		TradeID:  tradeID,
		OpenedTs: fill.Ts,
	}); err != nil {
		return fmt.Errorf("persist position: %w", err)
	}

	logger.Trade(ctx, symbol, types.SideLong, qty, fill.Price, tradeID,
		"decision_id", decisionID,
		"stop", entrySignal.Stop,
		"slippage_bps", fill.SlippageBps,
		"fees", fill.Fees,
	)
	d.logEvent(ctx, types.Event{
		Level: "info", Tags: []string{"trade"}, Symbol: symbol,
		Action: "entry_filled", DecisionID: decisionID, TradeID: tradeID,
		Payload: map[string]any{
			"qty": qty, "price": fill.Price, "stop": entrySignal.Stop,
			"slippage_bps": fill.SlippageBps,
		},
	})
	return nil
}

// checkExits manages an open position: close it if the live price has
// breached the stop, otherwise ratchet the trailing stop.
func (d *Daemon) checkExits(ctx context.Context, symbol, decisionID string, rows []types.FeatureRow, position *types.Position) error {
	price, err := d.market.LatestPrice(ctx, symbol)
	if err != nil {
		return fmt.Errorf("latest price: %w", err)
	}

	last := rows[len(rows)-1]
	atr := last.ATR14
	decision := d.rules.CheckExitConditions(*position, price, atr)

	if decision.ShouldExit {
		return d.closePosition(ctx, symbol, decisionID, position, decision, last)
	}

	if decision.NewStop > 0 && decision.NewStop > position.Stop {
		old := position.Stop
		position.Stop = decision.NewStop
		if err := d.db.UpsertPosition(ctx, *position); err != nil {
			return fmt.Errorf("update stop: %w", err)
		}
		logger.Info(ctx, "trailing stop raised",
			"symbol", symbol, "old_stop", old, "new_stop", position.Stop,
			"price", price, "decision_id", decisionID)
		d.logEvent(ctx, types.Event{
			Level: "info", Tags: []string{"position"}, Symbol: symbol,
			Action: "stop_raised", DecisionID: decisionID, TradeID: position.TradeID,
			Payload: map[string]any{"old_stop": old, "new_stop": position.Stop, "price": price},
		})
	}
	return nil
}

func (d *Daemon) closePosition(ctx context.Context, symbol, decisionID string, position *types.Position, decision types.ExitDecision, last types.FeatureRow) error {
	fill := d.broker.ExecuteExit(symbol, position.Side, position.Qty,
		decision.ExitPrice, last.H, last.L, position.AvgPrice)

	entryFees := 0.0
	if trade, err := d.db.GetOpenTrade(ctx, symbol); err == nil && trade != nil {
		entryFees = trade.Fees
	}
	totalPnL := fill.PnL - entryFees
	if math.IsNaN(totalPnL) {
		totalPnL = 0
	}

	rationale := types.DecisionRationale{
		Symbol:     symbol,
		DecisionID: decisionID,
		Position:   position,
		Signals: map[string]any{
			"exit_reason": decision.Reason,
			"exit_price":  decision.ExitPrice,
			"fill_price":  fill.Price,
			"stop":        position.Stop,
		},
	}
	rationaleJSON, _ := json.Marshal(rationale)

	if err := d.db.CloseTrade(ctx, position.TradeID, fill.Price, fill.Fees,
		fill.SlippageBps, totalPnL, decision.Reason, rationaleJSON); err != nil {
		return fmt.Errorf("close trade: %w", err)
	}
	if err := d.db.DeletePosition(ctx, symbol); err != nil {
		return fmt.Errorf("delete position: %w", err)
	}

	logger.Trade(ctx, symbol, "sell", position.Qty, fill.Price, position.TradeID,
		"decision_id", decisionID,
		"reason", decision.Reason,
		"pnl", totalPnL,
		"slippage_bps", fill.SlippageBps,
	)
	d.logEvent(ctx, types.Event{
		Level: "info", Tags: []string{"trade"}, Symbol: symbol,
		Action: "exit_filled", DecisionID: decisionID, TradeID: position.TradeID,
		Payload: map[string]any{
			"reason": decision.Reason, "price": fill.Price,
			"pnl": totalPnL, "slippage_bps": fill.SlippageBps,
		},
	})
	return nil
}
