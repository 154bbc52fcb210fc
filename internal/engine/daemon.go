package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"crypto-trading-agent/internal/interfaces"
	"crypto-trading-agent/internal/logger"
	"crypto-trading-agent/internal/paper"
	"crypto-trading-agent/internal/signal"
	"crypto-trading-agent/internal/store"
	"crypto-trading-agent/internal/types"
)

const (
	keyInitialNAV = "initial_nav"
	keyPeakNAV    = "peak_nav"

	defaultInitialNAV = 10000.0
	candleWindow      = 250
	fetchBars         = 5
)

// Daemon is the orchestrator: it drives the per-symbol decision state
// machine on a fixed cycle, keeps NAV and drawdown current, refreshes
// sentiment twice per UTC day, and emits a reflection report on a
// configurable cadence. One symbol failing never stops the others.
type Daemon struct {
	cfg        *store.Config
	market     interfaces.MarketData
	db         interfaces.Store
	rules      *signal.Engine
	broker     *paper.Broker
	advisor    interfaces.Advisor
	consultant interfaces.Consultant
	sentiment  interfaces.SentimentSource
	reflector  interfaces.Reflector

	cycleCount int
	// symbol -> half-day window key of the last sentiment refresh
	sentimentMarks map[string]string
}

var _ interfaces.Engine = (*Daemon)(nil)

func NewDaemon(
	cfg *store.Config,
	market interfaces.MarketData,
	db interfaces.Store,
	rules *signal.Engine,
	broker *paper.Broker,
	advisor interfaces.Advisor,
	consultant interfaces.Consultant,
	sentimentSrc interfaces.SentimentSource,
	reflector interfaces.Reflector,
) *Daemon {
	return &Daemon{
		cfg:            cfg,
		market:         market,
		db:             db,
		rules:          rules,
		broker:         broker,
		advisor:        advisor,
		consultant:     consultant,
		sentiment:      sentimentSrc,
		reflector:      reflector,
		sentimentMarks: map[string]string{},
	}
}

// Run executes cycles on a fixed interval until the context is
// cancelled. A panic inside a cycle is recovered and logged so a bad
// cycle never kills the daemon. It takes the Engine interface so the
// observability wrapper sits between the loop and the cycle.
func Run(ctx context.Context, eng interfaces.Engine, interval time.Duration) error {
	logger.Info(ctx, "daemon starting", "cycle_interval", interval.String())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	safeCycle(ctx, eng)
	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "daemon stopping")
			return ctx.Err()
		case <-ticker.C:
			safeCycle(ctx, eng)
		}
	}
}

func safeCycle(ctx context.Context, eng interfaces.Engine) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "cycle panicked", "panic", fmt.Sprintf("%v", r))
		}
	}()
	if err := eng.RunCycle(ctx); err != nil {
		logger.ErrorWithErr(ctx, "cycle failed", err)
	}
}

// RunCycle runs one full pass: every symbol through the state machine,
// then a NAV snapshot, then (on cadence) a reflection report.
func (d *Daemon) RunCycle(ctx context.Context) error {
	decisionID := uuid.NewString()[:8]
	d.cycleCount++
	cycleStart := time.Now()

	logger.Info(ctx, "cycle started", "decision_id", decisionID, "cycle", d.cycleCount)

	nav, err := d.currentNAV(ctx)
	if err != nil {
		return fmt.Errorf("compute NAV: %w", err)
	}

	for _, symbol := range d.cfg.Symbols {
		if err := d.safeProcessSymbol(ctx, symbol, decisionID, nav.NAV); err != nil {
			logger.ErrorWithErr(ctx, "symbol processing failed", err,
				"symbol", symbol, "decision_id", decisionID)
			d.logEvent(ctx, types.Event{
				Level: "error", Tags: []string{"cycle"}, Symbol: symbol,
				Action: "symbol_failed", DecisionID: decisionID,
				Payload: map[string]any{"error": err.Error()},
			})
		}
	}

	if err := d.updateNAV(ctx); err != nil {
		logger.ErrorWithErr(ctx, "NAV update failed", err, "decision_id", decisionID)
	}

	if d.cfg.Reflection.EveryNCycles > 0 && d.cycleCount%d.cfg.Reflection.EveryNCycles == 0 {
		d.runReflection(ctx)
	}

	logger.Info(ctx, "cycle finished",
		"decision_id", decisionID, "cycle", d.cycleCount,
		"duration_ms", time.Since(cycleStart).Milliseconds())
	return nil
}

func (d *Daemon) safeProcessSymbol(ctx context.Context, symbol, decisionID string, nav float64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return d.processSymbol(ctx, symbol, decisionID, nav)
}

// currentNAV values the account: configured starting capital plus
// realized PnL plus marked-to-market open positions.
func (d *Daemon) currentNAV(ctx context.Context) (types.NAVSnapshot, error) {
	initial, ok, err := d.db.GetConfigFloat(ctx, keyInitialNAV)
	if err != nil {
		return types.NAVSnapshot{}, err
	}
	if !ok {
		initial = defaultInitialNAV
	}

	realized, err := d.db.TotalRealizedPnL(ctx)
	if err != nil {
		return types.NAVSnapshot{}, err
	}

	unrealized := 0.0
	positions, err := d.db.GetPositions(ctx)
	if err != nil {
		return types.NAVSnapshot{}, err
	}
	for _, p := range positions {
		price, err := d.market.LatestPrice(ctx, p.Symbol)
		if err != nil {
			logger.Warn(ctx, "mark-to-market price unavailable, using entry price",
				"symbol", p.Symbol, "error", err.Error())
			price = p.AvgPrice
		}
		if p.Side == types.SideShort {
			unrealized += (p.AvgPrice - price) * p.Qty
		} else {
			unrealized += (price - p.AvgPrice) * p.Qty
		}
	}

	return types.NAVSnapshot{
		Ts:            time.Now().UTC(),
		NAV:           initial + realized + unrealized,
		RealizedPnL:   realized,
		UnrealizedPnL: unrealized,
	}, nil
}

// updateNAV appends a NAV snapshot with drawdown against the
// persistent peak. The peak only ever rises.
func (d *Daemon) updateNAV(ctx context.Context) error {
	snap, err := d.currentNAV(ctx)
	if err != nil {
		return err
	}

	peak, ok, err := d.db.GetConfigFloat(ctx, keyPeakNAV)
	if err != nil {
		return err
	}
	if !ok || snap.NAV > peak {
		peak = snap.NAV
		if err := d.db.SetConfigFloat(ctx, keyPeakNAV, peak); err != nil {
			return err
		}
	}
	if peak > 0 {
		snap.DrawdownPct = (peak - snap.NAV) / peak * 100
	}

	logger.Debug(ctx, "NAV snapshot",
		"nav", snap.NAV, "realized", snap.RealizedPnL,
		"unrealized", snap.UnrealizedPnL, "dd_pct", snap.DrawdownPct)
	return d.db.AppendNAV(ctx, snap)
}

func (d *Daemon) runReflection(ctx context.Context) {
	window := fmt.Sprintf("last %d cycles", d.cfg.Reflection.EveryNCycles)
	since := time.Now().Add(-time.Duration(d.cfg.Reflection.EveryNCycles*d.cfg.CycleSeconds) * time.Second)

	stats, err := d.db.TradeStats(ctx, since)
	if err != nil {
		logger.ErrorWithErr(ctx, "reflection stats query failed", err)
		return
	}
	nav, err := d.db.LatestNAV(ctx)
	if err != nil {
		logger.ErrorWithErr(ctx, "reflection NAV query failed", err)
		return
	}

	payload := map[string]any{
		"trades_count": stats.Count,
		"win_rate":     stats.WinRate,
		"avg_pnl":      stats.AvgPnL,
	}
	if nav != nil {
		payload["nav"] = nav.NAV
		payload["dd_pct"] = nav.DrawdownPct
	}

	reflection, err := d.reflector.Generate(ctx, window, payload)
	if err != nil {
		logger.ErrorWithErr(ctx, "reflection generation failed", err, "window", window)
		return
	}
	if err := d.db.SaveReflection(ctx, reflection); err != nil {
		logger.ErrorWithErr(ctx, "reflection save failed", err)
		return
	}
	logger.Info(ctx, "reflection saved", "window", window, "title", reflection.Title)
}

func (d *Daemon) logEvent(ctx context.Context, ev types.Event) {
	if ev.Ts.IsZero() {
		ev.Ts = time.Now().UTC()
	}
	if ev.TF == "" {
		ev.TF = d.cfg.Timeframe
	}
	if err := d.db.LogEvent(ctx, ev); err != nil {
		logger.Warn(ctx, "event log write failed", "action", ev.Action, "error", err.Error())
	}
}
