package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"crypto-trading-agent/internal/exchange"
	"crypto-trading-agent/internal/interfaces"
	"crypto-trading-agent/internal/types"
)

// fakeStore is an in-memory Store for daemon tests.
type fakeStore struct {
	mu          sync.Mutex
	candles     map[string][]types.Candle
	positions   map[string]types.Position
	trades      map[uint]*types.Trade
	rationales  map[uint][]byte
	nextTradeID uint
	nav         []types.NAVSnapshot
	config      map[string]float64
	events      []types.Event
	sentiments  map[string][]types.SentimentSnapshot
	reflections []types.Reflection
}

var _ interfaces.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		candles:    map[string][]types.Candle{},
		positions:  map[string]types.Position{},
		trades:     map[uint]*types.Trade{},
		rationales: map[uint][]byte{},
		config:     map[string]float64{},
		sentiments: map[string][]types.SentimentSnapshot{},
	}
}

func (f *fakeStore) SaveCandles(_ context.Context, symbol, _ string, candles []types.Candle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing := f.candles[symbol]
	for _, c := range candles {
		dup := false
		for _, e := range existing {
			if e.Ts.Equal(c.Ts) {
				dup = true
				break
			}
		}
		if !dup {
			existing = append(existing, c)
		}
	}
	f.candles[symbol] = existing
	return nil
}

func (f *fakeStore) GetCandles(_ context.Context, symbol, _ string, limit int) ([]types.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cs := f.candles[symbol]
	if len(cs) > limit {
		cs = cs[len(cs)-limit:]
	}
	out := make([]types.Candle, len(cs))
	copy(out, cs)
	return out, nil
}

func (f *fakeStore) GetPosition(_ context.Context, symbol string) (*types.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.positions[symbol]; ok {
		cp := p
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeStore) GetPositions(context.Context) ([]types.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]types.Position, 0, len(f.positions))
	for _, p := range f.positions {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeStore) UpsertPosition(_ context.Context, p types.Position) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positions[p.Symbol] = p
	return nil
}

func (f *fakeStore) DeletePosition(_ context.Context, symbol string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.positions, symbol)
	return nil
}

func (f *fakeStore) CreateTrade(_ context.Context, t types.Trade, rationale []byte) (uint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextTradeID++
	t.ID = f.nextTradeID
	f.trades[t.ID] = &t
	f.rationales[t.ID] = rationale
	return t.ID, nil
}

func (f *fakeStore) CloseTrade(_ context.Context, id uint, exitPx, exitFees, exitSlippageBps, pnl float64, reason string, rationale []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.trades[id]
	if !ok {
		return errors.New("no such trade")
	}
	t.ExitTs = time.Now().UTC()
	t.ExitPx = exitPx
	t.Fees += exitFees
	t.SlippageBps = (t.SlippageBps + exitSlippageBps) / 2
	t.PnL = pnl
	t.Reason = reason
	if len(rationale) > 0 {
		f.rationales[id] = rationale
	}
	return nil
}

func (f *fakeStore) GetOpenTrade(_ context.Context, symbol string) (*types.Trade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.trades {
		if t.Symbol == symbol && t.ExitTs.IsZero() {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) TotalRealizedPnL(context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0.0
	for _, t := range f.trades {
		if !t.ExitTs.IsZero() {
			total += t.PnL
		}
	}
	return total, nil
}

func (f *fakeStore) TradeStats(_ context.Context, since time.Time) (types.TradeStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := types.TradeStats{}
	wins, sum := 0, 0.0
	for _, t := range f.trades {
		if t.ExitTs.IsZero() || t.ExitTs.Before(since) {
			continue
		}
		stats.Count++
		sum += t.PnL
		if t.PnL > 0 {
			wins++
		}
	}
	if stats.Count > 0 {
		stats.WinRate = float64(wins) / float64(stats.Count) * 100
		stats.AvgPnL = sum / float64(stats.Count)
	}
	return stats, nil
}

func (f *fakeStore) AppendNAV(_ context.Context, snap types.NAVSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nav = append(f.nav, snap)
	return nil
}

func (f *fakeStore) LatestNAV(context.Context) (*types.NAVSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.nav) == 0 {
		return nil, nil
	}
	cp := f.nav[len(f.nav)-1]
	return &cp, nil
}

func (f *fakeStore) GetConfigFloat(_ context.Context, key string) (float64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.config[key]
	return v, ok, nil
}

func (f *fakeStore) SetConfigFloat(_ context.Context, key string, v float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.config[key] = v
	return nil
}

func (f *fakeStore) LogEvent(_ context.Context, ev types.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeStore) SaveSentiment(_ context.Context, s types.SentimentSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sentiments[s.Symbol] = append(f.sentiments[s.Symbol], s)
	return nil
}

func (f *fakeStore) LatestSentiment(_ context.Context, symbol string) (*types.SentimentSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snaps := f.sentiments[symbol]
	if len(snaps) == 0 {
		return nil, nil
	}
	cp := snaps[len(snaps)-1]
	return &cp, nil
}

func (f *fakeStore) SaveReflection(_ context.Context, r types.Reflection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reflections = append(f.reflections, r)
	return nil
}

// fakeMarket serves canned bars and prices per symbol.
type fakeMarket struct {
	bars   map[string][]types.Candle
	prices map[string]float64
	errs   map[string]error
}

var _ interfaces.MarketData = (*fakeMarket)(nil)

func newFakeMarket() *fakeMarket {
	return &fakeMarket{
		bars:   map[string][]types.Candle{},
		prices: map[string]float64{},
		errs:   map[string]error{},
	}
}

func (m *fakeMarket) RecentBars(_ context.Context, symbol, _ string, limit int) ([]types.Candle, error) {
	if err := m.errs[symbol]; err != nil {
		return nil, err
	}
	bars := m.bars[symbol]
	if len(bars) == 0 {
		return nil, exchange.ErrNoData
	}
	if len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	return bars, nil
}

func (m *fakeMarket) LatestPrice(_ context.Context, symbol string) (float64, error) {
	if err := m.errs[symbol]; err != nil {
		return 0, err
	}
	return m.prices[symbol], nil
}

func (m *fakeMarket) WarmUp(_ context.Context, symbol, _ string, _ int) ([]types.Candle, error) {
	return m.bars[symbol], nil
}

// fakeAdvisor returns a canned proposal and counts calls.
type fakeAdvisor struct {
	proposal types.Proposal
	calls    int
}

func (a *fakeAdvisor) Propose(_ context.Context, req interfaces.AdvisoryContext) types.Proposal {
	a.calls++
	p := a.proposal
	p.Symbol = req.Symbol
	return p
}

// fakeConsultant returns a canned review and counts calls.
type fakeConsultant struct {
	review types.ConsultantReview
	calls  int
}

func (c *fakeConsultant) Review(context.Context, interfaces.AdvisoryContext, types.Proposal) types.ConsultantReview {
	c.calls++
	return c.review
}

// fakeSentiment counts Analyze calls.
type fakeSentiment struct {
	snap  types.SentimentSnapshot
	err   error
	calls int
}

func (s *fakeSentiment) Analyze(_ context.Context, symbol string) (types.SentimentSnapshot, error) {
	s.calls++
	if s.err != nil {
		return types.SentimentSnapshot{}, s.err
	}
	snap := s.snap
	snap.Symbol = symbol
	if snap.Ts.IsZero() {
		snap.Ts = time.Now().UTC()
	}
	return snap, nil
}

// fakeReflector returns a canned reflection.
type fakeReflector struct {
	calls int
}

func (r *fakeReflector) Generate(_ context.Context, window string, stats map[string]any) (types.Reflection, error) {
	r.calls++
	return types.Reflection{
		Ts:     time.Now().UTC(),
		Window: window,
		Title:  "test reflection",
		Body:   "nothing notable",
		Stats:  stats,
	}, nil
}
