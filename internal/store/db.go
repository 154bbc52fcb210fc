package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"crypto-trading-agent/internal/types"
)

// DB is the gorm-backed persistence layer. It is the single source of
// truth for candles, positions, trades, NAV, sentiment and audit events.
type DB struct {
	db *gorm.DB
}

// Connect opens the postgres connection and migrates the schema.
func Connect(dsn string) (*DB, error) {
	if dsn == "" {
		return nil, errors.New("empty database DSN")
	}
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := gdb.AutoMigrate(
		&CandleRow{}, &PositionRow{}, &TradeRow{}, &NAVRow{},
		&EventRow{}, &SentimentRow{}, &ReflectionRow{}, &ConfigRow{},
	); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &DB{db: gdb}, nil
}

// NewWithGorm wraps an existing gorm handle.
func NewWithGorm(gdb *gorm.DB) *DB { return &DB{db: gdb} }

func (s *DB) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// --- candles ---------------------------------------------------------------

func (s *DB) SaveCandles(ctx context.Context, symbol, tf string, candles []types.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	rows := make([]CandleRow, 0, len(candles))
	for _, c := range candles {
		rows = append(rows, CandleRow{
			Symbol: symbol, TF: tf, Ts: c.Ts.UTC(),
			O: c.O, H: c.H, L: c.L, C: c.C, V: c.V,
		})
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}, {Name: "tf"}, {Name: "ts"}},
		DoUpdates: clause.AssignmentColumns([]string{"o", "h", "l", "c", "v"}),
	}).Create(&rows).Error
}

// GetCandles returns up to limit bars ordered ascending by time.
func (s *DB) GetCandles(ctx context.Context, symbol, tf string, limit int) ([]types.Candle, error) {
	var rows []CandleRow
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND tf = ?", symbol, tf).
		Order("ts DESC").Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]types.Candle, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		r := rows[i]
		out = append(out, types.Candle{Ts: r.Ts, O: r.O, H: r.H, L: r.L, C: r.C, V: r.V})
	}
	return out, nil
}

// --- positions -------------------------------------------------------------

func (s *DB) GetPosition(ctx context.Context, symbol string) (*types.Position, error) {
	var row PositionRow
	err := s.db.WithContext(ctx).Where("symbol = ?", symbol).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p := positionFromRow(row)
	return &p, nil
}

func (s *DB) GetPositions(ctx context.Context) ([]types.Position, error) {
	var rows []PositionRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]types.Position, 0, len(rows))
	for _, r := range rows {
		out = append(out, positionFromRow(r))
	}
	return out, nil
}

func (s *DB) UpsertPosition(ctx context.Context, p types.Position) error {
	now := time.Now().UTC()
	row := PositionRow{
		Symbol: p.Symbol, Qty: p.Qty, AvgPrice: p.AvgPrice, Side: p.Side,
		Stop: p.Stop, TradeID: p.TradeID,
		OpenedTs: p.OpenedTs, LastUpdateTs: now,
	}
	if row.OpenedTs.IsZero() {
		row.OpenedTs = now
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "symbol"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"qty", "avg_price", "side", "stop", "trade_id", "last_update_ts",
		}),
	}).Create(&row).Error
}

func (s *DB) DeletePosition(ctx context.Context, symbol string) error {
	return s.db.WithContext(ctx).Where("symbol = ?", symbol).Delete(&PositionRow{}).Error
}

func positionFromRow(r PositionRow) types.Position {
	return types.Position{
		Symbol: r.Symbol, Side: r.Side, Qty: r.Qty, AvgPrice: r.AvgPrice,
		Stop: r.Stop, TradeID: r.TradeID,
		OpenedTs: r.OpenedTs, LastUpdateTs: r.LastUpdateTs,
	}
}

// --- trades ----------------------------------------------------------------

func (s *DB) CreateTrade(ctx context.Context, t types.Trade, rationale []byte) (uint, error) {
	row := TradeRow{
		Symbol: t.Symbol, Side: t.Side, Qty: t.Qty,
		EntryTs: t.EntryTs, EntryPx: t.EntryPx,
		Fees: t.Fees, SlippageBps: t.SlippageBps,
	}
	if len(rationale) > 0 {
		row.Rationale = datatypes.JSON(rationale)
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return 0, err
	}
	return row.ID, nil
}

// CloseTrade fills the exit columns. Fees accumulate and slippage is
// blended with the entry value, matching the audit schema.
func (s *DB) CloseTrade(ctx context.Context, id uint, exitPx, exitFees, exitSlippageBps, pnl float64, reason string, rationale []byte) error {
	now := time.Now().UTC()
	updates := map[string]any{
		"exit_ts":      now,
		"exit_px":      exitPx,
		"fees":         gorm.Expr("fees + ?", exitFees),
		"slippage_bps": gorm.Expr("(slippage_bps + ?) / 2", exitSlippageBps),
		"pn_l":         pnl,
		"reason":       reason,
	}
	if len(rationale) > 0 {
		updates["rationale"] = datatypes.JSON(rationale)
	}
	return s.db.WithContext(ctx).Model(&TradeRow{}).Where("id = ?", id).Updates(updates).Error
}

func (s *DB) GetOpenTrade(ctx context.Context, symbol string) (*types.Trade, error) {
	var row TradeRow
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND exit_ts IS NULL", symbol).
		Order("entry_ts DESC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t := tradeFromRow(row)
	return &t, nil
}

func (s *DB) ListTrades(ctx context.Context, limit int) ([]types.Trade, error) {
	var rows []TradeRow
	err := s.db.WithContext(ctx).Order("entry_ts DESC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]types.Trade, 0, len(rows))
	for _, r := range rows {
		out = append(out, tradeFromRow(r))
	}
	return out, nil
}

func (s *DB) TotalRealizedPnL(ctx context.Context) (float64, error) {
	var total float64
	err := s.db.WithContext(ctx).Model(&TradeRow{}).
		Where("pn_l IS NOT NULL").
		Select("COALESCE(SUM(pn_l), 0)").Scan(&total).Error
	return total, err
}

func (s *DB) TradeStats(ctx context.Context, since time.Time) (types.TradeStats, error) {
	var rows []TradeRow
	err := s.db.WithContext(ctx).
		Where("exit_ts IS NOT NULL AND exit_ts >= ?", since).
		Find(&rows).Error
	if err != nil {
		return types.TradeStats{}, err
	}
	stats := types.TradeStats{Count: len(rows)}
	if len(rows) == 0 {
		return stats, nil
	}
	wins := 0
	sum := 0.0
	for _, r := range rows {
		if r.PnL != nil {
			sum += *r.PnL
			if *r.PnL > 0 {
				wins++
			}
		}
	}
	stats.WinRate = float64(wins) / float64(len(rows)) * 100
	stats.AvgPnL = sum / float64(len(rows))
	return stats, nil
}

func tradeFromRow(r TradeRow) types.Trade {
	t := types.Trade{
		ID: r.ID, Symbol: r.Symbol, Side: r.Side, Qty: r.Qty,
		EntryTs: r.EntryTs, EntryPx: r.EntryPx,
		Fees: r.Fees, SlippageBps: r.SlippageBps, Reason: r.Reason,
	}
	if r.ExitTs != nil {
		t.ExitTs = *r.ExitTs
	}
	if r.ExitPx != nil {
		t.ExitPx = *r.ExitPx
	}
	if r.PnL != nil {
		t.PnL = *r.PnL
	}
	return t
}

// --- NAV -------------------------------------------------------------------

func (s *DB) AppendNAV(ctx context.Context, snap types.NAVSnapshot) error {
	row := NAVRow{
		Ts: snap.Ts, NAVUSD: snap.NAV,
		RealizedPnL: snap.RealizedPnL, UnrealizedPnL: snap.UnrealizedPnL,
		DDPct: snap.DrawdownPct,
	}
	if row.Ts.IsZero() {
		row.Ts = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *DB) LatestNAV(ctx context.Context) (*types.NAVSnapshot, error) {
	var row NAVRow
	err := s.db.WithContext(ctx).Order("ts DESC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &types.NAVSnapshot{
		Ts: row.Ts, NAV: row.NAVUSD,
		RealizedPnL: row.RealizedPnL, UnrealizedPnL: row.UnrealizedPnL,
		DrawdownPct: row.DDPct,
	}, nil
}

// --- config KV -------------------------------------------------------------

func (s *DB) GetConfigFloat(ctx context.Context, key string) (float64, bool, error) {
	var row ConfigRow
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	var v float64
	if err := json.Unmarshal(row.Value, &v); err != nil {
		return 0, false, fmt.Errorf("config %q is not a number: %w", key, err)
	}
	return v, true, nil
}

func (s *DB) SetConfigFloat(ctx context.Context, key string, v float64) error {
	b, _ := json.Marshal(v)
	row := ConfigRow{Key: key, Value: datatypes.JSON(b)}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&row).Error
}

// --- event log -------------------------------------------------------------

func (s *DB) LogEvent(ctx context.Context, ev types.Event) error {
	row := EventRow{
		Ts: ev.Ts, Level: ev.Level, Symbol: ev.Symbol, TF: ev.TF,
		Action: ev.Action, DecisionID: ev.DecisionID, TradeID: ev.TradeID,
	}
	if row.Ts.IsZero() {
		row.Ts = time.Now().UTC()
	}
	if len(ev.Tags) > 0 {
		b, _ := json.Marshal(ev.Tags)
		row.Tags = datatypes.JSON(b)
	}
	if len(ev.Payload) > 0 {
		b, _ := json.Marshal(ev.Payload)
		row.Payload = datatypes.JSON(b)
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *DB) GetLogs(ctx context.Context, limit int, level, symbol string) ([]types.Event, error) {
	q := s.db.WithContext(ctx).Model(&EventRow{})
	if level != "" {
		q = q.Where("level = ?", level)
	}
	if symbol != "" {
		q = q.Where("symbol = ?", symbol)
	}
	var rows []EventRow
	if err := q.Order("ts DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]types.Event, 0, len(rows))
	for _, r := range rows {
		ev := types.Event{
			Ts: r.Ts, Level: r.Level, Symbol: r.Symbol, TF: r.TF,
			Action: r.Action, DecisionID: r.DecisionID, TradeID: r.TradeID,
		}
		if len(r.Tags) > 0 {
			_ = json.Unmarshal(r.Tags, &ev.Tags)
		}
		if len(r.Payload) > 0 {
			_ = json.Unmarshal(r.Payload, &ev.Payload)
		}
		out = append(out, ev)
	}
	return out, nil
}

// --- sentiment -------------------------------------------------------------

func (s *DB) SaveSentiment(ctx context.Context, snap types.SentimentSnapshot) error {
	b, _ := json.Marshal(snap.Sources)
	row := SentimentRow{
		Ts: snap.Ts, Symbol: snap.Symbol,
		Sent24h: snap.Sent24h, Sent7d: snap.Sent7d,
		Trend: snap.Trend, Burst: snap.Burst,
		Sources: datatypes.JSON(b), Model: snap.Sources.Model,
	}
	if row.Ts.IsZero() {
		row.Ts = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *DB) LatestSentiment(ctx context.Context, symbol string) (*types.SentimentSnapshot, error) {
	var row SentimentRow
	err := s.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("ts DESC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	snap := types.SentimentSnapshot{
		Symbol: row.Symbol, Ts: row.Ts,
		Sent24h: row.Sent24h, Sent7d: row.Sent7d,
		Trend: row.Trend, Burst: row.Burst,
	}
	if len(row.Sources) > 0 {
		_ = json.Unmarshal(row.Sources, &snap.Sources)
	}
	return &snap, nil
}

// --- reflections -----------------------------------------------------------

func (s *DB) SaveReflection(ctx context.Context, r types.Reflection) error {
	row := ReflectionRow{
		Ts: r.Ts, Window: r.Window, Title: r.Title, Body: r.Body,
	}
	if row.Ts.IsZero() {
		row.Ts = time.Now().UTC()
	}
	if len(r.Stats) > 0 {
		b, _ := json.Marshal(r.Stats)
		row.Stats = datatypes.JSON(b)
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *DB) ListReflections(ctx context.Context, limit int) ([]types.Reflection, error) {
	var rows []ReflectionRow
	err := s.db.WithContext(ctx).Order("ts DESC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]types.Reflection, 0, len(rows))
	for _, r := range rows {
		ref := types.Reflection{Ts: r.Ts, Window: r.Window, Title: r.Title, Body: r.Body}
		if len(r.Stats) > 0 {
			_ = json.Unmarshal(r.Stats, &ref.Stats)
		}
		out = append(out, ref)
	}
	return out, nil
}
