package store

import (
	"time"

	"gorm.io/datatypes"
)

// CandleRow is one stored OHLCV bar, unique per (symbol, tf, ts).
type CandleRow struct {
	ID     uint      `gorm:"primaryKey"`
	Symbol string    `gorm:"size:32;uniqueIndex:idx_candle_key;index"`
	TF     string    `gorm:"size:8;uniqueIndex:idx_candle_key;column:tf"`
	Ts     time.Time `gorm:"uniqueIndex:idx_candle_key"`
	O      float64
	H      float64
	L      float64
	C      float64
	V      float64
}

func (CandleRow) TableName() string { return "candles" }

// PositionRow is the single open position per symbol.
type PositionRow struct {
	Symbol       string `gorm:"primaryKey;size:32"`
	Qty          float64
	AvgPrice     float64
	Side         string `gorm:"size:8"`
	Stop         float64
	TradeID      uint
	OpenedTs     time.Time
	LastUpdateTs time.Time
}

func (PositionRow) TableName() string { return "positions" }

// TradeRow is the entry record, closed in place by filling the exit
// columns. ExitTs NULL means the trade is open.
type TradeRow struct {
	ID          uint   `gorm:"primaryKey"`
	Symbol      string `gorm:"size:32;index"`
	Side        string `gorm:"size:8"`
	Qty         float64
	EntryTs     time.Time
	EntryPx     float64
	Fees        float64
	SlippageBps float64
	ExitTs      *time.Time `gorm:"index"`
	ExitPx      *float64
	PnL         *float64
	Reason      string         `gorm:"size:64"`
	Rationale   datatypes.JSON `gorm:"type:jsonb"`
}

func (TradeRow) TableName() string { return "trades" }

// NAVRow is an appended account valuation snapshot.
type NAVRow struct {
	ID            uint      `gorm:"primaryKey"`
	Ts            time.Time `gorm:"index"`
	NAVUSD        float64   `gorm:"column:nav_usd"`
	RealizedPnL   float64
	UnrealizedPnL float64
	DDPct         float64 `gorm:"column:dd_pct"`
}

func (NAVRow) TableName() string { return "nav" }

// EventRow is one structured audit-log record.
type EventRow struct {
	ID         uint      `gorm:"primaryKey"`
	Ts         time.Time `gorm:"index"`
	Level      string    `gorm:"size:8;index"`
	Tags       datatypes.JSON
	Symbol     string `gorm:"size:32;index"`
	TF         string `gorm:"size:8;column:tf"`
	Action     string `gorm:"size:64"`
	DecisionID string `gorm:"size:16;index"`
	TradeID    uint
	Payload    datatypes.JSON
}

func (EventRow) TableName() string { return "event_log" }

// SentimentRow is one sentiment snapshot for a symbol.
type SentimentRow struct {
	ID      uint      `gorm:"primaryKey"`
	Ts      time.Time `gorm:"index"`
	Symbol  string    `gorm:"size:32;index"`
	Sent24h float64
	Sent7d  float64
	Trend   float64
	Burst   float64
	Sources datatypes.JSON
	Model   string `gorm:"size:64"`
}

func (SentimentRow) TableName() string { return "sentiment" }

// ReflectionRow is one stored performance report.
type ReflectionRow struct {
	ID     uint      `gorm:"primaryKey"`
	Ts     time.Time `gorm:"index"`
	Window string    `gorm:"size:32;column:time_window"`
	Title  string
	Body   string
	Stats  datatypes.JSON
}

func (ReflectionRow) TableName() string { return "reflections" }

// ConfigRow is a scalar key/value setting (initial NAV, peak NAV).
type ConfigRow struct {
	Key   string `gorm:"primaryKey;size:64"`
	Value datatypes.JSON
}

func (ConfigRow) TableName() string { return "config" }
