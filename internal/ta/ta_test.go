package ta

import (
	"math"
	"testing"
	"time"

	"crypto-trading-agent/internal/types"
)

func TestEMASeriesSeedAndWarmup(t *testing.T) {
	vals := []float64{1, 2, 3, 4, 5, 6}
	out := EMASeries(vals, 3)

	for i := 0; i < 2; i++ {
		if !math.IsNaN(out[i]) {
			t.Errorf("index %d should be NaN during warm-up, got %f", i, out[i])
		}
	}
	// seed is the SMA of the first 3 values
	if out[2] != 2 {
		t.Errorf("expected seed 2, got %f", out[2])
	}
	// next value: 4*0.5 + 2*0.5 = 3
	if out[3] != 3 {
		t.Errorf("expected 3, got %f", out[3])
	}
}

func TestDonchianExcludesCurrentBar(t *testing.T) {
	highs := []float64{10, 11, 12, 20}
	lows := []float64{5, 6, 7, 4}
	upper, lower := DonchianSeries(highs, lows, 3)

	// the band at the last bar covers bars 0..2 only, so the new high
	// at 20 is a breakout above it
	if upper[3] != 12 {
		t.Errorf("expected upper band 12 excluding current bar, got %f", upper[3])
	}
	if lower[3] != 5 {
		t.Errorf("expected lower band 5, got %f", lower[3])
	}
	if !math.IsNaN(upper[2]) {
		t.Errorf("bar inside warm-up should be NaN, got %f", upper[2])
	}
}

func TestRVolSeries(t *testing.T) {
	vols := []float64{10, 10, 10, 30}
	out := RVolSeries(vols, 3)

	if !math.IsNaN(out[1]) {
		t.Errorf("warm-up slot should be NaN, got %f", out[1])
	}
	if out[2] != 1.0 {
		t.Errorf("flat volume should give rvol 1, got %f", out[2])
	}
	// avg of (10,10,30) ≈ 16.67, rvol = 30/16.67 = 1.8
	if math.Abs(out[3]-1.8) > 1e-9 {
		t.Errorf("expected rvol 1.8, got %f", out[3])
	}
}

func TestATRSeriesWilder(t *testing.T) {
	highs := []float64{11, 12, 13, 14}
	lows := []float64{9, 10, 11, 12}
	closes := []float64{10, 11, 12, 13}
	out := ATRSeries(highs, lows, closes, 2)

	if !math.IsNaN(out[1]) {
		t.Errorf("warm-up slot should be NaN, got %f", out[1])
	}
	// TR is 2 on every bar here, so the average and every smoothed
	// value stays 2
	if out[2] != 2 || out[3] != 2 {
		t.Errorf("expected constant ATR 2, got %f %f", out[2], out[3])
	}
}

func TestCMFSeriesSign(t *testing.T) {
	// closes pinned at the high: money flow fully positive
	highs := []float64{10, 10, 10}
	lows := []float64{8, 8, 8}
	closes := []float64{10, 10, 10}
	vols := []float64{100, 100, 100}
	out := CMFSeries(highs, lows, closes, vols, 3)

	if out[2] != 1.0 {
		t.Errorf("close at high should give CMF 1, got %f", out[2])
	}

	// closes pinned at the low: fully negative
	closes = []float64{8, 8, 8}
	out = CMFSeries(highs, lows, closes, vols, 3)
	if out[2] != -1.0 {
		t.Errorf("close at low should give CMF -1, got %f", out[2])
	}
}

func TestComputeShapesAndWarmup(t *testing.T) {
	candles := make([]types.Candle, 250)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range candles {
		px := 100 + float64(i)*0.1
		candles[i] = types.Candle{
			Ts: base.Add(time.Duration(i) * 5 * time.Minute),
			O:  px, H: px + 1, L: px - 1, C: px, V: 1000,
		}
	}

	rows := Compute(candles)
	if len(rows) != len(candles) {
		t.Fatalf("expected %d rows, got %d", len(candles), len(rows))
	}

	last := rows[len(rows)-1]
	if math.IsNaN(last.EMA200) || math.IsNaN(last.ADX14) || math.IsNaN(last.DonchU) ||
		math.IsNaN(last.CMF20) || math.IsNaN(last.RVol20) || math.IsNaN(last.ATR14) {
		t.Error("all indicators should be populated on the last row of 250 bars")
	}
	if !math.IsNaN(rows[0].EMA20) {
		t.Error("first row should carry NaN indicators")
	}
	// steadily rising series must trend
	if !(last.EMA50 > last.EMA200) {
		t.Errorf("rising series should have EMA50 > EMA200, got %f vs %f", last.EMA50, last.EMA200)
	}
}
