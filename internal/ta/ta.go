package ta

import (
	"math"

	"crypto-trading-agent/internal/types"
)

// Series indicators return one value per input bar. Warm-up slots are
// NaN; callers must check with math.IsNaN before acting on a value.

func EMASeries(vals []float64, period int) []float64 {
	out := nanSlice(len(vals))
	if period <= 0 || len(vals) < period {
		return out
	}
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += vals[i]
	}
	out[period-1] = sum / float64(period)
	k := 2.0 / (float64(period) + 1.0)
	for i := period; i < len(vals); i++ {
		out[i] = vals[i]*k + out[i-1]*(1.0-k)
	}
	return out
}

func RSISeries(closes []float64, period int) []float64 {
	out := nanSlice(len(closes))
	if period <= 0 || len(closes) < period+1 {
		return out
	}
	gain, loss := 0.0, 0.0
	for i := 1; i <= period; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	out[period] = rsiFrom(avgGain, avgLoss)
	for i := period + 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		g, l := 0.0, 0.0
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
		out[i] = rsiFrom(avgGain, avgLoss)
	}
	return out
}

func rsiFrom(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}

func trueRanges(highs, lows, closes []float64) []float64 {
	tr := make([]float64, len(closes))
	for i := range closes {
		if i == 0 {
			tr[i] = highs[i] - lows[i]
			continue
		}
		tr[i] = math.Max(highs[i]-lows[i],
			math.Max(math.Abs(highs[i]-closes[i-1]), math.Abs(lows[i]-closes[i-1])))
	}
	return tr
}

// ATRSeries uses Wilder smoothing seeded by a simple average.
func ATRSeries(highs, lows, closes []float64, period int) []float64 {
	out := nanSlice(len(closes))
	if period <= 0 || len(closes) < period+1 {
		return out
	}
	tr := trueRanges(highs, lows, closes)
	sum := 0.0
	for i := 1; i <= period; i++ {
		sum += tr[i]
	}
	out[period] = sum / float64(period)
	for i := period + 1; i < len(closes); i++ {
		out[i] = (out[i-1]*float64(period-1) + tr[i]) / float64(period)
	}
	return out
}

// ADXSeries is the Wilder average directional index.
func ADXSeries(highs, lows, closes []float64, period int) []float64 {
	out := nanSlice(len(closes))
	if period <= 0 || len(closes) < 2*period+1 {
		return out
	}
	tr := trueRanges(highs, lows, closes)
	plusDM := make([]float64, len(closes))
	minusDM := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		up := highs[i] - highs[i-1]
		down := lows[i-1] - lows[i]
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}
	var smTR, smPlus, smMinus float64
	for i := 1; i <= period; i++ {
		smTR += tr[i]
		smPlus += plusDM[i]
		smMinus += minusDM[i]
	}
	dx := nanSlice(len(closes))
	dx[period] = dxFrom(smPlus, smMinus, smTR)
	for i := period + 1; i < len(closes); i++ {
		smTR = smTR - smTR/float64(period) + tr[i]
		smPlus = smPlus - smPlus/float64(period) + plusDM[i]
		smMinus = smMinus - smMinus/float64(period) + minusDM[i]
		dx[i] = dxFrom(smPlus, smMinus, smTR)
	}
	sum := 0.0
	for i := period; i < 2*period; i++ {
		sum += dx[i]
	}
	out[2*period-1] = sum / float64(period)
	for i := 2 * period; i < len(closes); i++ {
		out[i] = (out[i-1]*float64(period-1) + dx[i]) / float64(period)
	}
	return out
}

func dxFrom(smPlus, smMinus, smTR float64) float64 {
	if smTR == 0 {
		return 0
	}
	pdi := 100.0 * smPlus / smTR
	mdi := 100.0 * smMinus / smTR
	if pdi+mdi == 0 {
		return 0
	}
	return 100.0 * math.Abs(pdi-mdi) / (pdi + mdi)
}

// DonchianSeries returns the highest high and lowest low over the prior
// period bars, excluding the current bar so a close above the upper band
// is a genuine breakout.
func DonchianSeries(highs, lows []float64, period int) (upper, lower []float64) {
	upper = nanSlice(len(highs))
	lower = nanSlice(len(lows))
	if period <= 0 {
		return
	}
	for i := period; i < len(highs); i++ {
		hi := math.Inf(-1)
		lo := math.Inf(1)
		for j := i - period; j < i; j++ {
			hi = math.Max(hi, highs[j])
			lo = math.Min(lo, lows[j])
		}
		upper[i] = hi
		lower[i] = lo
	}
	return
}

// CMFSeries is the Chaikin money flow over period bars.
func CMFSeries(highs, lows, closes, vols []float64, period int) []float64 {
	out := nanSlice(len(closes))
	if period <= 0 || len(closes) < period {
		return out
	}
	mfv := make([]float64, len(closes))
	for i := range closes {
		rng := highs[i] - lows[i]
		if rng == 0 {
			continue
		}
		mult := ((closes[i] - lows[i]) - (highs[i] - closes[i])) / rng
		mfv[i] = mult * vols[i]
	}
	for i := period - 1; i < len(closes); i++ {
		sumMFV, sumVol := 0.0, 0.0
		for j := i - period + 1; j <= i; j++ {
			sumMFV += mfv[j]
			sumVol += vols[j]
		}
		if sumVol == 0 {
			out[i] = 0
			continue
		}
		out[i] = sumMFV / sumVol
	}
	return out
}

// RVolSeries is volume relative to its simple average over period bars.
func RVolSeries(vols []float64, period int) []float64 {
	out := nanSlice(len(vols))
	if period <= 0 || len(vols) < period {
		return out
	}
	sum := 0.0
	for i := 0; i < len(vols); i++ {
		sum += vols[i]
		if i >= period {
			sum -= vols[i-period]
		}
		if i >= period-1 {
			avg := sum / float64(period)
			if avg == 0 {
				out[i] = 0
				continue
			}
			out[i] = vols[i] / avg
		}
	}
	return out
}

// Compute derives the full feature set from raw bars. Rows inside the
// warm-up window carry NaN indicators.
func Compute(candles []types.Candle) []types.FeatureRow {
	n := len(candles)
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	vols := make([]float64, n)
	for i, c := range candles {
		highs[i], lows[i], closes[i], vols[i] = c.H, c.L, c.C, c.V
	}
	ema20 := EMASeries(closes, 20)
	ema50 := EMASeries(closes, 50)
	ema200 := EMASeries(closes, 200)
	rsi14 := RSISeries(closes, 14)
	atr14 := ATRSeries(highs, lows, closes, 14)
	adx14 := ADXSeries(highs, lows, closes, 14)
	donchU, donchL := DonchianSeries(highs, lows, 20)
	cmf20 := CMFSeries(highs, lows, closes, vols, 20)
	rvol20 := RVolSeries(vols, 20)

	rows := make([]types.FeatureRow, n)
	for i, c := range candles {
		rows[i] = types.FeatureRow{
			Ts: c.Ts, O: c.O, H: c.H, L: c.L, C: c.C, V: c.V,
			EMA20: ema20[i], EMA50: ema50[i], EMA200: ema200[i],
			RSI14: rsi14[i], ATR14: atr14[i], ADX14: adx14[i],
			DonchU: donchU[i], DonchL: donchL[i],
			CMF20: cmf20[i], RVol20: rvol20[i],
		}
	}
	return rows
}

func nanSlice(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}
