package indicators

import "math"

// Series helpers return slices aligned with the input; positions without
// enough history hold NaN so callers can distinguish "not computed" from
// a real zero.

// SMA returns the simple moving average series for the given period.
func SMA(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 || len(values) < period {
		return out
	}

	var sum float64
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA returns the exponential moving average series, seeded with the first
// value (pandas ewm adjust=false convention).
func EMA(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 || len(values) == 0 {
		return out
	}

	multiplier := 2.0 / (float64(period) + 1.0)
	ema := values[0]
	out[0] = ema
	for i := 1; i < len(values); i++ {
		ema = values[i]*multiplier + ema*(1-multiplier)
		out[i] = ema
	}
	return out
}

// MACD returns the DIF, DEA and histogram series for the standard
// 12/26/9 parameterization.
func MACD(values []float64) (dif, dea, hist []float64) {
	fast := EMA(values, 12)
	slow := EMA(values, 26)

	dif = nanSlice(len(values))
	for i := range values {
		dif[i] = fast[i] - slow[i]
	}

	dea = EMA(dif, 9)

	hist = nanSlice(len(values))
	for i := range values {
		hist[i] = dif[i] - dea[i]
	}
	return dif, dea, hist
}

// RSI returns the Relative Strength Index series using a rolling simple
// mean of gains and losses, not Wilder smoothing.
func RSI(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 || len(values) < period+1 {
		return out
	}

	gains := make([]float64, len(values))
	losses := make([]float64, len(values))
	for i := 1; i < len(values); i++ {
		delta := values[i] - values[i-1]
		if delta > 0 {
			gains[i] = delta
		} else {
			losses[i] = -delta
		}
	}

	var gainSum, lossSum float64
	for i := 1; i < len(values); i++ {
		gainSum += gains[i]
		lossSum += losses[i]
		if i > period {
			gainSum -= gains[i-period]
			lossSum -= losses[i-period]
		}
		if i >= period {
			avgGain := gainSum / float64(period)
			avgLoss := lossSum / float64(period)
			if avgLoss == 0 && avgGain == 0 {
				out[i] = 50.0
			} else if avgLoss == 0 {
				out[i] = 100.0
			} else {
				rs := avgGain / avgLoss
				out[i] = 100.0 - 100.0/(1.0+rs)
			}
		}
	}
	return out
}

// Last returns the final value of a series and whether it is usable.
func Last(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	v := values[len(values)-1]
	if math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// At returns the value at index i and whether it is usable.
func At(values []float64, i int) (float64, bool) {
	if i < 0 || i >= len(values) {
		return 0, false
	}
	v := values[i]
	if math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// ConsecutiveBelow counts the trailing sessions where close sits strictly
// below the reference series. The count stops at the first session at or
// above the reference, or at the first NaN.
func ConsecutiveBelow(closes, ref []float64) int {
	n := len(closes)
	if len(ref) < n {
		n = len(ref)
	}

	count := 0
	for i := n - 1; i >= 0; i-- {
		if math.IsNaN(closes[i]) || math.IsNaN(ref[i]) {
			break
		}
		if closes[i] >= ref[i] {
			break
		}
		count++
	}
	return count
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
