// Package indicator implements pure technical-indicator math over close
// series ordered oldest to newest. Every function reports ok=false when
// the series is too short instead of guessing a value.
package indicator

import "math"

// ============================================================================
// MOVING AVERAGES
// ============================================================================

// SMA calculates the Simple Moving Average of the last `period` closes.
func SMA(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period {
		return 0, false
	}

	sum := 0.0
	for _, c := range closes[len(closes)-period:] {
		sum += c
	}
	return sum / float64(period), true
}

// EMA calculates the Exponential Moving Average over the whole series,
// seeded with the first close: e0 = c0, ei = ci*k + e(i-1)*(1-k) with
// k = 2/(period+1).
func EMA(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period {
		return 0, false
	}

	k := 2.0 / float64(period+1)
	ema := closes[0]
	for _, c := range closes[1:] {
		ema = c*k + ema*(1-k)
	}
	return ema, true
}

// ============================================================================
// VOLATILITY
// ============================================================================

// StdDev calculates the population standard deviation of the last
// `period` closes.
func StdDev(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period {
		return 0, false
	}

	window := closes[len(closes)-period:]
	mean := 0.0
	for _, c := range window {
		mean += c
	}
	mean /= float64(period)

	variance := 0.0
	for _, c := range window {
		diff := c - mean
		variance += diff * diff
	}
	return math.Sqrt(variance / float64(period)), true
}

// Bands holds Bollinger Band values.
type Bands struct {
	Middle float64
	Upper  float64
	Lower  float64
}

// Bollinger calculates Bollinger Bands: middle = SMA(period), upper/lower
// = middle +/- mult*stddev(period).
func Bollinger(closes []float64, period int, mult float64) (Bands, bool) {
	sma, ok := SMA(closes, period)
	if !ok {
		return Bands{}, false
	}
	sd, ok := StdDev(closes, period)
	if !ok {
		return Bands{}, false
	}
	return Bands{
		Middle: sma,
		Upper:  sma + mult*sd,
		Lower:  sma - mult*sd,
	}, true
}

// ============================================================================
// RSI (Relative Strength Index)
// ============================================================================

// RSI calculates the Relative Strength Index over the last `period`
// deltas; it needs period+1 closes. When the window has no losses the
// result is 100 by definition, not a division error.
func RSI(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period+1 {
		return 0, false
	}

	gains := 0.0
	losses := 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta >= 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}

	if losses == 0 {
		return 100, true
	}
	rs := gains / losses
	return 100 - (100 / (1 + rs)), true
}

// ============================================================================
// MACD (Moving Average Convergence Divergence)
// ============================================================================

// MACDValue holds the MACD line, signal line, and histogram.
type MACDValue struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

// MACD calculates the MACD line as EMA(fast)-EMA(slow) evaluated on every
// prefix closes[:i] for i = slow..n, the signal line as the EMA of that
// difference series over `signal` samples, and the histogram as their
// difference. The fast and slow EMAs are carried incrementally so the
// whole computation is a single pass.
func MACD(closes []float64, fast, slow, signal int) (MACDValue, bool) {
	if fast <= 0 || slow <= 0 || signal <= 0 || len(closes) < slow+signal {
		return MACDValue{}, false
	}

	kFast := 2.0 / float64(fast+1)
	kSlow := 2.0 / float64(slow+1)
	emaFast := closes[0]
	emaSlow := closes[0]

	series := make([]float64, 0, len(closes)-slow+1)
	for i := 1; i < len(closes); i++ {
		emaFast = closes[i]*kFast + emaFast*(1-kFast)
		emaSlow = closes[i]*kSlow + emaSlow*(1-kSlow)
		if i+1 >= slow {
			series = append(series, emaFast-emaSlow)
		}
	}
	if slow == 1 {
		// The one-element prefix qualifies too.
		series = append([]float64{0}, series...)
	}

	signalLine, ok := EMA(series, signal)
	if !ok {
		return MACDValue{}, false
	}
	macdLine := series[len(series)-1]
	return MACDValue{
		MACD:      macdLine,
		Signal:    signalLine,
		Histogram: macdLine - signalLine,
	}, true
}
