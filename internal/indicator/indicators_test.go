package indicator

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// TestSMABoundary verifies the exact-length boundary: a series of length
// period yields a value, one short yields absent.
func TestSMABoundary(t *testing.T) {
	if _, ok := SMA([]float64{1, 2}, 3); ok {
		t.Error("SMA should be absent when series is shorter than period")
	}
	v, ok := SMA([]float64{1, 2, 3}, 3)
	if !ok {
		t.Fatal("SMA should be present when series length equals period")
	}
	if !almostEqual(v, 2) {
		t.Errorf("SMA = %v, want 2", v)
	}
}

func TestSMAWindow(t *testing.T) {
	// Only the last 3 closes count: (95+100+108)/3 = 101
	v, ok := SMA([]float64{90, 95, 100, 108}, 3)
	if !ok {
		t.Fatal("SMA should be present")
	}
	if !almostEqual(v, 101) {
		t.Errorf("SMA = %v, want 101", v)
	}
}

func TestEMARecursive(t *testing.T) {
	// k = 2/3; e0=1; e1 = 2*2/3 + 1*1/3 = 5/3; e2 = 3*2/3 + (5/3)*1/3 = 23/9
	v, ok := EMA([]float64{1, 2, 3}, 2)
	if !ok {
		t.Fatal("EMA should be present")
	}
	if !almostEqual(v, 23.0/9.0) {
		t.Errorf("EMA = %v, want %v", v, 23.0/9.0)
	}
}

func TestEMABoundary(t *testing.T) {
	if _, ok := EMA([]float64{1}, 2); ok {
		t.Error("EMA should be absent when series is shorter than period")
	}
}

func TestStdDevPopulation(t *testing.T) {
	// Classic population stddev example: mean 5, stddev 2
	closes := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	v, ok := StdDev(closes, 8)
	if !ok {
		t.Fatal("StdDev should be present")
	}
	if !almostEqual(v, 2) {
		t.Errorf("StdDev = %v, want 2", v)
	}
}

func TestBollingerFlatSeries(t *testing.T) {
	// Zero variance collapses all three bands onto the SMA
	bands, ok := Bollinger([]float64{5, 5, 5}, 3, 2)
	if !ok {
		t.Fatal("Bollinger should be present")
	}
	if !almostEqual(bands.Middle, 5) || !almostEqual(bands.Upper, 5) || !almostEqual(bands.Lower, 5) {
		t.Errorf("Bollinger = %+v, want all bands at 5", bands)
	}
}

func TestBollingerBands(t *testing.T) {
	closes := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	bands, ok := Bollinger(closes, 8, 2)
	if !ok {
		t.Fatal("Bollinger should be present")
	}
	if !almostEqual(bands.Middle, 5) {
		t.Errorf("middle = %v, want 5", bands.Middle)
	}
	if !almostEqual(bands.Upper, 9) {
		t.Errorf("upper = %v, want 9", bands.Upper)
	}
	if !almostEqual(bands.Lower, 1) {
		t.Errorf("lower = %v, want 1", bands.Lower)
	}
}

// TestRSIBoundary verifies RSI needs period+1 closes for period deltas.
func TestRSIBoundary(t *testing.T) {
	if _, ok := RSI([]float64{1, 2, 3}, 3); ok {
		t.Error("RSI should be absent with only period closes")
	}
	if _, ok := RSI([]float64{1, 2, 3, 4}, 3); !ok {
		t.Error("RSI should be present with period+1 closes")
	}
}

// TestRSIAllGains verifies the zero-losses edge: RSI is 100, not a
// division error.
func TestRSIAllGains(t *testing.T) {
	v, ok := RSI([]float64{1, 2, 3, 4, 5}, 4)
	if !ok {
		t.Fatal("RSI should be present")
	}
	if v != 100 {
		t.Errorf("RSI = %v, want 100 for a window with no losses", v)
	}
}

func TestRSIBalanced(t *testing.T) {
	// Deltas -1, -1, +2: gains 2, losses 2, RS=1 -> RSI 50
	v, ok := RSI([]float64{100, 99, 98, 100}, 3)
	if !ok {
		t.Fatal("RSI should be present")
	}
	if !almostEqual(v, 50) {
		t.Errorf("RSI = %v, want 50", v)
	}
}

func TestMACDFlatSeries(t *testing.T) {
	// A constant series has identical fast and slow EMAs everywhere
	closes := []float64{10, 10, 10, 10, 10}
	v, ok := MACD(closes, 2, 3, 2)
	if !ok {
		t.Fatal("MACD should be present")
	}
	if !almostEqual(v.MACD, 0) || !almostEqual(v.Signal, 0) || !almostEqual(v.Histogram, 0) {
		t.Errorf("MACD = %+v, want all zero", v)
	}
}

func TestMACDBoundary(t *testing.T) {
	closes := []float64{1, 2, 3, 4}
	if _, ok := MACD(closes, 2, 3, 2); ok {
		t.Error("MACD should be absent below slow+signal closes")
	}
	if _, ok := MACD(append(closes, 5), 2, 3, 2); !ok {
		t.Error("MACD should be present at exactly slow+signal closes")
	}
}

func TestMACDTrendSign(t *testing.T) {
	// A rising series keeps the fast EMA above the slow EMA
	closes := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	v, ok := MACD(closes, 2, 4, 3)
	if !ok {
		t.Fatal("MACD should be present")
	}
	if v.MACD <= 0 {
		t.Errorf("MACD line = %v, want positive for an uptrend", v.MACD)
	}
}
