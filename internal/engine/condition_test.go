package engine

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"strategy-monitor/internal/database"
	"strategy-monitor/internal/providers"
)

// fakeData is an in-memory market.Data with call counters.
type fakeData struct {
	prices      map[string]float64
	candles     map[string][]providers.Candle
	priceCalls  int
	candleCalls int
	panicAssets map[string]bool
}

func (f *fakeData) GetPrice(ctx context.Context, asset, quote string) *float64 {
	f.priceCalls++
	if f.panicAssets[asset] {
		panic("provider blew up")
	}
	if p, ok := f.prices[asset]; ok {
		v := p
		return &v
	}
	return nil
}

func (f *fakeData) GetCandles(ctx context.Context, symbol, interval string, limit int, quote string) []providers.Candle {
	f.candleCalls++
	series, ok := f.candles[symbol]
	if !ok {
		return nil
	}
	if len(series) > limit {
		series = series[len(series)-limit:]
	}
	return series
}

func candlesFromCloses(closes ...float64) []providers.Candle {
	out := make([]providers.Candle, len(closes))
	for i, c := range closes {
		out[i] = providers.Candle{OpenTime: int64(i) * 60000, Open: c, High: c, Low: c, Close: c, Volume: 100}
	}
	return out
}

func mustPayload(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	return data
}

func newCondition(t *testing.T, condType string, payload interface{}) *database.Condition {
	t.Helper()
	return &database.Condition{
		ID:      uuid.New(),
		Type:    condType,
		Payload: mustPayload(t, payload),
		Enabled: true,
	}
}

func newTestStrategy(conds ...*database.Condition) *database.Strategy {
	return &database.Strategy{
		ID:         uuid.New(),
		UserID:     uuid.New(),
		Name:       "test",
		Status:     database.StatusActive,
		Schedule:   "1m",
		Conditions: conds,
		CreatedAt:  time.Now(),
	}
}

func f64(v float64) *float64 { return &v }

// TestPriceAlertBelow covers the basic trip: price under the target.
func TestPriceAlertBelow(t *testing.T) {
	data := &fakeData{prices: map[string]float64{"BTC": 49500}}
	cond := newCondition(t, database.ConditionPriceAlert, database.PriceAlertPayload{
		Asset: "BTC", Direction: "below", TargetPrice: f64(50000),
	})
	ec := NewEvalContext(newTestStrategy(cond), data, "usd")

	result := EvaluateCondition(context.Background(), ec, cond)
	if !result.Met {
		t.Error("price 49500 below target 50000 should be met")
	}
	if result.Value == nil || *result.Value != 49500 {
		t.Errorf("value = %v, want 49500", result.Value)
	}
}

func TestPriceAlertAboveNotMet(t *testing.T) {
	data := &fakeData{prices: map[string]float64{"BTC": 49500}}
	cond := newCondition(t, database.ConditionPriceAlert, database.PriceAlertPayload{
		Asset: "BTC", Direction: "above", TargetPrice: f64(50000),
	})
	ec := NewEvalContext(newTestStrategy(cond), data, "usd")

	if result := EvaluateCondition(context.Background(), ec, cond); result.Met {
		t.Error("price 49500 above target 50000 should not be met")
	}
}

func TestPriceAlertSourceUnavailable(t *testing.T) {
	data := &fakeData{prices: map[string]float64{}}
	cond := newCondition(t, database.ConditionPriceAlert, database.PriceAlertPayload{
		Asset: "BTC", Direction: "below", TargetPrice: f64(50000),
	})
	ec := NewEvalContext(newTestStrategy(cond), data, "usd")

	result := EvaluateCondition(context.Background(), ec, cond)
	if result.Met {
		t.Error("unavailable price should never be met")
	}
	if result.Details["source_unavailable"] != true {
		t.Errorf("details = %v, want source_unavailable", result.Details)
	}
}

func TestDisabledConditionShortCircuits(t *testing.T) {
	data := &fakeData{prices: map[string]float64{"BTC": 1}}
	cond := newCondition(t, database.ConditionPriceAlert, database.PriceAlertPayload{
		Asset: "BTC", Direction: "below", TargetPrice: f64(50000),
	})
	cond.Enabled = false
	ec := NewEvalContext(newTestStrategy(cond), data, "usd")

	result := EvaluateCondition(context.Background(), ec, cond)
	if result.Met {
		t.Error("disabled condition must be false regardless of data")
	}
	if result.Details["disabled"] != true {
		t.Errorf("details = %v, want disabled", result.Details)
	}
	if data.priceCalls != 0 {
		t.Error("disabled condition should not fetch data")
	}
}

// TestEvaluatorIsTotal feeds garbage through every failure path and
// verifies a verdict always comes back.
func TestEvaluatorIsTotal(t *testing.T) {
	data := &fakeData{prices: map[string]float64{"BTC": 100}, candles: map[string][]providers.Candle{}}

	cases := []struct {
		name string
		cond *database.Condition
		tag  string
	}{
		{
			name: "unknown type",
			cond: &database.Condition{ID: uuid.New(), Type: "sentiment", Payload: json.RawMessage(`{}`), Enabled: true},
			tag:  "unknown_type",
		},
		{
			name: "malformed payload",
			cond: &database.Condition{ID: uuid.New(), Type: database.ConditionPriceAlert, Payload: json.RawMessage(`{not json`), Enabled: true},
			tag:  "invalid",
		},
		{
			name: "missing target",
			cond: newCondition(t, database.ConditionPriceAlert, map[string]interface{}{"asset": "BTC", "direction": "above"}),
			tag:  "invalid",
		},
		{
			name: "unknown indicator",
			cond: newCondition(t, database.ConditionTechnicalIndicator, database.TechnicalIndicatorPayload{
				Indicator: "vortex", Operator: "gt", Value: f64(1), Asset: "BTC", Timeframe: "1h",
			}),
			tag: "unknown_indicator",
		},
		{
			name: "unknown operator",
			cond: newCondition(t, database.ConditionTechnicalIndicator, database.TechnicalIndicatorPayload{
				Indicator: "sma", Params: database.IndicatorParams{Period: 3},
				Operator: "approaches", Value: f64(1), Asset: "BTC", Timeframe: "1h",
			}),
			tag: "unknown_operator",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ec := NewEvalContext(newTestStrategy(tc.cond), data, "usd")
			result := EvaluateCondition(context.Background(), ec, tc.cond)
			if result == nil {
				t.Fatal("evaluator returned nil")
			}
			if result.Met {
				t.Error("failure path should not be met")
			}
			if _, ok := result.Details[tc.tag]; !ok {
				t.Errorf("details = %v, want tag %q", result.Details, tc.tag)
			}
		})
	}
}

// TestRSIUnderThreshold mirrors the common oversold alert.
func TestRSIUnderThreshold(t *testing.T) {
	// Deltas -1, -1, +2: RSI(3) = 50
	data := &fakeData{candles: map[string][]providers.Candle{
		"BTC": candlesFromCloses(100, 99, 98, 100),
	}}
	cond := newCondition(t, database.ConditionTechnicalIndicator, database.TechnicalIndicatorPayload{
		Indicator: "rsi", Params: database.IndicatorParams{Period: 3},
		Operator: "lt", Value: f64(60), Asset: "BTC", Timeframe: "1h",
	})
	ec := NewEvalContext(newTestStrategy(cond), data, "usd")

	result := EvaluateCondition(context.Background(), ec, cond)
	if !result.Met {
		t.Error("RSI 50 < 60 should be met")
	}
	if result.Details["indicator"] != "rsi" {
		t.Errorf("details.indicator = %v, want rsi", result.Details["indicator"])
	}
	if result.Details["threshold"] != 60.0 {
		t.Errorf("details.threshold = %v, want 60", result.Details["threshold"])
	}
}

// TestInsufficientDataIsQuiet verifies too few candles yields a tagged
// false verdict, not an error.
func TestInsufficientDataIsQuiet(t *testing.T) {
	data := &fakeData{candles: map[string][]providers.Candle{
		"BTC": candlesFromCloses(100, 99, 98), // rsi(14) needs 15
	}}
	cond := newCondition(t, database.ConditionTechnicalIndicator, database.TechnicalIndicatorPayload{
		Indicator: "rsi", Params: database.IndicatorParams{Period: 14},
		Operator: "lt", Value: f64(30), Asset: "BTC", Timeframe: "1h",
	})
	ec := NewEvalContext(newTestStrategy(cond), data, "usd")

	result := EvaluateCondition(context.Background(), ec, cond)
	if result.Met {
		t.Error("insufficient data should not be met")
	}
	if result.Details["insufficient_data"] != true {
		t.Errorf("details = %v, want insufficient_data", result.Details)
	}
}

// TestSMACrossAbove fires on the 95 -> 101 transition over threshold 100.
func TestSMACrossAbove(t *testing.T) {
	data := &fakeData{candles: map[string][]providers.Candle{
		"X": candlesFromCloses(90, 95, 100, 108),
	}}
	cond := newCondition(t, database.ConditionTechnicalIndicator, database.TechnicalIndicatorPayload{
		Indicator: "sma", Params: database.IndicatorParams{Period: 3},
		Operator: "cross_above", Value: f64(100), Asset: "X", Timeframe: "1m",
	})
	ec := NewEvalContext(newTestStrategy(cond), data, "usd")

	result := EvaluateCondition(context.Background(), ec, cond)
	if !result.Met {
		t.Error("SMA3 95 -> 101 should cross above 100")
	}
	if result.Details["prior"] != 95.0 {
		t.Errorf("details.prior = %v, want 95", result.Details["prior"])
	}
}

// TestCrossTouchIsNotACross verifies sitting on the threshold and staying
// there does not fire.
func TestCrossTouchIsNotACross(t *testing.T) {
	// SMA1 makes prior and current the raw closes: 100 -> 100
	data := &fakeData{candles: map[string][]providers.Candle{
		"X": candlesFromCloses(100, 100),
	}}
	cond := newCondition(t, database.ConditionTechnicalIndicator, database.TechnicalIndicatorPayload{
		Indicator: "sma", Params: database.IndicatorParams{Period: 1},
		Operator: "cross_above", Value: f64(100), Asset: "X", Timeframe: "1m",
	})
	ec := NewEvalContext(newTestStrategy(cond), data, "usd")

	if result := EvaluateCondition(context.Background(), ec, cond); result.Met {
		t.Error("prior = T, current = T must not count as a cross")
	}
}

// TestPriceIndicatorCrossNeverFires documents that the price indicator
// has no prior sample, so cross operators always fail.
func TestPriceIndicatorCrossNeverFires(t *testing.T) {
	data := &fakeData{prices: map[string]float64{"BTC": 200}}
	cond := newCondition(t, database.ConditionTechnicalIndicator, database.TechnicalIndicatorPayload{
		Indicator: "price", Operator: "cross_above", Value: f64(100), Asset: "BTC",
	})
	ec := NewEvalContext(newTestStrategy(cond), data, "usd")

	result := EvaluateCondition(context.Background(), ec, cond)
	if result.Met {
		t.Error("price cross should never fire")
	}
	if result.Details["no_prior_value"] != true {
		t.Errorf("details = %v, want no_prior_value", result.Details)
	}
}

func TestPriceIndicatorComparison(t *testing.T) {
	data := &fakeData{prices: map[string]float64{"BTC": 200}}
	cond := newCondition(t, database.ConditionTechnicalIndicator, database.TechnicalIndicatorPayload{
		Indicator: "price", Operator: "ge", Value: f64(200), Asset: "BTC",
	})
	ec := NewEvalContext(newTestStrategy(cond), data, "usd")

	if result := EvaluateCondition(context.Background(), ec, cond); !result.Met {
		t.Error("price 200 >= 200 should be met")
	}
}

func TestVolumeAlert(t *testing.T) {
	candles := candlesFromCloses(1, 2)
	candles[len(candles)-1].Volume = 5000
	data := &fakeData{candles: map[string][]providers.Candle{"BTC": candles}}
	cond := newCondition(t, database.ConditionVolumeAlert, database.VolumeAlertPayload{
		Asset: "BTC", Timeframe: "1h", Operator: "gt", Threshold: f64(1000),
	})
	ec := NewEvalContext(newTestStrategy(cond), data, "usd")

	result := EvaluateCondition(context.Background(), ec, cond)
	if !result.Met {
		t.Error("volume 5000 > 1000 should be met")
	}
	if result.Value == nil || *result.Value != 5000 {
		t.Errorf("value = %v, want 5000", result.Value)
	}
}

func TestVolumeCrossBelow(t *testing.T) {
	candles := candlesFromCloses(1, 2)
	candles[0].Volume = 1500
	candles[1].Volume = 800
	data := &fakeData{candles: map[string][]providers.Candle{"BTC": candles}}
	cond := newCondition(t, database.ConditionVolumeAlert, database.VolumeAlertPayload{
		Asset: "BTC", Timeframe: "1h", Operator: "cross_below", Threshold: f64(1000),
	})
	ec := NewEvalContext(newTestStrategy(cond), data, "usd")

	if result := EvaluateCondition(context.Background(), ec, cond); !result.Met {
		t.Error("volume 1500 -> 800 should cross below 1000")
	}
}

// TestPriceMemoisedPerContext verifies one spot-price fetch serves every
// condition on the same asset within an evaluation.
func TestPriceMemoisedPerContext(t *testing.T) {
	data := &fakeData{prices: map[string]float64{"BTC": 60}}
	above := newCondition(t, database.ConditionPriceAlert, database.PriceAlertPayload{
		Asset: "BTC", Direction: "above", TargetPrice: f64(50),
	})
	below := newCondition(t, database.ConditionPriceAlert, database.PriceAlertPayload{
		Asset: "BTC", Direction: "below", TargetPrice: f64(50),
	})
	ec := NewEvalContext(newTestStrategy(above, below), data, "usd")

	EvaluateCondition(context.Background(), ec, above)
	EvaluateCondition(context.Background(), ec, below)
	if data.priceCalls != 1 {
		t.Errorf("priceCalls = %d, want 1 (memoised)", data.priceCalls)
	}
}
