package engine

import (
	"context"
	"encoding/json"
	"strings"

	"strategy-monitor/internal/database"
	"strategy-monitor/internal/indicator"
)

// Comparison operators for technical_indicator and volume_alert payloads.
const (
	OpGT         = "gt"
	OpGE         = "ge"
	OpLT         = "lt"
	OpLE         = "le"
	OpEQ         = "eq"
	OpCrossAbove = "cross_above"
	OpCrossBelow = "cross_below"
)

// Indicator default parameters, applied when the payload omits them.
const (
	defaultPeriod = 14
	defaultFast   = 12
	defaultSlow   = 26
	defaultSignal = 9
	defaultMult   = 2.0
	defaultBand   = "upper"
)

// EvaluateCondition decides one condition. It is total: every input,
// including malformed payloads and missing market data, yields a verdict
// with a diagnostic in details, never an error.
func EvaluateCondition(ctx context.Context, ec *EvalContext, cond *database.Condition) *ConditionResult {
	if !cond.Enabled {
		return &ConditionResult{Met: false, Details: map[string]interface{}{"disabled": true}}
	}

	switch cond.Type {
	case database.ConditionPriceAlert:
		return evaluatePriceAlert(ctx, ec, cond)
	case database.ConditionTechnicalIndicator:
		return evaluateTechnicalIndicator(ctx, ec, cond)
	case database.ConditionVolumeAlert:
		return evaluateVolumeAlert(ctx, ec, cond)
	default:
		return &ConditionResult{Met: false, Details: map[string]interface{}{
			"unknown_type": cond.Type,
		}}
	}
}

func invalid(reason string) *ConditionResult {
	return &ConditionResult{Met: false, Details: map[string]interface{}{"invalid": reason}}
}

func evaluatePriceAlert(ctx context.Context, ec *EvalContext, cond *database.Condition) *ConditionResult {
	var p database.PriceAlertPayload
	if err := json.Unmarshal(cond.Payload, &p); err != nil {
		return invalid("malformed payload")
	}
	if p.Asset == "" || p.TargetPrice == nil {
		return invalid("missing asset or target_price")
	}

	price := ec.Price(ctx, p.Asset)
	if price == nil {
		return &ConditionResult{Met: false, Details: map[string]interface{}{
			"source_unavailable": true, "asset": p.Asset,
		}}
	}

	var met bool
	switch strings.ToLower(p.Direction) {
	case "above":
		met = *price > *p.TargetPrice
	case "below":
		met = *price < *p.TargetPrice
	default:
		return &ConditionResult{Met: false, Value: price, Details: map[string]interface{}{
			"unknown_operator": p.Direction,
		}}
	}
	return &ConditionResult{Met: met, Value: price, Details: map[string]interface{}{
		"asset": p.Asset, "direction": p.Direction, "target_price": *p.TargetPrice,
	}}
}

// neededLimit returns the minimum candle count an indicator needs under
// the given operator. Cross operators need one extra sample for the prior
// value.
func neededLimit(ind string, params database.IndicatorParams, operator string) (int, bool) {
	cross := operator == OpCrossAbove || operator == OpCrossBelow
	period := params.Period
	if period <= 0 {
		period = defaultPeriod
	}

	switch ind {
	case "rsi":
		return period + 1, true
	case "sma", "ema":
		if cross {
			return period + 1, true
		}
		return period, true
	case "macd":
		slow := params.Slow
		if slow <= 0 {
			slow = defaultSlow
		}
		signal := params.Signal
		if signal <= 0 {
			signal = defaultSignal
		}
		return slow + signal, true
	case "bollinger":
		return period, true
	case "volume":
		if cross {
			return 2, true
		}
		return 1, true
	default:
		return 0, false
	}
}

// indicatorValue computes one indicator over a candle window.
func indicatorValue(ind string, candles []float64, volumes []float64, params database.IndicatorParams) (float64, bool) {
	period := params.Period
	if period <= 0 {
		period = defaultPeriod
	}

	switch ind {
	case "rsi":
		return indicator.RSI(candles, period)
	case "sma":
		return indicator.SMA(candles, period)
	case "ema":
		return indicator.EMA(candles, period)
	case "macd":
		fast, slow, signal := params.Fast, params.Slow, params.Signal
		if fast <= 0 {
			fast = defaultFast
		}
		if slow <= 0 {
			slow = defaultSlow
		}
		if signal <= 0 {
			signal = defaultSignal
		}
		v, ok := indicator.MACD(candles, fast, slow, signal)
		return v.MACD, ok
	case "bollinger":
		mult := params.Mult
		if mult <= 0 {
			mult = defaultMult
		}
		bands, ok := indicator.Bollinger(candles, period, mult)
		if !ok {
			return 0, false
		}
		switch params.Band {
		case "middle":
			return bands.Middle, true
		case "lower":
			return bands.Lower, true
		default: // "upper" and unset
			return bands.Upper, true
		}
	case "volume":
		if len(volumes) == 0 {
			return 0, false
		}
		return volumes[len(volumes)-1], true
	default:
		return 0, false
	}
}

// compare applies a comparison operator. Cross operators are handled by
// the caller because they need a prior value.
func compare(operator string, observed, threshold float64) (bool, bool) {
	switch operator {
	case OpGT:
		return observed > threshold, true
	case OpGE:
		return observed >= threshold, true
	case OpLT:
		return observed < threshold, true
	case OpLE:
		return observed <= threshold, true
	case OpEQ:
		return observed == threshold, true
	default:
		return false, false
	}
}

// crossed reports whether the prior→current transition crosses the
// threshold. Sitting on the threshold and then moving off it counts; a
// transition that only touches the threshold does not.
func crossed(operator string, prior, current, threshold float64) bool {
	switch operator {
	case OpCrossAbove:
		return prior <= threshold && current > threshold
	case OpCrossBelow:
		return prior >= threshold && current < threshold
	}
	return false
}

func evaluateTechnicalIndicator(ctx context.Context, ec *EvalContext, cond *database.Condition) *ConditionResult {
	var p database.TechnicalIndicatorPayload
	if err := json.Unmarshal(cond.Payload, &p); err != nil {
		return invalid("malformed payload")
	}
	if p.Asset == "" || p.Value == nil {
		return invalid("missing asset or value")
	}
	ind := strings.ToLower(p.Indicator)
	operator := strings.ToLower(p.Operator)
	threshold := *p.Value
	cross := operator == OpCrossAbove || operator == OpCrossBelow

	details := map[string]interface{}{
		"indicator": ind,
		"operator":  operator,
		"threshold": threshold,
		"asset":     p.Asset,
		"timeframe": p.Timeframe,
	}

	// "price" compares the live spot price; no candle history is
	// available for it, so cross operators cannot fire.
	if ind == "price" {
		price := ec.Price(ctx, p.Asset)
		if price == nil {
			details["source_unavailable"] = true
			return &ConditionResult{Met: false, Details: details}
		}
		if cross {
			details["no_prior_value"] = true
			return &ConditionResult{Met: false, Value: price, Details: details}
		}
		met, ok := compare(operator, *price, threshold)
		if !ok {
			return &ConditionResult{Met: false, Value: price, Details: map[string]interface{}{
				"unknown_operator": operator,
			}}
		}
		return &ConditionResult{Met: met, Value: price, Details: details}
	}

	limit, known := neededLimit(ind, p.Params, operator)
	if !known {
		return &ConditionResult{Met: false, Details: map[string]interface{}{
			"unknown_indicator": ind,
		}}
	}
	if !cross {
		if _, ok := compare(operator, 0, 0); !ok {
			return &ConditionResult{Met: false, Details: map[string]interface{}{
				"unknown_operator": operator,
			}}
		}
	}

	timeframe := p.Timeframe
	if timeframe == "" {
		timeframe = "1h"
	}
	candles := ec.Candles(ctx, p.Asset, timeframe, limit)
	if candles == nil {
		details["source_unavailable"] = true
		return &ConditionResult{Met: false, Details: details}
	}
	if len(candles) < limit {
		details["insufficient_data"] = true
		details["needed"] = limit
		details["got"] = len(candles)
		return &ConditionResult{Met: false, Details: details}
	}

	closes := closesOf(candles)
	volumes := make([]float64, len(candles))
	for i, c := range candles {
		volumes[i] = c.Volume
	}

	current, ok := indicatorValue(ind, closes, volumes, p.Params)
	if !ok {
		details["insufficient_data"] = true
		return &ConditionResult{Met: false, Details: details}
	}

	if cross {
		prior, ok := indicatorValue(ind, closes[:len(closes)-1], volumes[:len(volumes)-1], p.Params)
		if !ok {
			details["insufficient_data"] = true
			return &ConditionResult{Met: false, Value: &current, Details: details}
		}
		details["prior"] = prior
		met := crossed(operator, prior, current, threshold)
		return &ConditionResult{Met: met, Value: &current, Details: details}
	}

	met, _ := compare(operator, current, threshold)
	return &ConditionResult{Met: met, Value: &current, Details: details}
}

func evaluateVolumeAlert(ctx context.Context, ec *EvalContext, cond *database.Condition) *ConditionResult {
	var p database.VolumeAlertPayload
	if err := json.Unmarshal(cond.Payload, &p); err != nil {
		return invalid("malformed payload")
	}
	if p.Asset == "" || p.Threshold == nil {
		return invalid("missing asset or threshold")
	}
	operator := strings.ToLower(p.Operator)
	cross := operator == OpCrossAbove || operator == OpCrossBelow
	threshold := *p.Threshold

	details := map[string]interface{}{
		"asset":     p.Asset,
		"operator":  operator,
		"threshold": threshold,
		"timeframe": p.Timeframe,
	}

	limit := 1
	if cross {
		limit = 2
	}
	timeframe := p.Timeframe
	if timeframe == "" {
		timeframe = "1h"
	}
	candles := ec.Candles(ctx, p.Asset, timeframe, limit)
	if candles == nil {
		details["source_unavailable"] = true
		return &ConditionResult{Met: false, Details: details}
	}
	if len(candles) < limit {
		details["insufficient_data"] = true
		return &ConditionResult{Met: false, Details: details}
	}

	current := candles[len(candles)-1].Volume
	if cross {
		prior := candles[len(candles)-2].Volume
		details["prior"] = prior
		met := crossed(operator, prior, current, threshold)
		return &ConditionResult{Met: met, Value: &current, Details: details}
	}

	met, ok := compare(operator, current, threshold)
	if !ok {
		return &ConditionResult{Met: false, Value: &current, Details: map[string]interface{}{
			"unknown_operator": operator,
		}}
	}
	return &ConditionResult{Met: met, Value: &current, Details: details}
}
