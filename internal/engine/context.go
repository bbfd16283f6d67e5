// Package engine evaluates strategy rule trees against live market data
// and schedules periodic evaluation cycles.
package engine

import (
	"context"
	"fmt"

	"strategy-monitor/internal/database"
	"strategy-monitor/internal/market"
	"strategy-monitor/internal/providers"
)

// ConditionResult is the outcome of one condition evaluation. Met is
// always decided; Value carries the observed number when one exists, and
// Details explains the decision (operands, diagnostics).
type ConditionResult struct {
	Met     bool                   `json:"met"`
	Value   *float64               `json:"value,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// EvalContext memoises market lookups and condition results for the
// duration of one strategy evaluation. A condition referenced from several
// leaves is evaluated once; repeated price or candle lookups hit the memo.
type EvalContext struct {
	Strategy *database.Strategy

	data    market.Data
	quote   string
	prices  map[string]*float64
	candles map[string][]providers.Candle
	results map[string]*ConditionResult
}

// NewEvalContext creates an evaluation context for one strategy.
func NewEvalContext(s *database.Strategy, data market.Data, quote string) *EvalContext {
	return &EvalContext{
		Strategy: s,
		data:     data,
		quote:    quote,
		prices:   make(map[string]*float64),
		candles:  make(map[string][]providers.Candle),
		results:  make(map[string]*ConditionResult),
	}
}

// Price returns the memoised price for an asset, nil when unavailable.
func (ec *EvalContext) Price(ctx context.Context, asset string) *float64 {
	if p, ok := ec.prices[asset]; ok {
		return p
	}
	p := ec.data.GetPrice(ctx, asset, ec.quote)
	ec.prices[asset] = p
	return p
}

// Candles returns the memoised candle series for a symbol/interval/limit,
// nil when unavailable. Series with the same symbol and interval but
// different limits are separate entries.
func (ec *EvalContext) Candles(ctx context.Context, symbol, interval string, limit int) []providers.Candle {
	key := fmt.Sprintf("%s|%s|%d", symbol, interval, limit)
	if c, ok := ec.candles[key]; ok {
		return c
	}
	c := ec.data.GetCandles(ctx, symbol, interval, limit, ec.quote)
	ec.candles[key] = c
	return c
}

// Results exposes the memoised condition results, keyed by condition id.
// The scheduler serialises this map into the trigger snapshot.
func (ec *EvalContext) Results() map[string]*ConditionResult {
	return ec.results
}

func closesOf(candles []providers.Candle) []float64 {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	return closes
}
