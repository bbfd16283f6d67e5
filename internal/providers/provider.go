// Package providers contains clients for upstream market-data sources.
// Each provider normalises its native symbology into the internal
// (symbol, quote) pair and the internal Candle shape.
package providers

import (
	"context"
	"errors"
)

// ErrUnavailable means the provider cannot fulfil this request (unknown
// symbol, unsupported interval, empty response). The prefetcher treats it
// the same as a transport error: skip to the next provider.
var ErrUnavailable = errors.New("provider: data unavailable")

// Candle is one OHLCV candlestick. OpenTime is the opening time of the
// candle in epoch milliseconds. Series are ordered oldest to newest.
type Candle struct {
	OpenTime int64   `json:"t"`
	Open     float64 `json:"o"`
	High     float64 `json:"h"`
	Low      float64 `json:"l"`
	Close    float64 `json:"c"`
	Volume   float64 `json:"v"`
}

// Provider fetches spot prices and candles for a (symbol, quote) pair.
type Provider interface {
	Name() string
	GetPrice(ctx context.Context, symbol, quote string) (float64, error)
	GetCandles(ctx context.Context, symbol, interval string, limit int, quote string) ([]Candle, error)
}
