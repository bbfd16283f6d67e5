package cache

import (
	"fmt"
	"strings"
)

// Key formats for market data. These strings are part of the external
// contract: other services read the same keys.
const (
	prefixPrice   = "prices:%s"
	prefixCandles = "klines:%s:%s:%d:%s"
)

// PriceKey builds the cache key for a spot price, e.g. "prices:BTC".
func PriceKey(asset string) string {
	return fmt.Sprintf(prefixPrice, strings.ToUpper(asset))
}

// CandlesKey builds the cache key for a candle series, e.g.
// "klines:BTC:1h:15:usd".
func CandlesKey(symbol, interval string, limit int, quote string) string {
	return fmt.Sprintf(prefixCandles,
		strings.ToUpper(symbol), strings.ToLower(interval), limit, strings.ToLower(quote))
}
