// Package market fetches prices and candles through the cache and the
// ordered provider chain. It is the single data path for the evaluation
// engine: evaluation never talks to providers or Redis directly.
package market

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"strategy-monitor/internal/cache"
	"strategy-monitor/internal/metrics"
	"strategy-monitor/internal/providers"
)

// Data is the read surface the evaluation engine consumes. Lookups are
// total: a failed fetch yields a nil price or nil candles, never an error.
type Data interface {
	GetPrice(ctx context.Context, asset, quote string) *float64
	GetCandles(ctx context.Context, symbol, interval string, limit int, quote string) []providers.Candle
}

// Prefetcher implements Data over a Redis cache and an ordered list of
// providers. Concurrent requests for the same cache key are coalesced so
// one upstream call serves all of them.
type Prefetcher struct {
	cache     *cache.Service
	providers []providers.Provider
	logger    zerolog.Logger

	priceTTL  time.Duration
	candleTTL time.Duration

	group singleflight.Group
}

// NewPrefetcher creates a prefetcher. Providers are tried in order; the
// first success wins.
func NewPrefetcher(c *cache.Service, provs []providers.Provider, priceTTL, candleTTL time.Duration, logger zerolog.Logger) *Prefetcher {
	return &Prefetcher{
		cache:     c,
		providers: provs,
		logger:    logger.With().Str("component", "prefetcher").Logger(),
		priceTTL:  priceTTL,
		candleTTL: candleTTL,
	}
}

// GetPrice returns the current price for an asset, or nil when every
// source failed. Cached values are stored as plain decimal strings.
func (p *Prefetcher) GetPrice(ctx context.Context, asset, quote string) *float64 {
	key := cache.PriceKey(asset)

	v, err, _ := p.group.Do(key, func() (interface{}, error) {
		if raw, err := p.cache.Get(ctx, key); err == nil {
			if price, perr := strconv.ParseFloat(raw, 64); perr == nil {
				metrics.CacheHits.WithLabelValues("price").Inc()
				return price, nil
			}
			// Corrupt entry, treat as miss and overwrite below.
			p.logger.Warn().Str("key", key).Msg("corrupt cached price, refetching")
		}
		metrics.CacheMisses.WithLabelValues("price").Inc()

		price, err := p.fetchPrice(ctx, asset, quote)
		if err != nil {
			return nil, err
		}
		val := strconv.FormatFloat(price, 'f', -1, 64)
		if err := p.cache.Set(ctx, key, val, p.priceTTL); err != nil {
			p.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
		}
		return price, nil
	})
	if err != nil {
		p.logger.Warn().Err(err).Str("asset", asset).Msg("price unavailable")
		return nil
	}
	price := v.(float64)
	return &price
}

// GetPrices fetches prices for a set of assets. Failed assets map to nil
// so the evaluator can distinguish "no data" from a zero price.
func (p *Prefetcher) GetPrices(ctx context.Context, assets []string, quote string) map[string]*float64 {
	out := make(map[string]*float64, len(assets))
	for _, asset := range assets {
		out[asset] = p.GetPrice(ctx, asset, quote)
	}
	return out
}

// GetCandles returns a candle series, or nil when every source failed.
// Cached series are stored as JSON arrays.
func (p *Prefetcher) GetCandles(ctx context.Context, symbol, interval string, limit int, quote string) []providers.Candle {
	key := cache.CandlesKey(symbol, interval, limit, quote)

	v, err, _ := p.group.Do(key, func() (interface{}, error) {
		if raw, err := p.cache.Get(ctx, key); err == nil {
			var candles []providers.Candle
			if jerr := json.Unmarshal([]byte(raw), &candles); jerr == nil && len(candles) > 0 {
				metrics.CacheHits.WithLabelValues("candles").Inc()
				return candles, nil
			}
			p.logger.Warn().Str("key", key).Msg("corrupt cached candles, refetching")
		}
		metrics.CacheMisses.WithLabelValues("candles").Inc()

		candles, err := p.fetchCandles(ctx, symbol, interval, limit, quote)
		if err != nil {
			return nil, err
		}
		if encoded, jerr := json.Marshal(candles); jerr == nil {
			if err := p.cache.Set(ctx, key, string(encoded), p.candleTTL); err != nil {
				p.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
			}
		}
		return candles, nil
	})
	if err != nil {
		p.logger.Warn().Err(err).Str("symbol", symbol).Str("interval", interval).Msg("candles unavailable")
		return nil
	}
	return v.([]providers.Candle)
}

func (p *Prefetcher) fetchPrice(ctx context.Context, asset, quote string) (float64, error) {
	var lastErr error
	for _, prov := range p.providers {
		price, err := prov.GetPrice(ctx, asset, quote)
		if err == nil {
			metrics.ProviderRequests.WithLabelValues(prov.Name(), "ok").Inc()
			return price, nil
		}
		metrics.ProviderRequests.WithLabelValues(prov.Name(), "error").Inc()
		p.logger.Debug().Err(err).Str("provider", prov.Name()).Str("asset", asset).Msg("price fetch failed, trying next")
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("no providers configured")
	}
	return 0, lastErr
}

func (p *Prefetcher) fetchCandles(ctx context.Context, symbol, interval string, limit int, quote string) ([]providers.Candle, error) {
	var lastErr error
	for _, prov := range p.providers {
		candles, err := prov.GetCandles(ctx, symbol, interval, limit, quote)
		if err == nil && len(candles) > 0 {
			metrics.ProviderRequests.WithLabelValues(prov.Name(), "ok").Inc()
			return candles, nil
		}
		if err == nil {
			err = providers.ErrUnavailable
		}
		metrics.ProviderRequests.WithLabelValues(prov.Name(), "error").Inc()
		p.logger.Debug().Err(err).Str("provider", prov.Name()).Str("symbol", symbol).Msg("candle fetch failed, trying next")
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("no providers configured")
	}
	return nil, lastErr
}
