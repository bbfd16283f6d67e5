package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const binanceBaseURL = "https://api.binance.com"

// BinanceClient fetches spot prices and klines from the Binance public API.
// Symbols must be Binance tickers (BTC, ETH); the quote asset "usd" is
// mapped to USDT, the most common spot quote.
type BinanceClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewBinanceClient creates a Binance client. An empty baseURL selects the
// production endpoint.
func NewBinanceClient(baseURL string) *BinanceClient {
	if baseURL == "" {
		baseURL = binanceBaseURL
	}
	return &BinanceClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		// Binance allows 1200 request weight/min; stay well under it.
		limiter: rate.NewLimiter(rate.Every(100*time.Millisecond), 5),
	}
}

func (c *BinanceClient) Name() string { return "binance" }

// quoteAsset maps a generic quote string to a Binance quote asset.
func quoteAsset(quote string) string {
	q := strings.ToUpper(quote)
	if q == "USD" || q == "" {
		return "USDT"
	}
	return q
}

// pair builds a Binance trading pair, e.g. BTC + usd -> BTCUSDT.
func pair(symbol, quote string) string {
	return strings.ToUpper(symbol) + quoteAsset(quote)
}

// GetPrice fetches the current spot price from the ticker endpoint.
func (c *BinanceClient) GetPrice(ctx context.Context, symbol, quote string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", pair(symbol, quote))

	body, err := c.get(ctx, "/api/v3/ticker/price", params)
	if err != nil {
		return 0, err
	}

	var resp struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("error parsing price: %w", err)
	}
	if resp.Price == "" {
		return 0, ErrUnavailable
	}
	price, err := strconv.ParseFloat(resp.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("error parsing price %q: %w", resp.Price, err)
	}
	return price, nil
}

// GetCandles fetches OHLCV candlesticks. Binance returns klines as raw
// arrays: [0] openTime(ms), [1] open, [2] high, [3] low, [4] close,
// [5] volume, [6] closeTime, ...
func (c *BinanceClient) GetCandles(ctx context.Context, symbol, interval string, limit int, quote string) ([]Candle, error) {
	params := url.Values{}
	params.Set("symbol", pair(symbol, quote))
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))

	body, err := c.get(ctx, "/api/v3/klines", params)
	if err != nil {
		return nil, err
	}

	var raw [][]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("error parsing klines: %w", err)
	}
	if len(raw) == 0 {
		return nil, ErrUnavailable
	}

	candles := make([]Candle, 0, len(raw))
	for _, k := range raw {
		if len(k) < 6 {
			continue
		}
		openTime, _ := k[0].(float64)
		candles = append(candles, Candle{
			OpenTime: int64(openTime),
			Open:     parseFloat(k[1]),
			High:     parseFloat(k[2]),
			Low:      parseFloat(k[3]),
			Close:    parseFloat(k[4]),
			Volume:   parseFloat(k[5]),
		})
	}
	return candles, nil
}

func (c *BinanceClient) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("binance request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest {
		// Unknown symbol or interval: this provider cannot serve the request.
		return nil, ErrUnavailable
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("binance API error (%d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func parseFloat(val interface{}) float64 {
	switch v := val.(type) {
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	case float64:
		return v
	default:
		return 0
	}
}
