package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const coingeckoBaseURL = "https://api.coingecko.com/api/v3"

// coinIDs maps exchange tickers to CoinGecko coin ids.
var coinIDs = map[string]string{
	"BTC":   "bitcoin",
	"ETH":   "ethereum",
	"BNB":   "binancecoin",
	"SOL":   "solana",
	"XRP":   "ripple",
	"ADA":   "cardano",
	"DOGE":  "dogecoin",
	"DOT":   "polkadot",
	"MATIC": "matic-network",
	"LTC":   "litecoin",
	"AVAX":  "avalanche-2",
	"LINK":  "chainlink",
	"ATOM":  "cosmos",
	"UNI":   "uniswap",
	"XLM":   "stellar",
}

// CoinGeckoClient is the fallback market-data source. CoinGecko's
// market_chart endpoint yields price/volume points rather than full OHLCV,
// so candles are synthesised with open=high=low=close=price.
type CoinGeckoClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewCoinGeckoClient creates a CoinGecko client. An empty baseURL selects
// the public endpoint.
func NewCoinGeckoClient(baseURL string) *CoinGeckoClient {
	if baseURL == "" {
		baseURL = coingeckoBaseURL
	}
	return &CoinGeckoClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		// Free tier allows ~30 calls/min.
		limiter: rate.NewLimiter(rate.Every(2*time.Second), 2),
	}
}

func (c *CoinGeckoClient) Name() string { return "coingecko" }

// coinID resolves an exchange ticker to a CoinGecko id. Unmapped symbols
// are passed through lower-cased, which covers assets whose ticker equals
// their CoinGecko id.
func coinID(symbol string) string {
	if id, ok := coinIDs[strings.ToUpper(symbol)]; ok {
		return id
	}
	return strings.ToLower(symbol)
}

// GetPrice fetches the current price from the simple/price endpoint.
func (c *CoinGeckoClient) GetPrice(ctx context.Context, symbol, quote string) (float64, error) {
	id := coinID(symbol)
	vs := strings.ToLower(quote)
	if vs == "" {
		vs = "usd"
	}

	params := url.Values{}
	params.Set("ids", id)
	params.Set("vs_currencies", vs)

	body, err := c.get(ctx, "/simple/price", params)
	if err != nil {
		return 0, err
	}

	var resp map[string]map[string]float64
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("error parsing price: %w", err)
	}
	price, ok := resp[id][vs]
	if !ok {
		return 0, ErrUnavailable
	}
	return price, nil
}

// GetCandles fetches price/volume history from the market_chart endpoint
// and normalises it into Candles. The days parameter is a range, not a
// point count; the result is truncated to the last `limit` points.
func (c *CoinGeckoClient) GetCandles(ctx context.Context, symbol, interval string, limit int, quote string) ([]Candle, error) {
	vs := strings.ToLower(quote)
	if vs == "" {
		vs = "usd"
	}

	var days string
	switch interval {
	case "1d", "1w":
		days = "90"
	case "1h", "4h", "12h":
		days = "7"
	default:
		days = "1"
	}

	params := url.Values{}
	params.Set("vs_currency", vs)
	params.Set("days", days)

	body, err := c.get(ctx, "/coins/"+coinID(symbol)+"/market_chart", params)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Prices       [][2]float64 `json:"prices"`
		TotalVolumes [][2]float64 `json:"total_volumes"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("error parsing market chart: %w", err)
	}
	if len(resp.Prices) == 0 {
		return nil, ErrUnavailable
	}

	volumes := make(map[int64]float64, len(resp.TotalVolumes))
	for _, v := range resp.TotalVolumes {
		volumes[int64(v[0])] = v[1]
	}

	candles := make([]Candle, 0, len(resp.Prices))
	for _, p := range resp.Prices {
		ts := int64(p[0])
		price := p[1]
		candles = append(candles, Candle{
			OpenTime: ts,
			Open:     price,
			High:     price,
			Low:      price,
			Close:    price,
			Volume:   volumes[ts],
		})
	}
	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return candles, nil
}

func (c *CoinGeckoClient) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
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
		return nil, fmt.Errorf("coingecko request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrUnavailable
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coingecko API error (%d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}
