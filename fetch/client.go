package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mwheeler/chartsync/shared"
	"github.com/tidwall/gjson"
)

const (
	symbolsPath   = "/api/market/symbols"
	chartPath     = "/api/market/chart"
	pricesPath    = "/api/market/prices"
	watchlistPath = "/api/watchlist"
)

// ClientConfig represents the configuration for the dashboard API client.
type ClientConfig struct {
	// BaseURL is the dashboard backend base url.
	BaseURL string
	// APIKey is the dashboard backend API key.
	APIKey string
}

// Validate asserts the config sane inputs.
func (cfg *ClientConfig) Validate() error {
	var errs error

	if cfg.BaseURL == "" {
		errs = errors.Join(errs, fmt.Errorf("base url cannot be an empty string"))
	}

	return errs
}

// Client represents the dashboard backend API client. It is safe for
// concurrent use, batch loads fetch multiple charts at once.
type Client struct {
	cfg   *ClientConfig
	httpc http.Client
}

// Ensure the client implements the backend collaborator interfaces.
var _ shared.ChartFetcher = (*Client)(nil)
var _ shared.PriceFetcher = (*Client)(nil)
var _ shared.SymbolDiscoverer = (*Client)(nil)
var _ shared.WatchlistEditor = (*Client)(nil)

// NewClient instantiates a new dashboard backend API client.
func NewClient(cfg *ClientConfig) (*Client, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	return &Client{
		cfg:   cfg,
		httpc: http.Client{Timeout: time.Second * 5},
	}, nil
}

// formURL creates full urls including parameters for the api.
func (c *Client) formURL(path string, params string) string {
	var buf strings.Builder
	buf.WriteString(c.cfg.BaseURL)
	buf.WriteString(path)
	if params != "" {
		buf.WriteString("?")
		buf.WriteString(params)
	}

	return buf.String()
}

// do executes the provided request and returns the response payload after
// asserting the backend reported success.
func (c *Client) do(ctx context.Context, method string, url string, body io.Reader) (gjson.Result, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("creating %s request: %w", method, err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", c.cfg.APIKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return gjson.Result{}, err
	}

	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return gjson.Result{}, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(payload))
	}

	parsed := gjson.ParseBytes(payload)
	if !parsed.Get("success").Bool() {
		return gjson.Result{}, fmt.Errorf("backend reported failure: %s", string(payload))
	}

	return parsed.Get("data"), nil
}

// parseCandlesticks parses candlesticks from the provided json data.
func parseCandlesticks(data []gjson.Result, symbol string, timeframe shared.Timeframe) []shared.Candlestick {
	candles := make([]shared.Candlestick, 0, len(data))

	for idx := range data {
		candles = append(candles, shared.Candlestick{
			Open:      data[idx].Get("open").Float(),
			Low:       data[idx].Get("low").Float(),
			High:      data[idx].Get("high").Float(),
			Close:     data[idx].Get("close").Float(),
			Volume:    data[idx].Get("volume").Float(),
			Timestamp: data[idx].Get("timestamp").Int(),
			Symbol:    symbol,
			Timeframe: timeframe,
		})
	}

	return candles
}

// FetchChart fetches the full chart record for the provided symbol and timeframe.
func (c *Client) FetchChart(ctx context.Context, symbol string, timeframe shared.Timeframe, limit int) (*shared.ChartRecord, error) {
	params := url.Values{}
	params.Add("symbol", symbol)
	params.Add("timeframe", timeframe.String())
	params.Add("limit", strconv.Itoa(limit))

	data, err := c.do(ctx, http.MethodGet, c.formURL(chartPath, params.Encode()), nil)
	if err != nil {
		return nil, fmt.Errorf("fetching chart (%s) for %s: %w", timeframe.String(), symbol, err)
	}

	record := &shared.ChartRecord{
		Symbol:                symbol,
		Timeframe:             timeframe,
		LatestPrice:           data.Get("latestPrice").Float(),
		PriceChange24h:        data.Get("priceChange24h").Float(),
		PriceChangePercent24h: data.Get("priceChangePercent24h").Float(),
		Volume24h:             data.Get("volume24h").Float(),
		Candles:               parseCandlesticks(data.Get("candles").Array(), symbol, timeframe),
	}

	return record, nil
}

// FetchSymbols fetches the ordered symbol list known to the backend.
func (c *Client) FetchSymbols(ctx context.Context) ([]string, error) {
	data, err := c.do(ctx, http.MethodGet, c.formURL(symbolsPath, ""), nil)
	if err != nil {
		return nil, fmt.Errorf("fetching symbols: %w", err)
	}

	results := data.Get("symbols").Array()
	symbols := make([]string, 0, len(results))
	for idx := range results {
		symbols = append(symbols, results[idx].String())
	}

	return symbols, nil
}

// FetchLatestPrices fetches the latest price for all tracked symbols.
func (c *Client) FetchLatestPrices(ctx context.Context) (map[string]float64, error) {
	data, err := c.do(ctx, http.MethodGet, c.formURL(pricesPath, ""), nil)
	if err != nil {
		return nil, fmt.Errorf("fetching latest prices: %w", err)
	}

	prices := make(map[string]float64)
	data.ForEach(func(key gjson.Result, value gjson.Result) bool {
		prices[key.String()] = value.Float()
		return true
	})

	return prices, nil
}

// AddSymbol registers the provided symbol with the backend for the provided
// timeframes.
func (c *Client) AddSymbol(ctx context.Context, symbol string, timeframes []shared.Timeframe) error {
	names := make([]string, 0, len(timeframes))
	for idx := range timeframes {
		names = append(names, timeframes[idx].String())
	}

	body, err := json.Marshal(struct {
		Symbol     string   `json:"symbol"`
		Timeframes []string `json:"timeframes"`
	}{
		Symbol:     symbol,
		Timeframes: names,
	})
	if err != nil {
		return fmt.Errorf("encoding add symbol request: %w", err)
	}

	_, err = c.do(ctx, http.MethodPost, c.formURL(watchlistPath, ""), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("adding symbol %s: %w", symbol, err)
	}

	return nil
}

// RemoveSymbol deregisters the provided symbol from the backend.
func (c *Client) RemoveSymbol(ctx context.Context, symbol string) error {
	_, err := c.do(ctx, http.MethodDelete, c.formURL(watchlistPath+"/"+symbol, ""), nil)
	if err != nil {
		return fmt.Errorf("removing symbol %s: %w", symbol, err)
	}

	return nil
}
