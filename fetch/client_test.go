package fetch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/mwheeler/chartsync/shared"
	"github.com/peterldowns/testy/assert"
	"github.com/tidwall/gjson"
)

func setupClient(t *testing.T, handler http.HandlerFunc) *Client {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(&ClientConfig{
		BaseURL: server.URL,
		APIKey:  "test-key",
	})
	assert.NoError(t, err)

	return client
}

func TestClientConfigValidate(t *testing.T) {
	cfg := &ClientConfig{}
	assert.Error(t, cfg.Validate())

	cfg.BaseURL = "http://localhost:8080"
	assert.NoError(t, cfg.Validate())
}

func TestFetchChart(t *testing.T) {
	payload := `{"success":true,"data":{"latestPrice":42150.5,"priceChange24h":320.5,` +
		`"priceChangePercent24h":0.77,"volume24h":123456.7,"candles":[` +
		`{"open":42000,"high":42200,"low":41900,"close":42150.5,"volume":15.2,"timestamp":1700000000000},` +
		`{"open":42150.5,"high":42300,"low":42100,"close":42250,"volume":12.8,"timestamp":1700003600000}]}}`

	var gotPath string
	var gotQuery map[string][]string
	client := setupClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		w.Write([]byte(payload))
	})

	record, err := client.FetchChart(context.Background(), "BTCUSDT", shared.OneHour, 100)
	assert.NoError(t, err)

	assert.Equal(t, gotPath, chartPath)
	assert.Equal(t, gotQuery["symbol"], []string{"BTCUSDT"})
	assert.Equal(t, gotQuery["timeframe"], []string{"1h"})
	assert.Equal(t, gotQuery["limit"], []string{"100"})

	assert.Equal(t, record.Symbol, "BTCUSDT")
	assert.Equal(t, record.Timeframe, shared.OneHour)
	assert.Equal(t, record.LatestPrice, 42150.5)
	assert.Equal(t, record.PriceChange24h, 320.5)
	assert.Equal(t, record.PriceChangePercent24h, 0.77)
	assert.Equal(t, record.Volume24h, 123456.7)
	assert.Equal(t, len(record.Candles), 2)
	assert.True(t, cmp.Equal(record.Candles[0], shared.Candlestick{
		Open:      42000,
		High:      42200,
		Low:       41900,
		Close:     42150.5,
		Volume:    15.2,
		Timestamp: 1700000000000,
		Symbol:    "BTCUSDT",
		Timeframe: shared.OneHour,
	}))
}

func TestFetchChartBackendFailure(t *testing.T) {
	client := setupClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false}`))
	})

	_, err := client.FetchChart(context.Background(), "BTCUSDT", shared.OneHour, 100)
	assert.Error(t, err)
	assert.False(t, shared.IsCancellation(err))
}

func TestFetchChartCancellation(t *testing.T) {
	// A fetch whose context is already cancelled classifies as a
	// cancellation, not a transient failure.
	client := setupClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"data":{}}`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.FetchChart(ctx, "BTCUSDT", shared.OneHour, 100)
	assert.Error(t, err)
	assert.True(t, shared.IsCancellation(err))
}

func TestFetchSymbols(t *testing.T) {
	client := setupClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"data":{"symbols":["BTCUSDT","ETHUSDT","XRPUSDT"]}}`))
	})

	symbols, err := client.FetchSymbols(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, symbols, []string{"BTCUSDT", "ETHUSDT", "XRPUSDT"})
}

func TestFetchSymbolsMalformedResponse(t *testing.T) {
	client := setupClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"data":{}}`))
	})

	symbols, err := client.FetchSymbols(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, len(symbols), 0)
}

func TestFetchLatestPrices(t *testing.T) {
	client := setupClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"data":{"BTCUSDT":42150.5,"ETHUSDT":2210.25}}`))
	})

	prices, err := client.FetchLatestPrices(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, prices, map[string]float64{
		"BTCUSDT": 42150.5,
		"ETHUSDT": 2210.25,
	})
}

func TestAddSymbol(t *testing.T) {
	var gotMethod string
	var gotBody []byte
	var gotKey string
	client := setupClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotKey = r.Header.Get("X-API-Key")
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"success":true}`))
	})

	err := client.AddSymbol(context.Background(), "DOGEUSDT", []shared.Timeframe{shared.OneHour, shared.OneDay})
	assert.NoError(t, err)

	assert.Equal(t, gotMethod, http.MethodPost)
	assert.Equal(t, gotKey, "test-key")

	parsed := gjson.ParseBytes(gotBody)
	assert.Equal(t, parsed.Get("symbol").String(), "DOGEUSDT")
	assert.Equal(t, len(parsed.Get("timeframes").Array()), 2)
	assert.Equal(t, parsed.Get("timeframes.0").String(), "1h")
	assert.Equal(t, parsed.Get("timeframes.1").String(), "1d")
}

func TestRemoveSymbol(t *testing.T) {
	var gotMethod string
	var gotPath string
	client := setupClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.Write([]byte(`{"success":true}`))
	})

	err := client.RemoveSymbol(context.Background(), "DOGEUSDT")
	assert.NoError(t, err)

	assert.Equal(t, gotMethod, http.MethodDelete)
	assert.Equal(t, gotPath, watchlistPath+"/DOGEUSDT")
}

func TestRemoveSymbolBackendFailure(t *testing.T) {
	client := setupClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"success":false}`))
	})

	err := client.RemoveSymbol(context.Background(), "DOGEUSDT")
	assert.Error(t, err)
}
