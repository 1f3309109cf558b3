package shared

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
)

func TestCandlestickIsBullish(t *testing.T) {
	bullish := Candlestick{Open: 10, Close: 12}
	assert.True(t, bullish.IsBullish())

	bearish := Candlestick{Open: 12, Close: 10}
	assert.False(t, bearish.IsBullish())

	// A doji counts as bullish.
	doji := Candlestick{Open: 10, Close: 10}
	assert.True(t, doji.IsBullish())
}

func TestCandlestickTime(t *testing.T) {
	opened := time.Date(2026, time.March, 5, 9, 0, 0, 0, time.UTC)
	candle := Candlestick{Timestamp: opened.UnixMilli()}
	assert.True(t, candle.Time().Equal(opened))
}

func TestChartRecordClone(t *testing.T) {
	record := &ChartRecord{
		Symbol:      "BTCUSDT",
		Timeframe:   OneHour,
		LatestPrice: 100,
		Candles: []Candlestick{
			{Open: 10, Close: 12, High: 15, Low: 8},
		},
	}

	clone := record.Clone()
	clone.LatestPrice = 1
	clone.Candles[0].Open = 999

	assert.Equal(t, record.LatestPrice, float64(100))
	assert.Equal(t, record.Candles[0].Open, float64(10))
}

func TestIsCancellation(t *testing.T) {
	assert.True(t, IsCancellation(context.Canceled))
	assert.True(t, IsCancellation(fmt.Errorf("fetching chart: %w", context.Canceled)))

	// Transport timeouts are transient fetch failures, not cancellations.
	assert.False(t, IsCancellation(context.DeadlineExceeded))
	assert.False(t, IsCancellation(fmt.Errorf("backend unavailable")))
	assert.False(t, IsCancellation(nil))
}
