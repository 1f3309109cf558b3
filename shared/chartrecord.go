package shared

// ChartRecord represents the chart state for a tracked symbol: the 24 hour
// summary figures plus the retained candle sequence.
type ChartRecord struct {
	Symbol                string
	Timeframe             Timeframe
	LatestPrice           float64
	PriceChange24h        float64
	PriceChangePercent24h float64
	Volume24h             float64
	Candles               []Candlestick
}

// Clone returns a deep copy of the chart record. Writers clone a record,
// mutate the copy and store it back so readers never observe a half-applied
// update.
func (r *ChartRecord) Clone() *ChartRecord {
	clone := *r
	clone.Candles = make([]Candlestick, len(r.Candles))
	copy(clone.Candles, r.Candles)
	return &clone
}
