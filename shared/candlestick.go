package shared

import "time"

// Candlestick represents a unit candlestick for a tracked symbol. Values are
// immutable once created.
type Candlestick struct {
	Open   float64
	Low    float64
	High   float64
	Close  float64
	Volume float64
	// Timestamp is the candle open time in unix milliseconds.
	Timestamp int64

	// Metadata fields.
	Symbol    string
	Timeframe Timeframe
}

// IsBullish reports whether the candlestick closed at or above its open.
func (c *Candlestick) IsBullish() bool {
	return c.Close >= c.Open
}

// Time returns the candle open time.
func (c *Candlestick) Time() time.Time {
	return time.UnixMilli(c.Timestamp)
}
