package shared

// UpdateKind represents the kind of a realtime update message.
type UpdateKind int

const (
	// PriceTickUpdate carries a fresh trade price and optionally refreshed
	// 24 hour summary figures. It never carries a candle.
	PriceTickUpdate UpdateKind = iota
	// CandleCloseUpdate marks a completed candle bucket. It refreshes all
	// summary figures and may carry the closed candle.
	CandleCloseUpdate
)

// UpdateMessage represents a decoded message from the push feed.
type UpdateMessage struct {
	Kind                  UpdateKind
	Symbol                string
	Timeframe             Timeframe
	Price                 float64
	PriceChange24h        float64
	PriceChangePercent24h float64
	Volume24h             float64
	// Candle is set only for candle close updates that include the closed
	// candle payload.
	Candle *Candlestick
}
