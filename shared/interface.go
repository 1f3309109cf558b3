package shared

import "context"

// ChartFetcher defines the requirements for fetching full chart records.
type ChartFetcher interface {
	// FetchChart fetches the chart record for the provided symbol and timeframe.
	FetchChart(ctx context.Context, symbol string, timeframe Timeframe, limit int) (*ChartRecord, error)
}

// PriceFetcher defines the requirements for fetching latest prices.
type PriceFetcher interface {
	// FetchLatestPrices fetches the latest price for all tracked symbols.
	FetchLatestPrices(ctx context.Context) (map[string]float64, error)
}

// SymbolDiscoverer defines the requirements for discovering the full
// backend-known symbol set.
type SymbolDiscoverer interface {
	// FetchSymbols fetches the ordered symbol list known to the backend.
	FetchSymbols(ctx context.Context) ([]string, error)
}

// WatchlistEditor defines the requirements for mutating the backend watchlist.
type WatchlistEditor interface {
	// AddSymbol registers the provided symbol with the backend.
	AddSymbol(ctx context.Context, symbol string, timeframes []Timeframe) error
	// RemoveSymbol deregisters the provided symbol from the backend.
	RemoveSymbol(ctx context.Context, symbol string) error
}

// PushFeed defines the requirements for the realtime push channel.
type PushFeed interface {
	// Connect establishes the feed connection and starts its read loop.
	Connect(ctx context.Context) error
	// Disconnect tears down the feed connection.
	Disconnect() error
	// IsConnected reports whether the feed is connected.
	IsConnected() bool
	// IsConnecting reports whether a connection attempt is in flight.
	IsConnecting() bool
	// Subscribe registers the provided subscriber for decoded feed messages.
	Subscribe(sub *chan UpdateMessage)
}

// CandleArchiver defines the requirements for archiving closed candles.
type CandleArchiver interface {
	// ArchiveClosedCandle persists the provided closed candle.
	ArchiveClosedCandle(ctx context.Context, candle *Candlestick) error
}
