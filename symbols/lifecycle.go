package symbols

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mwheeler/chartsync/chart"
	"github.com/mwheeler/chartsync/shared"
	"github.com/rs/zerolog"
)

// LifecycleConfig represents the configuration for the symbol lifecycle
// controller.
type LifecycleConfig struct {
	// Watchlist mutates the backend watchlist.
	Watchlist shared.WatchlistEditor
	// ExchangeClient fetches chart records from the backend.
	ExchangeClient shared.ChartFetcher
	// ChartSet is the shared chart state.
	ChartSet *chart.Set
	// FetchLimit is the number of candles requested per chart fetch.
	FetchLimit int
	// CurrentTimeframe returns the currently selected timeframe.
	CurrentTimeframe func() shared.Timeframe
	// Notify sends the provided user-facing message.
	Notify func(message string)
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *LifecycleConfig) Validate() error {
	var errs error

	if cfg.Watchlist == nil {
		errs = errors.Join(errs, fmt.Errorf("watchlist editor cannot be nil"))
	}
	if cfg.ExchangeClient == nil {
		errs = errors.Join(errs, fmt.Errorf("exchange client cannot be nil"))
	}
	if cfg.ChartSet == nil {
		errs = errors.Join(errs, fmt.Errorf("chart set cannot be nil"))
	}
	if cfg.FetchLimit <= 0 {
		errs = errors.Join(errs, fmt.Errorf("fetch limit must be positive"))
	}
	if cfg.CurrentTimeframe == nil {
		errs = errors.Join(errs, fmt.Errorf("current timeframe function cannot be nil"))
	}
	if cfg.Notify == nil {
		errs = errors.Join(errs, fmt.Errorf("notify function cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Lifecycle adds and removes tracked symbols with backend confirmation. Chart
// state only changes after the backend confirms a mutation, there is no
// optimistic update to roll back.
type Lifecycle struct {
	cfg *LifecycleConfig
}

// NewLifecycle initializes the symbol lifecycle controller.
func NewLifecycle(cfg *LifecycleConfig) (*Lifecycle, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	return &Lifecycle{cfg: cfg}, nil
}

// AddSymbol normalizes and registers the provided symbol with the backend,
// then loads its chart at the currently selected timeframe. A failed chart
// fetch after a confirmed add still counts as a successful add, the symbol
// has no visible chart until the next full reload.
func (l *Lifecycle) AddSymbol(ctx context.Context, symbol string, timeframes []shared.Timeframe) error {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	if normalized == "" {
		return fmt.Errorf("symbol cannot be an empty string")
	}

	err := l.cfg.Watchlist.AddSymbol(ctx, normalized, timeframes)
	if err != nil {
		l.cfg.Notify(fmt.Sprintf("Unable to add %s", normalized))
		return fmt.Errorf("adding symbol %s: %w", normalized, err)
	}

	timeframe := l.cfg.CurrentTimeframe()
	record, err := l.cfg.ExchangeClient.FetchChart(ctx, normalized, timeframe, l.cfg.FetchLimit)
	if err != nil {
		l.cfg.Logger.Warn().Msgf("%s added but its chart fetch failed, chart deferred to the next reload: %v",
			normalized, err)
		return nil
	}

	l.cfg.ChartSet.Put(record)

	return nil
}

// RemoveSymbol deregisters the provided symbol from the backend. Its record
// is removed from the chart set only once the backend confirms.
func (l *Lifecycle) RemoveSymbol(ctx context.Context, symbol string) error {
	err := l.cfg.Watchlist.RemoveSymbol(ctx, symbol)
	if err != nil {
		l.cfg.Notify(fmt.Sprintf("Unable to remove %s", symbol))
		return fmt.Errorf("removing symbol %s: %w", symbol, err)
	}

	l.cfg.ChartSet.Remove(symbol)

	return nil
}
