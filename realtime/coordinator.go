package realtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/mwheeler/chartsync/chart"
	"github.com/mwheeler/chartsync/shared"
	"github.com/rs/zerolog"
)

const (
	// bufferSize is the default buffer size for channels.
	bufferSize = 64
	// DefaultPollInterval is the latest-price poll cadence. Polling runs
	// regardless of feed health and bounds staleness when push delivery
	// stalls.
	DefaultPollInterval = time.Second * 2
	// watchdogInterval is the feed connection check cadence.
	watchdogInterval = time.Second * 2
)

// CoordinatorConfig represents the configuration for the update coordinator.
type CoordinatorConfig struct {
	// ChartSet is the shared chart state.
	ChartSet *chart.Set
	// Feed is the realtime push channel.
	Feed shared.PushFeed
	// PriceClient fetches latest prices for the poll channel.
	PriceClient shared.PriceFetcher
	// Archiver persists closed candles. Optional, archiving is skipped when nil.
	Archiver shared.CandleArchiver
	// JobScheduler runs the poll and watchdog jobs.
	JobScheduler *gocron.Scheduler
	// PollInterval is the latest-price poll cadence.
	PollInterval time.Duration
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *CoordinatorConfig) Validate() error {
	var errs error

	if cfg.ChartSet == nil {
		errs = errors.Join(errs, fmt.Errorf("chart set cannot be nil"))
	}
	if cfg.Feed == nil {
		errs = errors.Join(errs, fmt.Errorf("push feed cannot be nil"))
	}
	if cfg.PriceClient == nil {
		errs = errors.Join(errs, fmt.Errorf("price client cannot be nil"))
	}
	if cfg.JobScheduler == nil {
		errs = errors.Join(errs, fmt.Errorf("job scheduler cannot be nil"))
	}
	if cfg.PollInterval <= 0 {
		errs = errors.Join(errs, fmt.Errorf("poll interval must be positive"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Coordinator merges both realtime update channels into the shared chart set:
// push feed messages as they arrive and polled latest prices on a fixed
// interval. Both channels may race on the same symbol, last-applied wins,
// both converge to the same truth within seconds.
type Coordinator struct {
	cfg     *CoordinatorConfig
	updates chan shared.UpdateMessage
}

// NewCoordinator initializes the update coordinator and subscribes it to the
// push feed.
func NewCoordinator(cfg *CoordinatorConfig) (*Coordinator, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	c := &Coordinator{
		cfg:     cfg,
		updates: make(chan shared.UpdateMessage, bufferSize),
	}

	cfg.Feed.Subscribe(&c.updates)

	return c, nil
}

// handleUpdateMessage applies the provided feed message to the chart set.
func (c *Coordinator) handleUpdateMessage(ctx context.Context, msg *shared.UpdateMessage) {
	switch msg.Kind {
	case shared.PriceTickUpdate:
		c.cfg.ChartSet.ApplyPriceTick(msg)

	case shared.CandleCloseUpdate:
		tracked := c.cfg.ChartSet.Has(msg.Symbol)
		c.cfg.ChartSet.ApplyCandleClose(msg)

		if tracked && msg.Candle != nil && c.cfg.Archiver != nil {
			// Best effort, the retained chart state is the source of truth.
			err := c.cfg.Archiver.ArchiveClosedCandle(ctx, msg.Candle)
			if err != nil {
				c.cfg.Logger.Error().Msgf("archiving closed candle for %s: %v", msg.Symbol, err)
			}
		}

	default:
		c.cfg.Logger.Error().Msgf("unknown update message kind: %d", msg.Kind)
	}
}

// pollLatestPrices fetches latest prices for all tracked symbols and merges
// them through the price tick rule. Failures are retried on the next tick.
func (c *Coordinator) pollLatestPrices(ctx context.Context) {
	prices, err := c.cfg.PriceClient.FetchLatestPrices(ctx)
	if err != nil {
		c.cfg.Logger.Error().Msgf("polling latest prices: %v", err)
		return
	}

	for symbol, price := range prices {
		c.cfg.ChartSet.ApplyPriceTick(&shared.UpdateMessage{
			Kind:   shared.PriceTickUpdate,
			Symbol: symbol,
			Price:  price,
		})
	}
}

// ensureFeedConnected requests a feed reconnect whenever the feed is neither
// connected nor connecting.
func (c *Coordinator) ensureFeedConnected(ctx context.Context) {
	if c.cfg.Feed.IsConnected() || c.cfg.Feed.IsConnecting() {
		return
	}

	err := c.cfg.Feed.Connect(ctx)
	if err != nil {
		c.cfg.Logger.Warn().Msgf("connecting push feed: %v", err)
	}
}

// Run manages the lifecycle processes of the update coordinator.
func (c *Coordinator) Run(ctx context.Context) {
	_, err := c.cfg.JobScheduler.Every(c.cfg.PollInterval).Do(func() {
		c.pollLatestPrices(ctx)
	})
	if err != nil {
		c.cfg.Logger.Error().Msgf("scheduling latest price poll: %v", err)
	}

	_, err = c.cfg.JobScheduler.Every(watchdogInterval).Do(func() {
		c.ensureFeedConnected(ctx)
	})
	if err != nil {
		c.cfg.Logger.Error().Msgf("scheduling feed watchdog: %v", err)
	}

	c.ensureFeedConnected(ctx)
	c.cfg.JobScheduler.StartAsync()

	for {
		select {
		case msg := <-c.updates:
			c.handleUpdateMessage(ctx, &msg)

		case <-ctx.Done():
			c.cfg.JobScheduler.Stop()
			err := c.cfg.Feed.Disconnect()
			if err != nil {
				c.cfg.Logger.Error().Msgf("disconnecting push feed: %v", err)
			}
			return
		}
	}
}
