package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/mwheeler/chartsync/chart"
	"github.com/mwheeler/chartsync/database"
	"github.com/mwheeler/chartsync/fetch"
	"github.com/mwheeler/chartsync/realtime"
	"github.com/mwheeler/chartsync/shared"
	"github.com/mwheeler/chartsync/symbols"
	"github.com/mwheeler/chartsync/ws"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
)

// DashboardConfig represents the configuration struct for the dashboard service.
type DashboardConfig struct {
	// BaseURL is the dashboard backend base url.
	BaseURL string
	// APIKey is the dashboard backend API key.
	APIKey string
	// StreamURL is the push feed websocket url.
	StreamURL string
	// Symbols is the fixed phase-1 symbol list.
	Symbols []string
	// Timeframe is the initially selected timeframe.
	Timeframe shared.Timeframe
	// DatabaseEndpoint is the candle archive endpoint. Optional, archiving
	// is disabled when empty.
	DatabaseEndpoint string
	// DatabaseUser is the candle archive user.
	DatabaseUser string
	// DatabasePass is the candle archive user pass.
	DatabasePass string
	// Notify sends the provided user-facing message.
	Notify func(message string)
	// Cancel is the context cancellation function.
	Cancel context.CancelFunc
}

// Validate asserts the config sane inputs.
func (cfg *DashboardConfig) Validate() error {
	var errs error

	if cfg.BaseURL == "" {
		errs = errors.Join(errs, fmt.Errorf("base url cannot be an empty string"))
	}
	if cfg.StreamURL == "" {
		errs = errors.Join(errs, fmt.Errorf("stream url cannot be an empty string"))
	}
	if len(cfg.Symbols) == 0 {
		errs = errors.Join(errs, fmt.Errorf("no default symbols provided for dashboard service"))
	}
	if cfg.Notify == nil {
		errs = errors.Join(errs, fmt.Errorf("notify function cannot be nil"))
	}
	if cfg.Cancel == nil {
		errs = errors.Join(errs, fmt.Errorf("context cancellation function cannot be nil"))
	}

	return errs
}

// Dashboard represents the live chart synchronization service.
type Dashboard struct {
	cfg           *DashboardConfig
	chartSet      *chart.Set
	client        *fetch.Client
	loader        *fetch.Loader
	symbolManager *symbols.Manager
	lifecycle     *symbols.Lifecycle
	feed          *ws.Feed
	coordinator   *realtime.Coordinator
	store         *database.Store
	logger        *zerolog.Logger

	timeframeMtx sync.RWMutex
	timeframe    shared.Timeframe

	wg sync.WaitGroup
}

// NewDashboard initializes a new dashboard service.
func NewDashboard(cfg *DashboardConfig) (*Dashboard, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	logger := log.With().Str("service", "dashboard").Logger()

	chartSet, err := chart.NewSet(chart.DefaultRetentionCap)
	if err != nil {
		return nil, fmt.Errorf("creating chart set: %v", err)
	}

	client, err := fetch.NewClient(&fetch.ClientConfig{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("creating backend client: %v", err)
	}

	loaderLogger := logger.With().Str("component", "loader").Logger()
	loader, err := fetch.NewLoader(&fetch.LoaderConfig{
		ExchangeClient: client,
		ChartSet:       chartSet,
		FetchLimit:     fetch.DefaultFetchLimit,
		Logger:         &loaderLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating chart data loader: %v", err)
	}

	symbolMgrLogger := logger.With().Str("component", "symbolmanager").Logger()
	symbolMgr, err := symbols.NewManager(&symbols.ManagerConfig{
		Defaults:       cfg.Symbols,
		Discoverer:     client,
		LoadAll:        loader.LoadAll,
		LoadAdditional: loader.LoadAdditional,
		Logger:         &symbolMgrLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating symbol manager: %v", err)
	}

	service := &Dashboard{
		cfg:           cfg,
		chartSet:      chartSet,
		client:        client,
		loader:        loader,
		symbolManager: symbolMgr,
		logger:        &logger,
		timeframe:     cfg.Timeframe,
	}

	lifecycleLogger := logger.With().Str("component", "lifecycle").Logger()
	lifecycle, err := symbols.NewLifecycle(&symbols.LifecycleConfig{
		Watchlist:        client,
		ExchangeClient:   client,
		ChartSet:         chartSet,
		FetchLimit:       fetch.DefaultFetchLimit,
		CurrentTimeframe: service.Timeframe,
		Notify:           cfg.Notify,
		Logger:           &lifecycleLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating symbol lifecycle: %v", err)
	}
	service.lifecycle = lifecycle

	feedLogger := logger.With().Str("component", "feed").Logger()
	feed, err := ws.NewFeed(&ws.FeedConfig{
		URL:    cfg.StreamURL,
		Logger: &feedLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating push feed: %v", err)
	}
	service.feed = feed

	var archiver shared.CandleArchiver
	if cfg.DatabaseEndpoint != "" {
		storeLogger := logger.With().Str("component", "database").Logger()
		store, err := database.NewStore(&database.StoreConfig{
			Endpoint: cfg.DatabaseEndpoint,
			User:     cfg.DatabaseUser,
			Pass:     cfg.DatabasePass,
			Logger:   &storeLogger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating candle store: %v", err)
		}

		service.store = store
		archiver = store
	}

	coordinatorLogger := logger.With().Str("component", "coordinator").Logger()
	coordinator, err := realtime.NewCoordinator(&realtime.CoordinatorConfig{
		ChartSet:     chartSet,
		Feed:         feed,
		PriceClient:  client,
		Archiver:     archiver,
		JobScheduler: gocron.NewScheduler(time.UTC),
		PollInterval: realtime.DefaultPollInterval,
		Logger:       &coordinatorLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating update coordinator: %v", err)
	}
	service.coordinator = coordinator

	return service, nil
}

// Timeframe returns the currently selected timeframe.
func (d *Dashboard) Timeframe() shared.Timeframe {
	d.timeframeMtx.RLock()
	defer d.timeframeMtx.RUnlock()

	return d.timeframe
}

// SetTimeframe switches the selected timeframe and reloads all tracked charts
// under a fresh generation, cancelling whatever the previous generation still
// had in flight. The reload's generation is claimed before SetTimeframe
// returns, so the last call always owns the live generation.
func (d *Dashboard) SetTimeframe(ctx context.Context, timeframe shared.Timeframe) {
	d.timeframeMtx.Lock()
	d.timeframe = timeframe
	d.timeframeMtx.Unlock()

	d.loader.Reload(ctx, d.chartSet.Symbols(), timeframe)
}

// AddSymbol adds the provided symbol to the tracked set with backend
// confirmation.
func (d *Dashboard) AddSymbol(ctx context.Context, symbol string, timeframes []shared.Timeframe) error {
	return d.lifecycle.AddSymbol(ctx, symbol, timeframes)
}

// RemoveSymbol removes the provided symbol from the tracked set with backend
// confirmation.
func (d *Dashboard) RemoveSymbol(ctx context.Context, symbol string) error {
	return d.lifecycle.RemoveSymbol(ctx, symbol)
}

// Charts returns copies of all tracked chart records in display order.
func (d *Dashboard) Charts() []*shared.ChartRecord {
	tracked := d.chartSet.Symbols()

	records := make([]*shared.ChartRecord, 0, len(tracked))
	for idx := range tracked {
		record, ok := d.chartSet.Record(tracked[idx])
		if !ok {
			continue
		}
		records = append(records, record)
	}

	return records
}

// Render returns the drawable geometry for the provided symbol's chart.
func (d *Dashboard) Render(symbol string) chart.Frame {
	record, ok := d.chartSet.Record(symbol)
	if !ok {
		return chart.Frame{NoData: true}
	}

	return chart.RenderWindow(record.Candles, chart.RenderWindowSize)
}

// Run handles the lifecycle processes of the dashboard service.
func (d *Dashboard) Run(ctx context.Context) {
	if d.store != nil {
		err := d.store.Bootstrap(ctx)
		if err != nil {
			d.logger.Error().Msgf("bootstrapping candle store: %v", err)
			d.cfg.Cancel()
			return
		}
	}

	d.wg.Add(2)

	go func() {
		d.coordinator.Run(ctx)
		d.wg.Done()
	}()

	go func() {
		d.symbolManager.Mount(ctx, d.Timeframe())
		d.wg.Done()
	}()

	d.wg.Wait()
}
