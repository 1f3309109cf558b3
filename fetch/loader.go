package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mwheeler/chartsync/chart"
	"github.com/mwheeler/chartsync/shared"
	"github.com/rs/zerolog"
)

const (
	// maxWorkers is the maximum number of concurrent chart fetches.
	maxWorkers = 8
	// DefaultFetchLimit is the number of candles requested per chart fetch.
	DefaultFetchLimit = chart.DefaultRetentionCap
)

// LoaderConfig represents the configuration for the chart data loader.
type LoaderConfig struct {
	// ExchangeClient fetches chart records from the backend.
	ExchangeClient shared.ChartFetcher
	// ChartSet is the shared chart state populated by loads.
	ChartSet *chart.Set
	// FetchLimit is the number of candles requested per chart fetch.
	FetchLimit int
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *LoaderConfig) Validate() error {
	var errs error

	if cfg.ExchangeClient == nil {
		errs = errors.Join(errs, fmt.Errorf("exchange client cannot be nil"))
	}
	if cfg.ChartSet == nil {
		errs = errors.Join(errs, fmt.Errorf("chart set cannot be nil"))
	}
	if cfg.FetchLimit <= 0 {
		errs = errors.Join(errs, fmt.Errorf("fetch limit must be positive"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Loader represents the batch chart data loader. Every reload (initial mount
// or timeframe switch) runs under a fresh generation token; a fetched record
// is applied only while its token still matches the live generation, so a
// superseded reload can never clobber fresher state regardless of resolution
// order.
type Loader struct {
	cfg *LoaderConfig

	mtx        sync.Mutex
	generation uint64
	genCtx     context.Context
	cancel     context.CancelFunc
	timeframe  shared.Timeframe

	workers chan struct{}
}

// NewLoader initializes the chart data loader.
func NewLoader(cfg *LoaderConfig) (*Loader, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	return &Loader{
		cfg:     cfg,
		workers: make(chan struct{}, maxWorkers),
	}, nil
}

// nextGeneration supersedes the live generation, cancelling its in-flight
// fetches, and returns the new generation token and its cancellation context.
// The provided timeframe becomes the new generation's timeframe.
func (l *Loader) nextGeneration(ctx context.Context, timeframe shared.Timeframe) (uint64, context.Context) {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	if l.cancel != nil {
		l.cancel()
	}

	l.generation++
	l.genCtx, l.cancel = context.WithCancel(ctx)
	l.timeframe = timeframe

	return l.generation, l.genCtx
}

// liveGeneration returns the current generation token, its context and its
// timeframe, starting a fresh generation at the provided timeframe if none is
// live yet.
func (l *Loader) liveGeneration(ctx context.Context, timeframe shared.Timeframe) (uint64, context.Context, shared.Timeframe) {
	l.mtx.Lock()
	if l.genCtx != nil {
		gen, genCtx, tf := l.generation, l.genCtx, l.timeframe
		l.mtx.Unlock()
		return gen, genCtx, tf
	}
	l.mtx.Unlock()

	gen, genCtx := l.nextGeneration(ctx, timeframe)
	return gen, genCtx, timeframe
}

// applyRecord stores the provided record in the chart set if the provided
// generation token still matches the live generation.
func (l *Loader) applyRecord(gen uint64, record *shared.ChartRecord) {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	if gen != l.generation {
		return
	}

	l.cfg.ChartSet.Put(record)
}

// load fetches chart records for the provided symbols concurrently and
// applies them under the provided generation. A failed fetch yields no record
// but never aborts its siblings, partial success is the normal case.
func (l *Loader) load(ctx context.Context, gen uint64, symbols []string, timeframe shared.Timeframe) {
	var wg sync.WaitGroup

	for idx := range symbols {
		symbol := symbols[idx]

		wg.Add(1)
		l.workers <- struct{}{}
		go func() {
			defer func() {
				<-l.workers
				wg.Done()
			}()

			record, err := l.cfg.ExchangeClient.FetchChart(ctx, symbol, timeframe, l.cfg.FetchLimit)
			switch {
			case err != nil && shared.IsCancellation(err):
				// Superseded by a newer generation, not a failure.
				return
			case err != nil:
				l.cfg.Logger.Error().Msgf("fetching chart for %s: %v", symbol, err)
				return
			}

			if ctx.Err() != nil {
				// The generation was cancelled after the fetch resolved.
				return
			}

			l.applyRecord(gen, record)
		}()
	}

	wg.Wait()
}

// LoadAll loads chart records for the provided symbols under a fresh
// generation, superseding any reload still in flight. It blocks until every
// fetch of the batch has resolved.
func (l *Loader) LoadAll(ctx context.Context, symbols []string, timeframe shared.Timeframe) {
	gen, genCtx := l.nextGeneration(ctx, timeframe)
	l.load(genCtx, gen, symbols, timeframe)
}

// Reload starts a fresh batch load for the provided symbols without blocking.
// The generation token is claimed before Reload returns, so generation order
// always matches call order under rapid timeframe switches.
func (l *Loader) Reload(ctx context.Context, symbols []string, timeframe shared.Timeframe) {
	gen, genCtx := l.nextGeneration(ctx, timeframe)
	go l.load(genCtx, gen, symbols, timeframe)
}

// LoadAdditional loads chart records for the provided symbols under the live
// generation, leaving already-applied results undisturbed. Used to append
// phase-2 discovery symbols to an in-progress mount.
//
// Additions always fetch at the live generation's timeframe, the provided
// timeframe only seeds a fresh generation when none is live. A timeframe
// switch that lands before the additions join the set therefore reloads or
// discards them like any other stale fetch, it can never plant a
// mixed-timeframe record.
func (l *Loader) LoadAdditional(ctx context.Context, symbols []string, timeframe shared.Timeframe) {
	gen, genCtx, tf := l.liveGeneration(ctx, timeframe)
	l.load(genCtx, gen, symbols, tf)
}
