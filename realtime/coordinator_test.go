package realtime

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/mwheeler/chartsync/chart"
	"github.com/mwheeler/chartsync/shared"
	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog"
)

type feedMock struct {
	mtx          sync.Mutex
	connected    bool
	connecting   bool
	connectErr   error
	connectCalls int
	disconnects  int
	subscribers  []*chan shared.UpdateMessage
}

func (m *feedMock) Connect(ctx context.Context) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	m.connectCalls++
	if m.connectErr != nil {
		return m.connectErr
	}

	m.connected = true
	return nil
}

func (m *feedMock) Disconnect() error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	m.disconnects++
	m.connected = false
	return nil
}

func (m *feedMock) IsConnected() bool {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.connected
}

func (m *feedMock) IsConnecting() bool {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.connecting
}

func (m *feedMock) Subscribe(sub *chan shared.UpdateMessage) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.subscribers = append(m.subscribers, sub)
}

func (m *feedMock) push(msg shared.UpdateMessage) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	for k := range m.subscribers {
		*m.subscribers[k] <- msg
	}
}

type priceFetcherMock struct {
	prices map[string]float64
	err    error
}

func (m *priceFetcherMock) FetchLatestPrices(ctx context.Context) (map[string]float64, error) {
	return m.prices, m.err
}

type archiverMock struct {
	mtx     sync.Mutex
	err     error
	candles []shared.Candlestick
}

func (m *archiverMock) ArchiveClosedCandle(ctx context.Context, candle *shared.Candlestick) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if m.err != nil {
		return m.err
	}

	m.candles = append(m.candles, *candle)
	return nil
}

func trackedSet(t *testing.T) *chart.Set {
	set, err := chart.NewSet(chart.DefaultRetentionCap)
	assert.NoError(t, err)

	set.Put(&shared.ChartRecord{
		Symbol:                "BTCUSDT",
		Timeframe:             shared.OneHour,
		LatestPrice:           100,
		PriceChange24h:        5,
		PriceChangePercent24h: 2.5,
		Volume24h:             1000,
	})

	return set
}

func setupCoordinator(t *testing.T, set *chart.Set, feed *feedMock, prices *priceFetcherMock, archiver shared.CandleArchiver) *Coordinator {
	logger := zerolog.New(nil)
	coordinator, err := NewCoordinator(&CoordinatorConfig{
		ChartSet:     set,
		Feed:         feed,
		PriceClient:  prices,
		Archiver:     archiver,
		JobScheduler: gocron.NewScheduler(time.UTC),
		PollInterval: DefaultPollInterval,
		Logger:       &logger,
	})
	assert.NoError(t, err)

	return coordinator
}

func TestCoordinatorConfigValidate(t *testing.T) {
	set, err := chart.NewSet(chart.DefaultRetentionCap)
	assert.NoError(t, err)

	logger := zerolog.New(nil)
	baseCfg := &CoordinatorConfig{
		ChartSet:     set,
		Feed:         &feedMock{},
		PriceClient:  &priceFetcherMock{},
		JobScheduler: gocron.NewScheduler(time.UTC),
		PollInterval: DefaultPollInterval,
		Logger:       &logger,
	}

	tests := []struct {
		name    string
		modify  func(cfg *CoordinatorConfig)
		wantErr bool
	}{
		{
			name:    "valid config returns nil",
			modify:  func(cfg *CoordinatorConfig) {},
			wantErr: false,
		},
		{
			name:    "nil Archiver is valid, archiving is optional",
			modify:  func(cfg *CoordinatorConfig) { cfg.Archiver = nil },
			wantErr: false,
		},
		{
			name:    "missing ChartSet",
			modify:  func(cfg *CoordinatorConfig) { cfg.ChartSet = nil },
			wantErr: true,
		},
		{
			name:    "missing Feed",
			modify:  func(cfg *CoordinatorConfig) { cfg.Feed = nil },
			wantErr: true,
		},
		{
			name:    "missing PriceClient",
			modify:  func(cfg *CoordinatorConfig) { cfg.PriceClient = nil },
			wantErr: true,
		},
		{
			name:    "missing JobScheduler",
			modify:  func(cfg *CoordinatorConfig) { cfg.JobScheduler = nil },
			wantErr: true,
		},
		{
			name:    "non-positive PollInterval",
			modify:  func(cfg *CoordinatorConfig) { cfg.PollInterval = 0 },
			wantErr: true,
		},
		{
			name:    "missing Logger",
			modify:  func(cfg *CoordinatorConfig) { cfg.Logger = nil },
			wantErr: true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := *baseCfg
			test.modify(&cfg)

			err := cfg.Validate()
			if test.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestHandlePriceTick(t *testing.T) {
	set := trackedSet(t)
	coordinator := setupCoordinator(t, set, &feedMock{}, &priceFetcherMock{}, nil)

	coordinator.handleUpdateMessage(context.Background(), &shared.UpdateMessage{
		Kind:   shared.PriceTickUpdate,
		Symbol: "BTCUSDT",
		Price:  105,
	})

	record, ok := set.Record("BTCUSDT")
	assert.True(t, ok)
	assert.Equal(t, record.LatestPrice, float64(105))
	assert.Equal(t, record.PriceChange24h, float64(5))
}

func TestHandleCandleCloseArchivesCandle(t *testing.T) {
	set := trackedSet(t)
	archiver := &archiverMock{}
	coordinator := setupCoordinator(t, set, &feedMock{}, &priceFetcherMock{}, archiver)

	closed := shared.Candlestick{
		Open:      100,
		Close:     105,
		High:      106,
		Low:       99,
		Volume:    12,
		Timestamp: 1700000000000,
		Symbol:    "BTCUSDT",
		Timeframe: shared.OneHour,
	}
	coordinator.handleUpdateMessage(context.Background(), &shared.UpdateMessage{
		Kind:      shared.CandleCloseUpdate,
		Symbol:    "BTCUSDT",
		Timeframe: shared.OneHour,
		Price:     105,
		Candle:    &closed,
	})

	record, ok := set.Record("BTCUSDT")
	assert.True(t, ok)
	assert.Equal(t, record.LatestPrice, float64(105))
	assert.Equal(t, len(record.Candles), 1)

	archiver.mtx.Lock()
	defer archiver.mtx.Unlock()
	assert.Equal(t, archiver.candles, []shared.Candlestick{closed})
}

func TestHandleCandleCloseUntrackedSymbol(t *testing.T) {
	set := trackedSet(t)
	archiver := &archiverMock{}
	coordinator := setupCoordinator(t, set, &feedMock{}, &priceFetcherMock{}, archiver)

	// Updates for untracked symbols are no-ops and are never archived.
	coordinator.handleUpdateMessage(context.Background(), &shared.UpdateMessage{
		Kind:   shared.CandleCloseUpdate,
		Symbol: "XRPUSDT",
		Price:  1,
		Candle: &shared.Candlestick{Symbol: "XRPUSDT", Timestamp: 1},
	})

	assert.False(t, set.Has("XRPUSDT"))

	archiver.mtx.Lock()
	defer archiver.mtx.Unlock()
	assert.Equal(t, len(archiver.candles), 0)
}

func TestHandleCandleCloseArchiveFailure(t *testing.T) {
	set := trackedSet(t)
	archiver := &archiverMock{err: fmt.Errorf("database unavailable")}
	coordinator := setupCoordinator(t, set, &feedMock{}, &priceFetcherMock{}, archiver)

	// Archiving is best effort, a failed archive never blocks the merge.
	coordinator.handleUpdateMessage(context.Background(), &shared.UpdateMessage{
		Kind:   shared.CandleCloseUpdate,
		Symbol: "BTCUSDT",
		Price:  105,
		Candle: &shared.Candlestick{Symbol: "BTCUSDT", Timestamp: 1},
	})

	record, ok := set.Record("BTCUSDT")
	assert.True(t, ok)
	assert.Equal(t, record.LatestPrice, float64(105))
	assert.Equal(t, len(record.Candles), 1)
}

func TestPollLatestPrices(t *testing.T) {
	set := trackedSet(t)
	prices := &priceFetcherMock{prices: map[string]float64{
		"BTCUSDT": 110,
		"XRPUSDT": 1,
	}}
	coordinator := setupCoordinator(t, set, &feedMock{}, prices, nil)

	coordinator.pollLatestPrices(context.Background())

	// Polled prices merge through the tick rule, summary fields retained.
	record, ok := set.Record("BTCUSDT")
	assert.True(t, ok)
	assert.Equal(t, record.LatestPrice, float64(110))
	assert.Equal(t, record.PriceChange24h, float64(5))
	assert.Equal(t, record.Volume24h, float64(1000))

	// Untracked polled symbols stay untracked.
	assert.False(t, set.Has("XRPUSDT"))
}

func TestPollLatestPricesFailure(t *testing.T) {
	set := trackedSet(t)
	prices := &priceFetcherMock{err: fmt.Errorf("backend unavailable")}
	coordinator := setupCoordinator(t, set, &feedMock{}, prices, nil)

	// A failed poll leaves the chart set untouched, retried next tick.
	coordinator.pollLatestPrices(context.Background())

	record, ok := set.Record("BTCUSDT")
	assert.True(t, ok)
	assert.Equal(t, record.LatestPrice, float64(100))
}

func TestEnsureFeedConnected(t *testing.T) {
	set := trackedSet(t)

	// A disconnected feed gets a connect request.
	feed := &feedMock{}
	coordinator := setupCoordinator(t, set, feed, &priceFetcherMock{}, nil)
	coordinator.ensureFeedConnected(context.Background())
	assert.Equal(t, feed.connectCalls, 1)
	assert.True(t, feed.IsConnected())

	// A connected feed does not.
	coordinator.ensureFeedConnected(context.Background())
	assert.Equal(t, feed.connectCalls, 1)

	// A feed mid-connection does not.
	feed = &feedMock{connecting: true}
	coordinator = setupCoordinator(t, set, feed, &priceFetcherMock{}, nil)
	coordinator.ensureFeedConnected(context.Background())
	assert.Equal(t, feed.connectCalls, 0)

	// A failed connect is retried on the next check.
	feed = &feedMock{connectErr: fmt.Errorf("dial failed")}
	coordinator = setupCoordinator(t, set, feed, &priceFetcherMock{}, nil)
	coordinator.ensureFeedConnected(context.Background())
	coordinator.ensureFeedConnected(context.Background())
	assert.Equal(t, feed.connectCalls, 2)
}

func TestCoordinatorRun(t *testing.T) {
	set := trackedSet(t)
	feed := &feedMock{}
	coordinator := setupCoordinator(t, set, feed, &priceFetcherMock{}, nil)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		coordinator.Run(ctx)
		close(done)
	}()

	// Feed messages flow through the subscription into the chart set.
	feed.push(shared.UpdateMessage{
		Kind:   shared.PriceTickUpdate,
		Symbol: "BTCUSDT",
		Price:  120,
	})

	deadline := time.After(time.Second * 2)
	for {
		record, ok := set.Record("BTCUSDT")
		assert.True(t, ok)
		if record.LatestPrice == 120 {
			break
		}

		select {
		case <-deadline:
			t.Fatal("timed out waiting for feed update to apply")
		case <-time.After(time.Millisecond * 10):
		}
	}

	cancel()
	<-done

	feed.mtx.Lock()
	defer feed.mtx.Unlock()
	assert.Equal(t, feed.disconnects, 1)
}
