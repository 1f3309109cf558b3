package database

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/uuid"
	"github.com/mwheeler/chartsync/shared"
	rqlitehttp "github.com/rqlite/rqlite-go-http"
	"github.com/rs/zerolog"
)

const (
	// SQL statements.
	createCandleTableSQL = "CREATE TABLE IF NOT EXISTS candle (id TEXT PRIMARY KEY, symbol TEXT, timeframe TEXT, open REAL, high REAL, low REAL, close REAL, volume REAL, timestamp INTEGER, archivedon INTEGER)"
	persistCandleSQL     = "INSERT INTO candle(id, symbol, timeframe, open, high, low, close, volume, timestamp, archivedon) VALUES(?,?,?,?,?,?,?,?,?,?)"
)

// StoreConfig is the configuration for the candle store.
type StoreConfig struct {
	// Endpoint represents the database connection endpoint.
	Endpoint string
	// User is the database user.
	User string
	// Pass is the database user pass.
	Pass string
	// Logger is the database logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *StoreConfig) Validate() error {
	var errs error

	if cfg.Endpoint == "" {
		errs = errors.Join(errs, fmt.Errorf("database endpoint cannot be an empty string"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Store archives closed candles, keeping history beyond the in-memory
// retention cap of the chart set.
type Store struct {
	cfg    *StoreConfig
	client *rqlitehttp.Client
}

// Ensure the store implements the CandleArchiver interface.
var _ shared.CandleArchiver = (*Store)(nil)

// NewStore initializes a new candle store connection.
func NewStore(cfg *StoreConfig) (*Store, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	httpc := &http.Client{Timeout: time.Second * 5}
	client, err := rqlitehttp.NewClient(cfg.Endpoint, httpc)
	if err != nil {
		return nil, fmt.Errorf("creating database client: %w", err)
	}

	client.SetBasicAuth(cfg.User, cfg.Pass)

	return &Store{
		cfg:    cfg,
		client: client,
	}, nil
}

// Bootstrap creates the candle schema. It must be called before the store
// archives candles.
func (s *Store) Bootstrap(ctx context.Context) error {
	resp, err := s.client.Execute(ctx, rqlitehttp.SQLStatements{
		{SQL: createCandleTableSQL},
	}, &rqlitehttp.ExecuteOptions{
		Transaction: true,
		Timings:     true,
	})
	if err != nil {
		return err
	}

	has, idx, errStr := resp.HasError()
	if has {
		return fmt.Errorf("creating candle schema: %d -> %s", idx, errStr)
	}

	return nil
}

// ArchiveClosedCandle stores the provided closed candle to the database.
func (s *Store) ArchiveClosedCandle(ctx context.Context, candle *shared.Candlestick) error {
	if candle.Symbol == "" || candle.Timestamp == 0 {
		s.cfg.Logger.Error().Msgf("unexpected closed candle state for archiving: %s", spew.Sdump(candle))
		return fmt.Errorf("closed candle missing symbol or timestamp")
	}

	resp, err := s.client.Execute(ctx, rqlitehttp.SQLStatements{
		{
			SQL: persistCandleSQL,
			PositionalParams: []any{uuid.New().String(), candle.Symbol, candle.Timeframe.String(),
				candle.Open, candle.High, candle.Low, candle.Close, candle.Volume, candle.Timestamp,
				time.Now().Unix()},
		},
	}, &rqlitehttp.ExecuteOptions{Transaction: true, Timings: true})
	if err != nil {
		return err
	}

	has, idx, errStr := resp.HasError()
	if has {
		return fmt.Errorf("archiving candle for %s: %d -> %s", candle.Symbol, idx, errStr)
	}

	return nil
}
