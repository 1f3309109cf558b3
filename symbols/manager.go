package symbols

import (
	"context"
	"errors"
	"fmt"

	"github.com/mwheeler/chartsync/shared"
	"github.com/rs/zerolog"
)

// DefaultSymbols is the fixed symbol list used to start chart fetches
// immediately, without waiting on discovery.
var DefaultSymbols = []string{"BTCUSDT", "ETHUSDT", "BNBUSDT", "SOLUSDT"}

// ManagerConfig represents the configuration for the symbol set manager.
type ManagerConfig struct {
	// Defaults is the fixed phase-1 symbol list.
	Defaults []string
	// Discoverer queries the backend for the full known symbol list.
	Discoverer shared.SymbolDiscoverer
	// LoadAll starts a fresh batch load for the provided symbols.
	LoadAll func(ctx context.Context, symbols []string, timeframe shared.Timeframe)
	// LoadAdditional appends the provided symbols to the in-progress load.
	LoadAdditional func(ctx context.Context, symbols []string, timeframe shared.Timeframe)
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *ManagerConfig) Validate() error {
	var errs error

	if len(cfg.Defaults) == 0 {
		errs = errors.Join(errs, fmt.Errorf("no default symbols provided"))
	}
	if cfg.Discoverer == nil {
		errs = errors.Join(errs, fmt.Errorf("symbol discoverer cannot be nil"))
	}
	if cfg.LoadAll == nil {
		errs = errors.Join(errs, fmt.Errorf("load all function cannot be nil"))
	}
	if cfg.LoadAdditional == nil {
		errs = errors.Join(errs, fmt.Errorf("load additional function cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Manager determines the tracked symbol set in two non-blocking phases:
// phase 1 loads the fixed defaults immediately for a fast first paint, phase 2
// discovers the full backend-known set in the background and appends whatever
// the defaults were missing.
type Manager struct {
	cfg *ManagerConfig
}

// NewManager initializes the symbol set manager.
func NewManager(cfg *ManagerConfig) (*Manager, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	return &Manager{cfg: cfg}, nil
}

// DiscoverSymbols queries the backend for the full known symbol list. On
// failure or an empty result it returns the fixed defaults, so downstream
// code never handles a no-symbols condition beyond the default set.
func (m *Manager) DiscoverSymbols(ctx context.Context) []string {
	discovered, err := m.cfg.Discoverer.FetchSymbols(ctx)
	if err != nil {
		m.cfg.Logger.Error().Msgf("discovering symbols: %v", err)
		return append([]string(nil), m.cfg.Defaults...)
	}

	if len(discovered) == 0 {
		return append([]string(nil), m.cfg.Defaults...)
	}

	return discovered
}

// discoverAndExtend runs phase-2 discovery and appends any symbols the
// defaults were missing. Discovery is an enhancement, not a correctness path,
// so failures never disturb the phase-1 results.
func (m *Manager) discoverAndExtend(ctx context.Context, timeframe shared.Timeframe) {
	discovered := m.DiscoverSymbols(ctx)

	known := make(map[string]bool, len(m.cfg.Defaults))
	for idx := range m.cfg.Defaults {
		known[m.cfg.Defaults[idx]] = true
	}

	extra := make([]string, 0)
	for idx := range discovered {
		if !known[discovered[idx]] {
			extra = append(extra, discovered[idx])
		}
	}

	if len(extra) == 0 {
		return
	}

	m.cfg.LoadAdditional(ctx, extra, timeframe)
}

// Mount starts both discovery phases for the provided timeframe. It blocks
// until the phase-1 default batch resolves; phase 2 proceeds independently in
// the background.
func (m *Manager) Mount(ctx context.Context, timeframe shared.Timeframe) {
	go m.discoverAndExtend(ctx, timeframe)

	m.cfg.LoadAll(ctx, m.cfg.Defaults, timeframe)
}
