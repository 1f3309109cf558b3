package chart

import (
	"fmt"
	"sync"

	"github.com/mwheeler/chartsync/shared"
)

const (
	// DefaultRetentionCap is the maximum number of candles retained per chart.
	DefaultRetentionCap = 100
)

// Set represents the shared chart state for all tracked symbols. Insertion
// order is display order and is preserved across incremental appends. All
// writers perform copy-based read-modify-write updates under a single mutex,
// no two writers interleave within one logical update.
type Set struct {
	retention int

	mtx     sync.RWMutex
	symbols []string
	records map[string]*shared.ChartRecord
}

// NewSet initializes a new chart set with the provided candle retention cap.
func NewSet(retention int) (*Set, error) {
	if retention <= 0 {
		return nil, fmt.Errorf("chart set retention cap must be positive, got %d", retention)
	}

	return &Set{
		retention: retention,
		symbols:   make([]string, 0),
		records:   make(map[string]*shared.ChartRecord),
	}, nil
}

// capCandles re-enforces the retention cap on the provided record, dropping
// the oldest candles first.
func (s *Set) capCandles(record *shared.ChartRecord) {
	if len(record.Candles) <= s.retention {
		return
	}

	capped := make([]shared.Candlestick, s.retention)
	copy(capped, record.Candles[len(record.Candles)-s.retention:])
	record.Candles = capped
}

// Put adds the provided record to the set. A record for a symbol already in
// the set overwrites the existing one in place, keeping its display position.
func (s *Set) Put(record *shared.ChartRecord) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	clone := record.Clone()
	s.capCandles(clone)

	if _, ok := s.records[clone.Symbol]; !ok {
		s.symbols = append(s.symbols, clone.Symbol)
	}
	s.records[clone.Symbol] = clone
}

// Remove removes the record for the provided symbol from the set.
func (s *Set) Remove(symbol string) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if _, ok := s.records[symbol]; !ok {
		return
	}

	delete(s.records, symbol)
	for idx := range s.symbols {
		if s.symbols[idx] == symbol {
			s.symbols = append(s.symbols[:idx], s.symbols[idx+1:]...)
			break
		}
	}
}

// Record fetches a copy of the record for the provided symbol.
func (s *Set) Record(symbol string) (*shared.ChartRecord, bool) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	record, ok := s.records[symbol]
	if !ok {
		return nil, false
	}

	return record.Clone(), true
}

// Has reports whether the set tracks the provided symbol.
func (s *Set) Has(symbol string) bool {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	_, ok := s.records[symbol]
	return ok
}

// Symbols returns the tracked symbols in display order.
func (s *Set) Symbols() []string {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	symbols := make([]string, len(s.symbols))
	copy(symbols, s.symbols)
	return symbols
}

// Len returns the number of tracked symbols.
func (s *Set) Len() int {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	return len(s.symbols)
}

// ApplyPriceTick merges the provided price tick into the tracked record. The
// latest price is replaced unconditionally while the 24 hour summary figures
// only replace existing values when the incoming value is set, ticks often
// omit them. The candle sequence is never touched. Ticks for untracked
// symbols are no-ops.
func (s *Set) ApplyPriceTick(msg *shared.UpdateMessage) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	record, ok := s.records[msg.Symbol]
	if !ok {
		return
	}

	clone := record.Clone()
	clone.LatestPrice = msg.Price
	if msg.PriceChange24h != 0 {
		clone.PriceChange24h = msg.PriceChange24h
	}
	if msg.PriceChangePercent24h != 0 {
		clone.PriceChangePercent24h = msg.PriceChangePercent24h
	}
	if msg.Volume24h != 0 {
		clone.Volume24h = msg.Volume24h
	}

	s.records[msg.Symbol] = clone
}

// ApplyCandleClose merges the provided candle close into the tracked record.
// All summary figures are replaced unconditionally. When the closed candle
// payload is present it is appended and the retention cap re-enforced; when
// absent the candle sequence is left unchanged. Updates for untracked symbols
// are no-ops.
func (s *Set) ApplyCandleClose(msg *shared.UpdateMessage) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	record, ok := s.records[msg.Symbol]
	if !ok {
		return
	}

	clone := record.Clone()
	clone.LatestPrice = msg.Price
	clone.PriceChange24h = msg.PriceChange24h
	clone.PriceChangePercent24h = msg.PriceChangePercent24h
	clone.Volume24h = msg.Volume24h

	if msg.Candle != nil {
		clone.Candles = append(clone.Candles, *msg.Candle)
		s.capCandles(clone)
	}

	s.records[msg.Symbol] = clone
}
