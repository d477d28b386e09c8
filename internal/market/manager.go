// Package market collects per-symbol snapshots of both venues' prices,
// funding rates, and order books. Snapshots are immutable once taken;
// the trading cycle enriches a copy, never the cached value.
package market

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/eddiefleurent/stamford_arb/internal/util"
	"github.com/eddiefleurent/stamford_arb/internal/venue"
)

// VenueData is one venue's view of a symbol at snapshot time.
type VenueData struct {
	Price   float64
	Funding float64 // per-period rate as reported by the venue
	Bids    []any
	Asks    []any
}

// Snapshot is the per-cycle market view for one base symbol. The
// slippage fields are filled in by the cycle's enrichment pass and stay
// zero until then.
type Snapshot struct {
	Symbol      string
	Backpack    VenueData
	Hyperliquid VenueData
	Taken       time.Time

	HasSlippage   bool
	TotalSlippage float64
	LongSlippage  float64
	ShortSlippage float64
	LongVenue     string
	ShortVenue    string
}

// PriceDiffPercent is the basis between the venues, relative to the
// Hyperliquid price.
func (s *Snapshot) PriceDiffPercent() float64 {
	if s.Hyperliquid.Price == 0 {
		return 0
	}
	return (s.Backpack.Price - s.Hyperliquid.Price) / s.Hyperliquid.Price * 100
}

// Provider is what the trading cycle consumes.
type Provider interface {
	// Refresh fetches a fresh snapshot for one symbol.
	Refresh(ctx context.Context, symbol string) (*Snapshot, error)
	// Get returns the last snapshot taken for a symbol.
	Get(symbol string) (*Snapshot, bool)
	// IsValid reports whether a snapshot is complete and fresh enough
	// to trade on.
	IsValid(snap *Snapshot) bool
}

// Manager polls both venue adapters and caches the latest snapshot per
// symbol.
type Manager struct {
	backpack venue.Adapter
	hyper    venue.Adapter
	maxAge   time.Duration
	logger   *log.Logger

	mu    sync.RWMutex
	cache map[string]*Snapshot
}

// Ensure Manager implements Provider at compile time.
var _ Provider = (*Manager)(nil)

// NewManager builds a manager over the two venue adapters. maxAge <= 0
// disables staleness checks.
func NewManager(backpack, hyper venue.Adapter, maxAge time.Duration, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		backpack: backpack,
		hyper:    hyper,
		maxAge:   maxAge,
		logger:   logger,
		cache:    make(map[string]*Snapshot),
	}
}

// Refresh fetches price, funding, and book from both venues in
// parallel and caches the result.
func (m *Manager) Refresh(ctx context.Context, symbol string) (*Snapshot, error) {
	snap := &Snapshot{Symbol: symbol, Taken: time.Now()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		data, err := m.fetch(gctx, m.backpack, util.BackpackSymbol(symbol))
		if err != nil {
			return fmt.Errorf("backpack %s: %w", symbol, err)
		}
		snap.Backpack = *data
		return nil
	})
	g.Go(func() error {
		data, err := m.fetch(gctx, m.hyper, util.HyperliquidSymbol(symbol))
		if err != nil {
			return fmt.Errorf("hyperliquid %s: %w", symbol, err)
		}
		snap.Hyperliquid = *data
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.cache[symbol] = snap
	m.mu.Unlock()
	return snap, nil
}

func (m *Manager) fetch(ctx context.Context, a venue.Adapter, symbol string) (*VenueData, error) {
	price, err := a.Price(ctx, symbol)
	if err != nil {
		return nil, err
	}
	funding, err := a.FundingRate(ctx, symbol)
	if err != nil {
		return nil, err
	}
	data := &VenueData{Price: price, Funding: funding}
	book, err := a.OrderBook(ctx, symbol)
	if err != nil {
		// A missing book only degrades slippage analysis; the
		// analyzer's defaults cover it.
		m.logger.Printf("market: no order book for %s on %s: %v", symbol, a.Name(), err)
		return data, nil
	}
	data.Bids = levelsOf(book.Bids)
	data.Asks = levelsOf(book.Asks)
	return data, nil
}

// Get returns the last snapshot taken for a symbol.
func (m *Manager) Get(symbol string) (*Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.cache[symbol]
	return snap, ok
}

// IsValid reports whether a snapshot can be traded on.
func (m *Manager) IsValid(snap *Snapshot) bool {
	if snap == nil || snap.Backpack.Price <= 0 || snap.Hyperliquid.Price <= 0 {
		return false
	}
	if m.maxAge > 0 && time.Since(snap.Taken) > m.maxAge {
		return false
	}
	return true
}

func levelsOf(levels []venue.PriceLevel) []any {
	out := make([]any, 0, len(levels))
	for _, lvl := range levels {
		out = append(out, lvl)
	}
	return out
}
