package venue

import (
	"context"
	"fmt"
	"sync"
)

// PaperVenue is an in-memory venue used for paper trading and tests.
// Orders fill instantly at the current mark (market) or at the limit
// price, and positions are tracked as signed sizes.
type PaperVenue struct {
	mu        sync.Mutex
	name      string
	prices    map[string]float64
	fundings  map[string]float64
	books     map[string]*OrderBook
	positions map[string]Position
	canClose  bool
	nextID    int

	// Reject, when set, is consulted before each order; a non-nil
	// return fails the order without touching positions.
	Reject func(req OrderRequest) error
}

// Ensure PaperVenue implements the full contract at compile time.
var (
	_ Adapter        = (*PaperVenue)(nil)
	_ PositionCloser = (*PaperVenue)(nil)
)

// NewPaperVenue creates an empty paper venue. canClose controls
// whether the venue exposes a native close-position endpoint, matching
// the real venue's API surface.
func NewPaperVenue(name string, canClose bool) *PaperVenue {
	return &PaperVenue{
		name:      name,
		prices:    make(map[string]float64),
		fundings:  make(map[string]float64),
		books:     make(map[string]*OrderBook),
		positions: make(map[string]Position),
		canClose:  canClose,
	}
}

// SetMark sets the mark price for a symbol.
func (p *PaperVenue) SetMark(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[symbol] = price
}

// SetFunding sets the current per-period funding rate for a symbol.
func (p *PaperVenue) SetFunding(symbol string, rate float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fundings[symbol] = rate
}

// SetBook sets the order book for a symbol.
func (p *PaperVenue) SetBook(symbol string, book *OrderBook) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.books[symbol] = book
}

// SetPosition force-sets a position, for seeding scenarios.
func (p *PaperVenue) SetPosition(symbol string, size, entry float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if size == 0 {
		delete(p.positions, symbol)
		return
	}
	p.positions[symbol] = Position{Symbol: symbol, Size: size, EntryPrice: entry}
}

// Name identifies the venue.
func (p *PaperVenue) Name() string { return p.name }

// Positions returns a copy of the open positions.
func (p *PaperVenue) Positions(ctx context.Context) (map[string]Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]Position, len(p.positions))
	for k, v := range p.positions {
		out[k] = v
	}
	return out, nil
}

// Price returns the mark price for a symbol.
func (p *PaperVenue) Price(ctx context.Context, symbol string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	px, ok := p.prices[symbol]
	if !ok {
		return 0, &APIError{Venue: p.name, Status: 404, Message: "no price for " + symbol}
	}
	return px, nil
}

// FundingRate returns the per-period funding rate for a symbol.
func (p *PaperVenue) FundingRate(ctx context.Context, symbol string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.fundings[symbol]
	if !ok {
		return 0, &APIError{Venue: p.name, Status: 404, Message: "no funding rate for " + symbol}
	}
	return r, nil
}

// OrderBook returns the book for a symbol, or a synthetic two-level
// book around the mark when none was seeded.
func (p *PaperVenue) OrderBook(ctx context.Context, symbol string) (*OrderBook, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if book, ok := p.books[symbol]; ok {
		return book, nil
	}
	px, ok := p.prices[symbol]
	if !ok {
		return nil, &APIError{Venue: p.name, Status: 404, Message: "no book for " + symbol}
	}
	return &OrderBook{
		Bids: []PriceLevel{{Price: px * 0.9995, Size: 100}, {Price: px * 0.999, Size: 500}},
		Asks: []PriceLevel{{Price: px * 1.0005, Size: 100}, {Price: px * 1.001, Size: 500}},
	}, nil
}

// PlaceOrder fills the order instantly and adjusts the position.
func (p *PaperVenue) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	if p.Reject != nil {
		if err := p.Reject(req); err != nil {
			return &OrderResult{Kind: ResultRejected, Reason: err.Error()}, err
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if req.Size <= 0 {
		return nil, &APIError{Venue: p.name, Status: 400, Message: "size must be positive"}
	}
	px := req.Price
	if req.Type == Market || px == 0 {
		mark, ok := p.prices[req.Symbol]
		if !ok {
			return nil, &APIError{Venue: p.name, Status: 404, Message: "no price for " + req.Symbol}
		}
		px = mark
	}

	delta := req.Size
	if req.Side == Sell {
		delta = -delta
	}
	pos := p.positions[req.Symbol]
	if req.ReduceOnly {
		if pos.Size == 0 || pos.Size*delta > 0 {
			return nil, &APIError{Venue: p.name, Status: 400, Message: "reduce-only with no opposing position"}
		}
		if abs(delta) > abs(pos.Size) {
			delta = -pos.Size
		}
	}
	size := pos.Size + delta
	if size == 0 {
		delete(p.positions, req.Symbol)
	} else {
		p.positions[req.Symbol] = Position{Symbol: req.Symbol, Size: size, EntryPrice: px}
	}

	p.nextID++
	return &OrderResult{
		Kind:     ResultFilled,
		OrderID:  fmt.Sprintf("%s-%d", p.name, p.nextID),
		AvgPrice: px,
	}, nil
}

// ClosePosition flattens a position through the venue's native close
// endpoint, when the venue has one.
func (p *PaperVenue) ClosePosition(ctx context.Context, symbol string) (*OrderResult, error) {
	if !p.canClose {
		return nil, ErrCloseUnsupported
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.positions[symbol]; !ok {
		return nil, &APIError{Venue: p.name, Status: 404, Message: "no position for " + symbol}
	}
	delete(p.positions, symbol)
	p.nextID++
	return &OrderResult{
		Kind:     ResultFilled,
		OrderID:  fmt.Sprintf("%s-%d", p.name, p.nextID),
		AvgPrice: p.prices[symbol],
	}, nil
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
