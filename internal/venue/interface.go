// Package venue defines the exchange adapter contract the bot trades
// through, plus wrappers that add circuit breaking and rate limiting.
// Concrete REST/WS clients live outside this repository; the paper
// venue here stands in for them during paper trading and tests.
package venue

import (
	"context"
	"errors"
	"fmt"
)

// Venue names used for routing and reporting.
const (
	Backpack    = "backpack"
	Hyperliquid = "hyperliquid"
)

// OrderSide is the direction of an order.
type OrderSide string

const (
	// Buy opens or extends a long leg.
	Buy OrderSide = "buy"
	// Sell opens or extends a short leg.
	Sell OrderSide = "sell"
)

// Opposite returns the reversing side, used when unwinding a leg.
func (s OrderSide) Opposite() OrderSide {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderType distinguishes market from limit orders.
type OrderType string

const (
	// Market orders execute against the book immediately.
	Market OrderType = "market"
	// Limit orders rest at a price; the bot prices them aggressively
	// enough to fill like a market order.
	Limit OrderType = "limit"
)

// Position is a venue's view of one open perp position.
type Position struct {
	Symbol     string  // venue-native symbol
	Size       float64 // signed: positive long, negative short
	EntryPrice float64
}

// Side reports the direction implied by the signed size.
func (p Position) Side() OrderSide {
	if p.Size < 0 {
		return Sell
	}
	return Buy
}

// PriceLevel is one price/size pair in an order book.
type PriceLevel struct {
	Price float64
	Size  float64
}

// OrderBook holds bid and ask ladders, best price first.
type OrderBook struct {
	Bids []PriceLevel
	Asks []PriceLevel
}

// OrderRequest describes one order to place on a venue.
type OrderRequest struct {
	Symbol     string // venue-native symbol
	Side       OrderSide
	Type       OrderType
	Size       float64 // base units, always positive
	Price      float64 // limit price; ignored for market orders
	ReduceOnly bool
	ClientID   string
}

// Adapter is the contract every venue client implements. All calls
// take a context and return explicit errors; callers never retry
// through the adapter itself.
type Adapter interface {
	// Name identifies the venue (Backpack or Hyperliquid).
	Name() string
	// Positions returns open positions keyed by venue-native symbol.
	Positions(ctx context.Context) (map[string]Position, error)
	// Price returns the current mark or mid price for a symbol.
	Price(ctx context.Context, symbol string) (float64, error)
	// FundingRate returns the current per-period funding rate.
	FundingRate(ctx context.Context, symbol string) (float64, error)
	// OrderBook returns the current book for a symbol.
	OrderBook(ctx context.Context, symbol string) (*OrderBook, error)
	// PlaceOrder submits an order. The returned result is advisory;
	// position diffs are the authority on whether a leg executed.
	PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)
}

// PositionCloser is implemented by venues that expose a native
// close-position endpoint. Others are closed with an opposite order.
type PositionCloser interface {
	ClosePosition(ctx context.Context, symbol string) (*OrderResult, error)
}

// ErrCloseUnsupported is returned by wrappers when the underlying
// venue has no native close-position endpoint.
var ErrCloseUnsupported = errors.New("close position not supported")

// APIError represents an error response from a venue API.
type APIError struct {
	Venue   string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error %d: %s", e.Venue, e.Status, e.Message)
}
