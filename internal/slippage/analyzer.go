// Package slippage estimates execution slippage by walking order book
// depth against a target notional. Estimates are a guard against thin
// books, not a fill-price predictor, so every defective input collapses
// to a conservative default rather than an error.
package slippage

import (
	"log"
	"math"
	"sort"
	"strconv"

	"github.com/eddiefleurent/stamford_arb/internal/venue"
)

// Side selects which ladder of the book to walk.
type Side string

const (
	// Bids is walked for the long exchange's leg.
	Bids Side = "bids"
	// Asks is walked for the short exchange's leg.
	Asks Side = "asks"
)

// Config holds the analyzer's bounds. Zero values fall back to the
// defaults below.
type Config struct {
	Depth               int     // levels walked per estimate
	MinPct              float64 // floor on the returned percentage
	MaxPct              float64 // cap on the returned percentage
	DefaultPct          float64 // returned for defective inputs
	MinFillRatio        float64 // partial fills at or above this still price normally
	MaxLiquidityPenalty float64 // cap on the thin-book penalty
}

// DefaultConfig mirrors the production constants.
var DefaultConfig = Config{
	Depth:               10,
	MinPct:              0.01,
	MaxPct:              0.5,
	DefaultPct:          0.1,
	MinFillRatio:        0.8,
	MaxLiquidityPenalty: 0.2,
}

// Analyzer walks order books and reports slippage as a percentage of
// the reference price.
type Analyzer struct {
	cfg    Config
	logger *log.Logger
}

// NewAnalyzer builds an analyzer, filling zero config fields from
// DefaultConfig.
func NewAnalyzer(cfg Config, logger *log.Logger) *Analyzer {
	if cfg.Depth <= 0 {
		cfg.Depth = DefaultConfig.Depth
	}
	if cfg.MinPct <= 0 {
		cfg.MinPct = DefaultConfig.MinPct
	}
	if cfg.MaxPct <= 0 {
		cfg.MaxPct = DefaultConfig.MaxPct
	}
	if cfg.DefaultPct <= 0 {
		cfg.DefaultPct = DefaultConfig.DefaultPct
	}
	if cfg.MinFillRatio <= 0 {
		cfg.MinFillRatio = DefaultConfig.MinFillRatio
	}
	if cfg.MaxLiquidityPenalty <= 0 {
		cfg.MaxLiquidityPenalty = DefaultConfig.MaxLiquidityPenalty
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Analyzer{cfg: cfg, logger: logger}
}

// Estimate walks one side of a book and returns the expected slippage,
// in percent, for executing amountUSD against it. price is the current
// market price the average fill is compared to. Levels may arrive in
// any of the shapes venues produce: {"px","sz"} maps, {"price","size"}
// maps, [price, size] pairs, or typed venue.PriceLevel values;
// unrecognized levels are skipped.
func (a *Analyzer) Estimate(levels []any, side Side, amountUSD, price float64) float64 {
	if len(levels) == 0 || price <= 0 || amountUSD <= 0 {
		return a.cfg.DefaultPct
	}

	book := normalize(levels)
	if len(book) == 0 {
		a.logger.Printf("slippage: no usable levels on %s side", side)
		return a.cfg.DefaultPct
	}

	// Venues promise sorted books; re-sort anyway so a malformed feed
	// cannot flip the walk order.
	if side == Bids {
		sort.Slice(book, func(i, j int) bool { return book[i].Price > book[j].Price })
	} else {
		sort.Slice(book, func(i, j int) bool { return book[i].Price < book[j].Price })
	}

	var (
		filled    float64
		weighted  float64
		lastPrice float64
		checked   int
	)
	for _, lvl := range book {
		lastPrice = lvl.Price
		value := lvl.Price * lvl.Size
		if filled+value >= amountUSD {
			remaining := amountUSD - filled
			weighted += lvl.Price * (remaining / lvl.Price)
			filled = amountUSD
			break
		}
		weighted += lvl.Price * lvl.Size
		filled += value
		checked++
		if checked >= a.cfg.Depth {
			break
		}
	}

	if filled < amountUSD {
		ratio := filled / amountUSD
		if ratio < a.cfg.MinFillRatio {
			// Thin book: return a penalty proportional to the unfilled
			// share instead of pricing off a partial walk.
			return math.Min(a.cfg.MaxLiquidityPenalty, 1-ratio)
		}
		a.logger.Printf("slippage: partial fill %.1f%% of $%.2f on %s side, pricing filled portion",
			ratio*100, amountUSD, side)
	}

	if filled <= 0 {
		return a.cfg.DefaultPct
	}

	// Average fill price, referenced to the last consumed level.
	average := weighted / (filled / lastPrice)

	pct := math.Abs(average-price) / price * 100
	return math.Max(a.cfg.MinPct, math.Min(a.cfg.MaxPct, pct))
}

// FromBook converts one side of a typed book into the loose level form
// Estimate accepts.
func FromBook(book *venue.OrderBook, side Side) []any {
	if book == nil {
		return nil
	}
	src := book.Asks
	if side == Bids {
		src = book.Bids
	}
	out := make([]any, 0, len(src))
	for _, lvl := range src {
		out = append(out, lvl)
	}
	return out
}

type level struct {
	Price float64
	Size  float64
}

func normalize(levels []any) []level {
	out := make([]level, 0, len(levels))
	for _, raw := range levels {
		var l level
		var ok bool
		switch v := raw.(type) {
		case venue.PriceLevel:
			l, ok = level{Price: v.Price, Size: v.Size}, true
		case map[string]any:
			if px, sz, found := fields(v, "px", "sz"); found {
				l, ok = level{Price: px, Size: sz}, true
			} else if px, sz, found := fields(v, "price", "size"); found {
				l, ok = level{Price: px, Size: sz}, true
			}
		case []any:
			if len(v) >= 2 {
				px, okP := toFloat(v[0])
				sz, okS := toFloat(v[1])
				if okP && okS {
					l, ok = level{Price: px, Size: sz}, true
				}
			}
		case []float64:
			if len(v) >= 2 {
				l, ok = level{Price: v[0], Size: v[1]}, true
			}
		}
		if ok && l.Price > 0 && l.Size > 0 {
			out = append(out, l)
		}
	}
	return out
}

func fields(m map[string]any, priceKey, sizeKey string) (float64, float64, bool) {
	pv, okP := m[priceKey]
	sv, okS := m[sizeKey]
	if !okP || !okS {
		return 0, 0, false
	}
	px, okP := toFloat(pv)
	sz, okS := toFloat(sv)
	return px, sz, okP && okS
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}
