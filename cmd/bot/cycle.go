package main

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/eddiefleurent/stamford_arb/internal/market"
	"github.com/eddiefleurent/stamford_arb/internal/slippage"
	"github.com/eddiefleurent/stamford_arb/internal/strategy"
	"github.com/eddiefleurent/stamford_arb/internal/util"
	"github.com/eddiefleurent/stamford_arb/internal/venue"
)

// Cycle encapsulates one full evaluation and execution pass over the
// configured symbols.
type Cycle struct {
	bot *Bot
}

// NewCycle creates a new trading cycle handler.
func NewCycle(bot *Bot) *Cycle {
	return &Cycle{bot: bot}
}

// Run executes one trading cycle: refresh market data, evaluate every
// symbol, then execute all opens before all closes. A symbol that
// fails to evaluate is skipped; the cycle carries on.
func (c *Cycle) Run(ctx context.Context) error {
	b := c.bot
	if err := ctx.Err(); err != nil {
		return err
	}
	started := time.Now()
	defer func() { cycleDuration.Observe(time.Since(started).Seconds()) }()
	b.logger.Println("Starting trading cycle...")

	bpPositions, hlPositions, err := c.fetchPositions(ctx)
	if err != nil {
		return fmt.Errorf("fetching positions: %w", err)
	}
	b.logger.Printf("Currently holding %d backpack / %d hyperliquid position(s)",
		len(bpPositions), len(hlPositions))

	var opens []*strategy.OpenCandidate
	var closes []*strategy.CloseCandidate

	for _, symbol := range b.config.Symbols() {
		snap, err := b.market.Refresh(ctx, symbol)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.Printf("%s - market refresh failed, skipping: %v", symbol, err)
			continue
		}
		if !b.market.IsValid(snap) {
			b.logger.Printf("%s - snapshot invalid, skipping", symbol)
			continue
		}

		c.enrichSlippage(snap)

		decision := b.evaluator.Evaluate(snap, bpPositions, hlPositions)
		switch {
		case decision.Open != nil:
			b.logger.Printf("%s - open signal: %s", symbol, decision.Open.Reason)
			cycleCandidates.WithLabelValues("open").Inc()
			opens = append(opens, decision.Open)
		case decision.Close != nil:
			b.logger.Printf("%s - close signal: %s", symbol, decision.Close.Reason)
			cycleCandidates.WithLabelValues("close").Inc()
			closes = append(closes, decision.Close)
		}
	}

	// Opens before closes, paced so consecutive pairs don't hammer the
	// venues inside one cycle.
	pacing := b.config.GetOrderPacing()
	first := true
	for _, cand := range opens {
		if err := c.pace(ctx, &first, pacing); err != nil {
			return err
		}
		if err := b.executor.OpenPair(ctx, cand); err != nil {
			b.logger.Printf("open %s failed: %v", cand.Symbol, err)
			continue
		}
		b.recordOpen()
	}
	for _, cand := range closes {
		if err := c.pace(ctx, &first, pacing); err != nil {
			return err
		}
		if err := b.executor.ClosePair(ctx, cand); err != nil {
			b.logger.Printf("close %s failed: %v", cand.Symbol, err)
			continue
		}
		b.recordClose()
	}

	b.logger.Println("Trading cycle complete")
	return nil
}

// fetchPositions queries both venues concurrently.
func (c *Cycle) fetchPositions(ctx context.Context) (map[string]venue.Position, map[string]venue.Position, error) {
	var bpPositions, hlPositions map[string]venue.Position

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		bpPositions, err = c.bot.backpack.Positions(gctx)
		if err != nil {
			return fmt.Errorf("backpack: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		hlPositions, err = c.bot.hyper.Positions(gctx)
		if err != nil {
			return fmt.Errorf("hyperliquid: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return bpPositions, hlPositions, nil
}

// enrichSlippage estimates round-trip slippage for the snapshot using
// whichever venue each leg would trade on. Snapshots without books are
// left unanalyzed; the evaluator treats those as expensive.
func (c *Cycle) enrichSlippage(snap *market.Snapshot) {
	b := c.bot
	if len(snap.Backpack.Bids) == 0 && len(snap.Backpack.Asks) == 0 &&
		len(snap.Hyperliquid.Bids) == 0 && len(snap.Hyperliquid.Asks) == 0 {
		return
	}

	hlNormalized := snap.Hyperliquid.Funding * b.fundingPeriods
	fundingSign := util.Sign(snap.Backpack.Funding - hlNormalized)
	longVenue, shortVenue := strategy.LegVenues(fundingSign)

	// The long exchange's leg consumes bids, the short exchange's asks.
	usd := tradeSize(b, snap.Symbol)
	long := c.venueSlippage(snap, longVenue, slippage.Bids, usd)
	short := c.venueSlippage(snap, shortVenue, slippage.Asks, usd)

	snap.LongVenue = longVenue
	snap.ShortVenue = shortVenue
	snap.LongSlippage = long
	snap.ShortSlippage = short
	snap.TotalSlippage = long + short
	snap.HasSlippage = true
}

func (c *Cycle) venueSlippage(snap *market.Snapshot, venueName string, side slippage.Side, usd float64) float64 {
	data := snap.Backpack
	if venueName == venue.Hyperliquid {
		data = snap.Hyperliquid
	}
	levels := data.Asks
	if side == slippage.Bids {
		levels = data.Bids
	}
	return c.bot.analyzer.Estimate(levels, side, usd, data.Price)
}

func tradeSize(b *Bot, symbol string) float64 {
	if usd, ok := b.config.Strategy.TradeSizeUSD[symbol]; ok && usd > 0 {
		return usd
	}
	return 100
}

// pace sleeps between executions within one cycle, skipping the first.
func (c *Cycle) pace(ctx context.Context, first *bool, d time.Duration) error {
	if *first {
		*first = false
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
