// Package orders executes paired legs across both venues. An order
// response is never trusted on its own: every pair is verified by
// diffing positions before and after, and a lone changed leg is
// unwound so the book never carries naked exposure between cycles.
package orders

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/eddiefleurent/stamford_arb/internal/notify"
	"github.com/eddiefleurent/stamford_arb/internal/retry"
	"github.com/eddiefleurent/stamford_arb/internal/storage"
	"github.com/eddiefleurent/stamford_arb/internal/strategy"
	"github.com/eddiefleurent/stamford_arb/internal/util"
	"github.com/eddiefleurent/stamford_arb/internal/venue"
)

// Config contains configuration for the paired executor.
type Config struct {
	// SettleDelay is how long to wait after dispatch before trusting
	// position queries.
	SettleDelay time.Duration
	// OpenFillRatio is the fraction of the target size a position must
	// have moved for an open leg to count as executed.
	OpenFillRatio float64
	// CloseFillRatio is the fraction of the position that must be gone
	// for a close leg to count as executed.
	CloseFillRatio float64
	// LimitAggression prices Hyperliquid limit orders past the mark so
	// they fill immediately (0.005 = 0.5%).
	LimitAggression float64
	// Pairs holds per-symbol size and tick settings.
	Pairs map[string]strategy.PairLimits
	// Retry overrides the unwind retry policy.
	Retry *retry.Config
}

// DefaultConfig is the default configuration for the paired executor.
var DefaultConfig = Config{
	SettleDelay:     3 * time.Second,
	OpenFillRatio:   0.8,
	CloseFillRatio:  0.9,
	LimitAggression: 0.005,
}

// Executor places and verifies paired orders.
type Executor struct {
	backpack venue.Adapter
	hyper    venue.Adapter
	bpRetry  *retry.Client
	hlRetry  *retry.Client
	signs    storage.Interface
	notifier notify.Notifier
	logger   *log.Logger
	config   Config
}

// NewExecutor creates a paired executor. notifier may be nil.
func NewExecutor(
	backpack, hyper venue.Adapter,
	signs storage.Interface,
	notifier notify.Notifier,
	logger *log.Logger,
	config ...Config,
) *Executor {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}

	// Guard against nil logger
	if logger == nil {
		logger = log.New(os.Stderr, "orders: ", log.LstdFlags)
	}

	// Validate and clamp config values
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultConfig.SettleDelay
	}
	if cfg.OpenFillRatio <= 0 || cfg.OpenFillRatio > 1 {
		cfg.OpenFillRatio = DefaultConfig.OpenFillRatio
	}
	if cfg.CloseFillRatio <= 0 || cfg.CloseFillRatio > 1 {
		cfg.CloseFillRatio = DefaultConfig.CloseFillRatio
	}
	if cfg.LimitAggression <= 0 {
		cfg.LimitAggression = DefaultConfig.LimitAggression
	}

	// Validate required dependencies (fail fast to avoid later panics)
	if backpack == nil || hyper == nil {
		panic("orders.NewExecutor: venue adapters must not be nil")
	}
	if signs == nil {
		panic("orders.NewExecutor: sign store must not be nil")
	}

	retryCfg := retry.DefaultConfig
	if cfg.Retry != nil {
		retryCfg = *cfg.Retry
	}

	return &Executor{
		backpack: backpack,
		hyper:    hyper,
		bpRetry:  retry.NewClient(backpack, logger, retryCfg),
		hlRetry:  retry.NewClient(hyper, logger, retryCfg),
		signs:    signs,
		notifier: notifier,
		logger:   logger,
		config:   cfg,
	}
}

// legOutcome is one venue's half of a paired dispatch. Errors stay
// inside the value; nothing is thrown across the join.
type legOutcome struct {
	venue  string
	result *venue.OrderResult
	err    error
}

// dispatchPair sends both orders concurrently and waits for both to
// come back, regardless of individual failures.
func (x *Executor) dispatchPair(ctx context.Context, bpReq, hlReq venue.OrderRequest) (bp, hl legOutcome) {
	bpCh := make(chan legOutcome, 1)
	hlCh := make(chan legOutcome, 1)

	go func() {
		res, err := x.backpack.PlaceOrder(ctx, bpReq)
		bpCh <- legOutcome{venue: venue.Backpack, result: res, err: err}
	}()
	go func() {
		res, err := x.hyper.PlaceOrder(ctx, hlReq)
		hlCh <- legOutcome{venue: venue.Hyperliquid, result: res, err: err}
	}()

	for i := 0; i < 2; i++ {
		select {
		case out := <-bpCh:
			bp = out
		case out := <-hlCh:
			hl = out
		}
	}
	return bp, hl
}

func (x *Executor) logOutcome(action string, out legOutcome) {
	switch {
	case out.err != nil:
		x.logger.Printf("%s order on %s failed: %v", action, out.venue, out.err)
	case out.result == nil:
		x.logger.Printf("%s order on %s returned no result", action, out.venue)
	case out.result.Filled():
		x.logger.Printf("%s order on %s filled, id=%s avg=%.4f", action, out.venue, out.result.OrderID, out.result.AvgPrice)
	case out.result.Ok():
		x.logger.Printf("%s order on %s accepted, id=%s", action, out.venue, out.result.OrderID)
	default:
		x.logger.Printf("%s order on %s rejected: %s", action, out.venue, out.result.Reason)
	}
}

// OpenPair opens both legs for a candidate. On success the entry signs
// are persisted; on a single-leg fill the filled leg is unwound and an
// error returned.
func (x *Executor) OpenPair(ctx context.Context, cand *strategy.OpenCandidate) error {
	symbol := cand.Symbol
	limits, ok := x.config.Pairs[symbol]
	if !ok {
		return fmt.Errorf("no trading pair configured for %s", symbol)
	}

	size := util.Clamp(cand.Size, limits.MinVolume, limits.MaxPositionSize)
	if size != cand.Size {
		x.logger.Printf("%s open size %.6f clamped to %.6f", symbol, cand.Size, size)
	}

	bpSymbol := util.BackpackSymbol(symbol)
	hlSymbol := util.HyperliquidSymbol(symbol)

	// The venue with positive funding pays shorts, so short it.
	bpSide := venue.Buy
	if cand.BackpackFunding > 0 {
		bpSide = venue.Sell
	}
	hlSide := venue.Buy
	if cand.HyperliquidFunding > 0 {
		hlSide = venue.Sell
	}

	preBP, preHL, err := x.fetchPositions(ctx, bpSymbol, hlSymbol)
	if err != nil {
		return fmt.Errorf("fetching pre-open positions: %w", err)
	}

	// Aggressive limit on Hyperliquid, snapped to the symbol's grid.
	adjuster := 1 - x.config.LimitAggression
	if hlSide == venue.Buy {
		adjuster = 1 + x.config.LimitAggression
	}
	hlLimit := cand.HyperliquidPrice * adjuster
	hlLimit = util.RoundToTick(hlLimit, limits.TickSize)
	hlLimit = util.RoundToPrecision(hlLimit, limits.PricePrecision)

	x.logger.Printf("opening %s pair: BP %s %.6f market, HL %s %.6f limit @ %.6f",
		symbol, bpSide, size, hlSide, size, hlLimit)

	// From dispatch on the pair must reach a verified outcome even if
	// the caller is shutting down. A cancellation here would abandon
	// half-placed legs between placement and verification.
	ctx = context.WithoutCancel(ctx)

	bpOut, hlOut := x.dispatchPair(ctx,
		venue.OrderRequest{
			Symbol:   bpSymbol,
			Side:     bpSide,
			Type:     venue.Market,
			Size:     size,
			ClientID: uuid.NewString(),
		},
		venue.OrderRequest{
			Symbol:   hlSymbol,
			Side:     hlSide,
			Type:     venue.Limit,
			Size:     size,
			Price:    hlLimit,
			ClientID: uuid.NewString(),
		},
	)
	x.logOutcome("open", bpOut)
	x.logOutcome("open", hlOut)

	// The responses above are advisory. Give the venues time to settle,
	// then let the position diff decide.
	time.Sleep(x.config.SettleDelay)

	postBP, postHL, err := x.fetchPositions(ctx, bpSymbol, hlSymbol)
	if err != nil {
		return fmt.Errorf("fetching post-open positions: %w", err)
	}

	bpOpened := legOpened(preBP, postBP, size, x.config.OpenFillRatio)
	hlOpened := legOpened(preHL, postHL, size, x.config.OpenFillRatio)

	switch {
	case bpOpened && hlOpened:
		rec := storage.SignRecord{Funding: cand.FundingSign, Price: cand.PriceSign}
		if err := x.signs.Set(symbol, rec); err != nil {
			x.logger.Printf("%s opened but sign persistence failed: %v", symbol, err)
		}
		pairsOpened.WithLabelValues(resultSuccess).Inc()
		x.logger.Printf("%s pair opened: BP %s %.6f, HL %s %.6f", symbol, bpSide, size, hlSide, size)
		x.notify(symbol, "open", size, cand.BackpackPrice, bpSide)
		return nil

	case bpOpened:
		x.logger.Printf("%s opened only on backpack, unwinding", symbol)
		x.unwind(ctx, x.bpRetry, venue.Backpack, bpSymbol, postBP)
		pairsOpened.WithLabelValues(resultFailure).Inc()
		return fmt.Errorf("open %s: hyperliquid leg did not execute", symbol)

	case hlOpened:
		x.logger.Printf("%s opened only on hyperliquid, unwinding", symbol)
		x.unwind(ctx, x.hlRetry, venue.Hyperliquid, hlSymbol, postHL)
		pairsOpened.WithLabelValues(resultFailure).Inc()
		return fmt.Errorf("open %s: backpack leg did not execute", symbol)

	default:
		pairsOpened.WithLabelValues(resultFailure).Inc()
		return fmt.Errorf("open %s: neither leg executed", symbol)
	}
}

// ClosePair closes both legs of a held pair with market orders. On
// success the entry signs are cleared. If only one leg closes, the
// executor keeps flattening the remaining leg so the venue that closed
// stays flat and the book ends hedge-free.
func (x *Executor) ClosePair(ctx context.Context, cand *strategy.CloseCandidate) error {
	symbol := cand.Symbol
	bpSymbol := util.BackpackSymbol(symbol)
	hlSymbol := util.HyperliquidSymbol(symbol)

	preBP, preHL, err := x.fetchPositions(ctx, bpSymbol, hlSymbol)
	if err != nil {
		return fmt.Errorf("fetching pre-close positions: %w", err)
	}
	if preBP == nil {
		return fmt.Errorf("close %s: no backpack position", symbol)
	}
	if preHL == nil {
		return fmt.Errorf("close %s: no hyperliquid position", symbol)
	}

	bpSize := math.Abs(preBP.Size)
	hlSize := math.Abs(preHL.Size)

	x.logger.Printf("closing %s pair: BP %s %.6f, HL %s %.6f",
		symbol, preBP.Side().Opposite(), bpSize, preHL.Side().Opposite(), hlSize)

	// Same shutdown guarantee as on open: once the close is dispatched,
	// verification and any flattening run detached from cancellation.
	ctx = context.WithoutCancel(ctx)

	bpOut, hlOut := x.dispatchPair(ctx,
		venue.OrderRequest{
			Symbol:     bpSymbol,
			Side:       preBP.Side().Opposite(),
			Type:       venue.Market,
			Size:       bpSize,
			ReduceOnly: true,
			ClientID:   uuid.NewString(),
		},
		venue.OrderRequest{
			Symbol:     hlSymbol,
			Side:       preHL.Side().Opposite(),
			Type:       venue.Market,
			Size:       hlSize,
			ReduceOnly: true,
			ClientID:   uuid.NewString(),
		},
	)
	x.logOutcome("close", bpOut)
	x.logOutcome("close", hlOut)

	time.Sleep(x.config.SettleDelay)

	postBP, postHL, err := x.fetchPositions(ctx, bpSymbol, hlSymbol)
	if err != nil {
		return fmt.Errorf("fetching post-close positions: %w", err)
	}

	bpClosed := legClosed(preBP, postBP, x.config.CloseFillRatio)
	hlClosed := legClosed(preHL, postHL, x.config.CloseFillRatio)

	switch {
	case bpClosed && hlClosed:
		if err := x.signs.Clear(symbol); err != nil {
			x.logger.Printf("%s closed but sign clear failed: %v", symbol, err)
		}
		pairsClosed.WithLabelValues(resultSuccess).Inc()
		x.logger.Printf("%s pair closed", symbol)
		x.notify(symbol, "close", bpSize, 0, preBP.Side().Opposite())
		return nil

	case bpClosed:
		x.logger.Printf("%s closed only on backpack, flattening hyperliquid leg", symbol)
		if x.unwind(ctx, x.hlRetry, venue.Hyperliquid, hlSymbol, postHL) {
			x.clearAfterRecovery(symbol)
		}
		pairsClosed.WithLabelValues(resultFailure).Inc()
		return fmt.Errorf("close %s: hyperliquid leg did not close", symbol)

	case hlClosed:
		x.logger.Printf("%s closed only on hyperliquid, flattening backpack leg", symbol)
		if x.unwind(ctx, x.bpRetry, venue.Backpack, bpSymbol, postBP) {
			x.clearAfterRecovery(symbol)
		}
		pairsClosed.WithLabelValues(resultFailure).Inc()
		return fmt.Errorf("close %s: backpack leg did not close", symbol)

	default:
		pairsClosed.WithLabelValues(resultFailure).Inc()
		return fmt.Errorf("close %s: neither leg closed", symbol)
	}
}

// unwind flattens a lone leg, reporting whether the book is flat again.
func (x *Executor) unwind(ctx context.Context, client *retry.Client, venueName, symbol string, pos *venue.Position) bool {
	legUnwinds.WithLabelValues(venueName).Inc()
	if pos == nil {
		// The leg vanished between checks; nothing left to flatten.
		return true
	}
	if _, err := client.FlattenWithRetry(ctx, symbol, *pos); err != nil {
		x.logger.Printf("UNWIND FAILED on %s for %s: %v; manual intervention required", venueName, symbol, err)
		return false
	}
	x.logger.Printf("unwound %s leg on %s", symbol, venueName)
	return true
}

// clearAfterRecovery drops the sign record once both venues are flat
// again, keeping the store in step with the book.
func (x *Executor) clearAfterRecovery(symbol string) {
	if err := x.signs.Clear(symbol); err != nil {
		x.logger.Printf("%s flattened but sign clear failed: %v", symbol, err)
	}
}

func (x *Executor) notify(symbol, action string, qty, price float64, side venue.OrderSide) {
	if x.notifier == nil {
		return
	}
	direction := "long"
	if side == venue.Sell {
		direction = "short"
	}
	go x.notifier.NotifyOrder(symbol, action, qty, price, direction, venue.Backpack)
}

// fetchPositions returns both venues' positions for the pair's symbols.
func (x *Executor) fetchPositions(ctx context.Context, bpSymbol, hlSymbol string) (*venue.Position, *venue.Position, error) {
	bpPositions, err := x.backpack.Positions(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("backpack positions: %w", err)
	}
	hlPositions, err := x.hyper.Positions(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("hyperliquid positions: %w", err)
	}
	var bp, hl *venue.Position
	if pos, ok := bpPositions[bpSymbol]; ok {
		bp = &pos
	}
	if pos, ok := hlPositions[hlSymbol]; ok {
		hl = &pos
	}
	return bp, hl, nil
}

// legOpened reports whether an open leg executed: a brand-new position,
// or an existing one that moved by at least ratio*target.
func legOpened(pre, post *venue.Position, target, ratio float64) bool {
	switch {
	case pre == nil && post != nil:
		return true
	case pre != nil && post != nil:
		return math.Abs(post.Size-pre.Size) >= ratio*target
	default:
		return false
	}
}

// legClosed reports whether a close leg executed: the position is gone,
// or at least ratio of it was taken off.
func legClosed(pre, post *venue.Position, ratio float64) bool {
	if pre == nil {
		return false
	}
	if post == nil {
		return true
	}
	preSize := math.Abs(pre.Size)
	if preSize == 0 {
		return false
	}
	return (preSize-math.Abs(post.Size))/preSize >= ratio
}
