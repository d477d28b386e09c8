// Package strategy decides, per symbol and per cycle, whether to open
// a new funding-rate pair or close an existing one. Evaluation never
// places orders; it emits at most one candidate per symbol for the
// executor to act on.
package strategy

import (
	"fmt"
	"log"
	"math"

	"github.com/eddiefleurent/stamford_arb/internal/market"
	"github.com/eddiefleurent/stamford_arb/internal/storage"
	"github.com/eddiefleurent/stamford_arb/internal/util"
	"github.com/eddiefleurent/stamford_arb/internal/venue"
)

// ConditionType selects how the price and funding gates combine.
type ConditionType string

const (
	// ConditionFundingOnly gates on the funding-rate difference alone.
	ConditionFundingOnly ConditionType = "funding_only"
	// ConditionPriceOnly gates on the price difference alone.
	ConditionPriceOnly ConditionType = "price_only"
	// ConditionAll requires every gate to pass.
	ConditionAll ConditionType = "all"
	// ConditionAny requires at least one gate to pass.
	ConditionAny ConditionType = "any"
)

// OpenConditions configures the open-side gates.
type OpenConditions struct {
	ConditionType             ConditionType
	MinFundingDiff            float64
	MinPriceDiffPercent       float64
	MaxPriceDiffPercent       float64
	MaxSlippagePercent        float64
	IgnoreHighSlippage        bool
	CheckDirectionConsistency bool
}

// CloseConditions configures the close-side gates.
// FundingDiffSignChange is a pointer so leaving it unset keeps the
// reversal gate enabled; NewEvaluator fills in the default.
type CloseConditions struct {
	ConditionType             ConditionType
	FundingDiffSignChange     *bool
	PriceDiffSignChange       bool
	MinFundingDiff            float64
	MinProfitPercent          float64
	MaxLossPercent            float64
	MaxCloseSlippagePercent   float64
	IgnoreCloseSlippage       bool
	CheckDirectionConsistency bool
}

// PairLimits are the per-symbol trading bounds.
type PairLimits struct {
	MaxPositionSize float64
	MinVolume       float64
	TickSize        float64
	PricePrecision  int
}

// Config holds everything the evaluator needs. It is assembled from
// the bot config at startup.
type Config struct {
	MaxPositionsCount int
	// FundingPeriods converts Hyperliquid's hourly funding to
	// Backpack's interval (default 8).
	FundingPeriods float64
	Open           OpenConditions
	Close          CloseConditions
	Pairs          map[string]PairLimits
	TradeSizeUSD   map[string]float64
}

// TradeSize returns the notional used for slippage analysis of a
// symbol, defaulting to $100.
func (c *Config) TradeSize(symbol string) float64 {
	if usd, ok := c.TradeSizeUSD[symbol]; ok && usd > 0 {
		return usd
	}
	return 100
}

// OpenCandidate describes a pair the evaluator wants opened.
type OpenCandidate struct {
	Symbol             string
	Size               float64 // available size in base units
	FundingDiff        float64 // backpack minus normalized hyperliquid
	FundingSign        int
	PriceSign          int
	BackpackFunding    float64
	HyperliquidFunding float64 // normalized to the backpack interval
	BackpackPrice      float64
	HyperliquidPrice   float64
	Reason             string
}

// CloseCandidate describes an open pair the evaluator wants closed.
type CloseCandidate struct {
	Symbol      string
	Backpack    venue.Position
	Hyperliquid venue.Position
	Reason      string
}

// Decision is the outcome for one symbol. At most one of Open and
// Close is set.
type Decision struct {
	Open  *OpenCandidate
	Close *CloseCandidate
}

// Evaluator applies the open and close gates against a market snapshot
// and current positions.
type Evaluator struct {
	cfg    *Config
	signs  storage.Interface
	logger *log.Logger
}

// NewEvaluator builds an evaluator. Zero config fields get defaults.
func NewEvaluator(cfg *Config, signs storage.Interface, logger *log.Logger) *Evaluator {
	if cfg.FundingPeriods <= 0 {
		cfg.FundingPeriods = 8
	}
	if cfg.MaxPositionsCount <= 0 {
		cfg.MaxPositionsCount = 5
	}
	if cfg.Open.MaxPriceDiffPercent <= 0 {
		cfg.Open.MaxPriceDiffPercent = 1.0
	}
	if cfg.Open.MaxSlippagePercent <= 0 {
		cfg.Open.MaxSlippagePercent = 0.5
	}
	if cfg.Close.FundingDiffSignChange == nil {
		enabled := true
		cfg.Close.FundingDiffSignChange = &enabled
	}
	if cfg.Close.MinFundingDiff <= 0 {
		cfg.Close.MinFundingDiff = 5e-6
	}
	if cfg.Close.MinProfitPercent <= 0 {
		cfg.Close.MinProfitPercent = 0.1
	}
	if cfg.Close.MaxCloseSlippagePercent <= 0 {
		cfg.Close.MaxCloseSlippagePercent = 0.5
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Evaluator{cfg: cfg, signs: signs, logger: logger}
}

// FundingDiff returns the funding-rate difference and its sign, with
// the Hyperliquid rate already normalized.
func (e *Evaluator) FundingDiff(bpFunding, hlFundingNormalized float64) (float64, int) {
	diff := bpFunding - hlFundingNormalized
	return diff, util.Sign(diff)
}

// LegVenues names the long and short venue for a funding sign, used to
// pick which book side each leg's slippage is estimated against.
func LegVenues(fundingSign int) (longVenue, shortVenue string) {
	if fundingSign < 0 {
		return venue.Hyperliquid, venue.Backpack
	}
	return venue.Backpack, venue.Hyperliquid
}

// Evaluate runs both gate sets for one symbol. bpPositions and
// hlPositions are each venue's open positions keyed by venue-native
// symbol. The returned decision carries at most one candidate.
func (e *Evaluator) Evaluate(snap *market.Snapshot, bpPositions, hlPositions map[string]venue.Position) *Decision {
	symbol := snap.Symbol
	bpSymbol := util.BackpackSymbol(symbol)
	hlSymbol := util.HyperliquidSymbol(symbol)

	hlNormalized := snap.Hyperliquid.Funding * e.cfg.FundingPeriods
	fundingDiff, fundingSign := e.FundingDiff(snap.Backpack.Funding, hlNormalized)
	priceDiff := snap.PriceDiffPercent()

	bpPos, hasBP := bpPositions[bpSymbol]
	hlPos, hasHL := hlPositions[hlSymbol]

	if !hasBP && !hasHL {
		if cand := e.checkOpen(snap, fundingDiff, fundingSign, priceDiff, bpPositions, hlPositions); cand != nil {
			cand.BackpackFunding = snap.Backpack.Funding
			cand.HyperliquidFunding = hlNormalized
			cand.BackpackPrice = snap.Backpack.Price
			cand.HyperliquidPrice = snap.Hyperliquid.Price
			return &Decision{Open: cand}
		}
		return &Decision{}
	}

	// Close decisions need both legs on the book; a lone leg is the
	// executor's unwind territory, not the evaluator's.
	if hasBP && hasHL {
		if cand := e.checkClose(symbol, bpPos, hlPos, snap, fundingDiff, fundingSign, priceDiff); cand != nil {
			return &Decision{Close: cand}
		}
	}
	return &Decision{}
}

func (e *Evaluator) checkOpen(snap *market.Snapshot, fundingDiff float64, fundingSign int, priceDiff float64, bpPositions, hlPositions map[string]venue.Position) *OpenCandidate {
	symbol := snap.Symbol
	open := e.cfg.Open

	// Slippage guard. Snapshots without slippage analysis count as
	// expensive, not free.
	totalSlippage := 0.5
	if snap.HasSlippage {
		totalSlippage = snap.TotalSlippage
	}
	if !open.IgnoreHighSlippage && totalSlippage > open.MaxSlippagePercent {
		e.logger.Printf("%s - estimated slippage %.4f%% above limit %.4f%%, skipping open",
			symbol, totalSlippage, open.MaxSlippagePercent)
		return nil
	}

	// Global position cap, counted as distinct base symbols across
	// both venues.
	held := make(map[string]struct{})
	for s := range bpPositions {
		held[util.BaseSymbol(s)] = struct{}{}
	}
	for s := range hlPositions {
		held[util.BaseSymbol(s)] = struct{}{}
	}
	if len(held) >= e.cfg.MaxPositionsCount {
		e.logger.Printf("global position limit reached (%d), skipping %s open", e.cfg.MaxPositionsCount, symbol)
		return nil
	}

	limits, ok := e.cfg.Pairs[symbol]
	if !ok {
		e.logger.Printf("%s - no trading pair configured, skipping", symbol)
		return nil
	}
	// No position exists on either venue here, so the full per-symbol
	// budget is available.
	availableSize := limits.MaxPositionSize
	if availableSize <= 0 {
		return nil
	}

	priceOK := math.Abs(priceDiff) >= open.MinPriceDiffPercent && math.Abs(priceDiff) <= open.MaxPriceDiffPercent
	fundingOK := math.Abs(fundingDiff) >= open.MinFundingDiff

	directionOK := true
	if open.CheckDirectionConsistency && priceOK && fundingOK {
		directionOK = util.Sign(priceDiff) == fundingSign
		if !directionOK {
			e.logger.Printf("%s - direction check failed: price diff %.4f%% vs funding diff %.6f", symbol, priceDiff, fundingDiff)
		}
	}

	var shouldOpen bool
	var reason string
	switch open.ConditionType {
	case ConditionAny:
		shouldOpen = (priceOK || fundingOK) && directionOK
		reason = "price or funding difference condition met"
	case ConditionAll:
		shouldOpen = priceOK && fundingOK && directionOK
		reason = "price and funding difference conditions met"
	case ConditionPriceOnly:
		shouldOpen = priceOK && directionOK
		reason = fmt.Sprintf("price difference %.4f%% within [%.2f%%, %.2f%%]", math.Abs(priceDiff), open.MinPriceDiffPercent, open.MaxPriceDiffPercent)
	default: // funding_only
		shouldOpen = fundingOK && directionOK
		reason = fmt.Sprintf("funding difference %.6f above %.6f", math.Abs(fundingDiff), open.MinFundingDiff)
	}
	if !shouldOpen {
		return nil
	}

	return &OpenCandidate{
		Symbol:      symbol,
		Size:        availableSize,
		FundingDiff: fundingDiff,
		FundingSign: fundingSign,
		PriceSign:   util.Sign(priceDiff),
		Reason:      reason,
	}
}

func (e *Evaluator) checkClose(symbol string, bpPos, hlPos venue.Position, snap *market.Snapshot, fundingDiff float64, fundingSign int, priceDiff float64) *CloseCandidate {
	cc := e.cfg.Close

	totalSlippage := 0.5
	if snap.HasSlippage {
		totalSlippage = snap.TotalSlippage
	}
	if !cc.IgnoreCloseSlippage && totalSlippage > cc.MaxCloseSlippagePercent {
		e.logger.Printf("%s - estimated close slippage %.4f%% above limit %.4f%%, holding",
			symbol, totalSlippage, cc.MaxCloseSlippagePercent)
		return nil
	}

	priceSign := util.Sign(priceDiff)

	rec, hasRecord := e.signs.Get(symbol)
	fundingSignChanged := hasRecord && rec.Funding != fundingSign

	// Pairs opened before price signs were persisted have no entry
	// price sign; capture the current one so the reversal check works
	// from the next cycle on.
	entryPriceSign := rec.Price
	if hasRecord && entryPriceSign == 0 {
		if err := e.signs.SetPriceSign(symbol, priceSign); err != nil {
			e.logger.Printf("%s - recording price sign: %v", symbol, err)
		} else {
			e.logger.Printf("%s - no entry price sign on record, captured current sign %+d", symbol, priceSign)
		}
		entryPriceSign = priceSign
	}
	priceSignChanged := entryPriceSign != 0 && entryPriceSign != priceSign

	fundingOK := fundingSignChanged && *cc.FundingDiffSignChange &&
		math.Abs(fundingDiff) >= cc.MinFundingDiff

	var priceOK bool
	if cc.PriceDiffSignChange {
		priceOK = priceSignChanged && math.Abs(priceDiff) >= cc.MinProfitPercent
	} else {
		// Without the reversal requirement, a collapsed basis means
		// the arb has played out.
		priceOK = math.Abs(priceDiff) < cc.MinProfitPercent
	}

	directionOK := true
	if cc.CheckDirectionConsistency && priceOK && fundingOK {
		directionOK = priceSign == util.Sign(fundingDiff)
	}

	var shouldClose bool
	var reason string
	switch cc.ConditionType {
	case ConditionAll:
		shouldClose = fundingOK && priceOK && directionOK
		reason = "funding and price conditions met"
	case ConditionFundingOnly:
		shouldClose = fundingOK && directionOK
		reason = fmt.Sprintf("funding sign reversed, difference %.6f above %.6f", math.Abs(fundingDiff), cc.MinFundingDiff)
	case ConditionPriceOnly:
		shouldClose = priceOK && directionOK
		reason = e.closePriceReason(priceDiff)
	default: // any
		switch {
		case fundingOK && directionOK:
			shouldClose = true
			reason = fmt.Sprintf("funding sign reversed, difference %.6f above %.6f", math.Abs(fundingDiff), cc.MinFundingDiff)
		case priceOK && directionOK:
			shouldClose = true
			reason = e.closePriceReason(priceDiff)
		}
	}
	if !shouldClose {
		return nil
	}

	return &CloseCandidate{
		Symbol:      symbol,
		Backpack:    bpPos,
		Hyperliquid: hlPos,
		Reason:      reason,
	}
}

func (e *Evaluator) closePriceReason(priceDiff float64) string {
	if e.cfg.Close.PriceDiffSignChange {
		return fmt.Sprintf("price sign reversed, difference %.4f%% above %.2f%%", math.Abs(priceDiff), e.cfg.Close.MinProfitPercent)
	}
	return fmt.Sprintf("price difference %.4f%% below %.2f%%, basis converged", math.Abs(priceDiff), e.cfg.Close.MinProfitPercent)
}
