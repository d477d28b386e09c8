package strategy

import (
	"io"
	"log"
	"path/filepath"
	"strings"
	"testing"

	"github.com/eddiefleurent/stamford_arb/internal/market"
	"github.com/eddiefleurent/stamford_arb/internal/storage"
	"github.com/eddiefleurent/stamford_arb/internal/venue"
)

func testLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func testStore(t *testing.T) *storage.SignStore {
	t.Helper()
	s, err := storage.NewSignStore(filepath.Join(t.TempDir(), "signs.json"), testLogger())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func baseConfig() *Config {
	return &Config{
		MaxPositionsCount: 5,
		FundingPeriods:    8,
		Open: OpenConditions{
			ConditionType:      ConditionFundingOnly,
			MinFundingDiff:     1e-5,
			MaxPriceDiffPercent: 1.0,
			MinPriceDiffPercent: 0.2,
			MaxSlippagePercent: 0.15,
		},
		Close: CloseConditions{
			ConditionType:           ConditionFundingOnly,
			MinFundingDiff:          5e-6,
			MinProfitPercent:        0.1,
			MaxCloseSlippagePercent: 0.25,
		},
		Pairs: map[string]PairLimits{
			"BTC": {MaxPositionSize: 0.5, MinVolume: 0.001, TickSize: 0.5, PricePrecision: 1},
		},
	}
}

// snapshot with funding already in raw venue units (hyperliquid hourly).
func snapshotWith(bpFunding, hlFundingRaw, bpPrice, hlPrice, totalSlippage float64) *market.Snapshot {
	return &market.Snapshot{
		Symbol:        "BTC",
		Backpack:      market.VenueData{Price: bpPrice, Funding: bpFunding},
		Hyperliquid:   market.VenueData{Price: hlPrice, Funding: hlFundingRaw},
		HasSlippage:   true,
		TotalSlippage: totalSlippage,
	}
}

func noPositions() map[string]venue.Position { return map[string]venue.Position{} }

func TestOpenBasic(t *testing.T) {
	// funding_only, fa=0.0002, fb_norm=0.00005, diff 1.5e-4 above 1e-5.
	e := NewEvaluator(baseConfig(), testStore(t), testLogger())
	snap := snapshotWith(0.0002, 0.00005/8, 64100, 64000, 0.05)

	d := e.Evaluate(snap, noPositions(), noPositions())
	if d.Open == nil {
		t.Fatal("expected an open candidate")
	}
	if d.Close != nil {
		t.Fatal("a decision must never carry both candidates")
	}
	cand := d.Open
	if cand.Symbol != "BTC" || cand.Size != 0.5 {
		t.Errorf("candidate = %+v", cand)
	}
	if cand.FundingSign != 1 {
		t.Errorf("FundingSign = %d, expected +1", cand.FundingSign)
	}
	if diff := cand.FundingDiff; diff < 1.49e-4 || diff > 1.51e-4 {
		t.Errorf("FundingDiff = %v, expected 1.5e-4", diff)
	}
	if cand.HyperliquidFunding != 0.00005 {
		t.Errorf("normalized hl funding = %v, expected 0.00005", cand.HyperliquidFunding)
	}
}

func TestOpenBlockedBySlippage(t *testing.T) {
	cfg := baseConfig()
	cfg.Open.MaxSlippagePercent = 0.1
	e := NewEvaluator(cfg, testStore(t), testLogger())
	snap := snapshotWith(0.0002, 0.00005/8, 64100, 64000, 0.18)

	if d := e.Evaluate(snap, noPositions(), noPositions()); d.Open != nil {
		t.Fatal("expected no candidate when slippage exceeds the limit")
	}

	// With the override set the same snapshot passes.
	cfg.Open.IgnoreHighSlippage = true
	if d := e.Evaluate(snap, noPositions(), noPositions()); d.Open == nil {
		t.Fatal("ignore_high_slippage should bypass the guard")
	}
}

func TestOpenUnanalyzedSnapshotCountsAsExpensive(t *testing.T) {
	e := NewEvaluator(baseConfig(), testStore(t), testLogger())
	snap := snapshotWith(0.0002, 0.00005/8, 64100, 64000, 0)
	snap.HasSlippage = false

	// Missing slippage defaults to 0.5%, above the 0.15% limit.
	if d := e.Evaluate(snap, noPositions(), noPositions()); d.Open != nil {
		t.Fatal("expected no candidate without slippage analysis")
	}
}

func TestOpenBlockedByGlobalCap(t *testing.T) {
	cfg := baseConfig()
	cfg.MaxPositionsCount = 2
	e := NewEvaluator(cfg, testStore(t), testLogger())
	snap := snapshotWith(0.0002, 0.00005/8, 64100, 64000, 0.05)

	bpPositions := map[string]venue.Position{
		"SOL_USDC_PERP": {Symbol: "SOL_USDC_PERP", Size: 10},
	}
	hlPositions := map[string]venue.Position{
		"DOGE": {Symbol: "DOGE", Size: 1000},
	}
	if d := e.Evaluate(snap, bpPositions, hlPositions); d.Open != nil {
		t.Fatal("expected no candidate at the global position cap")
	}
}

func TestOpenSkipsHeldSymbol(t *testing.T) {
	e := NewEvaluator(baseConfig(), testStore(t), testLogger())
	snap := snapshotWith(0.0002, 0.00005/8, 64100, 64000, 0.05)

	// A lone leg on either venue blocks a fresh open and, without the
	// other leg, blocks close evaluation too.
	bpPositions := map[string]venue.Position{
		"BTC_USDC_PERP": {Symbol: "BTC_USDC_PERP", Size: -0.5},
	}
	d := e.Evaluate(snap, bpPositions, noPositions())
	if d.Open != nil || d.Close != nil {
		t.Fatalf("expected empty decision for a lone leg, got %+v", d)
	}
}

func TestOpenDirectionConsistency(t *testing.T) {
	cfg := baseConfig()
	cfg.Open.ConditionType = ConditionAll
	cfg.Open.CheckDirectionConsistency = true
	cfg.Open.MinPriceDiffPercent = 0.05
	e := NewEvaluator(cfg, testStore(t), testLogger())

	// Positive funding diff but negative basis: inconsistent.
	snap := snapshotWith(0.0002, 0.00005/8, 63900, 64000, 0.05)
	if d := e.Evaluate(snap, noPositions(), noPositions()); d.Open != nil {
		t.Fatal("expected direction check to reject the open")
	}

	// Same magnitudes with a positive basis pass.
	snap = snapshotWith(0.0002, 0.00005/8, 64100, 64000, 0.05)
	if d := e.Evaluate(snap, noPositions(), noPositions()); d.Open == nil {
		t.Fatal("expected consistent directions to open")
	}
}

func heldPair() (map[string]venue.Position, map[string]venue.Position) {
	bp := map[string]venue.Position{
		"BTC_USDC_PERP": {Symbol: "BTC_USDC_PERP", Size: -0.5, EntryPrice: 64100},
	}
	hl := map[string]venue.Position{
		"BTC": {Symbol: "BTC", Size: 0.5, EntryPrice: 64000},
	}
	return bp, hl
}

func TestCloseOnFundingReversal(t *testing.T) {
	store := testStore(t)
	if err := store.Set("BTC", storage.SignRecord{Funding: 1, Price: 1}); err != nil {
		t.Fatal(err)
	}
	e := NewEvaluator(baseConfig(), store, testLogger())

	// Current funding diff -8e-5: sign flipped, magnitude above 5e-6.
	snap := snapshotWith(-0.00005, 0.00003/8, 64100, 64000, 0.05)
	bp, hl := heldPair()
	d := e.Evaluate(snap, bp, hl)
	if d.Close == nil {
		t.Fatal("expected a close candidate on funding sign reversal")
	}
	if d.Open != nil {
		t.Fatal("a decision must never carry both candidates")
	}
	if d.Close.Backpack.Size != -0.5 || d.Close.Hyperliquid.Size != 0.5 {
		t.Errorf("close candidate legs = %+v", d.Close)
	}
}

func TestCloseDefaultsFireOnFundingReversal(t *testing.T) {
	store := testStore(t)
	if err := store.Set("BTC", storage.SignRecord{Funding: 1, Price: 1}); err != nil {
		t.Fatal(err)
	}
	// Only the condition type and funding threshold are configured; the
	// sign-change toggle and the remaining close thresholds come from
	// the evaluator's defaults.
	cfg := &Config{
		Open:  OpenConditions{ConditionType: ConditionFundingOnly, MinFundingDiff: 1e-5},
		Close: CloseConditions{ConditionType: ConditionFundingOnly, MinFundingDiff: 5e-6},
		Pairs: map[string]PairLimits{
			"BTC": {MaxPositionSize: 0.5, MinVolume: 0.001, TickSize: 0.5, PricePrecision: 1},
		},
	}
	e := NewEvaluator(cfg, store, testLogger())

	// Funding diff -8e-5 against the stored +1 sign.
	snap := snapshotWith(-0.00005, 0.00003/8, 64100, 64000, 0.05)
	bp, hl := heldPair()
	if d := e.Evaluate(snap, bp, hl); d.Close == nil {
		t.Fatal("expected the default close gates to fire on a sign reversal")
	}
}

func TestCloseSignChangeGateDisabled(t *testing.T) {
	store := testStore(t)
	if err := store.Set("BTC", storage.SignRecord{Funding: 1, Price: 1}); err != nil {
		t.Fatal(err)
	}
	disabled := false
	cfg := baseConfig()
	cfg.Close.FundingDiffSignChange = &disabled
	e := NewEvaluator(cfg, store, testLogger())

	// The sign has reversed, but the gate is explicitly switched off.
	snap := snapshotWith(-0.00005, 0.00003/8, 64100, 64000, 0.05)
	bp, hl := heldPair()
	if d := e.Evaluate(snap, bp, hl); d.Close != nil {
		t.Fatal("expected no close with the sign-change gate disabled")
	}
}

func TestCloseHeldWithoutReversal(t *testing.T) {
	store := testStore(t)
	if err := store.Set("BTC", storage.SignRecord{Funding: 1, Price: 1}); err != nil {
		t.Fatal(err)
	}
	e := NewEvaluator(baseConfig(), store, testLogger())

	// Funding diff still positive: no reversal, hold the pair.
	snap := snapshotWith(0.0002, 0.00005/8, 64100, 64000, 0.05)
	bp, hl := heldPair()
	if d := e.Evaluate(snap, bp, hl); d.Close != nil {
		t.Fatal("expected no close without a sign reversal")
	}
}

func TestCloseBasisConverged(t *testing.T) {
	cfg := baseConfig()
	cfg.Close.ConditionType = ConditionPriceOnly
	cfg.Close.PriceDiffSignChange = false
	store := testStore(t)
	if err := store.Set("BTC", storage.SignRecord{Funding: 1, Price: 1}); err != nil {
		t.Fatal(err)
	}
	e := NewEvaluator(cfg, store, testLogger())

	// Basis 0.05% below min_profit 0.1%: the arb has played out.
	snap := snapshotWith(0.0002, 0.00005/8, 64032, 64000, 0.05)
	bp, hl := heldPair()
	d := e.Evaluate(snap, bp, hl)
	if d.Close == nil {
		t.Fatal("expected a basis-converged close")
	}
	if !strings.Contains(d.Close.Reason, "converged") {
		t.Errorf("Reason = %q, expected basis-converged wording", d.Close.Reason)
	}
}

func TestCloseBlockedBySlippage(t *testing.T) {
	store := testStore(t)
	if err := store.Set("BTC", storage.SignRecord{Funding: 1, Price: 1}); err != nil {
		t.Fatal(err)
	}
	e := NewEvaluator(baseConfig(), store, testLogger())

	snap := snapshotWith(-0.00005, 0.00003/8, 64100, 64000, 0.4)
	bp, hl := heldPair()
	if d := e.Evaluate(snap, bp, hl); d.Close != nil {
		t.Fatal("expected close to be held back by slippage")
	}
}

func TestCloseLazyPriceSignCapture(t *testing.T) {
	store := testStore(t)
	// Legacy record: funding sign only.
	if err := store.Set("BTC", storage.SignRecord{Funding: 1}); err != nil {
		t.Fatal(err)
	}
	cfg := baseConfig()
	cfg.Close.ConditionType = ConditionPriceOnly
	cfg.Close.PriceDiffSignChange = true
	e := NewEvaluator(cfg, store, testLogger())

	// First observation: basis positive. The sign is captured, and a
	// reversal cannot fire on the same cycle it was captured.
	snap := snapshotWith(0.0002, 0.00005/8, 64200, 64000, 0.05)
	bp, hl := heldPair()
	if d := e.Evaluate(snap, bp, hl); d.Close != nil {
		t.Fatal("capture cycle must not close")
	}
	rec, _ := store.Get("BTC")
	if rec.Price != 1 {
		t.Fatalf("captured price sign = %d, expected +1", rec.Price)
	}

	// Next cycle the basis flips past the profit threshold: close.
	snap = snapshotWith(0.0002, 0.00005/8, 63800, 64000, 0.05)
	if d := e.Evaluate(snap, bp, hl); d.Close == nil {
		t.Fatal("expected close after a real price sign reversal")
	}
}

func TestFundingDiffNormalization(t *testing.T) {
	e := NewEvaluator(baseConfig(), testStore(t), testLogger())
	diff, sign := e.FundingDiff(0.0001, 0.0003)
	if sign != -1 {
		t.Errorf("sign = %d, expected -1", sign)
	}
	if diff > -0.00019 || diff < -0.00021 {
		t.Errorf("diff = %v, expected -0.0002", diff)
	}
}

func TestLegVenues(t *testing.T) {
	long, short := LegVenues(1)
	if long != venue.Backpack || short != venue.Hyperliquid {
		t.Errorf("positive sign: long=%s short=%s", long, short)
	}
	long, short = LegVenues(-1)
	if long != venue.Hyperliquid || short != venue.Backpack {
		t.Errorf("negative sign: long=%s short=%s", long, short)
	}
}
