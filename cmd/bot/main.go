// Command bot runs the cross-venue funding-rate arbitrage loop against
// Backpack and Hyperliquid.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/stamford_arb/internal/config"
	"github.com/eddiefleurent/stamford_arb/internal/dashboard"
	"github.com/eddiefleurent/stamford_arb/internal/market"
	"github.com/eddiefleurent/stamford_arb/internal/notify"
	"github.com/eddiefleurent/stamford_arb/internal/orders"
	"github.com/eddiefleurent/stamford_arb/internal/slippage"
	"github.com/eddiefleurent/stamford_arb/internal/storage"
	"github.com/eddiefleurent/stamford_arb/internal/strategy"
	"github.com/eddiefleurent/stamford_arb/internal/util"
	"github.com/eddiefleurent/stamford_arb/internal/venue"
)

type Bot struct {
	config         *config.Config
	logger         *log.Logger
	backpack       venue.Adapter
	hyper          venue.Adapter
	signs          *storage.SignStore
	market         market.Provider
	analyzer       *slippage.Analyzer
	evaluator      *strategy.Evaluator
	executor       *orders.Executor
	dashboard      *dashboard.Server
	fundingPeriods float64
	stop           chan struct{}

	mu        sync.Mutex
	startedAt time.Time
	cycles    int64
	lastCycle time.Time
	lastError string
	opened    int64
	closed    int64
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := log.New(os.Stdout, "[BOT] ", log.LstdFlags)

	logger.Printf("Starting funding arbitrage bot in %s mode", cfg.Environment.Mode)
	if cfg.IsPaperTrading() {
		logger.Println("PAPER TRADING MODE - No real money at risk")
	} else {
		logger.Println("LIVE TRADING MODE - Real money at risk!")
		logger.Println("Waiting 10 seconds to confirm...")
		time.Sleep(10 * time.Second)
	}

	bot, err := newBot(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize bot: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Println("Shutdown signal received, stopping bot...")
		close(bot.stop)
		cancel()
	}()

	if err := bot.Run(ctx); err != nil {
		logger.Fatalf("Bot error: %v", err)
	}

	logger.Println("Bot stopped successfully")
}

func newBot(cfg *config.Config, logger *log.Logger) (*Bot, error) {
	backpack, hyper, err := buildVenues(cfg, logger)
	if err != nil {
		return nil, err
	}
	return assembleBot(cfg, logger, backpack, hyper)
}

// assembleBot wires every component around a pair of venue adapters.
func assembleBot(cfg *config.Config, logger *log.Logger, backpack, hyper venue.Adapter) (*Bot, error) {
	signs, err := storage.NewSignStore(cfg.Storage.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing sign store: %w", err)
	}

	bot := &Bot{
		config:         cfg,
		logger:         logger,
		backpack:       backpack,
		hyper:          hyper,
		signs:          signs,
		fundingPeriods: 8,
		stop:           make(chan struct{}),
		startedAt:      time.Now(),
	}

	// A snapshot older than two cycles is not worth trading on.
	bot.market = market.NewManager(backpack, hyper, 2*cfg.GetCheckInterval(), logger)

	bot.analyzer = slippage.NewAnalyzer(slippage.Config{
		Depth:      cfg.Slippage.DepthLevels,
		MinPct:     cfg.Slippage.MinSlippagePercent,
		MaxPct:     cfg.Slippage.MaxSlippagePercent,
		DefaultPct: cfg.Slippage.DefaultSlippagePercent,
	}, logger)

	pairs := pairLimitsOf(cfg)
	bot.evaluator = strategy.NewEvaluator(&strategy.Config{
		MaxPositionsCount: cfg.Strategy.MaxPositionsCount,
		FundingPeriods:    bot.fundingPeriods,
		Open: strategy.OpenConditions{
			ConditionType:             strategy.ConditionType(cfg.Strategy.OpenConditions.ConditionType),
			MinFundingDiff:            cfg.Strategy.OpenConditions.MinFundingDiff,
			MinPriceDiffPercent:       cfg.Strategy.OpenConditions.MinPriceDiffPercent,
			MaxPriceDiffPercent:       cfg.Strategy.OpenConditions.MaxPriceDiffPercent,
			MaxSlippagePercent:        cfg.Strategy.OpenConditions.MaxSlippagePercent,
			IgnoreHighSlippage:        cfg.Strategy.OpenConditions.IgnoreHighSlippage,
			CheckDirectionConsistency: cfg.Strategy.OpenConditions.CheckDirectionConsistency,
		},
		Close: strategy.CloseConditions{
			ConditionType:             strategy.ConditionType(cfg.Strategy.CloseConditions.ConditionType),
			FundingDiffSignChange:     cfg.Strategy.CloseConditions.FundingDiffSignChange,
			PriceDiffSignChange:       cfg.Strategy.CloseConditions.PriceDiffSignChange,
			MinFundingDiff:            cfg.Strategy.CloseConditions.MinFundingDiff,
			MinProfitPercent:          cfg.Strategy.CloseConditions.MinProfitPercent,
			MaxLossPercent:            cfg.Strategy.CloseConditions.MaxLossPercent,
			MaxCloseSlippagePercent:   cfg.Strategy.CloseConditions.MaxCloseSlippagePercent,
			IgnoreCloseSlippage:       cfg.Strategy.CloseConditions.IgnoreCloseSlippage,
			CheckDirectionConsistency: cfg.Strategy.CloseConditions.CheckDirectionConsistency,
		},
		Pairs:        pairs,
		TradeSizeUSD: cfg.Strategy.TradeSizeUSD,
	}, signs, logger)

	var notifier notify.Notifier
	if wh := notify.NewWebhook(cfg.Notification.OrderWebhookURL, logger); wh != nil {
		notifier = wh
	}

	bot.executor = orders.NewExecutor(backpack, hyper, signs, notifier, logger, orders.Config{
		SettleDelay:     cfg.GetSettleDelay(),
		OpenFillRatio:   cfg.Execution.OpenFillRatio,
		CloseFillRatio:  cfg.Execution.CloseFillRatio,
		LimitAggression: cfg.Execution.LimitPriceAggression,
		Pairs:           pairs,
	})

	if cfg.Dashboard.Enabled {
		dashLogger := logrus.New()
		if level, err := logrus.ParseLevel(cfg.Environment.LogLevel); err == nil {
			dashLogger.SetLevel(level)
		}
		bot.dashboard = dashboard.NewServer(
			dashboard.Config{Port: cfg.Dashboard.Port, AuthToken: cfg.Dashboard.AuthToken},
			backpack, hyper, signs, bot.status, dashLogger,
		)
	}

	return bot, nil
}

// buildVenues constructs both venue adapters, wrapped with circuit
// breaking and rate limiting. Live REST clients are deployed
// separately; this build only ships the paper venue.
func buildVenues(cfg *config.Config, logger *log.Logger) (venue.Adapter, venue.Adapter, error) {
	if !cfg.IsPaperTrading() {
		return nil, nil, errors.New("live venue clients are not bundled in this build; use paper mode")
	}

	bp := venue.NewPaperVenue(venue.Backpack, true)
	hl := venue.NewPaperVenue(venue.Hyperliquid, false)
	seedPaperVenue(bp, cfg.Venues.Backpack.Paper, util.BackpackSymbol)
	seedPaperVenue(hl, cfg.Venues.Hyperliquid.Paper, util.HyperliquidSymbol)

	backpack := wrapAdapter(bp, cfg.Venues.Backpack.RateLimitPerSec, logger)
	hyper := wrapAdapter(hl, cfg.Venues.Hyperliquid.RateLimitPerSec, logger)
	return backpack, hyper, nil
}

func seedPaperVenue(pv *venue.PaperVenue, seed config.PaperSeed, symbolFor func(string) string) {
	for symbol, mark := range seed.Marks {
		pv.SetMark(symbolFor(symbol), mark)
	}
	for symbol, funding := range seed.Fundings {
		pv.SetFunding(symbolFor(symbol), funding)
	}
}

func wrapAdapter(a venue.Adapter, rps float64, logger *log.Logger) venue.Adapter {
	return venue.NewRateLimitedAdapter(venue.NewCircuitBreakerAdapter(a, logger), rps)
}

func pairLimitsOf(cfg *config.Config) map[string]strategy.PairLimits {
	pairs := make(map[string]strategy.PairLimits, len(cfg.Strategy.TradingPairs))
	for _, p := range cfg.Strategy.TradingPairs {
		pairs[p.Symbol] = strategy.PairLimits{
			MaxPositionSize: p.MaxPositionSize,
			MinVolume:       p.MinVolume,
			TickSize:        p.TickSize,
			PricePrecision:  p.PricePrecision,
		}
	}
	return pairs
}

func (b *Bot) Run(ctx context.Context) error {
	b.logger.Println("Bot starting main loop...")

	if b.dashboard != nil {
		go func() {
			if err := b.dashboard.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				b.logger.Printf("Dashboard server error: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := b.dashboard.Shutdown(shutdownCtx); err != nil {
				b.logger.Printf("Dashboard shutdown error: %v", err)
			}
		}()
	}

	ticker := time.NewTicker(b.config.GetCheckInterval())
	defer ticker.Stop()

	cycle := NewCycle(b)

	// Run immediately on start
	b.runOnce(ctx, cycle)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-b.stop:
			return nil
		case <-ticker.C:
			b.runOnce(ctx, cycle)
		}
	}
}

func (b *Bot) runOnce(ctx context.Context, cycle *Cycle) {
	err := cycle.Run(ctx)
	b.recordCycle(err)
	if err != nil && ctx.Err() == nil {
		b.logger.Printf("Cycle error: %v", err)
		time.Sleep(b.config.GetErrorBackoff())
	}
}

func (b *Bot) recordCycle(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cycles++
	b.lastCycle = time.Now()
	if err != nil {
		b.lastError = err.Error()
	} else {
		b.lastError = ""
	}
}

func (b *Bot) recordOpen() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opened++
}

func (b *Bot) recordClose() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed++
}

func (b *Bot) status() dashboard.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return dashboard.Status{
		Mode:            b.config.Environment.Mode,
		StartedAt:       b.startedAt,
		CyclesCompleted: b.cycles,
		LastCycleAt:     b.lastCycle,
		LastError:       b.lastError,
		PairsOpened:     b.opened,
		PairsClosed:     b.closed,
		Symbols:         b.config.Symbols(),
	}
}
