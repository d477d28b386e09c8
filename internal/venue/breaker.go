package venue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sony/gobreaker"
)

// CircuitBreakerAdapter wraps an Adapter with circuit breaker functionality
// so one venue's outage cannot stall the trading cycle with slow failures.
type CircuitBreakerAdapter struct {
	adapter Adapter
	breaker *gobreaker.CircuitBreaker
}

// CircuitBreakerSettings configures circuit breaker behavior.
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// exec is a generic helper for circuit breaker wrapper methods.
func execCircuitBreaker[T any](
	breaker *gobreaker.CircuitBreaker,
	adapter Adapter,
	fn func(Adapter) (T, error),
) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn(adapter) })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// NewCircuitBreakerAdapter creates a CircuitBreakerAdapter with sensible defaults.
func NewCircuitBreakerAdapter(adapter Adapter, logger *log.Logger) *CircuitBreakerAdapter {
	return NewCircuitBreakerAdapterWithSettings(adapter, logger, CircuitBreakerSettings{
		MaxRequests:  3,                // Allow 3 requests when half-open
		Interval:     60 * time.Second, // Reset counts every minute
		Timeout:      30 * time.Second, // Open circuit for 30 seconds
		MinRequests:  5,                // Minimum requests before tripping
		FailureRatio: 0.6,              // Trip if 60% failure rate
	})
}

// NewCircuitBreakerAdapterWithSettings creates a CircuitBreakerAdapter with custom settings.
func NewCircuitBreakerAdapterWithSettings(adapter Adapter, logger *log.Logger, settings CircuitBreakerSettings) *CircuitBreakerAdapter {
	if logger == nil {
		logger = log.Default()
	}
	gbSettings := gobreaker.Settings{
		Name:        adapter.Name() + "CircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Printf("Circuit breaker %s state changed from %s to %s", name, from, to)
		},
	}

	return &CircuitBreakerAdapter{
		adapter: adapter,
		breaker: gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// Ensure CircuitBreakerAdapter implements Adapter at compile time.
var _ Adapter = (*CircuitBreakerAdapter)(nil)

// Name returns the wrapped venue's name.
func (c *CircuitBreakerAdapter) Name() string { return c.adapter.Name() }

// Positions wraps the underlying venue call with circuit breaker.
func (c *CircuitBreakerAdapter) Positions(ctx context.Context) (map[string]Position, error) {
	return execCircuitBreaker(c.breaker, c.adapter, func(a Adapter) (map[string]Position, error) {
		return a.Positions(ctx)
	})
}

// Price wraps the underlying venue call with circuit breaker.
func (c *CircuitBreakerAdapter) Price(ctx context.Context, symbol string) (float64, error) {
	return execCircuitBreaker(c.breaker, c.adapter, func(a Adapter) (float64, error) {
		return a.Price(ctx, symbol)
	})
}

// FundingRate wraps the underlying venue call with circuit breaker.
func (c *CircuitBreakerAdapter) FundingRate(ctx context.Context, symbol string) (float64, error) {
	return execCircuitBreaker(c.breaker, c.adapter, func(a Adapter) (float64, error) {
		return a.FundingRate(ctx, symbol)
	})
}

// OrderBook wraps the underlying venue call with circuit breaker.
func (c *CircuitBreakerAdapter) OrderBook(ctx context.Context, symbol string) (*OrderBook, error) {
	return execCircuitBreaker(c.breaker, c.adapter, func(a Adapter) (*OrderBook, error) {
		return a.OrderBook(ctx, symbol)
	})
}

// PlaceOrder wraps the underlying venue call with circuit breaker.
func (c *CircuitBreakerAdapter) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	return execCircuitBreaker(c.breaker, c.adapter, func(a Adapter) (*OrderResult, error) {
		return a.PlaceOrder(ctx, req)
	})
}

// ClosePosition wraps the venue's native close endpoint when it has one.
func (c *CircuitBreakerAdapter) ClosePosition(ctx context.Context, symbol string) (*OrderResult, error) {
	closer, ok := c.adapter.(PositionCloser)
	if !ok {
		return nil, fmt.Errorf("%s: %w", c.adapter.Name(), ErrCloseUnsupported)
	}
	return execCircuitBreaker(c.breaker, c.adapter, func(Adapter) (*OrderResult, error) {
		return closer.ClosePosition(ctx, symbol)
	})
}
