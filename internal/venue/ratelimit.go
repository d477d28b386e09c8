package venue

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitedAdapter throttles all calls to a venue with a shared
// token bucket, keeping the bot inside the venue's request budget.
type RateLimitedAdapter struct {
	adapter Adapter
	limiter *rate.Limiter
}

// Ensure RateLimitedAdapter implements Adapter at compile time.
var _ Adapter = (*RateLimitedAdapter)(nil)

// NewRateLimitedAdapter wraps adapter with a limiter of rps requests
// per second and a burst of the same size. rps <= 0 disables limiting.
func NewRateLimitedAdapter(adapter Adapter, rps float64) *RateLimitedAdapter {
	limit := rate.Inf
	burst := 1
	if rps > 0 {
		limit = rate.Limit(rps)
		burst = int(rps)
		if burst < 1 {
			burst = 1
		}
	}
	return &RateLimitedAdapter{
		adapter: adapter,
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (r *RateLimitedAdapter) wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Name returns the wrapped venue's name.
func (r *RateLimitedAdapter) Name() string { return r.adapter.Name() }

// Positions waits for a rate token then delegates.
func (r *RateLimitedAdapter) Positions(ctx context.Context) (map[string]Position, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.adapter.Positions(ctx)
}

// Price waits for a rate token then delegates.
func (r *RateLimitedAdapter) Price(ctx context.Context, symbol string) (float64, error) {
	if err := r.wait(ctx); err != nil {
		return 0, err
	}
	return r.adapter.Price(ctx, symbol)
}

// FundingRate waits for a rate token then delegates.
func (r *RateLimitedAdapter) FundingRate(ctx context.Context, symbol string) (float64, error) {
	if err := r.wait(ctx); err != nil {
		return 0, err
	}
	return r.adapter.FundingRate(ctx, symbol)
}

// OrderBook waits for a rate token then delegates.
func (r *RateLimitedAdapter) OrderBook(ctx context.Context, symbol string) (*OrderBook, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.adapter.OrderBook(ctx, symbol)
}

// PlaceOrder waits for a rate token then delegates.
func (r *RateLimitedAdapter) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.adapter.PlaceOrder(ctx, req)
}

// ClosePosition waits for a rate token then delegates to the venue's
// native close endpoint when it has one.
func (r *RateLimitedAdapter) ClosePosition(ctx context.Context, symbol string) (*OrderResult, error) {
	closer, ok := r.adapter.(PositionCloser)
	if !ok {
		return nil, ErrCloseUnsupported
	}
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return closer.ClosePosition(ctx, symbol)
}
