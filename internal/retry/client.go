// Package retry flattens orphaned legs with bounded, jittered retries.
// It is used only on the unwind path, where giving up means carrying
// naked exposure into the next cycle.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/eddiefleurent/stamford_arb/internal/venue"
)

type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration
}

var DefaultConfig = Config{
	MaxRetries:     3,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     30 * time.Second,
	Timeout:        2 * time.Minute,
}

// Client wraps a venue adapter with the retry discipline.
type Client struct {
	adapter venue.Adapter
	logger  *log.Logger
	config  Config
}

func NewClient(adapter venue.Adapter, logger *log.Logger, config ...Config) *Client {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		adapter: adapter,
		logger:  logger,
		config:  cfg,
	}
}

// FlattenWithRetry removes the position in symbol, preferring the
// venue's native close endpoint and falling back to an opposite-side
// market order sized to the position. Transient errors are retried
// with growing jittered backoff.
func (c *Client) FlattenWithRetry(ctx context.Context, symbol string, pos venue.Position) (*venue.OrderResult, error) {
	flattenCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var lastErr error
	backoff := c.config.InitialBackoff

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		select {
		case <-flattenCtx.Done():
			return nil, fmt.Errorf("flatten timed out after %v: %w", c.config.Timeout, flattenCtx.Err())
		default:
		}

		if ctx.Err() != nil {
			return nil, fmt.Errorf("operation canceled: %w", ctx.Err())
		}

		c.logger.Printf("Flatten attempt %d/%d for %s on %s",
			attempt+1, c.config.MaxRetries+1, symbol, c.adapter.Name())

		result, err := c.flattenOnce(flattenCtx, symbol, pos)
		if err == nil && result.Ok() {
			c.logger.Printf("Flatten order placed on attempt %d", attempt+1)
			return result, nil
		}
		if err == nil {
			err = fmt.Errorf("flatten order rejected: %s", result.Reason)
		}

		lastErr = err
		c.logger.Printf("Flatten attempt %d failed: %v", attempt+1, err)

		if c.isTransientError(err) && attempt < c.config.MaxRetries {
			c.logger.Printf("Transient error detected, retrying in %v", backoff)
			select {
			case <-time.After(backoff):
				backoff = c.calculateNextBackoff(backoff)
			case <-flattenCtx.Done():
				return nil, fmt.Errorf("flatten timed out during backoff: %w", flattenCtx.Err())
			case <-ctx.Done():
				return nil, fmt.Errorf("operation canceled during backoff: %w", ctx.Err())
			}
		} else {
			break
		}
	}

	return nil, fmt.Errorf("failed to flatten %s after %d attempts: %w",
		symbol, c.config.MaxRetries+1, lastErr)
}

func (c *Client) flattenOnce(ctx context.Context, symbol string, pos venue.Position) (*venue.OrderResult, error) {
	if closer, ok := c.adapter.(venue.PositionCloser); ok {
		result, err := closer.ClosePosition(ctx, symbol)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, venue.ErrCloseUnsupported) {
			return nil, err
		}
	}
	size := pos.Size
	if size < 0 {
		size = -size
	}
	if size == 0 {
		return nil, fmt.Errorf("no position size to flatten for %s", symbol)
	}
	return c.adapter.PlaceOrder(ctx, venue.OrderRequest{
		Symbol:     symbol,
		Side:       pos.Side().Opposite(),
		Type:       venue.Market,
		Size:       size,
		ReduceOnly: true,
	})
}

func (c *Client) calculateNextBackoff(currentBackoff time.Duration) time.Duration {
	backoff := time.Duration(float64(currentBackoff) * 1.5)
	if backoff > c.config.MaxBackoff {
		backoff = c.config.MaxBackoff
	}

	maxJitter := int64(backoff / 4)
	if maxJitter > 0 {
		jitterVal, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
		if err != nil {
			log.Printf("Failed to generate jitter: %v", err)
		} else {
			jitter := time.Duration(jitterVal.Int64())
			backoff += jitter
		}
	}

	return backoff
}

func (c *Client) isTransientError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	transientPatterns := []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"server error",
		"rate limit",
		"429", // HTTP 429 Too Many Requests
		"502", // HTTP 502 Bad Gateway
		"503", // HTTP 503 Service Unavailable
		"504", // HTTP 504 Gateway Timeout
		"network",
		"dns",
		"tcp",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
