// Package notify posts order notifications to an optional webhook.
// Delivery is best effort; failures are logged and never block trading.
package notify

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"time"
)

// Notifier receives order events after a pair is opened or closed.
type Notifier interface {
	NotifyOrder(symbol, action string, quantity, price float64, side, venueName string)
}

// Webhook posts order events as JSON to a configured URL.
type Webhook struct {
	url    string
	client *http.Client
	logger *log.Logger
}

// Ensure Webhook implements Notifier at compile time.
var _ Notifier = (*Webhook)(nil)

// NewWebhook builds a webhook notifier. An empty URL returns nil so
// callers can keep a plain nil check.
func NewWebhook(url string, logger *log.Logger) *Webhook {
	if url == "" {
		return nil
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
		logger: logger,
	}
}

type orderEvent struct {
	Symbol   string  `json:"symbol"`
	Action   string  `json:"action"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
	Side     string  `json:"side"`
	Venue    string  `json:"venue"`
	Time     string  `json:"time"`
}

// NotifyOrder posts one order event. Errors are logged, not returned.
func (w *Webhook) NotifyOrder(symbol, action string, quantity, price float64, side, venueName string) {
	event := orderEvent{
		Symbol:   symbol,
		Action:   action,
		Quantity: quantity,
		Price:    price,
		Side:     side,
		Venue:    venueName,
		Time:     time.Now().UTC().Format(time.RFC3339),
	}
	body, err := json.Marshal(event)
	if err != nil {
		w.logger.Printf("notify: marshaling event: %v", err)
		return
	}
	resp, err := w.client.Post(w.url, "application/json", bytes.NewReader(body))
	if err != nil {
		w.logger.Printf("notify: posting %s %s: %v", action, symbol, err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		w.logger.Printf("notify: webhook returned %d for %s %s", resp.StatusCode, action, symbol)
	}
}
