package notify

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWebhookNotifyOrder(t *testing.T) {
	received := make(chan orderEvent, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev orderEvent
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			t.Errorf("decoding event: %v", err)
		}
		received <- ev
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, log.New(io.Discard, "", 0))
	wh.NotifyOrder("BTC", "open", 0.5, 64100, "short", "backpack")

	ev := <-received
	if ev.Symbol != "BTC" || ev.Action != "open" || ev.Quantity != 0.5 || ev.Venue != "backpack" {
		t.Errorf("event = %+v", ev)
	}
	if ev.Time == "" {
		t.Error("event should carry a timestamp")
	}
}

func TestWebhookServerErrorIsSwallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, log.New(io.Discard, "", 0))
	// Must not panic or block.
	wh.NotifyOrder("ETH", "close", 1, 3000, "long", "hyperliquid")
}

func TestNewWebhookEmptyURL(t *testing.T) {
	if NewWebhook("", nil) != nil {
		t.Error("empty URL should produce a nil notifier")
	}
}
