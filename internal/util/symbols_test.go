package util

import "testing"

func TestBackpackSymbol(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"BTC", "BTC_USDC_PERP"},
		{"ETH", "ETH_USDC_PERP"},
		{"BTC_USDC_PERP", "BTC_USDC_PERP"},
	}
	for _, tt := range tests {
		if got := BackpackSymbol(tt.in); got != tt.expected {
			t.Errorf("BackpackSymbol(%q) = %q, expected %q", tt.in, got, tt.expected)
		}
	}
}

func TestHyperliquidSymbol(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"BTC", "BTC"},
		{"BTC_USDC_PERP", "BTC"},
		{"SOL", "SOL"},
	}
	for _, tt := range tests {
		if got := HyperliquidSymbol(tt.in); got != tt.expected {
			t.Errorf("HyperliquidSymbol(%q) = %q, expected %q", tt.in, got, tt.expected)
		}
	}
}

func TestBaseSymbol(t *testing.T) {
	if got := BaseSymbol("ETH_USDC_PERP"); got != "ETH" {
		t.Errorf("BaseSymbol(ETH_USDC_PERP) = %q, expected ETH", got)
	}
	if got := BaseSymbol("ETH"); got != "ETH" {
		t.Errorf("BaseSymbol(ETH) = %q, expected ETH", got)
	}
}
