package util

import "strings"

// BackpackSymbol converts a base symbol to Backpack's perp naming,
// e.g. "BTC" -> "BTC_USDC_PERP". Already-qualified symbols pass through.
func BackpackSymbol(base string) string {
	if strings.Contains(base, "_") {
		return base
	}
	return base + "_USDC_PERP"
}

// HyperliquidSymbol converts a base symbol to Hyperliquid's naming.
// Hyperliquid uses the bare coin name, so this is the identity for
// base symbols and strips a Backpack-style suffix otherwise.
func HyperliquidSymbol(base string) string {
	if i := strings.Index(base, "_"); i > 0 {
		return base[:i]
	}
	return base
}

// BaseSymbol returns the venue-neutral symbol for either venue's form.
func BaseSymbol(s string) string {
	if i := strings.Index(s, "_"); i > 0 {
		return s[:i]
	}
	return s
}
