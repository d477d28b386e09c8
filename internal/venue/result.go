package venue

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ResultKind classifies what a venue said about an order.
type ResultKind string

const (
	// ResultFilled means the venue confirmed an immediate fill.
	ResultFilled ResultKind = "filled"
	// ResultAccepted means the order was accepted but not confirmed filled.
	ResultAccepted ResultKind = "accepted"
	// ResultRejected means the venue refused the order.
	ResultRejected ResultKind = "rejected"
	// ResultUnknown means the response could not be classified.
	ResultUnknown ResultKind = "unknown"
)

// OrderResult is the normalized outcome of an order placement. It is
// advisory only: executors confirm legs through position diffs, never
// through this value alone.
type OrderResult struct {
	Kind     ResultKind
	OrderID  string
	AvgPrice float64
	Reason   string          // populated for rejections
	Raw      json.RawMessage // original payload for unknown shapes
}

// Ok reports whether the venue did not refuse the order outright.
func (r *OrderResult) Ok() bool {
	return r != nil && r.Kind != ResultRejected
}

// Filled reports a confirmed fill.
func (r *OrderResult) Filled() bool {
	return r != nil && r.Kind == ResultFilled
}

// ParseResult normalizes a raw venue order response. Hyperliquid in
// particular reports success in several shapes: a top-level
// success/status field, a nested statuses list with a "filled" entry
// carrying oid and avgPx, or an error string. Anything else comes back
// as ResultUnknown with the payload attached.
func ParseResult(raw []byte) *OrderResult {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return &OrderResult{Kind: ResultUnknown, Raw: append([]byte(nil), raw...)}
	}
	return classify(payload, raw)
}

func classify(payload map[string]any, raw []byte) *OrderResult {
	if v, ok := payload["success"].(bool); ok && v {
		res := &OrderResult{Kind: ResultAccepted}
		if fill := findFill(payload); fill != nil {
			res.Kind = ResultFilled
			res.OrderID = fill.OrderID
			res.AvgPrice = fill.AvgPrice
		}
		if id, ok := payload["order_id"].(string); ok && res.OrderID == "" {
			res.OrderID = id
		}
		return res
	}

	if status, ok := payload["status"].(string); ok {
		switch strings.ToLower(status) {
		case "filled":
			res := &OrderResult{Kind: ResultFilled}
			if fill := findFill(payload); fill != nil {
				res.OrderID = fill.OrderID
				res.AvgPrice = fill.AvgPrice
			}
			return res
		case "ok", "accepted", "new", "open":
			res := &OrderResult{Kind: ResultAccepted}
			if fill := findFill(payload); fill != nil {
				res.Kind = ResultFilled
				res.OrderID = fill.OrderID
				res.AvgPrice = fill.AvgPrice
			}
			return res
		case "err", "error", "rejected":
			return &OrderResult{Kind: ResultRejected, Reason: errorText(payload)}
		}
	}

	if reason := errorText(payload); reason != "" {
		return &OrderResult{Kind: ResultRejected, Reason: reason}
	}

	// Last resort: a "filled" entry buried anywhere in the payload
	// still counts as a fill.
	if fill := findFill(payload); fill != nil {
		return &OrderResult{Kind: ResultFilled, OrderID: fill.OrderID, AvgPrice: fill.AvgPrice}
	}

	return &OrderResult{Kind: ResultUnknown, Raw: append([]byte(nil), raw...)}
}

type fillInfo struct {
	OrderID  string
	AvgPrice float64
}

// findFill walks the decoded payload looking for a "filled" object of
// the Hyperliquid shape {"filled": {"oid": 123, "avgPx": "64000.5"}}.
func findFill(v any) *fillInfo {
	switch node := v.(type) {
	case map[string]any:
		if f, ok := node["filled"].(map[string]any); ok {
			info := &fillInfo{}
			switch oid := f["oid"].(type) {
			case float64:
				info.OrderID = strconv.FormatFloat(oid, 'f', -1, 64)
			case string:
				info.OrderID = oid
			}
			switch px := f["avgPx"].(type) {
			case float64:
				info.AvgPrice = px
			case string:
				info.AvgPrice = parseFloat(px)
			}
			return info
		}
		for _, child := range node {
			if info := findFill(child); info != nil {
				return info
			}
		}
	case []any:
		for _, child := range node {
			if info := findFill(child); info != nil {
				return info
			}
		}
	}
	return nil
}

func errorText(payload map[string]any) string {
	for _, key := range []string{"error", "err", "reason", "message"} {
		if s, ok := payload[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
