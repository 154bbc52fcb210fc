package engine

import (
	"context"
	"fmt"

	"crypto-trading-agent/internal/logger"
	"crypto-trading-agent/internal/types"
)

// ApplyReview folds a consultant review into a proposal. Only a modify
// decision changes anything: each override is applied field-by-field,
// unknown field names are skipped and logged, and the list of changed
// fields is returned for the audit trail. A reject does not zero out
// the proposal; it only matters through the confidence gate downstream.
func ApplyReview(ctx context.Context, proposal types.Proposal, review types.ConsultantReview) (types.Proposal, []string) {
	merged := proposal
	if review.Decision != types.ReviewModify || len(review.Modifications) == 0 {
		return merged, nil
	}

	var changed []string
	for field, value := range review.Modifications {
		switch field {
		case "side":
			if s, ok := value.(string); ok && (s == types.SideLong || s == types.SideFlat) {
				merged.Side = s
				changed = append(changed, field)
			}
		case "confidence":
			if f, ok := value.(float64); ok {
				merged.Confidence = clamp(int(f), 0, 100)
				changed = append(changed, field)
			}
		case "entry":
			if s, ok := value.(string); ok && s != "" {
				merged.Entry = s
				changed = append(changed, field)
			}
		case "stop":
			if m, ok := value.(map[string]any); ok {
				if t, ok := m["type"].(string); ok && t != "" {
					merged.Stop.Type = t
				}
				if mult, ok := m["multiplier"].(float64); ok && mult > 0 {
					merged.Stop.Multiplier = mult
				}
				changed = append(changed, field)
			}
		case "take_profit":
			if m, ok := value.(map[string]any); ok {
				if rr, ok := m["rr"].(float64); ok && rr > 0 {
					merged.TakeProfit.RR = rr
					changed = append(changed, field)
				}
			}
		case "max_hold_bars":
			if f, ok := value.(float64); ok && f > 0 {
				merged.MaxHoldBars = int(f)
				changed = append(changed, field)
			}
		default:
			logger.Warn(ctx, "unknown modification field skipped",
				"field", field, "value", fmt.Sprintf("%v", value))
		}
	}
	return merged, changed
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
