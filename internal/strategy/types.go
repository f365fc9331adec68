// Package strategy implements the investment engines: dollar-cost averaging,
// dividend reinvestment, rebalancing, dip buying and option hedges. All of
// them size trades from fresh account state and submit through the shared
// order executor.
package strategy

import (
	"fmt"

	"schwab-invest-bot/internal/schwab"
)

// Status is the outcome of one attempted order.
type Status string

const (
	StatusSuccess Status = "success"
	StatusDryRun  Status = "dry_run"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// OrderResult is the per-symbol outcome every engine returns and the unit the
// audit log records.
type OrderResult struct {
	Symbol        string        `json:"symbol"`
	Status        Status        `json:"status"`
	Action        schwab.Action `json:"action,omitempty"`
	Shares        int64         `json:"shares,omitempty"`
	Price         float64       `json:"price,omitempty"`
	Amount        float64       `json:"amount,omitempty"`
	OrderID       string        `json:"order_id,omitempty"`
	ClientOrderID string        `json:"client_order_id,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	Error         string        `json:"error,omitempty"`
	Dip           float64       `json:"dip,omitempty"`
}

// RebalanceAction is one deviation large enough to trade on. Transient,
// recomputed every rebalance call.
type RebalanceAction struct {
	Symbol    string        `json:"symbol"`
	Current   float64       `json:"current_allocation"`
	Target    float64       `json:"target_allocation"`
	Deviation float64       `json:"deviation"`
	Action    schwab.Action `json:"action"`
}

// PriceError reports a non-tradable quote. Strategies skip the symbol and
// continue the loop.
type PriceError struct {
	Symbol string
	Price  float64
}

func (e *PriceError) Error() string {
	return fmt.Sprintf("invalid price %.4f for %s", e.Price, e.Symbol)
}
