package database

import "time"

// OrderRecord is a persisted order submission attempt.
type OrderRecord struct {
	ID            int64     `json:"id"`
	ClientOrderID string    `json:"client_order_id"`
	BrokerOrderID *string   `json:"broker_order_id,omitempty"`
	Symbol        string    `json:"symbol"`
	Side          string    `json:"side"`
	OrderType     string    `json:"order_type"`
	AssetType     string    `json:"asset_type"`
	Quantity      int64     `json:"quantity"`
	Price         *float64  `json:"price,omitempty"`
	Amount        *float64  `json:"amount,omitempty"`
	Strategy      string    `json:"strategy"`
	Status        string    `json:"status"`
	DryRun        bool      `json:"dry_run"`
	Reason        *string   `json:"reason,omitempty"`
	PlacedAt      time.Time `json:"placed_at"`
	CreatedAt     time.Time `json:"created_at"`
}

// StrategyRun summarizes one execution of a strategy.
type StrategyRun struct {
	ID            int64     `json:"id"`
	Strategy      string    `json:"strategy"`
	TriggerSource string    `json:"trigger_source"`
	DryRun        bool      `json:"dry_run"`
	OrdersPlaced  int       `json:"orders_placed"`
	OrdersSkipped int       `json:"orders_skipped"`
	OrdersFailed  int       `json:"orders_failed"`
	TotalAmount   float64   `json:"total_amount"`
	Error         *string   `json:"error,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	CreatedAt     time.Time `json:"created_at"`
}

// PortfolioSnapshot is a point-in-time capture of account value.
type PortfolioSnapshot struct {
	ID          int64     `json:"id"`
	TotalValue  float64   `json:"total_value"`
	CashBalance float64   `json:"cash_balance"`
	Positions   []byte    `json:"positions"`
	TakenAt     time.Time `json:"taken_at"`
	CreatedAt   time.Time `json:"created_at"`
}
