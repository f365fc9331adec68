package schwab

import "fmt"

// Action is the side of an order.
type Action string

const (
	Buy  Action = "buy"
	Sell Action = "sell"
)

// Balances is a point-in-time account balance snapshot. Always refetched
// before a trading decision, never cached across strategy runs.
type Balances struct {
	LiquidationValue float64 `json:"liquidation_value"`
	CashAvailable    float64 `json:"cash_available"`
	BuyingPower      float64 `json:"buying_power"`
	MarketValue      float64 `json:"market_value"`
}

// Position is a single holding in the account.
type Position struct {
	Symbol       string  `json:"symbol"`
	Quantity     float64 `json:"quantity"`
	AveragePrice float64 `json:"avg_price"`
	MarketValue  float64 `json:"market_value"`
	AssetType    string  `json:"asset_type"` // EQUITY, OPTION, COLLECTIVE_INVESTMENT, ...
}

// Quote is the market data a strategy needs for one symbol. OpenPrice and
// Week52High are pointers because the feed can omit them; a missing value must
// not read as a real zero price.
type Quote struct {
	Symbol     string   `json:"symbol"`
	LastPrice  float64  `json:"last_price"`
	OpenPrice  *float64 `json:"open_price,omitempty"`
	Week52High *float64 `json:"week_52_high,omitempty"`
}

// OptionContract is one contract inside an option chain.
type OptionContract struct {
	Symbol      string  `json:"symbol"`
	Description string  `json:"description"`
	Bid         float64 `json:"bid"`
	Ask         float64 `json:"ask"`
	Strike      float64 `json:"strike"`
}

// OptionChain holds contracts keyed by expiration date, then by strike price
// string, mirroring the brokerage chain layout.
type OptionChain struct {
	Symbol       string                                 `json:"symbol"`
	ContractType string                                 `json:"contract_type"` // CALL or PUT
	ExpDateMap   map[string]map[string][]OptionContract `json:"exp_date_map"`
}

// OrderSpec describes an order to submit.
type OrderSpec struct {
	Symbol        string   `json:"symbol"`
	Action        Action   `json:"action"`
	Quantity      int64    `json:"quantity"`
	OrderType     string   `json:"order_type"` // MARKET, LIMIT, NET_CREDIT, NET_DEBIT
	LimitPrice    *float64 `json:"limit_price,omitempty"`
	AssetType     string   `json:"asset_type"` // EQUITY or OPTION
	ClientOrderID string   `json:"client_order_id,omitempty"`
}

// OrderResponse is the brokerage acknowledgement of a submitted order.
type OrderResponse struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// Order is a previously submitted order as reported by the brokerage.
type Order struct {
	OrderID     string  `json:"order_id"`
	Symbol      string  `json:"symbol"`
	Status      string  `json:"status"`
	Quantity    float64 `json:"quantity"`
	FilledQty   float64 `json:"filled_qty"`
	Price       float64 `json:"price"`
	EnteredTime string  `json:"entered_time"`
}

// GatewayError wraps any transport, auth or brokerage-side failure. Strategy
// loops catch it per symbol; callers outside a loop propagate it.
type GatewayError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("gateway %s failed with status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("gateway %s failed: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

func gwErr(op string, status int, err error) *GatewayError {
	return &GatewayError{Op: op, StatusCode: status, Err: err}
}
