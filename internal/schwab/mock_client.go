package schwab

import (
	"context"
	"fmt"
	"strconv"
	"sync"
)

// MockClient provides simulated brokerage data for development and testing.
// All state is settable, so tests drive exact scenarios; the defaults give a
// small realistic account for mock-mode runs.
type MockClient struct {
	mu        sync.RWMutex
	quotes    map[string]*Quote
	balances  Balances
	positions []Position
	orders    []Order

	placed      []OrderSpec
	nextOrderID int64

	// Error injection
	quoteErrors map[string]error
	balanceErr  error
	positionErr error
	placeErr    error
}

// NewMockClient creates a mock client seeded with a handful of common ETFs.
func NewMockClient() *MockClient {
	mc := &MockClient{
		quotes:      make(map[string]*Quote),
		quoteErrors: make(map[string]error),
		nextOrderID: 1000001,
		balances: Balances{
			LiquidationValue: 50000.00,
			CashAvailable:    10000.00,
			BuyingPower:      20000.00,
			MarketValue:      40000.00,
		},
		positions: []Position{
			{Symbol: "SPY", Quantity: 50, AveragePrice: 420.00, MarketValue: 22500.00, AssetType: "EQUITY"},
			{Symbol: "QQQ", Quantity: 30, AveragePrice: 350.00, MarketValue: 11400.00, AssetType: "EQUITY"},
			{Symbol: "AGG", Quantity: 60, AveragePrice: 98.00, MarketValue: 6100.00, AssetType: "EQUITY"},
		},
	}

	for symbol, price := range map[string]float64{
		"SPY":  450.00,
		"QQQ":  380.00,
		"VTI":  230.00,
		"AGG":  101.50,
		"VXUS": 58.00,
		"AAPL": 190.00,
		"MSFT": 410.00,
	} {
		open := price * 0.995
		high := price * 1.08
		mc.quotes[symbol] = &Quote{Symbol: symbol, LastPrice: price, OpenPrice: &open, Week52High: &high}
	}
	return mc
}

// SetQuote overrides the quote for a symbol.
func (mc *MockClient) SetQuote(q *Quote) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.quotes[q.Symbol] = q
}

// SetBalances overrides the account balance snapshot.
func (mc *MockClient) SetBalances(b Balances) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.balances = b
}

// SetPositions overrides the account positions.
func (mc *MockClient) SetPositions(positions []Position) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.positions = positions
}

// FailQuote makes GetQuote for symbol return err.
func (mc *MockClient) FailQuote(symbol string, err error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.quoteErrors[symbol] = err
}

// FailBalances makes GetBalances return err.
func (mc *MockClient) FailBalances(err error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.balanceErr = err
}

// FailPositions makes GetPositions return err.
func (mc *MockClient) FailPositions(err error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.positionErr = err
}

// FailPlaceOrder makes PlaceOrder return err.
func (mc *MockClient) FailPlaceOrder(err error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.placeErr = err
}

// PlacedOrders returns every order submitted so far, in submission order.
func (mc *MockClient) PlacedOrders() []OrderSpec {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	out := make([]OrderSpec, len(mc.placed))
	copy(out, mc.placed)
	return out
}

// GetBalances returns the simulated balance snapshot.
func (mc *MockClient) GetBalances(ctx context.Context) (*Balances, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	if mc.balanceErr != nil {
		return nil, gwErr("get_balances", 0, mc.balanceErr)
	}
	b := mc.balances
	return &b, nil
}

// GetPositions returns the simulated holdings.
func (mc *MockClient) GetPositions(ctx context.Context) ([]Position, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	if mc.positionErr != nil {
		return nil, gwErr("get_positions", 0, mc.positionErr)
	}
	out := make([]Position, len(mc.positions))
	copy(out, mc.positions)
	return out, nil
}

// GetQuote returns the simulated quote for a symbol.
func (mc *MockClient) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	if err, ok := mc.quoteErrors[symbol]; ok {
		return nil, gwErr("get_quote", 0, err)
	}
	if q, ok := mc.quotes[symbol]; ok {
		cp := *q
		return &cp, nil
	}
	return nil, gwErr("get_quote", 0, fmt.Errorf("no quote for %s", symbol))
}

// GetQuotes returns quotes for the requested symbols, skipping unknowns.
func (mc *MockClient) GetQuotes(ctx context.Context, symbols []string) (map[string]*Quote, error) {
	out := make(map[string]*Quote, len(symbols))
	for _, symbol := range symbols {
		q, err := mc.GetQuote(ctx, symbol)
		if err != nil {
			continue
		}
		out[symbol] = q
	}
	return out, nil
}

// GetOptionChain synthesizes a single-expiration chain with strikes around
// the current price in $5 steps.
func (mc *MockClient) GetOptionChain(ctx context.Context, symbol, contractType string, strikeCount int) (*OptionChain, error) {
	q, err := mc.GetQuote(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if strikeCount <= 0 {
		strikeCount = 10
	}

	const expiration = "2026-09-18:21"
	strikes := make(map[string][]OptionContract, strikeCount)
	base := float64(int(q.LastPrice/5)) * 5
	for i := 0; i < strikeCount; i++ {
		strike := base + float64(i-strikeCount/2)*5
		if strike <= 0 {
			continue
		}
		distance := strike - q.LastPrice
		if contractType == "PUT" {
			distance = -distance
		}
		// Rough premium: time value plus intrinsic when in the money.
		premium := q.LastPrice * 0.01
		if distance < 0 {
			premium += -distance
		}
		key := strconv.FormatFloat(strike, 'f', 1, 64)
		strikes[key] = []OptionContract{{
			Symbol:      fmt.Sprintf("%s 260918%s%08d", symbol, contractType[:1], int(strike*1000)),
			Description: fmt.Sprintf("%s Sep 18 2026 %.1f %s", symbol, strike, contractType),
			Bid:         premium * 0.95,
			Ask:         premium * 1.05,
			Strike:      strike,
		}}
	}
	return &OptionChain{
		Symbol:       symbol,
		ContractType: contractType,
		ExpDateMap:   map[string]map[string][]OptionContract{expiration: strikes},
	}, nil
}

// PlaceOrder records the order and acknowledges it immediately.
func (mc *MockClient) PlaceOrder(ctx context.Context, spec OrderSpec) (*OrderResponse, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if mc.placeErr != nil {
		return nil, gwErr("place_order", 0, mc.placeErr)
	}

	mc.placed = append(mc.placed, spec)
	orderID := strconv.FormatInt(mc.nextOrderID, 10)
	mc.nextOrderID++

	price := 0.0
	if q, ok := mc.quotes[spec.Symbol]; ok {
		price = q.LastPrice
	}
	mc.orders = append(mc.orders, Order{
		OrderID:   orderID,
		Symbol:    spec.Symbol,
		Status:    "FILLED",
		Quantity:  float64(spec.Quantity),
		FilledQty: float64(spec.Quantity),
		Price:     price,
	})
	return &OrderResponse{OrderID: orderID, Status: "submitted"}, nil
}

// GetOrders returns every simulated order placed so far.
func (mc *MockClient) GetOrders(ctx context.Context) ([]Order, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	out := make([]Order, len(mc.orders))
	copy(out, mc.orders)
	return out, nil
}
