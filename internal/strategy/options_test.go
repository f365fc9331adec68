package strategy

import (
	"context"
	"sync"
	"testing"
	"time"

	"schwab-invest-bot/internal/orders"
	"schwab-invest-bot/internal/schwab"
)

func chainWith(symbol, contractType string, contracts map[string]schwab.OptionContract) *schwab.OptionChain {
	strikes := make(map[string][]schwab.OptionContract, len(contracts))
	for strike, c := range contracts {
		strikes[strike] = []schwab.OptionContract{c}
	}
	return &schwab.OptionChain{
		Symbol:       symbol,
		ContractType: contractType,
		ExpDateMap:   map[string]map[string][]schwab.OptionContract{"2026-09-25:28": strikes},
	}
}

func newOptionsEngine(mc *schwab.MockClient) *Options {
	opt := NewOptions(mc, newTestExecutor(mc), nil)
	opt.now = func() time.Time {
		return time.Date(2026, time.August, 28, 0, 0, 0, 0, time.UTC)
	}
	return opt
}

func TestCoveredCallsRequireRoundLots(t *testing.T) {
	mc := schwab.NewMockClient()
	mc.SetPositions([]schwab.Position{
		{Symbol: "SPY", Quantity: 99, AssetType: "EQUITY"},
		{Symbol: "BOND", Quantity: 500, AssetType: "COLLECTIVE_INVESTMENT"},
	})
	opt := newOptionsEngine(mc)

	results, err := opt.SellCoveredCalls(context.Background(), nil, 30, 0.05, false)
	if err != nil {
		t.Fatalf("SellCoveredCalls failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("results = %+v, want none", results)
	}
}

func TestCoveredCallDryRun(t *testing.T) {
	mc := schwab.NewMockClient()
	mc.SetPositions([]schwab.Position{
		{Symbol: "SPY", Quantity: 250, AssetType: "EQUITY"},
	})
	mc.SetQuote(&schwab.Quote{Symbol: "SPY", LastPrice: 450})
	opt := newOptionsEngine(mc)

	results, err := opt.SellCoveredCalls(context.Background(), nil, 30, 0.05, true)
	if err != nil {
		t.Fatalf("SellCoveredCalls failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results", len(results))
	}
	r := results[0]
	if r.Status != StatusDryRun {
		t.Fatalf("result = %+v", r)
	}
	// 250 shares covers 2 contracts.
	if r.Contracts != 2 {
		t.Errorf("contracts = %d, want 2", r.Contracts)
	}
	// Target strike is 5% above $450 = $472.50; the pick must sit within 10%.
	if r.Strike < 425.25 || r.Strike > 519.75 {
		t.Errorf("strike = %v outside plausible band", r.Strike)
	}
	if r.Premium <= 0 {
		t.Errorf("premium = %v", r.Premium)
	}
	if len(mc.PlacedOrders()) != 0 {
		t.Error("dry run submitted an order")
	}
}

func TestProtectivePutPlacesDebitOrder(t *testing.T) {
	mc := schwab.NewMockClient()
	mc.SetPositions([]schwab.Position{
		{Symbol: "QQQ", Quantity: 100, AssetType: "EQUITY"},
	})
	mc.SetQuote(&schwab.Quote{Symbol: "QQQ", LastPrice: 380})
	opt := newOptionsEngine(mc)

	results, err := opt.BuyProtectivePuts(context.Background(), []string{"QQQ"}, 30, 0.05, false)
	if err != nil {
		t.Fatalf("BuyProtectivePuts failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results", len(results))
	}
	r := results[0]
	if r.Status != StatusSuccess {
		t.Fatalf("result = %+v", r)
	}
	if r.Cost <= 0 || r.OrderID == "" {
		t.Errorf("result = %+v", r)
	}

	placed := mc.PlacedOrders()
	if len(placed) != 1 {
		t.Fatalf("placed %d orders", len(placed))
	}
	spec := placed[0]
	if spec.OrderType != "NET_DEBIT" || spec.AssetType != "OPTION" {
		t.Errorf("spec = %+v", spec)
	}
	if spec.Action != schwab.Buy || spec.Quantity != 1 {
		t.Errorf("spec = %+v", spec)
	}
	if spec.LimitPrice == nil || *spec.LimitPrice <= 0 {
		t.Errorf("limit price = %v", spec.LimitPrice)
	}
}

func TestCoveredCallSymbolFilter(t *testing.T) {
	mc := schwab.NewMockClient()
	mc.SetPositions([]schwab.Position{
		{Symbol: "SPY", Quantity: 100, AssetType: "EQUITY"},
		{Symbol: "QQQ", Quantity: 100, AssetType: "EQUITY"},
	})
	opt := newOptionsEngine(mc)

	results, err := opt.SellCoveredCalls(context.Background(), []string{"QQQ"}, 30, 0.05, true)
	if err != nil {
		t.Fatalf("SellCoveredCalls failed: %v", err)
	}
	if len(results) != 1 || results[0].Symbol != "QQQ" {
		t.Errorf("results = %+v", results)
	}
}

func TestFindContractNearestStrike(t *testing.T) {
	opt := newOptionsEngine(schwab.NewMockClient())

	chain := chainWith("SPY", "CALL", map[string]schwab.OptionContract{
		"470.0": {Symbol: "SPY-470C", Bid: 3.10, Ask: 3.30, Strike: 470},
		"475.0": {Symbol: "SPY-475C", Bid: 2.40, Ask: 2.60, Strike: 475},
		"480.0": {Symbol: "SPY-480C", Bid: 1.80, Ask: 2.00, Strike: 480},
		"600.0": {Symbol: "SPY-600C", Bid: 0.10, Ask: 0.20, Strike: 600}, // > 10% away
	})

	pick := opt.findContract(chain, 472.50, 30, false)
	if pick == nil {
		t.Fatal("no contract picked")
	}
	if pick.contract.Symbol != "SPY-470C" && pick.contract.Symbol != "SPY-475C" {
		t.Errorf("picked %s, want one of the two nearest strikes", pick.contract.Symbol)
	}
	if pick.expiry != "2026-09-25" {
		t.Errorf("expiry = %q", pick.expiry)
	}
}

// gatedClient counts how many order submissions are in flight at once.
type gatedClient struct {
	schwab.Client
	mu          sync.Mutex
	inflight    int
	maxInflight int
}

func (c *gatedClient) PlaceOrder(ctx context.Context, spec schwab.OrderSpec) (*schwab.OrderResponse, error) {
	c.mu.Lock()
	c.inflight++
	if c.inflight > c.maxInflight {
		c.maxInflight = c.inflight
	}
	c.mu.Unlock()

	time.Sleep(20 * time.Millisecond)

	c.mu.Lock()
	c.inflight--
	c.mu.Unlock()
	return c.Client.PlaceOrder(ctx, spec)
}

func TestOptionOrdersShareSubmissionLock(t *testing.T) {
	mc := schwab.NewMockClient()
	mc.SetPositions([]schwab.Position{
		{Symbol: "SPY", Quantity: 100, AssetType: "EQUITY"},
	})
	mc.SetQuote(&schwab.Quote{Symbol: "SPY", LastPrice: 450})
	gc := &gatedClient{Client: mc}

	exec := NewExecutor(gc, "test-account", nil, nil, nil, nil)
	opt := NewOptions(gc, exec, nil)
	opt.now = func() time.Time {
		return time.Date(2026, time.August, 28, 0, 0, 0, 0, time.UTC)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if _, err := opt.SellCoveredCalls(context.Background(), nil, 30, 0.05, false); err != nil {
			t.Errorf("SellCoveredCalls failed: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		if _, err := exec.ExecuteOrder(context.Background(), orders.StrategyDCA, "SPY", 900, schwab.Buy, false); err != nil {
			t.Errorf("ExecuteOrder failed: %v", err)
		}
	}()
	wg.Wait()

	if gc.maxInflight != 1 {
		t.Errorf("max concurrent submissions = %d, want 1", gc.maxInflight)
	}
	if len(mc.PlacedOrders()) != 2 {
		t.Errorf("placed %d orders, want 2", len(mc.PlacedOrders()))
	}
}

func TestFindContractIgnoresNoBid(t *testing.T) {
	opt := newOptionsEngine(schwab.NewMockClient())

	chain := chainWith("SPY", "CALL", map[string]schwab.OptionContract{
		"472.0": {Symbol: "SPY-472C", Bid: 0, Ask: 2.00, Strike: 472},
		"475.0": {Symbol: "SPY-475C", Bid: 2.40, Ask: 2.60, Strike: 475},
	})

	pick := opt.findContract(chain, 472.50, 30, false)
	if pick == nil {
		t.Fatal("no contract picked")
	}
	if pick.contract.Symbol != "SPY-475C" {
		t.Errorf("picked %s, want SPY-475C (zero-bid contract skipped)", pick.contract.Symbol)
	}
}
