package strategy

import (
	"context"
	"math"
	"sync"

	"schwab-invest-bot/internal/audit"
	"schwab-invest-bot/internal/events"
	"schwab-invest-bot/internal/logging"
	"schwab-invest-bot/internal/orders"
	"schwab-invest-bot/internal/schwab"
)

// Executor is the shared order primitive: it converts (symbol, dollar amount,
// action) into a whole-share market order. Every engine routes submissions
// through it.
//
// Order placement is never retried. A failed submission may still have reached
// the brokerage, and without idempotency guarantees a retry risks a duplicate
// fill; under-trading is the safer failure mode.
type Executor struct {
	client  schwab.Client
	auditor *audit.Logger
	bus     *events.Bus
	ids     *orders.Generator
	account string
	logger  *logging.Logger

	// submitMu serializes sizing and submission across concurrently running
	// strategies. The scheduler and the dashboard can trigger strategies at
	// the same time against the same account; without this lock two runs
	// could size against the same cash balance and over-commit it.
	submitMu sync.Mutex
}

// NewExecutor wires an executor. auditor and bus may be nil in tests; ids
// falls back to a UTC generator when nil.
func NewExecutor(client schwab.Client, account string, auditor *audit.Logger, bus *events.Bus, ids *orders.Generator, logger *logging.Logger) *Executor {
	if ids == nil {
		ids = orders.NewGenerator(nil)
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Executor{
		client:  client,
		auditor: auditor,
		bus:     bus,
		ids:     ids,
		account: account,
		logger:  logger.WithComponent("executor"),
	}
}

// ExecuteOrder sizes and submits a single market order. The returned error is
// non-nil exactly when the result status is failed; it is a *PriceError for a
// non-tradable quote or a *schwab.GatewayError otherwise. A dollar amount too
// small for one share is not an error: the result is skipped.
func (e *Executor) ExecuteOrder(ctx context.Context, strat orders.Strategy, symbol string, amount float64, action schwab.Action, dryRun bool) (OrderResult, error) {
	e.submitMu.Lock()
	defer e.submitMu.Unlock()

	quote, err := e.client.GetQuote(ctx, symbol)
	if err != nil {
		return e.fail(strat, symbol, action, amount, err)
	}

	price := quote.LastPrice
	if price <= 0 {
		perr := &PriceError{Symbol: symbol, Price: price}
		return e.fail(strat, symbol, action, amount, perr)
	}

	shares := int64(math.Floor(amount / price))
	if shares == 0 {
		e.logger.Warn("Amount too small for one share",
			"symbol", symbol, "amount", amount, "price", price)
		if e.bus != nil {
			e.bus.PublishOrderSkipped(symbol, string(action), "amount too small")
		}
		return OrderResult{
			Symbol: symbol,
			Status: StatusSkipped,
			Action: action,
			Price:  price,
			Amount: amount,
			Reason: "amount too small",
		}, nil
	}

	realized := float64(shares) * price

	side := orders.SideBuy
	if action == schwab.Sell {
		side = orders.SideSell
	}
	clientOrderID, err := e.ids.Generate(strat, side)
	if err != nil {
		return e.fail(strat, symbol, action, amount, err)
	}

	e.logger.Info("Order sized",
		"strategy", string(strat),
		"symbol", symbol,
		"action", string(action),
		"shares", shares,
		"price", price,
		"amount", realized,
		"dry_run", dryRun)

	if dryRun {
		return OrderResult{
			Symbol:        symbol,
			Status:        StatusDryRun,
			Action:        action,
			Shares:        shares,
			Price:         price,
			Amount:        realized,
			ClientOrderID: clientOrderID,
		}, nil
	}

	e.auditTrade(audit.TradeInitiated, strat, symbol, realized, shares, action, dryRun, "")

	resp, err := e.client.PlaceOrder(ctx, schwab.OrderSpec{
		Symbol:        symbol,
		Action:        action,
		Quantity:      shares,
		OrderType:     "MARKET",
		AssetType:     "EQUITY",
		ClientOrderID: clientOrderID,
	})
	if err != nil {
		e.auditTrade(audit.TradeFailed, strat, symbol, realized, shares, action, dryRun, err.Error())
		if e.bus != nil {
			e.bus.PublishOrderFailed(symbol, string(action), err)
		}
		return OrderResult{
			Symbol:        symbol,
			Status:        StatusFailed,
			Action:        action,
			Shares:        shares,
			Price:         price,
			Amount:        realized,
			ClientOrderID: clientOrderID,
			Error:         err.Error(),
		}, err
	}

	e.auditTrade(audit.TradeExecuted, strat, symbol, realized, shares, action, dryRun, "")
	if e.bus != nil {
		e.bus.PublishOrderPlaced(resp.OrderID, clientOrderID, symbol, string(action), shares, price, realized, dryRun)
	}

	return OrderResult{
		Symbol:        symbol,
		Status:        StatusSuccess,
		Action:        action,
		Shares:        shares,
		Price:         price,
		Amount:        realized,
		OrderID:       resp.OrderID,
		ClientOrderID: clientOrderID,
	}, nil
}

func (e *Executor) fail(strat orders.Strategy, symbol string, action schwab.Action, amount float64, err error) (OrderResult, error) {
	e.logger.WithError(err).Error("Order not executed", "strategy", string(strat), "symbol", symbol)
	e.auditTrade(audit.TradeFailed, strat, symbol, amount, 0, action, false, err.Error())
	if e.bus != nil {
		e.bus.PublishOrderFailed(symbol, string(action), err)
	}
	return OrderResult{
		Symbol: symbol,
		Status: StatusFailed,
		Action: action,
		Amount: amount,
		Error:  err.Error(),
	}, err
}

func (e *Executor) auditTrade(eventType audit.EventType, strat orders.Strategy, symbol string, amount float64, quantity int64, action schwab.Action, dryRun bool, errText string) {
	if e.auditor == nil {
		return
	}
	extra := map[string]interface{}{
		"strategy": string(strat),
		"action":   string(action),
	}
	if errText != "" {
		extra["error"] = errText
	}
	var qty *int64
	if quantity > 0 {
		qty = &quantity
	}
	if _, err := e.auditor.LogTrade(eventType, e.account, symbol, &amount, qty, "market", dryRun, extra); err != nil {
		e.logger.WithError(err).Warn("Failed to write audit entry", "symbol", symbol)
	}
}

// auditStrategy records a strategy lifecycle event on behalf of an engine.
func (e *Executor) auditStrategy(eventType audit.EventType, strat orders.Strategy, symbols []string, totalAmount *float64, dryRun bool, extra map[string]interface{}) {
	if e.auditor == nil {
		return
	}
	if _, err := e.auditor.LogStrategy(eventType, string(strat), e.account, symbols, totalAmount, dryRun, extra); err != nil {
		e.logger.WithError(err).Warn("Failed to write audit entry", "strategy", string(strat))
	}
}

func (e *Executor) publishStrategyStarted(strat orders.Strategy, symbols []string, dryRun bool) {
	if e.bus != nil {
		e.bus.PublishStrategyStarted(string(strat), symbols, dryRun)
	}
}

func (e *Executor) publishStrategyCompleted(strat orders.Strategy, results []OrderResult) {
	if e.bus == nil {
		return
	}
	placed, failed := 0, 0
	for _, r := range results {
		switch r.Status {
		case StatusSuccess, StatusDryRun:
			placed++
		case StatusFailed:
			failed++
		}
	}
	e.bus.PublishStrategyCompleted(string(strat), placed, failed)
}
