package database

import (
	"context"
	"time"

	"schwab-invest-bot/internal/events"
	"schwab-invest-bot/internal/logging"
	"schwab-invest-bot/internal/orders"
	"schwab-invest-bot/internal/schwab"
)

// OrderRecorder persists order events from the bus into the orders table, so
// trade history survives restarts without the strategies knowing about the
// database.
type OrderRecorder struct {
	repo   *Repository
	logger *logging.Logger
}

// NewOrderRecorder creates a recorder. Attach it with Subscribe.
func NewOrderRecorder(repo *Repository, logger *logging.Logger) *OrderRecorder {
	if logger == nil {
		logger = logging.Default()
	}
	return &OrderRecorder{repo: repo, logger: logger.WithComponent("order-recorder")}
}

// Subscribe registers the recorder on the bus for order placed events.
func (r *OrderRecorder) Subscribe(bus *events.Bus) {
	bus.Subscribe(events.EventOrderPlaced, r.handleOrderPlaced)
}

func (r *OrderRecorder) handleOrderPlaced(event events.Event) {
	rec := recordFromEvent(event)
	if rec == nil {
		r.logger.Warn("Order event missing fields, not recorded")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.repo.RecordOrder(ctx, rec); err != nil {
		r.logger.WithError(err).Error("Failed to record order", "client_order_id", rec.ClientOrderID)
	}
}

// recordFromEvent maps an order placed event to a row. The strategy comes
// from the client order ID prefix.
func recordFromEvent(event events.Event) *OrderRecord {
	clientOrderID, _ := event.Data["client_order_id"].(string)
	symbol, _ := event.Data["symbol"].(string)
	if clientOrderID == "" || symbol == "" {
		return nil
	}

	strategyName := string(orders.StrategyManual)
	if parsed, err := orders.Parse(clientOrderID); err == nil {
		strategyName = string(parsed.Strategy)
	}

	rec := &OrderRecord{
		ClientOrderID: clientOrderID,
		Symbol:        symbol,
		Side:          string(schwab.Buy),
		OrderType:     "MARKET",
		AssetType:     "EQUITY",
		Strategy:      strategyName,
		Status:        "placed",
		PlacedAt:      event.Timestamp,
	}
	if rec.PlacedAt.IsZero() {
		rec.PlacedAt = time.Now()
	}

	if action, ok := event.Data["action"].(string); ok && action != "" {
		rec.Side = action
	}
	if shares, ok := event.Data["shares"].(int64); ok {
		rec.Quantity = shares
	}
	if price, ok := event.Data["price"].(float64); ok && price > 0 {
		rec.Price = &price
	}
	if amount, ok := event.Data["amount"].(float64); ok && amount > 0 {
		rec.Amount = &amount
	}
	if orderID, ok := event.Data["order_id"].(string); ok && orderID != "" {
		rec.BrokerOrderID = &orderID
	}
	if dryRun, ok := event.Data["dry_run"].(bool); ok {
		rec.DryRun = dryRun
		if dryRun {
			rec.Status = "dry_run"
		}
	}
	return rec
}
