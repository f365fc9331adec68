package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventOrderPlaced       EventType = "ORDER_PLACED"
	EventOrderSkipped      EventType = "ORDER_SKIPPED"
	EventOrderFailed       EventType = "ORDER_FAILED"
	EventStrategyStarted   EventType = "STRATEGY_STARTED"
	EventStrategyCompleted EventType = "STRATEGY_COMPLETED"
	EventStrategyFailed    EventType = "STRATEGY_FAILED"
	EventDipDetected       EventType = "DIP_DETECTED"
	EventBalanceUpdate     EventType = "BALANCE_UPDATE"
	EventPositionUpdate    EventType = "POSITION_UPDATE"
	EventQuoteUpdate       EventType = "QUOTE_UPDATE"
	EventAuditEntry        EventType = "AUDIT_ENTRY"
	EventTokenRefreshed    EventType = "TOKEN_REFRESHED"
	EventError             EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// Bus manages event publishing and subscriptions
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // Subscribers to all events
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (b *Bus) Subscribe(eventType EventType, subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subscribers[eventType] = append(b.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (b *Bus) SubscribeAll(subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.allSubs = append(b.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Notify specific subscribers
	if subs, ok := b.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event) // Run in goroutine to avoid blocking
		}
	}

	// Notify all-event subscribers
	for _, sub := range b.allSubs {
		go sub(event)
	}
}

// PublishOrderPlaced publishes an order placed event
func (b *Bus) PublishOrderPlaced(orderID, clientOrderID, symbol, action string, shares int64, price, amount float64, dryRun bool) {
	b.Publish(Event{
		Type: EventOrderPlaced,
		Data: map[string]interface{}{
			"order_id":        orderID,
			"client_order_id": clientOrderID,
			"symbol":          symbol,
			"action":          action,
			"shares":          shares,
			"price":           price,
			"amount":          amount,
			"dry_run":         dryRun,
		},
	})
}

// PublishOrderSkipped publishes an order skipped event
func (b *Bus) PublishOrderSkipped(symbol, action, reason string) {
	b.Publish(Event{
		Type: EventOrderSkipped,
		Data: map[string]interface{}{
			"symbol": symbol,
			"action": action,
			"reason": reason,
		},
	})
}

// PublishOrderFailed publishes an order failed event
func (b *Bus) PublishOrderFailed(symbol, action string, err error) {
	data := map[string]interface{}{
		"symbol": symbol,
		"action": action,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	b.Publish(Event{Type: EventOrderFailed, Data: data})
}

// PublishStrategyStarted publishes a strategy started event
func (b *Bus) PublishStrategyStarted(strategy string, symbols []string, dryRun bool) {
	b.Publish(Event{
		Type: EventStrategyStarted,
		Data: map[string]interface{}{
			"strategy": strategy,
			"symbols":  symbols,
			"dry_run":  dryRun,
		},
	})
}

// PublishStrategyCompleted publishes a strategy completed event
func (b *Bus) PublishStrategyCompleted(strategy string, orders, failures int) {
	b.Publish(Event{
		Type: EventStrategyCompleted,
		Data: map[string]interface{}{
			"strategy": strategy,
			"orders":   orders,
			"failures": failures,
		},
	})
}

// PublishStrategyFailed publishes a strategy failed event
func (b *Bus) PublishStrategyFailed(strategy string, err error) {
	data := map[string]interface{}{"strategy": strategy}
	if err != nil {
		data["error"] = err.Error()
	}
	b.Publish(Event{Type: EventStrategyFailed, Data: data})
}

// PublishDipDetected publishes a dip detection event
func (b *Bus) PublishDipDetected(symbol string, lastPrice, week52High, dipFraction float64) {
	b.Publish(Event{
		Type: EventDipDetected,
		Data: map[string]interface{}{
			"symbol":       symbol,
			"last_price":   lastPrice,
			"week_52_high": week52High,
			"dip_fraction": dipFraction,
		},
	})
}

// PublishError publishes an error event
func (b *Bus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	b.Publish(Event{Type: EventError, Data: data})
}
