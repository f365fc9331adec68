package events

import (
	"sync"
	"testing"
	"time"
)

func TestSubscribeReceivesMatchingType(t *testing.T) {
	bus := NewBus()

	var mu sync.Mutex
	var received []Event
	done := make(chan struct{}, 1)

	bus.Subscribe(EventOrderPlaced, func(e Event) {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
		done <- struct{}{}
	})

	bus.PublishOrderPlaced("123", "DCA-28AUG-abcd1234-B", "SPY", "buy", 2, 450.10, 900.20, false)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber never invoked")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("got %d events, want 1", len(received))
	}
	e := received[0]
	if e.Type != EventOrderPlaced {
		t.Errorf("type = %v", e.Type)
	}
	if e.Data["symbol"] != "SPY" {
		t.Errorf("symbol = %v", e.Data["symbol"])
	}
	if e.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}

func TestSubscriberIgnoresOtherTypes(t *testing.T) {
	bus := NewBus()

	called := make(chan struct{}, 1)
	bus.Subscribe(EventOrderFailed, func(e Event) { called <- struct{}{} })

	bus.PublishStrategyStarted("dca", []string{"SPY"}, true)

	select {
	case <-called:
		t.Fatal("subscriber fired for a different event type")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSubscribeAllReceivesEverything(t *testing.T) {
	bus := NewBus()

	var count int
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(3)

	bus.SubscribeAll(func(e Event) {
		mu.Lock()
		count++
		mu.Unlock()
		wg.Done()
	})

	bus.PublishStrategyStarted("rebalance", nil, false)
	bus.PublishDipDetected("VTI", 200, 215, 0.0698)
	bus.PublishError("scheduler", "job panicked", nil)

	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for subscribers")
	}

	mu.Lock()
	defer mu.Unlock()
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
}
