package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestLogger(t *testing.T, cfg Config) (*Logger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.log")
	cfg.Path = path
	logger, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { logger.Close() })
	return logger, path
}

func readLines(t *testing.T, path string) []map[string]interface{} {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer f.Close()

	var entries []map[string]interface{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var m map[string]interface{}
		if err := json.Unmarshal(scanner.Bytes(), &m); err != nil {
			t.Fatalf("invalid NDJSON line: %v", err)
		}
		entries = append(entries, m)
	}
	return entries
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int64) *int64       { return &v }

func TestLogWritesNDJSON(t *testing.T) {
	logger, path := newTestLogger(t, DefaultConfig(""))

	entry, err := logger.Log(Event{
		Type:    TradeExecuted,
		Symbol:  "SPY",
		Amount:  floatPtr(500.25),
		Success: true,
	})
	if err != nil {
		t.Fatalf("Log failed: %v", err)
	}
	if entry.Hash == "" {
		t.Error("entry hash is empty")
	}
	if len(entry.Hash) != hashLength {
		t.Errorf("hash length = %d, want %d", len(entry.Hash), hashLength)
	}
	if entry.PID != os.Getpid() {
		t.Errorf("pid = %d, want %d", entry.PID, os.Getpid())
	}

	lines := readLines(t, path)
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	if lines[0]["event_type"] != "trade_executed" {
		t.Errorf("event_type = %v", lines[0]["event_type"])
	}
	if lines[0]["symbol"] != "SPY" {
		t.Errorf("symbol = %v", lines[0]["symbol"])
	}
}

func TestRedactionOnPersist(t *testing.T) {
	logger, path := newTestLogger(t, DefaultConfig(""))

	entry, err := logger.Log(Event{
		Type:          TradeExecuted,
		AccountNumber: "123456789",
		Amount:        floatPtr(2500),
		Success:       true,
	})
	if err != nil {
		t.Fatalf("Log failed: %v", err)
	}
	// The returned entry keeps the true account number.
	if entry.AccountNumber != "123456789" {
		t.Errorf("in-memory account = %q", entry.AccountNumber)
	}

	lines := readLines(t, path)
	if got := lines[0]["account_number"]; got != "*****6789" {
		t.Errorf("persisted account = %v, want *****6789", got)
	}
	if got := lines[0]["amount_display"]; got != "$1K-$10K" {
		t.Errorf("amount_display = %v, want $1K-$10K", got)
	}
	// Raw amount is still written alongside the display bucket.
	if got := lines[0]["amount"]; got != float64(2500) {
		t.Errorf("persisted amount = %v, want 2500", got)
	}
}

func TestHashChainLinksEntries(t *testing.T) {
	logger, path := newTestLogger(t, Config{Redact: false, HashChain: true})

	first, err := logger.Log(Event{Type: StrategyStarted, Strategy: "dca", Success: true})
	if err != nil {
		t.Fatalf("Log failed: %v", err)
	}
	second, err := logger.Log(Event{Type: StrategyCompleted, Strategy: "dca", Success: true})
	if err != nil {
		t.Fatalf("Log failed: %v", err)
	}
	if first.Hash == second.Hash {
		t.Error("consecutive entries share a hash")
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer f.Close()
	count, err := VerifyChain(f)
	if err != nil {
		t.Fatalf("VerifyChain failed: %v", err)
	}
	if count != 2 {
		t.Errorf("verified %d entries, want 2", count)
	}
}

func TestVerifyChainAcceptsRedactedLog(t *testing.T) {
	logger, path := newTestLogger(t, DefaultConfig(""))

	if _, err := logger.LogTrade(TradeExecuted, "123456789", "SPY", floatPtr(2500), intPtr(5), "market", false, nil); err != nil {
		t.Fatalf("LogTrade failed: %v", err)
	}
	if _, err := logger.LogTrade(TradeExecuted, "123456789", "QQQ", floatPtr(800), intPtr(2), "market", false, nil); err != nil {
		t.Fatalf("LogTrade failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer f.Close()
	count, err := VerifyChain(f)
	if err != nil {
		t.Fatalf("VerifyChain rejected an untampered redacted log: %v", err)
	}
	if count != 2 {
		t.Errorf("verified %d entries, want 2", count)
	}
}

func TestVerifyChainDetectsTampering(t *testing.T) {
	logger, path := newTestLogger(t, Config{Redact: false, HashChain: true})

	for _, sym := range []string{"SPY", "QQQ", "VTI"} {
		if _, err := logger.Log(Event{Type: TradeExecuted, Symbol: sym, Amount: floatPtr(100), Success: true}); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	// Mutate the middle entry's amount after the fact.
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	lines[1] = strings.Replace(lines[1], `"amount":100`, `"amount":999`, 1)
	tampered := strings.Join(lines, "\n")

	if _, err := VerifyChain(strings.NewReader(tampered)); err == nil {
		t.Fatal("VerifyChain accepted a tampered log")
	}
}

func TestVerifyChainDetectsTamperedField(t *testing.T) {
	logger, path := newTestLogger(t, Config{Redact: false, HashChain: true})

	if _, err := logger.Log(Event{Type: TradeExecuted, Symbol: "SPY", Success: true}); err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	tampered := strings.Replace(string(raw), `"SPY"`, `"QQQ"`, 1)
	if tampered == string(raw) {
		t.Fatal("replacement did not apply")
	}
	if _, err := VerifyChain(strings.NewReader(tampered)); err == nil {
		t.Fatal("VerifyChain accepted a tampered symbol")
	}
}

func TestLogTradeDetails(t *testing.T) {
	logger, path := newTestLogger(t, Config{Redact: false, HashChain: true})

	_, err := logger.LogTrade(TradeInitiated, "", "AAPL", floatPtr(1000), intPtr(5), "market", true, map[string]interface{}{"action": "buy"})
	if err != nil {
		t.Fatalf("LogTrade failed: %v", err)
	}

	lines := readLines(t, path)
	details, ok := lines[0]["details"].(map[string]interface{})
	if !ok {
		t.Fatalf("details missing: %v", lines[0])
	}
	if details["order_type"] != "market" {
		t.Errorf("order_type = %v", details["order_type"])
	}
	if details["dry_run"] != true {
		t.Errorf("dry_run = %v", details["dry_run"])
	}
	if details["action"] != "buy" {
		t.Errorf("action = %v", details["action"])
	}
	if lines[0]["quantity"] != float64(5) {
		t.Errorf("quantity = %v", lines[0]["quantity"])
	}
}

func TestLogStrategyFailedMarksUnsuccessful(t *testing.T) {
	logger, path := newTestLogger(t, Config{Redact: false, HashChain: true})

	_, err := logger.LogStrategy(StrategyFailed, "rebalance", "", []string{"SPY"}, nil, false, map[string]interface{}{"reason": "gateway down"})
	if err != nil {
		t.Fatalf("LogStrategy failed: %v", err)
	}
	lines := readLines(t, path)
	if lines[0]["success"] != false {
		t.Errorf("success = %v, want false", lines[0]["success"])
	}
	if lines[0]["strategy"] != "rebalance" {
		t.Errorf("strategy = %v", lines[0]["strategy"])
	}
}

type capturePublisher struct {
	entries []*Entry
}

func (c *capturePublisher) PublishAuditEntry(e *Entry) { c.entries = append(c.entries, e) }

func TestPublisherReceivesEntries(t *testing.T) {
	logger, _ := newTestLogger(t, DefaultConfig(""))
	pub := &capturePublisher{}
	logger.SetPublisher(pub)

	if _, err := logger.Log(Event{Type: AuthSuccess, Success: true}); err != nil {
		t.Fatalf("Log failed: %v", err)
	}
	if len(pub.entries) != 1 {
		t.Fatalf("publisher got %d entries, want 1", len(pub.entries))
	}
	if pub.entries[0].EventType != AuthSuccess {
		t.Errorf("event type = %v", pub.entries[0].EventType)
	}
}
