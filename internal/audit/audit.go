// Package audit writes an append-only, hash-chained record of every trade,
// auth, config and strategy event, separate from the operational log.
//
// Redaction happens first: account numbers are reduced to last-4 and amounts
// gain a magnitude-only display field. Each entry's hash then commits to the
// persisted (redacted) form plus the previous entry's hash, so VerifyChain can
// validate a production log exactly as written. The chain seed resets each
// process lifetime.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"schwab-invest-bot/internal/validate"
)

// EventType enumerates auditable events.
type EventType string

const (
	// Trade events
	TradeInitiated EventType = "trade_initiated"
	TradeConfirmed EventType = "trade_confirmed"
	TradeCancelled EventType = "trade_cancelled"
	TradeExecuted  EventType = "trade_executed"
	TradeFailed    EventType = "trade_failed"

	// Authentication events
	AuthSuccess    EventType = "auth_success"
	AuthFailed     EventType = "auth_failed"
	TokenRefreshed EventType = "token_refreshed"

	// Configuration events
	ConfigLoaded  EventType = "config_loaded"
	ConfigChanged EventType = "config_changed"

	// Strategy events
	StrategyStarted   EventType = "strategy_started"
	StrategyCompleted EventType = "strategy_completed"
	StrategyFailed    EventType = "strategy_failed"
)

// hashLength is the number of hex characters kept from the SHA-256 digest.
const hashLength = 16

// Event carries the fields of a single auditable action. Optional fields are
// omitted from the entry when zero.
type Event struct {
	Type          EventType
	AccountNumber string
	Symbol        string
	Amount        *float64
	Quantity      *int64
	Strategy      string
	Success       bool
	Details       map[string]interface{}
	Error         string
}

// Entry is a written audit record.
type Entry struct {
	Timestamp     string                 `json:"timestamp"`
	EventType     EventType              `json:"event_type"`
	Success       bool                   `json:"success"`
	AccountNumber string                 `json:"account_number,omitempty"`
	Symbol        string                 `json:"symbol,omitempty"`
	Amount        *float64               `json:"amount,omitempty"`
	Quantity      *int64                 `json:"quantity,omitempty"`
	Strategy      string                 `json:"strategy,omitempty"`
	Details       map[string]interface{} `json:"details,omitempty"`
	Error         string                 `json:"error,omitempty"`
	PID           int                    `json:"pid"`
	Hash          string                 `json:"_hash,omitempty"`
}

// Publisher receives every entry after it is written, for live dashboards.
type Publisher interface {
	PublishAuditEntry(entry *Entry)
}

// Config controls a Logger. Use DefaultConfig as the starting point; the zero
// value disables both redaction and the hash chain.
type Config struct {
	Path      string
	Redact    bool
	HashChain bool
}

// DefaultConfig returns the standard production settings for path.
func DefaultConfig(path string) Config {
	return Config{Path: path, Redact: true, HashChain: true}
}

// Logger appends NDJSON audit entries to a file. Construct one explicitly and
// inject it; there is no package-level instance.
type Logger struct {
	mu        sync.Mutex
	file      *os.File
	redact    bool
	hashChain bool
	lastHash  string
	publisher Publisher
	pid       int
}

// New opens (or creates, append-only, mode 0600) the audit log at cfg.Path.
func New(cfg Config) (*Logger, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("audit log path is empty")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create audit log directory: %w", err)
		}
	}
	file, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	return &Logger{
		file:      file,
		redact:    cfg.Redact,
		hashChain: cfg.HashChain,
		pid:       os.Getpid(),
	}, nil
}

// SetPublisher attaches a live-stream publisher. Call before logging begins.
func (l *Logger) SetPublisher(p Publisher) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.publisher = p
}

// Close flushes and closes the underlying file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// Log appends an audit entry and returns it with its chain hash populated.
func (l *Logger) Log(ev Event) (*Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := &Entry{
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
		EventType:     ev.Type,
		Success:       ev.Success,
		AccountNumber: ev.AccountNumber,
		Symbol:        ev.Symbol,
		Amount:        ev.Amount,
		Quantity:      ev.Quantity,
		Strategy:      ev.Strategy,
		Details:       ev.Details,
		Error:         ev.Error,
		PID:           l.pid,
	}

	persisted := entryMap(entry)
	if l.redact {
		redactMap(persisted)
	}
	if l.hashChain {
		hash, err := computeHash(persisted, l.lastHash)
		if err != nil {
			return nil, err
		}
		entry.Hash = hash
		persisted["_hash"] = hash
		l.lastHash = hash
	}
	line, err := json.Marshal(persisted)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize audit entry: %w", err)
	}
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		return nil, fmt.Errorf("failed to write audit entry: %w", err)
	}

	if l.publisher != nil {
		l.publisher.PublishAuditEntry(entry)
	}
	return entry, nil
}

// LogTrade records a trade event with order metadata folded into details.
func (l *Logger) LogTrade(eventType EventType, accountNumber, symbol string, amount *float64, quantity *int64, orderType string, dryRun bool, extra map[string]interface{}) (*Entry, error) {
	details := map[string]interface{}{
		"order_type": orderType,
		"dry_run":    dryRun,
	}
	for k, v := range extra {
		details[k] = v
	}
	return l.Log(Event{
		Type:          eventType,
		AccountNumber: accountNumber,
		Symbol:        symbol,
		Amount:        amount,
		Quantity:      quantity,
		Success:       eventType != TradeFailed,
		Details:       details,
	})
}

// LogStrategy records a strategy lifecycle event.
func (l *Logger) LogStrategy(eventType EventType, strategy, accountNumber string, symbols []string, totalAmount *float64, dryRun bool, extra map[string]interface{}) (*Entry, error) {
	if symbols == nil {
		symbols = []string{}
	}
	details := map[string]interface{}{
		"symbols": symbols,
		"dry_run": dryRun,
	}
	for k, v := range extra {
		details[k] = v
	}
	return l.Log(Event{
		Type:          eventType,
		Strategy:      strategy,
		AccountNumber: accountNumber,
		Amount:        totalAmount,
		Success:       eventType != StrategyFailed,
		Details:       details,
	})
}

// computeHash returns the truncated SHA-256 of the persisted field map's
// deterministic JSON serialization, chained to prevHash. encoding/json sorts
// map keys, which gives the determinism the chain requires. The map must not
// yet carry its own _hash.
func computeHash(persisted map[string]interface{}, prevHash string) (string, error) {
	if prevHash != "" {
		persisted["_prev_hash"] = prevHash
	}
	serialized, err := json.Marshal(persisted)
	delete(persisted, "_prev_hash")
	if err != nil {
		return "", fmt.Errorf("failed to serialize entry for hashing: %w", err)
	}
	sum := sha256.Sum256(serialized)
	return hex.EncodeToString(sum[:])[:hashLength], nil
}

// entryMap converts an entry to its field map, omitting absent optional fields.
func entryMap(e *Entry) map[string]interface{} {
	m := map[string]interface{}{
		"timestamp":  e.Timestamp,
		"event_type": string(e.EventType),
		"success":    e.Success,
		"pid":        e.PID,
	}
	if e.AccountNumber != "" {
		m["account_number"] = e.AccountNumber
	}
	if e.Symbol != "" {
		m["symbol"] = e.Symbol
	}
	if e.Amount != nil {
		m["amount"] = *e.Amount
	}
	if e.Quantity != nil {
		m["quantity"] = *e.Quantity
	}
	if e.Strategy != "" {
		m["strategy"] = e.Strategy
	}
	if e.Details != nil {
		m["details"] = e.Details
	}
	if e.Error != "" {
		m["error"] = e.Error
	}
	return m
}

// redactMap rewrites sensitive fields in place on the persisted form. The raw
// amount stays alongside the display bucket; only the account number is
// actually masked.
func redactMap(m map[string]interface{}) {
	if acct, ok := m["account_number"].(string); ok {
		m["account_number"] = validate.RedactAccountNumber(acct)
	}
	if amount, ok := m["amount"].(float64); ok {
		m["amount_display"] = validate.RedactAmount(amount)
	}
	if details, ok := m["details"].(map[string]interface{}); ok {
		redactMap(details)
	}
}

// VerifyChain recomputes the hash chain over the NDJSON entries in r and
// returns the number of verified entries. The hash commits to each line
// exactly as persisted, so verification works on logs written with or without
// redaction.
func VerifyChain(r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	count := 0
	prevHash := ""
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var m map[string]interface{}
		if err := json.Unmarshal(line, &m); err != nil {
			return count, fmt.Errorf("entry %d: invalid JSON: %w", count+1, err)
		}
		recorded, ok := m["_hash"].(string)
		if !ok || recorded == "" {
			return count, fmt.Errorf("entry %d: missing hash", count+1)
		}

		delete(m, "_hash")
		if prevHash != "" {
			m["_prev_hash"] = prevHash
		}
		serialized, err := json.Marshal(m)
		if err != nil {
			return count, fmt.Errorf("entry %d: %w", count+1, err)
		}
		sum := sha256.Sum256(serialized)
		computed := hex.EncodeToString(sum[:])[:hashLength]
		if computed != recorded {
			return count, fmt.Errorf("entry %d: hash mismatch: recorded %s, computed %s", count+1, recorded, computed)
		}
		prevHash = recorded
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("failed to read audit log: %w", err)
	}
	return count, nil
}
