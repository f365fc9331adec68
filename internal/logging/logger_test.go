package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func readRecords(t *testing.T, path string) []map[string]interface{} {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var records []map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var rec map[string]interface{}
		if err := dec.Decode(&rec); err != nil {
			t.Fatalf("decode record: %v", err)
		}
		records = append(records, rec)
	}
	return records
}

func TestStructuredFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	logger := New(&Config{Level: "INFO", Output: path, Component: "test", JSONFormat: true})

	logger.Info("order placed", "symbol", "SPY", "shares", 5)
	logger.WithError(errors.New("boom")).Error("order failed", "symbol", "SPY")

	records := readRecords(t, path)
	if len(records) < 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}

	first := records[0]
	if first["component"] != "test" || first["symbol"] != "SPY" || first["message"] != "order placed" {
		t.Errorf("record = %v", first)
	}
	if first["shares"] != float64(5) {
		t.Errorf("shares = %v", first["shares"])
	}

	second := records[1]
	if second["error"] != "boom" || second["level"] != "error" {
		t.Errorf("record = %v", second)
	}
}

func TestLevelFiltering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	logger := New(&Config{Level: "WARN", Output: path, JSONFormat: true})

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("shown")

	records := readRecords(t, path)
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0]["message"] != "shown" {
		t.Errorf("record = %v", records[0])
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{"Warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"garbage", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}
	for _, tc := range tests {
		if got := ParseLevel(tc.in); got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestScopedLoggersDoNotMutateParent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	parent := New(&Config{Level: "INFO", Output: path, JSONFormat: true})

	child := parent.WithField("strategy", "dca")
	child.Info("child record")
	parent.Info("parent record")

	records := readRecords(t, path)
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0]["strategy"] != "dca" {
		t.Errorf("child record = %v", records[0])
	}
	if _, ok := records[1]["strategy"]; ok {
		t.Errorf("parent record gained child field: %v", records[1])
	}
}
