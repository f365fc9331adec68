package orders

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func fixedGenerator(t *testing.T) *Generator {
	t.Helper()
	g := NewGenerator(time.UTC)
	g.now = func() time.Time {
		return time.Date(2026, time.August, 28, 14, 30, 0, 0, time.UTC)
	}
	return g
}

func TestGenerateFormat(t *testing.T) {
	g := fixedGenerator(t)

	tests := []struct {
		strategy   Strategy
		side       Side
		wantPrefix string
		wantSuffix string
	}{
		{StrategyDCA, SideBuy, "DCA-28AUG-", "-B"},
		{StrategyDRIP, SideBuy, "DRP-28AUG-", "-B"},
		{StrategyRebalance, SideSell, "REB-28AUG-", "-S"},
		{StrategyOpportunistic, SideBuy, "OPP-28AUG-", "-B"},
		{StrategyOptions, SideSell, "OPT-28AUG-", "-S"},
	}
	for _, tt := range tests {
		t.Run(string(tt.strategy), func(t *testing.T) {
			id, err := g.Generate(tt.strategy, tt.side)
			if err != nil {
				t.Fatalf("Generate failed: %v", err)
			}
			if !strings.HasPrefix(id, tt.wantPrefix) {
				t.Errorf("id = %q, want prefix %q", id, tt.wantPrefix)
			}
			if !strings.HasSuffix(id, tt.wantSuffix) {
				t.Errorf("id = %q, want suffix %q", id, tt.wantSuffix)
			}
			if len(id) > MaxClientOrderIDLength {
				t.Errorf("id %q exceeds %d characters", id, MaxClientOrderIDLength)
			}
			if err := Validate(id); err != nil {
				t.Errorf("generated ID fails validation: %v", err)
			}
		})
	}
}

func TestGenerateUnique(t *testing.T) {
	g := fixedGenerator(t)
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id, err := g.Generate(StrategyDCA, SideBuy)
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate ID generated: %q", id)
		}
		seen[id] = true
	}
}

func TestGenerateRejectsBadInput(t *testing.T) {
	g := fixedGenerator(t)

	if _, err := g.Generate(Strategy("momentum"), SideBuy); !errors.Is(err, ErrInvalidStrategy) {
		t.Errorf("unknown strategy error = %v", err)
	}
	if _, err := g.Generate(StrategyDCA, Side("X")); !errors.Is(err, ErrInvalidSide) {
		t.Errorf("bad side error = %v", err)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		want    *ParsedID
		wantErr bool
	}{
		{
			name: "valid buy",
			id:   "DCA-28AUG-a3f7c2e9-B",
			want: &ParsedID{Strategy: StrategyDCA, Code: "DCA", Date: "28AUG", Unique: "a3f7c2e9", Side: SideBuy},
		},
		{
			name: "valid sell",
			id:   "REB-01JAN-deadbeef-S",
			want: &ParsedID{Strategy: StrategyRebalance, Code: "REB", Date: "01JAN", Unique: "deadbeef", Side: SideSell},
		},
		{name: "empty", id: "", wantErr: true},
		{name: "too few parts", id: "DCA-28AUG-B", wantErr: true},
		{name: "unknown code", id: "XXX-28AUG-a3f7c2e9-B", wantErr: true},
		{name: "bad side", id: "DCA-28AUG-a3f7c2e9-Q", wantErr: true},
		{name: "short unique", id: "DCA-28AUG-a3f7-B", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.id)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if !errors.Is(err, ErrInvalidClientOrderID) {
					t.Errorf("error = %v, want ErrInvalidClientOrderID", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if *got != *tt.want {
				t.Errorf("parsed = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestGenerateParseRoundTrip(t *testing.T) {
	g := NewGenerator(nil)
	id, err := g.Generate(StrategyOpportunistic, SideBuy)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	parsed, err := Parse(id)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if parsed.Strategy != StrategyOpportunistic || parsed.Side != SideBuy {
		t.Errorf("round trip lost fields: %+v", parsed)
	}
}
