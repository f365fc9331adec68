package validate

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func TestAmount(t *testing.T) {
	tests := []struct {
		name      string
		amount    float64
		want      float64
		shouldErr bool
	}{
		{"valid amount", 1000.00, 1000.00, false},
		{"rounds to cents", 99.999, 100.00, false},
		{"minimum", 0.01, 0.01, false},
		{"maximum", 1_000_000.00, 1_000_000.00, false},
		{"zero", 0, 0, true},
		{"negative", -100, 0, true},
		{"over maximum", 2_000_000, 0, true},
		{"NaN", math.NaN(), 0, true},
		{"infinity", math.Inf(1), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Amount(tt.amount)
			if (err != nil) != tt.shouldErr {
				t.Fatalf("Amount(%v) error = %v, shouldErr = %v", tt.amount, err, tt.shouldErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("Amount(%v) = %v, want %v", tt.amount, got, tt.want)
			}
		})
	}
}

func TestAmountErrorType(t *testing.T) {
	_, err := Amount(-5)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if verr.Field != "amount" {
		t.Errorf("expected field 'amount', got %q", verr.Field)
	}
	if !strings.Contains(err.Error(), "-5") {
		t.Errorf("error message should include offending value: %q", err.Error())
	}
}

func TestSymbol(t *testing.T) {
	tests := []struct {
		name      string
		symbol    string
		want      string
		shouldErr bool
	}{
		{"uppercases", "spy", "SPY", false},
		{"already upper", "AAPL", "AAPL", false},
		{"trims whitespace", "  QQQ  ", "QQQ", false},
		{"single letter", "f", "F", false},
		{"five letters", "googl", "GOOGL", false},
		{"empty", "", "", true},
		{"whitespace only", "   ", "", true},
		{"too long", "TOOLONG1", "", true},
		{"digits", "SPY1", "", true},
		{"punctuation", "BRK.B", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Symbol(tt.symbol)
			if (err != nil) != tt.shouldErr {
				t.Fatalf("Symbol(%q) error = %v, shouldErr = %v", tt.symbol, err, tt.shouldErr)
			}
			if got != tt.want {
				t.Errorf("Symbol(%q) = %q, want %q", tt.symbol, got, tt.want)
			}
		})
	}
}

func TestSymbols(t *testing.T) {
	t.Run("comma string", func(t *testing.T) {
		got, err := Symbols([]string{"spy,qqq,iwm"})
		if err != nil {
			t.Fatal(err)
		}
		want := []string{"SPY", "QQQ", "IWM"}
		if len(got) != len(want) {
			t.Fatalf("got %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
			}
		}
	})

	t.Run("list form", func(t *testing.T) {
		got, err := Symbols([]string{"spy", "qqq"})
		if err != nil || len(got) != 2 {
			t.Fatalf("got %v, %v", got, err)
		}
	})

	t.Run("duplicates rejected after normalization", func(t *testing.T) {
		if _, err := Symbols([]string{"SPY,spy"}); err == nil {
			t.Error("expected duplicate error")
		}
	})

	t.Run("empty rejected", func(t *testing.T) {
		if _, err := Symbols([]string{""}); err == nil {
			t.Error("expected error for empty input")
		}
	})

	t.Run("too many rejected", func(t *testing.T) {
		many := make([]string, MaxSymbols+1)
		letters := "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
		for i := range many {
			many[i] = "A" + string(letters[i%26]) + string(letters[(i/26)%26]) + "Z"
		}
		if _, err := Symbols(many); err == nil {
			t.Error("expected error for too many symbols")
		}
	})
}

func TestThreshold(t *testing.T) {
	tests := []struct {
		name      string
		threshold float64
		want      float64
		shouldErr bool
	}{
		{"typical", 0.05, 0.05, false},
		{"zero allowed", 0.0, 0.0, false},
		{"one allowed", 1.0, 1.0, false},
		{"rounds to 6 places", 0.0500004, 0.05, false},
		{"negative", -0.1, 0, true},
		{"over one", 1.5, 0, true},
		{"NaN", math.NaN(), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Threshold(tt.threshold)
			if (err != nil) != tt.shouldErr {
				t.Fatalf("Threshold(%v) error = %v, shouldErr = %v", tt.threshold, err, tt.shouldErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("Threshold(%v) = %v, want %v", tt.threshold, got, tt.want)
			}
		})
	}
}

func TestAllocation(t *testing.T) {
	t.Run("valid allocation", func(t *testing.T) {
		got, err := Allocation(map[string]float64{"SPY": 0.5, "AGG": 0.5}, true)
		if err != nil {
			t.Fatal(err)
		}
		if got["SPY"] != 0.5 || got["AGG"] != 0.5 {
			t.Errorf("unexpected allocation %v", got)
		}
	})

	t.Run("sum check enforced", func(t *testing.T) {
		if _, err := Allocation(map[string]float64{"SPY": 0.5}, true); err == nil {
			t.Error("expected sum error")
		}
	})

	t.Run("sum check optional", func(t *testing.T) {
		if _, err := Allocation(map[string]float64{"SPY": 0.5}, false); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("tolerance honored", func(t *testing.T) {
		if _, err := Allocation(map[string]float64{"SPY": 0.6, "AGG": 0.4004}, true); err != nil {
			t.Errorf("sum 1.0004 should pass within tolerance: %v", err)
		}
	})

	t.Run("weight out of range", func(t *testing.T) {
		if _, err := Allocation(map[string]float64{"SPY": 1.5, "AGG": -0.5}, false); err == nil {
			t.Error("expected weight range error")
		}
	})

	t.Run("symbol normalized", func(t *testing.T) {
		got, err := Allocation(map[string]float64{"spy": 1.0}, true)
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := got["SPY"]; !ok {
			t.Errorf("expected normalized key SPY, got %v", got)
		}
	})

	t.Run("empty rejected", func(t *testing.T) {
		if _, err := Allocation(nil, true); err == nil {
			t.Error("expected error for empty allocation")
		}
	})
}

func TestPath(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		allowedDir string
		shouldErr  bool
	}{
		{"simple relative", "tokens/schwab.bin", "", false},
		{"absolute", "/var/lib/app/tokens.bin", "", false},
		{"null byte", "tokens\x00.bin", "", true},
		{"traversal", "../../etc/passwd", "", true},
		{"embedded traversal", "tokens/../../secret", "", true},
		{"confined ok", "/var/lib/app/tokens.bin", "/var/lib/app", false},
		{"confined escape", "/var/lib/other/tokens.bin", "/var/lib/app", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Path(tt.path, tt.allowedDir)
			if (err != nil) != tt.shouldErr {
				t.Errorf("Path(%q, %q) error = %v, shouldErr = %v", tt.path, tt.allowedDir, err, tt.shouldErr)
			}
		})
	}

	t.Run("too long", func(t *testing.T) {
		if _, err := Path(strings.Repeat("a", 5000), ""); err == nil {
			t.Error("expected length error")
		}
	})
}

func TestSanitizeForLog(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		max   int
		want  string
	}{
		{"plain", "Normal string", 100, "Normal string"},
		{"newlines removed", "Line 1\nLine 2", 100, "Line 1 Line 2"},
		{"carriage returns", "a\r\nb", 100, "a b"},
		{"control chars", "x\x00\x1by", 100, "x y"},
		{"whitespace collapsed", "a    b\t\tc", 100, "a b c"},
		{"truncated", strings.Repeat("A", 60), 50, strings.Repeat("A", 50) + "..."},
		{"truncation lands on rune boundary", "日本語の文字列", 6, "日本..."},
		{"truncation backs off mid-rune", "AAAA日本語", 5, "AAAA..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeForLog(tt.in, tt.max); got != tt.want {
				t.Errorf("SanitizeForLog(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRedactAccountNumber(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"123456789", "*****6789"},
		{"1234", "****"},
		{"12", "**"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := RedactAccountNumber(tt.in); got != tt.want {
			t.Errorf("RedactAccountNumber(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRedactAmount(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{50, "<$100"},
		{500, "$100-$1K"},
		{5_000, "$1K-$10K"},
		{50_000, "$10K-$100K"},
		{500_000, "$100K-$1M"},
		{2_500_000, ">$2M"},
	}
	for _, tt := range tests {
		if got := RedactAmount(tt.in); got != tt.want {
			t.Errorf("RedactAmount(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
