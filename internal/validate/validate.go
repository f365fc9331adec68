// Package validate gates every externally supplied value (CLI, API, config)
// before it reaches trading logic. All functions are pure; domain code assumes
// pre-validated input and does not re-check.
package validate

import (
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultMinAmount is the smallest tradable dollar amount.
	DefaultMinAmount = 0.01
	// DefaultMaxAmount caps a single strategy amount.
	DefaultMaxAmount = 1_000_000.00

	// MaxSymbols limits how many symbols one strategy call may touch.
	MaxSymbols = 50
	// MaxAllocationEntries limits target allocation size.
	MaxAllocationEntries = 100

	// AllocationTolerance is the permitted deviation of allocation weights from 1.0.
	AllocationTolerance = 0.001

	maxPathLength = 4096
)

var symbolPattern = regexp.MustCompile(`^[A-Z]{1,5}$`)

// ValidationError describes a rejected input value. It always names the field
// and carries the offending value so callers can surface a useful message.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: %s (got %s)", e.Field, e.Reason, e.Value)
}

func errf(field, value, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Value: value, Reason: fmt.Sprintf(format, args...)}
}

// Amount validates a dollar amount against [DefaultMinAmount, DefaultMaxAmount]
// and rounds it to cents.
func Amount(amount float64) (float64, error) {
	return AmountRange(amount, DefaultMinAmount, DefaultMaxAmount, "amount")
}

// AmountRange validates a dollar amount against a caller-supplied range.
func AmountRange(amount, min, max float64, field string) (float64, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, errf(field, fmt.Sprintf("%v", amount), "must be a finite number")
	}
	if amount <= 0 {
		return 0, errf(field, fmt.Sprintf("$%.2f", amount), "must be positive")
	}
	if amount < min {
		return 0, errf(field, fmt.Sprintf("$%.2f", amount), "must be at least $%.2f", min)
	}
	if amount > max {
		return 0, errf(field, fmt.Sprintf("$%.2f", amount), "exceeds maximum of $%.2f", max)
	}
	return math.Round(amount*100) / 100, nil
}

// Symbol validates a stock symbol and returns it uppercased.
func Symbol(symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" {
		return "", errf("symbol", "", "cannot be empty or whitespace")
	}
	if len(s) > 5 {
		return "", errf("symbol", s, "must be 1-5 characters, got %d", len(s))
	}
	if !symbolPattern.MatchString(s) {
		return "", errf("symbol", s, "must contain only letters A-Z")
	}
	return s, nil
}

// Symbols parses a comma-separated string or pre-split list into validated,
// uppercased symbols. Duplicates after normalization are rejected.
func Symbols(raw []string) ([]string, error) {
	var parts []string
	for _, item := range raw {
		for _, p := range strings.Split(item, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
	}

	if len(parts) == 0 {
		return nil, errf("symbols", "", "at least 1 symbol required")
	}
	if len(parts) > MaxSymbols {
		return nil, errf("symbols", fmt.Sprintf("%d symbols", len(parts)), "maximum %d allowed", MaxSymbols)
	}

	seen := make(map[string]bool, len(parts))
	validated := make([]string, 0, len(parts))
	for _, p := range parts {
		s, err := Symbol(p)
		if err != nil {
			return nil, err
		}
		if seen[s] {
			return nil, errf("symbols", s, "duplicate symbols not allowed")
		}
		seen[s] = true
		validated = append(validated, s)
	}
	return validated, nil
}

// Threshold validates a fractional threshold in [0, 1] and rounds it to six
// decimal places.
func Threshold(threshold float64) (float64, error) {
	return ThresholdRange(threshold, 0.0, 1.0, "threshold")
}

// ThresholdRange validates a threshold against a caller-supplied range.
func ThresholdRange(threshold, min, max float64, field string) (float64, error) {
	if math.IsNaN(threshold) || math.IsInf(threshold, 0) {
		return 0, errf(field, fmt.Sprintf("%v", threshold), "must be a finite number")
	}
	if threshold < min {
		return 0, errf(field, fmt.Sprintf("%v", threshold), "must be at least %v", min)
	}
	if threshold > max {
		return 0, errf(field, fmt.Sprintf("%v", threshold), "cannot exceed %v", max)
	}
	return math.Round(threshold*1e6) / 1e6, nil
}

// Allocation validates a symbol -> weight map. Weights must be in (0, 1] and,
// when requireSumToOne is set, sum to 1.0 within AllocationTolerance. Symbols
// are normalized and weights rounded to six decimal places.
func Allocation(allocation map[string]float64, requireSumToOne bool) (map[string]float64, error) {
	if len(allocation) == 0 {
		return nil, errf("allocation", "", "cannot be empty")
	}
	if len(allocation) > MaxAllocationEntries {
		return nil, errf("allocation", fmt.Sprintf("%d entries", len(allocation)), "maximum %d symbols allowed", MaxAllocationEntries)
	}

	validated := make(map[string]float64, len(allocation))
	total := 0.0
	for symbol, weight := range allocation {
		s, err := Symbol(symbol)
		if err != nil {
			return nil, err
		}
		if math.IsNaN(weight) || math.IsInf(weight, 0) {
			return nil, errf("allocation", s, "weight must be finite")
		}
		if weight <= 0 || weight > 1 {
			return nil, errf("allocation", fmt.Sprintf("%s=%v", s, weight), "weight must be in (0, 1]")
		}
		if _, dup := validated[s]; dup {
			return nil, errf("allocation", s, "duplicate symbols not allowed")
		}
		w := math.Round(weight*1e6) / 1e6
		validated[s] = w
		total += w
	}

	if requireSumToOne && math.Abs(total-1.0) > AllocationTolerance {
		return nil, errf("allocation", fmt.Sprintf("%.6f", total), "weights must sum to 1.0 (±%v)", AllocationTolerance)
	}
	return validated, nil
}

// Path validates a filesystem path used for token or log files. It rejects
// null bytes, oversized paths, and traversal sequences. If allowedDir is
// non-empty, the resolved path must stay inside it.
func Path(path, allowedDir string) (string, error) {
	if path == "" {
		return "", errf("path", "", "cannot be empty")
	}
	if strings.ContainsRune(path, 0) {
		return "", errf("path", "", "contains null byte")
	}
	if len(path) > maxPathLength {
		return "", errf("path", fmt.Sprintf("%d chars", len(path)), "exceeds maximum length %d", maxPathLength)
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return "", errf("path", path, "path traversal not allowed")
		}
	}

	cleaned := filepath.Clean(path)
	if allowedDir != "" {
		absDir, err := filepath.Abs(allowedDir)
		if err != nil {
			return "", errf("path", allowedDir, "cannot resolve allowed directory")
		}
		abs, err := filepath.Abs(cleaned)
		if err != nil {
			return "", errf("path", path, "cannot resolve path")
		}
		rel, err := filepath.Rel(absDir, abs)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", errf("path", path, "must be inside %s", allowedDir)
		}
	}
	return cleaned, nil
}

// SanitizeForLog strips control characters, collapses whitespace, and
// truncates with an ellipsis so untrusted strings cannot forge log lines.
func SanitizeForLog(value string, maxLength int) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if r < 0x20 || (r >= 0x7f && r <= 0x9f) {
			b.WriteByte(' ')
			continue
		}
		b.WriteRune(r)
	}
	cleaned := strings.Join(strings.Fields(b.String()), " ")
	if maxLength > 0 && len(cleaned) > maxLength {
		// Back off to a rune boundary so truncation never emits invalid UTF-8.
		cut := maxLength
		for cut > 0 && !utf8.RuneStart(cleaned[cut]) {
			cut--
		}
		cleaned = cleaned[:cut] + "..."
	}
	return cleaned
}
