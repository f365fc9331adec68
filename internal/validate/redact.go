package validate

import (
	"fmt"
	"strings"
)

// RedactAccountNumber reduces an account number to a last-4-visible form for
// audit output. Short values are fully masked.
func RedactAccountNumber(account string) string {
	account = strings.TrimSpace(account)
	if account == "" {
		return ""
	}
	if len(account) <= 4 {
		return strings.Repeat("*", len(account))
	}
	return strings.Repeat("*", len(account)-4) + account[len(account)-4:]
}

// RedactAmount maps a dollar amount to a coarse magnitude bucket, suitable for
// display alongside audit entries without exposing the exact figure.
func RedactAmount(amount float64) string {
	abs := amount
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs < 100:
		return "<$100"
	case abs < 1_000:
		return "$100-$1K"
	case abs < 10_000:
		return "$1K-$10K"
	case abs < 100_000:
		return "$10K-$100K"
	case abs < 1_000_000:
		return "$100K-$1M"
	default:
		return fmt.Sprintf(">$%dM", int(abs/1_000_000))
	}
}
