// Package orders provides structured client order ID generation. The ID rides
// along with every submitted order as an idempotency breadcrumb: it ties the
// brokerage order back to the strategy run that produced it.
package orders

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxClientOrderIDLength is the maximum tag length the brokerage accepts.
const MaxClientOrderIDLength = 36

// Strategy identifies which engine produced an order.
type Strategy string

const (
	StrategyDCA           Strategy = "dca"
	StrategyDRIP          Strategy = "drip"
	StrategyRebalance     Strategy = "rebalance"
	StrategyOpportunistic Strategy = "opportunistic"
	StrategyOptions       Strategy = "options"
	StrategyManual        Strategy = "manual"
)

// StrategyCode maps strategies to their 3-character ID prefix.
var StrategyCode = map[Strategy]string{
	StrategyDCA:           "DCA",
	StrategyDRIP:          "DRP",
	StrategyRebalance:     "REB",
	StrategyOpportunistic: "OPP",
	StrategyOptions:       "OPT",
	StrategyManual:        "MAN",
}

var codeStrategy = func() map[string]Strategy {
	m := make(map[string]Strategy, len(StrategyCode))
	for s, c := range StrategyCode {
		m[c] = s
	}
	return m
}()

var (
	ErrInvalidClientOrderID = errors.New("invalid client order ID format")
	ErrInvalidStrategy      = errors.New("invalid strategy")
	ErrInvalidSide          = errors.New("invalid order side")
)

// Side is the single-character buy/sell suffix.
type Side string

const (
	SideBuy  Side = "B"
	SideSell Side = "S"
)

// Generator creates client order IDs.
// Format: [STRATEGY]-[DDMMM]-[8HEX]-[SIDE] (e.g., "DCA-28AUG-a3f7c2e9-B").
// The hex segment comes from a fresh UUID, so IDs are unique without any
// shared sequence state.
type Generator struct {
	timezone *time.Location
	now      func() time.Time
}

// NewGenerator creates a Generator. If timezone is nil, UTC is used.
func NewGenerator(timezone *time.Location) *Generator {
	if timezone == nil {
		timezone = time.UTC
	}
	return &Generator{timezone: timezone, now: time.Now}
}

// Generate creates a new client order ID for the given strategy and side.
func (g *Generator) Generate(strategy Strategy, side Side) (string, error) {
	code, ok := StrategyCode[strategy]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidStrategy, strategy)
	}
	if side != SideBuy && side != SideSell {
		return "", fmt.Errorf("%w: %q", ErrInvalidSide, side)
	}

	now := g.now().In(g.timezone)
	dateStr := strings.ToUpper(now.Format("02Jan")) // "28AUG"
	unique := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]

	id := fmt.Sprintf("%s-%s-%s-%s", code, dateStr, unique, side)
	if len(id) > MaxClientOrderIDLength {
		return "", fmt.Errorf("%w: generated ID %q is %d characters", ErrInvalidClientOrderID, id, len(id))
	}
	return id, nil
}

// ParsedID holds the components of a client order ID.
type ParsedID struct {
	Strategy Strategy
	Code     string
	Date     string // DDMMM as generated
	Unique   string
	Side     Side
}

// Parse splits a client order ID back into its components.
func Parse(id string) (*ParsedID, error) {
	if id == "" {
		return nil, ErrInvalidClientOrderID
	}
	parts := strings.Split(id, "-")
	if len(parts) != 4 {
		return nil, fmt.Errorf("%w: expected 4 parts in %q", ErrInvalidClientOrderID, id)
	}

	strategy, ok := codeStrategy[parts[0]]
	if !ok {
		return nil, fmt.Errorf("%w: unknown strategy code %q", ErrInvalidClientOrderID, parts[0])
	}
	if len(parts[1]) != 5 {
		return nil, fmt.Errorf("%w: date segment %q should be 5 characters", ErrInvalidClientOrderID, parts[1])
	}
	if len(parts[2]) != 8 {
		return nil, fmt.Errorf("%w: unique segment %q should be 8 characters", ErrInvalidClientOrderID, parts[2])
	}
	side := Side(parts[3])
	if side != SideBuy && side != SideSell {
		return nil, fmt.Errorf("%w: side %q", ErrInvalidClientOrderID, parts[3])
	}

	return &ParsedID{
		Strategy: strategy,
		Code:     parts[0],
		Date:     parts[1],
		Unique:   parts[2],
		Side:     side,
	}, nil
}

// Validate reports whether an ID is well formed.
func Validate(id string) error {
	if len(id) > MaxClientOrderIDLength {
		return fmt.Errorf("%w: %d characters (max %d)", ErrInvalidClientOrderID, len(id), MaxClientOrderIDLength)
	}
	_, err := Parse(id)
	return err
}
