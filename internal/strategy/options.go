package strategy

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"schwab-invest-bot/internal/audit"
	"schwab-invest-bot/internal/logging"
	"schwab-invest-bot/internal/orders"
	"schwab-invest-bot/internal/schwab"
)

// Contracts cover 100 shares, so holdings below that can never be hedged.
const sharesPerContract = 100

// Strikes further than this from the target are not considered.
const maxStrikeDistance = 0.10

// OptionResult is the per-symbol outcome of an option hedge attempt.
type OptionResult struct {
	Symbol       string  `json:"symbol"`
	Status       Status  `json:"status"`
	Contracts    int64   `json:"contracts,omitempty"`
	OptionSymbol string  `json:"option_symbol,omitempty"`
	Strike       float64 `json:"strike,omitempty"`
	Expiry       string  `json:"expiry,omitempty"`
	Premium      float64 `json:"premium,omitempty"`
	Cost         float64 `json:"cost,omitempty"`
	OrderID      string  `json:"order_id,omitempty"`
	Reason       string  `json:"reason,omitempty"`
	Error        string  `json:"error,omitempty"`
}

// Options writes covered calls against holdings and buys protective puts
// under them. Both only act on equity positions of at least 100 shares.
type Options struct {
	client schwab.Client
	exec   *Executor
	logger *logging.Logger
	now    func() time.Time
}

// NewOptions creates the option hedge engine.
func NewOptions(client schwab.Client, exec *Executor, logger *logging.Logger) *Options {
	if logger == nil {
		logger = logging.Default()
	}
	return &Options{client: client, exec: exec, logger: logger.WithComponent("options"), now: time.Now}
}

// SellCoveredCalls sells one OTM call per 100 held shares. symbols narrows
// the positions considered; nil means all equity positions.
func (s *Options) SellCoveredCalls(ctx context.Context, symbols []string, daysToExpiry int, otmPct float64, dryRun bool) ([]OptionResult, error) {
	s.logger.Info("Executing covered calls", "days_to_expiry", daysToExpiry, "otm_pct", otmPct, "dry_run", dryRun)
	return s.eachEligiblePosition(ctx, symbols, dryRun, func(symbol string, contracts int64) (OptionResult, error) {
		return s.sellCoveredCall(ctx, symbol, contracts, daysToExpiry, otmPct, dryRun)
	})
}

// BuyProtectivePuts buys one OTM put per 100 held shares.
func (s *Options) BuyProtectivePuts(ctx context.Context, symbols []string, daysToExpiry int, otmPct float64, dryRun bool) ([]OptionResult, error) {
	s.logger.Info("Executing protective puts", "days_to_expiry", daysToExpiry, "otm_pct", otmPct, "dry_run", dryRun)
	return s.eachEligiblePosition(ctx, symbols, dryRun, func(symbol string, contracts int64) (OptionResult, error) {
		return s.buyProtectivePut(ctx, symbol, contracts, daysToExpiry, otmPct, dryRun)
	})
}

func (s *Options) eachEligiblePosition(ctx context.Context, symbols []string, dryRun bool, run func(symbol string, contracts int64) (OptionResult, error)) ([]OptionResult, error) {
	positions, err := s.client.GetPositions(ctx)
	if err != nil {
		s.exec.auditStrategy(audit.StrategyFailed, orders.StrategyOptions, symbols, nil, dryRun, map[string]interface{}{"error": err.Error()})
		return nil, err
	}

	wanted := make(map[string]bool, len(symbols))
	for _, sym := range symbols {
		wanted[sym] = true
	}

	s.exec.auditStrategy(audit.StrategyStarted, orders.StrategyOptions, symbols, nil, dryRun, nil)

	results := make([]OptionResult, 0)
	for _, p := range positions {
		if p.AssetType != "EQUITY" || p.Quantity < sharesPerContract {
			continue
		}
		if len(wanted) > 0 && !wanted[p.Symbol] {
			continue
		}
		contracts := int64(p.Quantity) / sharesPerContract
		result, err := run(p.Symbol, contracts)
		if err != nil {
			s.logger.WithError(err).Error("Option order failed", "symbol", p.Symbol)
			result = OptionResult{Symbol: p.Symbol, Status: StatusFailed, Error: err.Error()}
		}
		results = append(results, result)
	}

	s.exec.auditStrategy(audit.StrategyCompleted, orders.StrategyOptions, symbols, nil, dryRun, map[string]interface{}{
		"orders": len(results),
	})
	return results, nil
}

func (s *Options) sellCoveredCall(ctx context.Context, symbol string, contracts int64, daysToExpiry int, otmPct float64, dryRun bool) (OptionResult, error) {
	quote, err := s.client.GetQuote(ctx, symbol)
	if err != nil {
		return OptionResult{}, err
	}
	if quote.LastPrice <= 0 {
		return OptionResult{}, &PriceError{Symbol: symbol, Price: quote.LastPrice}
	}

	targetStrike := quote.LastPrice * (1 + otmPct)
	chain, err := s.client.GetOptionChain(ctx, symbol, "CALL", 10)
	if err != nil {
		return OptionResult{}, err
	}

	pick := s.findContract(chain, targetStrike, daysToExpiry, false)
	if pick == nil {
		return OptionResult{Symbol: symbol, Status: StatusSkipped, Reason: "no suitable option found"}, nil
	}

	premium := pick.contract.Bid * sharesPerContract * float64(contracts)
	s.logger.Info("Covered call selected",
		"symbol", symbol,
		"contracts", contracts,
		"strike", pick.strike,
		"expiry", pick.expiry,
		"premium", premium)

	if dryRun {
		return OptionResult{
			Symbol:       symbol,
			Status:       StatusDryRun,
			Contracts:    contracts,
			OptionSymbol: pick.contract.Symbol,
			Strike:       pick.strike,
			Expiry:       pick.expiry,
			Premium:      premium,
		}, nil
	}

	resp, err := s.placeOptionOrder(ctx, symbol, pick.contract.Symbol, schwab.Sell, contracts, "NET_CREDIT", pick.contract.Bid, premium)
	if err != nil {
		return OptionResult{}, err
	}
	return OptionResult{
		Symbol:       symbol,
		Status:       StatusSuccess,
		Contracts:    contracts,
		OptionSymbol: pick.contract.Symbol,
		Strike:       pick.strike,
		Expiry:       pick.expiry,
		Premium:      premium,
		OrderID:      resp.OrderID,
	}, nil
}

func (s *Options) buyProtectivePut(ctx context.Context, symbol string, contracts int64, daysToExpiry int, otmPct float64, dryRun bool) (OptionResult, error) {
	quote, err := s.client.GetQuote(ctx, symbol)
	if err != nil {
		return OptionResult{}, err
	}
	if quote.LastPrice <= 0 {
		return OptionResult{}, &PriceError{Symbol: symbol, Price: quote.LastPrice}
	}

	targetStrike := quote.LastPrice * (1 - otmPct)
	chain, err := s.client.GetOptionChain(ctx, symbol, "PUT", 10)
	if err != nil {
		return OptionResult{}, err
	}

	pick := s.findContract(chain, targetStrike, daysToExpiry, true)
	if pick == nil {
		return OptionResult{Symbol: symbol, Status: StatusSkipped, Reason: "no suitable option found"}, nil
	}

	cost := pick.contract.Ask * sharesPerContract * float64(contracts)
	s.logger.Info("Protective put selected",
		"symbol", symbol,
		"contracts", contracts,
		"strike", pick.strike,
		"expiry", pick.expiry,
		"cost", cost)

	if dryRun {
		return OptionResult{
			Symbol:       symbol,
			Status:       StatusDryRun,
			Contracts:    contracts,
			OptionSymbol: pick.contract.Symbol,
			Strike:       pick.strike,
			Expiry:       pick.expiry,
			Cost:         cost,
		}, nil
	}

	resp, err := s.placeOptionOrder(ctx, symbol, pick.contract.Symbol, schwab.Buy, contracts, "NET_DEBIT", pick.contract.Ask, cost)
	if err != nil {
		return OptionResult{}, err
	}
	return OptionResult{
		Symbol:       symbol,
		Status:       StatusSuccess,
		Contracts:    contracts,
		OptionSymbol: pick.contract.Symbol,
		Strike:       pick.strike,
		Expiry:       pick.expiry,
		Cost:         cost,
		OrderID:      resp.OrderID,
	}, nil
}

func (s *Options) placeOptionOrder(ctx context.Context, underlying, optionSymbol string, action schwab.Action, contracts int64, orderType string, limitPrice, amount float64) (*schwab.OrderResponse, error) {
	// Option submissions hold the same per-account lock as equity orders so a
	// concurrent strategy run cannot interleave with this submission.
	s.exec.submitMu.Lock()
	defer s.exec.submitMu.Unlock()

	side := orders.SideBuy
	if action == schwab.Sell {
		side = orders.SideSell
	}
	clientOrderID, err := s.exec.ids.Generate(orders.StrategyOptions, side)
	if err != nil {
		return nil, err
	}

	s.exec.auditTrade(audit.TradeInitiated, orders.StrategyOptions, underlying, amount, contracts, action, false, "")
	resp, err := s.client.PlaceOrder(ctx, schwab.OrderSpec{
		Symbol:        optionSymbol,
		Action:        action,
		Quantity:      contracts,
		OrderType:     orderType,
		LimitPrice:    &limitPrice,
		AssetType:     "OPTION",
		ClientOrderID: clientOrderID,
	})
	if err != nil {
		s.exec.auditTrade(audit.TradeFailed, orders.StrategyOptions, underlying, amount, contracts, action, false, err.Error())
		return nil, err
	}
	s.exec.auditTrade(audit.TradeExecuted, orders.StrategyOptions, underlying, amount, contracts, action, false, "")
	return resp, nil
}

type contractPick struct {
	contract schwab.OptionContract
	strike   float64
	expiry   string
}

// findContract picks the contract whose strike is nearest the target, with a
// light preference for expirations near the target horizon. Strikes more than
// 10% from the target and quotes with no usable price are ignored. wantAsk
// selects puts (priced at ask) over calls (priced at bid).
func (s *Options) findContract(chain *schwab.OptionChain, targetStrike float64, targetDays int, wantAsk bool) *contractPick {
	var best *contractPick
	bestScore := math.Inf(1)
	now := s.now()

	for expKey, strikes := range chain.ExpDateMap {
		expiry := strings.SplitN(expKey, ":", 2)[0]
		daysOut := 0.0
		if expDate, err := time.Parse("2006-01-02", expiry); err == nil {
			daysOut = expDate.Sub(now).Hours() / 24
		}

		for strikeStr, contracts := range strikes {
			strike, err := strconv.ParseFloat(strikeStr, 64)
			if err != nil {
				continue
			}
			if math.Abs(strike-targetStrike)/targetStrike > maxStrikeDistance {
				continue
			}
			for _, c := range contracts {
				price := c.Bid
				if wantAsk {
					price = c.Ask
				}
				if price <= 0 {
					continue
				}
				score := math.Abs(strike-targetStrike) + 0.01*math.Abs(daysOut-float64(targetDays))
				if score < bestScore {
					bestScore = score
					best = &contractPick{contract: c, strike: strike, expiry: expiry}
				}
			}
		}
	}
	return best
}
