package strategy

import (
	"context"

	"schwab-invest-bot/internal/audit"
	"schwab-invest-bot/internal/logging"
	"schwab-invest-bot/internal/orders"
	"schwab-invest-bot/internal/schwab"
)

const (
	// Cash below this is left alone rather than reinvested.
	dripMinCash = 10.0
	// Proportional slices below this are skipped as not worth an order.
	dripMinSlice = 5.0
)

// DRIP reinvests available cash into existing equity positions in proportion
// to their market value. Any equity position is treated as dividend-paying;
// the brokerage feed does not expose dividend history here.
type DRIP struct {
	client schwab.Client
	exec   *Executor
	logger *logging.Logger
}

// NewDRIP creates the dividend reinvestment engine.
func NewDRIP(client schwab.Client, exec *Executor, logger *logging.Logger) *DRIP {
	if logger == nil {
		logger = logging.Default()
	}
	return &DRIP{client: client, exec: exec, logger: logger.WithComponent("drip")}
}

// Execute reads positions and cash, then buys back into each equity position
// proportionally. Returns an error only when account state cannot be read;
// per-symbol failures are recorded in the results.
func (s *DRIP) Execute(ctx context.Context, dryRun bool) ([]OrderResult, error) {
	s.logger.Info("Executing DRIP", "dry_run", dryRun)

	positions, err := s.client.GetPositions(ctx)
	if err != nil {
		s.exec.auditStrategy(audit.StrategyFailed, orders.StrategyDRIP, nil, nil, dryRun, map[string]interface{}{"error": err.Error()})
		return nil, err
	}
	balances, err := s.client.GetBalances(ctx)
	if err != nil {
		s.exec.auditStrategy(audit.StrategyFailed, orders.StrategyDRIP, nil, nil, dryRun, map[string]interface{}{"error": err.Error()})
		return nil, err
	}

	cash := balances.CashAvailable
	s.logger.Info("Cash available for reinvestment", "cash", cash)

	var equity []schwab.Position
	for _, p := range positions {
		if p.AssetType == "EQUITY" {
			equity = append(equity, p)
		}
	}
	if len(equity) == 0 {
		s.logger.Info("No equity positions to reinvest into")
		return []OrderResult{}, nil
	}
	if cash < dripMinCash {
		s.logger.Info("Cash below reinvestment minimum", "cash", cash, "minimum", dripMinCash)
		return []OrderResult{}, nil
	}

	totalValue := 0.0
	for _, p := range equity {
		totalValue += p.MarketValue
	}
	if totalValue == 0 {
		s.logger.Warn("Total position value is zero")
		return []OrderResult{}, nil
	}

	symbols := make([]string, 0, len(equity))
	for _, p := range equity {
		symbols = append(symbols, p.Symbol)
	}
	s.exec.publishStrategyStarted(orders.StrategyDRIP, symbols, dryRun)
	s.exec.auditStrategy(audit.StrategyStarted, orders.StrategyDRIP, symbols, &cash, dryRun, nil)

	results := make([]OrderResult, 0, len(equity))
	for _, p := range equity {
		slice := cash * (p.MarketValue / totalValue)
		if slice < dripMinSlice {
			continue
		}
		result, err := s.exec.ExecuteOrder(ctx, orders.StrategyDRIP, p.Symbol, slice, schwab.Buy, dryRun)
		if err != nil {
			s.logger.WithError(err).Error("DRIP reinvestment failed", "symbol", p.Symbol)
		}
		results = append(results, result)
	}

	s.exec.auditStrategy(audit.StrategyCompleted, orders.StrategyDRIP, symbols, &cash, dryRun, map[string]interface{}{
		"orders": len(results),
	})
	s.exec.publishStrategyCompleted(orders.StrategyDRIP, results)
	return results, nil
}
