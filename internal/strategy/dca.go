package strategy

import (
	"context"

	"schwab-invest-bot/internal/audit"
	"schwab-invest-bot/internal/logging"
	"schwab-invest-bot/internal/orders"
	"schwab-invest-bot/internal/schwab"
)

// DCA buys a fixed dollar amount split equally across a symbol list.
type DCA struct {
	exec   *Executor
	logger *logging.Logger
}

// NewDCA creates the dollar-cost averaging engine.
func NewDCA(exec *Executor, logger *logging.Logger) *DCA {
	if logger == nil {
		logger = logging.Default()
	}
	return &DCA{exec: exec, logger: logger.WithComponent("dca")}
}

// Execute splits totalAmount equally across symbols and buys each
// independently. One symbol's failure never blocks the others.
func (s *DCA) Execute(ctx context.Context, symbols []string, totalAmount float64, dryRun bool) []OrderResult {
	s.logger.Info("Executing DCA", "total_amount", totalAmount, "symbols", len(symbols), "dry_run", dryRun)

	if len(symbols) == 0 {
		s.logger.Warn("No symbols provided for DCA")
		return []OrderResult{}
	}

	s.exec.publishStrategyStarted(orders.StrategyDCA, symbols, dryRun)
	s.exec.auditStrategy(audit.StrategyStarted, orders.StrategyDCA, symbols, &totalAmount, dryRun, nil)

	perSymbol := totalAmount / float64(len(symbols))
	results := make([]OrderResult, 0, len(symbols))
	for _, symbol := range symbols {
		result, err := s.exec.ExecuteOrder(ctx, orders.StrategyDCA, symbol, perSymbol, schwab.Buy, dryRun)
		if err != nil {
			s.logger.WithError(err).Error("DCA buy failed", "symbol", symbol)
		}
		results = append(results, result)
	}

	s.exec.auditStrategy(audit.StrategyCompleted, orders.StrategyDCA, symbols, &totalAmount, dryRun, map[string]interface{}{
		"orders": len(results),
	})
	s.exec.publishStrategyCompleted(orders.StrategyDCA, results)
	return results
}
