package strategy

import (
	"context"
	"math"

	"schwab-invest-bot/internal/audit"
	"schwab-invest-bot/internal/logging"
	"schwab-invest-bot/internal/orders"
	"schwab-invest-bot/internal/schwab"
)

// Rebalance trades the portfolio back toward a target allocation whenever a
// symbol's weight drifts beyond a threshold. Best-effort, not transactional:
// each action executes independently and a failure on one symbol does not
// abort the rest.
type Rebalance struct {
	client schwab.Client
	exec   *Executor
	logger *logging.Logger
}

// NewRebalance creates the rebalancing engine.
func NewRebalance(client schwab.Client, exec *Executor, logger *logging.Logger) *Rebalance {
	if logger == nil {
		logger = logging.Default()
	}
	return &Rebalance{client: client, exec: exec, logger: logger.WithComponent("rebalance")}
}

// CurrentAllocation computes symbol weight as market value over liquidation
// value for every held symbol with positive market value. Empty when the
// liquidation value is zero.
func CurrentAllocation(positions []schwab.Position, liquidationValue float64) map[string]float64 {
	if liquidationValue == 0 {
		return map[string]float64{}
	}
	allocation := make(map[string]float64, len(positions))
	for _, p := range positions {
		if p.Symbol != "" && p.MarketValue > 0 {
			allocation[p.Symbol] = p.MarketValue / liquidationValue
		}
	}
	return allocation
}

// ComputeActions emits one action per target symbol whose deviation exceeds
// the threshold. Symbols held but absent from the target are left alone.
func ComputeActions(current, target map[string]float64, threshold float64) []RebalanceAction {
	actions := make([]RebalanceAction, 0)
	for symbol, targetPct := range target {
		currentPct := current[symbol]
		deviation := math.Abs(currentPct - targetPct)
		if deviation <= threshold {
			continue
		}
		action := schwab.Sell
		if targetPct > currentPct {
			action = schwab.Buy
		}
		actions = append(actions, RebalanceAction{
			Symbol:    symbol,
			Current:   currentPct,
			Target:    targetPct,
			Deviation: deviation,
			Action:    action,
		})
	}
	return actions
}

// Plan returns the actions a rebalance would take right now, without trading.
// The dashboard uses it for previews.
func (s *Rebalance) Plan(ctx context.Context, target map[string]float64, threshold float64) ([]RebalanceAction, error) {
	positions, err := s.client.GetPositions(ctx)
	if err != nil {
		return nil, err
	}
	balances, err := s.client.GetBalances(ctx)
	if err != nil {
		return nil, err
	}
	current := CurrentAllocation(positions, balances.LiquidationValue)
	if len(current) == 0 && balances.LiquidationValue == 0 {
		return []RebalanceAction{}, nil
	}
	return ComputeActions(current, target, threshold), nil
}

// Execute rebalances toward target. Returns an error only when account state
// cannot be read before any action runs; per-symbol failures are recorded in
// the results. A zero liquidation value yields no actions and no error.
func (s *Rebalance) Execute(ctx context.Context, target map[string]float64, threshold float64, dryRun bool) ([]OrderResult, error) {
	s.logger.Info("Executing rebalance", "threshold", threshold, "targets", len(target), "dry_run", dryRun)

	positions, err := s.client.GetPositions(ctx)
	if err != nil {
		s.exec.auditStrategy(audit.StrategyFailed, orders.StrategyRebalance, nil, nil, dryRun, map[string]interface{}{"error": err.Error()})
		return nil, err
	}
	balances, err := s.client.GetBalances(ctx)
	if err != nil {
		s.exec.auditStrategy(audit.StrategyFailed, orders.StrategyRebalance, nil, nil, dryRun, map[string]interface{}{"error": err.Error()})
		return nil, err
	}

	if balances.LiquidationValue == 0 {
		s.logger.Warn("Total portfolio value is zero, nothing to rebalance")
		return []OrderResult{}, nil
	}

	current := CurrentAllocation(positions, balances.LiquidationValue)
	actions := ComputeActions(current, target, threshold)
	if len(actions) == 0 {
		s.logger.Info("Portfolio is balanced, no actions needed")
		return []OrderResult{}, nil
	}

	symbols := make([]string, 0, len(actions))
	for _, a := range actions {
		symbols = append(symbols, a.Symbol)
		s.logger.Info("Rebalance action",
			"symbol", a.Symbol,
			"current", a.Current,
			"target", a.Target,
			"deviation", a.Deviation,
			"action", string(a.Action))
	}
	s.exec.publishStrategyStarted(orders.StrategyRebalance, symbols, dryRun)
	s.exec.auditStrategy(audit.StrategyStarted, orders.StrategyRebalance, symbols, nil, dryRun, map[string]interface{}{
		"threshold": threshold,
	})

	// Sizing uses a fresh balance read: prices drift while actions run, and
	// the snapshot that detected the deviation may already be stale.
	sizing, err := s.client.GetBalances(ctx)
	if err != nil {
		s.exec.auditStrategy(audit.StrategyFailed, orders.StrategyRebalance, symbols, nil, dryRun, map[string]interface{}{"error": err.Error()})
		return nil, err
	}
	totalValue := sizing.LiquidationValue

	results := make([]OrderResult, 0, len(actions))
	for _, a := range actions {
		tradeValue := math.Abs(totalValue*a.Target - totalValue*a.Current)
		result, err := s.exec.ExecuteOrder(ctx, orders.StrategyRebalance, a.Symbol, tradeValue, a.Action, dryRun)
		if err != nil {
			s.logger.WithError(err).Error("Rebalance trade failed", "symbol", a.Symbol)
		}
		results = append(results, result)
	}

	s.exec.auditStrategy(audit.StrategyCompleted, orders.StrategyRebalance, symbols, nil, dryRun, map[string]interface{}{
		"actions": len(actions),
	})
	s.exec.publishStrategyCompleted(orders.StrategyRebalance, results)
	return results, nil
}
