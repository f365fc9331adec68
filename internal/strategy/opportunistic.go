package strategy

import (
	"context"
	"math"

	"schwab-invest-bot/internal/audit"
	"schwab-invest-bot/internal/logging"
	"schwab-invest-bot/internal/orders"
	"schwab-invest-bot/internal/schwab"
)

// Opportunistic buys a fixed amount when a watchlist symbol dips, either from
// its 52-week high or sharply intraday. There is no cooldown between
// triggers: a symbol that stays dipped buys again on every run.
type Opportunistic struct {
	client schwab.Client
	exec   *Executor
	logger *logging.Logger
}

// NewOpportunistic creates the dip-buying engine.
func NewOpportunistic(client schwab.Client, exec *Executor, logger *logging.Logger) *Opportunistic {
	if logger == nil {
		logger = logging.Default()
	}
	return &Opportunistic{client: client, exec: exec, logger: logger.WithComponent("opportunistic")}
}

// Execute scans the watchlist and buys buyAmount of each dipped symbol. Only
// triggered symbols appear in the results; symbols with missing or bad quote
// data are skipped silently.
func (s *Opportunistic) Execute(ctx context.Context, watchlist []string, dipThreshold, buyAmount float64, dryRun bool) []OrderResult {
	s.logger.Info("Executing opportunistic scan",
		"watchlist", len(watchlist),
		"dip_threshold", dipThreshold,
		"buy_amount", buyAmount,
		"dry_run", dryRun)

	s.exec.publishStrategyStarted(orders.StrategyOpportunistic, watchlist, dryRun)
	s.exec.auditStrategy(audit.StrategyStarted, orders.StrategyOpportunistic, watchlist, &buyAmount, dryRun, map[string]interface{}{
		"dip_threshold": dipThreshold,
	})

	results := make([]OrderResult, 0)
	for _, symbol := range watchlist {
		result, triggered := s.checkSymbol(ctx, symbol, dipThreshold, buyAmount, dryRun)
		if triggered {
			results = append(results, result)
		}
	}

	s.exec.auditStrategy(audit.StrategyCompleted, orders.StrategyOpportunistic, watchlist, &buyAmount, dryRun, map[string]interface{}{
		"triggers": len(results),
	})
	s.exec.publishStrategyCompleted(orders.StrategyOpportunistic, results)
	return results
}

func (s *Opportunistic) checkSymbol(ctx context.Context, symbol string, dipThreshold, buyAmount float64, dryRun bool) (OrderResult, bool) {
	quote, err := s.client.GetQuote(ctx, symbol)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to check symbol for dip", "symbol", symbol)
		return OrderResult{}, false
	}

	lastPrice := quote.LastPrice
	if lastPrice <= 0 || quote.Week52High == nil || *quote.Week52High <= 0 {
		s.logger.Warn("Invalid price data", "symbol", symbol)
		return OrderResult{}, false
	}
	week52High := *quote.Week52High

	dipFromHigh := (week52High - lastPrice) / week52High

	intradayChange := 0.0
	if quote.OpenPrice != nil && *quote.OpenPrice > 0 {
		intradayChange = (lastPrice - *quote.OpenPrice) / *quote.OpenPrice
	}

	s.logger.Debug("Dip check",
		"symbol", symbol,
		"last_price", lastPrice,
		"week_52_high", week52High,
		"dip_from_high", dipFromHigh,
		"intraday", intradayChange)

	isDip := dipFromHigh >= dipThreshold ||
		(intradayChange < 0 && math.Abs(intradayChange) >= dipThreshold)
	if !isDip {
		return OrderResult{}, false
	}

	s.logger.Info("Dip detected",
		"symbol", symbol,
		"dip_from_high", dipFromHigh,
		"intraday", intradayChange)
	if s.exec.bus != nil {
		s.exec.bus.PublishDipDetected(symbol, lastPrice, week52High, dipFromHigh)
	}

	result, err := s.exec.ExecuteOrder(ctx, orders.StrategyOpportunistic, symbol, buyAmount, schwab.Buy, dryRun)
	if err != nil {
		s.logger.WithError(err).Error("Opportunistic buy failed", "symbol", symbol)
	}
	result.Dip = dipFromHigh
	return result, true
}
