// Package scheduler runs the enabled strategies on their cron schedules.
// Cron expressions use six fields (with seconds); an empty schedule means
// the strategy is manual-trigger only.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"schwab-invest-bot/config"
	"schwab-invest-bot/internal/database"
	"schwab-invest-bot/internal/logging"
	"schwab-invest-bot/internal/strategy"
)

// taskTimeout bounds a single scheduled strategy run.
const taskTimeout = 5 * time.Minute

// Engines bundles the strategy engines the scheduler can drive.
type Engines struct {
	DCA           *strategy.DCA
	DRIP          *strategy.DRIP
	Rebalance     *strategy.Rebalance
	Opportunistic *strategy.Opportunistic
	Options       *strategy.Options
}

// Scheduler manages all cron tasks.
type Scheduler struct {
	cron    *cron.Cron
	engines Engines
	cfg     config.StrategiesConfig
	repo    *database.Repository
	logger  *logging.Logger
}

// New creates a scheduler in the given timezone. repo may be nil when the
// database is disabled; runs are then only logged.
func New(cfg config.StrategiesConfig, engines Engines, repo *database.Repository, location *time.Location, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Default()
	}
	if location == nil {
		location = time.Local
	}
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds(), cron.WithLocation(location)),
		engines: engines,
		cfg:     cfg,
		repo:    repo,
		logger:  logger.WithComponent("scheduler"),
	}
}

// RegisterAll registers a cron job for every enabled strategy with a schedule.
func (s *Scheduler) RegisterAll() error {
	jobs := []struct {
		name     string
		enabled  bool
		schedule string
		task     func()
	}{
		{"dca", s.cfg.DCA.Enabled, s.cfg.DCA.Schedule, s.dcaTask},
		{"drip", s.cfg.DRIP.Enabled, s.cfg.DRIP.Schedule, s.dripTask},
		{"rebalance", s.cfg.Rebalance.Enabled, s.cfg.Rebalance.Schedule, s.rebalanceTask},
		{"opportunistic", s.cfg.Opportunistic.Enabled, s.cfg.Opportunistic.Schedule, s.opportunisticTask},
		{"options", s.cfg.Options.Enabled, s.cfg.Options.Schedule, s.optionsTask},
	}

	for _, job := range jobs {
		if !job.enabled || job.schedule == "" {
			continue
		}
		if _, err := s.cron.AddFunc(job.schedule, job.task); err != nil {
			return err
		}
		s.logger.Info("Registered strategy schedule", "strategy", job.name, "schedule", job.schedule)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) dcaTask() {
	cfg := s.cfg.DCA
	s.logger.Info("Running scheduled DCA", "symbols", cfg.Symbols, "amount", cfg.Amount)

	ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
	defer cancel()

	started := time.Now()
	results := s.engines.DCA.Execute(ctx, cfg.Symbols, cfg.Amount, cfg.DryRun)
	s.recordRun("dca", cfg.DryRun, started, results, nil)
}

func (s *Scheduler) dripTask() {
	cfg := s.cfg.DRIP
	s.logger.Info("Running scheduled DRIP")

	ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
	defer cancel()

	started := time.Now()
	results, err := s.engines.DRIP.Execute(ctx, cfg.DryRun)
	s.recordRun("drip", cfg.DryRun, started, results, err)
}

func (s *Scheduler) rebalanceTask() {
	cfg := s.cfg.Rebalance
	s.logger.Info("Running scheduled rebalance", "threshold", cfg.Threshold)

	ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
	defer cancel()

	started := time.Now()
	results, err := s.engines.Rebalance.Execute(ctx, cfg.Target, cfg.Threshold, cfg.DryRun)
	s.recordRun("rebalance", cfg.DryRun, started, results, err)
}

func (s *Scheduler) opportunisticTask() {
	cfg := s.cfg.Opportunistic
	s.logger.Info("Running scheduled dip check", "watchlist", cfg.Watchlist)

	ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
	defer cancel()

	started := time.Now()
	results := s.engines.Opportunistic.Execute(ctx, cfg.Watchlist, cfg.DipThreshold, cfg.BuyAmount, cfg.DryRun)
	s.recordRun("opportunistic", cfg.DryRun, started, results, nil)
}

func (s *Scheduler) optionsTask() {
	cfg := s.cfg.Options
	s.logger.Info("Running scheduled option hedges")

	ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
	defer cancel()

	started := time.Now()
	run := database.StrategyRun{
		Strategy:      "options",
		TriggerSource: "schedule",
		DryRun:        cfg.DryRun,
		StartedAt:     started,
	}

	if cfg.CoveredCalls {
		results, err := s.engines.Options.SellCoveredCalls(ctx, cfg.Symbols, cfg.DaysToExpiry, cfg.OTMPercent, cfg.DryRun)
		s.foldOptionResults(&run, results, err)
	}
	if cfg.ProtectivePuts {
		results, err := s.engines.Options.BuyProtectivePuts(ctx, cfg.Symbols, cfg.DaysToExpiry, cfg.OTMPercent, cfg.DryRun)
		s.foldOptionResults(&run, results, err)
	}

	run.FinishedAt = time.Now()
	s.persistRun(&run)
}

// recordRun summarizes order results into a strategy_runs row.
func (s *Scheduler) recordRun(name string, dryRun bool, started time.Time, results []strategy.OrderResult, err error) {
	run := database.StrategyRun{
		Strategy:      name,
		TriggerSource: "schedule",
		DryRun:        dryRun,
		StartedAt:     started,
		FinishedAt:    time.Now(),
	}
	if err != nil {
		msg := err.Error()
		run.Error = &msg
		s.logger.WithError(err).Error("Scheduled strategy failed", "strategy", name)
	}

	for _, r := range results {
		switch r.Status {
		case strategy.StatusSuccess, strategy.StatusDryRun:
			run.OrdersPlaced++
			run.TotalAmount += r.Amount
		case strategy.StatusSkipped:
			run.OrdersSkipped++
		case strategy.StatusFailed:
			run.OrdersFailed++
		}
	}

	s.logger.Info("Scheduled strategy finished",
		"strategy", name,
		"placed", run.OrdersPlaced,
		"skipped", run.OrdersSkipped,
		"failed", run.OrdersFailed,
	)
	s.persistRun(&run)
}

func (s *Scheduler) foldOptionResults(run *database.StrategyRun, results []strategy.OptionResult, err error) {
	if err != nil {
		msg := err.Error()
		run.Error = &msg
		s.logger.WithError(err).Error("Scheduled option hedge failed")
		return
	}
	for _, r := range results {
		switch r.Status {
		case strategy.StatusSuccess, strategy.StatusDryRun:
			run.OrdersPlaced++
			run.TotalAmount += r.Premium + r.Cost
		case strategy.StatusSkipped:
			run.OrdersSkipped++
		case strategy.StatusFailed:
			run.OrdersFailed++
		}
	}
}

func (s *Scheduler) persistRun(run *database.StrategyRun) {
	if s.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.repo.RecordStrategyRun(ctx, run); err != nil {
		s.logger.WithError(err).Error("Failed to record strategy run", "strategy", run.Strategy)
	}
}
