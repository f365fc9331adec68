package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// Repository provides data access methods
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck performs a database health check
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// RecordOrder inserts an order submission attempt
func (r *Repository) RecordOrder(ctx context.Context, rec *OrderRecord) error {
	query := `
		INSERT INTO orders (client_order_id, broker_order_id, symbol, side, order_type, asset_type,
		                    quantity, price, amount, strategy, status, dry_run, reason, placed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at
	`
	return r.db.Pool.QueryRow(
		ctx, query,
		rec.ClientOrderID, rec.BrokerOrderID, rec.Symbol, rec.Side, rec.OrderType, rec.AssetType,
		rec.Quantity, rec.Price, rec.Amount, rec.Strategy, rec.Status, rec.DryRun, rec.Reason, rec.PlacedAt,
	).Scan(&rec.ID, &rec.CreatedAt)
}

// RecentOrders retrieves the most recent orders, newest first
func (r *Repository) RecentOrders(ctx context.Context, limit, offset int) ([]*OrderRecord, error) {
	query := `
		SELECT id, client_order_id, broker_order_id, symbol, side, order_type, asset_type,
		       quantity, price, amount, strategy, status, dry_run, reason, placed_at, created_at
		FROM orders
		ORDER BY placed_at DESC
		LIMIT $1 OFFSET $2
	`
	return r.queryOrders(ctx, query, limit, offset)
}

// OrdersBySymbol retrieves orders for a specific symbol, newest first
func (r *Repository) OrdersBySymbol(ctx context.Context, symbol string, limit int) ([]*OrderRecord, error) {
	query := `
		SELECT id, client_order_id, broker_order_id, symbol, side, order_type, asset_type,
		       quantity, price, amount, strategy, status, dry_run, reason, placed_at, created_at
		FROM orders
		WHERE symbol = $1
		ORDER BY placed_at DESC
		LIMIT $2
	`
	return r.queryOrders(ctx, query, symbol, limit)
}

// OrdersByStrategy retrieves orders placed by a specific strategy, newest first
func (r *Repository) OrdersByStrategy(ctx context.Context, strategy string, limit int) ([]*OrderRecord, error) {
	query := `
		SELECT id, client_order_id, broker_order_id, symbol, side, order_type, asset_type,
		       quantity, price, amount, strategy, status, dry_run, reason, placed_at, created_at
		FROM orders
		WHERE strategy = $1
		ORDER BY placed_at DESC
		LIMIT $2
	`
	return r.queryOrders(ctx, query, strategy, limit)
}

func (r *Repository) queryOrders(ctx context.Context, query string, args ...interface{}) ([]*OrderRecord, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]*OrderRecord, 0)
	for rows.Next() {
		rec := &OrderRecord{}
		err := rows.Scan(
			&rec.ID, &rec.ClientOrderID, &rec.BrokerOrderID, &rec.Symbol, &rec.Side,
			&rec.OrderType, &rec.AssetType, &rec.Quantity, &rec.Price, &rec.Amount,
			&rec.Strategy, &rec.Status, &rec.DryRun, &rec.Reason, &rec.PlacedAt, &rec.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		orders = append(orders, rec)
	}
	return orders, rows.Err()
}

// RecordStrategyRun inserts a strategy execution summary
func (r *Repository) RecordStrategyRun(ctx context.Context, run *StrategyRun) error {
	query := `
		INSERT INTO strategy_runs (strategy, trigger_source, dry_run, orders_placed, orders_skipped,
		                           orders_failed, total_amount, error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at
	`
	return r.db.Pool.QueryRow(
		ctx, query,
		run.Strategy, run.TriggerSource, run.DryRun, run.OrdersPlaced, run.OrdersSkipped,
		run.OrdersFailed, run.TotalAmount, run.Error, run.StartedAt, run.FinishedAt,
	).Scan(&run.ID, &run.CreatedAt)
}

// RecentStrategyRuns retrieves the most recent strategy runs, newest first
func (r *Repository) RecentStrategyRuns(ctx context.Context, limit int) ([]*StrategyRun, error) {
	query := `
		SELECT id, strategy, trigger_source, dry_run, orders_placed, orders_skipped,
		       orders_failed, total_amount, error, started_at, finished_at, created_at
		FROM strategy_runs
		ORDER BY started_at DESC
		LIMIT $1
	`
	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]*StrategyRun, 0)
	for rows.Next() {
		run := &StrategyRun{}
		err := rows.Scan(
			&run.ID, &run.Strategy, &run.TriggerSource, &run.DryRun, &run.OrdersPlaced,
			&run.OrdersSkipped, &run.OrdersFailed, &run.TotalAmount, &run.Error,
			&run.StartedAt, &run.FinishedAt, &run.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// LastStrategyRun retrieves the latest run of a strategy, or nil when it has
// never run.
func (r *Repository) LastStrategyRun(ctx context.Context, strategy string) (*StrategyRun, error) {
	query := `
		SELECT id, strategy, trigger_source, dry_run, orders_placed, orders_skipped,
		       orders_failed, total_amount, error, started_at, finished_at, created_at
		FROM strategy_runs
		WHERE strategy = $1
		ORDER BY started_at DESC
		LIMIT 1
	`
	run := &StrategyRun{}
	err := r.db.Pool.QueryRow(ctx, query, strategy).Scan(
		&run.ID, &run.Strategy, &run.TriggerSource, &run.DryRun, &run.OrdersPlaced,
		&run.OrdersSkipped, &run.OrdersFailed, &run.TotalAmount, &run.Error,
		&run.StartedAt, &run.FinishedAt, &run.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// RecordSnapshot inserts a portfolio snapshot
func (r *Repository) RecordSnapshot(ctx context.Context, snap *PortfolioSnapshot) error {
	query := `
		INSERT INTO portfolio_snapshots (total_value, cash_balance, positions, taken_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	return r.db.Pool.QueryRow(
		ctx, query,
		snap.TotalValue, snap.CashBalance, snap.Positions, snap.TakenAt,
	).Scan(&snap.ID, &snap.CreatedAt)
}

// SnapshotsSince retrieves snapshots taken at or after the cutoff, oldest
// first so the dashboard can chart them directly.
func (r *Repository) SnapshotsSince(ctx context.Context, cutoff time.Time) ([]*PortfolioSnapshot, error) {
	query := `
		SELECT id, total_value, cash_balance, positions, taken_at, created_at
		FROM portfolio_snapshots
		WHERE taken_at >= $1
		ORDER BY taken_at ASC
	`
	rows, err := r.db.Pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snaps := make([]*PortfolioSnapshot, 0)
	for rows.Next() {
		snap := &PortfolioSnapshot{}
		err := rows.Scan(&snap.ID, &snap.TotalValue, &snap.CashBalance, &snap.Positions, &snap.TakenAt, &snap.CreatedAt)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}
