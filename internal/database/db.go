package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"schwab-invest-bot/internal/logging"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool   *pgxpool.Pool
	logger *logging.Logger
}

// Config holds database configuration
type Config struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// NewDB creates a new database connection
func NewDB(cfg Config, logger *logging.Logger) (*DB, error) {
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.WithComponent("database")

	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	logger.Info("Connected to PostgreSQL", "database", cfg.Database, "host", cfg.Host)

	return &DB{Pool: pool, logger: logger}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info("Database connection closed")
	}
}

// RunMigrations creates the schema if it does not exist yet. Every statement
// is idempotent so this is safe to run on every startup.
func (db *DB) RunMigrations(ctx context.Context) error {
	db.logger.Info("Running database migrations")

	migrations := []string{
		// Orders placed through the executor, one row per submission attempt.
		`CREATE TABLE IF NOT EXISTS orders (
			id BIGSERIAL PRIMARY KEY,
			client_order_id VARCHAR(36) NOT NULL UNIQUE,
			broker_order_id VARCHAR(64),
			symbol VARCHAR(20) NOT NULL,
			side VARCHAR(4) NOT NULL,
			order_type VARCHAR(20) NOT NULL,
			asset_type VARCHAR(20) NOT NULL DEFAULT 'EQUITY',
			quantity BIGINT NOT NULL,
			price DECIMAL(20, 4),
			amount DECIMAL(20, 4),
			strategy VARCHAR(30) NOT NULL,
			status VARCHAR(20) NOT NULL,
			dry_run BOOLEAN NOT NULL DEFAULT FALSE,
			reason TEXT,
			placed_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_symbol ON orders(symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_strategy ON orders(strategy)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_placed_at ON orders(placed_at DESC)`,

		// One row per strategy execution, successful or not.
		`CREATE TABLE IF NOT EXISTS strategy_runs (
			id BIGSERIAL PRIMARY KEY,
			strategy VARCHAR(30) NOT NULL,
			trigger_source VARCHAR(20) NOT NULL DEFAULT 'manual',
			dry_run BOOLEAN NOT NULL DEFAULT FALSE,
			orders_placed INT NOT NULL DEFAULT 0,
			orders_skipped INT NOT NULL DEFAULT 0,
			orders_failed INT NOT NULL DEFAULT 0,
			total_amount DECIMAL(20, 4) NOT NULL DEFAULT 0,
			error TEXT,
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_strategy_runs_strategy ON strategy_runs(strategy)`,
		`CREATE INDEX IF NOT EXISTS idx_strategy_runs_started_at ON strategy_runs(started_at DESC)`,

		// Daily portfolio snapshots for the dashboard equity curve.
		`CREATE TABLE IF NOT EXISTS portfolio_snapshots (
			id BIGSERIAL PRIMARY KEY,
			total_value DECIMAL(20, 4) NOT NULL,
			cash_balance DECIMAL(20, 4) NOT NULL,
			positions JSONB NOT NULL,
			taken_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_portfolio_snapshots_taken_at ON portfolio_snapshots(taken_at DESC)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	db.logger.Info("Database migrations completed")
	return nil
}

// HealthCheck performs a database health check
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}
