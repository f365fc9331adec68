package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"schwab-invest-bot/config"
	"schwab-invest-bot/internal/api"
	"schwab-invest-bot/internal/audit"
	"schwab-invest-bot/internal/auth"
	"schwab-invest-bot/internal/database"
	"schwab-invest-bot/internal/events"
	"schwab-invest-bot/internal/logging"
	"schwab-invest-bot/internal/orders"
	"schwab-invest-bot/internal/scheduler"
	"schwab-invest-bot/internal/schwab"
	"schwab-invest-bot/internal/strategy"
	"schwab-invest-bot/internal/vault"
)

// auditPublisher streams audit entries over the event bus so the dashboard
// sees them live.
type auditPublisher struct {
	bus *events.Bus
}

func (p *auditPublisher) PublishAuditEntry(entry *audit.Entry) {
	p.bus.Publish(events.Event{
		Type:      events.EventAuditEntry,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"event_type": string(entry.EventType),
			"symbol":     entry.Symbol,
			"strategy":   entry.Strategy,
			"success":    entry.Success,
		},
	})
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(&logging.Config{
		Level:      cfg.LoggingConfig.Level,
		Output:     cfg.LoggingConfig.Output,
		JSONFormat: cfg.LoggingConfig.JSONFormat,
		Component:  "main",
	})
	logging.SetDefault(logger)

	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Fatalf("Invalid timezone: %v", err)
	}

	bus := events.NewBus()

	// Audit trail. Everything that moves money goes through this.
	auditor, err := audit.New(audit.Config{
		Path:      cfg.AuditConfig.Path,
		Redact:    cfg.AuditConfig.Redact,
		HashChain: cfg.AuditConfig.HashChain,
	})
	if err != nil {
		log.Fatalf("Failed to open audit log: %v", err)
	}
	defer auditor.Close()
	auditor.SetPublisher(&auditPublisher{bus: bus})

	// Broker client. Mock mode serves seeded data for local development.
	var client schwab.Client
	if cfg.SchwabConfig.MockMode {
		logger.Warn("Mock mode enabled, no real orders will be placed")
		client = schwab.NewMockClient()
	} else {
		tokenSource, err := buildTokenSource(cfg, logger)
		if err != nil {
			log.Fatalf("Failed to set up token vault: %v", err)
		}
		httpClient := schwab.NewHTTPClient(cfg.SchwabConfig.BaseURL, cfg.SchwabConfig.AccountHash, tokenSource, logger)

		var redisClient *redis.Client
		if cfg.RedisConfig.Enabled {
			redisClient = redis.NewClient(&redis.Options{
				Addr:     cfg.RedisConfig.Address,
				Password: cfg.RedisConfig.Password,
				DB:       cfg.RedisConfig.DB,
			})
			logger.Info("Redis quote cache enabled", "address", cfg.RedisConfig.Address)
		}
		client = schwab.NewCachedClient(httpClient, redisClient, logger)
	}

	// Database is optional; without it the bot still trades, it just keeps
	// no order history.
	var repo *database.Repository
	if cfg.DatabaseConfig.Enabled {
		db, err := database.NewDB(cfg.DatabaseConfig.Config, logger)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		if err := db.RunMigrations(context.Background()); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		repo = database.NewRepository(db)
		database.NewOrderRecorder(repo, logger).Subscribe(bus)
	}

	// Strategy engines share one executor so every order follows the same
	// audit and event path.
	ids := orders.NewGenerator(location)
	exec := strategy.NewExecutor(client, cfg.SchwabConfig.AccountNumber, auditor, bus, ids, logger)
	engines := scheduler.Engines{
		DCA:           strategy.NewDCA(exec, logger),
		DRIP:          strategy.NewDRIP(client, exec, logger),
		Rebalance:     strategy.NewRebalance(client, exec, logger),
		Opportunistic: strategy.NewOpportunistic(client, exec, logger),
		Options:       strategy.NewOptions(client, exec, logger),
	}

	authService, err := auth.NewService(cfg.AuthConfig)
	if err != nil {
		log.Fatalf("Failed to set up auth: %v", err)
	}
	if authService == nil {
		logger.Warn("Dashboard auth disabled")
	}

	serverCfg := cfg.ServerConfig
	serverCfg.AuditLogPath = cfg.AuditConfig.Path
	server := api.NewServer(serverCfg, client, repo, bus, api.Strategies{
		DCA:           engines.DCA,
		DRIP:          engines.DRIP,
		Rebalance:     engines.Rebalance,
		Opportunistic: engines.Opportunistic,
		Options:       engines.Options,
	}, authService, logger)

	sched := scheduler.New(cfg.StrategiesConfig, engines, repo, location, logger)
	if err := sched.RegisterAll(); err != nil {
		log.Fatalf("Failed to register schedules: %v", err)
	}
	sched.Start()

	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("API server failed: %v", err)
		}
	}()

	if _, err := auditor.Log(audit.Event{Type: audit.ConfigLoaded, Success: true}); err != nil {
		logger.WithError(err).Error("Failed to write startup audit entry")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("API shutdown failed")
	}
}

// buildTokenSource sets up the encrypted token store. The encryption key
// comes from a remote vault when one is configured, otherwise from the
// environment.
func buildTokenSource(cfg *config.Config, logger *logging.Logger) (schwab.TokenProvider, error) {
	key := cfg.VaultConfig.EncryptionKey

	remote, err := vault.NewRemoteSource(cfg.VaultConfig.Remote)
	if err != nil {
		return nil, err
	}
	if remote != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		key, err = remote.EncryptionKey(ctx)
		if err != nil {
			return nil, err
		}
		logger.Info("Token encryption key loaded from remote vault")
	}

	enc, err := vault.NewTokenEncryption(key)
	if err != nil {
		return nil, err
	}
	store := vault.NewStore(enc, cfg.VaultConfig.TokenStorePath, logger)

	if _, migrated, err := store.Migrate(); err != nil {
		return nil, err
	} else if migrated {
		logger.Info("Migrated plaintext token file to encrypted store")
	}

	return schwab.NewVaultTokenSource(store), nil
}
