package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"schwab-invest-bot/internal/api"
	"schwab-invest-bot/internal/auth"
	"schwab-invest-bot/internal/database"
	"schwab-invest-bot/internal/validate"
	"schwab-invest-bot/internal/vault"
)

// Config is the full application configuration. Values come from config.json
// with environment variable overrides on top.
type Config struct {
	SchwabConfig     SchwabConfig     `json:"schwab"`
	VaultConfig      VaultConfig      `json:"vault"`
	AuditConfig      AuditConfig      `json:"audit"`
	DatabaseConfig   DatabaseConfig   `json:"database"`
	RedisConfig      RedisConfig      `json:"redis"`
	ServerConfig     api.ServerConfig `json:"server"`
	AuthConfig       auth.Config      `json:"auth"`
	LoggingConfig    LoggingConfig    `json:"logging"`
	StrategiesConfig StrategiesConfig `json:"strategies"`
	Timezone         string           `json:"timezone"`
}

// SchwabConfig holds broker API settings. Credentials never live here; OAuth
// tokens come from the encrypted token store.
type SchwabConfig struct {
	BaseURL       string `json:"base_url"`
	AccountNumber string `json:"account_number"`
	AccountHash   string `json:"account_hash"`
	MockMode      bool   `json:"mock_mode"`
}

// VaultConfig holds token vault settings. Remote points at a HashiCorp Vault
// server; when disabled the encryption key comes from the environment.
type VaultConfig struct {
	TokenStorePath string             `json:"token_store_path"`
	EncryptionKey  string             `json:"-"`
	Remote         vault.RemoteConfig `json:"remote"`
}

// AuditConfig holds audit trail settings.
type AuditConfig struct {
	Path      string `json:"path"`
	Redact    bool   `json:"redact"`
	HashChain bool   `json:"hash_chain"`
}

// DatabaseConfig wraps the connection settings with an enable switch.
type DatabaseConfig struct {
	Enabled bool `json:"enabled"`
	database.Config
}

// RedisConfig holds quote cache settings.
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// LoggingConfig holds operational logging settings.
type LoggingConfig struct {
	Level      string `json:"level"`
	Output     string `json:"output"`
	JSONFormat bool   `json:"json_format"`
}

// StrategiesConfig holds per-strategy parameters and schedules. Schedules
// are cron expressions; an empty schedule means manual trigger only.
type StrategiesConfig struct {
	DCA           DCAConfig           `json:"dca"`
	DRIP          DRIPConfig          `json:"drip"`
	Rebalance     RebalanceConfig     `json:"rebalance"`
	Opportunistic OpportunisticConfig `json:"opportunistic"`
	Options       OptionsConfig       `json:"options"`
}

type DCAConfig struct {
	Enabled  bool     `json:"enabled"`
	Schedule string   `json:"schedule"`
	Symbols  []string `json:"symbols"`
	Amount   float64  `json:"amount"`
	DryRun   bool     `json:"dry_run"`
}

type DRIPConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule"`
	DryRun   bool   `json:"dry_run"`
}

type RebalanceConfig struct {
	Enabled   bool               `json:"enabled"`
	Schedule  string             `json:"schedule"`
	Target    map[string]float64 `json:"target"`
	Threshold float64            `json:"threshold"`
	DryRun    bool               `json:"dry_run"`
}

type OpportunisticConfig struct {
	Enabled      bool     `json:"enabled"`
	Schedule     string   `json:"schedule"`
	Watchlist    []string `json:"watchlist"`
	DipThreshold float64  `json:"dip_threshold"`
	BuyAmount    float64  `json:"buy_amount"`
	DryRun       bool     `json:"dry_run"`
}

type OptionsConfig struct {
	Enabled        bool     `json:"enabled"`
	Schedule       string   `json:"schedule"`
	CoveredCalls   bool     `json:"covered_calls"`
	ProtectivePuts bool     `json:"protective_puts"`
	Symbols        []string `json:"symbols"`
	DaysToExpiry   int      `json:"days_to_expiry"`
	OTMPercent     float64  `json:"otm_percent"`
	DryRun         bool     `json:"dry_run"`
}

// Load reads config.json (if present), then applies environment overrides.
// A .env file in the working directory is loaded first.
func Load() (*Config, error) {
	return LoadFile("config.json")
}

// LoadFile is Load with an explicit config path.
func LoadFile(path string) (*Config, error) {
	godotenv.Load()

	cfg := defaults()
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		SchwabConfig: SchwabConfig{
			BaseURL: "https://api.schwabapi.com",
		},
		VaultConfig: VaultConfig{
			TokenStorePath: "tokens.enc",
		},
		AuditConfig: AuditConfig{
			Path:      "audit.log",
			Redact:    true,
			HashChain: true,
		},
		DatabaseConfig: DatabaseConfig{
			Config: database.Config{
				Host:    "localhost",
				Port:    5432,
				SSLMode: "disable",
			},
		},
		RedisConfig: RedisConfig{
			Address: "localhost:6379",
		},
		ServerConfig: api.ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		LoggingConfig: LoggingConfig{
			Level:      "INFO",
			JSONFormat: true,
		},
		StrategiesConfig: StrategiesConfig{
			Rebalance: RebalanceConfig{Threshold: 0.05},
			Opportunistic: OpportunisticConfig{
				DipThreshold: 0.05,
			},
			Options: OptionsConfig{
				DaysToExpiry: 30,
				OTMPercent:   0.05,
			},
		},
		Timezone: "America/New_York",
	}
}

func applyEnvOverrides(cfg *Config) {
	// Schwab
	cfg.SchwabConfig.BaseURL = getEnvOrDefault("SCHWAB_BASE_URL", cfg.SchwabConfig.BaseURL)
	cfg.SchwabConfig.AccountNumber = getEnvOrDefault("SCHWAB_ACCOUNT_NUMBER", cfg.SchwabConfig.AccountNumber)
	cfg.SchwabConfig.AccountHash = getEnvOrDefault("SCHWAB_ACCOUNT_HASH", cfg.SchwabConfig.AccountHash)
	cfg.SchwabConfig.MockMode = getEnvBoolOrDefault("SCHWAB_MOCK_MODE", cfg.SchwabConfig.MockMode)

	// Vault. The encryption key is env-only so it never sits in config.json.
	cfg.VaultConfig.TokenStorePath = getEnvOrDefault("TOKEN_STORE_PATH", cfg.VaultConfig.TokenStorePath)
	cfg.VaultConfig.EncryptionKey = os.Getenv("TOKEN_ENCRYPTION_KEY")
	cfg.VaultConfig.Remote.Enabled = getEnvBoolOrDefault("VAULT_ENABLED", cfg.VaultConfig.Remote.Enabled)
	cfg.VaultConfig.Remote.Address = getEnvOrDefault("VAULT_ADDR", cfg.VaultConfig.Remote.Address)
	cfg.VaultConfig.Remote.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Remote.Token)
	cfg.VaultConfig.Remote.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", cfg.VaultConfig.Remote.MountPath)
	cfg.VaultConfig.Remote.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", cfg.VaultConfig.Remote.SecretPath)

	// Audit
	cfg.AuditConfig.Path = getEnvOrDefault("AUDIT_LOG_PATH", cfg.AuditConfig.Path)
	cfg.AuditConfig.Redact = getEnvBoolOrDefault("AUDIT_REDACT", cfg.AuditConfig.Redact)

	// Database
	cfg.DatabaseConfig.Enabled = getEnvBoolOrDefault("DATABASE_ENABLED", cfg.DatabaseConfig.Enabled)
	cfg.DatabaseConfig.Host = getEnvOrDefault("DATABASE_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DATABASE_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnvOrDefault("DATABASE_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DATABASE_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DATABASE_NAME", cfg.DatabaseConfig.Database)

	// Redis
	cfg.RedisConfig.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.RedisConfig.Enabled)
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)

	// Server
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", cfg.ServerConfig.Port)
	cfg.ServerConfig.ProductionMode = getEnvBoolOrDefault("PRODUCTION_MODE", cfg.ServerConfig.ProductionMode)
	if origins := os.Getenv("SERVER_ALLOWED_ORIGINS"); origins != "" {
		cfg.ServerConfig.AllowedOrigins = strings.Split(origins, ",")
	}

	// Auth
	cfg.AuthConfig.Enabled = getEnvBoolOrDefault("AUTH_ENABLED", cfg.AuthConfig.Enabled)
	cfg.AuthConfig.Username = getEnvOrDefault("AUTH_USERNAME", cfg.AuthConfig.Username)
	cfg.AuthConfig.PasswordHash = getEnvOrDefault("AUTH_PASSWORD_HASH", cfg.AuthConfig.PasswordHash)
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)

	// Logging
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", cfg.LoggingConfig.Output)
	cfg.LoggingConfig.JSONFormat = getEnvBoolOrDefault("LOG_JSON", cfg.LoggingConfig.JSONFormat)

	cfg.Timezone = getEnvOrDefault("TIMEZONE", cfg.Timezone)
}

// Validate checks the strategy parameters that would otherwise fail at
// execution time, so misconfiguration surfaces at startup.
func (c *Config) Validate() error {
	s := &c.StrategiesConfig

	if s.DCA.Enabled {
		if _, err := validate.Symbols(s.DCA.Symbols); err != nil {
			return fmt.Errorf("dca: %w", err)
		}
		if _, err := validate.Amount(s.DCA.Amount); err != nil {
			return fmt.Errorf("dca: %w", err)
		}
	}

	if s.Rebalance.Enabled {
		if _, err := validate.Allocation(s.Rebalance.Target, true); err != nil {
			return fmt.Errorf("rebalance: %w", err)
		}
		if _, err := validate.Threshold(s.Rebalance.Threshold); err != nil {
			return fmt.Errorf("rebalance: %w", err)
		}
	}

	if s.Opportunistic.Enabled {
		if _, err := validate.Symbols(s.Opportunistic.Watchlist); err != nil {
			return fmt.Errorf("opportunistic: %w", err)
		}
		if _, err := validate.Amount(s.Opportunistic.BuyAmount); err != nil {
			return fmt.Errorf("opportunistic: %w", err)
		}
		if _, err := validate.Threshold(s.Opportunistic.DipThreshold); err != nil {
			return fmt.Errorf("opportunistic: %w", err)
		}
	}

	if s.Options.Enabled {
		if len(s.Options.Symbols) > 0 {
			if _, err := validate.Symbols(s.Options.Symbols); err != nil {
				return fmt.Errorf("options: %w", err)
			}
		}
		if s.Options.DaysToExpiry <= 0 || s.Options.DaysToExpiry > 365 {
			return fmt.Errorf("options: days_to_expiry must be within 1..365, got %d", s.Options.DaysToExpiry)
		}
		if s.Options.OTMPercent <= 0 || s.Options.OTMPercent > 0.5 {
			return fmt.Errorf("options: otm_percent must be within (0, 0.5], got %v", s.Options.OTMPercent)
		}
	}

	if !c.SchwabConfig.MockMode && c.SchwabConfig.AccountHash == "" {
		return fmt.Errorf("schwab: account_hash required outside mock mode")
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.EqualFold(value, "true") || value == "1"
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
