// Package config provides configuration management for the trading desk.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Account AccountConfig `mapstructure:"account"`
	Engine  EngineConfig  `mapstructure:"engine"`
	Feed    FeedConfig    `mapstructure:"feed"`
	Ledger  LedgerConfig  `mapstructure:"ledger"`
	API     APIConfig     `mapstructure:"api"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// AccountConfig identifies the account the engine runs for.
type AccountConfig struct {
	UserID         string  `mapstructure:"user_id"`
	InitialBalance float64 `mapstructure:"initial_balance"`
}

// EngineConfig holds engine tuning.
type EngineConfig struct {
	SnapshotNamespace string        `mapstructure:"snapshot_namespace"`
	SnapshotInterval  time.Duration `mapstructure:"snapshot_interval"`
	SwapRatePerDay    float64       `mapstructure:"swap_rate_per_day"`
	SwapSchedule      string        `mapstructure:"swap_schedule"`
	SyncTimeout       time.Duration `mapstructure:"sync_timeout"`
}

// FeedConfig holds price-feed configuration.
type FeedConfig struct {
	URL         string        `mapstructure:"url"`
	Simulate    bool          `mapstructure:"simulate"`
	SimInterval time.Duration `mapstructure:"sim_interval"`
	MaxRetries  int           `mapstructure:"max_retries"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
}

// LedgerConfig holds ledger-of-record configuration.
type LedgerConfig struct {
	DBPath    string `mapstructure:"db_path"`
	RedisAddr string `mapstructure:"redis_addr"`
}

// APIConfig holds HTTP API configuration.
type APIConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
	File    bool   `mapstructure:"file"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/tradedesk"
	}
	return filepath.Join(home, ".config", "tradedesk")
}

// DefaultDataDir returns the default data directory for databases.
func DefaultDataDir() string {
	return filepath.Join(DefaultConfigDir(), "data")
}

// Load loads configuration from the specified directory. If configDir is
// empty, the default config directory is used. A missing config file is
// not an error; defaults apply.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	setDefaults(v)
	v.SetEnvPrefix("TRADEDESK")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config.toml: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	dataDir := DefaultDataDir()

	v.SetDefault("account.user_id", "")
	v.SetDefault("account.initial_balance", 10000.0)

	v.SetDefault("engine.snapshot_namespace", "tradedesk:engine")
	v.SetDefault("engine.snapshot_interval", 30*time.Second)
	v.SetDefault("engine.swap_rate_per_day", 0.0001)
	v.SetDefault("engine.swap_schedule", "@daily")
	v.SetDefault("engine.sync_timeout", 5*time.Second)

	v.SetDefault("feed.url", "")
	v.SetDefault("feed.simulate", true)
	v.SetDefault("feed.sim_interval", time.Second)
	v.SetDefault("feed.max_retries", 5)
	v.SetDefault("feed.base_delay", time.Second)

	v.SetDefault("ledger.db_path", filepath.Join(dataDir, "ledger.db"))
	v.SetDefault("ledger.redis_addr", "")

	v.SetDefault("api.port", 8880)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.file", true)
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Account.InitialBalance < 0 {
		return fmt.Errorf("account.initial_balance must not be negative")
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port must be a valid port, got %d", c.API.Port)
	}
	if !c.Feed.Simulate && c.Feed.URL == "" {
		return fmt.Errorf("feed.url is required when feed.simulate is false")
	}
	return nil
}

// SnapshotDBPath returns the path of the snapshot database.
func (c *Config) SnapshotDBPath() string {
	return filepath.Join(DefaultDataDir(), "snapshots.db")
}
