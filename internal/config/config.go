// Package config provides configuration management for the event trading engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"macro-trader/internal/logging"
	"macro-trader/internal/models"
)

// Config holds all application configuration.
type Config struct {
	Engine        EngineConfig       `mapstructure:"engine"`
	Risk          RiskConfig         `mapstructure:"risk"`
	Cache         CacheConfig        `mapstructure:"cache"`
	Monitor       MonitorConfig      `mapstructure:"monitor"`
	Trading       TradingConfig      `mapstructure:"trading"`
	Gateway       GatewayConfig      `mapstructure:"gateway"`
	Store         StoreConfig        `mapstructure:"store"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Metrics       MetricsConfig      `mapstructure:"metrics"`
	Audit         AuditConfig        `mapstructure:"audit"`
	Log           logging.LogConfig  `mapstructure:"log"`
}

// EngineConfig holds analysis and prediction settings.
type EngineConfig struct {
	Principal      string   `mapstructure:"principal"`
	Symbols        []string `mapstructure:"symbols"`
	Lookback       int      `mapstructure:"lookback"`
	EntryTimeframe string   `mapstructure:"entry_timeframe"`
	RSIPeriod      int      `mapstructure:"rsi_period"`
}

// RiskConfig holds risk guardian thresholds.
type RiskConfig struct {
	DailyLossLimit       float64 `mapstructure:"daily_loss_limit"`    // fraction of equity
	MaxSymbolExposure    float64 `mapstructure:"max_symbol_exposure"` // lots
	MaxCorrelation       float64 `mapstructure:"max_correlation"`
	CorrelationLookback  int     `mapstructure:"correlation_lookback"`
	MinCorrelationPoints int     `mapstructure:"min_correlation_points"`
}

// CacheConfig holds cache lifetimes.
type CacheConfig struct {
	StatsTTL       time.Duration `mapstructure:"stats_ttl"`
	CorrelationTTL time.Duration `mapstructure:"correlation_ttl"`
}

// MonitorConfig holds scheduler timings.
type MonitorConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	EventThrottle time.Duration `mapstructure:"event_throttle"`
	Horizon       time.Duration `mapstructure:"horizon"`
}

// TradingConfig holds dispatch settings.
type TradingConfig struct {
	Mode        string  `mapstructure:"mode"`   // SIGNAL_ONLY, STRADDLE, DIRECTIONAL
	Broker      string  `mapstructure:"broker"` // paper, gateway
	PaperEquity float64 `mapstructure:"paper_equity"`
}

// GatewayConfig holds the market-data/execution gateway connection.
type GatewayConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// NotificationConfig holds notification configuration.
type NotificationConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Level    string         `mapstructure:"level"` // all, signals_only, errors_only
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
}

// WebhookConfig holds webhook notification configuration.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

// KafkaConfig holds the signal topic publisher configuration.
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// MetricsConfig holds the Prometheus endpoint configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// AuditConfig holds the order audit trail settings.
type AuditConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Dir        string `mapstructure:"dir"`
	MaxSize    int    `mapstructure:"max_size"` // megabytes
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/macro-trader"
	}
	return filepath.Join(home, ".config", "macro-trader")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. A missing
// config.toml is replaced by a template and the defaults are used.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v, configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("loading config.toml: %w", err)
		}
		if err := createTemplateConfig(configDir); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	// Secrets may live in a .env next to config.toml. Real environment
	// variables win.
	_ = godotenv.Load(filepath.Join(configDir, ".env"))
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// SaveTradingMode rewrites [trading].mode in the config.toml under configDir.
func SaveTradingMode(configDir string, mode models.TradingMode) error {
	if !mode.Valid() {
		return fmt.Errorf("invalid trading mode: %s", mode)
	}
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("loading config.toml: %w", err)
		}
		if err := createTemplateConfig(configDir); err != nil {
			return err
		}
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("loading config.toml: %w", err)
		}
	}

	v.Set("trading.mode", string(mode))
	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("writing config.toml: %w", err)
	}
	return nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	v := viper.New()
	setDefaults(v, DefaultConfigDir())
	cfg := &Config{}
	// Decoding defaults cannot fail.
	_ = v.Unmarshal(cfg)
	return cfg
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("engine.principal", "default")
	v.SetDefault("engine.symbols", []string{"EURUSD", "GBPUSD", "USDJPY", "AUDUSD", "USDCAD"})
	v.SetDefault("engine.lookback", 50)
	v.SetDefault("engine.entry_timeframe", "H1")
	v.SetDefault("engine.rsi_period", 14)

	v.SetDefault("risk.daily_loss_limit", 0.05)
	v.SetDefault("risk.max_symbol_exposure", 2.0)
	v.SetDefault("risk.max_correlation", 0.8)
	v.SetDefault("risk.correlation_lookback", 100)
	v.SetDefault("risk.min_correlation_points", 10)

	v.SetDefault("cache.stats_ttl", time.Hour)
	v.SetDefault("cache.correlation_ttl", time.Hour)

	v.SetDefault("monitor.interval", 60*time.Second)
	v.SetDefault("monitor.event_throttle", 2*time.Second)
	v.SetDefault("monitor.horizon", 24*time.Hour)

	v.SetDefault("trading.mode", string(models.ModeSignalOnly))
	v.SetDefault("trading.broker", "paper")
	v.SetDefault("trading.paper_equity", 10000.0)

	v.SetDefault("gateway.timeout", 10*time.Second)

	v.SetDefault("store.path", filepath.Join(configDir, "trader.db"))

	v.SetDefault("notifications.level", "all")
	v.SetDefault("notifications.kafka.topic", "macro-trader.signals")

	v.SetDefault("metrics.addr", ":9102")

	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.dir", filepath.Join(configDir, "audit"))
	v.SetDefault("audit.max_size", 50)
	v.SetDefault("audit.max_backups", 30)
	v.SetDefault("audit.max_age", 365)

	logDefaults := logging.DefaultLogConfig()
	v.SetDefault("log.level", logDefaults.Level)
	v.SetDefault("log.console", logDefaults.Console)
	v.SetDefault("log.file", logDefaults.File)
	v.SetDefault("log.file_path", filepath.Join(configDir, "logs", "trader.log"))
	v.SetDefault("log.max_size", logDefaults.MaxSize)
	v.SetDefault("log.max_backups", logDefaults.MaxBackups)
	v.SetDefault("log.max_age", logDefaults.MaxAge)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MACRO_TRADER_MODE"); v != "" {
		cfg.Trading.Mode = v
	}
	if v := os.Getenv("MACRO_TRADER_GATEWAY_KEY"); v != "" {
		cfg.Gateway.APIKey = v
	}
	if v := os.Getenv("MACRO_TRADER_TELEGRAM_TOKEN"); v != "" {
		cfg.Notifications.Telegram.BotToken = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if !models.TradingMode(c.Trading.Mode).Valid() {
		return fmt.Errorf("invalid trading mode: %s (must be SIGNAL_ONLY, STRADDLE or DIRECTIONAL)", c.Trading.Mode)
	}
	if c.Trading.Broker != "paper" && c.Trading.Broker != "gateway" {
		return fmt.Errorf("invalid broker: %s (must be 'paper' or 'gateway')", c.Trading.Broker)
	}
	if c.Trading.Broker == "gateway" && c.Gateway.BaseURL == "" {
		return fmt.Errorf("gateway.base_url is required when broker is 'gateway'")
	}

	if c.Risk.DailyLossLimit <= 0 || c.Risk.DailyLossLimit > 1 {
		return fmt.Errorf("daily_loss_limit must be in (0, 1]")
	}
	if c.Risk.MaxSymbolExposure <= 0 {
		return fmt.Errorf("max_symbol_exposure must be positive")
	}
	if c.Risk.MaxCorrelation <= 0 || c.Risk.MaxCorrelation > 1 {
		return fmt.Errorf("max_correlation must be in (0, 1]")
	}
	if c.Risk.MinCorrelationPoints < 2 {
		return fmt.Errorf("min_correlation_points must be at least 2")
	}

	if c.Engine.Lookback <= 0 {
		return fmt.Errorf("lookback must be positive")
	}
	if c.Cache.StatsTTL <= 0 || c.Cache.CorrelationTTL <= 0 {
		return fmt.Errorf("cache ttls must be positive")
	}
	if c.Monitor.Interval <= 0 {
		return fmt.Errorf("monitor interval must be positive")
	}
	if c.Monitor.EventThrottle < 0 {
		return fmt.Errorf("event_throttle must be non-negative")
	}
	if c.Monitor.Horizon <= 0 {
		return fmt.Errorf("monitor horizon must be positive")
	}

	return nil
}

// TradingMode returns the configured dispatch mode.
func (c *Config) TradingMode() models.TradingMode {
	return models.TradingMode(c.Trading.Mode)
}
