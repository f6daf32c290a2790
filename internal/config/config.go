package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/newthinker/dipper/internal/collector"
	"github.com/newthinker/dipper/internal/core"
	"github.com/newthinker/dipper/internal/storage/archive"
	"github.com/newthinker/dipper/internal/strategy"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix prefixes environment overrides, e.g. DIPPER_STRATEGY_TICKER.
const EnvPrefix = "DIPPER"

type Config struct {
	Strategy StrategyConfig `mapstructure:"strategy"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Provider ProviderConfig `mapstructure:"provider"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Log      LogConfig      `mapstructure:"log"`
}

type StrategyConfig struct {
	Ticker            string  `mapstructure:"ticker"`
	RollingWindowDays int     `mapstructure:"rolling_window_days"`
	PercentageTrigger float64 `mapstructure:"percentage_trigger"`
	MonthlyDCAAmount  float64 `mapstructure:"monthly_dca_amount"`
	MinSpacingDays    int     `mapstructure:"min_spacing_days"`
	UseTradingDays    bool    `mapstructure:"use_trading_days"`
	HistoryBufferDays int     `mapstructure:"history_buffer_days"`
}

type StorageConfig struct {
	DataDir   string        `mapstructure:"data_dir"`
	StateFile string        `mapstructure:"state_file"`
	Archive   ArchiveConfig `mapstructure:"archive"`
}

type ArchiveConfig struct {
	Type string   `mapstructure:"type"` // "", "localfs", "s3" or "memory"
	Path string   `mapstructure:"path"` // For localfs
	Keep int      `mapstructure:"keep"`
	S3   S3Config `mapstructure:"s3"` // For S3
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

type ProviderConfig struct {
	Name              string        `mapstructure:"name"`
	BaseURL           string        `mapstructure:"base_url"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	Timeout           time.Duration `mapstructure:"timeout"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
	MaxFailures       uint32        `mapstructure:"max_failures"`
	OpenTimeout       time.Duration `mapstructure:"open_timeout"`
}

type NotifyConfig struct {
	Skipped  bool           `mapstructure:"skipped"` // Also report evaluations that did not invest
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

type WebhookConfig struct {
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type MonitorConfig struct {
	Schedule    string `mapstructure:"schedule"`
	Timezone    string `mapstructure:"timezone"`
	MetricsAddr string `mapstructure:"metrics_addr"`
	MetricsPath string `mapstructure:"metrics_path"`
	APIKey      string `mapstructure:"api_key"` // Empty disables auth on /api
}

// Load reads the YAML file at path over the defaults. An empty path loads
// defaults and environment overrides only. Values of the form ${VAR} are
// expanded from the environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Defaults())

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("strategy.ticker", d.Strategy.Ticker)
	v.SetDefault("strategy.rolling_window_days", d.Strategy.RollingWindowDays)
	v.SetDefault("strategy.percentage_trigger", d.Strategy.PercentageTrigger)
	v.SetDefault("strategy.monthly_dca_amount", d.Strategy.MonthlyDCAAmount)
	v.SetDefault("strategy.min_spacing_days", d.Strategy.MinSpacingDays)
	v.SetDefault("strategy.use_trading_days", d.Strategy.UseTradingDays)
	v.SetDefault("strategy.history_buffer_days", d.Strategy.HistoryBufferDays)

	v.SetDefault("storage.data_dir", d.Storage.DataDir)
	v.SetDefault("storage.state_file", d.Storage.StateFile)
	v.SetDefault("storage.archive.type", d.Storage.Archive.Type)
	v.SetDefault("storage.archive.path", d.Storage.Archive.Path)
	v.SetDefault("storage.archive.keep", d.Storage.Archive.Keep)
	v.SetDefault("storage.archive.s3.bucket", "")
	v.SetDefault("storage.archive.s3.endpoint", "")
	v.SetDefault("storage.archive.s3.region", "")
	v.SetDefault("storage.archive.s3.access_key", "")
	v.SetDefault("storage.archive.s3.secret_key", "")
	v.SetDefault("storage.archive.s3.prefix", "")

	v.SetDefault("provider.name", d.Provider.Name)
	v.SetDefault("provider.base_url", d.Provider.BaseURL)
	v.SetDefault("provider.requests_per_second", d.Provider.RequestsPerSecond)
	v.SetDefault("provider.burst", d.Provider.Burst)
	v.SetDefault("provider.timeout", d.Provider.Timeout)
	v.SetDefault("provider.cache_ttl", d.Provider.CacheTTL)
	v.SetDefault("provider.max_failures", d.Provider.MaxFailures)
	v.SetDefault("provider.open_timeout", d.Provider.OpenTimeout)

	v.SetDefault("monitor.schedule", d.Monitor.Schedule)
	v.SetDefault("monitor.timezone", d.Monitor.Timezone)
	v.SetDefault("monitor.metrics_addr", d.Monitor.MetricsAddr)
	v.SetDefault("monitor.metrics_path", d.Monitor.MetricsPath)
	v.SetDefault("monitor.api_key", d.Monitor.APIKey)

	v.SetDefault("notify.skipped", d.Notify.Skipped)
	v.SetDefault("notify.webhook.url", "")
	v.SetDefault("notify.telegram.bot_token", "")
	v.SetDefault("notify.telegram.chat_id", "")

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.development", d.Log.Development)
}

func Defaults() *Config {
	return &Config{
		Strategy: StrategyConfig{
			Ticker:            "SPY",
			RollingWindowDays: 90,
			PercentageTrigger: 0.90,
			MonthlyDCAAmount:  2000,
			MinSpacingDays:    strategy.DefaultMinSpacingDays,
			HistoryBufferDays: 30,
		},
		Storage: StorageConfig{
			DataDir:   "~/.dipper/data",
			StateFile: "investments.json",
			Archive: ArchiveConfig{
				Keep: 5,
			},
		},
		Provider: ProviderConfig{
			Name:              "yahoo",
			RequestsPerSecond: 2,
			Burst:             1,
			Timeout:           10 * time.Second,
			CacheTTL:          15 * time.Minute,
			MaxFailures:       5,
			OpenTimeout:       60 * time.Second,
		},
		Monitor: MonitorConfig{
			Schedule:    "0 30 16 * * 1-5",
			Timezone:    "America/New_York",
			MetricsAddr: ":9108",
			MetricsPath: "/metrics",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func (c *Config) Validate() error {
	if err := c.Params().Validate(); err != nil {
		return err
	}

	if c.Storage.StateFile == "" {
		return core.WrapError(core.ErrConfigMissing, fmt.Errorf("storage.state_file"))
	}
	switch c.Storage.Archive.Type {
	case "", archive.TypeMemory:
	case archive.TypeLocalFS:
		if c.Storage.Archive.Path == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("storage.archive.path required when type is localfs"))
		}
	case archive.TypeS3:
		if c.Storage.Archive.S3.Bucket == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("storage.archive.s3.bucket required when type is s3"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown archive type %q", c.Storage.Archive.Type))
	}
	if c.Storage.Archive.Keep < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("storage.archive.keep cannot be negative, got %d", c.Storage.Archive.Keep))
	}

	if c.Provider.Name == "" {
		return core.WrapError(core.ErrConfigMissing, fmt.Errorf("provider.name"))
	}
	if c.Provider.RequestsPerSecond < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("provider.requests_per_second cannot be negative, got %f", c.Provider.RequestsPerSecond))
	}

	if _, err := CronParser.Parse(c.Monitor.Schedule); err != nil {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("monitor.schedule %q: %w", c.Monitor.Schedule, err))
	}
	if _, err := time.LoadLocation(c.Monitor.Timezone); err != nil {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("monitor.timezone %q: %w", c.Monitor.Timezone, err))
	}

	if !strings.HasPrefix(c.Monitor.MetricsPath, "/") {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("monitor.metrics_path must start with /, got %q", c.Monitor.MetricsPath))
	}

	tg := c.Notify.Telegram
	if (tg.BotToken == "") != (tg.ChatID == "") {
		return core.WrapError(core.ErrConfigMissing,
			fmt.Errorf("notify.telegram requires both bot_token and chat_id"))
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("log.level: %w", err))
	}

	return nil
}

// CronParser accepts six-field schedules with a leading seconds field.
var CronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Params returns the strategy parameters.
func (c *Config) Params() strategy.Params {
	return strategy.Params{
		Ticker:            c.Strategy.Ticker,
		WindowDays:        c.Strategy.RollingWindowDays,
		Fraction:          c.Strategy.PercentageTrigger,
		Amount:            c.Strategy.MonthlyDCAAmount,
		MinSpacingDays:    c.Strategy.MinSpacingDays,
		UseTradingDays:    c.Strategy.UseTradingDays,
		HistoryBufferDays: c.Strategy.HistoryBufferDays,
	}
}

// DataDir returns the data directory with a leading ~ expanded.
func (c *Config) DataDir() string {
	return expandHome(c.Storage.DataDir)
}

// ArchiveConfig returns the snapshot backend configuration.
func (c *Config) ArchiveConfig() archive.Config {
	a := c.Storage.Archive
	return archive.Config{
		Type: a.Type,
		Path: expandHome(a.Path),
		Keep: a.Keep,
		S3: archive.S3Config{
			Bucket:    a.S3.Bucket,
			Endpoint:  a.S3.Endpoint,
			Region:    a.S3.Region,
			AccessKey: a.S3.AccessKey,
			SecretKey: a.S3.SecretKey,
			Prefix:    a.S3.Prefix,
		},
	}
}

// CollectorConfig returns the price provider configuration.
func (c *Config) CollectorConfig() collector.Config {
	return collector.Config{
		RequestsPerSecond: c.Provider.RequestsPerSecond,
		Burst:             c.Provider.Burst,
		Timeout:           c.Provider.Timeout,
		MaxFailures:       c.Provider.MaxFailures,
		OpenTimeout:       c.Provider.OpenTimeout,
		BaseURL:           c.Provider.BaseURL,
	}
}

// Location returns the monitor timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Monitor.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
