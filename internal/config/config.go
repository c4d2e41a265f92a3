package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/newthinker/cardquant/internal/core"
	"github.com/newthinker/cardquant/internal/storage/archive"
	"github.com/spf13/viper"
)

type Config struct {
	Log        LogConfig                  `mapstructure:"log"`
	Analysis   AnalysisConfig             `mapstructure:"analysis"`
	Filter     FilterConfig               `mapstructure:"filter"`
	Storage    StorageConfig              `mapstructure:"storage"`
	Cache      CacheConfig                `mapstructure:"cache"`
	LLM        LLMConfig                  `mapstructure:"llm"`
	Collectors map[string]CollectorConfig `mapstructure:"collectors"`
	Catalog    string                     `mapstructure:"catalog"` // JSON list of items seeded at startup
	Watchlist  []string                   `mapstructure:"watchlist"`
	Scheduler  SchedulerConfig            `mapstructure:"scheduler"`
	Notifiers  map[string]NotifierConfig  `mapstructure:"notifiers"`
	Router     RouterConfig               `mapstructure:"router"`
	Metrics    MetricsConfig              `mapstructure:"metrics"`
}

type LogConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// AnalysisConfig holds the per-request defaults of the pipeline.
type AnalysisConfig struct {
	MaxAgeDays   int           `mapstructure:"max_age_days"`
	CacheHours   int           `mapstructure:"cache_hours"`
	UseLLM       bool          `mapstructure:"use_llm"`
	Insights     bool          `mapstructure:"insights"`
	HistoryLimit int           `mapstructure:"history_limit"`
	Timeout      time.Duration `mapstructure:"timeout"`
	RiskFreeRate float64       `mapstructure:"risk_free_rate"`
}

type FilterConfig struct {
	IQRMultiplier float64        `mapstructure:"iqr_multiplier"`
	MinGroupSize  int            `mapstructure:"min_group_size"`
	Semantic      SemanticConfig `mapstructure:"semantic"`
}

type SemanticConfig struct {
	Threshold     float64 `mapstructure:"threshold"`
	BatchSize     int     `mapstructure:"batch_size"`
	Concurrency   int     `mapstructure:"concurrency"`
	RatePerSecond float64 `mapstructure:"rate_per_second"`
}

type StorageConfig struct {
	Hot  HotStorageConfig  `mapstructure:"hot"`
	Cold ColdStorageConfig `mapstructure:"cold"`
}

type HotStorageConfig struct {
	Driver string `mapstructure:"driver"` // "memory" or "sqlite"
	DSN    string `mapstructure:"dsn"`
}

type ColdStorageConfig struct {
	Type string           `mapstructure:"type"` // "none", "localfs" or "s3"
	Path string           `mapstructure:"path"` // For localfs
	S3   archive.S3Config `mapstructure:"s3"`   // For S3
}

// Archive converts the section to the archive factory config.
func (c ColdStorageConfig) Archive() archive.Config {
	return archive.Config{Type: c.Type, Path: c.Path, S3: c.S3}
}

type CacheConfig struct {
	Backend string      `mapstructure:"backend"` // "store" or "redis"
	Redis   RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	Retention time.Duration `mapstructure:"retention"`
}

type CollectorConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Source  string `mapstructure:"source"` // marketplace_sold or price_index
	Path    string `mapstructure:"path"`
}

type LLMConfig struct {
	Provider string        `mapstructure:"provider"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Claude   ClaudeConfig  `mapstructure:"claude"`
	OpenAI   OpenAIConfig  `mapstructure:"openai"`
	Ollama   OllamaConfig  `mapstructure:"ollama"`
}

type ClaudeConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

type OllamaConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Model    string `mapstructure:"model"`
}

// SchedulerConfig holds watch-mode settings.
type SchedulerConfig struct {
	Schedule string `mapstructure:"schedule"` // cron spec with seconds field
}

// NotifierConfig configures one alert transport. The map key selects the type.
type NotifierConfig struct {
	Enabled  bool              `mapstructure:"enabled"`
	BotToken string            `mapstructure:"bot_token"`
	ChatID   string            `mapstructure:"chat_id"`
	URL      string            `mapstructure:"url"`
	Headers  map[string]string `mapstructure:"headers"`
}

// RouterConfig filters watch-mode alerts.
type RouterConfig struct {
	CooldownHours  int      `mapstructure:"cooldown_hours"`
	MinConfidence  float64  `mapstructure:"min_confidence"`
	EnabledActions []string `mapstructure:"enabled_actions"`
	OnlyChanges    bool     `mapstructure:"only_changes"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration from file on top of Defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)

	// Support environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Expand ${VAR} string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Analysis: AnalysisConfig{
			MaxAgeDays:   7,
			CacheHours:   24,
			HistoryLimit: 10,
			Timeout:      2 * time.Minute,
			RiskFreeRate: 0.045,
		},
		Filter: FilterConfig{
			IQRMultiplier: 1.5,
			MinGroupSize:  4,
			Semantic: SemanticConfig{
				Threshold:     0.5,
				BatchSize:     3,
				Concurrency:   2,
				RatePerSecond: 2,
			},
		},
		Storage: StorageConfig{
			Hot: HotStorageConfig{
				Driver: "sqlite",
				DSN:    "cardquant.db",
			},
			Cold: ColdStorageConfig{
				Type: "none",
			},
		},
		Cache: CacheConfig{
			Backend: "store",
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				Retention: 30 * 24 * time.Hour,
			},
		},
		LLM: LLMConfig{
			Timeout: 30 * time.Second,
		},
		Collectors: map[string]CollectorConfig{},
		Scheduler: SchedulerConfig{
			Schedule: "0 0 */6 * * *",
		},
		Notifiers: map[string]NotifierConfig{},
		Router: RouterConfig{
			CooldownHours:  6,
			MinConfidence:  0.5,
			EnabledActions: []string{"BUY", "AVOID"},
			OnlyChanges:    true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
			Path:    "/metrics",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Analysis.MaxAgeDays < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("max_age_days cannot be negative, got %d", c.Analysis.MaxAgeDays))
	}
	if c.Analysis.CacheHours < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("cache_hours cannot be negative, got %d", c.Analysis.CacheHours))
	}
	if c.Analysis.RiskFreeRate < 0 || c.Analysis.RiskFreeRate > 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("risk_free_rate must be between 0 and 1, got %f", c.Analysis.RiskFreeRate))
	}

	if c.Filter.IQRMultiplier <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("iqr_multiplier must be positive, got %f", c.Filter.IQRMultiplier))
	}
	if c.Filter.MinGroupSize < 4 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("min_group_size must be at least 4, got %d", c.Filter.MinGroupSize))
	}
	if c.Filter.Semantic.Threshold < 0 || c.Filter.Semantic.Threshold > 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("semantic threshold must be between 0 and 1, got %f", c.Filter.Semantic.Threshold))
	}
	if c.Filter.Semantic.BatchSize < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("semantic batch_size must be at least 1, got %d", c.Filter.Semantic.BatchSize))
	}

	switch c.Storage.Hot.Driver {
	case "memory":
	case "sqlite":
		if c.Storage.Hot.DSN == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("storage.hot.dsn required for sqlite"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown storage driver %q", c.Storage.Hot.Driver))
	}

	switch c.Storage.Cold.Type {
	case "", "none":
	case "localfs":
		if c.Storage.Cold.Path == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("storage.cold.path required for localfs"))
		}
	case "s3":
		if c.Storage.Cold.S3.Bucket == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("storage.cold.s3.bucket required for s3"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown cold storage type %q", c.Storage.Cold.Type))
	}

	switch c.Cache.Backend {
	case "", "store":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("cache.redis.addr required for redis backend"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown cache backend %q", c.Cache.Backend))
	}

	for name, cc := range c.Collectors {
		if !cc.Enabled {
			continue
		}
		switch core.Source(cc.Source) {
		case core.SourceMarketplaceSold, core.SourcePriceIndex:
		default:
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("collector %s has unknown source %q", name, cc.Source))
		}
		if cc.Path == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("collectors.%s.path required", name))
		}
	}

	for name, nc := range c.Notifiers {
		if !nc.Enabled {
			continue
		}
		switch name {
		case "webhook":
			if nc.URL == "" {
				return core.WrapError(core.ErrConfigMissing,
					fmt.Errorf("notifiers.webhook.url required"))
			}
		case "telegram":
			if nc.BotToken == "" || nc.ChatID == "" {
				return core.WrapError(core.ErrConfigMissing,
					fmt.Errorf("notifiers.telegram bot_token and chat_id required"))
			}
		default:
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("unknown notifier %q", name))
		}
	}

	if c.Router.MinConfidence < 0 || c.Router.MinConfidence > 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("min_confidence must be between 0 and 1, got %f", c.Router.MinConfidence))
	}
	if c.Router.CooldownHours < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("cooldown_hours cannot be negative, got %d", c.Router.CooldownHours))
	}
	for _, a := range c.Router.EnabledActions {
		switch core.Action(strings.ToUpper(a)) {
		case core.ActionBuy, core.ActionHold, core.ActionSell, core.ActionAvoid:
		default:
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("unknown router action %q", a))
		}
	}

	// LLM validation - if provider set, check config exists
	switch c.LLM.Provider {
	case "":
	case "claude":
		if c.LLM.Claude.APIKey == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("claude api_key required when provider is claude"))
		}
	case "openai":
		if c.LLM.OpenAI.APIKey == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("openai api_key required when provider is openai"))
		}
	case "ollama":
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown llm provider %q", c.LLM.Provider))
	}

	return nil
}
