package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "PAGETRAN"

// DefaultModels is the candidate order used when no preferred model is stored.
var DefaultModels = []string{
	"gemini-2.5-flash-lite",
	"gemini-2.5-flash",
	"gemini-flash-latest",
	"gemini-2.0-flash-lite",
	"gemini-2.0-flash",
	"gemini-exp-1206",
	"gemini-3-pro-preview",
	"gemini-flash-lite-latest",
}

type Config struct {
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`

	APIKey          string   `mapstructure:"api_key"`
	Backend         string   `mapstructure:"backend"`
	BaseURL         string   `mapstructure:"base_url"`
	Models          []string `mapstructure:"models"`
	Temperature     float64  `mapstructure:"temperature"`
	MaxOutputTokens int      `mapstructure:"max_output_tokens"`
	RequestsPerSec  float64  `mapstructure:"requests_per_second"`
	Credentials     string   `mapstructure:"credentials"`
	OllamaURL       string   `mapstructure:"ollama_url"`
	OllamaModels    []string `mapstructure:"ollama_models"`

	Concurrency       int           `mapstructure:"concurrency"`
	MaxChunkSize      int           `mapstructure:"max_chunk_size"`
	MinChunks         int           `mapstructure:"min_chunks"`
	BalanceThreshold  int           `mapstructure:"balance_threshold"`
	MinSegmentLength  int           `mapstructure:"min_segment_length"`
	ValidationRetries int           `mapstructure:"validation_retries"`
	NetworkRetries    int           `mapstructure:"network_retries"`
	RetryBaseDelay    time.Duration `mapstructure:"retry_base_delay"`
	QuotaWaitCap      time.Duration `mapstructure:"quota_wait_cap"`

	Cache   CacheConfig   `mapstructure:"cache"`
	Profile ProfileConfig `mapstructure:"profile"`
	Safety  SafetyConfig  `mapstructure:"safety"`
	Lazy    LazyConfig    `mapstructure:"lazy"`

	DBPath        string `mapstructure:"db_path"`
	StyleOverride string `mapstructure:"style_override"`
}

type CacheConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	MaxEntries int           `mapstructure:"max_entries"`
	MaxAge     time.Duration `mapstructure:"max_age"`
	Debounce   time.Duration `mapstructure:"debounce"`
}

type ProfileConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Model      string        `mapstructure:"model"`
	MaxAge     time.Duration `mapstructure:"max_age"`
	MaxDomains int           `mapstructure:"max_domains"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type SafetyConfig struct {
	BlockAfter int `mapstructure:"block_after"`
}

type LazyConfig struct {
	Margin         int           `mapstructure:"margin"`
	IdleFlush      time.Duration `mapstructure:"idle_flush"`
	RegionHeight   int           `mapstructure:"region_height"`
	ViewportHeight int           `mapstructure:"viewport_height"`
	// ScrollInterval paces the simulated reader of the CLI, one viewport per tick.
	ScrollInterval time.Duration `mapstructure:"scroll_interval"`
	// ScrollDepth is how many viewports the simulated reader scrolls before
	// stopping; 0 reads to the bottom.
	ScrollDepth int `mapstructure:"scroll_depth"`
}

// SetDefaults registers every tunable on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("environment", "local")
	v.SetDefault("log_level", "info")

	v.SetDefault("api_key", "")
	v.SetDefault("credentials", "")
	v.SetDefault("backend", "gemini")
	v.SetDefault("ollama_url", "http://localhost:11434")
	v.SetDefault("ollama_models", []string{"gemma3:12b", "qwen2.5:7b", "llama3.2"})
	v.SetDefault("base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("models", DefaultModels)
	v.SetDefault("temperature", 0.1)
	v.SetDefault("max_output_tokens", 8192)
	v.SetDefault("requests_per_second", 10.0)

	v.SetDefault("concurrency", 10)
	v.SetDefault("max_chunk_size", 3000)
	v.SetDefault("min_chunks", 10)
	v.SetDefault("balance_threshold", 10000)
	v.SetDefault("min_segment_length", 3)
	v.SetDefault("validation_retries", 2)
	v.SetDefault("network_retries", 3)
	v.SetDefault("retry_base_delay", "500ms")
	v.SetDefault("quota_wait_cap", "2s")

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.max_entries", 1000)
	v.SetDefault("cache.max_age", "24h")
	v.SetDefault("cache.debounce", "2s")

	v.SetDefault("profile.enabled", true)
	v.SetDefault("profile.model", "gemini-2.5-flash")
	v.SetDefault("profile.max_age", "168h")
	v.SetDefault("profile.max_domains", 50)
	v.SetDefault("profile.timeout", "20s")

	v.SetDefault("safety.block_after", 2)

	v.SetDefault("lazy.margin", 1000)
	v.SetDefault("lazy.idle_flush", "10s")
	v.SetDefault("lazy.region_height", 400)
	v.SetDefault("lazy.viewport_height", 900)
	v.SetDefault("lazy.scroll_interval", "2s")
	v.SetDefault("lazy.scroll_depth", 0)

	v.SetDefault("db_path", "pagetran.db")
	v.SetDefault("style_override", "auto")
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads an optional config file and decodes v into a Config.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if len(c.Models) == 0 {
		return errors.New("models must not be empty")
	}
	switch c.Backend {
	case "gemini", "cloud":
	case "ollama":
		if len(c.OllamaModels) == 0 {
			return errors.New("ollama_models must not be empty")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.Concurrency < 1 {
		return errors.New("concurrency must be >= 1")
	}
	if c.MaxChunkSize < 100 {
		return errors.New("max_chunk_size must be >= 100")
	}
	if c.MinChunks < 1 {
		return errors.New("min_chunks must be >= 1")
	}
	if c.MinSegmentLength < 0 {
		return errors.New("min_segment_length must be >= 0")
	}
	if c.ValidationRetries < 0 || c.NetworkRetries < 0 {
		return errors.New("retry counts must be >= 0")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature %.2f out of range [0, 2]", c.Temperature)
	}
	if c.MaxOutputTokens < 1 {
		return errors.New("max_output_tokens must be >= 1")
	}
	if c.QuotaWaitCap < 0 || c.RetryBaseDelay < 0 {
		return errors.New("delays must be >= 0")
	}
	if c.Cache.MaxEntries < 1 {
		return errors.New("cache.max_entries must be >= 1")
	}
	if c.Profile.MaxDomains < 1 {
		return errors.New("profile.max_domains must be >= 1")
	}
	if c.Safety.BlockAfter < 1 {
		return errors.New("safety.block_after must be >= 1")
	}
	if c.Lazy.Margin < 0 {
		return errors.New("lazy.margin must be >= 0")
	}
	if c.Lazy.ScrollInterval < 0 || c.Lazy.ScrollDepth < 0 {
		return errors.New("lazy.scroll_interval and lazy.scroll_depth must be >= 0")
	}
	return nil
}
