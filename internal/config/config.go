// Package config loads the downloader configuration from an optional YAML
// file plus environment overrides.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/chaitanyamurarka/dtn-symbol-downloader/pkg/catalog"
)

// Config is the full downloader configuration.
type Config struct {
	Catalog CatalogConfig `mapstructure:"catalog"`
	Output  OutputConfig  `mapstructure:"output"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Log     LogConfig     `mapstructure:"log"`

	// MetricsAddr serves Prometheus metrics during a run when set
	// (e.g. ":9090"). Empty disables the endpoint.
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// CatalogConfig configures the DTN symbol search client and the driver.
type CatalogConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	PageLimit  int           `mapstructure:"page_limit"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Delay      time.Duration `mapstructure:"delay"`
	MaxBatches int           `mapstructure:"max_batches"`

	Retry RetryConfig `mapstructure:"retry"`
}

// RetryConfig configures transient-error retries.
type RetryConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

// OutputConfig configures where batch and merged files go.
type OutputConfig struct {
	Dir string `mapstructure:"dir"`

	// SplitByExchange additionally writes per-exchange group files.
	SplitByExchange bool `mapstructure:"split_by_exchange"`

	// KeepBatches skips archiving batch files after a successful merge.
	KeepBatches bool `mapstructure:"keep_batches"`
}

// RedisConfig configures the optional symbol store publisher.
type RedisConfig struct {
	Addr string `mapstructure:"addr"`
	DB   int    `mapstructure:"db"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Catalog: CatalogConfig{
			BaseURL:    catalog.DefaultBaseURL,
			PageLimit:  catalog.DefaultPageLimit,
			Timeout:    60 * time.Second,
			Delay:      2 * time.Second,
			MaxBatches: 1000,
			Retry: RetryConfig{
				MaxAttempts:    5,
				InitialBackoff: 2 * time.Second,
				MaxBackoff:     60 * time.Second,
			},
		},
		Output: OutputConfig{
			Dir: "dtn_symbols",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the given file path (or ./config.yml when
// empty), applies environment overrides (DTN_ prefix, dots become
// underscores), and fills unset values with defaults. A missing config
// file is not an error; a malformed one is.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	configPath = strings.TrimSpace(configPath)
	explicit := configPath != ""
	if explicit {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("DTN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Default()
	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit {
			return nil, fmt.Errorf("read config %s: %w", filepath.Clean(configPath), err)
		}
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects configurations the downloader cannot run with.
func (c *Config) Validate() error {
	if c.Catalog.BaseURL == "" {
		return fmt.Errorf("catalog.base_url must not be empty")
	}
	if c.Catalog.PageLimit <= 0 {
		return fmt.Errorf("catalog.page_limit must be > 0 (got %d)", c.Catalog.PageLimit)
	}
	if c.Catalog.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("catalog.retry.max_attempts must be > 0 (got %d)", c.Catalog.Retry.MaxAttempts)
	}
	if c.Catalog.Delay < 0 {
		return fmt.Errorf("catalog.delay must not be negative")
	}
	if c.Output.Dir == "" {
		return fmt.Errorf("output.dir must not be empty")
	}
	return nil
}

// setDefaults registers defaults with viper so env overrides work for keys
// absent from the config file.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("catalog.base_url", cfg.Catalog.BaseURL)
	v.SetDefault("catalog.page_limit", cfg.Catalog.PageLimit)
	v.SetDefault("catalog.timeout", cfg.Catalog.Timeout)
	v.SetDefault("catalog.delay", cfg.Catalog.Delay)
	v.SetDefault("catalog.max_batches", cfg.Catalog.MaxBatches)
	v.SetDefault("catalog.retry.max_attempts", cfg.Catalog.Retry.MaxAttempts)
	v.SetDefault("catalog.retry.initial_backoff", cfg.Catalog.Retry.InitialBackoff)
	v.SetDefault("catalog.retry.max_backoff", cfg.Catalog.Retry.MaxBackoff)
	v.SetDefault("output.dir", cfg.Output.Dir)
	v.SetDefault("output.split_by_exchange", cfg.Output.SplitByExchange)
	v.SetDefault("output.keep_batches", cfg.Output.KeepBatches)
	v.SetDefault("redis.addr", cfg.Redis.Addr)
	v.SetDefault("redis.db", cfg.Redis.DB)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.pretty", cfg.Log.Pretty)
	v.SetDefault("metrics_addr", cfg.MetricsAddr)
}
