package infra

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"idxquote/internal/session"
)

// Config holds the full application configuration. Secrets can be overridden
// through environment variables after the file is loaded.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Session session.Config `yaml:"session"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`

	Providers struct {
		Yahoo struct {
			BaseURL    string `yaml:"base_url"`
			TimeoutSec int    `yaml:"timeout_sec"`
		} `yaml:"yahoo"`
		Coingecko struct {
			BaseURL    string `yaml:"base_url"`
			APIKey     string `yaml:"api_key"`
			TimeoutSec int    `yaml:"timeout_sec"`
		} `yaml:"coingecko"`
	} `yaml:"providers"`

	Cache struct {
		EquityTTLSec     int `yaml:"equity_ttl_sec"`
		CryptoTTLSec     int `yaml:"crypto_ttl_sec"`
		SweepIntervalSec int `yaml:"sweep_interval_sec"`
		SweepGraceSec    int `yaml:"sweep_grace_sec"`
	} `yaml:"cache"`

	Service struct {
		FetchTimeoutSec int `yaml:"fetch_timeout_sec"`
	} `yaml:"service"`

	Stream struct {
		Enabled bool   `yaml:"enabled"`
		WSURL   string `yaml:"ws_url"`
		// Symbols maps the exchange pair to the platform's canonical crypto
		// symbol, e.g. BTCUSDT: bitcoin.
		Symbols map[string]string `yaml:"symbols"`
	} `yaml:"stream"`

	ExchangeRate struct {
		URL             string `yaml:"url"`
		PollIntervalSec int    `yaml:"poll_interval_sec"`
	} `yaml:"exchange_rate"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the configuration file, applies environment
// overrides, then validates. A config error at this point is fatal by design
// of the caller.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required")
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage path is required")
	}
	if c.Cache.EquityTTLSec <= 0 || c.Cache.CryptoTTLSec <= 0 {
		return fmt.Errorf("cache TTLs must be positive")
	}
	if c.Stream.Enabled {
		if !strings.HasPrefix(c.Stream.WSURL, "ws://") && !strings.HasPrefix(c.Stream.WSURL, "wss://") {
			return fmt.Errorf("invalid stream WS URL: %s", c.Stream.WSURL)
		}
		if len(c.Stream.Symbols) == 0 {
			return fmt.Errorf("at least one stream symbol is required when the stream is enabled")
		}
	}
	return nil
}

// EquityTTL is the fast-tier lifetime for equity quote sets.
func (c *Config) EquityTTL() time.Duration {
	return time.Duration(c.Cache.EquityTTLSec) * time.Second
}

// CryptoTTL is the fast-tier lifetime for crypto quote sets.
func (c *Config) CryptoTTL() time.Duration {
	return time.Duration(c.Cache.CryptoTTLSec) * time.Second
}

// SweepInterval is how often expired durable rows are purged.
func (c *Config) SweepInterval() time.Duration {
	if c.Cache.SweepIntervalSec <= 0 {
		return time.Hour
	}
	return time.Duration(c.Cache.SweepIntervalSec) * time.Second
}

// SweepGrace is how long an expired durable row is kept for stale serving.
func (c *Config) SweepGrace() time.Duration {
	if c.Cache.SweepGraceSec <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Cache.SweepGraceSec) * time.Second
}

// FetchTimeout bounds a single provider batch call.
func (c *Config) FetchTimeout() time.Duration {
	if c.Service.FetchTimeoutSec <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.Service.FetchTimeoutSec) * time.Second
}

// overrideWithEnv overwrites secret values when environment variables exist.
func overrideWithEnv(cfg *Config) {
	if pass := os.Getenv("IDXQUOTE_REDIS_PASSWORD"); pass != "" {
		cfg.Redis.Password = pass
	}
	if key := os.Getenv("IDXQUOTE_COINGECKO_API_KEY"); key != "" {
		cfg.Providers.Coingecko.APIKey = key
	}
}
