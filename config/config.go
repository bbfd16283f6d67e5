// Package config loads service configuration from an optional config.json
// file with environment-variable overrides. Environment wins.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	StoreConfig     StoreConfig     `json:"store"`
	CacheConfig     CacheConfig     `json:"cache"`
	SchedulerConfig SchedulerConfig `json:"scheduler"`
	ProviderConfig  ProviderConfig  `json:"providers"`
	ServerConfig    ServerConfig    `json:"server"`
	LoggingConfig   LoggingConfig   `json:"logging"`
}

// StoreConfig holds the strategy store connection settings.
type StoreConfig struct {
	URL string `json:"url"` // postgres:// DSN
}

// CacheConfig holds cache settings. An empty URL disables caching and
// every market-data request goes straight to the providers.
type CacheConfig struct {
	URL       string `json:"url"` // redis:// URL
	PriceTTL  int    `json:"price_ttl_seconds"`
	CandleTTL int    `json:"candle_ttl_seconds"`
}

// SchedulerConfig holds evaluation loop settings.
type SchedulerConfig struct {
	Enabled bool   `json:"enabled"`
	Period  int    `json:"period_seconds"`
	Quote   string `json:"quote"`
}

// ProviderConfig holds the ordered market-data provider chain. The first
// entry is primary, the rest are fallbacks.
type ProviderConfig struct {
	Order []string `json:"order"`
}

type ServerConfig struct {
	Host           string `json:"host"`
	Port           int    `json:"port"`
	ProductionMode bool   `json:"production_mode"`
}

type LoggingConfig struct {
	Level      string `json:"level"`       // debug, info, warn, error
	JSONFormat bool   `json:"json_format"` // console writer when false
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		CacheConfig: CacheConfig{
			PriceTTL:  30,
			CandleTTL: 60,
		},
		SchedulerConfig: SchedulerConfig{
			Enabled: true,
			Period:  5,
			Quote:   "usd",
		},
		ProviderConfig: ProviderConfig{
			Order: []string{"binance", "coingecko"},
		},
		ServerConfig: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		LoggingConfig: LoggingConfig{
			Level:      "info",
			JSONFormat: true,
		},
	}
}

// LoadConfig reads config.json if present, then applies environment
// overrides. STORE_URL is the only required setting.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	}

	cfg.StoreConfig.URL = getEnvOrDefault("STORE_URL", cfg.StoreConfig.URL)
	cfg.CacheConfig.URL = getEnvOrDefault("CACHE_URL", cfg.CacheConfig.URL)
	cfg.CacheConfig.PriceTTL = getEnvIntOrDefault("PRICE_TTL", cfg.CacheConfig.PriceTTL)
	cfg.CacheConfig.CandleTTL = getEnvIntOrDefault("CANDLE_TTL", cfg.CacheConfig.CandleTTL)
	cfg.SchedulerConfig.Period = getEnvIntOrDefault("SCHEDULER_PERIOD", cfg.SchedulerConfig.Period)
	cfg.SchedulerConfig.Quote = getEnvOrDefault("QUOTE_ASSET", cfg.SchedulerConfig.Quote)
	if v := os.Getenv("ENABLE_SCHEDULER"); v != "" {
		cfg.SchedulerConfig.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("PROVIDER_ORDER"); v != "" {
		var order []string
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				order = append(order, name)
			}
		}
		if len(order) > 0 {
			cfg.ProviderConfig.Order = order
		}
	}
	cfg.ServerConfig.Host = getEnvOrDefault("SERVER_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.Port = getEnvIntOrDefault("SERVER_PORT", cfg.ServerConfig.Port)
	if v := os.Getenv("PRODUCTION_MODE"); v != "" {
		cfg.ServerConfig.ProductionMode = v == "true" || v == "1"
	}
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	if v := os.Getenv("LOG_JSON"); v != "" {
		cfg.LoggingConfig.JSONFormat = v == "true" || v == "1"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings the service cannot start without.
func (c *Config) Validate() error {
	if c.StoreConfig.URL == "" {
		return fmt.Errorf("STORE_URL is required")
	}
	if c.SchedulerConfig.Period <= 0 {
		return fmt.Errorf("SCHEDULER_PERIOD must be positive, got %d", c.SchedulerConfig.Period)
	}
	if len(c.ProviderConfig.Order) == 0 {
		return fmt.Errorf("at least one provider must be configured")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
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
