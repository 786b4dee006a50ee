// Package config loads the engine configuration from JSON with environment
// overrides for deployment-specific values.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"mtf-signal-engine/internal/api"
	"mtf-signal-engine/internal/cache"
	"mtf-signal-engine/internal/engine"
	"mtf-signal-engine/internal/store"
)

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Pretty bool   `json:"pretty"` // console writer instead of JSON
}

// Config is the full application configuration.
type Config struct {
	Logging  LoggingConfig `json:"logging"`
	Engine   engine.Config `json:"engine"`
	Server   api.Config    `json:"server"`
	Database store.Config  `json:"database"`
	Redis    cache.Config  `json:"redis"`

	// DatabaseEnabled gates the Postgres bar store; without it the API
	// only accepts inline bars.
	DatabaseEnabled bool `json:"database_enabled"`
}

// Default returns a runnable local configuration.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info"},
		Engine: engine.Config{
			BandFallbackPct:   0.001,
			DefaultShares:     100,
			ConfirmTimeframe:  "1h",
			ConfirmFastPeriod: 9,
			ConfirmSlowPeriod: 20,
		},
		Server: api.Config{Port: 8080, RateLimit: 60},
		Database: store.Config{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Database: "signals",
			SSLMode:  "disable",
		},
		Redis: cache.Config{Address: "localhost:6379"},
	}
}

// Load reads the configuration file (optional) and applies environment
// overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.Logging.Level = getEnvOrDefault("LOG_LEVEL", cfg.Logging.Level)
	cfg.Server.Port = getEnvIntOrDefault("SERVER_PORT", cfg.Server.Port)
	cfg.Database.Host = getEnvOrDefault("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnvIntOrDefault("DB_PORT", cfg.Database.Port)
	cfg.Database.User = getEnvOrDefault("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnvOrDefault("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.Database = getEnvOrDefault("DB_NAME", cfg.Database.Database)
	cfg.Redis.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.Redis.Address)
	cfg.Redis.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.Redis.Password)
	if os.Getenv("DB_ENABLED") != "" {
		cfg.DatabaseEnabled = os.Getenv("DB_ENABLED") == "true"
	}
	if os.Getenv("REDIS_ENABLED") != "" {
		cfg.Redis.Enabled = os.Getenv("REDIS_ENABLED") == "true"
	}

	return cfg, nil
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
