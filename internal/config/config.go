/*-------------------------------------------------------------------------
 *
 * config.go
 *    Configuration management for AgentGate
 *
 * Provides YAML file loading with environment variable overrides for
 * server, database, security, resilience, and dispatch settings.
 *
 * Copyright (c) 2024-2026, CockpitHQ, Inc. <ops@cockpithq.io>
 *
 * IDENTIFICATION
 *    AgentGate/internal/config/config.go
 *
 *-------------------------------------------------------------------------
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

/* Config holds all configuration for the AgentGate server */
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Logging    LoggingConfig    `yaml:"logging"`
	Security   SecurityConfig   `yaml:"security"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Budget     BudgetConfig     `yaml:"budget"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

/* SecurityConfig holds shared secrets and API key hashes.
 * TriggerSecret signs inbound trigger requests, WebhookSecret signs
 * executor callbacks. The two must differ so a captured trigger
 * signature cannot be replayed as a webhook event. */
type SecurityConfig struct {
	TriggerSecret  string   `yaml:"trigger_secret"`
	WebhookSecret  string   `yaml:"webhook_secret"`
	APIKeyHashes   []string `yaml:"api_key_hashes"`
	MaxSkewSeconds int      `yaml:"max_skew_seconds"`
}

type CatalogConfig struct {
	Path string `yaml:"path"`
}

type BudgetConfig struct {
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	BaseRateEUR    float64       `yaml:"base_rate_eur"`
}

type ResilienceConfig struct {
	FailureThreshold     int           `yaml:"failure_threshold"`
	FailureRateThreshold float64       `yaml:"failure_rate_threshold"`
	MinimumSamples       int           `yaml:"minimum_samples"`
	RecoveryTimeout      time.Duration `yaml:"recovery_timeout"`
	WindowSize           time.Duration `yaml:"window_size"`
	MaxRetries           int           `yaml:"max_retries"`
	InitialDelay         time.Duration `yaml:"initial_delay"`
	MaxDelay             time.Duration `yaml:"max_delay"`
	BackoffMultiplier    float64       `yaml:"backoff_multiplier"`
}

type DispatchConfig struct {
	Workers         int           `yaml:"workers"`
	QueueSize       int           `yaml:"queue_size"`
	ExecutorBaseURL string        `yaml:"executor_base_url"`
	Timeout         time.Duration `yaml:"timeout"`
}

/* DefaultConfig returns a configuration with sensible defaults */
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			/* An empty host selects the in-process stores; set a host to
			 * require Postgres */
			Host:            "",
			Port:            5432,
			User:            "agentgate",
			Database:        "agentgate",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 10 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Security: SecurityConfig{
			MaxSkewSeconds: 300,
		},
		Catalog: CatalogConfig{
			Path: "./agents.yaml",
		},
		Budget: BudgetConfig{
			IdempotencyTTL: 15 * time.Minute,
			SweepInterval:  1 * time.Minute,
			BaseRateEUR:    0.50,
		},
		Resilience: ResilienceConfig{
			FailureThreshold:     5,
			FailureRateThreshold: 0.5,
			MinimumSamples:       10,
			RecoveryTimeout:      60 * time.Second,
			WindowSize:           5 * time.Minute,
			MaxRetries:           3,
			InitialDelay:         100 * time.Millisecond,
			MaxDelay:             5 * time.Second,
			BackoffMultiplier:    2.0,
		},
		Dispatch: DispatchConfig{
			Workers:   5,
			QueueSize: 1000,
			Timeout:   30 * time.Second,
		},
	}
}

/* LoadConfig loads configuration from a YAML file on top of defaults */
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	LoadFromEnv(cfg)
	return cfg, nil
}

/* LoadFromEnv applies environment variable overrides to a config */
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("AGENTGATE_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("AGENTGATE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("AGENTGATE_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("AGENTGATE_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("AGENTGATE_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("AGENTGATE_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("AGENTGATE_DB_NAME"); v != "" {
		cfg.Database.Database = v
	}
	if v := os.Getenv("AGENTGATE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("AGENTGATE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("AGENTGATE_TRIGGER_SECRET"); v != "" {
		cfg.Security.TriggerSecret = v
	}
	if v := os.Getenv("AGENTGATE_WEBHOOK_SECRET"); v != "" {
		cfg.Security.WebhookSecret = v
	}
	if v := os.Getenv("AGENTGATE_CATALOG_PATH"); v != "" {
		cfg.Catalog.Path = v
	}
	if v := os.Getenv("AGENTGATE_EXECUTOR_BASE_URL"); v != "" {
		cfg.Dispatch.ExecutorBaseURL = v
	}
}

/* Validate checks that required configuration is present */
func (c *Config) Validate() error {
	if c.Security.TriggerSecret == "" {
		return fmt.Errorf("security.trigger_secret is required")
	}
	if c.Security.WebhookSecret == "" {
		return fmt.Errorf("security.webhook_secret is required")
	}
	if c.Security.TriggerSecret == c.Security.WebhookSecret {
		return fmt.Errorf("security.trigger_secret and security.webhook_secret must differ")
	}
	if c.Security.MaxSkewSeconds <= 0 {
		return fmt.Errorf("security.max_skew_seconds must be positive")
	}
	if c.Dispatch.Workers <= 0 {
		return fmt.Errorf("dispatch.workers must be positive")
	}
	if c.Dispatch.QueueSize <= 0 {
		return fmt.Errorf("dispatch.queue_size must be positive")
	}
	if c.Resilience.BackoffMultiplier < 1.0 {
		return fmt.Errorf("resilience.backoff_multiplier must be >= 1.0")
	}
	return nil
}
