// Package config loads the YAML configuration file and applies
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Delivery  DeliveryConfig  `yaml:"delivery"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	SES       SESConfig       `yaml:"ses"`
	Throttle  ThrottleConfig  `yaml:"throttle"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Storage   StorageConfig   `yaml:"storage"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port               int      `yaml:"port"`
	Host               string   `yaml:"host"`
	AllowedOrigins     []string `yaml:"allowed_origins"`
	ReadTimeoutSeconds int      `yaml:"read_timeout_seconds"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// Addr returns host:port for net/http.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.GetHost(), c.Port)
}

// ReadTimeout returns the request read timeout.
func (c ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSeconds) * time.Second
}

// DatabaseConfig selects the persistence backend. An empty URL runs on the
// in-memory store.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig is optional; without it the throttle is disabled and locks
// fall back to Postgres advisory locks.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// DeliveryConfig tunes campaign runs
type DeliveryConfig struct {
	Workers          int  `yaml:"workers"`
	MaxAttempts      int  `yaml:"max_attempts"`
	RetryBaseMillis  int  `yaml:"retry_base_millis"`
	RetryMaxSeconds  int  `yaml:"retry_max_seconds"`
	FailWhenNoneSent bool `yaml:"fail_when_none_sent"`

	// KeepBounces disables adding permanently failing addresses to the
	// suppression list.
	KeepBounces bool `yaml:"keep_bounces"`

	// DryRun logs messages instead of handing them to SES.
	DryRun bool `yaml:"dry_run"`
}

// RetryBase returns the first retry delay.
func (c DeliveryConfig) RetryBase() time.Duration {
	return time.Duration(c.RetryBaseMillis) * time.Millisecond
}

// RetryMax returns the retry delay cap.
func (c DeliveryConfig) RetryMax() time.Duration {
	return time.Duration(c.RetryMaxSeconds) * time.Second
}

// SchedulerConfig holds cron specs for the worker
type SchedulerConfig struct {
	DispatchSpec   string `yaml:"dispatch_spec"`
	RefreshSpec    string `yaml:"refresh_spec"`
	BatchSize      int    `yaml:"batch_size"`
	LockTTLMinutes int    `yaml:"lock_ttl_minutes"`
}

// LockTTL returns how long a campaign lock is held at most.
func (c SchedulerConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLMinutes) * time.Minute
}

// SESConfig holds AWS SES configuration
type SESConfig struct {
	AccessKey        string `yaml:"access_key"`
	SecretKey        string `yaml:"secret_key"`
	Region           string `yaml:"region"`
	ConfigurationSet string `yaml:"configuration_set"`
}

// ThrottleConfig holds transport rate limits, enforced through Redis
type ThrottleConfig struct {
	Enabled         bool `yaml:"enabled"`
	PerSecond       int  `yaml:"per_second"`
	PerMinute       int  `yaml:"per_minute"`
	Daily           int  `yaml:"daily"`
	DomainPerMinute int  `yaml:"domain_per_minute"`
}

// LedgerConfig enables the event sinks
type LedgerConfig struct {
	AMQPURL        string `yaml:"amqp_url"`
	Exchange       string `yaml:"exchange"`
	Webhook        bool   `yaml:"webhook"`
	WebhookRetries int    `yaml:"webhook_retries"`
}

// StorageConfig holds the AWS archive settings
type StorageConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Region     string `yaml:"region"`
	AWSProfile string `yaml:"aws_profile"`
	Table      string `yaml:"table"`
	Bucket     string `yaml:"bucket"`
	TTLDays    int    `yaml:"ttl_days"`
}

// GetAWSProfile returns the profile unless running in a container, where
// the task role is used instead.
func (c StorageConfig) GetAWSProfile() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.AWSProfile
}

// TTL returns how long archived events are kept.
func (c StorageConfig) TTL() time.Duration {
	return time.Duration(c.TTLDays) * 24 * time.Hour
}

// LogConfig controls the logger
type LogConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Redact reports whether PII redaction is on. It defaults to true.
func (c LogConfig) Redact() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// Load reads and parses the configuration file. An empty path yields the
// defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.ReadTimeoutSeconds == 0 {
		cfg.Server.ReadTimeoutSeconds = 15
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"*"}
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Delivery.Workers == 0 {
		cfg.Delivery.Workers = 10
	}
	if cfg.Delivery.MaxAttempts == 0 {
		cfg.Delivery.MaxAttempts = 3
	}
	if cfg.Delivery.RetryBaseMillis == 0 {
		cfg.Delivery.RetryBaseMillis = 500
	}
	if cfg.Delivery.RetryMaxSeconds == 0 {
		cfg.Delivery.RetryMaxSeconds = 30
	}
	if cfg.Scheduler.DispatchSpec == "" {
		cfg.Scheduler.DispatchSpec = "@every 30s"
	}
	if cfg.Scheduler.RefreshSpec == "" {
		cfg.Scheduler.RefreshSpec = "@every 5m"
	}
	if cfg.Scheduler.BatchSize == 0 {
		cfg.Scheduler.BatchSize = 20
	}
	if cfg.Scheduler.LockTTLMinutes == 0 {
		cfg.Scheduler.LockTTLMinutes = 30
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-west-2"
	}
	if cfg.Ledger.Exchange == "" {
		cfg.Ledger.Exchange = "campaign.events"
	}
	if cfg.Ledger.WebhookRetries == 0 {
		cfg.Ledger.WebhookRetries = 3
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = cfg.SES.Region
	}
	if cfg.Storage.TTLDays == 0 {
		cfg.Storage.TTLDays = 90
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) before reading env vars, so secrets can
// live in .env locally and in real env vars in a container.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.SES.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.SES.Region = v
	}
	if v := os.Getenv("AWS_SES_CONFIGURATION_SET"); v != "" {
		cfg.SES.ConfigurationSet = v
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		cfg.Ledger.AMQPURL = v
	}
	if v := os.Getenv("ARCHIVE_S3_BUCKET"); v != "" {
		cfg.Storage.Bucket = v
	}
	if v := os.Getenv("ARCHIVE_DYNAMODB_TABLE"); v != "" {
		cfg.Storage.Table = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("DELIVERY_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("DELIVERY_WORKERS: invalid value %q", v)
		}
		cfg.Delivery.Workers = n
	}

	return cfg, nil
}
