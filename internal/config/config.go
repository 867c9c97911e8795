package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"    validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"  validate:"required"`
	Redis     RedisConfig     `mapstructure:"redis"`
	NSQ       NSQConfig       `mapstructure:"nsq"`
	Upstream  UpstreamConfig  `mapstructure:"upstream"  validate:"required"`
	Delivery  DeliveryConfig  `mapstructure:"delivery"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Worker    WorkerConfig    `mapstructure:"worker"`
}

// ServerConfig contains all HTTP server related settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains the Postgres connection settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// RedisConfig contains the optional shared rate-limiter backend. With no
// address the deliverer falls back to a process-local limiter.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NSQConfig contains the optional trigger queue settings. With no address
// triggering stays in-process.
type NSQConfig struct {
	NSQDAddress string `mapstructure:"nsqd_address"`
	Topic       string `mapstructure:"topic"`
	Channel     string `mapstructure:"channel"`
}

// UpstreamConfig contains the text-generation provider settings.
type UpstreamConfig struct {
	BaseURL        string        `mapstructure:"base_url" validate:"required,url"`
	APIKey         string        `mapstructure:"api_key"  validate:"required"`
	MaxAttempts    int           `mapstructure:"max_attempts"    validate:"omitempty,gte=1,lte=10"`
	BaseDelay      time.Duration `mapstructure:"base_delay"`
	MaxDelay       time.Duration `mapstructure:"max_delay"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
	OverallBudget  time.Duration `mapstructure:"overall_budget"`
}

// DeliveryConfig contains the webhook delivery settings.
type DeliveryConfig struct {
	Timeout         time.Duration `mapstructure:"timeout"`
	RateLimitWindow time.Duration `mapstructure:"rate_limit_window"`
}

// ReconcileConfig contains the reconciliation monitor settings.
type ReconcileConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	Grace      time.Duration `mapstructure:"grace"`
	Retention  time.Duration `mapstructure:"retention"`
	MaxRetries int           `mapstructure:"max_retries" validate:"omitempty,gte=1,lte=10"`
	BatchSize  int           `mapstructure:"batch_size"  validate:"omitempty,gte=1"`
	BatchDelay time.Duration `mapstructure:"batch_delay"`
	RunBudget  time.Duration `mapstructure:"run_budget"`
}

// WorkerConfig contains the background worker pool settings.
type WorkerConfig struct {
	Count         int           `mapstructure:"count"          validate:"omitempty,gte=1,lte=64"`
	TriggerBuffer int           `mapstructure:"trigger_buffer" validate:"omitempty,gte=1"`
	StaleAfter    time.Duration `mapstructure:"stale_after"`
}
