package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and an optional
// config.yaml in the working directory. Environment variables use the
// RELAY_ prefix with underscores for nesting, e.g. RELAY_SERVER_PORT or
// RELAY_UPSTREAM_API_KEY, and take precedence over file values.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		// The config file is optional; only a malformed file is fatal.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	// Empty defaults register the keys so AutomaticEnv can fill them.
	v.SetDefault("database.url", "")
	v.SetDefault("upstream.base_url", "")
	v.SetDefault("upstream.api_key", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("nsq.nsqd_address", "")

	v.SetDefault("nsq.topic", "relay_jobs")
	v.SetDefault("nsq.channel", "workers")

	v.SetDefault("upstream.max_attempts", 3)
	v.SetDefault("upstream.base_delay", time.Second)
	v.SetDefault("upstream.max_delay", 5*time.Second)
	v.SetDefault("upstream.attempt_timeout", 11*time.Minute)
	v.SetDefault("upstream.overall_budget", 13*time.Minute)

	v.SetDefault("delivery.timeout", 10*time.Second)
	v.SetDefault("delivery.rate_limit_window", 10*time.Second)

	v.SetDefault("reconcile.interval", 2*time.Minute)
	v.SetDefault("reconcile.grace", 2*time.Minute)
	v.SetDefault("reconcile.retention", 30*time.Minute)
	v.SetDefault("reconcile.max_retries", 3)
	v.SetDefault("reconcile.batch_size", 20)
	v.SetDefault("reconcile.batch_delay", time.Second)
	v.SetDefault("reconcile.run_budget", 90*time.Second)

	v.SetDefault("worker.count", 4)
	v.SetDefault("worker.trigger_buffer", 256)
	v.SetDefault("worker.stale_after", 20*time.Minute)
}
