// Package config loads the dispatcher's runtime options from environment
// variables and an optional .env file, in a flat section-per-concern shape:
// provider credentials, send limits, retry policy, scheduler concurrency,
// webhook verification, and storage location.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config is the full set of options the core recognizes.
type Config struct {
	Provider  ProviderConfig
	Limits    LimitsConfig
	Retry     RetryConfig
	Scheduler SchedulerConfig
	Webhook   WebhookConfig
	Storage   StorageConfig
	LogLevel  string
}

type ProviderConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

type LimitsConfig struct {
	Daily     int
	PerMinute int
}

type RetryConfig struct {
	MaxAttempts int
	BaseSeconds float64
	MaxSeconds  float64
}

type SchedulerConfig struct {
	ConcurrencyDefault int
}

type WebhookConfig struct {
	Secret              string
	ReplayWindowSeconds int
}

type StorageConfig struct {
	Path string
}

// LoadOptions controls where Load looks for an optional env file.
type LoadOptions struct {
	EnvFile string
}

// Load loads configuration with the default options (an optional ".env" in
// the working directory, overridden by real environment variables).
func Load() (*Config, error) {
	return LoadWithOptions(LoadOptions{EnvFile: ".env"})
}

// LoadWithOptions loads configuration per opts.
func LoadWithOptions(opts LoadOptions) (*Config, error) {
	v := viper.New()

	v.SetDefault("LIMITS_DAILY", 1000)
	v.SetDefault("LIMITS_PER_MINUTE", 60)
	v.SetDefault("RETRY_MAX_ATTEMPTS", 3)
	v.SetDefault("RETRY_BASE_SECONDS", 1.0)
	v.SetDefault("RETRY_MAX_SECONDS", 30.0)
	v.SetDefault("SCHEDULER_CONCURRENCY_DEFAULT", 10)
	v.SetDefault("WEBHOOK_REPLAY_WINDOW_SECONDS", 300)
	v.SetDefault("STORAGE_PATH", "campaign.db")
	v.SetDefault("LOG_LEVEL", "info")

	if opts.EnvFile != "" {
		v.SetConfigName(opts.EnvFile)
		v.SetConfigType("env")

		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("get working directory: %w", err)
		}
		v.AddConfigPath(cwd)

		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		Provider: ProviderConfig{
			APIKey:    v.GetString("PROVIDER_API_KEY"),
			FromEmail: v.GetString("PROVIDER_FROM_EMAIL"),
			FromName:  v.GetString("PROVIDER_FROM_NAME"),
		},
		Limits: LimitsConfig{
			Daily:     v.GetInt("LIMITS_DAILY"),
			PerMinute: v.GetInt("LIMITS_PER_MINUTE"),
		},
		Retry: RetryConfig{
			MaxAttempts: v.GetInt("RETRY_MAX_ATTEMPTS"),
			BaseSeconds: v.GetFloat64("RETRY_BASE_SECONDS"),
			MaxSeconds:  v.GetFloat64("RETRY_MAX_SECONDS"),
		},
		Scheduler: SchedulerConfig{
			ConcurrencyDefault: v.GetInt("SCHEDULER_CONCURRENCY_DEFAULT"),
		},
		Webhook: WebhookConfig{
			Secret:              v.GetString("WEBHOOK_SECRET"),
			ReplayWindowSeconds: v.GetInt("WEBHOOK_REPLAY_WINDOW_SECONDS"),
		},
		Storage: StorageConfig{
			Path: v.GetString("STORAGE_PATH"),
		},
		LogLevel: v.GetString("LOG_LEVEL"),
	}

	if cfg.Provider.APIKey == "" {
		return nil, fmt.Errorf("PROVIDER_API_KEY must be set")
	}
	if cfg.Provider.FromEmail == "" {
		return nil, fmt.Errorf("PROVIDER_FROM_EMAIL must be set")
	}

	return cfg, nil
}
