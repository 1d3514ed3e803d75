package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config carries everything needed to construct a store client and manager.
// It is immutable once built; pass it by value.
type Config struct {
	// StoreURL is the base URL of the blob store API.
	StoreURL string `env:"PERMASAVE_STORE_URL" yaml:"store_url" json:"store_url"`

	// StoreToken is the bearer credential for the blob store.
	StoreToken string `env:"PERMASAVE_STORE_TOKEN" yaml:"store_token" json:"store_token"`

	// RequestTimeout bounds each store request.
	RequestTimeout Duration `env:"PERMASAVE_REQUEST_TIMEOUT" envDefault:"30s" yaml:"request_timeout" json:"request_timeout"`

	// Retry enables exponential backoff on idempotent store requests.
	Retry bool `env:"PERMASAVE_RETRY" yaml:"retry" json:"retry"`

	// RetryMaxElapsed caps the total time spent retrying one request.
	RetryMaxElapsed Duration `env:"PERMASAVE_RETRY_MAX_ELAPSED" envDefault:"1m" yaml:"retry_max_elapsed" json:"retry_max_elapsed"`

	// FetchConcurrency bounds parallel body fetches during listing.
	FetchConcurrency int `env:"PERMASAVE_FETCH_CONCURRENCY" envDefault:"4" yaml:"fetch_concurrency" json:"fetch_concurrency"`

	// Verbose enables debug-level logging.
	Verbose bool `env:"PERMASAVE_VERBOSE" yaml:"verbose" json:"verbose"`
}

// Default returns the configuration defaults used when a field is absent
// from a config file.
func Default() Config {
	return Config{
		RequestTimeout:   Duration(30 * time.Second),
		RetryMaxElapsed:  Duration(time.Minute),
		FetchConcurrency: 4,
	}
}

// FromEnv loads configuration from PERMASAVE_* environment variables.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate checks the fields the store client cannot work without.
func (c Config) Validate() error {
	if c.StoreURL == "" {
		return fmt.Errorf("store URL is required")
	}
	if c.StoreToken == "" {
		return fmt.Errorf("store token is required")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %s", c.RequestTimeout)
	}
	if c.FetchConcurrency < 1 {
		return fmt.Errorf("fetch concurrency must be at least 1, got %d", c.FetchConcurrency)
	}
	return nil
}
