package publisher

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the pinning service settings.
type Config struct {
	// Endpoint is the pinning API base URL, without a trailing slash.
	Endpoint string `env:"BAZAAR_PIN_ENDPOINT" envDefault:"https://api.pinata.cloud"`

	// Gateway is the public gateway prefix locators are formed from.
	Gateway string `env:"BAZAAR_PIN_GATEWAY" envDefault:"https://gateway.pinata.cloud/ipfs/"`

	// Token is the bearer token for the authenticated pinning channel.
	Token string `env:"BAZAAR_PIN_TOKEN"`

	// Timeout bounds each pinning round-trip.
	Timeout time.Duration `env:"BAZAAR_PIN_TIMEOUT" envDefault:"30s"`
}

// ConfigFromEnv loads configuration from environment variables.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
