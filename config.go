package authbridge

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds the environment shared by the packages of this module.
type Config struct {
	// ConvexURL is the backend deployment URL.
	ConvexURL string `env:"PUBLIC_CONVEX_URL"`
	// ConvexSiteURL is the backend HTTP actions URL the auth provider runs on.
	ConvexSiteURL string `env:"PUBLIC_CONVEX_SITE_URL"`
	// SiteURL is the public URL of the app.
	SiteURL string `env:"SITE_URL"`
	Verbose bool   `env:"AUTHBRIDGE_VERBOSE"`
}

// ParseEnv fills target from the environment.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadConfig reads Config from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
