// Package config holds runtime settings: defaults, then environment, then flags.
package config

import (
	"flag"
	"fmt"
	"os"
	"time"
)

// Config holds runtime settings for the bidding service.
type Config struct {
	Port               string
	DatabaseURL        string
	JWTSecret          string
	TokenTTL           time.Duration
	CronSecret         string
	LogLevel           string
	BidTimeout         time.Duration
	RateLimitWindow    time.Duration
	ActivationInterval time.Duration
	SeedSampleData     bool
}

// Default returns development defaults. Secrets must be overridden in production.
func Default() Config {
	return Config{
		Port:               "8080",
		JWTSecret:          "dev-secret",
		TokenTTL:           24 * time.Hour,
		CronSecret:         "dev-cron-secret",
		LogLevel:           "info",
		BidTimeout:         3 * time.Second,
		RateLimitWindow:    5 * time.Second,
		ActivationInterval: time.Minute,
		SeedSampleData:     true,
	}
}

// Load builds a Config from defaults, the environment and args.
func Load(args []string) (Config, error) {
	cfg := Default()
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.applyFlags(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return ":" + c.Port
}

func (c *Config) applyEnv(getenv func(string) string) error {
	setString := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	setDuration := func(key string, dst *time.Duration) error {
		v := getenv(key)
		if v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
		*dst = d
		return nil
	}

	setString("PORT", &c.Port)
	setString("DATABASE_URL", &c.DatabaseURL)
	setString("JWT_SECRET", &c.JWTSecret)
	setString("CRON_SECRET", &c.CronSecret)
	setString("LOG_LEVEL", &c.LogLevel)

	for key, dst := range map[string]*time.Duration{
		"TOKEN_TTL":           &c.TokenTTL,
		"BID_TIMEOUT":         &c.BidTimeout,
		"RATE_LIMIT_WINDOW":   &c.RateLimitWindow,
		"ACTIVATION_INTERVAL": &c.ActivationInterval,
	} {
		if err := setDuration(key, dst); err != nil {
			return err
		}
	}

	if v := getenv("SEED_SAMPLE_DATA"); v != "" {
		c.SeedSampleData = v == "true" || v == "1"
	}
	return nil
}

func (c *Config) applyFlags(args []string) error {
	fs := flag.NewFlagSet("live-bidding", flag.ContinueOnError)

	fs.StringVar(&c.Port, "port", c.Port, "HTTP port")
	fs.StringVar(&c.DatabaseURL, "database-url", c.DatabaseURL, "PostgreSQL DSN; empty selects in-memory storage")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level")
	fs.DurationVar(&c.BidTimeout, "bid-timeout", c.BidTimeout, "deadline for rate-limit check and ledger append")
	fs.DurationVar(&c.RateLimitWindow, "rate-limit-window", c.RateLimitWindow, "per user/auction bid cooldown")
	fs.DurationVar(&c.ActivationInterval, "activation-interval", c.ActivationInterval, "activation sweep interval; 0 disables the in-process sweep")
	fs.BoolVar(&c.SeedSampleData, "seed", c.SeedSampleData, "seed sample auctions")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
