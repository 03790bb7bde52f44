// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Load reads configuration from environment variables.
// It attempts to load from .env file first (for local development),
// then parses environment variables into the Config struct.
func Load() (*Config, error) {
	// In production (Docker/K8s), environment variables are injected directly
	if err := godotenv.Load(); err != nil {
		logrus.Warnf("no .env file found or error loading it: %v (this is normal in production)", err)
	} else {
		logrus.Infof("loaded environment variables from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config from environment: %w", err)
	}

	return cfg, nil
}

// Validate performs custom validation on the configuration.
func (c *Config) Validate() error {
	ports := []struct {
		name string
		port int
	}{
		{"HTTP_PORT", c.HTTPPort},
		{"GRPC_PORT", c.GRPCPort},
		{"METRICS_PORT", c.MetricsPort},
	}
	for _, p := range ports {
		if p.port < 1 || p.port > 65535 {
			return fmt.Errorf("invalid %s: %d (must be 1-65535)", p.name, p.port)
		}
	}

	switch c.StoreBackend {
	case StoreRedis:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_BACKEND=%s", StorePostgres)
		}
	default:
		return fmt.Errorf("invalid STORE_BACKEND: %q (must be %s or %s)", c.StoreBackend, StoreRedis, StorePostgres)
	}

	if c.BillingTimeout <= 0 {
		return fmt.Errorf("invalid BILLING_TIMEOUT: %v (must be positive)", c.BillingTimeout)
	}
	if c.PauseMonthDays < 1 {
		return fmt.Errorf("invalid PAUSE_MONTH_DAYS: %d (must be at least 1)", c.PauseMonthDays)
	}
	if c.EventQueueSize < 1 {
		return fmt.Errorf("invalid EVENT_QUEUE_SIZE: %d (must be at least 1)", c.EventQueueSize)
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		return fmt.Errorf("invalid RATE_LIMIT_BURST: %d (must be at least 1)", c.RateLimitBurst)
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaEventsTopic == "" {
		return fmt.Errorf("KAFKA_EVENTS_TOPIC is required when KAFKA_BROKERS is set")
	}

	return nil
}

// BillingEnabled reports whether a Stripe key is configured.
func (c *Config) BillingEnabled() bool {
	return c.StripeSecretKey != ""
}
