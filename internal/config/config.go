// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package config

import "time"

// Store backends.
const (
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Config holds all application configuration loaded from environment variables.
// This struct uses github.com/caarlos0/env for automatic environment variable parsing.
//
// ============================================================
// DEVELOPER: Add new configuration fields here.
// ============================================================
// Use struct tags to define:
// - `env:"VAR_NAME"` - the environment variable name
// - `envDefault:"value"` - set a default value
//
// After adding fields here, update loader.go Validate() if custom
// validation is needed.
// ============================================================
type Config struct {
	// ============================================================
	// Server configuration
	// ============================================================
	HTTPPort    int    `env:"HTTP_PORT" envDefault:"8000"`
	GRPCPort    int    `env:"GRPC_PORT" envDefault:"6565"`
	MetricsPort int    `env:"METRICS_PORT" envDefault:"8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"dev"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"ChurnAIRetentionEngine"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Origins allowed to call the API from the widget and dashboard.
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	// Per client IP limits on write endpoints. RateLimitRPS <= 0 disables limiting.
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"10"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"20"`

	// Proxy addresses or CIDR ranges whose X-Forwarded-For is believed.
	// Empty means the connection peer is always the client.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`

	// ============================================================
	// Storage configuration
	// ============================================================
	StoreBackend string `env:"STORE_BACKEND" envDefault:"redis"`

	RedisHost          string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort          string `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword      string `env:"REDIS_PASSWORD"`
	RedisMaxRetries    int    `env:"REDIS_MAX_RETRIES" envDefault:"5"`
	RedisRetryDelayMs  int    `env:"REDIS_RETRY_DELAY_MS" envDefault:"1000"`
	RedisKeyPrefix     string `env:"REDIS_KEY_PREFIX" envDefault:"churnai:"`
	MaxEventsPerTenant int64  `env:"MAX_EVENTS_PER_TENANT" envDefault:"1000"`

	DatabaseURL string `env:"DATABASE_URL"`

	// ============================================================
	// Playbook configuration
	// ============================================================
	PlaybookPath string `env:"PLAYBOOK_PATH" envDefault:"config/playbooks.yaml"`

	// ============================================================
	// Billing configuration
	// ============================================================
	StripeSecretKey     string        `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string        `env:"STRIPE_WEBHOOK_SECRET"`
	StripeAPIURL        string        `env:"STRIPE_API_URL"`
	StripeMaxRetries    int64         `env:"STRIPE_MAX_NETWORK_RETRIES" envDefault:"2"`
	BillingTimeout      time.Duration `env:"BILLING_TIMEOUT" envDefault:"10s"`
	PauseMonthDays      int           `env:"PAUSE_MONTH_DAYS" envDefault:"30"`
	DefaultCurrency     string        `env:"DEFAULT_CURRENCY" envDefault:"usd"`

	// ============================================================
	// Event stream configuration
	// ============================================================
	EventQueueSize   int      `env:"EVENT_QUEUE_SIZE" envDefault:"1024"`
	KafkaBrokers     []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaEventsTopic string   `env:"KAFKA_EVENTS_TOPIC" envDefault:"churnai.events"`

	// ============================================================
	// Telemetry configuration
	// ============================================================
	OtelEnabled bool `env:"OTEL_ENABLED" envDefault:"true"`
}
