// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/churnai/retention-engine/internal/bootstrap"
	"github.com/churnai/retention-engine/internal/config"
	"github.com/churnai/retention-engine/internal/server"
	"github.com/churnai/retention-engine/pkg/common"
	"github.com/churnai/retention-engine/pkg/handler"
	"github.com/sirupsen/logrus"
)

// App holds all application dependencies and manages the application lifecycle.
type App struct {
	cfg               *config.Config
	storage           *bootstrap.Storage
	events            *bootstrap.EventPipeline
	httpServer        *server.HTTPServer
	grpcServer        *server.GRPCServer
	metricsServer     *server.MetricsServer
	shutdownTelemetry func(context.Context) error
}

// New creates and initializes a new application instance.
//
// ============================================================
// DEVELOPER: Application initialization order
// ============================================================
// Components are initialized in dependency order:
// 1. Storage (Redis or PostgreSQL, with retry)
// 2. Playbooks (stored rules over config/playbooks.yaml)
// 3. Event pipeline (event store, optional Kafka)
// 4. Billing (Stripe, optional)
// 5. Conversation manager and HTTP API
// 6. Servers (HTTP, gRPC health, metrics)
// 7. Telemetry (OpenTelemetry tracing)
//
// If you add new external dependencies, initialize them
// before step 5 and pass them to bootstrap.InitManager.
// A failure in any step releases what earlier steps opened.
// ============================================================
func New(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	logrus.Info("initializing application...")

	app := &App{cfg: cfg}
	defer func() {
		if err != nil {
			app.abort()
		}
	}()

	// ============================================================
	// Step 1: Initialize storage
	// ============================================================
	storage, err := bootstrap.InitStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to init %s store: %w", cfg.StoreBackend, err)
	}
	app.storage = storage

	// ============================================================
	// Step 2: Load playbooks
	// ============================================================
	provider, err := bootstrap.InitPlaybookProvider(cfg.PlaybookPath, storage.Backend)
	if err != nil {
		return nil, fmt.Errorf("failed to init playbooks: %w", err)
	}

	// ============================================================
	// Step 3: Start the event pipeline
	// ============================================================
	app.events = bootstrap.InitEventPipeline(cfg, storage.Backend)

	// ============================================================
	// Step 4: Initialize billing
	// ============================================================
	stripe := bootstrap.InitBilling(cfg)

	// ============================================================
	// Step 5: Wire the conversation manager and API
	// ============================================================
	manager, err := bootstrap.InitManager(cfg, provider, storage.Backend, app.events, stripe)
	if err != nil {
		return nil, fmt.Errorf("failed to init conversation manager: %w", err)
	}

	var webhooks handler.WebhookParser
	if stripe != nil && cfg.StripeWebhookSecret != "" {
		webhooks = stripe
	} else {
		logrus.Warn("STRIPE_WEBHOOK_SECRET not set, /webhooks/stripe will answer 503")
	}
	api := handler.NewAPI(manager, provider, storage.Backend, webhooks)

	// ============================================================
	// Step 6: Setup servers
	// ============================================================
	var limiter *server.RateLimiter
	if cfg.RateLimitRPS > 0 {
		limiter = server.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, handler.WritePaths())
	}

	trust, err := common.NewProxyTrust(cfg.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("invalid TRUSTED_PROXIES: %w", err)
	}

	app.httpServer = server.NewHTTPServer(cfg.HTTPPort, api, storage.Health, limiter, trust, cfg.CORSAllowedOrigins)
	if err := app.httpServer.Setup(); err != nil {
		return nil, fmt.Errorf("failed to setup HTTP server: %w", err)
	}

	app.grpcServer = server.NewGRPCServer(cfg.GRPCPort, storage.Health)
	if err := app.grpcServer.Setup(); err != nil {
		return nil, fmt.Errorf("failed to setup gRPC server: %w", err)
	}

	app.metricsServer = server.NewMetricsServer(cfg.MetricsPort, "/metrics")
	if err := app.metricsServer.Setup(); err != nil {
		return nil, fmt.Errorf("failed to setup metrics server: %w", err)
	}

	// ============================================================
	// Step 7: Setup telemetry
	// ============================================================
	shutdownTelemetry, err := server.SetupTelemetry(ctx, server.TelemetryConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Export:      cfg.OtelEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to setup telemetry: %w", err)
	}
	app.shutdownTelemetry = shutdownTelemetry

	logrus.Info("application initialized successfully")

	return app, nil
}

// abort releases resources opened by a New that did not complete.
func (a *App) abort() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.releaseResources(ctx)
}

// releaseResources drains the event queue, then closes Kafka and storage.
func (a *App) releaseResources(ctx context.Context) {
	if a.events != nil {
		if err := a.events.Emitter.Close(ctx); err != nil {
			logrus.Errorf("event emitter drain error: %v", err)
		}
		if a.events.Kafka != nil {
			if err := a.events.Kafka.Close(); err != nil {
				logrus.Errorf("Kafka writer close error: %v", err)
			}
		}
	}
	if a.storage != nil {
		a.closeStorage()
	}
}

func (a *App) closeStorage() {
	if err := a.storage.Close(); err != nil {
		logrus.Errorf("%s close error: %v", a.storage.Health.Name(), err)
	}
}
