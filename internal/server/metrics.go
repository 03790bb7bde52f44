// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/churnai/retention-engine/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// MetricsServer serves Prometheus metrics on their own port so scrapes
// never compete with API traffic or its rate limits.
type MetricsServer struct {
	server   *http.Server
	registry *prometheus.Registry
	port     int
	endpoint string
}

func NewMetricsServer(port int, endpoint string) *MetricsServer {
	return &MetricsServer{
		port:     port,
		endpoint: endpoint,
	}
}

// NewRegistry returns a registry with runtime collectors and the
// retention counters from pkg/metrics.
//
// ============================================================
// DEVELOPER: Adding metrics
// ============================================================
// Declare the collector in pkg/metrics and append it to
// metrics.Collectors(). Nothing needs to change here.
// ============================================================
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	registry.MustRegister(metrics.Collectors()...)
	return registry
}

// Setup builds the registry and the scrape handler.
func (m *MetricsServer) Setup() error {
	m.registry = NewRegistry()

	handler := promhttp.InstrumentMetricHandler(m.registry,
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
			ErrorLog:      logrus.WithField("component", "metrics"),
			ErrorHandling: promhttp.ContinueOnError,
		}))

	mux := http.NewServeMux()
	mux.Handle(m.endpoint, handler)

	m.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", m.port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return nil
}

// Handler returns the scrape mux. Setup must have been called.
func (m *MetricsServer) Handler() http.Handler {
	return m.server.Handler
}

func (m *MetricsServer) Start(ctx context.Context) error {
	go func() {
		logrus.Infof("metrics server listening on port %d%s", m.port, m.endpoint)
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("metrics server failed: %v", err)
		}
	}()
	return nil
}

func (m *MetricsServer) Shutdown(ctx context.Context) error {
	logrus.Info("shutting down metrics server...")
	if err := m.server.Shutdown(ctx); err != nil {
		return err
	}
	logrus.Info("metrics server stopped")
	return nil
}
