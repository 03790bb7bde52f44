// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/churnai/retention-engine/pkg/common"
	"github.com/churnai/retention-engine/pkg/handler"
	"github.com/churnai/retention-engine/pkg/store"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HTTPServer serves the public JSON API.
type HTTPServer struct {
	server  *http.Server
	port    int
	api     *handler.API
	health  *store.HealthChecker
	limiter *RateLimiter
	trust   *common.ProxyTrust
	origins []string
}

// NewHTTPServer creates a new HTTP server instance. limiter and trust may be
// nil; a nil trust keys every request on its connection peer.
func NewHTTPServer(port int, api *handler.API, health *store.HealthChecker, limiter *RateLimiter, trust *common.ProxyTrust, origins []string) *HTTPServer {
	return &HTTPServer{
		port:    port,
		api:     api,
		health:  health,
		limiter: limiter,
		trust:   trust,
		origins: origins,
	}
}

// Setup builds the router and middleware chain.
//
// ============================================================
// DEVELOPER: HTTP middleware order
// ============================================================
// Requests pass through, outermost first:
// 1. otelhttp (server span, trace context extraction)
// 2. CORS (widget and dashboard origins)
// 3. client IP resolution (X-Forwarded-For only from TRUSTED_PROXIES)
// 4. rate limiter (write endpoints only)
// 5. gorilla/mux routes
// ============================================================
func (s *HTTPServer) Setup() error {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	s.api.Register(r)

	var h http.Handler = r
	if s.limiter != nil {
		h = s.limiter.Middleware(h)
	}
	h = s.trust.Middleware(h)

	h = cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Tenant-Id"},
		MaxAge:         600,
	}).Handler(h)

	h = otelhttp.NewHandler(h, "churnai-api")

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return nil
}

// Handler returns the configured handler chain.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) healthz(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{"status": "ok"}
	status := http.StatusOK

	if s.health != nil {
		if err := s.health.Check(r.Context()); err != nil {
			logrus.Warnf("health check failed: %v", err)
			body = map[string]string{"status": "unavailable", "store": s.health.Name()}
			status = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Start begins serving the API on the configured port.
func (s *HTTPServer) Start(ctx context.Context) error {
	if s.limiter != nil {
		go s.limiter.Run(ctx)
	}

	go func() {
		logrus.Infof("HTTP server listening on port %d", s.port)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()
	return nil
}

// Shutdown drains in-flight requests.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	logrus.Info("shutting down HTTP server...")
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	logrus.Info("HTTP server stopped")
	return nil
}
