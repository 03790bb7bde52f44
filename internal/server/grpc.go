// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package server

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/churnai/retention-engine/pkg/common"
	"github.com/churnai/retention-engine/pkg/store"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// DefaultHealthInterval is how often the store is checked for the gRPC health status.
const DefaultHealthInterval = 10 * time.Second

// GRPCServer serves the standard health service for orchestrator health checks.
type GRPCServer struct {
	server   *grpc.Server
	health   *health.Server
	port     int
	checker  *store.HealthChecker
	interval time.Duration
}

// NewGRPCServer creates a new gRPC server instance.
func NewGRPCServer(port int, checker *store.HealthChecker) *GRPCServer {
	return &GRPCServer{
		port:     port,
		checker:  checker,
		interval: DefaultHealthInterval,
	}
}

// Setup configures the gRPC server with interceptors and registers services.
//
// ============================================================
// DEVELOPER: gRPC server configuration
// ============================================================
// This method sets up:
// 1. Interceptors (logging)
// 2. Server features (reflection, health checks)
// ============================================================
func (s *GRPCServer) Setup() error {
	unaryInterceptors := []grpc.UnaryServerInterceptor{
		logging.UnaryServerInterceptor(common.InterceptorLogger(logrus.StandardLogger())),
	}
	streamInterceptors := []grpc.StreamServerInterceptor{
		logging.StreamServerInterceptor(common.InterceptorLogger(logrus.StandardLogger())),
	}

	s.server = grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(unaryInterceptors...),
		grpc.ChainStreamInterceptor(streamInterceptors...),
	)

	s.health = health.NewServer()
	reflection.Register(s.server)
	grpc_health_v1.RegisterHealthServer(s.server, s.health)

	logrus.Infof("gRPC reflection and health check enabled")

	return nil
}

// Start begins listening and serving gRPC requests.
func (s *GRPCServer) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.port, err)
	}

	if s.checker != nil {
		go s.watchHealth(ctx)
	}

	go func() {
		logrus.Infof("gRPC server listening on port %d", s.port)
		if err := s.server.Serve(lis); err != nil {
			logrus.Fatalf("gRPC server failed: %v", err)
		}
	}()

	return nil
}

func (s *GRPCServer) watchHealth(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.updateHealth(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *GRPCServer) updateHealth(ctx context.Context) {
	status := grpc_health_v1.HealthCheckResponse_SERVING
	if !s.checker.IsHealthy(ctx) {
		status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
}

// Shutdown gracefully stops the gRPC server.
func (s *GRPCServer) Shutdown(ctx context.Context) error {
	logrus.Info("shutting down gRPC server...")
	s.health.Shutdown()
	s.server.GracefulStop()
	logrus.Info("gRPC server stopped")
	return nil
}
