// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package store

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Pinger is a backend that can report its connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker provides store health check functionality
type HealthChecker struct {
	name    string
	backend Pinger
	timeout time.Duration
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(name string, backend Pinger) *HealthChecker {
	return &HealthChecker{name: name, backend: backend, timeout: 2 * time.Second}
}

// Name returns the backend name used in logs
func (h *HealthChecker) Name() string {
	return h.name
}

// Check performs a health check
func (h *HealthChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	if err := h.backend.Ping(ctx); err != nil {
		logrus.Errorf("%s health check failed: %v", h.name, err)
		return err
	}

	logrus.Debugf("%s health check passed", h.name)
	return nil
}

// IsHealthy returns true if the store is accessible
func (h *HealthChecker) IsHealthy(ctx context.Context) bool {
	return h.Check(ctx) == nil
}
