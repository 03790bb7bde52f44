// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package server

import (
	"context"
	"fmt"

	"github.com/churnai/retention-engine/pkg/common"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/propagators/b3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// TelemetryConfig selects what SetupTelemetry installs.
type TelemetryConfig struct {
	ServiceName string
	Environment string
	// Export turns on span export. Propagators are installed either way so
	// trace headers from the widget pass through to logs.
	Export bool
}

// SetupTelemetry installs the trace propagators and, when exporting, the
// Zipkin tracer provider. The returned function flushes pending spans.
//
// ============================================================
// DEVELOPER: OpenTelemetry configuration
// ============================================================
// OTEL_ENABLED=false keeps the no-op tracer; spans are not
// exported but request scopes still carry trace ids.
// Spans go to OTEL_EXPORTER_ZIPKIN_ENDPOINT (pkg/common/telemetry.go).
// Incoming trace context is read as B3 or W3C traceparent.
// ============================================================
func SetupTelemetry(ctx context.Context, cfg TelemetryConfig) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		b3.New(),
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !cfg.Export {
		logrus.Info("span export disabled")
		return func(context.Context) error { return nil }, nil
	}

	tp, err := common.NewTracerProvider(cfg.ServiceName, cfg.Environment, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer provider: %w", err)
	}
	otel.SetTracerProvider(tp)
	logrus.Infof("exporting spans for %s (%s)", cfg.ServiceName, cfg.Environment)

	return func(ctx context.Context) error {
		if err := tp.ForceFlush(ctx); err != nil {
			logrus.Warnf("span flush failed: %v", err)
		}
		return tp.Shutdown(ctx)
	}, nil
}
