// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package main

import (
	"context"

	"github.com/churnai/retention-engine/internal/app"
	"github.com/churnai/retention-engine/internal/config"
	"github.com/churnai/retention-engine/pkg/common"
	"github.com/sirupsen/logrus"
)

func main() {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.Infof("starting retention engine..")

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("invalid config: %v", err)
	}
	logrus.SetLevel(common.ParseLogLevel(cfg.LogLevel))

	ctx := context.Background()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logrus.Fatalf("failed to initialize application: %v", err)
	}

	if err := a.Run(ctx); err != nil {
		logrus.Fatalf("application error: %v", err)
	}
}
