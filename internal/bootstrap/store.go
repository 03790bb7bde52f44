// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/churnai/retention-engine/internal/config"
	"github.com/churnai/retention-engine/pkg/conversation"
	"github.com/churnai/retention-engine/pkg/playbook"
	"github.com/churnai/retention-engine/pkg/store"
	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	// registers the "pgx" database/sql driver
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Backend is everything the service needs from its storage layer.
// Both store.RedisStore and store.PostgresStore satisfy it.
type Backend interface {
	conversation.Store
	conversation.EventStore
	playbook.Source
	SavePlaybookRules(ctx context.Context, tenantID string, rules []playbook.Rule) error
	store.Pinger
}

// Storage is the initialized storage layer and the handle needed to close it.
type Storage struct {
	Backend Backend
	Health  *store.HealthChecker

	close func() error
}

// Close releases the underlying connection pool.
func (s *Storage) Close() error {
	if s == nil || s.close == nil {
		return nil
	}
	return s.close()
}

// InitStorage connects to the configured backend, retrying until it answers.
//
// ============================================================
// DEVELOPER: Storage backends
// ============================================================
// STORE_BACKEND selects the backend:
// - redis    (default) REDIS_HOST, REDIS_PORT, REDIS_PASSWORD
// - postgres DATABASE_URL, schema is created on startup
//
// A new backend must implement Backend and be added to the
// switch below.
// ============================================================
func InitStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	retry := func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = time.Duration(cfg.RedisRetryDelayMs) * time.Millisecond
		return backoff.WithContext(backoff.WithMaxRetries(b, uint64(cfg.RedisMaxRetries)), ctx)
	}

	switch cfg.StoreBackend {
	case config.StorePostgres:
		return initPostgres(ctx, cfg, retry())
	default:
		return initRedis(ctx, cfg, retry())
	}
}

func initRedis(ctx context.Context, cfg *config.Config, b backoff.BackOff) (*Storage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisHost + ":" + cfg.RedisPort,
		Password:     cfg.RedisPassword,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	err := backoff.Retry(func() error {
		if err := client.Ping(ctx).Err(); err != nil {
			logrus.Warnf("Redis connection failed: %v, retrying...", err)
			return err
		}
		return nil
	}, b)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("redis unreachable at %s:%s: %w", cfg.RedisHost, cfg.RedisPort, err)
	}

	rs := store.NewRedisStore(client, store.RedisStoreConfig{
		KeyPrefix: cfg.RedisKeyPrefix,
		MaxEvents: cfg.MaxEventsPerTenant,
	})
	logrus.Infof("Redis store initialized (prefix %q)", cfg.RedisKeyPrefix)

	return &Storage{
		Backend: rs,
		Health:  store.NewHealthChecker(config.StoreRedis, rs),
		close:   client.Close,
	}, nil
}

func initPostgres(ctx context.Context, cfg *config.Config, b backoff.BackOff) (*Storage, error) {
	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	err = backoff.Retry(func() error {
		if err := db.PingContext(ctx); err != nil {
			logrus.Warnf("PostgreSQL connection failed: %v, retrying...", err)
			return err
		}
		return nil
	}, b)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres unreachable: %w", err)
	}

	ps := store.NewPostgresStore(db)
	if err := ps.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	logrus.Info("PostgreSQL store initialized")

	return &Storage{
		Backend: ps,
		Health:  store.NewHealthChecker(config.StorePostgres, ps),
		close:   db.Close,
	}, nil
}
