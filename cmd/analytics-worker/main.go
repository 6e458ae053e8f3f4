// Command analytics-worker projects marketplace events from Pub/Sub into
// the BigQuery marketplace_events table.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/handmade-market/internal/analytics/router"
	"github.com/angelmondragon/handmade-market/internal/analytics/worker"
	"github.com/angelmondragon/handmade-market/internal/analytics/writer"
	"github.com/angelmondragon/handmade-market/pkg/bigquery"
	"github.com/angelmondragon/handmade-market/pkg/config"
	"github.com/angelmondragon/handmade-market/pkg/logger"
	"github.com/angelmondragon/handmade-market/pkg/outbox/idempotency"
	"github.com/angelmondragon/handmade-market/pkg/pubsub"
	"github.com/angelmondragon/handmade-market/pkg/redis"
)

const serviceKind = "analytics-worker"

func main() {
	_ = godotenv.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.New(logger.Options{ServiceName: serviceKind, Output: os.Stderr}).Error(ctx, "analytics.exit", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cfg.Service.Kind = serviceKind
	logg := logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithField(ctx, "env", cfg.App.Env)

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClient.Close()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}
	defer pubsubClient.Close()

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	if err != nil {
		return fmt.Errorf("bigquery: %w", err)
	}
	defer bqClient.Close()

	subscription, err := pubsubClient.AnalyticsSubscriber(ctx)
	if err != nil {
		return fmt.Errorf("analytics subscription: %w", err)
	}
	marks, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		return err
	}
	// One row per insert: a message is only acked once its row is stored.
	sink, err := writer.New(bqClient, writer.Options{Table: cfg.BigQuery.MarketplaceEventsTable, BatchSize: 1})
	if err != nil {
		return err
	}
	handler, err := router.NewRouter(sink, logg, nil)
	if err != nil {
		return err
	}
	service, err := worker.NewService(subscription, handler, marks, logg)
	if err != nil {
		return err
	}

	logg.Info(ctx, "analytics.ready")
	return service.Run(ctx)
}
