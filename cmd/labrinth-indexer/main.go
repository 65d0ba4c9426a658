package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/labrinth-go/labrinth/pkg/config"
	"github.com/labrinth-go/labrinth/pkg/facets"
	"github.com/labrinth-go/labrinth/pkg/observability"
	"github.com/labrinth-go/labrinth/pkg/storage/postgres"
	"github.com/labrinth-go/labrinth/pkg/versionfields"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

var runOnce = flag.String("run-once", "", "Run one job and exit: \"retries\" or \"reindex\"")

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	log := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat, os.Stdout)

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("Indexer exited")
	}
}

func run(cfg *config.Config, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telemetry, err := observability.InitOTel(ctx, cfg.Observability.OTelConfig("indexer"), log)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	defer telemetry.Shutdown(context.Background())

	conns, err := postgres.NewConnectionManager(cfg.Database.ConnectionConfig(), log)
	if err != nil {
		return err
	}
	defer conns.Close()

	var queue facets.RetryQueue
	if cfg.Redis.URL != "" {
		client, err := facets.DialRedis(ctx, facets.RedisOptions{
			URL:      cfg.Redis.URL,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer client.Close()
		queue = facets.NewRedisRetryQueue(client, cfg.Redis.QueueKey)
	}

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	store := versionfields.NewStore(conns.Primary(), log)
	projector := facets.NewProjector(store, facets.NewPostgresIndex(conns.Primary(), log), queue, log,
		facets.WithProjectorMetrics(metrics),
		facets.WithWorkers(cfg.Indexer.Workers),
		facets.WithTimeout(cfg.Indexer.ProjectionTimeout),
	)

	drain := func(ctx context.Context) error {
		_, err := projector.DrainRetries(ctx, cfg.Indexer.RetryBatchSize)
		return err
	}

	switch *runOnce {
	case "":
	case "retries":
		return drain(ctx)
	case "reindex":
		return projector.ReindexAll(ctx)
	default:
		return fmt.Errorf("unknown job %q", *runOnce)
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	if queue != nil {
		if _, err := c.AddFunc(cfg.Indexer.RetrySchedule, func() {
			if err := drain(ctx); err != nil {
				log.WithError(err).Warn("Projection retry drain failed")
			}
		}); err != nil {
			return fmt.Errorf("failed to schedule retry drain: %w", err)
		}
	} else {
		log.Warn("Redis not configured, projection retries disabled")
	}

	if _, err := c.AddFunc(cfg.Indexer.ReindexSchedule, func() {
		log.Info("Starting full reindex")
		if err := projector.ReindexAll(ctx); err != nil {
			log.WithError(err).Error("Full reindex failed")
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule reindex: %w", err)
	}

	c.Start()
	log.WithFields(logrus.Fields{
		"retry_schedule":   cfg.Indexer.RetrySchedule,
		"reindex_schedule": cfg.Indexer.ReindexSchedule,
	}).Info("Labrinth facet indexer started")

	<-ctx.Done()
	log.Info("Shutting down gracefully...")

	stopped := c.Stop()
	<-stopped.Done()

	log.Info("Indexer stopped")
	return nil
}
