package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/labrinth-go/labrinth/pkg/api"
	"github.com/labrinth-go/labrinth/pkg/config"
	"github.com/labrinth-go/labrinth/pkg/enums"
	"github.com/labrinth-go/labrinth/pkg/facets"
	"github.com/labrinth-go/labrinth/pkg/httputil"
	"github.com/labrinth-go/labrinth/pkg/migrations"
	"github.com/labrinth-go/labrinth/pkg/observability"
	"github.com/labrinth-go/labrinth/pkg/schema"
	"github.com/labrinth-go/labrinth/pkg/storage/postgres"
	"github.com/labrinth-go/labrinth/pkg/versionfields"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

// version is set at build time
var version = "dev"

const maxRequestBytes = 1 << 20

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat, os.Stdout)
	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("Server exited")
	}
}

func run(cfg *config.Config, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telemetry, err := observability.InitOTel(ctx, cfg.Observability.OTelConfig("api"), log)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	defer telemetry.Shutdown(context.Background())

	conns, err := postgres.NewConnectionManager(cfg.Database.ConnectionConfig(), log)
	if err != nil {
		return err
	}
	defer conns.Close()

	if cfg.Database.AutoMigrate {
		if err := migrations.RunMigrations(ctx, conns.Primary(), log); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	var (
		redisClient *redis.Client
		queue       facets.RetryQueue
	)
	if cfg.Redis.URL != "" {
		redisClient, err = facets.DialRedis(ctx, facets.RedisOptions{
			URL:      cfg.Redis.URL,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			// Projection still works without the queue; failures are only logged.
			log.WithError(err).Warn("Redis unavailable, projection retries disabled")
		} else {
			defer redisClient.Close()
			queue = facets.NewRedisRetryQueue(redisClient, cfg.Redis.QueueKey)
		}
	}

	fieldSchema := schema.NewSchema(conns, log)
	enumRegistry := enums.NewRegistry(conns, log)
	store := versionfields.NewStore(conns.Primary(), log)
	index := facets.NewPostgresIndex(conns.Primary(), log)

	projector := facets.NewProjector(store, index, queue, log,
		facets.WithProjectorMetrics(metrics),
		facets.WithWorkers(cfg.Indexer.Workers),
		facets.WithTimeout(cfg.Indexer.ProjectionTimeout),
	)
	service := versionfields.NewService(fieldSchema, enumRegistry, store, projector, log,
		versionfields.WithMetrics(metrics),
		versionfields.WithProjectionTimeout(cfg.Indexer.ProjectionTimeout),
	)

	var serverOpts []api.Option
	if cfg.Server.AdminRoutes {
		serverOpts = append(serverOpts, api.WithAdmin(fieldSchema, enumRegistry))
		log.Warn("Tag catalog admin routes are enabled")
	}
	server := api.NewServer(fieldSchema, enumRegistry, service, index, log, serverOpts...)
	router := server.Router()
	router.Use(
		httputil.RecoveryMiddleware(log),
		httputil.RequestIDMiddleware,
		observability.TracingMiddleware(cfg.Observability.OTelServiceName),
		httputil.LoggingMiddleware(log),
		httputil.MaxBytesMiddleware(maxRequestBytes),
		observability.HTTPMetricsMiddleware(metrics),
	)
	healthOpts := []observability.HealthOption{observability.WithDatabase(conns.Primary())}
	if queue != nil {
		healthOpts = append(healthOpts,
			observability.WithRedis(redisClient),
			observability.WithRetryQueue(queue, cfg.Indexer.RetryDepthWarn, metrics),
		)
	}
	observability.RegisterHealthRoutes(router, observability.NewHealthChecker(version, healthOpts...))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(router, registry)
		go recordDBStats(ctx, conns, metrics)
	}

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{"addr": httpServer.Addr, "version": version}).Info("Starting labrinth loader field server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}

	log.Info("Server stopped")
	return nil
}

func recordDBStats(ctx context.Context, conns *postgres.ConnectionManager, metrics *observability.Metrics) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.RecordDBStats(conns.Primary().Stats())
		}
	}
}
