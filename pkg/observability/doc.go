// Package observability provides logging, Prometheus metrics, OpenTelemetry
// tracing and health checks for the labrinth binaries.
//
// # Logging
//
// Components take a *logrus.Logger; binaries build one from configuration:
//
//	log := observability.NewLogger(cfg.LogLevel, cfg.LogFormat, nil)
//	log.WithField("version_id", id).Info("Stored version fields")
//
// # Metrics
//
// Metrics methods are nil-safe so packages can record unconditionally:
//
//	metrics := observability.NewMetrics(registry)
//	metrics.RecordValidationFailure("game_versions")
//	metrics.RecordProjection("ok")
//
// # Health Checks
//
// Readiness runs the registered dependency checks concurrently. Only critical
// dependencies take it down:
//
//	checker := observability.NewHealthChecker(version,
//		observability.WithDatabase(db),
//		observability.WithRetryQueue(queue, 1000, metrics),
//	)
//	observability.RegisterHealthRoutes(router, checker)
//
// # OpenTelemetry
//
//	telemetry, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "labrinth",
//		Component:   "indexer",
//	}, log)
//	defer telemetry.Shutdown(ctx)
package observability
