// Package config loads labrinth configuration from environment variables.
//
// Every setting has a default except the primary database URL:
//
//	LABRINTH_DATABASE_URL="postgres://labrinth@localhost/labrinth?sslmode=disable"
//	LABRINTH_DATABASE_REPLICA_URLS="postgres://replica-1/labrinth,postgres://replica-2/labrinth"
//	LABRINTH_REDIS_URL="redis://localhost:6379/0"     # enables the projection retry queue
//	LABRINTH_RETRY_SCHEDULE="@every 1m"
//	LABRINTH_REINDEX_SCHEDULE="0 4 * * *"
//	LABRINTH_LOG_LEVEL="info"
//	LABRINTH_LOG_FORMAT="json"                        # json or text
//	LABRINTH_OTEL_ENABLED="true"
//	LABRINTH_OTEL_ENDPOINT="otel-collector:4317"
//
// Usage:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//	conns, err := postgres.NewConnectionManager(cfg.Database.ConnectionConfig(), logger)
package config
