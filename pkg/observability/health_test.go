package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type queueDepth struct {
	depth int64
	err   error
}

func (q queueDepth) Len(ctx context.Context) (int64, error) { return q.depth, q.err }

type sqlmockDB struct {
	db   *sql.DB
	mock sqlmock.Sqlmock
}

func healthyDB(t *testing.T) *sqlmockDB {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectPing()
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(1))
	return &sqlmockDB{db: db, mock: mock}
}

func TestHealthChecker_Check(t *testing.T) {
	t.Run("healthy database and redis", func(t *testing.T) {
		db := healthyDB(t)
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer client.Close()

		status := NewHealthChecker("1.2.3", WithDatabase(db.db), WithRedis(client)).Check(context.Background())
		assert.Equal(t, StatusHealthy, status.Status)
		assert.Equal(t, "1.2.3", status.Version)
		assert.Equal(t, StatusHealthy, status.Dependencies["database"].Status)
		assert.Equal(t, StatusHealthy, status.Dependencies["redis"].Status)
		require.NoError(t, db.mock.ExpectationsWereMet())
	})

	t.Run("failed query is unhealthy", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectPing()
		mock.ExpectQuery("SELECT 1").WillReturnError(errors.New("relation does not exist"))

		status := NewHealthChecker("", WithDatabase(db)).Check(context.Background())
		assert.Equal(t, StatusUnhealthy, status.Status)
		assert.Contains(t, status.Dependencies["database"].Message, "query failed")
	})

	t.Run("redis outage only degrades", func(t *testing.T) {
		db := healthyDB(t)
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer client.Close()
		mr.Close()

		status := NewHealthChecker("", WithDatabase(db.db), WithRedis(client)).Check(context.Background())
		assert.Equal(t, StatusDegraded, status.Status)
		assert.Equal(t, StatusUnhealthy, status.Dependencies["redis"].Status)
	})

	t.Run("retry backlog degrades and updates the gauge", func(t *testing.T) {
		metrics := NewMetrics(prometheus.NewRegistry())

		status := NewHealthChecker("", WithRetryQueue(queueDepth{depth: 1500}, 1000, metrics)).Check(context.Background())
		assert.Equal(t, StatusDegraded, status.Status)
		dep := status.Dependencies["projection_retries"]
		assert.Equal(t, StatusDegraded, dep.Status)
		assert.Equal(t, "1500 projects awaiting projection retry", dep.Message)
		assert.Equal(t, 1500.0, testutil.ToFloat64(metrics.ProjectionRetryDepth))
	})

	t.Run("short retry backlog is healthy", func(t *testing.T) {
		status := NewHealthChecker("", WithRetryQueue(queueDepth{depth: 3}, 1000, nil)).Check(context.Background())
		assert.Equal(t, StatusHealthy, status.Status)
	})

	t.Run("unreadable retry queue never takes readiness down", func(t *testing.T) {
		db := healthyDB(t)
		status := NewHealthChecker("",
			WithDatabase(db.db),
			WithRetryQueue(queueDepth{err: errors.New("connection refused")}, 1000, nil),
		).Check(context.Background())
		assert.Equal(t, StatusDegraded, status.Status)
		assert.Equal(t, StatusUnhealthy, status.Dependencies["projection_retries"].Status)
	})

	t.Run("custom critical dependency", func(t *testing.T) {
		status := NewHealthChecker("", WithDependency("search", true, func(ctx context.Context) (string, error) {
			return "", errors.New("index offline")
		})).Check(context.Background())
		assert.Equal(t, StatusUnhealthy, status.Status)
		assert.Equal(t, "index offline", status.Dependencies["search"].Message)
	})
}

func TestHealthRoutes(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	router := mux.NewRouter()
	RegisterHealthRoutes(router, NewHealthChecker("", WithDatabase(db)))

	t.Run("liveness", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("readiness with database down", func(t *testing.T) {
		mock.ExpectPing().WillReturnError(errors.New("connection refused"))

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

		var body HealthStatus
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
		assert.Equal(t, StatusUnhealthy, body.Status)
	})
}
