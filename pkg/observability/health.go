package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthStatus is the readiness report
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus is one dependency's part of the report
type DependencyStatus struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	LatencyMS float64   `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
}

// DependencyCheck probes one dependency. A nil error with a non-empty
// warning reports the dependency as degraded.
type DependencyCheck func(ctx context.Context) (warning string, err error)

// QueueDepth is satisfied by the projection retry queue
type QueueDepth interface {
	Len(ctx context.Context) (int64, error)
}

type dependency struct {
	name string
	// critical dependencies take readiness down when they fail
	critical bool
	check    DependencyCheck
}

// HealthChecker runs the registered dependency checks concurrently
type HealthChecker struct {
	deps    []dependency
	version string
	timeout time.Duration
}

// HealthOption registers a dependency with a HealthChecker
type HealthOption func(*HealthChecker)

// WithDependency registers an arbitrary named check
func WithDependency(name string, critical bool, check DependencyCheck) HealthOption {
	return func(h *HealthChecker) {
		h.deps = append(h.deps, dependency{name: name, critical: critical, check: check})
	}
}

// WithDatabase registers the primary PostgreSQL pool as a critical dependency
func WithDatabase(db *sql.DB) HealthOption {
	return WithDependency("database", true, func(ctx context.Context) (string, error) {
		if err := db.PingContext(ctx); err != nil {
			return "", err
		}
		var one int
		if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
			return "", fmt.Errorf("query failed: %w", err)
		}
		if stats := db.Stats(); stats.MaxOpenConnections > 0 && stats.OpenConnections >= stats.MaxOpenConnections {
			return "connection pool exhausted", nil
		}
		return "", nil
	})
}

// WithRedis registers the retry queue's Redis. Field writes keep working
// without it, so it only degrades readiness.
func WithRedis(client *redis.Client) HealthOption {
	return WithDependency("redis", false, func(ctx context.Context) (string, error) {
		return "", client.Ping(ctx).Err()
	})
}

// WithRetryQueue reports degraded once more than maxDepth projects await a
// projection retry. Each check also refreshes the retry depth gauge.
func WithRetryQueue(queue QueueDepth, maxDepth int64, metrics *Metrics) HealthOption {
	return WithDependency("projection_retries", false, func(ctx context.Context) (string, error) {
		depth, err := queue.Len(ctx)
		if err != nil {
			return "", err
		}
		metrics.SetProjectionRetryDepth(depth)
		if maxDepth > 0 && depth > maxDepth {
			return fmt.Sprintf("%d projects awaiting projection retry", depth), nil
		}
		return "", nil
	})
}

// NewHealthChecker creates a checker for the given dependencies
func NewHealthChecker(version string, opts ...HealthOption) *HealthChecker {
	h := &HealthChecker{version: version, timeout: 5 * time.Second}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Check runs every dependency check. A failed critical dependency makes the
// service unhealthy; any other problem makes it degraded.
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	results := make([]DependencyStatus, len(h.deps))

	var g errgroup.Group
	for i, dep := range h.deps {
		i, dep := i, dep
		g.Go(func() error {
			results[i] = runCheck(ctx, dep.check)
			return nil
		})
	}
	g.Wait()

	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now(),
		Version:      h.version,
		Dependencies: make(map[string]DependencyStatus, len(h.deps)),
	}
	for i, dep := range h.deps {
		res := results[i]
		status.Dependencies[dep.name] = res
		switch {
		case res.Status == StatusUnhealthy && dep.critical:
			status.Status = StatusUnhealthy
		case res.Status != StatusHealthy && status.Status == StatusHealthy:
			status.Status = StatusDegraded
		}
	}
	return status
}

func runCheck(ctx context.Context, check DependencyCheck) DependencyStatus {
	start := time.Now()
	warning, err := check(ctx)
	res := DependencyStatus{
		Status:    StatusHealthy,
		LatencyMS: float64(time.Since(start).Microseconds()) / 1000,
		Timestamp: start,
	}
	switch {
	case err != nil:
		res.Status = StatusUnhealthy
		res.Message = err.Error()
	case warning != "":
		res.Status = StatusDegraded
		res.Message = warning
	}
	return res
}

// Liveness answers while the process serves requests
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, http.StatusOK, map[string]any{
		"status":    StatusHealthy,
		"timestamp": time.Now(),
	})
}

// Readiness answers 503 when a critical dependency is down
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	status := h.Check(ctx)
	code := http.StatusOK
	if status.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeHealth(w, code, status)
}

func writeHealth(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

// RegisterHealthRoutes registers /health, /health/live and /health/ready
func RegisterHealthRoutes(router *mux.Router, checker *HealthChecker) {
	router.HandleFunc("/health", checker.Readiness).Methods(http.MethodGet)
	router.HandleFunc("/health/live", checker.Liveness).Methods(http.MethodGet)
	router.HandleFunc("/health/ready", checker.Readiness).Methods(http.MethodGet)
}
