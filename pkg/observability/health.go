package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// ErrDegraded marks a probe failure that leaves the dependency usable.
var ErrDegraded = errors.New("degraded")

// Probe checks one dependency of the gateway.
type Probe struct {
	Name string
	// Required probes make /readyz answer 503 when they fail. A failing
	// optional probe only degrades the service.
	Required bool
	Check    func(ctx context.Context) error
}

// DatabaseProbe checks the SQL store holding publish keys and users.
// Publishes cannot be authorized without it.
func DatabaseProbe(db *sql.DB) Probe {
	return Probe{
		Name:     "database",
		Required: true,
		Check: func(ctx context.Context) error {
			if err := db.PingContext(ctx); err != nil {
				return err
			}
			var one int
			if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
				return fmt.Errorf("query failed: %w", err)
			}
			stats := db.Stats()
			if stats.MaxOpenConnections > 0 && stats.InUse >= stats.MaxOpenConnections {
				return fmt.Errorf("connection pool exhausted: %w", ErrDegraded)
			}
			return nil
		},
	}
}

// HandoffProbe checks the Redis instance holding npm login handoffs. Only
// logins started in the last five minutes live there, so publishing keeps
// working while it is down.
func HandoffProbe(client *redis.Client) Probe {
	return Probe{
		Name: "handoffs",
		Check: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
	}
}

// HealthChecker runs the registered probes for /readyz.
type HealthChecker struct {
	probes  []Probe
	version string
	timeout time.Duration
}

// NewHealthChecker returns a checker reporting version. With no probes the
// gateway is always ready, which is the case for memory storage.
func NewHealthChecker(version string, probes ...Probe) *HealthChecker {
	return &HealthChecker{
		probes:  probes,
		version: version,
		timeout: 5 * time.Second,
	}
}

// HealthStatus is the /readyz body.
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

type DependencyStatus struct {
	Status    string    `json:"status"`
	Required  bool      `json:"required"`
	Message   string    `json:"message,omitempty"`
	LatencyMs int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
}

// Check runs every probe in order. A failed required probe makes the
// result unhealthy; anything else that fails degrades it.
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now(),
		Version:      h.version,
		Dependencies: make(map[string]DependencyStatus, len(h.probes)),
	}
	for _, p := range h.probes {
		dep := runProbe(ctx, p)
		status.Dependencies[p.Name] = dep
		switch {
		case dep.Status == StatusHealthy:
		case dep.Status == StatusUnhealthy && p.Required:
			status.Status = StatusUnhealthy
		case status.Status != StatusUnhealthy:
			status.Status = StatusDegraded
		}
	}
	return status
}

func runProbe(ctx context.Context, p Probe) DependencyStatus {
	start := time.Now()
	err := p.Check(ctx)
	dep := DependencyStatus{
		Status:    StatusHealthy,
		Required:  p.Required,
		LatencyMs: time.Since(start).Milliseconds(),
		Timestamp: start,
	}
	switch {
	case err == nil:
	case errors.Is(err, ErrDegraded):
		dep.Status = StatusDegraded
		dep.Message = err.Error()
	default:
		dep.Status = StatusUnhealthy
		dep.Message = err.Error()
	}
	return dep
}

// Liveness answers 200 while the process can serve HTTP at all.
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, http.StatusOK, map[string]interface{}{
		"status":    StatusHealthy,
		"timestamp": time.Now(),
		"version":   h.version,
	})
}

// Readiness answers 503 when a required dependency is down.
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

func writeHealth(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// RegisterHealthRoutes mounts /healthz and /readyz.
func RegisterHealthRoutes(mux *http.ServeMux, checker *HealthChecker) {
	mux.HandleFunc("/healthz", checker.Liveness)
	mux.HandleFunc("/readyz", checker.Readiness)
}
