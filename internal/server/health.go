// Package server exposes the template catalog over HTTP together with
// health probes and graceful shutdown.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/efebarandurmaz/quill/internal/catalog"
	"github.com/efebarandurmaz/quill/internal/history"
	"github.com/efebarandurmaz/quill/internal/llm"
)

// HealthStatus represents the health state of a component.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusDegraded  HealthStatus = "degraded"
)

// HealthCheck is the result of one checker.
type HealthCheck struct {
	Name    string            `json:"name"`
	Status  HealthStatus      `json:"status"`
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// HealthResponse is the body of every probe endpoint.
type HealthResponse struct {
	Status    HealthStatus  `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Version   string        `json:"version,omitempty"`
	Checks    []HealthCheck `json:"checks,omitempty"`
}

// HealthChecker performs a single health check.
type HealthChecker func(ctx context.Context) HealthCheck

// Health tracks readiness, liveness and registered dependency checks.
type Health struct {
	mu      sync.RWMutex
	checks  map[string]HealthChecker
	version string
	ready   bool
	live    bool
}

// NewHealth returns a live but not yet ready Health.
func NewHealth(version string) *Health {
	return &Health{
		checks:  make(map[string]HealthChecker),
		version: version,
		live:    true,
	}
}

// RegisterCheck adds or replaces a named check.
func (h *Health) RegisterCheck(name string, checker HealthChecker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = checker
}

func (h *Health) SetReady(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = ready
}

func (h *Health) SetLive(live bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.live = live
}

// Mount registers /health, /ready and /live plus their Kubernetes aliases.
func (h *Health) Mount(mux *http.ServeMux) {
	for _, p := range []string{"/health", "/healthz"} {
		mux.HandleFunc("GET "+p, h.handleHealth)
	}
	for _, p := range []string{"/ready", "/readyz"} {
		mux.HandleFunc("GET "+p, h.handleReady)
	}
	for _, p := range []string{"/live", "/livez"} {
		mux.HandleFunc("GET "+p, h.handleLive)
	}
}

// Run executes every registered check. Checks are reported sorted by name.
func (h *Health) Run(ctx context.Context) HealthResponse {
	h.mu.RLock()
	checks := make(map[string]HealthChecker, len(h.checks))
	for k, v := range h.checks {
		checks[k] = v
	}
	version := h.version
	h.mu.RUnlock()

	resp := HealthResponse{
		Status:    HealthStatusHealthy,
		Timestamp: time.Now().UTC(),
		Version:   version,
		Checks:    make([]HealthCheck, 0, len(checks)),
	}
	for name, checker := range checks {
		check := checker(ctx)
		check.Name = name
		resp.Checks = append(resp.Checks, check)

		switch {
		case check.Status == HealthStatusUnhealthy:
			resp.Status = HealthStatusUnhealthy
		case check.Status == HealthStatusDegraded && resp.Status == HealthStatusHealthy:
			resp.Status = HealthStatusDegraded
		}
	}
	sort.Slice(resp.Checks, func(i, j int) bool { return resp.Checks[i].Name < resp.Checks[j].Name })
	return resp
}

func (h *Health) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := h.Run(ctx)
	status := http.StatusOK
	if resp.Status == HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (h *Health) handleReady(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	ready := h.ready
	h.mu.RUnlock()
	h.probe(w, ready)
}

func (h *Health) handleLive(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	live := h.live
	h.mu.RUnlock()
	h.probe(w, live)
}

func (h *Health) probe(w http.ResponseWriter, ok bool) {
	resp := HealthResponse{Status: HealthStatusHealthy, Timestamp: time.Now().UTC()}
	if !ok {
		resp.Status = HealthStatusUnhealthy
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ProviderChecker reports which model provider is configured. A missing
// provider degrades the service: rendering still works.
func ProviderChecker(p llm.Provider) HealthChecker {
	return func(context.Context) HealthCheck {
		if p == nil {
			return HealthCheck{Status: HealthStatusDegraded, Message: "no LLM provider configured"}
		}
		return HealthCheck{
			Status:  HealthStatusHealthy,
			Message: "LLM provider configured",
			Details: map[string]string{"provider": p.Name()},
		}
	}
}

// HistoryChecker lists conversations as a connectivity probe.
func HistoryChecker(store history.Store) HealthChecker {
	return func(ctx context.Context) HealthCheck {
		if _, err := store.Conversations(ctx); err != nil {
			return HealthCheck{Status: HealthStatusUnhealthy, Message: "history store failed: " + err.Error()}
		}
		return HealthCheck{Status: HealthStatusHealthy, Message: "history store OK"}
	}
}

// CatalogChecker fails when no templates are loaded.
func CatalogChecker(c *catalog.Catalog) HealthChecker {
	return func(context.Context) HealthCheck {
		n := len(c.List())
		if n == 0 {
			return HealthCheck{Status: HealthStatusUnhealthy, Message: "no templates loaded"}
		}
		return HealthCheck{
			Status:  HealthStatusHealthy,
			Message: "templates loaded",
			Details: map[string]string{"count": strconv.Itoa(n)},
		}
	}
}

// DependencyChecker wraps a plain ping function, e.g. a Temporal or Qdrant
// health call.
func DependencyChecker(what string, ping func(ctx context.Context) error) HealthChecker {
	return func(ctx context.Context) HealthCheck {
		if err := ping(ctx); err != nil {
			return HealthCheck{Status: HealthStatusUnhealthy, Message: what + " connection failed: " + err.Error()}
		}
		return HealthCheck{Status: HealthStatusHealthy, Message: what + " connection OK"}
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
