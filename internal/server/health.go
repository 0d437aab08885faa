// Package server runs the worker's operational HTTP endpoints: health probes
// and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"
)

// HealthStatus represents the health state of a component.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusDegraded  HealthStatus = "degraded"
)

// HealthCheck is the result of one component check.
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

// HealthChecker performs one check.
type HealthChecker func(ctx context.Context) HealthCheck

// HealthConfig configures the health server.
type HealthConfig struct {
	Version string
	// Metrics, when set, is served on /metrics.
	Metrics http.Handler
	// CheckTimeout bounds all checks of one /healthz request (default 5s).
	CheckTimeout time.Duration
	Logger       *slog.Logger
}

const defaultCheckTimeout = 5 * time.Second

// HealthServer serves /healthz, /readyz, /livez and optionally /metrics.
// It starts live and not ready.
type HealthServer struct {
	mu      sync.RWMutex
	checks  map[string]HealthChecker
	ready   bool
	live    bool
	version string
	metrics http.Handler
	timeout time.Duration
	logger  *slog.Logger
}

// NewHealthServer creates a health server. A nil config uses defaults.
func NewHealthServer(cfg *HealthConfig) *HealthServer {
	if cfg == nil {
		cfg = &HealthConfig{}
	}
	s := &HealthServer{
		checks:  make(map[string]HealthChecker),
		live:    true,
		version: cfg.Version,
		metrics: cfg.Metrics,
		timeout: cfg.CheckTimeout,
		logger:  cfg.Logger,
	}
	if s.timeout <= 0 {
		s.timeout = defaultCheckTimeout
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// RegisterCheck adds or replaces a named check.
func (s *HealthServer) RegisterCheck(name string, checker HealthChecker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = checker
}

// SetReady marks the server as ready to accept work.
func (s *HealthServer) SetReady(ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = ready
}

// SetLive marks the process as live (or not).
func (s *HealthServer) SetLive(live bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live = live
}

// Handler returns the probe and metrics routes.
func (s *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.probe(func() bool { return s.ready }))
	mux.HandleFunc("/livez", s.probe(func() bool { return s.live }))
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	return mux
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *HealthServer) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("health server listening", "addr", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	s.mu.RLock()
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	checks := make(map[string]HealthChecker, len(s.checks))
	for k, v := range s.checks {
		checks[k] = v
	}
	s.mu.RUnlock()
	sort.Strings(names)

	resp := HealthResponse{
		Status:    HealthStatusHealthy,
		Timestamp: time.Now().UTC(),
		Version:   s.version,
		Checks:    make([]HealthCheck, 0, len(names)),
	}
	for _, name := range names {
		check := checks[name](ctx)
		check.Name = name
		resp.Checks = append(resp.Checks, check)

		switch {
		case check.Status == HealthStatusUnhealthy:
			resp.Status = HealthStatusUnhealthy
		case check.Status == HealthStatusDegraded && resp.Status == HealthStatusHealthy:
			resp.Status = HealthStatusDegraded
		}
	}
	if resp.Status != HealthStatusHealthy {
		s.logger.Warn("health check not healthy", "status", resp.Status)
	}

	code := http.StatusOK
	if resp.Status == HealthStatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, resp)
}

func (s *HealthServer) probe(ok func() bool) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		s.mu.RLock()
		up := ok()
		s.mu.RUnlock()

		resp := HealthResponse{Status: HealthStatusHealthy, Timestamp: time.Now().UTC()}
		code := http.StatusOK
		if !up {
			resp.Status = HealthStatusUnhealthy
			code = http.StatusServiceUnavailable
		}
		s.writeJSON(w, code, resp)
	}
}

func (s *HealthServer) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Debug("writing health response", "error", err)
	}
}

// DependencyChecker reports a dependency as failStatus when checkFn errors.
func DependencyChecker(component string, failStatus HealthStatus, checkFn func(ctx context.Context) error) HealthChecker {
	return func(ctx context.Context) HealthCheck {
		if err := checkFn(ctx); err != nil {
			return HealthCheck{
				Status:  failStatus,
				Message: component + " check failed: " + err.Error(),
			}
		}
		return HealthCheck{Status: HealthStatusHealthy, Message: component + " OK"}
	}
}

// TemporalHealthChecker checks the Temporal frontend. The worker cannot run
// without it, so a failure is unhealthy.
func TemporalHealthChecker(checkFn func(ctx context.Context) error) HealthChecker {
	return DependencyChecker("Temporal", HealthStatusUnhealthy, checkFn)
}

// VectorHealthChecker checks the vector backend. Only RAG needs it, so a
// failure is degraded.
func VectorHealthChecker(backend string, checkFn func(ctx context.Context) error) HealthChecker {
	inner := DependencyChecker("vector backend", HealthStatusDegraded, checkFn)
	return func(ctx context.Context) HealthCheck {
		check := inner(ctx)
		check.Details = map[string]string{"backend": backend}
		return check
	}
}

// LLMHealthChecker reports the configured model. Providers are not probed
// since every probe would be a billed call.
func LLMHealthChecker(provider, model string) HealthChecker {
	return func(context.Context) HealthCheck {
		return HealthCheck{
			Status:  HealthStatusHealthy,
			Message: "LLM provider configured",
			Details: map[string]string{"provider": provider, "model": model},
		}
	}
}
