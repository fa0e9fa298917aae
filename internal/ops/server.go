// Package ops serves the engine's operational HTTP surface: dependency
// health, Prometheus metrics, and a snapshot of the evaluation loop.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fieldwatch/internal/config"
	"fieldwatch/internal/scheduler"
)

// healthCheckTimeout bounds the combined runtime of all health probes.
const healthCheckTimeout = 2 * time.Second

type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// Server is the ops HTTP server. It carries no business logic; everything it
// reports is read from the probes and the scheduler snapshot.
type Server struct {
	cfg    config.OpsConfig
	stats  SchedulerSource
	probes []HealthProbe
	logger *slog.Logger
	router *chi.Mux
}

// NewServer builds the ops server and mounts its routes.
func NewServer(cfg config.OpsConfig, stats SchedulerSource, logger *slog.Logger, probes ...HealthProbe) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		stats:  stats,
		probes: probes,
		logger: logger,
		router: chi.NewRouter(),
	}
	s.router.Get("/health", s.handleHealth)
	s.router.Method(http.MethodGet, "/metrics", promhttp.Handler())
	s.router.Get("/stats", s.handleStats)
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is canceled, then shuts down gracefully within the
// configured timeout. It returns nil after a clean shutdown.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		s.logger.Info("ops server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("ops server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ops server shutdown: %w", err)
	}
	s.logger.Info("ops server stopped")
	return nil
}

// handleHealth runs every probe concurrently under a shared deadline and
// aggregates the results. Probes that have not reported by the deadline are
// marked timed out; any unhealthy component makes the whole response 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if len(s.probes) == 0 {
		s.writeJSON(r.Context(), w, http.StatusOK, healthResponse{Status: "healthy"})
		return
	}

	var (
		mu      sync.Mutex
		results = make(map[string]error, len(s.probes))
		wg      sync.WaitGroup
	)
	for _, probe := range s.probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var err error
			func() {
				defer func() {
					if rec := recover(); rec != nil {
						err = fmt.Errorf("probe panicked: %v", rec)
					}
				}()
				err = probe.Check(ctx)
			}()
			mu.Lock()
			results[probe.Name()] = err
			mu.Unlock()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// Report whatever finished; stragglers are marked below.
	}

	mu.Lock()
	finished := make(map[string]error, len(results))
	for name, err := range results {
		finished[name] = err
	}
	mu.Unlock()

	healthy := true
	components := make(map[string]componentStatus, len(s.probes))
	for _, probe := range s.probes {
		name := probe.Name()
		err, reported := finished[name]
		switch {
		case !reported:
			healthy = false
			components[name] = componentStatus{Status: "unhealthy", Message: "health check timed out"}
		case err != nil:
			healthy = false
			components[name] = componentStatus{Status: "unhealthy", Message: err.Error()}
		default:
			components[name] = componentStatus{Status: "healthy"}
		}
	}

	resp := healthResponse{Status: "healthy", Components: components}
	status := http.StatusOK
	if !healthy {
		resp.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(r.Context(), w, status, resp)
}

// handleStats serves the most recent scheduler snapshot.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		s.writeJSON(r.Context(), w, http.StatusOK, scheduler.Snapshot{})
		return
	}
	s.writeJSON(r.Context(), w, http.StatusOK, s.stats.Snapshot())
}

func (s *Server) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.ErrorContext(ctx, "failed to encode ops response", "error", err)
	}
}
