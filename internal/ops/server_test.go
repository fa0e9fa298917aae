package ops

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"fieldwatch/internal/config"
	"fieldwatch/internal/scheduler"
	"fieldwatch/internal/types"
)

// --- Mocks ---

// mockProbe implements HealthProbe for testing.
type mockProbe struct {
	name     string
	checkErr error
	// delay simulates slow subsystems; Check blocks for this duration or
	// until the context expires.
	delay time.Duration
	// block, when set, makes Check ignore the context and wait for the
	// channel to close. Used to exercise the timed-out path.
	block chan struct{}
	// panicMsg, when set, makes Check panic.
	panicMsg string
	called   atomic.Bool
}

func (m *mockProbe) Name() string { return m.name }

func (m *mockProbe) Check(ctx context.Context) error {
	m.called.Store(true)
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	if m.block != nil {
		<-m.block
		return nil
	}
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.checkErr
}

type mockStatsSource struct {
	snap scheduler.Snapshot
}

func (m *mockStatsSource) Snapshot() scheduler.Snapshot { return m.snap }

// --- Helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func newTestServer(stats SchedulerSource, probes ...HealthProbe) *Server {
	cfg := config.OpsConfig{Port: "0", ShutdownTimeout: time.Second}
	return NewServer(cfg, stats, discardLogger(), probes...)
}

func getHealth(t *testing.T, srv *Server) (int, healthResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var resp healthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return rec.Code, resp
}

// --- Health Tests ---

func TestHandleHealth_AllHealthy(t *testing.T) {
	srv := newTestServer(nil,
		&mockProbe{name: "database"},
		&mockProbe{name: "upstream"},
		&mockProbe{name: "scheduler"},
	)

	code, resp := getHealth(t, srv)

	if code != http.StatusOK {
		t.Errorf("expected status 200, got %d", code)
	}
	if resp.Status != "healthy" {
		t.Errorf("expected status 'healthy', got %q", resp.Status)
	}
	for _, name := range []string{"database", "upstream", "scheduler"} {
		comp, ok := resp.Components[name]
		if !ok {
			t.Errorf("expected component %q in response", name)
			continue
		}
		if comp.Status != "healthy" {
			t.Errorf("component %q: expected 'healthy', got %q", name, comp.Status)
		}
		if comp.Message != "" {
			t.Errorf("component %q: expected empty message, got %q", name, comp.Message)
		}
	}
}

func TestHandleHealth_OneUnhealthy(t *testing.T) {
	srv := newTestServer(nil,
		&mockProbe{name: "database"},
		&mockProbe{name: "upstream", checkErr: context.DeadlineExceeded},
	)

	code, resp := getHealth(t, srv)

	if code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", code)
	}
	if resp.Status != "unhealthy" {
		t.Errorf("expected status 'unhealthy', got %q", resp.Status)
	}
	if comp := resp.Components["database"]; comp.Status != "healthy" {
		t.Errorf("database component: expected 'healthy', got %q", comp.Status)
	}
	comp, ok := resp.Components["upstream"]
	if !ok {
		t.Fatal("expected 'upstream' component in response")
	}
	if comp.Status != "unhealthy" {
		t.Errorf("upstream component: expected 'unhealthy', got %q", comp.Status)
	}
	if comp.Message == "" {
		t.Error("upstream component: expected non-empty error message")
	}
}

func TestHandleHealth_SlowProbeReportedUnhealthy(t *testing.T) {
	// The delayed probe respects the context, so it reports the deadline
	// error itself once the 2s window expires.
	srv := newTestServer(nil,
		&mockProbe{name: "database"},
		&mockProbe{name: "upstream", delay: 5 * time.Second},
	)

	code, resp := getHealth(t, srv)

	if code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", code)
	}
	comp, ok := resp.Components["upstream"]
	if !ok {
		t.Fatal("expected 'upstream' component in response")
	}
	if comp.Status != "unhealthy" {
		t.Errorf("upstream component: expected 'unhealthy', got %q", comp.Status)
	}
}

func TestHandleHealth_StuckProbeMarkedTimedOut(t *testing.T) {
	// A probe that ignores the context never reports; the handler must
	// still respond at the deadline and mark it timed out.
	block := make(chan struct{})
	defer close(block)

	srv := newTestServer(nil,
		&mockProbe{name: "database"},
		&mockProbe{name: "upstream", block: block},
	)

	start := time.Now()
	code, resp := getHealth(t, srv)
	elapsed := time.Since(start)

	if code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", code)
	}
	comp, ok := resp.Components["upstream"]
	if !ok {
		t.Fatal("expected 'upstream' component in response")
	}
	if comp.Status != "unhealthy" {
		t.Errorf("upstream component: expected 'unhealthy', got %q", comp.Status)
	}
	if comp.Message != "health check timed out" {
		t.Errorf("upstream component: expected timeout message, got %q", comp.Message)
	}
	if comp := resp.Components["database"]; comp.Status != "healthy" {
		t.Errorf("database component: expected 'healthy', got %q", comp.Status)
	}
	if elapsed > healthCheckTimeout+time.Second {
		t.Errorf("handler took %s, expected to respond near the %s deadline", elapsed, healthCheckTimeout)
	}
}

func TestHandleHealth_PanickingProbe(t *testing.T) {
	srv := newTestServer(nil,
		&mockProbe{name: "database"},
		&mockProbe{name: "scheduler", panicMsg: "nil snapshot"},
	)

	code, resp := getHealth(t, srv)

	if code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", code)
	}
	comp, ok := resp.Components["scheduler"]
	if !ok {
		t.Fatal("expected 'scheduler' component in response")
	}
	if comp.Status != "unhealthy" {
		t.Errorf("scheduler component: expected 'unhealthy', got %q", comp.Status)
	}
	if !strings.Contains(comp.Message, "probe panicked") {
		t.Errorf("scheduler component: expected panic message, got %q", comp.Message)
	}
}

func TestHandleHealth_NoProbes(t *testing.T) {
	srv := newTestServer(nil)

	code, resp := getHealth(t, srv)

	if code != http.StatusOK {
		t.Errorf("expected status 200, got %d", code)
	}
	if resp.Status != "healthy" {
		t.Errorf("expected status 'healthy', got %q", resp.Status)
	}
}

func TestHandleHealth_ConcurrentExecution(t *testing.T) {
	// Three probes at ~100ms each: sequential would take ~300ms.
	const probeDelay = 100 * time.Millisecond
	srv := newTestServer(nil,
		&mockProbe{name: "database", delay: probeDelay},
		&mockProbe{name: "upstream", delay: probeDelay},
		&mockProbe{name: "scheduler", delay: probeDelay},
	)

	start := time.Now()
	code, _ := getHealth(t, srv)
	elapsed := time.Since(start)

	if code != http.StatusOK {
		t.Errorf("expected status 200, got %d", code)
	}
	if elapsed > 250*time.Millisecond {
		t.Errorf("probes took %s, expected concurrent execution near %s", elapsed, probeDelay)
	}
}

// --- Stats Tests ---

func TestHandleStats_ReturnsSnapshot(t *testing.T) {
	started := time.Date(2026, 2, 6, 12, 0, 0, 0, time.UTC)
	finished := started.Add(42 * time.Second)
	stats := &mockStatsSource{snap: scheduler.Snapshot{
		Running:       true,
		Phase:         "evaluating",
		CyclesStarted: 7,
		LastCycle: &types.CycleRecord{
			ID:         uuid.New(),
			StartedAt:  started,
			FinishedAt: &finished,
			Status:     "completed",
			Loaded:     12,
			Evaluated:  10,
			Triggered:  2,
			Dispatched: 2,
			Skipped:    1,
			Failed:     1,
		},
		LastDuration: "42s",
	}}

	srv := newTestServer(stats)
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %q", ct)
	}

	var got scheduler.Snapshot
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !got.Running {
		t.Error("expected running=true")
	}
	if got.Phase != "evaluating" {
		t.Errorf("expected phase 'evaluating', got %q", got.Phase)
	}
	if got.CyclesStarted != 7 {
		t.Errorf("expected cycles_started 7, got %d", got.CyclesStarted)
	}
	if got.LastCycle == nil {
		t.Fatal("expected last_cycle in response")
	}
	if got.LastCycle.Status != "completed" {
		t.Errorf("expected last cycle status 'completed', got %q", got.LastCycle.Status)
	}
	if got.LastCycle.Dispatched != 2 {
		t.Errorf("expected 2 dispatched, got %d", got.LastCycle.Dispatched)
	}
	if got.LastDuration != "42s" {
		t.Errorf("expected last duration '42s', got %q", got.LastDuration)
	}
}

func TestHandleStats_NoSource(t *testing.T) {
	srv := newTestServer(nil)
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var got scheduler.Snapshot
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.Running || got.CyclesStarted != 0 || got.LastCycle != nil {
		t.Errorf("expected zero snapshot, got %+v", got)
	}
}

// --- Metrics Tests ---

func TestHandleMetrics_ServesPrometheusText(t *testing.T) {
	srv := newTestServer(nil)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "fieldwatch_") {
		t.Error("expected engine metrics in exposition output")
	}
}

// --- Lifecycle Tests ---

func TestRun_ShutsDownOnContextCancel(t *testing.T) {
	srv := newTestServer(nil)
	ctx, cancel := context.WithCancel(context.Background())

	runErr := make(chan error, 1)
	go func() { runErr <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-runErr:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down after context cancel")
	}
}
