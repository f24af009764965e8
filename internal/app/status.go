package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/tidalworks/harmgrid/internal/watch"
)

// statusBoard tracks run phase and per-task completion for the status endpoint.
type statusBoard struct {
	mu       sync.Mutex
	phase    string
	total    int
	done     int
	timedOut int
}

func newStatusBoard(total int) *statusBoard {
	return &statusBoard{phase: "starting", total: total}
}

func (b *statusBoard) setPhase(phase string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.phase = phase
}

func (b *statusBoard) record(e watch.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch e.State {
	case watch.Done:
		b.done++
	case watch.TimedOut:
		b.timedOut++
	}
}

func (b *statusBoard) snapshot() map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return map[string]any{
		"phase":     b.phase,
		"tasks":     b.total,
		"done":      b.done,
		"timed_out": b.timedOut,
		"pending":   b.total - b.done - b.timedOut,
	}
}

// healthHandler answers liveness probes.
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

// statusHandler reports the run phase and task-state counts as JSON.
func (a *App) statusHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(a.status.snapshot()); err != nil {
		a.logger.Error("Failed to encode status response.", "error", err)
	}
}

// startStatusServer runs the health/status HTTP server until the run's
// context is cancelled.
func (a *App) startStatusServer(ctx context.Context, port int) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", a.healthHandler)
	mux.HandleFunc("/status", a.statusHandler)

	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()
	go func() {
		a.logger.Info("Status server starting.", "address", fmt.Sprintf("http://localhost%s/status", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("Status server failed.", "error", err)
		}
	}()
}
