package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"padbridge/internal/bridge"
	"padbridge/internal/pad"
)

// ============================================================================
// HTTP Server
// ============================================================================
// Read-only views of the running pipeline:
//   - /metrics        Prometheus exposition
//   - /status         pipeline status as JSON
//   - /api/snapshot   one signal's rolling window (?signal=&view=&baseline=)
//   - /health         liveness
//   - /ws/state       streaming status and samples
// ============================================================================

// newHTTPMux registers every route on a fresh mux.
func newHTTPMux(b *bridge.Bridge, state *StateServer, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", b.Metrics().Handler())
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, b.Status(), logger)
	})
	mux.HandleFunc("/api/snapshot", handleSnapshot(b, logger))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	if state != nil {
		mux.Handle("/ws/state", state)
	}
	return mux
}

func handleSnapshot(b *bridge.Bridge, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		q := r.URL.Query()
		sig, err := pad.ParseSignal(q.Get("signal"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		view, err := bridge.ParseView(q.Get("view"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		baseline := false
		if s := q.Get("baseline"); s != "" {
			if baseline, err = strconv.ParseBool(s); err != nil {
				http.Error(w, "baseline must be a boolean", http.StatusBadRequest)
				return
			}
		}
		writeJSON(w, http.StatusOK, snapshotReply{
			Signal:  sig.String(),
			View:    view,
			Window:  b.Window(),
			Samples: b.Snapshot(view, sig, baseline),
		}, logger)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("http response write failed", "error", err)
	}
}

// runHTTPServer serves handler on port and shuts it down gracefully when
// ctx is canceled.
func runHTTPServer(ctx context.Context, port int, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("HTTP server listening", "port", port)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown: %w", err)
		}
		<-errCh
		return nil

	case err := <-errCh:
		return err
	}
}
