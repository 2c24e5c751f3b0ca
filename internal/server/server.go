// Package server exposes a live store over HTTP with an SSE event stream.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cadre-oss/mosaic/internal/config"
	"github.com/cadre-oss/mosaic/internal/event"
	"github.com/cadre-oss/mosaic/internal/memory"
	"github.com/cadre-oss/mosaic/internal/persist"
	"github.com/cadre-oss/mosaic/internal/telemetry"
)

// maxSnapshotBytes bounds PUT /api/snapshot request bodies.
const maxSnapshotBytes = 64 << 20

// Server is the mosaic HTTP API server.
type Server struct {
	cfg       *config.Config
	store     *memory.Store[string]
	persister *persist.Persister

	// writeMu orders mutations and their saves so the persisted snapshot
	// always reflects the latest mutation.
	writeMu sync.Mutex

	broker           *Broker
	metrics          *telemetry.Metrics
	logger           *telemetry.Logger
	maxSnapshotBytes int64
}

// New creates a server over store. The broker is registered on bus so store
// events reach SSE clients.
func New(cfg *config.Config, store *memory.Store[string], persister *persist.Persister,
	bus *event.Bus, metrics *telemetry.Metrics, logger *telemetry.Logger) *Server {
	broker := NewBroker(logger)
	bus.Register(broker)

	return &Server{
		cfg:       cfg,
		store:     store,
		persister: persister,
		broker:    broker,
		metrics:   metrics,
		logger:    logger,

		maxSnapshotBytes: maxSnapshotBytes,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return corsMiddleware(s.setupRoutes())
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting mosaic API", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	// Entries
	mux.HandleFunc("GET /api/entries", s.handleListEntries)
	mux.HandleFunc("POST /api/entries", s.handleInsertEntry)
	mux.HandleFunc("POST /api/entries/remove", s.handleRemoveEntries)
	mux.HandleFunc("DELETE /api/entries", s.handleClearEntries)

	// Snapshots
	mux.HandleFunc("GET /api/snapshot", s.handleExportSnapshot)
	mux.HandleFunc("PUT /api/snapshot", s.handleImportSnapshot)
	mux.HandleFunc("POST /api/snapshot/save", s.handleSaveSnapshot)
	mux.HandleFunc("GET /api/snapshot/history", s.handleSnapshotHistory)

	// Event streams
	mux.HandleFunc("GET /api/events", s.handleSSEEvents)
	mux.HandleFunc("GET /api/ws", s.handleWebSocket)

	return mux
}

// corsMiddleware adds CORS headers for browser clients.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
