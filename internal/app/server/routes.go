package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"shrike/internal/dispatch"
	"shrike/internal/metrics"
	"shrike/internal/pool"
)

// Server is the outward-facing endpoint layer: JSON framing and input
// validation around the dispatch engine, plus observability reads.
type Server struct {
	engine    *dispatch.Engine
	pool      *pool.Pool
	metrics   *metrics.Metrics
	readerURL string
	searchURL string
	startedAt time.Time
}

func New(engine *dispatch.Engine, p *pool.Pool, m *metrics.Metrics, readerURL, searchURL string) *Server {
	return &Server{
		engine:    engine,
		pool:      p,
		metrics:   m,
		readerURL: readerURL,
		searchURL: searchURL,
		startedAt: time.Now(),
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Routes builds the request router.
func (s *Server) Routes() http.Handler {
	router := http.NewServeMux()

	router.HandleFunc("GET /{$}", s.home)
	router.HandleFunc("POST /search", s.search)
	router.HandleFunc("POST /read", s.read)
	router.HandleFunc("GET /health", s.health)
	router.HandleFunc("GET /stats", s.stats)
	router.Handle("GET /metrics", s.metrics.Handler())
	router.HandleFunc("/", s.notFound)

	return enableCORS(router)
}

// OpenRoutes serves the API until ctx is cancelled, then drains in-flight
// requests.
func (s *Server) OpenRoutes(ctx context.Context, port int) error {
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("API server listening", "port", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]any{
		"success":             false,
		"error":               "Endpoint not found",
		"available_endpoints": []string{"/", "/search", "/read", "/health", "/stats", "/metrics"},
	})
}
