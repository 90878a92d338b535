package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"kairos/internal/errs"
)

// Server serves the backtest HTTP API.
type Server struct {
	manager *Manager
	addr    string
	log     *slog.Logger

	httpServer *http.Server
}

// NewServer creates a Server bound to addr (host:port).
func NewServer(manager *Manager, addr string, log *slog.Logger) *Server {
	return &Server{
		manager: manager,
		addr:    addr,
		log:     log,
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /backtest", s.handleSubmit)
	mux.HandleFunc("GET /backtest/{id}", s.handleGet)
	mux.HandleFunc("GET /strategies", s.handleStrategies)
}

// Handler returns the server's http.Handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

// ListenAndServe starts the HTTP listener and blocks until the context is
// cancelled or the listener fails. Cancellation drains in-flight requests
// and waits for queued runs to finish.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", s.addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		s.manager.Wait()
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("decoding request: %v", err))
		return
	}

	runID, err := s.manager.Submit(r.Context(), req)
	if err != nil {
		var cfgErr *errs.ConfigError
		if errors.As(err, &cfgErr) {
			writeError(w, http.StatusUnprocessableEntity, cfgErr.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(map[string]string{"run_id": runID}); err != nil {
		s.log.Error("encoding JSON response", "err", err)
	}
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	status, ok := s.manager.Get(runID)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown run %q", runID))
		return
	}
	writeJSON(w, s.log, status)
}

func (s *Server) handleStrategies(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.log, map[string][]string{"strategies": s.manager.Strategies()})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, log *slog.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("encoding JSON response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
