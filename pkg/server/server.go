// Package server exposes the Keeper over HTTP: a REST API for sessions,
// transcripts, and notebooks, a websocket for live play, and Prometheus
// metrics.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nstogner/keeper/pkg/model"
	"github.com/nstogner/keeper/pkg/session"
	"github.com/nstogner/keeper/pkg/store"
)

var turnDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "keeper_turn_duration_seconds",
	Help:    "Wall time per player turn, including all tool rounds.",
	Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
}, []string{"outcome"})

// Server serves the REST API and websocket for the Keeper.
type Server struct {
	sessions   store.SessionStore
	transcript store.TranscriptStore
	notes      store.NotebookStore
	provider   model.Provider
	manager    *session.Manager
	log        *slog.Logger
	srv        *http.Server
}

// New creates a Server.
func New(
	sessions store.SessionStore,
	transcript store.TranscriptStore,
	notes store.NotebookStore,
	provider model.Provider,
	manager *session.Manager,
	log *slog.Logger,
) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		sessions:   sessions,
		transcript: transcript,
		notes:      notes,
		provider:   provider,
		manager:    manager,
		log:        log,
	}
}

// Handler builds the route table. Split out from Start so tests can drive it
// with httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Sessions
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)

	// Play
	mux.HandleFunc("POST /api/sessions/{id}/turns", s.handleTurn)
	mux.HandleFunc("GET /api/sessions/{id}/transcript", s.handleGetTranscript)
	mux.HandleFunc("/api/sessions/{id}/play", s.handlePlayWebSocket)

	// Notebook (read-only over HTTP; only the Keeper writes notes)
	mux.HandleFunc("GET /api/sessions/{id}/notes", s.handleListNotes)

	// Discovery
	mux.HandleFunc("GET /api/models", s.handleListModels)
	mux.HandleFunc("GET /api/starters", s.handleListStarters)

	mux.Handle("GET /metrics", promhttp.Handler())

	return s.corsMiddleware(mux)
}

// Start starts the HTTP server and blocks until it exits.
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	s.log.Info("starting server", "addr", addr)
	return s.srv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, err error) {
	s.log.Error("api error", "status", status, "err", err)
	s.jsonResponse(w, status, map[string]string{"error": err.Error()})
}
