package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/nstogner/keeper/pkg/session"
)

// --- Sessions ---

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.sessions.List(r.Context())
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, sessions)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayerName string `json:"player_name"`
		Module     string `json:"module"`
		Model      string `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	if req.Model == "" {
		s.errorResponse(w, http.StatusBadRequest, errors.New("model is required"))
		return
	}

	sess, err := s.manager.Create(r.Context(), req.PlayerName, req.Module, req.Model)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, sess)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusNotFound, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.manager.End(id)
	if err := s.sessions.Delete(r.Context(), id); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Play ---

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	if req.Message == "" {
		s.errorResponse(w, http.StatusBadRequest, errors.New("message is required"))
		return
	}

	start := time.Now()
	answer, err := s.manager.HandleTurn(r.Context(), id, req.Message)
	if err != nil {
		turnDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		s.errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	turnDuration.WithLabelValues("ok").Observe(time.Since(start).Seconds())

	s.jsonResponse(w, http.StatusOK, map[string]string{"answer": answer})
}

func (s *Server) handleGetTranscript(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	// ?view=full returns the audit view including pre-summary turns.
	if r.URL.Query().Get("view") == "full" {
		turns, err := s.transcript.AllTurns(r.Context(), id)
		if err != nil {
			s.errorResponse(w, http.StatusInternalServerError, err)
			return
		}
		s.jsonResponse(w, http.StatusOK, turns)
		return
	}

	turns, err := s.transcript.Turns(r.Context(), id, 0)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, turns)
}

// --- Notebook ---

func (s *Server) handleListNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := s.notes.ListNotes(r.Context(), r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, notes)
}

// --- Discovery ---

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.provider.List(r.Context())
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, models)
}

func (s *Server) handleListStarters(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, session.Starters)
}
