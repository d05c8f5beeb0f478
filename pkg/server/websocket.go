package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handlePlayWebSocket runs a live play connection: outgoing frames are
// transcript turns (the full backlog first, then new turns as they land),
// incoming frames are player messages fed to the dialogue loop.
func (s *Server) handlePlayWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if sessionID == "" {
		http.Error(w, "missing session ID", http.StatusBadRequest)
		return
	}
	if _, err := s.sessions.Get(r.Context(), sessionID); err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", "err", err)
		return
	}
	defer ws.Close()

	done := make(chan struct{})
	updates := s.transcript.Subscribe()
	defer s.transcript.Unsubscribe(updates)

	sentIDs := make(map[string]bool)
	if err := s.syncTranscript(ws, sessionID, sentIDs); err != nil {
		s.log.Error("initial transcript sync failed", "err", err)
		return
	}

	var wg sync.WaitGroup
	wg.Add(1)

	// Writer goroutine: pushes new turns to the client.
	go func() {
		defer wg.Done()
		defer ws.Close()

		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case id := <-updates:
				if id == sessionID {
					if err := s.syncTranscript(ws, sessionID, sentIDs); err != nil {
						s.log.Error("transcript sync failed", "err", err)
						return
					}
				}
			case <-ticker.C:
				// Keepalive
			}
		}
	}()

	// Reader loop: each player message runs a full dialogue turn. The turn
	// runs detached from the request context so an in-flight turn survives
	// the socket closing.
	turnCtx := context.Background()
	for {
		var msg struct {
			Message string `json:"message"`
		}
		if err := ws.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Error("websocket read failed", "err", err)
			}
			break
		}
		if msg.Message == "" {
			continue
		}

		if _, err := s.manager.HandleTurn(turnCtx, sessionID, msg.Message); err != nil {
			s.log.Error("turn failed", "session", sessionID, "err", err)
		}
	}

	close(done)
	wg.Wait()
}

func (s *Server) syncTranscript(ws *websocket.Conn, sessionID string, sentIDs map[string]bool) error {
	turns, err := s.transcript.Turns(context.Background(), sessionID, 0)
	if err != nil {
		return err
	}

	for _, t := range turns {
		if !sentIDs[t.ID] {
			if err := ws.WriteJSON(t); err != nil {
				return err
			}
			sentIDs[t.ID] = true
		}
	}
	return nil
}
