package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dgallion1/diligence/internal/session"
)

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	id, err := s.deps.Sessions.Create(r.Context())
	if err != nil {
		s.log.Error("start session", "error", err)
		jsonError(w, "failed to start session", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"session_id": id,
		"message":    "Session started",
	})
}

func (s *Server) handleWriteSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SessionID string `json:"session_id"`
		Text      string `json:"text"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}
	err := s.deps.Sessions.Append(r.Context(), body.SessionID, body.Text)
	if errors.Is(err, session.ErrNotFound) {
		jsonError(w, "Invalid session ID", http.StatusBadRequest)
		return
	}
	if err != nil {
		s.log.Error("write session", "session", body.SessionID, "error", err)
		jsonError(w, "failed to write session", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Text added"})
}

func (s *Server) handleReadSession(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("session_id")
	sess, err := s.deps.Sessions.Read(r.Context(), id)
	if errors.Is(err, session.ErrNotFound) {
		jsonError(w, "Invalid session ID", http.StatusBadRequest)
		return
	}
	if err != nil {
		s.log.Error("read session", "session", id, "error", err)
		jsonError(w, "failed to read session", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"content": sess.Content})
}
