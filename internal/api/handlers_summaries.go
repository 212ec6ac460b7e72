package api

import (
	"errors"
	"net/http"

	"github.com/dgallion1/diligence/internal/summary"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListSummaries(w http.ResponseWriter, r *http.Request) {
	all, err := s.deps.Summaries.List(r.Context())
	if err != nil {
		s.log.Error("list summaries", "error", err)
		jsonError(w, "failed to list summaries", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summaries": all})
}

func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sum, err := s.deps.Summaries.Get(r.Context(), id)
	if errors.Is(err, summary.ErrNotFound) {
		jsonError(w, "summary not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.Error("get summary", "id", id, "error", err)
		jsonError(w, "failed to read summary", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleDeleteSummary(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.Summaries.Delete(r.Context(), id); err != nil {
		s.log.Error("delete summary", "id", id, "error", err)
		jsonError(w, "failed to delete summary", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
