package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/dgallion1/diligence/internal/pipeline"
	"github.com/dgallion1/diligence/internal/report"
	"github.com/dgallion1/diligence/internal/research"
	"github.com/go-chi/chi/v5"
)

const maxRequestBytes = 1 << 20

func decodeRequest(w http.ResponseWriter, r *http.Request) (research.Request, bool) {
	var req research.Request
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return req, false
	}
	if req.Company == "" {
		jsonError(w, "Missing 'company_name' in request", http.StatusBadRequest)
		return req, false
	}
	return req, true
}

// handleAnalyze runs research synchronously and answers in the legacy
// analyze shape.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	res, err := s.deps.Research.Run(r.Context(), req)
	if errors.Is(err, research.ErrInvalidRequest) {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		s.log.Error("analyze failed", "company", req.Company, "error", err)
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	answers := res.Answers
	if answers == nil {
		answers = []*research.Answer{}
	}
	out := map[string]any{
		"full report":  res.Report,
		"subquestions": answers,
		"run_id":       res.RunID,
		"degraded":     res.Degraded,
	}
	if res.Industry != "" {
		out["industry"] = res.Industry
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSubmitResearch(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	job, err := s.deps.Jobs.Submit(req)
	switch {
	case errors.Is(err, research.ErrInvalidRequest):
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, pipeline.ErrDuplicate):
		jsonError(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	snap := job.Snapshot()
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":   snap.ID,
		"status":   snap.Status,
		"stage":    snap.Stage,
		"poll_url": fmt.Sprintf("/api/research/%s", snap.ID),
	})
}

func (s *Server) handleResearchStatus(w http.ResponseWriter, r *http.Request) {
	job := s.deps.Jobs.GetJob(chi.URLParam(r, "jobID"))
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

// finishedResult writes an error and returns nil unless the job has a result.
func (s *Server) finishedResult(w http.ResponseWriter, r *http.Request) *research.Result {
	job := s.deps.Jobs.GetJob(chi.URLParam(r, "jobID"))
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return nil
	}
	res := job.Result()
	if res == nil {
		snap := job.Snapshot()
		if snap.Status == pipeline.StatusFailed {
			jsonError(w, "job failed", http.StatusGone)
		} else {
			jsonError(w, fmt.Sprintf("job is %s", snap.Status), http.StatusConflict)
		}
		return nil
	}
	return res
}

func (s *Server) handleReportMarkdown(w http.ResponseWriter, r *http.Request) {
	res := s.finishedResult(w, r)
	if res == nil {
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Write([]byte(report.Markdown(res)))
}

func (s *Server) handleReportHTML(w http.ResponseWriter, r *http.Request) {
	res := s.finishedResult(w, r)
	if res == nil {
		return
	}
	page, err := report.HTML(res)
	if err != nil {
		s.log.Error("render html report", "run_id", res.RunID, "error", err)
		jsonError(w, "failed to render report", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}

func (s *Server) handleReportDOCX(w http.ResponseWriter, r *http.Request) {
	res := s.finishedResult(w, r)
	if res == nil {
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.wordprocessingml.document")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.docx"`, res.RunID))
	if err := report.DOCX(w, res); err != nil {
		// Headers are gone by now; the client sees a truncated file.
		s.log.Error("render docx report", "run_id", res.RunID, "error", err)
	}
}
