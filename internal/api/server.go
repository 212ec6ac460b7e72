package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dgallion1/diligence/internal/config"
	"github.com/dgallion1/diligence/internal/llm"
	"github.com/dgallion1/diligence/internal/pipeline"
	"github.com/dgallion1/diligence/internal/research"
	"github.com/dgallion1/diligence/internal/session"
	"github.com/dgallion1/diligence/internal/summary"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

// Researcher runs a research request to completion.
type Researcher interface {
	Run(ctx context.Context, req research.Request) (*research.Result, error)
}

// JobQueue accepts asynchronous research jobs.
type JobQueue interface {
	Submit(req research.Request) (*pipeline.Job, error)
	GetJob(id string) *pipeline.Job
}

// Sessions stores plain-text transcripts.
type Sessions interface {
	Create(ctx context.Context) (string, error)
	Append(ctx context.Context, id, text string) error
	Read(ctx context.Context, id string) (*session.Session, error)
}

// Deps are the services behind the HTTP routes. Stats may be nil.
type Deps struct {
	Research  Researcher
	Jobs      JobQueue
	Sessions  Sessions
	Summaries summary.Store
	Stats     *llm.Stats
}

// Server is the HTTP API server for diligence.
type Server struct {
	router chi.Router
	deps   Deps
	log    *slog.Logger
	cfg    config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(deps Deps, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		deps: deps,
		log:  log,
		cfg:  cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))
	r.Use(cors.New(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}).Handler)

	// Public endpoints.
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.DiligenceAPIKey, s.log))

		r.Post("/api/analyze", s.handleAnalyze)

		r.Post("/api/research", s.handleSubmitResearch)
		r.Get("/api/research/{jobID}", s.handleResearchStatus)
		r.Get("/api/research/{jobID}/report.md", s.handleReportMarkdown)
		r.Get("/api/research/{jobID}/report.html", s.handleReportHTML)
		r.Get("/api/research/{jobID}/report.docx", s.handleReportDOCX)

		r.Get("/api/sessions/start", s.handleStartSession)
		r.Post("/api/sessions/write", s.handleWriteSession)
		r.Get("/api/sessions/read", s.handleReadSession)

		r.Get("/api/summaries", s.handleListSummaries)
		r.Get("/api/summaries/{id}", s.handleGetSummary)
		r.Delete("/api/summaries/{id}", s.handleDeleteSummary)

		r.Get("/api/stats/llm", s.handleLLMStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
