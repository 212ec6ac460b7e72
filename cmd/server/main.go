package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/diligence/internal/api"
	"github.com/dgallion1/diligence/internal/config"
	"github.com/dgallion1/diligence/internal/fetch"
	"github.com/dgallion1/diligence/internal/llm"
	"github.com/dgallion1/diligence/internal/pagerank"
	"github.com/dgallion1/diligence/internal/pipeline"
	"github.com/dgallion1/diligence/internal/research"
	"github.com/dgallion1/diligence/internal/retrieval"
	"github.com/dgallion1/diligence/internal/search"
	"github.com/dgallion1/diligence/internal/session"
	"github.com/dgallion1/diligence/internal/summary"
	"github.com/redis/go-redis/v9"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize clients.
	invoker := llm.NewInvoker(
		llm.NewClaudeClientWithURL(cfg.AnthropicAPIKey, cfg.AnthropicURL, &http.Client{Timeout: 120 * time.Second}),
		cfg.MaxModelRetries, log,
	)

	var authority retrieval.AuthorityProvider
	var pr *pagerank.Client
	if cfg.PageRankAPIKey != "" {
		pr = pagerank.NewClient(cfg.PageRankURL, cfg.PageRankAPIKey)
		authority = pr
	}
	gateway := retrieval.NewGateway(
		search.NewSerper(cfg.SerperAPIKey, cfg.SearchQPS),
		fetch.New(fetch.Options{Timeout: cfg.FetchTimeout, MaxBytes: cfg.MaxPageBytes}),
		authority,
		retrieval.Config{
			MaxResults:   cfg.MaxResults,
			MaxPageChars: cfg.MaxPageChars,
			FetchRetries: cfg.FetchRetries,
			RetryDelay:   cfg.FetchDelay,
		},
		log,
	)

	// Initialize stores.
	var summaries summary.Store = summary.NewMemoryStore()
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Error("redis unreachable", "error", err)
			os.Exit(1)
		}
		summaries = summary.NewRedisStore(rdb, cfg.SummaryTTL)
	}

	sessions, err := session.Open(cfg.SessionPath)
	if err != nil {
		log.Error("open session store", "path", cfg.SessionPath, "error", err)
		os.Exit(1)
	}

	// Initialize research engine and job pipeline.
	jobs := pipeline.NewJobStore(cfg.JobTTL)
	engine := research.New(invoker, gateway, research.Config{
		TargetQuestions:   cfg.TargetQuestions,
		FollowUpQuestions: cfg.FollowUpQuestions,
		MaxDepth:          cfg.MaxDepth,
		QuestionTurns:     cfg.QuestionTurns,
		OuterWidth:        cfg.OuterWidth,
		InnerWidth:        cfg.InnerWidth,
		TaskTimeout:       cfg.TaskTimeout,
		RunTimeout:        cfg.RunTimeout,
		Models: research.Models{
			Questions: cfg.QuestionModel,
			Summary:   cfg.SummaryModel,
			Answer:    cfg.AnswerModel,
			Report:    cfg.ReportModel,
		},
		Temperature:     cfg.Temperature,
		TopP:            cfg.TopP,
		Summarize:       cfg.Summarize,
		RewriteQueries:  cfg.RewriteQueries,
		ReportFollowUps: cfg.ReportFollowUps,
	}, log,
		jobs,
		summary.NewRecorder(summaries, log),
		session.NewTranscriber(sessions, log),
	)

	orch := pipeline.NewOrchestrator(pipeline.Config{
		WorkerCount:  cfg.WorkerCount,
		MaxQueueSize: cfg.MaxQueueSize,
	}, jobs, engine, log)
	orch.Start(ctx)

	// Initialize HTTP server.
	srv := api.NewServer(api.Deps{
		Research:  engine,
		Jobs:      orch,
		Sessions:  sessions,
		Summaries: summaries,
		Stats:     invoker.Stats,
	}, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.WriteTimeout(),
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		orch.Stop()
		engine.Wait()

		sessions.Close()
		if rdb != nil {
			rdb.Close()
		}
		if pr != nil {
			pr.Close()
		}
	}()

	log.Info("starting diligence", "port", cfg.Port, "max_depth", cfg.MaxDepth)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	<-done
}
