package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/dgallion1/diligence/internal/research"
)

// Runner executes one research run.
type Runner interface {
	Run(ctx context.Context, req research.Request) (*research.Result, error)
}

// Worker processes a single research job.
type Worker struct {
	runner Runner
	log    *slog.Logger
}

func NewWorker(runner Runner, log *slog.Logger) *Worker {
	return &Worker{runner: runner, log: log}
}

// Process runs the job to completion and records its outcome.
func (w *Worker) Process(ctx context.Context, job *Job) {
	req := job.Request()
	log := w.log.With("job_id", job.ID, "company", req.Company)

	job.SetStatus(StatusRunning)
	start := time.Now()
	res, err := w.runner.Run(ctx, req)
	if err != nil {
		log.Error("research job failed", "error", err, "duration", time.Since(start))
		job.Fail(err)
		return
	}
	job.Complete(res)
	log.Info("research job complete",
		"degraded", res.Degraded,
		"answers", len(res.Answers),
		"duration", time.Since(start),
	)
}
