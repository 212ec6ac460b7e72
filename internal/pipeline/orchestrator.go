package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dgallion1/diligence/internal/metrics"
	"github.com/dgallion1/diligence/internal/research"
	"github.com/google/uuid"
)

var (
	ErrQueueFull = errors.New("job queue is full")
	ErrDuplicate = errors.New("a job with this id is already running")
)

// Config sizes the job pipeline.
type Config struct {
	WorkerCount  int
	MaxQueueSize int
}

// Orchestrator queues research jobs and runs them on a fixed worker pool.
type Orchestrator struct {
	jobs   *JobStore
	queue  chan *Job
	runner Runner
	log    *slog.Logger
	cfg    Config

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator creates the pipeline. jobs must also be registered as an
// observer of runner so job stages follow the run.
func NewOrchestrator(cfg Config, jobs *JobStore, runner Runner, log *slog.Logger) *Orchestrator {
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}
	if cfg.MaxQueueSize < 1 {
		cfg.MaxQueueSize = 1
	}
	return &Orchestrator{
		jobs:   jobs,
		queue:  make(chan *Job, cfg.MaxQueueSize),
		runner: runner,
		log:    log,
		cfg:    cfg,
	}
}

// Start launches worker goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for range o.cfg.WorkerCount {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			w := NewWorker(o.runner, o.log)
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-o.queue:
					if !ok {
						return
					}
					metrics.JobQueueDepth.Set(float64(len(o.queue)))
					w.Process(workerCtx, job)
				}
			}
		}()
	}

	// Start job store cleanup.
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.jobs.Cleanup()
			}
		}
	}()
}

// Stop cancels running jobs and waits for the workers to exit.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	close(o.queue)
	o.wg.Wait()
}

// Submit validates req, assigns a job id when the request carries no
// correlation id, and queues it.
func (o *Orchestrator) Submit(req research.Request) (*Job, error) {
	req.Company = strings.TrimSpace(req.Company)
	if req.Company == "" {
		return nil, fmt.Errorf("%w: company name is required", research.ErrInvalidRequest)
	}
	if req.CorrelationID == "" {
		req.CorrelationID = uuid.NewString()
	}
	job := NewJob(req)
	if !o.jobs.Put(job) {
		return nil, ErrDuplicate
	}
	select {
	case o.queue <- job:
		metrics.JobQueueDepth.Set(float64(len(o.queue)))
		o.log.Info("research job queued", "job_id", job.ID, "company", req.Company)
		return job, nil
	default:
		job.Fail(ErrQueueFull)
		return nil, fmt.Errorf("%w (%d)", ErrQueueFull, o.cfg.MaxQueueSize)
	}
}

// GetJob returns a job by ID.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}
