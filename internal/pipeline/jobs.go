package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/dgallion1/diligence/internal/research"
)

// JobStatus represents the state of a research job.
type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusDegraded  JobStatus = "degraded"
	StatusFailed    JobStatus = "failed"
)

func (s JobStatus) finished() bool {
	return s == StatusCompleted || s == StatusDegraded || s == StatusFailed
}

// Job tracks one asynchronous research run. Its ID doubles as the run's
// correlation id.
type Job struct {
	mu sync.Mutex

	ID       string `json:"job_id"`
	Company  string `json:"company_name"`
	Industry string `json:"industry,omitempty"`

	Status JobStatus      `json:"status"`
	Stage  research.Stage `json:"stage"`

	Progress Progress `json:"progress"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Internal: not serialized.
	request research.Request
	result  *research.Result
	errors  []string
}

// Progress counts answers as they complete.
type Progress struct {
	Answered int      `json:"answered"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors"`
}

// NewJob builds a queued job for req. The request's correlation id must
// already be set.
func NewJob(req research.Request) *Job {
	now := time.Now()
	return &Job{
		ID:        req.CorrelationID,
		Company:   req.Company,
		Industry:  req.Industry,
		Status:    StatusQueued,
		Stage:     research.StageInit,
		CreatedAt: now,
		UpdatedAt: now,
		request:   req,
	}
}

// Request returns the research request the job was created from.
func (j *Job) Request() research.Request {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.request
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.UpdatedAt = time.Now()
}

// SetStage records the run's latest lifecycle stage. Events delivered after
// the job finished are ignored.
func (j *Job) SetStage(stage research.Stage) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Status.finished() {
		return
	}
	j.Stage = stage
	j.UpdatedAt = time.Now()
}

// AddAnswer counts one completed answer.
func (j *Job) AddAnswer(failed bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.Answered++
	if failed {
		j.Progress.Failed++
	}
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.Progress.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// Complete stores the run result and marks the job finished.
func (j *Job) Complete(res *research.Result) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.result = res
	j.Status = StatusCompleted
	if res.Degraded {
		j.Status = StatusDegraded
	}
	j.Stage = research.StageDone
	j.UpdatedAt = time.Now()
}

// Fail marks the job failed with err.
func (j *Job) Fail(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err.Error())
	j.Progress.Errors = j.errors
	j.Status = StatusFailed
	j.Stage = research.StageFailed
	j.UpdatedAt = time.Now()
}

// Result returns the finished run, or nil while the job is pending or if it
// failed.
func (j *Job) Result() *research.Result {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID        string           `json:"job_id"`
	Company   string           `json:"company_name"`
	Industry  string           `json:"industry,omitempty"`
	Status    JobStatus        `json:"status"`
	Stage     research.Stage   `json:"stage"`
	Progress  Progress         `json:"progress"`
	Result    *research.Result `json:"result,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := append([]string{}, j.Progress.Errors...)
	return JobSnapshot{
		ID:       j.ID,
		Company:  j.Company,
		Industry: j.Industry,
		Status:   j.Status,
		Stage:    j.Stage,
		Progress: Progress{
			Answered: j.Progress.Answered,
			Failed:   j.Progress.Failed,
			Errors:   errs,
		},
		Result:    j.result,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

// Put registers job. It returns false if an unfinished job already holds
// the same id.
func (s *JobStore) Put(job *Job) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.jobs[job.ID]; ok {
		old.mu.Lock()
		running := !old.Status.finished()
		old.mu.Unlock()
		if running {
			return false
		}
	}
	s.jobs[job.ID] = job
	return true
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Cleanup removes finished jobs untouched for longer than the TTL.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		expired := job.Status.finished() && now.Sub(job.UpdatedAt) > s.ttl
		job.mu.Unlock()
		if expired {
			delete(s.jobs, id)
		}
	}
}

// Observe implements research.Observer, mirroring run progress onto the job
// whose id matches the run id.
func (s *JobStore) Observe(_ context.Context, ev research.Event) {
	job := s.Get(ev.RunID)
	if job == nil {
		return
	}
	switch {
	case ev.Answer != nil:
		job.AddAnswer(ev.Answer.Failed())
	case ev.Stage == research.StageDone || ev.Stage == research.StageFailed:
		// The worker sets terminal state from Run's return value.
	default:
		job.SetStage(ev.Stage)
	}
}
