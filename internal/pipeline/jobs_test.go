package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dgallion1/diligence/internal/research"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJob_StateTransitions(t *testing.T) {
	job := NewJob(research.Request{Company: "Acme Corp", CorrelationID: "job-1"})
	require.Equal(t, StatusQueued, job.Status)
	require.Equal(t, research.StageInit, job.Stage)

	stages := []research.Stage{
		research.StageQuestionsGenerated,
		research.StageAnswering,
		research.StageReporting,
	}
	job.SetStatus(StatusRunning)
	for _, st := range stages {
		before := job.UpdatedAt
		time.Sleep(time.Millisecond)
		job.SetStage(st)
		assert.Equal(t, st, job.Stage)
		assert.True(t, job.UpdatedAt.After(before), "UpdatedAt should advance after SetStage(%q)", st)
	}

	job.Complete(&research.Result{RunID: "job-1", Report: "r"})
	assert.Equal(t, StatusCompleted, job.Status)
	assert.Equal(t, research.StageDone, job.Stage)
	assert.NotNil(t, job.Result())
}

func TestJob_LateStageIgnoredAfterFinish(t *testing.T) {
	job := NewJob(research.Request{Company: "Acme Corp", CorrelationID: "late"})
	job.Complete(&research.Result{})
	job.SetStage(research.StageReporting)
	assert.Equal(t, research.StageDone, job.Stage)
}

func TestJob_CompleteDegraded(t *testing.T) {
	job := NewJob(research.Request{Company: "Acme Corp", CorrelationID: "deg"})
	job.Complete(&research.Result{Degraded: true})
	assert.Equal(t, StatusDegraded, job.Status)
}

func TestJob_Fail(t *testing.T) {
	job := NewJob(research.Request{Company: "Acme Corp", CorrelationID: "fail"})
	job.Fail(errors.New("model unavailable"))

	snap := job.Snapshot()
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, research.StageFailed, snap.Stage)
	assert.Equal(t, []string{"model unavailable"}, snap.Progress.Errors)
	assert.Nil(t, snap.Result)
}

func TestJob_AddAnswer(t *testing.T) {
	job := &Job{ID: "answers", UpdatedAt: time.Now()}
	job.AddAnswer(false)
	job.AddAnswer(true)
	job.AddAnswer(false)

	snap := job.Snapshot()
	assert.Equal(t, 3, snap.Progress.Answered)
	assert.Equal(t, 1, snap.Progress.Failed)
}

func TestJob_SnapshotErrorsNotNil(t *testing.T) {
	job := &Job{ID: "snap-test", UpdatedAt: time.Now()}
	assert.NotNil(t, job.Snapshot().Progress.Errors)
}

func TestJobStore_PutGet(t *testing.T) {
	store := NewJobStore(time.Hour)
	job := &Job{ID: "store-1", UpdatedAt: time.Now()}
	require.True(t, store.Put(job))

	got := store.Get("store-1")
	require.NotNil(t, got)
	assert.Equal(t, "store-1", got.ID)
	assert.Nil(t, store.Get("nonexistent"))
}

func TestJobStore_PutRejectsRunningDuplicate(t *testing.T) {
	store := NewJobStore(time.Hour)
	first := NewJob(research.Request{Company: "A", CorrelationID: "dup"})
	store.Put(first)
	require.False(t, store.Put(NewJob(research.Request{Company: "A", CorrelationID: "dup"})),
		"duplicate of a queued job should be rejected")

	first.Complete(&research.Result{})
	assert.True(t, store.Put(NewJob(research.Request{Company: "A", CorrelationID: "dup"})),
		"finished job id should be reusable")
}

func TestJobStore_TTLCleanup(t *testing.T) {
	store := NewJobStore(50 * time.Millisecond)

	done := &Job{ID: "old", Status: StatusCompleted, UpdatedAt: time.Now()}
	running := &Job{ID: "busy", Status: StatusRunning, UpdatedAt: time.Now()}
	store.Put(done)
	store.Put(running)

	// Wait for the TTL to pass.
	time.Sleep(100 * time.Millisecond)

	fresh := &Job{ID: "new", Status: StatusCompleted, UpdatedAt: time.Now()}
	store.Put(fresh)

	store.Cleanup()

	assert.Nil(t, store.Get("old"), "expired job should be cleaned up")
	assert.NotNil(t, store.Get("busy"), "running job should survive cleanup")
	assert.NotNil(t, store.Get("new"), "fresh job should survive cleanup")
}

func TestJobStore_ObserveMirrorsProgress(t *testing.T) {
	store := NewJobStore(time.Hour)
	job := NewJob(research.Request{Company: "Acme Corp", CorrelationID: "obs"})
	store.Put(job)
	ctx := context.Background()

	store.Observe(ctx, research.Event{RunID: "obs", Stage: research.StageAnswering})
	store.Observe(ctx, research.Event{RunID: "obs", Stage: research.StageAnswering, Answer: &research.Answer{Text: "x"}})
	store.Observe(ctx, research.Event{RunID: "obs", Stage: research.StageAnswering, Answer: &research.Answer{Error: "boom"}})
	store.Observe(ctx, research.Event{RunID: "other", Stage: research.StageReporting})

	snap := job.Snapshot()
	assert.Equal(t, research.StageAnswering, snap.Stage)
	assert.Equal(t, 2, snap.Progress.Answered)
	assert.Equal(t, 1, snap.Progress.Failed)
}

type stubRunner struct {
	mu      sync.Mutex
	release chan struct{}
	err     error
	seen    []research.Request
}

func (r *stubRunner) Run(ctx context.Context, req research.Request) (*research.Result, error) {
	r.mu.Lock()
	r.seen = append(r.seen, req)
	r.mu.Unlock()
	if r.release != nil {
		select {
		case <-r.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	return &research.Result{RunID: req.CorrelationID, CompanyName: req.Company, Report: "report"}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitForStatus(t *testing.T, job *Job, want JobStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if job.Snapshot().Status == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached %q (at %q)", job.ID, want, job.Snapshot().Status)
}

func TestOrchestrator_SubmitRunsJob(t *testing.T) {
	runner := &stubRunner{}
	o := NewOrchestrator(Config{WorkerCount: 2, MaxQueueSize: 4}, NewJobStore(time.Hour), runner, discardLogger())
	o.Start(context.Background())
	defer o.Stop()

	job, err := o.Submit(research.Request{Company: "  Acme Corp "})
	require.NoError(t, err)
	require.NotEmpty(t, job.ID, "job id should be generated")
	waitForStatus(t, job, StatusCompleted)

	assert.Same(t, job, o.GetJob(job.ID))
	res := job.Result()
	require.NotNil(t, res)
	assert.Equal(t, "Acme Corp", res.CompanyName)
	assert.Equal(t, job.ID, res.RunID)
}

func TestOrchestrator_SubmitKeepsCorrelationID(t *testing.T) {
	runner := &stubRunner{}
	o := NewOrchestrator(Config{WorkerCount: 1, MaxQueueSize: 1}, NewJobStore(time.Hour), runner, discardLogger())
	o.Start(context.Background())
	defer o.Stop()

	job, err := o.Submit(research.Request{Company: "Acme Corp", CorrelationID: "sess1234"})
	require.NoError(t, err)
	assert.Equal(t, "sess1234", job.ID)
	waitForStatus(t, job, StatusCompleted)
}

func TestOrchestrator_FailedRun(t *testing.T) {
	runner := &stubRunner{err: errors.New("questions: model unavailable")}
	o := NewOrchestrator(Config{WorkerCount: 1, MaxQueueSize: 1}, NewJobStore(time.Hour), runner, discardLogger())
	o.Start(context.Background())
	defer o.Stop()

	job, err := o.Submit(research.Request{Company: "Acme Corp"})
	require.NoError(t, err)
	waitForStatus(t, job, StatusFailed)
	assert.Nil(t, job.Result())
}

func TestOrchestrator_RejectsInvalidAndFull(t *testing.T) {
	runner := &stubRunner{release: make(chan struct{})}
	o := NewOrchestrator(Config{WorkerCount: 1, MaxQueueSize: 1}, NewJobStore(time.Hour), runner, discardLogger())
	o.Start(context.Background())
	defer o.Stop()
	defer close(runner.release)

	_, err := o.Submit(research.Request{Company: "  "})
	assert.ErrorIs(t, err, research.ErrInvalidRequest)

	// One job occupies the worker, the next fills the queue.
	first, err := o.Submit(research.Request{Company: "A"})
	require.NoError(t, err)
	waitForStatus(t, first, StatusRunning)
	_, err = o.Submit(research.Request{Company: "B"})
	require.NoError(t, err)

	_, err = o.Submit(research.Request{Company: "C"})
	assert.ErrorIs(t, err, ErrQueueFull)
	_, err = o.Submit(research.Request{Company: "A", CorrelationID: first.ID})
	assert.ErrorIs(t, err, ErrDuplicate)
}
