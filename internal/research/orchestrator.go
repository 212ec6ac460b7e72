package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dgallion1/diligence/internal/metrics"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Event is a progress notification published while a run executes.
type Event struct {
	RunID         string
	CorrelationID string
	Company       string
	Stage         Stage
	Question      *Question // set for per-answer events
	Answer        *Answer   // set once an answer completes
	Report        string    // set on StageDone
	Err           error     // set on StageFailed
	Time          time.Time
}

// Observer receives run events. Delivery is best-effort and happens off the
// answer path; a slow observer delays only later events of the same run.
type Observer interface {
	Observe(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev Event)

func (f ObserverFunc) Observe(ctx context.Context, ev Event) { f(ctx, ev) }

const (
	eventBuffer  = 256
	eventTimeout = 5 * time.Second
)

// Orchestrator runs the question, answer and report stages. Answer
// concurrency is bounded per depth by semaphores shared across every run
// this Orchestrator executes, so nested fan-outs never multiply.
type Orchestrator struct {
	generator *Generator
	synth     *Synthesizer
	reporter  *Reporter
	cfg       Config
	log       *slog.Logger
	observers []Observer

	slots   []*semaphore.Weighted // index = question depth
	pending sync.WaitGroup        // event publishers
}

func NewOrchestrator(generator *Generator, synth *Synthesizer, reporter *Reporter, cfg Config, log *slog.Logger, observers ...Observer) *Orchestrator {
	cfg = cfg.withDefaults()
	slots := make([]*semaphore.Weighted, cfg.MaxDepth+1)
	slots[0] = semaphore.NewWeighted(int64(cfg.OuterWidth))
	for d := 1; d < len(slots); d++ {
		slots[d] = semaphore.NewWeighted(int64(cfg.InnerWidth))
	}
	return &Orchestrator{
		generator: generator,
		synth:     synth,
		reporter:  reporter,
		cfg:       cfg,
		log:       log,
		observers: observers,
		slots:     slots,
	}
}

// New wires a complete Orchestrator from a model invoker and a retriever.
func New(invoker Invoker, retriever Retriever, cfg Config, log *slog.Logger, observers ...Observer) *Orchestrator {
	gen := NewGenerator(invoker, cfg, log)
	return NewOrchestrator(
		gen,
		NewSynthesizer(invoker, retriever, gen, cfg, log),
		NewReporter(invoker, cfg, log),
		cfg, log, observers...,
	)
}

// Wait blocks until every published event has been delivered.
func (o *Orchestrator) Wait() {
	o.pending.Wait()
}

// run is the per-run state shared by the fan-out.
type run struct {
	id    string
	req   Request
	brief Brief
	log   *slog.Logger
	pub   *publisher
}

// Run executes one research run. It returns an error only if the request is
// invalid, top-level question generation fails, or ctx is cancelled or the
// run deadline passes. Failed answers are kept as error markers and flag
// the result as degraded.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	req.Company = strings.TrimSpace(req.Company)
	if req.Company == "" {
		return nil, fmt.Errorf("%w: company name is required", ErrInvalidRequest)
	}
	start := time.Now()
	r := &run{
		id:    req.CorrelationID,
		req:   req,
		brief: Brief{Company: req.Company, Industry: req.Industry},
	}
	if r.id == "" {
		r.id = uuid.NewString()
	}
	r.log = o.log.With("run_id", r.id, "company", req.Company)
	r.pub = o.newPublisher(r)
	defer r.pub.close()

	if o.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.RunTimeout)
		defer cancel()
	}

	res, err := o.execute(ctx, r)
	metrics.RunDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RunsCompleted.WithLabelValues("failed").Inc()
		r.log.Error("research run failed", "error", err, "duration", time.Since(start))
		r.pub.emit(Event{Stage: StageFailed, Err: err})
		return nil, err
	}
	res.StartedAt = start
	res.FinishedAt = time.Now()
	status := "ok"
	if res.Degraded {
		status = "degraded"
	}
	metrics.RunsCompleted.WithLabelValues(status).Inc()
	r.log.Info("research run complete", "status", status, "answers", len(res.Answers), "duration", time.Since(start))
	r.pub.emit(Event{Stage: StageDone, Report: res.Report})
	return res, nil
}

func (o *Orchestrator) execute(ctx context.Context, r *run) (*Result, error) {
	r.pub.emit(Event{Stage: StageInit})

	questions, err := o.generator.Generate(ctx, GenerateRequest{
		Company:  r.req.Company,
		Industry: r.req.Industry,
		Topics:   r.req.Topics,
		Target:   o.cfg.TargetQuestions,
	})
	if err != nil {
		return nil, err
	}
	r.log.Info("questions generated", "count", len(questions))
	r.pub.emit(Event{Stage: StageQuestionsGenerated})

	r.pub.emit(Event{Stage: StageAnswering})
	answers := o.fanOut(ctx, r, questions)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("research run %s: %w", r.id, err)
	}

	degraded := len(questions) == 0
	for _, a := range answers {
		if a.Failed() {
			degraded = true
		}
	}

	r.pub.emit(Event{Stage: StageReporting})
	report := o.reporter.Synthesize(ctx, Flatten(answers), r.req.Company, r.req.Industry)

	return &Result{
		RunID:       r.id,
		CompanyName: r.req.Company,
		Industry:    r.req.Industry,
		Report:      report,
		Answers:     answers,
		Degraded:    degraded,
	}, nil
}

// fanOut answers questions concurrently and returns the answers in the
// order of questions. Every task is awaited before it returns.
func (o *Orchestrator) fanOut(ctx context.Context, r *run, questions []*Question) []*Answer {
	answers := make([]*Answer, len(questions))
	var eg errgroup.Group
	for i, q := range questions {
		eg.Go(func() error {
			answers[i] = o.answerOne(ctx, r, q)
			return nil
		})
	}
	eg.Wait()
	return answers
}

func (o *Orchestrator) answerOne(ctx context.Context, r *run, q *Question) *Answer {
	depth := strconv.Itoa(q.Depth)
	slot := o.slot(q.Depth)
	if err := slot.Acquire(ctx, 1); err != nil {
		metrics.Answers.WithLabelValues(depth, "cancelled").Inc()
		return failedAnswer(q, err)
	}
	metrics.AnswersInFlight.WithLabelValues(depth).Inc()
	released := false
	release := func() {
		if !released {
			released = true
			metrics.AnswersInFlight.WithLabelValues(depth).Dec()
			slot.Release(1)
		}
	}
	defer release()

	taskCtx := ctx
	if o.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, o.cfg.TaskTimeout)
		defer cancel()
	}

	// A parent gives its slot back before its follow-ups run. Follow-ups
	// derive from the run context, not taskCtx, so each gets its own
	// TaskTimeout.
	expand := func(_ context.Context, followUps []*Question) []*Answer {
		release()
		return o.fanOut(ctx, r, followUps)
	}

	answer, err := o.synth.Answer(taskCtx, q, r.brief, expand)
	if err != nil {
		outcome := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
		metrics.Answers.WithLabelValues(depth, outcome).Inc()
		r.log.Warn("answer failed", "question_id", q.ID, "depth", q.Depth, "error", err)
		answer = failedAnswer(q, err)
	} else {
		metrics.Answers.WithLabelValues(depth, "ok").Inc()
	}
	r.pub.emit(Event{Stage: StageAnswering, Question: q, Answer: answer})
	return answer
}

func (o *Orchestrator) slot(depth int) *semaphore.Weighted {
	if depth >= len(o.slots) {
		return o.slots[len(o.slots)-1]
	}
	return o.slots[depth]
}

func failedAnswer(q *Question, err error) *Answer {
	return &Answer{Question: q, Depth: q.Depth, Error: err.Error()}
}

// publisher delivers one run's events to the observers in order on its own
// goroutine. emit never blocks; events are dropped if the buffer is full.
type publisher struct {
	run    *run
	ch     chan Event
	closed bool
	mu     sync.Mutex
}

func (o *Orchestrator) newPublisher(r *run) *publisher {
	p := &publisher{run: r}
	if len(o.observers) == 0 {
		return p
	}
	p.ch = make(chan Event, eventBuffer)
	o.pending.Add(1)
	go func() {
		defer o.pending.Done()
		for ev := range p.ch {
			for _, obs := range o.observers {
				ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
				obs.Observe(ctx, ev)
				cancel()
			}
		}
	}()
	return p
}

func (p *publisher) emit(ev Event) {
	if p.ch == nil {
		return
	}
	ev.RunID = p.run.id
	ev.CorrelationID = p.run.req.CorrelationID
	ev.Company = p.run.req.Company
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.ch <- ev:
	default:
		p.run.log.Warn("event dropped, observer backlog full", "stage", ev.Stage)
	}
}

func (p *publisher) close() {
	if p.ch == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.ch)
	}
}
