package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/diligence/internal/metrics"
)

// Invoker wraps an Endpoint with throttle-only retry and tool-call cleanup.
// It holds no conversation state and is safe for concurrent use.
type Invoker struct {
	endpoint    Endpoint
	maxAttempts int
	log         *slog.Logger
	Stats       *Stats

	backoff func(attempt int) time.Duration
	wait    func(ctx context.Context, d time.Duration) error
}

func NewInvoker(endpoint Endpoint, maxAttempts int, log *slog.Logger) *Invoker {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Invoker{
		endpoint:    endpoint,
		maxAttempts: maxAttempts,
		log:         log,
		Stats:       NewStats(time.Hour),
		backoff:     Backoff,
		wait:        sleepCtx,
	}
}

// Invoke calls the endpoint. Throttling is retried with Backoff up to the
// attempt ceiling, after which ErrModelUnavailable is returned. Any other
// failure is returned immediately.
func (i *Invoker) Invoke(ctx context.Context, req Request) (*Response, error) {
	var lastErr error
	for attempt := range i.maxAttempts {
		start := time.Now()
		resp, err := i.endpoint.Invoke(ctx, req)
		elapsed := time.Since(start)
		i.Stats.Record(req.Model, elapsed.Milliseconds())
		metrics.ModelLatency.WithLabelValues(req.Model).Observe(elapsed.Seconds())

		if err == nil {
			metrics.ModelInvocations.WithLabelValues(req.Model, "ok").Inc()
			resp.Message = keepToolCalls(resp.Message)
			return resp, nil
		}
		if !IsThrottled(err) {
			metrics.ModelInvocations.WithLabelValues(req.Model, "error").Inc()
			return nil, fmt.Errorf("invoke %s: %w", req.Model, err)
		}

		metrics.ModelInvocations.WithLabelValues(req.Model, "throttled").Inc()
		lastErr = err
		if attempt == i.maxAttempts-1 {
			break
		}
		delay := i.backoff(attempt)
		i.log.Warn("model throttled, backing off",
			"model", req.Model, "attempt", attempt, "delay_ms", delay.Milliseconds(), "error", err)
		metrics.ModelRetries.WithLabelValues(req.Model).Inc()
		if err := i.wait(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s throttled on %d attempts: %w", ErrModelUnavailable, req.Model, i.maxAttempts, lastErr)
}

// keepToolCalls drops free-text blocks from a turn that also carries tool
// invocations, so the history continues with tool calls only.
func keepToolCalls(m Message) Message {
	calls := m.ToolCalls()
	if len(calls) == 0 || len(calls) == len(m.Content) {
		return m
	}
	blocks := make([]Block, 0, len(calls))
	for _, c := range calls {
		blocks = append(blocks, c)
	}
	return Message{Role: m.Role, Content: blocks}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
