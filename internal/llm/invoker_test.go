package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedEndpoint struct {
	mu    sync.Mutex
	steps []func(Request) (*Response, error)
	calls int
}

func (e *scriptedEndpoint) Invoke(_ context.Context, req Request) (*Response, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	step := e.steps[min(e.calls, len(e.steps)-1)]
	e.calls++
	return step(req)
}

func throttled(Request) (*Response, error) {
	return nil, &ThrottledError{StatusCode: 429, Message: "slow down"}
}

func textReply(text string) func(Request) (*Response, error) {
	return func(Request) (*Response, error) {
		return &Response{
			StopReason: StopEndTurn,
			Message:    Message{Role: RoleAssistant, Content: []Block{TextBlock{Text: text}}},
		}, nil
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestInvoker(ep Endpoint, attempts int) (*Invoker, *[]time.Duration) {
	inv := NewInvoker(ep, attempts, discardLogger())
	var waits []time.Duration
	inv.wait = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return inv, &waits
}

func TestInvoke_RetriesThrottleThenSucceeds(t *testing.T) {
	ep := &scriptedEndpoint{steps: []func(Request) (*Response, error){throttled, throttled, textReply("ok")}}
	inv, waits := newTestInvoker(ep, 5)

	resp, err := inv.Invoke(context.Background(), Request{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Message.Text())
	assert.Equal(t, 3, ep.calls)

	require.Len(t, *waits, 2)
	for k, d := range *waits {
		floor := time.Duration(1<<k) * time.Second
		assert.GreaterOrEqual(t, d, floor, "attempt %d", k)
		assert.Less(t, d, floor+time.Second, "attempt %d", k)
		if k > 0 {
			assert.GreaterOrEqual(t, d, (*waits)[k-1])
		}
	}
}

func TestInvoke_NonThrottleErrorIsNotRetried(t *testing.T) {
	authErr := &APIError{StatusCode: 401, Message: "bad key"}
	ep := &scriptedEndpoint{steps: []func(Request) (*Response, error){
		func(Request) (*Response, error) { return nil, authErr },
	}}
	inv, waits := newTestInvoker(ep, 5)

	_, err := inv.Invoke(context.Background(), Request{Model: "m"})
	require.Error(t, err)
	var apiErr *APIError
	assert.True(t, errors.As(err, &apiErr))
	assert.False(t, errors.Is(err, ErrModelUnavailable))
	assert.Equal(t, 1, ep.calls)
	assert.Empty(t, *waits)
}

func TestInvoke_CeilingExceeded(t *testing.T) {
	ep := &scriptedEndpoint{steps: []func(Request) (*Response, error){throttled}}
	inv, waits := newTestInvoker(ep, 3)

	_, err := inv.Invoke(context.Background(), Request{Model: "m"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrModelUnavailable))
	assert.True(t, IsThrottled(err))
	assert.Equal(t, 3, ep.calls)
	assert.Len(t, *waits, 2)
}

func TestInvoke_ContextCancelledDuringBackoff(t *testing.T) {
	ep := &scriptedEndpoint{steps: []func(Request) (*Response, error){throttled}}
	inv := NewInvoker(ep, 5, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := inv.Invoke(ctx, Request{Model: "m"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, ep.calls)
}

func TestInvoke_DropsTextBesideToolCalls(t *testing.T) {
	ep := &scriptedEndpoint{steps: []func(Request) (*Response, error){
		func(Request) (*Response, error) {
			return &Response{
				StopReason: StopToolUse,
				Message: Message{Role: RoleAssistant, Content: []Block{
					TextBlock{Text: "Here are some questions."},
					ToolUseBlock{ID: "t1", Name: "record_question", Input: json.RawMessage(`{"question":"a"}`)},
					TextBlock{Text: "And another."},
					ToolUseBlock{ID: "t2", Name: "record_question", Input: json.RawMessage(`{"question":"b"}`)},
				}},
			}, nil
		},
	}}
	inv, _ := newTestInvoker(ep, 1)

	resp, err := inv.Invoke(context.Background(), Request{Model: "m"})
	require.NoError(t, err)
	require.Len(t, resp.Message.Content, 2)
	assert.Equal(t, "", resp.Message.Text())
	calls := resp.Message.ToolCalls()
	assert.Equal(t, "t1", calls[0].ID)
	assert.Equal(t, "t2", calls[1].ID)
}

func TestInvoke_TextOnlyResponseUntouched(t *testing.T) {
	ep := &scriptedEndpoint{steps: []func(Request) (*Response, error){textReply("plain answer")}}
	inv, _ := newTestInvoker(ep, 1)

	resp, err := inv.Invoke(context.Background(), Request{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "plain answer", resp.Message.Text())
}

func TestInvoke_RecordsStats(t *testing.T) {
	ep := &scriptedEndpoint{steps: []func(Request) (*Response, error){textReply("ok")}}
	inv, _ := newTestInvoker(ep, 1)

	_, err := inv.Invoke(context.Background(), Request{Model: "answer-model"})
	require.NoError(t, err)
	snap := inv.Stats.Snapshot()
	assert.Equal(t, 1, snap["answer-model"].Count)
}

func TestBackoff_Bounds(t *testing.T) {
	for attempt := 0; attempt < 8; attempt++ {
		base := time.Duration(1<<attempt) * time.Second
		if base > 30*time.Second {
			base = 30 * time.Second
		}
		for range 20 {
			d := Backoff(attempt)
			assert.GreaterOrEqual(t, d, base)
			assert.Less(t, d, base+time.Second)
		}
	}
}

func TestConversation_WithDoesNotAlias(t *testing.T) {
	base := Conversation{UserText("first")}
	a := base.With(UserText("a"))
	b := base.With(UserText("b"))

	assert.Len(t, base, 1)
	assert.Equal(t, "a", a[1].Text())
	assert.Equal(t, "b", b[1].Text())
}
