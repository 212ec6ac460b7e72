package research

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dgallion1/diligence/internal/doctree"
	"github.com/dgallion1/diligence/internal/fetch"
	"github.com/dgallion1/diligence/internal/llm"
	"github.com/dgallion1/diligence/internal/retrieval"
	"github.com/dgallion1/diligence/internal/search"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeModel records every request and answers through handle.
type fakeModel struct {
	mu       sync.Mutex
	requests []llm.Request
	handle   func(ctx context.Context, req llm.Request) (*llm.Response, error)
}

func (m *fakeModel) Invoke(ctx context.Context, req llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.handle(ctx, req)
}

func (m *fakeModel) calls(system string) []llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []llm.Request
	for _, r := range m.requests {
		if r.System == system {
			out = append(out, r)
		}
	}
	return out
}

func textResp(text string) *llm.Response {
	return &llm.Response{
		StopReason: llm.StopEndTurn,
		Message:    llm.Message{Role: llm.RoleAssistant, Content: []llm.Block{llm.TextBlock{Text: text}}},
	}
}

var toolIDs atomic.Int64

func toolResp(questions ...string) *llm.Response {
	var blocks []llm.Block
	for _, q := range questions {
		input, _ := json.Marshal(recordQuestionInput{Question: q})
		blocks = append(blocks, llm.ToolUseBlock{
			ID:    fmt.Sprintf("toolu_%d", toolIDs.Add(1)),
			Name:  recordQuestionTool,
			Input: input,
		})
	}
	return &llm.Response{
		StopReason: llm.StopToolUse,
		Message:    llm.Message{Role: llm.RoleAssistant, Content: blocks},
	}
}

// lastUserText is the text of the final user message of a request.
func lastUserText(req llm.Request) string {
	return req.Messages[len(req.Messages)-1].Text()
}

type oneLinkSearcher struct{}

func (oneLinkSearcher) Search(_ context.Context, query string, _ int) ([]search.Result, error) {
	return []search.Result{{Title: "Acme", URL: "https://www.acme.com/about", Rank: 1}}, nil
}

type fixedFetcher struct{ text string }

func (f fixedFetcher) Fetch(_ context.Context, rawURL string) (*fetch.Page, error) {
	return &fetch.Page{
		URL:   rawURL,
		Title: "About Acme",
		Tree:  &doctree.DocTree{Children: []*doctree.DocNode{{Text: f.text}}},
	}, nil
}

func acmeGateway() *retrieval.Gateway {
	return retrieval.NewGateway(oneLinkSearcher{}, fixedFetcher{text: "Acme makes widgets."}, nil, retrieval.Config{}, discardLogger())
}

// staticRetriever returns the same documents for every query and records
// the queries it saw.
type staticRetriever struct {
	mu      sync.Mutex
	docs    []retrieval.Document
	queries []string
}

func (r *staticRetriever) Retrieve(_ context.Context, query string) []retrieval.Document {
	r.mu.Lock()
	r.queries = append(r.queries, query)
	r.mu.Unlock()
	return r.docs
}
