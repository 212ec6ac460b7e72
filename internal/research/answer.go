package research

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgallion1/diligence/internal/chunker"
	"github.com/dgallion1/diligence/internal/llm"
	"github.com/dgallion1/diligence/internal/retrieval"
	"golang.org/x/sync/errgroup"
)

// Retriever turns a query into evidence documents.
type Retriever interface {
	Retrieve(ctx context.Context, query string) []retrieval.Document
}

// Brief is the run-wide context every answer is written against.
type Brief struct {
	Company  string
	Industry string
}

// Expander answers follow-up questions one level deeper and returns their
// answers in the order given.
type Expander func(ctx context.Context, questions []*Question) []*Answer

// Synthesizer answers one question from retrieved evidence and, while the
// depth budget allows, expands critical follow-ups beneath it.
type Synthesizer struct {
	invoker   Invoker
	retriever Retriever
	questions *Generator
	cfg       Config
	log       *slog.Logger
}

func NewSynthesizer(invoker Invoker, retriever Retriever, questions *Generator, cfg Config, log *slog.Logger) *Synthesizer {
	return &Synthesizer{
		invoker:   invoker,
		retriever: retriever,
		questions: questions,
		cfg:       cfg.withDefaults(),
		log:       log,
	}
}

// Answer researches q. Follow-ups are generated and handed to expand only
// when q.Depth < MaxDepth and expand is non-nil. A failed model call fails
// this answer; retrieval and summary problems only reduce the evidence.
func (s *Synthesizer) Answer(ctx context.Context, q *Question, brief Brief, expand Expander) (*Answer, error) {
	log := s.log.With("question_id", q.ID, "depth", q.Depth)

	query := s.searchQuery(ctx, q, brief, log)
	docs := s.retriever.Retrieve(ctx, query)
	log.Debug("evidence retrieved", "query", query, "documents", len(docs))

	evidence := docs
	if s.cfg.Summarize && len(docs) > 0 {
		evidence = s.summarize(ctx, q, brief, docs, log)
	}

	resp, err := s.invoker.Invoke(ctx, llm.Request{
		Model:       s.cfg.Models.Answer,
		System:      answerSystem,
		Messages:    llm.Conversation{llm.UserText(answerPrompt(brief.Company, brief.Industry, q.Text, evidence))},
		MaxTokens:   answerMaxTokens,
		Temperature: llm.Float(s.cfg.Temperature),
		TopP:        topP(s.cfg.TopP),
	})
	if err != nil {
		return nil, fmt.Errorf("answer %s: %w", q.ID, err)
	}

	answer := &Answer{
		Question: q,
		Text:     resp.Message.Text(),
		Depth:    q.Depth,
		Sources:  docs,
	}

	if q.Depth >= s.cfg.MaxDepth || expand == nil {
		return answer, nil
	}
	followUps, err := s.questions.Generate(ctx, GenerateRequest{
		Company:  brief.Company,
		Industry: brief.Industry,
		Parent:   q,
		Sources:  docs,
		Target:   s.cfg.FollowUpQuestions,
	})
	if err != nil {
		return nil, fmt.Errorf("follow-ups for %s: %w", q.ID, err)
	}
	if len(followUps) > 0 {
		answer.SubAnswers = expand(ctx, followUps)
	}
	return answer, nil
}

// searchQuery returns the query to search for q. With query rewriting on,
// the model proposes one; any failure falls back to the question text.
func (s *Synthesizer) searchQuery(ctx context.Context, q *Question, brief Brief, log *slog.Logger) string {
	if !s.cfg.RewriteQueries {
		return q.Text
	}
	resp, err := s.invoker.Invoke(ctx, llm.Request{
		Model:       s.cfg.Models.Summary,
		Messages:    llm.Conversation{llm.UserText(queryPrompt(brief.Company, q.Text))},
		MaxTokens:   queryMaxTokens,
		Temperature: llm.Float(0),
	})
	if err != nil {
		log.Warn("query rewrite failed", "error", err)
		return q.Text
	}
	query := strings.Trim(strings.TrimSpace(resp.Message.Text()), `"'`)
	if query == "" || strings.Contains(query, "\n") {
		return q.Text
	}
	return query
}

// summarize condenses each document concurrently. A document whose summary
// fails keeps its raw text.
func (s *Synthesizer) summarize(ctx context.Context, q *Question, brief Brief, docs []retrieval.Document, log *slog.Logger) []retrieval.Document {
	out := make([]retrieval.Document, len(docs))
	copy(out, docs)

	var eg errgroup.Group
	for i := range out {
		eg.Go(func() error {
			resp, err := s.invoker.Invoke(ctx, llm.Request{
				Model:       s.cfg.Models.Summary,
				System:      summarySystem,
				Messages:    llm.Conversation{llm.UserText(summaryPrompt(brief.Company, q.Text, out[i]))},
				MaxTokens:   summaryMaxTokens,
				Temperature: llm.Float(0),
			})
			if err != nil {
				log.Warn("source summary failed, using raw text", "url", out[i].URL, "error", err)
				return nil
			}
			if text := strings.TrimSpace(resp.Message.Text()); text != "" {
				out[i].Text = text
			}
			return nil
		})
	}
	eg.Wait()

	var tokens int
	for _, d := range out {
		tokens += chunker.EstimateTokens(d.Text)
	}
	log.Debug("evidence summarized", "documents", len(out), "est_tokens", tokens)
	return out
}
