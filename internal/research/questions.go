package research

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/dgallion1/diligence/internal/llm"
	"github.com/dgallion1/diligence/internal/retrieval"
)

// Invoker is the model call the research components depend on.
type Invoker interface {
	Invoke(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// GenerateRequest asks for questions about a company. With Parent and
// Sources set it asks for critical follow-ups to Parent instead of a
// top-level set.
type GenerateRequest struct {
	Company  string
	Industry string
	Topics   []string
	Parent   *Question
	Sources  []retrieval.Document
	Target   int
}

func (r GenerateRequest) critical() bool { return r.Parent != nil }

// Generator produces questions by having the model call record_question
// once per question.
type Generator struct {
	invoker Invoker
	cfg     Config
	log     *slog.Logger
}

func NewGenerator(invoker Invoker, cfg Config, log *slog.Logger) *Generator {
	return &Generator{invoker: invoker, cfg: cfg.withDefaults(), log: log}
}

type recordQuestionInput struct {
	Question string `json:"question"`
}

// Generate runs the tool-calling conversation until Target questions are
// collected, the model stops twice without calling the tool, or the turn
// budget runs out. It returns between 0 and Target questions; only a failed
// model call is an error.
func (g *Generator) Generate(ctx context.Context, req GenerateRequest) ([]*Question, error) {
	if req.Target <= 0 {
		return nil, nil
	}

	var prompt string
	if req.critical() {
		prompt = followUpQuestionPrompt(req.Company, req.Parent, req.Sources, req.Target)
	} else {
		prompt = topLevelQuestionPrompt(req.Company, req.Industry, req.Topics, req.Target)
	}
	conv := llm.Conversation{llm.UserText(prompt)}

	var texts []string
	seen := make(map[string]bool)
	idle := 0
	turn := 0
	for ; turn < g.cfg.QuestionTurns && len(texts) < req.Target; turn++ {
		resp, err := g.invoker.Invoke(ctx, llm.Request{
			Model:       g.cfg.Models.Questions,
			System:      questionSystem,
			Messages:    conv,
			Tools:       []llm.Tool{questionTool},
			MaxTokens:   questionMaxTokens,
			Temperature: llm.Float(g.cfg.Temperature),
			TopP:        topP(g.cfg.TopP),
		})
		if err != nil {
			return nil, fmt.Errorf("generate questions: %w", err)
		}
		if len(resp.Message.Content) > 0 {
			conv = conv.With(resp.Message)
		}

		calls := resp.Message.ToolCalls()
		if len(calls) == 0 {
			idle++
			if idle >= 2 {
				break
			}
			conv = conv.With(llm.UserText(nudgePrompt(req.Target - len(texts))))
			continue
		}
		idle = 0

		results := make([]llm.Block, 0, len(calls))
		for _, call := range calls {
			text, reason := g.accept(call, req, seen)
			if reason != "" {
				results = append(results, llm.ToolResultBlock{ToolUseID: call.ID, Content: "rejected: " + reason, IsError: true})
				continue
			}
			seen[normalizeQuestion(text)] = true
			texts = append(texts, text)
			results = append(results, llm.ToolResultBlock{ToolUseID: call.ID, Content: "recorded"})
		}
		conv = conv.With(llm.Message{Role: llm.RoleUser, Content: results})
	}

	if turn >= g.cfg.QuestionTurns && len(texts) < req.Target {
		g.log.Info("question turn budget exhausted",
			"company", req.Company, "collected", len(texts), "target", req.Target)
	}
	if len(texts) > req.Target {
		texts = texts[:req.Target]
	}

	questions := make([]*Question, len(texts))
	for i, t := range texts {
		if req.Parent != nil {
			questions[i] = req.Parent.Child(i+1, t)
		} else {
			questions[i] = &Question{ID: fmt.Sprintf("q%d", i+1), Text: t}
		}
	}
	return questions, nil
}

// accept returns the question text of a tool call, or a rejection reason.
func (g *Generator) accept(call llm.ToolUseBlock, req GenerateRequest, seen map[string]bool) (string, string) {
	if call.Name != recordQuestionTool {
		return "", "unknown tool " + call.Name
	}
	var in recordQuestionInput
	if err := json.Unmarshal(call.Input, &in); err != nil {
		return "", "input is not valid JSON"
	}
	text := strings.Join(strings.Fields(in.Question), " ")
	if reason := validateQuestion(text); reason != "" {
		return "", reason
	}
	if req.critical() && !strings.Contains(strings.ToLower(text), strings.ToLower(req.Company)) {
		return "", fmt.Sprintf("question must name %q", req.Company)
	}
	if seen[normalizeQuestion(text)] {
		return "", "duplicate question"
	}
	return text, ""
}

var injectionPattern = regexp.MustCompile(
	`(?i)(ignore\s+(previous|all|above)|system\s*prompt|you\s+are\s+now|` +
		`forget\s+(everything|all)|new\s+instructions)`,
)

// validateQuestion returns why text is not an acceptable question, or "".
func validateQuestion(text string) string {
	switch {
	case len(text) < 10:
		return "question too short"
	case len(text) > 400:
		return "question too long"
	case injectionPattern.MatchString(text):
		return "question contains instructions"
	}
	return ""
}

func normalizeQuestion(text string) string {
	return strings.ToLower(strings.TrimRight(text, "?. "))
}

func topP(v float64) *float64 {
	if v <= 0 {
		return nil
	}
	return llm.Float(v)
}
