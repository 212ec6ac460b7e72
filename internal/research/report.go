package research

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dgallion1/diligence/internal/llm"
)

// FallbackReport is returned when the report cannot be synthesized.
const FallbackReport = "Report unavailable: the research answers were collected but the summary report could not be generated."

// Reporter compresses question/answer pairs into one narrative report.
type Reporter struct {
	invoker Invoker
	cfg     Config
	log     *slog.Logger
}

func NewReporter(invoker Invoker, cfg Config, log *slog.Logger) *Reporter {
	return &Reporter{invoker: invoker, cfg: cfg.withDefaults(), log: log}
}

// Synthesize writes the report. Only depth-0 pairs are used unless
// ReportFollowUps is set. It never fails: no usable pairs or a failed model
// call yields FallbackReport.
func (r *Reporter) Synthesize(ctx context.Context, pairs []Pair, company, industry string) string {
	var used []Pair
	for _, p := range pairs {
		if p.Depth == 0 || r.cfg.ReportFollowUps {
			used = append(used, p)
		}
	}
	if len(used) == 0 {
		r.log.Warn("no answers to report on", "company", company)
		return FallbackReport
	}

	resp, err := r.invoker.Invoke(ctx, llm.Request{
		Model:       r.cfg.Models.Report,
		System:      reportSystem,
		Messages:    llm.Conversation{llm.UserText(reportPrompt(company, industry, used))},
		MaxTokens:   reportMaxTokens,
		Temperature: llm.Float(r.cfg.Temperature),
		TopP:        topP(r.cfg.TopP),
	})
	if err != nil {
		r.log.Error("report synthesis failed", "company", company, "error", err)
		return FallbackReport
	}
	report := strings.TrimSpace(resp.Message.Text())
	if report == "" {
		r.log.Warn("report synthesis returned no text", "company", company)
		return FallbackReport
	}
	return report
}
