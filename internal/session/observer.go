package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgallion1/diligence/internal/research"
)

// Transcriber writes progress lines for runs whose correlation id names an
// existing session. Runs without one are ignored.
type Transcriber struct {
	store *Store
	log   *slog.Logger
}

func NewTranscriber(store *Store, log *slog.Logger) *Transcriber {
	return &Transcriber{store: store, log: log}
}

// Observe implements research.Observer.
func (t *Transcriber) Observe(ctx context.Context, ev research.Event) {
	if ev.CorrelationID == "" {
		return
	}
	line := progressLine(ev)
	if line == "" {
		return
	}
	err := t.store.Append(ctx, ev.CorrelationID, line)
	if err != nil && !errors.Is(err, ErrNotFound) {
		t.log.Warn("session append failed", "session", ev.CorrelationID, "error", err)
	}
}

func progressLine(ev research.Event) string {
	switch ev.Stage {
	case research.StageInit:
		return fmt.Sprintf("Researching %s", ev.Company)
	case research.StageQuestionsGenerated:
		return "Questions generated"
	case research.StageAnswering:
		if ev.Answer == nil || ev.Question == nil {
			return ""
		}
		if ev.Answer.Error != "" {
			return fmt.Sprintf("[%s] failed: %s", ev.Question.ID, ev.Answer.Error)
		}
		return fmt.Sprintf("[%s] %s", ev.Question.ID, ev.Question.Text)
	case research.StageReporting:
		return "Writing report"
	case research.StageDone:
		return "Done\n\n" + ev.Report
	case research.StageFailed:
		if ev.Err != nil {
			return "Failed: " + ev.Err.Error()
		}
		return "Failed"
	}
	return ""
}
