package summary

import (
	"context"
	"log/slog"

	"github.com/dgallion1/diligence/internal/research"
)

// Recorder stores each finished run's report under its run id.
type Recorder struct {
	store Store
	log   *slog.Logger
}

func NewRecorder(store Store, log *slog.Logger) *Recorder {
	return &Recorder{store: store, log: log}
}

// Observe implements research.Observer.
func (r *Recorder) Observe(ctx context.Context, ev research.Event) {
	if ev.Stage != research.StageDone || ev.Report == "" {
		return
	}
	if err := r.store.Update(ctx, ev.RunID, ev.Report); err != nil {
		r.log.Warn("summary update failed", "run_id", ev.RunID, "error", err)
	}
}
