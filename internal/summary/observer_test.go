package summary

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/dgallion1/diligence/internal/research"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_StoresDoneReportOnly(t *testing.T) {
	store := NewMemoryStore()
	rec := NewRecorder(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	rec.Observe(ctx, research.Event{RunID: "r1", Stage: research.StageAnswering})
	rec.Observe(ctx, research.Event{RunID: "r1", Stage: research.StageReporting})
	_, err := store.Get(ctx, "r1")
	assert.ErrorIs(t, err, ErrNotFound)

	rec.Observe(ctx, research.Event{RunID: "r1", Stage: research.StageDone, Report: "Acme Overview"})
	got, err := store.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "Acme Overview", got.Content)
}
