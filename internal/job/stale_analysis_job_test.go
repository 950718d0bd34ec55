package job

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docqa/internal/engine"
	"github.com/xxxsen/docqa/internal/model"
	"github.com/xxxsen/docqa/internal/repo"
	"github.com/xxxsen/docqa/internal/runner"
	"github.com/xxxsen/docqa/internal/testutil"
)

func TestStaleAnalysisJobFailsStuckDocuments(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	docs := repo.NewDocumentRepo(db)
	ctx := context.Background()
	now := time.UnixMilli(10_000_000)

	seed := func(id string, state model.DocumentState, mtime int64) {
		doc, err := model.NewDocument(id, model.NewDocumentInput{
			Name:     id + ".pdf",
			Filepath: "/uploads/" + id + ".pdf",
			Size:     1,
			MimeType: "application/pdf",
		}, mtime)
		require.NoError(t, err)
		doc.State = state
		require.NoError(t, docs.Create(ctx, doc))
	}
	old := now.Add(-2 * time.Hour).UnixMilli()
	recent := now.Add(-time.Minute).UnixMilli()
	seed("stuck-processing", model.DocumentStateProcessing, old)
	seed("stuck-unprocessed", model.DocumentStateUnprocessed, old)
	seed("running", model.DocumentStateProcessing, recent)
	seed("ready", model.DocumentStateReady, old)

	var failed []string
	j := NewStaleAnalysisJob(docs, time.Hour, func(docID string, state model.DocumentState, detail string) {
		require.Equal(t, model.DocumentStateFailed, state)
		require.Equal(t, "analysis abandoned", detail)
		failed = append(failed, docID)
	})
	j.now = func() time.Time { return now }
	require.Equal(t, "stale_analysis_sweep", j.Name())
	require.NoError(t, j.Run(ctx))
	require.ElementsMatch(t, []string{"stuck-processing", "stuck-unprocessed"}, failed)

	for id, want := range map[string]model.DocumentState{
		"stuck-processing":  model.DocumentStateFailed,
		"stuck-unprocessed": model.DocumentStateFailed,
		"running":           model.DocumentStateProcessing,
		"ready":             model.DocumentStateReady,
	} {
		doc, err := docs.GetByID(ctx, id)
		require.NoError(t, err)
		require.Equal(t, want, doc.State, id)
	}
	got, err := docs.GetByID(ctx, "stuck-processing")
	require.NoError(t, err)
	require.Equal(t, "analysis abandoned", got.Error)

	failed = nil
	require.NoError(t, j.Run(ctx))
	require.Empty(t, failed)
}

type gatedRunner struct {
	release chan struct{}
}

func (g *gatedRunner) Run(ctx context.Context, cmd runner.Command) (*runner.Result, error) {
	<-g.release
	return &runner.Result{ExitCode: 0}, nil
}

func (g *gatedRunner) Stream(ctx context.Context, cmd runner.Command, onLine runner.LineHandler) (*runner.Result, error) {
	<-g.release
	return &runner.Result{ExitCode: 0}, nil
}

func TestStaleAnalysisJobSkipsQueuedDocuments(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	docs := repo.NewDocumentRepo(db)
	ctx := context.Background()
	created := time.Now().Add(-3 * time.Hour).UnixMilli()

	r := &gatedRunner{release: make(chan struct{})}
	adapter, err := engine.NewAnalysisAdapter(docs, r, engine.NewWorkAreas(t.TempDir()),
		engine.Spec{Command: "python3", Args: []string{"process_document.py"}}, engine.WithWorkers(1))
	require.NoError(t, err)
	defer adapter.Release()

	ids := []string{"queued-1", "queued-2", "queued-3"}
	for _, id := range ids {
		doc, err := model.NewDocument(id, model.NewDocumentInput{
			Name:     id + ".pdf",
			Filepath: "/uploads/" + id + ".pdf",
			Size:     1,
			MimeType: "application/pdf",
		}, created)
		require.NoError(t, err)
		require.NoError(t, docs.Create(ctx, doc))
		adapter.BeginAnalysis(id, doc.Filepath)
	}
	for _, id := range ids {
		require.True(t, adapter.InFlight(id), id)
	}

	var failed []string
	j := NewStaleAnalysisJob(docs, time.Hour, func(docID string, state model.DocumentState, detail string) {
		failed = append(failed, docID)
	}, WithInFlight(adapter.InFlight))
	j.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	require.NoError(t, j.Run(ctx))
	require.Empty(t, failed)

	close(r.release)
	adapter.Wait()
	for _, id := range ids {
		require.False(t, adapter.InFlight(id), id)
		doc, err := docs.GetByID(ctx, id)
		require.NoError(t, err)
		require.Equal(t, model.DocumentStateReady, doc.State, id)
	}
}
