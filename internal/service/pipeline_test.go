package service_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docqa/internal/engine"
	"github.com/xxxsen/docqa/internal/model"
	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
	"github.com/xxxsen/docqa/internal/repo"
	"github.com/xxxsen/docqa/internal/runner"
	"github.com/xxxsen/docqa/internal/service"
	"github.com/xxxsen/docqa/internal/testutil"
)

const (
	analysisScript = `test -f "$1" || exit 3; echo "Loaded $1"; echo '[1,2]' > "$2/pages.json"`
	failingScript  = `echo "cannot parse $1" >&2; exit 2`
	queryScript    = `test -f "$1/pages.json" || { echo "missing index" >&2; exit 1; }; printf '{"answer":"It is a short note.","sources":[1]}'`
)

type pipeline struct {
	ingest   *service.IngestService
	query    *service.QueryService
	analysis *engine.AnalysisAdapter
	uploads  string
}

func newPipeline(t *testing.T, script string) *pipeline {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	conn, cleanup := testutil.OpenTestDB(t)
	t.Cleanup(cleanup)
	docRepo := repo.NewDocumentRepo(conn)
	convRepo := repo.NewConversationRepo(conn)
	areas := engine.NewWorkAreas(t.TempDir())
	exec := runner.NewExecRunner()

	var ingest *service.IngestService
	analysis, err := engine.NewAnalysisAdapter(docRepo, exec, areas,
		engine.Spec{Command: "/bin/sh", Args: []string{"-c", script, "analysis"}, Timeout: 10 * time.Second},
		engine.WithWorkers(2),
		engine.WithCompletion(func(docID string, state model.DocumentState, detail string) {
			ingest.OnAnalysisDone(docID, state, detail)
		}),
	)
	require.NoError(t, err)
	t.Cleanup(analysis.Release)
	ingest = service.NewIngestService(docRepo, analysis, service.WithDocumentCache(16, time.Minute))

	querier, err := engine.NewQueryAdapter(exec, engine.Spec{Command: "/bin/sh", Args: []string{"-c", queryScript, "query"}, Timeout: 10 * time.Second}, true)
	require.NoError(t, err)
	return &pipeline{
		ingest:   ingest,
		query:    service.NewQueryService(ingest, convRepo, areas, querier),
		analysis: analysis,
		uploads:  t.TempDir(),
	}
}

func (p *pipeline) upload(t *testing.T, name string) *model.Document {
	t.Helper()
	path := filepath.Join(p.uploads, name)
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4\n"), 0o644))
	doc, err := p.ingest.Ingest(context.Background(), service.IngestInput{
		Name:     name,
		Filepath: path,
		Size:     9,
		MimeType: "application/pdf",
	})
	require.NoError(t, err)
	return doc
}

func TestPipelineAnswersReadyDocument(t *testing.T) {
	p := newPipeline(t, analysisScript)
	ctx := context.Background()

	doc := p.upload(t, "notes.pdf")
	require.Equal(t, model.DocumentStateUnprocessed, doc.State)
	p.analysis.Wait()

	got, err := p.ingest.Get(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, model.DocumentStateReady, got.State)
	require.Empty(t, got.Error)

	answer, err := p.query.Answer(ctx, doc.ID, "What is the summary?")
	require.NoError(t, err)
	require.Equal(t, "It is a short note.", answer.Text)
	require.Equal(t, []int{1}, answer.Sources)

	convs, err := p.query.ListConversations(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	require.Equal(t, "What is the summary?", convs[0].Question)
	require.Equal(t, answer.Text, convs[0].Answer)
	require.Equal(t, answer.Sources, convs[0].Sources)
}

func TestPipelineFailedAnalysisBlocksQuestions(t *testing.T) {
	p := newPipeline(t, failingScript)
	ctx := context.Background()

	doc := p.upload(t, "broken.pdf")
	p.analysis.Wait()

	got, err := p.ingest.Get(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, model.DocumentStateFailed, got.State)
	require.Contains(t, got.Error, "2")

	for i := 0; i < 3; i++ {
		_, err := p.query.Answer(ctx, doc.ID, "What is the summary?")
		require.ErrorIs(t, err, appErr.ErrNotReady)
	}
	convs, err := p.query.ListConversations(ctx, doc.ID)
	require.NoError(t, err)
	require.Empty(t, convs)
}

func TestPipelineDocumentsProgressIndependently(t *testing.T) {
	p := newPipeline(t, analysisScript)
	ctx := context.Background()

	first := p.upload(t, "a.pdf")
	second := p.upload(t, "b.pdf")
	require.NotEqual(t, first.ID, second.ID)
	p.analysis.Wait()

	docs, err := p.ingest.List(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	for _, doc := range docs {
		require.Equal(t, model.DocumentStateReady, doc.State)
	}
}
