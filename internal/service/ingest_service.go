package service

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docqa/internal/filestore"
	"github.com/xxxsen/docqa/internal/model"
	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
)

type IngestInput struct {
	Name      string
	Filename  string
	Filepath  string
	Size      int64
	MimeType  string
	PageCount int
}

type IngestOption func(*IngestService)

// WithArchive copies every ingested file to store. Archive failures are logged only.
func WithArchive(store filestore.Store) IngestOption {
	return func(s *IngestService) {
		s.archive = store
	}
}

// WithDocumentCache keeps documents in a terminal state in memory. A non-positive size
// or ttl disables the cache.
func WithDocumentCache(size int, ttl time.Duration) IngestOption {
	return func(s *IngestService) {
		if size <= 0 || ttl <= 0 {
			s.cache = nil
			return
		}
		s.cache = expirable.NewLRU[string, model.Document](size, nil, ttl)
	}
}

func WithIngestClock(now func() time.Time) IngestOption {
	return func(s *IngestService) {
		if now != nil {
			s.now = now
		}
	}
}

type IngestService struct {
	documents DocumentStore
	analysis  AnalysisStarter
	archive   filestore.Store
	cache     *expirable.LRU[string, model.Document]
	now       func() time.Time
}

func NewIngestService(documents DocumentStore, analysis AnalysisStarter, opts ...IngestOption) *IngestService {
	s := &IngestService{documents: documents, analysis: analysis, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest records an uploaded file as an unprocessed document and schedules its analysis.
// The returned document is still unprocessed; callers poll Get for progress.
func (s *IngestService) Ingest(ctx context.Context, input IngestInput) (*model.Document, error) {
	doc, err := model.NewDocument(newID(), model.NewDocumentInput{
		Name:      input.Name,
		Filename:  input.Filename,
		Filepath:  input.Filepath,
		Size:      input.Size,
		MimeType:  input.MimeType,
		PageCount: input.PageCount,
	}, s.now().UnixMilli())
	if err != nil {
		return nil, appErr.Invalid("%s", err.Error())
	}
	if err := s.documents.Create(ctx, doc); err != nil {
		return nil, appErr.Store(err)
	}
	logger := logutil.GetLogger(ctx).With(zap.String("doc_id", doc.ID))
	logger.Info("document created", zap.String("name", doc.Name), zap.Int64("size", doc.Size), zap.Int("pages", doc.PageCount))
	s.archiveFile(ctx, doc)
	s.analysis.BeginAnalysis(doc.ID, doc.Filepath)
	return doc, nil
}

func (s *IngestService) archiveFile(ctx context.Context, doc *model.Document) {
	if s.archive == nil {
		return
	}
	logger := logutil.GetLogger(ctx).With(zap.String("doc_id", doc.ID), zap.String("store", s.archive.Type()))
	file, err := os.Open(doc.Filepath)
	if err != nil {
		logger.Warn("archive document failed", zap.Error(err))
		return
	}
	defer file.Close()
	key := doc.ID + filepath.Ext(doc.Filepath)
	if err := s.archive.Save(ctx, key, file, doc.Size); err != nil {
		logger.Warn("archive document failed", zap.Error(err))
		return
	}
	logger.Debug("document archived", zap.String("key", key))
}

// List returns every document, newest first.
func (s *IngestService) List(ctx context.Context) ([]model.Document, error) {
	docs, err := s.documents.List(ctx, 0, 0)
	if err != nil {
		return nil, appErr.Store(err)
	}
	if docs == nil {
		docs = []model.Document{}
	}
	return docs, nil
}

func (s *IngestService) Get(ctx context.Context, docID string) (*model.Document, error) {
	if s.cache != nil {
		if cached, ok := s.cache.Get(docID); ok {
			return &cached, nil
		}
	}
	doc, err := s.documents.GetByID(ctx, docID)
	if err != nil {
		return nil, appErr.Store(err)
	}
	if s.cache != nil && doc.State.Terminal() {
		s.cache.Add(doc.ID, *doc)
	}
	return doc, nil
}

// OnAnalysisDone receives every terminal state written by the analysis adapter or the
// stale sweep.
func (s *IngestService) OnAnalysisDone(docID string, state model.DocumentState, detail string) {
	if s.cache != nil {
		s.cache.Remove(docID)
	}
	logger := logutil.GetLogger(context.Background()).With(zap.String("doc_id", docID), zap.String("state", string(state)))
	if state == model.DocumentStateFailed {
		logger.Warn("document analysis failed", zap.String("detail", detail))
		return
	}
	logger.Info("document analysis completed")
}
