package service

import (
	"context"

	"github.com/xxxsen/docqa/internal/engine"
	"github.com/xxxsen/docqa/internal/model"
)

type DocumentStore interface {
	Create(ctx context.Context, doc *model.Document) error
	GetByID(ctx context.Context, docID string) (*model.Document, error)
	List(ctx context.Context, limit, offset uint) ([]model.Document, error)
}

type ConversationStore interface {
	Create(ctx context.Context, conv *model.Conversation) error
	ListByDocument(ctx context.Context, docID string) ([]model.Conversation, error)
}

// AnalysisStarter schedules background analysis and must not block.
type AnalysisStarter interface {
	BeginAnalysis(docID, sourcePath string)
}

type DocumentLookup interface {
	Get(ctx context.Context, docID string) (*model.Document, error)
}

type WorkAreaResolver interface {
	Path(docID string) (string, error)
}

type Querier interface {
	Query(ctx context.Context, workArea, question string) (*engine.Answer, error)
}
