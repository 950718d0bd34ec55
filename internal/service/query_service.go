package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docqa/internal/engine"
	"github.com/xxxsen/docqa/internal/model"
	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
)

type QueryService struct {
	documents     DocumentLookup
	conversations ConversationStore
	areas         WorkAreaResolver
	querier       Querier
	now           func() time.Time
}

func NewQueryService(documents DocumentLookup, conversations ConversationStore, areas WorkAreaResolver, querier Querier) *QueryService {
	return &QueryService{
		documents:     documents,
		conversations: conversations,
		areas:         areas,
		querier:       querier,
		now:           time.Now,
	}
}

// Answer runs the query engine against a ready document and records the exchange.
// Nothing is recorded when the engine fails.
func (s *QueryService) Answer(ctx context.Context, docID, question string) (*engine.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, appErr.Invalid("question is required")
	}
	doc, err := s.documents.Get(ctx, docID)
	if err != nil {
		return nil, err
	}
	if !doc.Ready() {
		return nil, fmt.Errorf("%w: document %s is %s", appErr.ErrNotReady, doc.ID, doc.State)
	}
	area, err := s.areas.Path(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", appErr.ErrInternal, err)
	}
	logger := logutil.GetLogger(ctx).With(zap.String("doc_id", doc.ID))
	start := time.Now()
	answer, err := s.querier.Query(ctx, area, question)
	if err != nil {
		logger.Error("query engine failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		return nil, err
	}
	conv, err := model.NewConversation(newID(), doc.ID, question, answer.Text, answer.Sources, s.now().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", appErr.ErrInternal, err)
	}
	if err := s.conversations.Create(ctx, conv); err != nil {
		return nil, appErr.Store(err)
	}
	logger.Info("question answered", zap.String("conversation_id", conv.ID), zap.Duration("duration", time.Since(start)))
	return &engine.Answer{Text: conv.Answer, Sources: conv.Sources}, nil
}

// ListConversations returns the exchanges recorded for a document, oldest first.
func (s *QueryService) ListConversations(ctx context.Context, docID string) ([]model.Conversation, error) {
	if _, err := s.documents.Get(ctx, docID); err != nil {
		return nil, err
	}
	convs, err := s.conversations.ListByDocument(ctx, docID)
	if err != nil {
		return nil, appErr.Store(err)
	}
	if convs == nil {
		convs = []model.Conversation{}
	}
	return convs, nil
}
