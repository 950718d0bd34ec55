package service

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/xxxsen/docqa/internal/engine"
	"github.com/xxxsen/docqa/internal/model"
	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
)

type fakeDocumentStore struct {
	mu        sync.Mutex
	docs      map[string]model.Document
	createErr error
	listErr   error
	getCalls  int
}

func newFakeDocumentStore() *fakeDocumentStore {
	return &fakeDocumentStore{docs: make(map[string]model.Document)}
}

func (f *fakeDocumentStore) Create(ctx context.Context, doc *model.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.docs[doc.ID]; ok {
		return appErr.ErrConflict
	}
	f.docs[doc.ID] = *doc
	return nil
}

func (f *fakeDocumentStore) GetByID(ctx context.Context, docID string) (*model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	doc, ok := f.docs[docID]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return &doc, nil
}

func (f *fakeDocumentStore) List(ctx context.Context, limit, offset uint) ([]model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var docs []model.Document
	for _, doc := range f.docs {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].Ctime == docs[j].Ctime {
			return docs[i].ID > docs[j].ID
		}
		return docs[i].Ctime > docs[j].Ctime
	})
	return docs, nil
}

func (f *fakeDocumentStore) put(doc model.Document) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[doc.ID] = doc
}

func (f *fakeDocumentStore) setState(docID string, state model.DocumentState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc := f.docs[docID]
	doc.State = state
	f.docs[docID] = doc
}

func (f *fakeDocumentStore) gets() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getCalls
}

type analysisCall struct {
	docID      string
	sourcePath string
}

type fakeAnalysis struct {
	mu    sync.Mutex
	calls []analysisCall
}

func (f *fakeAnalysis) BeginAnalysis(docID, sourcePath string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, analysisCall{docID: docID, sourcePath: sourcePath})
}

func (f *fakeAnalysis) Calls() []analysisCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]analysisCall(nil), f.calls...)
}

type fakeConversationStore struct {
	mu        sync.Mutex
	convs     []model.Conversation
	createErr error
}

func (f *fakeConversationStore) Create(ctx context.Context, conv *model.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.convs = append(f.convs, *conv)
	return nil
}

func (f *fakeConversationStore) ListByDocument(ctx context.Context, docID string) ([]model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Conversation
	for _, conv := range f.convs {
		if conv.DocumentID == docID {
			out = append(out, conv)
		}
	}
	return out, nil
}

func (f *fakeConversationStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.convs)
}

type queryCall struct {
	workArea string
	question string
}

type fakeQuerier struct {
	mu     sync.Mutex
	calls  []queryCall
	answer *engine.Answer
	err    error
}

func (f *fakeQuerier) Query(ctx context.Context, workArea, question string) (*engine.Answer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, queryCall{workArea: workArea, question: question})
	if f.err != nil {
		return nil, f.err
	}
	return &engine.Answer{Text: f.answer.Text, Sources: append([]int{}, f.answer.Sources...)}, nil
}

func (f *fakeQuerier) Calls() []queryCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]queryCall(nil), f.calls...)
}

var errBoom = errors.New("boom")
