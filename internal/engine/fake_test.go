package engine

import (
	"context"
	"sync"

	"github.com/xxxsen/docqa/internal/model"
	"github.com/xxxsen/docqa/internal/runner"
)

type fakeRunner struct {
	mu     sync.Mutex
	calls  []runner.Command
	result *runner.Result
	err    error
	lines  []string
}

func (f *fakeRunner) Run(ctx context.Context, cmd runner.Command) (*runner.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cmd)
	res := *f.result
	return &res, f.err
}

func (f *fakeRunner) Stream(ctx context.Context, cmd runner.Command, onLine runner.LineHandler) (*runner.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	res := *f.result
	lines := f.lines
	f.mu.Unlock()
	for _, line := range lines {
		onLine(runner.StreamStdout, line)
	}
	return &res, f.err
}

func (f *fakeRunner) Calls() []runner.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]runner.Command(nil), f.calls...)
}

type stateRecord struct {
	state  model.DocumentState
	detail string
}

type fakeStateStore struct {
	mu      sync.Mutex
	docs    map[string]stateRecord
	history map[string][]model.DocumentState
}

func newFakeStateStore(ids ...string) *fakeStateStore {
	s := &fakeStateStore{docs: map[string]stateRecord{}, history: map[string][]model.DocumentState{}}
	for _, id := range ids {
		s.docs[id] = stateRecord{state: model.DocumentStateUnprocessed}
	}
	return s
}

func (s *fakeStateStore) UpdateStateIf(ctx context.Context, docID string, from, to model.DocumentState, detail string, mtime int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.docs[docID]
	if !ok || rec.state != from {
		return false, nil
	}
	s.docs[docID] = stateRecord{state: to, detail: detail}
	s.history[docID] = append(s.history[docID], to)
	return true, nil
}

func (s *fakeStateStore) get(docID string) stateRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docs[docID]
}

func (s *fakeStateStore) transitions(docID string) []model.DocumentState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.DocumentState(nil), s.history[docID]...)
}
