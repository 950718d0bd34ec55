package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docqa/internal/model"
	"github.com/xxxsen/docqa/internal/runner"
)

// StateStore is the part of the record store the analysis adapter writes to.
type StateStore interface {
	UpdateStateIf(ctx context.Context, docID string, from, to model.DocumentState, detail string, mtime int64) (bool, error)
}

// CompletionFunc observes the terminal state written for a document.
type CompletionFunc func(docID string, state model.DocumentState, detail string)

type AnalysisOption func(*AnalysisAdapter)

func WithWorkers(size int) AnalysisOption {
	return func(a *AnalysisAdapter) {
		if size > 0 {
			a.workers = size
		}
	}
}

func WithCompletion(fn CompletionFunc) AnalysisOption {
	return func(a *AnalysisAdapter) {
		a.onDone = fn
	}
}

func WithClock(now func() time.Time) AnalysisOption {
	return func(a *AnalysisAdapter) {
		if now != nil {
			a.now = now
		}
	}
}

// AnalysisAdapter runs one analysis job per document in the background. Jobs are
// executed on a bounded ants pool; callers never wait for them.
type AnalysisAdapter struct {
	store   StateStore
	runner  runner.Runner
	areas   *WorkAreas
	spec    Spec
	pool    *ants.Pool
	workers int
	onDone  CompletionFunc
	now     func() time.Time
	wg      sync.WaitGroup

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewAnalysisAdapter(store StateStore, r runner.Runner, areas *WorkAreas, spec Spec, opts ...AnalysisOption) (*AnalysisAdapter, error) {
	if store == nil || r == nil || areas == nil {
		return nil, fmt.Errorf("analysis adapter requires store, runner and work areas")
	}
	if spec.Command == "" {
		return nil, fmt.Errorf("analysis engine command is required")
	}
	a := &AnalysisAdapter{
		store:    store,
		runner:   r,
		areas:    areas,
		spec:     spec,
		workers:  4,
		now:      time.Now,
		inflight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	pool, err := ants.NewPool(a.workers)
	if err != nil {
		return nil, fmt.Errorf("create analysis pool: %w", err)
	}
	a.pool = pool
	return a, nil
}

// BeginAnalysis schedules the analysis of docID and returns immediately. The
// document counts as in flight until its job has finished.
func (a *AnalysisAdapter) BeginAnalysis(docID, sourcePath string) {
	a.wg.Add(1)
	a.track(docID)
	go func() {
		err := a.pool.Submit(func() {
			defer a.wg.Done()
			defer a.untrack(docID)
			a.analyze(context.Background(), docID, sourcePath)
		})
		if err != nil {
			defer a.wg.Done()
			defer a.untrack(docID)
			ctx := context.Background()
			logutil.GetLogger(ctx).Error("analysis job rejected", zap.String("doc_id", docID), zap.Error(err))
			a.complete(ctx, docID, model.DocumentStateUnprocessed, model.DocumentStateFailed, "analysis not started: "+err.Error())
		}
	}()
}

// InFlight reports whether docID is queued on the pool or being analyzed.
func (a *AnalysisAdapter) InFlight(docID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.inflight[docID]
	return ok
}

func (a *AnalysisAdapter) track(docID string) {
	a.mu.Lock()
	a.inflight[docID] = struct{}{}
	a.mu.Unlock()
}

func (a *AnalysisAdapter) untrack(docID string) {
	a.mu.Lock()
	delete(a.inflight, docID)
	a.mu.Unlock()
}

// Wait blocks until every scheduled job has written its outcome.
func (a *AnalysisAdapter) Wait() {
	a.wg.Wait()
}

func (a *AnalysisAdapter) Running() int {
	return a.pool.Running()
}

func (a *AnalysisAdapter) Release() {
	a.pool.Release()
}

func (a *AnalysisAdapter) analyze(ctx context.Context, docID, sourcePath string) {
	logger := logutil.GetLogger(ctx).With(zap.String("doc_id", docID))
	claimed, err := a.store.UpdateStateIf(ctx, docID, model.DocumentStateUnprocessed, model.DocumentStateProcessing, "", a.now().UnixMilli())
	if err != nil {
		logger.Error("claim document for analysis failed", zap.Error(err))
		return
	}
	if !claimed {
		logger.Warn("analysis skipped: document is not unprocessed")
		return
	}
	area, err := a.areas.Prepare(docID)
	if err != nil {
		logger.Error("prepare work area failed", zap.Error(err))
		a.complete(ctx, docID, model.DocumentStateProcessing, model.DocumentStateFailed, err.Error())
		return
	}
	cmd := a.spec.command(sourcePath, area)
	logger.Info("analysis started", zap.String("command", cmd.String()))

	jobCtx, cancel := a.spec.withTimeout(ctx)
	defer cancel()
	res, err := a.runner.Stream(jobCtx, cmd, func(stream, line string) {
		if stream == runner.StreamStderr {
			logger.Warn("analysis output", zap.String("stream", stream), zap.String("line", line))
			return
		}
		logger.Info("analysis output", zap.String("stream", stream), zap.String("line", line))
	})
	state, detail := analysisOutcome(res, err)
	switch {
	case errors.Is(err, runner.ErrStart):
		logger.Error("analysis engine failed to start", zap.Error(err))
	case err != nil:
		logger.Error("analysis engine aborted", zap.Error(err))
	case state == model.DocumentStateReady:
		logger.Info("analysis finished", zap.Duration("duration", res.Duration))
	default:
		logger.Error("analysis engine failed", zap.Int("exit_code", res.ExitCode), zap.Duration("duration", res.Duration))
	}
	a.complete(ctx, docID, model.DocumentStateProcessing, state, detail)
}

func analysisOutcome(res *runner.Result, err error) (model.DocumentState, string) {
	exitCode := -1
	if res != nil {
		exitCode = res.ExitCode
	}
	switch {
	case errors.Is(err, runner.ErrTimeout):
		return model.DocumentStateFailed, err.Error()
	case err != nil:
		return model.DocumentStateFailed, fmt.Sprintf("exit code %d: %v", exitCode, err)
	case exitCode != 0:
		return model.DocumentStateFailed, fmt.Sprintf("exit code %d", exitCode)
	}
	return model.DocumentStateReady, ""
}

func (a *AnalysisAdapter) complete(ctx context.Context, docID string, from, to model.DocumentState, detail string) {
	logger := logutil.GetLogger(ctx).With(zap.String("doc_id", docID), zap.String("state", string(to)))
	updated, err := a.store.UpdateStateIf(ctx, docID, from, to, detail, a.now().UnixMilli())
	if err != nil {
		logger.Error("record analysis outcome failed", zap.Error(err))
		return
	}
	if !updated {
		logger.Warn("analysis outcome dropped: document left state " + string(from))
		return
	}
	if a.onDone != nil {
		a.onDone(docID, to, detail)
	}
}
