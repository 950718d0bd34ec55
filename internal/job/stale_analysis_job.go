package job

import (
	"context"
	"errors"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docqa/internal/model"
)

const abandonedDetail = "analysis abandoned"

type StaleDocumentStore interface {
	ListByStateBefore(ctx context.Context, state model.DocumentState, mtime int64) ([]model.Document, error)
	UpdateStateIf(ctx context.Context, docID string, from, to model.DocumentState, detail string, mtime int64) (bool, error)
}

type StaleOption func(*StaleAnalysisJob)

// WithInFlight skips documents the running process still has a job for, queued or
// executing.
func WithInFlight(fn func(docID string) bool) StaleOption {
	return func(j *StaleAnalysisJob) {
		j.inFlight = fn
	}
}

// StaleAnalysisJob fails documents whose analysis has not finished within maxAge and
// that no job of this process owns, for example after the server restarted mid-job.
type StaleAnalysisJob struct {
	docs     StaleDocumentStore
	maxAge   time.Duration
	onFailed func(docID string, state model.DocumentState, detail string)
	inFlight func(docID string) bool
	now      func() time.Time
}

func NewStaleAnalysisJob(docs StaleDocumentStore, maxAge time.Duration, onFailed func(docID string, state model.DocumentState, detail string), opts ...StaleOption) *StaleAnalysisJob {
	j := &StaleAnalysisJob{docs: docs, maxAge: maxAge, onFailed: onFailed, now: time.Now}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

func (j *StaleAnalysisJob) Name() string {
	return "stale_analysis_sweep"
}

func (j *StaleAnalysisJob) Run(ctx context.Context) error {
	if j.docs == nil {
		return nil
	}
	maxAge := j.maxAge
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	now := j.now()
	cutoff := now.Add(-maxAge).UnixMilli()
	var errs []error
	swept := 0
	for _, state := range []model.DocumentState{model.DocumentStateUnprocessed, model.DocumentStateProcessing} {
		docs, err := j.docs.ListByStateBefore(ctx, state, cutoff)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, doc := range docs {
			if j.inFlight != nil && j.inFlight(doc.ID) {
				continue
			}
			updated, err := j.docs.UpdateStateIf(ctx, doc.ID, state, model.DocumentStateFailed, abandonedDetail, now.UnixMilli())
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if !updated {
				continue
			}
			swept++
			logutil.GetLogger(ctx).Warn("stale analysis marked failed",
				zap.String("doc_id", doc.ID),
				zap.String("from", string(state)),
				zap.Int64("mtime", doc.Mtime),
			)
			if j.onFailed != nil {
				j.onFailed(doc.ID, model.DocumentStateFailed, abandonedDetail)
			}
		}
	}
	if swept > 0 {
		logutil.GetLogger(ctx).Info("stale analysis sweep done", zap.Int("swept", swept))
	}
	return errors.Join(errs...)
}
