package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
	"github.com/xxxsen/docqa/internal/runner"
)

type Answer struct {
	Text    string `json:"answer"`
	Sources []int  `json:"sources"`
}

// QueryAdapter answers one question per call by running the query engine to completion.
type QueryAdapter struct {
	runner       runner.Runner
	spec         Spec
	failOnStderr bool
}

func NewQueryAdapter(r runner.Runner, spec Spec, failOnStderr bool) (*QueryAdapter, error) {
	if r == nil {
		return nil, fmt.Errorf("query adapter requires a runner")
	}
	if spec.Command == "" {
		return nil, fmt.Errorf("query engine command is required")
	}
	return &QueryAdapter{runner: r, spec: spec, failOnStderr: failOnStderr}, nil
}

// Query runs the engine with the working area and question. Any failure is an
// *appErr.EngineError carrying the engine diagnostics.
func (q *QueryAdapter) Query(ctx context.Context, workArea, question string) (*Answer, error) {
	jobCtx, cancel := q.spec.withTimeout(ctx)
	defer cancel()
	res, err := q.runner.Run(jobCtx, q.spec.command(workArea, question))
	if err != nil {
		exitCode := -1
		diagnostic := ""
		if res != nil {
			exitCode = res.ExitCode
			diagnostic = strings.TrimSpace(res.Stderr)
		}
		return nil, &appErr.EngineError{ExitCode: exitCode, Diagnostic: diagnostic, Err: err}
	}
	stderr := strings.TrimSpace(res.Stderr)
	if res.ExitCode != 0 {
		if stderr == "" {
			stderr = fmt.Sprintf("query engine exited with code %d", res.ExitCode)
		}
		return nil, &appErr.EngineError{ExitCode: res.ExitCode, Diagnostic: stderr}
	}
	if stderr != "" {
		if q.failOnStderr {
			return nil, &appErr.EngineError{ExitCode: 0, Diagnostic: stderr}
		}
		logutil.GetLogger(ctx).Warn("query engine diagnostics", zap.String("stderr", stderr))
	}
	answer := parseAnswer(res.Stdout)
	if answer.Text == "" {
		return nil, &appErr.EngineError{ExitCode: 0, Diagnostic: "query engine produced no answer"}
	}
	logutil.GetLogger(ctx).Debug("query answered", zap.Duration("duration", res.Duration), zap.Int("sources", len(answer.Sources)))
	return answer, nil
}

// parseAnswer accepts either plain text or {"answer": ..., "sources": [...]}.
func parseAnswer(stdout string) *Answer {
	trimmed := strings.TrimSpace(stdout)
	if strings.HasPrefix(trimmed, "{") {
		var structured Answer
		if err := json.Unmarshal([]byte(trimmed), &structured); err == nil && strings.TrimSpace(structured.Text) != "" {
			structured.Text = strings.TrimSpace(structured.Text)
			if structured.Sources == nil {
				structured.Sources = []int{}
			}
			return &structured
		}
	}
	return &Answer{Text: trimmed, Sources: []int{}}
}
