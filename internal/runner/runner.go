package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"
)

const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

var (
	ErrStart   = errors.New("process start failed")
	ErrTimeout = errors.New("process timed out")
)

type Command struct {
	Name string
	Args []string
	Env  []string
	Dir  string
}

func (c Command) String() string {
	return fmt.Sprintf("%s %v", c.Name, c.Args)
}

type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

type LineHandler func(stream, line string)

// Runner spawns external processes. Both calls block until the process exits. A non-zero
// exit is reported through the exit code, not the error; the error is set only when the
// process could not be started (ErrStart) or was killed because ctx ended (ErrTimeout).
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
	Stream(ctx context.Context, cmd Command, onLine LineHandler) (*Result, error)
}

type ExecRunner struct {
	waitDelay time.Duration
}

func NewExecRunner() *ExecRunner {
	return &ExecRunner{waitDelay: 5 * time.Second}
}

func (r *ExecRunner) Run(ctx context.Context, cmd Command) (*Result, error) {
	var stdout, stderr bytes.Buffer
	proc := r.build(ctx, cmd)
	proc.Stdout = &stdout
	proc.Stderr = &stderr
	start := time.Now()
	if err := proc.Start(); err != nil {
		return &Result{ExitCode: -1}, fmt.Errorf("%w: %w", ErrStart, err)
	}
	waitErr := proc.Wait()
	res := &Result{Stdout: stdout.String(), Stderr: stderr.String(), Duration: time.Since(start)}
	return res, r.finish(ctx, res, waitErr)
}

func (r *ExecRunner) Stream(ctx context.Context, cmd Command, onLine LineHandler) (*Result, error) {
	if onLine == nil {
		onLine = func(string, string) {}
	}
	var mu sync.Mutex
	stdout := &lineWriter{stream: StreamStdout, onLine: onLine, mu: &mu}
	stderr := &lineWriter{stream: StreamStderr, onLine: onLine, mu: &mu}
	proc := r.build(ctx, cmd)
	proc.Stdout = stdout
	proc.Stderr = stderr
	start := time.Now()
	if err := proc.Start(); err != nil {
		return &Result{ExitCode: -1}, fmt.Errorf("%w: %w", ErrStart, err)
	}
	waitErr := proc.Wait()
	stdout.flush()
	stderr.flush()
	res := &Result{Duration: time.Since(start)}
	return res, r.finish(ctx, res, waitErr)
}

func (r *ExecRunner) build(ctx context.Context, cmd Command) *exec.Cmd {
	proc := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	proc.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		proc.Env = append(os.Environ(), cmd.Env...)
	}
	proc.WaitDelay = r.waitDelay
	return proc
}

func (r *ExecRunner) finish(ctx context.Context, res *Result, waitErr error) error {
	if waitErr == nil {
		res.ExitCode = 0
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		res.ExitCode = -1
		return fmt.Errorf("%w after %s: %w", ErrTimeout, res.Duration.Round(time.Millisecond), ctxErr)
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return nil
	}
	res.ExitCode = -1
	return waitErr
}

const maxLineLength = 64 * 1024

// lineWriter splits process output into lines. Overlong lines are emitted in chunks.
type lineWriter struct {
	stream string
	onLine LineHandler
	mu     *sync.Mutex
	buf    []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	for {
		idx := bytes.IndexByte(w.buf, '\n')
		if idx < 0 {
			break
		}
		w.emit(w.buf[:idx])
		w.buf = w.buf[idx+1:]
	}
	for len(w.buf) >= maxLineLength {
		w.emit(w.buf[:maxLineLength])
		w.buf = w.buf[maxLineLength:]
	}
	return len(p), nil
}

func (w *lineWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) > 0 {
		w.emit(w.buf)
		w.buf = nil
	}
}

func (w *lineWriter) emit(line []byte) {
	w.onLine(w.stream, string(bytes.TrimSuffix(line, []byte("\r"))))
}
