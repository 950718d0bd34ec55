package engine

import (
	"context"
	"time"

	"github.com/xxxsen/docqa/internal/config"
	"github.com/xxxsen/docqa/internal/runner"
)

// Spec is the calling convention of an external engine: a fixed command line followed by
// positional inputs.
type Spec struct {
	Command string
	Args    []string
	Env     []string
	Timeout time.Duration
}

func SpecFromConfig(cfg config.EngineConfig) Spec {
	var timeout time.Duration
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return Spec{
		Command: cfg.Command,
		Args:    append([]string(nil), cfg.Args...),
		Env:     append([]string(nil), cfg.Env...),
		Timeout: timeout,
	}
}

func (s Spec) command(inputs ...string) runner.Command {
	args := make([]string, 0, len(s.Args)+len(inputs))
	args = append(args, s.Args...)
	args = append(args, inputs...)
	return runner.Command{Name: s.Command, Args: args, Env: s.Env}
}

func (s Spec) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.Timeout)
}
