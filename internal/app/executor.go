package app

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/msaeedsaeedi/deploytui/internal/domain"
	"github.com/msaeedsaeedi/deploytui/internal/infra"
	"github.com/msaeedsaeedi/deploytui/internal/metrics"
)

// Handler consumes the events of a run. All calls for one run come from a
// single goroutine, one complete line at a time.
type Handler interface {
	OnLine(text string)
	OnComplete(result domain.RunResult)
	OnError(err *domain.RunError)
	OnClear()
}

type Executor struct {
	runner       *infra.CommandRunner
	builder      *infra.EnvironmentBuilder
	recorder     *metrics.Recorder
	stderrPrefix string
	environ      func() []string
	logger       *slog.Logger
}

type ExecutorOption func(*Executor)

// WithEnviron replaces os.Environ as the source of the base environment.
func WithEnviron(fn func() []string) ExecutorOption {
	return func(e *Executor) { e.environ = fn }
}

func WithRecorder(r *metrics.Recorder) ExecutorOption {
	return func(e *Executor) { e.recorder = r }
}

func WithLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = l }
}

func NewExecutor(runner *infra.CommandRunner, builder *infra.EnvironmentBuilder, stderrPrefix string, opts ...ExecutorOption) *Executor {
	e := &Executor{
		runner:       runner,
		builder:      builder,
		stderrPrefix: stderrPrefix,
		environ:      os.Environ,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.recorder == nil {
		e.recorder = metrics.NewRecorder()
	}
	if e.logger == nil {
		e.logger = slog.New(slog.DiscardHandler)
	}
	return e
}

type outcome struct {
	result domain.RunResult
	err    error
}

// Execute performs one run and relays it to handler: OnLine for every
// output line in arrival order, then exactly one of OnComplete or OnError.
// It returns ctx.Err() when the run was cancelled, in which case neither
// terminal callback fires.
func (e *Executor) Execute(ctx context.Context, req domain.RunRequest, handler Handler) error {
	env := e.builder.Build(ctx, e.environ())

	lines := make(chan domain.OutputLine, 64)
	done := make(chan outcome, 1)

	go func() {
		res, err := e.runner.Run(ctx, req, env, lines)
		close(lines)
		done <- outcome{result: res, err: err}
	}()

	for line := range lines {
		e.recorder.ObserveLine(line.Stream)
		handler.OnLine(line.Display(e.stderrPrefix))
	}

	out := <-done
	if out.err != nil {
		var runErr *domain.RunError
		if errors.As(out.err, &runErr) {
			e.logger.Warn("Validation run failed", "kind", runErr.Kind, "error", runErr)
			e.recorder.ObserveError(runErr.Kind)
			handler.OnError(runErr)
			return nil
		}
		return out.err
	}

	e.logger.Info("Validation run finished", "id", out.result.ID, "exit_code", out.result.ExitCode, "classification", out.result.Classification)
	e.recorder.ObserveResult(out.result)
	handler.OnComplete(out.result)

	return nil
}
