package infra

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/msaeedsaeedi/deploytui/internal/domain"
)

// CommandRunner launches the validation script and relays its output line
// by line while it runs.
type CommandRunner struct {
	decoder *LineDecoder
	logger  *slog.Logger
	spawned atomic.Int64
}

func NewCommandRunner(decoder *LineDecoder, logger *slog.Logger) *CommandRunner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &CommandRunner{decoder: decoder, logger: logger}
}

// Spawned is the number of child processes successfully started.
func (r *CommandRunner) Spawned() int64 {
	return r.spawned.Load()
}

// ScriptPath resolves the script of req against its working directory.
func ScriptPath(req domain.RunRequest) string {
	if filepath.IsAbs(req.Script) || req.Dir == "" {
		return req.Script
	}
	return filepath.Join(req.Dir, req.Script)
}

// Run executes req and sends every non-empty line to lines as soon as it is
// read. Lines of one stream keep their order; the two streams interleave as
// they arrive. Run does not close lines.
//
// A non-nil error is either a *domain.RunError or the context error when
// ctx was cancelled.
func (r *CommandRunner) Run(ctx context.Context, req domain.RunRequest, env domain.Environment, lines chan<- domain.OutputLine) (domain.RunResult, error) {
	script := ScriptPath(req)
	if _, err := os.Stat(script); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.RunResult{}, &domain.RunError{Kind: domain.ErrorScriptNotFound, Path: script, Err: err}
		}
		return domain.RunResult{}, r.launchError(err, req.Interpreter, script)
	}

	// A prefix such as stdbuf would report a bad interpreter as its own
	// exit status, so the interpreter is checked up front.
	if err := checkInterpreter(req); err != nil {
		return domain.RunResult{}, r.launchError(err, req.Interpreter, script)
	}

	argv := req.Command(env.CommandPrefix())

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = req.Dir
	cmd.Env = env.Slice()
	setupProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcess(cmd) }

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return domain.RunResult{}, unexpectedError(err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return domain.RunResult{}, unexpectedError(err)
	}

	result := domain.RunResult{
		ID:        uuid.New().String(),
		StartedAt: time.Now(),
	}

	r.logger.Debug("Running command", "id", result.ID, "argv", argv, "cwd", req.Dir)

	if err := cmd.Start(); err != nil {
		return domain.RunResult{}, r.launchError(err, req.Interpreter, script)
	}
	r.spawned.Add(1)

	var g errgroup.Group
	g.Go(func() error { return r.drain(ctx, stdout, domain.StreamStdout, lines) })
	g.Go(func() error { return r.drain(ctx, stderr, domain.StreamStderr, lines) })

	drainErr := g.Wait()
	waitErr := cmd.Wait()

	result.FinishedAt = time.Now()
	result.Duration = result.FinishedAt.Sub(result.StartedAt)

	if ctx.Err() != nil {
		r.logger.Debug("Run cancelled", "id", result.ID)
		return domain.RunResult{}, ctx.Err()
	}

	if drainErr != nil {
		return domain.RunResult{}, unexpectedError(drainErr)
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return domain.RunResult{}, unexpectedError(waitErr)
		}
		result.ExitCode = exitErr.ExitCode()
	}

	result.Classification = domain.Classify(result.ExitCode)

	r.logger.Debug("Command finished", "id", result.ID, "exit_code", result.ExitCode, "duration", result.Duration)

	return result, nil
}

// checkInterpreter resolves the interpreter the way exec.Command does.
// Names with a path separator are taken relative to the working directory.
func checkInterpreter(req domain.RunRequest) error {
	name := req.Interpreter
	if strings.ContainsRune(name, filepath.Separator) || strings.ContainsRune(name, '/') {
		if !filepath.IsAbs(name) && req.Dir != "" {
			name = filepath.Join(req.Dir, name)
		}
	}

	_, err := exec.LookPath(name)
	if errors.Is(err, exec.ErrDot) {
		return nil
	}
	return err
}

func (r *CommandRunner) drain(ctx context.Context, rd io.Reader, stream domain.Stream, lines chan<- domain.OutputLine) error {
	br := bufio.NewReader(rd)

	for {
		raw, err := br.ReadBytes('\n')
		if len(raw) > 0 {
			if text := r.decoder.Decode(raw); text != "" {
				select {
				case lines <- domain.OutputLine{Stream: stream, Text: text}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, fs.ErrClosed) {
				return nil
			}
			return fmt.Errorf("reading %s: %w", stream, err)
		}
	}
}

func (r *CommandRunner) launchError(err error, interpreter, script string) *domain.RunError {
	r.logger.Debug("Launch failed", "interpreter", interpreter, "script", script, "error", err)

	switch {
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return &domain.RunError{Kind: domain.ErrorInterpreterNotFound, Path: interpreter, Err: err}
	case errors.Is(err, fs.ErrPermission):
		return &domain.RunError{Kind: domain.ErrorPermissionDenied, Path: script, Err: err}
	default:
		return unexpectedError(err)
	}
}

func unexpectedError(err error) *domain.RunError {
	return &domain.RunError{
		Kind:     domain.ErrorUnexpected,
		Category: fmt.Sprintf("%T", err),
		Message:  err.Error(),
		Trace:    string(debug.Stack()),
		Err:      err,
	}
}
