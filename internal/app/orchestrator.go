package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/msaeedsaeedi/deploytui/internal/config"
	"github.com/msaeedsaeedi/deploytui/internal/domain"
	"github.com/msaeedsaeedi/deploytui/internal/infra"
	"github.com/msaeedsaeedi/deploytui/internal/metrics"
	"github.com/msaeedsaeedi/deploytui/internal/ui"
)

type Orchestrator struct {
	cfg      *config.Config
	logger   *slog.Logger
	recorder *metrics.Recorder
	out      io.Writer
}

func NewOrchestrator(cfg *config.Config, logger *slog.Logger, out io.Writer) *Orchestrator {
	if out == nil {
		out = os.Stdout
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Orchestrator{
		cfg:      cfg,
		logger:   logger,
		recorder: metrics.NewRecorder(),
		out:      out,
	}
}

// Execute runs the chosen front-end until it finishes and returns the
// outcome of the last validation run.
func (o *Orchestrator) Execute(ctx context.Context, format domain.OutputFormat) (Outcome, error) {
	req, err := o.cfg.Request()
	if err != nil {
		return Outcome{}, err
	}

	executor, err := o.newExecutor()
	if err != nil {
		return Outcome{}, err
	}

	defer o.writeMetrics()

	handler := o.getFormatter(format)

	if format == domain.FormatTUI {
		tuiHandler, ok := handler.(*ui.TUIFormatter)
		if !ok {
			return Outcome{}, fmt.Errorf("tui formatter not available")
		}
		session := NewSession(ctx, executor, req, tuiHandler, o.logger)
		err := o.executeTUI(ctx, session, tuiHandler)
		return session.Last(), err
	}

	session := NewSession(ctx, executor, req, handler, o.logger)
	defer session.Quit()

	if err := session.StartRun(); err != nil {
		return Outcome{}, err
	}
	session.Wait()

	if f, ok := handler.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return session.Last(), err
		}
	}

	if ctx.Err() != nil {
		return session.Last(), ctx.Err()
	}

	return session.Last(), nil
}

func (o *Orchestrator) executeTUI(ctx context.Context, session *Session, tui *ui.TUIFormatter) error {
	ctxRun, cancel := context.WithCancel(ctx)
	defer cancel()

	tui.Bind(session)

	g, gctx := errgroup.WithContext(ctxRun)

	// The TUI owns the lifetime: when it exits the session is torn down,
	// killing any validation still running.
	g.Go(func() error {
		defer session.Quit()
		defer cancel()
		return tui.Run(gctx)
	})

	if err := tui.WaitReady(gctx); err != nil {
		return err
	}

	session.Greet()

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (o *Orchestrator) newExecutor() (*Executor, error) {
	decoder, err := infra.NewLineDecoder(o.cfg.Encoding)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	runner := infra.NewCommandRunner(decoder, o.logger)
	builder := infra.NewEnvironmentBuilder(infra.EnvOptions{
		GOOS:            runtime.GOOS,
		WindowsToolDirs: o.cfg.Windows.ToolDirs,
		ProbeTimeout:    o.cfg.ProbeTimeout(),
	}, o.logger)

	return NewExecutor(runner, builder, o.cfg.StderrPrefix,
		WithRecorder(o.recorder),
		WithLogger(o.logger),
	), nil
}

func (o *Orchestrator) writeMetrics() {
	if o.cfg.MetricsFile == "" {
		return
	}
	if err := o.recorder.WriteTextfile(o.cfg.MetricsFile); err != nil {
		o.logger.Error("Could not write metrics", "error", err)
	}
}

func (o *Orchestrator) getFormatter(format domain.OutputFormat) Handler {
	switch format {
	case domain.FormatRaw:
		return ui.NewRawFormatter(o.out)
	case domain.FormatJSON:
		return ui.NewJSONFormatter(o.out)
	case domain.FormatTUI:
		return ui.NewTUIFormatter(o.cfg.ProjectRoot, o.cfg.StderrPrefix)
	default:
		return ui.NewTUIFormatter(o.cfg.ProjectRoot, o.cfg.StderrPrefix)
	}
}

// ExitCode maps an outcome to the process exit status: the classification
// for a finished run (0 success, 1 warnings, 2 failure) and 3 when the run
// could not produce a result.
func (o Outcome) ExitCode() int {
	switch {
	case o.Err != nil:
		return 3
	case o.Result == nil:
		return 0
	}

	switch o.Result.Classification {
	case domain.ClassificationSuccess:
		return 0
	case domain.ClassificationWarning:
		return 1
	default:
		return 2
	}
}
