package app

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"

	"github.com/msaeedsaeedi/deploytui/internal/domain"
)

var (
	ErrRunInProgress = domain.ErrRunInProgress
	ErrSessionClosed = errors.New("session is closed")
)

// Session is the control surface used by the front-ends: StartRun,
// ClearOutput and Quit. At most one run is active at a time.
type Session struct {
	executor *Executor
	request  domain.RunRequest
	handler  Handler
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	wg      sync.WaitGroup
	running bool
	closed  bool
	last    Outcome
}

// Outcome is the terminal state of the most recent run.
type Outcome struct {
	Result *domain.RunResult
	Err    *domain.RunError
}

func NewSession(ctx context.Context, executor *Executor, req domain.RunRequest, handler Handler, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Session{
		executor: executor,
		request:  req,
		handler:  handler,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Greet writes the welcome lines shown before the first run.
func (s *Session) Greet() {
	s.handler.OnLine(domain.WelcomeMessage())
	s.handler.OnLine(domain.ProjectRootMessage(s.request.Dir))
	s.handler.OnLine("")
	s.handler.OnLine(domain.MsgClickValidate)
	s.handler.OnLine("")
}

// StartRun begins a validation run and returns immediately. It returns
// ErrRunInProgress while a previous run is still being relayed.
func (s *Session) StartRun() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if s.running {
		return ErrRunInProgress
	}

	s.running = true
	s.wg.Add(1)
	go s.run()

	return nil
}

func (s *Session) run() {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		s.wg.Done()
	}()

	s.handler.OnClear()
	s.handler.OnLine(domain.Separator)
	s.handler.OnLine(domain.MsgRunning)
	s.handler.OnLine(domain.Separator)
	s.handler.OnLine("")
	for _, l := range domain.DiagnosticsLines(runtime.GOOS, runtime.Version(), s.request.Dir) {
		s.handler.OnLine(l)
	}
	s.handler.OnLine("")

	err := s.executor.Execute(s.ctx, s.request, &statusHandler{Handler: s.handler, session: s})
	if err != nil {
		s.logger.Debug("Validation run stopped", "error", err)
	}
}

// Running reports whether a run is being relayed.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Last returns the outcome of the most recently finished run.
func (s *Session) Last() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Session) ClearOutput() {
	s.handler.OnClear()
	s.handler.OnLine(domain.MsgOutputCleared)
	s.handler.OnLine("")
}

// Wait blocks until the active run, if any, has finished.
func (s *Session) Wait() {
	s.wg.Wait()
}

// Quit cancels any active run, killing the child process, and waits for
// it to be torn down. The session accepts no further runs.
func (s *Session) Quit() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

func (s *Session) record(o Outcome) {
	s.mu.Lock()
	s.last = o
	s.mu.Unlock()
}

// statusHandler writes the completion banner before forwarding the
// terminal event.
type statusHandler struct {
	Handler
	session *Session
}

func (h *statusHandler) OnComplete(result domain.RunResult) {
	h.session.record(Outcome{Result: &result})

	h.Handler.OnLine("")
	h.Handler.OnLine(domain.Separator)
	h.Handler.OnLine(domain.StatusMessage(result))
	h.Handler.OnLine(domain.Separator)
	h.Handler.OnComplete(result)
}

func (h *statusHandler) OnError(err *domain.RunError) {
	h.session.record(Outcome{Err: err})

	for _, l := range err.Lines() {
		h.Handler.OnLine(l)
	}
	h.Handler.OnError(err)
}
