package domain

import (
	"time"
)

type OutputFormat string
type Stream string
type Classification string

const (
	FormatTUI  OutputFormat = "tui"
	FormatJSON OutputFormat = "json"
	FormatRaw  OutputFormat = "raw"
)

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

const (
	ClassificationSuccess Classification = "success"
	ClassificationWarning Classification = "warning"
	ClassificationFailure Classification = "failure"
)

// Exit codes of the validation script.
const (
	ExitCodeSuccess  = 0
	ExitCodeWarnings = 1
)

// RunRequest describes one invocation of the validation script.
type RunRequest struct {
	Dir              string
	Interpreter      string
	InterpreterFlags []string
	Script           string
}

// Command returns the argv to execute, with prefix (usually a
// line-buffering helper) placed in front of the interpreter.
func (r RunRequest) Command(prefix []string) []string {
	argv := make([]string, 0, len(prefix)+len(r.InterpreterFlags)+2)
	argv = append(argv, prefix...)
	argv = append(argv, r.Interpreter)
	argv = append(argv, r.InterpreterFlags...)
	argv = append(argv, r.Script)
	return argv
}

// OutputLine is one decoded, non-empty line read from the child process.
type OutputLine struct {
	Stream Stream
	Text   string
}

// Display returns the text handed to consumers; stderr lines carry prefix.
func (l OutputLine) Display(stderrPrefix string) string {
	if l.Stream == StreamStderr {
		return stderrPrefix + l.Text
	}
	return l.Text
}

type RunResult struct {
	ID             string
	ExitCode       int
	Classification Classification
	StartedAt      time.Time
	FinishedAt     time.Time
	Duration       time.Duration
}

// Classify maps a script exit code to its status bucket.
func Classify(exitCode int) Classification {
	switch exitCode {
	case ExitCodeSuccess:
		return ClassificationSuccess
	case ExitCodeWarnings:
		return ClassificationWarning
	default:
		return ClassificationFailure
	}
}
