package domain

import (
	"errors"
	"fmt"
)

// ErrRunInProgress rejects a run requested while another is still active.
var ErrRunInProgress = errors.New("a validation run is already in progress")

type ErrorKind string

const (
	ErrorScriptNotFound      ErrorKind = "script_not_found"
	ErrorInterpreterNotFound ErrorKind = "interpreter_not_found"
	ErrorPermissionDenied    ErrorKind = "permission_denied"
	ErrorUnexpected          ErrorKind = "unexpected"
)

// RunError is a terminal failure of a run that happened before a result
// could be produced.
type RunError struct {
	Kind ErrorKind
	// Path is the script (ScriptNotFound, PermissionDenied) or the
	// interpreter (InterpreterNotFound) involved.
	Path     string
	Category string
	Message  string
	Trace    string
	Err      error
}

func (e *RunError) Error() string {
	switch e.Kind {
	case ErrorScriptNotFound:
		return fmt.Sprintf("validation script not found: %s", e.Path)
	case ErrorInterpreterNotFound:
		return fmt.Sprintf("interpreter not found: %s", e.Path)
	case ErrorPermissionDenied:
		return fmt.Sprintf("permission denied: %s", e.Path)
	default:
		return fmt.Sprintf("unexpected %s: %s", e.Category, e.Message)
	}
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// Lines renders the error as the user-facing lines shown in the log.
func (e *RunError) Lines() []string {
	switch e.Kind {
	case ErrorScriptNotFound:
		return []string{ScriptNotFoundMessage(e.Path)}
	case ErrorInterpreterNotFound:
		return []string{InterpreterNotFoundMessage(e.Path), InterpreterHint()}
	case ErrorPermissionDenied:
		return []string{PermissionDeniedMessage(), PermissionHint(e.Path)}
	}

	lines := []string{UnexpectedMessage(e.Category), "   " + e.Message}
	if e.Trace != "" {
		lines = append(lines, "", "Full traceback:")
		for _, l := range splitNonBlank(e.Trace) {
			lines = append(lines, "   "+l)
		}
	}
	return lines
}
