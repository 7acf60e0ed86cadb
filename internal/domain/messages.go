package domain

import (
	"fmt"
	"strings"
)

const (
	AppTitle          = "Azure Deployment TUI"
	Separator         = "============================================================"
	MsgRunning        = "🚀 Running prerequisite validation..."
	MsgSuccess        = "✅ Validation completed successfully!"
	MsgWarnings       = "⚠️  Validation completed with warnings"
	MsgOutputCleared  = "Output cleared."
	MsgClickValidate  = "Press 'Validate Prerequisites' (or v) to check your environment."
	MsgRunInProgress  = "⏳ A validation run is already in progress."
	DefaultStderrMark = "⚠️  STDERR: "
)

func WelcomeMessage() string {
	return "Welcome to the " + AppTitle + "!"
}

func ProjectRootMessage(root string) string {
	return "Project root: " + root
}

func FailedMessage(exitCode int) string {
	return fmt.Sprintf("❌ Validation failed with exit code %d", exitCode)
}

// StatusMessage returns the completion line for a result.
func StatusMessage(res RunResult) string {
	switch res.Classification {
	case ClassificationSuccess:
		return MsgSuccess
	case ClassificationWarning:
		return MsgWarnings
	default:
		return FailedMessage(res.ExitCode)
	}
}

func ScriptNotFoundMessage(path string) string {
	return "❌ Error: Validation script not found at " + path
}

func InterpreterNotFoundMessage(interpreter string) string {
	if interpreter == "" {
		interpreter = "bash"
	}
	return fmt.Sprintf("❌ Error: %s not found. Please ensure it is installed and in your PATH.", interpreter)
}

func InterpreterHint() string {
	return "   On Windows, install Git for Windows (Git Bash) or use WSL."
}

func PermissionDeniedMessage() string {
	return "❌ Error: Permission denied when running the validation script."
}

func PermissionHint(path string) string {
	return "   Try: chmod +x " + path
}

func UnexpectedMessage(category string) string {
	return fmt.Sprintf("❌ Unexpected error (%s):", category)
}

// DiagnosticsLines describes the host for the run banner.
func DiagnosticsLines(goos, goVersion, root string) []string {
	return []string{
		"🔍 Environment Diagnostics:",
		"   OS: " + goos,
		"   Go: " + goVersion,
		"   Project root: " + root,
	}
}

func splitNonBlank(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}
