package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/msaeedsaeedi/deploytui/internal/domain"
)

type ResultJSON struct {
	ID             string  `json:"id"`
	ExitCode       int     `json:"exit_code"`
	Classification string  `json:"classification"`
	Duration       float64 `json:"duration_ms"`
}

type ErrorJSON struct {
	Kind     string `json:"kind"`
	Path     string `json:"path,omitempty"`
	Category string `json:"category,omitempty"`
	Message  string `json:"message"`
}

type ReportJSON struct {
	Lines  []string    `json:"lines"`
	Result *ResultJSON `json:"result,omitempty"`
	Error  *ErrorJSON  `json:"error,omitempty"`
}

// JSONFormatter collects a run and writes one document on Flush.
type JSONFormatter struct {
	w      io.Writer
	report ReportJSON
	mu     sync.Mutex
}

func NewJSONFormatter(w io.Writer) *JSONFormatter {
	return &JSONFormatter{
		w:      w,
		report: ReportJSON{Lines: make([]string, 0)},
	}
}

func (f *JSONFormatter) OnLine(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.report.Lines = append(f.report.Lines, text)
}

func (f *JSONFormatter) OnClear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.report.Lines = f.report.Lines[:0]
}

func (f *JSONFormatter) OnComplete(result domain.RunResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.report.Result = &ResultJSON{
		ID:             result.ID,
		ExitCode:       result.ExitCode,
		Classification: string(result.Classification),
		Duration:       float64(result.Duration.Milliseconds()),
	}
}

func (f *JSONFormatter) OnError(err *domain.RunError) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.report.Error = &ErrorJSON{
		Kind:     string(err.Kind),
		Path:     err.Path,
		Category: err.Category,
		Message:  err.Error(),
	}
}

func (f *JSONFormatter) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	encoder := json.NewEncoder(f.w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(f.report); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
