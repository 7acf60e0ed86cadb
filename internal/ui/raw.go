package ui

import (
	"fmt"
	"io"
	"sync"

	"github.com/msaeedsaeedi/deploytui/internal/domain"
)

// RawFormatter prints every line as it arrives. Status and error lines are
// already part of the stream, so the terminal events print nothing.
type RawFormatter struct {
	w  io.Writer
	mu sync.Mutex
}

func NewRawFormatter(w io.Writer) *RawFormatter {
	return &RawFormatter{w: w}
}

func (f *RawFormatter) OnLine(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fmt.Fprintln(f.w, text)
}

func (f *RawFormatter) OnComplete(result domain.RunResult) {
	// No-op
}

func (f *RawFormatter) OnError(err *domain.RunError) {
	// No-op
}

func (f *RawFormatter) OnClear() {
	// A stream cannot be cleared
}
