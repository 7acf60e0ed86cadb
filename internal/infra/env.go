package infra

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"

	"github.com/msaeedsaeedi/deploytui/internal/domain"
)

const DefaultProbeTimeout = time.Second

// DefaultWindowsToolDirs are prepended to PATH on Windows when present, in
// this order. %VAR% references are expanded against the base environment.
var DefaultWindowsToolDirs = []string{
	`C:\Program Files\Azure CLI\wbin`,
	`C:\Program Files (x86)\Azure CLI\wbin`,
	`C:\Program Files\nodejs`,
	`C:\Program Files\Docker\Docker\resources\bin`,
	`%USERPROFILE%\AppData\Local\Programs\Microsoft VS Code\bin`,
	`%USERPROFILE%\.stripe`,
}

// line-buffering helper and the flags that disable stdout/stderr buffering
var bufferHelper = []string{"stdbuf", "-o0", "-e0"}

type EnvOptions struct {
	GOOS            string
	WindowsToolDirs []string
	ProbeTimeout    time.Duration
	// Exists reports whether a directory is present; defaults to os.Stat.
	Exists func(path string) bool
	// LookPath locates the buffering helper; defaults to exec.LookPath.
	LookPath func(file string) (string, error)
}

type EnvironmentBuilder struct {
	opts   EnvOptions
	logger *slog.Logger
}

func NewEnvironmentBuilder(opts EnvOptions, logger *slog.Logger) *EnvironmentBuilder {
	if opts.WindowsToolDirs == nil {
		opts.WindowsToolDirs = DefaultWindowsToolDirs
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}
	if opts.Exists == nil {
		opts.Exists = dirExists
	}
	if opts.LookPath == nil {
		opts.LookPath = exec.LookPath
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &EnvironmentBuilder{opts: opts, logger: logger}
}

// Build derives the child environment from a snapshot in os.Environ form.
// It never fails: missing directories and an absent helper are skipped.
func (b *EnvironmentBuilder) Build(ctx context.Context, snapshot []string) domain.Environment {
	vars := make(map[string]string, len(snapshot)+3)
	for _, kv := range snapshot {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		vars[k] = v
	}

	vars["PYTHONUNBUFFERED"] = "1"

	if b.opts.GOOS == "windows" {
		vars["PYTHONIOENCODING"] = "utf-8"
		b.augmentWindowsPath(vars)
		return domain.NewEnvironment(vars, nil)
	}

	return domain.NewEnvironment(vars, b.probeHelper(ctx))
}

func (b *EnvironmentBuilder) augmentWindowsPath(vars map[string]string) {
	key, ok := lookupFold(vars, "PATH")
	if !ok {
		return
	}

	current := vars[key]
	vars["ORIGINAL_PATH"] = current

	var added []string
	for _, dir := range b.opts.WindowsToolDirs {
		expanded := expandWindowsVars(dir, vars)
		if strings.Contains(current, expanded) || slices.Contains(added, expanded) || !b.opts.Exists(expanded) {
			b.logger.Debug("Skipping tool directory", "dir", expanded)
			continue
		}
		added = append(added, expanded)
	}

	if len(added) == 0 {
		return
	}

	vars[key] = strings.Join(added, ";") + ";" + current
	b.logger.Debug("Augmented PATH", "added", added)
}

// probeHelper returns the buffering helper prefix when it can be found
// within the probe timeout, nil otherwise.
func (b *EnvironmentBuilder) probeHelper(ctx context.Context) []string {
	ctx, cancel := context.WithTimeout(ctx, b.opts.ProbeTimeout)
	defer cancel()

	found := make(chan bool, 1)
	go func() {
		_, err := b.opts.LookPath(bufferHelper[0])
		found <- err == nil
	}()

	select {
	case ok := <-found:
		if !ok {
			b.logger.Debug("Buffering helper not available", "helper", bufferHelper[0])
			return nil
		}
		return bufferHelper
	case <-ctx.Done():
		b.logger.Debug("Buffering helper probe timed out", "helper", bufferHelper[0], "timeout", b.opts.ProbeTimeout)
		return nil
	}
}

func lookupFold(vars map[string]string, name string) (string, bool) {
	if _, ok := vars[name]; ok {
		return name, true
	}
	for k := range vars {
		if strings.EqualFold(k, name) {
			return k, true
		}
	}
	return "", false
}

// expandWindowsVars replaces %NAME% with its value; unknown names are left
// untouched.
func expandWindowsVars(s string, vars map[string]string) string {
	var sb strings.Builder
	for {
		start := strings.IndexByte(s, '%')
		if start < 0 {
			break
		}
		end := strings.IndexByte(s[start+1:], '%')
		if end < 0 {
			break
		}
		end += start + 1

		name := s[start+1 : end]
		key, ok := lookupFold(vars, name)
		if name == "" || !ok {
			sb.WriteString(s[:end])
			s = s[end:]
			continue
		}
		sb.WriteString(s[:start])
		sb.WriteString(vars[key])
		s = s[end+1:]
	}
	sb.WriteString(s)
	return sb.String()
}

func dirExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
