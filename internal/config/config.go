package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/SladkyCitron/slogcolor"
	"github.com/adrg/xdg"
	"github.com/kballard/go-shellquote"
	toml "github.com/pelletier/go-toml/v2"
	"golang.org/x/term"

	"github.com/msaeedsaeedi/deploytui/internal/domain"
	"github.com/msaeedsaeedi/deploytui/internal/infra"
)

const envOverride = "DEPLOYTUI_CONFIG"

const (
	DefaultScript           = "scripts/deploy/00_validate_prerequisites/00_validate_prerequisites.sh"
	DefaultInterpreter      = "bash"
	DefaultInterpreterFlags = "--noprofile --norc"
	DefaultLogLevel         = "warn"
)

type Config struct {
	ProjectRoot      string        `toml:"project_root"`
	Script           string        `toml:"script"`
	Interpreter      string        `toml:"interpreter"`
	InterpreterFlags string        `toml:"interpreter_flags"`
	Encoding         string        `toml:"encoding"`
	StderrPrefix     string        `toml:"stderr_prefix"`
	ProbeTimeoutMS   int           `toml:"probe_timeout_ms"`
	LogLevel         string        `toml:"log_level"`
	LogFile          string        `toml:"log_file"`
	MetricsFile      string        `toml:"metrics_file"`
	Windows          WindowsConfig `toml:"windows"`
}

type WindowsConfig struct {
	ToolDirs []string `toml:"tool_dirs"`
}

// DefaultPath returns the configuration file path, honouring
// $DEPLOYTUI_CONFIG.
func DefaultPath() string {
	path, _ := configPath()
	return path
}

func configPath() (path string, explicit bool) {
	if p := os.Getenv(envOverride); p != "" {
		return p, true
	}
	return filepath.Join(xdg.ConfigHome, "deploytui", "config.toml"), false
}

// Load reads the default configuration file. A missing file in the XDG
// config dir is not an error, every setting then takes its default. A file
// named by $DEPLOYTUI_CONFIG must exist.
func Load() (*Config, error) {
	path, explicit := configPath()
	cfg, err := LoadFrom(path)
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		cfg = &Config{}
		if err := cfg.applyDefaults(); err != nil {
			return nil, err
		}
		return cfg, cfg.Validate()
	}
	return cfg, err
}

// LoadFrom reads configuration from the given path.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() error {
	if c.ProjectRoot == "" {
		c.ProjectRoot = "."
	}
	root, err := filepath.Abs(c.ProjectRoot)
	if err != nil {
		return fmt.Errorf("resolving project root %s: %w", c.ProjectRoot, err)
	}
	c.ProjectRoot = root

	if c.Script == "" {
		c.Script = DefaultScript
	}
	// the default flags are bash specific
	if c.Interpreter == "" {
		c.Interpreter = DefaultInterpreter
		if c.InterpreterFlags == "" {
			c.InterpreterFlags = DefaultInterpreterFlags
		}
	}
	if c.Encoding == "" {
		c.Encoding = infra.DefaultEncoding
	}
	if c.StderrPrefix == "" {
		c.StderrPrefix = domain.DefaultStderrMark
	}
	if c.ProbeTimeoutMS == 0 {
		c.ProbeTimeoutMS = int(infra.DefaultProbeTimeout / time.Millisecond)
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.Windows.ToolDirs == nil {
		c.Windows.ToolDirs = slices.Clone(infra.DefaultWindowsToolDirs)
	}

	return nil
}

func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return fmt.Errorf("config: log_level must be one of: debug, info, warn, error")
	}

	if c.ProbeTimeoutMS < 0 {
		return fmt.Errorf("config: probe_timeout_ms cannot be negative")
	}

	if _, err := c.Flags(); err != nil {
		return err
	}

	return nil
}

// Flags splits interpreter_flags the way a shell would.
func (c *Config) Flags() ([]string, error) {
	flags, err := shellquote.Split(c.InterpreterFlags)
	if err != nil {
		return nil, fmt.Errorf("config: invalid interpreter_flags %q: %w", c.InterpreterFlags, err)
	}
	return flags, nil
}

func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutMS) * time.Millisecond
}

// Request builds the run request for the configured script.
func (c *Config) Request() (domain.RunRequest, error) {
	flags, err := c.Flags()
	if err != nil {
		return domain.RunRequest{}, err
	}

	req := domain.RunRequest{
		Dir:              c.ProjectRoot,
		Interpreter:      c.Interpreter,
		InterpreterFlags: flags,
		Script:           c.Script,
	}

	if err := domain.NewRequestValidator().Validate(req); err != nil {
		return domain.RunRequest{}, fmt.Errorf("config: %w", err)
	}

	return req, nil
}

func (c *Config) level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// NewLogger creates the application logger. The TUI owns the terminal so
// in that mode logs are written to log_file, or a file in the XDG state
// directory. The returned closer releases that file.
func (c *Config) NewLogger(format domain.OutputFormat) (*slog.Logger, io.Closer, error) {
	level := c.level()

	if format == domain.FormatTUI {
		path := c.LogFile
		if path == "" {
			p, err := xdg.StateFile(filepath.Join("deploytui", "deploytui.log"))
			if err != nil {
				return nil, nil, fmt.Errorf("resolving log file: %w", err)
			}
			path = p
		}

		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file %s: %w", path, err)
		}

		return slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level})), f, nil
	}

	if term.IsTerminal(int(os.Stderr.Fd())) {
		return slog.New(slogcolor.NewHandler(os.Stderr, &slogcolor.Options{Level: level})), nopCloser{}, nil
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nopCloser{}, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// TemplateConfig returns a commented TOML file with the default values.
func TemplateConfig() string {
	return `# project_root is the working directory of the validation script
project_root = "."
script = "` + DefaultScript + `"
interpreter = "` + DefaultInterpreter + `"
interpreter_flags = "` + DefaultInterpreterFlags + `"
encoding = "utf-8"
stderr_prefix = "` + domain.DefaultStderrMark + `"
probe_timeout_ms = 1000
log_level = "warn"
# log_file = "/tmp/deploytui.log"
# metrics_file = "/var/lib/node_exporter/deploytui.prom"

[windows]
# tool_dirs = ['C:\Program Files\nodejs']
`
}
