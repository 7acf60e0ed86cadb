package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/msaeedsaeedi/deploytui/internal/domain"
	"github.com/msaeedsaeedi/deploytui/internal/infra"
)

func writeConfig(dir, content string) string {
	GinkgoHelper()
	path := filepath.Join(dir, "config.toml")
	Expect(os.WriteFile(path, []byte(content), 0o644)).To(Succeed())
	return path
}

var _ = Describe("LoadFrom", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	It("reads every setting", func() {
		path := writeConfig(dir, `
project_root = "`+dir+`"
script = "check.sh"
interpreter = "/bin/bash"
interpreter_flags = "--login -e"
encoding = "windows-1252"
stderr_prefix = "ERR: "
probe_timeout_ms = 250
log_level = "debug"
metrics_file = "/tmp/x.prom"

[windows]
tool_dirs = ['C:\tools']
`)

		cfg, err := LoadFrom(path)
		Expect(err).ToNot(HaveOccurred())
		Expect(cfg.ProjectRoot).To(Equal(dir))
		Expect(cfg.Script).To(Equal("check.sh"))
		Expect(cfg.Interpreter).To(Equal("/bin/bash"))
		Expect(cfg.Flags()).To(Equal([]string{"--login", "-e"}))
		Expect(cfg.Encoding).To(Equal("windows-1252"))
		Expect(cfg.StderrPrefix).To(Equal("ERR: "))
		Expect(cfg.ProbeTimeout()).To(Equal(250 * time.Millisecond))
		Expect(cfg.LogLevel).To(Equal("debug"))
		Expect(cfg.MetricsFile).To(Equal("/tmp/x.prom"))
		Expect(cfg.Windows.ToolDirs).To(Equal([]string{`C:\tools`}))
	})

	It("applies defaults", func() {
		cfg, err := LoadFrom(writeConfig(dir, ""))
		Expect(err).ToNot(HaveOccurred())

		wd, err := os.Getwd()
		Expect(err).ToNot(HaveOccurred())
		Expect(cfg.ProjectRoot).To(Equal(wd))
		Expect(cfg.Script).To(Equal(DefaultScript))
		Expect(cfg.Interpreter).To(Equal("bash"))
		Expect(cfg.Flags()).To(Equal([]string{"--noprofile", "--norc"}))
		Expect(cfg.Encoding).To(Equal("utf-8"))
		Expect(cfg.StderrPrefix).To(Equal(domain.DefaultStderrMark))
		Expect(cfg.ProbeTimeout()).To(Equal(time.Second))
		Expect(cfg.LogLevel).To(Equal("warn"))
		Expect(cfg.Windows.ToolDirs).To(Equal(infra.DefaultWindowsToolDirs))
	})

	It("does not apply bash flags to another interpreter", func() {
		cfg, err := LoadFrom(writeConfig(dir, `interpreter = "sh"`))
		Expect(err).ToNot(HaveOccurred())
		Expect(cfg.Flags()).To(BeEmpty())
	})

	It("fails on a missing file", func() {
		_, err := LoadFrom(filepath.Join(dir, "nope.toml"))
		Expect(err).To(MatchError(ContainSubstring("reading config")))
	})

	It("fails on invalid TOML", func() {
		_, err := LoadFrom(writeConfig(dir, "script = "))
		Expect(err).To(MatchError(ContainSubstring("parsing config")))
	})

	It("validates the log level", func() {
		_, err := LoadFrom(writeConfig(dir, `log_level = "chatty"`))
		Expect(err).To(MatchError(ContainSubstring("log_level")))
	})

	It("validates the interpreter flags", func() {
		_, err := LoadFrom(writeConfig(dir, `interpreter_flags = "--rcfile 'unterminated"`))
		Expect(err).To(MatchError(ContainSubstring("interpreter_flags")))
	})

	It("parses its own template", func() {
		cfg, err := LoadFrom(writeConfig(dir, TemplateConfig()))
		Expect(err).ToNot(HaveOccurred())
		Expect(cfg.Script).To(Equal(DefaultScript))
		Expect(cfg.StderrPrefix).To(Equal(domain.DefaultStderrMark))
	})
})

var _ = Describe("Load", func() {
	It("falls back to defaults when the XDG config file does not exist", func() {
		DeferCleanup(xdg.Reload)
		GinkgoT().Setenv(envOverride, "")
		GinkgoT().Setenv("XDG_CONFIG_HOME", GinkgoT().TempDir())
		xdg.Reload()

		cfg, err := Load()
		Expect(err).ToNot(HaveOccurred())
		Expect(cfg.Interpreter).To(Equal(DefaultInterpreter))
	})

	It("fails when the file named by the environment does not exist", func() {
		GinkgoT().Setenv(envOverride, filepath.Join(GinkgoT().TempDir(), "absent.toml"))

		_, err := Load()
		Expect(err).To(MatchError(ContainSubstring("reading config")))
	})

	It("honours the environment override", func() {
		dir := GinkgoT().TempDir()
		GinkgoT().Setenv(envOverride, writeConfig(dir, `script = "other.sh"`))

		Expect(DefaultPath()).To(Equal(filepath.Join(dir, "config.toml")))
		cfg, err := Load()
		Expect(err).ToNot(HaveOccurred())
		Expect(cfg.Script).To(Equal("other.sh"))
	})
})

var _ = Describe("Request", func() {
	It("builds a validated run request", func() {
		cfg := &Config{ProjectRoot: "/srv/app", Script: "check.sh", Interpreter: "bash", InterpreterFlags: `--rcfile "my rc"`}

		req, err := cfg.Request()
		Expect(err).ToNot(HaveOccurred())
		Expect(req).To(Equal(domain.RunRequest{
			Dir:              "/srv/app",
			Interpreter:      "bash",
			InterpreterFlags: []string{"--rcfile", "my rc"},
			Script:           "check.sh",
		}))
	})

	It("rejects an empty script", func() {
		cfg := &Config{ProjectRoot: "/srv/app", Interpreter: "bash"}
		_, err := cfg.Request()
		Expect(err).To(MatchError(ContainSubstring("script cannot be empty")))
	})
})

var _ = Describe("NewLogger", func() {
	It("logs to a file in TUI mode", func() {
		path := filepath.Join(GinkgoT().TempDir(), "deploytui.log")
		cfg := &Config{LogLevel: "info", LogFile: path}

		logger, closer, err := cfg.NewLogger(domain.FormatTUI)
		Expect(err).ToNot(HaveOccurred())
		logger.Info("hello from the test")
		Expect(closer.Close()).To(Succeed())

		data, err := os.ReadFile(path)
		Expect(err).ToNot(HaveOccurred())
		Expect(string(data)).To(ContainSubstring("hello from the test"))
	})
})
