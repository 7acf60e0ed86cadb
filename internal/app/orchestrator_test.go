package app

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/msaeedsaeedi/deploytui/internal/config"
	"github.com/msaeedsaeedi/deploytui/internal/domain"
	"github.com/msaeedsaeedi/deploytui/internal/ui"
)

var _ = Describe("Orchestrator", func() {
	var (
		dir string
		cfg *config.Config
		out *bytes.Buffer
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		out = &bytes.Buffer{}
		cfg = &config.Config{
			ProjectRoot:  dir,
			Script:       "validate.sh",
			Interpreter:  "sh",
			Encoding:     "utf-8",
			StderrPrefix: testPrefix,
			LogLevel:     "warn",
		}
	})

	It("runs once in raw mode and prints the stream", func() {
		writeScript(dir, "echo checking; echo missing az >&2; exit 1")

		outcome, err := NewOrchestrator(cfg, nil, out).Execute(context.Background(), domain.FormatRaw)
		Expect(err).ToNot(HaveOccurred())
		Expect(outcome.ExitCode()).To(Equal(1))

		Expect(out.String()).To(ContainSubstring("checking\n"))
		Expect(out.String()).To(ContainSubstring("E: missing az\n"))
		Expect(out.String()).To(ContainSubstring(domain.MsgWarnings))
	})

	It("writes a JSON report", func() {
		writeScript(dir, "echo fine")

		outcome, err := NewOrchestrator(cfg, nil, out).Execute(context.Background(), domain.FormatJSON)
		Expect(err).ToNot(HaveOccurred())
		Expect(outcome.ExitCode()).To(Equal(0))

		var report ui.ReportJSON
		Expect(json.Unmarshal(out.Bytes(), &report)).To(Succeed())
		Expect(report.Lines).To(ContainElement("fine"))
		Expect(report.Result).ToNot(BeNil())
		Expect(report.Result.Classification).To(Equal("success"))
		Expect(report.Error).To(BeNil())
	})

	It("reports run errors in the exit code", func() {
		outcome, err := NewOrchestrator(cfg, nil, out).Execute(context.Background(), domain.FormatRaw)
		Expect(err).ToNot(HaveOccurred())
		Expect(outcome.Err.Kind).To(Equal(domain.ErrorScriptNotFound))
		Expect(outcome.ExitCode()).To(Equal(3))
		Expect(out.String()).To(ContainSubstring(filepath.Join(dir, "validate.sh")))
	})

	It("writes metrics when configured", func() {
		writeScript(dir, "echo fine; exit 2")
		cfg.MetricsFile = filepath.Join(dir, "deploytui.prom")

		_, err := NewOrchestrator(cfg, nil, out).Execute(context.Background(), domain.FormatRaw)
		Expect(err).ToNot(HaveOccurred())

		data, err := os.ReadFile(cfg.MetricsFile)
		Expect(err).ToNot(HaveOccurred())
		Expect(string(data)).To(ContainSubstring(`deploytui_validation_runs_count{classification="failure"} 1`))
	})

	It("rejects an unknown encoding", func() {
		cfg.Encoding = "klingon-8"
		_, err := NewOrchestrator(cfg, nil, out).Execute(context.Background(), domain.FormatRaw)
		Expect(err).To(MatchError(ContainSubstring("klingon-8")))
	})
})
