package infra

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/msaeedsaeedi/deploytui/internal/domain"
)

func writeScript(dir, body string) string {
	GinkgoHelper()
	Expect(os.WriteFile(filepath.Join(dir, "validate.sh"), []byte("#!/bin/sh\n"+body+"\n"), 0o755)).To(Succeed())
	return "validate.sh"
}

func byStream(lines []domain.OutputLine, s domain.Stream) []string {
	out := []string{}
	for _, l := range lines {
		if l.Stream == s {
			out = append(out, l.Text)
		}
	}
	return out
}

var _ = Describe("CommandRunner", func() {
	var (
		dir    string
		runner *CommandRunner
		env    domain.Environment
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()

		decoder, err := NewLineDecoder("utf-8")
		Expect(err).ToNot(HaveOccurred())
		runner = NewCommandRunner(decoder, nil)

		env = NewEnvironmentBuilder(EnvOptions{
			GOOS:     "linux",
			LookPath: func(string) (string, error) { return "", errors.New("disabled") },
		}, nil).Build(context.Background(), os.Environ())
	})

	request := func(script string) domain.RunRequest {
		return domain.RunRequest{Dir: dir, Interpreter: "sh", Script: script}
	}

	run := func(ctx context.Context, req domain.RunRequest) ([]domain.OutputLine, domain.RunResult, error) {
		lines := make(chan domain.OutputLine)
		var got []domain.OutputLine
		collected := make(chan struct{})
		go func() {
			defer close(collected)
			for l := range lines {
				got = append(got, l)
			}
		}()

		res, err := runner.Run(ctx, req, env, lines)
		close(lines)
		<-collected
		return got, res, err
	}

	It("relays every line of both streams in per-stream order", func() {
		script := writeScript(dir, `
echo a
echo x >&2
echo b
echo y >&2
echo c`)

		lines, res, err := run(context.Background(), request(script))
		Expect(err).ToNot(HaveOccurred())
		Expect(lines).To(HaveLen(5))
		Expect(byStream(lines, domain.StreamStdout)).To(Equal([]string{"a", "b", "c"}))
		Expect(byStream(lines, domain.StreamStderr)).To(Equal([]string{"x", "y"}))
		Expect(res.Classification).To(Equal(domain.ClassificationSuccess))
		Expect(res.ID).ToNot(BeEmpty())
		Expect(runner.Spawned()).To(BeEquivalentTo(1))
	})

	It("suppresses blank lines", func() {
		script := writeScript(dir, `
printf 'a\n\n\r\nb\n'
printf '\n\nx\n\n' >&2`)

		lines, _, err := run(context.Background(), request(script))
		Expect(err).ToNot(HaveOccurred())
		Expect(byStream(lines, domain.StreamStdout)).To(Equal([]string{"a", "b"}))
		Expect(byStream(lines, domain.StreamStderr)).To(Equal([]string{"x"}))
	})

	It("keeps a final line without terminator", func() {
		script := writeScript(dir, `printf 'first\nlast'`)

		lines, _, err := run(context.Background(), request(script))
		Expect(err).ToNot(HaveOccurred())
		Expect(byStream(lines, domain.StreamStdout)).To(Equal([]string{"first", "last"}))
	})

	It("replaces malformed bytes and completes the run", func() {
		script := writeScript(dir, `printf 'ok\377\376bad\n'; echo after`)

		lines, res, err := run(context.Background(), request(script))
		Expect(err).ToNot(HaveOccurred())
		Expect(byStream(lines, domain.StreamStdout)).To(Equal([]string{"ok��bad", "after"}))
		Expect(res.Classification).To(Equal(domain.ClassificationSuccess))
	})

	DescribeTable("classifies the exit code",
		func(code string, want int, class domain.Classification) {
			script := writeScript(dir, "echo done; exit "+code)

			_, res, err := run(context.Background(), request(script))
			Expect(err).ToNot(HaveOccurred())
			Expect(res.ExitCode).To(Equal(want))
			Expect(res.Classification).To(Equal(class))
		},
		Entry("success", "0", 0, domain.ClassificationSuccess),
		Entry("warnings", "1", 1, domain.ClassificationWarning),
		Entry("failure", "2", 2, domain.ClassificationFailure),
		Entry("other failure", "42", 42, domain.ClassificationFailure),
	)

	It("runs in the project root with the built environment", func() {
		script := writeScript(dir, `pwd; echo "unbuffered=$PYTHONUNBUFFERED"`)

		lines, _, err := run(context.Background(), request(script))
		Expect(err).ToNot(HaveOccurred())

		want, err := filepath.EvalSymlinks(dir)
		Expect(err).ToNot(HaveOccurred())
		out := byStream(lines, domain.StreamStdout)
		Expect(out).To(HaveLen(2))
		got, err := filepath.EvalSymlinks(out[0])
		Expect(err).ToNot(HaveOccurred())
		Expect(got).To(Equal(want))
		Expect(out[1]).To(Equal("unbuffered=1"))
	})

	It("reports a missing script without spawning", func() {
		lines, _, err := run(context.Background(), request("missing.sh"))

		var runErr *domain.RunError
		Expect(errors.As(err, &runErr)).To(BeTrue())
		Expect(runErr.Kind).To(Equal(domain.ErrorScriptNotFound))
		Expect(runErr.Path).To(Equal(filepath.Join(dir, "missing.sh")))
		Expect(lines).To(BeEmpty())
		Expect(runner.Spawned()).To(BeZero())
	})

	It("reports a missing interpreter", func() {
		req := request(writeScript(dir, "echo hi"))
		req.Interpreter = "deploytui-no-such-shell"

		_, _, err := run(context.Background(), req)

		var runErr *domain.RunError
		Expect(errors.As(err, &runErr)).To(BeTrue())
		Expect(runErr.Kind).To(Equal(domain.ErrorInterpreterNotFound))
		Expect(runErr.Path).To(Equal("deploytui-no-such-shell"))
		Expect(runner.Spawned()).To(BeZero())
	})

	It("reports permission errors with the script path", func() {
		req := request(writeScript(dir, "echo hi"))
		shell := filepath.Join(dir, "not-executable")
		Expect(os.WriteFile(shell, []byte("#!/bin/sh\n"), 0o644)).To(Succeed())
		req.Interpreter = shell

		_, _, err := run(context.Background(), req)

		var runErr *domain.RunError
		Expect(errors.As(err, &runErr)).To(BeTrue())
		Expect(runErr.Kind).To(Equal(domain.ErrorPermissionDenied))
		Expect(runErr.Path).To(Equal(filepath.Join(dir, "validate.sh")))
	})

	It("kills the child when the context is cancelled", func() {
		script := writeScript(dir, "echo started; sleep 30; echo never")

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		type result struct {
			lines []domain.OutputLine
			err   error
		}
		done := make(chan result, 1)
		go func() {
			lines, _, err := run(ctx, request(script))
			done <- result{lines, err}
		}()

		time.Sleep(300 * time.Millisecond)
		cancel()

		var r result
		Eventually(done).WithTimeout(5 * time.Second).Should(Receive(&r))
		Expect(r.err).To(MatchError(context.Canceled))
		Expect(byStream(r.lines, domain.StreamStdout)).ToNot(ContainElement("never"))
	})

	Context("with a command prefix", func() {
		BeforeEach(func() {
			env = domain.NewEnvironment(map[string]string{"PATH": os.Getenv("PATH")}, []string{"env"})
		})

		It("runs the script behind the prefix", func() {
			lines, res, err := run(context.Background(), request(writeScript(dir, "echo hi; exit 1")))
			Expect(err).ToNot(HaveOccurred())
			Expect(byStream(lines, domain.StreamStdout)).To(Equal([]string{"hi"}))
			Expect(res.Classification).To(Equal(domain.ClassificationWarning))
		})

		It("still reports a missing interpreter", func() {
			req := request(writeScript(dir, "echo hi"))
			req.Interpreter = "deploytui-no-such-shell"

			lines, _, err := run(context.Background(), req)

			var runErr *domain.RunError
			Expect(errors.As(err, &runErr)).To(BeTrue())
			Expect(runErr.Kind).To(Equal(domain.ErrorInterpreterNotFound))
			Expect(lines).To(BeEmpty())
			Expect(runner.Spawned()).To(BeZero())
		})

		It("still reports an interpreter that cannot be executed", func() {
			req := request(writeScript(dir, "echo hi"))
			Expect(os.WriteFile(filepath.Join(dir, "not-executable"), []byte("#!/bin/sh\n"), 0o644)).To(Succeed())
			req.Interpreter = "./not-executable"

			_, _, err := run(context.Background(), req)

			var runErr *domain.RunError
			Expect(errors.As(err, &runErr)).To(BeTrue())
			Expect(runErr.Kind).To(Equal(domain.ErrorPermissionDenied))
			Expect(runErr.Path).To(Equal(filepath.Join(dir, "validate.sh")))
			Expect(runner.Spawned()).To(BeZero())
		})
	})
})
