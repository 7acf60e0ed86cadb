package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/msaeedsaeedi/deploytui/internal/app"
	"github.com/msaeedsaeedi/deploytui/internal/config"
	"github.com/msaeedsaeedi/deploytui/internal/domain"
)

const version = "0.1.0"

type options struct {
	configFile  string
	root        string
	script      string
	interpreter string
	flags       string
	logLevel    string
	metricsFile string
	json        bool
	raw         bool
	tui         bool
	template    bool
}

func outputFormat(opts *options) domain.OutputFormat {
	switch {
	case opts.json:
		return domain.FormatJSON
	case opts.raw:
		return domain.FormatRaw
	default:
		return domain.FormatTUI
	}
}

func loadConfig(opts *options) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.configFile != "" {
		cfg, err = config.LoadFrom(opts.configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if opts.root != "" {
		root, err := filepath.Abs(opts.root)
		if err != nil {
			return nil, fmt.Errorf("resolving project root %s: %w", opts.root, err)
		}
		cfg.ProjectRoot = root
	}
	if opts.script != "" {
		cfg.Script = opts.script
	}
	if opts.interpreter != "" {
		cfg.Interpreter = opts.interpreter
		cfg.InterpreterFlags = ""
	}
	if opts.flags != "" {
		cfg.InterpreterFlags = opts.flags
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if opts.metricsFile != "" {
		cfg.MetricsFile = opts.metricsFile
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func run(opts *options) (int, error) {
	if opts.template {
		fmt.Print(config.TemplateConfig())
		return 0, nil
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return 0, err
	}

	format := outputFormat(opts)

	logger, closer, err := cfg.NewLogger(format)
	if err != nil {
		return 0, err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orchestrator := app.NewOrchestrator(cfg, logger, os.Stdout)
	outcome, err := orchestrator.Execute(ctx, format)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			println("\n\nValidation cancelled")
			return 130, nil
		}
		return 0, err
	}

	if format == domain.FormatTUI {
		return 0, nil
	}
	return outcome.ExitCode(), nil
}

func newRootCmd(opts *options, exitCode *int) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "deploytui [flags]",
		Short:         "Run the deployment prerequisite validation",
		Long:          "deploytui - a terminal front-end for the deployment prerequisite validation script",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := run(opts)
			*exitCode = code
			return err
		},
	}

	cmd.Flags().StringVar(&opts.configFile, "config", "", "Configuration file (default $DEPLOYTUI_CONFIG or the XDG config dir)")
	cmd.Flags().StringVar(&opts.root, "root", "", "Project root the script runs in")
	cmd.Flags().StringVar(&opts.script, "script", "", "Validation script, relative to the project root")
	cmd.Flags().StringVar(&opts.interpreter, "interpreter", "", "Shell used to run the script")
	cmd.Flags().StringVar(&opts.flags, "interpreter-flags", "", "Flags passed to the interpreter before the script")
	cmd.Flags().StringVarP(&opts.logLevel, "log-level", "l", "", "Log level (debug|info|warn|error)")
	cmd.Flags().StringVar(&opts.metricsFile, "metrics-file", "", "Write Prometheus textfile metrics here on exit")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Run once and print a JSON report")
	cmd.Flags().BoolVar(&opts.raw, "raw", false, "Run once and print plain output")
	cmd.Flags().BoolVar(&opts.tui, "tui", false, "Interactive TUI (default)")
	cmd.Flags().BoolVar(&opts.template, "print-config", false, "Print a configuration template and exit")
	cmd.MarkFlagsMutuallyExclusive("json", "raw", "tui")
	cmd.Version = version

	return cmd
}

func main() {
	opts := &options{}
	exitCode := 0
	rootCmd := newRootCmd(opts, &exitCode)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		fmt.Fprintln(os.Stderr)
		rootCmd.Usage()
		os.Exit(1)
	}
	os.Exit(exitCode)
}
