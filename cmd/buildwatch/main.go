package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"buildwatch/internal/config"
	"buildwatch/internal/runner"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	configPath      string
	logLevel        string
	serviceMessages bool
	validate        bool
	expect          int
	kind            string
	reportPath      string
	tracePath       string
	stripANSI       bool

	outputLogPath string
	usePTY        bool
	workDir       string
)

// exitCodeError carries a process exit code out of a command without printing anything.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

var rootCmd = &cobra.Command{
	Use:   "buildwatch",
	Short: "Buildwatch - classify build output and check test reporting",
	Long: `Buildwatch runs a build tool, forwards its stdout as messages and its stderr as warnings,
and holds back the tool's failure report until the build has exited.

Service messages (##teamcity[...]) found on stdout are grouped by flowId and can be validated:
every 'Started' message needs a matching 'Finished' message in the same flow.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		slog.SetDefault(setupLogger(os.Stderr, logLevel))
	},
}

var runCmd = &cobra.Command{
	Use:   "run [flags] -- cmd [args...]",
	Short: "Run a build command and classify its output",
	Long: `Run a build command and classify its output.

The exit status is the command's exit status. When the command succeeded but service
message validation failed, the exit status is 1.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSession(cmd)
		if err != nil {
			return err
		}

		opts := runner.Options{
			Command:   args,
			Dir:       workDir,
			UsePTY:    usePTY,
			StripANSI: stripANSI,
		}
		if outputLogPath != "" {
			f, err := os.Create(outputLogPath)
			if err != nil {
				return fmt.Errorf("failed to create output log: %w", err)
			}
			defer func() { _ = f.Close() }()
			opts.OutputLog = f
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		res, err := runner.Run(ctx, opts, s.classifier())
		if err != nil {
			return err
		}
		return s.complete(args, res)
	},
}

var replayCmd = &cobra.Command{
	Use:   "replay output.log",
	Short: "Classify a recorded output log",
	Long:  `Feed an output log written by 'buildwatch run --output-log' through the same pipeline.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSession(cmd)
		if err != nil {
			return err
		}

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open output log: %w", err)
		}
		defer func() { _ = f.Close() }()

		res, err := runner.Replay(f, s.classifier(), stripANSI)
		if errors.Is(err, runner.ErrNoExitRecord) {
			slog.Warn("output log is incomplete, treating the build as failed", "path", args[0])
		} else if err != nil {
			return err
		}
		return s.complete([]string{"replay", args[0]}, res)
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate file",
	Short: "Validate the service messages of a plain text build log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		validate = true
		s, err := loadSession(cmd)
		if err != nil {
			return err
		}

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open log: %w", err)
		}
		defer func() { _ = f.Close() }()

		if err := s.consume(f); err != nil {
			return fmt.Errorf("failed to read log: %w", err)
		}
		return s.complete([]string{"validate", args[0]}, runner.Result{})
	},
}

// loadSession reads the config file and applies the flags that were set on top of it.
func loadSession(cmd *cobra.Command) (*session, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if validate {
		cfg.Validation.Enabled = true
	}
	if flags.Changed("kind") {
		cfg.Validation.Kind = kind
	}
	if flags.Changed("expect") {
		cfg.Validation.Enabled = true
		cfg.Validation.Expected = &expect
	}
	return newSession(cfg, slog.Default(), cmd.OutOrStdout(), serviceMessages)
}

func (s *session) complete(command []string, res runner.Result) error {
	summary := s.finish(command, res)
	if err := s.writeOutputs(summary, tracePath, reportPath); err != nil {
		return err
	}
	if code := exitCode(summary); code != 0 {
		return &exitCodeError{code: code}
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: $"+config.EnvConfigPath+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&serviceMessages, "service-messages", false, "Write classified output as service messages to stdout instead of logging it")
	rootCmd.PersistentFlags().BoolVar(&validate, "validate", false, "Validate service message flows")
	rootCmd.PersistentFlags().IntVar(&expect, "expect", 0, "Expected number of finished events of --kind (implies --validate)")
	rootCmd.PersistentFlags().StringVar(&kind, "kind", "test", "Event kind counted by --expect")
	rootCmd.PersistentFlags().StringVar(&reportPath, "report", "", "Write a run report; .html renders it as a page, anything else as Markdown")
	rootCmd.PersistentFlags().StringVar(&tracePath, "trace", "", "Write the decoded service messages grouped by flow")
	rootCmd.PersistentFlags().BoolVar(&stripANSI, "strip-ansi", true, "Remove terminal escape sequences before classifying output")

	runCmd.Flags().StringVarP(&outputLogPath, "output-log", "o", "", "Record both output streams and the exit code for 'buildwatch replay'")
	runCmd.Flags().BoolVar(&usePTY, "pty", term.IsTerminal(int(os.Stdout.Fd())), "Attach the command's stdout to a pseudo-terminal")
	runCmd.Flags().StringVarP(&workDir, "dir", "C", "", "Working directory for the command")
	// Flags after the command belong to the command.
	runCmd.Flags().SetInterspersed(false)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(validateCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		var exitErr *exitCodeError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
