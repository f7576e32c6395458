package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"buildwatch/internal/buildlog"
	"buildwatch/internal/classifier"
	"buildwatch/internal/config"
	"buildwatch/internal/report"
	"buildwatch/internal/runner"
	"buildwatch/pkg/servicemsg"

	"github.com/google/uuid"
)

// session wires the classifier, the display sink and the service message decoder for one run.
type session struct {
	runID   string
	cfg     *config.Config
	logger  *slog.Logger
	decoder *servicemsg.FlowDecoder
	sink    buildlog.Logger
}

// newSession builds the sink chain. With serviceMessages the classified output is written to out
// in orchestrator form; otherwise it goes to logger.
func newSession(cfg *config.Config, logger *slog.Logger, out io.Writer, serviceMessages bool) (*session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	dec, err := cfg.NewFlowDecoder()
	if err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	logger = logger.With("run_id", runID)

	var display buildlog.Logger
	if serviceMessages {
		display = buildlog.NewServiceMessageLogger(out)
	} else {
		display = buildlog.NewSlogLogger(logger)
	}

	return &session{
		runID:   runID,
		cfg:     cfg,
		logger:  logger,
		decoder: dec,
		sink:    buildlog.Tee(display, buildlog.DecoderLogger(dec)),
	}, nil
}

func (s *session) classifier() *classifier.Classifier {
	return classifier.New(s.sink, s.cfg.ClassifierConfig())
}

// consume feeds a plain text log to the decoder line by line.
func (s *session) consume(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), runner.MaxLineSize)
	for scanner.Scan() {
		s.decoder.Consume(scanner.Text())
	}
	return scanner.Err()
}

// finish validates the decoded flows when enabled and assembles the run summary.
func (s *session) finish(command []string, res runner.Result) report.Summary {
	flows := s.decoder.Flows()
	summary := report.Summary{
		RunID:    s.runID,
		Command:  command,
		ExitCode: res.ExitCode,
		Signal:   res.Signal,
		Duration: res.Duration,
		Stats:    res.Stats,
		Report:   res.Report,
		Flows:    report.CountFlows(flows, s.cfg.Validation.Kind),
	}

	if s.cfg.Validation.Enabled {
		summary.Validated = true
		summary.Validation = servicemsg.ValidateFlows(flows, s.cfg.Expectation())
		if summary.Validation != nil {
			s.logger.Error("service message validation failed", "flows", len(flows), "error", summary.Validation)
		} else {
			s.logger.Info("service message validation passed", "flows", len(flows), "messages", len(s.decoder.Messages()))
		}
	}
	return summary
}

// writeOutputs writes the optional flow trace and run report.
func (s *session) writeOutputs(summary report.Summary, tracePath, reportPath string) error {
	if tracePath != "" {
		f, err := os.Create(tracePath)
		if err != nil {
			return fmt.Errorf("failed to create trace file: %w", err)
		}
		if err := s.decoder.WriteTrace(f); err != nil {
			_ = f.Close()
			return fmt.Errorf("failed to write trace: %w", err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("failed to write trace: %w", err)
		}
	}

	if reportPath != "" {
		content := report.Build(summary)
		if strings.HasSuffix(strings.ToLower(reportPath), ".html") {
			content = report.HTML(summary)
		}
		if err := os.WriteFile(reportPath, []byte(content), 0o644); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	}
	return nil
}

// exitCode is the child's exit code, or 1 when it succeeded but validation failed.
func exitCode(summary report.Summary) int {
	if summary.ExitCode != 0 {
		return summary.ExitCode
	}
	if summary.Validated && summary.Validation != nil {
		return 1
	}
	return 0
}
