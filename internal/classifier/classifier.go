// Package classifier sorts a build tool's stderr into warnings and the withheld failure report.
package classifier

import (
	"strings"
	"sync"
)

// Stream tags which output channel a line came from.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// LogLine is a single line of child process output.
type LogLine struct {
	Stream Stream
	Line   string
}

// Sink receives classified lines.
type Sink interface {
	Message(text string)
	Warning(text string)
	ActivityStarted(name string)
	ActivityFinished(name string)
}

const (
	DefaultFailureMarker = "FAILURE:"
	DefaultReporterTag   = "[org.gradle.BuildExceptionReporter]"
	DefaultReportName    = "Gradle failure report"
)

// Config holds the literals the failure report heuristic matches on.
type Config struct {
	// FailureMarker opens a failure report when a stderr line starts with it (after trimming)
	// and the previous stderr line was blank.
	FailureMarker string
	// ReporterTag opens a failure report whenever a stderr line contains it.
	ReporterTag string
	// ReportName names the activity block wrapped around the report on non-zero exit.
	ReportName string
}

// DefaultConfig returns the Gradle literals.
func DefaultConfig() Config {
	return Config{
		FailureMarker: DefaultFailureMarker,
		ReporterTag:   DefaultReporterTag,
		ReportName:    DefaultReportName,
	}
}

// Classifier decides for every stderr line whether it is a plain warning or part of the
// terminal failure report. Report lines are withheld until OnProcessFinished.
//
// A blank stderr line is held until the next event: it opens the report together with a
// following failure banner, and is emitted as a warning before anything else.
//
// Stdout and stderr readers and the exit callback may call concurrently; every call runs
// under one mutex, and sink calls happen while it is held so replayed lines never interleave
// with a concurrent warning.
type Classifier struct {
	mu                   sync.Mutex
	sink                 Sink
	cfg                  Config
	collecting           bool
	previousLineWasBlank bool
	blankLine            string // held while previousLineWasBlank
	buffer               []string
	finished             bool
}

// New creates a classifier for one process run. Empty Config fields take the defaults.
func New(sink Sink, cfg Config) *Classifier {
	def := DefaultConfig()
	if cfg.FailureMarker == "" {
		cfg.FailureMarker = def.FailureMarker
	}
	if cfg.ReporterTag == "" {
		cfg.ReporterTag = def.ReporterTag
	}
	if cfg.ReportName == "" {
		cfg.ReportName = def.ReportName
	}
	return &Classifier{sink: sink, cfg: cfg}
}

// OnStandardOutput forwards line as an informational message.
func (c *Classifier) OnStandardOutput(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseBlank()
	c.sink.Message(line)
}

// OnErrorOutput emits line as a warning, or buffers it once a failure report has started.
func (c *Classifier) OnErrorOutput(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.collecting {
		c.buffer = append(c.buffer, line)
		return
	}

	trimmed := strings.TrimSpace(line)
	if (strings.HasPrefix(trimmed, c.cfg.FailureMarker) && c.previousLineWasBlank) ||
		strings.Contains(line, c.cfg.ReporterTag) {
		c.collecting = true
		if c.previousLineWasBlank {
			c.buffer = append(c.buffer, c.blankLine)
			c.previousLineWasBlank = false
		}
		c.buffer = append(c.buffer, line)
		return
	}

	c.releaseBlank()
	if trimmed == "" {
		c.previousLineWasBlank = true
		c.blankLine = line
		return
	}
	c.sink.Warning(line)
}

// releaseBlank emits a held blank line and clears previousLineWasBlank.
func (c *Classifier) releaseBlank() {
	if c.previousLineWasBlank {
		c.sink.Warning(c.blankLine)
		c.previousLineWasBlank = false
		c.blankLine = ""
	}
}

// OnProcessFinished replays the buffered report as warnings, wrapped in an activity block when
// exitCode is non-zero, then clears the buffer and leaves collecting mode. It returns the
// replayed lines. Later calls emit nothing unless new lines were withheld in between.
func (c *Classifier) OnProcessFinished(exitCode int) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.finished && len(c.buffer) == 0 && !c.previousLineWasBlank {
		c.collecting = false
		return nil
	}
	c.finished = true

	c.releaseBlank()
	var report []string
	if exitCode != 0 {
		c.sink.ActivityStarted(c.cfg.ReportName)
		report = c.flush()
		c.sink.ActivityFinished(c.cfg.ReportName)
	} else {
		report = c.flush()
	}
	c.collecting = false
	return report
}

func (c *Classifier) flush() []string {
	report := c.buffer
	for _, line := range report {
		c.sink.Warning(line)
	}
	c.buffer = nil
	return report
}

// Feed dispatches line by its stream tag.
func (c *Classifier) Feed(line LogLine) {
	if line.Stream == StreamStderr {
		c.OnErrorOutput(line.Line)
		return
	}
	c.OnStandardOutput(line.Line)
}

// Collecting reports whether a failure report is being buffered.
func (c *Classifier) Collecting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.collecting
}

// Buffered returns a copy of the lines withheld so far.
func (c *Classifier) Buffered() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.buffer...)
}
