// Package buildlog provides the log sinks classified build output is forwarded to.
package buildlog

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"buildwatch/pkg/servicemsg"
)

// Logger receives classified build output.
type Logger interface {
	// Message logs an informational line.
	Message(text string)
	// Warning logs a warning line.
	Warning(text string)
	// ActivityStarted opens a named block that groups the following lines.
	ActivityStarted(name string)
	// ActivityFinished closes the block opened by ActivityStarted.
	ActivityFinished(name string)
}

// SlogLogger forwards build output to a slog.Logger.
type SlogLogger struct {
	logger *slog.Logger
}

var _ Logger = &SlogLogger{}

// NewSlogLogger creates a Logger backed by logger. A nil logger uses slog.Default().
func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogLogger{logger: logger}
}

func (l *SlogLogger) Message(text string) { l.logger.Info(text) }

func (l *SlogLogger) Warning(text string) { l.logger.Warn(text) }

func (l *SlogLogger) ActivityStarted(name string) {
	l.logger.Info("activity started", "activity", name)
}

func (l *SlogLogger) ActivityFinished(name string) {
	l.logger.Info("activity finished", "activity", name)
}

// ServiceMessageLogger writes build output in the form a build orchestrator reads: informational
// lines verbatim, warnings and activity blocks as service messages.
type ServiceMessageLogger struct {
	mu sync.Mutex
	w  io.Writer
}

var _ Logger = &ServiceMessageLogger{}

func NewServiceMessageLogger(w io.Writer) *ServiceMessageLogger {
	return &ServiceMessageLogger{w: w}
}

func (l *ServiceMessageLogger) writeln(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = fmt.Fprintln(l.w, s)
}

func (l *ServiceMessageLogger) Message(text string) { l.writeln(text) }

func (l *ServiceMessageLogger) Warning(text string) {
	l.writeln(servicemsg.Format("message", map[string]string{"text": text, "status": "WARNING"}))
}

func (l *ServiceMessageLogger) ActivityStarted(name string) {
	l.writeln(servicemsg.Format("blockOpened", map[string]string{"name": name}))
}

func (l *ServiceMessageLogger) ActivityFinished(name string) {
	l.writeln(servicemsg.Format("blockClosed", map[string]string{"name": name}))
}

type tee []Logger

// Tee returns a Logger that forwards every call to all loggers, in order.
func Tee(loggers ...Logger) Logger {
	return tee(loggers)
}

func (t tee) Message(text string) {
	for _, l := range t {
		l.Message(text)
	}
}

func (t tee) Warning(text string) {
	for _, l := range t {
		l.Warning(text)
	}
}

func (t tee) ActivityStarted(name string) {
	for _, l := range t {
		l.ActivityStarted(name)
	}
}

func (t tee) ActivityFinished(name string) {
	for _, l := range t {
		l.ActivityFinished(name)
	}
}

// Consumer is anything that scans lines for service messages.
type Consumer interface {
	Consume(line string) []string
}

type decoderLogger struct {
	c Consumer
}

// DecoderLogger feeds informational lines to c. Warnings and activity markers are not service
// message carriers and are dropped.
func DecoderLogger(c Consumer) Logger {
	return decoderLogger{c: c}
}

func (d decoderLogger) Message(text string) { d.c.Consume(text) }

func (d decoderLogger) Warning(string) {}

func (d decoderLogger) ActivityStarted(string) {}

func (d decoderLogger) ActivityFinished(string) {}
