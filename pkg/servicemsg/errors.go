package servicemsg

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMalformed       = errors.New("malformed service message")
	ErrNoFlows         = errors.New("no flows to validate")
	ErrUnmatchedFinish = errors.New("finished event without matching started event")
	ErrDanglingStart   = errors.New("started events not closed")
	ErrCountMismatch   = errors.New("wrong number of events reported")
)

// MalformedError reports a frame that could not be parsed.
type MalformedError struct {
	FlowID string
	Text   string
	Reason string
}

func (e *MalformedError) Error() string {
	if e.FlowID != "" {
		return fmt.Sprintf("flow %s: failed to parse service message %q: %s", e.FlowID, e.Text, e.Reason)
	}
	return fmt.Sprintf("failed to parse service message %q: %s", e.Text, e.Reason)
}

func (e *MalformedError) Unwrap() error { return ErrMalformed }

// UnmatchedFinishError reports a finished event whose kind and name were not open in its flow.
type UnmatchedFinishError struct {
	FlowID string
	Kind   string
	Name   string
	Line   string
}

func (e *UnmatchedFinishError) Error() string {
	return fmt.Sprintf("flow %s: have 'Finished' message without matching 'Started' for %s %q: %s",
		e.FlowID, e.Kind, e.Name, e.Line)
}

func (e *UnmatchedFinishError) Unwrap() error { return ErrUnmatchedFinish }

// DanglingStartError lists the events left open in a flow at end of stream.
type DanglingStartError struct {
	FlowID string
	Open   []EventKey
}

func (e *DanglingStartError) Error() string {
	open := make([]string, len(e.Open))
	for i, k := range e.Open {
		open[i] = k.String()
	}
	return fmt.Sprintf("flow %s: some 'Started' messages are not closed: [%s]", e.FlowID, strings.Join(open, ", "))
}

func (e *DanglingStartError) Unwrap() error { return ErrDanglingStart }

// CountMismatchError reports a total event count that differs from the expected one.
type CountMismatchError struct {
	Kind     string
	Expected int
	Observed int
}

func (e *CountMismatchError) Error() string {
	return fmt.Sprintf("wrong number of %s events reported: expected %d, observed %d", e.Kind, e.Expected, e.Observed)
}

func (e *CountMismatchError) Unwrap() error { return ErrCountMismatch }
