// Package report builds the Markdown summary of a build run.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"buildwatch/internal/runner"
	"buildwatch/pkg/markdown"
	"buildwatch/pkg/servicemsg"
)

// Summary is everything a report shows about one run.
type Summary struct {
	RunID    string
	Command  []string
	ExitCode int
	Signal   string
	Duration time.Duration
	Stats    runner.Stats
	// Report holds the failure report lines the classifier withheld.
	Report []string
	Flows  []FlowCount
	// Validated is false when no flow validation ran.
	Validated  bool
	Validation error
}

// FlowCount summarizes one flow of service messages.
type FlowCount struct {
	FlowID   string
	Messages int
	Finished int // finished events of the counted kind
}

// CountFlows counts messages per flow and the finished events of kind among them. Frames that
// do not parse are counted as messages only.
func CountFlows(flows map[string][]string, kind string) []FlowCount {
	ids := make([]string, 0, len(flows))
	for id := range flows {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	counts := make([]FlowCount, 0, len(ids))
	for _, id := range ids {
		fc := FlowCount{FlowID: id, Messages: len(flows[id])}
		for _, raw := range flows[id] {
			ev, ok, err := servicemsg.ParseEvent(raw)
			if err == nil && ok && ev.Kind == kind && ev.Phase == servicemsg.PhaseFinished {
				fc.Finished++
			}
		}
		counts = append(counts, fc)
	}
	return counts
}

// Build renders s as Markdown.
func Build(s Summary) string {
	var b strings.Builder

	b.WriteString("# Build report\n\n")
	b.WriteString("| | |\n|---|---|\n")
	if s.RunID != "" {
		row(&b, "Run", "`"+s.RunID+"`")
	}
	row(&b, "Command", "`"+strings.ReplaceAll(strings.Join(s.Command, " "), "`", "'")+"`")
	row(&b, "Result", outcome(s))
	row(&b, "Exit code", fmt.Sprint(s.ExitCode))
	if s.Signal != "" {
		row(&b, "Signal", s.Signal)
	}
	row(&b, "Duration", s.Duration.Round(time.Millisecond).String())
	if s.Stats.Samples > 0 {
		row(&b, "Peak RSS", fmt.Sprintf("%.1f MB", s.Stats.PeakRSSMB))
		row(&b, "CPU", fmt.Sprintf("user %s, system %s", s.Stats.UserCPU.Round(time.Millisecond), s.Stats.SystemCPU.Round(time.Millisecond)))
		row(&b, "Threads", fmt.Sprint(s.Stats.MaxThreads))
	}

	if len(s.Report) > 0 {
		b.WriteString("\n## Failure report\n\n")
		fence := fenceFor(s.Report)
		b.WriteString(fence + "text\n")
		for _, line := range s.Report {
			b.WriteString(line + "\n")
		}
		b.WriteString(fence + "\n")
	}

	if len(s.Flows) > 0 {
		b.WriteString("\n## Service message flows\n\n")
		b.WriteString("| Flow | Messages | Finished |\n|---|---:|---:|\n")
		for _, fc := range s.Flows {
			fmt.Fprintf(&b, "| %s | %d | %d |\n", cell(fc.FlowID), fc.Messages, fc.Finished)
		}
	}

	if s.Validated {
		b.WriteString("\n## Validation\n\n")
		if s.Validation == nil {
			b.WriteString("All flows are balanced.\n")
		} else {
			for _, err := range unjoin(s.Validation) {
				b.WriteString("- " + cell(err.Error()) + "\n")
			}
		}
	}

	return b.String()
}

// HTML renders s as a standalone HTML page.
func HTML(s Summary) string {
	return markdown.RenderDocument("Build report: "+strings.Join(s.Command, " "), Build(s))
}

func outcome(s Summary) string {
	switch {
	case s.ExitCode != 0:
		return "**failed**"
	case s.Validated && s.Validation != nil:
		return "**validation failed**"
	default:
		return "succeeded"
	}
}

func row(b *strings.Builder, key, value string) {
	fmt.Fprintf(b, "| %s | %s |\n", key, value)
}

func cell(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "|", "\\|"), "\n", " ")
}

// fenceFor returns a backtick fence longer than any backtick run in lines.
func fenceFor(lines []string) string {
	longest := 0
	for _, line := range lines {
		run := 0
		for _, r := range line {
			if r == '`' {
				run++
				longest = max(longest, run)
			} else {
				run = 0
			}
		}
	}
	return strings.Repeat("`", max(3, longest+1))
}

// unjoin flattens errors.Join trees into their leaves.
func unjoin(err error) []error {
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return []error{err}
	}
	var errs []error
	for _, e := range joined.Unwrap() {
		errs = append(errs, unjoin(e)...)
	}
	return errs
}
