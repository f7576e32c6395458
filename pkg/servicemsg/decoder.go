package servicemsg

import (
	"fmt"
	"io"
	"regexp"
	"sort"
	"sync"
)

const (
	// DefaultPattern matches any service message frame. Escaped characters (|x) are consumed as
	// a unit so that |] never closes the frame.
	DefaultPattern = `##teamcity\[(?:\|.|[^\]|])*\]`

	// TestPattern matches only test lifecycle frames and plain messages.
	TestPattern = `##teamcity\[(?:test|message)(?:\|.|[^\]|])*\]`

	// DefaultFlowPattern extracts the flow identifier from a matched frame.
	DefaultFlowPattern = `flowId='(.*?)'`
)

// Decoder collects every substring of the consumed lines that matches its pattern.
// Consume is safe for concurrent use.
type Decoder struct {
	mu       sync.Mutex
	pattern  *regexp.Regexp
	messages []string
}

// NewDecoder creates a decoder using DefaultPattern.
func NewDecoder() *Decoder {
	return &Decoder{pattern: regexp.MustCompile(DefaultPattern)}
}

// SetPattern replaces the extraction pattern. It must be called before decoding starts.
func (d *Decoder) SetPattern(expr string) error {
	re, err := regexp.Compile(expr)
	if err != nil {
		return fmt.Errorf("compile pattern %q: %w", expr, err)
	}
	d.mu.Lock()
	d.pattern = re
	d.mu.Unlock()
	return nil
}

// Pattern returns the current extraction pattern.
func (d *Decoder) Pattern() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pattern.String()
}

// Consume scans line for all non-overlapping matches and appends them in order.
// It returns the matches found in this line.
func (d *Decoder) Consume(line string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	matches := d.pattern.FindAllString(line, -1)
	d.messages = append(d.messages, matches...)
	return matches
}

// Messages returns a copy of all decoded messages in insertion order.
func (d *Decoder) Messages() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.messages...)
}

// FlowDecoder is a Decoder that additionally groups matches by their flowId attribute.
type FlowDecoder struct {
	Decoder
	flowPattern *regexp.Regexp
	flows       map[string][]string
	order       []string
}

// NewFlowDecoder creates a flow-aware decoder using DefaultPattern and DefaultFlowPattern.
func NewFlowDecoder() *FlowDecoder {
	return &FlowDecoder{
		Decoder:     Decoder{pattern: regexp.MustCompile(DefaultPattern)},
		flowPattern: regexp.MustCompile(DefaultFlowPattern),
		flows:       make(map[string][]string),
	}
}

// SetFlowPattern replaces the flow identifier pattern. Its first capture group is the flow id.
func (f *FlowDecoder) SetFlowPattern(expr string) error {
	re, err := regexp.Compile(expr)
	if err != nil {
		return fmt.Errorf("compile flow pattern %q: %w", expr, err)
	}
	if re.NumSubexp() < 1 {
		return fmt.Errorf("flow pattern %q has no capture group", expr)
	}
	f.mu.Lock()
	f.flowPattern = re
	f.mu.Unlock()
	return nil
}

// Consume appends every match to the message list and, when the match carries a flow
// identifier, to that flow as well. Flows are created on first use.
func (f *FlowDecoder) Consume(line string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	matches := f.pattern.FindAllString(line, -1)
	for _, m := range matches {
		f.messages = append(f.messages, m)
		sub := f.flowPattern.FindStringSubmatch(m)
		if sub == nil {
			continue
		}
		id := sub[1]
		if _, ok := f.flows[id]; !ok {
			f.order = append(f.order, id)
		}
		f.flows[id] = append(f.flows[id], m)
	}
	return matches
}

// Flows returns a copy of the flow id to message sequence mapping.
func (f *FlowDecoder) Flows() map[string][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string][]string, len(f.flows))
	for id, msgs := range f.flows {
		out[id] = append([]string(nil), msgs...)
	}
	return out
}

// FlowIDs returns flow identifiers in order of first appearance.
func (f *FlowDecoder) FlowIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.order...)
}

// WriteTrace dumps all messages followed by the per-flow grouping.
func (f *FlowDecoder) WriteTrace(w io.Writer) error {
	for _, m := range f.Messages() {
		if _, err := fmt.Fprintln(w, m); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(w, "==== Flows ===="); err != nil {
		return err
	}
	flows := f.Flows()
	ids := make([]string, 0, len(flows))
	for id := range flows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if _, err := fmt.Fprintf(w, "== flow:%s\n", id); err != nil {
			return err
		}
		for _, m := range flows[id] {
			if _, err := fmt.Fprintf(w, "=== %s\n", m); err != nil {
				return err
			}
		}
	}
	return nil
}
