package servicemsg

import (
	"errors"
	"sort"
	"strings"
)

// Phase is the lifecycle phase of an event.
type Phase string

const (
	PhaseStarted  Phase = "Started"
	PhaseFinished Phase = "Finished"
)

// Event is a lifecycle event: a frame named <kind>Started or <kind>Finished.
type Event struct {
	Kind  string
	Phase Phase
	Name  string
	Raw   string
}

// EventKey identifies an event for matching a finish against a start.
type EventKey struct {
	Kind string
	Name string
}

func (k EventKey) String() string {
	return k.Kind + " " + k.Name
}

// Key identifies the event for matching a finish against a start.
func (e Event) Key() EventKey {
	return EventKey{Kind: e.Kind, Name: e.Name}
}

// ParseEvent parses raw into a lifecycle event. ok is false for well-formed frames that are not
// lifecycle events (testFailed, message, ...).
func ParseEvent(raw string) (ev Event, ok bool, err error) {
	msg, err := Parse(raw)
	if err != nil {
		return Event{}, false, err
	}
	return EventOf(msg)
}

// EventOf converts a parsed message into a lifecycle event.
func EventOf(msg Message) (Event, bool, error) {
	var phase Phase
	var kind string
	switch {
	case strings.HasSuffix(msg.Name, string(PhaseStarted)):
		phase = PhaseStarted
		kind = strings.TrimSuffix(msg.Name, string(PhaseStarted))
	case strings.HasSuffix(msg.Name, string(PhaseFinished)):
		phase = PhaseFinished
		kind = strings.TrimSuffix(msg.Name, string(PhaseFinished))
	default:
		return Event{}, false, nil
	}
	if kind == "" {
		return Event{}, false, &MalformedError{Text: msg.Raw, Reason: "lifecycle event without kind"}
	}
	return Event{Kind: kind, Phase: phase, Name: msg.Attr("name"), Raw: msg.Raw}, true, nil
}

// Expectation is the cross-flow count check. A negative Total disables it.
type Expectation struct {
	Kind  string
	Total int
}

// NoExpectation skips the count check.
var NoExpectation = Expectation{Total: -1}

// FlowResult is the outcome of checking one flow.
type FlowResult struct {
	FlowID   string
	Finished map[string]int // completed pairs per kind
	Err      error
}

// ValidateEvents checks that finished events close open started events in one flow. Closing is
// by kind and name, not by position, so sibling events may complete in any order.
func ValidateEvents(flowID string, events []Event) FlowResult {
	res := FlowResult{FlowID: flowID, Finished: make(map[string]int)}
	var open []EventKey
	var errs []error

	for _, ev := range events {
		if ev.Phase == PhaseStarted {
			open = append(open, ev.Key())
			continue
		}
		idx := -1
		for i, k := range open {
			if k == ev.Key() {
				idx = i
				break
			}
		}
		if idx < 0 {
			errs = append(errs, &UnmatchedFinishError{FlowID: flowID, Kind: ev.Kind, Name: ev.Name, Line: ev.Raw})
			continue
		}
		open = append(open[:idx], open[idx+1:]...)
		res.Finished[ev.Kind]++
	}
	if len(open) > 0 {
		errs = append(errs, &DanglingStartError{FlowID: flowID, Open: open})
	}
	res.Err = errors.Join(errs...)
	return res
}

// ValidateFlows checks every flow for balanced started/finished events and compares the number
// of completed events of the expected kind with the expected total. All violations are returned
// joined; use errors.As to get at the individual ones.
func ValidateFlows(flows map[string][]string, expect Expectation) error {
	if len(flows) == 0 {
		return ErrNoFlows
	}

	ids := make([]string, 0, len(flows))
	for id := range flows {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var errs []error
	observed := 0
	for _, id := range ids {
		events := make([]Event, 0, len(flows[id]))
		for _, raw := range flows[id] {
			ev, ok, err := ParseEvent(raw)
			if err != nil {
				var me *MalformedError
				if errors.As(err, &me) {
					me.FlowID = id
				}
				errs = append(errs, err)
				continue
			}
			if ok {
				events = append(events, ev)
			}
		}
		res := ValidateEvents(id, events)
		if res.Err != nil {
			errs = append(errs, res.Err)
		}
		observed += res.Finished[expect.Kind]
	}

	if expect.Total >= 0 && observed != expect.Total {
		errs = append(errs, &CountMismatchError{Kind: expect.Kind, Expected: expect.Total, Observed: observed})
	}
	return errors.Join(errs...)
}
