package buildlog

import "sync"

// Level is the kind of a recorded entry.
type Level string

const (
	LevelMessage          Level = "message"
	LevelWarning          Level = "warning"
	LevelActivityStarted  Level = "activity-started"
	LevelActivityFinished Level = "activity-finished"
)

// Entry is one call recorded by a Recorder.
type Entry struct {
	Level Level
	Text  string
}

// Recorder keeps every call in order. It is safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

var _ Logger = &Recorder{}

func (r *Recorder) add(level Level, text string) {
	r.mu.Lock()
	r.entries = append(r.entries, Entry{Level: level, Text: text})
	r.mu.Unlock()
}

func (r *Recorder) Message(text string) { r.add(LevelMessage, text) }
func (r *Recorder) Warning(text string) { r.add(LevelWarning, text) }
func (r *Recorder) ActivityStarted(name string) { r.add(LevelActivityStarted, name) }
func (r *Recorder) ActivityFinished(name string) { r.add(LevelActivityFinished, name) }

// Entries returns a copy of the recorded entries.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// Texts returns the text of every entry with the given level.
func (r *Recorder) Texts(level Level) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.entries {
		if e.Level == level {
			out = append(out, e.Text)
		}
	}
	return out
}

// Reset drops all recorded entries.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.entries = nil
	r.mu.Unlock()
}
