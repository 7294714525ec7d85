// Package transcript maintains the visible conversation transcript of
// a call: an ordered, append-only sequence of agent and caller lines.
package transcript

import (
	"sync"
	"time"
)

// Speaker identifies who produced a transcript line.
type Speaker string

const (
	SpeakerAgent  Speaker = "agent"
	SpeakerCaller Speaker = "caller"
)

// Entry is one transcript line. Entries are never mutated or reordered
// after append.
type Entry struct {
	Speaker Speaker
	Text    string
	At      time.Time
}

// Log is an append-only transcript. It is safe for concurrent use; the
// UI reads snapshots while the engine appends.
type Log struct {
	mu       sync.RWMutex
	entries  []Entry
	onAppend func(Entry)
}

// NewLog creates an empty transcript log.
func NewLog() *Log {
	return &Log{}
}

// OnAppend registers a callback invoked for every appended entry.
// The callback runs on the appender's goroutine; keep it cheap.
func (l *Log) OnAppend(fn func(Entry)) {
	l.mu.Lock()
	l.onAppend = fn
	l.mu.Unlock()
}

// Append adds an entry to the end of the transcript.
func (l *Log) Append(speaker Speaker, text string) {
	e := Entry{Speaker: speaker, Text: text, At: time.Now()}

	l.mu.Lock()
	l.entries = append(l.entries, e)
	fn := l.onAppend
	l.mu.Unlock()

	if fn != nil {
		fn(e)
	}
}

// Entries returns a snapshot of the transcript in append order.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
