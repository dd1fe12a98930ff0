package logger

import (
	"strings"
	"sync"
)

// Entry is one log call captured by a Recorder.
type Entry struct {
	Level   Level
	Message string
	Err     error
	Fields  []Field
}

// Field returns the value of the named field and whether it was present.
func (e Entry) Field(key string) (interface{}, bool) {
	for _, f := range e.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Recorder keeps log entries in memory. It is safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	level   Level
	entries []Entry
}

// NewRecorder creates a Recorder that captures every level.
func NewRecorder() *Recorder {
	return &Recorder{level: LevelDebug}
}

func (r *Recorder) record(level Level, msg string, err error, fields []Field) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if level < r.level {
		return
	}
	r.entries = append(r.entries, Entry{
		Level:   level,
		Message: msg,
		Err:     err,
		Fields:  append([]Field(nil), fields...),
	})
}

// Debug records a debug entry
func (r *Recorder) Debug(msg string, fields ...Field) { r.record(LevelDebug, msg, nil, fields) }

// Info records an informational entry
func (r *Recorder) Info(msg string, fields ...Field) { r.record(LevelInfo, msg, nil, fields) }

// Warn records a warning entry
func (r *Recorder) Warn(msg string, fields ...Field) { r.record(LevelWarn, msg, nil, fields) }

// Error records an error entry
func (r *Recorder) Error(msg string, err error, fields ...Field) {
	r.record(LevelError, msg, err, fields)
}

// SetLevel sets the minimum recorded level
func (r *Recorder) SetLevel(level Level) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.level = level
}

// Close is a no-op
func (r *Recorder) Close() error { return nil }

// Entries returns a copy of the recorded entries.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// Contains reports whether any entry message contains substr.
func (r *Recorder) Contains(substr string) bool {
	for _, e := range r.Entries() {
		if strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}
