package logger

import (
	"fmt"
	"sync"
)

type TestLogEntry struct {
	Severity string
	Message  string
}

// TestLogger records log entries for assertions in tests.
type TestLogger struct {
	mu      sync.Mutex
	entries *[]TestLogEntry
}

var _ Logger = (*TestLogger)(nil)

func NewTestLogger() *TestLogger {
	return &TestLogger{entries: &[]TestLogEntry{}}
}

// Logs returns a copy of the recorded entries.
func (l *TestLogger) Logs() []TestLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]TestLogEntry(nil), *l.entries...)
}

func (l *TestLogger) record(severity, msg string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.entries = append(*l.entries, TestLogEntry{
		Severity: severity,
		Message:  fmt.Sprintf(msg, args...),
	})
}

func (l *TestLogger) With(metadata map[string]interface{}) Logger { return l }
func (l *TestLogger) WithPrefix(prefix string) Logger             { return l }

func (l *TestLogger) Debug(msg string, args ...interface{}) { l.record("debug", msg, args) }
func (l *TestLogger) Info(msg string, args ...interface{})  { l.record("info", msg, args) }
func (l *TestLogger) Warn(msg string, args ...interface{})  { l.record("warn", msg, args) }
func (l *TestLogger) Error(msg string, args ...interface{}) { l.record("error", msg, args) }

func (l *TestLogger) IsDebugEnabled() bool { return true }
