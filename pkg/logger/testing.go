package logger

import (
	"fmt"
	"sync"
	"testing"
)

// TestLogger routes log lines through testing.T.Logf (when a *testing.T is
// available) and also retains them in memory so a test can assert on what
// was logged, instead of only on captured stdout.
type TestLogger struct {
	T *testing.T

	mu      *sync.Mutex
	entries *[]string
	fields  map[string]interface{}
}

// NewTestLogger creates a TestLogger bound to t.
func NewTestLogger(t *testing.T) Logger {
	return &TestLogger{
		T:       t,
		mu:      &sync.Mutex{},
		entries: &[]string{},
	}
}

func (l *TestLogger) record(level, msg string) {
	line := fmt.Sprintf("[%s] %s", level, msg)
	if len(l.fields) > 0 {
		line = fmt.Sprintf("%s %v", line, l.fields)
	}
	l.mu.Lock()
	*l.entries = append(*l.entries, line)
	l.mu.Unlock()
	if l.T != nil {
		l.T.Log(line)
	}
}

func (l *TestLogger) Debug(msg string) { l.record("DEBUG", msg) }
func (l *TestLogger) Info(msg string)  { l.record("INFO", msg) }
func (l *TestLogger) Warn(msg string)  { l.record("WARN", msg) }
func (l *TestLogger) Error(msg string) { l.record("ERROR", msg) }
func (l *TestLogger) Fatal(msg string) { l.record("FATAL", msg) }

// WithField returns a new TestLogger sharing the same entry log but carrying
// one extra field, mirroring zerologLogger's immutable-builder behavior.
func (l *TestLogger) WithField(key string, value interface{}) Logger {
	merged := make(map[string]interface{}, len(l.fields)+1)
	for k, v := range l.fields {
		merged[k] = v
	}
	merged[key] = value
	return &TestLogger{T: l.T, mu: l.mu, entries: l.entries, fields: merged}
}

// WithFields returns a new TestLogger carrying every entry of fields.
func (l *TestLogger) WithFields(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &TestLogger{T: l.T, mu: l.mu, entries: l.entries, fields: merged}
}

// Entries returns every line logged through this TestLogger or any logger
// derived from it via WithField/WithFields, in order.
func (l *TestLogger) Entries() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(*l.entries))
	copy(out, *l.entries)
	return out
}

// NewMockLogger creates a TestLogger for use in tests. It can be called with
// or without a testing.T; without one, entries are retained but never routed
// through t.Logf.
func NewMockLogger(t ...*testing.T) Logger {
	if len(t) > 0 {
		return NewTestLogger(t[0])
	}
	return NewTestLogger(nil)
}
