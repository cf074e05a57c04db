// Package logger writes one JSON object per line for every event.
package logger

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"docsync/internal/config"
)

// Logger emits structured JSON events. The zero value is not usable; use New.
// It is safe for concurrent use.
type Logger struct {
	mu        *sync.Mutex
	enc       *json.Encoder
	loc       *time.Location
	component string
}

// New returns a Logger writing to w with timestamps in loc.
func New(w io.Writer, loc *time.Location) *Logger {
	if loc == nil {
		loc = time.UTC
	}
	return &Logger{mu: &sync.Mutex{}, enc: json.NewEncoder(w), loc: loc}
}

// FromConfig builds a Logger for the application. When a log file is configured
// the output is rotated by size; the returned closer releases it.
func FromConfig(c config.LogConfig) (*Logger, io.Closer) {
	if c.File == "" {
		return New(os.Stdout, c.Location()), nopCloser{}
	}
	w := &lumberjack.Logger{
		Filename:   c.File,
		MaxSize:    c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		Compress:   true,
	}
	return New(w, c.Location()), w
}

// Nop discards everything. Useful in tests.
func Nop() *Logger {
	return New(io.Discard, time.UTC)
}

// With returns a Logger that tags every event with the given component.
func (l *Logger) With(component string) *Logger {
	cp := *l
	cp.component = component
	return &cp
}

// Log writes data as one JSON line. A missing level is derived from status.
func (l *Logger) Log(data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	data["ts"] = time.Now().In(l.loc).Format(time.RFC3339Nano)
	if _, ok := data["component"]; !ok && l.component != "" {
		data["component"] = l.component
	}
	if _, ok := data["level"]; !ok {
		if data["status"] == "error" {
			data["level"] = "error"
		} else {
			data["level"] = "info"
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_ = l.enc.Encode(data)
}

// Info logs an event at info level.
func (l *Logger) Info(event string, fields map[string]any) {
	l.Log(merge(fields, map[string]any{"event": event, "level": "info"}))
}

// Warn logs an event at warn level.
func (l *Logger) Warn(event string, err error, fields map[string]any) {
	f := merge(fields, map[string]any{"event": event, "level": "warn"})
	if err != nil {
		f["error_message"] = err.Error()
	}
	l.Log(f)
}

// Error logs a failed event.
func (l *Logger) Error(event string, err error, fields map[string]any) {
	f := merge(fields, map[string]any{"event": event, "level": "error", "status": "error"})
	if err != nil {
		f["error_message"] = err.Error()
	}
	l.Log(f)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func merge(fields, extra map[string]any) map[string]any {
	out := make(map[string]any, len(fields)+len(extra)+2)
	for k, v := range fields {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
