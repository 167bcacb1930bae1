package canvass

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"sync"
	"time"
)

const (
	maxRequestLog  = 2000
	maxResponseLog = 4000
)

// secretFields matches JSON string values that must never reach a trace.
var secretFields = regexp.MustCompile(`"(password|password_hash|token|api_key)"\s*:\s*"[^"]*"`)

// DebugLogger traces remote document traffic: requests, responses, listener
// snapshots and sync runs. A nil *DebugLogger is valid and discards everything.
type DebugLogger struct {
	mu      sync.Mutex
	enabled bool
	out     io.Writer
	file    *os.File
	now     func() time.Time
}

// NewDebugLogger returns a disabled logger unless enabled is set. With an
// empty logPath traces go to stderr.
func NewDebugLogger(enabled bool, logPath string) (*DebugLogger, error) {
	l := &DebugLogger{enabled: enabled, out: os.Stderr, now: time.Now}
	if !enabled || logPath == "" {
		return l, nil
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("open debug log: %w", err)
	}
	l.out, l.file = f, f
	return l, nil
}

// NewDebugLoggerTo returns an enabled logger writing to w.
func NewDebugLoggerTo(w io.Writer) *DebugLogger {
	return &DebugLogger{enabled: true, out: w, now: time.Now}
}

// Close releases the trace file, if one was opened.
func (l *DebugLogger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	l.out = io.Discard
	return err
}

func (l *DebugLogger) Enabled() bool {
	return l != nil && l.enabled
}

// Log writes one trace line.
func (l *DebugLogger) Log(format string, args ...any) {
	if !l.Enabled() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	ts := l.now().UTC().Format("2006-01-02T15:04:05.000Z")
	_, _ = fmt.Fprintf(l.out, "%s canvass-debug %s\n", ts, fmt.Sprintf(format, args...))
}

// LogRequest traces a write or read against a document path. Secret fields
// in the body are masked.
func (l *DebugLogger) LogRequest(method, path string, body []byte) {
	if !l.Enabled() {
		return
	}
	l.Log("> %s %s", method, path)
	if len(body) > 0 {
		l.Log("> body %s", clip(redactSecrets(string(body)), maxRequestLog))
	}
}

// LogResponse traces an HTTP response from the document server.
func (l *DebugLogger) LogResponse(statusCode int, status string, body []byte) {
	if !l.Enabled() {
		return
	}
	l.Log("< %d %s", statusCode, status)
	if len(body) > 0 {
		l.Log("< body %s", clip(redactSecrets(string(body)), maxResponseLog))
	}
}

func (l *DebugLogger) LogError(operation string, err error) {
	if !l.Enabled() {
		return
	}
	l.Log("! %s: %v", operation, err)
}

// LogSync traces engine and listener activity.
func (l *DebugLogger) LogSync(operation string, details string) {
	if !l.Enabled() {
		return
	}
	l.Log("~ sync %s %s", operation, details)
}

func redactSecrets(s string) string {
	return secretFields.ReplaceAllString(s, `"$1":"[redacted]"`)
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s... (%d bytes)", s[:n], len(s))
}
