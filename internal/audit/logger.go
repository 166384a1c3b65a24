package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Logger writes audit events to a configured sink. Safe for concurrent use;
// the critical section covers only the encode-and-write.
type Logger struct {
	mu        sync.Mutex
	config    Config
	out       io.Writer
	file      *os.File
	sessionID string
}

// NewLogger creates a logger for the given config. A file sink is opened in
// append mode.
func NewLogger(config Config) (*Logger, error) {
	l := &Logger{config: config}

	switch {
	case config.Output == "" || config.Output == "stderr":
		l.out = os.Stderr
	case config.Output == "stdout":
		l.out = os.Stdout
	case strings.HasPrefix(config.Output, "file:"):
		path := strings.TrimPrefix(config.Output, "file:")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		l.file = f
		l.out = f
	default:
		return nil, fmt.Errorf("unsupported audit output: %q", config.Output)
	}

	return l, nil
}

// NewNopLogger returns a disabled logger, the default for tests.
func NewNopLogger() *Logger {
	return &Logger{config: Config{Enabled: false}, out: io.Discard}
}

// SetSessionID stamps subsequent events with a session id.
func (l *Logger) SetSessionID(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sessionID = id
}

// Log writes one event, filling id, timestamp and session id.
func (l *Logger) Log(event Event) {
	if l == nil || !l.config.Enabled {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Severity == "" {
		event.Severity = SeverityInfo
	}
	event.Message = l.truncate(event.Message)
	event.Error = l.truncate(event.Error)

	l.mu.Lock()
	defer l.mu.Unlock()
	if event.SessionID == "" {
		event.SessionID = l.sessionID
	}

	switch l.config.Format {
	case FormatText:
		fmt.Fprintf(l.out, "%s [%s] %s: %s\n",
			event.Timestamp.Format(time.RFC3339),
			strings.ToUpper(string(event.Severity)),
			event.Kind,
			event.Message)
	default:
		data, err := json.Marshal(event)
		if err != nil {
			return
		}
		l.out.Write(append(data, '\n'))
	}
}

// Info logs an informational event.
func (l *Logger) Info(kind EventKind, message string, details map[string]any) {
	l.Log(Event{Kind: kind, Severity: SeverityInfo, Message: message, Details: details})
}

// Warn logs a warning event.
func (l *Logger) Warn(kind EventKind, message string, details map[string]any) {
	l.Log(Event{Kind: kind, Severity: SeverityWarn, Message: message, Details: details})
}

// Error logs an error event.
func (l *Logger) Error(kind EventKind, message string, err error) {
	event := Event{Kind: kind, Severity: SeverityError, Message: message}
	if err != nil {
		event.Error = err.Error()
	}
	l.Log(event)
}

// Close closes a file-backed sink. Events are written as they are logged,
// so there is nothing to flush.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

func (l *Logger) truncate(s string) string {
	max := l.config.MaxFieldSize
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "...[truncated]"
}
