// Package audit provides structured audit logging for agent actions, tool
// invocations, and safety decisions. Events are observability only; nothing
// on the critical path depends on them.
package audit

import "time"

// EventKind categorizes audit events.
type EventKind string

const (
	EventAgentStartup   EventKind = "agent.startup"
	EventAgentShutdown  EventKind = "agent.shutdown"
	EventSessionCreate  EventKind = "session.create"
	EventToolInvocation EventKind = "tool.invocation"
	EventToolCompletion EventKind = "tool.completion"
	EventToolDenied     EventKind = "tool.denied"
	EventCommandBlocked EventKind = "command.blocked"
	EventProviderError  EventKind = "provider.error"
	EventPluginLoaded   EventKind = "plugin.loaded"
	EventPluginError    EventKind = "plugin.error"
	EventMcpConnected   EventKind = "mcp.connected"
	EventMcpEvicted     EventKind = "mcp.evicted"
)

// Severity is the audit severity level.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// Event is a single audit log entry.
type Event struct {
	ID        string         `json:"id"`
	Kind      EventKind      `json:"kind"`
	Severity  Severity       `json:"severity"`
	Timestamp time.Time      `json:"timestamp"`
	SessionID string         `json:"session_id,omitempty"`
	ToolName  string         `json:"tool_name,omitempty"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Format selects the output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Config configures the audit logger.
type Config struct {
	Enabled      bool   `toml:"enabled"`
	Format       Format `toml:"format"`
	Output       string `toml:"output"` // "stderr", "stdout", or "file:/path"
	MaxFieldSize int    `toml:"max_field_size"`
}

// DefaultConfig returns the default audit configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:      false,
		Format:       FormatJSON,
		Output:       "stderr",
		MaxFieldSize: 1024,
	}
}
