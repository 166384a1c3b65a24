// Package agent implements the agent execution engine: the provider
// contract, the tool registry, and the autonomous conversation loop.
package agent

import (
	"context"
	"encoding/json"
)

// LLMProvider defines the interface for Large Language Model backends.
//
// Implementations handle the specifics of one wire format (Anthropic,
// OpenAI-compatible, Ollama, the first-party gateway) while presenting a
// unified streaming interface to the loop.
//
// Implementations must be safe for concurrent use; each Complete call
// creates an independent stream.
type LLMProvider interface {
	// Complete sends a prompt and returns a streaming response channel.
	// The channel is closed when the stream ends or fails.
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)

	// Name returns the stable lowercase provider identifier.
	Name() string

	// Models returns the models this provider can serve.
	Models() []Model

	// SupportsTools reports whether tool definitions may be supplied.
	SupportsTools() bool
}

// CompletionRequest contains all parameters for one provider round.
type CompletionRequest struct {
	// Model is the model identifier; empty selects the provider default.
	Model string `json:"model"`

	// System is the system prompt, handled separately from messages by
	// most provider APIs. Exactly one system prompt per request.
	System string `json:"system,omitempty"`

	// Messages is the conversation history in chronological order.
	Messages []Message `json:"messages"`

	// Tools are the definitions the model may call. Empty disables tool use.
	Tools []ToolDefinition `json:"tools,omitempty"`

	// MaxTokens caps the response length; 0 uses the provider default.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature adjusts sampling; 0 uses the provider default.
	Temperature float32 `json:"temperature,omitempty"`
}

// Message is a single conversation entry. Messages are never mutated after
// they are appended to a window.
type Message struct {
	// Role is "system", "user", or "assistant".
	Role string `json:"role"`

	// Content is the message text.
	Content string `json:"content"`
}

// ToolDefinition is the provider-facing projection of a registered tool.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// ToolCall is a model-emitted request to run a named tool. The ID must be
// echoed verbatim in the matching tool result.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ChatResponse is the canonical assembled result of one provider round,
// regardless of wire format.
type ChatResponse struct {
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	StopReason string     `json:"stop_reason,omitempty"`
}

// CompletionChunk is one element of a streaming response.
type CompletionChunk struct {
	// Text is a partial response delta.
	Text string `json:"text,omitempty"`

	// ToolCall is a fully assembled tool invocation request.
	ToolCall *ToolCall `json:"tool_call,omitempty"`

	// Done marks successful stream completion.
	Done bool `json:"done,omitempty"`

	// StopReason carries the provider's stop reason on the final chunk.
	StopReason string `json:"stop_reason,omitempty"`

	// Error terminates the stream.
	Error error `json:"-"`
}

// Model describes an available model.
type Model struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContextSize int    `json:"context_size"`
}

// ToolResult is what a tool execution hands back to the loop.
type ToolResult struct {
	// Content is the human-readable result text.
	Content string `json:"content"`

	// IsError marks a failed execution. Failures are observations for the
	// model, never loop aborts.
	IsError bool `json:"is_error,omitempty"`
}

// Tool is a named capability exposed to the LLM.
type Tool interface {
	// Name returns the unique tool name.
	Name() string

	// Description returns the natural-language description shown to the model.
	Description() string

	// Schema returns the JSON schema for the tool parameters.
	Schema() json.RawMessage

	// Execute runs the tool. A nil error with ToolResult.IsError set is a
	// tool-level failure; a non-nil error is a host-level failure. Both are
	// surfaced to the model as result text.
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// ConfirmingTool is implemented by tools that need user confirmation before
// executing in non-auto mode.
type ConfirmingTool interface {
	RequiresConfirmation() bool
}

// RequiresConfirmation reports whether the tool opted into confirmation.
func RequiresConfirmation(tool Tool) bool {
	if c, ok := tool.(ConfirmingTool); ok {
		return c.RequiresConfirmation()
	}
	return false
}

// Definition projects a tool into the shape sent to providers.
func Definition(tool Tool) ToolDefinition {
	return ToolDefinition{
		Name:        tool.Name(),
		Description: tool.Description(),
		InputSchema: tool.Schema(),
	}
}
