// Package mcp provides a Model Context Protocol client: tool servers as
// child processes speaking newline-delimited JSON-RPC 2.0 over stdio.
package mcp

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ProtocolVersion is the MCP protocol revision this client speaks.
const ProtocolVersion = "2024-11-05"

// ServerConfig holds configuration for one MCP server.
type ServerConfig struct {
	// Name identifies the server in the registry and in tool routing.
	Name string `toml:"name" json:"name"`

	// Command is the executable to spawn.
	Command string `toml:"command" json:"command"`

	// Args are passed to the command.
	Args []string `toml:"args" json:"args,omitempty"`

	// Env entries are added to the child environment. Nothing else beyond
	// the parent environment is inherited implicitly.
	Env map[string]string `toml:"env" json:"env,omitempty"`

	// WorkDir is the child working directory.
	WorkDir string `toml:"workdir" json:"workdir,omitempty"`

	// Timeout bounds each request/response exchange. Default 30s.
	Timeout time.Duration `toml:"timeout" json:"timeout,omitempty"`
}

// Validate checks the configuration.
func (c *ServerConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("server name is required")
	}
	if strings.TrimSpace(c.Command) == "" {
		return fmt.Errorf("command is required for server %s", c.Name)
	}
	return nil
}

func (c *ServerConfig) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 30 * time.Second
	}
	return c.Timeout
}

// JSONRPCRequest is one outbound request frame.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCNotification is an outbound frame without an id; no response
// follows.
type JSONRPCNotification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCResponse is one inbound response frame.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id"`
	Method  string          `json:"method,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// JSONRPCError is the error member of a response.
type JSONRPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *JSONRPCError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// ServerInfo identifies the remote implementation.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResult is the response to the initialize request.
type InitializeResult struct {
	ProtocolVersion string          `json:"protocolVersion"`
	Capabilities    json.RawMessage `json:"capabilities"`
	ServerInfo      ServerInfo      `json:"serverInfo"`
}

// ToolInfo describes one tool advertised by a server.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// ListToolsResult is the response to tools/list.
type ListToolsResult struct {
	Tools []*ToolInfo `json:"tools"`
}

// CallToolParams are the parameters of tools/call.
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ContentBlock is one element of a tool call result.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// CallToolResult is the response to tools/call.
type CallToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// Text concatenates the textual content blocks.
func (r *CallToolResult) Text() string {
	var parts []string
	for _, block := range r.Content {
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// ResourceInfo describes one resource advertised by a server.
type ResourceInfo struct {
	URI         string `json:"uri"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ListResourcesResult is the response to resources/list.
type ListResourcesResult struct {
	Resources []*ResourceInfo `json:"resources"`
}

// PromptInfo describes one prompt advertised by a server.
type PromptInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ListPromptsResult is the response to prompts/list.
type ListPromptsResult struct {
	Prompts []*PromptInfo `json:"prompts"`
}

// ProtocolError marks a framing violation: a malformed line or a response
// whose id does not match the outstanding request. It always evicts the
// session.
type ProtocolError struct {
	Server string
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("mcp protocol violation from %s: %s", e.Server, e.Reason)
}
