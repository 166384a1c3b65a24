package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anvilworks/anvil/internal/agent"
	"github.com/anvilworks/anvil/internal/safety"
)

// BridgedTool adapts one MCP tool into the agent.Tool contract so the loop
// never needs to know a tool's origin. Registered names are prefixed
// mcp_<server>_<tool> to keep them unique alongside built-in skills.
type BridgedTool struct {
	manager  *Manager
	server   string
	toolName string
	info     *ToolInfo
}

var _ agent.Tool = (*BridgedTool)(nil)

// Name returns the prefixed registry name.
func (t *BridgedTool) Name() string {
	return fmt.Sprintf("mcp_%s_%s", t.server, t.toolName)
}

// Description returns the server-provided description.
func (t *BridgedTool) Description() string {
	if t.info.Description != "" {
		return t.info.Description
	}
	return fmt.Sprintf("Tool %s provided by MCP server %s", t.toolName, t.server)
}

// Schema returns the server-provided input schema.
func (t *BridgedTool) Schema() json.RawMessage {
	if len(t.info.InputSchema) > 0 {
		return t.info.InputSchema
	}
	return json.RawMessage(`{"type":"object"}`)
}

// Execute routes the call through the manager. Output passes the secret
// redactor like every other tool result.
func (t *BridgedTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	result, err := t.manager.CallTool(ctx, t.toolName, params)
	if err != nil {
		return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
	}
	return &agent.ToolResult{
		Content: safety.SanitizeOutput(result.Text()),
		IsError: result.IsError,
	}, nil
}

// RegisterAll merges every tool of every connected server into the tool
// registry. The registry's first-wins rule handles any residual collision.
func (m *Manager) RegisterAll(registry *agent.ToolRegistry) {
	m.mu.Lock()
	type entry struct {
		server string
		info   *ToolInfo
	}
	var entries []entry
	for toolName, serverName := range m.toolIndex {
		client, ok := m.clients[serverName]
		if !ok {
			continue
		}
		for _, tool := range client.Tools() {
			if tool.Name == toolName {
				entries = append(entries, entry{server: serverName, info: tool})
			}
		}
	}
	m.mu.Unlock()

	for _, e := range entries {
		registry.Register(&BridgedTool{
			manager:  m,
			server:   e.server,
			toolName: e.info.Name,
			info:     e.info,
		})
	}
}
