package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Client is an MCP client bound to a single server. Lifecycle: Connect
// (spawn, initialize, notifications/initialized, tools/list) → ready →
// CallTool → Close.
type Client struct {
	config    *ServerConfig
	transport Transport
	logger    *slog.Logger

	mu         sync.RWMutex
	tools      []*ToolInfo
	resources  []*ResourceInfo
	prompts    []*PromptInfo
	serverInfo ServerInfo
}

// NewClient creates a client with a stdio transport.
func NewClient(cfg *ServerConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		config:    cfg,
		transport: NewStdioTransport(cfg, logger),
		logger:    logger.With("mcp_server", cfg.Name),
	}
}

// NewClientWithTransport creates a client over a caller-supplied transport,
// used by tests.
func NewClientWithTransport(cfg *ServerConfig, transport Transport, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		config:    cfg,
		transport: transport,
		logger:    logger.With("mcp_server", cfg.Name),
	}
}

// Connect runs the session handshake: initialize, the initialized
// notification, then capability discovery.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.transport.Connect(ctx); err != nil {
		return fmt.Errorf("transport connect: %w", err)
	}

	result, err := c.transport.Call(ctx, "initialize", map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    "anvil",
			"version": "1.0.0",
		},
	})
	if err != nil {
		c.transport.Close()
		return fmt.Errorf("initialize: %w", err)
	}

	var initResult InitializeResult
	if err := json.Unmarshal(result, &initResult); err != nil {
		c.transport.Close()
		return fmt.Errorf("parse initialize result: %w", err)
	}
	c.mu.Lock()
	c.serverInfo = initResult.ServerInfo
	c.mu.Unlock()

	c.logger.Info("connected to MCP server",
		"name", initResult.ServerInfo.Name,
		"version", initResult.ServerInfo.Version,
		"protocol", initResult.ProtocolVersion)

	if err := c.transport.Notify(ctx, "notifications/initialized", nil); err != nil {
		c.logger.Warn("failed to send initialized notification", "error", err)
	}

	if err := c.RefreshCapabilities(ctx); err != nil {
		return fmt.Errorf("discover tools: %w", err)
	}
	return nil
}

// Close terminates the session and kills the child.
func (c *Client) Close() error {
	return c.transport.Close()
}

// Connected reports whether the session is usable.
func (c *Client) Connected() bool {
	return c.transport.Connected()
}

// Config returns the server configuration.
func (c *Client) Config() *ServerConfig {
	return c.config
}

// ServerInfo returns the remote implementation identity.
func (c *Client) ServerInfo() ServerInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverInfo
}

// RefreshCapabilities re-fetches the tool list (required) and the resource
// and prompt lists (optional; many servers do not serve them).
func (c *Client) RefreshCapabilities(ctx context.Context) error {
	result, err := c.transport.Call(ctx, "tools/list", nil)
	if err != nil {
		return err
	}
	var toolsResult ListToolsResult
	if err := json.Unmarshal(result, &toolsResult); err != nil {
		return fmt.Errorf("parse tools/list result: %w", err)
	}

	c.mu.Lock()
	c.tools = toolsResult.Tools
	c.mu.Unlock()
	c.logger.Debug("discovered tools", "count", len(toolsResult.Tools))

	if result, err := c.transport.Call(ctx, "resources/list", nil); err == nil {
		var resourcesResult ListResourcesResult
		if json.Unmarshal(result, &resourcesResult) == nil {
			c.mu.Lock()
			c.resources = resourcesResult.Resources
			c.mu.Unlock()
		}
	}
	if result, err := c.transport.Call(ctx, "prompts/list", nil); err == nil {
		var promptsResult ListPromptsResult
		if json.Unmarshal(result, &promptsResult) == nil {
			c.mu.Lock()
			c.prompts = promptsResult.Prompts
			c.mu.Unlock()
		}
	}
	return nil
}

// Tools returns the discovered tools.
func (c *Client) Tools() []*ToolInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tools
}

// Resources returns the discovered resources.
func (c *Client) Resources() []*ResourceInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.resources
}

// Prompts returns the discovered prompts.
func (c *Client) Prompts() []*PromptInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.prompts
}

// CallTool invokes one tool on the server.
func (c *Client) CallTool(ctx context.Context, name string, arguments json.RawMessage) (*CallToolResult, error) {
	params := CallToolParams{Name: name, Arguments: arguments}
	result, err := c.transport.Call(ctx, "tools/call", params)
	if err != nil {
		return nil, err
	}
	var callResult CallToolResult
	if err := json.Unmarshal(result, &callResult); err != nil {
		return nil, fmt.Errorf("parse tools/call result: %w", err)
	}
	return &callResult, nil
}
