package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/anvilworks/anvil/internal/audit"
)

// Manager owns the set of connected MCP servers and the reverse map from
// tool name to server. On tool-name collision across servers the first
// registration wins; the loser is logged. A protocol violation evicts the
// offending server and its tools.
type Manager struct {
	mu        sync.Mutex
	clients   map[string]*Client
	toolIndex map[string]string // tool name -> server name
	logger    *slog.Logger
	auditLog  *audit.Logger

	newClient func(cfg *ServerConfig) *Client
}

// NewManager creates an empty registry.
func NewManager(logger *slog.Logger, auditLog *audit.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if auditLog == nil {
		auditLog = audit.NewNopLogger()
	}
	m := &Manager{
		clients:   make(map[string]*Client),
		toolIndex: make(map[string]string),
		logger:    logger.With("component", "mcp_manager"),
		auditLog:  auditLog,
	}
	m.newClient = func(cfg *ServerConfig) *Client {
		return NewClient(cfg, logger)
	}
	return m
}

// Connect spawns and initializes one server, merging its tools into the
// registry.
func (m *Manager) Connect(ctx context.Context, cfg *ServerConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	if _, exists := m.clients[cfg.Name]; exists {
		m.mu.Unlock()
		return fmt.Errorf("server %s already connected", cfg.Name)
	}
	factory := m.newClient
	m.mu.Unlock()

	client := factory(cfg)
	if err := client.Connect(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[cfg.Name] = client
	for _, tool := range client.Tools() {
		if owner, taken := m.toolIndex[tool.Name]; taken {
			m.logger.Warn("mcp tool name collision, keeping first registration",
				"tool", tool.Name, "owner", owner, "loser", cfg.Name)
			continue
		}
		m.toolIndex[tool.Name] = cfg.Name
	}
	m.auditLog.Info(audit.EventMcpConnected, "connected "+cfg.Name, map[string]any{
		"tools": len(client.Tools()),
	})
	return nil
}

// Disconnect closes one server and removes its tools.
func (m *Manager) Disconnect(name string) error {
	m.mu.Lock()
	client, ok := m.clients[name]
	if ok {
		m.removeLocked(name)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("server %s not connected", name)
	}
	return client.Close()
}

// removeLocked drops the server and its tool-index entries. Caller holds
// the mutex.
func (m *Manager) removeLocked(name string) {
	delete(m.clients, name)
	for tool, owner := range m.toolIndex {
		if owner == name {
			delete(m.toolIndex, tool)
		}
	}
}

// evict drops a misbehaving server after a protocol violation.
func (m *Manager) evict(name string, cause error) {
	m.mu.Lock()
	client, ok := m.clients[name]
	if ok {
		m.removeLocked(name)
	}
	m.mu.Unlock()

	if ok {
		client.Close()
		m.logger.Error("evicted MCP server", "server", name, "cause", cause)
		m.auditLog.Error(audit.EventMcpEvicted, "evicted "+name, cause)
	}
}

// Servers returns the connected server names, sorted.
func (m *Manager) Servers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.clients))
	for name := range m.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Client returns the client for a server.
func (m *Manager) Client(name string) (*Client, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	client, ok := m.clients[name]
	return client, ok
}

// Tools returns every routed tool keyed by tool name. The map carries no
// server; Route names the owner of a tool.
func (m *Manager) Tools() map[string]*ToolInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]*ToolInfo, len(m.toolIndex))
	for toolName, serverName := range m.toolIndex {
		client, ok := m.clients[serverName]
		if !ok {
			continue
		}
		for _, tool := range client.Tools() {
			if tool.Name == toolName {
				out[toolName] = tool
			}
		}
	}
	return out
}

// Route returns the server owning a tool.
func (m *Manager) Route(toolName string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	server, ok := m.toolIndex[toolName]
	return server, ok
}

// CallTool routes a tool call through the reverse map. Protocol violations
// and timeouts evict the server.
func (m *Manager) CallTool(ctx context.Context, toolName string, arguments json.RawMessage) (*CallToolResult, error) {
	m.mu.Lock()
	serverName, ok := m.toolIndex[toolName]
	var client *Client
	if ok {
		client = m.clients[serverName]
	}
	m.mu.Unlock()

	if !ok || client == nil {
		return nil, fmt.Errorf("no MCP server provides tool %s", toolName)
	}

	result, err := client.CallTool(ctx, toolName, arguments)
	if err != nil {
		var protoErr *ProtocolError
		if errors.As(err, &protoErr) || !client.Connected() {
			m.evict(serverName, err)
		}
		return nil, err
	}
	return result, nil
}

// Close kills every child process.
func (m *Manager) Close() {
	m.mu.Lock()
	clients := make([]*Client, 0, len(m.clients))
	for _, client := range m.clients {
		clients = append(clients, client)
	}
	m.clients = make(map[string]*Client)
	m.toolIndex = make(map[string]string)
	m.mu.Unlock()

	for _, client := range clients {
		client.Close()
	}
}
