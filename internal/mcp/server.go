package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/anvilworks/anvil/internal/agent"
)

// Server exposes a tool registry as an MCP stdio server, so other MCP
// hosts can drive anvil's skills. It is the inverse of Client: one request
// frame in, one response frame out, newline-delimited.
type Server struct {
	registry *agent.ToolRegistry
	name     string
	version  string
	logger   *slog.Logger
}

// NewServer creates a server over the given registry.
func NewServer(registry *agent.ToolRegistry, name, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		registry: registry,
		name:     name,
		version:  version,
		logger:   logger.With("component", "mcp_server"),
	}
}

// Serve processes frames from in and writes responses to out until EOF or
// context cancellation.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64<<10), 10<<20)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req JSONRPCRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.logger.Warn("dropping malformed frame", "error", err)
			continue
		}
		// Notifications carry no id and get no response.
		if req.Method == "notifications/initialized" {
			continue
		}

		resp := s.handle(ctx, &req)
		payload, err := json.Marshal(resp)
		if err != nil {
			s.logger.Error("encode response", "error", err)
			continue
		}
		if _, err := out.Write(append(payload, '\n')); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
	return scanner.Err()
}

func (s *Server) handle(ctx context.Context, req *JSONRPCRequest) *JSONRPCResponse {
	id := req.ID
	resp := &JSONRPCResponse{JSONRPC: "2.0", ID: &id}

	switch req.Method {
	case "initialize":
		resp.Result = mustMarshal(InitializeResult{
			ProtocolVersion: ProtocolVersion,
			Capabilities:    json.RawMessage(`{"tools":{}}`),
			ServerInfo:      ServerInfo{Name: s.name, Version: s.version},
		})

	case "tools/list":
		defs := s.registry.Definitions()
		tools := make([]*ToolInfo, 0, len(defs))
		for _, def := range defs {
			tools = append(tools, &ToolInfo{
				Name:        def.Name,
				Description: def.Description,
				InputSchema: def.InputSchema,
			})
		}
		resp.Result = mustMarshal(ListToolsResult{Tools: tools})

	case "tools/call":
		var params CallToolParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			resp.Error = &JSONRPCError{Code: -32602, Message: "invalid params: " + err.Error()}
			return resp
		}
		result, err := s.registry.Execute(ctx, params.Name, params.Arguments)
		if err != nil {
			resp.Error = &JSONRPCError{Code: -32000, Message: err.Error()}
			return resp
		}
		resp.Result = mustMarshal(CallToolResult{
			Content: []ContentBlock{{Type: "text", Text: result.Content}},
			IsError: result.IsError,
		})

	case "resources/list":
		resp.Result = mustMarshal(ListResourcesResult{Resources: []*ResourceInfo{}})

	case "prompts/list":
		resp.Result = mustMarshal(ListPromptsResult{Prompts: []*PromptInfo{}})

	default:
		resp.Error = &JSONRPCError{Code: -32601, Message: "method not found: " + req.Method}
	}
	return resp
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}
