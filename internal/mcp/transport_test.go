package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"testing"
	"time"
)

// TestHelperProcess is not a real test: it becomes the child MCP server
// when the stdio transport tests re-execute the test binary.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("MCP_HELPER_PROCESS") != "1" {
		return
	}
	defer os.Exit(0)

	mode := os.Getenv("MCP_HELPER_MODE")
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)

	for scanner.Scan() {
		line := scanner.Bytes()
		var req JSONRPCRequest
		if err := json.Unmarshal(line, &req); err != nil {
			continue
		}
		if req.Method == "notifications/initialized" {
			continue
		}

		id := req.ID
		if mode == "bad-id" {
			id += 100
		}

		var result any
		switch req.Method {
		case "initialize":
			result = InitializeResult{
				ProtocolVersion: ProtocolVersion,
				ServerInfo:      ServerInfo{Name: "helper", Version: "1.0"},
			}
		case "tools/list":
			result = ListToolsResult{Tools: []*ToolInfo{{
				Name:        "echo",
				Description: "echo arguments back",
				InputSchema: json.RawMessage(`{"type":"object"}`),
			}}}
		case "tools/call":
			var params CallToolParams
			json.Unmarshal(req.Params, &params)
			result = CallToolResult{Content: []ContentBlock{{
				Type: "text",
				Text: "echo:" + string(params.Arguments),
			}}}
		case "hang":
			continue
		default:
			fmt.Printf(`{"jsonrpc":"2.0","id":%d,"error":{"code":-32601,"message":"method not found"}}`+"\n", id)
			continue
		}

		if mode == "garbage" {
			fmt.Println("this is not json")
			continue
		}

		payload, _ := json.Marshal(result)
		fmt.Printf(`{"jsonrpc":"2.0","id":%d,"result":%s}`+"\n", id, payload)
	}
}

func helperConfig(t *testing.T, mode string, timeout time.Duration) *ServerConfig {
	t.Helper()
	return &ServerConfig{
		Name:    "helper",
		Command: os.Args[0],
		Args:    []string{"-test.run=TestHelperProcess"},
		Env: map[string]string{
			"MCP_HELPER_PROCESS": "1",
			"MCP_HELPER_MODE":    mode,
		},
		Timeout: timeout,
	}
}

func TestStdioTransport_FullHandshake(t *testing.T) {
	if _, err := exec.LookPath(os.Args[0]); err != nil {
		t.Skip("test binary not executable")
	}

	client := NewClient(helperConfig(t, "", 5*time.Second), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Close()

	tools := client.Tools()
	if len(tools) != 1 || tools[0].Name != "echo" {
		t.Fatalf("tools = %+v", tools)
	}

	result, err := client.CallTool(context.Background(), "echo", json.RawMessage(`{"msg":"hi"}`))
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if result.Text() != `echo:{"msg":"hi"}` {
		t.Fatalf("result = %q", result.Text())
	}
}

func TestStdioTransport_SequentialCallsUseFreshIDs(t *testing.T) {
	client := NewClient(helperConfig(t, "", 5*time.Second), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Close()

	for i := 0; i < 3; i++ {
		if _, err := client.CallTool(context.Background(), "echo", json.RawMessage(`{}`)); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
}

func TestStdioTransport_MismatchedIDKillsSession(t *testing.T) {
	transport := NewStdioTransport(helperConfig(t, "bad-id", 5*time.Second), nil)
	if err := transport.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer transport.Close()

	_, err := transport.Call(context.Background(), "initialize", nil)
	var protoErr *ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
	if transport.Connected() {
		t.Fatal("transport must be dead after an id mismatch")
	}
}

func TestStdioTransport_GarbageFrameKillsSession(t *testing.T) {
	transport := NewStdioTransport(helperConfig(t, "garbage", 5*time.Second), nil)
	if err := transport.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer transport.Close()

	_, err := transport.Call(context.Background(), "initialize", nil)
	var protoErr *ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("expected ProtocolError for malformed frame, got %v", err)
	}
	if transport.Connected() {
		t.Fatal("transport must be dead after a malformed frame")
	}
}

func TestStdioTransport_TimeoutEvictsSession(t *testing.T) {
	transport := NewStdioTransport(helperConfig(t, "", 300*time.Millisecond), nil)
	if err := transport.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer transport.Close()

	_, err := transport.Call(context.Background(), "hang", nil)
	if err == nil {
		t.Fatal("hung request should time out")
	}
	if transport.Connected() {
		t.Fatal("timed-out session must be poisoned")
	}
}

func TestStdioTransport_CallAfterCloseFails(t *testing.T) {
	transport := NewStdioTransport(helperConfig(t, "", time.Second), nil)
	if err := transport.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	transport.Close()
	if _, err := transport.Call(context.Background(), "initialize", nil); err == nil {
		t.Fatal("call on closed transport should fail")
	}
}

func TestServerConfig_Validate(t *testing.T) {
	if err := (&ServerConfig{}).Validate(); err == nil {
		t.Error("empty config should fail")
	}
	if err := (&ServerConfig{Name: "x"}).Validate(); err == nil {
		t.Error("missing command should fail")
	}
	if err := (&ServerConfig{Name: "x", Command: "server"}).Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}
