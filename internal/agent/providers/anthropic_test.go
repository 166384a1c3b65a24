package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anvilworks/anvil/internal/agent"
)

func anthropicEvent(w http.ResponseWriter, event, payload string) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
}

func anthropicTestServer(t *testing.T, write func(w http.ResponseWriter)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		write(w)
	}))
}

func TestAnthropic_StreamsTextDeltas(t *testing.T) {
	server := anthropicTestServer(t, func(w http.ResponseWriter) {
		anthropicEvent(w, "message_start", `{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","content":[],"model":"claude-sonnet-4-20250514","usage":{"input_tokens":10,"output_tokens":0}}}`)
		anthropicEvent(w, "content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`)
		anthropicEvent(w, "content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hello"}}`)
		anthropicEvent(w, "content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":" world"}}`)
		anthropicEvent(w, "content_block_stop", `{"type":"content_block_stop","index":0}`)
		anthropicEvent(w, "message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":4}}`)
		anthropicEvent(w, "message_stop", `{"type":"message_stop"}`)
	})
	defer server.Close()

	provider, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test", BaseURL: server.URL})
	if err != nil {
		t.Fatal(err)
	}
	chunks, err := provider.Complete(context.Background(), &agent.CompletionRequest{
		System:   "you are X",
		Messages: []agent.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	text, calls, err := drain(t, chunks)
	if err != nil {
		t.Fatal(err)
	}
	if text != "Hello world" || len(calls) != 0 {
		t.Fatalf("text=%q calls=%v", text, calls)
	}
}

func TestAnthropic_AssemblesToolUseBlocks(t *testing.T) {
	server := anthropicTestServer(t, func(w http.ResponseWriter) {
		anthropicEvent(w, "message_start", `{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","content":[],"model":"claude-sonnet-4-20250514","usage":{"input_tokens":10,"output_tokens":0}}}`)
		anthropicEvent(w, "content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"toolu_1","name":"list_files","input":{}}}`)
		anthropicEvent(w, "content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{\"path\":"}}`)
		anthropicEvent(w, "content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"\".\"}"}}`)
		anthropicEvent(w, "content_block_stop", `{"type":"content_block_stop","index":0}`)
		anthropicEvent(w, "message_delta", `{"type":"message_delta","delta":{"stop_reason":"tool_use"},"usage":{"output_tokens":8}}`)
		anthropicEvent(w, "message_stop", `{"type":"message_stop"}`)
	})
	defer server.Close()

	provider, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test", BaseURL: server.URL})
	if err != nil {
		t.Fatal(err)
	}
	chunks, err := provider.Complete(context.Background(), &agent.CompletionRequest{
		Messages: []agent.Message{{Role: "user", Content: "list"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	_, calls, err := drain(t, chunks)
	if err != nil {
		t.Fatal(err)
	}
	if len(calls) != 1 {
		t.Fatalf("expected one tool call, got %d", len(calls))
	}
	if calls[0].ID != "toolu_1" || calls[0].Name != "list_files" {
		t.Errorf("call = %+v", calls[0])
	}
	if string(calls[0].Arguments) != `{"path":"."}` {
		t.Errorf("arguments = %s", calls[0].Arguments)
	}
}

func TestAnthropic_StreamEndWithoutMessageStop(t *testing.T) {
	server := anthropicTestServer(t, func(w http.ResponseWriter) {
		anthropicEvent(w, "content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`)
		anthropicEvent(w, "content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"assembled"}}`)
		// Stream ends abruptly.
	})
	defer server.Close()

	provider, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test", BaseURL: server.URL})
	if err != nil {
		t.Fatal(err)
	}
	chunks, err := provider.Complete(context.Background(), &agent.CompletionRequest{
		Messages: []agent.Message{{Role: "user", Content: "q"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	text, _, err := drain(t, chunks)
	if err != nil {
		t.Fatalf("truncated stream should still succeed: %v", err)
	}
	if text != "assembled" {
		t.Errorf("text = %q", text)
	}
}

func TestAnthropic_RequiresAPIKey(t *testing.T) {
	if _, err := NewAnthropicProvider(AnthropicConfig{}); err == nil {
		t.Fatal("missing key should error")
	}
}
