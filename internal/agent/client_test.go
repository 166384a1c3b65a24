package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/anvilworks/anvil/internal/cache"
	"github.com/anvilworks/anvil/internal/ratelimit"
	"github.com/anvilworks/anvil/internal/retry"
)

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

func TestClient_ChatCachesNonStreaming(t *testing.T) {
	provider := &scriptedProvider{script: []scriptedTurn{{text: "cached answer"}}}
	client := NewClient(provider, ClientOptions{
		Cache: cache.New(cache.Options{TTL: time.Minute, MaxEntries: 10}),
		Retry: fastRetry(),
	})

	req := &CompletionRequest{
		System:   "sys",
		Messages: []Message{{Role: "user", Content: "question"}},
	}

	first, err := client.Chat(context.Background(), req)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	second, err := client.Chat(context.Background(), req)
	if err != nil {
		t.Fatalf("Chat (cached): %v", err)
	}
	if first.Content != second.Content {
		t.Errorf("cache must return identical content: %q vs %q", first.Content, second.Content)
	}
	if provider.calls != 1 {
		t.Fatalf("cache hit must not touch the provider, got %d calls", provider.calls)
	}
}

func TestClient_StreamingNeverCached(t *testing.T) {
	provider := &scriptedProvider{script: []scriptedTurn{{text: "one"}, {text: "two"}}}
	client := NewClient(provider, ClientOptions{
		Cache: cache.New(cache.Options{TTL: time.Minute, MaxEntries: 10}),
		Retry: fastRetry(),
	})
	req := &CompletionRequest{Messages: []Message{{Role: "user", Content: "q"}}}

	if _, err := client.ChatStream(context.Background(), req, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := client.ChatStream(context.Background(), req, nil); err != nil {
		t.Fatal(err)
	}
	if provider.calls != 2 {
		t.Fatalf("streaming must always reach the provider, got %d calls", provider.calls)
	}
}

func TestClient_ToolRoundsNotStored(t *testing.T) {
	provider := &scriptedProvider{script: []scriptedTurn{
		{calls: []ToolCall{{ID: "x", Name: "t", Arguments: json.RawMessage(`{}`)}}},
		{calls: []ToolCall{{ID: "y", Name: "t", Arguments: json.RawMessage(`{}`)}}},
	}}
	client := NewClient(provider, ClientOptions{
		Cache: cache.New(cache.Options{TTL: time.Minute, MaxEntries: 10}),
		Retry: fastRetry(),
	})
	req := &CompletionRequest{Messages: []Message{{Role: "user", Content: "q"}}}

	resp, err := client.Chat(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("tool calls lost: %+v", resp)
	}
	// Same request again: a tool round must not have been stored.
	if _, err := client.Chat(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if provider.calls != 2 {
		t.Fatalf("tool responses must not be cached, got %d calls", provider.calls)
	}
}

func TestClient_RetriesTransientErrors(t *testing.T) {
	provider := &scriptedProvider{script: []scriptedTurn{
		{err: errors.New("connection reset by peer")},
		{text: "recovered"},
	}}
	client := NewClient(provider, ClientOptions{Retry: fastRetry()})

	resp, err := client.ChatStream(context.Background(), &CompletionRequest{
		Messages: []Message{{Role: "user", Content: "q"}},
	}, nil)
	if err != nil {
		t.Fatalf("transient error should be retried: %v", err)
	}
	if resp.Content != "recovered" {
		t.Errorf("content = %q", resp.Content)
	}
	if provider.calls != 2 {
		t.Errorf("expected 2 provider calls, got %d", provider.calls)
	}
}

func TestClient_PermanentErrorNotRetried(t *testing.T) {
	provider := &scriptedProvider{script: []scriptedTurn{
		{err: errors.New("403 forbidden")},
		{text: "never reached"},
	}}
	client := NewClient(provider, ClientOptions{Retry: fastRetry()})

	_, err := client.ChatStream(context.Background(), &CompletionRequest{
		Messages: []Message{{Role: "user", Content: "q"}},
	}, nil)
	if err == nil {
		t.Fatal("permanent error should surface")
	}
	if provider.calls != 1 {
		t.Errorf("permanent error must not retry, got %d calls", provider.calls)
	}
}

func TestClient_DuplicateToolCallIDReplaced(t *testing.T) {
	provider := &scriptedProvider{script: []scriptedTurn{
		{calls: []ToolCall{
			{ID: "dup", Name: "first", Arguments: json.RawMessage(`{"v":1}`)},
			{ID: "dup", Name: "second", Arguments: json.RawMessage(`{"v":2}`)},
		}},
	}}
	client := NewClient(provider, ClientOptions{Retry: fastRetry()})

	resp, err := client.ChatStream(context.Background(), &CompletionRequest{
		Messages: []Message{{Role: "user", Content: "q"}},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("duplicate id should collapse to one call, got %d", len(resp.ToolCalls))
	}
	if resp.ToolCalls[0].Name != "second" {
		t.Errorf("later call must replace earlier, got %q", resp.ToolCalls[0].Name)
	}
}

func TestClient_RateLimiterConsulted(t *testing.T) {
	provider := &scriptedProvider{script: []scriptedTurn{{text: "a"}, {text: "b"}, {text: "c"}}}
	limiter := ratelimit.NewLimiter(ratelimit.Config{
		MaxRequests: 100, Window: time.Second, Burst: 0, Enabled: true,
	})
	client := NewClient(provider, ClientOptions{Limiter: limiter, Retry: fastRetry()})

	for i := 0; i < 3; i++ {
		if _, err := client.ChatStream(context.Background(), &CompletionRequest{
			Messages: []Message{{Role: "user", Content: "q"}},
		}, nil); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if provider.calls != 3 {
		t.Errorf("expected all calls to pass the limiter, got %d", provider.calls)
	}
}

func TestClient_NoProvider(t *testing.T) {
	client := NewClient(nil, ClientOptions{})
	if _, err := client.Chat(context.Background(), &CompletionRequest{}); !errors.Is(err, ErrNoProvider) {
		t.Fatalf("expected ErrNoProvider, got %v", err)
	}
}
