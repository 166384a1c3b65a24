package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/anvilworks/anvil/internal/cache"
	"github.com/anvilworks/anvil/internal/ratelimit"
	"github.com/anvilworks/anvil/internal/retry"
)

// StreamSink receives text deltas as they arrive from the provider.
type StreamSink func(delta string)

// ClientOptions configures a Client.
type ClientOptions struct {
	// Cache holds non-streaming responses. Nil disables caching.
	Cache *cache.ResponseCache

	// Limiter is the llm-class rate limiter. Nil disables limiting.
	Limiter *ratelimit.Limiter

	// LimiterKey selects the bucket, normally the provider name.
	LimiterKey string

	// Retry is the backoff policy around provider calls.
	Retry retry.Config

	// Logger receives provider call diagnostics.
	Logger *slog.Logger
}

// Client wraps an LLMProvider with the response cache, classified retry,
// and rate limiting. It is the only path the loop uses to reach a provider.
type Client struct {
	provider LLMProvider
	cache    *cache.ResponseCache
	limiter  *ratelimit.Limiter
	key      string
	retryCfg retry.Config
	logger   *slog.Logger
}

// NewClient creates a provider client.
func NewClient(provider LLMProvider, opts ClientOptions) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	key := opts.LimiterKey
	if key == "" && provider != nil {
		key = provider.Name()
	}
	retryCfg := opts.Retry
	if retryCfg.MaxAttempts == 0 {
		retryCfg = retry.DefaultConfig()
	}
	return &Client{
		provider: provider,
		cache:    opts.Cache,
		limiter:  opts.Limiter,
		key:      key,
		retryCfg: retryCfg,
		logger:   logger.With("component", "llm_client"),
	}
}

// Provider returns the wrapped provider.
func (c *Client) Provider() LLMProvider {
	return c.provider
}

// Chat performs a non-streaming round: the cache is consulted first, and a
// hit never touches the provider. Only responses without tool calls are
// stored (tool rounds have side effects that must re-run).
func (c *Client) Chat(ctx context.Context, req *CompletionRequest) (*ChatResponse, error) {
	if c.provider == nil {
		return nil, ErrNoProvider
	}

	key := c.cacheKey(req)
	if c.cache != nil {
		if text, ok := c.cache.Get(key); ok {
			c.logger.Debug("response cache hit", "provider", c.provider.Name())
			return &ChatResponse{Content: text, StopReason: "cached"}, nil
		}
	}

	resp, err := c.stream(ctx, req, nil)
	if err != nil {
		return nil, err
	}

	if c.cache != nil && len(resp.ToolCalls) == 0 {
		c.cache.Set(key, resp.Content)
	}
	return resp, nil
}

// ChatStream performs a streaming round, forwarding text deltas to the
// sink as they arrive. Streaming responses are never cached.
func (c *Client) ChatStream(ctx context.Context, req *CompletionRequest, sink StreamSink) (*ChatResponse, error) {
	if c.provider == nil {
		return nil, ErrNoProvider
	}
	return c.stream(ctx, req, sink)
}

// stream runs one provider call under the limiter and retry policy and
// assembles the canonical response.
func (c *Client) stream(ctx context.Context, req *CompletionRequest, sink StreamSink) (*ChatResponse, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}

	resp, result := retry.DoWithValue(ctx, c.retryCfg, func() (*ChatResponse, error) {
		return c.collect(ctx, req, sink)
	})
	if result.Err != nil {
		c.logger.Warn("provider call failed",
			"provider", c.provider.Name(),
			"attempts", result.Attempts,
			"error", result.Err)
		return nil, result.Err
	}
	return resp, nil
}

// acquire takes an llm-class token, waiting out the refill when the bucket
// is empty.
func (c *Client) acquire(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	for !c.limiter.TryAcquire(c.key) {
		wait := c.limiter.TimeUntilAvailable(c.key, 1)
		if wait <= 0 {
			wait = 50 * time.Millisecond
		}
		c.logger.Debug("rate limited, waiting", "key", c.key, "wait", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil
}

// collect drains one streamed response into a ChatResponse. A duplicate
// tool-call id replaces the earlier call; order otherwise follows arrival.
func (c *Client) collect(ctx context.Context, req *CompletionRequest, sink StreamSink) (*ChatResponse, error) {
	stream, err := c.provider.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	resp := &ChatResponse{}
	var content []byte
	byID := make(map[string]int)

	for chunk := range stream {
		if chunk.Error != nil {
			return nil, chunk.Error
		}
		if chunk.Text != "" {
			content = append(content, chunk.Text...)
			if sink != nil {
				sink(chunk.Text)
			}
		}
		if chunk.ToolCall != nil {
			call := *chunk.ToolCall
			if idx, seen := byID[call.ID]; seen && call.ID != "" {
				resp.ToolCalls[idx] = call
			} else {
				byID[call.ID] = len(resp.ToolCalls)
				resp.ToolCalls = append(resp.ToolCalls, call)
			}
		}
		if chunk.StopReason != "" {
			resp.StopReason = chunk.StopReason
		}
	}

	resp.Content = string(content)
	return resp, nil
}

// cacheKey derives the fingerprint of the system prompt plus message
// sequence.
func (c *Client) cacheKey(req *CompletionRequest) cache.Fingerprint {
	keys := make([]cache.MessageKey, 0, len(req.Messages)+1)
	if req.System != "" {
		keys = append(keys, cache.MessageKey{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		keys = append(keys, cache.MessageKey{Role: m.Role, Content: m.Content})
	}
	return cache.FingerprintMessages(keys)
}
