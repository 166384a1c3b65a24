package providers

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/anvilworks/anvil/internal/agent"
)

// OpenAIConfig configures the OpenAI-compatible provider.
type OpenAIConfig struct {
	// APIKey is required.
	APIKey string

	// BaseURL points at any OpenAI-compatible endpoint; empty uses the
	// official API.
	BaseURL string

	// DefaultModel is used when the request does not name a model.
	DefaultModel string

	// Timeout bounds each HTTP call.
	Timeout time.Duration

	// providerName overrides the reported name (used by the gateway).
	providerName string

	// extraHeaders are attached to every request (used by the gateway).
	extraHeaders map[string]string
}

// OpenAIProvider implements agent.LLMProvider over the chat completions
// wire format. Streamed tool calls arrive as indexed fragments; fragments
// sharing an index accumulate into one call, each contributing a name
// and/or an arguments substring.
type OpenAIProvider struct {
	client       *openai.Client
	name         string
	defaultModel string
}

var _ agent.LLMProvider = (*OpenAIProvider)(nil)

// NewOpenAIProvider creates an OpenAI-compatible provider.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gpt-4o"
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.Timeout > 0 {
		clientConfig.HTTPClient.Timeout = cfg.Timeout
	}
	if len(cfg.extraHeaders) > 0 {
		clientConfig.HTTPClient.Transport = &headerTransport{
			headers: cfg.extraHeaders,
		}
	}

	name := cfg.providerName
	if name == "" {
		name = "openai"
	}

	return &OpenAIProvider{
		client:       openai.NewClientWithConfig(clientConfig),
		name:         name,
		defaultModel: cfg.DefaultModel,
	}, nil
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string {
	return p.name
}

// Models returns the known models.
func (p *OpenAIProvider) Models() []agent.Model {
	return []agent.Model{
		{ID: "gpt-4o", Name: "GPT-4o", ContextSize: 128000},
		{ID: "gpt-4o-mini", Name: "GPT-4o mini", ContextSize: 128000},
		{ID: "gpt-4-turbo", Name: "GPT-4 Turbo", ContextSize: 128000},
	}
}

// SupportsTools returns true.
func (p *OpenAIProvider) SupportsTools() bool {
	return true
}

// Complete sends a streaming chat completion request.
func (p *OpenAIProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	if req == nil {
		return nil, errors.New("request is nil")
	}

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: p.convertMessages(req),
		Stream:   true,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		chatReq.Temperature = req.Temperature
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertOpenAITools(req.Tools)
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, p.wrapError(err, model)
	}

	chunks := make(chan *agent.CompletionChunk)
	go p.processStream(ctx, stream, chunks, model)
	return chunks, nil
}

// processStream assembles indexed tool-call fragments and forwards text
// deltas. EOF without a finish reason is success with what was assembled.
func (p *OpenAIProvider) processStream(ctx context.Context, stream *openai.ChatCompletionStream, chunks chan<- *agent.CompletionChunk, model string) {
	defer close(chunks)
	defer stream.Close()

	partial := make(map[int]*agent.ToolCall)
	args := make(map[int]*strings.Builder)
	var stopReason string

	flush := func() {
		indexes := make([]int, 0, len(partial))
		for i := range partial {
			indexes = append(indexes, i)
		}
		sort.Ints(indexes)
		for _, i := range indexes {
			tc := partial[i]
			if tc.ID == "" && tc.Name == "" {
				continue
			}
			tc.Arguments = normalizeArguments(args[i].String())
			chunks <- &agent.CompletionChunk{ToolCall: tc}
		}
		partial = make(map[int]*agent.ToolCall)
		args = make(map[int]*strings.Builder)
	}

	for {
		select {
		case <-ctx.Done():
			chunks <- &agent.CompletionChunk{Error: ctx.Err()}
			return
		default:
		}

		response, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				flush()
				chunks <- &agent.CompletionChunk{Done: true, StopReason: stopReason}
				return
			}
			chunks <- &agent.CompletionChunk{Error: p.wrapError(err, model)}
			return
		}

		if len(response.Choices) == 0 {
			continue
		}
		choice := response.Choices[0]

		if choice.Delta.Content != "" {
			chunks <- &agent.CompletionChunk{Text: choice.Delta.Content}
		}

		for _, tc := range choice.Delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			if partial[index] == nil {
				partial[index] = &agent.ToolCall{}
				args[index] = &strings.Builder{}
			}
			if tc.ID != "" {
				partial[index].ID = tc.ID
			}
			if tc.Function.Name != "" {
				partial[index].Name += tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				args[index].WriteString(tc.Function.Arguments)
			}
		}

		if choice.FinishReason != "" {
			stopReason = string(choice.FinishReason)
		}
		if choice.FinishReason == openai.FinishReasonToolCalls {
			flush()
		}
	}
}

func (p *OpenAIProvider) convertMessages(req *agent.CompletionRequest) []openai.ChatCompletionMessage {
	system, rest := splitSystem(req)

	result := make([]openai.ChatCompletionMessage, 0, len(rest)+1)
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	for _, msg := range rest {
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		role := openai.ChatMessageRoleUser
		if msg.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		result = append(result, openai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Content,
		})
	}
	return result
}

func convertOpenAITools(tools []agent.ToolDefinition) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, tool := range tools {
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.InputSchema,
			},
		}
	}
	return result
}

func (p *OpenAIProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	if _, ok := AsProviderError(err); ok {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		pe := NewProviderError(p.name, model, err).WithStatus(apiErr.HTTPStatusCode)
		if apiErr.Message != "" {
			pe = pe.WithMessage(apiErr.Message)
		}
		if code, ok := apiErr.Code.(string); ok {
			pe = pe.WithCode(code)
		}
		return pe
	}
	return NewProviderError(p.name, model, err)
}
