package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	convo "github.com/anvilworks/anvil/internal/agent/context"
	"github.com/anvilworks/anvil/internal/audit"
)

// TaskCompleteMarker is the literal substring a model emits to signal
// autonomous-mode success.
const TaskCompleteMarker = "TASK_COMPLETE"

// continuePrompt nudges the model when it pauses without finishing.
const continuePrompt = "Continue working on the task. If complete, respond with TASK_COMPLETE."

// Confirmer decides whether a confirmation-required tool may run. Returning
// false denies the call; the denial is surfaced to the model as the result.
type Confirmer func(toolName string, arguments string) bool

// LoopConfig configures the agentic loop.
type LoopConfig struct {
	// MaxIterations caps the number of model turns. Default 10.
	MaxIterations int

	// MaxTokens is forwarded to the provider per turn.
	MaxTokens int

	// SystemPrompt is prepended to every request.
	SystemPrompt string

	// Model overrides the provider default.
	Model string

	// AutoApprove skips confirmation for confirmation-required tools.
	AutoApprove bool

	// YOLO keeps the loop running through provider errors.
	YOLO bool

	// Confirmer prompts the user for confirmation-required tools. Nil with
	// AutoApprove unset denies those calls.
	Confirmer Confirmer

	// Audit receives loop events. Nil disables auditing.
	Audit *audit.Logger

	// Logger receives loop diagnostics.
	Logger *slog.Logger
}

// DefaultLoopConfig returns the loop defaults.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		MaxIterations: 10,
		MaxTokens:     4096,
	}
}

// RunResult is the outcome of an autonomous run.
type RunResult struct {
	// FinalContent is the last assistant text.
	FinalContent string

	// Iterations is the number of model turns consumed.
	Iterations int

	// Completed is true when the model signalled TASK_COMPLETE or finished
	// in a single turn; false on iteration-cap exit.
	Completed bool
}

// AgenticLoop drives the autonomous conversation: stream a model turn,
// execute any tool calls sequentially, feed results back, repeat until
// completion or the iteration cap.
type AgenticLoop struct {
	client   *Client
	registry *ToolRegistry
	window   *convo.Window
	config   LoopConfig
	logger   *slog.Logger
	auditLog *audit.Logger
}

// NewAgenticLoop creates a loop. The loop owns the window.
func NewAgenticLoop(client *Client, registry *ToolRegistry, window *convo.Window, config LoopConfig) *AgenticLoop {
	if config.MaxIterations <= 0 {
		config.MaxIterations = DefaultLoopConfig().MaxIterations
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = DefaultLoopConfig().MaxTokens
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = NewToolRegistry(logger)
	}
	if window == nil {
		window = convo.NewWindow(convo.DefaultOptions())
	}
	auditLog := config.Audit
	if auditLog == nil {
		auditLog = audit.NewNopLogger()
	}
	return &AgenticLoop{
		client:   client,
		registry: registry,
		window:   window,
		config:   config,
		logger:   logger.With("component", "agent_loop"),
		auditLog: auditLog,
	}
}

// Window exposes the conversation window, owned by the loop.
func (l *AgenticLoop) Window() *convo.Window {
	return l.window
}

// Run executes the autonomous loop for one task, streaming text deltas to
// the sink.
func (l *AgenticLoop) Run(ctx context.Context, task string, sink StreamSink) (*RunResult, error) {
	if l.client == nil || l.client.Provider() == nil {
		return nil, ErrNoProvider
	}

	l.auditLog.Info(audit.EventAgentStartup, "autonomous run started", map[string]any{
		"max_iterations": l.config.MaxIterations,
		"yolo":           l.config.YOLO,
	})
	l.window.Append(Message{Role: "user", Content: task})

	result := &RunResult{}
	for {
		if result.Iterations >= l.config.MaxIterations {
			l.logger.Warn("max iterations reached", "iterations", result.Iterations)
			l.auditLog.Warn(audit.EventAgentShutdown, "max iterations reached", nil)
			return result, &LoopError{Phase: PhaseComplete, Iteration: result.Iterations, Cause: ErrMaxIterations}
		}
		// Cancellation is cooperative: observed between iterations.
		select {
		case <-ctx.Done():
			return result, &LoopError{Phase: PhaseStream, Iteration: result.Iterations, Cause: fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err())}
		default:
		}
		result.Iterations++

		resp, err := l.turn(ctx, sink)
		if err != nil {
			if l.config.YOLO && ctx.Err() == nil {
				l.logger.Error("provider error ignored in yolo mode", "error", err, "iteration", result.Iterations)
				l.auditLog.Error(audit.EventProviderError, "provider error (yolo, continuing)", err)
				continue
			}
			return result, &LoopError{Phase: PhaseStream, Iteration: result.Iterations, Cause: err}
		}

		if len(resp.ToolCalls) == 0 {
			l.window.Append(Message{Role: "assistant", Content: resp.Content})
			result.FinalContent = resp.Content
			// Autonomous completion: a single-turn answer or an explicit
			// marker ends the run; any other plain response gets the
			// continue nudge. Interactive exchanges (ChatTurn) end on the
			// first non-tool response instead.
			if result.Iterations == 1 || strings.Contains(resp.Content, TaskCompleteMarker) {
				result.Completed = true
				l.auditLog.Info(audit.EventAgentShutdown, "task complete", map[string]any{
					"iterations": result.Iterations,
				})
				return result, nil
			}
			l.window.Append(Message{Role: "user", Content: continuePrompt})
			continue
		}

		l.window.Append(Message{Role: "assistant", Content: resp.Content})
		l.executeToolCalls(ctx, resp.ToolCalls)
	}
}

// ChatTurn executes interactive-mode turns: tool rounds run until the model
// produces a response without tool calls, which ends the exchange.
func (l *AgenticLoop) ChatTurn(ctx context.Context, message string, sink StreamSink) (string, error) {
	if l.client == nil || l.client.Provider() == nil {
		return "", ErrNoProvider
	}
	l.window.Append(Message{Role: "user", Content: message})

	for iteration := 0; iteration < l.config.MaxIterations; iteration++ {
		resp, err := l.turn(ctx, sink)
		if err != nil {
			return "", &LoopError{Phase: PhaseStream, Iteration: iteration + 1, Cause: err}
		}

		l.window.Append(Message{Role: "assistant", Content: resp.Content})
		if len(resp.ToolCalls) == 0 {
			return resp.Content, nil
		}
		l.executeToolCalls(ctx, resp.ToolCalls)
	}
	return "", &LoopError{Phase: PhaseComplete, Iteration: l.config.MaxIterations, Cause: ErrMaxIterations}
}

// turn performs one provider round over the current window.
func (l *AgenticLoop) turn(ctx context.Context, sink StreamSink) (*ChatResponse, error) {
	req := &CompletionRequest{
		Model:     l.config.Model,
		System:    l.config.SystemPrompt,
		Messages:  l.window.Snapshot(),
		MaxTokens: l.config.MaxTokens,
	}
	if l.client.Provider().SupportsTools() {
		req.Tools = l.registry.Definitions()
	}
	return l.client.ChatStream(ctx, req, sink)
}

// executeToolCalls runs the calls sequentially in the order received, each
// result appended before the next call is made so the history stays
// linearizable. Failures become observations, never aborts.
func (l *AgenticLoop) executeToolCalls(ctx context.Context, calls []ToolCall) {
	for _, call := range calls {
		resultText := l.executeOne(ctx, call)
		l.window.Append(Message{
			Role:    "user",
			Content: fmt.Sprintf("<tool_result id=%q>%s</tool_result>", call.ID, resultText),
		})
	}
}

func (l *AgenticLoop) executeOne(ctx context.Context, call ToolCall) string {
	l.logger.Info("executing tool", "tool", call.Name, "id", call.ID)
	l.auditLog.Log(audit.Event{
		Kind:     audit.EventToolInvocation,
		Severity: audit.SeverityInfo,
		ToolName: call.Name,
		Message:  "tool call " + call.ID,
	})

	if tool, ok := l.registry.Get(call.Name); ok && RequiresConfirmation(tool) && !l.config.AutoApprove {
		if l.config.Confirmer == nil || !l.config.Confirmer(call.Name, string(call.Arguments)) {
			l.auditLog.Log(audit.Event{
				Kind:     audit.EventToolDenied,
				Severity: audit.SeverityWarn,
				ToolName: call.Name,
				Message:  "confirmation declined",
			})
			return "Error: execution of " + call.Name + " was not confirmed by the user"
		}
	}

	result, err := l.registry.Execute(ctx, call.Name, call.Arguments)
	if err != nil {
		l.auditLog.Error(audit.EventToolCompletion, call.Name+" failed", err)
		return "Error: " + err.Error()
	}
	if result.IsError {
		l.auditLog.Log(audit.Event{
			Kind:     audit.EventToolCompletion,
			Severity: audit.SeverityWarn,
			ToolName: call.Name,
			Message:  "tool returned error",
		})
		return "Error: " + result.Content
	}
	l.auditLog.Log(audit.Event{
		Kind:     audit.EventToolCompletion,
		Severity: audit.SeverityInfo,
		ToolName: call.Name,
		Message:  "tool succeeded",
	})
	return result.Content
}
