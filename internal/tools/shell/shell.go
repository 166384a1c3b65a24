// Package shell implements the execute_command skill. Every command passes
// the safety gate before a process is spawned, and all output passes the
// secret redactor on the way back.
package shell

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/anvilworks/anvil/internal/agent"
	"github.com/anvilworks/anvil/internal/audit"
	"github.com/anvilworks/anvil/internal/ratelimit"
	"github.com/anvilworks/anvil/internal/safety"
)

// Config controls the shell tool.
type Config struct {
	// WorkDir is the working directory commands run in.
	WorkDir string

	// BlockedCommands come from configuration and always win.
	BlockedCommands []string

	// Timeout bounds one command. Default 60s.
	Timeout time.Duration

	// MaxOutputBytes caps combined stdout+stderr. Default 64KB.
	MaxOutputBytes int

	// Limiter is the commands-class rate limiter. Nil disables limiting.
	Limiter *ratelimit.Limiter

	// Audit receives command events. Nil disables auditing.
	Audit *audit.Logger
}

// ExecuteTool runs commands through the OS shell behind the safety gate.
type ExecuteTool struct {
	cfg      Config
	auditLog *audit.Logger
}

// NewExecuteTool creates an execute_command tool.
func NewExecuteTool(cfg Config) *ExecuteTool {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = 64 * 1024
	}
	auditLog := cfg.Audit
	if auditLog == nil {
		auditLog = audit.NewNopLogger()
	}
	return &ExecuteTool{cfg: cfg, auditLog: auditLog}
}

func (t *ExecuteTool) Name() string { return "execute_command" }

func (t *ExecuteTool) Description() string {
	return "Run a shell command in the workspace. Dangerous commands are blocked or flagged; output is secret-redacted and prefixed with the assessed risk level."
}

func (t *ExecuteTool) RequiresConfirmation() bool { return true }

func (t *ExecuteTool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "Shell command to execute.",
			},
		},
		"required": []string{"command"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *ExecuteTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid parameters: %v", err), IsError: true}, nil
	}
	command := strings.TrimSpace(input.Command)
	if command == "" {
		return &agent.ToolResult{Content: "command is required", IsError: true}, nil
	}

	risk := safety.ClassifyCommand(command, t.cfg.BlockedCommands)
	if risk.Level == safety.RiskBlocked {
		t.auditLog.Log(audit.Event{
			Kind:     audit.EventCommandBlocked,
			Severity: audit.SeverityWarn,
			ToolName: t.Name(),
			Message:  "blocked: " + command,
			Details:  map[string]any{"reason": risk.Reason},
		})
		return &agent.ToolResult{
			Content: fmt.Sprintf("BLOCKED: %s (%s)", command, risk.Reason),
			IsError: true,
		}, nil
	}

	if t.cfg.Limiter != nil && !t.cfg.Limiter.TryAcquire("shell") {
		return &agent.ToolResult{
			Content: "command rate limit exceeded, try again shortly",
			IsError: true,
		}, nil
	}

	runCtx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	if t.cfg.WorkDir != "" {
		cmd.Dir = t.cfg.WorkDir
	}

	output, err := cmd.CombinedOutput()
	exitCode := 0
	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return &agent.ToolResult{
				Content: fmt.Sprintf("command timed out after %s: %s", t.cfg.Timeout, command),
				IsError: true,
			}, nil
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return &agent.ToolResult{
				Content: fmt.Sprintf("failed to run command: %v", err),
				IsError: true,
			}, nil
		}
	}

	text := string(output)
	if len(text) > t.cfg.MaxOutputBytes {
		text = text[:t.cfg.MaxOutputBytes] + "\n...[truncated]"
	}
	text = safety.SanitizeOutput(text)

	var b strings.Builder
	fmt.Fprintf(&b, "[risk: %s] $ %s\n", risk.Level, command)
	b.WriteString(text)
	if !strings.HasSuffix(text, "\n") && text != "" {
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "exit code: %d", exitCode)

	return &agent.ToolResult{Content: b.String(), IsError: exitCode != 0}, nil
}
