// Package gitops implements the git skills as thin shell-outs to the git
// binary. Read-side operations run freely; write-side operations require
// confirmation.
package gitops

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/anvilworks/anvil/internal/agent"
	"github.com/anvilworks/anvil/internal/safety"
)

// Config controls the git tools.
type Config struct {
	// WorkDir is the repository directory.
	WorkDir string

	// Timeout bounds one git invocation. Default 30s.
	Timeout time.Duration
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 30 * time.Second
	}
	return c.Timeout
}

// runGit executes git with the given arguments in the configured directory.
func runGit(ctx context.Context, cfg Config, args ...string) (*agent.ToolResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, cfg.timeout())
	defer cancel()

	cmd := exec.CommandContext(runCtx, "git", args...)
	if cfg.WorkDir != "" {
		cmd.Dir = cfg.WorkDir
	}
	output, err := cmd.CombinedOutput()
	text := safety.SanitizeOutput(strings.TrimSpace(string(output)))
	if err != nil {
		if text == "" {
			text = err.Error()
		}
		return &agent.ToolResult{
			Content: fmt.Sprintf("git %s failed: %s", args[0], text),
			IsError: true,
		}, nil
	}
	if text == "" {
		text = "(no output)"
	}
	return &agent.ToolResult{Content: text}, nil
}

func gitSchema(props map[string]any, required ...string) json.RawMessage {
	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

// StatusTool implements git_status.
type StatusTool struct{ cfg Config }

func NewStatusTool(cfg Config) *StatusTool { return &StatusTool{cfg} }

func (t *StatusTool) Name() string        { return "git_status" }
func (t *StatusTool) Description() string { return "Show the git working tree status." }
func (t *StatusTool) Schema() json.RawMessage {
	return gitSchema(map[string]any{})
}
func (t *StatusTool) Execute(ctx context.Context, _ json.RawMessage) (*agent.ToolResult, error) {
	return runGit(ctx, t.cfg, "status", "--short", "--branch")
}

// DiffTool implements git_diff.
type DiffTool struct{ cfg Config }

func NewDiffTool(cfg Config) *DiffTool { return &DiffTool{cfg} }

func (t *DiffTool) Name() string { return "git_diff" }
func (t *DiffTool) Description() string {
	return "Show unstaged changes, or staged changes with staged=true. Optionally limited to one path."
}
func (t *DiffTool) Schema() json.RawMessage {
	return gitSchema(map[string]any{
		"path":   map[string]any{"type": "string", "description": "Limit the diff to this path."},
		"staged": map[string]any{"type": "boolean", "description": "Diff the index instead of the working tree."},
	})
}
func (t *DiffTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Path   string `json:"path"`
		Staged bool   `json:"staged"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &input); err != nil {
			return &agent.ToolResult{Content: fmt.Sprintf("invalid parameters: %v", err), IsError: true}, nil
		}
	}
	args := []string{"diff"}
	if input.Staged {
		args = append(args, "--staged")
	}
	if input.Path != "" {
		args = append(args, "--", input.Path)
	}
	return runGit(ctx, t.cfg, args...)
}

// LogTool implements git_log.
type LogTool struct{ cfg Config }

func NewLogTool(cfg Config) *LogTool { return &LogTool{cfg} }

func (t *LogTool) Name() string        { return "git_log" }
func (t *LogTool) Description() string { return "Show recent commits, newest first." }
func (t *LogTool) Schema() json.RawMessage {
	return gitSchema(map[string]any{
		"limit": map[string]any{"type": "integer", "description": "Number of commits to show (default 10).", "minimum": 1},
	})
}
func (t *LogTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Limit int `json:"limit"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &input); err != nil {
			return &agent.ToolResult{Content: fmt.Sprintf("invalid parameters: %v", err), IsError: true}, nil
		}
	}
	if input.Limit <= 0 {
		input.Limit = 10
	}
	return runGit(ctx, t.cfg, "log", "--oneline", fmt.Sprintf("-%d", input.Limit))
}

// AddTool implements git_add. Requires confirmation.
type AddTool struct{ cfg Config }

func NewAddTool(cfg Config) *AddTool { return &AddTool{cfg} }

func (t *AddTool) Name() string               { return "git_add" }
func (t *AddTool) Description() string        { return "Stage files for the next commit." }
func (t *AddTool) RequiresConfirmation() bool { return true }
func (t *AddTool) Schema() json.RawMessage {
	return gitSchema(map[string]any{
		"paths": map[string]any{
			"type":        "array",
			"items":       map[string]any{"type": "string"},
			"description": "Paths to stage.",
		},
	}, "paths")
}
func (t *AddTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Paths []string `json:"paths"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid parameters: %v", err), IsError: true}, nil
	}
	if len(input.Paths) == 0 {
		return &agent.ToolResult{Content: "paths is required", IsError: true}, nil
	}
	for _, p := range input.Paths {
		if strings.HasPrefix(p, "-") {
			return &agent.ToolResult{Content: "invalid path: " + p, IsError: true}, nil
		}
	}
	args := append([]string{"add", "--"}, input.Paths...)
	result, err := runGit(ctx, t.cfg, args...)
	if err != nil || result.IsError {
		return result, err
	}
	return &agent.ToolResult{Content: fmt.Sprintf("staged %d path(s)", len(input.Paths))}, nil
}

// CommitTool implements git_commit. Requires confirmation.
type CommitTool struct{ cfg Config }

func NewCommitTool(cfg Config) *CommitTool { return &CommitTool{cfg} }

func (t *CommitTool) Name() string               { return "git_commit" }
func (t *CommitTool) Description() string        { return "Create a commit from the staged changes." }
func (t *CommitTool) RequiresConfirmation() bool { return true }
func (t *CommitTool) Schema() json.RawMessage {
	return gitSchema(map[string]any{
		"message": map[string]any{"type": "string", "description": "Commit message."},
	}, "message")
}
func (t *CommitTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid parameters: %v", err), IsError: true}, nil
	}
	if strings.TrimSpace(input.Message) == "" {
		return &agent.ToolResult{Content: "commit message is required", IsError: true}, nil
	}
	return runGit(ctx, t.cfg, "commit", "-m", input.Message)
}

// BranchTool implements git_branch.
type BranchTool struct{ cfg Config }

func NewBranchTool(cfg Config) *BranchTool { return &BranchTool{cfg} }

func (t *BranchTool) Name() string        { return "git_branch" }
func (t *BranchTool) Description() string { return "List branches, or create one when name is given." }
func (t *BranchTool) RequiresConfirmation() bool { return true }
func (t *BranchTool) Schema() json.RawMessage {
	return gitSchema(map[string]any{
		"name": map[string]any{"type": "string", "description": "Branch to create; omit to list."},
	})
}
func (t *BranchTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Name string `json:"name"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &input); err != nil {
			return &agent.ToolResult{Content: fmt.Sprintf("invalid parameters: %v", err), IsError: true}, nil
		}
	}
	if input.Name == "" {
		return runGit(ctx, t.cfg, "branch", "--list")
	}
	if strings.HasPrefix(input.Name, "-") {
		return &agent.ToolResult{Content: "invalid branch name: " + input.Name, IsError: true}, nil
	}
	return runGit(ctx, t.cfg, "branch", input.Name)
}

// All returns the full git skill set for registration.
func All(cfg Config) []agent.Tool {
	return []agent.Tool{
		NewStatusTool(cfg),
		NewDiffTool(cfg),
		NewLogTool(cfg),
		NewAddTool(cfg),
		NewCommitTool(cfg),
		NewBranchTool(cfg),
	}
}
