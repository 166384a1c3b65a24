// Package files implements the filesystem skills: read_file, write_file,
// edit_file, list_files, and search_files. Every path goes through the
// safety gate and every read result through the secret redactor.
package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/anvilworks/anvil/internal/agent"
	"github.com/anvilworks/anvil/internal/safety"
)

// Config controls filesystem tool defaults.
type Config struct {
	// Policy scopes and filters every path argument.
	Policy safety.PathPolicy

	// MaxReadBytes caps read_file output.
	MaxReadBytes int

	// MaxResults caps list/search output entries.
	MaxResults int
}

func (c Config) maxRead() int {
	if c.MaxReadBytes <= 0 {
		return 200000
	}
	return c.MaxReadBytes
}

func (c Config) maxResults() int {
	if c.MaxResults <= 0 {
		return 500
	}
	return c.MaxResults
}

func toolError(message string) *agent.ToolResult {
	return &agent.ToolResult{Content: message, IsError: true}
}

func mustSchema(schema map[string]any) json.RawMessage {
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

// ReadTool implements read_file.
type ReadTool struct {
	cfg Config
}

// NewReadTool creates a read_file tool scoped to the workspace.
func NewReadTool(cfg Config) *ReadTool {
	return &ReadTool{cfg: cfg}
}

func (t *ReadTool) Name() string { return "read_file" }

func (t *ReadTool) Description() string {
	return "Read a UTF-8 text file from the workspace. Sensitive paths are denied and secrets in the output are redacted."
}

func (t *ReadTool) Schema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Path to the file, relative to the workspace.",
			},
		},
		"required": []string{"path"},
	})
}

func (t *ReadTool) Execute(_ context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}

	resolved, err := safety.ValidatePath(input.Path, t.cfg.Policy)
	if err != nil {
		return toolError(err.Error()), nil
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return toolError(fmt.Sprintf("read file: %v", err)), nil
	}
	if !utf8.Valid(data) {
		return toolError("file is not valid UTF-8 text: " + input.Path), nil
	}

	truncated := false
	if len(data) > t.cfg.maxRead() {
		data = data[:t.cfg.maxRead()]
		truncated = true
	}

	content := safety.SanitizeOutput(string(data))
	if truncated {
		content += "\n...[truncated]"
	}
	return &agent.ToolResult{Content: content}, nil
}

// WriteTool implements write_file. Requires confirmation.
type WriteTool struct {
	cfg Config
}

// NewWriteTool creates a write_file tool scoped to the workspace.
func NewWriteTool(cfg Config) *WriteTool {
	return &WriteTool{cfg: cfg}
}

func (t *WriteTool) Name() string { return "write_file" }

func (t *WriteTool) Description() string {
	return "Write UTF-8 content to a file, creating parent directories. Overwrites existing content."
}

func (t *WriteTool) RequiresConfirmation() bool { return true }

func (t *WriteTool) Schema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Path to the file, relative to the workspace.",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "Full file content to write.",
			},
		},
		"required": []string{"path", "content"},
	})
}

func (t *WriteTool) Execute(_ context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}

	resolved, err := safety.ValidatePath(input.Path, t.cfg.Policy)
	if err != nil {
		return toolError(err.Error()), nil
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return toolError(fmt.Sprintf("create parent directories: %v", err)), nil
	}

	// Write to a sibling temp file and rename so readers never observe a
	// half-written file.
	tmp, err := os.CreateTemp(filepath.Dir(resolved), ".anvil-write-*")
	if err != nil {
		return toolError(fmt.Sprintf("create temp file: %v", err)), nil
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(input.Content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return toolError(fmt.Sprintf("write file: %v", err)), nil
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return toolError(fmt.Sprintf("close temp file: %v", err)), nil
	}
	if err := os.Rename(tmpName, resolved); err != nil {
		os.Remove(tmpName)
		return toolError(fmt.Sprintf("rename into place: %v", err)), nil
	}

	return &agent.ToolResult{Content: fmt.Sprintf("Wrote %d bytes to %s", len(input.Content), input.Path)}, nil
}

// EditTool implements edit_file: exact-match search and replace in one file.
// Requires confirmation.
type EditTool struct {
	cfg Config
}

// NewEditTool creates an edit_file tool scoped to the workspace.
func NewEditTool(cfg Config) *EditTool {
	return &EditTool{cfg: cfg}
}

func (t *EditTool) Name() string { return "edit_file" }

func (t *EditTool) Description() string {
	return "Replace an exact text match within a single file. The search text must appear exactly once unless replace_all is set."
}

func (t *EditTool) RequiresConfirmation() bool { return true }

func (t *EditTool) Schema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Path to the file, relative to the workspace.",
			},
			"search": map[string]any{
				"type":        "string",
				"description": "Exact text to find.",
			},
			"replace": map[string]any{
				"type":        "string",
				"description": "Replacement text.",
			},
			"replace_all": map[string]any{
				"type":        "boolean",
				"description": "Replace every occurrence instead of requiring a unique match.",
			},
		},
		"required": []string{"path", "search", "replace"},
	})
}

func (t *EditTool) Execute(_ context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Path       string `json:"path"`
		Search     string `json:"search"`
		Replace    string `json:"replace"`
		ReplaceAll bool   `json:"replace_all"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if input.Search == "" {
		return toolError("search text is required"), nil
	}

	resolved, err := safety.ValidatePath(input.Path, t.cfg.Policy)
	if err != nil {
		return toolError(err.Error()), nil
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return toolError(fmt.Sprintf("read file: %v", err)), nil
	}
	content := string(data)

	count := strings.Count(content, input.Search)
	if count == 0 {
		return toolError("search text not found in " + input.Path), nil
	}
	if count > 1 && !input.ReplaceAll {
		return toolError(fmt.Sprintf("search text appears %d times in %s; make it unique or set replace_all", count, input.Path)), nil
	}

	var updated string
	replaced := count
	if input.ReplaceAll {
		updated = strings.ReplaceAll(content, input.Search, input.Replace)
	} else {
		updated = strings.Replace(content, input.Search, input.Replace, 1)
		replaced = 1
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return toolError(fmt.Sprintf("stat file: %v", err)), nil
	}
	if err := os.WriteFile(resolved, []byte(updated), info.Mode().Perm()); err != nil {
		return toolError(fmt.Sprintf("write file: %v", err)), nil
	}

	return &agent.ToolResult{Content: fmt.Sprintf("Replaced %d occurrence(s) in %s", replaced, input.Path)}, nil
}

// ListTool implements list_files.
type ListTool struct {
	cfg Config
}

// NewListTool creates a list_files tool scoped to the workspace.
func NewListTool(cfg Config) *ListTool {
	return &ListTool{cfg: cfg}
}

func (t *ListTool) Name() string { return "list_files" }

func (t *ListTool) Description() string {
	return "List files and directories under a workspace path."
}

func (t *ListTool) Schema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Directory to list, relative to the workspace. Defaults to the workspace root.",
			},
			"recursive": map[string]any{
				"type":        "boolean",
				"description": "Walk subdirectories.",
			},
		},
	})
}

func (t *ListTool) Execute(_ context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Path      string `json:"path"`
		Recursive bool   `json:"recursive"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if input.Path == "" {
		input.Path = "."
	}

	resolved, err := safety.ValidatePath(input.Path, t.cfg.Policy)
	if err != nil {
		return toolError(err.Error()), nil
	}

	var entries []string
	if input.Recursive {
		err = filepath.WalkDir(resolved, func(path string, d os.DirEntry, walkErr error) error {
			if walkErr != nil {
				return nil
			}
			if shouldSkipDir(d) {
				return filepath.SkipDir
			}
			if path == resolved {
				return nil
			}
			rel, relErr := filepath.Rel(resolved, path)
			if relErr != nil {
				return nil
			}
			if d.IsDir() {
				rel += "/"
			}
			entries = append(entries, rel)
			if len(entries) >= t.cfg.maxResults() {
				return filepath.SkipAll
			}
			return nil
		})
	} else {
		var dirEntries []os.DirEntry
		dirEntries, err = os.ReadDir(resolved)
		for _, e := range dirEntries {
			name := e.Name()
			if e.IsDir() {
				name += "/"
			}
			entries = append(entries, name)
			if len(entries) >= t.cfg.maxResults() {
				break
			}
		}
	}
	if err != nil {
		return toolError(fmt.Sprintf("list files: %v", err)), nil
	}

	if len(entries) == 0 {
		return &agent.ToolResult{Content: "(empty)"}, nil
	}
	sort.Strings(entries)
	return &agent.ToolResult{Content: strings.Join(entries, "\n")}, nil
}

// SearchTool implements search_files: substring grep across the workspace.
type SearchTool struct {
	cfg Config
}

// NewSearchTool creates a search_files tool scoped to the workspace.
func NewSearchTool(cfg Config) *SearchTool {
	return &SearchTool{cfg: cfg}
}

func (t *SearchTool) Name() string { return "search_files" }

func (t *SearchTool) Description() string {
	return "Search files under a workspace path for a substring, returning file:line matches."
}

func (t *SearchTool) Schema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Substring to search for.",
			},
			"path": map[string]any{
				"type":        "string",
				"description": "Directory to search, relative to the workspace. Defaults to the workspace root.",
			},
		},
		"required": []string{"query"},
	})
}

func (t *SearchTool) Execute(_ context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Query string `json:"query"`
		Path  string `json:"path"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if input.Query == "" {
		return toolError("query is required"), nil
	}
	if input.Path == "" {
		input.Path = "."
	}

	resolved, err := safety.ValidatePath(input.Path, t.cfg.Policy)
	if err != nil {
		return toolError(err.Error()), nil
	}

	var matches []string
	walkErr := filepath.WalkDir(resolved, func(path string, d os.DirEntry, inErr error) error {
		if inErr != nil {
			return nil
		}
		if shouldSkipDir(d) {
			return filepath.SkipDir
		}
		if d.IsDir() {
			return nil
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil || !utf8.Valid(data) {
			return nil
		}
		rel, relErr := filepath.Rel(resolved, path)
		if relErr != nil {
			rel = path
		}
		for i, line := range strings.Split(string(data), "\n") {
			if strings.Contains(line, input.Query) {
				matches = append(matches, fmt.Sprintf("%s:%d: %s", rel, i+1, strings.TrimSpace(line)))
				if len(matches) >= t.cfg.maxResults() {
					return filepath.SkipAll
				}
			}
		}
		return nil
	})
	if walkErr != nil {
		return toolError(fmt.Sprintf("search files: %v", walkErr)), nil
	}

	if len(matches) == 0 {
		return &agent.ToolResult{Content: "no matches for " + input.Query}, nil
	}
	return &agent.ToolResult{Content: safety.SanitizeOutput(strings.Join(matches, "\n"))}, nil
}

// shouldSkipDir filters version-control and dependency directories out of
// walks.
func shouldSkipDir(d os.DirEntry) bool {
	if !d.IsDir() {
		return false
	}
	switch d.Name() {
	case ".git", "node_modules", "vendor", "target", ".venv", "__pycache__":
		return true
	}
	return false
}
