// Package codebase implements the static introspection skills:
// grep_codebase, list_symbols, and get_project_info.
package codebase

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/anvilworks/anvil/internal/agent"
	"github.com/anvilworks/anvil/internal/safety"
)

// Config controls the codebase tools.
type Config struct {
	// Policy scopes path arguments to the workspace.
	Policy safety.PathPolicy

	// MaxResults caps output entries. Default 200.
	MaxResults int
}

func (c Config) maxResults() int {
	if c.MaxResults <= 0 {
		return 200
	}
	return c.MaxResults
}

var skipDirs = map[string]bool{
	".git": true, "node_modules": true, "vendor": true, "target": true,
	".venv": true, "__pycache__": true, "dist": true, "build": true,
}

// languageByExt maps file extensions to language names for project info and
// symbol extraction.
var languageByExt = map[string]string{
	".go":   "Go",
	".rs":   "Rust",
	".py":   "Python",
	".js":   "JavaScript",
	".jsx":  "JavaScript",
	".ts":   "TypeScript",
	".tsx":  "TypeScript",
	".java": "Java",
	".rb":   "Ruby",
	".c":    "C",
	".h":    "C",
	".cpp":  "C++",
	".cc":   "C++",
	".sh":   "Shell",
	".md":   "Markdown",
	".yaml": "YAML",
	".yml":  "YAML",
	".toml": "TOML",
	".json": "JSON",
}

// symbolPatterns extract top-level declarations per language.
var symbolPatterns = map[string][]*regexp.Regexp{
	"Go": {
		regexp.MustCompile(`^func\s+(\(\s*\w+\s+\*?\w+\s*\)\s*)?(\w+)`),
		regexp.MustCompile(`^type\s+(\w+)\s+(struct|interface)`),
	},
	"Rust": {
		regexp.MustCompile(`^\s*(pub\s+)?fn\s+(\w+)`),
		regexp.MustCompile(`^\s*(pub\s+)?(struct|enum|trait)\s+(\w+)`),
	},
	"Python": {
		regexp.MustCompile(`^\s*def\s+(\w+)`),
		regexp.MustCompile(`^\s*class\s+(\w+)`),
	},
	"JavaScript": {
		regexp.MustCompile(`^\s*(export\s+)?(async\s+)?function\s+(\w+)`),
		regexp.MustCompile(`^\s*(export\s+)?class\s+(\w+)`),
	},
	"TypeScript": {
		regexp.MustCompile(`^\s*(export\s+)?(async\s+)?function\s+(\w+)`),
		regexp.MustCompile(`^\s*(export\s+)?(class|interface)\s+(\w+)`),
	},
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

// walkSource visits every source file under root, skipping dependency and
// VCS directories.
func walkSource(root string, visit func(path, rel string) error) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if skipDirs[d.Name()] && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		return visit(path, rel)
	})
}

// GrepTool implements grep_codebase: regex search across source files.
type GrepTool struct{ cfg Config }

func NewGrepTool(cfg Config) *GrepTool { return &GrepTool{cfg} }

func (t *GrepTool) Name() string { return "grep_codebase" }

func (t *GrepTool) Description() string {
	return "Search the codebase with a regular expression, returning file:line matches."
}

func (t *GrepTool) Schema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"pattern": map[string]any{"type": "string", "description": "Regular expression to search for."},
			"path":    map[string]any{"type": "string", "description": "Directory to search. Defaults to the workspace root."},
		},
		"required": []string{"pattern"},
	})
}

func (t *GrepTool) Execute(_ context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Pattern string `json:"pattern"`
		Path    string `json:"path"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if input.Pattern == "" {
		return toolError("pattern is required"), nil
	}
	re, err := regexp.Compile(input.Pattern)
	if err != nil {
		return toolError(fmt.Sprintf("invalid pattern: %v", err)), nil
	}
	if input.Path == "" {
		input.Path = "."
	}

	root, err := safety.ValidatePath(input.Path, t.cfg.Policy)
	if err != nil {
		return toolError(err.Error()), nil
	}

	var matches []string
	walkSource(root, func(path, rel string) error {
		data, readErr := os.ReadFile(path)
		if readErr != nil || !utf8.Valid(data) {
			return nil
		}
		for i, line := range strings.Split(string(data), "\n") {
			if re.MatchString(line) {
				matches = append(matches, fmt.Sprintf("%s:%d: %s", rel, i+1, strings.TrimSpace(line)))
				if len(matches) >= t.cfg.maxResults() {
					return filepath.SkipAll
				}
			}
		}
		return nil
	})

	if len(matches) == 0 {
		return &agent.ToolResult{Content: "no matches for pattern " + input.Pattern}, nil
	}
	return &agent.ToolResult{Content: safety.SanitizeOutput(strings.Join(matches, "\n"))}, nil
}

// SymbolsTool implements list_symbols: top-level declarations per file.
type SymbolsTool struct{ cfg Config }

func NewSymbolsTool(cfg Config) *SymbolsTool { return &SymbolsTool{cfg} }

func (t *SymbolsTool) Name() string { return "list_symbols" }

func (t *SymbolsTool) Description() string {
	return "List top-level functions, types, and classes declared in a file or directory."
}

func (t *SymbolsTool) Schema() json.RawMessage {
	return mustSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string", "description": "File or directory to inspect. Defaults to the workspace root."},
		},
	})
}

func (t *SymbolsTool) Execute(_ context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Path string `json:"path"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &input); err != nil {
			return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
		}
	}
	if input.Path == "" {
		input.Path = "."
	}

	root, err := safety.ValidatePath(input.Path, t.cfg.Policy)
	if err != nil {
		return toolError(err.Error()), nil
	}

	var out []string
	collect := func(path, rel string) error {
		lang := languageByExt[filepath.Ext(path)]
		patterns := symbolPatterns[lang]
		if len(patterns) == 0 {
			return nil
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil || !utf8.Valid(data) {
			return nil
		}
		for i, line := range strings.Split(string(data), "\n") {
			for _, re := range patterns {
				if re.MatchString(line) {
					out = append(out, fmt.Sprintf("%s:%d: %s", rel, i+1, strings.TrimSpace(line)))
					if len(out) >= t.cfg.maxResults() {
						return filepath.SkipAll
					}
					break
				}
			}
		}
		return nil
	}

	info, err := os.Stat(root)
	if err != nil {
		return toolError(fmt.Sprintf("stat path: %v", err)), nil
	}
	if info.IsDir() {
		walkSource(root, collect)
	} else {
		collect(root, filepath.Base(root))
	}

	if len(out) == 0 {
		return &agent.ToolResult{Content: "no symbols found"}, nil
	}
	return &agent.ToolResult{Content: strings.Join(out, "\n")}, nil
}

// InfoTool implements get_project_info: language breakdown and layout.
type InfoTool struct{ cfg Config }

func NewInfoTool(cfg Config) *InfoTool { return &InfoTool{cfg} }

func (t *InfoTool) Name() string { return "get_project_info" }

func (t *InfoTool) Description() string {
	return "Summarize the project: file counts per language, total lines, and detected build files."
}

func (t *InfoTool) Schema() json.RawMessage {
	return mustSchema(map[string]any{"type": "object", "properties": map[string]any{}})
}

// buildMarkers identify project types by their build files.
var buildMarkers = map[string]string{
	"go.mod":           "Go module",
	"Cargo.toml":       "Rust crate",
	"package.json":     "Node package",
	"pyproject.toml":   "Python project",
	"requirements.txt": "Python project",
	"Makefile":         "Make",
	"Dockerfile":       "Docker",
}

func (t *InfoTool) Execute(_ context.Context, _ json.RawMessage) (*agent.ToolResult, error) {
	root, err := safety.ValidatePath(".", t.cfg.Policy)
	if err != nil {
		return toolError(err.Error()), nil
	}

	files := 0
	lines := 0
	byLanguage := map[string]int{}
	var markers []string

	walkSource(root, func(path, rel string) error {
		files++
		if kind, ok := buildMarkers[filepath.Base(path)]; ok {
			markers = append(markers, fmt.Sprintf("%s (%s)", rel, kind))
		}
		if lang, ok := languageByExt[filepath.Ext(path)]; ok {
			byLanguage[lang]++
			if data, readErr := os.ReadFile(path); readErr == nil && utf8.Valid(data) {
				lines += strings.Count(string(data), "\n")
			}
		}
		return nil
	})

	var b strings.Builder
	fmt.Fprintf(&b, "Project root: %s\n", root)
	fmt.Fprintf(&b, "Files: %d, source lines: %d\n", files, lines)

	if len(byLanguage) > 0 {
		langs := make([]string, 0, len(byLanguage))
		for lang := range byLanguage {
			langs = append(langs, lang)
		}
		sort.Slice(langs, func(i, j int) bool {
			if byLanguage[langs[i]] != byLanguage[langs[j]] {
				return byLanguage[langs[i]] > byLanguage[langs[j]]
			}
			return langs[i] < langs[j]
		})
		b.WriteString("Languages:\n")
		for _, lang := range langs {
			fmt.Fprintf(&b, "  %s: %d files\n", lang, byLanguage[lang])
		}
	}
	if len(markers) > 0 {
		sort.Strings(markers)
		b.WriteString("Build files:\n")
		for _, m := range markers {
			fmt.Fprintf(&b, "  %s\n", m)
		}
	}
	if _, statErr := os.Stat(filepath.Join(root, ".git")); statErr == nil {
		b.WriteString("Version control: git\n")
	}

	return &agent.ToolResult{Content: strings.TrimRight(b.String(), "\n")}, nil
}

// All returns the codebase skill set for registration.
func All(cfg Config) []agent.Tool {
	return []agent.Tool{NewGrepTool(cfg), NewSymbolsTool(cfg), NewInfoTool(cfg)}
}
