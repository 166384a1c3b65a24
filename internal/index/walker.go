package index

import (
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// WalkOptions controls the repository walk.
type WalkOptions struct {
	// MaxFileBytes skips files larger than this. Default 256KB.
	MaxFileBytes int

	// ChunkSize splits file content into chunks of roughly this many
	// characters, on line boundaries. Default 2000.
	ChunkSize int
}

func (o WalkOptions) maxFileBytes() int {
	if o.MaxFileBytes <= 0 {
		return 256 << 10
	}
	return o.MaxFileBytes
}

func (o WalkOptions) chunkSize() int {
	if o.ChunkSize <= 0 {
		return 2000
	}
	return o.ChunkSize
}

var skipDirs = map[string]bool{
	".git": true, "node_modules": true, "vendor": true, "target": true,
	".venv": true, "__pycache__": true, "dist": true, "build": true,
	".idea": true, ".vscode": true,
}

// indexableExts are the source extensions worth embedding.
var indexableExts = map[string]string{
	".go": "go", ".rs": "rust", ".py": "python", ".js": "javascript",
	".jsx": "javascript", ".ts": "typescript", ".tsx": "typescript",
	".java": "java", ".rb": "ruby", ".c": "c", ".h": "c", ".cpp": "cpp",
	".cc": "cpp", ".sh": "shell", ".md": "markdown", ".toml": "toml",
	".yaml": "yaml", ".yml": "yaml",
}

// Chunk is one walkable unit of source text.
type Chunk struct {
	Path      string
	Language  string
	StartLine int
	Text      string
}

// Walk visits every indexable source file under root and yields its
// chunks.
func Walk(root string, opts WalkOptions, visit func(Chunk) error) error {
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

		language, ok := indexableExts[filepath.Ext(path)]
		if !ok {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.Size() > int64(opts.maxFileBytes()) {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil || !utf8.Valid(data) {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		for _, chunk := range splitChunks(string(data), opts.chunkSize()) {
			chunk.Path = rel
			chunk.Language = language
			if err := visit(chunk); err != nil {
				return err
			}
		}
		return nil
	})
}

// splitChunks splits content on line boundaries into chunks of roughly
// size characters. A single line longer than the size still becomes one
// chunk of its own.
func splitChunks(content string, size int) []Chunk {
	lines := strings.Split(content, "\n")
	var chunks []Chunk
	var current strings.Builder
	startLine := 1

	flush := func(endLine int) {
		text := strings.TrimRight(current.String(), "\n")
		if strings.TrimSpace(text) != "" {
			chunks = append(chunks, Chunk{StartLine: startLine, Text: text})
		}
		current.Reset()
		startLine = endLine
	}

	for i, line := range lines {
		if current.Len() > 0 && current.Len()+len(line) > size {
			flush(i + 1)
		}
		current.WriteString(line)
		current.WriteString("\n")
	}
	flush(len(lines) + 1)
	return chunks
}
