// Package scan implements the workspace secret scan backing the scan
// command.
package scan

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/anvilworks/anvil/internal/safety"
)

// Finding is one detected secret.
type Finding struct {
	Path     string          `json:"path"`
	Line     int             `json:"line"`
	Kind     string          `json:"kind"`
	Severity safety.Severity `json:"-"`
	SeverityName string      `json:"severity"`
	Excerpt  string          `json:"excerpt"`
}

// Options controls a scan.
type Options struct {
	// Root is the directory to scan.
	Root string

	// MinSeverity filters findings below the threshold.
	MinSeverity safety.Severity

	// MaxFileBytes skips files larger than this. Default 1MB.
	MaxFileBytes int
}

func (o Options) maxFileBytes() int {
	if o.MaxFileBytes <= 0 {
		return 1 << 20
	}
	return o.MaxFileBytes
}

var skipDirs = map[string]bool{
	".git": true, "node_modules": true, "vendor": true, "target": true,
	".venv": true, "__pycache__": true,
}

// Run walks the tree and applies the redaction battery's patterns as
// detectors.
func Run(opts Options) ([]Finding, error) {
	root := opts.Root
	if root == "" {
		root = "."
	}

	patterns := safety.Patterns()
	var findings []Finding

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if skipDirs[d.Name()] && path != root {
				return filepath.SkipDir
			}
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
		for i, line := range strings.Split(string(data), "\n") {
			for _, sp := range patterns {
				if sp.Severity < opts.MinSeverity {
					continue
				}
				if sp.Pattern.MatchString(line) {
					findings = append(findings, Finding{
						Path:         rel,
						Line:         i + 1,
						Kind:         sp.Name,
						Severity:     sp.Severity,
						SeverityName: sp.Severity.String(),
						Excerpt:      safety.SanitizeOutput(strings.TrimSpace(line)),
					})
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(findings, func(i, j int) bool {
		if findings[i].Severity != findings[j].Severity {
			return findings[i].Severity > findings[j].Severity
		}
		if findings[i].Path != findings[j].Path {
			return findings[i].Path < findings[j].Path
		}
		return findings[i].Line < findings[j].Line
	})
	return findings, nil
}

// WriteText renders findings for the terminal.
func WriteText(w io.Writer, findings []Finding) {
	if len(findings) == 0 {
		fmt.Fprintln(w, "no secrets found")
		return
	}
	for _, f := range findings {
		fmt.Fprintf(w, "[%s] %s:%d %s\n    %s\n",
			strings.ToUpper(f.SeverityName), f.Path, f.Line, f.Kind, f.Excerpt)
	}
	fmt.Fprintf(w, "%d finding(s)\n", len(findings))
}

// WriteJSON renders findings as a JSON document; nothing else may reach
// stdout in JSON mode.
func WriteJSON(w io.Writer, findings []Finding) error {
	if findings == nil {
		findings = []Finding{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"findings": findings,
		"count":    len(findings),
	})
}
