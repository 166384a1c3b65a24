package safety

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PathPolicy configures workspace path validation.
type PathPolicy struct {
	// Workspace is the root directory file skills may touch.
	Workspace string

	// AllowGlobal permits paths outside the workspace. Sensitive patterns
	// are still denied.
	AllowGlobal bool

	// BlockedPaths are extra substring patterns from configuration.
	BlockedPaths []string
}

// sensitivePatterns deny access regardless of workspace scoping. Matched
// against the canonical path, lowercased.
var sensitivePatterns = []string{
	".ssh",
	".gnupg",
	".aws",
	".kube",
	"id_rsa",
	"id_ed25519",
	".env",
	".netrc",
	".npmrc",
	"credentials",
	"/etc/passwd",
	"/etc/shadow",
	"/etc/sudoers",
}

// ValidatePath resolves the argument against the workspace, canonicalizes it,
// and rejects sensitive or out-of-workspace targets. It returns the absolute
// path safe to hand to the filesystem skills.
func ValidatePath(path string, policy PathPolicy) (string, error) {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return "", fmt.Errorf("path is required")
	}
	if strings.Contains(clean, "\x00") {
		return "", fmt.Errorf("path contains null byte")
	}

	root := strings.TrimSpace(policy.Workspace)
	if root == "" {
		root = "."
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve workspace root: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(rootAbs); err == nil {
		rootAbs = resolved
	}

	var target string
	if filepath.IsAbs(clean) {
		target = filepath.Clean(clean)
	} else {
		target = filepath.Join(rootAbs, clean)
	}
	targetAbs, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	// Resolve symlinks on the deepest existing ancestor so a link cannot
	// smuggle the path out of the workspace.
	targetAbs = resolveExisting(targetAbs)

	lowered := strings.ToLower(filepath.ToSlash(targetAbs))
	for _, pattern := range sensitivePatterns {
		if strings.Contains(lowered, pattern) {
			return "", fmt.Errorf("access to sensitive path denied: %s", path)
		}
	}
	for _, pattern := range policy.BlockedPaths {
		p := strings.ToLower(strings.TrimSpace(pattern))
		if p != "" && strings.Contains(lowered, p) {
			return "", fmt.Errorf("access to blocked path denied: %s", path)
		}
	}

	if !policy.AllowGlobal {
		rel, err := filepath.Rel(rootAbs, targetAbs)
		if err != nil {
			return "", fmt.Errorf("resolve path: %w", err)
		}
		if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
			return "", fmt.Errorf("path escapes workspace: %s", path)
		}
	}

	return targetAbs, nil
}

// resolveExisting canonicalizes through symlinks for the longest existing
// prefix of the path, re-joining the not-yet-created suffix.
func resolveExisting(path string) string {
	remainder := ""
	current := path
	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			if remainder == "" {
				return resolved
			}
			return filepath.Join(resolved, remainder)
		}
		parent := filepath.Dir(current)
		if parent == current {
			return path
		}
		if remainder == "" {
			remainder = filepath.Base(current)
		} else {
			remainder = filepath.Join(filepath.Base(current), remainder)
		}
		current = parent
	}
}
