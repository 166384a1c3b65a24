package gitops

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/anvilworks/anvil/internal/agent"
)

// initRepo creates a throwaway git repository with one commit.
func initRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not on PATH")
	}
	dir := t.TempDir()
	for _, args := range [][]string{
		{"init", "-q"},
		{"config", "user.email", "test@example.com"},
		{"config", "user.name", "Test"},
	} {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v: %s", args, err, out)
		}
	}
	os.WriteFile(filepath.Join(dir, "init.txt"), []byte("initial\n"), 0o644)
	for _, args := range [][]string{
		{"add", "."},
		{"commit", "-q", "-m", "initial commit"},
	} {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v: %s", args, err, out)
		}
	}
	return dir
}

func TestStatusTool(t *testing.T) {
	dir := initRepo(t)
	os.WriteFile(filepath.Join(dir, "new.txt"), []byte("x"), 0o644)

	result, err := NewStatusTool(Config{WorkDir: dir}).Execute(context.Background(), nil)
	if err != nil || result.IsError {
		t.Fatalf("status: %v %+v", err, result)
	}
	if !strings.Contains(result.Content, "new.txt") {
		t.Errorf("status should list untracked file: %q", result.Content)
	}
}

func TestLogTool(t *testing.T) {
	dir := initRepo(t)
	result, err := NewLogTool(Config{WorkDir: dir}).Execute(context.Background(), json.RawMessage(`{"limit":5}`))
	if err != nil || result.IsError {
		t.Fatalf("log: %v %+v", err, result)
	}
	if !strings.Contains(result.Content, "initial commit") {
		t.Errorf("log should show the commit: %q", result.Content)
	}
}

func TestDiffTool(t *testing.T) {
	dir := initRepo(t)
	os.WriteFile(filepath.Join(dir, "init.txt"), []byte("changed\n"), 0o644)

	result, err := NewDiffTool(Config{WorkDir: dir}).Execute(context.Background(), nil)
	if err != nil || result.IsError {
		t.Fatalf("diff: %v %+v", err, result)
	}
	if !strings.Contains(result.Content, "changed") {
		t.Errorf("diff should show the change: %q", result.Content)
	}
}

func TestAddAndCommitTools(t *testing.T) {
	dir := initRepo(t)
	os.WriteFile(filepath.Join(dir, "feature.txt"), []byte("feature\n"), 0o644)
	cfg := Config{WorkDir: dir}

	addResult, err := NewAddTool(cfg).Execute(context.Background(), json.RawMessage(`{"paths":["feature.txt"]}`))
	if err != nil || addResult.IsError {
		t.Fatalf("add: %v %+v", err, addResult)
	}

	commitResult, err := NewCommitTool(cfg).Execute(context.Background(), json.RawMessage(`{"message":"add feature"}`))
	if err != nil || commitResult.IsError {
		t.Fatalf("commit: %v %+v", err, commitResult)
	}

	logResult, _ := NewLogTool(cfg).Execute(context.Background(), nil)
	if !strings.Contains(logResult.Content, "add feature") {
		t.Errorf("commit missing from log: %q", logResult.Content)
	}
}

func TestAddTool_RejectsOptionInjection(t *testing.T) {
	dir := initRepo(t)
	result, err := NewAddTool(Config{WorkDir: dir}).Execute(context.Background(), json.RawMessage(`{"paths":["--force"]}`))
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsError {
		t.Fatal("dash-prefixed path must be rejected")
	}
}

func TestBranchTool(t *testing.T) {
	dir := initRepo(t)
	cfg := Config{WorkDir: dir}

	created, err := NewBranchTool(cfg).Execute(context.Background(), json.RawMessage(`{"name":"feature-x"}`))
	if err != nil || created.IsError {
		t.Fatalf("branch create: %v %+v", err, created)
	}
	listed, err := NewBranchTool(cfg).Execute(context.Background(), nil)
	if err != nil || listed.IsError {
		t.Fatalf("branch list: %v %+v", err, listed)
	}
	if !strings.Contains(listed.Content, "feature-x") {
		t.Errorf("branch list missing feature-x: %q", listed.Content)
	}
}

func TestConfirmationFlags(t *testing.T) {
	cfg := Config{}
	writeSide := []agent.Tool{NewAddTool(cfg), NewCommitTool(cfg), NewBranchTool(cfg)}
	for _, tool := range writeSide {
		if !agent.RequiresConfirmation(tool) {
			t.Errorf("%s must require confirmation", tool.Name())
		}
	}
	readSide := []agent.Tool{NewStatusTool(cfg), NewDiffTool(cfg), NewLogTool(cfg)}
	for _, tool := range readSide {
		if agent.RequiresConfirmation(tool) {
			t.Errorf("%s must not require confirmation", tool.Name())
		}
	}
}

func TestStatusTool_OutsideRepo(t *testing.T) {
	result, err := NewStatusTool(Config{WorkDir: t.TempDir()}).Execute(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsError {
		t.Fatal("status outside a repository should be an error result")
	}
}

func TestAll(t *testing.T) {
	tools := All(Config{})
	if len(tools) != 6 {
		t.Fatalf("expected 6 git tools, got %d", len(tools))
	}
	seen := map[string]bool{}
	for _, tool := range tools {
		if seen[tool.Name()] {
			t.Errorf("duplicate tool name %s", tool.Name())
		}
		seen[tool.Name()] = true
	}
}
