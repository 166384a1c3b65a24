package shell

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/anvilworks/anvil/internal/audit"
)

func execute(t *testing.T, tool *ExecuteTool, command string) string {
	t.Helper()
	params, _ := json.Marshal(map[string]string{"command": command})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	return result.Content
}

func TestExecute_RunsCommand(t *testing.T) {
	tool := NewExecuteTool(Config{WorkDir: t.TempDir()})
	out := execute(t, tool, "echo hello")
	if !strings.Contains(out, "hello") {
		t.Fatalf("output = %q", out)
	}
	if !strings.Contains(out, "exit code: 0") {
		t.Fatalf("missing exit code: %q", out)
	}
}

func TestExecute_RiskPrefix(t *testing.T) {
	tool := NewExecuteTool(Config{WorkDir: t.TempDir()})
	out := execute(t, tool, "echo hi")
	if !strings.HasPrefix(out, "[risk: LOW]") {
		t.Fatalf("low-risk command should carry LOW prefix: %q", out)
	}

	out = execute(t, tool, "mkdir subdir")
	if !strings.HasPrefix(out, "[risk: MEDIUM]") {
		t.Fatalf("mkdir should carry MEDIUM prefix: %q", out)
	}
}

func TestExecute_BlockedCommandNoSpawn(t *testing.T) {
	ws := t.TempDir()
	marker := filepath.Join(ws, "spawned.txt")
	tool := NewExecuteTool(Config{
		WorkDir:         ws,
		BlockedCommands: []string{"touch spawned"},
	})

	params, _ := json.Marshal(map[string]string{"command": "touch spawned.txt"})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsError {
		t.Fatal("blocked command must return an error result")
	}
	if !strings.Contains(result.Content, "BLOCKED") {
		t.Fatalf("error should contain BLOCKED: %q", result.Content)
	}
	if _, statErr := os.Stat(marker); !os.IsNotExist(statErr) {
		t.Fatal("blocked command must not spawn a process")
	}
}

func TestExecute_CatastrophicBlockedWithoutConfig(t *testing.T) {
	// No configured blocklist: the built-in tier alone must refuse, log a
	// CommandBlocked audit event, and spawn nothing.
	auditPath := filepath.Join(t.TempDir(), "audit.log")
	auditLog, err := audit.NewLogger(audit.Config{
		Enabled: true,
		Format:  audit.FormatJSON,
		Output:  "file:" + auditPath,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer auditLog.Close()

	tool := NewExecuteTool(Config{WorkDir: t.TempDir(), Audit: auditLog})
	params, _ := json.Marshal(map[string]string{"command": "rm -rf /"})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsError || !strings.Contains(result.Content, "BLOCKED") {
		t.Fatalf("result = %+v", result)
	}
	if !strings.Contains(result.Content, "rm -rf /") {
		t.Fatalf("error should name the command: %q", result.Content)
	}

	auditLog.Close()
	logged, err := os.ReadFile(auditPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(logged), string(audit.EventCommandBlocked)) {
		t.Fatalf("audit log missing CommandBlocked event: %s", logged)
	}
}

func TestExecute_NonZeroExit(t *testing.T) {
	tool := NewExecuteTool(Config{WorkDir: t.TempDir()})
	params, _ := json.Marshal(map[string]string{"command": "exit 3"})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsError || !strings.Contains(result.Content, "exit code: 3") {
		t.Fatalf("result = %+v", result)
	}
}

func TestExecute_RedactsOutput(t *testing.T) {
	tool := NewExecuteTool(Config{WorkDir: t.TempDir()})
	out := execute(t, tool, "echo password=supersecret42")
	if strings.Contains(out, "supersecret42") {
		t.Fatalf("secret leaked: %q", out)
	}
	if !strings.Contains(out, "[REDACTED_PASSWORD]") {
		t.Fatalf("missing redaction: %q", out)
	}
}

func TestExecute_Timeout(t *testing.T) {
	tool := NewExecuteTool(Config{WorkDir: t.TempDir(), Timeout: 100 * time.Millisecond})
	params, _ := json.Marshal(map[string]string{"command": "sleep 5"})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsError || !strings.Contains(result.Content, "timed out") {
		t.Fatalf("result = %+v", result)
	}
}

func TestExecute_EmptyCommand(t *testing.T) {
	tool := NewExecuteTool(Config{})
	params, _ := json.Marshal(map[string]string{"command": "   "})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsError {
		t.Fatal("empty command should be an error result")
	}
}

func TestExecute_TruncatesOutput(t *testing.T) {
	tool := NewExecuteTool(Config{WorkDir: t.TempDir(), MaxOutputBytes: 50})
	out := execute(t, tool, "yes x | head -100")
	if !strings.Contains(out, "[truncated]") {
		t.Fatalf("expected truncation: %q", out)
	}
}
