package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultModel != "claude" || cfg.DefaultAgent != "coder" {
		t.Fatalf("defaults = %q/%q", cfg.DefaultModel, cfg.DefaultAgent)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := Default()
	cfg.DefaultModel = "gpt"
	cfg.Safety.BlockedCommands = []string{"rm -rf /"}

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.DefaultModel != "gpt" {
		t.Errorf("default model = %q", loaded.DefaultModel)
	}
	if len(loaded.Safety.BlockedCommands) != 1 || loaded.Safety.BlockedCommands[0] != "rm -rf /" {
		t.Errorf("blocked commands = %v", loaded.Safety.BlockedCommands)
	}
}

func TestLoad_PartialFileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	os.WriteFile(path, []byte("default_model = \"local\"\n"), 0o644)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultModel != "local" {
		t.Errorf("override lost: %q", cfg.DefaultModel)
	}
	if _, ok := cfg.Models["claude"]; !ok {
		t.Error("default models should survive a partial file")
	}
}

func TestValidate_BadReferences(t *testing.T) {
	cfg := Default()
	cfg.DefaultModel = "missing"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "default_model") {
		t.Fatalf("expected default_model error, got %v", err)
	}

	cfg = Default()
	cfg.Models["bad"] = ModelConfig{Provider: "watson", Model: "x"}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "unknown provider") {
		t.Fatalf("expected provider error, got %v", err)
	}

	cfg = Default()
	agentCfg := cfg.Agents["coder"]
	agentCfg.Model = "ghost"
	cfg.Agents["coder"] = agentCfg
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "unknown model") {
		t.Fatalf("expected agent model error, got %v", err)
	}
}

func TestResolveAPIKey_Precedence(t *testing.T) {
	t.Setenv("ANVIL_TEST_KEY", "from-env")
	model := ModelConfig{Provider: "anthropic", APIKey: "inline", APIKeyEnv: "ANVIL_TEST_KEY"}
	if key := model.ResolveAPIKey(); key != "from-env" {
		t.Errorf("env var should win, got %q", key)
	}

	t.Setenv("ANVIL_TEST_KEY", "")
	if key := model.ResolveAPIKey(); key != "inline" {
		t.Errorf("inline key should be next, got %q", key)
	}

	t.Setenv("ANTHROPIC_API_KEY", "conventional")
	model = ModelConfig{Provider: "anthropic"}
	if key := model.ResolveAPIKey(); key != "conventional" {
		t.Errorf("conventional env should be the fallback, got %q", key)
	}
}

func TestModelAndAgentLookup(t *testing.T) {
	cfg := Default()
	if _, err := cfg.Model(""); err != nil {
		t.Errorf("empty name should resolve the default: %v", err)
	}
	if _, err := cfg.Model("nope"); err == nil {
		t.Error("unknown model should error")
	}
	if _, err := cfg.Agent(""); err != nil {
		t.Errorf("empty name should resolve the default agent: %v", err)
	}
}
