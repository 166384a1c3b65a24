package plugins

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/anvilworks/anvil/internal/agent"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	registry, err := NewRegistry(t.TempDir(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	return registry
}

func TestRegistry_DiscoverValidAndInvalid(t *testing.T) {
	root := t.TempDir()

	// One valid plugin.
	valid := filepath.Join(root, "good")
	os.MkdirAll(valid, 0o755)
	os.WriteFile(filepath.Join(valid, "plugin.wasm"), greetWasm, 0o644)
	os.WriteFile(filepath.Join(valid, "manifest.yaml"), []byte(`id: good
version: 1.0.0
plugin_type: wasm
entry_point: plugin.wasm
skills:
  - name: greet
`), 0o644)

	// One with a broken manifest.
	broken := filepath.Join(root, "broken")
	os.MkdirAll(broken, 0o755)
	os.WriteFile(filepath.Join(broken, "manifest.yaml"), []byte(`id: ""
plugin_type: wasm
`), 0o644)

	// One without any manifest.
	os.MkdirAll(filepath.Join(root, "empty"), 0o755)

	registry := newTestRegistry(t)
	diags := registry.Discover([]string{root})

	if _, ok := registry.Get("good"); !ok {
		t.Fatal("valid plugin not discovered")
	}
	if len(diags) != 1 || !strings.Contains(diags[0].Message, "id is required") {
		t.Fatalf("diagnostics = %+v", diags)
	}
}

func TestRegistry_InstallLocalPersistsState(t *testing.T) {
	source := wasmPluginDir(t)
	dataDir := t.TempDir()

	registry, err := NewRegistry(dataDir, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	installed, err := registry.InstallLocal(source)
	if err != nil {
		t.Fatalf("InstallLocal: %v", err)
	}
	if installed.ID != "greeter" || !installed.Enabled {
		t.Fatalf("installed = %+v", installed)
	}

	// The copy lives under the data dir and state survives reload.
	if !strings.HasPrefix(installed.Path, dataDir) {
		t.Fatalf("plugin not copied under data dir: %s", installed.Path)
	}
	if _, err := os.Stat(filepath.Join(installed.Path, "plugin.wasm")); err != nil {
		t.Fatalf("artifact not copied: %v", err)
	}

	reloaded, err := NewRegistry(dataDir, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	list := reloaded.List()
	if len(list) != 1 || list[0].ID != "greeter" {
		t.Fatalf("state did not persist: %+v", list)
	}
}

func TestRegistry_EnableDisable(t *testing.T) {
	registry := newTestRegistry(t)
	if _, err := registry.InstallLocal(wasmPluginDir(t)); err != nil {
		t.Fatal(err)
	}

	if err := registry.SetEnabled("greeter", false); err != nil {
		t.Fatal(err)
	}
	if registry.List()[0].Enabled {
		t.Fatal("plugin should be disabled")
	}

	// Disabled plugins expose no skills.
	registry.InitAll(context.Background())
	tools := agent.NewToolRegistry(nil)
	registry.RegisterSkills(tools)
	if len(tools.Names()) != 0 {
		t.Fatalf("disabled plugin leaked skills: %v", tools.Names())
	}

	if err := registry.SetEnabled("ghost", true); err == nil {
		t.Fatal("enabling a missing plugin should fail")
	}
}

func TestRegistry_Uninstall(t *testing.T) {
	registry := newTestRegistry(t)
	installed, err := registry.InstallLocal(wasmPluginDir(t))
	if err != nil {
		t.Fatal(err)
	}
	if err := registry.Uninstall(context.Background(), "greeter"); err != nil {
		t.Fatal(err)
	}
	if _, statErr := os.Stat(installed.Path); !os.IsNotExist(statErr) {
		t.Fatal("plugin directory should be removed")
	}
	if len(registry.List()) != 0 {
		t.Fatal("state entry should be removed")
	}
	if err := registry.Uninstall(context.Background(), "greeter"); err == nil {
		t.Fatal("double uninstall should fail")
	}
}

func TestRegistry_SkillsExecuteThroughToolRegistry(t *testing.T) {
	ctx := context.Background()
	registry := newTestRegistry(t)
	if _, err := registry.InstallLocal(wasmPluginDir(t)); err != nil {
		t.Fatal(err)
	}
	if diags := registry.InitAll(ctx); len(diags) != 0 {
		t.Fatalf("init diagnostics: %+v", diags)
	}
	defer registry.Close(ctx)

	tools := agent.NewToolRegistry(nil)
	registry.RegisterSkills(tools)

	names := tools.Names()
	if len(names) != 1 || names[0] != "plugin_greeter_greet" {
		t.Fatalf("names = %v", names)
	}

	result, err := tools.Execute(ctx, "plugin_greeter_greet", json.RawMessage(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	if result.IsError || result.Content != `{"result":42}` {
		t.Fatalf("result = %+v", result)
	}
}
