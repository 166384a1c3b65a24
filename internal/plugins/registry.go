package plugins

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/anvilworks/anvil/internal/agent"
	"github.com/anvilworks/anvil/internal/audit"
)

// InstalledPlugin is one entry in the persisted install state.
type InstalledPlugin struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Path        string    `json:"path"`
	Enabled     bool      `json:"enabled"`
	InstalledAt time.Time `json:"installed_at"`
}

// Diagnostic reports a problem found while discovering or loading plugins.
type Diagnostic struct {
	PluginDir string
	Message   string
}

// Registry owns the installed plugins and their runtime instances.
type Registry struct {
	mu       sync.Mutex
	dataDir  string
	plugins  map[string]*Plugin
	state    map[string]*InstalledPlugin
	logger   *slog.Logger
	auditLog *audit.Logger
}

// NewRegistry creates a plugin registry rooted at the host data directory.
// Install state persists at <dataDir>/plugins/plugins.json.
func NewRegistry(dataDir string, logger *slog.Logger, auditLog *audit.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if auditLog == nil {
		auditLog = audit.NewNopLogger()
	}
	r := &Registry{
		dataDir:  dataDir,
		plugins:  make(map[string]*Plugin),
		state:    make(map[string]*InstalledPlugin),
		logger:   logger.With("component", "plugin_registry"),
		auditLog: auditLog,
	}
	if err := r.loadState(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) pluginsDir() string {
	return filepath.Join(r.dataDir, "plugins")
}

func (r *Registry) statePath() string {
	return filepath.Join(r.pluginsDir(), "plugins.json")
}

func (r *Registry) loadState() error {
	data, err := os.ReadFile(r.statePath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read plugin state: %w", err)
	}
	if err := json.Unmarshal(data, &r.state); err != nil {
		return fmt.Errorf("parse plugin state: %w", err)
	}
	return nil
}

func (r *Registry) saveState() error {
	if err := os.MkdirAll(r.pluginsDir(), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(r.state, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(r.statePath(), data, 0o644)
}

// Discover walks the given directories plus the registry's own install
// directory; each subdirectory with a parseable, valid manifest becomes a
// Loaded plugin. Invalid candidates are reported as diagnostics, never
// errors.
func (r *Registry) Discover(dirs []string) []Diagnostic {
	var diags []Diagnostic
	searchDirs := append([]string{r.pluginsDir()}, dirs...)

	for _, dir := range searchDirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			pluginDir := filepath.Join(dir, entry.Name())
			manifest, manifestPath, err := LoadManifestDir(pluginDir)
			if err != nil {
				if !os.IsNotExist(err) {
					diags = append(diags, Diagnostic{PluginDir: pluginDir, Message: err.Error()})
				}
				continue
			}
			if err := manifest.Validate(); err != nil {
				diags = append(diags, Diagnostic{PluginDir: pluginDir, Message: err.Error()})
				continue
			}

			r.mu.Lock()
			if _, exists := r.plugins[manifest.ID]; exists {
				r.mu.Unlock()
				diags = append(diags, Diagnostic{
					PluginDir: pluginDir,
					Message:   fmt.Sprintf("duplicate plugin id %s, keeping first", manifest.ID),
				})
				continue
			}
			r.plugins[manifest.ID] = NewPlugin(manifest, pluginDir)
			if _, tracked := r.state[manifest.ID]; !tracked {
				r.state[manifest.ID] = &InstalledPlugin{
					ID:          manifest.ID,
					Name:        manifest.Name,
					Version:     manifest.Version,
					Path:        pluginDir,
					Enabled:     true,
					InstalledAt: time.Now().UTC(),
				}
			}
			r.mu.Unlock()
			r.logger.Debug("discovered plugin", "id", manifest.ID, "manifest", manifestPath)
		}
	}
	return diags
}

// InstallLocal copies a plugin directory under the data dir, validates it,
// and persists the install state.
func (r *Registry) InstallLocal(path string) (*InstalledPlugin, error) {
	manifest, _, err := LoadManifestDir(path)
	if err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}
	if err := manifest.Validate(); err != nil {
		return nil, err
	}

	dest := filepath.Join(r.pluginsDir(), manifest.ID)
	if err := copyDir(path, dest); err != nil {
		return nil, fmt.Errorf("install plugin: %w", err)
	}

	installed := &InstalledPlugin{
		ID:          manifest.ID,
		Name:        manifest.Name,
		Version:     manifest.Version,
		Path:        dest,
		Enabled:     true,
		InstalledAt: time.Now().UTC(),
	}

	r.mu.Lock()
	r.state[manifest.ID] = installed
	r.plugins[manifest.ID] = NewPlugin(manifest, dest)
	err = r.saveState()
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}

	r.auditLog.Info(audit.EventPluginLoaded, "installed "+manifest.ID, map[string]any{
		"version": manifest.Version,
	})
	return installed, nil
}

// Uninstall removes the plugin directory and its state entry.
func (r *Registry) Uninstall(ctx context.Context, id string) error {
	r.mu.Lock()
	installed, ok := r.state[id]
	plugin := r.plugins[id]
	if ok {
		delete(r.state, id)
		delete(r.plugins, id)
	}
	err := r.saveState()
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("plugin %s is not installed", id)
	}
	if err != nil {
		return err
	}
	if plugin != nil {
		plugin.Cleanup(ctx)
	}
	if strings.HasPrefix(installed.Path, r.pluginsDir()) {
		return os.RemoveAll(installed.Path)
	}
	return nil
}

// SetEnabled toggles a plugin and persists the change.
func (r *Registry) SetEnabled(id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	installed, ok := r.state[id]
	if !ok {
		return fmt.Errorf("plugin %s is not installed", id)
	}
	installed.Enabled = enabled
	return r.saveState()
}

// Get returns a plugin by id.
func (r *Registry) Get(id string) (*Plugin, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	plugin, ok := r.plugins[id]
	return plugin, ok
}

// List returns the install state sorted by id.
func (r *Registry) List() []*InstalledPlugin {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*InstalledPlugin, 0, len(r.state))
	for _, installed := range r.state {
		out = append(out, installed)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// InitAll initializes every enabled plugin, collecting per-plugin failures
// as diagnostics.
func (r *Registry) InitAll(ctx context.Context) []Diagnostic {
	r.mu.Lock()
	var toInit []*Plugin
	for id, plugin := range r.plugins {
		if installed, ok := r.state[id]; ok && !installed.Enabled {
			continue
		}
		toInit = append(toInit, plugin)
	}
	r.mu.Unlock()

	var diags []Diagnostic
	for _, plugin := range toInit {
		if err := plugin.Init(ctx); err != nil {
			diags = append(diags, Diagnostic{PluginDir: plugin.dir, Message: err.Error()})
			r.auditLog.Error(audit.EventPluginError, "init failed for "+plugin.manifest.ID, err)
		}
	}
	return diags
}

// Close unloads every plugin.
func (r *Registry) Close(ctx context.Context) {
	r.mu.Lock()
	plugins := make([]*Plugin, 0, len(r.plugins))
	for _, plugin := range r.plugins {
		plugins = append(plugins, plugin)
	}
	r.mu.Unlock()
	for _, plugin := range plugins {
		plugin.Cleanup(ctx)
	}
}

// RegisterSkills projects every enabled, ready plugin skill into the tool
// registry so the loop sees plugin skills exactly like built-ins.
func (r *Registry) RegisterSkills(registry *agent.ToolRegistry) {
	r.mu.Lock()
	var ready []*Plugin
	for id, plugin := range r.plugins {
		if installed, ok := r.state[id]; ok && !installed.Enabled {
			continue
		}
		if plugin.State() == StateReady {
			ready = append(ready, plugin)
		}
	}
	r.mu.Unlock()

	for _, plugin := range ready {
		for i := range plugin.manifest.Skills {
			registry.Register(&skillTool{plugin: plugin, skill: &plugin.manifest.Skills[i]})
		}
	}
}

// skillTool adapts one plugin skill to the agent.Tool contract.
type skillTool struct {
	plugin *Plugin
	skill  *SkillDef
}

func (t *skillTool) Name() string {
	return fmt.Sprintf("plugin_%s_%s", t.plugin.manifest.ID, t.skill.Name)
}

func (t *skillTool) Description() string {
	if t.skill.Description != "" {
		return t.skill.Description
	}
	return fmt.Sprintf("Skill %s from plugin %s", t.skill.Name, t.plugin.manifest.ID)
}

func (t *skillTool) Schema() json.RawMessage {
	return t.skill.SchemaJSON()
}

func (t *skillTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	result, err := t.plugin.Execute(ctx, ExecuteInput{Action: t.skill.Name, Input: params})
	if err != nil {
		return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
	}
	return &agent.ToolResult{Content: string(result)}, nil
}

// copyDir recursively copies a plugin directory.
func copyDir(src, dest string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()
		out, err := os.Create(target)
		if err != nil {
			return err
		}
		defer out.Close()
		_, err = io.Copy(out, in)
		return err
	})
}
