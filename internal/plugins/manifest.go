// Package plugins implements the plugin host: manifest parsing, directory
// discovery, install state, and the WASM execution runtime.
package plugins

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// Manifest file names probed in each plugin directory, in order.
var manifestFilenames = []string{"manifest.yaml", "manifest.yml", "manifest.toml"}

// PluginType identifies how a plugin executes.
type PluginType string

const (
	TypeWasm   PluginType = "wasm"
	TypeNative PluginType = "native"
	TypeScript PluginType = "script"
)

func (t PluginType) valid() bool {
	switch t {
	case TypeWasm, TypeNative, TypeScript:
		return true
	}
	return false
}

// Permission is one capability a plugin declares.
type Permission string

const (
	PermFSRead       Permission = "fs:read"
	PermFSWrite      Permission = "fs:write"
	PermShellExecute Permission = "shell:execute"
	PermNetRequest   Permission = "net:request"
	PermEnvRead      Permission = "env:read"
	PermGitAccess    Permission = "git:access"
	PermLLMAccess    Permission = "llm:access"
)

var knownPermissions = map[Permission]bool{
	PermFSRead: true, PermFSWrite: true, PermShellExecute: true,
	PermNetRequest: true, PermEnvRead: true, PermGitAccess: true,
	PermLLMAccess: true,
}

// SkillDef declares one capability the plugin exposes to the LLM. The
// skill name doubles as the exported function invoked for it.
type SkillDef struct {
	Name        string         `yaml:"name" toml:"name" json:"name"`
	Description string         `yaml:"description" toml:"description" json:"description"`
	InputSchema map[string]any `yaml:"input_schema" toml:"input_schema" json:"input_schema"`
	Requires    []Permission   `yaml:"requires,omitempty" toml:"requires" json:"requires,omitempty"`
}

// SchemaJSON returns the input schema as JSON, defaulting to a bare object
// schema.
func (s *SkillDef) SchemaJSON() json.RawMessage {
	if len(s.InputSchema) == 0 {
		return json.RawMessage(`{"type":"object"}`)
	}
	payload, err := json.Marshal(s.InputSchema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

// Manifest describes one installed or discoverable plugin.
type Manifest struct {
	ID             string       `yaml:"id" toml:"id" json:"id"`
	Name           string       `yaml:"name" toml:"name" json:"name"`
	Description    string       `yaml:"description" toml:"description" json:"description,omitempty"`
	Version        string       `yaml:"version" toml:"version" json:"version"`
	PluginType     PluginType   `yaml:"plugin_type" toml:"plugin_type" json:"plugin_type"`
	MinHostVersion string       `yaml:"min_host_version" toml:"min_host_version" json:"min_host_version,omitempty"`
	Permissions    []Permission `yaml:"permissions" toml:"permissions" json:"permissions,omitempty"`
	Skills         []SkillDef   `yaml:"skills" toml:"skills" json:"skills"`
	EntryPoint     string       `yaml:"entry_point" toml:"entry_point" json:"entry_point"`
}

// DecodeManifest parses manifest bytes by format ("yaml" or "toml").
func DecodeManifest(data []byte, format string) (*Manifest, error) {
	var manifest Manifest
	switch format {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &manifest); err != nil {
			return nil, fmt.Errorf("decode yaml manifest: %w", err)
		}
	case "toml":
		if err := toml.Unmarshal(data, &manifest); err != nil {
			return nil, fmt.Errorf("decode toml manifest: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported manifest format: %s", format)
	}
	return &manifest, nil
}

// EncodeManifest serializes a manifest in the given format.
func EncodeManifest(m *Manifest, format string) ([]byte, error) {
	switch format {
	case "yaml", "yml":
		return yaml.Marshal(m)
	case "toml":
		var b strings.Builder
		if err := toml.NewEncoder(&b).Encode(m); err != nil {
			return nil, err
		}
		return []byte(b.String()), nil
	default:
		return nil, fmt.Errorf("unsupported manifest format: %s", format)
	}
}

// LoadManifestDir probes a plugin directory for a manifest file.
func LoadManifestDir(dir string) (*Manifest, string, error) {
	for _, name := range manifestFilenames {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		format := strings.TrimPrefix(filepath.Ext(name), ".")
		manifest, err := DecodeManifest(data, format)
		if err != nil {
			return nil, path, err
		}
		return manifest, path, nil
	}
	return nil, "", os.ErrNotExist
}

// Validate checks the structural invariants: non-empty id and version, a
// known type, at least one skill with unique names, known permissions, and
// compilable skill schemas.
func (m *Manifest) Validate() error {
	if m == nil {
		return fmt.Errorf("manifest is nil")
	}
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("manifest id is required")
	}
	if strings.TrimSpace(m.Version) == "" {
		return fmt.Errorf("manifest version is required for %s", m.ID)
	}
	if !m.PluginType.valid() {
		return fmt.Errorf("unknown plugin_type %q for %s", m.PluginType, m.ID)
	}
	if len(m.Skills) == 0 {
		return fmt.Errorf("plugin %s declares no skills", m.ID)
	}

	seen := make(map[string]bool, len(m.Skills))
	for i := range m.Skills {
		skill := &m.Skills[i]
		if strings.TrimSpace(skill.Name) == "" {
			return fmt.Errorf("plugin %s has a skill without a name", m.ID)
		}
		if seen[skill.Name] {
			return fmt.Errorf("plugin %s declares skill %q twice", m.ID, skill.Name)
		}
		seen[skill.Name] = true

		if err := compileSchema(skill.SchemaJSON()); err != nil {
			return fmt.Errorf("plugin %s skill %s: invalid input schema: %w", m.ID, skill.Name, err)
		}
		for _, perm := range skill.Requires {
			if !knownPermissions[perm] {
				return fmt.Errorf("plugin %s skill %s requires unknown permission %q", m.ID, skill.Name, perm)
			}
		}
	}

	for _, perm := range m.Permissions {
		if !knownPermissions[perm] {
			return fmt.Errorf("plugin %s declares unknown permission %q", m.ID, perm)
		}
	}
	return nil
}

// Granted reports whether the manifest declares the permission.
func (m *Manifest) Granted(perm Permission) bool {
	for _, p := range m.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// Skill returns the named skill definition.
func (m *Manifest) Skill(name string) (*SkillDef, bool) {
	for i := range m.Skills {
		if m.Skills[i].Name == name {
			return &m.Skills[i], true
		}
	}
	return nil, false
}

func compileSchema(schema json.RawMessage) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", strings.NewReader(string(schema))); err != nil {
		return err
	}
	_, err := compiler.Compile("schema.json")
	return err
}
