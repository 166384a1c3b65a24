// Package crew manages persona definitions: one YAML file per persona
// under the data dir's crew/ directory, with a .active file naming the
// current one.
package crew

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Persona is one crew member definition.
type Persona struct {
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description,omitempty"`
	SystemPrompt string   `yaml:"system_prompt"`
	Model        string   `yaml:"model,omitempty"`
	Skills       []string `yaml:"skills,omitempty"`
	Temperature  float32  `yaml:"temperature,omitempty"`
}

// Validate checks the persona invariants.
func (p *Persona) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("persona name is required")
	}
	if strings.TrimSpace(p.SystemPrompt) == "" {
		return fmt.Errorf("persona %s has no system prompt", p.Name)
	}
	return nil
}

// Manager owns the crew directory.
type Manager struct {
	dir string
}

// NewManager creates a manager rooted at <dataDir>/crew.
func NewManager(dataDir string) *Manager {
	return &Manager{dir: filepath.Join(dataDir, "crew")}
}

func (m *Manager) personaPath(name string) string {
	return filepath.Join(m.dir, name+".yaml")
}

func (m *Manager) activePath() string {
	return filepath.Join(m.dir, ".active")
}

// Save writes a persona file.
func (m *Manager) Save(p *Persona) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode persona: %w", err)
	}
	return os.WriteFile(m.personaPath(p.Name), data, 0o644)
}

// Load reads one persona by name.
func (m *Manager) Load(name string) (*Persona, error) {
	data, err := os.ReadFile(m.personaPath(name))
	if err != nil {
		return nil, fmt.Errorf("load persona %s: %w", name, err)
	}
	var p Persona
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse persona %s: %w", name, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// List returns the persona names, sorted.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".yaml") {
			continue
		}
		names = append(names, strings.TrimSuffix(name, ".yaml"))
	}
	sort.Strings(names)
	return names, nil
}

// SetActive marks a persona as current.
func (m *Manager) SetActive(name string) error {
	if _, err := m.Load(name); err != nil {
		return err
	}
	return os.WriteFile(m.activePath(), []byte(name+"\n"), 0o644)
}

// Active returns the current persona, or nil when none is set.
func (m *Manager) Active() (*Persona, error) {
	data, err := os.ReadFile(m.activePath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(string(data))
	if name == "" {
		return nil, nil
	}
	return m.Load(name)
}

// Delete removes a persona file, clearing .active if it pointed there.
func (m *Manager) Delete(name string) error {
	if err := os.Remove(m.personaPath(name)); err != nil {
		return err
	}
	if data, err := os.ReadFile(m.activePath()); err == nil {
		if strings.TrimSpace(string(data)) == name {
			os.Remove(m.activePath())
		}
	}
	return nil
}
