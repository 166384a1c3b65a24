package plugins

import (
	"reflect"
	"strings"
	"testing"
)

func validManifest() *Manifest {
	return &Manifest{
		ID:             "hello",
		Name:           "Hello Plugin",
		Description:    "greets",
		Version:        "0.1.0",
		PluginType:     TypeWasm,
		MinHostVersion: "0.1",
		Permissions:    []Permission{PermFSRead},
		EntryPoint:     "plugin.wasm",
		Skills: []SkillDef{{
			Name:        "greet",
			Description: "say hello",
			InputSchema: map[string]any{"type": "object"},
		}},
	}
}

func TestManifest_RoundTripYAML(t *testing.T) {
	original := validManifest()
	data, err := EncodeManifest(original, "yaml")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeManifest(data, "yaml")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(original, decoded) {
		t.Fatalf("yaml round trip mismatch:\n got %+v\nwant %+v", decoded, original)
	}
}

func TestManifest_RoundTripTOML(t *testing.T) {
	original := validManifest()
	data, err := EncodeManifest(original, "toml")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeManifest(data, "toml")
	if err != nil {
		t.Fatalf("decode: %v\n%s", err, data)
	}
	if !reflect.DeepEqual(original, decoded) {
		t.Fatalf("toml round trip mismatch:\n got %+v\nwant %+v", decoded, original)
	}
}

func TestManifest_Validate(t *testing.T) {
	if err := validManifest().Validate(); err != nil {
		t.Fatalf("valid manifest rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Manifest)
		want   string
	}{
		{"empty id", func(m *Manifest) { m.ID = "" }, "id is required"},
		{"empty version", func(m *Manifest) { m.Version = "" }, "version is required"},
		{"unknown type", func(m *Manifest) { m.PluginType = "jar" }, "unknown plugin_type"},
		{"no skills", func(m *Manifest) { m.Skills = nil }, "no skills"},
		{"nameless skill", func(m *Manifest) { m.Skills[0].Name = "" }, "without a name"},
		{"duplicate skills", func(m *Manifest) {
			m.Skills = append(m.Skills, m.Skills[0])
		}, "twice"},
		{"unknown permission", func(m *Manifest) {
			m.Permissions = append(m.Permissions, "root:everything")
		}, "unknown permission"},
		{"unknown skill requirement", func(m *Manifest) {
			m.Skills[0].Requires = []Permission{"magic:wand"}
		}, "unknown permission"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validManifest()
			tt.mutate(m)
			err := m.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q should contain %q", err, tt.want)
			}
		})
	}
}

func TestManifest_InvalidSchemaRejected(t *testing.T) {
	m := validManifest()
	m.Skills[0].InputSchema = map[string]any{"type": 42}
	if err := m.Validate(); err == nil {
		t.Fatal("non-compilable schema should be rejected")
	}
}

func TestManifest_Granted(t *testing.T) {
	m := validManifest()
	if !m.Granted(PermFSRead) {
		t.Error("declared permission should be granted")
	}
	if m.Granted(PermShellExecute) {
		t.Error("undeclared permission should not be granted")
	}
}

func TestManifest_UnsupportedFormat(t *testing.T) {
	if _, err := DecodeManifest([]byte("{}"), "ini"); err == nil {
		t.Fatal("unsupported format should error")
	}
}
