package crew

import (
	"testing"
)

func persona(name string) *Persona {
	return &Persona{
		Name:         name,
		Description:  "test persona",
		SystemPrompt: "You are " + name + ".",
		Model:        "claude",
		Skills:       []string{"read_file"},
	}
}

func TestManager_SaveLoadRoundTrip(t *testing.T) {
	m := NewManager(t.TempDir())
	original := persona("navigator")
	if err := m.Save(original); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := m.Load("navigator")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.SystemPrompt != original.SystemPrompt || loaded.Model != "claude" {
		t.Fatalf("loaded = %+v", loaded)
	}
}

func TestManager_ListSorted(t *testing.T) {
	m := NewManager(t.TempDir())
	for _, name := range []string{"zed", "ada", "mim"} {
		if err := m.Save(persona(name)); err != nil {
			t.Fatal(err)
		}
	}
	names, err := m.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 3 || names[0] != "ada" || names[2] != "zed" {
		t.Fatalf("names = %v", names)
	}
}

func TestManager_ActiveSelection(t *testing.T) {
	m := NewManager(t.TempDir())
	if err := m.Save(persona("pilot")); err != nil {
		t.Fatal(err)
	}

	active, err := m.Active()
	if err != nil || active != nil {
		t.Fatalf("no active persona expected, got %+v, %v", active, err)
	}

	if err := m.SetActive("pilot"); err != nil {
		t.Fatal(err)
	}
	active, err = m.Active()
	if err != nil || active == nil || active.Name != "pilot" {
		t.Fatalf("active = %+v, %v", active, err)
	}

	if err := m.SetActive("ghost"); err == nil {
		t.Fatal("activating a missing persona should fail")
	}
}

func TestManager_DeleteClearsActive(t *testing.T) {
	m := NewManager(t.TempDir())
	if err := m.Save(persona("temp")); err != nil {
		t.Fatal(err)
	}
	if err := m.SetActive("temp"); err != nil {
		t.Fatal(err)
	}
	if err := m.Delete("temp"); err != nil {
		t.Fatal(err)
	}
	active, err := m.Active()
	if err != nil || active != nil {
		t.Fatalf("active should be cleared, got %+v, %v", active, err)
	}
}

func TestPersona_Validate(t *testing.T) {
	if err := (&Persona{Name: "x"}).Validate(); err == nil {
		t.Error("missing system prompt should fail")
	}
	if err := (&Persona{SystemPrompt: "x"}).Validate(); err == nil {
		t.Error("missing name should fail")
	}
}

func TestManager_EmptyList(t *testing.T) {
	m := NewManager(t.TempDir())
	names, err := m.List()
	if err != nil || names != nil {
		t.Fatalf("empty crew dir: %v %v", names, err)
	}
}
