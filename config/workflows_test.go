package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadWorkflowDefinitions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "implement.yaml")
	content := "name: implement\nversion: \"1\"\nsteps:\n  - name: s1\n    type: noop\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write definition: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Workflows = map[string]string{"implement": path}

	defs, err := LoadWorkflowDefinitions(cfg)
	if err != nil {
		t.Fatalf("LoadWorkflowDefinitions: %v", err)
	}
	def, ok := defs["implement"]
	if !ok || def.Name != "implement" || len(def.Steps) != 1 {
		t.Fatalf("unexpected definitions: %+v", defs)
	}
}

func TestLoadWorkflowDefinitionsMissingFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workflows = map[string]string{"implement": filepath.Join(t.TempDir(), "missing.yaml")}

	if _, err := LoadWorkflowDefinitions(cfg); err == nil {
		t.Fatal("expected error for missing definition file")
	}
}
