package workflow

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefinitionParsesStepsAndOutputs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.yaml")
	content := `
name: plan-task
version: "1"
steps:
  - name: scan
    type: context
    params:
      force_rescan: true
    outputs:
      reused: reused_existing
  - name: notify
    type: persona_request
    condition: "${scan.reused_existing} == false"
    abort_on_failure: false
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	def, err := LoadDefinition(path)
	if err != nil {
		t.Fatalf("LoadDefinition: %v", err)
	}
	if def.Name != "plan-task" || len(def.Steps) != 2 {
		t.Fatalf("unexpected definition: %+v", def)
	}
	if def.Steps[0].Outputs["reused"] != "reused_existing" {
		t.Fatalf("unexpected outputs alias: %+v", def.Steps[0].Outputs)
	}
	if def.Steps[1].AbortOnFailure == nil || *def.Steps[1].AbortOnFailure {
		t.Fatalf("expected abort_on_failure=false, got %+v", def.Steps[1].AbortOnFailure)
	}
}

func TestLoadDefinitionMissingFile(t *testing.T) {
	if _, err := LoadDefinition(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
