package steps

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/c360studio/maestro/transport/localstream"
	"github.com/c360studio/maestro/workflow"
)

func writeChildDefinition(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "child.yaml")
	content := `
name: child
version: "1"
steps:
  - name: noop
    type: noop_for_test
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write child definition: %v", err)
	}
	return path
}

type noopStep struct{}

func (noopStep) ValidateConfig(workflow.StepConfig) error { return nil }
func (noopStep) Execute(context.Context, *workflow.Context, workflow.StepConfig) (workflow.StepResult, error) {
	return workflow.StepResult{Outputs: map[string]any{"done": true}}, nil
}

func TestSubWorkflowStepRunsChildAndMapsOutputs(t *testing.T) {
	workflow.Register("noop_for_test", func() workflow.Step { return noopStep{} })

	dir := t.TempDir()
	childPath := writeChildDefinition(t, dir)

	engine := workflow.NewEngine(slog.Default())
	s := &SubWorkflowStep{Engine: engine, Transport: localstream.New()}

	wctx := workflow.NewContext(map[string]any{
		"SKIP_GIT_OPERATIONS": true,
		"project_id":          "proj1",
		"repo_root":           dir,
	}, "main")

	cfg := workflow.StepConfig{Params: map[string]any{
		"definition_path": childPath,
		"outputs":         map[string]any{"child_done": "noop.done"},
	}}

	result, err := s.Execute(context.Background(), wctx, cfg)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Outputs["child_done"] != true {
		t.Fatalf("expected mapped child output, got %+v", result.Outputs)
	}
	if v, ok := wctx.GetVariable("child_done"); !ok || v != true {
		t.Fatalf("expected parent variable set, got %v ok=%v", v, ok)
	}
}

func TestSubWorkflowStepFailsOnMissingDefinition(t *testing.T) {
	engine := workflow.NewEngine(slog.Default())
	s := &SubWorkflowStep{Engine: engine, Transport: localstream.New()}
	wctx := workflow.NewContext(nil, "main")
	cfg := workflow.StepConfig{Params: map[string]any{"definition_path": filepath.Join(t.TempDir(), "missing.yaml")}}

	if _, err := s.Execute(context.Background(), wctx, cfg); err == nil {
		t.Fatal("expected error for missing definition")
	}
}

func TestSubWorkflowStepValidateRequiresDefinitionPath(t *testing.T) {
	s := &SubWorkflowStep{}
	if err := s.ValidateConfig(workflow.StepConfig{Params: map[string]any{}}); err == nil {
		t.Fatal("expected error for missing definition_path")
	}
}
