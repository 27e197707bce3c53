package workflow

import "testing"

func TestContextVariablesAndStepOutputsAreIndependent(t *testing.T) {
	ctx := NewContext(map[string]any{"foo": "bar"}, "main")

	ctx.SetStepOutput("analyze", map[string]any{"foo": "from-step"})

	v, ok := ctx.GetVariable("foo")
	if !ok || v != "bar" {
		t.Fatalf("expected variable foo to remain bar, got %v, %v", v, ok)
	}

	out, ok := ctx.GetStepOutput("analyze", "foo")
	if !ok || out != "from-step" {
		t.Fatalf("expected step output foo, got %v, %v", out, ok)
	}
}

func TestContextGetStepOutputDotPath(t *testing.T) {
	ctx := NewContext(nil, "main")
	ctx.SetStepOutput("review", map[string]any{
		"result": map[string]any{"status": "pass"},
	})

	v, ok := ctx.GetStepOutput("review", "result.status")
	if !ok || v != "pass" {
		t.Fatalf("expected nested lookup to resolve, got %v, %v", v, ok)
	}

	if _, ok := ctx.GetStepOutput("review", "result.missing"); ok {
		t.Fatal("expected missing nested path to fail")
	}
	if _, ok := ctx.GetStepOutput("never-ran", "x"); ok {
		t.Fatal("expected unknown step to fail")
	}
}

func TestContextBranchOverride(t *testing.T) {
	ctx := NewContext(nil, "main")
	if ctx.GetCurrentBranch() != "main" {
		t.Fatalf("expected initial branch main, got %s", ctx.GetCurrentBranch())
	}
	ctx.SetBranch("feature/x")
	if ctx.GetCurrentBranch() != "feature/x" {
		t.Fatalf("expected overridden branch, got %s", ctx.GetCurrentBranch())
	}
}
