package review

import (
	"context"
	"errors"
	"testing"
)

func TestRunPassesOnFirstIteration(t *testing.T) {
	cfg := Config{AnalystPersona: "analyst", ReviewerPersona: "reviewer", MaxIterations: 3}

	analyst := func(ctx context.Context, persona, step, intent string, payload map[string]any) (PersonaResult, error) {
		return PersonaResult{Status: "pass", Output: map[string]any{"diff": "patch"}}, nil
	}
	reviewer := func(ctx context.Context, persona, step, intent string, payload map[string]any) (PersonaResult, error) {
		return PersonaResult{Status: "pass", Output: map[string]any{}}, nil
	}

	result, err := Run(context.Background(), cfg, analyst, reviewer, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.FinalStatus != "pass" || result.AutoPass {
		t.Fatalf("expected clean pass, got %+v", result)
	}
	if result.Iterations != 1 {
		t.Fatalf("expected 1 iteration, got %d", result.Iterations)
	}
}

func TestRunRevisesUntilPass(t *testing.T) {
	cfg := Config{MaxIterations: 5}

	reviewCall := 0
	var seenRevisionFlags []bool

	analyst := func(ctx context.Context, persona, step, intent string, payload map[string]any) (PersonaResult, error) {
		seenRevisionFlags = append(seenRevisionFlags, payload["is_revision"].(bool))
		return PersonaResult{Output: map[string]any{}}, nil
	}
	reviewer := func(ctx context.Context, persona, step, intent string, payload map[string]any) (PersonaResult, error) {
		reviewCall++
		if reviewCall < 3 {
			return PersonaResult{Status: "fail", Output: map[string]any{"text": "needs work"}}, nil
		}
		return PersonaResult{Status: "pass"}, nil
	}

	result, err := Run(context.Background(), cfg, analyst, reviewer, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.FinalStatus != "pass" || result.AutoPass {
		t.Fatalf("expected eventual pass, got %+v", result)
	}
	if result.Iterations != 3 {
		t.Fatalf("expected 3 iterations, got %d", result.Iterations)
	}
	if seenRevisionFlags[0] != false || seenRevisionFlags[1] != true || seenRevisionFlags[2] != true {
		t.Fatalf("expected is_revision false then true, got %v", seenRevisionFlags)
	}
}

func TestRunAutoPassesAtMaxIterations(t *testing.T) {
	cfg := Config{MaxIterations: 2, AutoPassReason: "iteration budget exhausted"}

	analyst := func(ctx context.Context, persona, step, intent string, payload map[string]any) (PersonaResult, error) {
		return PersonaResult{Output: map[string]any{}}, nil
	}
	reviewer := func(ctx context.Context, persona, step, intent string, payload map[string]any) (PersonaResult, error) {
		return PersonaResult{Status: "fail", Output: map[string]any{"text": "still failing"}}, nil
	}

	result, err := Run(context.Background(), cfg, analyst, reviewer, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.FinalStatus != "pass" || !result.AutoPass {
		t.Fatalf("expected auto-pass, got %+v", result)
	}
	if result.Iterations != 2 {
		t.Fatalf("expected 2 iterations, got %d", result.Iterations)
	}
	if result.LastReview["auto_pass"] != true {
		t.Fatalf("expected auto_pass marker in wrapped review, got %+v", result.LastReview)
	}
	if result.LastReview["reason"] != "iteration budget exhausted" {
		t.Fatalf("expected autoPassReason propagated, got %+v", result.LastReview)
	}
}

func TestRunAbortsOnAnalystFailure(t *testing.T) {
	cfg := Config{MaxIterations: 3}
	analyst := func(ctx context.Context, persona, step, intent string, payload map[string]any) (PersonaResult, error) {
		return PersonaResult{}, errors.New("analyst unreachable")
	}
	reviewer := func(ctx context.Context, persona, step, intent string, payload map[string]any) (PersonaResult, error) {
		t.Fatal("reviewer should never be invoked when analyst fails")
		return PersonaResult{}, nil
	}

	if _, err := Run(context.Background(), cfg, analyst, reviewer, nil); err == nil {
		t.Fatal("expected error from analyst failure")
	}
}

func TestRunAbortsOnReviewerFailure(t *testing.T) {
	cfg := Config{MaxIterations: 3}
	analyst := func(ctx context.Context, persona, step, intent string, payload map[string]any) (PersonaResult, error) {
		return PersonaResult{Output: map[string]any{}}, nil
	}
	reviewer := func(ctx context.Context, persona, step, intent string, payload map[string]any) (PersonaResult, error) {
		return PersonaResult{}, errors.New("reviewer unreachable")
	}

	if _, err := Run(context.Background(), cfg, analyst, reviewer, nil); err == nil {
		t.Fatal("expected error from reviewer failure")
	}
}

func TestRunUsesCustomStatusInterpreter(t *testing.T) {
	cfg := Config{MaxIterations: 2}
	analyst := func(ctx context.Context, persona, step, intent string, payload map[string]any) (PersonaResult, error) {
		return PersonaResult{Output: map[string]any{}}, nil
	}
	reviewer := func(ctx context.Context, persona, step, intent string, payload map[string]any) (PersonaResult, error) {
		return PersonaResult{Output: map[string]any{"verdict": "looks great"}}, nil
	}
	interpret := func(result PersonaResult) string {
		if result.Output["verdict"] == "looks great" {
			return "pass"
		}
		return "fail"
	}

	result, err := Run(context.Background(), cfg, analyst, reviewer, interpret)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.FinalStatus != "pass" {
		t.Fatalf("expected pass via custom interpreter, got %+v", result)
	}
}
