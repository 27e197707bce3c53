package workflow

import (
	"context"
	"testing"
)

type fakeStep struct {
	validateErr error
	execResult  StepResult
	execErr     error
	calls       int
}

func (s *fakeStep) ValidateConfig(cfg StepConfig) error { return s.validateErr }
func (s *fakeStep) Execute(ctx context.Context, wctx *Context, cfg StepConfig) (StepResult, error) {
	s.calls++
	return s.execResult, s.execErr
}

func TestRegisterAndNewStep(t *testing.T) {
	Register("test.fake-step", func() Step { return &fakeStep{} })
	step, err := newStep("test.fake-step")
	if err != nil {
		t.Fatalf("newStep: %v", err)
	}
	if _, ok := step.(*fakeStep); !ok {
		t.Fatalf("expected *fakeStep, got %T", step)
	}
}

func TestNewStepUnknownType(t *testing.T) {
	if _, err := newStep("test.does-not-exist"); err == nil {
		t.Fatal("expected error for unregistered step type")
	}
}

func TestEvaluateConditionEmptyIsAlwaysTrue(t *testing.T) {
	ctx := NewContext(nil, "main")
	ok, err := EvaluateCondition("", ctx)
	if err != nil || !ok {
		t.Fatalf("expected true, nil; got %v, %v", ok, err)
	}
}

func TestEvaluateConditionBareTruthiness(t *testing.T) {
	ctx := NewContext(map[string]any{"enabled": true, "empty": ""}, "main")

	ok, _ := EvaluateCondition("${enabled}", ctx)
	if !ok {
		t.Fatal("expected enabled to be truthy")
	}
	ok, _ = EvaluateCondition("${empty}", ctx)
	if ok {
		t.Fatal("expected empty string to be falsy")
	}
	ok, _ = EvaluateCondition("${missing}", ctx)
	if ok {
		t.Fatal("expected undefined reference to be falsy")
	}
}

func TestEvaluateConditionEquality(t *testing.T) {
	ctx := NewContext(map[string]any{"status": "pass", "score": "10"}, "main")

	ok, _ := EvaluateCondition(`${status == "pass"}`, ctx)
	if !ok {
		t.Fatal("expected status == pass to be true")
	}
	ok, _ = EvaluateCondition(`${status != "fail"}`, ctx)
	if !ok {
		t.Fatal("expected status != fail to be true")
	}
	ok, _ = EvaluateCondition(`${score == 10}`, ctx)
	if !ok {
		t.Fatal("expected numeric string to compare equal to number")
	}
}

func TestEvaluateConditionLooseBooleanStrings(t *testing.T) {
	ctx := NewContext(map[string]any{"flag": "true"}, "main")
	ok, _ := EvaluateCondition(`${flag == true}`, ctx)
	if !ok {
		t.Fatal(`expected string "true" to equal boolean true`)
	}
}

func TestEvaluateConditionUndefinedNeverEqual(t *testing.T) {
	ctx := NewContext(nil, "main")
	ok, _ := EvaluateCondition(`${missing == undefined}`, ctx)
	if ok {
		t.Fatal("expected undefined to never equal anything, including undefined")
	}
}

func TestEvaluateConditionWithoutDollarBraces(t *testing.T) {
	ctx := NewContext(map[string]any{"status": "pass"}, "main")
	ok, err := EvaluateCondition(`status == "pass"`, ctx)
	if err != nil || !ok {
		t.Fatalf("expected condition without ${} wrapper to still evaluate, got %v, %v", ok, err)
	}
}
