package workflow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type scriptedStep struct {
	outputs     map[string]any
	err         error
	failUntil   int
	calls       int
	sleep       time.Duration
	validateErr error
}

func (s *scriptedStep) ValidateConfig(cfg StepConfig) error { return s.validateErr }

func (s *scriptedStep) Execute(ctx context.Context, wctx *Context, cfg StepConfig) (StepResult, error) {
	s.calls++
	if s.sleep > 0 {
		select {
		case <-time.After(s.sleep):
		case <-ctx.Done():
			return StepResult{}, ctx.Err()
		}
	}
	if s.calls <= s.failUntil {
		return StepResult{}, errors.New("transient failure")
	}
	return StepResult{Outputs: s.outputs}, s.err
}

func TestEngineRunsStepsInOrderAndRecordsOutputs(t *testing.T) {
	Register("test.engine-step-a", func() Step {
		return &scriptedStep{outputs: map[string]any{"value": "a-output"}}
	})
	Register("test.engine-step-b", func() Step {
		return &scriptedStep{outputs: map[string]any{"value": "b-output"}}
	})

	def := Definition{
		Name: "demo",
		Steps: []StepConfig{
			{Name: "first", Type: "test.engine-step-a", Outputs: map[string]string{"result_a": "value"}},
			{Name: "second", Type: "test.engine-step-b"},
		},
	}

	engine := NewEngine(testLogger())
	outcome := engine.Run(context.Background(), def, RunInput{Branch: "main"})

	if !outcome.Success {
		t.Fatalf("expected success, got %+v", outcome)
	}
	if len(outcome.CompletedSteps) != 2 {
		t.Fatalf("expected 2 completed steps, got %d", len(outcome.CompletedSteps))
	}
	if v, ok := outcome.FinalContext.GetVariable("result_a"); !ok || v != "a-output" {
		t.Fatalf("expected output alias applied, got %v, %v", v, ok)
	}
	if v, ok := outcome.FinalContext.GetStepOutput("second", "value"); !ok || v != "b-output" {
		t.Fatalf("expected second step output recorded, got %v, %v", v, ok)
	}
}

func TestEngineSkipsStepWhenConditionFalse(t *testing.T) {
	called := &scriptedStep{outputs: map[string]any{}}
	Register("test.engine-skip-step", func() Step { return called })

	def := Definition{Steps: []StepConfig{
		{Name: "maybe", Type: "test.engine-skip-step", Condition: "${flag}"},
	}}

	engine := NewEngine(testLogger())
	outcome := engine.Run(context.Background(), def, RunInput{InitialVariables: map[string]any{"flag": false}})

	if !outcome.Success {
		t.Fatalf("expected success, got %+v", outcome)
	}
	if called.calls != 0 {
		t.Fatal("expected step execution to be skipped")
	}
	if !outcome.CompletedSteps[0].Skipped {
		t.Fatal("expected step recorded as skipped")
	}
}

func TestEngineAbortsOnFailureByDefault(t *testing.T) {
	Register("test.engine-fail-step", func() Step {
		return &scriptedStep{err: errors.New("boom")}
	})
	Register("test.engine-never-runs", func() Step {
		return &scriptedStep{outputs: map[string]any{}}
	})

	never := &scriptedStep{outputs: map[string]any{}}
	registry.mu.Lock()
	registry.types["test.engine-never-runs-instance"] = func() Step { return never }
	registry.mu.Unlock()

	def := Definition{Steps: []StepConfig{
		{Name: "broken", Type: "test.engine-fail-step"},
		{Name: "unreachable", Type: "test.engine-never-runs-instance"},
	}}

	engine := NewEngine(testLogger())
	outcome := engine.Run(context.Background(), def, RunInput{})

	if outcome.Success {
		t.Fatal("expected failure")
	}
	if outcome.FailedStep != "broken" {
		t.Fatalf("expected failed step 'broken', got %s", outcome.FailedStep)
	}
	if never.calls != 0 {
		t.Fatal("expected steps after a failure to never execute")
	}
}

func TestEngineContinuesWhenAbortOnFailureFalse(t *testing.T) {
	Register("test.engine-soft-fail-step", func() Step {
		return &scriptedStep{err: errors.New("soft failure")}
	})
	Register("test.engine-after-soft-fail", func() Step {
		return &scriptedStep{outputs: map[string]any{}}
	})

	abortFalse := false
	def := Definition{Steps: []StepConfig{
		{Name: "soft", Type: "test.engine-soft-fail-step", AbortOnFailure: &abortFalse},
		{Name: "after", Type: "test.engine-after-soft-fail"},
	}}

	engine := NewEngine(testLogger())
	outcome := engine.Run(context.Background(), def, RunInput{})

	if !outcome.Success {
		t.Fatalf("expected overall success when abortOnFailure=false, got %+v", outcome)
	}
	if len(outcome.CompletedSteps) != 2 {
		t.Fatalf("expected both steps recorded, got %d", len(outcome.CompletedSteps))
	}
	if !outcome.CompletedSteps[0].Failed {
		t.Fatal("expected first step recorded as failed")
	}
}

func TestEngineRetriesAndSucceeds(t *testing.T) {
	step := &scriptedStep{failUntil: 2, outputs: map[string]any{"ok": true}}
	Register("test.engine-retry-step", func() Step { return step })

	def := Definition{Steps: []StepConfig{
		{Name: "flaky", Type: "test.engine-retry-step", MaxRetries: 3},
	}}

	engine := NewEngine(testLogger())
	start := time.Now()
	outcome := engine.Run(context.Background(), def, RunInput{})
	elapsed := time.Since(start)

	if !outcome.Success {
		t.Fatalf("expected eventual success, got %+v", outcome)
	}
	if step.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", step.calls)
	}
	// Two retries: backoff 1s then 2s, so this should take at least ~3s.
	if elapsed < 2*time.Second {
		t.Fatalf("expected exponential backoff to elapse, took %s", elapsed)
	}
}

func TestEngineStepTimeout(t *testing.T) {
	Register("test.engine-timeout-step", func() Step {
		return &scriptedStep{sleep: 200 * time.Millisecond, outputs: map[string]any{}}
	})

	def := Definition{Steps: []StepConfig{
		{Name: "slow", Type: "test.engine-timeout-step", TimeoutMS: 20},
	}}

	engine := NewEngine(testLogger())
	outcome := engine.Run(context.Background(), def, RunInput{})

	if outcome.Success {
		t.Fatal("expected timeout failure")
	}
	if outcome.FailedStep != "slow" {
		t.Fatalf("expected failed step 'slow', got %s", outcome.FailedStep)
	}
}

func TestEngineRecordsStepOutcomeMetrics(t *testing.T) {
	Register("test.engine-metrics-ok", func() Step {
		return &scriptedStep{outputs: map[string]any{}}
	})
	Register("test.engine-metrics-fail", func() Step {
		return &scriptedStep{err: errors.New("boom")}
	})

	reg := prometheus.NewRegistry()
	engine := NewEngine(testLogger(), WithMetricsRegistry(reg))

	def := Definition{Steps: []StepConfig{
		{Name: "ok", Type: "test.engine-metrics-ok"},
		{Name: "skipped", Type: "test.engine-metrics-ok", Condition: "false"},
	}}
	engine.Run(context.Background(), def, RunInput{})

	failDef := Definition{Steps: []StepConfig{
		{Name: "bad", Type: "test.engine-metrics-fail"},
	}}
	engine.Run(context.Background(), failDef, RunInput{})

	if got := testutil.ToFloat64(engine.metrics.stepOutcomes.WithLabelValues("test.engine-metrics-ok", "success")); got != 1 {
		t.Fatalf("expected 1 success, got %v", got)
	}
	if got := testutil.ToFloat64(engine.metrics.stepOutcomes.WithLabelValues("test.engine-metrics-ok", "skipped")); got != 1 {
		t.Fatalf("expected 1 skipped, got %v", got)
	}
	if got := testutil.ToFloat64(engine.metrics.stepOutcomes.WithLabelValues("test.engine-metrics-fail", "failed")); got != 1 {
		t.Fatalf("expected 1 failed, got %v", got)
	}
}
