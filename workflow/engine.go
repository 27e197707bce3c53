package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360studio/maestro/transport"
)

// backoffBase and backoffCap bound the per-step retry backoff: base on the
// first retry, doubling thereafter, capped at backoffCap.
const (
	backoffBase = time.Second
	backoffCap  = 5 * time.Second
)

// Definition is a named, versioned sequence of steps.
type Definition struct {
	Name    string       `yaml:"name"`
	Version string       `yaml:"version"`
	Steps   []StepConfig `yaml:"steps"`
}

// RunInput carries the runtime parameters an Engine needs beyond the
// Definition itself.
type RunInput struct {
	ProjectID        string
	RepoRoot         string
	Branch           string
	Transport        transport.Transport
	InitialVariables map[string]any
}

// StepRecord summarizes one step's disposition within a completed run.
type StepRecord struct {
	Name    string
	Skipped bool
	Failed  bool
	Error   string
}

// Outcome is the result of running a Definition to completion or failure.
type Outcome struct {
	Success        bool
	FailedStep     string
	Error          error
	CompletedSteps []StepRecord
	FinalContext   *Context
	Duration       time.Duration
}

// Engine executes a Definition against a Context, step by step, in
// declared order. A single Engine is stateless and may run many
// Definitions concurrently; each Run gets its own private Context.
type Engine struct {
	logger  *slog.Logger
	metrics engineMetrics
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithMetricsRegistry exposes the engine's step-outcome counters on reg
// instead of a private, unexported registry. Pass the process-wide
// registry to land them on a shared /metrics endpoint.
func WithMetricsRegistry(reg prometheus.Registerer) EngineOption {
	return func(e *Engine) { e.metrics = newEngineMetrics(reg) }
}

// NewEngine constructs an Engine.
func NewEngine(logger *slog.Logger, opts ...EngineOption) *Engine {
	e := &Engine{logger: logger, metrics: newEngineMetrics(prometheus.NewRegistry())}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes def.Steps in order against a fresh Context seeded from
// input. It returns on the first step whose failure is not marked
// abortOnFailure=false.
func (e *Engine) Run(ctx context.Context, def Definition, input RunInput) Outcome {
	start := time.Now()
	wctx := NewContext(input.InitialVariables, input.Branch)

	var completed []StepRecord
	for _, cfg := range def.Steps {
		should, err := EvaluateCondition(cfg.Condition, wctx)
		if err != nil {
			return e.failed(wctx, completed, cfg.Name, fmt.Errorf("evaluate condition: %w", err), start)
		}
		if !should {
			completed = append(completed, StepRecord{Name: cfg.Name, Skipped: true})
			e.metrics.record(cfg.Type, "skipped")
			continue
		}

		step, err := newStep(cfg.Type)
		if err != nil {
			return e.failed(wctx, completed, cfg.Name, err, start)
		}
		if err := step.ValidateConfig(cfg); err != nil {
			return e.failed(wctx, completed, cfg.Name, fmt.Errorf("validate config: %w", err), start)
		}

		result, err := e.executeWithRetry(ctx, step, wctx, cfg)
		if err != nil {
			rec := StepRecord{Name: cfg.Name, Failed: true, Error: err.Error()}
			completed = append(completed, rec)
			e.metrics.record(cfg.Type, "failed")
			if cfg.ShouldAbortOnFailure() {
				return Outcome{
					Success: false, FailedStep: cfg.Name, Error: err,
					CompletedSteps: completed, FinalContext: wctx, Duration: time.Since(start),
				}
			}
			continue
		}

		wctx.SetStepOutput(cfg.Name, result.Outputs)
		for alias, source := range cfg.Outputs {
			if v, ok := lookupPath(result.Outputs, source); ok {
				wctx.SetVariable(alias, v)
			}
		}
		completed = append(completed, StepRecord{Name: cfg.Name})
		e.metrics.record(cfg.Type, "success")
	}

	return Outcome{
		Success: true, CompletedSteps: completed, FinalContext: wctx, Duration: time.Since(start),
	}
}

func (e *Engine) failed(wctx *Context, completed []StepRecord, stepName string, err error, start time.Time) Outcome {
	return Outcome{
		Success: false, FailedStep: stepName, Error: err,
		CompletedSteps: completed, FinalContext: wctx, Duration: time.Since(start),
	}
}

// executeWithRetry runs step.Execute, retrying the whole step body up to
// cfg.MaxRetries times with exponential backoff (base 1s, cap 5s), and
// enforcing cfg.timeout() as a per-attempt deadline.
func (e *Engine) executeWithRetry(ctx context.Context, step Step, wctx *Context, cfg StepConfig) (StepResult, error) {
	backoff := backoffBase
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		stepCtx := ctx
		var cancel context.CancelFunc
		if d := cfg.timeout(); d > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, d)
		}

		result, err := step.Execute(stepCtx, wctx, cfg)
		deadlineExceeded := stepCtx.Err() == context.DeadlineExceeded
		if cancel != nil {
			cancel()
		}

		if err == nil {
			return result, nil
		}
		if deadlineExceeded {
			err = fmt.Errorf("step %q timed out after %s: %w", cfg.Name, cfg.timeout(), err)
		}
		lastErr = err

		if attempt < cfg.MaxRetries {
			e.logger.Warn("workflow step failed, retrying", "step", cfg.Name, "attempt", attempt+1, "error", err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return StepResult{}, ctx.Err()
			}
			backoff *= 2
			if backoff > backoffCap {
				backoff = backoffCap
			}
		}
	}

	return StepResult{}, lastErr
}
