package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/c360studio/maestro/persona"
	"github.com/c360studio/maestro/workflow"
)

// personaRequestParams is PersonaRequestStep's Params shape.
type personaRequestParams struct {
	Persona    string         `json:"persona"`
	Step       string         `json:"step"`
	Intent     string         `json:"intent"`
	Payload    map[string]any `json:"payload"`
	TimeoutMS  int            `json:"timeout_ms"`
	CallerName string         `json:"caller_name"`
}

func (p personaRequestParams) timeout(fallback time.Duration) time.Duration {
	if p.TimeoutMS > 0 {
		return time.Duration(p.TimeoutMS) * time.Millisecond
	}
	if fallback > 0 {
		return fallback
	}
	return defaultPersonaTimeout
}

// PersonaRequestStep sends a persona request and blocks for its correlated
// completion, failing the step when the persona reports a terminal failure
// status unless the step config opts out via abortOnFailure=false.
type PersonaRequestStep struct {
	Client         *persona.Client
	CallerGroup    string
	DefaultTimeout time.Duration
}

func (s *PersonaRequestStep) ValidateConfig(cfg workflow.StepConfig) error {
	var p personaRequestParams
	if err := decodeParams(cfg.Params, &p); err != nil {
		return fmt.Errorf("persona_request: invalid params: %w", err)
	}
	if p.Persona == "" {
		return fmt.Errorf("persona_request: persona is required")
	}
	return nil
}

func (s *PersonaRequestStep) Execute(ctx context.Context, wctx *workflow.Context, cfg workflow.StepConfig) (workflow.StepResult, error) {
	var p personaRequestParams
	if err := decodeParams(cfg.Params, &p); err != nil {
		return workflow.StepResult{}, fmt.Errorf("persona_request: invalid params: %w", err)
	}

	workflowID, _ := wctx.GetVariable("workflow_id")
	taskID, _ := wctx.GetVariable("task_id")
	repo, _ := wctx.GetVariable("repo")
	projectID, _ := wctx.GetVariable("project_id")

	req := persona.Request{
		WorkflowID: fmt.Sprint(workflowID),
		ToPersona:  p.Persona,
		Step:       p.Step,
		Intent:     p.Intent,
		Payload:    p.Payload,
		Repo:       fmt.Sprint(repo),
		Branch:     wctx.GetCurrentBranch(),
		ProjectID:  fmt.Sprint(projectID),
		TaskID:     fmt.Sprint(taskID),
		From:       "workflow-engine",
	}

	corrID, err := s.Client.SendRequest(ctx, req)
	if err != nil {
		return workflow.StepResult{}, fmt.Errorf("persona_request: send: %w", err)
	}

	consumer := p.CallerName
	if consumer == "" {
		consumer = fmt.Sprintf("%s-%s", cfg.Name, corrID)
	}

	event, err := s.Client.WaitForCompletion(ctx, s.CallerGroup, consumer, req.WorkflowID, corrID, p.timeout(s.DefaultTimeout))
	if err != nil {
		return workflow.StepResult{}, fmt.Errorf("persona_request: await completion: %w", err)
	}

	outputs := map[string]any{
		"status":  event.Status,
		"output":  event.Output,
		"raw":     event.Raw,
		"corr_id": corrID,
		"from":    event.From,
	}

	if (event.Status == "fail" || event.Status == "failed") && cfg.ShouldAbortOnFailure() {
		return workflow.StepResult{Outputs: outputs}, fmt.Errorf("persona_request: %s reported status %q", p.Persona, event.Status)
	}

	return workflow.StepResult{Outputs: outputs}, nil
}
