package steps

import (
	"context"
	"fmt"

	"github.com/c360studio/maestro/persona"
	"github.com/c360studio/maestro/review"
	"github.com/c360studio/maestro/workflow"
)

// analysisReviewLoopParams is AnalysisReviewLoopStep's Params shape.
type analysisReviewLoopParams struct {
	AnalystPersona  string         `json:"analyst_persona"`
	ReviewerPersona string         `json:"reviewer_persona"`
	MaxIterations   int            `json:"max_iterations"`
	AnalysisStep    string         `json:"analysis_step"`
	AnalysisIntent  string         `json:"analysis_intent"`
	ReviewStep      string         `json:"review_step"`
	ReviewIntent    string         `json:"review_intent"`
	AutoPassReason  string         `json:"auto_pass_reason"`
	BasePayload     map[string]any `json:"base_payload"`
	TimeoutMS       int            `json:"timeout_ms"`
}

// AnalysisReviewLoopStep wraps review.Run, invoking both personas through
// the same persona.Client other step types use, and records the loop's
// outcome into variables §4.J names for downstream coordination steps.
type AnalysisReviewLoopStep struct {
	Client         *persona.Client
	CallerGroup    string
	DefaultTimeout func(ms int) int // resolves a zero timeout to a default, in ms
}

func (s *AnalysisReviewLoopStep) ValidateConfig(cfg workflow.StepConfig) error {
	var p analysisReviewLoopParams
	if err := decodeParams(cfg.Params, &p); err != nil {
		return fmt.Errorf("analysis_review_loop: invalid params: %w", err)
	}
	if p.AnalystPersona == "" || p.ReviewerPersona == "" {
		return fmt.Errorf("analysis_review_loop: analyst_persona and reviewer_persona are required")
	}
	return nil
}

func (s *AnalysisReviewLoopStep) Execute(ctx context.Context, wctx *workflow.Context, cfg workflow.StepConfig) (workflow.StepResult, error) {
	var p analysisReviewLoopParams
	if err := decodeParams(cfg.Params, &p); err != nil {
		return workflow.StepResult{}, fmt.Errorf("analysis_review_loop: invalid params: %w", err)
	}

	workflowID, _ := wctx.GetVariable("workflow_id")
	taskID, _ := wctx.GetVariable("task_id")
	repo, _ := wctx.GetVariable("repo")
	projectID, _ := wctx.GetVariable("project_id")

	invoke := func(personaName, step, intent string, payload map[string]any) (review.PersonaResult, error) {
		req := persona.Request{
			WorkflowID: fmt.Sprint(workflowID),
			ToPersona:  personaName,
			Step:       step,
			Intent:     intent,
			Payload:    payload,
			Repo:       fmt.Sprint(repo),
			Branch:     wctx.GetCurrentBranch(),
			ProjectID:  fmt.Sprint(projectID),
			TaskID:     fmt.Sprint(taskID),
			From:       "workflow-engine",
		}
		corrID, err := s.Client.SendRequest(ctx, req)
		if err != nil {
			return review.PersonaResult{}, err
		}
		timeoutMS := p.TimeoutMS
		if timeoutMS <= 0 && s.DefaultTimeout != nil {
			timeoutMS = s.DefaultTimeout(0)
		}
		timeout := msToDuration(timeoutMS)
		if timeout <= 0 {
			timeout = defaultPersonaTimeout
		}
		event, err := s.Client.WaitForCompletion(ctx, s.CallerGroup, fmt.Sprintf("%s-%s", cfg.Name, corrID),
			req.WorkflowID, corrID, timeout)
		if err != nil {
			return review.PersonaResult{}, err
		}
		return review.PersonaResult{Status: event.Status, Output: event.Output}, nil
	}

	analyst := func(ctx context.Context, personaName, step, intent string, payload map[string]any) (review.PersonaResult, error) {
		return invoke(personaName, step, intent, payload)
	}
	reviewer := func(ctx context.Context, personaName, step, intent string, payload map[string]any) (review.PersonaResult, error) {
		return invoke(personaName, step, intent, payload)
	}

	cfgLoop := review.Config{
		AnalystPersona:  p.AnalystPersona,
		ReviewerPersona: p.ReviewerPersona,
		MaxIterations:   p.MaxIterations,
		AnalysisStep:    p.AnalysisStep,
		AnalysisIntent:  p.AnalysisIntent,
		ReviewStep:      p.ReviewStep,
		ReviewIntent:    p.ReviewIntent,
		AutoPassReason:  p.AutoPassReason,
		BasePayload:     p.BasePayload,
	}

	result, err := review.Run(ctx, cfgLoop, analyst, reviewer, nil)
	if err != nil {
		return workflow.StepResult{}, fmt.Errorf("analysis_review_loop: %w", err)
	}

	wctx.SetVariable("analysis_request_result", result.LastAnalysis)
	wctx.SetVariable("analysis_review_result", result.LastReview)
	wctx.SetVariable("analysis_review_status", result.FinalStatus)
	wctx.SetVariable("analysis_iterations", result.Iterations)
	wctx.SetVariable("analysis_auto_pass", result.AutoPass)

	return workflow.StepResult{Outputs: map[string]any{
		"status":     result.FinalStatus,
		"auto_pass":  result.AutoPass,
		"iterations": result.Iterations,
		"analysis":   result.LastAnalysis,
		"review":     result.LastReview,
	}}, nil
}
