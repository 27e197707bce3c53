package steps

import (
	"context"
	"fmt"

	"github.com/c360studio/maestro/decision"
	"github.com/c360studio/maestro/workflow"
)

// pmDecisionParserParams is PMDecisionParserStep's Params shape.
type pmDecisionParserParams struct {
	SourceStep               string `json:"source_step"`
	SourcePath               string `json:"source_path"`
	BacklogMilestoneVariable string `json:"backlog_milestone_variable"`
}

// PMDecisionParserStep wraps decision.Parse, resolving its raw input from an
// earlier step's output and the backlog milestone ID from a shared
// variable.
type PMDecisionParserStep struct{}

func (s *PMDecisionParserStep) ValidateConfig(cfg workflow.StepConfig) error {
	var p pmDecisionParserParams
	if err := decodeParams(cfg.Params, &p); err != nil {
		return fmt.Errorf("pm_decision_parser: invalid params: %w", err)
	}
	if p.SourceStep == "" {
		return fmt.Errorf("pm_decision_parser: source_step is required")
	}
	return nil
}

func (s *PMDecisionParserStep) Execute(ctx context.Context, wctx *workflow.Context, cfg workflow.StepConfig) (workflow.StepResult, error) {
	var p pmDecisionParserParams
	if err := decodeParams(cfg.Params, &p); err != nil {
		return workflow.StepResult{}, fmt.Errorf("pm_decision_parser: invalid params: %w", err)
	}

	raw, ok := wctx.GetStepOutput(p.SourceStep, p.SourcePath)
	if !ok {
		return workflow.StepResult{}, fmt.Errorf("pm_decision_parser: no output found at %s.%s", p.SourceStep, p.SourcePath)
	}

	backlogVar := p.BacklogMilestoneVariable
	if backlogVar == "" {
		backlogVar = "backlog_milestone_id"
	}
	backlogID, _ := wctx.GetVariable(backlogVar)

	d := decision.Parse(raw, fmt.Sprint(backlogID))

	return workflow.StepResult{Outputs: map[string]any{
		"decision":         d.Decision,
		"follow_up_tasks":  d.FollowUpTasks,
		"immediate_issues": d.ImmediateIssues,
		"deferred_issues":  d.DeferredIssues,
		"reasoning":        d.Reasoning,
		"review_type":      d.ReviewType,
		"detected_stage":   d.DetectedStage,
		"warnings":         d.Warnings,
	}}, nil
}
