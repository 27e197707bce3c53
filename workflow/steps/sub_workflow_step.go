package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/c360studio/maestro/transport"
	"github.com/c360studio/maestro/workflow"
)

// inheritedVariables are the parent-context variables a sub-workflow
// inherits unless its own resolved inputs override them.
var inheritedVariables = []string{"SKIP_GIT_OPERATIONS", "SKIP_PERSONA_OPERATIONS", "repo_remote", "project_id"}

// subWorkflowParams is SubWorkflowStep's Params shape.
type subWorkflowParams struct {
	DefinitionPath string            `json:"definition_path"`
	Inputs         map[string]any    `json:"inputs"`
	Outputs        map[string]string `json:"outputs"` // parent variable -> child output dot path
}

// SubWorkflowStep loads a child workflow.Definition from a filesystem path
// and runs it to completion against a fresh Context seeded from the
// parent's inherited flags and the step's resolved inputs.
type SubWorkflowStep struct {
	Engine    *workflow.Engine
	Transport transport.Transport
}

func (s *SubWorkflowStep) ValidateConfig(cfg workflow.StepConfig) error {
	var p subWorkflowParams
	if err := decodeParams(cfg.Params, &p); err != nil {
		return fmt.Errorf("sub_workflow: invalid params: %w", err)
	}
	if p.DefinitionPath == "" {
		return fmt.Errorf("sub_workflow: definition_path is required")
	}
	return nil
}

func (s *SubWorkflowStep) Execute(ctx context.Context, wctx *workflow.Context, cfg workflow.StepConfig) (workflow.StepResult, error) {
	var p subWorkflowParams
	if err := decodeParams(cfg.Params, &p); err != nil {
		return workflow.StepResult{}, fmt.Errorf("sub_workflow: invalid params: %w", err)
	}

	def, err := workflow.LoadDefinition(p.DefinitionPath)
	if err != nil {
		return workflow.StepResult{}, fmt.Errorf("sub_workflow: %w", err)
	}

	childVars := make(map[string]any, len(inheritedVariables)+len(p.Inputs))
	for _, name := range inheritedVariables {
		if v, ok := wctx.GetVariable(name); ok {
			childVars[name] = v
		}
	}
	for k, v := range p.Inputs {
		childVars[k] = v
	}

	projectID, _ := childVars["project_id"].(string)
	repoRoot, _ := wctx.GetVariable("repo_root")

	outcome := s.Engine.Run(ctx, *def, workflow.RunInput{
		ProjectID:        projectID,
		RepoRoot:         fmt.Sprint(repoRoot),
		Branch:           wctx.GetCurrentBranch(),
		Transport:        s.Transport,
		InitialVariables: childVars,
	})

	if !outcome.Success {
		return workflow.StepResult{}, fmt.Errorf("sub_workflow: child workflow failed at step %q: %w", outcome.FailedStep, outcome.Error)
	}

	outputs := map[string]any{}
	for alias, path := range p.Outputs {
		if v, ok := resolveChildOutput(outcome.FinalContext, path); ok {
			outputs[alias] = v
			wctx.SetVariable(alias, v)
		}
	}

	return workflow.StepResult{Outputs: outputs}, nil
}

// resolveChildOutput resolves a declared sub-workflow output path against
// the child's final Context: a bare name is a flat variable, a
// "step.dot.path" is a dot-path into that step's recorded output, matching
// the same step-outputs-before-variables precedence §4.F's template
// resolution uses.
func resolveChildOutput(finalCtx *workflow.Context, path string) (any, bool) {
	if idx := strings.IndexByte(path, '.'); idx >= 0 {
		step, rest := path[:idx], path[idx+1:]
		if finalCtx.HasStep(step) {
			if v, ok := finalCtx.GetStepOutput(step, rest); ok {
				return v, true
			}
		}
	}
	return finalCtx.GetVariable(path)
}
