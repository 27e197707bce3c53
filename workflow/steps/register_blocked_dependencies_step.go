package steps

import (
	"context"
	"fmt"

	"github.com/c360studio/maestro/dashboard"
	"github.com/c360studio/maestro/workflow"
)

// registerBlockedDependenciesParams is RegisterBlockedDependenciesStep's
// Params shape.
type registerBlockedDependenciesParams struct {
	DependsOn  []string `json:"depends_on"`
	AllowClear bool     `json:"allow_clear"`
}

// RegisterBlockedDependenciesStep normalizes a set of blocking dependency
// IDs, merges them with the task's existing dependency list on the
// dashboard, and writes the result back. When the step is given no new IDs,
// the existing list is left untouched unless allow_clear is set, in which
// case it is cleared.
type RegisterBlockedDependenciesStep struct {
	Dashboard *dashboard.Client
}

func (s *RegisterBlockedDependenciesStep) ValidateConfig(cfg workflow.StepConfig) error {
	var p registerBlockedDependenciesParams
	return decodeParams(cfg.Params, &p)
}

func (s *RegisterBlockedDependenciesStep) Execute(ctx context.Context, wctx *workflow.Context, cfg workflow.StepConfig) (workflow.StepResult, error) {
	var p registerBlockedDependenciesParams
	if err := decodeParams(cfg.Params, &p); err != nil {
		return workflow.StepResult{}, fmt.Errorf("register_blocked_dependencies: invalid params: %w", err)
	}

	taskID, _ := wctx.GetVariable("task_id")
	taskIDStr := fmt.Sprint(taskID)

	existing, err := s.Dashboard.GetTask(ctx, taskIDStr)
	if err != nil {
		return workflow.StepResult{}, fmt.Errorf("register_blocked_dependencies: fetch existing: %w", err)
	}

	merged := normalizeDependencyIDs(taskIDStr, existing.DependsOn, p.DependsOn)

	if len(normalizeDependencyIDs(taskIDStr, nil, p.DependsOn)) == 0 {
		if !p.AllowClear {
			return workflow.StepResult{Outputs: map[string]any{"depends_on": existing.DependsOn, "cleared": false}}, nil
		}
		merged = []string{}
	}

	if err := s.Dashboard.UpdateBlockedDependencies(ctx, taskIDStr, dashboard.BlockedDependenciesUpdate{DependsOn: merged}); err != nil {
		return workflow.StepResult{}, fmt.Errorf("register_blocked_dependencies: %w", err)
	}

	return workflow.StepResult{Outputs: map[string]any{"depends_on": merged, "cleared": len(merged) == 0}}, nil
}

// normalizeDependencyIDs dedups existing and incoming dependency IDs,
// excluding taskID itself (a task cannot depend on itself).
func normalizeDependencyIDs(taskID string, existing, incoming []string) []string {
	seen := map[string]bool{}
	var merged []string
	for _, id := range append(append([]string{}, existing...), incoming...) {
		if id == "" || id == taskID || seen[id] {
			continue
		}
		seen[id] = true
		merged = append(merged, id)
	}
	return merged
}
