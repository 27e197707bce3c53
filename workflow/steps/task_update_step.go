package steps

import (
	"context"
	"fmt"

	"github.com/c360studio/maestro/dashboard"
	"github.com/c360studio/maestro/workflow"
)

// terminalTaskStatuses mirrors the teacher's TaskStatus terminal states:
// once a task reaches one of these, its log directories stop growing.
var terminalTaskStatuses = map[string]bool{
	"completed": true,
	"failed":    true,
}

// taskUpdateParams is TaskUpdateStep's Params shape.
type taskUpdateParams struct {
	Status         string `json:"status"`
	Notes          string `json:"notes"`
	PlanningLogDir string `json:"planning_log_dir"`
	QALogDir       string `json:"qa_log_dir"`
}

// TaskUpdateStep delegates a task status update to the dashboard client and,
// on terminal statuses, prunes the per-task planning/qa log directories.
type TaskUpdateStep struct {
	Dashboard *dashboard.Client
	KeepLogs  int // 0 defaults to 5
}

func (s *TaskUpdateStep) keepLogs() int {
	if s.KeepLogs <= 0 {
		return 5
	}
	return s.KeepLogs
}

func (s *TaskUpdateStep) ValidateConfig(cfg workflow.StepConfig) error {
	var p taskUpdateParams
	if err := decodeParams(cfg.Params, &p); err != nil {
		return fmt.Errorf("task_update: invalid params: %w", err)
	}
	if p.Status == "" {
		return fmt.Errorf("task_update: status is required")
	}
	return nil
}

func (s *TaskUpdateStep) Execute(ctx context.Context, wctx *workflow.Context, cfg workflow.StepConfig) (workflow.StepResult, error) {
	var p taskUpdateParams
	if err := decodeParams(cfg.Params, &p); err != nil {
		return workflow.StepResult{}, fmt.Errorf("task_update: invalid params: %w", err)
	}

	taskID, _ := wctx.GetVariable("task_id")

	if err := s.Dashboard.UpdateTaskStatus(ctx, fmt.Sprint(taskID), dashboard.TaskStatusUpdate{
		Status: p.Status, Notes: p.Notes,
	}); err != nil {
		return workflow.StepResult{}, fmt.Errorf("task_update: %w", err)
	}

	if terminalTaskStatuses[p.Status] {
		if p.PlanningLogDir != "" {
			if err := pruneTaskLogs(p.PlanningLogDir, s.keepLogs()); err != nil {
				return workflow.StepResult{}, fmt.Errorf("task_update: prune planning logs: %w", err)
			}
		}
		if p.QALogDir != "" {
			if err := pruneTaskLogs(p.QALogDir, s.keepLogs()); err != nil {
				return workflow.StepResult{}, fmt.Errorf("task_update: prune qa logs: %w", err)
			}
		}
	}

	return workflow.StepResult{Outputs: map[string]any{"status": p.Status}}, nil
}
