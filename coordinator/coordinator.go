// Package coordinator implements the "coordinate this project" entry point:
// fetch project status and open tasks, run one workflow per task, and
// collect a per-task result without letting a single task's failure abort
// the others.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/c360studio/maestro/dashboard"
	"github.com/c360studio/maestro/transport"
	"github.com/c360studio/maestro/workflow"
)

// TaskResult is one task's outcome within a CoordinateProject call.
type TaskResult struct {
	TaskID     string
	Success    bool
	Error      string
	FailedStep string
}

// Result is the aggregate outcome of coordinating one project.
type Result struct {
	ProjectID string
	Success   bool
	Results   []TaskResult
}

// Coordinator fans a project's open tasks out into workflow runs, one per
// task, using the stage-to-definition mapping supplied at construction.
type Coordinator struct {
	Dashboard   *dashboard.Client
	Engine      *workflow.Engine
	Transport   transport.Transport
	Definitions map[string]workflow.Definition // keyed by task stage
	Logger      *slog.Logger
}

// New constructs a Coordinator.
func New(dash *dashboard.Client, engine *workflow.Engine, tr transport.Transport, definitions map[string]workflow.Definition, logger *slog.Logger) *Coordinator {
	return &Coordinator{Dashboard: dash, Engine: engine, Transport: tr, Definitions: definitions, Logger: logger}
}

// CoordinateProject implements §4.K: fetch project status and open tasks,
// run each task's workflow (tasks sharing a repo path one at a time,
// distinct repo paths concurrently), and return an aggregate result.
// A failure reaching the dashboard is fatal (Success=false, no task
// results); a failure within one task's workflow run is recorded as that
// task's result and does not affect the others.
func (c *Coordinator) CoordinateProject(ctx context.Context, projectID string) (Result, error) {
	status, err := c.Dashboard.GetProjectStatus(ctx, projectID)
	if err != nil {
		return Result{ProjectID: projectID}, fmt.Errorf("fetch project status: %w", err)
	}

	tasks, err := c.Dashboard.ListOpenTasks(ctx, projectID)
	if err != nil {
		return Result{ProjectID: projectID}, fmt.Errorf("fetch open tasks: %w", err)
	}

	if len(tasks) == 0 {
		return Result{ProjectID: projectID, Success: true}, nil
	}

	results := c.runTasks(ctx, status, tasks)
	return Result{ProjectID: projectID, Success: true, Results: results}, nil
}

// runTasks groups tasks by repo path and spawns one goroutine per group,
// mirroring the teacher's spawnPlanner/runPlanners fan-out-and-collect
// shape: a buffered channel per group, goroutines that select on ctx.Done
// to avoid leaking if the collector gives up early. Per spec.md §5, the
// Repo Mutator assumes its working tree is never shared across concurrent
// workflows, so tasks within one group run one at a time, in order;
// distinct repo paths still run concurrently with each other. Every open
// task in a project currently resolves to the same status.RepoRoot, so
// today this collapses to one group, but the grouping holds if a project
// ever spans more than one checkout.
func (c *Coordinator) runTasks(ctx context.Context, status dashboard.ProjectStatus, tasks []dashboard.Task) []TaskResult {
	byRepoPath := make(map[string][]dashboard.Task)
	for _, task := range tasks {
		byRepoPath[status.RepoRoot] = append(byRepoPath[status.RepoRoot], task)
	}

	out := make(chan []TaskResult, len(byRepoPath))
	for repoPath, group := range byRepoPath {
		go func(repoPath string, group []dashboard.Task) {
			groupResults := make([]TaskResult, 0, len(group))
			for _, task := range group {
				groupResults = append(groupResults, c.runTask(ctx, status, task))
			}
			select {
			case out <- groupResults:
			case <-ctx.Done():
			}
		}(repoPath, group)
	}

	results := make([]TaskResult, 0, len(tasks))
	for i := 0; i < len(byRepoPath); i++ {
		select {
		case group := <-out:
			results = append(results, group...)
		case <-ctx.Done():
			results = append(results, TaskResult{Success: false, Error: ctx.Err().Error()})
		}
	}
	return results
}

// runTask selects a workflow definition for task.Stage, runs it, and
// reshapes the engine's Outcome into a TaskResult. It never returns an
// error itself: every failure mode is folded into the TaskResult so a
// single task can fail without aborting CoordinateProject.
func (c *Coordinator) runTask(ctx context.Context, status dashboard.ProjectStatus, task dashboard.Task) TaskResult {
	def, ok := c.Definitions[task.Stage]
	if !ok {
		return TaskResult{TaskID: task.ID, Success: false, Error: fmt.Sprintf("no workflow definition for stage %q", task.Stage)}
	}

	input := workflow.RunInput{
		ProjectID: task.ProjectID,
		RepoRoot:  status.RepoRoot,
		Branch:    status.Branch,
		Transport: c.Transport,
		InitialVariables: map[string]any{
			"task_id":     task.ID,
			"project_id":  task.ProjectID,
			"repo_remote": status.RepoRemote,
		},
	}

	outcome := c.Engine.Run(ctx, def, input)
	if !outcome.Success {
		errMsg := ""
		if outcome.Error != nil {
			errMsg = outcome.Error.Error()
		}
		c.Logger.Warn("task workflow failed", "task_id", task.ID, "stage", task.Stage, "failed_step", outcome.FailedStep, "error", errMsg)
		return TaskResult{TaskID: task.ID, Success: false, Error: errMsg, FailedStep: outcome.FailedStep}
	}

	return TaskResult{TaskID: task.ID, Success: true}
}
