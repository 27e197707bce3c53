package steps

import (
	"time"

	"github.com/c360studio/maestro/dashboard"
	"github.com/c360studio/maestro/persona"
	"github.com/c360studio/maestro/repomutator"
	"github.com/c360studio/maestro/transport"
	"github.com/c360studio/maestro/workflow"
)

// Dependencies bundles the wiring every built-in step type needs. Unlike a
// stateless step type, these all close over shared clients, so registration
// happens once at startup from a fully wired Dependencies rather than from
// package init().
type Dependencies struct {
	PersonaClient  *persona.Client
	CallerGroup    string
	DefaultTimeout time.Duration
	Scanner        Scanner
	Mutator        *repomutator.Mutator
	Git            *repomutator.GitRunner
	Dashboard      *dashboard.Client
	Engine         *workflow.Engine
	Transport      transport.Transport
	KeepLogs       int
}

// RegisterAll registers every built-in step type named in spec.md §4.G
// against deps.
func RegisterAll(deps Dependencies) {
	workflow.Register("persona_request", func() workflow.Step {
		return &PersonaRequestStep{Client: deps.PersonaClient, CallerGroup: deps.CallerGroup, DefaultTimeout: deps.DefaultTimeout}
	})
	workflow.Register("context", func() workflow.Step {
		return &ContextStep{Scanner: deps.Scanner}
	})
	workflow.Register("diff_apply", func() workflow.Step {
		return &DiffApplyStep{Mutator: deps.Mutator, Git: deps.Git}
	})
	workflow.Register("pm_decision_parser", func() workflow.Step {
		return &PMDecisionParserStep{}
	})
	workflow.Register("analysis_review_loop", func() workflow.Step {
		return &AnalysisReviewLoopStep{Client: deps.PersonaClient, CallerGroup: deps.CallerGroup}
	})
	workflow.Register("sub_workflow", func() workflow.Step {
		return &SubWorkflowStep{Engine: deps.Engine, Transport: deps.Transport}
	})
	workflow.Register("task_update", func() workflow.Step {
		return &TaskUpdateStep{Dashboard: deps.Dashboard, KeepLogs: deps.KeepLogs}
	})
	workflow.Register("register_blocked_dependencies", func() workflow.Step {
		return &RegisterBlockedDependenciesStep{Dashboard: deps.Dashboard}
	})
}
