package review

import (
	"context"
	"errors"
	"strings"

	"github.com/c360studio/maestro/decision"
)

// BlockingIssue is one blocking finding surfaced by a reviewer, used by the
// QA follow-up guard to check the PM's response covers it.
type BlockingIssue struct {
	Title       string
	Description string
	// Infra marks an issue explicitly flagged as a missing test
	// framework/harness rather than a code defect.
	Infra bool
}

var testKeywords = []string{"test", "tests", "testing", "spec", "assertion"}
var infraKeywords = []string{"test framework", "harness", "ci pipeline", "test runner", "missing framework"}

// ErrQAIgnoredTestFailure is returned when a QA review's blocking test
// issues have no matching follow-up task.
var ErrQAIgnoredTestFailure = errors.New("PM decision ignored QA test failure")

// ErrQAIgnoredInfraFailure is returned when a QA review's blocking
// infrastructure issues have no matching follow-up task.
var ErrQAIgnoredInfraFailure = errors.New("PM decision ignored QA infrastructure failure")

// QAFollowUpGuard implements §4.J's guard: for review_type="qa", any
// blocking issue whose title/description mentions tests requires at least
// one follow-up task mentioning tests; any issue flagged (or worded) as an
// infrastructure gap requires an infra-matching follow-up task. When one
// issue breaks both rules, the returned error wraps both sentinels.
func QAFollowUpGuard(reviewType string, blockingIssues []BlockingIssue, followUpTasks []decision.FollowUpTask) error {
	if reviewType != "qa" {
		return nil
	}
	for _, issue := range blockingIssues {
		text := issue.Title + " " + issue.Description
		var missed []error
		if containsAny(text, testKeywords) && !tasksContainAny(followUpTasks, testKeywords) {
			missed = append(missed, ErrQAIgnoredTestFailure)
		}
		if (issue.Infra || containsAny(text, infraKeywords)) && !tasksContainAny(followUpTasks, infraKeywords) {
			missed = append(missed, ErrQAIgnoredInfraFailure)
		}
		if len(missed) > 0 {
			return errors.Join(missed...)
		}
	}
	return nil
}

func containsAny(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func tasksContainAny(tasks []decision.FollowUpTask, keywords []string) bool {
	for _, task := range tasks {
		if containsAny(task.Title+" "+task.Description, keywords) {
			return true
		}
	}
	return false
}

// CoordinationConfig parameterizes ReviewCoordinationStep's decision for one
// qa/code_review/security_review outcome.
type CoordinationConfig struct {
	ReviewType     string // qa | code_review | security_review
	IsFollowupTask bool   // whether this task is itself a followup of a prior review
	OverrideUrgent *bool  // nil keeps the default (always urgent)
}

func (c CoordinationConfig) urgent() bool {
	if c.ReviewType == "security_review" {
		return true
	}
	if c.OverrideUrgent != nil {
		return *c.OverrideUrgent
	}
	return true
}

// CoordinationDecision is ReviewCoordinationStep's verdict.
type CoordinationDecision struct {
	Action string // noop | new_tasks | iterate_plan
	Urgent bool
}

// Coordinate implements §4.J's review-failure coordination: a pass is a
// no-op; otherwise the default is to create new follow-up tasks, unless
// this task is itself a followup of a prior review, in which case the plan
// is iterated instead.
func Coordinate(cfg CoordinationConfig, status string) CoordinationDecision {
	if status == "pass" {
		return CoordinationDecision{Action: "noop"}
	}
	action := "new_tasks"
	if cfg.IsFollowupTask {
		action = "iterate_plan"
	}
	return CoordinationDecision{Action: action, Urgent: cfg.urgent()}
}

// PlanIterationConfig bounds the evaluator/planner-revises cycle.
type PlanIterationConfig struct {
	MaxPlanRevisions int // 0 defaults to 5
}

func (c PlanIterationConfig) maxRevisions() int {
	if c.MaxPlanRevisions <= 0 {
		return 5
	}
	return c.MaxPlanRevisions
}

// Evaluate checks whether the current plan revision is acceptable and, if
// not, returns feedback for the planner to act on.
type Evaluate func(ctx context.Context, cycle int) (approved bool, feedback map[string]any, err error)

// Revise asks the planner to act on the evaluator's feedback for the next
// cycle.
type Revise func(ctx context.Context, cycle int, feedback map[string]any) error

// IteratePlan runs up to cfg.maxRevisions() cycles of evaluate -> revise,
// stopping as soon as evaluate reports approval.
func IteratePlan(ctx context.Context, cfg PlanIterationConfig, evaluate Evaluate, revise Revise) (cycles int, approved bool, err error) {
	max := cfg.maxRevisions()
	for cycle := 1; cycle <= max; cycle++ {
		ok, feedback, err := evaluate(ctx, cycle)
		if err != nil {
			return cycle, false, err
		}
		if ok {
			return cycle, true, nil
		}
		if cycle == max {
			return cycle, false, nil
		}
		if err := revise(ctx, cycle, feedback); err != nil {
			return cycle, false, err
		}
	}
	return max, false, nil
}
