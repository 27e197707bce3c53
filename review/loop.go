// Package review implements the analyst/reviewer iteration loop and the
// follow-up coordination rules applied to its verdict.
package review

import (
	"context"
	"fmt"
)

// PersonaResult is what an Invoker returns for one persona call.
type PersonaResult struct {
	Status string
	Output map[string]any
}

// Invoker sends one persona request and waits for its correlated
// completion, returning the interpreted result.
type Invoker func(ctx context.Context, persona, step, intent string, payload map[string]any) (PersonaResult, error)

// StatusInterpreter resolves a pass/fail/unknown verdict from a reviewer's
// raw result when no explicit status field is present. Pluggable because
// persona-specific status vocabularies vary.
type StatusInterpreter func(result PersonaResult) string

// DefaultStatusInterpreter covers the keyword set named in spec.md §6:
// pass|fail|unknown|ok|approved|failed.
func DefaultStatusInterpreter(result PersonaResult) string {
	if result.Status != "" {
		switch result.Status {
		case "pass", "ok", "approved":
			return "pass"
		case "fail", "failed":
			return "fail"
		}
	}
	if raw, ok := result.Output["raw"].(string); ok {
		switch raw {
		case "pass", "ok", "approved":
			return "pass"
		case "fail", "failed":
			return "fail"
		}
	}
	return "unknown"
}

// Entry records one completed iteration of the loop.
type Entry struct {
	Iteration int
	Analysis  map[string]any
	Review    map[string]any
	Status    string
}

// Config parameterizes one analyst/reviewer loop invocation.
type Config struct {
	AnalystPersona  string
	ReviewerPersona string
	MaxIterations   int // 0 defaults to 5
	AnalysisStep    string
	AnalysisIntent  string
	ReviewStep      string
	ReviewIntent    string
	AutoPassReason  string
	BasePayload     map[string]any
}

func (c Config) maxIterations() int {
	if c.MaxIterations <= 0 {
		return 5
	}
	return c.MaxIterations
}

// Result is the outcome of running the loop to a pass, fail, or auto-pass
// verdict.
type Result struct {
	FinalStatus  string // pass | fail
	AutoPass     bool
	Iterations   int
	LastAnalysis map[string]any
	LastReview   map[string]any
	History      []Entry
}

// Run implements §4.J's analysis↔review loop: invoke analyst, invoke
// reviewer, resolve status, and either terminate on pass, auto-pass at
// maxIterations, or loop with the prior review folded into the next
// analyst payload.
func Run(ctx context.Context, cfg Config, invokeAnalyst, invokeReviewer Invoker, interpret StatusInterpreter) (Result, error) {
	if interpret == nil {
		interpret = DefaultStatusInterpreter
	}

	var (
		history        []Entry
		previousReview map[string]any
		lastAnalysis   map[string]any
		lastReview     map[string]any
	)

	maxIter := cfg.maxIterations()
	for iteration := 1; iteration <= maxIter; iteration++ {
		payload := composeAnalysisPayload(cfg, iteration, previousReview, lastAnalysis, history)

		analysisResult, err := invokeAnalyst(ctx, cfg.AnalystPersona, cfg.AnalysisStep, cfg.AnalysisIntent, payload)
		if err != nil {
			return Result{}, fmt.Errorf("analyst invocation failed: %w", err)
		}
		lastAnalysis = analysisResult.Output

		reviewPayload := composeReviewPayload(cfg, lastAnalysis)
		reviewResult, err := invokeReviewer(ctx, cfg.ReviewerPersona, cfg.ReviewStep, cfg.ReviewIntent, reviewPayload)
		if err != nil {
			return Result{}, fmt.Errorf("reviewer invocation failed: %w", err)
		}
		lastReview = reviewResult.Output
		status := interpret(reviewResult)

		if status == "pass" {
			return Result{
				FinalStatus: "pass", AutoPass: false, Iterations: iteration,
				LastAnalysis: lastAnalysis, LastReview: lastReview, History: history,
			}, nil
		}

		history = append(history, Entry{Iteration: iteration, Analysis: lastAnalysis, Review: lastReview, Status: status})

		if iteration == maxIter {
			autoPassed := map[string]any{
				"status":            "pass",
				"auto_pass":         true,
				"reason":            cfg.AutoPassReason,
				"previous_feedback": lastReview,
			}
			return Result{
				FinalStatus: "pass", AutoPass: true, Iterations: iteration,
				LastAnalysis: lastAnalysis, LastReview: autoPassed, History: history,
			}, nil
		}

		previousReview = lastReview
	}

	// Unreachable: the loop always returns by maxIter, kept for safety.
	return Result{FinalStatus: "fail", Iterations: maxIter, LastAnalysis: lastAnalysis, LastReview: lastReview, History: history}, nil
}

func composeAnalysisPayload(cfg Config, iteration int, previousReview, previousAnalysis map[string]any, history []Entry) map[string]any {
	payload := map[string]any{}
	for k, v := range cfg.BasePayload {
		payload[k] = v
	}
	payload["iteration"] = iteration
	payload["is_revision"] = iteration > 1
	if iteration > 1 {
		payload["previous_review"] = normalizeFeedback(previousReview)
		payload["revision_directive"] = "address the reviewer feedback from the previous iteration before resubmitting"
	}
	if previousAnalysis != nil {
		payload["previous_analysis_output"] = previousAnalysis
	}
	if len(history) > 0 {
		payload["review_history"] = historyDigest(history)
	}
	return payload
}

func composeReviewPayload(cfg Config, analysis map[string]any) map[string]any {
	payload := map[string]any{}
	for k, v := range cfg.BasePayload {
		payload[k] = v
	}
	payload["analysis"] = analysis
	return payload
}

// normalizeFeedback extracts the fields the spec names from a prior
// review's raw output, tolerating whichever subset is present.
func normalizeFeedback(review map[string]any) map[string]any {
	if review == nil {
		return nil
	}
	out := map[string]any{}
	for _, key := range []string{"text", "summary", "required_revisions", "reason", "status"} {
		if v, ok := review[key]; ok {
			out[key] = v
		}
	}
	return out
}

// historyDigest summarizes prior iterations for inclusion in the next
// analyst payload, without repeating full analysis bodies.
func historyDigest(history []Entry) []map[string]any {
	digest := make([]map[string]any, 0, len(history))
	for _, entry := range history {
		digest = append(digest, map[string]any{
			"iteration": entry.Iteration,
			"status":    entry.Status,
			"feedback":  normalizeFeedback(entry.Review),
		})
	}
	return digest
}
