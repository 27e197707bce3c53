// Package decision parses and normalizes a PM's review decision from
// whatever shape the persona returned it in: a bare string, a JSON object,
// or one of several wrapper envelopes layered around either.
package decision

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// FollowUpTask is one normalized follow-up task extracted from a decision.
type FollowUpTask struct {
	Title           string `json:"title"`
	Description     string `json:"description"`
	Priority        string `json:"priority"` // normalized: critical|high|medium|low
	PriorityScore   int    `json:"priority_score"`
	MilestoneID     string `json:"milestone_id"`
	AssigneePersona string `json:"assignee_persona"`
}

// PMDecision is the canonical, normalized form of a PM review decision.
type PMDecision struct {
	Decision        string         `json:"decision"` // "immediate_fix" | "defer"
	FollowUpTasks   []FollowUpTask `json:"follow_up_tasks"`
	ImmediateIssues []string       `json:"immediate_issues"`
	DeferredIssues  []string       `json:"deferred_issues"`
	Reasoning       string         `json:"reasoning"`
	ReviewType      string         `json:"review_type"`
	DetectedStage   string         `json:"detected_stage"`
	Warnings        []string       `json:"warnings"`
	Raw             string         `json:"raw"`
}

var wrapperKeys = []string{"pm_decision", "decision_object", "json", "output", "data", "result", "response"}
var rawSiblingKeys = []string{"raw", "text", "content", "message"}

var (
	fencedJSONPattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\{.*?\\})\\s*```")
	braceJSONPattern  = regexp.MustCompile(`(?s)\{.*\}`)
	decisionRegex     = regexp.MustCompile(`(?i)"?decision"?\s*[:=]\s*"?([a-zA-Z_]+)"?`)
	reasoningRegex    = regexp.MustCompile(`(?i)"?reasoning"?\s*[:=]\s*"([^"]+)"`)
)

// Parse normalizes input (string, map[string]any, or a wrapped combination
// of the two) into a canonical PMDecision. backlogMilestoneID is the
// milestone used to route non-urgent follow-up tasks, and urgent tasks
// whose parent milestone cannot be resolved.
func Parse(input any, backlogMilestoneID string) PMDecision {
	obj, raw, warnings := normalize(input, 0)
	return build(obj, raw, warnings, backlogMilestoneID)
}

// normalize walks the tiered parse/unwrap ladder described in §4.I: string
// inputs are parsed as JSON (directly, from a fenced block, or via
// best-effort regex extraction); object inputs are unwrapped through known
// wrapper keys up to 4 levels deep, falling back to a re-entry into string
// parsing if an unwrap step yields a string.
func normalize(input any, depth int) (map[string]any, string, []string) {
	switch v := input.(type) {
	case string:
		if obj, ok := parseString(v); ok {
			nested, raw, warnings := normalize(obj, depth)
			if raw == "" {
				raw = v
			}
			return nested, raw, warnings
		}
		return nil, v, nil
	case map[string]any:
		raw := firstRawSibling(v)
		if depth >= 4 {
			return v, raw, nil
		}
		for _, key := range wrapperKeys {
			nested, ok := v[key]
			if !ok {
				continue
			}
			obj, nestedRaw, warnings := normalize(nested, depth+1)
			if nestedRaw == "" {
				nestedRaw = raw
			}
			warnings = append([]string{fmt.Sprintf("unwrapped decision from %q wrapper", key)}, warnings...)
			return obj, nestedRaw, warnings
		}
		return v, raw, nil
	default:
		return nil, "", nil
	}
}

func firstRawSibling(obj map[string]any) string {
	for _, key := range rawSiblingKeys {
		if s, ok := obj[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// parseString attempts, in order: a full JSON object parse, extraction of
// the first fenced ```json``` block, extraction of the first brace-delimited
// span, and finally a best-effort regex scrape of decision/reasoning
// fields from free text.
func parseString(s string) (map[string]any, bool) {
	trimmed := strings.TrimSpace(s)

	var obj map[string]any
	if json.Unmarshal([]byte(trimmed), &obj) == nil {
		return obj, true
	}

	if m := fencedJSONPattern.FindStringSubmatch(trimmed); len(m) > 1 {
		if json.Unmarshal([]byte(m[1]), &obj) == nil {
			return obj, true
		}
	}

	if block := braceJSONPattern.FindString(trimmed); block != "" {
		if json.Unmarshal([]byte(block), &obj) == nil {
			return obj, true
		}
	}

	scraped := map[string]any{}
	if m := decisionRegex.FindStringSubmatch(trimmed); len(m) > 1 {
		scraped["decision"] = m[1]
	}
	if m := reasoningRegex.FindStringSubmatch(trimmed); len(m) > 1 {
		scraped["reasoning"] = m[1]
	}
	if len(scraped) > 0 {
		return scraped, true
	}
	return nil, false
}

func build(obj map[string]any, raw string, unwrapWarnings []string, backlogMilestoneID string) PMDecision {
	warnings := append([]string{}, unwrapWarnings...)

	rawTasks, taskWarnings := resolveFollowUpTasks(obj)
	warnings = append(warnings, taskWarnings...)

	reviewType := stringField(obj, "review_type")
	reasoning := stringField(obj, "reasoning")

	decisionField, decisionWarning := resolveDecisionField(obj, rawTasks)
	if decisionWarning != "" {
		warnings = append(warnings, decisionWarning)
	}

	detectedStage := stringField(obj, "detected_stage")
	if reviewType == "security_review" && detectedStage == "" {
		detectedStage = inferStage(reasoning)
	}

	tasks := make([]FollowUpTask, 0, len(rawTasks))
	for _, raw := range rawTasks {
		tasks = append(tasks, normalizeTask(raw, reviewType, backlogMilestoneID, &warnings))
	}

	return PMDecision{
		Decision:        decisionField,
		FollowUpTasks:   tasks,
		ImmediateIssues: stringSlice(obj["immediate_issues"]),
		DeferredIssues:  stringSlice(obj["deferred_issues"]),
		Reasoning:       reasoning,
		ReviewType:      reviewType,
		DetectedStage:   detectedStage,
		Warnings:        warnings,
		Raw:             raw,
	}
}

var followUpKeys = []string{"follow_up_tasks", "followUpTasks", "followupTasks", "followUp", "follow_up", "tasks"}

// resolveFollowUpTasks implements §4.I tier 3/4: the follow-up field
// resolution order, the milestone_updates promotion fallback, and the
// deprecated backlog[] merge.
func resolveFollowUpTasks(obj map[string]any) ([]map[string]any, []string) {
	var warnings []string
	var tasks []map[string]any

	for _, key := range followUpKeys {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		if parsed, ok := toTaskList(raw); ok && len(parsed) > 0 {
			tasks = parsed
			break
		}
	}

	if len(tasks) == 0 {
		if raw, ok := obj["milestone_updates"]; ok {
			if parsed, ok := toTaskList(raw); ok && len(parsed) > 0 {
				tasks = parsed
				warnings = append(warnings, "promoted milestone_updates to follow-up tasks")
			}
		}
	}

	if raw, ok := obj["backlog"]; ok {
		if backlogTasks, ok := toTaskList(raw); ok && len(backlogTasks) > 0 {
			warnings = append(warnings, `PM used deprecated "backlog" field`)
			if len(tasks) > 0 {
				warnings = append(warnings, `PM returned both "backlog" and "follow_up_tasks"`)
			}
			tasks = append(tasks, backlogTasks...)
		}
	}

	return tasks, warnings
}

func toTaskList(raw any) ([]map[string]any, bool) {
	switch v := raw.(type) {
	case []any:
		return toMapSlice(v), true
	case string:
		var arr []any
		if json.Unmarshal([]byte(v), &arr) == nil {
			return toMapSlice(arr), true
		}
	}
	return nil, false
}

func toMapSlice(items []any) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case map[string]any:
			out = append(out, v)
		case string:
			out = append(out, map[string]any{"title": v})
		}
	}
	return out
}

// resolveDecisionField implements §4.I tier 5's preference order, then
// the immediate_fix/no-tasks downgrade from the normalization rules.
func resolveDecisionField(obj map[string]any, tasks []map[string]any) (string, string) {
	decision := "immediate_fix"
	if status, ok := obj["status"].(string); ok && strings.Contains(strings.ToLower(status), "immediate_fix") {
		decision = "immediate_fix"
	} else if b, ok := obj["immediate_fix"].(bool); ok {
		if b {
			decision = "immediate_fix"
		} else {
			decision = "defer"
		}
	} else if d, ok := obj["decision"].(string); ok && d == "defer" {
		decision = "defer"
	}

	if decision == "immediate_fix" && len(tasks) == 0 {
		return "defer", "PM set immediate_fix=true but provided no tasks"
	}
	return decision, ""
}

func normalizeTask(raw map[string]any, reviewType, backlogMilestoneID string, warnings *[]string) FollowUpTask {
	title := stringField(raw, "title")
	priority := normalizePriority(stringField(raw, "priority"))
	urgent := priority == "critical" || priority == "high"

	score := 50
	if urgent {
		score = 1000
		if reviewType == "qa" || strings.Contains(strings.ToLower(title), "[qa]") {
			score = 1200
		}
	}

	milestoneID := backlogMilestoneID
	if urgent {
		parent := stringField(raw, "parent_task_milestone_id")
		if parent == "" {
			parent = stringField(raw, "milestone_id")
		}
		if parent != "" {
			milestoneID = parent
		} else {
			*warnings = append(*warnings, "Parent milestone not found")
		}
	}

	return FollowUpTask{
		Title:           title,
		Description:     stringField(raw, "description"),
		Priority:        priority,
		PriorityScore:   score,
		MilestoneID:     milestoneID,
		AssigneePersona: "implementation-planner",
	}
}

// normalizePriority maps a free-text priority to the canonical set via
// case-insensitive substring match, defaulting to medium.
func normalizePriority(raw string) string {
	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "critical"), strings.Contains(lower, "severe"):
		return "critical"
	case strings.Contains(lower, "high"), strings.Contains(lower, "urgent"):
		return "high"
	case strings.Contains(lower, "low"), strings.Contains(lower, "minor"):
		return "low"
	default:
		return "medium"
	}
}

// inferStage guesses a deployment stage from free-text reasoning when a
// security review didn't specify detected_stage explicitly.
func inferStage(reasoning string) string {
	lower := strings.ToLower(reasoning)
	switch {
	case strings.Contains(lower, "production"), strings.Contains(lower, "prod"):
		return "production"
	case strings.Contains(lower, "beta"):
		return "beta"
	case strings.Contains(lower, "early"), strings.Contains(lower, "prototype"), strings.Contains(lower, "mvp"):
		return "early"
	default:
		return ""
	}
}

func stringField(obj map[string]any, key string) string {
	if obj == nil {
		return ""
	}
	if s, ok := obj[key].(string); ok {
		return s
	}
	return ""
}

func stringSlice(raw any) []string {
	switch v := raw.(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		var arr []any
		if json.Unmarshal([]byte(v), &arr) == nil {
			return stringSlice(arr)
		}
		if v != "" {
			return []string{v}
		}
	}
	return nil
}
