package steps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/c360studio/maestro/repomutator"
	"github.com/c360studio/maestro/workflow"
)

// ErrNoOpsParsed, ErrNoFilesChanged, and ErrNoCommitSHA are DiffApplyStep's
// three distinct failure modes named in spec.md §4.G.
var (
	ErrNoOpsParsed    = errors.New("diff_apply: no ops parsed from source step output")
	ErrNoFilesChanged = errors.New("diff_apply: ops applied but no files changed")
	ErrNoCommitSHA    = errors.New("diff_apply: files changed but no commit SHA")
)

// diffApplyParams is DiffApplyStep's Params shape. AllowedExtensions is
// declared only so ValidateConfig can detect and reject the deprecated key;
// extension policy now lives solely on the Mutator's configured Policy.
type diffApplyParams struct {
	SourceStep        string   `json:"source_step"`
	SourcePath        string   `json:"source_path"`
	CommitMessage     string   `json:"commit_message"`
	Branch            string   `json:"branch"`
	AllowedExtensions []string `json:"allowed_extensions"`
}

// DiffApplyStep parses its source step's output into a repomutator.EditSpec
// and applies it, committing and pushing the changed files.
type DiffApplyStep struct {
	Mutator *repomutator.Mutator
	Git     *repomutator.GitRunner
}

func (s *DiffApplyStep) ValidateConfig(cfg workflow.StepConfig) error {
	var p diffApplyParams
	if err := decodeParams(cfg.Params, &p); err != nil {
		return fmt.Errorf("diff_apply: invalid params: %w", err)
	}
	if p.SourceStep == "" {
		return fmt.Errorf("diff_apply: source_step is required")
	}
	if len(p.AllowedExtensions) > 0 {
		return fmt.Errorf("diff_apply: allowed_extensions is deprecated; configure denied extensions on the repo mutator's policy instead")
	}
	return nil
}

func (s *DiffApplyStep) Execute(ctx context.Context, wctx *workflow.Context, cfg workflow.StepConfig) (workflow.StepResult, error) {
	var p diffApplyParams
	if err := decodeParams(cfg.Params, &p); err != nil {
		return workflow.StepResult{}, fmt.Errorf("diff_apply: invalid params: %w", err)
	}

	raw, ok := wctx.GetStepOutput(p.SourceStep, p.SourcePath)
	if !ok {
		return workflow.StepResult{}, ErrNoOpsParsed
	}

	spec, err := parseEditSpec(raw)
	if err != nil {
		return workflow.StepResult{}, fmt.Errorf("diff_apply: %w", err)
	}
	if len(spec.Ops) == 0 {
		return workflow.StepResult{}, ErrNoOpsParsed
	}

	applyResult, err := s.Mutator.Apply(spec, nil)
	if err != nil {
		return workflow.StepResult{}, fmt.Errorf("diff_apply: %w", err)
	}
	if len(applyResult.Changed) == 0 {
		return workflow.StepResult{}, ErrNoFilesChanged
	}

	branch := p.Branch
	if branch == "" {
		branch = wctx.GetCurrentBranch()
	}
	message := p.CommitMessage
	if message == "" {
		message = fmt.Sprintf("maestro: apply %s", cfg.Name)
	}

	commit, err := s.Git.CommitAndPush(ctx, applyResult.Changed, message, branch, nil)
	if err != nil {
		return workflow.StepResult{}, fmt.Errorf("diff_apply: %w", err)
	}
	if commit.SHA == "" {
		return workflow.StepResult{}, ErrNoCommitSHA
	}

	return workflow.StepResult{Outputs: map[string]any{
		"changed_files": applyResult.Changed,
		"commit_sha":    commit.SHA,
		"pushed":        commit.Pushed,
		"noop":          commit.Noop,
	}}, nil
}

// parseEditSpec accepts a source step output shaped as a JSON string, a
// decoded ops array, or a {"ops": [...]} map, and normalizes it into an
// EditSpec via the same json round-trip the rest of this package uses to
// decode step Params.
func parseEditSpec(raw any) (repomutator.EditSpec, error) {
	switch v := raw.(type) {
	case string:
		var spec repomutator.EditSpec
		if err := json.Unmarshal([]byte(v), &spec); err != nil {
			return repomutator.EditSpec{}, fmt.Errorf("parse edit spec: %w", err)
		}
		return spec, nil
	case []any:
		data, err := json.Marshal(map[string]any{"ops": v})
		if err != nil {
			return repomutator.EditSpec{}, err
		}
		var spec repomutator.EditSpec
		if err := json.Unmarshal(data, &spec); err != nil {
			return repomutator.EditSpec{}, fmt.Errorf("parse edit spec: %w", err)
		}
		return spec, nil
	case map[string]any:
		data, err := json.Marshal(v)
		if err != nil {
			return repomutator.EditSpec{}, err
		}
		var spec repomutator.EditSpec
		if err := json.Unmarshal(data, &spec); err != nil {
			return repomutator.EditSpec{}, fmt.Errorf("parse edit spec: %w", err)
		}
		return spec, nil
	default:
		return repomutator.EditSpec{}, nil
	}
}
