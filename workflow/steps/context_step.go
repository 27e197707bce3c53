package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/c360studio/maestro/workflow"
)

// Scanner performs the actual repository scan (file walk, symbol
// extraction, whatever the deployment wires in); out of scope here, same as
// §4.E treats persona business logic as out of scope for the pool.
type Scanner interface {
	Scan(ctx context.Context, repoRoot string) (map[string]any, error)
}

// contextStepParams is ContextStep's Params shape.
type contextStepParams struct {
	ForceRescan bool `json:"force_rescan"`
}

// ContextStep performs or reuses a repository context scan. Reuse is keyed
// on the snapshot's mtime, not its content, since a stale-but-parseable
// snapshot is still a correctness risk the step must not paper over.
type ContextStep struct {
	Scanner    Scanner
	SnapshotRel string // default ".ma/context/snapshot.json"
	MaxAge     time.Duration
}

func (s *ContextStep) snapshotRel() string {
	if s.SnapshotRel == "" {
		return ".ma/context/snapshot.json"
	}
	return s.SnapshotRel
}

func (s *ContextStep) maxAge() time.Duration {
	if s.MaxAge <= 0 {
		return 15 * time.Minute
	}
	return s.MaxAge
}

func (s *ContextStep) ValidateConfig(cfg workflow.StepConfig) error {
	var p contextStepParams
	return decodeParams(cfg.Params, &p)
}

func (s *ContextStep) Execute(ctx context.Context, wctx *workflow.Context, cfg workflow.StepConfig) (workflow.StepResult, error) {
	var p contextStepParams
	if err := decodeParams(cfg.Params, &p); err != nil {
		return workflow.StepResult{}, fmt.Errorf("context: invalid params: %w", err)
	}

	repoRoot, _ := wctx.GetVariable("repo_root")
	root := fmt.Sprint(repoRoot)
	snapshotPath := filepath.Join(root, s.snapshotRel())

	if !p.ForceRescan {
		if snapshot, ok := s.reuseSnapshot(snapshotPath); ok {
			snapshot["reused_existing"] = true
			return workflow.StepResult{Outputs: snapshot}, nil
		}
	}

	snapshot, err := s.Scanner.Scan(ctx, root)
	if err != nil {
		return workflow.StepResult{}, fmt.Errorf("context: scan: %w", err)
	}
	if err := s.writeSnapshot(snapshotPath, snapshot); err != nil {
		return workflow.StepResult{}, fmt.Errorf("context: write snapshot: %w", err)
	}

	outputs := make(map[string]any, len(snapshot)+1)
	for k, v := range snapshot {
		outputs[k] = v
	}
	outputs["reused_existing"] = false
	return workflow.StepResult{Outputs: outputs}, nil
}

func (s *ContextStep) reuseSnapshot(path string) (map[string]any, bool) {
	info, err := os.Stat(path)
	if err != nil || time.Since(info.ModTime()) > s.maxAge() {
		return nil, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var snapshot map[string]any
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, false
	}
	return snapshot, true
}

func (s *ContextStep) writeSnapshot(path string, snapshot map[string]any) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
