// Package repomutator applies policy-checked EditSpecs to a git working
// tree and optionally commits and pushes the result.
package repomutator

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileResult records the outcome of applying a single Op.
type FileResult struct {
	Path      string
	Action    OpAction
	Changed   bool
	Diagnostic string
}

// ApplyResult is the result of applying an EditSpec to a working tree,
// before any commit/push.
type ApplyResult struct {
	Files   []FileResult
	Changed []string
}

// Mutator applies EditSpecs under repoRoot, subject to Policy.
type Mutator struct {
	repoRoot          string
	policy            Policy
	diagnosticsDir    string
	diagnosticsEnable bool
	now               func() time.Time
	logger            *slog.Logger
}

// Option configures a Mutator.
type Option func(*Mutator)

// WithDiagnostics enables writing hunk-mismatch diagnostics under dir
// (conventionally "outputs/diagnostics").
func WithDiagnostics(dir string) Option {
	return func(m *Mutator) {
		m.diagnosticsDir = dir
		m.diagnosticsEnable = true
	}
}

// New constructs a Mutator rooted at repoRoot.
func New(repoRoot string, policy Policy, logger *slog.Logger, opts ...Option) *Mutator {
	m := &Mutator{
		repoRoot: repoRoot,
		policy:   policy,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Apply runs every op in spec against the working tree, in order. Extension
// gate overrides from callExtOverride apply to every op in this call.
func (m *Mutator) Apply(spec EditSpec, callExtOverride []string) (ApplyResult, error) {
	var result ApplyResult
	for _, op := range spec.Ops {
		fr, err := m.applyOp(op, callExtOverride)
		if err != nil {
			return result, fmt.Errorf("repomutator: op %s %s: %w", op.Action, op.Path, err)
		}
		result.Files = append(result.Files, fr)
		if fr.Changed {
			result.Changed = append(result.Changed, fr.Path)
		}
	}
	return result, nil
}

func (m *Mutator) applyOp(op Op, callExtOverride []string) (FileResult, error) {
	switch op.Action {
	case OpDelete:
		return m.applyDelete(op, callExtOverride)
	case OpUpsert:
		return m.applyUpsert(op, callExtOverride)
	default:
		return FileResult{}, fmt.Errorf("unknown op action %q", op.Action)
	}
}

func (m *Mutator) applyDelete(op Op, callExtOverride []string) (FileResult, error) {
	absPath, err := m.policy.evaluateGates(m.repoRoot, op.Path, "", callExtOverride)
	if err != nil {
		return FileResult{}, err
	}
	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		return FileResult{Path: op.Path, Action: OpDelete, Changed: false}, nil
	}
	if err := os.Remove(absPath); err != nil {
		return FileResult{}, err
	}
	return FileResult{Path: op.Path, Action: OpDelete, Changed: true}, nil
}

func (m *Mutator) applyUpsert(op Op, callExtOverride []string) (FileResult, error) {
	content, diagnostic, err := m.resolveUpsertContent(op)
	if err != nil {
		return FileResult{}, err
	}

	absPath, err := m.policy.evaluateGates(m.repoRoot, op.Path, content, callExtOverride)
	if err != nil {
		return FileResult{}, err
	}

	// An upsert whose content is already on disk still counts as applied:
	// the path belongs in ApplyResult.Changed so the caller's commit goes
	// ahead and lets GitRunner's own "nothing to commit" check (not this
	// layer) decide whether the op was actually a noop. Only the write
	// itself is skipped as an optimization.
	existing, readErr := os.ReadFile(absPath)
	if readErr == nil && string(existing) == content {
		return FileResult{Path: op.Path, Action: OpUpsert, Changed: true, Diagnostic: diagnostic}, nil
	}

	if err := m.atomicWrite(absPath, content); err != nil {
		return FileResult{}, err
	}
	return FileResult{Path: op.Path, Action: OpUpsert, Changed: true, Diagnostic: diagnostic}, nil
}

// resolveUpsertContent computes the final content for an upsert op: applying
// hunks when present, falling back to content on mismatch, and writing a
// diagnostic artifact when that fallback (or outright failure) occurs.
func (m *Mutator) resolveUpsertContent(op Op) (content string, diagnostic string, err error) {
	if len(op.Hunks) == 0 {
		if op.Content == nil {
			return "", "", fmt.Errorf("upsert %s: neither content nor hunks provided", op.Path)
		}
		return *op.Content, "", nil
	}

	absPath, resolveErr := resolvePath(m.repoRoot, op.Path)
	if resolveErr != nil {
		return "", "", resolveErr
	}
	raw, readErr := os.ReadFile(absPath)
	var lines []string
	if readErr == nil {
		lines = strings.Split(string(raw), "\n")
	}

	patched, applyErr := applyHunks(lines, op.Hunks)
	if applyErr == nil {
		return strings.Join(patched, "\n"), "", nil
	}

	diagPath := m.writeDiagnostic(op, applyErr)
	if op.Content != nil {
		m.logger.Warn("hunk mismatch, falling back to content", "path", op.Path, "diagnostic", diagPath)
		return *op.Content, diagPath, nil
	}
	return "", diagPath, fmt.Errorf("%w: %s", ErrHunkMismatch, op.Path)
}

func (m *Mutator) writeDiagnostic(op Op, cause error) string {
	if !m.diagnosticsEnable {
		return ""
	}
	safePath := strings.NewReplacer("/", "_", string(filepath.Separator), "_").Replace(op.Path)
	name := fmt.Sprintf("%s-%s.json", m.now().UTC().Format("2006-01-02T15-04-05.000Z"), safePath)
	full := filepath.Join(m.diagnosticsDir, name)

	payload := map[string]any{
		"path":  op.Path,
		"error": cause.Error(),
		"hunks": op.Hunks,
	}
	data, marshalErr := json.MarshalIndent(payload, "", "  ")
	if marshalErr != nil {
		return ""
	}
	if err := os.MkdirAll(m.diagnosticsDir, 0o755); err != nil {
		m.logger.Error("failed to create diagnostics directory", "error", err)
		return ""
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		m.logger.Error("failed to write diagnostic", "error", err)
		return ""
	}
	return full
}

// atomicWrite writes content to path.tmp then renames over path.
func (m *Mutator) atomicWrite(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
