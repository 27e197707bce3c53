package repomutator

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// nothingToCommitNeedles are substrings git prints (in various locales and
// code paths) when a commit would be empty.
var nothingToCommitNeedles = []string{
	"nothing to commit",
	"nothing added to commit",
	"no changes added to commit",
}

// CommitResult is the outcome of CommitAndPush.
type CommitResult struct {
	Noop    bool
	SHA     string
	Pushed  bool
	Message string
}

// GitRunner executes git operations in a working tree, grounded on the
// teacher's tools/git executor's runGit pattern.
type GitRunner struct {
	repoRoot string
	logger   *slog.Logger
}

// NewGitRunner constructs a GitRunner rooted at repoRoot.
func NewGitRunner(repoRoot string, logger *slog.Logger) *GitRunner {
	return &GitRunner{repoRoot: repoRoot, logger: logger}
}

func (g *GitRunner) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.repoRoot
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("%w: %s", err, string(out))
	}
	return string(out), nil
}

func containsNeedle(s string) bool {
	lower := strings.ToLower(s)
	for _, needle := range nothingToCommitNeedles {
		if strings.Contains(lower, needle) {
			return true
		}
	}
	return false
}

// CommitAndPush implements the spec's commit/push cascade: targeted
// add+commit of exactly the changed paths, escalating to `add --force` then
// `add -A` on failure, with push attempted last and never retried.
func (g *GitRunner) CommitAndPush(ctx context.Context, changedPaths []string, message, branch string, diagWriter func(stage string, err error)) (CommitResult, error) {
	if len(changedPaths) == 0 {
		sha, _ := g.headSHA(ctx)
		return CommitResult{Noop: true, SHA: sha}, nil
	}

	sha, err := g.commitCascade(ctx, changedPaths, message, diagWriter)
	if err != nil {
		return CommitResult{}, err
	}
	if sha == "" {
		headSHA, _ := g.headSHA(ctx)
		return CommitResult{Noop: true, SHA: headSHA}, nil
	}

	hasRemote, err := g.hasRemote(ctx)
	if err != nil {
		return CommitResult{}, err
	}
	if !hasRemote {
		if diagWriter != nil {
			diagWriter("push", fmt.Errorf("no remote configured"))
		}
		return CommitResult{SHA: sha, Pushed: false}, nil
	}

	if _, err := g.run(ctx, "push", "origin", branch, "--force"); err != nil {
		return CommitResult{}, fmt.Errorf("push failed: %w", err)
	}
	return CommitResult{SHA: sha, Pushed: true}, nil
}

// commitCascade runs the 3-tier add/commit fallback. Returns "" if the
// result was a no-op commit (nothing staged).
func (g *GitRunner) commitCascade(ctx context.Context, changedPaths []string, message string, diagWriter func(stage string, err error)) (string, error) {
	addArgs := append([]string{"add", "--"}, changedPaths...)
	if _, err := g.run(ctx, addArgs...); err == nil {
		if sha, noop, cerr := g.commit(ctx, changedPaths, message); cerr == nil {
			if noop {
				return "", nil
			}
			return sha, nil
		}
	}

	forceArgs := append([]string{"add", "--force", "--"}, changedPaths...)
	if _, err := g.run(ctx, forceArgs...); err == nil {
		if sha, noop, cerr := g.commit(ctx, changedPaths, message); cerr == nil {
			if noop {
				return "", nil
			}
			return sha, nil
		}
	}

	if _, err := g.run(ctx, "add", "-A"); err == nil {
		sha, noop, cerr := g.commit(ctx, changedPaths, message)
		if cerr == nil {
			if noop {
				return "", nil
			}
			return sha, nil
		}
		if diagWriter != nil {
			diagWriter("commit", cerr)
		}
		g.run(ctx, "reset", "--hard")
		return "", fmt.Errorf("commit failed after full fallback cascade: %w", cerr)
	}

	return "", fmt.Errorf("add -A failed")
}

func (g *GitRunner) commit(ctx context.Context, changedPaths []string, message string) (sha string, noop bool, err error) {
	args := append([]string{"commit", "--no-verify", "-m", message, "--"}, changedPaths...)
	out, cerr := g.run(ctx, args...)
	if cerr != nil {
		if containsNeedle(out) || containsNeedle(cerr.Error()) {
			return "", true, nil
		}
		return "", false, cerr
	}
	sha, err = g.headSHA(ctx)
	return sha, false, err
}

func (g *GitRunner) headSHA(ctx context.Context) (string, error) {
	out, err := g.run(ctx, "rev-parse", "HEAD")
	return strings.TrimSpace(out), err
}

func (g *GitRunner) hasRemote(ctx context.Context) (bool, error) {
	out, err := g.run(ctx, "remote")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

// EnsureRepo pulls branch, recovering from a non-fast-forward rejection by
// fetching and hard-resetting to the remote branch — but only when the
// working tree is clean, to avoid discarding local edits.
func (g *GitRunner) EnsureRepo(ctx context.Context, branch string) error {
	_, pullErr := g.run(ctx, "pull", "origin", branch)
	if pullErr == nil {
		return nil
	}

	status, statusErr := g.run(ctx, "status", "--porcelain")
	if statusErr != nil {
		return pullErr
	}
	if strings.TrimSpace(status) != "" {
		return pullErr
	}

	if _, err := g.run(ctx, "fetch", "origin", branch); err != nil {
		return fmt.Errorf("non-fast-forward recovery fetch failed: %w", err)
	}
	if _, err := g.run(ctx, "reset", "--hard", "origin/"+branch); err != nil {
		return fmt.Errorf("non-fast-forward recovery reset failed: %w", err)
	}
	return nil
}
