package repomutator

import (
	"os"
	"path/filepath"
	"strings"
)

// DefaultMaxBytes is the default per-write size ceiling (512 KiB).
const DefaultMaxBytes = 512 * 1024

// Policy holds the configured gates evaluated before any mutation.
type Policy struct {
	// AllowWorkspaceGit permits mutating repoRoot when it equals the
	// process's own working directory.
	AllowWorkspaceGit bool
	// BlockedPaths is a set of repo-relative paths (or path prefixes) that
	// can never be mutated, regardless of repo.
	BlockedPaths []string
	// DeniedExtensions is a deny-list of file extensions (including the
	// leading dot, e.g. ".env").
	DeniedExtensions []string
	// MaxBytes bounds written content size; zero means DefaultMaxBytes.
	MaxBytes int
}

func (p Policy) maxBytes() int {
	if p.MaxBytes <= 0 {
		return DefaultMaxBytes
	}
	return p.MaxBytes
}

// checkWorkspaceSafety fails if repoRoot is the process's own working
// directory and workspace git operations have not been explicitly allowed.
func (p Policy) checkWorkspaceSafety(repoRoot string) error {
	if p.AllowWorkspaceGit {
		return nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil
	}
	absRoot, err := filepath.Abs(repoRoot)
	if err != nil {
		return nil
	}
	if absRoot == wd {
		return ErrWorkspaceBlocked
	}
	return nil
}

// checkBlockedPaths fails if relPath matches any globally blocked prefix.
func (p Policy) checkBlockedPaths(relPath string) error {
	cleanRel := filepath.ToSlash(filepath.Clean(relPath))
	for _, blocked := range p.BlockedPaths {
		blocked = filepath.ToSlash(filepath.Clean(blocked))
		if cleanRel == blocked || strings.HasPrefix(cleanRel, blocked+"/") {
			return ErrPathBlocked
		}
	}
	return nil
}

// checkExtension fails if relPath's extension is on the merged deny-list.
// callOverride, when non-nil, is merged in addition to the policy's
// configured deny-list (deny-list only per spec, never an allow-list).
func (p Policy) checkExtension(relPath string, callOverride []string) error {
	ext := strings.ToLower(filepath.Ext(relPath))
	if ext == "" {
		return nil
	}
	for _, denied := range p.DeniedExtensions {
		if strings.ToLower(denied) == ext {
			return ErrExtensionDenied
		}
	}
	for _, denied := range callOverride {
		if strings.ToLower(denied) == ext {
			return ErrExtensionDenied
		}
	}
	return nil
}

// resolvePath resolves relPath against repoRoot and fails ErrPathEscape if
// the resolved absolute path is not contained within repoRoot.
func resolvePath(repoRoot, relPath string) (string, error) {
	absRoot, err := filepath.Abs(repoRoot)
	if err != nil {
		return "", err
	}
	joined := filepath.Join(absRoot, relPath)
	absPath, err := filepath.Abs(joined)
	if err != nil {
		return "", err
	}
	if absPath != absRoot && !strings.HasPrefix(absPath, absRoot+string(filepath.Separator)) {
		return "", ErrPathEscape
	}
	return absPath, nil
}

// checkSizeLimit fails if content exceeds the policy's configured maxBytes.
func (p Policy) checkSizeLimit(content string) error {
	if len(content) > p.maxBytes() {
		return ErrSizeLimit
	}
	return nil
}

// evaluateGates runs all five policy gates, in order, for a single op
// against relPath with the given content (used only for the size check).
func (p Policy) evaluateGates(repoRoot, relPath string, content string, callExtOverride []string) (string, error) {
	if err := p.checkWorkspaceSafety(repoRoot); err != nil {
		return "", err
	}
	if err := p.checkBlockedPaths(relPath); err != nil {
		return "", err
	}
	if err := p.checkExtension(relPath, callExtOverride); err != nil {
		return "", err
	}
	absPath, err := resolvePath(repoRoot, relPath)
	if err != nil {
		return "", err
	}
	if err := p.checkSizeLimit(content); err != nil {
		return "", err
	}
	return absPath, nil
}
