package steps

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

// skippedDirs mirrors the teacher's DetectLanguages skip-list: directories
// whose contents are never source the context snapshot should cover.
var skippedDirs = map[string]bool{
	"node_modules": true, "vendor": true, "dist": true, "build": true,
	"__pycache__": true, "target": true, ".git": true,
}

// DefaultScanner is a minimal Scanner: a file inventory (path, size) with
// no symbol extraction or language-aware parsing. Real deployments wire in
// their own Scanner for code-understanding; this default only keeps
// ContextStep runnable out of the box.
type DefaultScanner struct{}

func (DefaultScanner) Scan(ctx context.Context, repoRoot string) (map[string]any, error) {
	var files []map[string]any

	err := filepath.Walk(repoRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if info.IsDir() {
			base := filepath.Base(path)
			if strings.HasPrefix(base, ".") || skippedDirs[base] {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(repoRoot, path)
		if err != nil {
			rel = path
		}
		files = append(files, map[string]any{"path": rel, "size": info.Size()})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return map[string]any{"files": files, "file_count": len(files)}, nil
}
