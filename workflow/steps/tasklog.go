package steps

import (
	"os"
	"path/filepath"
	"sort"
)

// pruneTaskLogs keeps the keep newest files (by mtime) in dir and removes
// the rest. Used by TaskUpdateStep on terminal task statuses to bound the
// planning/qa log directories.
func pruneTaskLogs(dir string, keep int) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	type fileInfo struct {
		name    string
		modTime int64
	}
	files := make([]fileInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo{name: e.Name(), modTime: info.ModTime().UnixNano()})
	}
	if len(files) <= keep {
		return nil
	}

	sort.Slice(files, func(i, j int) bool { return files[i].modTime > files[j].modTime })
	for _, f := range files[keep:] {
		if err := os.Remove(filepath.Join(dir, f.name)); err != nil {
			return err
		}
	}
	return nil
}
