package source

import (
	"os"
	"path/filepath"
	"strings"
)

// ScanDir walks the data directory and discovers all JSONL session logs.
// Layout: <dataDir>/sessions/<project>/<session-id>.jsonl; logs placed
// directly under sessions/ fall into the "default" project.
func ScanDir(dataDir string) ([]DiscoveredFile, error) {
	sessionsDir := filepath.Join(dataDir, "sessions")

	info, err := os.Stat(sessionsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, nil
	}

	var files []DiscoveredFile

	err = filepath.WalkDir(sessionsDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // intentionally skip unreadable entries
		}
		if d.IsDir() {
			return nil
		}
		if filepath.Ext(path) != ".jsonl" {
			return nil
		}

		rel, _ := filepath.Rel(sessionsDir, path)
		parts := strings.Split(rel, string(filepath.Separator))

		project := "default"
		if len(parts) >= 2 {
			project = parts[0]
		}

		files = append(files, DiscoveredFile{
			Path:      path,
			Project:   project,
			SessionID: strings.TrimSuffix(d.Name(), ".jsonl"),
		})
		return nil
	})

	return files, err
}

// CountProjects returns the number of unique projects in a set of discovered
// files.
func CountProjects(files []DiscoveredFile) int {
	seen := make(map[string]struct{})
	for _, f := range files {
		seen[f.Project] = struct{}{}
	}
	return len(seen)
}
