package store

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// PruneBackups removes fallback backups in dir whose modification time is
// before cutoff and returns the removed paths.
func PruneBackups(dir string, cutoff time.Time) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, e := range entries {
		if e.IsDir() || !strings.Contains(e.Name(), ".backup-") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		full := filepath.Join(dir, e.Name())
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			return removed, err
		}
		removed = append(removed, full)
	}
	return removed, nil
}
