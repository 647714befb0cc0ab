// Package startup contains one-time and scheduled housekeeping tasks.
package startup

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// CleanStaging removes entries in the staging directory older than maxAge.
// A maxAge of zero removes everything, which is what boot does: anything in
// staging at startup is an orphan from a previous process. Returns the
// number of entries removed.
func CleanStaging(logger *slog.Logger, stagingDir string, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(stagingDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0

	for _, entry := range entries {
		path := filepath.Join(stagingDir, entry.Name())

		if maxAge > 0 {
			info, err := entry.Info()
			if err != nil {
				continue
			}
			if info.ModTime().After(cutoff) {
				continue
			}
		}

		if err := os.RemoveAll(path); err != nil {
			logger.Warn("removing staging entry failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
			continue
		}
		removed++
	}

	if removed > 0 {
		logger.Info("cleaned staging directory",
			slog.String("dir", stagingDir),
			slog.Int("removed", removed))
	}
	return removed, nil
}
