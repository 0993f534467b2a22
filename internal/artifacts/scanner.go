package artifacts

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/eHtmlu/peak-publisher/internal/analyzer"
	"github.com/eHtmlu/peak-publisher/internal/models"
)

// Scan walks fsys once and reports every entry whose base name matches.
// A matching directory is reported as a whole and not descended into.
// Scan only reads.
func Scan(fsys fs.FS, m *Matcher) (models.CleanupReport, error) {
	report := models.CleanupReport{}
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == "." || !m.Match(d.Name()) {
			return nil
		}

		size, count, err := analyzer.SizeAndCount(fsys, p)
		if err != nil {
			return err
		}
		entry := models.ArtifactEntry{Path: p, Kind: models.ArtifactFile, Bytes: size, Count: count}
		if d.IsDir() {
			entry.Kind = models.ArtifactDir
			report = append(report, entry)
			return fs.SkipDir
		}
		report = append(report, entry)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan for workspace artifacts: %w", err)
	}
	return report, nil
}

// Purge deletes exactly the entries named in report below root and
// returns a copy with Deleted set for each entry that is gone. A failed
// entry is logged and does not stop the others.
func Purge(root string, report models.CleanupReport, logger *zap.Logger) models.CleanupReport {
	out := make(models.CleanupReport, len(report))
	copy(out, report)

	for i := range out {
		target := filepath.Join(root, filepath.FromSlash(out[i].Path))
		var err error
		if out[i].Kind == models.ArtifactDir {
			err = os.RemoveAll(target)
		} else {
			err = os.Remove(target)
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("failed to remove workspace artifact",
				zap.String("path", out[i].Path), zap.Error(err))
			continue
		}
		out[i].Deleted = true
	}
	return out
}
