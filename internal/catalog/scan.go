package catalog

import (
	"fmt"
	"log/slog"

	"nebulapilot/internal/fits"
	"nebulapilot/internal/fsutil"
)

// ScanTree walks a directory for exposure files and records every readable
// one in the catalog, auto-registering targets as they appear. Returns the
// number of frames recorded. Unreadable files are logged and skipped.
func ScanTree(root string, store *Store, log *slog.Logger) (int, error) {
	files, err := fsutil.ListExposures(root)
	if err != nil {
		return 0, fmt.Errorf("scan %s: %w", root, err)
	}

	recorded := 0
	for _, path := range files {
		if err := ScanFile(path, store, log); err != nil {
			log.Warn("skipping unreadable exposure", "path", path, "error", err)
			continue
		}
		recorded++
	}
	return recorded, nil
}

// ScanFile records a single exposure file in the catalog. Frames recorded
// by a plain scan have not been quality-checked yet and count as accepted
// until the organize pipeline says otherwise.
func ScanFile(path string, store *Store, log *slog.Logger) error {
	meta, err := fits.ReadMetadata(path)
	if err != nil {
		return err
	}
	target := fits.SanitizeTarget(meta.Target)
	if err := store.EnsureTarget(target); err != nil {
		return err
	}
	if err := store.UpsertFrame(Frame{
		Path:        path,
		Target:      target,
		Filter:      meta.Filter,
		ExposureSec: meta.ExposureSec,
		DateObs:     meta.DateObs,
		Decision:    "ACCEPT",
		Reason:      "scanned",
	}); err != nil {
		return err
	}
	log.Info("scanned exposure", "path", path, "target", target, "filter", meta.Filter)
	return nil
}
