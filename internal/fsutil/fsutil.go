package fsutil

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var exposureExts = map[string]struct{}{
	".fit":  {},
	".fits": {},
	".fts":  {},
}

// junkMarkers are OS droppings that should not keep a directory alive.
var junkMarkers = map[string]struct{}{
	".DS_Store":   {},
	"Thumbs.db":   {},
	"desktop.ini": {},
}

// IsExposureFile reports whether a path has an exposure-file extension.
func IsExposureFile(path string) bool {
	_, ok := exposureExts[strings.ToLower(filepath.Ext(path))]
	return ok
}

// IsJunkMarker reports whether a file name is an ignorable OS marker file.
func IsJunkMarker(name string) bool {
	_, ok := junkMarkers[name]
	return ok
}

// ListExposures returns all exposure files under root, sorted for
// deterministic processing order.
func ListExposures(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if IsExposureFile(d.Name()) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// MoveFile renames src to dst, creating parent directories. When the rename
// fails because dst is on a different volume it falls back to copy-then-delete.
func MoveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) {
		return err
	}
	if copyErr := copyFile(src, dst); copyErr != nil {
		os.Remove(dst)
		return copyErr
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// PruneEmptyDirs removes empty subdirectories of root bottom-up, treating
// directories holding only junk marker files as empty. The sweep repeats
// until a pass removes nothing, so emptying a child can empty its parent.
// The root itself is never removed. Individual removal failures are
// reported through onErr (may be nil) and do not stop the sweep.
func PruneEmptyDirs(root string, onErr func(path string, err error)) int {
	removed := 0
	for {
		n := pruneOnce(root, onErr)
		removed += n
		if n == 0 {
			return removed
		}
	}
}

func pruneOnce(root string, onErr func(string, error)) int {
	var dirs []string
	filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && path != root {
			dirs = append(dirs, path)
		}
		return nil
	})
	// Deepest first.
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })

	removed := 0
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		onlyJunk := true
		for _, e := range entries {
			if e.IsDir() || !IsJunkMarker(e.Name()) {
				onlyJunk = false
				break
			}
		}
		if !onlyJunk {
			continue
		}
		for _, e := range entries {
			junk := filepath.Join(dir, e.Name())
			if err := removeWithRetry(junk); err != nil && onErr != nil {
				onErr(junk, err)
			}
		}
		if err := removeWithRetry(dir); err != nil {
			if onErr != nil {
				onErr(dir, err)
			}
			continue
		}
		removed++
	}
	return removed
}

// removeWithRetry retries a permission-denied delete once after forcing
// the path writable. Cloud-sync clients tend to leave read-only markers.
func removeWithRetry(path string) error {
	err := os.Remove(path)
	if err == nil || !errors.Is(err, os.ErrPermission) {
		return err
	}
	os.Chmod(path, 0o700)
	return os.Remove(path)
}
