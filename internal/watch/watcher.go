// Package watch monitors a capture tree and reports exposure files once
// the capture software has finished writing them.
package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"nebulapilot/internal/fsutil"
)

// Watcher monitors a directory tree for newly captured exposure files.
type Watcher struct {
	root    string
	settle  time.Duration
	onFile  func(path string)
	log     *slog.Logger
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]pendingFile
}

type pendingFile struct {
	size    int64
	lastMod time.Time
}

// New creates a watcher over root. onFile is invoked once per file after
// its size has been stable for the settle duration.
func New(root string, settle time.Duration, onFile func(path string), log *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if settle <= 0 {
		settle = 2 * time.Second
	}
	return &Watcher{
		root:    root,
		settle:  settle,
		onFile:  onFile,
		log:     log,
		watcher: fsw,
		pending: make(map[string]pendingFile),
	}, nil
}

// Run watches until the context is cancelled. New subdirectories are added
// to the watch set as the capture software creates them.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	if err := w.addRecursive(w.root); err != nil {
		return err
	}
	w.log.Info("watching capture tree", "root", w.root, "settle", w.settle)

	ticker := time.NewTicker(w.settle)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", "error", err)
		case <-ticker.C:
			w.flushSettled()
		}
	}
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.watcher.Add(path)
		}
		return nil
	})
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	switch {
	case event.Op.Has(fsnotify.Create):
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				w.log.Warn("cannot watch new directory", "path", event.Name, "error", err)
			}
			return
		}
	case event.Op.Has(fsnotify.Write):
	default:
		return
	}

	if !fsutil.IsExposureFile(event.Name) {
		return
	}
	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}
	w.mu.Lock()
	w.pending[event.Name] = pendingFile{size: info.Size(), lastMod: time.Now()}
	w.mu.Unlock()
}

// flushSettled fires the callback for files whose size has not changed
// since the last tick; still-growing files are rescheduled.
func (w *Watcher) flushSettled() {
	w.mu.Lock()
	var ready []string
	for path, p := range w.pending {
		if time.Since(p.lastMod) < w.settle {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			delete(w.pending, path)
			continue
		}
		if info.Size() != p.size {
			w.pending[path] = pendingFile{size: info.Size(), lastMod: time.Now()}
			continue
		}
		delete(w.pending, path)
		ready = append(ready, path)
	}
	w.mu.Unlock()

	for _, path := range ready {
		w.log.Debug("exposure settled", "path", path)
		w.onFile(path)
	}
}
