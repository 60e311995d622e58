package watch

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// collect runs a watcher over root and returns a getter for the paths the
// callback has seen so far.
func collect(t *testing.T, root string, settle time.Duration) func() []string {
	t.Helper()

	var mu sync.Mutex
	var seen []string
	w, err := New(root, settle, func(path string) {
		mu.Lock()
		seen = append(seen, path)
		mu.Unlock()
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go w.Run(ctx)
	// Give the watch set a moment to establish before the test writes files.
	time.Sleep(100 * time.Millisecond)

	return func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), seen...)
	}
}

func waitFor(t *testing.T, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func TestWatcherReportsSettledExposure(t *testing.T) {
	root := t.TempDir()
	seen := collect(t, root, 50*time.Millisecond)

	path := filepath.Join(root, "m42_001.fits")
	if err := os.WriteFile(path, []byte("fits data"), 0o644); err != nil {
		t.Fatal(err)
	}

	if !waitFor(t, func() bool { return len(seen()) == 1 }) {
		t.Fatalf("callback never fired, seen = %v", seen())
	}
	if seen()[0] != path {
		t.Errorf("seen = %v", seen())
	}
}

func TestWatcherIgnoresNonExposureFiles(t *testing.T) {
	root := t.TempDir()
	seen := collect(t, root, 50*time.Millisecond)

	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	fits := filepath.Join(root, "real.fits")
	if err := os.WriteFile(fits, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	if !waitFor(t, func() bool { return len(seen()) >= 1 }) {
		t.Fatalf("exposure never reported")
	}
	for _, p := range seen() {
		if p != fits {
			t.Errorf("unexpected report: %s", p)
		}
	}
}

func TestWatcherPicksUpNewDirectories(t *testing.T) {
	root := t.TempDir()
	seen := collect(t, root, 50*time.Millisecond)

	session := filepath.Join(root, "2024-05-01")
	if err := os.Mkdir(session, 0o755); err != nil {
		t.Fatal(err)
	}
	// Allow the new directory to join the watch set.
	time.Sleep(200 * time.Millisecond)

	path := filepath.Join(session, "a.fits")
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	if !waitFor(t, func() bool { return len(seen()) == 1 }) {
		t.Fatalf("file in new directory never reported")
	}
	if seen()[0] != path {
		t.Errorf("seen = %v", seen())
	}
}
