package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	t.Setenv("NEBULAPILOT_CONFIG", filepath.Join(t.TempDir(), "absent.json"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Organize.AnalyzeWorkers != defaultWorkers {
		t.Errorf("AnalyzeWorkers = %d", cfg.Organize.AnalyzeWorkers)
	}
	if !cfg.Quality.Enabled || cfg.Quality.MinStars != 20 || cfg.Quality.FWHMRatio != 1.6 {
		t.Errorf("quality defaults = %+v", cfg.Quality)
	}
	if cfg.Web.Addr == "" || cfg.Paths.QueuePath == "" {
		t.Errorf("incomplete defaults: %+v", cfg)
	}
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	t.Setenv("NEBULAPILOT_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	cfg.Paths.CaptureRoot = "/data/capture"
	cfg.Quality.MinStars = 7
	cfg.Watch.SettleSeconds = 9

	wrote, err := Save(cfg)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if wrote != path {
		t.Errorf("Save path = %q, want %q", wrote, path)
	}

	out, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if out.Paths.CaptureRoot != "/data/capture" || out.Quality.MinStars != 7 || out.Watch.SettleSeconds != 9 {
		t.Errorf("round trip lost values: %+v", out)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{oops"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("NEBULAPILOT_CONFIG", path)
	if _, err := Load(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestExpandUser(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	got, err := expandUser("~/x/y")
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(home, "x", "y") {
		t.Errorf("expandUser = %q", got)
	}
	got, err = expandUser("/abs/path")
	if err != nil || got != "/abs/path" {
		t.Errorf("absolute path changed: %q %v", got, err)
	}
}
