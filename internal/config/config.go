package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

const (
	defaultConfigPath = "~/.config/nebulapilot/config.json"
	defaultWorkers    = 4
)

// Config holds user-editable settings for the pipeline.
type Config struct {
	Paths    Paths    `json:"paths"`
	Organize Organize `json:"organize"`
	Quality  Quality  `json:"quality"`
	Logging  Logging  `json:"logging"`
	Watch    Watch    `json:"watch"`
	Web      Web      `json:"web"`
	Preview  Preview  `json:"preview"`
}

// Paths configures default input/output and catalog locations.
type Paths struct {
	CaptureRoot  string `json:"capture_root"`  // unsorted incoming tree
	ArchiveRoot  string `json:"archive_root"`  // organized destination tree
	DatabasePath string `json:"database_path"` // tracking catalog
	QueuePath    string `json:"queue_path"`    // integration queue file
}

// Organize captures execution preferences for the organize pipeline.
type Organize struct {
	AnalyzeWorkers int  `json:"analyze_workers"`
	DryRun         bool `json:"dry_run"`
}

// Quality controls frame analysis and the classification thresholds.
type Quality struct {
	Enabled        bool    `json:"enabled"` // disabled analysis accepts everything
	MinStars       int     `json:"min_stars"`
	MaxFWHM        float64 `json:"max_fwhm"`
	MaxEllipticity float64 `json:"max_ellipticity"`
	AbsoluteFloor  int     `json:"absolute_floor"`
	StarCountRatio float64 `json:"star_count_ratio"`
	FWHMRatio      float64 `json:"fwhm_ratio"`
}

// Logging controls logging verbosity and destinations.
type Logging struct {
	Level      string `json:"level"`       // debug, info, warn, error
	Format     string `json:"format"`      // text, json
	FileOutput bool   `json:"file_output"` // Enable file logging
	LogDir     string `json:"log_dir"`     // Directory for log files
}

// Watch configures the capture-tree watcher.
type Watch struct {
	SettleSeconds int `json:"settle_seconds"` // size must be stable this long
}

// Web configures the status HTTP server.
type Web struct {
	Addr string `json:"addr"`
}

// Preview configures PNG preview generation for accepted frames.
type Preview struct {
	Enabled  bool   `json:"enabled"`
	Dir      string `json:"dir"` // relative to the archive root when not absolute
	MaxWidth uint   `json:"max_width"`
}

// Load reads configuration from disk, falling back to sensible defaults.
// NEBULAPILOT_CONFIG overrides the default path.
func Load() (*Config, error) {
	cfg := defaultConfig()

	configPath := os.Getenv("NEBULAPILOT_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	expanded, err := expandUser(configPath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(expanded)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	if err := dec.Decode(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to its default (or overridden) location.
func Save(cfg *Config) (string, error) {
	configPath := os.Getenv("NEBULAPILOT_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}
	expanded, err := expandUser(configPath)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(expanded, data, 0o644); err != nil {
		return "", err
	}
	return expanded, nil
}

func defaultConfig() *Config {
	home, _ := os.UserHomeDir()
	stateDir := filepath.Join(home, ".nebulapilot")
	return &Config{
		Paths: Paths{
			CaptureRoot:  ".",
			ArchiveRoot:  "./organized",
			DatabasePath: filepath.Join(stateDir, "nebulapilot.db"),
			QueuePath:    filepath.Join(stateDir, "integration_queue.json"),
		},
		Organize: Organize{
			AnalyzeWorkers: defaultWorkers,
		},
		Quality: Quality{
			Enabled:        true,
			MinStars:       20,
			MaxFWHM:        12.0,
			MaxEllipticity: 0.6,
			AbsoluteFloor:  5,
			StarCountRatio: 0.3,
			FWHMRatio:      1.6,
		},
		Logging: Logging{
			Level:      "info",
			Format:     "text",
			FileOutput: false,
			LogDir:     "./logs",
		},
		Watch: Watch{
			SettleSeconds: 2,
		},
		Web: Web{
			Addr: "127.0.0.1:8751",
		},
		Preview: Preview{
			Enabled:  false,
			Dir:      "previews",
			MaxWidth: 1024,
		},
	}
}

func expandUser(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	if path == "~" {
		return home, nil
	}

	return filepath.Join(home, path[2:]), nil
}
