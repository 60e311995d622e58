package catalog

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// FilterCodes are the canonical channels tracked per target.
var FilterCodes = []string{"L", "R", "G", "B", "S", "H", "O"}

// Store wraps the SQLite-backed tracking catalog of targets and frames.
type Store struct {
	DB *sql.DB
}

// Goals are per-filter exposure goals in minutes.
type Goals struct {
	L, R, G, B, S, H, O float64
}

// DefaultGoals mirror a typical LRGB + narrowband plan.
func DefaultGoals() Goals {
	return Goals{L: 80, R: 60, G: 60, B: 60, S: 100, H: 100, O: 100}
}

// Target is one tracked astronomical object.
type Target struct {
	Name   string
	Goals  Goals
	Status string
}

// Frame is one catalogued exposure, keyed by its archive path.
type Frame struct {
	Path        string
	Target      string
	Filter      string
	ExposureSec float64
	DateObs     string
	StarCount   int
	FWHM        float64
	Ellipticity float64
	Background  float64
	Decision    string
	Reason      string
}

// New opens (or creates) the catalog database at path and ensures schema.
func New(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &Store{DB: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS targets (
            name TEXT PRIMARY KEY,
            goal_l REAL DEFAULT 0,
            goal_r REAL DEFAULT 0,
            goal_g REAL DEFAULT 0,
            goal_b REAL DEFAULT 0,
            goal_s REAL DEFAULT 0,
            goal_h REAL DEFAULT 0,
            goal_o REAL DEFAULT 0,
            status TEXT DEFAULT 'IN_PROGRESS'
        );`,
		`CREATE TABLE IF NOT EXISTS frames (
            path TEXT PRIMARY KEY,
            target_name TEXT,
            filter TEXT,
            exptime_sec REAL,
            date_obs TEXT,
            star_count INTEGER,
            fwhm REAL,
            ellipticity REAL,
            background REAL,
            decision TEXT,
            reason TEXT,
            FOREIGN KEY (target_name) REFERENCES targets (name)
        );`,
		`CREATE INDEX IF NOT EXISTS idx_frames_target ON frames(target_name);`,
		`CREATE INDEX IF NOT EXISTS idx_frames_filter ON frames(target_name, filter);`,
	}
	for _, stmt := range stmts {
		if _, err := s.DB.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying DB.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// EnsureTarget registers a target with default goals if it is not yet known.
func (s *Store) EnsureTarget(name string) error {
	g := DefaultGoals()
	_, err := s.DB.Exec(
		`INSERT OR IGNORE INTO targets (name, goal_l, goal_r, goal_g, goal_b, goal_s, goal_h, goal_o)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		name, g.L, g.R, g.G, g.B, g.S, g.H, g.O)
	return err
}

// UpsertFrame inserts or replaces a frame record keyed by path.
func (s *Store) UpsertFrame(f Frame) error {
	_, err := s.DB.Exec(
		`INSERT OR REPLACE INTO frames
            (path, target_name, filter, exptime_sec, date_obs,
             star_count, fwhm, ellipticity, background, decision, reason)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.Path, f.Target, f.Filter, f.ExposureSec, f.DateObs,
		f.StarCount, f.FWHM, f.Ellipticity, f.Background, f.Decision, f.Reason)
	return err
}

// Targets returns all tracked targets sorted by name.
func (s *Store) Targets() ([]Target, error) {
	rows, err := s.DB.Query(
		`SELECT name, goal_l, goal_r, goal_g, goal_b, goal_s, goal_h, goal_o, status
         FROM targets ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Target
	for rows.Next() {
		var t Target
		if err := rows.Scan(&t.Name, &t.Goals.L, &t.Goals.R, &t.Goals.G, &t.Goals.B,
			&t.Goals.S, &t.Goals.H, &t.Goals.O, &t.Status); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SetGoals updates the per-filter exposure goals of an existing target.
func (s *Store) SetGoals(name string, g Goals) error {
	res, err := s.DB.Exec(
		`UPDATE targets SET goal_l=?, goal_r=?, goal_g=?, goal_b=?, goal_s=?, goal_h=?, goal_o=?
         WHERE name=?`,
		g.L, g.R, g.G, g.B, g.S, g.H, g.O, name)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("unknown target %q", name)
	}
	return err
}

// DeleteTarget removes a target and its frames.
func (s *Store) DeleteTarget(name string) error {
	if _, err := s.DB.Exec(`DELETE FROM frames WHERE target_name = ?`, name); err != nil {
		return err
	}
	_, err := s.DB.Exec(`DELETE FROM targets WHERE name = ?`, name)
	return err
}

// Progress returns accumulated accepted exposure minutes per filter code.
// Channels with no frames are present with zero.
func (s *Store) Progress(target string) (map[string]float64, error) {
	rows, err := s.DB.Query(
		`SELECT filter, COALESCE(SUM(exptime_sec), 0) / 60.0
         FROM frames
         WHERE target_name = ? AND decision = 'ACCEPT'
         GROUP BY filter`, target)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	progress := make(map[string]float64, len(FilterCodes))
	for _, f := range FilterCodes {
		progress[f] = 0
	}
	for rows.Next() {
		var filter string
		var minutes float64
		if err := rows.Scan(&filter, &minutes); err != nil {
			return nil, err
		}
		if _, ok := progress[filter]; ok {
			progress[filter] = minutes
		}
	}
	return progress, rows.Err()
}

// FramesForTarget returns catalogued frame paths grouped by filter.
func (s *Store) FramesForTarget(target string) (map[string][]string, error) {
	rows, err := s.DB.Query(
		`SELECT filter, path FROM frames
         WHERE target_name = ? AND decision = 'ACCEPT'
         ORDER BY filter, path`, target)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var filter, path string
		if err := rows.Scan(&filter, &path); err != nil {
			return nil, err
		}
		out[filter] = append(out[filter], path)
	}
	return out, rows.Err()
}
