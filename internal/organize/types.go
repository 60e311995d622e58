package organize

import (
	"nebulapilot/internal/fits"
	"nebulapilot/internal/quality"
)

// CatalogFrame describes one accepted, relocated frame for the tracking
// catalog, keyed by its final path.
type CatalogFrame struct {
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

// Cataloger is the tracking-catalog surface the pipeline consumes. It is
// informed only of accepted frames whose move succeeded.
type Cataloger interface {
	EnsureTarget(name string) error
	UpsertFrame(frame CatalogFrame) error
}

// Previewer renders a preview image for an accepted, relocated frame.
// Preview failures never affect the frame's outcome.
type Previewer interface {
	Generate(path string) error
}

// Observer receives progress callbacks. All methods are optional from the
// pipeline's perspective and must be side-effect free toward it.
type Observer interface {
	// Progress reports a monotonically increasing percentage with a
	// human-readable message; it reaches 100 on completion.
	Progress(percent int, message string)
	// Structure reports the discovered target -> filter -> frame counts.
	Structure(counts map[string]map[string]int)
	// ChannelProgress reports the running analyzed count for one group.
	ChannelProgress(target, filter string, done int)
}

// frame is one exposure's record through the run: created at discovery,
// metrics attached at analysis, decision finalized at evaluation.
type frame struct {
	src      string
	meta     fits.Metadata
	target   string // sanitized
	outcome  quality.Outcome
	decision quality.Decision
	reason   string
	dest     string
}

// groupKey buckets frames by (sanitized target, canonical filter).
type groupKey struct {
	Target string
	Filter string
}
