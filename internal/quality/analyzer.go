package quality

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"nebulapilot/internal/fits"
)

// Decision is the usability classification of one frame.
type Decision string

const (
	Accept Decision = "ACCEPT"
	Reject Decision = "REJECT"
)

// Metrics are the per-frame image quality measurements.
type Metrics struct {
	StarCount   int
	BgMean      float64
	BgRMS       float64
	FWHM        float64
	Ellipticity float64
}

// Outcome is the analyzer's explicit result: a fallback decision made
// against absolute thresholds, plus the metrics when analysis succeeded.
// Metrics is nil when the frame could not be measured.
type Outcome struct {
	Decision Decision
	Reason   string
	Metrics  *Metrics
}

// Thresholds control both the absolute fallback decision and the
// relative per-group evaluation.
type Thresholds struct {
	MinStars       int     // absolute: fewer stars than this rejects
	MaxFWHM        float64 // absolute: pixels
	MaxEllipticity float64 // absolute
	AbsoluteFloor  int     // relative rule 1: hard star-count floor
	StarCountRatio float64 // relative rule 2: fraction of ref_star_count
	FWHMRatio      float64 // relative rule 3: multiple of ref_fwhm
}

// DefaultThresholds returns the conservative defaults: loose enough to
// keep okay-ish frames, tight enough to drop cloud-outs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinStars:       20,
		MaxFWHM:        12.0,
		MaxEllipticity: 0.6,
		AbsoluteFloor:  5,
		StarCountRatio: 0.3,
		FWHMRatio:      1.6,
	}
}

const (
	detectSigma   = 3.0 // detection threshold in units of local noise
	minSourceArea = 5   // pixels
	backBoxSize   = 64  // background mesh cell size, pixels
	fwhmPerSigma  = 2.355
)

// Analyzer measures frame quality from raw pixel data.
type Analyzer struct {
	thresholds Thresholds
}

// NewAnalyzer returns an Analyzer using the given thresholds.
func NewAnalyzer(t Thresholds) *Analyzer {
	return &Analyzer{thresholds: t}
}

// Disabled is the fail-open outcome used when quality analysis is turned
// off: the pipeline must never block on missing tooling.
func Disabled() Outcome {
	return Outcome{Decision: Accept, Reason: "analyzer_disabled"}
}

// AnalyzeFile loads the pixel data at path and analyzes it.
func (a *Analyzer) AnalyzeFile(path string) Outcome {
	img, err := fits.ReadImage(path)
	if err != nil {
		if errors.Is(err, fits.ErrNoImageData) {
			return Outcome{Decision: Reject, Reason: "no_image_data"}
		}
		return Outcome{Decision: Reject, Reason: fmt.Sprintf("analysis_crash: %v", err)}
	}
	return a.Analyze(img)
}

// Analyze measures one image and decides against the absolute thresholds.
func (a *Analyzer) Analyze(img *fits.Image) (out Outcome) {
	// Corrupt pixel data should reject the frame, never kill the run.
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Decision: Reject, Reason: fmt.Sprintf("analysis_crash: %v", r)}
		}
	}()

	if img == nil || len(img.Pix) == 0 {
		return Outcome{Decision: Reject, Reason: "no_image_data"}
	}

	bkg, err := estimateBackground(img)
	if err != nil {
		return Outcome{Decision: Reject, Reason: fmt.Sprintf("background_error: %v", err)}
	}

	sub := make([]float64, len(img.Pix))
	for i, v := range img.Pix {
		sub[i] = v - bkg.modelAt(i%img.Width, i/img.Width)
	}

	sources := extractSources(sub, img.Width, img.Height, detectSigma*bkg.globalRMS, minSourceArea)

	m := &Metrics{
		StarCount: len(sources),
		BgMean:    bkg.globalBack,
		BgRMS:     bkg.globalRMS,
	}

	var fwhms, ells []float64
	for _, s := range sources {
		if s.a <= 0 || s.b <= 0 {
			continue
		}
		fwhms = append(fwhms, fwhmPerSigma*(s.a+s.b)/2)
		ells = append(ells, 1-s.b/s.a)
	}
	if len(fwhms) > 0 {
		m.FWHM = median(fwhms)
		m.Ellipticity = median(ells)
	}

	decision, reason := a.evaluateAbsolute(m)
	return Outcome{Decision: decision, Reason: reason, Metrics: m}
}

// evaluateAbsolute applies the standalone thresholds used when no group
// baseline is available.
func (a *Analyzer) evaluateAbsolute(m *Metrics) (Decision, string) {
	t := a.thresholds
	if m.StarCount < t.MinStars {
		return Reject, fmt.Sprintf("low star count: %d < %d", m.StarCount, t.MinStars)
	}
	if m.StarCount > 0 && m.FWHM > t.MaxFWHM {
		return Reject, fmt.Sprintf("high fwhm: %.2f > %.1f", m.FWHM, t.MaxFWHM)
	}
	if m.StarCount > 0 && m.Ellipticity > t.MaxEllipticity {
		return Reject, fmt.Sprintf("high ellipticity: %.2f > %.1f", m.Ellipticity, t.MaxEllipticity)
	}
	return Accept, "good"
}

func median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	s := append([]float64(nil), vals...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

// Percentile returns the p-th percentile (0..100) of vals by linear
// interpolation between closest ranks.
func Percentile(vals []float64, p float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	s := append([]float64(nil), vals...)
	sort.Float64s(s)
	if len(s) == 1 {
		return s[0]
	}
	rank := p / 100 * float64(len(s)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return s[lo]
	}
	frac := rank - float64(lo)
	return s[lo]*(1-frac) + s[hi]*frac
}
