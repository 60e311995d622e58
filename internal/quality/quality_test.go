package quality

import (
	"math"
	"math/rand"
	"testing"

	"nebulapilot/internal/fits"
)

func TestPercentile(t *testing.T) {
	vals := []float64{10, 12, 15, 100, 110}
	if got := Percentile(vals, 90); math.Abs(got-106) > 1e-9 {
		t.Errorf("p90 = %v, want 106", got)
	}
	if got := Percentile(vals, 0); got != 10 {
		t.Errorf("p0 = %v, want 10", got)
	}
	if got := Percentile(vals, 100); got != 110 {
		t.Errorf("p100 = %v, want 110", got)
	}
	if got := Percentile([]float64{42}, 90); got != 42 {
		t.Errorf("single value p90 = %v, want 42", got)
	}
	if got := Percentile(nil, 90); got != 0 {
		t.Errorf("empty p90 = %v, want 0", got)
	}
}

func TestMedian(t *testing.T) {
	if got := median([]float64{3, 1, 2}); got != 2 {
		t.Errorf("odd median = %v, want 2", got)
	}
	if got := median([]float64{4, 1, 3, 2}); got != 2.5 {
		t.Errorf("even median = %v, want 2.5", got)
	}
	if got := median(nil); got != 0 {
		t.Errorf("empty median = %v, want 0", got)
	}
}

func TestComputeBaseline(t *testing.T) {
	members := []*Metrics{
		{StarCount: 10, FWHM: 3.0},
		{StarCount: 12, FWHM: 4.0},
		{StarCount: 15, FWHM: 5.0},
		{StarCount: 100, FWHM: 3.5},
		{StarCount: 110, FWHM: 4.5},
	}
	b := ComputeBaseline(members)
	if b == nil {
		t.Fatal("baseline should not be nil")
	}
	if math.Abs(b.RefStarCount-106) > 1e-9 {
		t.Errorf("RefStarCount = %v, want 106", b.RefStarCount)
	}
	if b.RefFWHM != 4.0 {
		t.Errorf("RefFWHM = %v, want 4.0", b.RefFWHM)
	}
}

func TestComputeBaselineSkipsUnusableMembers(t *testing.T) {
	members := []*Metrics{
		nil,
		{StarCount: 0, FWHM: 3.0},
		{StarCount: 50, FWHM: 0},
	}
	b := ComputeBaseline(members)
	if b == nil {
		t.Fatal("one positive count should yield a baseline")
	}
	if b.RefStarCount != 50 {
		t.Errorf("RefStarCount = %v, want 50", b.RefStarCount)
	}
	// No positive fwhm in the group falls back to the default reference.
	if b.RefFWHM != defaultRefFWHM {
		t.Errorf("RefFWHM = %v, want default %v", b.RefFWHM, defaultRefFWHM)
	}
}

func TestComputeBaselineNilWhenNoStars(t *testing.T) {
	if b := ComputeBaseline(nil); b != nil {
		t.Errorf("empty group baseline = %+v, want nil", b)
	}
	members := []*Metrics{{StarCount: 0}, nil}
	if b := ComputeBaseline(members); b != nil {
		t.Errorf("starless group baseline = %+v, want nil", b)
	}
}

func TestEvaluateRelativeRules(t *testing.T) {
	thr := DefaultThresholds()
	base := &Baseline{RefStarCount: 100, RefFWHM: 4.0}

	cases := []struct {
		name    string
		metrics Metrics
		want    Decision
		reason  string
	}{
		{"below floor", Metrics{StarCount: 3, FWHM: 3.0}, Reject, "star count below absolute floor"},
		{"below ratio", Metrics{StarCount: 25, FWHM: 3.0}, Reject, "star count below 30% of group reference"},
		{"bloated", Metrics{StarCount: 60, FWHM: 7.0}, Reject, "fwhm exceeds 1.6x group reference"},
		{"usable", Metrics{StarCount: 60, FWHM: 5.0}, Accept, "relative pass"},
	}
	for _, c := range cases {
		m := c.metrics
		out := Outcome{Decision: Accept, Reason: "good", Metrics: &m}
		got, reason := Evaluate(out, base, thr)
		if got != c.want || reason != c.reason {
			t.Errorf("%s: got %s %q, want %s %q", c.name, got, reason, c.want, c.reason)
		}
	}
}

func TestEvaluateReasonsReflectTunedRatios(t *testing.T) {
	thr := DefaultThresholds()
	thr.StarCountRatio = 0.5
	thr.FWHMRatio = 2.0
	base := &Baseline{RefStarCount: 100, RefFWHM: 4.0}

	out := Outcome{Decision: Accept, Reason: "good", Metrics: &Metrics{StarCount: 40, FWHM: 3.0}}
	d, reason := Evaluate(out, base, thr)
	if d != Reject || reason != "star count below 50% of group reference" {
		t.Errorf("ratio reason: %s %q", d, reason)
	}

	out = Outcome{Decision: Accept, Reason: "good", Metrics: &Metrics{StarCount: 90, FWHM: 8.5}}
	d, reason = Evaluate(out, base, thr)
	if d != Reject || reason != "fwhm exceeds 2.0x group reference" {
		t.Errorf("fwhm reason: %s %q", d, reason)
	}
}

func TestEvaluateFallsBackToAbsoluteOutcome(t *testing.T) {
	thr := DefaultThresholds()
	out := Outcome{Decision: Reject, Reason: "no_image_data"}

	d, reason := Evaluate(out, &Baseline{RefStarCount: 100, RefFWHM: 4}, thr)
	if d != Reject || reason != "no_image_data" {
		t.Errorf("nil metrics: got %s %q", d, reason)
	}

	out = Outcome{Decision: Accept, Reason: "good", Metrics: &Metrics{StarCount: 30}}
	d, reason = Evaluate(out, nil, thr)
	if d != Accept || reason != "good" {
		t.Errorf("nil baseline: got %s %q", d, reason)
	}
}

// starField renders a flat sky with Gaussian noise and a grid of point
// sources, the cleanest possible frame for the extractor.
func starField(w, h, stars int, amp, sigma float64) *fits.Image {
	rng := rand.New(rand.NewSource(7))
	pix := make([]float64, w*h)
	for i := range pix {
		pix[i] = 100 + rng.NormFloat64()*2
	}

	side := int(math.Ceil(math.Sqrt(float64(stars))))
	placed := 0
	for gy := 0; gy < side && placed < stars; gy++ {
		for gx := 0; gx < side && placed < stars; gx++ {
			cx := float64(w) * (float64(gx) + 0.5) / float64(side)
			cy := float64(h) * (float64(gy) + 0.5) / float64(side)
			for dy := -8; dy <= 8; dy++ {
				for dx := -8; dx <= 8; dx++ {
					x, y := int(cx)+dx, int(cy)+dy
					if x < 0 || x >= w || y < 0 || y >= h {
						continue
					}
					r2 := (float64(x)-cx)*(float64(x)-cx) + (float64(y)-cy)*(float64(y)-cy)
					pix[y*w+x] += amp * math.Exp(-r2/(2*sigma*sigma))
				}
			}
			placed++
		}
	}
	return &fits.Image{Width: w, Height: h, Pix: pix}
}

func TestAnalyzeStarField(t *testing.T) {
	img := starField(256, 256, 25, 500, 1.6)
	a := NewAnalyzer(DefaultThresholds())
	out := a.Analyze(img)

	if out.Metrics == nil {
		t.Fatalf("no metrics: %+v", out)
	}
	m := out.Metrics
	if m.StarCount < 20 || m.StarCount > 30 {
		t.Errorf("StarCount = %d, want about 25", m.StarCount)
	}
	if m.FWHM < 2 || m.FWHM > 6 {
		t.Errorf("FWHM = %v, want 2..6", m.FWHM)
	}
	if m.Ellipticity > 0.3 {
		t.Errorf("Ellipticity = %v, want < 0.3", m.Ellipticity)
	}
	if m.BgMean < 95 || m.BgMean > 105 {
		t.Errorf("BgMean = %v, want about 100", m.BgMean)
	}
	if out.Decision != Accept {
		t.Errorf("Decision = %s %q, want ACCEPT", out.Decision, out.Reason)
	}
}

func TestAnalyzeSparseFieldRejectsAbsolute(t *testing.T) {
	img := starField(256, 256, 4, 500, 1.6)
	a := NewAnalyzer(DefaultThresholds())
	out := a.Analyze(img)

	if out.Decision != Reject {
		t.Fatalf("Decision = %s, want REJECT", out.Decision)
	}
	if out.Metrics == nil || out.Metrics.StarCount > 10 {
		t.Errorf("unexpected metrics: %+v", out.Metrics)
	}
}

func TestAnalyzeFlatImage(t *testing.T) {
	pix := make([]float64, 64*64)
	for i := range pix {
		pix[i] = 100
	}
	a := NewAnalyzer(DefaultThresholds())
	out := a.Analyze(&fits.Image{Width: 64, Height: 64, Pix: pix})
	if out.Decision != Reject {
		t.Errorf("flat image should reject, got %s %q", out.Decision, out.Reason)
	}
	if out.Metrics != nil {
		t.Errorf("flat image should carry no metrics")
	}
}

func TestAnalyzeEmptyImage(t *testing.T) {
	a := NewAnalyzer(DefaultThresholds())
	out := a.Analyze(nil)
	if out.Decision != Reject || out.Reason != "no_image_data" {
		t.Errorf("nil image: got %s %q", out.Decision, out.Reason)
	}
}

func TestDisabledOutcome(t *testing.T) {
	out := Disabled()
	if out.Decision != Accept || out.Metrics != nil {
		t.Errorf("Disabled() = %+v", out)
	}
}
