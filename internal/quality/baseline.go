package quality

import "fmt"

// Baseline is the robust per-group reference computed from all analyzed
// members of a (target, filter) group. Frames are judged relative to it.
type Baseline struct {
	RefStarCount float64 // 90th percentile of member star counts
	RefFWHM      float64 // median of positive member fwhm values
}

const defaultRefFWHM = 12.0

// ComputeBaseline derives the group reference from member metrics. It
// returns nil when no member contributed a positive star count; callers
// must then fall back to the absolute-threshold decision for every member.
func ComputeBaseline(members []*Metrics) *Baseline {
	var counts, fwhms []float64
	for _, m := range members {
		if m == nil || m.StarCount <= 0 {
			continue
		}
		counts = append(counts, float64(m.StarCount))
		if m.FWHM > 0 {
			fwhms = append(fwhms, m.FWHM)
		}
	}
	if len(counts) == 0 {
		return nil
	}
	b := &Baseline{
		// p90 rather than max: a single exceptional frame must not set a
		// ceiling the rest of the session cannot reach.
		RefStarCount: Percentile(counts, 90),
		RefFWHM:      defaultRefFWHM,
	}
	if len(fwhms) > 0 {
		b.RefFWHM = median(fwhms)
	}
	return b
}

// Evaluate judges one frame against the group baseline. Rules are ordered,
// first match wins. When the frame has no usable metrics or the baseline is
// undefined, the analyzer's absolute-threshold outcome is returned instead;
// a frame's classification is never dropped.
func Evaluate(out Outcome, base *Baseline, t Thresholds) (Decision, string) {
	if out.Metrics == nil || base == nil {
		return out.Decision, out.Reason
	}
	m := out.Metrics
	switch {
	case m.StarCount < t.AbsoluteFloor:
		return Reject, "star count below absolute floor"
	case float64(m.StarCount) < t.StarCountRatio*base.RefStarCount:
		return Reject, fmt.Sprintf("star count below %.0f%% of group reference", t.StarCountRatio*100)
	case base.RefFWHM > 0 && m.FWHM > t.FWHMRatio*base.RefFWHM:
		return Reject, fmt.Sprintf("fwhm exceeds %.1fx group reference", t.FWHMRatio)
	default:
		return Accept, "relative pass"
	}
}
