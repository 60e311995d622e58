package organize

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"nebulapilot/internal/fits"
	"nebulapilot/internal/fsutil"
	"nebulapilot/internal/quality"
)

// Progress phase boundaries. The reported percentage is monotonic and
// reaches 100 on completion.
const (
	pctDiscoverEnd = 10
	pctAnalyzeEnd  = 50
	pctEvaluateEnd = 90
)

// Options configure one organize run. Nothing is baked into the pipeline;
// callers inject paths and thresholds from their config.
type Options struct {
	Source          string
	Dest            string
	DryRun          bool
	Workers         int // parallel analysis in pass 1; evaluation stays sequential
	DisableAnalysis bool
	Thresholds      quality.Thresholds
}

// Organizer drives the two-pass classification and relocation pipeline:
// discover and group, analyze every frame, then per group compute a
// baseline, evaluate each member against it, relocate, audit and catalog.
type Organizer struct {
	opts      Options
	analyzer  *quality.Analyzer
	catalog   Cataloger
	obs       Observer
	previewer Previewer
	log       *slog.Logger

	mu      sync.Mutex
	lastPct int
}

// New builds an Organizer. catalog and obs may be nil.
func New(opts Options, catalog Cataloger, obs Observer, log *slog.Logger) *Organizer {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	o := &Organizer{opts: opts, catalog: catalog, obs: obs, log: log}
	if !opts.DisableAnalysis {
		o.analyzer = quality.NewAnalyzer(opts.Thresholds)
	}
	return o
}

// SetPreviewer enables preview generation for accepted frames.
func (o *Organizer) SetPreviewer(p Previewer) {
	o.previewer = p
}

// Run executes the whole pipeline. Per-file errors never abort the run;
// only failure to access the source root itself returns an error.
func (o *Organizer) Run(ctx context.Context) (Stats, error) {
	stats := newStats()

	if _, err := os.Stat(o.opts.Source); err != nil {
		return stats, fmt.Errorf("source root: %w", err)
	}

	o.progress(0, "discovering exposures")
	files, err := fsutil.ListExposures(o.opts.Source)
	if err != nil {
		return stats, fmt.Errorf("scan source tree: %w", err)
	}

	frames, groups := o.discover(ctx, files)
	stats.TotalFiles = len(frames)
	o.reportStructure(frames)
	o.progress(pctDiscoverEnd, fmt.Sprintf("discovered %d exposures in %d groups", len(frames), len(groups)))
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	o.analyze(ctx, frames)
	o.progress(pctAnalyzeEnd, "analysis complete")
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	o.evaluate(ctx, frames, groups, &stats)
	o.progress(pctEvaluateEnd, "evaluation complete")

	if !o.opts.DryRun {
		removed := fsutil.PruneEmptyDirs(o.opts.Source, func(path string, err error) {
			o.log.Warn("prune failed", "path", path, "error", err)
		})
		if removed > 0 {
			o.log.Info("pruned empty source directories", "count", removed)
		}
	}
	o.progress(100, fmt.Sprintf("organize complete: %d ok, %d failed", stats.SuccessCount, stats.FailedCount))

	return stats, nil
}

// discover reads metadata for every candidate file and buckets the result
// into (target, filter) groups. Files with unreadable headers are skipped
// entirely: they stay at the source and appear in no counter.
func (o *Organizer) discover(ctx context.Context, files []string) ([]frame, map[groupKey][]int) {
	frames := make([]frame, 0, len(files))
	groups := make(map[groupKey][]int)

	for i, path := range files {
		if ctx.Err() != nil {
			break
		}
		meta, err := fits.ReadMetadata(path)
		if err != nil {
			o.log.Warn("skipping file with unreadable header", "path", path, "error", err)
			continue
		}
		f := frame{src: path, meta: meta, target: fits.SanitizeTarget(meta.Target)}
		idx := len(frames)
		frames = append(frames, f)
		key := groupKey{Target: f.target, Filter: meta.Filter}
		groups[key] = append(groups[key], idx)

		if len(files) > 0 {
			o.progress(pctDiscoverEnd*(i+1)/len(files), fmt.Sprintf("reading headers (%d/%d)", i+1, len(files)))
		}
	}
	return frames, groups
}

func (o *Organizer) reportStructure(frames []frame) {
	if o.obs == nil {
		return
	}
	counts := make(map[string]map[string]int)
	for i := range frames {
		f := &frames[i]
		if counts[f.target] == nil {
			counts[f.target] = make(map[string]int)
		}
		counts[f.target][f.meta.Filter]++
	}
	o.obs.Structure(counts)
}

// analyze runs pass 1. Frames have no cross-file dependency here, so the
// work fans out across opts.Workers goroutines.
func (o *Organizer) analyze(ctx context.Context, frames []frame) {
	total := len(frames)
	if total == 0 {
		return
	}
	workers := o.opts.Workers
	if workers > total {
		workers = total
	}

	idxCh := make(chan int, total)
	for i := range frames {
		idxCh <- i
	}
	close(idxCh)

	var wg sync.WaitGroup
	var progressMu sync.Mutex
	analyzed := 0
	perGroup := make(map[groupKey]int)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range idxCh {
				if ctx.Err() != nil {
					continue
				}
				frames[i].outcome = o.analyzeOne(frames[i].src)

				progressMu.Lock()
				analyzed++
				key := groupKey{Target: frames[i].target, Filter: frames[i].meta.Filter}
				perGroup[key]++
				pct := pctDiscoverEnd + (pctAnalyzeEnd-pctDiscoverEnd)*analyzed/total
				o.progress(pct, fmt.Sprintf("analyzed %s (%d/%d)", filepath.Base(frames[i].src), analyzed, total))
				if o.obs != nil {
					o.obs.ChannelProgress(key.Target, key.Filter, perGroup[key])
				}
				progressMu.Unlock()
			}
		}()
	}
	wg.Wait()
}

func (o *Organizer) analyzeOne(path string) quality.Outcome {
	if o.analyzer == nil {
		return quality.Disabled()
	}
	return o.analyzer.AnalyzeFile(path)
}

// evaluate runs pass 2 group by group: baseline, relative decision,
// relocation, audit row, catalog update. Cancellation is polled between
// groups; a group mid-evaluation finishes.
func (o *Organizer) evaluate(ctx context.Context, frames []frame, groups map[groupKey][]int, stats *Stats) {
	keys := make([]groupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Target != keys[j].Target {
			return keys[i].Target < keys[j].Target
		}
		return keys[i].Filter < keys[j].Filter
	})

	processed := 0
	for _, key := range keys {
		if ctx.Err() != nil {
			return
		}
		idxs := groups[key]

		members := make([]*quality.Metrics, 0, len(idxs))
		for _, i := range idxs {
			members = append(members, frames[i].outcome.Metrics)
		}
		base := quality.ComputeBaseline(members)
		if base == nil {
			o.log.Info("no baseline for group, using absolute thresholds",
				"target", key.Target, "filter", key.Filter)
		} else {
			o.log.Debug("group baseline",
				"target", key.Target, "filter", key.Filter,
				"ref_stars", base.RefStarCount, "ref_fwhm", base.RefFWHM)
		}

		for _, i := range idxs {
			o.relocate(&frames[i], base, stats)
			processed++
			if len(frames) > 0 {
				pct := pctAnalyzeEnd + (pctEvaluateEnd-pctAnalyzeEnd)*processed/len(frames)
				o.progress(pct, fmt.Sprintf("organizing %s (%d/%d)", key.Target, processed, len(frames)))
			}
		}
	}
}

func (o *Organizer) relocate(f *frame, base *quality.Baseline, stats *Stats) {
	f.decision, f.reason = quality.Evaluate(f.outcome, base, o.opts.Thresholds)
	f.dest = ResolveDest(f.src, f.target, f.decision == quality.Accept, o.opts.Source, o.opts.Dest)

	if o.opts.DryRun {
		o.log.Info("dry run: would move",
			"from", f.src, "to", f.dest, "decision", f.decision, "reason", f.reason)
		o.count(f, stats)
		return
	}

	if err := fsutil.MoveFile(f.src, f.dest); err != nil {
		// The frame stays put and gets re-scanned next run. Not counted.
		o.log.Error("move failed, frame stays at source", "path", f.src, "error", err)
		return
	}

	entry := AuditEntry{
		Time:     time.Now(),
		Filename: filepath.Base(f.dest),
		Decision: f.decision,
		Reason:   f.reason,
		Metrics:  f.outcome.Metrics,
		Baseline: base,
	}
	if err := AppendAudit(filepath.Dir(f.dest), entry); err != nil {
		o.log.Warn("audit log append failed", "folder", filepath.Dir(f.dest), "error", err)
	}

	o.count(f, stats)

	if f.decision == quality.Accept {
		if o.catalog != nil {
			o.recordAccepted(f)
		}
		if o.previewer != nil {
			if err := o.previewer.Generate(f.dest); err != nil {
				o.log.Warn("preview generation failed", "path", f.dest, "error", err)
			}
		}
	}
}

func (o *Organizer) recordAccepted(f *frame) {
	if err := o.catalog.EnsureTarget(f.target); err != nil {
		o.log.Warn("catalog ensure-target failed", "target", f.target, "error", err)
		return
	}
	cf := CatalogFrame{
		Path:        f.dest,
		Target:      f.target,
		Filter:      f.meta.Filter,
		ExposureSec: f.meta.ExposureSec,
		DateObs:     f.meta.DateObs,
		Decision:    string(f.decision),
		Reason:      f.reason,
	}
	if m := f.outcome.Metrics; m != nil {
		cf.StarCount = m.StarCount
		cf.FWHM = m.FWHM
		cf.Ellipticity = m.Ellipticity
		cf.Background = m.BgMean
	}
	if err := o.catalog.UpsertFrame(cf); err != nil {
		o.log.Warn("catalog upsert-frame failed", "path", f.dest, "error", err)
	}
}

func (o *Organizer) count(f *frame, stats *Stats) {
	if f.decision == quality.Accept {
		stats.SuccessCount++
		return
	}
	stats.FailedCount++
	stats.addReason(f.reason)
}

// progress forwards to the observer, clamped so the reported percentage
// never moves backward.
func (o *Organizer) progress(pct int, msg string) {
	if o.obs == nil {
		return
	}
	o.mu.Lock()
	if pct < o.lastPct {
		pct = o.lastPct
	}
	o.lastPct = pct
	o.mu.Unlock()
	o.obs.Progress(pct, msg)
}
