package cli

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"nebulapilot/internal/catalog"
	"nebulapilot/internal/config"
	"nebulapilot/internal/queue"
)

// Root carries the shared dependencies every subcommand closes over.
type Root struct {
	cfg   *config.Config
	log   *slog.Logger
	store *catalog.Store
}

// NewRoot bundles the dependencies for command constructors.
func NewRoot(cfg *config.Config, log *slog.Logger, store *catalog.Store) *Root {
	return &Root{cfg: cfg, log: log, store: store}
}

func (r *Root) openQueue() *queue.Queue {
	return queue.Load(r.cfg.Paths.QueuePath)
}

// printStatus renders the per-target progress table.
func (r *Root) printStatus() error {
	targets, err := r.store.Targets()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TARGET\tL (min)\tR (min)\tG (min)\tB (min)\tS (min)\tH (min)\tO (min)\tSTATUS")
	for _, t := range targets {
		progress, err := r.store.Progress(t.Name)
		if err != nil {
			return err
		}
		goals := map[string]float64{
			"L": t.Goals.L, "R": t.Goals.R, "G": t.Goals.G, "B": t.Goals.B,
			"S": t.Goals.S, "H": t.Goals.H, "O": t.Goals.O,
		}
		fmt.Fprintf(w, "%s", t.Name)
		for _, f := range catalog.FilterCodes {
			fmt.Fprintf(w, "\t%.1f/%.1f", progress[f], goals[f])
		}
		fmt.Fprintf(w, "\t%s\n", t.Status)
	}
	return w.Flush()
}

// consoleObserver prints pipeline progress to stdout.
type consoleObserver struct{}

func (consoleObserver) Progress(percent int, message string) {
	fmt.Printf("[%3d%%] %s\n", percent, message)
}

func (consoleObserver) Structure(counts map[string]map[string]int) {
	for target, filters := range counts {
		for filter, n := range filters {
			fmt.Printf("  %s / %s: %d frames\n", target, filter, n)
		}
	}
}

func (consoleObserver) ChannelProgress(target, filter string, done int) {}
