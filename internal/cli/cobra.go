package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"nebulapilot/internal/catalog"
	"nebulapilot/internal/config"
	"nebulapilot/internal/organize"
	"nebulapilot/internal/preview"
	"nebulapilot/internal/quality"
	"nebulapilot/internal/watch"
	"nebulapilot/internal/web"
)

// Version is the release identifier stamped at build time.
var Version = "dev"

// NewRootCmd creates the root Cobra command
func NewRootCmd(cfg *config.Config, log *slog.Logger, store *catalog.Store) *cobra.Command {
	root := NewRoot(cfg, log, store)

	rootCmd := &cobra.Command{
		Use:   "nebulapilot",
		Short: "nebulapilot tracks and organizes astrophotography exposures",
		Long: `nebulapilot ingests freshly captured FITS exposures, classifies each frame
against its session peers using image-quality metrics, archives usable frames
by target, and tracks per-filter exposure progress toward your goals.`,
	}

	rootCmd.AddCommand(newOrganizeCmd(root))
	rootCmd.AddCommand(newScanCmd(root))
	rootCmd.AddCommand(newStatusCmd(root))
	rootCmd.AddCommand(newTargetsCmd(root))
	rootCmd.AddCommand(newQueueCmd(root))
	rootCmd.AddCommand(newWatchCmd(root))
	rootCmd.AddCommand(newServeCmd(root))
	rootCmd.AddCommand(newConfigCmd(root))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func (r *Root) thresholds() quality.Thresholds {
	q := r.cfg.Quality
	t := quality.DefaultThresholds()
	if q.MinStars > 0 {
		t.MinStars = q.MinStars
	}
	if q.MaxFWHM > 0 {
		t.MaxFWHM = q.MaxFWHM
	}
	if q.MaxEllipticity > 0 {
		t.MaxEllipticity = q.MaxEllipticity
	}
	if q.AbsoluteFloor > 0 {
		t.AbsoluteFloor = q.AbsoluteFloor
	}
	if q.StarCountRatio > 0 {
		t.StarCountRatio = q.StarCountRatio
	}
	if q.FWHMRatio > 0 {
		t.FWHMRatio = q.FWHMRatio
	}
	return t
}

// catalogClient adapts the catalog store to the pipeline's Cataloger.
type catalogClient struct {
	store *catalog.Store
}

func (c *catalogClient) EnsureTarget(name string) error {
	return c.store.EnsureTarget(name)
}

func (c *catalogClient) UpsertFrame(f organize.CatalogFrame) error {
	return c.store.UpsertFrame(catalog.Frame{
		Path:        f.Path,
		Target:      f.Target,
		Filter:      f.Filter,
		ExposureSec: f.ExposureSec,
		DateObs:     f.DateObs,
		StarCount:   f.StarCount,
		FWHM:        f.FWHM,
		Ellipticity: f.Ellipticity,
		Background:  f.Background,
		Decision:    f.Decision,
		Reason:      f.Reason,
	})
}

// multiObserver fans progress out to several observers.
type multiObserver []organize.Observer

func (m multiObserver) Progress(percent int, message string) {
	for _, o := range m {
		o.Progress(percent, message)
	}
}

func (m multiObserver) Structure(counts map[string]map[string]int) {
	for _, o := range m {
		o.Structure(counts)
	}
}

func (m multiObserver) ChannelProgress(target, filter string, done int) {
	for _, o := range m {
		o.ChannelProgress(target, filter, done)
	}
}

func newOrganizeCmd(root *Root) *cobra.Command {
	var (
		dryRun     bool
		workers    int
		noAnalysis bool
		serve      bool
	)

	cmd := &cobra.Command{
		Use:   "organize [source] [dest]",
		Short: "Classify and archive captured exposures",
		Long: `Walk the capture tree, measure each frame's quality, judge it against its
session peers, and move it into the archive (rejects under failed/). Accepted
frames are recorded in the tracking catalog.`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			source := root.cfg.Paths.CaptureRoot
			dest := root.cfg.Paths.ArchiveRoot
			if len(args) > 0 {
				source = args[0]
			}
			if len(args) > 1 {
				dest = args[1]
			}
			if workers <= 0 {
				workers = root.cfg.Organize.AnalyzeWorkers
			}

			var obs organize.Observer = consoleObserver{}
			if serve {
				srv := web.NewServer(root.cfg.Web.Addr, root.store, root.openQueue(), root.log)
				go func() {
					if err := srv.ListenAndServe(ctx); err != nil {
						root.log.Warn("status server stopped", "error", err)
					}
				}()
				obs = multiObserver{consoleObserver{}, srv}
			}

			org := organize.New(organize.Options{
				Source:          source,
				Dest:            dest,
				DryRun:          dryRun || root.cfg.Organize.DryRun,
				Workers:         workers,
				DisableAnalysis: noAnalysis || !root.cfg.Quality.Enabled,
				Thresholds:      root.thresholds(),
			}, &catalogClient{root.store}, obs, root.log)

			if root.cfg.Preview.Enabled {
				dir := root.cfg.Preview.Dir
				if !filepath.IsAbs(dir) {
					dir = filepath.Join(dest, dir)
				}
				org.SetPreviewer(preview.NewGenerator(dir, root.cfg.Preview.MaxWidth, root.log))
			}

			stats, err := org.Run(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("\nProcessed %d files: %d accepted, %d rejected\n",
				stats.TotalFiles, stats.SuccessCount, stats.FailedCount)
			for reason, n := range stats.Reasons {
				fmt.Printf("  %s: %d\n", reason, n)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "plan moves without touching anything")
	cmd.Flags().IntVar(&workers, "workers", 0, "parallel analysis workers (default from config)")
	cmd.Flags().BoolVar(&noAnalysis, "no-analysis", false, "skip quality analysis, accept everything")
	cmd.Flags().BoolVar(&serve, "serve", false, "expose live progress on the status server while running")
	return cmd
}

func newScanCmd(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "scan [directory]",
		Short: "Record existing exposures in the tracking catalog",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := root.cfg.Paths.CaptureRoot
			if len(args) > 0 {
				dir = args[0]
			}
			n, err := catalog.ScanTree(dir, root.store, root.log)
			if err != nil {
				return err
			}
			fmt.Printf("Recorded %d exposures from %s\n", n, dir)
			return nil
		},
	}
}

func newStatusCmd(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show per-target exposure progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.printStatus()
		},
	}
}

func newTargetsCmd(root *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "targets",
		Short: "Manage tracked targets",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <name>",
		Short: "Register a target with default goals",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.store.EnsureTarget(args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <name>",
		Short: "Delete a target and its catalogued frames",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.store.DeleteTarget(args[0])
		},
	})

	var goals catalog.Goals
	setGoals := &cobra.Command{
		Use:   "set-goals <name>",
		Short: "Set per-filter exposure goals in minutes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.store.SetGoals(args[0], goals)
		},
	}
	setGoals.Flags().Float64Var(&goals.L, "l", 0, "luminance goal (min)")
	setGoals.Flags().Float64Var(&goals.R, "r", 0, "red goal (min)")
	setGoals.Flags().Float64Var(&goals.G, "g", 0, "green goal (min)")
	setGoals.Flags().Float64Var(&goals.B, "b", 0, "blue goal (min)")
	setGoals.Flags().Float64Var(&goals.S, "s", 0, "SII goal (min)")
	setGoals.Flags().Float64Var(&goals.H, "ha", 0, "H-alpha goal (min)")
	setGoals.Flags().Float64Var(&goals.O, "o3", 0, "OIII goal (min)")
	cmd.AddCommand(setGoals)

	return cmd
}

func newQueueCmd(root *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Manage the downstream integration queue",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List queued targets in order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for i, name := range root.openQueue().Items() {
				fmt.Printf("%d. %s\n", i+1, name)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <target>",
		Short: "Queue a target for integration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			added, err := root.openQueue().Add(args[0])
			if err != nil {
				return err
			}
			if !added {
				fmt.Printf("%s already queued\n", args[0])
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <target>",
		Short: "Remove a target from the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.openQueue().Remove(args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "next",
		Short: "Show the next target due for integration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if name, ok := root.openQueue().Next(); ok {
				fmt.Println(name)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "defer <target>",
		Short: "Move a target to the back of the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.openQueue().Defer(args[0])
		},
	})

	return cmd
}

func newWatchCmd(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [directory]",
		Short: "Watch the capture tree and catalog new exposures as they settle",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := root.cfg.Paths.CaptureRoot
			if len(args) > 0 {
				dir = args[0]
			}
			settle := time.Duration(root.cfg.Watch.SettleSeconds) * time.Second
			w, err := watch.New(dir, settle, func(path string) {
				if err := catalog.ScanFile(path, root.store, root.log); err != nil {
					root.log.Warn("cannot catalog new exposure", "path", path, "error", err)
				}
			}, root.log)
			if err != nil {
				return err
			}
			return w.Run(cmd.Context())
		},
	}
}

func newServeCmd(root *Root) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only status API and progress websocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = root.cfg.Web.Addr
			}
			srv := web.NewServer(addr, root.store, root.openQueue(), root.log)
			return srv.ListenAndServe(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}

func newConfigCmd(root *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or initialize configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the active configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(root.cfg)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the active configuration to disk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.Save(root.cfg)
			if err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	})

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("nebulapilot %s\n", Version)
		},
	}
}
