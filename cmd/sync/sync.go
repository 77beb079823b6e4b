package sync

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/drivesync/cmd/util"
	"github.com/sidkik/drivesync/pkg/config"
	"github.com/sidkik/drivesync/pkg/errors"
	"github.com/sidkik/drivesync/pkg/progress"
	"github.com/sidkik/drivesync/pkg/remote"
	"github.com/sidkik/drivesync/pkg/retry"
	mirror "github.com/sidkik/drivesync/pkg/sync"
)

// Mocked for unit testing.
var (
	stdout    io.Writer = os.Stdout
	newSource           = util.NewSource
)

type options struct {
	configPath string
	workers    int
	noProgress bool
	verbose    bool
}

// New creates a new `sync` command.
func New() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Mirror every configured root into its local destination",
		Long: "Mirror every configured root into its local destination.\n\n" +
			"Files that are unchanged since the last run are skipped. Files that\n" +
			"fail are reported in the summary and retried on the next run.",
		Run: func(_ *cobra.Command, _ []string) {
			if err := run(opts); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVar(&opts.configPath, "config", config.DefaultConfigPath,
		"Path to the drivesync config.")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 0,
		"Number of concurrent downloads. Overrides the config.")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false,
		"Don't print the live progress line.")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false,
		"Log debug messages, including every downloaded chunk.")
	return cmd
}

func run(opts options) error {
	if opts.workers < 0 {
		return errors.NewFriendlyError("--workers must be positive, got %d.", opts.workers)
	}

	cfg, logCloser, err := util.LoadConfig(opts.configPath, opts.verbose)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	if opts.workers > 0 {
		cfg.Workers = opts.workers
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source, err := newSource(ctx, cfg.Source)
	if err != nil {
		return err
	}
	return Mirror(ctx, cfg, source, !opts.noProgress)
}

// Mirror syncs every root in `cfg` from `source`, prints the summary, and
// writes the metrics file if one is configured. Files that fail don't make
// Mirror return an error. Only roots that couldn't be synced at all do.
func Mirror(ctx context.Context, cfg config.Mirror, source remote.Source, showProgress bool) error {
	logger := log.WithField("run", uuid.New().String())

	var metrics *progress.Metrics
	if cfg.MetricsFile != "" {
		metrics = progress.NewMetrics()
	}
	reporter := progress.NewReporter(stdout, metrics)

	syncer := mirror.Syncer{
		Source:        source,
		Retry:         retry.NewExecutor(cfg.Retry.Policy(), logger),
		Reporter:      reporter,
		Exports:       mirror.DefaultExportTable(),
		Workers:       cfg.Workers,
		ChunkSize:     cfg.ChunkSize,
		MaxNameLength: cfg.MaxNameLength,
		ShowProgress:  showProgress,
		Log:           logger,
	}

	var roots []mirror.Root
	for _, root := range cfg.Roots {
		roots = append(roots, mirror.Root{ID: root.ID, Destination: root.Destination})
	}

	logger.WithFields(log.Fields{
		"source":  cfg.Source.Type,
		"roots":   len(roots),
		"workers": cfg.Workers,
	}).Info("Starting sync")

	start := time.Now()
	runErr := syncer.Run(ctx, roots)
	reporter.PrintSummary(stdout)

	counters := reporter.Snapshot()
	logger.WithFields(log.Fields{
		"total":      counters.Total,
		"downloaded": counters.Downloaded,
		"skipped":    counters.Skipped,
		"failed":     counters.Failed,
		"bytes":      reporter.Bytes(),
		"elapsed":    time.Since(start).Round(time.Millisecond).String(),
	}).Info("Sync finished")

	if metrics != nil {
		metrics.Finish()
		if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.WithError(err).WithField("path", cfg.MetricsFile).
				Warn("Failed to write metrics file")
		}
	}
	return runErr
}
