package relocate

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/buger/goterm"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/drivesync/cmd/util"
	"github.com/sidkik/drivesync/pkg/config"
	"github.com/sidkik/drivesync/pkg/errors"
	"github.com/sidkik/drivesync/pkg/remote"
	"github.com/sidkik/drivesync/pkg/retry"
	mirror "github.com/sidkik/drivesync/pkg/sync"
)

// Mocked for unit testing.
var (
	stdout    io.Writer = os.Stdout
	newSource           = util.NewSource
)

// New creates a new `relocate` command.
func New() *cobra.Command {
	var configPath string
	var verbose bool
	cmd := &cobra.Command{
		Use:   "relocate",
		Short: "Move files from the old flat layout into their folders",
		Long: "Older releases wrote every file directly into the root's destination.\n" +
			"relocate lists the remote tree again and moves each of those files,\n" +
			"along with its metadata, to the folder it belongs in. Nothing is\n" +
			"downloaded, and files that already exist at the new path are left alone.",
		Run: func(_ *cobra.Command, _ []string) {
			cfg, logCloser, err := util.LoadConfig(configPath, verbose)
			if err != nil {
				util.HandleFatalError(err)
			}
			defer logCloser.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			source, err := newSource(ctx, cfg.Source)
			if err != nil {
				util.HandleFatalError(err)
			}

			if err := Relocate(ctx, cfg, source); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVar(&configPath, "config", config.DefaultConfigPath,
		"Path to the drivesync config.")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false,
		"Log debug messages.")
	return cmd
}

// Relocate runs the relocation for every root in `cfg` and prints how many
// files moved.
func Relocate(ctx context.Context, cfg config.Mirror, source remote.Source) error {
	logger := log.WithField("run", uuid.New().String())
	relocator := mirror.Relocator{
		Source:        source,
		Retry:         retry.NewExecutor(cfg.Retry.Policy(), logger),
		Exports:       mirror.DefaultExportTable(),
		MaxNameLength: cfg.MaxNameLength,
		Log:           logger,
	}

	var failed int
	for _, root := range cfg.Roots {
		stats, err := relocator.Relocate(ctx, mirror.Root{ID: root.ID, Destination: root.Destination})
		if err != nil {
			failed++
			logger.WithError(err).WithField("root", root.ID).Error("Failed to relocate root")
			fmt.Fprintf(stdout, "%s -> %s: %s\n", root.ID, root.Destination,
				goterm.Color("failed", goterm.RED))
			continue
		}

		fmt.Fprintf(stdout, "%s -> %s: moved %d, left %d in place\n",
			root.ID, root.Destination, stats.Moved, stats.Ignored)
	}

	if failed > 0 {
		return errors.NewFriendlyError("Failed to relocate %d of %d roots. "+
			"See the log for details.", failed, len(cfg.Roots))
	}
	return nil
}
