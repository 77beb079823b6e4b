package cmd

import (
	"os"
	"strconv"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/drivesync/cmd/bugtool"
	configCmd "github.com/sidkik/drivesync/cmd/config"
	"github.com/sidkik/drivesync/cmd/relocate"
	syncCmd "github.com/sidkik/drivesync/cmd/sync"
	"github.com/sidkik/drivesync/cmd/util"
	"github.com/sidkik/drivesync/cmd/version"
	"github.com/sidkik/drivesync/pkg/config"
)

// Execute runs the main CLI process.
func Execute() {
	// Debug events are logged, rather than just Info and above, when the
	// variable is set to `true`. The config file isn't loaded yet, so only
	// the process environment is consulted here.
	if verbose, _ := strconv.ParseBool(os.Getenv(config.VerboseEnvKey)); verbose {
		log.SetLevel(log.DebugLevel)
	}

	rootCmd := &cobra.Command{
		Use:          "drivesync",
		Short:        "Incrementally mirror remote folders onto the local disk",
		SilenceUsage: true,

		// The call to rootCmd.Execute prints the error, so we silence errors
		// here to avoid double printing.
		SilenceErrors: true,
	}
	rootCmd.AddCommand(
		bugtool.New(),
		configCmd.New(),
		relocate.New(),
		syncCmd.New(),
		version.New(),
	)

	if err := rootCmd.Execute(); err != nil {
		util.HandleFatalError(err)
	}
}
