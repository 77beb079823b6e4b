package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/drivesync/cmd/util"
	"github.com/sidkik/drivesync/pkg/config"
	"github.com/sidkik/drivesync/pkg/errors"
)

// Mocked for unit testing.
var (
	stdout              io.Writer = os.Stdout
	stdin               io.Reader = os.Stdin
	parseMirrorConfig             = config.ParseMirror
	writeMirrorConfig             = config.WriteMirror
	getWorkingDirectory           = os.Getwd
)

type options struct {
	path        string
	sourceType  string
	credentials string
	bucket      string
	rootID      string
	destination string
}

// New creates a new `config` command.
func New() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create or update the drivesync configuration",
		Long: "Interactively create the drivesync configuration. Flags that are\n" +
			"set skip the matching prompt. If the config already has a root with\n" +
			"the chosen id, its destination is replaced.",
		Run: func(_ *cobra.Command, _ []string) {
			if err := SetupConfig(opts); err != nil {
				err = errors.NewFriendlyError("Failed to setup configuration:\n%s", err)
				util.HandleFatalError(err)
			}
		},
	}
	cmd.PersistentFlags().StringVar(&opts.path, "config", config.DefaultConfigPath,
		"Path to the drivesync config.")
	cmd.Flags().StringVar(&opts.sourceType, "source", "",
		"Set the source type (gdrive or s3). "+
			"Optional: If not set, `drivesync config` will interactively prompt.")
	cmd.Flags().StringVar(&opts.credentials, "credentials", "",
		"Set the path to the credentials file. "+
			"Optional: If not set, `drivesync config` will interactively prompt.")
	cmd.Flags().StringVar(&opts.bucket, "bucket", "",
		"Set the S3 bucket. Only used by the s3 source.")
	cmd.Flags().StringVar(&opts.rootID, "root", "",
		"Set the id of the remote folder to mirror. "+
			"Optional: If not set, `drivesync config` will interactively prompt.")
	cmd.Flags().StringVar(&opts.destination, "destination", "",
		"Set the local directory the root is mirrored into. "+
			"Optional: If not set, `drivesync config` will interactively prompt.")

	// Setup the commands for querying the contents of the config.
	type getterSpec struct {
		use, short string
		fn         func(config.Mirror) string
	}

	getters := []getterSpec{
		{
			use:   "get-source",
			short: "Get the configured source type",
			fn:    func(cfg config.Mirror) string { return cfg.Source.Type },
		},
		{
			use:   "get-roots",
			short: "Get the configured roots, one `id -> destination` per line",
			fn: func(cfg config.Mirror) string {
				var lines []string
				for _, root := range cfg.Roots {
					lines = append(lines, fmt.Sprintf("%s -> %s", root.ID, root.Destination))
				}
				return strings.Join(lines, "\n")
			},
		},
	}
	for _, getter := range getters {
		getter := getter
		cmd.AddCommand(&cobra.Command{
			Use:   getter.use,
			Short: getter.short,
			Run: func(_ *cobra.Command, _ []string) {
				cfg, err := parseMirrorConfig(opts.path)
				if err != nil {
					err = errors.WithContext(err, "read config")
					util.HandleFatalError(err)
				}

				fmt.Fprintln(stdout, getter.fn(cfg))
			},
		})
	}

	return cmd
}

// SetupConfig prompts for whatever `opts` leaves unset and writes the result.
func SetupConfig(opts options) error {
	cfg, err := generateConfig(opts)
	if err != nil {
		return errors.WithContext(err, "generate config")
	}

	if err := cfg.WithDefaults().Validate(); err != nil {
		return err
	}

	path, err := writeMirrorConfig(cfg, opts.path)
	if err != nil {
		return errors.WithContext(err, "write config")
	}

	fmt.Fprintf(stdout, "Wrote config to %s\n", path)
	return nil
}

func sourceTypeValidationFn(sourceType string) (string, bool) {
	if sourceType == config.SourceGDrive || sourceType == config.SourceS3 {
		return "", true
	}
	return fmt.Sprintf("The source must be either %q or %q.",
		config.SourceGDrive, config.SourceS3), false
}

func nonEmptyValidationFn(resp string) (string, bool) {
	if strings.TrimSpace(resp) == "" {
		return "This field is required.", false
	}
	return "", true
}

type prompt struct {
	helpString, prompt, defaultAnswer, currAnswer string
	field                                         *string
	validationFn                                  func(string) (string, bool)
}

// generateConfig interacts with the user to decide what the desired
// configuration is. Settings that aren't prompted for are kept from the
// current config.
func generateConfig(opts options) (config.Mirror, error) {
	cfg, err := parseMirrorConfig(opts.path)
	if err != nil {
		log.WithError(err).Debug("Failed to read current config")
		cfg = config.Mirror{}
	}
	curr := cfg

	cfg.Source.Type = opts.sourceType
	cfg.Source.Credentials = opts.credentials
	cfg.Source.Bucket = opts.bucket
	root := config.Root{ID: opts.rootID, Destination: opts.destination}

	var prompts []prompt
	if opts.sourceType == "" {
		prompts = append(prompts, prompt{
			helpString:    "Enter the type of remote to mirror.",
			prompt:        "Source type (gdrive or s3)",
			defaultAnswer: config.SourceGDrive,
			currAnswer:    curr.Source.Type,
			field:         &cfg.Source.Type,
			validationFn:  sourceTypeValidationFn,
		})
	}

	if opts.credentials == "" {
		prompts = append(prompts, prompt{
			helpString: "Enter the path to the credentials file.\n" +
				"For gdrive this is a service account key. For s3 it's a shared\n" +
				"AWS credentials file, and may be left empty to use the default chain.",
			prompt:     "Credentials file",
			currAnswer: curr.Source.Credentials,
			field:      &cfg.Source.Credentials,
		})
	}

	if opts.rootID == "" {
		prompts = append(prompts, prompt{
			helpString: "Enter the id of the remote folder to mirror.\n" +
				"For gdrive this is the folder id. For s3 it's a key prefix.",
			prompt:       "Root id",
			currAnswer:   firstRoot(curr).ID,
			field:        &root.ID,
			validationFn: nonEmptyValidationFn,
		})
	}

	if opts.destination == "" {
		var defaultDest string
		if wd, err := getWorkingDirectory(); err == nil {
			defaultDest = filepath.Join(wd, "drivesync")
		} else {
			log.WithError(err).Info("Failed to guess destination")
		}

		prompts = append(prompts, prompt{
			helpString:    "Enter the local directory to mirror the root into.",
			prompt:        "Destination",
			defaultAnswer: defaultDest,
			currAnswer:    firstRoot(curr).Destination,
			field:         &root.Destination,
			validationFn:  nonEmptyValidationFn,
		})
	}

	in := newReader()
	for _, prompt := range prompts {
		var resp string
		for {
			resp, err = promptUser(in, prompt.helpString, prompt.prompt,
				prompt.defaultAnswer, prompt.currAnswer)
			if err != nil {
				return config.Mirror{}, errors.WithContext(err, "read response")
			}

			if prompt.validationFn == nil {
				break
			}

			validationErr, ok := prompt.validationFn(resp)
			if ok {
				break
			}

			fmt.Fprintln(stdout, validationErr)
		}

		*prompt.field = resp
	}

	// The S3 bucket is only asked for when it's needed.
	if cfg.Source.Type == config.SourceS3 && cfg.Source.Bucket == "" {
		cfg.Source.Bucket, err = promptUser(in, "Enter the name of the S3 bucket.",
			"Bucket", "", curr.Source.Bucket)
		if err != nil {
			return config.Mirror{}, errors.WithContext(err, "read response")
		}
	}

	cfg.Roots = upsertRoot(cfg.Roots, root)
	return cfg, nil
}

func firstRoot(cfg config.Mirror) config.Root {
	if len(cfg.Roots) == 0 {
		return config.Root{}
	}
	return cfg.Roots[0]
}

// upsertRoot replaces the root with the same id, or appends it.
func upsertRoot(roots []config.Root, root config.Root) []config.Root {
	for i, existing := range roots {
		if existing.ID == root.ID {
			roots[i] = root
			return roots
		}
	}
	return append(roots, root)
}

func newReader() *bufio.Reader {
	return bufio.NewReader(stdin)
}

func promptUser(stdinReader *bufio.Reader, helpString, prompt, defaultAnswer,
	currAnswer string) (string, error) {
	// Display a new line at the end to separate different fields to make it
	// look clearer.
	defer fmt.Fprintln(stdout)

	options := []string{}
	if defaultAnswer != "" {
		options = append(options, defaultAnswer)
	}
	if currAnswer != "" && currAnswer != defaultAnswer {
		options = append(options, currAnswer)
	}
	options = append(options, "(Enter manually)")

	fmt.Fprintln(stdout, helpString+"\n"+prompt+":")

	if nOptions := len(options); nOptions > 1 {
		fmt.Fprintln(stdout)
		for i, option := range options {
			if i == 0 {
				option = fmt.Sprintf("%s (recommended)", option)
			}
			fmt.Fprintf(stdout, "\t%d. %s\n", i+1, option)
		}
		fmt.Fprintln(stdout)

		for {
			fmt.Fprintf(stdout, "Please choose one [1-%d]: ", nOptions)
			choiceStr, err := stdinReader.ReadString('\n')
			if err != nil {
				return "", err
			}

			var choice int
			choiceStr = strings.TrimSpace(choiceStr)

			// Default to the first choice if user doesn't enter anything.
			if choiceStr == "" {
				choice = 1
			} else {
				choice, err = strconv.Atoi(choiceStr)
				if err != nil || choice < 1 || choice > nOptions {
					continue
				}
			}

			if choice == nOptions {
				break
			}

			return options[choice-1], nil
		}
	}

	fmt.Fprint(stdout, "Please enter manually: ")
	resp, err := stdinReader.ReadString('\n')
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(resp), nil
}
