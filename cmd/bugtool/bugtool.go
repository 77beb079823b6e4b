package bugtool

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ghodss/yaml"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/sidkik/drivesync/cmd/util"
	"github.com/sidkik/drivesync/pkg/config"
	"github.com/sidkik/drivesync/pkg/errors"
	mirror "github.com/sidkik/drivesync/pkg/sync"
	"github.com/sidkik/drivesync/pkg/version"
)

// Mocked for unit testing.
var (
	fs                          = afero.NewOsFs()
	stdout            io.Writer = os.Stdout
	parseMirrorConfig           = config.ParseMirror
)

// New creates a new `bug-tool` command.
func New() *cobra.Command {
	var out, configPath string
	cmd := &cobra.Command{
		Use:   "bug-tool",
		Short: "Generate an archive for drivesync debugging",
		Run:   func(_ *cobra.Command, _ []string) { main(configPath, out) },
	}
	cmd.Flags().StringVar(&out, "out", "", "path for archive")
	cmd.Flags().StringVar(&configPath, "config", config.DefaultConfigPath,
		"Path to the drivesync config.")
	return cmd
}

func main(configPath, out string) {
	tmpdir, err := afero.TempDir(fs, "", "drivesync-bug-tool")
	if err != nil {
		err = errors.NewFriendlyError("Failed to create out directory:\n%s", err)
		util.HandleFatalError(err)
	}

	// Wrap defer in a function to handle errors from fs.RemoveAll().
	defer func() {
		err := fs.RemoveAll(tmpdir)
		if err != nil {
			util.HandleFatalError(err)
		}
	}()

	setupInfo(tmpdir, configPath)

	if out == "" {
		out = fmt.Sprintf("drivesync-bug-info-%s.tar.gz",
			time.Now().Format("Jan_02_2006-15-04-05"))
	}
	if err := tarDirectory(tmpdir, out); err != nil {
		err = errors.NewFriendlyError("Failed to tar:\n%s", err)
		util.HandleFatalError(err)
	}

	msg := `Created bug information archive at '%s'.
You may want to edit the archive before sharing it, since file names can be
sensitive. The archive contains:
 * The drivesync logs, including rotated ones.
 * The drivesync config, without S3 keys.
 * For each root, the number of mirrored files, and any files that are
   missing metadata or were left half-downloaded.
 * The version of drivesync.
`
	fmt.Fprintf(stdout, msg, out)
}

func setupInfo(root, configPath string) {
	if err := setupVersion(root); err != nil {
		log.WithError(err).Warn("Failed to setup version info")
	}

	cfg, err := parseMirrorConfig(configPath)
	if err != nil {
		log.WithError(err).Error("Failed to parse config")
		return
	}

	if err := setupConfig(root, cfg); err != nil {
		log.WithError(err).Warn("Failed to setup config")
	}

	if err := setupCLILogs(root, cfg.Log); err != nil {
		log.WithError(err).Warn("Failed to setup CLI logs")
	}

	inventoryDir := filepath.Join(root, "inventory")
	if err := fs.MkdirAll(inventoryDir, 0755); err != nil {
		log.WithError(err).Warn("Failed to create inventory directory")
		return
	}
	for i, r := range cfg.Roots {
		path := filepath.Join(inventoryDir, fmt.Sprintf("root-%d.yaml", i))
		if err := setupInventory(path, r); err != nil {
			log.WithError(err).WithField("root", r.ID).Warn("Failed to setup inventory")
		}
	}
}

// setupCLILogs copies the log file and the backups rotated out of it.
func setupCLILogs(root string, cfg config.Log) error {
	if cfg.File == "" {
		return errors.New("no log file defined in config")
	}

	paths := []string{cfg.File}
	ext := filepath.Ext(cfg.File)
	backups, err := afero.Glob(fs, strings.TrimSuffix(cfg.File, ext)+"-*"+ext+"*")
	if err != nil {
		return errors.WithContext(err, "find rotated logs")
	}
	paths = append(paths, backups...)

	outDir := filepath.Join(root, "logs")
	if err := fs.MkdirAll(outDir, 0755); err != nil {
		return errors.WithContext(err, "mkdir")
	}

	for _, path := range paths {
		if err := copyFile(path, filepath.Join(outDir, filepath.Base(path))); err != nil {
			return errors.WithContext(err, "copy log")
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := fs.Create(dst)
	if err != nil {
		return errors.WithContext(err, "open destination")
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return errors.WithContext(err, "copy")
	}
	return nil
}

func setupConfig(root string, cfg config.Mirror) error {
	// The S3 keys are never marshalled.
	cfgBytes, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.WithContext(err, "marshal")
	}

	if err := afero.WriteFile(fs, filepath.Join(root, "config.yaml"), cfgBytes, 0644); err != nil {
		return errors.WithContext(err, "write")
	}
	return nil
}

type inventory struct {
	ID          string `json:"id"`
	Destination string `json:"destination"`
	Files       int    `json:"files"`
	Sidecars    int    `json:"sidecars"`

	// Files without a sidecar are downloaded again on the next run.
	MissingSidecar []string `json:"missingSidecar,omitempty"`

	// Partial files are left behind by downloads that were interrupted.
	Partials []string `json:"partials,omitempty"`
}

func setupInventory(path string, r config.Root) error {
	inv := inventory{ID: r.ID, Destination: r.Destination}
	sidecars := map[string]bool{}
	var artifacts []string

	err := afero.Walk(fs, r.Destination, func(file string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !fi.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(r.Destination, file)
		if err != nil {
			return err
		}

		switch {
		case strings.HasSuffix(rel, mirror.PartialSuffix):
			inv.Partials = append(inv.Partials, rel)
		case strings.HasSuffix(rel, mirror.SidecarSuffix):
			sidecars[rel] = true
		default:
			artifacts = append(artifacts, rel)
		}
		return nil
	})
	if err != nil {
		return errors.WithContext(err, "walk destination")
	}

	inv.Files = len(artifacts)
	inv.Sidecars = len(sidecars)
	for _, artifact := range artifacts {
		if !sidecars[artifact+mirror.SidecarSuffix] {
			inv.MissingSidecar = append(inv.MissingSidecar, artifact)
		}
	}
	sort.Strings(inv.MissingSidecar)
	sort.Strings(inv.Partials)

	invBytes, err := yaml.Marshal(inv)
	if err != nil {
		return errors.WithContext(err, "marshal")
	}

	if err := afero.WriteFile(fs, path, invBytes, 0644); err != nil {
		return errors.WithContext(err, "write")
	}
	return nil
}

func setupVersion(root string) error {
	contents := fmt.Sprintf("drivesync version: %s\n", version.Version)
	if err := afero.WriteFile(fs, filepath.Join(root, "version"), []byte(contents), 0644); err != nil {
		return errors.WithContext(err, "write")
	}
	return nil
}

func tarDirectory(src, outPath string) error {
	out, err := fs.Create(outPath)
	if err != nil {
		return errors.WithContext(err, "open destination")
	}
	defer out.Close()

	gzw := gzip.NewWriter(out)
	defer gzw.Close()

	tw := tar.NewWriter(gzw)
	defer tw.Close()

	return afero.Walk(fs, src, func(file string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		header, err := tar.FileInfoHeader(fi, fi.Name())
		if err != nil {
			return errors.WithContext(err, fmt.Sprintf("make header %s", file))
		}

		relPath, err := filepath.Rel(src, file)
		if err != nil {
			return errors.WithContext(err, fmt.Sprintf("get relative path of %s to %s", file, src))
		}

		header.Name = filepath.Join("drivesync-bug-info", relPath)
		if err := tw.WriteHeader(header); err != nil {
			return errors.WithContext(err, fmt.Sprintf("write %s header", file))
		}

		// Only write contents if it's a file (i.e. not a directory).
		if !fi.Mode().IsRegular() {
			return nil
		}

		f, err := fs.Open(file)
		if err != nil {
			return errors.WithContext(err, fmt.Sprintf("open %s", file))
		}
		defer f.Close()

		if _, err := io.Copy(tw, f); err != nil {
			return errors.WithContext(err, fmt.Sprintf("copy %s", file))
		}
		return nil
	})
}
