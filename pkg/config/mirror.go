package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ghodss/yaml"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"

	"github.com/sidkik/drivesync/pkg/errors"
	"github.com/sidkik/drivesync/pkg/retry"
)

const (
	// DefaultConfigPath is where the mirror config is read from when no
	// path is given on the command line.
	DefaultConfigPath = "~/.drivesync.yaml"

	// InitialMirrorConfigVersion is the first version of the mirror config.
	// Config files that do not specify a version default to this version.
	InitialMirrorConfigVersion = "v1alpha1"

	// SupportedMirrorConfigVersion is the version understood by this binary.
	SupportedMirrorConfigVersion = "v1alpha1"
)

// Source types.
const (
	SourceGDrive = "gdrive"
	SourceS3     = "s3"
)

// Defaults applied to fields the user left unset.
const (
	DefaultWorkers       = 8
	DefaultChunkSize     = 1 << 20
	DefaultMaxNameLength = 50
	DefaultLogFile       = "drivesync.log"
	DefaultLogMaxSizeMB  = 10
	DefaultLogMaxBackups = 3
	DefaultLogMaxAgeDays = 28
)

// Mirror describes which remote trees to mirror, where to put them, and how
// hard to try.
type Mirror struct {
	Version       string `json:"version,omitempty"`
	Source        Source `json:"source"`
	Roots         []Root `json:"roots"`
	Workers       int    `json:"workers,omitempty"`
	ChunkSize     int    `json:"chunkSize,omitempty"`
	MaxNameLength int    `json:"maxNameLength,omitempty"`
	Retry         Retry  `json:"retry,omitempty"`
	Log           Log    `json:"log,omitempty"`
	MetricsFile   string `json:"metricsFile,omitempty"`

	// Only populated and consumed by drivesync. Never set by user.
	path string
}

// Source selects and configures the remote backend.
type Source struct {
	Type        string `json:"type"`
	Credentials string `json:"credentials,omitempty"`

	// S3 only.
	Bucket    string `json:"bucket,omitempty"`
	Region    string `json:"region,omitempty"`
	Endpoint  string `json:"endpoint,omitempty"`
	PathStyle bool   `json:"pathStyle,omitempty"`

	// Static S3 keys are only read from the environment so that they never
	// end up in the config file.
	AccessKey string `json:"-"`
	SecretKey string `json:"-"`
}

// Root maps one remote folder onto one local directory.
type Root struct {
	ID          string `json:"id"`
	Destination string `json:"destination"`
}

// Retry overrides the default retry policy. Zero fields keep the default.
type Retry struct {
	Attempts   int      `json:"attempts,omitempty"`
	Multiplier Duration `json:"multiplier,omitempty"`
	MinDelay   Duration `json:"minDelay,omitempty"`
	MaxDelay   Duration `json:"maxDelay,omitempty"`
}

// Log configures the rotating log file.
type Log struct {
	File       string `json:"file,omitempty"`
	MaxSizeMB  int    `json:"maxSizeMB,omitempty"`
	MaxBackups int    `json:"maxBackups,omitempty"`
	MaxAgeDays int    `json:"maxAgeDays,omitempty"`
}

// Duration is a time.Duration that is written as a string such as "4s" in
// the config file.
type Duration struct {
	time.Duration
}

// UnmarshalJSON accepts either a duration string or a number of seconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		parsed, err := time.ParseDuration(str)
		if err != nil {
			return err
		}
		d.Duration = parsed
		return nil
	}

	var seconds float64
	if err := json.Unmarshal(b, &seconds); err != nil {
		return errors.New("duration must be a string like \"4s\" or a number of seconds")
	}
	d.Duration = time.Duration(seconds * float64(time.Second))
	return nil
}

// MarshalJSON writes the duration in its string form.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

// GetPath returns the filepath that the config was parsed from. A getter
// method is used rather than making the field public so that it can't get set
// by the yaml Unmarshalling.
func (c Mirror) GetPath() string {
	return c.path
}

// Policy merges the configured retry settings onto the default policy.
func (r Retry) Policy() retry.Policy {
	policy := retry.DefaultPolicy()
	if r.Attempts > 0 {
		policy.Attempts = r.Attempts
	}
	if r.Multiplier.Duration > 0 {
		policy.Multiplier = r.Multiplier.Duration
	}
	if r.MinDelay.Duration > 0 {
		policy.MinDelay = r.MinDelay.Duration
	}
	if r.MaxDelay.Duration > 0 {
		policy.MaxDelay = r.MaxDelay.Duration
	}
	return policy
}

// homedirExpand will be overridden in mock tests
var homedirExpand = homedir.Expand

// Load reads the mirror config at `path`, applies the environment overrides
// in `env`, and validates the result. An empty path means DefaultConfigPath.
func Load(path string, env map[string]string) (Mirror, error) {
	cfg, err := ParseMirror(path)
	if err != nil {
		return Mirror{}, err
	}

	if err := cfg.ApplyEnv(env); err != nil {
		return Mirror{}, errors.WithContext(err, "apply environment")
	}

	if err := cfg.Validate(); err != nil {
		return Mirror{}, err
	}
	return cfg, nil
}

// ParseMirror parses the config file at `path` and fills in defaults. It
// doesn't validate the result.
func ParseMirror(path string) (Mirror, error) {
	if path == "" {
		path = DefaultConfigPath
	}

	path, err := homedirExpand(path)
	if err != nil {
		return Mirror{}, errors.WithContext(err, "expand config path")
	}

	config := Mirror{
		Version: InitialMirrorConfigVersion,
		path:    path,
	}
	if err := readMirrorFile(path, &config); err != nil {
		if _, ok := err.(errors.FileNotFound); ok {
			return Mirror{}, errors.NewFriendlyError("The drivesync config "+
				"file doesn't exist at %q. Create it, or pass the path of an "+
				"existing config with --config.", path)
		}
		return Mirror{}, errors.WithContext(err, "parse")
	}

	config.setDefaults()

	// Evaluate relative paths relative to the config path.
	configDir := filepath.Dir(path)
	for i, root := range config.Roots {
		dest, err := config.resolve(configDir, root.Destination)
		if err != nil {
			return Mirror{}, errors.WithContext(err, "expand destination")
		}
		config.Roots[i].Destination = dest
	}

	for _, field := range []*string{&config.Source.Credentials, &config.Log.File, &config.MetricsFile} {
		resolved, err := config.resolve(configDir, *field)
		if err != nil {
			return Mirror{}, errors.WithContext(err, "expand path")
		}
		*field = resolved
	}
	return config, nil
}

// WriteMirror writes `cfg` to `path`, or DefaultConfigPath if `path` is
// empty, and returns the expanded path it wrote to.
func WriteMirror(cfg Mirror, path string) (string, error) {
	if path == "" {
		path = DefaultConfigPath
	}

	path, err := homedirExpand(path)
	if err != nil {
		return "", errors.WithContext(err, "expand config path")
	}

	cfg.Version = SupportedMirrorConfigVersion
	yamlBytes, err := yaml.Marshal(cfg)
	if err != nil {
		return "", errors.WithContext(err, "marshal")
	}

	if err := afero.WriteFile(fs, path, yamlBytes, 0600); err != nil {
		return "", errors.WithContext(err, "write")
	}
	return path, nil
}

// WithDefaults returns a copy of the config with unset fields defaulted.
func (c Mirror) WithDefaults() Mirror {
	c.setDefaults()
	return c
}

func (c *Mirror) setDefaults() {
	if c.Workers == 0 {
		c.Workers = DefaultWorkers
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.MaxNameLength == 0 {
		c.MaxNameLength = DefaultMaxNameLength
	}
	if c.Log.File == "" {
		c.Log.File = DefaultLogFile
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = DefaultLogMaxSizeMB
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = DefaultLogMaxBackups
	}
	if c.Log.MaxAgeDays == 0 {
		c.Log.MaxAgeDays = DefaultLogMaxAgeDays
	}
}

func (c Mirror) resolve(dir, path string) (string, error) {
	if path == "" {
		return "", nil
	}

	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", err
	}

	if !filepath.IsAbs(expanded) {
		expanded = filepath.Join(dir, expanded)
	}
	return filepath.Clean(expanded), nil
}

// Validate checks that the config describes something drivesync can run.
func (c Mirror) Validate() error {
	switch c.Source.Type {
	case SourceGDrive:
		if c.Source.Credentials == "" {
			return c.invalid("source.credentials is required for the %q source.", SourceGDrive)
		}
	case SourceS3:
		if c.Source.Bucket == "" {
			return c.invalid("source.bucket is required for the %q source.", SourceS3)
		}
	case "":
		return c.invalid("source.type is required. Use %q or %q.", SourceGDrive, SourceS3)
	default:
		return c.invalid("Unknown source type %q. Use %q or %q.",
			c.Source.Type, SourceGDrive, SourceS3)
	}

	if len(c.Roots) == 0 {
		return c.invalid("At least one root is required.")
	}

	for i, root := range c.Roots {
		// S3 roots may be empty to mirror the whole bucket.
		if root.ID == "" && c.Source.Type == SourceGDrive {
			return c.invalid("roots[%d].id is required.", i)
		}
		if root.Destination == "" {
			return c.invalid("roots[%d].destination is required.", i)
		}
		for j, other := range c.Roots[:i] {
			dest, otherDest := filepath.Clean(root.Destination), filepath.Clean(other.Destination)
			switch {
			case dest == otherDest:
				return c.invalid("roots[%d] reuses the destination %q.", i, root.Destination)
			case isWithin(otherDest, dest):
				return c.invalid("roots[%d].destination %q is inside the destination of roots[%d] (%q).",
					i, root.Destination, j, other.Destination)
			case isWithin(dest, otherDest):
				return c.invalid("roots[%d].destination %q contains the destination of roots[%d] (%q).",
					i, root.Destination, j, other.Destination)
			}
		}
	}

	if c.Workers < 1 {
		return c.invalid("workers must be at least 1, got %d.", c.Workers)
	}
	if c.ChunkSize < 1 {
		return c.invalid("chunkSize must be positive, got %d.", c.ChunkSize)
	}
	if c.MaxNameLength < 1 {
		return c.invalid("maxNameLength must be positive, got %d.", c.MaxNameLength)
	}
	if c.Retry.Attempts < 0 {
		return c.invalid("retry.attempts must not be negative, got %d.", c.Retry.Attempts)
	}

	policy := c.Retry.Policy()
	if policy.MinDelay > policy.MaxDelay {
		return c.invalid("retry.minDelay (%s) is larger than retry.maxDelay (%s).",
			policy.MinDelay, policy.MaxDelay)
	}
	return nil
}

func (c Mirror) invalid(format string, args ...interface{}) error {
	if c.path == "" {
		return errors.NewFriendlyError("Invalid config: "+format, args...)
	}
	return errors.NewFriendlyError("Invalid config %q: "+format,
		append([]interface{}{c.path}, args...)...)
}

// isWithin returns whether `path` is strictly below the directory `dir`.
func isWithin(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// mirrorSyntaxErrTemplate is shown when the config file isn't valid YAML, or
// doesn't have the shape of a mirror config. The parser's errors don't say
// which field was wrong, so its message is passed on verbatim.
const mirrorSyntaxErrTemplate = "The mirror config %q could not be parsed.\n" +
	"Check that:\n" +
	" - `roots` is a list of entries with an `id` and a `destination`\n" +
	" - durations under `retry` are strings like \"4s\" or numbers of seconds\n" +
	" - S3 keys are set through the environment, not the file\n" +
	" - there are no fields other than the documented ones\n\n" +
	"The parser reported:\n" +
	"%s"

type versionMismatchError struct {
	path, found string
}

func (err versionMismatchError) Error() string {
	return err.FriendlyMessage()
}

func (err versionMismatchError) FriendlyMessage() string {
	return fmt.Sprintf("The mirror config %q has version %q, but this "+
		"drivesync only reads version %q.\n"+
		"Run `drivesync config` to write a new one.",
		err.path, err.found, SupportedMirrorConfigVersion)
}

// readMirrorFile fills `config` from the file at `path`. The version is
// checked before unknown fields, so a file from a newer release reports the
// version mismatch rather than the fields this release doesn't know.
func readMirrorFile(path string, config *Mirror) error {
	contents, err := afero.ReadFile(fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return errors.FileNotFound{Path: path}
		}
		return errors.WithContext(err, "read file")
	}

	if err := yaml.Unmarshal(contents, config); err != nil {
		return errors.NewFriendlyError(mirrorSyntaxErrTemplate, path, err)
	}

	if config.Version != SupportedMirrorConfigVersion {
		return versionMismatchError{path: path, found: config.Version}
	}

	if err := yaml.UnmarshalStrict(contents, config, yaml.DisallowUnknownFields); err != nil {
		return errors.NewFriendlyError(mirrorSyntaxErrTemplate, path, err)
	}
	return nil
}
