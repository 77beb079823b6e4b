package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/sidkik/drivesync/pkg/errors"
)

// Environment variables that override the config file.
const (
	VerboseEnvKey     = "DRIVESYNC_LOG_VERBOSE"
	WorkersEnvKey     = "DRIVESYNC_WORKERS"
	CredentialsEnvKey = "DRIVESYNC_CREDENTIALS"
	MetricsFileEnvKey = "DRIVESYNC_METRICS_FILE"
	S3AccessKeyEnvKey = "DRIVESYNC_S3_ACCESS_KEY"
	S3SecretKeyEnvKey = "DRIVESYNC_S3_SECRET_KEY"
)

// DotEnvPath is the optional file of KEY=value pairs read before the process
// environment.
const DotEnvPath = ".env"

// environ will be overridden in mock tests
var environ = os.Environ

// LoadEnv returns the variables from the dotenv file at `path` overlaid with
// the process environment. Variables already set in the environment win, and
// a missing dotenv file is not an error.
func LoadEnv(path string) (map[string]string, error) {
	env := map[string]string{}

	f, err := fs.Open(path)
	switch {
	case err == nil:
		parsed, err := godotenv.Parse(f)
		f.Close()
		if err != nil {
			return nil, errors.WithContext(err, "parse "+path)
		}
		for k, v := range parsed {
			env[k] = v
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, errors.WithContext(err, "open "+path)
	}

	for _, kv := range environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env, nil
}

// ApplyEnv overrides config fields with the matching environment variables.
func (c *Mirror) ApplyEnv(env map[string]string) error {
	if workers, ok := env[WorkersEnvKey]; ok && workers != "" {
		n, err := strconv.Atoi(workers)
		if err != nil {
			return errors.NewFriendlyError("%s must be an integer, got %q.",
				WorkersEnvKey, workers)
		}
		c.Workers = n
	}

	if creds := env[CredentialsEnvKey]; creds != "" {
		c.Source.Credentials = creds
	}
	if metrics := env[MetricsFileEnvKey]; metrics != "" {
		c.MetricsFile = metrics
	}
	if key := env[S3AccessKeyEnvKey]; key != "" {
		c.Source.AccessKey = key
	}
	if secret := env[S3SecretKeyEnvKey]; secret != "" {
		c.Source.SecretKey = secret
	}
	return nil
}

// Verbose reports whether DRIVESYNC_LOG_VERBOSE asks for debug logging.
func Verbose(env map[string]string) bool {
	verbose, _ := strconv.ParseBool(env[VerboseEnvKey])
	return verbose
}
