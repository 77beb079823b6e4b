package config

import (
	"os"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/drivesync/pkg/errors"
)

func mockEnviron(t *testing.T, vars ...string) {
	environ = func() []string { return vars }
	t.Cleanup(func() {
		environ = os.Environ
	})
}

func TestLoadEnv(t *testing.T) {
	mockConfigPath(t)
	mockEnviron(t, "DRIVESYNC_WORKERS=2", "HOME=/home/me", "MALFORMED")

	dotenv := "DRIVESYNC_WORKERS=16\n" +
		"# comment\n" +
		"DRIVESYNC_CREDENTIALS=/etc/drivesync/creds.json\n"
	require.NoError(t, afero.WriteFile(fs, DotEnvPath, []byte(dotenv), 0600))

	env, err := LoadEnv(DotEnvPath)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"DRIVESYNC_WORKERS":     "2",
		"DRIVESYNC_CREDENTIALS": "/etc/drivesync/creds.json",
		"HOME":                  "/home/me",
	}, env)
}

func TestLoadEnvMissingFile(t *testing.T) {
	mockConfigPath(t)
	mockEnviron(t, "DRIVESYNC_LOG_VERBOSE=true")

	env, err := LoadEnv(DotEnvPath)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"DRIVESYNC_LOG_VERBOSE": "true"}, env)
	assert.True(t, Verbose(env))
	assert.False(t, Verbose(map[string]string{}))
}

func TestApplyEnv(t *testing.T) {
	cfg := Mirror{Workers: DefaultWorkers}
	err := cfg.ApplyEnv(map[string]string{
		WorkersEnvKey:     "3",
		CredentialsEnvKey: "/creds.json",
		MetricsFileEnvKey: "/metrics.prom",
		S3AccessKeyEnvKey: "AKID",
		S3SecretKeyEnvKey: "secret",
	})
	require.NoError(t, err)
	assert.Equal(t, Mirror{
		Workers: 3,
		Source: Source{
			Credentials: "/creds.json",
			AccessKey:   "AKID",
			SecretKey:   "secret",
		},
		MetricsFile: "/metrics.prom",
	}, cfg)

	err = cfg.ApplyEnv(map[string]string{WorkersEnvKey: "many"})
	msg, ok := errors.GetFriendlyMessage(err)
	assert.True(t, ok)
	assert.Contains(t, msg, WorkersEnvKey)
	assert.Equal(t, 3, cfg.Workers)
}

func TestLoad(t *testing.T) {
	mockConfigPath(t)
	input := `
source:
  type: gdrive
roots:
- id: reports
  destination: backup
`
	require.NoError(t, afero.WriteFile(fs, testConfigPath, []byte(input), 0644))

	// The credentials only come from the environment.
	_, err := Load("", map[string]string{})
	msg, ok := errors.GetFriendlyMessage(err)
	assert.True(t, ok)
	assert.Contains(t, msg, "source.credentials is required")

	cfg, err := Load("", map[string]string{
		CredentialsEnvKey: "/creds.json",
		WorkersEnvKey:     "4",
	})
	require.NoError(t, err)
	assert.Equal(t, "/creds.json", cfg.Source.Credentials)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "/home/me/backup", cfg.Roots[0].Destination)

	_, err = Load("", map[string]string{WorkersEnvKey: "0", CredentialsEnvKey: "/c"})
	msg, ok = errors.GetFriendlyMessage(err)
	assert.True(t, ok)
	assert.Contains(t, msg, "workers must be at least 1")
}
