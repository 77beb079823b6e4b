package sync

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logrusTest "github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/drivesync/pkg/retry"
)

var modTime = time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)

// fastExecutor retries transient errors up to three times without any
// meaningful waiting.
func fastExecutor(logger logrus.FieldLogger) *retry.Executor {
	executor := retry.NewExecutor(retry.Policy{
		Attempts:   3,
		Multiplier: time.Millisecond,
		MaxDelay:   time.Millisecond,
	}, logger)
	return executor
}

func nullLogger() *logrus.Logger {
	logger, _ := logrusTest.NewNullLogger()
	return logger
}

func readFile(t *testing.T, path string) string {
	contents, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	return string(contents)
}

func assertNotExists(t *testing.T, path string) {
	exists, err := afero.Exists(fs, path)
	assert.NoError(t, err)
	assert.False(t, exists, path)
}

func assertExists(t *testing.T, path string) {
	exists, err := afero.Exists(fs, path)
	assert.NoError(t, err)
	assert.True(t, exists, path)
}
