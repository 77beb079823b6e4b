package progress

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordConcurrently(t *testing.T) {
	reporter := NewReporter(&bytes.Buffer{}, nil)

	const files = 300
	reporter.AddTotal(files)

	var wg sync.WaitGroup
	for i := 0; i < files; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reporter.Record(Outcome(i%3), 10)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, Counters{
		Total:      files,
		Downloaded: files / 3,
		Skipped:    files / 3,
		Failed:     files / 3,
	}, reporter.Snapshot())
	assert.Equal(t, int64(files*10), reporter.Bytes())
	assert.Equal(t, files, reporter.Snapshot().Done())
}

func TestRootSummaries(t *testing.T) {
	clock := clockwork.NewFakeClock()
	reporter := NewReporter(&bytes.Buffer{}, nil)
	reporter.clock = clock

	reporter.BeginRoot("first", "/mirror/first")
	reporter.AddTotal(2)
	reporter.Record(Downloaded, 100)
	reporter.Record(Skipped, 0)
	clock.Advance(2 * time.Second)
	first := reporter.EndRoot(0)

	reporter.BeginRoot("second", "/mirror/second")
	reporter.AddTotal(1)
	reporter.Record(Failed, 0)
	second := reporter.EndRoot(1)

	assert.Equal(t, RootSummary{
		ID:          "first",
		Destination: "/mirror/first",
		Counters:    Counters{Total: 2, Downloaded: 1, Skipped: 1},
		Bytes:       100,
		Elapsed:     2 * time.Second,
	}, first)
	assert.Equal(t, RootSummary{
		ID:            "second",
		Destination:   "/mirror/second",
		Counters:      Counters{Total: 1, Failed: 1},
		FailedFolders: 1,
	}, second)
	assert.Equal(t, []RootSummary{first, second}, reporter.Roots())

	var out bytes.Buffer
	reporter.PrintSummary(&out)
	assert.Contains(t, out.String(), "first -> /mirror/first")
	assert.Contains(t, out.String(), "downloaded 1 (100 B), skipped 1, failed 0")
	assert.Contains(t, out.String(), "1 folders unreadable")
	assert.Contains(t, out.String(), "Total 3, downloaded 1, skipped 1, failed 1.")
}

func TestEndRootWithoutBegin(t *testing.T) {
	reporter := NewReporter(&bytes.Buffer{}, nil)
	assert.Equal(t, RootSummary{}, reporter.EndRoot(3))
	assert.Empty(t, reporter.Roots())
}

func TestPrintProgress(t *testing.T) {
	var out bytes.Buffer
	reporter := NewReporter(&out, nil)
	reporter.AddTotal(4)
	reporter.Record(Downloaded, 1)
	reporter.Record(Skipped, 0)

	reporter.PrintProgress()
	line := out.String()
	assert.True(t, strings.HasPrefix(line, "\r[drivesync] total 4"))
	assert.Contains(t, line, "downloaded 1")
	assert.Contains(t, line, "skipped 1")
	assert.Contains(t, line, "failed 0")
	assert.NotContains(t, line, "\n")
}

func TestMetrics(t *testing.T) {
	metrics := NewMetrics()
	reporter := NewReporter(&bytes.Buffer{}, metrics)

	reporter.BeginRoot("root", "/mirror")
	reporter.AddTotal(3)
	reporter.Record(Downloaded, 2048)
	reporter.Record(Downloaded, 1024)
	reporter.Record(Failed, 0)
	reporter.EndRoot(2)
	metrics.Finish()

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.files.WithLabelValues("downloaded")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.files.WithLabelValues("skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.files.WithLabelValues("failed")))
	assert.Equal(t, 3072.0, testutil.ToFloat64(metrics.bytes))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.total))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.failedFolders))

	path := filepath.Join(t.TempDir(), "drivesync.prom")
	require.NoError(t, metrics.WriteTextfile(path))
	written, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(written), `drivesync_files_total{outcome="downloaded"} 2`)
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.50 KB", FormatBytes(1536))
	assert.Equal(t, "2.00 MB", FormatBytes(2*1024*1024))
}
