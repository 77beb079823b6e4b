package progress

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports the run counters in the Prometheus text format so that a
// node-exporter textfile collector can scrape scheduled runs.
type Metrics struct {
	registry *prometheus.Registry

	files         *prometheus.CounterVec
	bytes         prometheus.Counter
	total         prometheus.Counter
	failedFolders prometheus.Counter
	lastRun       prometheus.Gauge
}

// NewMetrics creates the collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		files: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "drivesync_files_total",
				Help: "Number of files by outcome",
			},
			[]string{"outcome"},
		),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drivesync_bytes_downloaded_total",
			Help: "Bytes written to local artifacts",
		}),
		total: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drivesync_files_scheduled_total",
			Help: "Number of files considered for sync",
		}),
		failedFolders: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drivesync_folders_failed_total",
			Help: "Folders whose listing failed and whose subtree was skipped",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "drivesync_last_run_timestamp_seconds",
			Help: "Unix time at which the last run finished",
		}),
	}

	// Make every outcome visible even when it never happened.
	for _, outcome := range []Outcome{Downloaded, Skipped, Failed} {
		m.files.WithLabelValues(outcome.String())
	}

	m.registry.MustRegister(m.files, m.bytes, m.total, m.failedFolders, m.lastRun)
	return m
}

// Finish stamps the completion time of the run.
func (m *Metrics) Finish() {
	m.lastRun.SetToCurrentTime()
}

// WriteTextfile atomically writes every metric to `path`.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
