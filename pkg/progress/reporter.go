// Package progress keeps the run counters and renders them for the operator.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/buger/goterm"
	"github.com/jonboulle/clockwork"
)

// Outcome is the terminal state of one file.
type Outcome int

const (
	// Downloaded means the local copy was (re)written.
	Downloaded Outcome = iota

	// Skipped means no transfer happened, either because the local copy
	// was current or because the entry can't be fetched right now.
	Skipped

	// Failed means the entry could not be fetched.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Downloaded:
		return "downloaded"
	case Skipped:
		return "skipped"
	default:
		return "failed"
	}
}

// Counters is a snapshot of the run totals. Once every scheduled file has
// been recorded, Downloaded+Skipped+Failed equals Total.
type Counters struct {
	Total      int
	Downloaded int
	Skipped    int
	Failed     int
}

// Done is the number of files that reached a terminal outcome.
func (c Counters) Done() int {
	return c.Downloaded + c.Skipped + c.Failed
}

func (c Counters) sub(other Counters) Counters {
	return Counters{
		Total:      c.Total - other.Total,
		Downloaded: c.Downloaded - other.Downloaded,
		Skipped:    c.Skipped - other.Skipped,
		Failed:     c.Failed - other.Failed,
	}
}

// RootSummary describes what happened to one configured root.
type RootSummary struct {
	ID            string
	Destination   string
	Counters      Counters
	Bytes         int64
	FailedFolders int
	Elapsed       time.Duration
}

type rootState struct {
	id, destination string
	start           Counters
	startBytes      int64
	startTime       time.Time
}

// Reporter owns the counters for a run. All methods are safe for concurrent
// use.
type Reporter struct {
	out     io.Writer
	metrics *Metrics
	clock   clockwork.Clock

	lock     sync.Mutex
	counters Counters
	bytes    int64
	current  *rootState
	roots    []RootSummary
}

// NewReporter creates a Reporter that writes its progress line to `out`.
// `metrics` may be nil.
func NewReporter(out io.Writer, metrics *Metrics) *Reporter {
	if out == nil {
		out = os.Stdout
	}
	return &Reporter{
		out:     out,
		metrics: metrics,
		clock:   clockwork.NewRealClock(),
	}
}

// AddTotal announces `n` more files that will each be recorded once.
func (r *Reporter) AddTotal(n int) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.counters.Total += n
	if r.metrics != nil {
		r.metrics.total.Add(float64(n))
	}
}

// Record counts the outcome of a single file.
func (r *Reporter) Record(outcome Outcome, bytes int64) {
	r.lock.Lock()
	defer r.lock.Unlock()

	switch outcome {
	case Downloaded:
		r.counters.Downloaded++
	case Skipped:
		r.counters.Skipped++
	default:
		r.counters.Failed++
	}
	r.bytes += bytes

	if r.metrics != nil {
		r.metrics.files.WithLabelValues(outcome.String()).Inc()
		r.metrics.bytes.Add(float64(bytes))
	}
}

// Snapshot returns a copy of the current counters.
func (r *Reporter) Snapshot() Counters {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.counters
}

// Bytes returns the number of bytes written so far.
func (r *Reporter) Bytes() int64 {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.bytes
}

// PrintProgress overwrites the current terminal line with the counters.
func (r *Reporter) PrintProgress() {
	c := r.Snapshot()
	fmt.Fprintf(r.out, "\r[drivesync] total %d | %s | %s | %s    ",
		c.Total,
		goterm.Color(fmt.Sprintf("downloaded %d", c.Downloaded), goterm.GREEN),
		goterm.Color(fmt.Sprintf("skipped %d", c.Skipped), goterm.YELLOW),
		goterm.Color(fmt.Sprintf("failed %d", c.Failed), goterm.RED))
}

// BeginRoot marks the start of a configured root. Counters recorded until
// the matching EndRoot are attributed to it.
func (r *Reporter) BeginRoot(id, destination string) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.current = &rootState{
		id:          id,
		destination: destination,
		start:       r.counters,
		startBytes:  r.bytes,
		startTime:   r.clock.Now(),
	}
}

// EndRoot closes the current root and returns its summary.
func (r *Reporter) EndRoot(failedFolders int) RootSummary {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.current == nil {
		return RootSummary{}
	}

	summary := RootSummary{
		ID:            r.current.id,
		Destination:   r.current.destination,
		Counters:      r.counters.sub(r.current.start),
		Bytes:         r.bytes - r.current.startBytes,
		FailedFolders: failedFolders,
		Elapsed:       r.clock.Since(r.current.startTime),
	}
	r.roots = append(r.roots, summary)
	r.current = nil

	if r.metrics != nil {
		r.metrics.failedFolders.Add(float64(failedFolders))
	}
	return summary
}

// Roots returns the summaries of every finished root.
func (r *Reporter) Roots() []RootSummary {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]RootSummary(nil), r.roots...)
}

// PrintSummary writes the per-root table followed by the run totals.
func (r *Reporter) PrintSummary(w io.Writer) {
	c := r.Snapshot()
	roots := r.Roots()

	fmt.Fprintln(w)
	for _, root := range roots {
		fmt.Fprintf(w, "%s -> %s\n", root.ID, root.Destination)
		fmt.Fprintf(w, "    downloaded %d (%s), skipped %d, failed %d",
			root.Counters.Downloaded, FormatBytes(root.Bytes),
			root.Counters.Skipped, root.Counters.Failed)
		if root.FailedFolders > 0 {
			fmt.Fprintf(w, ", %s",
				goterm.Color(fmt.Sprintf("%d folders unreadable", root.FailedFolders), goterm.RED))
		}
		fmt.Fprintf(w, " in %s\n", root.Elapsed.Round(time.Millisecond))
	}

	status := goterm.Color("Sync complete.", goterm.GREEN)
	if c.Failed > 0 {
		status = goterm.Color("Sync finished with failures.", goterm.RED)
	}
	fmt.Fprintf(w, "%s Total %d, downloaded %d, skipped %d, failed %d.\n",
		status, c.Total, c.Downloaded, c.Skipped, c.Failed)
}

// FormatBytes formats bytes as a human-readable string.
func FormatBytes(b int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case b >= GB:
		return fmt.Sprintf("%.2f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.2f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.2f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
