package sync

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"

	log "github.com/sirupsen/logrus"

	"github.com/sidkik/drivesync/pkg/errors"
	"github.com/sidkik/drivesync/pkg/progress"
	"github.com/sidkik/drivesync/pkg/remote"
	"github.com/sidkik/drivesync/pkg/retry"
)

// DefaultChunkSize is the default size of each read from a remote stream.
const DefaultChunkSize = 1024 * 1024

// Task is a single file to fetch.
type Task struct {
	Item Item

	// Path is the absolute local path of the artifact.
	Path string
}

// Result is the outcome of a Task.
type Result struct {
	Task    Task
	Outcome progress.Outcome

	// Message is a short human-readable reason for skips and failures.
	Message string

	Bytes int64
	Err   error
}

// Fetcher downloads single files.
type Fetcher struct {
	Source    remote.Source
	Retry     *retry.Executor
	Exports   ExportTable
	ChunkSize int
	Log       log.FieldLogger
}

// Fetch downloads the task's entry to its path and records its fingerprint.
// It never panics; a panic inside the fetch is reported as a failed Result.
func (f Fetcher) Fetch(ctx context.Context, task Task) (res Result) {
	logger := f.logger().WithFields(log.Fields{
		"id":   task.Item.Entry.ID,
		"path": task.Path,
	})

	defer func() {
		if r := recover(); r != nil {
			logger.WithField("stack", string(debug.Stack())).Errorf("Panic while fetching: %v", r)
			res = failed(task, fmt.Errorf("panic: %v", r))
		}
	}()

	if err := ctx.Err(); err != nil {
		return failed(task, err)
	}

	if err := fs.MkdirAll(filepath.Dir(task.Path), 0755); err != nil {
		return failed(task, errors.WithContext(err, "create parent directory"))
	}

	id := task.Item.Entry.ID
	meta, err := retry.DoWithResult(ctx, f.Retry, "metadata "+id,
		func(ctx context.Context) (remote.Metadata, error) {
			return f.Source.GetMetadata(ctx, id)
		})
	if err != nil {
		return f.outcomeFor(task, errors.WithContext(err, "get metadata"))
	}

	open := func(ctx context.Context) (io.ReadCloser, error) {
		return f.Source.OpenContent(ctx, id)
	}
	if meta.Composite {
		format, ok := f.Exports.Lookup(meta.MimeType)
		if !ok {
			return f.outcomeFor(task, errors.WithContext(errors.ErrUnsupportedKind, meta.MimeType))
		}
		open = func(ctx context.Context) (io.ReadCloser, error) {
			return f.Source.OpenExport(ctx, id, format.MimeType)
		}
	}

	// The old fingerprint no longer describes what's about to be on disk.
	if err := RemoveFingerprint(task.Path); err != nil {
		return failed(task, errors.WithContext(err, "remove stale sidecar"))
	}

	var written int64
	err = f.Retry.Do(ctx, "download "+id, func(ctx context.Context) error {
		n, err := f.download(ctx, open, task.Path, logger)
		written = n
		return err
	})
	if err != nil {
		return f.outcomeFor(task, errors.WithContext(err, "download"))
	}

	// Record the state that was read before the transfer started. If the
	// entry changed mid-transfer, the next run sees a newer remote state and
	// fetches it again.
	fp := Fingerprint{ID: id, Size: meta.Size, ModifiedTime: meta.ModifiedTime}
	if err := WriteFingerprint(task.Path, fp); err != nil {
		return failed(task, errors.WithContext(err, "write sidecar"))
	}

	return Result{Task: task, Outcome: progress.Downloaded, Bytes: written}
}

// download streams one attempt into the partial file and renames it over the
// artifact once the stream is complete.
func (f Fetcher) download(ctx context.Context, open func(context.Context) (io.ReadCloser, error),
	path string, logger log.FieldLogger) (int64, error) {

	stream, err := open(ctx)
	if err != nil {
		return 0, err
	}
	defer stream.Close()

	partialPath := path + PartialSuffix
	out, err := fs.OpenFile(partialPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return 0, errors.WithContext(err, "create partial file")
	}

	closed := false
	defer func() {
		if !closed {
			out.Close()
		}
	}()

	written, err := f.copyChunks(ctx, out, stream, logger)
	closed = true
	if closeErr := out.Close(); err == nil && closeErr != nil {
		err = errors.WithContext(closeErr, "close partial file")
	}
	if err != nil {
		removePartial(partialPath)
		return written, err
	}

	if err := fs.Rename(partialPath, path); err != nil {
		removePartial(partialPath)
		return written, errors.WithContext(err, "rename partial file")
	}
	return written, nil
}

func (f Fetcher) copyChunks(ctx context.Context, out io.Writer, in io.Reader,
	logger log.FieldLogger) (int64, error) {

	chunkSize := f.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	buf := make([]byte, chunkSize)
	var written int64
	for chunk := 1; ; chunk++ {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		n, readErr := in.Read(buf)
		if n > 0 {
			if _, err := out.Write(buf[:n]); err != nil {
				return written, errors.WithContext(err, "write")
			}
			written += int64(n)
			logger.WithFields(log.Fields{
				"chunk": chunk,
				"bytes": written,
			}).Debug("Downloaded chunk")
		}

		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}

func (f Fetcher) outcomeFor(task Task, err error) Result {
	if retry.Classify(err) != retry.Skippable {
		return failed(task, err)
	}

	removePartial(task.Path + PartialSuffix)

	msg := "skipped"
	switch {
	case errors.Is(err, errors.ErrQuotaExceeded):
		msg = "quota exceeded"
	case errors.Is(err, errors.ErrUnsupportedKind):
		msg = "unsupported kind"
	}
	return Result{Task: task, Outcome: progress.Skipped, Message: msg, Err: err}
}

func failed(task Task, err error) Result {
	return Result{Task: task, Outcome: progress.Failed, Message: err.Error(), Err: err}
}

func removePartial(path string) {
	if err := fs.Remove(path); err != nil && !os.IsNotExist(err) {
		log.WithError(err).WithField("path", path).Warn("Failed to remove partial download")
	}
}

func (f Fetcher) logger() log.FieldLogger {
	if f.Log == nil {
		return log.StandardLogger()
	}
	return f.Log
}
