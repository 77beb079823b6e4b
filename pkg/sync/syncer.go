package sync

import (
	"context"
	"fmt"
	"runtime/debug"

	log "github.com/sirupsen/logrus"

	"github.com/sidkik/drivesync/pkg/errors"
	"github.com/sidkik/drivesync/pkg/progress"
	"github.com/sidkik/drivesync/pkg/remote"
	"github.com/sidkik/drivesync/pkg/retry"
)

// upToDate is the Result message of files that didn't need a transfer.
const upToDate = "up to date"

// Root is a remote folder and the local directory it's mirrored into.
type Root struct {
	ID          string
	Destination string
}

// Syncer mirrors remote roots into local directories.
type Syncer struct {
	Source   remote.Source
	Retry    *retry.Executor
	Reporter *progress.Reporter
	Exports  ExportTable

	Workers       int
	ChunkSize     int
	MaxNameLength int

	// ShowProgress redraws the reporter's progress line after every
	// recorded file.
	ShowProgress bool

	Log log.FieldLogger
}

// Run syncs each root in turn. A root that can't be synced is logged and
// doesn't stop the others. Panics in the coordination code are returned as
// errors so that the caller can still print a summary.
func (s Syncer) Run(ctx context.Context, roots []Root) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger().WithField("stack", string(debug.Stack())).Errorf("Panic during sync: %v", r)
			err = fmt.Errorf("sync panicked: %v", r)
		}
	}()

	var failedRoots int
	for _, root := range roots {
		if err := ctx.Err(); err != nil {
			return errors.WithContext(err, "sync")
		}

		if err := s.SyncRoot(ctx, root); err != nil {
			failedRoots++
			s.logger().WithError(err).WithField("root", root.ID).Error("Failed to sync root")
		}
	}

	if failedRoots > 0 {
		return errors.NewFriendlyError("Failed to sync %d of %d roots. "+
			"See the log for details.", failedRoots, len(roots))
	}
	return nil
}

// SyncRoot mirrors a single root.
func (s Syncer) SyncRoot(ctx context.Context, root Root) error {
	logger := s.logger().WithField("root", root.ID)

	failedFolders := 0
	s.Reporter.BeginRoot(root.ID, root.Destination)
	defer func() {
		summary := s.Reporter.EndRoot(failedFolders)
		logger.WithFields(log.Fields{
			"destination":   summary.Destination,
			"downloaded":    summary.Counters.Downloaded,
			"skipped":       summary.Counters.Skipped,
			"failed":        summary.Counters.Failed,
			"bytes":         summary.Bytes,
			"failedFolders": summary.FailedFolders,
			"elapsed":       summary.Elapsed,
		}).Info("Finished syncing root")
	}()

	if err := fs.MkdirAll(root.Destination, 0755); err != nil {
		return errors.WithContext(err, "create destination")
	}

	walker := Walker{
		Source:        s.Source,
		Retry:         s.Retry,
		MaxNameLength: s.MaxNameLength,
		Log:           logger,
	}
	tree, err := walker.Walk(ctx, root.ID)
	if err != nil {
		return errors.WithContext(err, "walk")
	}
	failedFolders = len(tree.FailedFolders)

	tasks := s.plan(root, tree, logger)
	s.Reporter.AddTotal(len(tasks))

	toFetch := s.partition(ctx, tasks, logger)
	logger.WithFields(log.Fields{
		"files":   len(tasks),
		"toFetch": len(toFetch),
	}).Info("Starting downloads")

	fetcher := Fetcher{
		Source:    s.Source,
		Retry:     s.Retry,
		Exports:   s.Exports,
		ChunkSize: s.ChunkSize,
		Log:       logger,
	}
	Schedule(ctx, s.Workers, toFetch, fetcher.Fetch, func(res Result) {
		s.record(res, logger)
	})
	return nil
}

// plan creates the local folders and turns the files of `tree` into tasks.
// When several entries map to the same local path, the last one wins.
func (s Syncer) plan(root Root, tree Tree, logger log.FieldLogger) []Task {
	var tasks []Task
	byPath := map[string]int{}
	for _, item := range tree.Items {
		path := LocalPath(root.Destination, item, s.Exports)
		if item.Entry.Kind == remote.KindFolder {
			if err := fs.MkdirAll(path, 0755); err != nil {
				logger.WithError(err).WithField("path", path).Error("Failed to create folder")
			}
			continue
		}

		task := Task{Item: item, Path: path}
		if i, ok := byPath[path]; ok {
			logger.WithFields(log.Fields{
				"path":    path,
				"kept":    item.Entry.ID,
				"ignored": tasks[i].Item.Entry.ID,
			}).Warn("Two remote entries map to the same file. Ignoring the former entry.")
			tasks[i] = task
			continue
		}
		byPath[path] = len(tasks)
		tasks = append(tasks, task)
	}
	return moveOffBookkeepingPaths(tasks, logger)
}

// moveOffBookkeepingPaths renames files whose path is the sidecar or partial
// path of another file, e.g. `notes.meta` next to `notes`. The renamed file
// gets its id appended, so the mapping is the same on every run.
func moveOffBookkeepingPaths(tasks []Task, logger log.FieldLogger) []Task {
	owners := map[string]string{}
	for _, task := range tasks {
		for _, path := range BookkeepingPaths(task.Path) {
			owners[path] = task.Item.Entry.ID
		}
	}

	for i, task := range tasks {
		owner, ok := owners[task.Path]
		if !ok {
			continue
		}

		suffix := SanitizeName(task.Item.Entry.ID, 0)
		if !isSafeSegment(suffix) {
			suffix = "_"
		}
		renamed := task.Path + "~" + suffix
		logger.WithFields(log.Fields{
			"path":    task.Path,
			"renamed": renamed,
			"id":      task.Item.Entry.ID,
			"owner":   owner,
		}).Warn("Remote file would overwrite the metadata of another file. Renaming it.")
		tasks[i].Path = renamed
	}
	return tasks
}

// partition records the current files as skipped and returns the rest.
func (s Syncer) partition(ctx context.Context, tasks []Task, logger log.FieldLogger) []Task {
	detector := Detector{Source: s.Source, Retry: s.Retry, Log: logger}

	var toFetch []Task
	for _, task := range tasks {
		current, err := detector.IsCurrent(ctx, task.Item.Entry, task.Path)
		if err != nil {
			logger.WithError(err).WithField("path", task.Path).Warn(
				"Failed to check whether file is up to date. It will be downloaded again.")
		}

		if current {
			s.record(Result{Task: task, Outcome: progress.Skipped, Message: upToDate}, logger)
			continue
		}
		toFetch = append(toFetch, task)
	}
	return toFetch
}

func (s Syncer) record(res Result, logger log.FieldLogger) {
	s.Reporter.Record(res.Outcome, res.Bytes)

	entry := logger.WithField("path", res.Task.Path)
	switch {
	case res.Outcome == progress.Downloaded:
		entry.WithField("bytes", res.Bytes).Info("Downloaded")
	case res.Outcome == progress.Skipped && res.Message == upToDate:
		entry.Debug("Already up to date")
	case res.Outcome == progress.Skipped:
		entry.WithField("reason", res.Message).Warn("Skipped")
	default:
		entry.WithError(res.Err).Error("Failed to download")
	}

	if s.ShowProgress {
		s.Reporter.PrintProgress()
	}
}

func (s Syncer) logger() log.FieldLogger {
	if s.Log == nil {
		return log.StandardLogger()
	}
	return s.Log
}
