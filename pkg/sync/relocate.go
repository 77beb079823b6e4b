package sync

import (
	"context"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/drivesync/pkg/errors"
	"github.com/sidkik/drivesync/pkg/remote"
	"github.com/sidkik/drivesync/pkg/retry"
)

// Relocator migrates mirrors created by older releases, which stored every
// file directly in the destination directory, into the nested layout. It
// never transfers content.
type Relocator struct {
	Source        remote.Source
	Retry         *retry.Executor
	Exports       ExportTable
	MaxNameLength int
	Log           log.FieldLogger
}

// RelocateStats counts what a relocation did.
type RelocateStats struct {
	Moved   int
	Ignored int
}

// Relocate walks `root` and moves each file from `<destination>/<name>` to
// its nested path. A file is only moved if nothing exists at the nested path
// yet and the flat sidecar was written for the same remote entry.
func (r Relocator) Relocate(ctx context.Context, root Root) (RelocateStats, error) {
	logger := r.logger().WithField("root", root.ID)

	walker := Walker{
		Source:        r.Source,
		Retry:         r.Retry,
		MaxNameLength: r.MaxNameLength,
		Log:           logger,
	}
	tree, err := walker.Walk(ctx, root.ID)
	if err != nil {
		return RelocateStats{}, errors.WithContext(err, "walk")
	}

	var stats RelocateStats
	for _, item := range tree.Items {
		if item.Entry.Kind != remote.KindFile {
			continue
		}

		target := LocalPath(root.Destination, item, r.Exports)
		flat := filepath.Join(root.Destination, filepath.Base(target))
		if flat == target {
			continue
		}

		moved, err := r.relocateOne(item.Entry, flat, target)
		if err != nil {
			logger.WithError(err).WithFields(log.Fields{
				"from": flat,
				"to":   target,
			}).Error("Failed to relocate file")
			stats.Ignored++
			continue
		}

		if moved {
			logger.WithFields(log.Fields{"from": flat, "to": target}).Info("Relocated")
			stats.Moved++
		} else {
			stats.Ignored++
		}
	}
	return stats, nil
}

func (r Relocator) relocateOne(entry remote.Entry, flat, target string) (bool, error) {
	if exists, err := afero.Exists(fs, target); err != nil || exists {
		return false, err
	}
	if exists, err := afero.Exists(fs, flat); err != nil || !exists {
		return false, err
	}

	// Several entries can share a flat name, so the sidecar decides which of
	// them the flat file belongs to. Unreadable sidecars are left for the
	// next sync to deal with.
	fp, err := PeekFingerprint(flat)
	if err != nil {
		switch err := err.(type) {
		case errors.FileNotFound:
			return false, nil
		case CorruptSidecarError:
			r.logger().WithError(err.Reason).WithField("path", err.Path).Warn(
				"Can't read sidecar. Leaving the file in place.")
			return false, nil
		}
		return false, err
	}
	if fp.ID != entry.ID {
		return false, nil
	}

	if err := fs.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return false, errors.WithContext(err, "create parent directory")
	}
	if err := fs.Rename(flat, target); err != nil {
		return false, errors.WithContext(err, "move artifact")
	}
	if err := fs.Rename(SidecarPath(flat), SidecarPath(target)); err != nil {
		return true, errors.WithContext(err, "move sidecar")
	}
	return true, nil
}

func (r Relocator) logger() log.FieldLogger {
	if r.Log == nil {
		return log.StandardLogger()
	}
	return r.Log
}
