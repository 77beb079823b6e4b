package sync

import (
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/drivesync/pkg/errors"
	"github.com/sidkik/drivesync/pkg/remote"
	"github.com/sidkik/drivesync/pkg/retry"
)

// Detector decides whether a local artifact still matches its remote entry
// without reading any content.
type Detector struct {
	Source remote.Source
	Retry  *retry.Executor
	Log    log.FieldLogger
}

// IsCurrent returns whether the artifact at `path` was downloaded from the
// current remote state of `entry`. Any doubt resolves to false. The returned
// error is only informational: when it's non-nil the answer is always false.
func (d Detector) IsCurrent(ctx context.Context, entry remote.Entry, path string) (bool, error) {
	exists, err := afero.Exists(fs, path)
	if err != nil {
		return false, errors.WithContext(err, "stat artifact")
	}
	if !exists {
		return false, nil
	}

	stored, err := ReadFingerprint(path)
	if err != nil {
		switch err.(type) {
		case errors.FileNotFound, CorruptSidecarError:
			return false, nil
		}
		return false, errors.WithContext(err, "read fingerprint")
	}

	// The listing may be stale by the time we get here, so ask for the
	// authoritative state of the entry.
	meta, err := retry.DoWithResult(ctx, d.Retry, "metadata "+entry.ID,
		func(ctx context.Context) (remote.Metadata, error) {
			return d.Source.GetMetadata(ctx, entry.ID)
		})
	if err != nil {
		return false, errors.WithContext(err, "get metadata")
	}

	current := Fingerprint{
		ID:           entry.ID,
		Size:         meta.Size,
		ModifiedTime: meta.ModifiedTime,
	}
	if !stored.Equal(current) {
		d.logger().WithFields(log.Fields{
			"path":     path,
			"stored":   stored.ModifiedTime,
			"remote":   current.ModifiedTime,
			"sizeDiff": int64(current.Size) - int64(stored.Size),
		}).Debug("Remote entry changed")
		return false, nil
	}
	return true, nil
}

func (d Detector) logger() log.FieldLogger {
	if d.Log == nil {
		return log.StandardLogger()
	}
	return d.Log
}
