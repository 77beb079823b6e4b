package sync

import (
	"fmt"
	"os"
	"time"

	"github.com/ghodss/yaml"
	"github.com/hashicorp/go-version"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/drivesync/pkg/errors"
)

const (
	// SidecarSuffix is appended to an artifact's path to get its sidecar.
	SidecarSuffix = ".meta"

	// PartialSuffix is appended to an artifact's path while it's being
	// downloaded.
	PartialSuffix = ".partial"

	// SidecarVersion is the format version written by this binary. Sidecars
	// without a version are assumed to be in this format.
	SidecarVersion = "1.0"

	// legacySidecarVersion is the format of the JSON sidecars written before
	// sidecars were versioned. They use `file_id` and `modified_time`.
	legacySidecarVersion = "0"

	// supportedSidecarVersions are the sidecar formats that this binary can
	// read.
	supportedSidecarVersions = ">= 0, < 2.0"
)

// Fingerprint identifies the remote state that an artifact was downloaded
// from.
type Fingerprint struct {
	ID           string
	Size         uint64
	ModifiedTime time.Time
}

// Equal returns whether two fingerprints describe the same remote content
// (i.e. whether a download is unnecessary).
func (f Fingerprint) Equal(other Fingerprint) bool {
	return f.ID == other.ID &&
		f.Size == other.Size &&
		f.ModifiedTime.Equal(other.ModifiedTime)
}

// sidecar is the on-disk format of a Fingerprint.
type sidecar struct {
	Version      string `json:"version,omitempty"`
	SourceID     string `json:"sourceId,omitempty"`
	Size         uint64 `json:"size"`
	ModifiedTime string `json:"modifiedTime,omitempty"`

	LegacyID           string `json:"file_id,omitempty"`
	LegacyModifiedTime string `json:"modified_time,omitempty"`
}

// CorruptSidecarError is returned for sidecars that exist but can't be used.
type CorruptSidecarError struct {
	Path   string
	Reason error
}

func (err CorruptSidecarError) Error() string {
	return fmt.Sprintf("corrupt sidecar %q: %s", err.Path, err.Reason)
}

func (err CorruptSidecarError) Unwrap() error {
	return err.Reason
}

// SidecarPath returns the path of the sidecar for the artifact at `path`.
func SidecarPath(path string) string {
	return path + SidecarSuffix
}

// BookkeepingPaths returns the files besides the artifact itself that are
// written while syncing the artifact at `path`.
func BookkeepingPaths(path string) []string {
	sidecarPath := SidecarPath(path)
	return []string{sidecarPath, path + PartialSuffix, sidecarPath + PartialSuffix}
}

// ReadFingerprint returns the fingerprint recorded next to the artifact at
// `path`. It returns errors.FileNotFound if there is no sidecar. Unusable
// sidecars are deleted and reported as a CorruptSidecarError.
func ReadFingerprint(path string) (Fingerprint, error) {
	fp, err := PeekFingerprint(path)
	corrupt, ok := err.(CorruptSidecarError)
	if !ok {
		return fp, err
	}

	log.WithError(corrupt.Reason).WithField("path", corrupt.Path).Warn(
		"Removing unreadable sidecar. The file will be downloaded again.")
	if err := fs.Remove(corrupt.Path); err != nil && !os.IsNotExist(err) {
		return Fingerprint{}, errors.WithContext(err, "remove corrupt sidecar")
	}
	return Fingerprint{}, corrupt
}

// PeekFingerprint is ReadFingerprint without the side effects: unusable
// sidecars are reported but left on disk.
func PeekFingerprint(path string) (Fingerprint, error) {
	sidecarPath := SidecarPath(path)
	contents, err := afero.ReadFile(fs, sidecarPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Fingerprint{}, errors.FileNotFound{Path: sidecarPath}
		}
		return Fingerprint{}, errors.WithContext(err, "read sidecar")
	}

	fp, err := parseSidecar(contents)
	if err != nil {
		return Fingerprint{}, CorruptSidecarError{Path: sidecarPath, Reason: err}
	}
	return fp, nil
}

func parseSidecar(contents []byte) (Fingerprint, error) {
	var sc sidecar
	if err := yaml.Unmarshal(contents, &sc); err != nil {
		return Fingerprint{}, errors.WithContext(err, "parse")
	}

	if sc.Version == "" {
		sc.Version = SidecarVersion
		if sc.LegacyID != "" {
			sc.Version = legacySidecarVersion
		}
	}
	if err := checkSidecarVersion(sc.Version); err != nil {
		return Fingerprint{}, err
	}

	if sc.Version == legacySidecarVersion {
		sc.SourceID = sc.LegacyID
		sc.ModifiedTime = sc.LegacyModifiedTime
	}

	if sc.SourceID == "" {
		return Fingerprint{}, errors.MissingFieldError{Field: "sourceId"}
	}
	if sc.ModifiedTime == "" {
		return Fingerprint{}, errors.MissingFieldError{Field: "modifiedTime"}
	}

	modified, err := time.Parse(time.RFC3339Nano, sc.ModifiedTime)
	if err != nil {
		return Fingerprint{}, errors.WithContext(err, "parse modifiedTime")
	}

	return Fingerprint{
		ID:           sc.SourceID,
		Size:         sc.Size,
		ModifiedTime: modified,
	}, nil
}

func checkSidecarVersion(raw string) error {
	v, err := version.NewVersion(raw)
	if err != nil {
		return errors.WithContext(err, "parse version")
	}

	constraints, err := version.NewConstraint(supportedSidecarVersions)
	if err != nil {
		return errors.WithContext(err, "parse version constraint")
	}

	if !constraints.Check(v) {
		return fmt.Errorf("unsupported sidecar version %s", raw)
	}
	return nil
}

// WriteFingerprint records `fp` as the state of the artifact at `path`. The
// sidecar is written to a temporary file first so that a crash never leaves
// a truncated sidecar behind.
func WriteFingerprint(path string, fp Fingerprint) error {
	contents, err := yaml.Marshal(sidecar{
		Version:      SidecarVersion,
		SourceID:     fp.ID,
		Size:         fp.Size,
		ModifiedTime: fp.ModifiedTime.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return errors.WithContext(err, "marshal")
	}

	sidecarPath := SidecarPath(path)
	tmpPath := sidecarPath + PartialSuffix
	if err := afero.WriteFile(fs, tmpPath, contents, 0644); err != nil {
		return errors.WithContext(err, "write")
	}

	if err := fs.Rename(tmpPath, sidecarPath); err != nil {
		fs.Remove(tmpPath)
		return errors.WithContext(err, "rename")
	}
	return nil
}

// RemoveFingerprint deletes the sidecar of the artifact at `path`, if any.
func RemoveFingerprint(path string) error {
	err := fs.Remove(SidecarPath(path))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
