// Package remote defines the read-only view of a remote file tree that the
// sync engine mirrors from.
package remote

import (
	"context"
	"io"
	"time"
)

// Kind distinguishes containers from leaves.
type Kind int

const (
	// KindFile is an entry with content.
	KindFile Kind = iota

	// KindFolder is a container of other entries.
	KindFolder
)

func (k Kind) String() string {
	if k == KindFolder {
		return "folder"
	}
	return "file"
}

// Entry is one child returned by a folder listing.
type Entry struct {
	// ID is opaque and stable for the lifetime of the remote object.
	ID   string
	Name string
	Kind Kind

	MimeType string

	// Composite entries have no byte stream of their own and must be
	// exported to a concrete format before they can be stored locally.
	Composite bool

	Size         uint64
	ModifiedTime time.Time
}

// Metadata is the authoritative description of an entry at the time it was
// read.
type Metadata struct {
	MimeType     string
	Kind         Kind
	Composite    bool
	Size         uint64
	ModifiedTime time.Time
}

// Source is a remote tree that can be listed and downloaded from.
//
// Implementations report throttling with errors.ErrRateLimited and exhausted
// download quotas with errors.ErrQuotaExceeded so that callers can decide
// whether to retry.
type Source interface {
	// ListChildren returns one page of the direct children of `folderID`.
	// An empty returned token means there are no more pages.
	ListChildren(ctx context.Context, folderID, pageToken string) ([]Entry, string, error)

	GetMetadata(ctx context.Context, id string) (Metadata, error)

	// OpenContent streams the bytes of a non-composite entry.
	OpenContent(ctx context.Context, id string) (io.ReadCloser, error)

	// OpenExport streams a composite entry converted to `mimeType`.
	OpenExport(ctx context.Context, id, mimeType string) (io.ReadCloser, error)
}
