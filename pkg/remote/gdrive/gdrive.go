// Package gdrive exposes Google Drive folders as a remote.Source.
package gdrive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/sidkik/drivesync/pkg/errors"
	"github.com/sidkik/drivesync/pkg/remote"
)

const (
	folderMimeType = "application/vnd.google-apps.folder"

	// Native Google Workspace types share this prefix. None of them have a
	// byte stream of their own.
	workspaceMimePrefix = "application/vnd.google-apps."

	listFields  = "nextPageToken, files(id, name, mimeType, size, modifiedTime)"
	entryFields = "id, name, mimeType, size, modifiedTime"

	pageSize = 1000
)

var (
	rateLimitReasons = map[string]struct{}{
		"rateLimitExceeded":     {},
		"userRateLimitExceeded": {},
	}
	quotaReasons = map[string]struct{}{
		"downloadQuotaExceeded": {},
		"dailyLimitExceeded":    {},
		"quotaExceeded":         {},
	}
	unsupportedReasons = map[string]struct{}{
		"cannotExportFile":        {},
		"exportSizeLimitExceeded": {},
		"fileNotDownloadable":     {},
	}
)

// Source is a remote.Source backed by the Drive v3 API.
type Source struct {
	service *drive.Service
}

// New creates a read-only Drive client. `credentialsFile` is a service
// account key or an authorized user file.
func New(ctx context.Context, credentialsFile string, opts ...option.ClientOption) (*Source, error) {
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	opts = append(opts, option.WithScopes(drive.DriveReadonlyScope))

	service, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.WithContext(err, "create drive client")
	}
	return &Source{service: service}, nil
}

// ListChildren implements remote.Source.
func (s *Source) ListChildren(ctx context.Context, folderID, pageToken string) (
	[]remote.Entry, string, error) {

	call := s.service.Files.List().
		Q(fmt.Sprintf("'%s' in parents and trashed = false", escapeQuery(folderID))).
		Fields(listFields).
		PageSize(pageSize).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	list, err := call.Do()
	if err != nil {
		return nil, "", translateError(err, fmt.Sprintf("list %s", folderID))
	}

	var entries []remote.Entry
	for _, f := range list.Files {
		entry, err := toEntry(f)
		if err != nil {
			return nil, "", errors.WithContext(err, fmt.Sprintf("parse %s", f.Id))
		}
		entries = append(entries, entry)
	}
	return entries, list.NextPageToken, nil
}

// GetMetadata implements remote.Source.
func (s *Source) GetMetadata(ctx context.Context, id string) (remote.Metadata, error) {
	f, err := s.service.Files.Get(id).
		Fields(entryFields).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return remote.Metadata{}, translateError(err, fmt.Sprintf("get %s", id))
	}

	entry, err := toEntry(f)
	if err != nil {
		return remote.Metadata{}, errors.WithContext(err, fmt.Sprintf("parse %s", id))
	}
	return remote.Metadata{
		MimeType:     entry.MimeType,
		Kind:         entry.Kind,
		Composite:    entry.Composite,
		Size:         entry.Size,
		ModifiedTime: entry.ModifiedTime,
	}, nil
}

// OpenContent implements remote.Source.
func (s *Source) OpenContent(ctx context.Context, id string) (io.ReadCloser, error) {
	resp, err := s.service.Files.Get(id).
		SupportsAllDrives(true).
		Context(ctx).
		Download()
	if err != nil {
		return nil, translateError(err, fmt.Sprintf("download %s", id))
	}
	return resp.Body, nil
}

// OpenExport implements remote.Source.
func (s *Source) OpenExport(ctx context.Context, id, mimeType string) (io.ReadCloser, error) {
	resp, err := s.service.Files.Export(id, mimeType).
		Context(ctx).
		Download()
	if err != nil {
		return nil, translateError(err, fmt.Sprintf("export %s as %s", id, mimeType))
	}
	return resp.Body, nil
}

func toEntry(f *drive.File) (remote.Entry, error) {
	entry := remote.Entry{
		ID:       f.Id,
		Name:     f.Name,
		Kind:     remote.KindFile,
		MimeType: f.MimeType,
	}

	switch {
	case f.MimeType == folderMimeType:
		entry.Kind = remote.KindFolder
	case strings.HasPrefix(f.MimeType, workspaceMimePrefix):
		entry.Composite = true
	}

	if f.Size > 0 {
		entry.Size = uint64(f.Size)
	}

	if f.ModifiedTime != "" {
		modified, err := time.Parse(time.RFC3339Nano, f.ModifiedTime)
		if err != nil {
			return remote.Entry{}, errors.WithContext(err, "parse modifiedTime")
		}
		entry.ModifiedTime = modified
	}
	return entry, nil
}

// translateError maps Drive error reasons onto the shared sentinel errors.
// Server errors are left alone and are therefore not retried.
func translateError(err error, op string) error {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return errors.WithContext(err, op)
	}

	if apiErr.Code == http.StatusTooManyRequests {
		return errors.WithContext(errors.ErrRateLimited, fmt.Sprintf("%s: %s", op, apiErr.Message))
	}
	switch reason := errorReason(apiErr); {
	case contains(rateLimitReasons, reason):
		return errors.WithContext(errors.ErrRateLimited, fmt.Sprintf("%s: %s", op, apiErr.Message))
	case contains(quotaReasons, reason):
		return errors.WithContext(errors.ErrQuotaExceeded, fmt.Sprintf("%s: %s", op, apiErr.Message))
	case contains(unsupportedReasons, reason):
		return errors.WithContext(errors.ErrUnsupportedKind, fmt.Sprintf("%s: %s", op, apiErr.Message))
	}
	return errors.WithContext(err, op)
}

// errorReason returns the first known reason of a Drive error. Media
// downloads don't always have their body parsed into Errors, so the raw body
// is searched as well.
func errorReason(apiErr *googleapi.Error) string {
	for _, item := range apiErr.Errors {
		if item.Reason != "" {
			return item.Reason
		}
	}

	for _, reasons := range []map[string]struct{}{rateLimitReasons, quotaReasons, unsupportedReasons} {
		for reason := range reasons {
			if strings.Contains(apiErr.Body, `"`+reason+`"`) {
				return reason
			}
		}
	}
	return ""
}

func contains(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}

func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
