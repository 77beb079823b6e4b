package gdrive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/sidkik/drivesync/pkg/errors"
	"github.com/sidkik/drivesync/pkg/remote"
)

const listResponse = `{
  "nextPageToken": "page-2",
  "files": [
    {"id": "reports", "name": "Reports", "mimeType": "application/vnd.google-apps.folder",
     "modifiedTime": "2021-03-04T05:06:07.000Z"},
    {"id": "q1", "name": "Q1.csv", "mimeType": "text/csv", "size": "100",
     "modifiedTime": "2021-03-04T05:06:07.000Z"},
    {"id": "plan", "name": "Plan", "mimeType": "application/vnd.google-apps.document",
     "modifiedTime": "2021-03-04T05:06:07.000Z"}
  ]
}`

const quotaResponse = `{"error": {"code": 403, "message": "quota",
  "errors": [{"reason": "downloadQuotaExceeded", "message": "quota"}]}}`

func newTestSource(t *testing.T, handler http.HandlerFunc) *Source {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	source, err := New(context.Background(), "",
		option.WithHTTPClient(server.Client()),
		option.WithEndpoint(server.URL+"/"))
	require.NoError(t, err)
	return source
}

func TestListChildren(t *testing.T) {
	var query, pageToken string
	source := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query().Get("q")
		pageToken = r.URL.Query().Get("pageToken")
		fmt.Fprint(w, listResponse)
	})

	entries, token, err := source.ListChildren(context.Background(), "root's", "page-1")
	require.NoError(t, err)
	assert.Equal(t, "page-2", token)
	assert.Equal(t, `'root\'s' in parents and trashed = false`, query)
	assert.Equal(t, "page-1", pageToken)

	modified := time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)
	assert.Equal(t, []remote.Entry{
		{
			ID: "reports", Name: "Reports", Kind: remote.KindFolder,
			MimeType: folderMimeType, ModifiedTime: modified,
		},
		{
			ID: "q1", Name: "Q1.csv", Kind: remote.KindFile,
			MimeType: "text/csv", Size: 100, ModifiedTime: modified,
		},
		{
			ID: "plan", Name: "Plan", Kind: remote.KindFile, Composite: true,
			MimeType: "application/vnd.google-apps.document", ModifiedTime: modified,
		},
	}, entries)
}

func TestOpenContent(t *testing.T) {
	source := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "media", r.URL.Query().Get("alt"))
		fmt.Fprint(w, "contents")
	})

	rc, err := source.OpenContent(context.Background(), "q1")
	require.NoError(t, err)
	defer rc.Close()

	read, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "contents", string(read))
}

func TestQuotaExceeded(t *testing.T) {
	source := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, quotaResponse)
	})

	_, err := source.OpenContent(context.Background(), "q1")
	assert.True(t, errors.Is(err, errors.ErrQuotaExceeded), "%v", err)
}

func TestTranslateError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		exp  error
	}{
		{
			name: "TooManyRequests",
			err:  &googleapi.Error{Code: http.StatusTooManyRequests},
			exp:  errors.ErrRateLimited,
		},
		{
			name: "UserRateLimit",
			err: &googleapi.Error{Code: http.StatusForbidden, Errors: []googleapi.ErrorItem{
				{Reason: "userRateLimitExceeded"},
			}},
			exp: errors.ErrRateLimited,
		},
		{
			name: "DownloadQuota",
			err: &googleapi.Error{Code: http.StatusForbidden, Errors: []googleapi.ErrorItem{
				{Reason: "downloadQuotaExceeded"},
			}},
			exp: errors.ErrQuotaExceeded,
		},
		{
			name: "ExportTooLarge",
			err: &googleapi.Error{Code: http.StatusForbidden, Errors: []googleapi.ErrorItem{
				{Reason: "exportSizeLimitExceeded"},
			}},
			exp: errors.ErrUnsupportedKind,
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			assert.True(t, errors.Is(translateError(test.err, "op"), test.exp))
		})
	}

	serverErr := &googleapi.Error{Code: http.StatusInternalServerError}
	translated := translateError(serverErr, "op")
	assert.Equal(t, serverErr, errors.RootCause(translated))

	assert.Equal(t, "op: "+assert.AnError.Error(), translateError(assert.AnError, "op").Error())
}
