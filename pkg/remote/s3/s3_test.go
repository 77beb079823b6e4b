package s3

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/drivesync/pkg/errors"
	"github.com/sidkik/drivesync/pkg/remote"
)

type fakeClient struct {
	listInputs []*s3.ListObjectsV2Input
	listOutput *s3.ListObjectsV2Output
	headOutput *s3.HeadObjectOutput
	getOutput  *s3.GetObjectOutput
	err        error
}

func (c *fakeClient) ListObjectsV2(_ context.Context, params *s3.ListObjectsV2Input,
	_ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	c.listInputs = append(c.listInputs, params)
	return c.listOutput, c.err
}

func (c *fakeClient) HeadObject(_ context.Context, _ *s3.HeadObjectInput,
	_ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	return c.headOutput, c.err
}

func (c *fakeClient) GetObject(_ context.Context, _ *s3.GetObjectInput,
	_ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return c.getOutput, c.err
}

var modTime = time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)

func TestListChildren(t *testing.T) {
	client := &fakeClient{
		listOutput: &s3.ListObjectsV2Output{
			CommonPrefixes: []types.CommonPrefix{
				{Prefix: aws.String("reports/2020/")},
			},
			Contents: []types.Object{
				{Key: aws.String("reports/"), Size: aws.Int64(0)},
				{Key: aws.String("reports/Q1"), Size: aws.Int64(100), LastModified: aws.Time(modTime)},
			},
			IsTruncated:           aws.Bool(true),
			NextContinuationToken: aws.String("next"),
		},
	}
	source := NewWithClient(client, "bucket")

	entries, token, err := source.ListChildren(context.Background(), "reports", "prev")
	require.NoError(t, err)
	assert.Equal(t, "next", token)
	assert.Equal(t, []remote.Entry{
		{ID: "reports/2020/", Name: "2020", Kind: remote.KindFolder},
		{ID: "reports/Q1", Name: "Q1", Kind: remote.KindFile, Size: 100, ModifiedTime: modTime},
	}, entries)

	require.Len(t, client.listInputs, 1)
	input := client.listInputs[0]
	assert.Equal(t, "bucket", aws.ToString(input.Bucket))
	assert.Equal(t, "reports/", aws.ToString(input.Prefix))
	assert.Equal(t, "/", aws.ToString(input.Delimiter))
	assert.Equal(t, "prev", aws.ToString(input.ContinuationToken))
}

func TestListChildrenLastPage(t *testing.T) {
	client := &fakeClient{listOutput: &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}}
	entries, token, err := NewWithClient(client, "bucket").ListChildren(context.Background(), "", "")
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, token)
	assert.Nil(t, client.listInputs[0].ContinuationToken)
}

func TestGetMetadata(t *testing.T) {
	client := &fakeClient{headOutput: &s3.HeadObjectOutput{
		ContentType:   aws.String("text/plain"),
		ContentLength: aws.Int64(42),
		LastModified:  aws.Time(modTime),
	}}
	source := NewWithClient(client, "bucket")

	meta, err := source.GetMetadata(context.Background(), "reports/Q1")
	require.NoError(t, err)
	assert.Equal(t, remote.Metadata{
		MimeType:     "text/plain",
		Kind:         remote.KindFile,
		Size:         42,
		ModifiedTime: modTime,
	}, meta)

	meta, err = source.GetMetadata(context.Background(), "reports/")
	require.NoError(t, err)
	assert.Equal(t, remote.KindFolder, meta.Kind)
}

func TestOpenContent(t *testing.T) {
	client := &fakeClient{getOutput: &s3.GetObjectOutput{
		Body: io.NopCloser(strings.NewReader("contents")),
	}}
	rc, err := NewWithClient(client, "bucket").OpenContent(context.Background(), "key")
	require.NoError(t, err)
	read, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "contents", string(read))
}

func TestOpenExportIsUnsupported(t *testing.T) {
	_, err := NewWithClient(&fakeClient{}, "bucket").OpenExport(context.Background(), "key", "application/pdf")
	assert.True(t, errors.Is(err, errors.ErrUnsupportedKind))
}

func TestTranslateError(t *testing.T) {
	throttled := &smithy.GenericAPIError{Code: "SlowDown", Message: "reduce your request rate"}
	client := &fakeClient{err: throttled}
	_, err := NewWithClient(client, "bucket").GetMetadata(context.Background(), "key")
	assert.True(t, errors.Is(err, errors.ErrRateLimited))

	client.err = &smithy.GenericAPIError{Code: "NoSuchKey", Message: "not found"}
	_, err = NewWithClient(client, "bucket").GetMetadata(context.Background(), "key")
	assert.False(t, errors.Is(err, errors.ErrRateLimited))
	assert.Equal(t, client.err, errors.RootCause(err))
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Options{})
	assert.Equal(t, errors.MissingFieldError{Field: "bucket"}, err)
}
