// Package s3 exposes an S3 bucket as a remote.Source. Key prefixes ending in
// "/" are folders and object keys are file ids.
package s3

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/sidkik/drivesync/pkg/errors"
	"github.com/sidkik/drivesync/pkg/remote"
)

const delimiter = "/"

// throttlingCodes are the S3 error codes that mean "slow down".
var throttlingCodes = map[string]struct{}{
	"SlowDown":             {},
	"Throttling":           {},
	"ThrottlingException":  {},
	"RequestLimitExceeded": {},
	"RequestThrottled":     {},
	"TooManyRequests":      {},
}

// Client is the subset of the S3 API used by Source.
type Client interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input,
		optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput,
		optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput,
		optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Options configures the connection to the bucket.
type Options struct {
	Bucket   string
	Region   string
	Endpoint string

	// PathStyle is required by most S3-compatible servers such as MinIO.
	PathStyle bool

	// CredentialsFile is a shared AWS credentials file. When AccessKey and
	// SecretKey are set they take precedence.
	CredentialsFile string
	AccessKey       string
	SecretKey       string
}

// Source is a remote.Source backed by an S3 bucket.
type Source struct {
	client Client
	bucket string
}

// New connects to the bucket described by `opts`.
func New(ctx context.Context, opts Options) (*Source, error) {
	if opts.Bucket == "" {
		return nil, errors.MissingFieldError{Field: "bucket"}
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.CredentialsFile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedCredentialsFiles([]string{opts.CredentialsFile}))
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.WithContext(err, "load aws config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.PathStyle
	})
	return NewWithClient(client, opts.Bucket), nil
}

// NewWithClient creates a Source that uses an existing client.
func NewWithClient(client Client, bucket string) *Source {
	return &Source{client: client, bucket: bucket}
}

// ListChildren implements remote.Source. `folderID` is a key prefix, and the
// empty string is the root of the bucket.
func (s *Source) ListChildren(ctx context.Context, folderID, pageToken string) (
	[]remote.Entry, string, error) {

	prefix := folderPrefix(folderID)
	input := &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String(delimiter),
	}
	if pageToken != "" {
		input.ContinuationToken = aws.String(pageToken)
	}

	out, err := s.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, "", translateError(err, fmt.Sprintf("list %s", prefix))
	}

	var entries []remote.Entry
	for _, cp := range out.CommonPrefixes {
		key := aws.ToString(cp.Prefix)
		entries = append(entries, remote.Entry{
			ID:   key,
			Name: strings.TrimSuffix(strings.TrimPrefix(key, prefix), delimiter),
			Kind: remote.KindFolder,
		})
	}

	for _, obj := range out.Contents {
		key := aws.ToString(obj.Key)
		// Some tools create empty "directory marker" objects.
		if key == prefix || strings.HasSuffix(key, delimiter) {
			continue
		}

		entries = append(entries, remote.Entry{
			ID:           key,
			Name:         strings.TrimPrefix(key, prefix),
			Kind:         remote.KindFile,
			Size:         uint64(aws.ToInt64(obj.Size)),
			ModifiedTime: aws.ToTime(obj.LastModified),
		})
	}

	var next string
	if aws.ToBool(out.IsTruncated) {
		next = aws.ToString(out.NextContinuationToken)
	}
	return entries, next, nil
}

// GetMetadata implements remote.Source.
func (s *Source) GetMetadata(ctx context.Context, id string) (remote.Metadata, error) {
	if id == "" || strings.HasSuffix(id, delimiter) {
		return remote.Metadata{Kind: remote.KindFolder}, nil
	}

	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		return remote.Metadata{}, translateError(err, fmt.Sprintf("head %s", id))
	}

	return remote.Metadata{
		MimeType:     aws.ToString(out.ContentType),
		Kind:         remote.KindFile,
		Size:         uint64(aws.ToInt64(out.ContentLength)),
		ModifiedTime: aws.ToTime(out.LastModified),
	}, nil
}

// OpenContent implements remote.Source.
func (s *Source) OpenContent(ctx context.Context, id string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		return nil, translateError(err, fmt.Sprintf("get %s", id))
	}
	return out.Body, nil
}

// OpenExport implements remote.Source. Objects are never composite.
func (s *Source) OpenExport(_ context.Context, id, mimeType string) (io.ReadCloser, error) {
	return nil, errors.WithContext(errors.ErrUnsupportedKind,
		fmt.Sprintf("export %s as %s", id, mimeType))
}

func folderPrefix(folderID string) string {
	if folderID == "" || strings.HasSuffix(folderID, delimiter) {
		return folderID
	}
	return folderID + delimiter
}

// translateError maps throttling responses onto errors.ErrRateLimited.
func translateError(err error, op string) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if _, ok := throttlingCodes[apiErr.ErrorCode()]; ok {
			return errors.WithContext(errors.ErrRateLimited,
				fmt.Sprintf("%s: %s", op, apiErr.ErrorMessage()))
		}
	}
	return errors.WithContext(err, op)
}
