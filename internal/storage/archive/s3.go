package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const defaultRegion = "us-east-1"

// S3Config holds S3 connection configuration
type S3Config struct {
	Bucket    string
	Endpoint  string // Set for MinIO and other S3-compatible services
	Region    string
	AccessKey string
	SecretKey string
	Prefix    string
}

// objectAPI is the part of the S3 client the archive calls.
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	s3.ListObjectsV2APIClient
}

// S3Bucket keeps state snapshots as JSON objects under an optional key
// prefix.
type S3Bucket struct {
	api    objectAPI
	bucket string
	prefix string
}

// NewS3 builds a bucket client with static credentials. A custom endpoint
// switches to path-style addressing.
func NewS3(cfg S3Config) (*S3Bucket, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 archive: bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}

	opts := s3.Options{
		Region:      region,
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}

	return newS3Bucket(s3.New(opts), cfg.Bucket, cfg.Prefix), nil
}

func newS3Bucket(api objectAPI, bucket, prefix string) *S3Bucket {
	return &S3Bucket{
		api:    api,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

// objectKey maps an archive path to its object key.
func (b *S3Bucket) objectKey(path string) string {
	path = strings.TrimPrefix(path, "/")
	if b.prefix == "" {
		return path
	}
	return b.prefix + "/" + path
}

// archivePath is the inverse of objectKey.
func (b *S3Bucket) archivePath(key string) string {
	if b.prefix == "" {
		return key
	}
	return strings.TrimPrefix(key, b.prefix+"/")
}

func (b *S3Bucket) Write(ctx context.Context, path string, data []byte) error {
	key := b.objectKey(path)
	_, err := b.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3 put %s: %w", key, err)
	}
	return nil
}

func (b *S3Bucket) Read(ctx context.Context, path string) ([]byte, error) {
	key := b.objectKey(path)
	out, err := b.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 read %s: %w", key, err)
	}
	return data, nil
}

// List pages through every object under prefix and returns archive paths
// in lexical order.
func (b *S3Bucket) List(ctx context.Context, prefix string) ([]string, error) {
	pages := s3.NewListObjectsV2Paginator(b.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(b.objectKey(prefix)),
	})

	var paths []string
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			paths = append(paths, b.archivePath(aws.ToString(obj.Key)))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func (b *S3Bucket) Delete(ctx context.Context, path string) error {
	key := b.objectKey(path)
	_, err := b.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %s: %w", key, err)
	}
	return nil
}

func (b *S3Bucket) Exists(ctx context.Context, path string) (bool, error) {
	key := b.objectKey(path)
	_, err := b.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	switch {
	case err == nil:
		return true, nil
	case isNotFound(err):
		return false, nil
	default:
		return false, fmt.Errorf("s3 head %s: %w", key, err)
	}
}

// isNotFound reports a missing object. HEAD responses carry no body, so
// some S3-compatible servers only surface the status code.
func isNotFound(err error) bool {
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var resp *awshttp.ResponseError
	return errors.As(err, &resp) && resp.HTTPStatusCode() == http.StatusNotFound
}
