package archive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Storage = (*S3Bucket)(nil)

// fakeObjects is an in-memory objectAPI that pages List results two at a
// time.
type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	lists   int
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: make(map[string][]byte)}
}

func (f *fakeObjects) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjects) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeObjects) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeObjects) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeObjects) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++

	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) && k > aws.ToString(in.ContinuationToken) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := &s3.ListObjectsV2Output{}
	if len(keys) > 2 {
		keys = keys[:2]
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(keys[1])
	}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func TestS3Bucket_KeyMapping(t *testing.T) {
	tests := []struct {
		prefix string
		path   string
		want   string
	}{
		{"", "investments.json", "investments.json"},
		{"dipper", "investments.json", "dipper/investments.json"},
		{"/dipper/", "snapshots/a.json", "dipper/snapshots/a.json"},
	}
	for _, tt := range tests {
		b := newS3Bucket(newFakeObjects(), "backups", tt.prefix)
		key := b.objectKey(tt.path)
		assert.Equal(t, tt.want, key)
		assert.Equal(t, tt.path, b.archivePath(key))
	}
}

func TestS3Bucket_RoundTrip(t *testing.T) {
	api := newFakeObjects()
	b := newS3Bucket(api, "backups", "dipper")
	ctx := context.Background()

	require.NoError(t, b.Write(ctx, "snapshots/2024-03-05.json", []byte(`{"investments":[]}`)))
	assert.Contains(t, api.objects, "dipper/snapshots/2024-03-05.json")

	data, err := b.Read(ctx, "snapshots/2024-03-05.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"investments":[]}`, string(data))

	ok, err := b.Exists(ctx, "snapshots/2024-03-05.json")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, b.Delete(ctx, "snapshots/2024-03-05.json"))
	ok, err = b.Exists(ctx, "snapshots/2024-03-05.json")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = b.Read(ctx, "snapshots/2024-03-05.json")
	var noKey *types.NoSuchKey
	assert.True(t, errors.As(err, &noKey))
}

func TestS3Bucket_ListPaginates(t *testing.T) {
	api := newFakeObjects()
	b := newS3Bucket(api, "backups", "dipper")
	ctx := context.Background()

	for _, name := range []string{"c", "a", "e", "b", "d"} {
		require.NoError(t, b.Write(ctx, "snapshots/"+name+".json", []byte("{}")))
	}
	require.NoError(t, b.Write(ctx, "other/x.json", []byte("{}")))

	paths, err := b.List(ctx, "snapshots/")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"snapshots/a.json", "snapshots/b.json", "snapshots/c.json",
		"snapshots/d.json", "snapshots/e.json",
	}, paths)
	assert.Equal(t, 3, api.lists)
}

func TestNewS3_RequiresBucket(t *testing.T) {
	_, err := NewS3(S3Config{})
	assert.Error(t, err)
}

func TestS3Bucket_AgainstFakeEndpoint(t *testing.T) {
	var (
		mu   sync.Mutex
		puts []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			mu.Lock()
			puts = append(puts, r.URL.Path)
			mu.Unlock()
			w.WriteHeader(http.StatusOK)
		case http.MethodHead:
			if strings.HasSuffix(r.URL.Path, "present.json") {
				w.WriteHeader(http.StatusOK)
				return
			}
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	defer srv.Close()

	b, err := NewS3(S3Config{
		Bucket:    "backups",
		Endpoint:  srv.URL,
		AccessKey: "test",
		SecretKey: "test",
		Prefix:    "dipper",
	})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, b.Write(ctx, "snapshots/a.json", []byte("{}")))
	mu.Lock()
	assert.Equal(t, []string{"/backups/dipper/snapshots/a.json"}, puts)
	mu.Unlock()

	ok, err := b.Exists(ctx, "present.json")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Exists(ctx, "missing.json")
	require.NoError(t, err)
	assert.False(t, ok)
}
