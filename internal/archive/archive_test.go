package archive

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	if in.Body != nil {
		f.body, _ = io.ReadAll(in.Body)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestUpload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thumbnail_abc.jpg")
	require.NoError(t, os.WriteFile(path, []byte("jpegdata"), 0o644))

	putter := &fakePutter{}
	a := newWithClient(putter, "recordings", "/helpmeout/")

	require.NoError(t, a.Upload(context.Background(), "alice/abc/thumbnail_abc.jpg", path))
	assert.Equal(t, "recordings", aws.ToString(putter.input.Bucket))
	assert.Equal(t, "helpmeout/alice/abc/thumbnail_abc.jpg", aws.ToString(putter.input.Key))
	assert.Equal(t, "image/jpeg", aws.ToString(putter.input.ContentType))
	assert.Equal(t, int64(8), aws.ToInt64(putter.input.ContentLength))
	assert.Equal(t, "jpegdata", string(putter.body))
}

func TestUploadUnknownType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blob.zzz")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	putter := &fakePutter{}
	a := newWithClient(putter, "b", "")
	require.NoError(t, a.Upload(context.Background(), "k", path))
	assert.Equal(t, "application/octet-stream", aws.ToString(putter.input.ContentType))
	assert.Equal(t, "k", aws.ToString(putter.input.Key))
}

func TestUploadErrors(t *testing.T) {
	a := newWithClient(&fakePutter{}, "b", "")
	assert.Error(t, a.Upload(context.Background(), "k", filepath.Join(t.TempDir(), "missing")))

	path := filepath.Join(t.TempDir(), "f.mp4")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	a = newWithClient(&fakePutter{err: errors.New("access denied")}, "b", "")
	err := a.Upload(context.Background(), "k", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.Error(t, err)
}

func TestNewWithEndpoint(t *testing.T) {
	a, err := New(context.Background(), Config{
		Bucket:    "recordings",
		Prefix:    "archive",
		Region:    "auto",
		Endpoint:  "https://example.r2.cloudflarestorage.com/",
		AccessKey: "key",
		SecretKey: "secret",
	})
	require.NoError(t, err)
	assert.Equal(t, "archive/x", a.Key("x"))
	_, ok := a.client.(*s3.Client)
	assert.True(t, ok)
}
