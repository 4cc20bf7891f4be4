package avatar

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/goliatone/go-credentials/pkg/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fixedIDs struct {
	id uuid.UUID
}

func (f fixedIDs) UUID() uuid.UUID { return f.id }

func TestFetcher_StoresImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png-bytes"))
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	id := uuid.New()
	fetcher, err := NewFetcher(Config{
		Storage: FileStorage{Dir: dir, BaseURL: "https://cdn.example.com/media/"},
		IDGen:   fixedIDs{id: id},
	})
	require.NoError(t, err)

	url, err := fetcher.FetchAndStore(context.Background(), srv.URL+"/photo")
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/media/"+id.String()+".jpg", url)

	content, err := os.ReadFile(filepath.Join(dir, id.String()+".jpg"))
	require.NoError(t, err)
	require.Equal(t, "png-bytes", string(content))
}

func TestFetcher_UpstreamFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		case "/large":
			_, _ = w.Write([]byte(strings.Repeat("x", 64)))
		case "/slow":
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	fetcher, err := NewFetcher(Config{
		Storage:  FileStorage{Dir: dir},
		Timeout:  100 * time.Millisecond,
		MaxBytes: 32,
	})
	require.NoError(t, err)

	for _, path := range []string{"/missing", "/large", "/slow"} {
		_, err := fetcher.FetchAndStore(context.Background(), srv.URL+path)
		require.ErrorIs(t, err, types.ErrUpstreamUnavailable, path)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

type failingReader struct {
	sent bool
}

func (f *failingReader) Read(p []byte) (int, error) {
	if !f.sent {
		f.sent = true
		return copy(p, "partial"), nil
	}
	return 0, errors.New("connection reset")
}

func TestFileStorage_RemovesPartialFiles(t *testing.T) {
	dir := t.TempDir()
	storage := FileStorage{Dir: dir}

	_, err := storage.Put(context.Background(), "a.jpg", "image/jpeg", &failingReader{})
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestFileStorage_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "media", "avatars")
	url, err := FileStorage{Dir: dir, BaseURL: "/media/"}.Put(context.Background(), "b.jpg", "", strings.NewReader("ok"))
	require.NoError(t, err)
	require.Equal(t, "/media/b.jpg", url)

	_, err = os.Stat(filepath.Join(dir, "b.jpg"))
	require.NoError(t, err)
}

type fakePutObject struct {
	input *s3.PutObjectInput
	body  string
}

func (f *fakePutObject) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.body = string(data)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Storage_Put(t *testing.T) {
	api := &fakePutObject{}
	storage := NewS3StorageWithAPI(api, S3Config{
		Bucket:  "avatars",
		Prefix:  "/media/",
		BaseURL: "https://bucket.example.com/",
	})

	url, err := storage.Put(context.Background(), "c.jpg", "image/jpeg", strings.NewReader("jpeg"))
	require.NoError(t, err)
	require.Equal(t, "https://bucket.example.com/media/c.jpg", url)
	require.Equal(t, "avatars", aws.ToString(api.input.Bucket))
	require.Equal(t, "media/c.jpg", aws.ToString(api.input.Key))
	require.Equal(t, int64(4), aws.ToInt64(api.input.ContentLength))
	require.Equal(t, "jpeg", api.body)
}

func TestNewS3Storage_Validates(t *testing.T) {
	_, err := NewS3Storage(context.Background(), S3Config{})
	require.Error(t, err)
	_, err = NewS3Storage(context.Background(), S3Config{Bucket: "b"})
	require.Error(t, err)
}
