package blob

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	ctx := context.Background()

	store, err := New(ctx, Config{})
	require.NoError(t, err)
	assert.Nil(t, store)

	store, err = New(ctx, Config{Type: "LOCAL", Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &Local{}, store)

	_, err = New(ctx, Config{Type: "ftp"})
	assert.Error(t, err)

	_, err = New(ctx, Config{Type: TypeLocal})
	assert.Error(t, err)

	_, err = New(ctx, Config{Type: TypeS3})
	assert.Error(t, err)
}

func TestLocal_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "file-1", []byte("first")))
	require.NoError(t, store.Put(ctx, "file-1", []byte("second")))

	data, err := store.Get(ctx, "file-1")
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	require.NoError(t, store.Delete(ctx, "file-1"))
	require.NoError(t, store.Delete(ctx, "file-1"))

	_, err = store.Get(ctx, "file-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocal_RejectsUnsafeKeys(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", "..", "a/b", `a\b`, "../escape"} {
		assert.ErrorIs(t, store.Put(ctx, key, nil), ErrInvalidKey, key)
		_, err := store.Get(ctx, key)
		assert.ErrorIs(t, err, ErrInvalidKey, key)
		assert.ErrorIs(t, store.Delete(ctx, key), ErrInvalidKey, key)
	}
}

// fakeS3 serves path-style object requests from memory.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.Method {
	case http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = data
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		data, ok := f.objects[r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
			return
		}
		_, _ = w.Write(data)
	case http.MethodDelete:
		delete(f.objects, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestS3_RoundTrip(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ctx := context.Background()
	store, err := NewS3(ctx, S3Config{
		Endpoint:        srv.URL,
		Region:          "us-east-1",
		Bucket:          "uploads",
		Prefix:          "/raw/",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		PathStyle:       true,
	})
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "file-1", []byte("payload")))
	fake.mu.Lock()
	assert.Equal(t, []byte("payload"), fake.objects["/uploads/raw/file-1"])
	fake.mu.Unlock()

	data, err := store.Get(ctx, "file-1")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	require.NoError(t, store.Delete(ctx, "file-1"))
	_, err = store.Get(ctx, "file-1")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, store.Put(ctx, "a/b", nil), ErrInvalidKey)
}
