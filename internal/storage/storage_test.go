package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LDANghiem/autovideo-ai-studio-sub001/pkg/httpclient"
)

func TestJoinKey(t *testing.T) {
	assert.Equal(t, "owner/project/attempt-1/final.mp4", JoinKey("owner", "project", "attempt-1", "final.mp4"))
	assert.Equal(t, "a/b", JoinKey("/a/", "b"))
	assert.Equal(t, "a", JoinKey("a"))
}

func TestContentTypeFor(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"out/final.mp4", "video/mp4"},
		{"thumb.JPG", "image/jpeg"},
		{"thumb.png", "image/png"},
		{"narration.mp3", "audio/mpeg"},
		{"captions.srt", "application/x-subrip"},
		{"mystery.bin", "application/octet-stream"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ContentTypeFor(tt.key), tt.key)
	}
}

func TestLocalFS_UploadAndDelete(t *testing.T) {
	root := t.TempDir()
	provider := NewLocalFS(root, "http://localhost:8080/media/")
	ctx := context.Background()

	srcPath := filepath.Join(t.TempDir(), "final.mp4")
	require.NoError(t, os.WriteFile(srcPath, []byte("video-bytes"), 0o644))

	gotURL, err := provider.Upload(ctx, "videos", "owner-1/proj/attempt-2/final.mp4", srcPath, "video/mp4")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/media/videos/owner-1/proj/attempt-2/final.mp4", gotURL)

	stored, err := os.ReadFile(filepath.Join(root, "videos", "owner-1", "proj", "attempt-2", "final.mp4"))
	require.NoError(t, err)
	assert.Equal(t, "video-bytes", string(stored))

	require.NoError(t, provider.Delete(ctx, "videos", "owner-1/proj/attempt-2/final.mp4"))
	_, err = os.Stat(filepath.Join(root, "videos", "owner-1", "proj", "attempt-2", "final.mp4"))
	assert.True(t, os.IsNotExist(err))

	// Deleting an already-missing object is not an error.
	assert.NoError(t, provider.Delete(ctx, "videos", "owner-1/proj/attempt-2/final.mp4"))
}

func TestSupabase_Upload(t *testing.T) {
	var gotPath, gotAuth, gotUpsert, gotContentType string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotUpsert = r.Header.Get("x-upsert")
		gotContentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		gotBody = body
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	provider := NewSupabase(srv.URL, "service-key-123", nil)

	srcPath := filepath.Join(t.TempDir(), "final.mp4")
	require.NoError(t, os.WriteFile(srcPath, []byte("video-bytes"), 0o644))

	gotURL, err := provider.Upload(context.Background(), "videos", "owner/proj/attempt-1/final.mp4", srcPath, "video/mp4")
	require.NoError(t, err)

	assert.Equal(t, "/storage/v1/object/videos/owner/proj/attempt-1/final.mp4", gotPath)
	assert.Equal(t, "Bearer service-key-123", gotAuth)
	assert.Equal(t, "true", gotUpsert)
	assert.Equal(t, "video/mp4", gotContentType)
	assert.Equal(t, "video-bytes", string(gotBody))
	assert.Equal(t, srv.URL+"/storage/v1/object/public/videos/owner/proj/attempt-1/final.mp4", gotURL)
}

func TestSupabase_UploadRetryReplaysFile(t *testing.T) {
	var mu sync.Mutex
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(body))
		n := len(bodies)
		mu.Unlock()
		if n < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := httpclient.DefaultConfig()
	cfg.RetryAttempts = 2
	cfg.RetryDelay = time.Millisecond
	provider := NewSupabase(srv.URL, "key", httpclient.New(cfg))

	srcPath := filepath.Join(t.TempDir(), "final.mp4")
	require.NoError(t, os.WriteFile(srcPath, []byte("video-bytes"), 0o644))

	_, err := provider.Upload(context.Background(), "videos", "k.mp4", srcPath, "video/mp4")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 2)
	assert.Equal(t, "video-bytes", bodies[0])
	assert.Equal(t, "video-bytes", bodies[1], "retried upload re-reads the file")
}

func TestSupabase_UploadError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":"invalid key"}`))
	}))
	defer srv.Close()

	provider := NewSupabase(srv.URL, "bad-key", nil)

	srcPath := filepath.Join(t.TempDir(), "final.mp4")
	require.NoError(t, os.WriteFile(srcPath, []byte("x"), 0o644))

	_, err := provider.Upload(context.Background(), "videos", "k.mp4", srcPath, "video/mp4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestSupabase_DeleteNotFoundOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	provider := NewSupabase(srv.URL, "key", nil)
	assert.NoError(t, provider.Delete(context.Background(), "videos", "gone.mp4"))
}

func TestSupabase_PublicURLEscaping(t *testing.T) {
	provider := NewSupabase("https://proj.supabase.co", "key", nil)
	got := provider.PublicURL("shorts", "owner/my clip.mp4")
	assert.Equal(t, "https://proj.supabase.co/storage/v1/object/public/shorts/owner/my%20clip.mp4", got)
}
