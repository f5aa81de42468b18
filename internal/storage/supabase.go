package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/LDANghiem/autovideo-ai-studio-sub001/pkg/httpclient"
)

// Supabase publishes objects to Supabase Storage over its REST API.
// Objects are uploaded with upsert semantics and addressed by the
// project's public object URL scheme.
type Supabase struct {
	baseURL    string
	serviceKey string
	client     *httpclient.Client
}

// NewSupabase creates a Supabase storage provider.
func NewSupabase(baseURL, serviceKey string, client *httpclient.Client) *Supabase {
	if client == nil {
		client = httpclient.NewWithDefaults()
	}
	return &Supabase{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		client:     client,
	}
}

// Upload streams the local file to the storage API with upsert enabled.
func (s *Supabase) Upload(ctx context.Context, bucket, key, localPath, contentType string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("opening upload file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stating upload file: %w", err)
	}

	uploadURL := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, bucket, escapeKey(key))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, f)
	if err != nil {
		return "", fmt.Errorf("creating upload request: %w", err)
	}
	req.ContentLength = info.Size()
	// The file handle is one-shot; reopen it so the client can replay the
	// body on a retried attempt.
	req.GetBody = func() (io.ReadCloser, error) {
		return os.Open(localPath)
	}
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("uploading object %s: %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("uploading object %s: status %d: %s", key, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return s.PublicURL(bucket, key), nil
}

// PublicURL returns the public object URL for a key in a public bucket.
func (s *Supabase) PublicURL(bucket, key string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, bucket, escapeKey(key))
}

// Delete removes an object. A 404 from the API is treated as success.
func (s *Supabase) Delete(ctx context.Context, bucket, key string) error {
	deleteURL := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, bucket, escapeKey(key))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, deleteURL, nil)
	if err != nil {
		return fmt.Errorf("creating delete request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("deleting object %s: %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("deleting object %s: status %d", key, resp.StatusCode)
	}
	return nil
}

// escapeKey escapes each path segment of an object key.
func escapeKey(key string) string {
	segments := strings.Split(JoinKey(key), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}

var _ Provider = (*Supabase)(nil)
