package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// LocalFS stores objects under a directory on the local filesystem and
// serves them by URL from a configured public base. Intended for
// development and single-node deployments.
type LocalFS struct {
	rootDir       string
	publicBaseURL string
}

// NewLocalFS creates a filesystem-backed provider rooted at rootDir.
func NewLocalFS(rootDir, publicBaseURL string) *LocalFS {
	return &LocalFS{
		rootDir:       rootDir,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

// Upload copies the local file into the bucket directory.
func (l *LocalFS) Upload(ctx context.Context, bucket, key, localPath, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	destPath := filepath.Join(l.rootDir, bucket, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", fmt.Errorf("creating object directory: %w", err)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("opening source file: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("creating object file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(destPath)
		return "", fmt.Errorf("copying object: %w", err)
	}

	return l.PublicURL(bucket, key), nil
}

// PublicURL returns the serving URL for an object key.
func (l *LocalFS) PublicURL(bucket, key string) string {
	escaped := make([]string, 0, 8)
	for _, seg := range strings.Split(JoinKey(bucket, key), "/") {
		escaped = append(escaped, url.PathEscape(seg))
	}
	return l.publicBaseURL + "/" + strings.Join(escaped, "/")
}

// Delete removes an object file. Missing files are ignored.
func (l *LocalFS) Delete(ctx context.Context, bucket, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(l.rootDir, bucket, filepath.FromSlash(key)))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting object: %w", err)
	}
	return nil
}

var _ Provider = (*LocalFS)(nil)
