// Package storage abstracts artifact publishing. Every rendered video,
// clip, and thumbnail is uploaded under an attempt-namespaced object key
// and addressed afterwards by a public URL.
package storage

import (
	"context"
	"errors"
	"path"
	"strings"
)

// ErrObjectNotFound is returned when a requested object does not exist.
var ErrObjectNotFound = errors.New("object not found")

// Provider uploads artifacts and resolves their public URLs.
type Provider interface {
	// Upload stores the local file at the given object key inside the
	// bucket and returns the public URL of the stored object. Existing
	// objects at the same key are overwritten.
	Upload(ctx context.Context, bucket, key, localPath, contentType string) (string, error)

	// PublicURL returns the public URL for an object key without uploading.
	PublicURL(bucket, key string) string

	// Delete removes an object. Missing objects are not an error.
	Delete(ctx context.Context, bucket, key string) error
}

// JoinKey builds an object key from path segments, normalizing separators.
func JoinKey(segments ...string) string {
	return strings.TrimPrefix(path.Join(segments...), "/")
}

// ContentTypeFor guesses a content type from the object key extension.
func ContentTypeFor(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".srt":
		return "application/x-subrip"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
