// Package remote is the object-storage boundary of the pipeline. The
// driver and worker depend on the Store interface only; S3 and local
// disk are interchangeable behind it.
package remote

import (
	"context"
	"fmt"
	"io"
	"time"
)

// PutResult describes a stored object.
type PutResult struct {
	Path string
	URL  string
}

// Store is the remote object store the pipeline depends on.
type Store interface {
	// Upload writes size bytes from r to path. It must honor ctx
	// cancellation mid-transfer.
	Upload(ctx context.Context, path string, r io.Reader, size int64, contentType string) (*PutResult, error)

	// SignedURL returns a time-limited read link for a stored object.
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)

	Delete(ctx context.Context, path string) error
}

// ObjectKey builds the storage key for an uploaded file. Keys are
// namespaced per user and day so buckets stay listable.
func ObjectKey(userID, fileID, filename string) string {
	d := time.Now().UTC()
	return fmt.Sprintf("media/%s/%04d/%02d/%02d/%s/%s", userID, d.Year(), d.Month(), d.Day(), fileID, filename)
}

// ThumbKey names a thumbnail rendition stored next to its original.
func ThumbKey(objectKey, size string) string {
	return fmt.Sprintf("%s-thumb-%s.jpg", objectKey, size)
}
