package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
)

// Package storage contains the blob store abstraction for S3-compatible object stores.
// Implementations rely on streaming I/O only.

// ErrNotFound is returned when an object key does not exist.
var ErrNotFound = errors.New("object not found")

// userMetaPrefix is how S3 backends expose user attributes on the wire.
const userMetaPrefix = "x-amz-meta-"

// PutObjectOptions define optional parameters for uploading objects.
// Size should be the exact number of bytes if known; if unknown, set to -1 and the implementation
// will buffer/chunk as supported by the backend.
// ContentType and Metadata are optional.
type PutObjectOptions struct {
	Size        int64
	ContentType string
	Metadata    map[string]string
}

// ObjectInfo contains basic information about an object in storage.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
	Metadata     map[string]string
}

// Attr returns a user attribute regardless of key casing or an x-amz-meta- prefix.
func (o ObjectInfo) Attr(name string) string {
	return MetaValue(o.Metadata, name)
}

// MetaValue looks key up case-insensitively, accepting an x-amz-meta- prefix on stored keys.
func MetaValue(meta map[string]string, key string) string {
	want := strings.ToLower(key)
	for k, v := range meta {
		k = strings.ToLower(k)
		if k == want || strings.TrimPrefix(k, userMetaPrefix) == want {
			return v
		}
	}
	return ""
}

// Storage is a reusable, S3-compatible object storage client interface.
// Methods use context and streaming readers/writers.
type Storage interface {
	// Put uploads an object under the given key using the provided reader and options.
	Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error)
	// Get retrieves an object's content as a streaming reader alongside its info.
	// Missing keys return ErrNotFound.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	// Stat returns an object's info without its content. Missing keys return ErrNotFound.
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	// Delete removes an object by key. Removing a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// List returns every object under prefix, including user metadata.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}
