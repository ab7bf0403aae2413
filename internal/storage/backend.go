// Package storage defines the Backend interface for media blob storage
// and provides the filesystem and S3 implementations plus a process-wide
// connection cache.
package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"
)

// ErrNotFound is returned when an object does not exist in a backend.
var ErrNotFound = errors.New("object not found")

// Backend is the interface for media storage backends.
// Implementations handle raw object I/O (local filesystem, S3).
// Library metadata (songs, sources, tags) is handled separately by
// library.Store.
type Backend interface {
	// GetObject retrieves an object by key with optional range support.
	// If offset=0 and length=0, the entire object is returned.
	GetObject(ctx context.Context, key string, offset, length int64) (io.ReadCloser, int64, error)

	// PutObject uploads content to the given key.
	PutObject(ctx context.Context, key string, body io.Reader, size int64) error

	// StatObject returns the total size of the object at key.
	StatObject(ctx context.Context, key string) (int64, error)

	// DeleteObject removes an object by key.
	DeleteObject(ctx context.Context, key string) error

	// ObjectExists checks if an object exists at the given key.
	ObjectExists(ctx context.Context, key string) (bool, error)

	// Type returns the backend type identifier ("fs", "s3").
	Type() string

	// Close releases any resources held by the backend.
	Close() error
}

// PresignedRequest is a fully-formed request description a client can use
// to fetch an object directly from the backend.
type PresignedRequest struct {
	Method string
	URL    string
	Header http.Header
}

// PresignOptions carries response-header overrides for a presigned read.
type PresignOptions struct {
	Expires      time.Duration
	ContentType  string
	CacheControl string
}

// Presigner is implemented by backends that can issue presigned direct
// read requests. Callers discover the capability with a type assertion;
// backends without it are served through the same-origin byte endpoint.
type Presigner interface {
	PresignGetObject(ctx context.Context, key string, opts PresignOptions) (*PresignedRequest, error)
}
