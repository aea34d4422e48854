// Package storage defines the backend interface for file bytes.
//
// A Backend is a narrow byte store keyed by slash-separated relative
// keys produced by the repository path policy. Two implementations
// exist: a local filesystem store (storage/fs) and an S3-compatible
// object store (storage/s3). Coordinators select one per repository at
// construction time; nothing above this package branches on the
// concrete type.
package storage

import (
	"context"
	"io"
)

// Backend stores and retrieves file bytes under relative keys.
//
// Key Semantics:
// Keys are slash-separated relative paths such as
// "2025/invoices/a.txt". They never start with "/" and never contain
// "." or ".." segments; implementations reject keys that would escape
// their root.
//
// Thread Safety:
// Implementations must be safe for concurrent use. Concurrent writes
// to the same key have last-writer-wins semantics; no implementation
// coordinates concurrent writers beyond that.
type Backend interface {
	// Exists reports whether an object is stored under key. It returns
	// false with a nil error for absent keys; errors are reserved for
	// backend failures.
	Exists(ctx context.Context, key string) (bool, error)

	// Save writes the full content of r under key, replacing any
	// existing object. contentType may be empty; object stores record
	// it as the object's content type, filesystem stores ignore it.
	Save(ctx context.Context, key string, r io.Reader, contentType string) error

	// Open returns a reader for the object under key. The caller must
	// close it. Absent keys yield ErrObjectNotFound.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object under key. Deleting an absent key is
	// not an error.
	Delete(ctx context.Context, key string) error

	// Rename moves the object from oldKey to newKey. Filesystem stores
	// move atomically where the OS allows; object stores emulate the
	// move as read, write, delete-original, which is observably
	// non-atomic on failure. Absent oldKey yields ErrObjectNotFound.
	Rename(ctx context.Context, oldKey, newKey string) error
}
