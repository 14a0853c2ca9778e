// Package blobstore abstracts where snapshot archives live: local
// disk, memory, or S3-compatible object storage.
//
// Snapshots are written and read as sequential streams, so blobs are
// plain read/write streams rather than random-access handles.
package blobstore

import (
	"context"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies
// `errors.Is(err, ErrNotFound)`. The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// Store is a named-blob archive.
type Store interface {
	// Open opens a blob for reading. Returns ErrNotFound if the blob
	// does not exist.
	Open(ctx context.Context, name string) (io.ReadCloser, error)

	// Create creates or replaces a blob. The write becomes visible
	// when the returned writer is closed, not before.
	Create(ctx context.Context, name string) (io.WriteCloser, error)

	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error

	// List returns the names of all blobs with the given prefix,
	// sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}
