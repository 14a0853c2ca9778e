// Package scalar persists the documents stored alongside vectors, keyed by
// record id. Values are opaque encoded bytes; the codec lives with the
// caller so one store can hold documents written by different codecs.
package scalar

import "errors"

// ErrNotFound is returned when no document exists for an id.
var ErrNotFound = errors.New("scalar: document not found")

// Store persists encoded documents keyed by record id.
//
// Implementations must be safe for concurrent use. Returned byte slices are
// private copies the caller may retain or mutate.
type Store interface {
	// Put stores the encoded document under id, replacing any previous
	// value.
	Put(id uint64, doc []byte) error

	// Get returns the encoded document for id, or ErrNotFound.
	Get(id uint64) ([]byte, error)

	// Delete removes the document for id. Returns ErrNotFound when no
	// document is stored.
	Delete(id uint64) error

	// Each calls fn for every stored document until fn returns false.
	// fn must not call back into the store.
	Each(fn func(id uint64, doc []byte) bool) error

	// Len returns the number of stored documents.
	Len() (int, error)

	// Clear removes all documents.
	Clear() error

	// Close releases store resources.
	Close() error
}
