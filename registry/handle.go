// Package registry owns the lifecycle of every index instance: fluent
// builders construct backend indexes, and the Registry maps each index key
// to its handle with exactly-once construction semantics.
package registry

import (
	"github.com/hupe1980/vecd/index"
	"github.com/hupe1980/vecd/index/flat"
	"github.com/hupe1980/vecd/index/hnsw"
	"github.com/hupe1980/vecd/index/usearch"
)

// Handle holds exactly one backend index as a closed union over the known
// backend set, dispatched by the key's algorithm. Accessors return the
// concrete type for callers that need backend-specific capabilities; Index
// returns the uniform contract.
//
// Handles are immutable: once a handle is registered it is never replaced,
// and cloning the pointer aliases the same underlying index.
type Handle struct {
	key index.Key

	flat    *flat.Index
	hnsw    *hnsw.Index
	usearch *usearch.Index
}

// Key returns the identity triple of the held index.
func (h *Handle) Key() index.Key { return h.key }

// Algorithm returns the backend algorithm of the held index.
func (h *Handle) Algorithm() index.Algorithm { return h.key.Algorithm }

// Flat returns the concrete flat index, or false when the handle holds a
// different backend.
func (h *Handle) Flat() (*flat.Index, bool) {
	if h.flat == nil {
		return nil, false
	}
	return h.flat, true
}

// HNSW returns the concrete hnsw index, or false when the handle holds a
// different backend.
func (h *Handle) HNSW() (*hnsw.Index, bool) {
	if h.hnsw == nil {
		return nil, false
	}
	return h.hnsw, true
}

// Usearch returns the concrete usearch index, or false when the handle
// holds a different backend.
func (h *Handle) Usearch() (*usearch.Index, bool) {
	if h.usearch == nil {
		return nil, false
	}
	return h.usearch, true
}

// Index returns the held backend through the uniform contract.
func (h *Handle) Index() index.Index {
	switch {
	case h.flat != nil:
		return h.flat
	case h.hnsw != nil:
		return h.hnsw
	case h.usearch != nil:
		return h.usearch
	default:
		return nil
	}
}

// Close releases the held backend's resources.
func (h *Handle) Close() error {
	if idx := h.Index(); idx != nil {
		return idx.Close()
	}
	return nil
}
