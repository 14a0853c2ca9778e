// Package index defines the uniform contract shared by all vector index
// backends, plus the key type that identifies one index instance.
//
// Each backend (flat, hnsw, usearch) wraps one concrete index behind its own
// synchronization and exposes the same operation set, so the layers above
// never care which library is doing the work.
package index

import (
	"fmt"
	"strings"
)

// Algorithm identifies a vector index backend.
type Algorithm int

const (
	// AlgorithmUnknown is the zero value and never names a usable backend.
	AlgorithmUnknown Algorithm = iota
	// AlgorithmFlat is the exact brute-force scan backend.
	AlgorithmFlat
	// AlgorithmHNSW is the in-memory graph backend.
	AlgorithmHNSW
	// AlgorithmUsearch is the usearch library backend.
	AlgorithmUsearch
)

// String returns the lowercase name of the algorithm.
func (a Algorithm) String() string {
	switch a {
	case AlgorithmFlat:
		return "flat"
	case AlgorithmHNSW:
		return "hnsw"
	case AlgorithmUsearch:
		return "usearch"
	default:
		return "unknown"
	}
}

// ParseAlgorithm converts a case-insensitive name into an Algorithm.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "flat":
		return AlgorithmFlat, nil
	case "hnsw":
		return AlgorithmHNSW, nil
	case "usearch":
		return AlgorithmUsearch, nil
	default:
		return AlgorithmUnknown, &ErrUnsupportedAlgorithm{Name: s}
	}
}

// Metric represents the distance metric an index is built with.
type Metric int

const (
	// MetricL2 orders results by (squared) Euclidean distance.
	MetricL2 Metric = iota
	// MetricInnerProduct orders results by inner-product similarity,
	// expressed as an ascending distance (smaller is more similar).
	MetricInnerProduct
)

// String returns the lowercase name of the metric.
func (m Metric) String() string {
	switch m {
	case MetricL2:
		return "l2"
	case MetricInnerProduct:
		return "ip"
	default:
		return fmt.Sprintf("metric(%d)", int(m))
	}
}

// ParseMetric converts a case-insensitive name into a Metric.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "l2":
		return MetricL2, nil
	case "ip", "innerproduct", "inner_product":
		return MetricInnerProduct, nil
	default:
		return 0, fmt.Errorf("index: unknown metric %q", s)
	}
}

// Key is the identity of one index instance.
//
// Two requests with the same triple resolve to the same underlying instance;
// different triples never share state. Key is comparable and used directly as
// the registry map key.
type Key struct {
	Algorithm Algorithm
	Dimension int
	Metric    Metric
}

// String renders the key for logs and error messages.
func (k Key) String() string {
	return fmt.Sprintf("%s/d=%d/%s", k.Algorithm, k.Dimension, k.Metric)
}

// Validate reports whether the key can identify a constructible index.
func (k Key) Validate() error {
	switch k.Algorithm {
	case AlgorithmFlat, AlgorithmHNSW, AlgorithmUsearch:
	default:
		return &ErrUnsupportedAlgorithm{Name: k.Algorithm.String()}
	}
	if k.Dimension <= 0 {
		return &ErrInvalidDimension{Dimension: k.Dimension}
	}
	switch k.Metric {
	case MetricL2, MetricInnerProduct:
	default:
		return fmt.Errorf("index: unknown metric %q", k.Metric)
	}
	return nil
}

// SearchResult is a single nearest-neighbor hit.
type SearchResult struct {
	// ID is the record identifier of the hit.
	ID uint64

	// Distance is the backend-native distance to the query, ascending
	// (smaller is closer) for every metric.
	Distance float32
}

// FilterFunc reports whether a record id may appear in filtered results.
type FilterFunc func(id uint64) bool

// Index is the uniform contract every backend wrapper satisfies.
//
// All operations are safe for concurrent use. Each wrapper confines its
// synchronization to its own instance; wrappers for different keys never
// share a lock.
type Index interface {
	// Insert adds or re-associates a vector with an id. Vectors of the
	// wrong length fail with *ErrDimensionMismatch.
	Insert(vector []float32, id uint64) error

	// Search returns up to k nearest neighbors in ascending distance order.
	Search(query []float32, k int) ([]SearchResult, error)

	// SearchFiltered returns up to k nearest neighbors whose ids pass the
	// allow predicate. Backends that cannot push the predicate into their
	// native search oversample and post-filter, so fewer than k results may
	// come back on highly selective predicates.
	SearchFiltered(query []float32, k int, allow FilterFunc) ([]SearchResult, error)

	// Remove deletes vectors by id and returns how many were removed.
	// Backends without removal support fail with *ErrRemoveUnsupported.
	Remove(ids []uint64) (int, error)

	// Dimension returns the fixed vector dimensionality.
	Dimension() int

	// Metric returns the configured distance metric.
	Metric() Metric

	// Len returns the number of vectors currently held.
	Len() int

	// Close releases backend resources. The index must not be used after.
	Close() error
}

// CandidatePool sizes the oversampled candidate set for backends that apply
// the filter predicate after their native search. The pool grows with k but
// never beyond the number of stored vectors.
func CandidatePool(k, stored int) int {
	pool := 4 * k
	if m := k + 64; pool < m {
		pool = m
	}
	if pool > stored {
		pool = stored
	}
	return pool
}
