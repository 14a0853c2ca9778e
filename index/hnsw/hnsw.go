// Package hnsw wraps the coder/hnsw graph behind the uniform backend
// contract.
//
// The wrapped graph is not safe for concurrent mutation, so every operation
// goes through the wrapper's explicit RWMutex: searches share a read lock,
// inserts and removals take the write lock. This backend serves the L2
// metric only.
package hnsw

import (
	"sync"

	hnswlib "github.com/coder/hnsw"

	"github.com/hupe1980/vecd/index"
)

// Compile-time check that Index satisfies the backend contract.
var _ index.Index = (*Index)(nil)

// Options contains the graph tuning parameters.
type Options struct {
	// M is the maximum number of neighbors per node.
	M int

	// Ml is the level generation factor controlling layer distribution.
	Ml float64

	// EfSearch is the size of the dynamic candidate list during search.
	// Higher values trade latency for recall.
	EfSearch int
}

// DefaultOptions contains the default graph tuning parameters.
var DefaultOptions = Options{
	M:        16,
	Ml:       0.25,
	EfSearch: 200,
}

// Index is an HNSW-backed vector index.
type Index struct {
	mu    sync.RWMutex // graph Add/Delete are not thread-safe
	graph *hnswlib.Graph[uint64]

	dimension int
	opts      Options
}

// New creates an HNSW index. Only the L2 metric is supported; requesting any
// other metric fails at construction.
func New(dimension int, metric index.Metric, optFns ...func(o *Options)) (*Index, error) {
	if dimension <= 0 {
		return nil, &index.ErrInvalidDimension{Dimension: dimension}
	}
	if metric != index.MetricL2 {
		return nil, &index.ErrUnsupportedMetric{Algorithm: index.AlgorithmHNSW, Metric: metric}
	}

	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	g := hnswlib.NewGraph[uint64]()
	g.M = opts.M
	g.Ml = opts.Ml
	g.EfSearch = opts.EfSearch
	g.Distance = hnswlib.EuclideanDistance

	return &Index{
		graph:     g,
		dimension: dimension,
		opts:      opts,
	}, nil
}

func (o Options) validate() error {
	if o.M <= 0 {
		return &index.ErrInvalidParameter{Name: "M", Reason: "must be > 0"}
	}
	if o.Ml <= 0 || o.Ml > 1 {
		return &index.ErrInvalidParameter{Name: "Ml", Reason: "must be in (0, 1]"}
	}
	if o.EfSearch <= 0 {
		return &index.ErrInvalidParameter{Name: "EfSearch", Reason: "must be > 0"}
	}
	return nil
}

// Insert adds a vector under id, replacing any vector previously stored for
// the same id.
func (idx *Index) Insert(vector []float32, id uint64) error {
	if len(vector) == 0 {
		return index.ErrEmptyVector
	}
	if len(vector) != idx.dimension {
		return &index.ErrDimensionMismatch{Expected: idx.dimension, Actual: len(vector)}
	}

	// The graph keeps the slice; copy so the caller cannot mutate it later.
	vec := make([]float32, len(vector))
	copy(vec, vector)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.graph.Delete(id)
	idx.graph.Add(hnswlib.MakeNode(id, vec))
	return nil
}

// Remove deletes vectors by id and returns how many were present.
func (idx *Index) Remove(ids []uint64) (int, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	removed := 0
	for _, id := range ids {
		if idx.graph.Delete(id) {
			removed++
		}
	}
	return removed, nil
}

// Search returns up to k nearest neighbors in ascending distance order.
func (idx *Index) Search(query []float32, k int) ([]index.SearchResult, error) {
	if err := idx.validateQuery(query, k); err != nil {
		return nil, err
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.graph.Len() == 0 {
		return nil, nil
	}
	return idx.collect(query, idx.graph.Search(query, k)), nil
}

// SearchFiltered performs the graph search over an oversampled candidate
// pool and drops candidates failing the allow predicate. Highly selective
// predicates may yield fewer than k results.
func (idx *Index) SearchFiltered(query []float32, k int, allow index.FilterFunc) ([]index.SearchResult, error) {
	if allow == nil {
		return idx.Search(query, k)
	}
	if err := idx.validateQuery(query, k); err != nil {
		return nil, err
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	stored := idx.graph.Len()
	if stored == 0 {
		return nil, nil
	}

	candidates := idx.collect(query, idx.graph.Search(query, index.CandidatePool(k, stored)))
	results := candidates[:0]
	for _, c := range candidates {
		if !allow(c.ID) {
			continue
		}
		results = append(results, c)
		if len(results) == k {
			break
		}
	}
	return results, nil
}

func (idx *Index) validateQuery(query []float32, k int) error {
	if k <= 0 {
		return index.ErrInvalidK
	}
	if len(query) == 0 {
		return index.ErrEmptyVector
	}
	if len(query) != idx.dimension {
		return &index.ErrDimensionMismatch{Expected: idx.dimension, Actual: len(query)}
	}
	return nil
}

// collect turns graph nodes into search results. The graph yields neighbors
// nearest first but without distances, so they are recomputed here with the
// same distance function the graph searches with.
func (idx *Index) collect(query []float32, nodes []hnswlib.Node[uint64]) []index.SearchResult {
	results := make([]index.SearchResult, len(nodes))
	for i, n := range nodes {
		results[i] = index.SearchResult{
			ID:       n.Key,
			Distance: hnswlib.EuclideanDistance(query, n.Value),
		}
	}
	return results
}

// Dimension returns the fixed vector dimensionality.
func (idx *Index) Dimension() int { return idx.dimension }

// Metric returns index.MetricL2; it is the only metric this backend serves.
func (idx *Index) Metric() index.Metric { return index.MetricL2 }

// Len returns the number of stored vectors.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.graph.Len()
}

// Close releases nothing for the graph index; it exists to satisfy the
// backend contract.
func (idx *Index) Close() error { return nil }
