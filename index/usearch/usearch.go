// Package usearch wraps the unum-cloud usearch index behind the uniform
// backend contract.
//
// The Go binding does not guard concurrent mutation of one index, so the
// wrapper carries its own RWMutex: searches share a read lock, inserts and
// removals take the write lock. Serves L2 (l2sq) and inner-product (ip)
// metrics. Requires cgo and libusearch_c at build time.
package usearch

import (
	"fmt"
	"sync"

	usearchlib "github.com/unum-cloud/usearch/golang"

	"github.com/hupe1980/vecd/index"
)

// Compile-time check that Index satisfies the backend contract.
var _ index.Index = (*Index)(nil)

// defaultCapacity reserves space for indexes built without a capacity hint.
const defaultCapacity = 64

// Options contains the usearch tuning parameters. Zero values defer to the
// library defaults.
type Options struct {
	// Connectivity limits connections per node in the graph.
	Connectivity uint

	// ExpansionAdd is the expansion factor during vector addition.
	ExpansionAdd uint

	// ExpansionSearch is the expansion factor during search.
	ExpansionSearch uint
}

// Index is a usearch-backed vector index.
type Index struct {
	mu    sync.RWMutex // the binding does not synchronize mutation
	inner *usearchlib.Index

	dimension int
	metric    index.Metric
	count     int
	capacity  uint
}

// New creates a usearch index. The capacity hint pre-reserves graph slots
// and may be zero.
func New(dimension int, metric index.Metric, capacity int, optFns ...func(o *Options)) (*Index, error) {
	if dimension <= 0 {
		return nil, &index.ErrInvalidDimension{Dimension: dimension}
	}

	conf := usearchlib.DefaultConfig(uint(dimension))
	conf.Quantization = usearchlib.F32
	switch metric {
	case index.MetricL2:
		conf.Metric = usearchlib.L2sq
	case index.MetricInnerProduct:
		conf.Metric = usearchlib.InnerProduct
	default:
		return nil, &index.ErrUnsupportedMetric{Algorithm: index.AlgorithmUsearch, Metric: metric}
	}

	var opts Options
	for _, fn := range optFns {
		fn(&opts)
	}
	conf.Connectivity = opts.Connectivity
	conf.ExpansionAdd = opts.ExpansionAdd
	conf.ExpansionSearch = opts.ExpansionSearch

	inner, err := usearchlib.NewIndex(conf)
	if err != nil {
		return nil, fmt.Errorf("usearch init: %w", err)
	}

	reserve := uint(capacity)
	if reserve == 0 {
		reserve = defaultCapacity
	}
	if err := inner.Reserve(reserve); err != nil {
		_ = inner.Close()
		return nil, fmt.Errorf("usearch reserve: %w", err)
	}

	return &Index{
		inner:     inner,
		dimension: dimension,
		metric:    metric,
		capacity:  reserve,
	}, nil
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

	idx.mu.Lock()
	defer idx.mu.Unlock()

	// The library rejects duplicate keys in single-vector mode, so replace
	// means remove-then-add.
	found, err := idx.inner.Contains(id)
	if err != nil {
		return fmt.Errorf("usearch contains: %w", err)
	}
	if found {
		if err := idx.inner.Remove(id); err != nil {
			return fmt.Errorf("usearch remove: %w", err)
		}
		idx.count--
	}

	if err := idx.ensureCapacityLocked(idx.count + 1); err != nil {
		return err
	}
	if err := idx.inner.Add(id, vector); err != nil {
		return fmt.Errorf("usearch add: %w", err)
	}
	idx.count++
	return nil
}

// ensureCapacityLocked grows the reservation ahead of need. Caller must hold
// the write lock.
func (idx *Index) ensureCapacityLocked(need int) error {
	if uint(need) <= idx.capacity {
		return nil
	}
	grown := idx.capacity * 2
	if grown < uint(need) {
		grown = uint(need)
	}
	if err := idx.inner.Reserve(grown); err != nil {
		return fmt.Errorf("usearch reserve: %w", err)
	}
	idx.capacity = grown
	return nil
}

// Remove deletes vectors by id and returns how many were present.
func (idx *Index) Remove(ids []uint64) (int, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	removed := 0
	for _, id := range ids {
		found, err := idx.inner.Contains(id)
		if err != nil {
			return removed, fmt.Errorf("usearch contains: %w", err)
		}
		if !found {
			continue
		}
		if err := idx.inner.Remove(id); err != nil {
			return removed, fmt.Errorf("usearch remove: %w", err)
		}
		idx.count--
		removed++
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

	if idx.count == 0 {
		return nil, nil
	}
	return idx.searchLocked(query, k)
}

// SearchFiltered performs the native search over an oversampled candidate
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

	if idx.count == 0 {
		return nil, nil
	}

	candidates, err := idx.searchLocked(query, index.CandidatePool(k, idx.count))
	if err != nil {
		return nil, err
	}
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

func (idx *Index) searchLocked(query []float32, limit int) ([]index.SearchResult, error) {
	if limit > idx.count {
		limit = idx.count
	}
	keys, distances, err := idx.inner.Search(query, uint(limit))
	if err != nil {
		return nil, fmt.Errorf("usearch search: %w", err)
	}
	results := make([]index.SearchResult, len(keys))
	for i, key := range keys {
		results[i] = index.SearchResult{ID: key, Distance: distances[i]}
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

// Dimension returns the fixed vector dimensionality.
func (idx *Index) Dimension() int { return idx.dimension }

// Metric returns the configured distance metric.
func (idx *Index) Metric() index.Metric { return idx.metric }

// Len returns the number of stored vectors.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.count
}

// Close frees the underlying native index. The index must not be used
// after Close.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.inner.Close()
}
