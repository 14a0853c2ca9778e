// Package flat provides an exact brute-force vector index.
//
// Every search scans all stored vectors, so recall is always 100%. The index
// uses a copy-on-write state for lock-free reads: searches load the current
// state atomically while writes clone, mutate, and republish it under a
// write mutex.
package flat

import (
	"container/heap"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/vecd/index"
)

// Compile-time check that Index satisfies the backend contract.
var _ index.Index = (*Index)(nil)

// state is the immutable snapshot searches operate on. ids and vectors are
// parallel slices; pos maps an id to its slot.
type state struct {
	ids     []uint64
	vectors [][]float32
	pos     map[uint64]int
}

// Index is an exact-scan vector index.
type Index struct {
	state   atomic.Value // holds *state
	writeMu sync.Mutex   // serializes writes only

	dimension int
	metric    index.Metric
	distance  func(a, b []float32) float32
}

// New creates a flat index. The capacity hint pre-sizes the internal slices
// and may be zero.
func New(dimension int, metric index.Metric, capacity int) (*Index, error) {
	if dimension <= 0 {
		return nil, &index.ErrInvalidDimension{Dimension: dimension}
	}
	if capacity < 0 {
		capacity = 0
	}

	var dist func(a, b []float32) float32
	switch metric {
	case index.MetricL2:
		dist = squaredL2
	case index.MetricInnerProduct:
		// Negated dot keeps ascending order meaning "most similar first".
		dist = negatedDot
	default:
		return nil, &index.ErrUnsupportedMetric{Algorithm: index.AlgorithmFlat, Metric: metric}
	}

	idx := &Index{
		dimension: dimension,
		metric:    metric,
		distance:  dist,
	}
	idx.state.Store(&state{
		ids:     make([]uint64, 0, capacity),
		vectors: make([][]float32, 0, capacity),
		pos:     make(map[uint64]int, capacity),
	})
	return idx, nil
}

func (idx *Index) getState() *state {
	return idx.state.Load().(*state)
}

func cloneState(st *state) *state {
	ids := make([]uint64, len(st.ids))
	copy(ids, st.ids)

	vectors := make([][]float32, len(st.vectors))
	copy(vectors, st.vectors)

	pos := make(map[uint64]int, len(st.pos))
	for id, p := range st.pos {
		pos[id] = p
	}

	return &state{ids: ids, vectors: vectors, pos: pos}
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

	// Copy so later caller mutation cannot reach into published state.
	vec := make([]float32, len(vector))
	copy(vec, vector)

	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	newState := cloneState(idx.getState())
	if p, ok := newState.pos[id]; ok {
		newState.vectors[p] = vec
	} else {
		newState.pos[id] = len(newState.ids)
		newState.ids = append(newState.ids, id)
		newState.vectors = append(newState.vectors, vec)
	}
	idx.state.Store(newState)
	return nil
}

// Remove deletes vectors by id and returns how many were present.
func (idx *Index) Remove(ids []uint64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	newState := cloneState(idx.getState())
	removed := 0
	for _, id := range ids {
		p, ok := newState.pos[id]
		if !ok {
			continue
		}
		last := len(newState.ids) - 1
		if p != last {
			// Swap-delete keeps the slices dense.
			newState.ids[p] = newState.ids[last]
			newState.vectors[p] = newState.vectors[last]
			newState.pos[newState.ids[p]] = p
		}
		newState.ids = newState.ids[:last]
		newState.vectors = newState.vectors[:last]
		delete(newState.pos, id)
		removed++
	}
	if removed > 0 {
		idx.state.Store(newState)
	}
	return removed, nil
}

// Search returns the k nearest neighbors in ascending distance order.
func (idx *Index) Search(query []float32, k int) ([]index.SearchResult, error) {
	return idx.scan(query, k, nil)
}

// SearchFiltered returns the k nearest neighbors passing the allow
// predicate. The predicate is evaluated inside the scan, so the result is
// exact: no oversampling is needed for this backend.
func (idx *Index) SearchFiltered(query []float32, k int, allow index.FilterFunc) ([]index.SearchResult, error) {
	return idx.scan(query, k, allow)
}

func (idx *Index) scan(query []float32, k int, allow index.FilterFunc) ([]index.SearchResult, error) {
	if k <= 0 {
		return nil, index.ErrInvalidK
	}
	if len(query) == 0 {
		return nil, index.ErrEmptyVector
	}
	if len(query) != idx.dimension {
		return nil, &index.ErrDimensionMismatch{Expected: idx.dimension, Actual: len(query)}
	}

	st := idx.getState()
	if len(st.ids) == 0 {
		return nil, nil
	}

	top := make(candidateHeap, 0, k)
	for i, id := range st.ids {
		if allow != nil && !allow(id) {
			continue
		}
		d := idx.distance(query, st.vectors[i])
		if len(top) < k {
			heap.Push(&top, index.SearchResult{ID: id, Distance: d})
			continue
		}
		if d < top[0].Distance {
			top[0] = index.SearchResult{ID: id, Distance: d}
			heap.Fix(&top, 0)
		}
	}

	results := make([]index.SearchResult, len(top))
	for i := len(top) - 1; i >= 0; i-- {
		results[i] = heap.Pop(&top).(index.SearchResult)
	}
	return results, nil
}

// Dimension returns the fixed vector dimensionality.
func (idx *Index) Dimension() int { return idx.dimension }

// Metric returns the configured distance metric.
func (idx *Index) Metric() index.Metric { return idx.metric }

// Len returns the number of stored vectors.
func (idx *Index) Len() int { return len(idx.getState().ids) }

// Close releases nothing for the flat index; it exists to satisfy the
// backend contract.
func (idx *Index) Close() error { return nil }

// candidateHeap is a max-heap on distance holding the current best k, so the
// worst candidate sits at the root and is cheap to evict.
type candidateHeap []index.SearchResult

func (h candidateHeap) Len() int           { return len(h) }
func (h candidateHeap) Less(i, j int) bool { return h[i].Distance > h[j].Distance }
func (h candidateHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *candidateHeap) Push(x any)        { *h = append(*h, x.(index.SearchResult)) }

func (h *candidateHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func negatedDot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return -sum
}
