package registry

import (
	"github.com/hupe1980/vecd/index"
	"github.com/hupe1980/vecd/index/flat"
	"github.com/hupe1980/vecd/index/hnsw"
	"github.com/hupe1980/vecd/index/usearch"
)

// =============================================================================
// Flat Builder (Immutable)
// =============================================================================

// Flat creates a new flat index builder with the specified dimension.
// Flat performs an exact scan over all stored vectors.
//
// The builder is immutable - each method returns a new builder with the
// updated configuration. Invalid configurations fail at Build, never panic.
//
// Example:
//
//	h, err := registry.Flat(128).
//	    InnerProduct().
//	    Capacity(10_000).
//	    Build()
func Flat(dimension int) FlatBuilder {
	return FlatBuilder{
		dimension: dimension,
		metric:    index.MetricL2,
	}
}

// FlatBuilder is an immutable fluent builder for flat index handles.
type FlatBuilder struct {
	dimension int
	metric    index.Metric
	capacity  int
}

// L2 sets the distance metric to squared Euclidean distance.
func (b FlatBuilder) L2() FlatBuilder {
	b.metric = index.MetricL2
	return b
}

// InnerProduct sets the distance metric to inner product similarity.
func (b FlatBuilder) InnerProduct() FlatBuilder {
	b.metric = index.MetricInnerProduct
	return b
}

// Capacity pre-sizes the backing storage for the expected vector count.
func (b FlatBuilder) Capacity(n int) FlatBuilder {
	b.capacity = n
	return b
}

// Build constructs the flat index and wraps it in a handle.
func (b FlatBuilder) Build() (*Handle, error) {
	idx, err := flat.New(b.dimension, b.metric, b.capacity)
	if err != nil {
		return nil, err
	}

	return &Handle{
		key:  index.Key{Algorithm: index.AlgorithmFlat, Dimension: b.dimension, Metric: b.metric},
		flat: idx,
	}, nil
}

// MustBuild is like Build but panics on error. Intended for tests and
// examples where the configuration is known to be valid.
func (b FlatBuilder) MustBuild() *Handle {
	h, err := b.Build()
	if err != nil {
		panic(err)
	}
	return h
}

// =============================================================================
// HNSW Builder (Immutable)
// =============================================================================

// HNSW creates a new hnsw index builder with the specified dimension.
// HNSW provides fast approximate nearest neighbor search in memory and
// supports only the squared Euclidean metric.
func HNSW(dimension int) HNSWBuilder {
	return HNSWBuilder{
		dimension: dimension,
		metric:    index.MetricL2,
		opts:      hnsw.DefaultOptions,
	}
}

// HNSWBuilder is an immutable fluent builder for hnsw index handles.
type HNSWBuilder struct {
	dimension int
	metric    index.Metric
	opts      hnsw.Options
}

// L2 sets the distance metric to squared Euclidean distance.
func (b HNSWBuilder) L2() HNSWBuilder {
	b.metric = index.MetricL2
	return b
}

// InnerProduct sets the distance metric to inner product similarity.
// The hnsw backend rejects this metric at Build.
func (b HNSWBuilder) InnerProduct() HNSWBuilder {
	b.metric = index.MetricInnerProduct
	return b
}

// M sets the maximum number of graph neighbors per node.
func (b HNSWBuilder) M(m int) HNSWBuilder {
	b.opts.M = m
	return b
}

// Ml sets the level generation factor of the graph.
func (b HNSWBuilder) Ml(ml float64) HNSWBuilder {
	b.opts.Ml = ml
	return b
}

// EF sets the size of the dynamic candidate list used during search.
func (b HNSWBuilder) EF(ef int) HNSWBuilder {
	b.opts.EfSearch = ef
	return b
}

// Build constructs the hnsw index and wraps it in a handle.
func (b HNSWBuilder) Build() (*Handle, error) {
	idx, err := hnsw.New(b.dimension, b.metric, func(o *hnsw.Options) {
		o.M = b.opts.M
		o.Ml = b.opts.Ml
		o.EfSearch = b.opts.EfSearch
	})
	if err != nil {
		return nil, err
	}

	return &Handle{
		key:  index.Key{Algorithm: index.AlgorithmHNSW, Dimension: b.dimension, Metric: b.metric},
		hnsw: idx,
	}, nil
}

// MustBuild is like Build but panics on error.
func (b HNSWBuilder) MustBuild() *Handle {
	h, err := b.Build()
	if err != nil {
		panic(err)
	}
	return h
}

// =============================================================================
// Usearch Builder (Immutable)
// =============================================================================

// Usearch creates a new usearch index builder with the specified dimension.
// Usearch wraps the native usearch HNSW implementation and supports both
// squared Euclidean and inner product metrics.
func Usearch(dimension int) UsearchBuilder {
	return UsearchBuilder{
		dimension: dimension,
		metric:    index.MetricL2,
	}
}

// UsearchBuilder is an immutable fluent builder for usearch index handles.
type UsearchBuilder struct {
	dimension int
	metric    index.Metric
	capacity  int
	opts      usearch.Options
}

// L2 sets the distance metric to squared Euclidean distance.
func (b UsearchBuilder) L2() UsearchBuilder {
	b.metric = index.MetricL2
	return b
}

// InnerProduct sets the distance metric to inner product similarity.
func (b UsearchBuilder) InnerProduct() UsearchBuilder {
	b.metric = index.MetricInnerProduct
	return b
}

// Capacity pre-reserves native storage for the expected vector count.
func (b UsearchBuilder) Capacity(n int) UsearchBuilder {
	b.capacity = n
	return b
}

// Connectivity sets the number of graph neighbors per node.
func (b UsearchBuilder) Connectivity(c uint) UsearchBuilder {
	b.opts.Connectivity = c
	return b
}

// ExpansionAdd sets the candidate list size used during insertion.
func (b UsearchBuilder) ExpansionAdd(n uint) UsearchBuilder {
	b.opts.ExpansionAdd = n
	return b
}

// ExpansionSearch sets the candidate list size used during search.
func (b UsearchBuilder) ExpansionSearch(n uint) UsearchBuilder {
	b.opts.ExpansionSearch = n
	return b
}

// Build constructs the usearch index and wraps it in a handle.
func (b UsearchBuilder) Build() (*Handle, error) {
	idx, err := usearch.New(b.dimension, b.metric, b.capacity, func(o *usearch.Options) {
		o.Connectivity = b.opts.Connectivity
		o.ExpansionAdd = b.opts.ExpansionAdd
		o.ExpansionSearch = b.opts.ExpansionSearch
	})
	if err != nil {
		return nil, err
	}

	return &Handle{
		key:     index.Key{Algorithm: index.AlgorithmUsearch, Dimension: b.dimension, Metric: b.metric},
		usearch: idx,
	}, nil
}

// MustBuild is like Build but panics on error.
func (b UsearchBuilder) MustBuild() *Handle {
	h, err := b.Build()
	if err != nil {
		panic(err)
	}
	return h
}

// buildForKey constructs a handle for the given key using the builder that
// matches its algorithm.
func buildForKey(key index.Key, capacityHint int) (*Handle, error) {
	switch key.Algorithm {
	case index.AlgorithmFlat:
		b := Flat(key.Dimension).Capacity(capacityHint)
		if key.Metric == index.MetricInnerProduct {
			b = b.InnerProduct()
		}
		return b.Build()
	case index.AlgorithmHNSW:
		b := HNSW(key.Dimension)
		if key.Metric == index.MetricInnerProduct {
			b = b.InnerProduct()
		}
		return b.Build()
	case index.AlgorithmUsearch:
		b := Usearch(key.Dimension).Capacity(capacityHint)
		if key.Metric == index.MetricInnerProduct {
			b = b.InnerProduct()
		}
		return b.Build()
	default:
		return nil, &index.ErrUnsupportedAlgorithm{Name: key.Algorithm.String()}
	}
}
