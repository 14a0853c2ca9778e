package registry_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecd/index"
	"github.com/hupe1980/vecd/registry"
)

func TestFlatBuilder_Build(t *testing.T) {
	h, err := registry.Flat(4).
		InnerProduct().
		Capacity(8).
		Build()
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, index.AlgorithmFlat, h.Algorithm())
	assert.Equal(t, index.Key{Algorithm: index.AlgorithmFlat, Dimension: 4, Metric: index.MetricInnerProduct}, h.Key())

	idx := h.Index()
	require.NotNil(t, idx)
	assert.Equal(t, 4, idx.Dimension())
	assert.Equal(t, index.MetricInnerProduct, idx.Metric())

	_, ok := h.Flat()
	assert.True(t, ok)
	_, ok = h.HNSW()
	assert.False(t, ok)
	_, ok = h.Usearch()
	assert.False(t, ok)
}

func TestFlatBuilder_InvalidDimension(t *testing.T) {
	_, err := registry.Flat(0).Build()
	require.Error(t, err)

	var dimErr *index.ErrInvalidDimension
	assert.ErrorAs(t, err, &dimErr)
}

func TestHNSWBuilder_Defaults(t *testing.T) {
	h, err := registry.HNSW(8).Build()
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, index.AlgorithmHNSW, h.Algorithm())
	assert.Equal(t, index.MetricL2, h.Index().Metric())

	_, ok := h.HNSW()
	assert.True(t, ok)
	_, ok = h.Flat()
	assert.False(t, ok)
}

func TestHNSWBuilder_RejectsInnerProduct(t *testing.T) {
	_, err := registry.HNSW(8).InnerProduct().Build()
	require.Error(t, err)

	var metricErr *index.ErrUnsupportedMetric
	require.ErrorAs(t, err, &metricErr)
	assert.Equal(t, index.AlgorithmHNSW, metricErr.Algorithm)
}

func TestHNSWBuilder_InvalidParameter(t *testing.T) {
	_, err := registry.HNSW(8).M(-1).Build()
	require.Error(t, err)

	var paramErr *index.ErrInvalidParameter
	require.ErrorAs(t, err, &paramErr)
	assert.Equal(t, "M", paramErr.Name)
}

func TestBuilder_Immutable(t *testing.T) {
	base := registry.Flat(3)
	_ = base.InnerProduct()

	h, err := base.Build()
	require.NoError(t, err)
	defer h.Close()

	// Deriving a new builder must not touch the original.
	assert.Equal(t, index.MetricL2, h.Index().Metric())
}

func TestRegistry_InitAndGet(t *testing.T) {
	r := registry.New()
	defer r.Close()

	key := index.Key{Algorithm: index.AlgorithmFlat, Dimension: 3, Metric: index.MetricL2}
	require.NoError(t, r.Init(key, 0))

	h, ok := r.Get(key)
	require.True(t, ok)
	require.NotNil(t, h)
	assert.Equal(t, key, h.Key())
	assert.Equal(t, 1, r.Len())
	assert.Contains(t, r.Keys(), key)

	again, ok := r.Get(key)
	require.True(t, ok)
	assert.Same(t, h, again)
}

func TestRegistry_InitIdempotent(t *testing.T) {
	r := registry.New()
	defer r.Close()

	key := index.Key{Algorithm: index.AlgorithmFlat, Dimension: 3, Metric: index.MetricL2}
	require.NoError(t, r.Init(key, 0))

	h, ok := r.Get(key)
	require.True(t, ok)
	require.NoError(t, h.Index().Insert([]float32{1, 2, 3}, 42))

	// Re-initializing must keep the existing instance and its contents.
	require.NoError(t, r.Init(key, 0))

	h2, ok := r.Get(key)
	require.True(t, ok)
	assert.Same(t, h, h2)
	assert.Equal(t, 1, h2.Index().Len())
}

func TestRegistry_InitValidatesKey(t *testing.T) {
	r := registry.New()
	defer r.Close()

	key := index.Key{Algorithm: index.AlgorithmUnknown, Dimension: 3, Metric: index.MetricL2}
	err := r.Init(key, 0)
	require.Error(t, err)

	var algErr *index.ErrUnsupportedAlgorithm
	assert.ErrorAs(t, err, &algErr)

	_, ok := r.Get(key)
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_ConcurrentInit(t *testing.T) {
	r := registry.New()
	defer r.Close()

	key := index.Key{Algorithm: index.AlgorithmHNSW, Dimension: 8, Metric: index.MetricL2}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, r.Init(key, 0))
		}()
	}
	wg.Wait()

	require.Equal(t, 1, r.Len())

	first, ok := r.Get(key)
	require.True(t, ok)
	for i := 0; i < 4; i++ {
		h, ok := r.Get(key)
		require.True(t, ok)
		assert.Same(t, first, h)
	}
}

func TestRegistry_DistinctKeys(t *testing.T) {
	r := registry.New()
	defer r.Close()

	small := index.Key{Algorithm: index.AlgorithmFlat, Dimension: 3, Metric: index.MetricL2}
	large := index.Key{Algorithm: index.AlgorithmFlat, Dimension: 4, Metric: index.MetricL2}
	require.NoError(t, r.Init(small, 0))
	require.NoError(t, r.Init(large, 0))
	assert.Equal(t, 2, r.Len())

	hs, ok := r.Get(small)
	require.True(t, ok)
	hl, ok := r.Get(large)
	require.True(t, ok)
	require.NotSame(t, hs, hl)

	require.NoError(t, hs.Index().Insert([]float32{1, 2, 3}, 1))
	assert.Equal(t, 1, hs.Index().Len())
	assert.Equal(t, 0, hl.Index().Len())
}

func TestRegistry_Close(t *testing.T) {
	r := registry.New()

	key := index.Key{Algorithm: index.AlgorithmFlat, Dimension: 3, Metric: index.MetricL2}
	require.NoError(t, r.Init(key, 0))
	require.NoError(t, r.Close())

	assert.Equal(t, 0, r.Len())
	_, ok := r.Get(key)
	assert.False(t, ok)
}
