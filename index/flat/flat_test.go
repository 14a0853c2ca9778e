package flat

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecd/index"
	"github.com/hupe1980/vecd/testutil"
)

func TestNew(t *testing.T) {
	t.Run("BadDimension", func(t *testing.T) {
		_, err := New(0, index.MetricL2, 0)

		var dErr *index.ErrInvalidDimension
		require.ErrorAs(t, err, &dErr)
		assert.Equal(t, 0, dErr.Dimension)
	})

	t.Run("UnsupportedMetric", func(t *testing.T) {
		_, err := New(3, index.Metric(99), 0)

		var mErr *index.ErrUnsupportedMetric
		require.ErrorAs(t, err, &mErr)
	})

	t.Run("NegativeCapacity", func(t *testing.T) {
		idx, err := New(3, index.MetricL2, -1)
		require.NoError(t, err)
		assert.Equal(t, 0, idx.Len())
	})
}

func TestInsert(t *testing.T) {
	idx, err := New(2, index.MetricL2, 0)
	require.NoError(t, err)

	require.NoError(t, idx.Insert([]float32{1, 0}, 1))
	require.NoError(t, idx.Insert([]float32{0, 1}, 2))
	assert.Equal(t, 2, idx.Len())

	t.Run("ReplaceKeepsCount", func(t *testing.T) {
		require.NoError(t, idx.Insert([]float32{5, 5}, 1))
		assert.Equal(t, 2, idx.Len())

		results, err := idx.Search([]float32{5, 5}, 1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, uint64(1), results[0].ID)
		assert.InDelta(t, 0.0, results[0].Distance, 1e-6)
	})

	t.Run("EmptyVector", func(t *testing.T) {
		assert.ErrorIs(t, idx.Insert(nil, 3), index.ErrEmptyVector)
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		err := idx.Insert([]float32{1, 2, 3}, 3)

		var dErr *index.ErrDimensionMismatch
		require.ErrorAs(t, err, &dErr)
		assert.Equal(t, 2, dErr.Expected)
		assert.Equal(t, 3, dErr.Actual)
	})

	t.Run("CallerCannotMutateStored", func(t *testing.T) {
		vec := []float32{9, 9}
		require.NoError(t, idx.Insert(vec, 4))

		vec[0] = -100

		results, err := idx.Search([]float32{9, 9}, 1)
		require.NoError(t, err)
		assert.Equal(t, uint64(4), results[0].ID)
		assert.InDelta(t, 0.0, results[0].Distance, 1e-6)
	})
}

func TestSearch(t *testing.T) {
	idx, err := New(2, index.MetricL2, 4)
	require.NoError(t, err)

	require.NoError(t, idx.Insert([]float32{0, 0}, 1))
	require.NoError(t, idx.Insert([]float32{1, 0}, 2))
	require.NoError(t, idx.Insert([]float32{3, 4}, 3))

	t.Run("OrderedByDistance", func(t *testing.T) {
		results, err := idx.Search([]float32{0.9, 0}, 3)
		require.NoError(t, err)

		require.Len(t, results, 3)
		assert.Equal(t, uint64(2), results[0].ID)
		assert.Equal(t, uint64(1), results[1].ID)
		assert.Equal(t, uint64(3), results[2].ID)
	})

	t.Run("KLargerThanStored", func(t *testing.T) {
		results, err := idx.Search([]float32{0, 0}, 10)
		require.NoError(t, err)
		assert.Len(t, results, 3)
	})

	t.Run("InvalidK", func(t *testing.T) {
		_, err := idx.Search([]float32{0, 0}, 0)
		assert.ErrorIs(t, err, index.ErrInvalidK)
	})

	t.Run("EmptyQuery", func(t *testing.T) {
		_, err := idx.Search(nil, 1)
		assert.ErrorIs(t, err, index.ErrEmptyVector)
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		_, err := idx.Search([]float32{1}, 1)

		var dErr *index.ErrDimensionMismatch
		assert.ErrorAs(t, err, &dErr)
	})

	t.Run("EmptyIndex", func(t *testing.T) {
		empty, err := New(2, index.MetricL2, 0)
		require.NoError(t, err)

		results, err := empty.Search([]float32{0, 0}, 5)
		require.NoError(t, err)
		assert.Nil(t, results)
	})
}

func TestSearchMatchesBruteForce(t *testing.T) {
	const (
		num = 200
		dim = 16
		k   = 10
	)

	rng := testutil.NewRNG(4711)
	vectors := rng.UniformVectors(num, dim)

	idx, err := New(dim, index.MetricL2, num)
	require.NoError(t, err)

	for i, vec := range vectors {
		require.NoError(t, idx.Insert(vec, uint64(i)))
	}

	for range 5 {
		query := make([]float32, dim)
		rng.FillUniform(query)

		truth := testutil.BruteForceSearch(vectors, query, k)

		results, err := idx.Search(query, k)
		require.NoError(t, err)
		require.Len(t, results, k)

		approx := make([]testutil.SearchResult, len(results))
		for i, r := range results {
			approx[i] = testutil.SearchResult{ID: r.ID, Distance: r.Distance}
		}

		assert.Equal(t, 1.0, testutil.ComputeRecall(truth, approx))

		for i := range results {
			assert.InDelta(t, truth[i].Distance, results[i].Distance, 1e-4)
		}
	}
}

func TestInnerProduct(t *testing.T) {
	idx, err := New(2, index.MetricInnerProduct, 0)
	require.NoError(t, err)

	require.NoError(t, idx.Insert([]float32{2, 0}, 1))
	require.NoError(t, idx.Insert([]float32{1, 0}, 2))
	require.NoError(t, idx.Insert([]float32{0, 5}, 3))

	// Highest dot product first; distances are negated products.
	results, err := idx.Search([]float32{1, 0}, 3)
	require.NoError(t, err)

	require.Len(t, results, 3)
	assert.Equal(t, uint64(1), results[0].ID)
	assert.InDelta(t, -2.0, results[0].Distance, 1e-6)
	assert.Equal(t, uint64(2), results[1].ID)
	assert.InDelta(t, -1.0, results[1].Distance, 1e-6)
	assert.Equal(t, uint64(3), results[2].ID)
	assert.InDelta(t, 0.0, results[2].Distance, 1e-6)
}

func TestRemove(t *testing.T) {
	idx, err := New(2, index.MetricL2, 0)
	require.NoError(t, err)

	for i := uint64(1); i <= 4; i++ {
		require.NoError(t, idx.Insert([]float32{float32(i), 0}, i))
	}

	removed, err := idx.Remove([]uint64{2, 99})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 3, idx.Len())

	results, err := idx.Search([]float32{2, 0}, 4)
	require.NoError(t, err)

	require.Len(t, results, 3)
	for _, r := range results {
		assert.NotEqual(t, uint64(2), r.ID)
	}

	t.Run("Empty", func(t *testing.T) {
		removed, err := idx.Remove(nil)
		require.NoError(t, err)
		assert.Equal(t, 0, removed)
	})
}

func TestSearchFiltered(t *testing.T) {
	idx, err := New(2, index.MetricL2, 0)
	require.NoError(t, err)

	for i := uint64(1); i <= 10; i++ {
		require.NoError(t, idx.Insert([]float32{float32(i), 0}, i))
	}

	even := func(id uint64) bool { return id%2 == 0 }

	results, err := idx.SearchFiltered([]float32{0, 0}, 3, even)
	require.NoError(t, err)

	require.Len(t, results, 3)
	assert.Equal(t, uint64(2), results[0].ID)
	assert.Equal(t, uint64(4), results[1].ID)
	assert.Equal(t, uint64(6), results[2].ID)

	t.Run("NilFilter", func(t *testing.T) {
		results, err := idx.SearchFiltered([]float32{0, 0}, 1, nil)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, uint64(1), results[0].ID)
	})
}

func TestConcurrentReadWrite(t *testing.T) {
	const dim = 8

	idx, err := New(dim, index.MetricL2, 0)
	require.NoError(t, err)

	rng := testutil.NewRNG(42)
	vectors := rng.UniformVectors(200, dim)

	var wg sync.WaitGroup

	for w := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				id := uint64(w*50 + i)
				_ = idx.Insert(vectors[id], id)
			}
		}()
	}

	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			query := make([]float32, dim)
			for range 100 {
				_, _ = idx.Search(query, 5)
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, 200, idx.Len())
}
