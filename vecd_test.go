package vecd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecd/index"
	"github.com/hupe1980/vecd/metadata"
	"github.com/hupe1980/vecd/scalar"
)

func flatKey(dimension int) index.Key {
	return index.Key{Algorithm: index.AlgorithmFlat, Dimension: dimension, Metric: index.MetricL2}
}

func hnswKey(dimension int) index.Key {
	return index.Key{Algorithm: index.AlgorithmHNSW, Dimension: dimension, Metric: index.MetricL2}
}

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New()
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })

	return db
}

func TestDB_UpsertQuerySearch(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	key := flatKey(3)
	require.NoError(t, db.CreateIndex(ctx, key))

	err := db.Upsert(ctx, key, 1, metadata.Document{
		"vectors": []float32{1, 2, 3},
		"name":    "sora",
	})
	require.NoError(t, err)

	doc, err := db.Query(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "sora", doc["name"])

	vector, err := doc.Vectors()
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, vector)

	results, err := db.KNNSearch(ctx, key, []float32{1, 2, 3}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint64(1), results[0].ID)
	assert.InDelta(t, 0.0, results[0].Distance, 1e-6)
	assert.Equal(t, "sora", results[0].Document["name"])
}

func TestDB_CreateIndexUnsupportedAlgorithm(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	key := index.Key{Algorithm: index.AlgorithmUnknown, Dimension: 3, Metric: index.MetricL2}

	err := db.CreateIndex(ctx, key)
	require.Error(t, err)

	var initErr *ErrInitIndex
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, key, initErr.Key)

	var vErr *ErrValidation
	assert.ErrorAs(t, err, &vErr)

	// The failed init leaves nothing behind: the key stays unknown.
	err = db.Upsert(ctx, key, 1, metadata.Document{"vectors": []float32{1, 2, 3}})

	var nfErr *ErrIndexNotFound
	assert.ErrorAs(t, err, &nfErr)
}

func TestDB_CreateIndexIdempotent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	key := flatKey(2)
	require.NoError(t, db.CreateIndex(ctx, key))
	require.NoError(t, db.Upsert(ctx, key, 1, metadata.Document{"vectors": []float32{1, 0}}))

	// Re-creating keeps the existing index and its contents.
	require.NoError(t, db.CreateIndex(ctx, key))

	results, err := db.KNNSearch(ctx, key, []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestDB_UpsertUnknownIndex(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	err := db.Upsert(ctx, flatKey(3), 1, metadata.Document{"vectors": []float32{1, 2, 3}})

	var nfErr *ErrIndexNotFound
	require.ErrorAs(t, err, &nfErr)
	assert.Equal(t, flatKey(3), nfErr.Key)
}

func TestDB_UpsertValidation(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	key := flatKey(3)
	require.NoError(t, db.CreateIndex(ctx, key))

	t.Run("MissingVectors", func(t *testing.T) {
		err := db.Upsert(ctx, key, 1, metadata.Document{"name": "sora"})

		var vErr *ErrValidation
		assert.ErrorAs(t, err, &vErr)
	})

	t.Run("MalformedVectors", func(t *testing.T) {
		err := db.Upsert(ctx, key, 1, metadata.Document{"vectors": []any{"a", "b", "c"}})

		var vErr *ErrValidation
		assert.ErrorAs(t, err, &vErr)
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		err := db.Upsert(ctx, key, 1, metadata.Document{"vectors": []float32{1, 2}})

		var vErr *ErrValidation
		require.ErrorAs(t, err, &vErr)

		var upsertErr *ErrUpsert
		assert.ErrorAs(t, err, &upsertErr)
	})

	t.Run("FailedUpsertLeavesNothing", func(t *testing.T) {
		_, err := db.Query(ctx, 1)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestDB_UpsertReplacesVector(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	key := flatKey(2)
	require.NoError(t, db.CreateIndex(ctx, key))

	require.NoError(t, db.Upsert(ctx, key, 7, metadata.Document{"vectors": []float32{0, 1}}))
	require.NoError(t, db.Upsert(ctx, key, 7, metadata.Document{"vectors": []float32{10, 0}}))

	results, err := db.KNNSearch(ctx, key, []float32{10, 0}, 10)
	require.NoError(t, err)

	// At most one hit for the id, at the replaced position.
	require.Len(t, results, 1)
	assert.Equal(t, uint64(7), results[0].ID)
	assert.InDelta(t, 0.0, results[0].Distance, 1e-6)
}

func TestDB_UpsertMovesBetweenIndexes(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	flat := flatKey(2)
	hnsw := hnswKey(2)
	require.NoError(t, db.CreateIndex(ctx, flat))
	require.NoError(t, db.CreateIndex(ctx, hnsw))

	require.NoError(t, db.Upsert(ctx, flat, 1, metadata.Document{"vectors": []float32{1, 0}}))
	require.NoError(t, db.Upsert(ctx, hnsw, 1, metadata.Document{"vectors": []float32{0, 1}}))

	// The vector lives in exactly one index after the move.
	results, err := db.KNNSearch(ctx, flat, []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = db.KNNSearch(ctx, hnsw, []float32{0, 1}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint64(1), results[0].ID)
}

func TestDB_KeyIsolation(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	k2 := flatKey(2)
	k3 := flatKey(3)
	require.NoError(t, db.CreateIndex(ctx, k2))
	require.NoError(t, db.CreateIndex(ctx, k3))

	require.NoError(t, db.Upsert(ctx, k2, 1, metadata.Document{"vectors": []float32{1, 0}}))
	require.NoError(t, db.Upsert(ctx, k3, 2, metadata.Document{"vectors": []float32{1, 0, 0}}))

	results, err := db.KNNSearch(ctx, k2, []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint64(1), results[0].ID)

	results, err = db.KNNSearch(ctx, k3, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint64(2), results[0].ID)
}

func TestDB_FilteredSearch(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	key := flatKey(2)
	require.NoError(t, db.CreateIndex(ctx, key))

	require.NoError(t, db.Upsert(ctx, key, 1, metadata.Document{"vectors": []float32{1, 0}, "age": int64(30)}))
	require.NoError(t, db.Upsert(ctx, key, 2, metadata.Document{"vectors": []float32{0.9, 0}, "age": int64(45)}))
	require.NoError(t, db.Upsert(ctx, key, 3, metadata.Document{"vectors": []float32{0.8, 0}}))

	t.Run("Eq", func(t *testing.T) {
		results, err := db.Search(key, []float32{1, 0}).KNN(10).Eq("age", 30).Execute(ctx)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, uint64(1), results[0].ID)
	})

	t.Run("NotEq", func(t *testing.T) {
		// Records without the field do not match either.
		results, err := db.Search(key, []float32{1, 0}).KNN(10).NotEq("age", 30).Execute(ctx)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, uint64(2), results[0].ID)
	})

	t.Run("EmptyMatchShortCircuits", func(t *testing.T) {
		results, err := db.Search(key, []float32{1, 0}).KNN(10).Eq("age", 99).Execute(ctx)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("UnknownOperator", func(t *testing.T) {
		_, err := db.Search(key, []float32{1, 0}).
			Where(metadata.Filter{Field: "age", Operator: "gt", Value: 30}).
			Execute(ctx)

		var vErr *ErrValidation
		assert.ErrorAs(t, err, &vErr)
	})
}

func TestDB_UpsertMovesFilterBuckets(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	key := flatKey(2)
	require.NoError(t, db.CreateIndex(ctx, key))

	require.NoError(t, db.Upsert(ctx, key, 1, metadata.Document{"vectors": []float32{1, 0}, "age": int64(30)}))
	require.NoError(t, db.Upsert(ctx, key, 1, metadata.Document{"vectors": []float32{1, 0}, "age": int64(45)}))

	results, err := db.Search(key, []float32{1, 0}).Eq("age", 30).Execute(ctx)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = db.Search(key, []float32{1, 0}).Eq("age", 45).Execute(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint64(1), results[0].ID)
}

func TestDB_SearchBuilder(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	key := flatKey(2)
	require.NoError(t, db.CreateIndex(ctx, key))

	for i := uint64(1); i <= 5; i++ {
		require.NoError(t, db.Upsert(ctx, key, i, metadata.Document{
			"vectors": []float32{float32(i), 0},
		}))
	}

	t.Run("First", func(t *testing.T) {
		result, err := db.Search(key, []float32{1, 0}).First(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), result.ID)
	})

	t.Run("FirstEmpty", func(t *testing.T) {
		_, err := db.Search(key, []float32{1, 0}).Filter(func(uint64) bool { return false }).First(ctx)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Count", func(t *testing.T) {
		count, err := db.Search(key, []float32{1, 0}).KNN(3).Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, count)
	})

	t.Run("Exists", func(t *testing.T) {
		exists, err := db.Search(key, []float32{1, 0}).Exists(ctx)
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("Stream", func(t *testing.T) {
		var ids []uint64

		for result, err := range db.Search(key, []float32{0, 0}).KNN(5).Stream(ctx) {
			require.NoError(t, err)

			ids = append(ids, result.ID)
			if len(ids) == 2 {
				break
			}
		}

		assert.Equal(t, []uint64{1, 2}, ids)
	})

	t.Run("FilterFunc", func(t *testing.T) {
		results, err := db.Search(key, []float32{0, 0}).
			KNN(5).
			Filter(func(id uint64) bool { return id%2 == 0 }).
			Execute(ctx)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, uint64(2), results[0].ID)
		assert.Equal(t, uint64(4), results[1].ID)
	})
}

func TestDB_Delete(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	key := flatKey(2)
	require.NoError(t, db.CreateIndex(ctx, key))
	require.NoError(t, db.Upsert(ctx, key, 1, metadata.Document{"vectors": []float32{1, 0}, "age": int64(30)}))

	require.NoError(t, db.Delete(ctx, 1))

	_, err := db.Query(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	results, err := db.KNNSearch(ctx, key, []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = db.Search(key, []float32{1, 0}).Eq("age", 30).Execute(ctx)
	require.NoError(t, err)
	assert.Empty(t, results)

	assert.ErrorIs(t, db.Delete(ctx, 1), ErrNotFound)
}

func TestDB_BatchUpsert(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	key := flatKey(2)
	require.NoError(t, db.CreateIndex(ctx, key))

	items := []UpsertItem{
		{ID: 1, Document: metadata.Document{"vectors": []float32{1, 0}}},
		{ID: 2, Document: metadata.Document{"name": "missing vectors"}},
		{ID: 3, Document: metadata.Document{"vectors": []float32{0, 1}}},
	}

	result := db.BatchUpsert(ctx, key, items)

	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 3)
	assert.NoError(t, result.Errors[0])
	assert.Error(t, result.Errors[1])
	assert.NoError(t, result.Errors[2])
	assert.Error(t, result.FirstError())

	// Failures are independent: the good items landed.
	results, err := db.KNNSearch(ctx, key, []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestDB_QueryMissing(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	_, err := db.Query(ctx, 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDB_Stats(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	require.NoError(t, db.CreateIndex(ctx, flatKey(2)))
	require.NoError(t, db.CreateIndex(ctx, hnswKey(4)))

	require.NoError(t, db.Upsert(ctx, flatKey(2), 1, metadata.Document{"vectors": []float32{1, 0}, "age": int64(30)}))
	require.NoError(t, db.Upsert(ctx, flatKey(2), 2, metadata.Document{"vectors": []float32{0, 1}}))

	stats, err := db.Stats()
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Documents)
	assert.Equal(t, []string{"age"}, stats.Fields)
	require.Len(t, stats.Indexes, 2)
	assert.Equal(t, IndexStats{Algorithm: "flat", Dimension: 2, Metric: "l2", Size: 2}, stats.Indexes[0])
	assert.Equal(t, IndexStats{Algorithm: "hnsw", Dimension: 4, Metric: "l2", Size: 0}, stats.Indexes[1])
}

func TestDB_Closed(t *testing.T) {
	ctx := context.Background()

	db, err := New()
	require.NoError(t, err)

	key := flatKey(2)
	require.NoError(t, db.CreateIndex(ctx, key))

	require.NoError(t, db.Close())
	require.NoError(t, db.Close()) // idempotent

	assert.ErrorIs(t, db.CreateIndex(ctx, key), ErrClosed)
	assert.ErrorIs(t, db.Upsert(ctx, key, 1, metadata.Document{"vectors": []float32{1, 0}}), ErrClosed)

	_, err = db.Query(ctx, 1)
	assert.ErrorIs(t, err, ErrClosed)

	_, err = db.KNNSearch(ctx, key, []float32{1, 0}, 1)
	assert.ErrorIs(t, err, ErrClosed)

	assert.ErrorIs(t, db.Delete(ctx, 1), ErrClosed)

	_, err = db.Stats()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDB_WithBadgerStore(t *testing.T) {
	ctx := context.Background()

	store, err := scalar.OpenBadger(scalar.InMemoryBadgerConfig())
	require.NoError(t, err)

	db, err := New(WithScalarStore(store))
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })

	key := flatKey(2)
	require.NoError(t, db.CreateIndex(ctx, key))
	require.NoError(t, db.Upsert(ctx, key, 1, metadata.Document{"vectors": []float32{1, 0}, "name": "badger"}))

	doc, err := db.Query(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "badger", doc["name"])
}

func TestDB_MetricsRecorded(t *testing.T) {
	ctx := context.Background()

	collector := &BasicMetricsCollector{}

	db, err := New(WithMetricsCollector(collector))
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })

	key := flatKey(2)
	require.NoError(t, db.CreateIndex(ctx, key))
	require.NoError(t, db.Upsert(ctx, key, 1, metadata.Document{"vectors": []float32{1, 0}}))

	_, err = db.KNNSearch(ctx, key, []float32{1, 0}, 1)
	require.NoError(t, err)

	_, err = db.Query(ctx, 404)
	require.Error(t, err)

	stats := collector.GetStats()
	assert.Equal(t, int64(1), stats.CreateIndexCount)
	assert.Equal(t, int64(1), stats.UpsertCount)
	assert.Equal(t, int64(1), stats.SearchCount)
	assert.Equal(t, int64(1), stats.QueryCount)
	assert.Equal(t, int64(1), stats.QueryErrors)
}
