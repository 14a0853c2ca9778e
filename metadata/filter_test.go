package metadata

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterIndex_EqualAndNotEqual(t *testing.T) {
	fi := NewFilterIndex()
	fi.Update(1, nil, map[string]int64{"age": 30})
	fi.Update(2, nil, map[string]int64{"age": 30})
	fi.Update(3, nil, map[string]int64{"age": 45})
	fi.Update(4, nil, map[string]int64{"year": 2024})

	t.Run("equal", func(t *testing.T) {
		bm, err := fi.Eval([]Filter{{Field: "age", Operator: OpEqual, Value: 30}})
		require.NoError(t, err)
		assert.Equal(t, []uint64{1, 2}, bm.ToArray())
	})

	t.Run("not equal requires the field", func(t *testing.T) {
		bm, err := fi.Eval([]Filter{{Field: "age", Operator: OpNotEqual, Value: 30}})
		require.NoError(t, err)
		// Record 4 has no age field and must not match.
		assert.Equal(t, []uint64{3}, bm.ToArray())
	})

	t.Run("unknown field matches nothing", func(t *testing.T) {
		bm, err := fi.Eval([]Filter{{Field: "missing", Operator: OpEqual, Value: 1}})
		require.NoError(t, err)
		assert.True(t, bm.IsEmpty())

		bm, err = fi.Eval([]Filter{{Field: "missing", Operator: OpNotEqual, Value: 1}})
		require.NoError(t, err)
		assert.True(t, bm.IsEmpty())
	})

	t.Run("no filters allows everything", func(t *testing.T) {
		bm, err := fi.Eval(nil)
		require.NoError(t, err)
		assert.Nil(t, bm)
	})
}

func TestFilterIndex_EvalConjunction(t *testing.T) {
	fi := NewFilterIndex()
	fi.Update(1, nil, map[string]int64{"age": 30, "year": 2023})
	fi.Update(2, nil, map[string]int64{"age": 30, "year": 2024})
	fi.Update(3, nil, map[string]int64{"age": 45, "year": 2024})

	bm, err := fi.Eval([]Filter{
		{Field: "age", Operator: OpEqual, Value: 30},
		{Field: "year", Operator: OpEqual, Value: 2024},
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{2}, bm.ToArray())
}

func TestFilterIndex_UnknownOperator(t *testing.T) {
	fi := NewFilterIndex()

	_, err := fi.Eval([]Filter{{Field: "age", Operator: Operator("gt"), Value: 1}})
	require.Error(t, err)

	var opErr *ErrUnknownOperator
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, Operator("gt"), opErr.Operator)
}

func TestFilterIndex_UpdateMovesBuckets(t *testing.T) {
	fi := NewFilterIndex()
	fi.Update(7, nil, map[string]int64{"age": 30})

	// Re-upserting with a changed value must move the record to the new
	// bucket and leave the old one empty.
	fi.Update(7, map[string]int64{"age": 30}, map[string]int64{"age": 45})

	old, err := fi.Eval([]Filter{{Field: "age", Operator: OpEqual, Value: 30}})
	require.NoError(t, err)
	assert.True(t, old.IsEmpty())

	now, err := fi.Eval([]Filter{{Field: "age", Operator: OpEqual, Value: 45}})
	require.NoError(t, err)
	assert.Equal(t, []uint64{7}, now.ToArray())

	assert.Equal(t, uint64(0), fi.Cardinality("age", 30))
	assert.Equal(t, uint64(1), fi.Cardinality("age", 45))
}

func TestFilterIndex_UpdateDropsRemovedFields(t *testing.T) {
	fi := NewFilterIndex()
	fi.Update(1, nil, map[string]int64{"age": 30, "year": 2024})

	// The new document no longer carries year.
	fi.Update(1, map[string]int64{"age": 30, "year": 2024}, map[string]int64{"age": 30})

	bm, err := fi.Eval([]Filter{{Field: "year", Operator: OpEqual, Value: 2024}})
	require.NoError(t, err)
	assert.True(t, bm.IsEmpty())

	bm, err = fi.Eval([]Filter{{Field: "age", Operator: OpEqual, Value: 30}})
	require.NoError(t, err)
	assert.Equal(t, []uint64{1}, bm.ToArray())
}

func TestFilterIndex_Remove(t *testing.T) {
	fi := NewFilterIndex()
	fi.Update(1, nil, map[string]int64{"age": 30})
	fi.Update(2, nil, map[string]int64{"age": 30})

	fi.Remove(1, map[string]int64{"age": 30})

	bm, err := fi.Eval([]Filter{{Field: "age", Operator: OpEqual, Value: 30}})
	require.NoError(t, err)
	assert.Equal(t, []uint64{2}, bm.ToArray())
}

func TestFilterIndex_Fields(t *testing.T) {
	fi := NewFilterIndex()
	fi.Update(1, nil, map[string]int64{"year": 2024, "age": 30})

	assert.Equal(t, []string{"age", "year"}, fi.Fields())
}

func TestFilterIndex_ResultIsPrivateCopy(t *testing.T) {
	fi := NewFilterIndex()
	fi.Update(1, nil, map[string]int64{"age": 30})

	bm, err := fi.Eval([]Filter{{Field: "age", Operator: OpEqual, Value: 30}})
	require.NoError(t, err)
	bm.Remove(1)

	again, err := fi.Eval([]Filter{{Field: "age", Operator: OpEqual, Value: 30}})
	require.NoError(t, err)
	assert.Equal(t, []uint64{1}, again.ToArray())
}

func TestFilterIndex_ConcurrentUpdates(t *testing.T) {
	fi := NewFilterIndex()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				id := uint64(g*100 + i)
				fi.Update(id, nil, map[string]int64{"bucket": int64(g)})
			}
		}(g)
	}
	wg.Wait()

	for g := 0; g < 8; g++ {
		assert.Equal(t, uint64(100), fi.Cardinality("bucket", int64(g)))
	}
}

func TestFilterIndex_ExportImportState(t *testing.T) {
	fi := NewFilterIndex()
	fi.Update(1, nil, map[string]int64{"age": 30})
	fi.Update(2, nil, map[string]int64{"age": 45, "year": 2024})

	state := fi.ExportState()

	restored := NewFilterIndex()
	restored.ImportState(state)

	for _, f := range []Filter{
		{Field: "age", Operator: OpEqual, Value: 30},
		{Field: "age", Operator: OpEqual, Value: 45},
		{Field: "year", Operator: OpEqual, Value: 2024},
	} {
		want, err := fi.Eval([]Filter{f})
		require.NoError(t, err)
		got, err := restored.Eval([]Filter{f})
		require.NoError(t, err, fmt.Sprintf("filter %+v", f))
		assert.Equal(t, want.ToArray(), got.ToArray())
	}
}
