package metadata

import (
	"fmt"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// Operator selects how a filter compares a field against its value.
type Operator string

const (
	// OpEqual matches records whose field equals the value.
	OpEqual Operator = "eq"
	// OpNotEqual matches records that carry the field with any other value.
	OpNotEqual Operator = "ne"
)

// ErrUnknownOperator is returned by Eval for operators outside the
// supported set.
type ErrUnknownOperator struct {
	Operator Operator
}

func (e *ErrUnknownOperator) Error() string {
	return fmt.Sprintf("metadata: unknown filter operator %q", string(e.Operator))
}

// Filter is a single comparison over one indexed document field.
type Filter struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    int64    `json:"value"`
}

// FilterIndex is an inverted index from (field, value) to the set of record
// ids carrying that value, backed by 64-bit Roaring Bitmaps.
//
// Each field owns its own lock, so updates to different fields never
// contend. Within one field an update removes the record from its old value
// bucket and adds it to the new one under the same critical section, which
// keeps every record in at most one bucket per field.
type FilterIndex struct {
	mu     sync.RWMutex // guards the field map, not the buckets
	fields map[string]*fieldIndex
}

type fieldIndex struct {
	mu      sync.RWMutex
	buckets map[int64]*roaring64.Bitmap
}

// NewFilterIndex creates an empty filter index.
func NewFilterIndex() *FilterIndex {
	return &FilterIndex{
		fields: make(map[string]*fieldIndex),
	}
}

// Update moves a record between value buckets after an upsert. old holds
// the record's previous field values (nil on first insert), next the values
// from the new document. Fields absent from next are cleared.
func (x *FilterIndex) Update(id uint64, old, next map[string]int64) {
	for field, value := range old {
		if nv, ok := next[field]; ok && nv == value {
			continue
		}
		if fi := x.field(field, false); fi != nil {
			fi.remove(id, value)
		}
	}
	for field, value := range next {
		if ov, ok := old[field]; ok && ov == value {
			continue
		}
		x.field(field, true).set(id, value)
	}
}

// Remove clears a record from every bucket named by fields.
func (x *FilterIndex) Remove(id uint64, fields map[string]int64) {
	x.Update(id, fields, nil)
}

// Eval resolves filters to the set of record ids matching all of them.
// A nil result means no filters were given and every record is allowed.
func (x *FilterIndex) Eval(filters []Filter) (*roaring64.Bitmap, error) {
	if len(filters) == 0 {
		return nil, nil
	}

	var result *roaring64.Bitmap
	for _, f := range filters {
		bm, err := x.lookup(f)
		if err != nil {
			return nil, err
		}
		if result == nil {
			result = bm
		} else {
			result.And(bm)
		}
		if result.IsEmpty() {
			return result, nil
		}
	}
	return result, nil
}

// Fields returns the names of all indexed fields in sorted order.
func (x *FilterIndex) Fields() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()

	names := make([]string, 0, len(x.fields))
	for name := range x.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Cardinality returns how many records carry the given field value.
func (x *FilterIndex) Cardinality(field string, value int64) uint64 {
	fi := x.field(field, false)
	if fi == nil {
		return 0
	}

	fi.mu.RLock()
	defer fi.mu.RUnlock()

	bm, ok := fi.buckets[value]
	if !ok {
		return 0
	}
	return bm.GetCardinality()
}

// lookup returns a private bitmap for a single filter. Callers own the
// result and may mutate it freely.
func (x *FilterIndex) lookup(f Filter) (*roaring64.Bitmap, error) {
	switch f.Operator {
	case OpEqual, OpNotEqual:
	default:
		return nil, &ErrUnknownOperator{Operator: f.Operator}
	}

	fi := x.field(f.Field, false)
	if fi == nil {
		// Unknown fields match nothing: both operators require the
		// field to be present on the record.
		return roaring64.New(), nil
	}

	fi.mu.RLock()
	defer fi.mu.RUnlock()

	if f.Operator == OpEqual {
		if bm, ok := fi.buckets[f.Value]; ok {
			return bm.Clone(), nil
		}
		return roaring64.New(), nil
	}

	out := roaring64.New()
	for value, bm := range fi.buckets {
		if value != f.Value {
			out.Or(bm)
		}
	}
	return out, nil
}

func (x *FilterIndex) field(name string, create bool) *fieldIndex {
	x.mu.RLock()
	fi, ok := x.fields[name]
	x.mu.RUnlock()
	if ok || !create {
		return fi
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if fi, ok = x.fields[name]; ok {
		return fi
	}
	fi = &fieldIndex{buckets: make(map[int64]*roaring64.Bitmap)}
	x.fields[name] = fi
	return fi
}

func (fi *fieldIndex) set(id uint64, value int64) {
	fi.mu.Lock()
	defer fi.mu.Unlock()

	bm, ok := fi.buckets[value]
	if !ok {
		bm = roaring64.New()
		fi.buckets[value] = bm
	}
	bm.Add(id)
}

func (fi *fieldIndex) remove(id uint64, value int64) {
	fi.mu.Lock()
	defer fi.mu.Unlock()

	bm, ok := fi.buckets[value]
	if !ok {
		return
	}
	bm.Remove(id)
	if bm.IsEmpty() {
		delete(fi.buckets, value)
	}
}

// State is the serializable snapshot form of a FilterIndex.
type State struct {
	Fields map[string]map[int64][]uint64 `json:"fields"`
}

// ExportState captures the full index contents for persistence.
func (x *FilterIndex) ExportState() *State {
	x.mu.RLock()
	defer x.mu.RUnlock()

	s := &State{Fields: make(map[string]map[int64][]uint64, len(x.fields))}
	for name, fi := range x.fields {
		fi.mu.RLock()
		buckets := make(map[int64][]uint64, len(fi.buckets))
		for value, bm := range fi.buckets {
			buckets[value] = bm.ToArray()
		}
		fi.mu.RUnlock()
		s.Fields[name] = buckets
	}
	return s
}

// ImportState replaces the index contents with a previously exported state.
func (x *FilterIndex) ImportState(s *State) {
	fields := make(map[string]*fieldIndex, len(s.Fields))
	for name, buckets := range s.Fields {
		fi := &fieldIndex{buckets: make(map[int64]*roaring64.Bitmap, len(buckets))}
		for value, ids := range buckets {
			bm := roaring64.New()
			bm.AddMany(ids)
			fi.buckets[value] = bm
		}
		fields[name] = fi
	}

	x.mu.Lock()
	x.fields = fields
	x.mu.Unlock()
}
