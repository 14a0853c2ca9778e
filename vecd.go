package vecd

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/vecd/codec"
	"github.com/hupe1980/vecd/index"
	"github.com/hupe1980/vecd/metadata"
	"github.com/hupe1980/vecd/registry"
	"github.com/hupe1980/vecd/scalar"
)

// lockStripes is the number of mutexes the per-record lock table is
// sharded into. Must be a power of two.
const lockStripes = 64

// DB coordinates vector indexes, the document store and the filter
// index behind a single mutation and search surface.
//
// Record ids are global: an id identifies one document and one vector,
// and the vector lives in exactly one index at a time. Re-upserting an
// id against a different index moves it there.
type DB struct {
	registry *registry.Registry
	scalars  scalar.Store
	filters  *metadata.FilterIndex
	codec    codec.Codec
	metrics  MetricsCollector
	logger   *Logger

	// locks serializes mutations per record id so that the vector
	// insert, the document write and the filter update of one id never
	// interleave with another writer of the same id.
	locks [lockStripes]sync.Mutex

	// owners tracks which index currently holds each id's vector.
	ownersMu sync.RWMutex
	owners   map[uint64]index.Key

	closed atomic.Bool
}

// New creates an empty DB. Without options it keeps documents in
// memory, encodes them with go-json and stays silent.
func New(optFns ...Option) (*DB, error) {
	opts := applyOptions(optFns...)

	store := opts.scalars
	if store == nil {
		store = scalar.NewMemory()
	}

	return &DB{
		registry: registry.New(),
		scalars:  store,
		filters:  metadata.NewFilterIndex(),
		codec:    opts.codec,
		metrics:  opts.metricsCollector,
		logger:   opts.logger,
		owners:   make(map[uint64]index.Key),
	}, nil
}

// CreateIndexOptions holds optional settings for CreateIndex.
type CreateIndexOptions struct {
	// Capacity pre-sizes backends that reserve space up front.
	Capacity int
}

// CreateIndex registers the index addressed by key, constructing the
// backend on first call. Calling it again with the same key is a no-op:
// the existing index and its contents are kept.
func (db *DB) CreateIndex(ctx context.Context, key index.Key, optFns ...func(o *CreateIndexOptions)) error {
	start := time.Now()

	opts := CreateIndexOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	var err error
	created := false

	if db.closed.Load() {
		err = ErrClosed
	} else {
		_, existed := db.registry.Get(key)
		if err = db.registry.Init(key, opts.Capacity); err == nil {
			created = !existed
		}
	}

	if err != nil {
		err = &ErrInitIndex{Key: key, cause: translateError(err)}
	}

	db.metrics.RecordCreateIndex(time.Since(start), err)
	db.logger.LogCreateIndex(ctx, key, created, err)

	return err
}

// Upsert inserts or replaces the record id in the index addressed by
// key. The document must carry the vector under the "vectors" field;
// its remaining integer fields become filterable.
//
// The vector is indexed first. Only after the backend accepted it are
// the document and the filter postings updated, so a failed upsert
// never leaves a document without a searchable vector.
func (db *DB) Upsert(ctx context.Context, key index.Key, id uint64, doc metadata.Document) error {
	start := time.Now()

	err := db.upsert(key, id, doc)

	db.metrics.RecordUpsert(time.Since(start), err)
	db.logger.LogUpsert(ctx, key, id, err)

	return err
}

func (db *DB) upsert(key index.Key, id uint64, doc metadata.Document) error {
	if db.closed.Load() {
		return &ErrUpsert{ID: id, cause: ErrClosed}
	}

	h, ok := db.registry.Get(key)
	if !ok {
		return &ErrIndexNotFound{Key: key}
	}

	vector, err := doc.Vectors()
	if err != nil {
		return translateError(err)
	}

	encoded, err := db.codec.Marshal(doc)
	if err != nil {
		return &ErrUpsert{ID: id, cause: err}
	}

	mu := db.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	// Previous document, if any. Its integer fields are needed to move
	// the id out of its old filter buckets.
	var oldFields map[string]int64

	if raw, err := db.scalars.Get(id); err == nil {
		var old metadata.Document
		if db.codec.Unmarshal(raw, &old) == nil {
			oldFields = old.IntFields()
		}
	} else if !errors.Is(err, scalar.ErrNotFound) {
		return &ErrUpsert{ID: id, cause: err}
	}

	// An id that moved to a different index leaves its old vector
	// behind. Remove it so the id stays searchable in one place only.
	db.ownersMu.RLock()
	prevKey, hadPrev := db.owners[id]
	db.ownersMu.RUnlock()

	if hadPrev && prevKey != key {
		if prev, ok := db.registry.Get(prevKey); ok {
			if _, err := prev.Index().Remove([]uint64{id}); err != nil {
				return &ErrUpsert{ID: id, cause: &ErrBackend{Op: "remove", Key: prevKey, cause: err}}
			}
		}
	}

	if err := h.Index().Insert(vector, id); err != nil {
		return &ErrUpsert{ID: id, cause: translateError(err)}
	}

	if err := db.scalars.Put(id, encoded); err != nil {
		return &ErrUpsert{ID: id, cause: err}
	}

	db.filters.Update(id, oldFields, doc.IntFields())

	db.ownersMu.Lock()
	db.owners[id] = key
	db.ownersMu.Unlock()

	return nil
}

// UpsertItem pairs a record id with its document for batch upserts.
type UpsertItem struct {
	ID       uint64            `json:"id"`
	Document metadata.Document `json:"document"`
}

// BatchUpsertResult reports per-item outcomes of a batch upsert.
// Errors has one slot per input item; successful items hold nil.
type BatchUpsertResult struct {
	Errors []error
	Failed int
}

// FirstError returns the first per-item error, or nil if every item
// succeeded.
func (r BatchUpsertResult) FirstError() error {
	for _, err := range r.Errors {
		if err != nil {
			return err
		}
	}

	return nil
}

// BatchUpsert upserts items concurrently into the index addressed by
// key. Items fail independently: one bad document does not abort the
// rest of the batch.
func (db *DB) BatchUpsert(ctx context.Context, key index.Key, items []UpsertItem) BatchUpsertResult {
	start := time.Now()

	result := BatchUpsertResult{Errors: make([]error, len(items))}

	var g errgroup.Group

	g.SetLimit(batchConcurrency)

	for i, item := range items {
		g.Go(func() error {
			result.Errors[i] = db.upsert(key, item.ID, item.Document)
			return nil
		})
	}

	_ = g.Wait()

	for _, err := range result.Errors {
		if err != nil {
			result.Failed++
		}
	}

	db.metrics.RecordBatchUpsert(len(items), result.Failed, time.Since(start))
	db.logger.LogBatchUpsert(ctx, len(items), result.Failed)

	return result
}

// batchConcurrency caps the number of in-flight upserts per batch.
const batchConcurrency = 8

// Query returns the document stored under id, including its "vectors"
// field. The id does not need an index key: documents are addressed
// globally.
func (db *DB) Query(ctx context.Context, id uint64) (metadata.Document, error) {
	start := time.Now()

	doc, err := db.query(id)

	db.metrics.RecordQuery(time.Since(start), err)
	db.logger.LogQuery(ctx, id, err)

	return doc, err
}

func (db *DB) query(id uint64) (metadata.Document, error) {
	if db.closed.Load() {
		return nil, &ErrQuery{ID: id, cause: ErrClosed}
	}

	raw, err := db.scalars.Get(id)
	if err != nil {
		if errors.Is(err, scalar.ErrNotFound) {
			return nil, translateError(err)
		}

		return nil, &ErrQuery{ID: id, cause: err}
	}

	var doc metadata.Document
	if err := db.codec.Unmarshal(raw, &doc); err != nil {
		return nil, &ErrQuery{ID: id, cause: err}
	}

	return doc, nil
}

// Delete removes the record id: its vector, its document and its
// filter postings. Deleting an unknown id returns ErrNotFound.
func (db *DB) Delete(ctx context.Context, id uint64) error {
	start := time.Now()

	err := db.delete(id)

	db.metrics.RecordDelete(time.Since(start), err)
	db.logger.LogDelete(ctx, id, err)

	return err
}

func (db *DB) delete(id uint64) error {
	if db.closed.Load() {
		return ErrClosed
	}

	mu := db.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	db.ownersMu.RLock()
	key, ok := db.owners[id]
	db.ownersMu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}

	if h, ok := db.registry.Get(key); ok {
		if _, err := h.Index().Remove([]uint64{id}); err != nil {
			return &ErrBackend{Op: "remove", Key: key, cause: err}
		}
	}

	if raw, err := db.scalars.Get(id); err == nil {
		var old metadata.Document
		if db.codec.Unmarshal(raw, &old) == nil {
			db.filters.Remove(id, old.IntFields())
		}
	}

	if err := db.scalars.Delete(id); err != nil && !errors.Is(err, scalar.ErrNotFound) {
		return fmt.Errorf("delete document %d: %w", id, err)
	}

	db.ownersMu.Lock()
	delete(db.owners, id)
	db.ownersMu.Unlock()

	return nil
}

// IndexStats describes one registered index.
type IndexStats struct {
	Algorithm string `json:"algorithm"`
	Dimension int    `json:"dimension"`
	Metric    string `json:"metric"`
	Size      int    `json:"size"`
}

// Stats is a point-in-time summary of the DB contents.
type Stats struct {
	Indexes   []IndexStats `json:"indexes"`
	Documents int          `json:"documents"`
	Fields    []string     `json:"fields"`
}

// Stats reports the registered indexes with their sizes, the document
// count and the filterable fields seen so far.
func (db *DB) Stats() (Stats, error) {
	if db.closed.Load() {
		return Stats{}, ErrClosed
	}

	keys := db.registry.Keys()
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	stats := Stats{
		Indexes: make([]IndexStats, 0, len(keys)),
		Fields:  db.filters.Fields(),
	}

	for _, key := range keys {
		h, ok := db.registry.Get(key)
		if !ok {
			continue
		}

		stats.Indexes = append(stats.Indexes, IndexStats{
			Algorithm: key.Algorithm.String(),
			Dimension: key.Dimension,
			Metric:    key.Metric.String(),
			Size:      h.Index().Len(),
		})
	}

	docs, err := db.scalars.Len()
	if err != nil {
		return Stats{}, fmt.Errorf("count documents: %w", err)
	}

	stats.Documents = docs

	return stats, nil
}

// Close releases every index and the document store. Operations on a
// closed DB return ErrClosed. Close is idempotent.
func (db *DB) Close() error {
	if db == nil {
		return nil
	}

	if !db.closed.CompareAndSwap(false, true) {
		return nil
	}

	var errs []error

	if err := db.registry.Close(); err != nil {
		errs = append(errs, err)
	}

	if err := db.scalars.Close(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (db *DB) lockFor(id uint64) *sync.Mutex {
	return &db.locks[id&(lockStripes-1)]
}

// lockAll acquires every stripe in order, quiescing all writers. The
// returned func releases them.
func (db *DB) lockAll() func() {
	for i := range db.locks {
		db.locks[i].Lock()
	}

	return func() {
		for i := range db.locks {
			db.locks[i].Unlock()
		}
	}
}
