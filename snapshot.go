package vecd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/hupe1980/vecd/index"
	"github.com/hupe1980/vecd/metadata"
	"github.com/hupe1980/vecd/snapshot"
)

// SnapshotOptions holds optional settings for Snapshot.
type SnapshotOptions struct {
	// Compression applied to the archive payload.
	Compression snapshot.Compression
}

// Snapshot writes the complete database state to w: indexes,
// documents, id assignments and filter postings. Writers are quiesced
// for the duration, readers keep running.
func (db *DB) Snapshot(ctx context.Context, w io.Writer, optFns ...func(o *SnapshotOptions)) error {
	start := time.Now()

	opts := SnapshotOptions{Compression: snapshot.DefaultCompression}
	for _, fn := range optFns {
		fn(&opts)
	}

	records := 0

	state, err := db.exportState()
	if err == nil {
		records = len(state.Documents)
		err = snapshot.Write(w, state, db.codec, opts.Compression)
	}

	db.metrics.RecordSnapshot(time.Since(start), err)
	db.logger.LogSnapshot(ctx, records, err)

	return err
}

// Restore replaces the database contents with the archive read from
// r. Restore is meant for a freshly created DB; existing documents
// are dropped first.
func (db *DB) Restore(ctx context.Context, r io.Reader) error {
	start := time.Now()

	records, err := db.restore(r)

	db.metrics.RecordSnapshot(time.Since(start), err)
	db.logger.LogRestore(ctx, records, err)

	return err
}

// SaveToFile snapshots the database into a file.
func (db *DB) SaveToFile(ctx context.Context, path string, optFns ...func(o *SnapshotOptions)) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := db.Snapshot(ctx, f, optFns...); err != nil {
		_ = f.Close()
		return err
	}

	return f.Close()
}

// LoadFromFile restores the database from a snapshot file.
func (db *DB) LoadFromFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}

	defer f.Close()

	return db.Restore(ctx, f)
}

// SnapshotTarget adapts the database to snapshot.Manager's Target
// interface, fixing the snapshot options the manager will use.
func (db *DB) SnapshotTarget(optFns ...func(o *SnapshotOptions)) snapshot.Target {
	return snapshotTarget{db: db, optFns: optFns}
}

type snapshotTarget struct {
	db     *DB
	optFns []func(o *SnapshotOptions)
}

var _ snapshot.Target = snapshotTarget{}

func (t snapshotTarget) Snapshot(ctx context.Context, w io.Writer) error {
	return t.db.Snapshot(ctx, w, t.optFns...)
}

func (t snapshotTarget) Restore(ctx context.Context, r io.Reader) error {
	return t.db.Restore(ctx, r)
}

func (db *DB) exportState() (*snapshot.State, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}

	unlock := db.lockAll()
	defer unlock()

	keys := db.registry.Keys()
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	state := &snapshot.State{
		Indexes:   make([]snapshot.IndexRecord, 0, len(keys)),
		Documents: make(map[uint64][]byte),
		Owners:    make(map[uint64]int),
	}

	pos := make(map[index.Key]int, len(keys))

	for _, key := range keys {
		h, ok := db.registry.Get(key)
		if !ok {
			continue
		}

		pos[key] = len(state.Indexes)
		state.Indexes = append(state.Indexes, snapshot.RecordFromKey(key, h.Index().Len()))
	}

	db.ownersMu.RLock()
	for id, key := range db.owners {
		if i, ok := pos[key]; ok {
			state.Owners[id] = i
		}
	}
	db.ownersMu.RUnlock()

	err := db.scalars.Each(func(id uint64, doc []byte) bool {
		state.Documents[id] = doc
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("export documents: %w", err)
	}

	state.Filters = db.filters.ExportState()

	return state, nil
}

func (db *DB) restore(r io.Reader) (int, error) {
	if db.closed.Load() {
		return 0, ErrClosed
	}

	state, archiveCodec, err := snapshot.Read(r)
	if err != nil {
		return 0, err
	}

	// Resolve keys up front so a bad archive fails before anything is
	// dropped.
	keys := make([]index.Key, len(state.Indexes))

	for i, record := range state.Indexes {
		key, err := record.Key()
		if err != nil {
			return 0, fmt.Errorf("restore index %d: %w", i, translateError(err))
		}

		keys[i] = key
	}

	unlock := db.lockAll()
	defer unlock()

	if err := db.scalars.Clear(); err != nil {
		return 0, fmt.Errorf("clear documents: %w", err)
	}

	// Drop any pre-existing indexes so the restored state stands alone.
	if err := db.registry.Close(); err != nil {
		return 0, fmt.Errorf("drop indexes: %w", err)
	}

	db.ownersMu.Lock()
	db.owners = make(map[uint64]index.Key, len(state.Owners))
	db.ownersMu.Unlock()

	for i, key := range keys {
		if err := db.registry.Init(key, state.Indexes[i].Size); err != nil {
			return 0, &ErrInitIndex{Key: key, cause: translateError(err)}
		}
	}

	restored := 0

	for id, raw := range state.Documents {
		var doc metadata.Document
		if err := archiveCodec.Unmarshal(raw, &doc); err != nil {
			return restored, fmt.Errorf("restore document %d: %w", id, err)
		}

		pos, ok := state.Owners[id]
		if !ok || pos < 0 || pos >= len(keys) {
			return restored, fmt.Errorf("restore document %d: no index assignment", id)
		}

		key := keys[pos]

		vector, err := doc.Vectors()
		if err != nil {
			return restored, fmt.Errorf("restore document %d: %w", id, translateError(err))
		}

		h, ok := db.registry.Get(key)
		if !ok {
			return restored, &ErrIndexNotFound{Key: key}
		}

		if err := h.Index().Insert(vector, id); err != nil {
			return restored, fmt.Errorf("restore document %d: %w", id, translateError(err))
		}

		// Documents travel in the archive codec. Re-encode when the
		// database runs a different one.
		stored := raw
		if archiveCodec.Name() != db.codec.Name() {
			if stored, err = db.codec.Marshal(doc); err != nil {
				return restored, fmt.Errorf("restore document %d: %w", id, err)
			}
		}

		if err := db.scalars.Put(id, stored); err != nil {
			return restored, fmt.Errorf("restore document %d: %w", id, err)
		}

		db.ownersMu.Lock()
		db.owners[id] = key
		db.ownersMu.Unlock()

		restored++
	}

	filters := state.Filters
	if filters == nil {
		filters = &metadata.State{}
	}

	db.filters.ImportState(filters)

	return restored, nil
}
