package vecd

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems; a ready
// Prometheus implementation is provided by NewPrometheusCollector.
type MetricsCollector interface {
	// RecordCreateIndex is called after each index initialization attempt.
	RecordCreateIndex(duration time.Duration, err error)

	// RecordUpsert is called after each upsert operation.
	// duration is the total time taken, err is nil if successful.
	RecordUpsert(duration time.Duration, err error)

	// RecordBatchUpsert is called after each batch upsert operation.
	// count is the number of items attempted, failed is the number that
	// failed, duration is the total time taken.
	RecordBatchUpsert(count, failed int, duration time.Duration)

	// RecordQuery is called after each document read.
	RecordQuery(duration time.Duration, err error)

	// RecordSearch is called after each search operation.
	// k is the number of neighbors requested.
	RecordSearch(k int, duration time.Duration, err error)

	// RecordDelete is called after each delete operation.
	RecordDelete(duration time.Duration, err error)

	// RecordSnapshot is called after each snapshot save or restore.
	RecordSnapshot(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordCreateIndex(time.Duration, error)    {}
func (NoopMetricsCollector) RecordUpsert(time.Duration, error)         {}
func (NoopMetricsCollector) RecordBatchUpsert(int, int, time.Duration) {}
func (NoopMetricsCollector) RecordQuery(time.Duration, error)          {}
func (NoopMetricsCollector) RecordSearch(int, time.Duration, error)    {}
func (NoopMetricsCollector) RecordDelete(time.Duration, error)         {}
func (NoopMetricsCollector) RecordSnapshot(time.Duration, error)       {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	CreateIndexCount  atomic.Int64
	CreateIndexErrors atomic.Int64
	UpsertCount       atomic.Int64
	UpsertErrors      atomic.Int64
	UpsertTotalNanos  atomic.Int64
	BatchUpsertCount  atomic.Int64
	BatchUpsertItems  atomic.Int64
	BatchUpsertFailed atomic.Int64
	QueryCount        atomic.Int64
	QueryErrors       atomic.Int64
	SearchCount       atomic.Int64
	SearchErrors      atomic.Int64
	SearchTotalNanos  atomic.Int64
	DeleteCount       atomic.Int64
	DeleteErrors      atomic.Int64
	SnapshotCount     atomic.Int64
	SnapshotErrors    atomic.Int64
}

// RecordCreateIndex implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCreateIndex(duration time.Duration, err error) {
	b.CreateIndexCount.Add(1)
	if err != nil {
		b.CreateIndexErrors.Add(1)
	}
}

// RecordUpsert implements MetricsCollector.
func (b *BasicMetricsCollector) RecordUpsert(duration time.Duration, err error) {
	b.UpsertCount.Add(1)
	b.UpsertTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.UpsertErrors.Add(1)
	}
}

// RecordBatchUpsert implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBatchUpsert(count, failed int, duration time.Duration) {
	b.BatchUpsertCount.Add(1)
	b.BatchUpsertItems.Add(int64(count))
	b.BatchUpsertFailed.Add(int64(failed))
}

// RecordQuery implements MetricsCollector.
func (b *BasicMetricsCollector) RecordQuery(duration time.Duration, err error) {
	b.QueryCount.Add(1)
	if err != nil {
		b.QueryErrors.Add(1)
	}
}

// RecordSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSearch(k int, duration time.Duration, err error) {
	b.SearchCount.Add(1)
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SearchErrors.Add(1)
	}
}

// RecordDelete implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDelete(duration time.Duration, err error) {
	b.DeleteCount.Add(1)
	if err != nil {
		b.DeleteErrors.Add(1)
	}
}

// RecordSnapshot implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSnapshot(duration time.Duration, err error) {
	b.SnapshotCount.Add(1)
	if err != nil {
		b.SnapshotErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		CreateIndexCount:  b.CreateIndexCount.Load(),
		CreateIndexErrors: b.CreateIndexErrors.Load(),
		UpsertCount:       b.UpsertCount.Load(),
		UpsertErrors:      b.UpsertErrors.Load(),
		UpsertAvgNanos:    b.getAvgUpsertNanos(),
		BatchUpsertCount:  b.BatchUpsertCount.Load(),
		BatchUpsertItems:  b.BatchUpsertItems.Load(),
		BatchUpsertFailed: b.BatchUpsertFailed.Load(),
		QueryCount:        b.QueryCount.Load(),
		QueryErrors:       b.QueryErrors.Load(),
		SearchCount:       b.SearchCount.Load(),
		SearchErrors:      b.SearchErrors.Load(),
		SearchAvgNanos:    b.getAvgSearchNanos(),
		DeleteCount:       b.DeleteCount.Load(),
		DeleteErrors:      b.DeleteErrors.Load(),
		SnapshotCount:     b.SnapshotCount.Load(),
		SnapshotErrors:    b.SnapshotErrors.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgUpsertNanos() int64 {
	count := b.UpsertCount.Load()
	if count == 0 {
		return 0
	}
	return b.UpsertTotalNanos.Load() / count
}

func (b *BasicMetricsCollector) getAvgSearchNanos() int64 {
	count := b.SearchCount.Load()
	if count == 0 {
		return 0
	}
	return b.SearchTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	CreateIndexCount  int64
	CreateIndexErrors int64
	UpsertCount       int64
	UpsertErrors      int64
	UpsertAvgNanos    int64
	BatchUpsertCount  int64
	BatchUpsertItems  int64
	BatchUpsertFailed int64
	QueryCount        int64
	QueryErrors       int64
	SearchCount       int64
	SearchErrors      int64
	SearchAvgNanos    int64
	DeleteCount       int64
	DeleteErrors      int64
	SnapshotCount     int64
	SnapshotErrors    int64
}
