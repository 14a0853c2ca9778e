package vecd

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/hupe1980/vecd/index"
	"github.com/hupe1980/vecd/metadata"
)

// SearchResult is a single search hit enriched with its stored
// document. Document is nil when the hit has no document, which only
// happens if the store lost it out of band.
type SearchResult struct {
	index.SearchResult

	Document metadata.Document `json:"document,omitempty"`
}

// KNNSearchOptions holds optional settings for KNNSearch.
type KNNSearchOptions struct {
	// Filters restricts candidates to records whose integer fields
	// match. Multiple filters AND together.
	Filters []metadata.Filter

	// FilterFunc restricts candidates by id. Combined with Filters,
	// both must accept.
	FilterFunc index.FilterFunc
}

// KNNSearch returns the k nearest neighbors of query in the index
// addressed by key, nearest first.
func (db *DB) KNNSearch(ctx context.Context, key index.Key, query []float32, k int, optFns ...func(o *KNNSearchOptions)) ([]SearchResult, error) {
	start := time.Now()

	opts := KNNSearchOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	results, err := db.knnSearch(key, query, k, opts)

	db.metrics.RecordSearch(k, time.Since(start), err)
	db.logger.LogSearch(ctx, key, k, len(results), err)

	return results, err
}

func (db *DB) knnSearch(key index.Key, query []float32, k int, opts KNNSearchOptions) ([]SearchResult, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}

	h, ok := db.registry.Get(key)
	if !ok {
		return nil, &ErrIndexNotFound{Key: key}
	}

	allow := opts.FilterFunc

	if len(opts.Filters) > 0 {
		bm, err := db.filters.Eval(opts.Filters)
		if err != nil {
			return nil, translateError(err)
		}

		if bm.IsEmpty() {
			return []SearchResult{}, nil
		}

		if fn := opts.FilterFunc; fn != nil {
			allow = func(id uint64) bool { return bm.Contains(id) && fn(id) }
		} else {
			allow = bm.Contains
		}
	}

	var (
		hits []index.SearchResult
		err  error
	)

	if allow == nil {
		hits, err = h.Index().Search(query, k)
	} else {
		hits, err = h.Index().SearchFiltered(query, k, allow)
	}

	if err != nil {
		err = translateError(err)

		var vErr *ErrValidation
		if errors.As(err, &vErr) {
			return nil, err
		}

		return nil, &ErrBackend{Op: "search", Key: key, cause: err}
	}

	return db.enrich(hits), nil
}

// enrich attaches the stored documents to raw index hits. Hits whose
// document cannot be loaded keep a nil Document instead of failing the
// whole search.
func (db *DB) enrich(hits []index.SearchResult) []SearchResult {
	results := make([]SearchResult, 0, len(hits))

	for _, hit := range hits {
		result := SearchResult{SearchResult: hit}

		if raw, err := db.scalars.Get(hit.ID); err == nil {
			var doc metadata.Document
			if db.codec.Unmarshal(raw, &doc) == nil {
				result.Document = doc
			}
		}

		results = append(results, result)
	}

	return results
}

// Search creates a fluent search builder against the index addressed
// by key.
//
// Example:
//
//	results, err := db.Search(key, query).
//	    KNN(10).
//	    Eq("category", 3).
//	    Execute(ctx)
func (db *DB) Search(key index.Key, query []float32) *SearchBuilder {
	return &SearchBuilder{
		db:    db,
		key:   key,
		query: query,
		k:     10, // Default k
	}
}

// SearchBuilder is a fluent builder for constructing search queries.
type SearchBuilder struct {
	db    *DB
	key   index.Key
	query []float32
	k     int

	// Filters
	filters    []metadata.Filter
	filterFunc index.FilterFunc
}

// KNN sets the number of nearest neighbors to return.
func (sb *SearchBuilder) KNN(k int) *SearchBuilder {
	sb.k = k
	return sb
}

// Eq keeps only records whose field equals value.
func (sb *SearchBuilder) Eq(field string, value int64) *SearchBuilder {
	sb.filters = append(sb.filters, metadata.Filter{Field: field, Operator: metadata.OpEqual, Value: value})
	return sb
}

// NotEq keeps only records that carry field with a value other than
// value.
func (sb *SearchBuilder) NotEq(field string, value int64) *SearchBuilder {
	sb.filters = append(sb.filters, metadata.Filter{Field: field, Operator: metadata.OpNotEqual, Value: value})
	return sb
}

// Where appends prebuilt filters, for callers that decoded them from a
// request.
func (sb *SearchBuilder) Where(filters ...metadata.Filter) *SearchBuilder {
	sb.filters = append(sb.filters, filters...)
	return sb
}

// Filter sets a filter function for search results.
// Only vectors where filter(id) returns true are considered.
func (sb *SearchBuilder) Filter(fn index.FilterFunc) *SearchBuilder {
	sb.filterFunc = fn
	return sb
}

// Execute runs the search and returns the results.
func (sb *SearchBuilder) Execute(ctx context.Context) ([]SearchResult, error) {
	return sb.db.KNNSearch(ctx, sb.key, sb.query, sb.k, func(o *KNNSearchOptions) {
		o.Filters = sb.filters
		o.FilterFunc = sb.filterFunc
	})
}

// MustExecute runs the search, panicking on error.
// Use this only in tests or when you're certain the query is valid.
func (sb *SearchBuilder) MustExecute(ctx context.Context) []SearchResult {
	results, err := sb.Execute(ctx)
	if err != nil {
		panic(err)
	}

	return results
}

// Stream returns an iterator over search results, nearest first.
// The iterator supports early termination by breaking from the loop.
//
// Example:
//
//	for result, err := range db.Search(key, query).KNN(100).Stream(ctx) {
//	    if err != nil { break }
//	    if result.Distance > threshold { break }
//	    process(result)
//	}
func (sb *SearchBuilder) Stream(ctx context.Context) iter.Seq2[SearchResult, error] {
	return func(yield func(SearchResult, error) bool) {
		results, err := sb.Execute(ctx)
		if err != nil {
			yield(SearchResult{}, err)
			return
		}

		for _, result := range results {
			if !yield(result, nil) {
				return
			}
		}
	}
}

// First returns only the nearest result, or an error if none found.
func (sb *SearchBuilder) First(ctx context.Context) (SearchResult, error) {
	sb.k = 1

	results, err := sb.Execute(ctx)
	if err != nil {
		return SearchResult{}, err
	}

	if len(results) == 0 {
		return SearchResult{}, ErrNotFound
	}

	return results[0], nil
}

// Count executes the search and returns the number of results.
func (sb *SearchBuilder) Count(ctx context.Context) (int, error) {
	results, err := sb.Execute(ctx)
	if err != nil {
		return 0, err
	}

	return len(results), nil
}

// Exists checks if at least one result matches the search.
func (sb *SearchBuilder) Exists(ctx context.Context) (bool, error) {
	sb.k = 1

	results, err := sb.Execute(ctx)
	if err != nil {
		return false, err
	}

	return len(results) > 0, nil
}
