package server

import (
	"github.com/hupe1980/vecd"
	"github.com/hupe1980/vecd/index"
	"github.com/hupe1980/vecd/metadata"
)

// IndexRef names one index in request payloads. Algorithm and metric
// names are parsed case-insensitively ("flat", "HNSW", "l2", ...).
type IndexRef struct {
	Algorithm string `json:"algorithm" binding:"required"`
	Dimension int    `json:"dimension" binding:"required,min=1"`
	Metric    string `json:"metric" binding:"required"`
}

// RefFromKey converts an index key into its wire form.
func RefFromKey(key index.Key) IndexRef {
	return IndexRef{
		Algorithm: key.Algorithm.String(),
		Dimension: key.Dimension,
		Metric:    key.Metric.String(),
	}
}

// Key resolves the reference to an index key.
func (r IndexRef) Key() (index.Key, error) {
	algorithm, err := index.ParseAlgorithm(r.Algorithm)
	if err != nil {
		return index.Key{}, err
	}

	metric, err := index.ParseMetric(r.Metric)
	if err != nil {
		return index.Key{}, err
	}

	return index.Key{Algorithm: algorithm, Dimension: r.Dimension, Metric: metric}, nil
}

// CreateIndexRequest is the payload of POST /api/v1/index.
type CreateIndexRequest struct {
	IndexRef

	// Capacity pre-sizes backends that reserve space up front.
	Capacity int `json:"capacity" binding:"omitempty,min=0"`
}

// CreateIndexResponse echoes the key of the created index.
type CreateIndexResponse struct {
	Code     int      `json:"code"`
	IndexKey IndexRef `json:"index_key"`
}

// UpsertRequest is the payload of POST /api/v1/upsert. Vectors, when
// present, are merged into the document under its "vectors" field
// before the upsert.
type UpsertRequest struct {
	IndexRef

	ID       uint64         `json:"id" binding:"required,min=1"`
	Vectors  []float32      `json:"vectors" binding:"omitempty,min=1"`
	Document map[string]any `json:"document"`
}

// BatchUpsertRequest is the payload of POST /api/v1/upsert/batch.
type BatchUpsertRequest struct {
	IndexRef

	Items []BatchUpsertItem `json:"items" binding:"required,min=1,dive"`
}

// BatchUpsertItem is one record of a batch upsert.
type BatchUpsertItem struct {
	ID       uint64         `json:"id" binding:"required,min=1"`
	Vectors  []float32      `json:"vectors" binding:"omitempty,min=1"`
	Document map[string]any `json:"document"`
}

// BatchUpsertResponse reports per-item outcomes. Errors holds one
// entry per failed item, keyed by its position in the request.
type BatchUpsertResponse struct {
	Code   int            `json:"code"`
	Failed int            `json:"failed"`
	Errors map[int]string `json:"errors,omitempty"`
}

// SearchClause is one metadata filter of a search request.
type SearchClause struct {
	Field string `json:"field" binding:"required"`
	Op    string `json:"op" binding:"required,oneof=eq ne"`
	Value int64  `json:"value"`
}

// SearchRequest is the payload of POST /api/v1/search.
type SearchRequest struct {
	IndexRef

	Vectors []float32      `json:"vectors" binding:"required,min=1"`
	K       int            `json:"k" binding:"required,min=1"`
	Filters []SearchClause `json:"filters" binding:"omitempty,dive"`
}

// SearchResponse carries hits as parallel id/distance slices, nearest
// first, plus the stored documents when requested.
type SearchResponse struct {
	Code      int                 `json:"code"`
	IDs       []uint64            `json:"ids"`
	Distances []float32           `json:"distances"`
	Documents []metadata.Document `json:"documents,omitempty"`
}

// QueryResponse is the payload of GET /api/v1/query/:id.
type QueryResponse struct {
	Code int               `json:"code"`
	Data metadata.Document `json:"data"`
}

// DeleteResponse is the payload of DELETE /api/v1/document/:id.
type DeleteResponse struct {
	Code int `json:"code"`
}

// StatsResponse is the payload of GET /api/v1/stats.
type StatsResponse struct {
	Code  int        `json:"code"`
	Stats vecd.Stats `json:"stats"`
}

// SnapshotResponse names the archive written by POST /api/v1/snapshot.
type SnapshotResponse struct {
	Code int    `json:"code"`
	Name string `json:"name"`
}

// RestoreRequest is the payload of POST /api/v1/restore. An empty name
// restores the most recent archive.
type RestoreRequest struct {
	Name string `json:"name"`
}

// RestoreResponse is the payload of POST /api/v1/restore.
type RestoreResponse struct {
	Code int    `json:"code"`
	Name string `json:"name"`
}

// ErrorResponse is the uniform failure envelope.
type ErrorResponse struct {
	Code     int    `json:"code"`
	ErrorMsg string `json:"error_msg"`
}

func (r UpsertRequest) document() metadata.Document {
	return mergeVectors(r.Document, r.Vectors)
}

func (i BatchUpsertItem) document() metadata.Document {
	return mergeVectors(i.Document, i.Vectors)
}

// mergeVectors folds a request's standalone vectors field into the
// document, mirroring how the documents are stored and queried.
func mergeVectors(data map[string]any, vectors []float32) metadata.Document {
	doc := make(metadata.Document, len(data)+1)
	for k, v := range data {
		doc[k] = v
	}

	if len(vectors) > 0 {
		doc[metadata.VectorsField] = vectors
	}

	return doc
}

func (c SearchClause) filter() metadata.Filter {
	return metadata.Filter{
		Field:    c.Field,
		Operator: metadata.Operator(c.Op),
		Value:    c.Value,
	}
}
