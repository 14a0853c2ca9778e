package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/hupe1980/vecd"
	"github.com/hupe1980/vecd/blobstore"
	"github.com/hupe1980/vecd/metadata"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleCreateIndex(c *gin.Context) {
	var req CreateIndexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	key, err := req.Key()
	if err != nil {
		badRequest(c, err)
		return
	}

	if err := s.db.CreateIndex(c.Request.Context(), key, func(o *vecd.CreateIndexOptions) {
		o.Capacity = req.Capacity
	}); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, CreateIndexResponse{IndexKey: RefFromKey(key)})
}

func (s *Server) handleUpsert(c *gin.Context) {
	var req UpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	key, err := req.Key()
	if err != nil {
		badRequest(c, err)
		return
	}

	if err := s.db.Upsert(c.Request.Context(), key, req.ID, req.document()); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": 0})
}

func (s *Server) handleBatchUpsert(c *gin.Context) {
	var req BatchUpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	key, err := req.Key()
	if err != nil {
		badRequest(c, err)
		return
	}

	items := make([]vecd.UpsertItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = vecd.UpsertItem{ID: item.ID, Document: item.document()}
	}

	result := s.db.BatchUpsert(c.Request.Context(), key, items)

	resp := BatchUpsertResponse{Failed: result.Failed}
	if result.Failed > 0 {
		resp.Errors = make(map[int]string, result.Failed)
		for i, err := range result.Errors {
			if err != nil {
				resp.Errors[i] = err.Error()
			}
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSearch(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	key, err := req.Key()
	if err != nil {
		badRequest(c, err)
		return
	}

	results, err := s.db.KNNSearch(c.Request.Context(), key, req.Vectors, req.K, func(o *vecd.KNNSearchOptions) {
		for _, clause := range req.Filters {
			o.Filters = append(o.Filters, clause.filter())
		}
	})
	if err != nil {
		respondError(c, err)
		return
	}

	resp := SearchResponse{
		IDs:       make([]uint64, len(results)),
		Distances: make([]float32, len(results)),
		Documents: make([]metadata.Document, len(results)),
	}

	for i, result := range results {
		resp.IDs[i] = result.ID
		resp.Distances[i] = result.Distance
		resp.Documents[i] = result.Document
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleQuery(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	doc, err := s.db.Query(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, QueryResponse{Data: doc})
}

func (s *Server) handleDelete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := s.db.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, DeleteResponse{})
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.db.Stats()
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, StatsResponse{Stats: stats})
}

func (s *Server) handleSnapshot(c *gin.Context) {
	// One snapshot at a time; concurrent requests are shed, not queued.
	if !s.controller.TryAcquireJob() {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Code:     -1,
			ErrorMsg: "another snapshot is already running",
		})

		return
	}
	defer s.controller.ReleaseJob()

	name, err := s.snapshots.Save(c.Request.Context(), s.target)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, SnapshotResponse{Name: name})
}

func (s *Server) handleRestore(c *gin.Context) {
	var req RestoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	name := req.Name
	if name == "" {
		latest, err := s.snapshots.LatestName(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}

		name = latest
	}

	if err := s.snapshots.Load(c.Request.Context(), s.target, name); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, RestoreResponse{Name: name})
}

// pathID parses the :id segment. On failure it writes the error
// response itself and reports false.
func pathID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, errors.New("id must be a positive integer"))
		return 0, false
	}

	return id, true
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: -1, ErrorMsg: err.Error()})
}

// respondError writes the failure envelope with the status derived
// from the error kind.
func respondError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusFor(err), ErrorResponse{Code: -1, ErrorMsg: err.Error()})
}

func statusFor(err error) int {
	var vErr *vecd.ErrValidation
	if errors.As(err, &vErr) {
		return http.StatusBadRequest
	}

	var nfErr *vecd.ErrIndexNotFound
	if errors.As(err, &nfErr) || errors.Is(err, vecd.ErrNotFound) || errors.Is(err, blobstore.ErrNotFound) {
		return http.StatusNotFound
	}

	return http.StatusInternalServerError
}
