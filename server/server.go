// Package server exposes a vecd database over HTTP/JSON.
//
// Responses use a uniform envelope: successes carry {"code":0, ...},
// failures {"code":-1,"error_msg":"..."} with the status derived from
// the error kind (validation 400, unknown ids or indexes 404,
// backend failures 500).
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hupe1980/vecd"
	"github.com/hupe1980/vecd/resource"
	"github.com/hupe1980/vecd/snapshot"
)

// Options holds optional settings for New.
type Options struct {
	// Addr is the listen address. Default ":8080".
	Addr string

	// Mode is the gin mode. Default gin.ReleaseMode.
	Mode string

	// Logger receives request logs. Default slog.Default().
	Logger *slog.Logger

	// Metrics exposes /metrics when set.
	Metrics *vecd.PrometheusCollector

	// Snapshots enables the snapshot and restore endpoints when set.
	Snapshots *snapshot.Manager

	// SnapshotOptions configures archives written via the snapshot
	// endpoint.
	SnapshotOptions []func(o *vecd.SnapshotOptions)

	// Controller admits request payload memory and serializes snapshot
	// jobs. Nil enforces nothing.
	Controller *resource.Controller
}

// Server serves a vecd database over HTTP.
type Server struct {
	db         *vecd.DB
	target     snapshot.Target
	snapshots  *snapshot.Manager
	controller *resource.Controller
	logger     *slog.Logger

	engine     *gin.Engine
	httpServer *http.Server
}

// New creates a server around db. The server does not own the
// database; closing it is the caller's concern.
func New(db *vecd.DB, optFns ...func(o *Options)) *Server {
	opts := Options{
		Addr:   ":8080",
		Mode:   gin.ReleaseMode,
		Logger: slog.Default(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	gin.SetMode(opts.Mode)

	s := &Server{
		db:         db,
		target:     db.SnapshotTarget(opts.SnapshotOptions...),
		snapshots:  opts.Snapshots,
		controller: opts.Controller,
		logger:     opts.Logger,
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), RequestID(), RequestLogger(opts.Logger))

	engine.GET("/healthz", s.handleHealth)

	if opts.Metrics != nil {
		engine.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}

	v1 := engine.Group("/api/v1")
	v1.Use(PayloadAdmission(opts.Controller))
	{
		v1.POST("/index", s.handleCreateIndex)
		v1.POST("/upsert", s.handleUpsert)
		v1.POST("/upsert/batch", s.handleBatchUpsert)
		v1.POST("/search", s.handleSearch)
		v1.GET("/query/:id", s.handleQuery)
		v1.DELETE("/document/:id", s.handleDelete)
		v1.GET("/stats", s.handleStats)

		if s.snapshots != nil {
			v1.POST("/snapshot", s.handleSnapshot)
			v1.POST("/restore", s.handleRestore)
		}
	}

	s.engine = engine
	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start listens and serves until Shutdown is called. It always returns
// a non-nil error; after a graceful shutdown that error is
// http.ErrServerClosed.
func (s *Server) Start() error {
	s.logger.Info("server listening", "addr", s.httpServer.Addr)

	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")

	return s.httpServer.Shutdown(ctx)
}
